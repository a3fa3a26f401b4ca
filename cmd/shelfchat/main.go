package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/shelfchat/shelfchat/internal/ai"
	"github.com/shelfchat/shelfchat/internal/chunker"
	"github.com/shelfchat/shelfchat/internal/config"
	"github.com/shelfchat/shelfchat/internal/embedcache"
	"github.com/shelfchat/shelfchat/internal/filestore"
	"github.com/shelfchat/shelfchat/internal/handler"
	"github.com/shelfchat/shelfchat/internal/indexer"
	"github.com/shelfchat/shelfchat/internal/job"
	"github.com/shelfchat/shelfchat/internal/middleware"
	"github.com/shelfchat/shelfchat/internal/retriever"
	"github.com/shelfchat/shelfchat/internal/schedule"
	"github.com/shelfchat/shelfchat/internal/service"
	"github.com/shelfchat/shelfchat/internal/token"
	"github.com/shelfchat/shelfchat/internal/vectorstore"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "shelfchat",
		Short: "shelfchat document chat server",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run shelfchat server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				return fmt.Errorf("--config is required")
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger.Init(
				cfg.LogConfig.File,
				cfg.LogConfig.Level,
				int(cfg.LogConfig.FileCount),
				int(cfg.LogConfig.FileSize),
				int(cfg.LogConfig.KeepDays),
				cfg.LogConfig.Console,
			)
			logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", configPath))
			return runServer(cfg)
		},
	}

	runCmd.Flags().StringVar(&configPath, "config", "", "path to config.json")
	rootCmd.AddCommand(runCmd)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func buildAIStack(cfg *config.Config) (*ai.Manager, ai.IEmbedder, error) {
	provider, err := ai.NewProvider(cfg.AI.Provider, cfg.AI.Data)
	if err != nil {
		return nil, nil, fmt.Errorf("init ai provider: %w", err)
	}
	generators := []ai.GeneratorEntry{{Name: cfg.AI.Provider, Generator: ai.NewGenerator(provider, cfg.AI.Model)}}
	embedders := []ai.EmbedderEntry{{Name: cfg.AI.Provider, Embedder: ai.NewEmbedder(provider, cfg.AI.EmbedModel)}}
	for _, fb := range cfg.AI.Fallbacks {
		fbProvider, err := ai.NewProvider(fb.Provider, fb.Data)
		if err != nil {
			return nil, nil, fmt.Errorf("init fallback provider %s: %w", fb.Provider, err)
		}
		generators = append(generators, ai.GeneratorEntry{Name: fb.Provider, Generator: ai.NewGenerator(fbProvider, fb.Model)})
	}

	embedder := ai.NewGroupEmbedder(embedders)
	if cfg.AI.CacheSize > 0 {
		ttl := time.Duration(cfg.AI.CacheTTLHours) * time.Hour
		embedder = embedcache.WrapLRU(embedder, cfg.AI.CacheSize, ttl)
	}
	manager := ai.NewManager(
		ai.NewChatter(provider, cfg.AI.Model),
		ai.NewGroupGenerator(generators),
		embedder,
		ai.ManagerConfig{Timeout: cfg.AI.Timeout, MaxInputChars: cfg.AI.MaxInputChars},
	)
	return manager, embedder, nil
}

func runServer(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	logutil.GetLogger(ctx).Info(
		"starting server",
		zap.Int("port", cfg.Port),
		zap.String("ai_provider", cfg.AI.Provider),
		zap.String("vector_store", cfg.VectorStore.Type),
	)

	manager, embedder, err := buildAIStack(cfg)
	if err != nil {
		return err
	}

	store, err := vectorstore.New(cfg.VectorStore.Type, cfg.VectorStore.Data)
	if err != nil {
		return fmt.Errorf("init vector store: %w", err)
	}
	if err := store.Init(ctx, cfg.AI.EmbedDimension); err != nil {
		return fmt.Errorf("init vector store schema: %w", err)
	}

	var archive filestore.Store
	if cfg.FileStore.Type != "" {
		archive, err = filestore.New(cfg.FileStore.Type, cfg.FileStore.Data)
		if err != nil {
			return fmt.Errorf("init file store: %w", err)
		}
	}

	codec, err := token.NewTiktokenCodec(cfg.Chunking.Encoding)
	if err != nil {
		return fmt.Errorf("init token codec: %w", err)
	}
	ck, err := chunker.New(codec, cfg.Chunking.MaxTokens, cfg.Chunking.OverlapTokens)
	if err != nil {
		return fmt.Errorf("init chunker: %w", err)
	}
	ix := indexer.New(embedder, cfg.AI.EmbedDimension, cfg.Ingest.Concurrency)
	ret := retriever.New(embedder, store, manager, retriever.Config{
		Limit:         cfg.Retrieval.Limit,
		HighThreshold: cfg.Retrieval.HighThreshold,
		LowThreshold:  cfg.Retrieval.LowThreshold,
		Overfetch:     cfg.Retrieval.Overfetch,
		ConceptBoost:  cfg.Retrieval.MaxConcepts > 0,
		MaxConcepts:   cfg.Retrieval.MaxConcepts,
	})

	ingestService := service.NewIngestService(ck, ix, store, archive)
	chatService := service.NewChatService(manager, ret, service.ChatConfig{
		RetrievalLimit: cfg.Retrieval.Limit,
		CustomPrompt:   cfg.AI.CustomPrompt,
	})

	deps := handler.RouterDeps{
		Documents: handler.NewDocumentHandler(ingestService),
		Search:    handler.NewSearchHandler(ret),
		Chat:      handler.NewChatHandler(chatService),
	}

	extra := []gin.HandlerFunc{
		middleware.CORS(cfg.CORSOrigins),
		gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/api/v1/chat"})),
	}
	if cfg.RateLimit.MaxHits > 0 {
		extra = append(extra, middleware.RateLimit(cfg.RateLimit.MaxHits, time.Duration(cfg.RateLimit.WindowSeconds)*time.Second))
	}
	engine, err := webapi.NewEngine(
		"/api/v1",
		fmt.Sprintf("0.0.0.0:%d", cfg.Port),
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(extra...),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}

	scheduler := schedule.NewCronScheduler()
	if cfg.Ingest.SpoolDir != "" {
		spoolJob := job.NewSpoolIngestJob(ingestService, cfg.Ingest.SpoolDir, cfg.Ingest.ArchiveDir)
		if err := scheduler.AddJob(spoolJob, cfg.Ingest.SweepSpec); err != nil {
			return fmt.Errorf("schedule spool job: %w", err)
		}
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	logutil.GetLogger(ctx).Info("http server listening", zap.String("addr", fmt.Sprintf("0.0.0.0:%d", cfg.Port)))
	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping...")
	return nil
}

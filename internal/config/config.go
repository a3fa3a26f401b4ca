package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xxxsen/common/logger"
)

type Config struct {
	Port        int               `json:"port"`
	LogConfig   logger.LogConfig  `json:"log_config"`
	CORSOrigins []string          `json:"cors_origins"`
	AI          AIConfig          `json:"ai"`
	VectorStore VectorStoreConfig `json:"vector_store"`
	FileStore   FileStoreConfig   `json:"file_store"`
	Chunking    ChunkingConfig    `json:"chunking"`
	Retrieval   RetrievalConfig   `json:"retrieval"`
	Ingest      IngestConfig      `json:"ingest"`
	RateLimit   RateLimitConfig   `json:"rate_limit"`
}

type AIConfig struct {
	Provider       string                 `json:"provider"`
	Model          string                 `json:"model"`
	EmbedModel     string                 `json:"embed_model"`
	EmbedDimension int                    `json:"embed_dimension"`
	Timeout        int                    `json:"timeout"`
	MaxInputChars  int                    `json:"max_input_chars"`
	CustomPrompt   string                 `json:"custom_prompt"`
	CacheSize      int                    `json:"embed_cache_size"`
	CacheTTLHours  int                    `json:"embed_cache_ttl_hours"`
	Data           map[string]interface{} `json:"data"`
	Fallbacks      []AIFallbackConfig     `json:"fallbacks"`
}

type AIFallbackConfig struct {
	Provider string                 `json:"provider"`
	Model    string                 `json:"model"`
	Data     map[string]interface{} `json:"data"`
}

type VectorStoreConfig struct {
	Type string                 `json:"type"`
	Data map[string]interface{} `json:"data"`
}

type FileStoreConfig struct {
	Type string                 `json:"type"`
	Data map[string]interface{} `json:"data"`
}

type ChunkingConfig struct {
	Encoding      string `json:"encoding"`
	MaxTokens     int    `json:"max_tokens"`
	OverlapTokens int    `json:"overlap_tokens"`
}

type RetrievalConfig struct {
	Limit         int     `json:"limit"`
	HighThreshold float32 `json:"high_threshold"`
	LowThreshold  float32 `json:"low_threshold"`
	Overfetch     int     `json:"overfetch"`
	MaxConcepts   int     `json:"max_concepts"`
}

type IngestConfig struct {
	Concurrency int    `json:"concurrency"`
	SpoolDir    string `json:"spool_dir"`
	ArchiveDir  string `json:"archive_dir"`
	SweepSpec   string `json:"sweep_spec"`
}

type RateLimitConfig struct {
	MaxHits       int `json:"max_hits"`
	WindowSeconds int `json:"window_seconds"`
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Port == 0 {
		return nil, fmt.Errorf("port is required")
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.AI.Provider == "" {
		return nil, fmt.Errorf("ai.provider is required")
	}
	if cfg.AI.Model == "" {
		return nil, fmt.Errorf("ai.model is required")
	}
	if cfg.AI.EmbedModel == "" {
		return nil, fmt.Errorf("ai.embed_model is required")
	}
	if cfg.AI.EmbedDimension <= 0 {
		cfg.AI.EmbedDimension = 3072
	}
	if cfg.AI.Timeout <= 0 {
		cfg.AI.Timeout = 60
	}
	if cfg.VectorStore.Type == "" {
		return nil, fmt.Errorf("vector_store.type is required")
	}
	if cfg.Chunking.Encoding == "" {
		cfg.Chunking.Encoding = "cl100k_base"
	}
	if cfg.Ingest.SpoolDir != "" && cfg.Ingest.SweepSpec == "" {
		cfg.Ingest.SweepSpec = "*/5 * * * *"
	}
	return &cfg, nil
}

package indexer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/shelfchat/shelfchat/internal/ai"
	"github.com/shelfchat/shelfchat/internal/model"
	appErr "github.com/shelfchat/shelfchat/internal/pkg/errors"
)

const DefaultConcurrency = 4

type Indexer struct {
	embedder    ai.IEmbedder
	dimension   int
	concurrency int
	now         func() time.Time
}

// New builds an indexer. dimension is the embedding model's fixed output
// size; every produced vector is validated against it. dimension <= 0
// disables the check.
func New(embedder ai.IEmbedder, dimension, concurrency int) *Indexer {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Indexer{
		embedder:    embedder,
		dimension:   dimension,
		concurrency: concurrency,
		now:         time.Now,
	}
}

// BuildRecords embeds every chunk and returns records ready for upsert.
// Embedding calls fan out concurrently; the first failure aborts the whole
// batch so a partial index is never written. Each chunk is embedded with
// its surrounding narrative context so the model can resolve references
// like "it" or "the previous point".
func (ix *Indexer) BuildRecords(ctx context.Context, chunks []model.Chunk, concepts []string) ([]model.IndexRecord, error) {
	if len(chunks) == 0 {
		return nil, nil
	}
	createdAt := ix.now().Unix()
	records := make([]model.IndexRecord, len(chunks))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(ix.concurrency)
	for i, chunk := range chunks {
		group.Go(func() error {
			vector, err := ix.embedder.Embed(groupCtx, embeddingPrompt(chunk), ai.TaskRetrievalDocument)
			if err != nil {
				return fmt.Errorf("%w: chunk %d: %v", appErr.ErrEmbeddingProvider, chunk.Index, err)
			}
			if ix.dimension > 0 && len(vector) != ix.dimension {
				return fmt.Errorf("%w: chunk %d: got %d dimensions, want %d",
					appErr.ErrEmbeddingProvider, chunk.Index, len(vector), ix.dimension)
			}
			records[i] = model.IndexRecord{
				ID:     uuid.NewString(),
				Vector: vector,
				Payload: model.Payload{
					Content:   chunk.Content,
					Title:     chunk.SourceTitle,
					CreatedAt: createdAt,
					Concepts:  concepts,
				},
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	logutil.GetLogger(ctx).Info("chunks embedded",
		zap.Int("records", len(records)),
		zap.String("model", ix.embedder.ModelName()),
	)
	return records, nil
}

// embeddingPrompt wraps the chunk in its position and neighboring context.
func embeddingPrompt(chunk model.Chunk) string {
	prev := chunk.PrevPreview
	if prev == "" {
		prev = "N/A"
	}
	next := chunk.NextPreview
	if next == "" {
		next = "N/A"
	}
	return fmt.Sprintf(`Title: %s
Chunk %d of %d

Previous Context: %s

Content:
%s

Following Context: %s`,
		chunk.SourceTitle, chunk.Index+1, chunk.TotalCount, prev, chunk.Content, next)
}

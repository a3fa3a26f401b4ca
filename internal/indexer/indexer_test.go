package indexer

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shelfchat/shelfchat/internal/model"
	appErr "github.com/shelfchat/shelfchat/internal/pkg/errors"
)

type fakeEmbedder struct {
	mu        sync.Mutex
	prompts   []string
	dimension int
	failOn    string
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, text)
	f.mu.Unlock()
	if f.failOn != "" && text == f.failOn {
		return nil, fmt.Errorf("provider exploded")
	}
	dim := f.dimension
	if dim == 0 {
		dim = 8
	}
	return make([]float32, dim), nil
}

func (f *fakeEmbedder) ModelName() string {
	return "fake-embedder"
}

func makeChunks(n int) []model.Chunk {
	chunks := make([]model.Chunk, n)
	for i := range chunks {
		chunks[i] = model.Chunk{
			Content:     fmt.Sprintf("content %d", i),
			Index:       i,
			TotalCount:  n,
			SourceTitle: "Meditations",
		}
		if i > 0 {
			chunks[i].PrevPreview = fmt.Sprintf("tail of %d", i-1)
		}
		if i < n-1 {
			chunks[i].NextPreview = fmt.Sprintf("head of %d", i+1)
		}
	}
	return chunks
}

func TestBuildRecordsProducesUniqueIDs(t *testing.T) {
	embedder := &fakeEmbedder{dimension: 8}
	ix := New(embedder, 8, 2)

	records, err := ix.BuildRecords(context.Background(), makeChunks(5), nil)
	require.NoError(t, err)
	require.Len(t, records, 5)

	seen := map[string]bool{}
	for i, rec := range records {
		require.NotEmpty(t, rec.ID)
		require.False(t, seen[rec.ID], "duplicate id")
		seen[rec.ID] = true
		require.Len(t, rec.Vector, 8)
		require.Equal(t, fmt.Sprintf("content %d", i), rec.Payload.Content)
		require.Equal(t, "Meditations", rec.Payload.Title)
		require.NotZero(t, rec.Payload.CreatedAt)
	}
}

func TestBuildRecordsEnrichedPrompt(t *testing.T) {
	embedder := &fakeEmbedder{dimension: 8}
	ix := New(embedder, 8, 1)

	chunks := makeChunks(3)
	_, err := ix.BuildRecords(context.Background(), chunks, nil)
	require.NoError(t, err)
	require.Len(t, embedder.prompts, 3)

	// Concurrency 1 keeps submission order deterministic.
	first := embedder.prompts[0]
	require.Contains(t, first, "Title: Meditations")
	require.Contains(t, first, "Chunk 1 of 3")
	require.Contains(t, first, "Previous Context: N/A")
	require.Contains(t, first, "Following Context: head of 1")
	require.Contains(t, first, "content 0")

	middle := embedder.prompts[1]
	require.Contains(t, middle, "Chunk 2 of 3")
	require.Contains(t, middle, "Previous Context: tail of 0")
}

func TestBuildRecordsAttachesConcepts(t *testing.T) {
	embedder := &fakeEmbedder{dimension: 8}
	ix := New(embedder, 8, 2)

	records, err := ix.BuildRecords(context.Background(), makeChunks(2), []string{"stoicism", "ethics"})
	require.NoError(t, err)
	for _, rec := range records {
		require.Equal(t, []string{"stoicism", "ethics"}, rec.Payload.Concepts)
	}
}

func TestBuildRecordsFailsWholeBatch(t *testing.T) {
	chunks := makeChunks(4)
	embedder := &fakeEmbedder{dimension: 8, failOn: embeddingPrompt(chunks[2])}
	ix := New(embedder, 8, 2)

	records, err := ix.BuildRecords(context.Background(), chunks, nil)
	require.ErrorIs(t, err, appErr.ErrEmbeddingProvider)
	require.Nil(t, records)
}

func TestBuildRecordsRejectsWrongDimension(t *testing.T) {
	embedder := &fakeEmbedder{dimension: 4}
	ix := New(embedder, 8, 2)

	_, err := ix.BuildRecords(context.Background(), makeChunks(1), nil)
	require.ErrorIs(t, err, appErr.ErrEmbeddingProvider)
	require.Contains(t, err.Error(), "dimensions")
}

func TestBuildRecordsEmptyInput(t *testing.T) {
	ix := New(&fakeEmbedder{}, 8, 2)
	records, err := ix.BuildRecords(context.Background(), nil, nil)
	require.NoError(t, err)
	require.Nil(t, records)
}

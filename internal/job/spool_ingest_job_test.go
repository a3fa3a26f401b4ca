package job

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shelfchat/shelfchat/internal/chunker"
	"github.com/shelfchat/shelfchat/internal/indexer"
	"github.com/shelfchat/shelfchat/internal/model"
	"github.com/shelfchat/shelfchat/internal/service"
	"github.com/shelfchat/shelfchat/internal/vectorstore"
)

type asciiCodec struct{}

func (asciiCodec) Encode(text string) []int {
	tokens := make([]int, 0, len(text))
	for _, r := range text {
		tokens = append(tokens, int(r))
	}
	return tokens
}

func (asciiCodec) Decode(tokens []int) string {
	runes := make([]rune, len(tokens))
	for i, tok := range tokens {
		runes[i] = rune(tok)
	}
	return string(runes)
}

type stubEmbedder struct{ dim int }

func (s stubEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	return make([]float32, s.dim), nil
}

func (s stubEmbedder) ModelName() string { return "stub" }

type captureStore struct {
	records []model.IndexRecord
}

func (s *captureStore) Init(ctx context.Context, dimension int) error { return nil }

func (s *captureStore) Upsert(ctx context.Context, records []model.IndexRecord) error {
	s.records = append(s.records, records...)
	return nil
}

func (s *captureStore) Search(ctx context.Context, params vectorstore.SearchParams) ([]model.SearchResult, error) {
	return nil, nil
}

func newSpoolFixture(t *testing.T) (*SpoolIngestJob, *captureStore, string, string) {
	t.Helper()
	ck, err := chunker.New(asciiCodec{}, 0, 0)
	require.NoError(t, err)
	store := &captureStore{}
	ingest := service.NewIngestService(ck, indexer.New(stubEmbedder{dim: 4}, 4, 1), store, nil)
	spool := t.TempDir()
	archive := t.TempDir()
	return NewSpoolIngestJob(ingest, spool, archive), store, spool, archive
}

func TestSpoolIngestProcessesAndArchives(t *testing.T) {
	job, store, spool, archive := newSpoolFixture(t)
	require.NoError(t, os.WriteFile(filepath.Join(spool, "walden.txt"), []byte("I went to the woods."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(spool, "notes.md"), []byte("# Notes\n\nSome body."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(spool, "image.png"), []byte{0x89}, 0o644))

	require.NoError(t, job.Run(context.Background()))

	require.Len(t, store.records, 2)
	titles := map[string]bool{}
	for _, rec := range store.records {
		titles[rec.Payload.Title] = true
	}
	require.True(t, titles["walden"])
	require.True(t, titles["notes"])

	require.FileExists(t, filepath.Join(archive, "walden.txt"))
	require.FileExists(t, filepath.Join(archive, "notes.md"))
	require.FileExists(t, filepath.Join(spool, "image.png"))
	require.NoFileExists(t, filepath.Join(spool, "walden.txt"))
}

func TestSpoolIngestMovesFailedFiles(t *testing.T) {
	job, store, spool, archive := newSpoolFixture(t)
	// Whitespace-only content is rejected by the chunker.
	require.NoError(t, os.WriteFile(filepath.Join(spool, "empty.txt"), []byte("   \n\n  "), 0o644))

	require.NoError(t, job.Run(context.Background()))

	require.Empty(t, store.records)
	require.FileExists(t, filepath.Join(archive, "failed", "empty.txt"))
}

func TestSpoolIngestMissingDirIsNoop(t *testing.T) {
	job := NewSpoolIngestJob(nil, "", "")
	require.NoError(t, job.Run(context.Background()))

	job2, _, spool, _ := newSpoolFixture(t)
	require.NoError(t, os.RemoveAll(spool))
	require.NoError(t, job2.Run(context.Background()))
}

package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/shelfchat/shelfchat/internal/chunker"
	"github.com/shelfchat/shelfchat/internal/filestore"
	"github.com/shelfchat/shelfchat/internal/indexer"
	appErr "github.com/shelfchat/shelfchat/internal/pkg/errors"
	"github.com/shelfchat/shelfchat/internal/vectorstore"
)

type IngestRequest struct {
	Title    string
	Text     string
	Concepts []string
	// Raw, when set, is archived to the file store under ArchiveKey so the
	// collection can be rebuilt later. Archiving is best effort.
	Raw        filestore.ReadSeekCloser
	RawSize    int64
	ArchiveKey string
}

type IngestResult struct {
	ChunkCount int
}

// IngestService runs the write path: chunk, embed, upsert. Any failure
// along the way fails the whole document; partial indexes are never left
// behind silently.
type IngestService struct {
	chunker *chunker.Chunker
	indexer *indexer.Indexer
	store   vectorstore.Store
	archive filestore.Store
}

func NewIngestService(ck *chunker.Chunker, ix *indexer.Indexer, store vectorstore.Store, archive filestore.Store) *IngestService {
	return &IngestService{
		chunker: ck,
		indexer: ix,
		store:   store,
		archive: archive,
	}
}

func (s *IngestService) Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: document title is required", appErr.ErrInvalidInput)
	}
	logger := logutil.GetLogger(ctx).With(zap.String("title", title))

	chunks, err := s.chunker.Chunk(ctx, req.Text, title)
	if err != nil {
		return nil, err
	}
	records, err := s.indexer.BuildRecords(ctx, chunks, req.Concepts)
	if err != nil {
		logger.Error("failed to build index records", zap.Error(err))
		return nil, err
	}
	if err := s.store.Upsert(ctx, records); err != nil {
		logger.Error("failed to upsert index records", zap.Error(err))
		return nil, err
	}

	if req.Raw != nil && s.archive != nil {
		if err := s.archive.Save(ctx, req.ArchiveKey, req.Raw, req.RawSize); err != nil {
			logger.Warn("failed to archive raw document", zap.String("key", req.ArchiveKey), zap.Error(err))
		}
	}

	logger.Info("document ingested", zap.Int("chunks", len(records)))
	return &IngestResult{ChunkCount: len(records)}, nil
}

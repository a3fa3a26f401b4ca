package job

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/shelfchat/shelfchat/internal/service"
	"github.com/shelfchat/shelfchat/internal/textextract"
)

// SpoolIngestJob sweeps a spool directory for dropped .txt/.md documents and
// ingests them, so documents can be added by copying files onto the host
// without going through the upload endpoint. Processed files move to the
// archive directory, failed ones to archive/failed for inspection.
type SpoolIngestJob struct {
	ingest     *service.IngestService
	spoolDir   string
	archiveDir string
}

func NewSpoolIngestJob(ingest *service.IngestService, spoolDir, archiveDir string) *SpoolIngestJob {
	return &SpoolIngestJob{
		ingest:     ingest,
		spoolDir:   spoolDir,
		archiveDir: archiveDir,
	}
}

func (j *SpoolIngestJob) Name() string {
	return "spool_ingest"
}

func (j *SpoolIngestJob) Run(ctx context.Context) error {
	if j.ingest == nil || j.spoolDir == "" {
		return nil
	}
	entries, err := os.ReadDir(j.spoolDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	logger := logutil.GetLogger(ctx).With(zap.String("spool_dir", j.spoolDir))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".txt" && ext != ".md" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := j.processFile(ctx, entry.Name(), ext); err != nil {
			logger.Error("spool file failed", zap.String("file", entry.Name()), zap.Error(err))
			j.moveTo(ctx, entry.Name(), filepath.Join(j.archiveDir, "failed"))
			continue
		}
		logger.Info("spool file ingested", zap.String("file", entry.Name()))
		j.moveTo(ctx, entry.Name(), j.archiveDir)
	}
	return nil
}

func (j *SpoolIngestJob) processFile(ctx context.Context, name, ext string) error {
	raw, err := os.ReadFile(filepath.Join(j.spoolDir, name))
	if err != nil {
		return err
	}
	text := string(raw)
	if ext == ".md" {
		text = textextract.MarkdownToText(raw)
	}
	_, err = j.ingest.Ingest(ctx, service.IngestRequest{
		Title: strings.TrimSuffix(name, ext),
		Text:  text,
	})
	return err
}

func (j *SpoolIngestJob) moveTo(ctx context.Context, name, dir string) {
	if dir == "" {
		return
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logutil.GetLogger(ctx).Warn("failed to create archive dir", zap.String("dir", dir), zap.Error(err))
		return
	}
	src := filepath.Join(j.spoolDir, name)
	if err := os.Rename(src, filepath.Join(dir, name)); err != nil {
		logutil.GetLogger(ctx).Warn("failed to move spool file", zap.String("file", name), zap.Error(err))
	}
}

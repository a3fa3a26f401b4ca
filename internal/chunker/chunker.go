package chunker

import (
	"context"
	"fmt"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/shelfchat/shelfchat/internal/model"
	appErr "github.com/shelfchat/shelfchat/internal/pkg/errors"
	"github.com/shelfchat/shelfchat/internal/token"
)

const (
	DefaultMaxTokens     = 512
	DefaultOverlapTokens = 50

	// previewRunes bounds PrevPreview; previewTokens bounds NextPreview.
	previewRunes  = 100
	previewTokens = 100
)

type Chunker struct {
	codec         token.Codec
	maxTokens     int
	overlapTokens int
}

func New(codec token.Codec, maxTokens, overlapTokens int) (*Chunker, error) {
	if codec == nil {
		return nil, fmt.Errorf("chunker requires a token codec")
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	if overlapTokens < 0 {
		overlapTokens = DefaultOverlapTokens
	}
	if overlapTokens >= maxTokens {
		return nil, fmt.Errorf("overlap tokens (%d) must be smaller than max tokens (%d)", overlapTokens, maxTokens)
	}
	return &Chunker{codec: codec, maxTokens: maxTokens, overlapTokens: overlapTokens}, nil
}

// Chunk splits fullText into overlapping, paragraph-trimmed chunks.
//
// A window start cursor advances in steps of maxTokens-overlapTokens; each
// window covers [start-overlap, start+max) of the token sequence, so
// adjacent interior windows share 2*overlapTokens tokens (the first shares
// only overlapTokens, having no left reach-back). The decoded window is
// trimmed to paragraph boundaries before it becomes chunk content.
//
// TotalCount is ceil(N/maxTokens), computed independently of the loop. The
// loop also accounts for overlap, so TotalCount typically undercounts the
// chunks actually produced. Callers must not assume equality.
func (c *Chunker) Chunk(ctx context.Context, fullText, title string) ([]model.Chunk, error) {
	if strings.TrimSpace(fullText) == "" {
		return nil, fmt.Errorf("%w: document text is empty", appErr.ErrInvalidInput)
	}

	tokens := c.codec.Encode(fullText)
	n := len(tokens)
	totalCount := (n + c.maxTokens - 1) / c.maxTokens
	step := c.maxTokens - c.overlapTokens

	var chunks []model.Chunk
	for i := 0; i < n; i += step {
		lo := i - c.overlapTokens
		if lo < 0 {
			lo = 0
		}
		hi := i + c.maxTokens
		if hi > n {
			hi = n
		}

		paragraphs := splitParagraphs(c.codec.Decode(tokens[lo:hi]))
		if len(paragraphs) == 0 {
			// Window decoded to pure whitespace; nothing to index.
			continue
		}

		chunk := model.Chunk{
			Content:       strings.Join(paragraphs, "\n\n"),
			Index:         len(chunks),
			TotalCount:    totalCount,
			StartBoundary: paragraphs[0],
			EndBoundary:   paragraphs[len(paragraphs)-1],
			SourceTitle:   title,
		}
		if len(chunks) > 0 {
			chunk.PrevPreview = tailRunes(chunks[len(chunks)-1].Content, previewRunes)
		}
		if next := i + c.maxTokens; next < n {
			end := next + previewTokens
			if end > n {
				end = n
			}
			chunk.NextPreview = c.codec.Decode(tokens[next:end])
		}
		chunks = append(chunks, chunk)
	}

	logutil.GetLogger(ctx).Debug("document chunked",
		zap.String("title", title),
		zap.Int("tokens", n),
		zap.Int("chunks", len(chunks)),
		zap.Int("total_count", totalCount),
	)
	return chunks, nil
}

func splitParagraphs(text string) []string {
	parts := strings.Split(text, "\n\n")
	kept := parts[:0]
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			continue
		}
		kept = append(kept, p)
	}
	return kept
}

func tailRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}

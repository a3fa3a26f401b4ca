package chunker

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	appErr "github.com/shelfchat/shelfchat/internal/pkg/errors"
)

// runeCodec maps every rune to one token, which makes window boundaries
// directly observable in chunk content.
type runeCodec struct{}

func (runeCodec) Encode(text string) []int {
	runes := []rune(text)
	tokens := make([]int, len(runes))
	for i, r := range runes {
		tokens[i] = int(r)
	}
	return tokens
}

func (runeCodec) Decode(tokens []int) string {
	runes := make([]rune, len(tokens))
	for i, t := range tokens {
		runes[i] = rune(t)
	}
	return string(runes)
}

func repeatText(n int) string {
	return strings.Repeat("a", n)
}

func TestChunkRejectsEmptyInput(t *testing.T) {
	c, err := New(runeCodec{}, 512, 50)
	require.NoError(t, err)

	_, err = c.Chunk(context.Background(), "", "book")
	require.ErrorIs(t, err, appErr.ErrInvalidInput)

	_, err = c.Chunk(context.Background(), "   \n\n  ", "book")
	require.ErrorIs(t, err, appErr.ErrInvalidInput)
}

func TestChunkRejectsOverlapNotSmallerThanMax(t *testing.T) {
	_, err := New(runeCodec{}, 50, 50)
	require.Error(t, err)
}

func TestChunkShortDocumentSingleChunk(t *testing.T) {
	c, err := New(runeCodec{}, 512, 50)
	require.NoError(t, err)

	chunks, err := c.Chunk(context.Background(), repeatText(100), "book")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	require.Equal(t, 0, chunks[0].Index)
	require.Equal(t, 1, chunks[0].TotalCount)
	require.Empty(t, chunks[0].PrevPreview)
	require.Empty(t, chunks[0].NextPreview)
	// No paragraph breaks: boundaries collapse to the whole content.
	require.Equal(t, chunks[0].Content, chunks[0].StartBoundary)
	require.Equal(t, chunks[0].Content, chunks[0].EndBoundary)
}

func TestChunkWindowLayout(t *testing.T) {
	// 1000 tokens, max 512, overlap 50. The cursor advances by 462 and each
	// window reaches back overlap tokens: [0,512), [412,974), [874,1000).
	c, err := New(runeCodec{}, 512, 50)
	require.NoError(t, err)

	chunks, err := c.Chunk(context.Background(), repeatText(1000), "book")
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	require.Len(t, []rune(chunks[0].Content), 512)
	require.Len(t, []rune(chunks[1].Content), 562)
	require.Len(t, []rune(chunks[2].Content), 126)

	// TotalCount is the documented approximation ceil(N/max), not the loop count.
	for _, chunk := range chunks {
		require.Equal(t, 2, chunk.TotalCount)
	}

	for i, chunk := range chunks {
		require.Equal(t, i, chunk.Index)
	}
}

func TestChunkTokenCoverage(t *testing.T) {
	c, err := New(runeCodec{}, 512, 50)
	require.NoError(t, err)

	for _, n := range []int{1, 511, 512, 513, 1000, 2048, 5000} {
		chunks, err := c.Chunk(context.Background(), repeatText(n), "book")
		require.NoError(t, err)
		// Every token index is covered by at least one chunk window.
		step := 512 - 50
		require.GreaterOrEqual(t, len(chunks)*step, n-50, "n=%d", n)
	}
}

func TestChunkPreviews(t *testing.T) {
	c, err := New(runeCodec{}, 512, 50)
	require.NoError(t, err)

	chunks, err := c.Chunk(context.Background(), repeatText(1000), "book")
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	prev := []rune(chunks[0].Content)
	require.Equal(t, string(prev[len(prev)-100:]), chunks[1].PrevPreview)

	// Chunk 0's window ends at 512; the next preview decodes tokens [512,612).
	require.Equal(t, strings.Repeat("a", 100), chunks[0].NextPreview)
	// Chunk 1's window ends at 974; only 26 tokens remain after it.
	require.Equal(t, strings.Repeat("a", 26), chunks[1].NextPreview)
	require.Empty(t, chunks[2].NextPreview)
}

func TestChunkParagraphTrimming(t *testing.T) {
	c, err := New(runeCodec{}, 512, 50)
	require.NoError(t, err)

	text := "first paragraph\n\n\n\n  \n\nsecond paragraph"
	chunks, err := c.Chunk(context.Background(), text, "book")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	require.Equal(t, "first paragraph\n\nsecond paragraph", chunks[0].Content)
	require.Equal(t, "first paragraph", chunks[0].StartBoundary)
	require.Equal(t, "second paragraph", chunks[0].EndBoundary)
}

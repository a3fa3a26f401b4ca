package service

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shelfchat/shelfchat/internal/ai"
	"github.com/shelfchat/shelfchat/internal/model"
	appErr "github.com/shelfchat/shelfchat/internal/pkg/errors"
)

type fakeConversationAI struct {
	streamed   []ai.Message
	fragments  []string
	streamErr  error
	summary    string
	summaryErr error
	summarized []ai.Message
	title      string
	titleErr   error
}

func (f *fakeConversationAI) StreamChat(ctx context.Context, msgs []ai.Message, fn ai.StreamFunc) error {
	f.streamed = msgs
	if f.streamErr != nil {
		return f.streamErr
	}
	for _, frag := range f.fragments {
		if err := fn(frag); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeConversationAI) SummarizeConversation(ctx context.Context, history []ai.Message) (string, error) {
	f.summarized = history
	return f.summary, f.summaryErr
}

func (f *fakeConversationAI) GenerateTitle(ctx context.Context, message string) (string, error) {
	return f.title, f.titleErr
}

type fakeSearcher struct {
	results []model.SearchResult
	err     error
	query   string
	limit   int
}

func (f *fakeSearcher) Search(ctx context.Context, query string, limit int) ([]model.SearchResult, error) {
	f.query = query
	f.limit = limit
	return f.results, f.err
}

func result(id string, score float32, content, title string) model.SearchResult {
	return model.SearchResult{
		ID:    id,
		Score: score,
		Payload: model.Payload{
			Content: content,
			Title:   title,
		},
	}
}

func TestBuildContext(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		require.Equal(t, "", BuildContext(nil))
	})

	t.Run("primary only", func(t *testing.T) {
		got := BuildContext([]model.SearchResult{result("a", 0.52, "  main passage  ", "Walden")})
		require.Equal(t, "Primary Source (Relevance: 0.52):\nmain passage\n\nSource: Walden", got)
	})

	t.Run("supporting capped at two", func(t *testing.T) {
		got := BuildContext([]model.SearchResult{
			result("a", 0.52, "main", "Walden"),
			result("b", 0.48, "second", "Walden"),
			result("c", 0.40, "third", "Walden"),
			result("d", 0.38, "fourth", "Walden"),
		})
		require.Contains(t, got, "Supporting Context:\n[Relevance: 0.48]\nsecond\n\n[Relevance: 0.40]\nthird")
		require.NotContains(t, got, "fourth")
	})

	t.Run("no source line without title", func(t *testing.T) {
		got := BuildContext([]model.SearchResult{result("a", 0.52, "main", "")})
		require.NotContains(t, got, "Source:")
	})
}

func TestAnswerStreamsWithContext(t *testing.T) {
	conv := &fakeConversationAI{fragments: []string{"hello", " world"}}
	search := &fakeSearcher{results: []model.SearchResult{result("a", 0.52, "passage", "Walden")}}
	svc := NewChatService(conv, search, ChatConfig{RetrievalLimit: 3})

	var got strings.Builder
	res, err := svc.Answer(context.Background(), AnswerRequest{Message: "what is simplicity?"}, func(frag string) error {
		got.WriteString(frag)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, "hello world", got.String())
	require.Len(t, res.Sources, 1)
	require.Equal(t, "what is simplicity?", search.query)
	require.Equal(t, 3, search.limit)

	require.GreaterOrEqual(t, len(conv.streamed), 2)
	require.Equal(t, ai.RoleSystem, conv.streamed[0].Role)
	require.Contains(t, conv.streamed[0].Content, "Primary Source (Relevance: 0.52)")
	last := conv.streamed[len(conv.streamed)-1]
	require.Equal(t, ai.RoleUser, last.Role)
	require.Equal(t, "what is simplicity?", last.Content)
}

func TestAnswerEmptyMessage(t *testing.T) {
	svc := NewChatService(&fakeConversationAI{}, &fakeSearcher{}, ChatConfig{})
	_, err := svc.Answer(context.Background(), AnswerRequest{Message: "   "}, func(string) error { return nil })
	require.ErrorIs(t, err, appErr.ErrInvalidInput)
}

func TestAnswerRetrievalFailureIsFatalByDefault(t *testing.T) {
	conv := &fakeConversationAI{fragments: []string{"x"}}
	search := &fakeSearcher{err: fmt.Errorf("%w: store down", appErr.ErrVectorStore)}
	svc := NewChatService(conv, search, ChatConfig{})

	_, err := svc.Answer(context.Background(), AnswerRequest{Message: "q"}, func(string) error { return nil })
	require.Error(t, err)
	require.ErrorIs(t, err, appErr.ErrVectorStore)
	require.Nil(t, conv.streamed)
}

func TestAnswerBestEffortDegradesWithoutContext(t *testing.T) {
	conv := &fakeConversationAI{fragments: []string{"x"}}
	search := &fakeSearcher{err: fmt.Errorf("%w: store down", appErr.ErrVectorStore)}
	svc := NewChatService(conv, search, ChatConfig{})

	res, err := svc.Answer(context.Background(), AnswerRequest{Message: "q", BestEffort: true}, func(string) error { return nil })
	require.NoError(t, err)
	require.Empty(t, res.Sources)
	require.NotContains(t, conv.streamed[0].Content, "Primary Source")
}

func TestAnswerBestEffortDoesNotMaskOtherErrors(t *testing.T) {
	search := &fakeSearcher{err: fmt.Errorf("%w: bad query", appErr.ErrInvalidInput)}
	svc := NewChatService(&fakeConversationAI{}, search, ChatConfig{})

	_, err := svc.Answer(context.Background(), AnswerRequest{Message: "q", BestEffort: true}, func(string) error { return nil })
	require.ErrorIs(t, err, appErr.ErrInvalidInput)
}

func TestAnswerChatFailureWrapsUnavailable(t *testing.T) {
	conv := &fakeConversationAI{streamErr: fmt.Errorf("upstream 503")}
	svc := NewChatService(conv, &fakeSearcher{}, ChatConfig{})

	_, err := svc.Answer(context.Background(), AnswerRequest{Message: "q"}, func(string) error { return nil })
	require.ErrorIs(t, err, appErr.ErrAIUnavailable)
}

func history(n int) []ai.Message {
	msgs := make([]ai.Message, 0, n)
	for i := 0; i < n; i++ {
		msgs = append(msgs, ai.Message{Role: ai.RoleUser, Content: fmt.Sprintf("msg-%d", i)})
	}
	return msgs
}

func TestPrepareHistoryShortConversationUntouched(t *testing.T) {
	conv := &fakeConversationAI{}
	svc := NewChatService(conv, &fakeSearcher{}, ChatConfig{})

	msgs := history(15)
	got := svc.prepareHistory(context.Background(), msgs)
	require.Equal(t, msgs, got)
	require.Nil(t, conv.summarized)
}

func TestPrepareHistorySummarizesOlderMessages(t *testing.T) {
	conv := &fakeConversationAI{summary: "they discussed ponds"}
	svc := NewChatService(conv, &fakeSearcher{}, ChatConfig{})

	got := svc.prepareHistory(context.Background(), history(25))
	require.Len(t, got, maxRecentMessages+1)
	require.Equal(t, ai.RoleSystem, got[0].Role)
	require.Contains(t, got[0].Content, "they discussed ponds")
	require.Equal(t, "msg-15", got[1].Content)
	require.Equal(t, "msg-24", got[len(got)-1].Content)
	require.Len(t, conv.summarized, 15)
}

func TestPrepareHistorySummaryFailureKeepsRecent(t *testing.T) {
	conv := &fakeConversationAI{summaryErr: fmt.Errorf("boom")}
	svc := NewChatService(conv, &fakeSearcher{}, ChatConfig{})

	got := svc.prepareHistory(context.Background(), history(25))
	require.Len(t, got, maxRecentMessages)
	require.Equal(t, "msg-15", got[0].Content)
}

func TestTitleFallsBackToTruncatedMessage(t *testing.T) {
	conv := &fakeConversationAI{titleErr: fmt.Errorf("boom")}
	svc := NewChatService(conv, &fakeSearcher{}, ChatConfig{})

	long := strings.Repeat("a", 60)
	got := svc.Title(context.Background(), long)
	require.Equal(t, strings.Repeat("a", titleFallbackRunes)+"...", got)

	short := svc.Title(context.Background(), " short question ")
	require.Equal(t, "short question", short)
}

func TestTitleUsesGeneratedTitle(t *testing.T) {
	conv := &fakeConversationAI{title: "Thoughts on Simplicity"}
	svc := NewChatService(conv, &fakeSearcher{}, ChatConfig{})
	require.Equal(t, "Thoughts on Simplicity", svc.Title(context.Background(), "whatever"))
}

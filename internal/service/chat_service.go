package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/shelfchat/shelfchat/internal/ai"
	"github.com/shelfchat/shelfchat/internal/model"
	appErr "github.com/shelfchat/shelfchat/internal/pkg/errors"
)

const (
	maxRecentMessages    = 10
	maxTotalMessages     = 20
	maxSupportingSources = 2
	titleFallbackRunes   = 40
)

type searcher interface {
	Search(ctx context.Context, query string, limit int) ([]model.SearchResult, error)
}

type conversationAI interface {
	StreamChat(ctx context.Context, msgs []ai.Message, fn ai.StreamFunc) error
	SummarizeConversation(ctx context.Context, history []ai.Message) (string, error)
	GenerateTitle(ctx context.Context, message string) (string, error)
}

type ChatConfig struct {
	RetrievalLimit int
	CustomPrompt   string
}

type AnswerRequest struct {
	Message    string
	History    []ai.Message
	UserName   string
	BestEffort bool
}

type AnswerResult struct {
	Sources []model.SearchResult
}

// ChatService runs a chat turn: retrieve context for the message, fold it
// into the system prompt together with the (possibly summarized) history,
// and stream the model's answer.
type ChatService struct {
	ai     conversationAI
	search searcher
	cfg    ChatConfig
}

func NewChatService(conv conversationAI, search searcher, cfg ChatConfig) *ChatService {
	if cfg.RetrievalLimit <= 0 {
		cfg.RetrievalLimit = 5
	}
	return &ChatService{ai: conv, search: search, cfg: cfg}
}

func (s *ChatService) Answer(ctx context.Context, req AnswerRequest, fn ai.StreamFunc) (*AnswerResult, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, fmt.Errorf("%w: message is required", appErr.ErrInvalidInput)
	}
	logger := logutil.GetLogger(ctx)

	results, err := s.search.Search(ctx, message, s.cfg.RetrievalLimit)
	if err != nil {
		if !req.BestEffort || !appErr.IsRetrieval(err) {
			return nil, err
		}
		logger.Warn("retrieval failed, answering without context", zap.Error(err))
		results = nil
	}

	history := s.prepareHistory(ctx, req.History)
	msgs := make([]ai.Message, 0, len(history)+2)
	msgs = append(msgs, ai.Message{
		Role:    ai.RoleSystem,
		Content: s.systemPrompt(req.UserName, BuildContext(results)),
	})
	msgs = append(msgs, history...)
	msgs = append(msgs, ai.Message{Role: ai.RoleUser, Content: message})

	if err := s.ai.StreamChat(ctx, msgs, fn); err != nil {
		logger.Error("chat completion failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", appErr.ErrAIUnavailable, err)
	}
	return &AnswerResult{Sources: results}, nil
}

// prepareHistory keeps the last maxRecentMessages verbatim. Once the whole
// conversation grows past maxTotalMessages, the older part is condensed into
// a single system note; if summarization fails the older part is dropped.
func (s *ChatService) prepareHistory(ctx context.Context, history []ai.Message) []ai.Message {
	if len(history) <= maxTotalMessages {
		return history
	}
	logger := logutil.GetLogger(ctx)
	older := history[:len(history)-maxRecentMessages]
	recent := history[len(history)-maxRecentMessages:]

	summary, err := s.ai.SummarizeConversation(ctx, older)
	if err != nil {
		logger.Warn("failed to summarize conversation history", zap.Error(err))
		return recent
	}
	out := make([]ai.Message, 0, len(recent)+1)
	out = append(out, ai.Message{
		Role:    ai.RoleSystem,
		Content: "Previous conversation summary:\n" + summary,
	})
	out = append(out, recent...)
	return out
}

func (s *ChatService) systemPrompt(userName, context string) string {
	var sb strings.Builder
	if s.cfg.CustomPrompt != "" {
		sb.WriteString(s.cfg.CustomPrompt)
	} else {
		sb.WriteString("You are a knowledgeable reading companion helping the user explore their personal document collection.")
	}
	sb.WriteString("\n")
	if userName != "" {
		sb.WriteString(fmt.Sprintf("The user's name is %s.\n", userName))
	}
	sb.WriteString("Ground your answers in the provided context when it is relevant. " +
		"If the context does not cover the question, say so instead of inventing sources.")
	if context != "" {
		sb.WriteString("\n\n")
		sb.WriteString(context)
	}
	return sb.String()
}

// Title generates a short conversation title from the first message, falling
// back to the truncated message itself when the provider is unavailable.
func (s *ChatService) Title(ctx context.Context, message string) string {
	title, err := s.ai.GenerateTitle(ctx, message)
	if err == nil && title != "" {
		return title
	}
	logutil.GetLogger(ctx).Warn("title generation failed, using fallback", zap.Error(err))
	return fallbackTitle(message)
}

func fallbackTitle(message string) string {
	runes := []rune(strings.TrimSpace(message))
	if len(runes) <= titleFallbackRunes {
		return string(runes)
	}
	return string(runes[:titleFallbackRunes]) + "..."
}

// SplitContext assigns ranked results to the primary/supporting roles used
// for prompt assembly. The best match is primary; the next results become
// supporting sources, capped at maxSupportingSources.
func SplitContext(results []model.SearchResult) model.RetrievalContext {
	var rc model.RetrievalContext
	if len(results) == 0 {
		return rc
	}
	rc.Primary = &results[0]
	supporting := results[1:]
	if len(supporting) > maxSupportingSources {
		supporting = supporting[:maxSupportingSources]
	}
	rc.Supporting = supporting
	return rc
}

// BuildContext formats retrieval results into the context block fed to the
// model: the best match in full, up to two supporting excerpts, and the
// primary source attribution.
func BuildContext(results []model.SearchResult) string {
	rc := SplitContext(results)
	if rc.Primary == nil {
		return ""
	}
	sections := []string{
		fmt.Sprintf("Primary Source (Relevance: %.2f):\n%s", rc.Primary.Score, strings.TrimSpace(rc.Primary.Payload.Content)),
	}
	if len(rc.Supporting) > 0 {
		entries := make([]string, 0, len(rc.Supporting))
		for _, res := range rc.Supporting {
			entries = append(entries, fmt.Sprintf("[Relevance: %.2f]\n%s", res.Score, strings.TrimSpace(res.Payload.Content)))
		}
		sections = append(sections, "Supporting Context:\n"+strings.Join(entries, "\n\n"))
	}
	if rc.Primary.Payload.Title != "" {
		sections = append(sections, "Source: "+rc.Primary.Payload.Title)
	}
	return strings.Join(sections, "\n\n")
}

package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Embedding task types passed through to providers that distinguish them.
const (
	TaskRetrievalDocument = "RETRIEVAL_DOCUMENT"
	TaskRetrievalQuery    = "RETRIEVAL_QUERY"
)

type ManagerConfig struct {
	Timeout       int
	MaxInputChars int
}

// Manager owns the prompt templates for every LLM-backed capability and
// routes them to the configured generator/chatter/embedder.
type Manager struct {
	chatter   IChatter
	generator IGenerator
	embedder  IEmbedder
	cfg       ManagerConfig
}

func NewManager(chatter IChatter, generator IGenerator, embedder IEmbedder, cfg ManagerConfig) *Manager {
	return &Manager{
		chatter:   chatter,
		generator: generator,
		embedder:  embedder,
		cfg:       cfg,
	}
}

func (m *Manager) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	if m.embedder == nil {
		return nil, fmt.Errorf("embedder not configured")
	}
	return m.embedder.Embed(ctx, text, taskType)
}

func (m *Manager) EmbeddingModelName() string {
	if m.embedder == nil {
		return ""
	}
	return m.embedder.ModelName()
}

// ExtractConcepts asks the generator for up to max short topical tags and
// parses the JSON array it returns.
func (m *Manager) ExtractConcepts(ctx context.Context, text string, max int) ([]string, error) {
	if m.generator == nil {
		return nil, fmt.Errorf("generator not configured")
	}
	if max <= 0 {
		max = 5
	}
	if max > 20 {
		max = 20
	}
	prompt := fmt.Sprintf(`You are a topic extraction assistant.
From the text below, extract up to %d concise topical concepts.
- Concepts should be short phrases (1-3 words).
- Return a JSON array of strings only. No extra text.
- Use the same language as the content.

TEXT:
%s`, max, m.clampInput(text))
	result, err := m.generateText(ctx, m.generator, prompt)
	if err != nil {
		return nil, err
	}
	return parseConcepts(result, max)
}

// SummarizeConversation condenses older chat history into a short context
// note so long conversations stay inside the model's window.
func (m *Manager) SummarizeConversation(ctx context.Context, history []Message) (string, error) {
	if m.generator == nil {
		return "", fmt.Errorf("generator not configured")
	}
	var sb strings.Builder
	for _, msg := range history {
		sb.WriteString(msg.Role)
		sb.WriteString(": ")
		sb.WriteString(msg.Content)
		sb.WriteString("\n")
	}
	prompt := fmt.Sprintf(`Summarize the key points of this conversation in a concise way.
Focus on:
1. Main topics discussed
2. Important decisions or conclusions
3. Any specific context that would be important for continuing the conversation
Be specific but brief.

CONVERSATION:
%s`, m.clampInput(sb.String()))
	return m.generateText(ctx, m.generator, prompt)
}

// GenerateTitle produces a short conversation title from the first message.
func (m *Manager) GenerateTitle(ctx context.Context, message string) (string, error) {
	if m.generator == nil {
		return "", fmt.Errorf("generator not configured")
	}
	prompt := fmt.Sprintf(`You are a helpful assistant that generates short, descriptive titles.
Generate a concise title (4-6 words) that captures the main topic or question.
Respond with only the title, no quotes or punctuation.

MESSAGE:
%s`, message)
	return m.generateText(ctx, m.generator, prompt)
}

// StreamChat forwards completion fragments for the given message history to
// fn as they arrive. Cancelling ctx aborts the in-flight request.
func (m *Manager) StreamChat(ctx context.Context, msgs []Message, fn StreamFunc) error {
	if m.chatter == nil {
		return fmt.Errorf("chat backend not configured")
	}
	if m.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(m.cfg.Timeout)*time.Second)
		defer cancel()
	}
	return m.chatter.Chat(ctx, msgs, fn)
}

// clampInput bounds prompt payloads so oversized documents cannot blow the
// model's context window.
func (m *Manager) clampInput(text string) string {
	if m.cfg.MaxInputChars <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= m.cfg.MaxInputChars {
		return text
	}
	return string(runes[:m.cfg.MaxInputChars])
}

func (m *Manager) generateText(ctx context.Context, gen IGenerator, prompt string) (string, error) {
	if m.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(m.cfg.Timeout)*time.Second)
		defer cancel()
	}
	resp, err := gen.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp)
	if text == "" {
		return "", fmt.Errorf("empty ai response")
	}
	return text, nil
}

func parseConcepts(output string, max int) ([]string, error) {
	clean := strings.TrimSpace(output)
	clean = strings.TrimPrefix(clean, "```json")
	clean = strings.TrimPrefix(clean, "```")
	clean = strings.TrimSuffix(clean, "```")
	clean = strings.TrimSpace(clean)
	start := strings.Index(clean, "[")
	end := strings.LastIndex(clean, "]")
	if start >= 0 && end > start {
		clean = clean[start : end+1]
	}

	var concepts []string
	if err := json.Unmarshal([]byte(clean), &concepts); err != nil {
		return nil, fmt.Errorf("parse concepts: %w", err)
	}
	uniq := make([]string, 0, len(concepts))
	seen := make(map[string]bool)
	for _, concept := range concepts {
		normalized := strings.TrimSpace(concept)
		if normalized == "" {
			continue
		}
		key := strings.ToLower(normalized)
		if seen[key] {
			continue
		}
		seen[key] = true
		uniq = append(uniq, normalized)
		if len(uniq) >= max {
			break
		}
	}
	if len(uniq) == 0 {
		return nil, fmt.Errorf("no concepts found")
	}
	return uniq, nil
}

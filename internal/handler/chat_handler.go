package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/shelfchat/shelfchat/internal/ai"
	"github.com/shelfchat/shelfchat/internal/pkg/errcode"
	"github.com/shelfchat/shelfchat/internal/pkg/response"
	"github.com/shelfchat/shelfchat/internal/service"
)

type ChatHandler struct {
	chat *service.ChatService
}

func NewChatHandler(chat *service.ChatService) *ChatHandler {
	return &ChatHandler{chat: chat}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Message    string        `json:"message"`
	History    []chatMessage `json:"history"`
	UserName   string        `json:"user_name"`
	BestEffort bool          `json:"best_effort"`
}

type chatSource struct {
	Title string  `json:"title"`
	Score float32 `json:"score"`
}

// Chat streams the answer as server-sent events: one `delta` event per
// completion fragment, a `sources` event after the stream finishes, then
// the [DONE] marker. Errors before the first fragment use the normal JSON
// error envelope.
func (h *ChatHandler) Chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	history := make([]ai.Message, 0, len(req.History))
	for _, msg := range req.History {
		history = append(history, ai.Message{Role: msg.Role, Content: msg.Content})
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	flusher, _ := c.Writer.(http.Flusher)

	started := false
	result, err := h.chat.Answer(c.Request.Context(), service.AnswerRequest{
		Message:    req.Message,
		History:    history,
		UserName:   req.UserName,
		BestEffort: req.BestEffort,
	}, func(fragment string) error {
		started = true
		writeSSE(c, flusher, gin.H{"delta": fragment})
		return nil
	})
	if err != nil {
		if !started {
			c.Writer.Header().Set("Content-Type", "application/json; charset=utf-8")
			handleError(c, err)
			return
		}
		writeSSE(c, flusher, gin.H{"error": "stream interrupted"})
		return
	}

	sources := make([]chatSource, 0, len(result.Sources))
	for _, src := range result.Sources {
		sources = append(sources, chatSource{Title: src.Payload.Title, Score: src.Score})
	}
	writeSSE(c, flusher, gin.H{"sources": sources})
	c.Writer.WriteString("data: [DONE]\n\n")
	if flusher != nil {
		flusher.Flush()
	}
}

type chatTitleRequest struct {
	Message string `json:"message"`
}

func (h *ChatHandler) Title(c *gin.Context) {
	var req chatTitleRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Message == "" {
		response.Error(c, errcode.ErrInvalid, "message is required")
		return
	}
	title := h.chat.Title(c.Request.Context(), req.Message)
	response.Success(c, gin.H{"title": title})
}

func writeSSE(c *gin.Context, flusher http.Flusher, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	c.Writer.WriteString("data: ")
	c.Writer.Write(data)
	c.Writer.WriteString("\n\n")
	if flusher != nil {
		flusher.Flush()
	}
}

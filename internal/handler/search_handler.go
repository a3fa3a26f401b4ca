package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/shelfchat/shelfchat/internal/model"
	"github.com/shelfchat/shelfchat/internal/pkg/errcode"
	"github.com/shelfchat/shelfchat/internal/pkg/response"
)

type retrievalSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]model.SearchResult, error)
}

type SearchHandler struct {
	retriever retrievalSearcher
}

func NewSearchHandler(retriever retrievalSearcher) *SearchHandler {
	return &SearchHandler{retriever: retriever}
}

type searchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

type searchResultItem struct {
	ID       string   `json:"id"`
	Score    float32  `json:"score"`
	Content  string   `json:"content"`
	Title    string   `json:"title"`
	Concepts []string `json:"concepts,omitempty"`
}

func (h *SearchHandler) Search(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	results, err := h.retriever.Search(c.Request.Context(), req.Query, req.Limit)
	if err != nil {
		handleError(c, err)
		return
	}
	items := make([]searchResultItem, 0, len(results))
	for _, res := range results {
		items = append(items, searchResultItem{
			ID:       res.ID,
			Score:    res.Score,
			Content:  res.Payload.Content,
			Title:    res.Payload.Title,
			Concepts: res.Payload.Concepts,
		})
	}
	response.Success(c, gin.H{"results": items})
}

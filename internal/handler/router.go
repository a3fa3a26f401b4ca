package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/shelfchat/shelfchat/internal/pkg/response"
)

type RouterDeps struct {
	Documents *DocumentHandler
	Search    *SearchHandler
	Chat      *ChatHandler
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.GET("/status", func(c *gin.Context) {
		response.Success(c, gin.H{"status": "ok"})
	})
	api.POST("/documents/upload", deps.Documents.Upload)
	api.POST("/search", deps.Search.Search)
	api.POST("/chat", deps.Chat.Chat)
	api.POST("/chat/title", deps.Chat.Title)
}

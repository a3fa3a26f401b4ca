package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/shelfchat/shelfchat/internal/pkg/errcode"
	appErr "github.com/shelfchat/shelfchat/internal/pkg/errors"
	"github.com/shelfchat/shelfchat/internal/pkg/response"
)

func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	logutil.GetLogger(c.Request.Context()).Error("request failed",
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Error(err),
	)
	switch {
	case appErr.IsInvalidInput(err):
		response.Error(c, errcode.ErrInvalid, err.Error())
	case errors.Is(err, appErr.ErrNotFound):
		response.Error(c, errcode.ErrNotFound, "not found")
	case errors.Is(err, appErr.ErrTooMany):
		response.Error(c, errcode.ErrTooMany, "too many requests")
	case errors.Is(err, appErr.ErrEmbeddingProvider):
		response.Error(c, errcode.ErrIndexFailed, "failed to index document")
	case appErr.IsRetrieval(err):
		response.Error(c, errcode.ErrRetrievalFailed, "retrieval failed")
	case errors.Is(err, appErr.ErrAIUnavailable):
		response.Error(c, errcode.ErrAIUnavailable, "ai backend unavailable")
	default:
		response.Error(c, errcode.ErrInternal, "internal error")
	}
}

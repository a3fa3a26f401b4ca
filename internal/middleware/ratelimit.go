package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/shelfchat/shelfchat/internal/pkg/errcode"
	"github.com/shelfchat/shelfchat/internal/pkg/response"
)

type rateWindow struct {
	start time.Time
	count int
}

type rateLimiter struct {
	mu      sync.Mutex
	window  time.Duration
	maxHits int
	windows map[string]*rateWindow
}

// RateLimit allows at most maxHits requests per client IP and route within
// each window. A non-positive maxHits or window disables the limiter.
func RateLimit(maxHits int, window time.Duration) gin.HandlerFunc {
	limiter := &rateLimiter{
		window:  window,
		maxHits: maxHits,
		windows: make(map[string]*rateWindow),
	}
	return limiter.handle
}

func (l *rateLimiter) handle(c *gin.Context) {
	if l.window <= 0 || l.maxHits <= 0 {
		c.Next()
		return
	}
	ip := c.ClientIP()
	path := c.FullPath()
	if path == "" {
		path = c.Request.URL.Path
	}
	key := strings.Join([]string{ip, path}, "|")

	now := time.Now()
	l.mu.Lock()
	win, ok := l.windows[key]
	if !ok || now.Sub(win.start) >= l.window {
		win = &rateWindow{start: now}
		l.windows[key] = win
	}
	win.count++
	over := win.count > l.maxHits
	l.mu.Unlock()

	if over {
		logutil.GetLogger(c.Request.Context()).Warn("rate limit hit",
			zap.String("ip", ip),
			zap.String("path", path),
		)
		response.Error(c, errcode.ErrTooMany, http.StatusText(http.StatusTooManyRequests))
		c.Abort()
		return
	}
	c.Next()
}

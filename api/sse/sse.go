package sse

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nvoropaev/concord/cache"
	"github.com/nvoropaev/concord/config"
	mw "github.com/nvoropaev/concord/middleware"
	"go.uber.org/zap"
)

const (
	announceChannel = "announce"
	keepaliveEvery  = 30 * time.Second
	sessionTimeout  = 2 * time.Second
)

// Handler streams admin announcements over server-sent events. Clients
// that cannot hold a websocket open (dashboards, status pages) use this
// endpoint instead.
type Handler struct {
	pubsub cache.PubSub
	sec    config.SecurityConfig
	c      cache.Cache
	logger *zap.Logger
}

// NewHandler creates a new SSE Handler.
func NewHandler(pubsub cache.PubSub, c cache.Cache, sec config.SecurityConfig, logger *zap.Logger) *Handler {
	return &Handler{pubsub: pubsub, c: c, sec: sec, logger: logger}
}

// authorize validates the token query parameter against the JWT secret
// and the session store. EventSource cannot set headers, so the token
// rides in the URL.
func (h *Handler) authorize(c *gin.Context) bool {
	tokenStr := c.Query("token")
	if tokenStr == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return false
	}
	if _, err := mw.ParseToken(tokenStr, h.sec.JWTSecret); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return false
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), sessionTimeout)
	defer cancel()
	exists, err := h.c.Exists(ctx, "session:"+tokenStr)
	if err != nil || !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "session expired"})
		return false
	}
	return true
}

func (h *Handler) emit(c *gin.Context, event, data string) {
	fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event, data)
	c.Writer.Flush()
}

// ServeSSE handles GET /sse?token=<jwt>. It relays every announcement
// published on the announce channel until the client disconnects.
func (h *Handler) ServeSSE(c *gin.Context) {
	if !h.authorize(c) {
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	subCtx, subCancel := context.WithCancel(c.Request.Context())
	defer subCancel()

	msgCh, unsub, err := h.pubsub.Subscribe(subCtx, announceChannel)
	if err != nil {
		h.logger.Error("sse subscribe failed", zap.Error(err))
		c.Status(http.StatusInternalServerError)
		return
	}
	defer unsub()

	h.emit(c, "connected", "{}")

	keepalive := time.NewTicker(keepaliveEvery)
	defer keepalive.Stop()

	for {
		select {
		case msg, ok := <-msgCh:
			if !ok {
				return
			}
			h.emit(c, "announce", msg.Payload)

		case <-keepalive.C:
			// Comment line keeps proxies from closing the idle stream.
			fmt.Fprint(c.Writer, ": keepalive\n\n")
			c.Writer.Flush()

		case <-c.Request.Context().Done():
			return
		}
	}
}

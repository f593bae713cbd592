package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/nvoropaev/concord/cache"
	"github.com/nvoropaev/concord/config"
	mw "github.com/nvoropaev/concord/middleware"
	"github.com/nvoropaev/concord/model"
	"github.com/nvoropaev/concord/realtime"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Handler is the Gin handler for GET /ws.
type Handler struct {
	db       *gorm.DB
	cache    cache.Cache
	sec      config.SecurityConfig
	sm       *realtime.SessionManager
	bc       *realtime.Broadcaster
	router   *Router
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a new WebSocket Handler.
// sec.AllowedOrigins controls which WebSocket origins are accepted.
// An empty slice permits all origins (development only).
func NewHandler(
	db *gorm.DB,
	c cache.Cache,
	sec config.SecurityConfig,
	sm *realtime.SessionManager,
	bc *realtime.Broadcaster,
	router *Router,
	logger *zap.Logger,
) *Handler {
	h := &Handler{
		db:     db,
		cache:  c,
		sec:    sec,
		sm:     sm,
		bc:     bc,
		router: router,
		logger: logger,
	}
	allowed := sec.AllowedOrigins
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowed) == 0 {
				return true // dev mode: allow all
			}
			origin := r.Header.Get("Origin")
			for _, o := range allowed {
				if o == origin {
					return true
				}
			}
			return false
		},
	}
	return h
}

// ServeWS handles GET /ws?token=<jwt>.
func (h *Handler) ServeWS(c *gin.Context) {
	tokenStr := c.Query("token")
	if tokenStr == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	// Validate JWT.
	claims, err := mw.ParseToken(tokenStr, h.sec.JWTSecret)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	// Validate session cache.
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	exists, err := h.cache.Exists(ctx, "session:"+tokenStr)
	if err != nil || !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "session expired"})
		return
	}

	// Upgrade to WebSocket.
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("ws upgrade failed", zap.Error(err))
		return
	}

	sess := realtime.NewSession(claims.UserID, claims.Username, conn, h.logger)
	h.sm.Register(sess)

	// Presence: mark online and tell everyone.
	_ = h.db.Model(&model.User{}).
		Where("id = ?", sess.UserID).
		Update("status", model.StatusOnline).Error
	_ = h.bc.ToAll(context.Background(), realtime.EventPresence, gin.H{
		"userId": sess.UserID,
		"status": model.StatusOnline,
		"online": true,
	})

	// Read pump (blocks until connection closes).
	h.readPump(sess)
}

// readPump reads messages from the WebSocket connection and dispatches them.
func (h *Handler) readPump(s *realtime.Session) {
	defer func() {
		h.handleDisconnect(s)
	}()

	s.SetReadDeadline()
	s.Conn.SetPongHandler(func(string) error {
		s.SetReadDeadline()
		return nil
	})

	for {
		_, raw, err := s.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseNoStatusReceived) {
				h.logger.Warn("ws unexpected close",
					zap.Int64("user_id", s.UserID),
					zap.Error(err))
			}
			return
		}
		// Reset read deadline on any message (heartbeat or otherwise).
		s.SetReadDeadline()
		h.router.Dispatch(s, raw)
	}
}

// handleDisconnect cleans up the session after the connection closes.
func (h *Handler) handleDisconnect(s *realtime.Session) {
	s.Close()
	h.sm.Unregister(s)
	h.logger.Info("user disconnected", zap.Int64("user_id", s.UserID))

	// The user may have reconnected already (duplicate login displaces the
	// old session); only go offline if no session remains.
	if h.sm.IsOnline(s.UserID) {
		return
	}
	_ = h.db.Model(&model.User{}).
		Where("id = ?", s.UserID).
		Update("status", model.StatusOffline).Error
	_ = h.bc.ToAll(context.Background(), realtime.EventPresence, gin.H{
		"userId": s.UserID,
		"status": model.StatusOffline,
		"online": false,
	})
}

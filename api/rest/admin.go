package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nvoropaev/concord/audit"
	"github.com/nvoropaev/concord/cache"
	mw "github.com/nvoropaev/concord/middleware"
	"github.com/nvoropaev/concord/model"
	"github.com/nvoropaev/concord/moderation"
	"github.com/nvoropaev/concord/realtime"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AnnounceChannel is the pub/sub channel the SSE stream listens on.
const AnnounceChannel = "announce"

// AdminHandler handles admin-only REST endpoints.
// Routes should be protected by Auth + AdminAuth middleware.
type AdminHandler struct {
	db        *gorm.DB
	sanctions *moderation.Registry
	audit     *audit.Service
	sm        *realtime.SessionManager
	bc        *realtime.Broadcaster
	pubsub    cache.PubSub
	logger    *zap.Logger
	logsLimit int
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(
	db *gorm.DB,
	sanctions *moderation.Registry,
	auditSvc *audit.Service,
	sm *realtime.SessionManager,
	bc *realtime.Broadcaster,
	pubsub cache.PubSub,
	logsLimit int,
	logger *zap.Logger,
) *AdminHandler {
	return &AdminHandler{
		db:        db,
		sanctions: sanctions,
		audit:     auditSvc,
		sm:        sm,
		bc:        bc,
		pubsub:    pubsub,
		logger:    logger,
		logsLimit: logsLimit,
	}
}

type sanctionRequest struct {
	UserID   int64  `json:"userId" binding:"required"`
	Reason   string `json:"reason"`
	Duration int    `json:"duration"` // minutes, mute only
}

// Ban handles POST /api/admin/ban.
func (h *AdminHandler) Ban(c *gin.Context) {
	var req sanctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	adminID := mw.GetUserID(c)

	if err := h.sanctions.Ban(c.Request.Context(), req.UserID, adminID, req.Reason); err != nil {
		writeError(c, err)
		return
	}

	_ = h.bc.ToUser(c.Request.Context(), req.UserID, realtime.EventUserBanned, gin.H{
		"reason": req.Reason,
	})
	// A banned user loses the live connection too.
	if s := h.sm.Get(req.UserID); s != nil {
		s.Close()
	}
	h.logger.Info("user banned",
		zap.Int64("user_id", req.UserID),
		zap.Int64("admin_id", adminID))
	c.JSON(http.StatusOK, gin.H{"message": "banned"})
}

// Unban handles POST /api/admin/unban.
func (h *AdminHandler) Unban(c *gin.Context) {
	var req sanctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.sanctions.Unban(c.Request.Context(), req.UserID, mw.GetUserID(c)); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "unbanned"})
}

// Mute handles POST /api/admin/mute.
func (h *AdminHandler) Mute(c *gin.Context) {
	var req sanctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	adminID := mw.GetUserID(c)

	if err := h.sanctions.Mute(c.Request.Context(), req.UserID, adminID, req.Reason, req.Duration); err != nil {
		writeError(c, err)
		return
	}

	_ = h.bc.ToUser(c.Request.Context(), req.UserID, realtime.EventUserMuted, gin.H{
		"reason":   req.Reason,
		"duration": req.Duration,
	})
	c.JSON(http.StatusOK, gin.H{"message": "muted"})
}

// Unmute handles POST /api/admin/unmute.
func (h *AdminHandler) Unmute(c *gin.Context) {
	var req sanctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.sanctions.Unmute(c.Request.Context(), req.UserID, mw.GetUserID(c)); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "unmuted"})
}

// ListBanned handles GET /api/admin/banned.
func (h *AdminHandler) ListBanned(c *gin.Context) {
	banned, err := h.sanctions.ListBanned(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"banned": banned})
}

// ListMuted handles GET /api/admin/muted.
func (h *AdminHandler) ListMuted(c *gin.Context) {
	muted, err := h.sanctions.ListActiveMutes(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"muted": muted})
}

// ListLogs handles GET /api/admin/logs.
func (h *AdminHandler) ListLogs(c *gin.Context) {
	entries, err := h.audit.List(c.Request.Context(), h.logsLimit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": entries})
}

// ListUsers handles GET /api/admin/users: every registered user with their
// live online flag, for the admin panel.
func (h *AdminHandler) ListUsers(c *gin.Context) {
	var users []model.User
	if err := h.db.WithContext(c.Request.Context()).
		Order("username ASC").
		Find(&users).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	type userInfo struct {
		model.User
		Online bool `json:"online"`
	}
	result := make([]userInfo, len(users))
	for i, u := range users {
		result[i] = userInfo{User: u, Online: h.sm.IsOnline(u.ID)}
	}
	c.JSON(http.StatusOK, gin.H{"users": result, "count": len(result)})
}

// Announce handles POST /api/admin/announce: pushes a system announcement to
// every connected socket and to the SSE stream.
func (h *AdminHandler) Announce(c *gin.Context) {
	var req struct {
		Text string `json:"text" binding:"required,max=500"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	_ = h.bc.ToAll(c.Request.Context(), realtime.EventAnnouncement, gin.H{"text": req.Text})
	_ = h.pubsub.Publish(c.Request.Context(), AnnounceChannel, req.Text)
	c.JSON(http.StatusOK, gin.H{"message": "announced"})
}

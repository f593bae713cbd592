package rest

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	mw "github.com/nvoropaev/concord/middleware"
	"github.com/nvoropaev/concord/realtime"
	"github.com/nvoropaev/concord/social"
	"go.uber.org/zap"
)

// SocialHandler handles friends REST endpoints.
type SocialHandler struct {
	social *social.Manager
	sm     *realtime.SessionManager
	bc     *realtime.Broadcaster
	logger *zap.Logger
}

// NewSocialHandler creates a new SocialHandler.
func NewSocialHandler(socialMgr *social.Manager, sm *realtime.SessionManager, bc *realtime.Broadcaster, logger *zap.Logger) *SocialHandler {
	return &SocialHandler{social: socialMgr, sm: sm, bc: bc, logger: logger}
}

// ListFriends handles GET /api/friends.
func (h *SocialHandler) ListFriends(c *gin.Context) {
	userID := mw.GetUserID(c)
	friends, err := h.social.Friends(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}

	type friendInfo struct {
		social.FriendInfo
		Online bool `json:"online"`
	}
	result := make([]friendInfo, len(friends))
	for i, f := range friends {
		result[i] = friendInfo{
			FriendInfo: f,
			Online:     h.sm.IsOnline(f.UserID),
		}
	}
	c.JSON(http.StatusOK, gin.H{"friends": result})
}

// ListPending handles GET /api/friends/pending.
func (h *SocialHandler) ListPending(c *gin.Context) {
	userID := mw.GetUserID(c)
	pending, err := h.social.PendingIncoming(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": pending})
}

// SendRequest handles POST /api/friends/request.
func (h *SocialHandler) SendRequest(c *gin.Context) {
	userID := mw.GetUserID(c)
	var req struct {
		TargetID int64 `json:"targetId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.social.SendRequest(c.Request.Context(), userID, req.TargetID); err != nil {
		writeError(c, err)
		return
	}

	_ = h.bc.ToUser(c.Request.Context(), req.TargetID, realtime.EventFriendRequest, gin.H{
		"userId":   userID,
		"username": mw.GetUsername(c),
	})
	c.JSON(http.StatusCreated, gin.H{"message": "request sent"})
}

// AcceptRequest handles POST /api/friends/accept.
func (h *SocialHandler) AcceptRequest(c *gin.Context) {
	userID := mw.GetUserID(c)
	var req struct {
		UserID int64 `json:"userId" binding:"required"` // the requester
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.social.AcceptRequest(c.Request.Context(), userID, req.UserID); err != nil {
		writeError(c, err)
		return
	}

	_ = h.bc.ToUser(c.Request.Context(), req.UserID, realtime.EventFriendAccepted, gin.H{
		"userId":   userID,
		"username": mw.GetUsername(c),
	})
	c.JSON(http.StatusOK, gin.H{"message": "accepted"})
}

// RejectRequest handles POST /api/friends/reject.
func (h *SocialHandler) RejectRequest(c *gin.Context) {
	userID := mw.GetUserID(c)
	var req struct {
		UserID int64 `json:"userId" binding:"required"` // the requester
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.social.RejectRequest(c.Request.Context(), userID, req.UserID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "rejected"})
}

// RemoveFriend handles DELETE /api/friends/:id.
func (h *SocialHandler) RemoveFriend(c *gin.Context) {
	userID := mw.GetUserID(c)
	friendID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	if err := h.social.RemoveFriend(c.Request.Context(), userID, friendID); err != nil {
		writeError(c, err)
		return
	}

	_ = h.bc.ToUser(c.Request.Context(), friendID, realtime.EventFriendRemoved, gin.H{
		"userId": userID,
	})
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

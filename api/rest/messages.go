package rest

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/nvoropaev/concord/chat"
	mw "github.com/nvoropaev/concord/middleware"
	"github.com/nvoropaev/concord/realtime"
	"go.uber.org/zap"
)

// MessagesHandler handles message lifecycle REST endpoints.
type MessagesHandler struct {
	ledger *chat.Ledger
	bc     *realtime.Broadcaster
	logger *zap.Logger
}

// NewMessagesHandler creates a new MessagesHandler.
func NewMessagesHandler(ledger *chat.Ledger, bc *realtime.Broadcaster, logger *zap.Logger) *MessagesHandler {
	return &MessagesHandler{ledger: ledger, bc: bc, logger: logger}
}

// List handles GET /api/messages?channelId=&limit=.
func (h *MessagesHandler) List(c *gin.Context) {
	channelID, err := strconv.ParseInt(c.Query("channelId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid channelId"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	messages, err := h.ledger.ListByChannel(c.Request.Context(), channelID, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// Create handles POST /api/messages.
func (h *MessagesHandler) Create(c *gin.Context) {
	userID := mw.GetUserID(c)
	var req struct {
		ChannelID int64  `json:"channelId" binding:"required"`
		Content   string `json:"content" binding:"required"`
		ReplyTo   *int64 `json:"replyTo"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	view, err := h.ledger.Create(c.Request.Context(), userID, req.ChannelID, req.Content, req.ReplyTo)
	if err != nil {
		writeError(c, err)
		return
	}

	_ = h.bc.ToChannel(c.Request.Context(), req.ChannelID, realtime.EventNewMessage, view)
	c.JSON(http.StatusCreated, view)
}

// Edit handles PUT /api/messages/:id.
func (h *MessagesHandler) Edit(c *gin.Context) {
	userID := mw.GetUserID(c)
	messageID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	view, err := h.ledger.Edit(c.Request.Context(), messageID, userID, req.Content)
	if err != nil {
		writeError(c, err)
		return
	}

	_ = h.bc.ToChannel(c.Request.Context(), view.ChannelID, realtime.EventMessageEdited, gin.H{
		"messageId":  view.ID,
		"newContent": view.Content,
	})
	c.JSON(http.StatusOK, view)
}

// Delete handles DELETE /api/messages/:id.
func (h *MessagesHandler) Delete(c *gin.Context) {
	userID := mw.GetUserID(c)
	messageID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	if err := h.ledger.Delete(c.Request.Context(), messageID, userID, false); err != nil {
		writeError(c, err)
		return
	}

	view, err := h.ledger.Get(c.Request.Context(), messageID)
	if err == nil {
		_ = h.bc.ToChannel(c.Request.Context(), view.ChannelID, realtime.EventMessageDeleted, gin.H{
			"messageId": messageID,
		})
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

// Pin handles POST /api/messages/:id/pin.
func (h *MessagesHandler) Pin(c *gin.Context) {
	h.setPinned(c, true)
}

// Unpin handles POST /api/messages/:id/unpin.
func (h *MessagesHandler) Unpin(c *gin.Context) {
	h.setPinned(c, false)
}

func (h *MessagesHandler) setPinned(c *gin.Context, pinned bool) {
	messageID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	var view *chat.View
	if pinned {
		view, err = h.ledger.Pin(c.Request.Context(), messageID)
	} else {
		view, err = h.ledger.Unpin(c.Request.Context(), messageID)
	}
	if err != nil {
		writeError(c, err)
		return
	}

	event := realtime.EventMessagePinned
	if !pinned {
		event = realtime.EventMessageUnpinned
	}
	_ = h.bc.ToChannel(c.Request.Context(), view.ChannelID, event, gin.H{
		"channelId": view.ChannelID,
		"messageId": view.ID,
	})
	c.JSON(http.StatusOK, view)
}

// ListPinned handles GET /api/messages/pinned?channelId=.
func (h *MessagesHandler) ListPinned(c *gin.Context) {
	channelID, err := strconv.ParseInt(c.Query("channelId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid channelId"})
		return
	}

	messages, err := h.ledger.ListPinned(c.Request.Context(), channelID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// Search handles GET /api/messages/search?channelId=&q=.
func (h *MessagesHandler) Search(c *gin.Context) {
	channelID, err := strconv.ParseInt(c.Query("channelId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid channelId"})
		return
	}

	messages, err := h.ledger.Search(c.Request.Context(), channelID, c.Query("q"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

package ws

import (
	"context"
	"encoding/json"

	"github.com/nvoropaev/concord/apperr"
	"github.com/nvoropaev/concord/chat"
	"github.com/nvoropaev/concord/realtime"
	"go.uber.org/zap"
)

// ChatHandlers implements the socket side of the message lifecycle.
type ChatHandlers struct {
	ledger *chat.Ledger
	bc     *realtime.Broadcaster
	logger *zap.Logger
}

// RegisterChatHandlers wires the chat socket events into the router.
func RegisterChatHandlers(r *Router, ledger *chat.Ledger, bc *realtime.Broadcaster, logger *zap.Logger) {
	h := &ChatHandlers{ledger: ledger, bc: bc, logger: logger}
	r.On("join-channel", h.JoinChannel)
	r.On("leave-channel", h.LeaveChannel)
	r.On("send-message", h.SendMessage)
	r.On("edit-message", h.EditMessage)
	r.On("delete-message", h.DeleteMessage)
	r.On("pin-message", h.PinMessage)
	r.On("unpin-message", h.UnpinMessage)
	r.On("typing-start", h.TypingStart)
	r.On("typing-stop", h.TypingStop)
}

type channelPayload struct {
	ChannelID int64 `json:"channelId"`
}

// JoinChannel subscribes the session to a channel's event stream.
func (h *ChatHandlers) JoinChannel(ctx context.Context, s *realtime.Session, payload json.RawMessage) error {
	var p channelPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return err
	}
	s.Join(p.ChannelID)
	return nil
}

// LeaveChannel unsubscribes the session from a channel.
func (h *ChatHandlers) LeaveChannel(ctx context.Context, s *realtime.Session, payload json.RawMessage) error {
	var p channelPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return err
	}
	s.Leave(p.ChannelID)
	return nil
}

// SendMessage creates a message and fans it out to the channel. A sanctioned
// sender gets an error-message event on their own socket only; other
// subscribers never see anything.
func (h *ChatHandlers) SendMessage(ctx context.Context, s *realtime.Session, payload json.RawMessage) error {
	var p struct {
		ChannelID int64  `json:"channelId"`
		Content   string `json:"content"`
		ReplyTo   *int64 `json:"replyTo"`
	}
	if err := json.Unmarshal(payload, &p); err != nil {
		return err
	}

	view, err := h.ledger.Create(ctx, s.UserID, p.ChannelID, p.Content, p.ReplyTo)
	if err != nil {
		h.sendError(s, err)
		return nil
	}
	return h.bc.ToChannel(ctx, p.ChannelID, realtime.EventNewMessage, view)
}

// EditMessage edits the sender's own message and fans out the new content.
func (h *ChatHandlers) EditMessage(ctx context.Context, s *realtime.Session, payload json.RawMessage) error {
	var p struct {
		MessageID int64  `json:"messageId"`
		Content   string `json:"content"`
	}
	if err := json.Unmarshal(payload, &p); err != nil {
		return err
	}

	view, err := h.ledger.Edit(ctx, p.MessageID, s.UserID, p.Content)
	if err != nil {
		h.sendError(s, err)
		return nil
	}
	return h.bc.ToChannel(ctx, view.ChannelID, realtime.EventMessageEdited, map[string]interface{}{
		"messageId":  view.ID,
		"newContent": view.Content,
	})
}

// DeleteMessage soft-deletes the sender's own message.
func (h *ChatHandlers) DeleteMessage(ctx context.Context, s *realtime.Session, payload json.RawMessage) error {
	var p struct {
		MessageID int64 `json:"messageId"`
	}
	if err := json.Unmarshal(payload, &p); err != nil {
		return err
	}

	if err := h.ledger.Delete(ctx, p.MessageID, s.UserID, false); err != nil {
		h.sendError(s, err)
		return nil
	}
	view, err := h.ledger.Get(ctx, p.MessageID)
	if err != nil {
		return err
	}
	return h.bc.ToChannel(ctx, view.ChannelID, realtime.EventMessageDeleted, map[string]interface{}{
		"messageId": p.MessageID,
	})
}

// PinMessage pins a message and notifies the channel.
func (h *ChatHandlers) PinMessage(ctx context.Context, s *realtime.Session, payload json.RawMessage) error {
	return h.setPinned(ctx, s, payload, true)
}

// UnpinMessage removes a pin.
func (h *ChatHandlers) UnpinMessage(ctx context.Context, s *realtime.Session, payload json.RawMessage) error {
	return h.setPinned(ctx, s, payload, false)
}

func (h *ChatHandlers) setPinned(ctx context.Context, s *realtime.Session, payload json.RawMessage, pinned bool) error {
	var p struct {
		MessageID int64 `json:"messageId"`
	}
	if err := json.Unmarshal(payload, &p); err != nil {
		return err
	}

	var view *chat.View
	var err error
	if pinned {
		view, err = h.ledger.Pin(ctx, p.MessageID)
	} else {
		view, err = h.ledger.Unpin(ctx, p.MessageID)
	}
	if err != nil {
		h.sendError(s, err)
		return nil
	}

	event := realtime.EventMessagePinned
	if !pinned {
		event = realtime.EventMessageUnpinned
	}
	return h.bc.ToChannel(ctx, view.ChannelID, event, map[string]interface{}{
		"channelId": view.ChannelID,
		"messageId": view.ID,
	})
}

// TypingStart relays a typing indicator to the channel. Ephemeral: nothing
// is persisted and offline subscribers never learn about it.
func (h *ChatHandlers) TypingStart(ctx context.Context, s *realtime.Session, payload json.RawMessage) error {
	return h.relayTyping(ctx, s, payload, realtime.EventUserTyping)
}

// TypingStop relays the end of a typing indicator.
func (h *ChatHandlers) TypingStop(ctx context.Context, s *realtime.Session, payload json.RawMessage) error {
	return h.relayTyping(ctx, s, payload, realtime.EventUserStopTyping)
}

func (h *ChatHandlers) relayTyping(ctx context.Context, s *realtime.Session, payload json.RawMessage, event string) error {
	var p channelPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return err
	}
	return h.bc.ToChannel(ctx, p.ChannelID, event, map[string]interface{}{
		"channelId": p.ChannelID,
		"userId":    s.UserID,
		"username":  s.Username,
	})
}

// sendError pushes an error-message event to the offending session only.
func (h *ChatHandlers) sendError(s *realtime.Session, err error) {
	payload := map[string]interface{}{"error": err.Error()}
	if apperr.CodeOf(err) == apperr.CodeMuted {
		payload["error"] = "muted"
		payload["remaining"] = int64(apperr.RemainingOf(err).Seconds())
	}
	body, marshalErr := json.Marshal(payload)
	if marshalErr != nil {
		return
	}
	s.Send(&realtime.Event{Type: realtime.EventErrorMessage, Payload: body})
}

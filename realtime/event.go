package realtime

import "encoding/json"

// Socket event names pushed to web clients.
const (
	EventNewMessage      = "new-message"
	EventMessageEdited   = "message-edited"
	EventMessageDeleted  = "message-deleted"
	EventMessagePinned   = "message-pinned"
	EventMessageUnpinned = "message-unpinned"
	EventUserTyping      = "user-typing"
	EventUserStopTyping  = "user-stop-typing"
	EventErrorMessage    = "error-message"
	EventFriendRequest   = "friend-request"
	EventFriendAccepted  = "friend-accepted"
	EventFriendRemoved   = "friend-removed"
	EventUserBanned      = "user-banned"
	EventUserMuted       = "user-muted"
	EventPresence        = "presence-changed"
	EventAnnouncement    = "announcement"
)

// Event is the unified socket message envelope. Seq is assigned per channel
// by the broadcaster; within one channel a client never observes seq going
// backwards.
type Event struct {
	Seq     uint64          `json:"seq"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

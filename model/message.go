package model

import "time"

// DeletedPlaceholder replaces the content of a soft-deleted message. The
// literal string is part of the wire format the web client renders.
const DeletedPlaceholder = "[Сообщение удалено]"

// Message is one channel message. Rows are created once and only ever
// flagged afterwards (edited/deleted/pinned), never physically removed.
type Message struct {
	ID        int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	Content   string     `gorm:"type:text;not null" json:"content"`
	UserID    int64      `gorm:"index;not null" json:"user_id"`
	ChannelID int64      `gorm:"index:idx_msg_channel;not null" json:"channel_id"`
	ReplyTo   *int64     `json:"reply_to"`
	Pinned    bool       `gorm:"default:false" json:"pinned"`
	Edited    bool       `gorm:"default:false" json:"edited"`
	Deleted   bool       `gorm:"default:false" json:"deleted"`
	CreatedAt time.Time  `gorm:"index:idx_msg_channel;autoCreateTime:milli" json:"created_at"`
	EditedAt  *time.Time `json:"edited_at"`
}

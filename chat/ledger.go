package chat

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/nvoropaev/concord/apperr"
	"github.com/nvoropaev/concord/model"
	"github.com/nvoropaev/concord/moderation"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Limits are the tunable bounds on ledger reads and writes.
type Limits struct {
	HistoryLimit  int
	SearchLimit   int
	MaxContentLen int
}

// Ledger owns the message lifecycle: create, edit, soft-delete, pin. Rows
// are never physically removed; deletion overwrites content with a
// placeholder and sets a flag, so pins and reply references stay resolvable.
type Ledger struct {
	db        *gorm.DB
	sanctions *moderation.Registry
	logger    *zap.Logger
	limits    Limits
	now       func() time.Time
}

// New creates a Ledger.
func New(db *gorm.DB, sanctions *moderation.Registry, limits Limits, logger *zap.Logger) *Ledger {
	if limits.HistoryLimit <= 0 {
		limits.HistoryLimit = 50
	}
	if limits.SearchLimit <= 0 {
		limits.SearchLimit = 50
	}
	if limits.MaxContentLen <= 0 {
		limits.MaxContentLen = 2000
	}
	return &Ledger{db: db, sanctions: sanctions, logger: logger, limits: limits, now: time.Now}
}

// View is a message row with the author's username resolved, plus a preview
// of the replied-to message when reply_to is set.
type View struct {
	model.Message
	Username        string  `json:"username"`
	Avatar          string  `json:"avatar"`
	ReplyToContent  *string `json:"reply_to_content,omitempty"`
	ReplyToUsername *string `json:"reply_to_username,omitempty"`
}

// Create validates sanctions and the reply reference, then inserts the
// message. A banned author is refused outright; a muted author is refused
// with the remaining mute duration attached to the error.
func (l *Ledger) Create(ctx context.Context, userID, channelID int64, content string, replyTo *int64) (*View, error) {
	banned, err := l.sanctions.IsBanned(ctx, userID)
	if err != nil {
		return nil, err
	}
	if banned {
		return nil, apperr.ErrUserBanned
	}
	mute, err := l.sanctions.ActiveMute(ctx, userID)
	if err != nil {
		return nil, err
	}
	if mute != nil {
		return nil, apperr.Muted(mute.MutedUntil.Sub(l.now()))
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperr.ErrEmptyContent
	}
	if utf8.RuneCountInString(content) > l.limits.MaxContentLen {
		return nil, apperr.InvalidArg("message content too long")
	}

	if replyTo != nil {
		var target model.Message
		err := l.db.WithContext(ctx).
			Where("id = ? AND channel_id = ? AND deleted = ?", *replyTo, channelID, false).
			First(&target).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.ErrBadReply
		}
		if err != nil {
			return nil, apperr.StoreUnavailable(err)
		}
	}

	msg := &model.Message{
		Content:   content,
		UserID:    userID,
		ChannelID: channelID,
		ReplyTo:   replyTo,
	}
	if err := l.db.WithContext(ctx).Create(msg).Error; err != nil {
		return nil, apperr.StoreUnavailable(err)
	}
	return l.Get(ctx, msg.ID)
}

// Get returns one message with usernames resolved.
func (l *Ledger) Get(ctx context.Context, messageID int64) (*View, error) {
	var view View
	err := l.viewQuery(ctx).
		Where("messages.id = ?", messageID).
		Take(&view).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.ErrMessageNotFound
	}
	if err != nil {
		return nil, apperr.StoreUnavailable(err)
	}
	return &view, nil
}

// Edit replaces the content of the caller's own message. The authorship and
// liveness checks ride on the UPDATE's WHERE clause; zero rows affected
// triggers a probe read to tell the cases apart.
func (l *Ledger) Edit(ctx context.Context, messageID, userID int64, content string) (*View, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperr.ErrEmptyContent
	}
	if utf8.RuneCountInString(content) > l.limits.MaxContentLen {
		return nil, apperr.InvalidArg("message content too long")
	}
	now := l.now()
	res := l.db.WithContext(ctx).Model(&model.Message{}).
		Where("id = ? AND user_id = ? AND deleted = ?", messageID, userID, false).
		Updates(map[string]interface{}{
			"content":   content,
			"edited":    true,
			"edited_at": now,
		})
	if res.Error != nil {
		return nil, apperr.StoreUnavailable(res.Error)
	}
	if res.RowsAffected == 0 {
		var existing model.Message
		err := l.db.WithContext(ctx).Where("id = ?", messageID).Take(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.ErrMessageNotFound
		}
		if err != nil {
			return nil, apperr.StoreUnavailable(err)
		}
		if existing.Deleted {
			return nil, apperr.ErrMessageDeleted
		}
		return nil, apperr.ErrNotAuthor
	}
	return l.Get(ctx, messageID)
}

// Delete soft-deletes a message: the row stays, its content becomes the
// placeholder. The author may delete their own messages; asAdmin skips the
// authorship check. Deleting an already deleted message is a no-op.
func (l *Ledger) Delete(ctx context.Context, messageID, userID int64, asAdmin bool) error {
	q := l.db.WithContext(ctx).Model(&model.Message{}).
		Where("id = ? AND deleted = ?", messageID, false)
	if !asAdmin {
		q = q.Where("user_id = ?", userID)
	}
	res := q.Updates(map[string]interface{}{
		"content": model.DeletedPlaceholder,
		"deleted": true,
	})
	if res.Error != nil {
		return apperr.StoreUnavailable(res.Error)
	}
	if res.RowsAffected == 0 {
		var existing model.Message
		err := l.db.WithContext(ctx).Where("id = ?", messageID).Take(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.ErrMessageNotFound
		}
		if err != nil {
			return apperr.StoreUnavailable(err)
		}
		if existing.Deleted {
			return nil
		}
		return apperr.ErrNotAuthor
	}
	return nil
}

// Pin marks a message as pinned. Pinning is channel-staff territory, the
// caller is trusted to have checked that.
func (l *Ledger) Pin(ctx context.Context, messageID int64) (*View, error) {
	return l.setPinned(ctx, messageID, true)
}

// Unpin clears the pinned flag.
func (l *Ledger) Unpin(ctx context.Context, messageID int64) (*View, error) {
	return l.setPinned(ctx, messageID, false)
}

func (l *Ledger) setPinned(ctx context.Context, messageID int64, pinned bool) (*View, error) {
	res := l.db.WithContext(ctx).Model(&model.Message{}).
		Where("id = ?", messageID).
		Update("pinned", pinned)
	if res.Error != nil {
		return nil, apperr.StoreUnavailable(res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, apperr.ErrMessageNotFound
	}
	return l.Get(ctx, messageID)
}

// ListPinned returns the pinned, non-deleted messages of a channel, newest
// first. A pinned message that was later deleted keeps its flag but no
// longer appears here.
func (l *Ledger) ListPinned(ctx context.Context, channelID int64) ([]View, error) {
	var views []View
	err := l.viewQuery(ctx).
		Where("messages.channel_id = ? AND messages.pinned = ? AND messages.deleted = ?",
			channelID, true, false).
		Order("messages.created_at DESC").
		Scan(&views).Error
	if err != nil {
		return nil, apperr.StoreUnavailable(err)
	}
	return views, nil
}

// Search returns non-deleted messages of a channel whose content contains
// query, newest first, capped at the search limit.
func (l *Ledger) Search(ctx context.Context, channelID int64, query string) ([]View, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperr.InvalidArg("search query cannot be empty")
	}
	var views []View
	err := l.viewQuery(ctx).
		Where("messages.channel_id = ? AND messages.deleted = ? AND messages.content LIKE ?",
			channelID, false, "%"+query+"%").
		Order("messages.created_at DESC").
		Limit(l.limits.SearchLimit).
		Scan(&views).Error
	if err != nil {
		return nil, apperr.StoreUnavailable(err)
	}
	return views, nil
}

// ListByChannel returns the most recent limit non-deleted messages of a
// channel in chronological order. The newest page is selected descending and
// then reversed, so clients always render oldest-to-newest.
func (l *Ledger) ListByChannel(ctx context.Context, channelID int64, limit int) ([]View, error) {
	if limit <= 0 || limit > l.limits.HistoryLimit {
		limit = l.limits.HistoryLimit
	}
	var views []View
	err := l.viewQuery(ctx).
		Where("messages.channel_id = ? AND messages.deleted = ?", channelID, false).
		Order("messages.created_at DESC, messages.id DESC").
		Limit(limit).
		Scan(&views).Error
	if err != nil {
		return nil, apperr.StoreUnavailable(err)
	}
	for i, j := 0, len(views)-1; i < j; i, j = i+1, j-1 {
		views[i], views[j] = views[j], views[i]
	}
	return views, nil
}

func (l *Ledger) viewQuery(ctx context.Context) *gorm.DB {
	return l.db.WithContext(ctx).
		Table("messages").
		Select("messages.*, users.username AS username, users.avatar AS avatar, " +
			"replies.content AS reply_to_content, reply_authors.username AS reply_to_username").
		Joins("JOIN users ON messages.user_id = users.id").
		Joins("LEFT JOIN messages replies ON messages.reply_to = replies.id").
		Joins("LEFT JOIN users reply_authors ON replies.user_id = reply_authors.id")
}

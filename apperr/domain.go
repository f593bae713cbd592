package apperr

var (
	ErrSelfRequest     = InvalidArg("cannot send a friend request to yourself")
	ErrRequestNotFound = NotFound("friend request not found")
	ErrMessageNotFound = NotFound("message not found")
	ErrNotAuthor       = Unauthorized("only the author may modify a message")
	ErrMessageDeleted  = InvalidArg("message has been deleted")
	ErrBadReply        = InvalidReference("reply target does not exist in this channel")
	ErrUserBanned      = Banned("user is banned")
	ErrEmptyContent    = InvalidArg("message content cannot be empty")
	ErrUserNotFound    = NotFound("user not found")
)

package apperr

import (
	"errors"
	"fmt"
	"time"
)

// Error is a typed application error carried from the services to the
// request boundary, where Code decides the HTTP status / socket event.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	// Remaining is set only for CodeMuted: time left on the sanction.
	Remaining time.Duration `json:"-"`
	Cause     error         `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Constructors

func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func InvalidArg(msg string) error { return New(CodeInvalidArgument, msg) }

func NotFound(msg string) error { return New(CodeNotFound, msg) }

func Unauthorized(msg string) error { return New(CodeUnauthorized, msg) }

func Banned(msg string) error { return New(CodeBanned, msg) }

// Muted builds a muted error carrying the remaining sanction duration.
func Muted(remaining time.Duration) error {
	return &Error{
		Code:      CodeMuted,
		Message:   "muted",
		Remaining: remaining,
	}
}

func InvalidReference(msg string) error { return New(CodeInvalidReference, msg) }

func StoreUnavailable(cause error) error {
	return Wrap(CodeStoreUnavailable, "store unavailable", cause)
}

// CodeOf extracts the Code from err, or CodeUnknown for untyped errors.
func CodeOf(err error) Code {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeUnknown
}

// RemainingOf returns the remaining mute duration carried by err, if any.
func RemainingOf(err error) time.Duration {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Remaining
	}
	return 0
}

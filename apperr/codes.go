package apperr

type Code string

const (
	CodeUnknown          Code = "UNKNOWN"
	CodeInvalidArgument  Code = "INVALID_ARGUMENT"
	CodeNotFound         Code = "NOT_FOUND"
	CodeConflict         Code = "CONFLICT"
	CodeUnauthorized     Code = "UNAUTHORIZED"
	CodeBanned           Code = "BANNED"
	CodeMuted            Code = "MUTED"
	CodeInvalidReference Code = "INVALID_REFERENCE"
	CodeStoreUnavailable Code = "STORE_UNAVAILABLE"
)

package contract

import "errors"

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrModelInvoke     = errors.New("model invoke failed")
	ErrEmptyReply      = errors.New("model returned neither text nor a tool call")
	ErrValidation      = errors.New("validation failed")
	ErrPathEscape      = errors.New("path escapes the data root")
)

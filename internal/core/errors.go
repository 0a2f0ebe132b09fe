package core

import "errors"

// Error codes for domain errors.
const (
	ErrCodeValidation   = "validation_error"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodePersistence  = "persistence_error"
	ErrCodeUnknownUser  = "unknown_user"
	ErrCodeBadRequest   = "bad_request"
)

var (
	// ErrEmptyMessage is returned when a message has neither content nor attachment.
	ErrEmptyMessage = errors.New("message content or attachment required")
	// ErrSelfMessage is returned when sender and recipient are the same identity.
	ErrSelfMessage = errors.New("cannot message yourself")
	// ErrUnknownRecipient is returned when the recipient identity does not exist.
	ErrUnknownRecipient = errors.New("unknown recipient")
	// ErrNotActive is returned when a session submits events before it is active.
	ErrNotActive = errors.New("session not active")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

// NewError builds a CoreError with the given code.
func NewError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}

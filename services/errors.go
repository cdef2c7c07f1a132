package services

import (
	"errors"
	"fmt"
)

// Error codes surfaced to API callers
const (
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeForbidden          = "FORBIDDEN"
	CodeInvalidInput       = "INVALID_INPUT"
	CodeNotFound           = "NOT_FOUND"
	CodeBackendUnavailable = "BACKEND_UNAVAILABLE"
)

// ChatError is returned by every chat operation. Message is safe to show
// to callers; Err carries the internal cause and is never serialized.
type ChatError struct {
	Code    string
	Message string
	Err     error
}

func (e *ChatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ChatError) Unwrap() error {
	return e.Err
}

// Is matches any ChatError with the same code, so errors.Is(err, ErrForbidden)
// works regardless of message
func (e *ChatError) Is(target error) bool {
	var t *ChatError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is checks
var (
	ErrUnauthorized       = &ChatError{Code: CodeUnauthorized, Message: "unauthorized"}
	ErrForbidden          = &ChatError{Code: CodeForbidden, Message: "forbidden"}
	ErrInvalidInput       = &ChatError{Code: CodeInvalidInput, Message: "invalid input"}
	ErrNotFound           = &ChatError{Code: CodeNotFound, Message: "not found"}
	ErrBackendUnavailable = &ChatError{Code: CodeBackendUnavailable, Message: "backend unavailable"}
)

func invalidInput(format string, args ...interface{}) *ChatError {
	return &ChatError{Code: CodeInvalidInput, Message: fmt.Sprintf(format, args...)}
}

func forbidden(message string) *ChatError {
	return &ChatError{Code: CodeForbidden, Message: message}
}

func notFound(message string) *ChatError {
	return &ChatError{Code: CodeNotFound, Message: message}
}

func backendUnavailable(message string, err error) *ChatError {
	return &ChatError{Code: CodeBackendUnavailable, Message: message, Err: err}
}

// CodeOf returns the ChatError code for err, or CodeBackendUnavailable for
// anything that is not a ChatError
func CodeOf(err error) string {
	var ce *ChatError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return CodeBackendUnavailable
}

package errcode

import (
	"errors"
	"fmt"
)

// Error represents a business error
type Error struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("errcode: %d, msg: %s", e.Code, e.Msg)
}

// New creates a new error with code and message
func New(code int, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

// Wrap wraps an error with additional context
func (e *Error) Wrap(err error) *Error {
	if err == nil {
		return e
	}
	return &Error{
		Code: e.Code,
		Msg:  fmt.Sprintf("%s: %v", e.Msg, err),
	}
}

// Is matches errors by code so wrapped copies compare equal to their base
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// CodeOf returns the code of err, or ErrInternal's code for foreign errors
func CodeOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrInternal.Code
}

// Common error codes
var (
	// Success
	ErrSuccess = New(0, "success")

	// Common errors (1xxx)
	ErrInvalidParam   = New(1001, "invalid parameter")
	ErrInternal       = New(1002, "internal error")
	ErrUnauthorized   = New(1003, "unauthorized")
	ErrNotFound       = New(1005, "not found")
	ErrNotImplemented = New(1008, "not implemented")

	// Auth errors (2xxx)
	ErrTokenInvalid     = New(2001, "token invalid")
	ErrTokenExpired     = New(2002, "token expired")
	ErrTokenMissing     = New(2003, "token missing")
	ErrNotAuthenticated = New(2009, "no authenticated session")
	ErrSessionChanged   = New(2010, "session changed")

	// Room errors (3xxx)
	ErrRoomNotFound = New(3001, "chat room not found")
	ErrLeaveFailed  = New(3002, "leave chat room failed")
	ErrReadFailed   = New(3003, "mark chat room read failed")

	// Sync errors (4xxx)
	ErrFetchFailed      = New(4001, "failed to load chat rooms")
	ErrFetchTimeout     = New(4002, "loading chat rooms timed out")
	ErrMalformedPayload = New(4003, "malformed payload")

	// Connection errors (5xxx)
	ErrNotConnected = New(5001, "not connected")
	ErrConnClosed   = New(5002, "connection closed")
)

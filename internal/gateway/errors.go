package gateway

import "errors"

// Gateway errors
var (
	ErrConnClosed       = errors.New("connection closed")
	ErrWriteChannelFull = errors.New("write channel full")
	ErrNotConnected     = errors.New("not connected")
	ErrNoUser           = errors.New("no session user")
	ErrBadStatus        = errors.New("unexpected stream status")
	ErrPanic            = errors.New("panic error")
)

package connection

import "errors"

var (
	ErrNotFound       = errors.New("connection not found")
	ErrAlreadyExists  = errors.New("connection already exists")
	ErrClosed         = errors.New("connection closed")
	ErrSendBufferFull = errors.New("connection send buffer is full")
)

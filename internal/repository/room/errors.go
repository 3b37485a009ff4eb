package room

import "errors"

var (
	ErrRoomNotFound = errors.New("room not found")
	ErrCodeTaken    = errors.New("room code already taken")
	// ErrConflict means the stored room changed since it was read.
	ErrConflict = errors.New("room was modified concurrently")
)

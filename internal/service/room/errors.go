package room

import "errors"

var (
	// ErrNotBound means the connection is not bound to the room named by the command.
	ErrNotBound           = errors.New("connection is not bound to this room")
	ErrCodeSpaceExhausted = errors.New("failed to generate a unique room code")
)

// errUnchanged aborts a room mutation without writing or broadcasting.
var errUnchanged = errors.New("unchanged")

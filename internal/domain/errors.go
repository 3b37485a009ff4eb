package domain

import "errors"

var (
	ErrRoomNotFound        = errors.New("room not found")
	ErrRoomInactive        = errors.New("room is no longer active")
	ErrRoomFull            = errors.New("room is full")
	ErrAlreadyMember       = errors.New("already a participant in this room")
	ErrNotParticipant      = errors.New("not a participant in this room")
	ErrPermissionDenied    = errors.New("permission denied")
	ErrAnonymousNotAllowed = errors.New("anonymous users are not allowed in this room")
	ErrNoVideo             = errors.New("no video is set")
	ErrInvalidPosition     = errors.New("invalid playback position")
	ErrInvalidDuration     = errors.New("invalid video duration")
	ErrInvalidCapacity     = errors.New("invalid room capacity")
	ErrInvalidVideoURL     = errors.New("invalid video url")
	ErrChatDisabled        = errors.New("chat is disabled in this room")
	ErrMessageNotFound     = errors.New("message not found")
)

package redis

import (
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

type repo struct {
	rc *redis.Client
	// inactiveRoomTTL is how long a deactivated room stays readable.
	inactiveRoomTTL time.Duration
	logger          *slog.Logger
}

func NewRepo(rc *redis.Client, inactiveRoomTTL time.Duration, logger *slog.Logger) *repo {
	return &repo{
		rc:              rc,
		inactiveRoomTTL: inactiveRoomTTL,
		logger:          logger,
	}
}

func (r repo) getRoomKey(roomId string) string {
	return "room:" + roomId
}

func (r repo) getRoomCodeKey(code string) string {
	return "room-code:" + code
}

func (r repo) getUserRoomsKey(userId string) string {
	return "user:" + userId + ":rooms"
}

func (r repo) getUserPresenceKey(userId string) string {
	return "user:" + userId + ":presence"
}

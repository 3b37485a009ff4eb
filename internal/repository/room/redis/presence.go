package redis

import (
	"context"
	"time"

	"github.com/scenesync/server/internal/repository/room"
)

type presenceRecord struct {
	IsOnline bool  `redis:"online"`
	LastSeen int64 `redis:"last_seen"`
}

func (r repo) SetUserOnline(ctx context.Context, userId string, isOnline bool, at time.Time) error {
	r.logger.DebugContext(ctx, "called", "user_id", userId, "is_online", isOnline)

	pipe := r.rc.TxPipeline()
	r.HSetStruct(ctx, pipe, r.getUserPresenceKey(userId), presenceRecord{
		IsOnline: isOnline,
		LastSeen: at.UnixMilli(),
	})

	return r.executePipe(ctx, pipe)
}

// GetUserPresence returns the user's last reported presence. A user never seen is offline with a
// zero LastSeen.
func (r repo) GetUserPresence(ctx context.Context, userId string) (room.Presence, error) {
	var record presenceRecord
	if err := r.rc.HGetAll(ctx, r.getUserPresenceKey(userId)).Scan(&record); err != nil {
		return room.Presence{}, err
	}

	presence := room.Presence{IsOnline: record.IsOnline}
	if record.LastSeen != 0 {
		presence.LastSeen = time.UnixMilli(record.LastSeen)
	}

	return presence, nil
}

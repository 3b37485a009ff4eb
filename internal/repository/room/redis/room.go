package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/scenesync/server/internal/domain"
	"github.com/scenesync/server/internal/repository/room"
)

type roomRecord struct {
	Data      string `redis:"data"`
	Code      string `redis:"code"`
	HostId    string `redis:"host_id"`
	IsActive  bool   `redis:"is_active"`
	Revision  int64  `redis:"revision"`
	UpdatedAt int64  `redis:"updated_at"`
}

func newRoomRecord(r *domain.Room, revision int64) (roomRecord, error) {
	stored := *r
	stored.Revision = revision

	data, err := json.Marshal(&stored)
	if err != nil {
		return roomRecord{}, fmt.Errorf("failed to marshal room: %w", err)
	}

	return roomRecord{
		Data:      string(data),
		Code:      r.Code,
		HostId:    r.HostId,
		IsActive:  r.IsActive,
		Revision:  revision,
		UpdatedAt: r.UpdatedAt.UnixMilli(),
	}, nil
}

func (r repo) indexParticipants(ctx context.Context, pipe redis.Pipeliner, rm *domain.Room) {
	for _, p := range rm.Participants {
		pipe.ZAdd(ctx, r.getUserRoomsKey(p.UserId), redis.Z{
			Score:  float64(p.JoinedAt.UnixMilli()),
			Member: rm.Id,
		})
	}
}

// CreateRoom claims rm.Code and stores rm with revision 1.
func (r repo) CreateRoom(ctx context.Context, rm *domain.Room) error {
	r.logger.DebugContext(ctx, "called", "room_id", rm.Id, "code", rm.Code)

	claimed, err := r.rc.SetNX(ctx, r.getRoomCodeKey(rm.Code), rm.Id, 0).Result()
	if err != nil {
		return err
	}
	if !claimed {
		r.logger.DebugContext(ctx, "returned", "error", room.ErrCodeTaken)
		return room.ErrCodeTaken
	}

	record, err := newRoomRecord(rm, 1)
	if err != nil {
		return err
	}

	pipe := r.rc.TxPipeline()
	r.HSetStruct(ctx, pipe, r.getRoomKey(rm.Id), record)
	r.indexParticipants(ctx, pipe, rm)

	if err := r.executePipe(ctx, pipe); err != nil {
		r.rc.Del(ctx, r.getRoomCodeKey(rm.Code))
		r.logger.DebugContext(ctx, "returned", "error", err)
		return err
	}

	rm.Revision = 1
	return nil
}

func (r repo) GetRoom(ctx context.Context, roomId string) (*domain.Room, error) {
	r.logger.DebugContext(ctx, "called", "room_id", roomId)

	res := r.rc.HGetAll(ctx, r.getRoomKey(roomId))
	fields, err := res.Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		r.logger.DebugContext(ctx, "returned", "error", room.ErrRoomNotFound)
		return nil, room.ErrRoomNotFound
	}

	var record roomRecord
	if err := res.Scan(&record); err != nil {
		return nil, fmt.Errorf("failed to scan room: %w", err)
	}

	var rm domain.Room
	if err := json.Unmarshal([]byte(record.Data), &rm); err != nil {
		return nil, fmt.Errorf("failed to unmarshal room: %w", err)
	}
	rm.Revision = record.Revision

	return &rm, nil
}

func (r repo) GetRoomIdByCode(ctx context.Context, code string) (string, error) {
	r.logger.DebugContext(ctx, "called", "code", code)

	roomId, err := r.rc.Get(ctx, r.getRoomCodeKey(code)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			r.logger.DebugContext(ctx, "returned", "error", room.ErrRoomNotFound)
			return "", room.ErrRoomNotFound
		}
		return "", err
	}

	return roomId, nil
}

// UpdateRoom stores rm if the stored revision still equals rm.Revision, then bumps rm.Revision.
// Deactivated rooms and their code claim expire after the configured retention.
func (r repo) UpdateRoom(ctx context.Context, rm *domain.Room) error {
	r.logger.DebugContext(ctx, "called", "room_id", rm.Id, "revision", rm.Revision)

	roomKey := r.getRoomKey(rm.Id)
	next := rm.Revision + 1

	record, err := newRoomRecord(rm, next)
	if err != nil {
		return err
	}

	err = r.rc.Watch(ctx, func(tx *redis.Tx) error {
		stored, err := tx.HGet(ctx, roomKey, "revision").Int64()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return room.ErrRoomNotFound
			}
			return err
		}
		if stored != rm.Revision {
			return room.ErrConflict
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			r.HSetStruct(ctx, pipe, roomKey, record)
			r.indexParticipants(ctx, pipe, rm)
			if !rm.IsActive && r.inactiveRoomTTL > 0 {
				pipe.Expire(ctx, roomKey, r.inactiveRoomTTL)
				pipe.Expire(ctx, r.getRoomCodeKey(rm.Code), r.inactiveRoomTTL)
			}
			return nil
		})
		return err
	}, roomKey)
	if err != nil {
		if errors.Is(err, redis.TxFailedErr) {
			err = room.ErrConflict
		}
		r.logger.DebugContext(ctx, "returned", "error", err)
		return err
	}

	rm.Revision = next
	return nil
}

// GetUserRoomIds returns the ids of every room the user ever joined, most recent first.
func (r repo) GetUserRoomIds(ctx context.Context, userId string) ([]string, error) {
	r.logger.DebugContext(ctx, "called", "user_id", userId)

	return r.rc.ZRevRange(ctx, r.getUserRoomsKey(userId), 0, -1).Result()
}

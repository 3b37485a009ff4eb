package room

import (
	"context"
	"errors"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"github.com/scenesync/server/internal/domain"
	"github.com/scenesync/server/internal/repository/room"
)

// resolveRoomId accepts a durable id or a share code.
func (s service) resolveRoomId(ctx context.Context, codeOrId string) (string, error) {
	if id, err := uuid.Parse(codeOrId); err == nil {
		return id.String(), nil
	}

	roomId, err := s.roomRepo.GetRoomIdByCode(ctx, strings.ToUpper(strings.TrimSpace(codeOrId)))
	if err != nil {
		if errors.Is(err, room.ErrRoomNotFound) {
			return "", domain.ErrRoomNotFound
		}
		return "", fmt.Errorf("failed to get room id by code: %w", err)
	}

	return roomId, nil
}

func validateRoomId(roomId string) error {
	if err := validation.Validate(roomId, RoomIdRule...); err != nil {
		return fmt.Errorf("failed to validate room id: %w", err)
	}
	return nil
}

func (s service) getRoom(ctx context.Context, roomId string) (*domain.Room, error) {
	rm, err := s.roomRepo.GetRoom(ctx, roomId)
	if err != nil {
		if errors.Is(err, room.ErrRoomNotFound) {
			return nil, domain.ErrRoomNotFound
		}
		return nil, fmt.Errorf("failed to get room: %w", err)
	}

	return rm, nil
}

func (s service) getActiveRoom(ctx context.Context, roomId string) (*domain.Room, error) {
	rm, err := s.getRoom(ctx, roomId)
	if err != nil {
		return nil, err
	}
	if !rm.IsActive {
		return nil, domain.ErrRoomInactive
	}

	return rm, nil
}

// withRoomLock runs fn while holding the room's mutation slot.
func (s service) withRoomLock(roomId string, fn func() error) error {
	unlock := s.locker.Lock(roomId)
	defer unlock()

	return fn()
}

// mutateRoom loads the room under its lock, lets mutate change it and persists the result.
// published runs with the stored room before the lock is released, so events leave in the
// order the room processed them. A failed write publishes nothing.
func (s service) mutateRoom(ctx context.Context, roomId string, mutate func(*domain.Room) error, published func(*domain.Room)) (*domain.Room, error) {
	unlock := s.locker.Lock(roomId)
	defer unlock()

	rm, err := s.getRoom(ctx, roomId)
	if err != nil {
		return nil, err
	}

	if err := mutate(rm); err != nil {
		if errors.Is(err, errUnchanged) {
			return rm, nil
		}
		return nil, err
	}

	if err := s.roomRepo.UpdateRoom(ctx, rm); err != nil {
		return nil, fmt.Errorf("failed to update room: %w", err)
	}

	if published != nil {
		published(rm)
	}

	return rm, nil
}

// checkBound fails unless connId is currently bound to roomId.
func (s service) checkBound(connId, roomId string) error {
	boundRoomId, err := s.connRepo.GetRoomId(connId)
	if err != nil {
		return fmt.Errorf("failed to get conn room id: %w", err)
	}
	if boundRoomId != roomId {
		return ErrNotBound
	}

	return nil
}

func (s service) broadcast(ctx context.Context, roomId string, output *Output, exceptConnIds ...string) {
	if err := s.connRepo.Broadcast(ctx, roomId, output, exceptConnIds...); err != nil {
		s.logger.WarnContext(ctx, "failed to broadcast", "room_id", roomId, "type", output.Type, "error", err)
	}
}

func (s service) send(ctx context.Context, connId string, output *Output) {
	if err := s.connRepo.Send(ctx, connId, output); err != nil {
		s.logger.WarnContext(ctx, "failed to send", "conn_id", connId, "type", output.Type, "error", err)
	}
}

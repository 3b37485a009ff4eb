package room

import (
	"context"
	"fmt"

	"github.com/scenesync/server/internal/domain"
)

type JoinRoomParams struct {
	RoomRef string
	User    domain.Identity
}

type JoinRoomResponse struct {
	Room Room
}

// JoinRoom adds the user to the room's participants and tells the connections already bound to it.
func (s service) JoinRoom(ctx context.Context, params *JoinRoomParams) (JoinRoomResponse, error) {
	s.logger.DebugContext(ctx, "called", "params", params)

	roomId, err := s.resolveRoomId(ctx, params.RoomRef)
	if err != nil {
		return JoinRoomResponse{}, err
	}

	rm, err := s.mutateRoom(ctx, roomId, func(rm *domain.Room) error {
		if !rm.IsActive {
			return domain.ErrRoomInactive
		}
		if params.User.IsAnonymous && !rm.Settings.AllowAnonymous {
			return domain.ErrAnonymousNotAllowed
		}
		return rm.AddParticipant(params.User.User(), s.now())
	}, func(rm *domain.Room) {
		s.broadcast(ctx, rm.Id, &Output{
			Type: EventUserJoined,
			Payload: UserJoinedPayload{
				User:         params.User.User(),
				Participants: activeParticipants(rm),
			},
		})
	})
	if err != nil {
		return JoinRoomResponse{}, fmt.Errorf("failed to join room: %w", err)
	}

	return JoinRoomResponse{Room: newRoom(rm)}, nil
}

type LeaveRoomParams struct {
	RoomRef string
	User    domain.Identity
}

type LeaveRoomResponse struct {
	Room        Room
	NewHostId   string
	Deactivated bool
}

// LeaveRoom marks the user inactive and detaches their connections from the room.
func (s service) LeaveRoom(ctx context.Context, params *LeaveRoomParams) (LeaveRoomResponse, error) {
	s.logger.DebugContext(ctx, "called", "params", params)

	roomId, err := s.resolveRoomId(ctx, params.RoomRef)
	if err != nil {
		return LeaveRoomResponse{}, err
	}

	var result domain.LeaveResult
	rm, err := s.mutateRoom(ctx, roomId, func(rm *domain.Room) error {
		var err error
		result, err = rm.RemoveParticipant(params.User.Id, s.now())
		return err
	}, func(rm *domain.Room) {
		for _, conn := range s.connRepo.GetUserConns(params.User.Id, rm.Id) {
			if _, err := s.connRepo.Unbind(conn.Id); err != nil {
				s.logger.WarnContext(ctx, "failed to unbind conn", "conn_id", conn.Id, "error", err)
			}
		}

		s.broadcast(ctx, rm.Id, &Output{
			Type: EventUserLeft,
			Payload: UserLeftPayload{
				User:         params.User.User(),
				HostId:       rm.HostId,
				NewHostId:    result.NewHostId,
				Participants: activeParticipants(rm),
			},
		})
	})
	if err != nil {
		return LeaveRoomResponse{}, fmt.Errorf("failed to leave room: %w", err)
	}

	if result.Deactivated {
		s.logger.InfoContext(ctx, "room deactivated", "room_id", rm.Id)
	}

	return LeaveRoomResponse{
		Room:        newRoom(rm),
		NewHostId:   result.NewHostId,
		Deactivated: result.Deactivated,
	}, nil
}

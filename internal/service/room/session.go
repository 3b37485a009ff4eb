package room

import (
	"context"
	"errors"
	"fmt"

	"github.com/scenesync/server/internal/domain"
	"github.com/scenesync/server/internal/repository/connection"
)

type ConnectMemberParams struct {
	Conn *connection.Conn
}

// ConnectMember registers an authenticated connection. It is not bound to any room yet.
func (s service) ConnectMember(ctx context.Context, params *ConnectMemberParams) error {
	s.logger.DebugContext(ctx, "called", "conn_id", params.Conn.Id, "user_id", params.Conn.Identity.Id)

	if err := s.connRepo.Add(params.Conn); err != nil {
		return fmt.Errorf("failed to add conn: %w", err)
	}

	if err := s.roomRepo.SetUserOnline(ctx, params.Conn.Identity.Id, true, s.now()); err != nil {
		s.logger.WarnContext(ctx, "failed to mark user online", "error", err)
	}

	return nil
}

type DisconnectMemberParams struct {
	ConnId string
}

// DisconnectMember forgets the connection, tells its room and marks the user offline once
// their last connection is gone.
func (s service) DisconnectMember(ctx context.Context, params *DisconnectMemberParams) error {
	s.logger.DebugContext(ctx, "called", "params", params)

	conn, err := s.connRepo.Get(params.ConnId)
	if err != nil {
		return fmt.Errorf("failed to get conn: %w", err)
	}
	defer conn.Close()

	roomId, err := s.connRepo.GetRoomId(params.ConnId)
	if err != nil {
		return fmt.Errorf("failed to get conn room id: %w", err)
	}

	remove := func() error {
		boundRoomId, err := s.connRepo.Remove(params.ConnId)
		if err != nil {
			return fmt.Errorf("failed to remove conn: %w", err)
		}
		if boundRoomId != "" {
			s.broadcast(ctx, boundRoomId, &Output{
				Type:    EventUserDisconnected,
				Payload: UserDisconnectedPayload{User: conn.Identity.User()},
			})
		}
		return nil
	}

	if roomId != "" {
		err = s.withRoomLock(roomId, remove)
	} else {
		err = remove()
	}
	if err != nil {
		return err
	}

	if len(s.connRepo.GetUserConns(conn.Identity.Id, "")) == 0 {
		if err := s.roomRepo.SetUserOnline(ctx, conn.Identity.Id, false, s.now()); err != nil {
			s.logger.WarnContext(ctx, "failed to mark user offline", "error", err)
		}
	}

	return nil
}

type BindConnParams struct {
	ConnId string
	RoomId string
}

type BindConnResponse struct {
	Room Room
}

// BindConn attaches the connection to a room it participates in and sends it the room
// snapshot. A connection bound elsewhere leaves its previous room first.
func (s service) BindConn(ctx context.Context, params *BindConnParams) (BindConnResponse, error) {
	s.logger.DebugContext(ctx, "called", "params", params)

	if err := validateRoomId(params.RoomId); err != nil {
		return BindConnResponse{}, err
	}

	conn, err := s.connRepo.Get(params.ConnId)
	if err != nil {
		return BindConnResponse{}, fmt.Errorf("failed to get conn: %w", err)
	}

	prevRoomId, err := s.connRepo.GetRoomId(params.ConnId)
	if err != nil {
		return BindConnResponse{}, fmt.Errorf("failed to get conn room id: %w", err)
	}
	if prevRoomId != "" && prevRoomId != params.RoomId {
		if err := s.unbindConn(ctx, conn, prevRoomId); err != nil && !errors.Is(err, ErrNotBound) {
			return BindConnResponse{}, fmt.Errorf("failed to leave previous room: %w", err)
		}
	}

	var view Room
	err = s.withRoomLock(params.RoomId, func() error {
		rm, err := s.getActiveRoom(ctx, params.RoomId)
		if err != nil {
			return err
		}

		if !rm.IsActiveParticipant(conn.Identity.Id) {
			if rm.IsFull() {
				return domain.ErrRoomFull
			}
			return domain.ErrNotParticipant
		}

		prev, err := s.connRepo.Bind(params.ConnId, params.RoomId)
		if err != nil {
			return fmt.Errorf("failed to bind conn: %w", err)
		}

		view = newRoom(rm)
		s.send(ctx, params.ConnId, &Output{
			Type:    EventRoomJoined,
			Payload: RoomJoinedPayload{Room: view},
		})
		if rm.CurrentVideo != nil {
			s.send(ctx, params.ConnId, &Output{
				Type: EventVideoStateSync,
				Payload: VideoStateSyncPayload{
					Video:     rm.CurrentVideo,
					Timestamp: s.now(),
				},
			})
		}

		if prev != params.RoomId {
			s.broadcast(ctx, params.RoomId, &Output{
				Type: EventUserJoined,
				Payload: UserJoinedPayload{
					User:         conn.Identity.User(),
					Participants: activeParticipants(rm),
				},
			}, params.ConnId)
		}

		return nil
	})
	if err != nil {
		return BindConnResponse{}, fmt.Errorf("failed to bind conn to room: %w", err)
	}

	return BindConnResponse{Room: view}, nil
}

type UnbindConnParams struct {
	ConnId string
	RoomId string
}

// UnbindConn detaches the connection from the named room without touching membership.
func (s service) UnbindConn(ctx context.Context, params *UnbindConnParams) error {
	s.logger.DebugContext(ctx, "called", "params", params)

	if err := validateRoomId(params.RoomId); err != nil {
		return err
	}

	conn, err := s.connRepo.Get(params.ConnId)
	if err != nil {
		return fmt.Errorf("failed to get conn: %w", err)
	}

	if err := s.unbindConn(ctx, conn, params.RoomId); err != nil {
		return fmt.Errorf("failed to unbind conn: %w", err)
	}

	return nil
}

func (s service) unbindConn(ctx context.Context, conn *connection.Conn, roomId string) error {
	return s.withRoomLock(roomId, func() error {
		if err := s.checkBound(conn.Id, roomId); err != nil {
			return err
		}

		if _, err := s.connRepo.Unbind(conn.Id); err != nil {
			return fmt.Errorf("failed to unbind conn: %w", err)
		}

		var hostId string
		if rm, err := s.getRoom(ctx, roomId); err == nil {
			hostId = rm.HostId
		}

		s.broadcast(ctx, roomId, &Output{
			Type: EventUserLeft,
			Payload: UserLeftPayload{
				User:   conn.Identity.User(),
				HostId: hostId,
			},
		})

		return nil
	})
}

package room

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"github.com/scenesync/server/internal/domain"
	"github.com/scenesync/server/internal/repository/room"
)

const maxCodeAttempts = 10

type CreateRoomParams struct {
	Owner       domain.Identity
	Name        string
	Description string
	Settings    domain.SettingsPatch
}

type CreateRoomResponse struct {
	Room Room
}

func (s service) CreateRoom(ctx context.Context, params *CreateRoomParams) (CreateRoomResponse, error) {
	s.logger.DebugContext(ctx, "called", "params", params)

	params.Name = strings.TrimSpace(params.Name)
	params.Description = strings.TrimSpace(params.Description)
	if err := validation.ValidateStructWithContext(ctx, params,
		validation.Field(&params.Name, RoomNameRule...),
		validation.Field(&params.Description, RoomDescriptionRule...),
	); err != nil {
		return CreateRoomResponse{}, fmt.Errorf("failed to validate params: %w", err)
	}

	settings := domain.DefaultSettings()
	settings.MaxParticipants = s.defaultCapacity
	settings = settings.Apply(params.Settings)
	if err := s.validateCapacity(settings.MaxParticipants); err != nil {
		return CreateRoomResponse{}, err
	}

	now := s.now()
	for range maxCodeAttempts {
		code := s.generator.GenerateRandomString(domain.RoomCodeLength)
		rm := domain.NewRoom(uuid.NewString(), code, params.Name, params.Description, params.Owner.User(), settings, now)

		if err := s.roomRepo.CreateRoom(ctx, rm); err != nil {
			if errors.Is(err, room.ErrCodeTaken) {
				s.logger.InfoContext(ctx, "room code collision", "code", code)
				continue
			}
			return CreateRoomResponse{}, fmt.Errorf("failed to create room: %w", err)
		}

		return CreateRoomResponse{Room: newRoom(rm)}, nil
	}

	return CreateRoomResponse{}, ErrCodeSpaceExhausted
}

func (s service) validateCapacity(capacity int) error {
	if capacity < 1 || capacity > s.membersLimit {
		return fmt.Errorf("%w: must be between 1 and %d", domain.ErrInvalidCapacity, s.membersLimit)
	}
	return nil
}

// FindRoom returns an active room by code or id. Inactive rooms are reported as not found.
func (s service) FindRoom(ctx context.Context, codeOrId string) (Room, error) {
	rm, err := s.findRoom(ctx, codeOrId)
	if err != nil {
		return Room{}, err
	}
	if !rm.IsActive {
		return Room{}, domain.ErrRoomNotFound
	}

	return newRoom(rm), nil
}

// RoomDetails is FindRoom with the presence of every participant. Presence is best-effort:
// a participant whose presence cannot be read is returned without it.
func (s service) RoomDetails(ctx context.Context, codeOrId string) (Room, error) {
	rm, err := s.FindRoom(ctx, codeOrId)
	if err != nil {
		return Room{}, err
	}

	for i := range rm.Participants {
		p := &rm.Participants[i]
		presence, err := s.roomRepo.GetUserPresence(ctx, p.Id)
		if err != nil {
			s.logger.WarnContext(ctx, "failed to get user presence", "user_id", p.Id, "error", err)
			continue
		}

		isOnline := presence.IsOnline
		p.IsOnline = &isOnline
		if !presence.LastSeen.IsZero() {
			lastSeen := presence.LastSeen
			p.LastSeen = &lastSeen
		}
	}

	return rm, nil
}

// FindAnyRoom is FindRoom including deactivated rooms.
func (s service) FindAnyRoom(ctx context.Context, codeOrId string) (Room, error) {
	rm, err := s.findRoom(ctx, codeOrId)
	if err != nil {
		return Room{}, err
	}

	return newRoom(rm), nil
}

func (s service) findRoom(ctx context.Context, codeOrId string) (*domain.Room, error) {
	s.logger.DebugContext(ctx, "called", "code_or_id", codeOrId)

	if err := validation.Validate(codeOrId, RoomRefRule...); err != nil {
		return nil, fmt.Errorf("failed to validate room ref: %w", err)
	}

	roomId, err := s.resolveRoomId(ctx, codeOrId)
	if err != nil {
		return nil, err
	}

	return s.getRoom(ctx, roomId)
}

// ListUserRooms returns the active rooms the user hosts or participates in, latest activity first.
func (s service) ListUserRooms(ctx context.Context, userId string) ([]Room, error) {
	s.logger.DebugContext(ctx, "called", "user_id", userId)

	roomIds, err := s.roomRepo.GetUserRoomIds(ctx, userId)
	if err != nil {
		return nil, fmt.Errorf("failed to get user room ids: %w", err)
	}

	rooms := make([]*domain.Room, 0, len(roomIds))
	for _, roomId := range roomIds {
		rm, err := s.getRoom(ctx, roomId)
		if err != nil {
			if errors.Is(err, domain.ErrRoomNotFound) {
				continue
			}
			return nil, err
		}
		if rm.IsActive && (rm.IsHost(userId) || rm.IsActiveParticipant(userId)) {
			rooms = append(rooms, rm)
		}
	}

	sort.SliceStable(rooms, func(i, j int) bool {
		return rooms[i].UpdatedAt.After(rooms[j].UpdatedAt)
	})

	views := make([]Room, 0, len(rooms))
	for _, rm := range rooms {
		views = append(views, newRoom(rm))
	}

	return views, nil
}

type UpdateSettingsParams struct {
	RoomRef  string
	SenderId string
	Patch    domain.SettingsPatch
}

type UpdateSettingsResponse struct {
	Room Room
}

func (s service) UpdateSettings(ctx context.Context, params *UpdateSettingsParams) (UpdateSettingsResponse, error) {
	s.logger.DebugContext(ctx, "called", "params", params)

	if params.Patch.MaxParticipants != nil {
		if err := s.validateCapacity(*params.Patch.MaxParticipants); err != nil {
			return UpdateSettingsResponse{}, err
		}
	}

	roomId, err := s.resolveRoomId(ctx, params.RoomRef)
	if err != nil {
		return UpdateSettingsResponse{}, err
	}

	rm, err := s.mutateRoom(ctx, roomId, func(rm *domain.Room) error {
		if !rm.IsActive {
			return domain.ErrRoomInactive
		}
		if !rm.IsHost(params.SenderId) {
			return domain.ErrPermissionDenied
		}
		return rm.UpdateSettings(params.Patch, s.now())
	}, func(rm *domain.Room) {
		s.broadcast(ctx, rm.Id, &Output{
			Type: EventRoomSettingsUpdated,
			Payload: RoomSettingsUpdatedPayload{
				Settings: rm.Settings,
				HostId:   rm.HostId,
			},
		})
	})
	if err != nil {
		return UpdateSettingsResponse{}, fmt.Errorf("failed to update settings: %w", err)
	}

	return UpdateSettingsResponse{Room: newRoom(rm)}, nil
}

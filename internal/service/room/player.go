package room

import (
	"context"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/scenesync/server/internal/domain"
)

type PlaybackParams struct {
	ConnId      string
	Sender      domain.Identity
	RoomId      string
	CurrentTime float64
}

func (s service) PlayVideo(ctx context.Context, params *PlaybackParams) error {
	s.logger.DebugContext(ctx, "called", "params", params)

	return s.playback(ctx, params, EventVideoPlay, (*domain.Room).Play)
}

func (s service) PauseVideo(ctx context.Context, params *PlaybackParams) error {
	s.logger.DebugContext(ctx, "called", "params", params)

	return s.playback(ctx, params, EventVideoPause, (*domain.Room).Pause)
}

func (s service) SeekVideo(ctx context.Context, params *PlaybackParams) error {
	s.logger.DebugContext(ctx, "called", "params", params)

	return s.playback(ctx, params, EventVideoSeek, (*domain.Room).Seek)
}

func (s service) playback(ctx context.Context, params *PlaybackParams, event string, transition func(*domain.Room, float64, time.Time) error) error {
	if err := validateRoomId(params.RoomId); err != nil {
		return err
	}
	if err := validation.Validate(params.CurrentTime, PositionRule...); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidPosition, err)
	}

	_, err := s.mutateRoom(ctx, params.RoomId, func(rm *domain.Room) error {
		if err := s.checkBound(params.ConnId, rm.Id); err != nil {
			return err
		}
		if err := s.checkControl(rm, params.Sender.Id); err != nil {
			return err
		}
		return transition(rm, params.CurrentTime, s.now())
	}, func(rm *domain.Room) {
		v := rm.CurrentVideo
		s.broadcast(ctx, rm.Id, &Output{
			Type: event,
			Payload: PlaybackPayload{
				CurrentTime:   v.CurrentTime,
				IsPlaying:     v.IsPlaying,
				ActorId:       params.Sender.Id,
				ActorUsername: params.Sender.Username,
				Version:       v.Version,
				Timestamp:     v.LastUpdated,
			},
		})
	})
	if err != nil {
		return fmt.Errorf("failed to apply %s: %w", event, err)
	}

	return nil
}

// checkControl allows any active participant to drive playback unless the room restricts it to the host.
func (s service) checkControl(rm *domain.Room, userId string) error {
	if !rm.IsActive {
		return domain.ErrRoomInactive
	}
	if !rm.IsActiveParticipant(userId) {
		return domain.ErrNotParticipant
	}
	if rm.Settings.HostOnlyControl && !rm.IsHost(userId) {
		return domain.ErrPermissionDenied
	}
	return nil
}

type ReportDurationParams struct {
	ConnId   string
	Sender   domain.Identity
	RoomId   string
	Duration float64
}

// ReportDuration stores the first duration reported for the current video and resyncs the room.
func (s service) ReportDuration(ctx context.Context, params *ReportDurationParams) error {
	s.logger.DebugContext(ctx, "called", "params", params)

	if err := validateRoomId(params.RoomId); err != nil {
		return err
	}
	if err := validation.Validate(params.Duration, DurationRule...); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidDuration, err)
	}

	_, err := s.mutateRoom(ctx, params.RoomId, func(rm *domain.Room) error {
		if err := s.checkBound(params.ConnId, rm.Id); err != nil {
			return err
		}
		if !rm.IsActive {
			return domain.ErrRoomInactive
		}
		if !rm.IsActiveParticipant(params.Sender.Id) {
			return domain.ErrNotParticipant
		}

		changed, err := rm.ReportDuration(params.Duration, s.now())
		if err != nil {
			return err
		}
		if !changed {
			return errUnchanged
		}
		return nil
	}, func(rm *domain.Room) {
		s.broadcast(ctx, rm.Id, &Output{
			Type: EventVideoStateSync,
			Payload: VideoStateSyncPayload{
				Video:     rm.CurrentVideo,
				Timestamp: s.now(),
			},
		})
	})
	if err != nil {
		return fmt.Errorf("failed to report duration: %w", err)
	}

	return nil
}

type SyncVideoStateParams struct {
	ConnId string
	RoomId string
}

// SyncVideoState sends the current video state to the requesting connection only.
func (s service) SyncVideoState(ctx context.Context, params *SyncVideoStateParams) error {
	s.logger.DebugContext(ctx, "called", "params", params)

	if err := validateRoomId(params.RoomId); err != nil {
		return err
	}

	return s.withRoomLock(params.RoomId, func() error {
		if err := s.checkBound(params.ConnId, params.RoomId); err != nil {
			return err
		}

		rm, err := s.getActiveRoom(ctx, params.RoomId)
		if err != nil {
			return err
		}

		s.send(ctx, params.ConnId, &Output{
			Type: EventVideoStateSync,
			Payload: VideoStateSyncPayload{
				Video:     rm.CurrentVideo,
				Timestamp: s.now(),
			},
		})

		return nil
	})
}

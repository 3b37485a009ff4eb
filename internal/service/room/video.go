package room

import (
	"context"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/scenesync/server/internal/domain"
)

type SetVideoParams struct {
	// ConnId is set for realtime requests, which must come from a connection bound to the room.
	ConnId  string
	RoomRef string
	Sender  domain.User
	Video   domain.VideoDescriptor
}

type SetVideoResponse struct {
	Video *domain.VideoState
}

// SetVideo replaces the room's video. Only the host may change it.
func (s service) SetVideo(ctx context.Context, params *SetVideoParams) (SetVideoResponse, error) {
	s.logger.DebugContext(ctx, "called", "params", params)

	if err := validation.ValidateStructWithContext(ctx, &params.Video,
		validation.Field(&params.Video.Url, VideoUrlRule...),
		validation.Field(&params.Video.Title, VideoTitleRule...),
	); err != nil {
		return SetVideoResponse{}, fmt.Errorf("failed to validate video: %w", err)
	}

	video, err := normalizeVideo(params.Video)
	if err != nil {
		return SetVideoResponse{}, err
	}

	roomId, err := s.AuthorizeVideoChange(ctx, params.RoomRef, params.Sender.Id)
	if err != nil {
		return SetVideoResponse{}, err
	}

	if video.Type == domain.SourceYouTube && video.Title == "" {
		video.Title = s.lookupTitle(ctx, video.ExternalId)
	}

	var state *domain.VideoState
	_, err = s.mutateRoom(ctx, roomId, func(rm *domain.Room) error {
		if params.ConnId != "" {
			if err := s.checkBound(params.ConnId, rm.Id); err != nil {
				return err
			}
		}
		if !rm.IsActive {
			return domain.ErrRoomInactive
		}
		if !rm.IsHost(params.Sender.Id) {
			return domain.ErrPermissionDenied
		}
		state = rm.SetVideo(video, params.Sender.Id, s.now())
		return nil
	}, func(rm *domain.Room) {
		s.broadcast(ctx, rm.Id, &Output{
			Type: EventVideoChanged,
			Payload: VideoChangedPayload{
				Video:     rm.CurrentVideo,
				ChangedBy: params.Sender,
				Timestamp: rm.UpdatedAt,
			},
		})
	})
	if err != nil {
		return SetVideoResponse{}, fmt.Errorf("failed to set video: %w", err)
	}

	return SetVideoResponse{Video: state}, nil
}

// AuthorizeVideoChange resolves the room and checks userId may set its video.
// Uploads call it before storing anything.
func (s service) AuthorizeVideoChange(ctx context.Context, roomRef, userId string) (string, error) {
	roomId, err := s.resolveRoomId(ctx, roomRef)
	if err != nil {
		return "", err
	}

	rm, err := s.getActiveRoom(ctx, roomId)
	if err != nil {
		return "", err
	}
	if !rm.IsHost(userId) {
		return "", domain.ErrPermissionDenied
	}

	return rm.Id, nil
}

func normalizeVideo(d domain.VideoDescriptor) (domain.VideoDescriptor, error) {
	if d.Duration != nil && *d.Duration <= 0 {
		return domain.VideoDescriptor{}, domain.ErrInvalidDuration
	}

	switch d.Type {
	case "", domain.SourceYouTube, domain.SourceDirect:
		parsed, err := domain.ParseVideoURL(d.Url)
		if err != nil {
			return domain.VideoDescriptor{}, err
		}
		if d.Type == domain.SourceYouTube && parsed.Type != domain.SourceYouTube {
			return domain.VideoDescriptor{}, domain.ErrInvalidVideoURL
		}
		parsed.Title = strings.TrimSpace(d.Title)
		parsed.Duration = d.Duration
		return parsed, nil
	case domain.SourceUpload:
		if !strings.HasPrefix(d.Url, "/") {
			return domain.VideoDescriptor{}, domain.ErrInvalidVideoURL
		}
		d.Title = strings.TrimSpace(d.Title)
		return d, nil
	default:
		return domain.VideoDescriptor{}, domain.ErrInvalidVideoURL
	}
}

// lookupTitle asks the metadata provider for a YouTube title. Failures fall back to the default title.
func (s service) lookupTitle(ctx context.Context, videoId string) string {
	if s.metadata == nil {
		return ""
	}

	ctx, cancel := context.WithTimeout(ctx, s.metadataTimeout)
	defer cancel()

	data, err := s.metadata.Get(ctx, videoId)
	if err != nil {
		s.logger.InfoContext(ctx, "failed to get video metadata", "video_id", videoId, "error", err)
		return ""
	}

	return data.Title
}

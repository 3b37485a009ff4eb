package room

import (
	"time"

	"github.com/scenesync/server/internal/domain"
)

const (
	EventRoomJoined          = "room-joined"
	EventUserJoined          = "user-joined"
	EventUserLeft            = "user-left"
	EventUserDisconnected    = "user-disconnected"
	EventVideoPlay           = "video-play"
	EventVideoPause          = "video-pause"
	EventVideoSeek           = "video-seek"
	EventVideoChanged        = "video-changed"
	EventVideoStateSync      = "video-state-sync"
	EventNewMessage          = "new-message"
	EventMessageDeleted      = "message-deleted"
	EventUserTyping          = "user-typing"
	EventRoomSettingsUpdated = "room-settings-updated"
)

type Output struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type Participant struct {
	Id       string    `json:"id"`
	Username string    `json:"username"`
	JoinedAt time.Time `json:"joinedAt"`
	IsActive bool      `json:"isActive"`
	IsHost   bool      `json:"isHost"`
	// IsOnline and LastSeen are only filled in by RoomDetails.
	IsOnline *bool      `json:"isOnline,omitempty"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}

type Room struct {
	Id           string             `json:"id"`
	Code         string             `json:"code"`
	Name         string             `json:"name"`
	Description  string             `json:"description"`
	HostId       string             `json:"hostId"`
	Participants []Participant      `json:"participants"`
	ActiveCount  int                `json:"activeCount"`
	Settings     domain.Settings    `json:"settings"`
	CurrentVideo *domain.VideoState `json:"currentVideo"`
	Status       string             `json:"status"`
	IsActive     bool               `json:"isActive"`
	CreatedAt    time.Time          `json:"createdAt"`
	UpdatedAt    time.Time          `json:"updatedAt"`
}

func newRoom(rm *domain.Room) Room {
	participants := make([]Participant, 0, len(rm.Participants))
	for _, p := range rm.Participants {
		participants = append(participants, Participant{
			Id:       p.UserId,
			Username: p.Username,
			JoinedAt: p.JoinedAt,
			IsActive: p.IsActive,
			IsHost:   p.UserId == rm.HostId,
		})
	}

	return Room{
		Id:           rm.Id,
		Code:         rm.Code,
		Name:         rm.Name,
		Description:  rm.Description,
		HostId:       rm.HostId,
		Participants: participants,
		ActiveCount:  rm.ActiveCount(),
		Settings:     rm.Settings,
		CurrentVideo: rm.CurrentVideo,
		Status:       string(rm.Status()),
		IsActive:     rm.IsActive,
		CreatedAt:    rm.CreatedAt,
		UpdatedAt:    rm.UpdatedAt,
	}
}

func activeParticipants(rm *domain.Room) []Participant {
	view := newRoom(rm)
	active := make([]Participant, 0, len(view.Participants))
	for _, p := range view.Participants {
		if p.IsActive {
			active = append(active, p)
		}
	}
	return active
}

type RoomJoinedPayload struct {
	Room Room `json:"room"`
}

type UserJoinedPayload struct {
	User         domain.User   `json:"user"`
	Participants []Participant `json:"participants"`
}

type UserLeftPayload struct {
	User   domain.User `json:"user"`
	HostId string      `json:"hostId"`
	// NewHostId is set when the leaving user was the host.
	NewHostId    string        `json:"newHostId,omitempty"`
	Participants []Participant `json:"participants,omitempty"`
}

type UserDisconnectedPayload struct {
	User domain.User `json:"user"`
}

type PlaybackPayload struct {
	CurrentTime   float64   `json:"currentTime"`
	IsPlaying     bool      `json:"isPlaying"`
	ActorId       string    `json:"actorId"`
	ActorUsername string    `json:"actorUsername"`
	Version       int64     `json:"version"`
	Timestamp     time.Time `json:"timestamp"`
}

type VideoChangedPayload struct {
	Video     *domain.VideoState `json:"video"`
	ChangedBy domain.User        `json:"changedBy"`
	Timestamp time.Time          `json:"timestamp"`
}

type VideoStateSyncPayload struct {
	Video     *domain.VideoState `json:"video"`
	Timestamp time.Time          `json:"timestamp"`
}

type UserTypingPayload struct {
	User     domain.User `json:"user"`
	IsTyping bool        `json:"isTyping"`
}

type RoomSettingsUpdatedPayload struct {
	Settings domain.Settings `json:"settings"`
	HostId   string          `json:"hostId"`
}

type MessageDeletedPayload struct {
	MessageId string `json:"messageId"`
}

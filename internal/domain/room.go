package domain

import (
	"slices"
	"time"
)

const (
	DefaultMaxParticipants = 10
	RoomCodeLength         = 6
)

type User struct {
	Id       string `json:"id"`
	Username string `json:"username"`
}

type Settings struct {
	HostOnlyControl bool `json:"hostOnlyControl"`
	AllowAnonymous  bool `json:"allowAnonymous"`
	ChatEnabled     bool `json:"chatEnabled"`
	MaxParticipants int  `json:"maxParticipants"`
}

func DefaultSettings() Settings {
	return Settings{
		HostOnlyControl: true,
		AllowAnonymous:  false,
		ChatEnabled:     true,
		MaxParticipants: DefaultMaxParticipants,
	}
}

// SettingsPatch is a partial settings update; nil fields are left unchanged.
type SettingsPatch struct {
	HostOnlyControl *bool `json:"hostOnlyControl,omitempty"`
	AllowAnonymous  *bool `json:"allowAnonymous,omitempty"`
	ChatEnabled     *bool `json:"chatEnabled,omitempty"`
	MaxParticipants *int  `json:"maxParticipants,omitempty"`
}

func (s Settings) Apply(p SettingsPatch) Settings {
	if p.HostOnlyControl != nil {
		s.HostOnlyControl = *p.HostOnlyControl
	}
	if p.AllowAnonymous != nil {
		s.AllowAnonymous = *p.AllowAnonymous
	}
	if p.ChatEnabled != nil {
		s.ChatEnabled = *p.ChatEnabled
	}
	if p.MaxParticipants != nil {
		s.MaxParticipants = *p.MaxParticipants
	}
	return s
}

// Participant records are never deleted; leaving only clears IsActive.
type Participant struct {
	UserId   string    `json:"userId"`
	Username string    `json:"username"`
	JoinedAt time.Time `json:"joinedAt"`
	IsActive bool      `json:"isActive"`
}

type Room struct {
	Id           string        `json:"id"`
	Code         string        `json:"code"`
	Name         string        `json:"name"`
	Description  string        `json:"description"`
	HostId       string        `json:"hostId"`
	Participants []Participant `json:"participants"`
	Settings     Settings      `json:"settings"`
	CurrentVideo *VideoState   `json:"currentVideo"`
	IsActive     bool          `json:"isActive"`
	// VideoVersion increases with every write of CurrentVideo.
	VideoVersion int64 `json:"videoVersion"`
	// Revision increases with every persisted mutation and guards concurrent writers.
	Revision  int64     `json:"revision"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func NewRoom(id, code, name, description string, host User, settings Settings, now time.Time) *Room {
	return &Room{
		Id:          id,
		Code:        code,
		Name:        name,
		Description: description,
		HostId:      host.Id,
		Participants: []Participant{{
			UserId:   host.Id,
			Username: host.Username,
			JoinedAt: now,
			IsActive: true,
		}},
		Settings:  settings,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (r *Room) participantIndex(userId string) int {
	return slices.IndexFunc(r.Participants, func(p Participant) bool {
		return p.UserId == userId
	})
}

func (r *Room) Participant(userId string) (Participant, bool) {
	i := r.participantIndex(userId)
	if i < 0 {
		return Participant{}, false
	}
	return r.Participants[i], true
}

func (r *Room) IsActiveParticipant(userId string) bool {
	p, ok := r.Participant(userId)
	return ok && p.IsActive
}

func (r *Room) IsHost(userId string) bool {
	return r.HostId == userId
}

func (r *Room) ActiveParticipants() []Participant {
	active := make([]Participant, 0, len(r.Participants))
	for _, p := range r.Participants {
		if p.IsActive {
			active = append(active, p)
		}
	}
	return active
}

func (r *Room) ActiveCount() int {
	var n int
	for _, p := range r.Participants {
		if p.IsActive {
			n++
		}
	}
	return n
}

func (r *Room) IsFull() bool {
	return r.ActiveCount() >= r.Settings.MaxParticipants
}

// AddParticipant appends user or reactivates their earlier record.
func (r *Room) AddParticipant(user User, now time.Time) error {
	if !r.IsActive {
		return ErrRoomInactive
	}

	i := r.participantIndex(user.Id)
	if i >= 0 && r.Participants[i].IsActive {
		return ErrAlreadyMember
	}

	if r.IsFull() {
		return ErrRoomFull
	}

	if i >= 0 {
		r.Participants[i].IsActive = true
		r.Participants[i].JoinedAt = now
		r.Participants[i].Username = user.Username
	} else {
		r.Participants = append(r.Participants, Participant{
			UserId:   user.Id,
			Username: user.Username,
			JoinedAt: now,
			IsActive: true,
		})
	}
	r.UpdatedAt = now

	return nil
}

type LeaveResult struct {
	// NewHostId is set when the host left and the role moved to another participant.
	NewHostId   string
	Deactivated bool
}

// RemoveParticipant marks userId inactive, moving the host role or deactivating the room as needed.
func (r *Room) RemoveParticipant(userId string, now time.Time) (LeaveResult, error) {
	if !r.IsActive {
		return LeaveResult{}, ErrRoomInactive
	}

	i := r.participantIndex(userId)
	if i < 0 || !r.Participants[i].IsActive {
		return LeaveResult{}, ErrNotParticipant
	}

	r.Participants[i].IsActive = false
	r.UpdatedAt = now

	var result LeaveResult
	if next, ok := r.earliestActive(); !ok {
		r.IsActive = false
		result.Deactivated = true
	} else if r.HostId == userId {
		r.HostId = next.UserId
		result.NewHostId = next.UserId
	}

	return result, nil
}

func (r *Room) earliestActive() (Participant, bool) {
	var (
		best  Participant
		found bool
	)
	for _, p := range r.Participants {
		if !p.IsActive {
			continue
		}
		if !found || p.JoinedAt.Before(best.JoinedAt) {
			best = p
			found = true
		}
	}
	return best, found
}

// UpdateSettings applies patch unless it would drop capacity below the active participant count.
func (r *Room) UpdateSettings(patch SettingsPatch, now time.Time) error {
	next := r.Settings.Apply(patch)
	if next.MaxParticipants < 1 || next.MaxParticipants < r.ActiveCount() {
		return ErrInvalidCapacity
	}

	r.Settings = next
	r.UpdatedAt = now

	return nil
}

// Identity is a verified user as reported by the identity collaborator.
type Identity struct {
	Id          string `json:"id"`
	Username    string `json:"username"`
	Email       string `json:"email,omitempty"`
	IsAnonymous bool   `json:"isAnonymous,omitempty"`
}

func (i Identity) User() User {
	return User{Id: i.Id, Username: i.Username}
}

package domain

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC)

func newTestRoom(capacity int) *Room {
	settings := DefaultSettings()
	settings.MaxParticipants = capacity
	return NewRoom("room-1", "ABC123", "Movie Night", "", User{Id: "host", Username: "Host"}, settings, t0)
}

func TestNewRoomSeedsHost(t *testing.T) {
	r := newTestRoom(10)

	assert.True(t, r.IsActive)
	assert.Equal(t, "host", r.HostId)
	require.Len(t, r.Participants, 1)
	assert.True(t, r.IsActiveParticipant("host"))
	assert.Equal(t, StatusIdle, r.Status())
}

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings()

	assert.True(t, s.HostOnlyControl)
	assert.False(t, s.AllowAnonymous)
	assert.True(t, s.ChatEnabled)
	assert.Equal(t, 10, s.MaxParticipants)
}

func TestAddParticipantCapacity(t *testing.T) {
	r := newTestRoom(3)

	require.NoError(t, r.AddParticipant(User{Id: "u1"}, t0.Add(time.Minute)))
	require.NoError(t, r.AddParticipant(User{Id: "u2"}, t0.Add(2*time.Minute)))

	err := r.AddParticipant(User{Id: "u3"}, t0.Add(3*time.Minute))
	assert.ErrorIs(t, err, ErrRoomFull)
	assert.Equal(t, 3, r.ActiveCount())
	assert.Len(t, r.Participants, 3, "rejected join must not change membership")
}

func TestAddParticipantAlreadyMember(t *testing.T) {
	r := newTestRoom(10)

	require.NoError(t, r.AddParticipant(User{Id: "u1"}, t0))
	assert.ErrorIs(t, r.AddParticipant(User{Id: "u1"}, t0), ErrAlreadyMember)
	assert.ErrorIs(t, r.AddParticipant(User{Id: "host"}, t0), ErrAlreadyMember)
}

func TestAddParticipantReactivates(t *testing.T) {
	r := newTestRoom(10)

	require.NoError(t, r.AddParticipant(User{Id: "u1", Username: "old"}, t0))
	_, err := r.RemoveParticipant("u1", t0.Add(time.Minute))
	require.NoError(t, err)

	rejoinedAt := t0.Add(2 * time.Minute)
	require.NoError(t, r.AddParticipant(User{Id: "u1", Username: "new"}, rejoinedAt))

	assert.Len(t, r.Participants, 2, "rejoin must reuse the record")
	p, ok := r.Participant("u1")
	require.True(t, ok)
	assert.True(t, p.IsActive)
	assert.Equal(t, rejoinedAt, p.JoinedAt)
	assert.Equal(t, "new", p.Username)
}

func TestCapacityNeverExceeded(t *testing.T) {
	r := newTestRoom(5)

	for i := range 20 {
		_ = r.AddParticipant(User{Id: fmt.Sprintf("u%d", i)}, t0.Add(time.Duration(i)*time.Second))
		if i%3 == 0 {
			_, _ = r.RemoveParticipant(fmt.Sprintf("u%d", i-1), t0)
		}
		assert.LessOrEqual(t, r.ActiveCount(), r.Settings.MaxParticipants)
	}
}

func TestRemoveParticipantReassignsHost(t *testing.T) {
	r := newTestRoom(10)
	require.NoError(t, r.AddParticipant(User{Id: "late"}, t0.Add(2*time.Minute)))
	require.NoError(t, r.AddParticipant(User{Id: "early"}, t0.Add(time.Minute)))

	res, err := r.RemoveParticipant("host", t0.Add(3*time.Minute))
	require.NoError(t, err)

	assert.Equal(t, "early", res.NewHostId)
	assert.False(t, res.Deactivated)
	assert.Equal(t, "early", r.HostId)
	assert.True(t, r.IsActive)
	assert.True(t, r.IsActiveParticipant(r.HostId), "host must be an active participant")
}

func TestRemoveNonHostKeepsHost(t *testing.T) {
	r := newTestRoom(10)
	require.NoError(t, r.AddParticipant(User{Id: "u1"}, t0.Add(time.Minute)))

	res, err := r.RemoveParticipant("u1", t0.Add(2*time.Minute))
	require.NoError(t, err)

	assert.Empty(t, res.NewHostId)
	assert.Equal(t, "host", r.HostId)
}

func TestRemoveLastParticipantDeactivates(t *testing.T) {
	r := newTestRoom(10)

	res, err := r.RemoveParticipant("host", t0.Add(time.Minute))
	require.NoError(t, err)

	assert.True(t, res.Deactivated)
	assert.False(t, r.IsActive)
	assert.Len(t, r.Participants, 1, "records persist after deactivation")

	assert.ErrorIs(t, r.AddParticipant(User{Id: "u1"}, t0), ErrRoomInactive)
	_, err = r.RemoveParticipant("host", t0)
	assert.ErrorIs(t, err, ErrRoomInactive)
}

func TestRemoveParticipantTwice(t *testing.T) {
	r := newTestRoom(10)
	require.NoError(t, r.AddParticipant(User{Id: "u1"}, t0))

	_, err := r.RemoveParticipant("u1", t0)
	require.NoError(t, err)

	_, err = r.RemoveParticipant("u1", t0)
	assert.ErrorIs(t, err, ErrNotParticipant)

	_, err = r.RemoveParticipant("stranger", t0)
	assert.ErrorIs(t, err, ErrNotParticipant)
}

func TestUpdateSettingsPartial(t *testing.T) {
	r := newTestRoom(10)
	chat := false
	capacity := 4

	require.NoError(t, r.UpdateSettings(SettingsPatch{ChatEnabled: &chat, MaxParticipants: &capacity}, t0))

	assert.False(t, r.Settings.ChatEnabled)
	assert.Equal(t, 4, r.Settings.MaxParticipants)
	assert.True(t, r.Settings.HostOnlyControl, "unspecified fields stay unchanged")
	assert.False(t, r.Settings.AllowAnonymous)
}

func TestUpdateSettingsCapacityBelowActive(t *testing.T) {
	r := newTestRoom(10)
	require.NoError(t, r.AddParticipant(User{Id: "u1"}, t0))
	require.NoError(t, r.AddParticipant(User{Id: "u2"}, t0))

	capacity := 2
	assert.ErrorIs(t, r.UpdateSettings(SettingsPatch{MaxParticipants: &capacity}, t0), ErrInvalidCapacity)
	assert.Equal(t, 10, r.Settings.MaxParticipants)
}

package inmemory

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/scenesync/server/internal/domain"
	"github.com/scenesync/server/internal/repository/connection"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newConn(id, userId string) *connection.Conn {
	return connection.NewConn(id, nil, domain.Identity{Id: userId, Username: userId})
}

func drain(t *testing.T, c *connection.Conn) []map[string]any {
	t.Helper()

	var out []map[string]any
	for {
		select {
		case data := <-c.Queue():
			var v map[string]any
			require.NoError(t, json.Unmarshal(data, &v))
			out = append(out, v)
		default:
			return out
		}
	}
}

func TestAddGetRemove(t *testing.T) {
	r := NewRepo(slog.Default())
	c := newConn("c1", "u1")

	require.NoError(t, r.Add(c))
	assert.ErrorIs(t, r.Add(c), connection.ErrAlreadyExists)

	got, err := r.Get("c1")
	require.NoError(t, err)
	assert.Same(t, c, got)

	_, err = r.Bind("c1", "room-1")
	require.NoError(t, err)

	roomId, err := r.Remove("c1")
	require.NoError(t, err)
	assert.Equal(t, "room-1", roomId)
	assert.Empty(t, r.GetRoomConns("room-1"))

	_, err = r.Get("c1")
	assert.ErrorIs(t, err, connection.ErrNotFound)
	_, err = r.Remove("c1")
	assert.ErrorIs(t, err, connection.ErrNotFound)
}

func TestBindMovesBetweenRooms(t *testing.T) {
	r := NewRepo(slog.Default())
	require.NoError(t, r.Add(newConn("c1", "u1")))

	prev, err := r.Bind("c1", "room-1")
	require.NoError(t, err)
	assert.Empty(t, prev)

	prev, err = r.Bind("c1", "room-2")
	require.NoError(t, err)
	assert.Equal(t, "room-1", prev)

	assert.Empty(t, r.GetRoomConns("room-1"), "one room per connection")
	assert.Len(t, r.GetRoomConns("room-2"), 1)

	roomId, err := r.GetRoomId("c1")
	require.NoError(t, err)
	assert.Equal(t, "room-2", roomId)

	roomId, err = r.Unbind("c1")
	require.NoError(t, err)
	assert.Equal(t, "room-2", roomId)

	roomId, err = r.Unbind("c1")
	require.NoError(t, err)
	assert.Empty(t, roomId)

	_, err = r.Bind("missing", "room-1")
	assert.ErrorIs(t, err, connection.ErrNotFound)
}

func TestBroadcast(t *testing.T) {
	r := NewRepo(slog.Default())
	a, b, other := newConn("a", "u1"), newConn("b", "u2"), newConn("c", "u3")
	for _, c := range []*connection.Conn{a, b, other} {
		require.NoError(t, r.Add(c))
	}
	_, _ = r.Bind("a", "room-1")
	_, _ = r.Bind("b", "room-1")
	_, _ = r.Bind("c", "room-2")

	ctx := context.Background()
	require.NoError(t, r.Broadcast(ctx, "room-1", map[string]any{"type": "video-play"}))
	require.NoError(t, r.Broadcast(ctx, "room-1", map[string]any{"type": "user-typing"}, "a"))

	gotA := drain(t, a)
	gotB := drain(t, b)
	require.Len(t, gotA, 1)
	require.Len(t, gotB, 2)
	assert.Equal(t, "video-play", gotB[0]["type"])
	assert.Equal(t, "user-typing", gotB[1]["type"])
	assert.Empty(t, drain(t, other))
}

func TestBroadcastSkipsClosedConns(t *testing.T) {
	r := NewRepo(slog.Default())
	a, b := newConn("a", "u1"), newConn("b", "u2")
	require.NoError(t, r.Add(a))
	require.NoError(t, r.Add(b))
	_, _ = r.Bind("a", "room-1")
	_, _ = r.Bind("b", "room-1")

	a.Close()
	require.NoError(t, r.Broadcast(context.Background(), "room-1", map[string]any{"type": "video-pause"}))

	assert.Empty(t, drain(t, a))
	assert.Len(t, drain(t, b), 1)
}

func TestGetUserConns(t *testing.T) {
	r := NewRepo(slog.Default())
	require.NoError(t, r.Add(newConn("a", "u1")))
	require.NoError(t, r.Add(newConn("b", "u1")))
	require.NoError(t, r.Add(newConn("c", "u2")))
	_, _ = r.Bind("a", "room-1")

	assert.Len(t, r.GetUserConns("u1", ""), 2)
	assert.Len(t, r.GetUserConns("u1", "room-1"), 1)
	assert.Empty(t, r.GetUserConns("u2", "room-1"))
	assert.Len(t, r.All(), 3)
}

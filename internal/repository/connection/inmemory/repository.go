package inmemory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/scenesync/server/internal/repository/connection"
	"golang.org/x/exp/maps"
)

type repo struct {
	conns    map[string]*connection.Conn
	bindings map[string]string
	rooms    map[string]map[string]struct{}
	mu       sync.RWMutex
	logger   *slog.Logger
}

func NewRepo(logger *slog.Logger) *repo {
	return &repo{
		conns:    make(map[string]*connection.Conn),
		bindings: make(map[string]string),
		rooms:    make(map[string]map[string]struct{}),
		logger:   logger,
	}
}

func (r *repo) Add(conn *connection.Conn) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[conn.Id]; ok {
		return connection.ErrAlreadyExists
	}

	r.conns[conn.Id] = conn

	return nil
}

// Remove forgets the connection and returns the room it was bound to, if any.
func (r *repo) Remove(connId string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[connId]; !ok {
		return "", connection.ErrNotFound
	}

	roomId := r.unbind(connId)
	delete(r.conns, connId)

	return roomId, nil
}

func (r *repo) Get(connId string) (*connection.Conn, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.conns[connId]
	if !ok {
		return nil, connection.ErrNotFound
	}

	return conn, nil
}

// Bind attaches the connection to roomId and returns the room it was bound to before.
func (r *repo) Bind(connId, roomId string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[connId]; !ok {
		return "", connection.ErrNotFound
	}

	prev := r.unbind(connId)

	r.bindings[connId] = roomId
	if r.rooms[roomId] == nil {
		r.rooms[roomId] = make(map[string]struct{})
	}
	r.rooms[roomId][connId] = struct{}{}

	return prev, nil
}

// Unbind detaches the connection from its room and returns that room ("" when unbound).
func (r *repo) Unbind(connId string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[connId]; !ok {
		return "", connection.ErrNotFound
	}

	return r.unbind(connId), nil
}

func (r *repo) unbind(connId string) string {
	roomId, ok := r.bindings[connId]
	if !ok {
		return ""
	}

	delete(r.bindings, connId)
	delete(r.rooms[roomId], connId)
	if len(r.rooms[roomId]) == 0 {
		delete(r.rooms, roomId)
	}

	return roomId
}

func (r *repo) GetRoomId(connId string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.conns[connId]; !ok {
		return "", connection.ErrNotFound
	}

	return r.bindings[connId], nil
}

func (r *repo) GetRoomConns(roomId string) []*connection.Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]*connection.Conn, 0, len(r.rooms[roomId]))
	for connId := range r.rooms[roomId] {
		conns = append(conns, r.conns[connId])
	}

	return conns
}

// GetUserConns returns the user's connections bound to roomId, or all of them when roomId is "".
func (r *repo) GetUserConns(userId, roomId string) []*connection.Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var conns []*connection.Conn
	for connId, conn := range r.conns {
		if conn.Identity.Id != userId {
			continue
		}
		if roomId != "" && r.bindings[connId] != roomId {
			continue
		}
		conns = append(conns, conn)
	}

	return conns
}

func (r *repo) All() []*connection.Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return maps.Values(r.conns)
}

func (r *repo) Send(ctx context.Context, connId string, v any) error {
	conn, err := r.Get(connId)
	if err != nil {
		return err
	}

	if err := conn.SendJSON(v); err != nil {
		return fmt.Errorf("failed to send to conn %s: %w", connId, err)
	}

	return nil
}

// Broadcast enqueues v on every connection bound to roomId except the listed ones.
// A failing connection never prevents delivery to the others.
func (r *repo) Broadcast(ctx context.Context, roomId string, v any, exceptConnIds ...string) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal broadcast: %w", err)
	}

	for _, conn := range r.GetRoomConns(roomId) {
		if slices.Contains(exceptConnIds, conn.Id) {
			continue
		}
		if err := conn.Send(data); err != nil {
			r.logger.WarnContext(ctx, "failed to enqueue broadcast", "conn_id", conn.Id, "room_id", roomId, "error", err)
		}
	}

	return nil
}

package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/scenesync/server/internal/domain"
	chatsqlite "github.com/scenesync/server/internal/repository/chat/sqlite"
	"github.com/scenesync/server/internal/repository/connection"
	"github.com/scenesync/server/internal/repository/connection/inmemory"
	roomredis "github.com/scenesync/server/internal/repository/room/redis"
	"github.com/scenesync/server/internal/repository/upload/disk"
	"github.com/scenesync/server/internal/service/auth"
	"github.com/scenesync/server/internal/service/room"
	"github.com/scenesync/server/pkg/rest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

type testServer struct {
	srv       *httptest.Server
	uploadDir string
	issuer    interface {
		Issue(domain.Identity, time.Duration) (string, error)
	}
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rc.Close() })

	db, err := chatsqlite.Open(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	uploadDir := t.TempDir()
	logger := slog.Default()
	store, err := disk.NewStore(&disk.Config{Dir: uploadDir, PublicPath: "/uploads/videos", MaxSize: 1 << 20}, logger)
	require.NoError(t, err)

	roomService := room.NewService(
		roomredis.NewRepo(rc, time.Hour, logger),
		inmemory.NewRepo(logger),
		chatsqlite.NewRepo(db, logger),
		nil,
		&room.Config{MembersLimit: 50, DefaultCapacity: 10},
		logger,
	)
	verifier := auth.NewVerifier(testSecret)

	c := NewController(roomService, verifier, store, &Config{
		WSRate:        100,
		WSBurst:       100,
		UploadDir:     uploadDir,
		UploadPath:    "/uploads/videos",
		UploadMaxSize: 1 << 20,
	}, logger)

	srv := httptest.NewServer(c.GetMux())
	t.Cleanup(srv.Close)

	return &testServer{srv: srv, uploadDir: uploadDir, issuer: verifier}
}

func (s *testServer) token(t *testing.T, id string) string {
	t.Helper()

	token, err := s.issuer.Issue(domain.Identity{Id: id, Username: "user-" + id}, time.Hour)
	require.NoError(t, err)

	return token
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   rest.ErrorBody  `json:"error"`
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (int, envelope) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, s.srv.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return s.send(t, req)
}

func (s *testServer) send(t *testing.T, req *http.Request) (int, envelope) {
	t.Helper()

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))

	return resp.StatusCode, env
}

func (s *testServer) createRoom(t *testing.T, token string, body map[string]any) room.Room {
	t.Helper()

	status, env := s.do(t, http.MethodPost, "/api/v1/rooms", token, body)
	require.Equal(t, http.StatusCreated, status, env.Error.Message)

	var rm room.Room
	require.NoError(t, json.Unmarshal(env.Data, &rm))

	return rm
}

func (s *testServer) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/api/v1/ws?token=" + token
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })

	return ws
}

type message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func write(t *testing.T, ws *websocket.Conn, msgType string, payload any) {
	t.Helper()

	require.NoError(t, ws.WriteJSON(map[string]any{"type": msgType, "payload": payload}))
}

// readUntil skips messages until one of msgType arrives.
func readUntil(t *testing.T, ws *websocket.Conn, msgType string) json.RawMessage {
	t.Helper()

	ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var msg message
		require.NoError(t, ws.ReadJSON(&msg), "waiting for %s", msgType)
		if msg.Type == msgType {
			return msg.Payload
		}
	}
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)

	resp, err := http.Get(s.srv.URL + "/api/v1/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRESTRequiresToken(t *testing.T) {
	s := newTestServer(t)

	status, env := s.do(t, http.MethodGet, "/api/v1/rooms", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.False(t, env.Success)
	assert.Equal(t, CodeAuthenticationFailure, env.Error.Code)

	status, _ = s.do(t, http.MethodGet, "/api/v1/rooms", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestWSRejectsBadToken(t *testing.T) {
	s := newTestServer(t)

	ws := s.dial(t, "garbage")
	ws.SetReadDeadline(time.Now().Add(3 * time.Second))

	var msg message
	require.NoError(t, ws.ReadJSON(&msg))
	assert.Equal(t, outputError, msg.Type)

	var payload ErrorPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	assert.Equal(t, CodeAuthenticationFailure, payload.Code)
	assert.False(t, payload.Retryable)

	_, _, err := ws.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, CloseAuthenticationFailed, closeErr.Code)
}

func TestRoomFlow(t *testing.T) {
	s := newTestServer(t)
	hostToken, guestToken := s.token(t, "host"), s.token(t, "guest")

	rm := s.createRoom(t, hostToken, map[string]any{"name": "Movie Night"})
	assert.Len(t, rm.Code, domain.RoomCodeLength)

	status, env := s.do(t, http.MethodPost, "/api/v1/rooms/"+rm.Code+"/join", guestToken, nil)
	require.Equal(t, http.StatusOK, status, env.Error.Message)

	status, env = s.do(t, http.MethodPost, "/api/v1/rooms/"+rm.Code+"/join", guestToken, nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, CodeConflict, env.Error.Code)

	hostWS := s.dial(t, hostToken)
	write(t, hostWS, "join-room", map[string]any{"roomId": rm.Id})
	readUntil(t, hostWS, "room-joined")

	guestWS := s.dial(t, guestToken)
	write(t, guestWS, "join-room", map[string]any{"roomId": rm.Id})
	var joined room.RoomJoinedPayload
	require.NoError(t, json.Unmarshal(readUntil(t, guestWS, "room-joined"), &joined))
	assert.Equal(t, 2, joined.Room.ActiveCount)
	readUntil(t, hostWS, "user-joined")

	status, env = s.do(t, http.MethodPost, "/api/v1/rooms/"+rm.Code+"/video", guestToken, map[string]any{
		"url": "https://cdn.example.com/movie.mp4",
	})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, CodeAuthorizationFailure, env.Error.Code)

	status, env = s.do(t, http.MethodPost, "/api/v1/rooms/"+rm.Code+"/video", hostToken, map[string]any{
		"url":   "https://cdn.example.com/movie.mp4",
		"title": "Movie",
	})
	require.Equal(t, http.StatusOK, status, env.Error.Message)

	var changed room.VideoChangedPayload
	require.NoError(t, json.Unmarshal(readUntil(t, guestWS, "video-changed"), &changed))
	assert.Equal(t, "Movie", changed.Video.Title)
	assert.Equal(t, "host", changed.ChangedBy.Id)

	write(t, hostWS, "play-video", map[string]any{"roomId": rm.Id, "currentTime": 12.5})
	var play room.PlaybackPayload
	require.NoError(t, json.Unmarshal(readUntil(t, guestWS, "video-play"), &play))
	assert.Equal(t, 12.5, play.CurrentTime)
	assert.True(t, play.IsPlaying)
	assert.Equal(t, "user-host", play.ActorUsername)
	readUntil(t, hostWS, "video-play")

	write(t, guestWS, "pause-video", map[string]any{"roomId": rm.Id, "currentTime": 13})
	var rejected ErrorPayload
	require.NoError(t, json.Unmarshal(readUntil(t, guestWS, "error"), &rejected))
	assert.Equal(t, CodeAuthorizationFailure, rejected.Code)
	assert.Equal(t, "pause-video", rejected.RequestType)

	write(t, guestWS, "send-message", map[string]any{"roomId": rm.Id, "message": map[string]any{"text": "hi"}})
	var msg domain.Message
	require.NoError(t, json.Unmarshal(readUntil(t, hostWS, "new-message"), &msg))
	assert.Equal(t, "hi", msg.Text)
	readUntil(t, guestWS, "new-message")

	status, env = s.do(t, http.MethodGet, "/api/v1/rooms/"+rm.Code+"/messages?limit=10", hostToken, nil)
	require.Equal(t, http.StatusOK, status, env.Error.Message)
	var history []domain.Message
	require.NoError(t, json.Unmarshal(env.Data, &history))
	require.Len(t, history, 1)
	assert.Equal(t, msg.Id, history[0].Id)

	status, env = s.do(t, http.MethodPost, "/api/v1/rooms/"+rm.Code+"/leave", hostToken, nil)
	require.Equal(t, http.StatusOK, status, env.Error.Message)
	var left room.UserLeftPayload
	require.NoError(t, json.Unmarshal(readUntil(t, guestWS, "user-left"), &left))
	assert.Equal(t, "guest", left.NewHostId)
}

func TestWSValidation(t *testing.T) {
	s := newTestServer(t)
	ws := s.dial(t, s.token(t, "host"))

	tests := []struct {
		name    string
		msgType string
		payload any
	}{
		{name: "unknown type", msgType: "dance", payload: nil},
		{name: "missing position", msgType: "play-video", payload: map[string]any{"roomId": "c5a3b2f4-8f7e-4a4e-9d43-3c1d0e1f2a3b"}},
		{name: "bad room id", msgType: "join-room", payload: map[string]any{"roomId": "ABC123"}},
		{name: "empty message", msgType: "send-message", payload: map[string]any{"roomId": "c5a3b2f4-8f7e-4a4e-9d43-3c1d0e1f2a3b", "message": map[string]any{"text": ""}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			write(t, ws, tt.msgType, tt.payload)

			var payload ErrorPayload
			require.NoError(t, json.Unmarshal(readUntil(t, ws, "error"), &payload))
			assert.Equal(t, CodeValidationFailure, payload.Code)
			assert.Equal(t, tt.msgType, payload.RequestType)
		})
	}
}

func TestWSRoomFull(t *testing.T) {
	s := newTestServer(t)
	hostToken := s.token(t, "host")

	rm := s.createRoom(t, hostToken, map[string]any{
		"name":     "Tiny",
		"settings": map[string]any{"maxParticipants": 1},
	})

	status, env := s.do(t, http.MethodPost, "/api/v1/rooms/"+rm.Code+"/join", s.token(t, "guest"), nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, CodeCapacityExceeded, env.Error.Code)

	ws := s.dial(t, s.token(t, "guest"))
	write(t, ws, "join-room", map[string]any{"roomId": rm.Id})

	var payload RoomFullPayload
	require.NoError(t, json.Unmarshal(readUntil(t, ws, "room-full"), &payload))
	assert.NotEmpty(t, payload.Message)
}

func TestUploadVideo(t *testing.T) {
	s := newTestServer(t)
	hostToken, guestToken := s.token(t, "host"), s.token(t, "guest")

	rm := s.createRoom(t, hostToken, map[string]any{"name": "Home Videos"})
	status, _ := s.do(t, http.MethodPost, "/api/v1/rooms/"+rm.Code+"/join", guestToken, nil)
	require.Equal(t, http.StatusOK, status)

	upload := func(token string, content []byte) (int, envelope) {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		fw, err := mw.CreateFormFile("video", "holiday.mp4")
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
		require.NoError(t, mw.Close())

		req, err := http.NewRequest(http.MethodPost, s.srv.URL+"/api/v1/rooms/"+rm.Code+"/video/upload", &body)
		require.NoError(t, err)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+token)

		return s.send(t, req)
	}

	mp4 := append([]byte("\x00\x00\x00\x18ftypisom\x00\x00\x02\x00isomiso2mp41"), bytes.Repeat([]byte{0}, 4096)...)

	status, env := upload(guestToken, mp4)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, CodeAuthorizationFailure, env.Error.Code)
	entries, err := os.ReadDir(s.uploadDir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	status, env = upload(hostToken, []byte("just some text, definitely not a video"))
	assert.Equal(t, http.StatusUnsupportedMediaType, status)
	assert.Equal(t, CodeValidationFailure, env.Error.Code)

	status, env = upload(hostToken, mp4)
	require.Equal(t, http.StatusCreated, status, env.Error.Message)

	var video domain.VideoState
	require.NoError(t, json.Unmarshal(env.Data, &video))
	assert.Equal(t, domain.SourceUpload, video.Type)
	assert.Equal(t, "holiday.mp4", video.Title)
	assert.True(t, strings.HasPrefix(video.Url, "/uploads/videos/video-"), video.Url)

	resp, err := http.Get(s.srv.URL + video.Url)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, fmt.Sprint(len(mp4)), resp.Header.Get("Content-Length"))
}

func TestWSChangeVideoRequiresJoin(t *testing.T) {
	s := newTestServer(t)
	hostToken := s.token(t, "host")
	rm := s.createRoom(t, hostToken, map[string]any{"name": "Movie Night"})

	ws := s.dial(t, hostToken)
	change := map[string]any{
		"roomId": rm.Id,
		"video":  map[string]any{"url": "https://cdn.example.com/a.mp4"},
	}
	write(t, ws, "video-changed", change)

	var rejected ErrorPayload
	require.NoError(t, json.Unmarshal(readUntil(t, ws, "error"), &rejected))
	assert.Equal(t, CodeAuthorizationFailure, rejected.Code)
	assert.Equal(t, "video-changed", rejected.RequestType)

	status, env := s.do(t, http.MethodGet, "/api/v1/rooms/"+rm.Code, hostToken, nil)
	require.Equal(t, http.StatusOK, status, env.Error.Message)
	var stored room.Room
	require.NoError(t, json.Unmarshal(env.Data, &stored))
	assert.Nil(t, stored.CurrentVideo)

	write(t, ws, "join-room", map[string]any{"roomId": rm.Id})
	readUntil(t, ws, "room-joined")
	write(t, ws, "video-changed", change)

	var changed room.VideoChangedPayload
	require.NoError(t, json.Unmarshal(readUntil(t, ws, "video-changed"), &changed))
	assert.Equal(t, "https://cdn.example.com/a.mp4", changed.Video.Url)
}

type panickingRoomService struct {
	iRoomService
}

func (panickingRoomService) RoomDetails(context.Context, string) (room.Room, error) {
	panic("room details exploded")
}

type faultRecorder struct {
	mu     sync.Mutex
	faults []error
}

func (f *faultRecorder) report(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faults = append(f.faults, err)
}

func (f *faultRecorder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.faults)
}

func TestHandlerPanicIsReportedAsFault(t *testing.T) {
	faults := &faultRecorder{}
	verifier := auth.NewVerifier(testSecret)
	c := NewController(panickingRoomService{}, verifier, nil, &Config{OnFault: faults.report}, slog.Default())

	srv := httptest.NewServer(c.GetMux())
	t.Cleanup(srv.Close)
	s := &testServer{srv: srv, issuer: verifier}

	status, env := s.do(t, http.MethodGet, "/api/v1/rooms/ABCDEF", s.token(t, "host"), nil)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, CodeInternalFailure, env.Error.Code)
	assert.Equal(t, 1, faults.count())
}

func TestWritePumpPanicIsReportedAsFault(t *testing.T) {
	faults := &faultRecorder{}
	c := NewController(panickingRoomService{}, auth.NewVerifier(testSecret), nil, &Config{OnFault: faults.report}, slog.Default())

	// A conn without a socket panics on its first write.
	conn := connection.NewConn("conn-1", nil, domain.Identity{Id: "host", Username: "host"})
	require.NoError(t, conn.Send([]byte(`{"type":"ping"}`)))

	c.writePump(context.Background(), conn)

	assert.Equal(t, 1, faults.count())
	select {
	case <-conn.Done():
	default:
		t.Fatal("conn was not closed")
	}
}

package controller

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/scenesync/server/internal/domain"
	"github.com/scenesync/server/internal/repository/upload"
	"github.com/scenesync/server/internal/service/room"
	"github.com/scenesync/server/pkg/validator"
	"github.com/scenesync/server/pkg/wsrouter"
	"golang.org/x/time/rate"
)

type iRoomService interface {
	CreateRoom(context.Context, *room.CreateRoomParams) (room.CreateRoomResponse, error)
	RoomDetails(ctx context.Context, codeOrId string) (room.Room, error)
	ListUserRooms(ctx context.Context, userId string) ([]room.Room, error)
	JoinRoom(context.Context, *room.JoinRoomParams) (room.JoinRoomResponse, error)
	LeaveRoom(context.Context, *room.LeaveRoomParams) (room.LeaveRoomResponse, error)
	UpdateSettings(context.Context, *room.UpdateSettingsParams) (room.UpdateSettingsResponse, error)
	SetVideo(context.Context, *room.SetVideoParams) (room.SetVideoResponse, error)
	AuthorizeVideoChange(ctx context.Context, roomRef, userId string) (string, error)

	ConnectMember(context.Context, *room.ConnectMemberParams) error
	DisconnectMember(context.Context, *room.DisconnectMemberParams) error
	BindConn(context.Context, *room.BindConnParams) (room.BindConnResponse, error)
	UnbindConn(context.Context, *room.UnbindConnParams) error

	PlayVideo(context.Context, *room.PlaybackParams) error
	PauseVideo(context.Context, *room.PlaybackParams) error
	SeekVideo(context.Context, *room.PlaybackParams) error
	ReportDuration(context.Context, *room.ReportDurationParams) error
	SyncVideoState(context.Context, *room.SyncVideoStateParams) error

	SendMessage(context.Context, *room.SendMessageParams) (room.SendMessageResponse, error)
	SetTyping(context.Context, *room.SetTypingParams) error
	ChatHistory(context.Context, *room.ChatHistoryParams) (room.ChatHistoryResponse, error)
	DeleteMessage(context.Context, *room.DeleteMessageParams) error
}

type iVerifier interface {
	Verify(ctx context.Context, token string) (domain.Identity, error)
}

type iUploadStore interface {
	Store(ctx context.Context, r io.Reader, filename string) (upload.StoredFile, error)
}

type Config struct {
	// WSRate and WSBurst limit inbound commands per connection.
	WSRate        float64
	WSBurst       int
	UploadDir     string
	UploadPath    string
	UploadMaxSize int64
	// OnFault is told about panics while serving a connection. The server cannot keep running after one.
	OnFault func(error)
}

type controller struct {
	roomService   iRoomService
	verifier      iVerifier
	uploads       iUploadStore
	upgrader      websocket.Upgrader
	validate      *validator.Validator
	wsRouter      *wsrouter.WSRouter
	wsRate        rate.Limit
	wsBurst       int
	uploadDir     string
	uploadPath    string
	uploadMaxSize int64
	onFault       func(error)
	logger        *slog.Logger
}

func NewController(roomService iRoomService, verifier iVerifier, uploads iUploadStore, cfg *Config, logger *slog.Logger) *controller {
	c := controller{
		roomService: roomService,
		verifier:    verifier,
		uploads:     uploads,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		validate:      validator.NewValidator(),
		wsRate:        rate.Limit(cfg.WSRate),
		wsBurst:       cfg.WSBurst,
		uploadDir:     cfg.UploadDir,
		uploadPath:    cfg.UploadPath,
		uploadMaxSize: cfg.UploadMaxSize,
		onFault:       cfg.OnFault,
		logger:        logger,
	}

	if c.wsRate <= 0 {
		c.wsRate = rate.Inf
	}
	if c.wsBurst <= 0 {
		c.wsBurst = 1
	}
	if c.onFault == nil {
		c.onFault = func(error) {}
	}

	c.wsRouter = c.getWSRouter()

	return &c
}

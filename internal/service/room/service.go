package room

import (
	"context"
	"log/slog"
	"time"

	"github.com/scenesync/server/internal/domain"
	"github.com/scenesync/server/internal/repository/connection"
	"github.com/scenesync/server/internal/repository/room"
	"github.com/scenesync/server/pkg/keymutex"
	"github.com/scenesync/server/pkg/randstr"
	"github.com/scenesync/server/pkg/ytvideodata"
)

type iRoomRepo interface {
	CreateRoom(context.Context, *domain.Room) error
	GetRoom(context.Context, string) (*domain.Room, error)
	GetRoomIdByCode(context.Context, string) (string, error)
	UpdateRoom(context.Context, *domain.Room) error
	GetUserRoomIds(context.Context, string) ([]string, error)
	SetUserOnline(ctx context.Context, userId string, isOnline bool, at time.Time) error
	GetUserPresence(ctx context.Context, userId string) (room.Presence, error)
}

// iConnRepo is both the registry of live connections and the broadcaster.
type iConnRepo interface {
	Add(*connection.Conn) error
	Remove(connId string) (string, error)
	Get(connId string) (*connection.Conn, error)
	Bind(connId, roomId string) (string, error)
	Unbind(connId string) (string, error)
	GetRoomId(connId string) (string, error)
	GetUserConns(userId, roomId string) []*connection.Conn
	Send(ctx context.Context, connId string, v any) error
	Broadcast(ctx context.Context, roomId string, v any, exceptConnIds ...string) error
}

type iChatRepo interface {
	SaveMessage(context.Context, *domain.Message) error
	GetMessage(ctx context.Context, roomId, messageId string) (domain.Message, error)
	ListMessages(ctx context.Context, roomId, before string, limit int) ([]domain.Message, error)
	DeleteMessage(ctx context.Context, roomId, messageId string) error
}

type iVideoMetadata interface {
	Get(ctx context.Context, videoId string) (*ytvideodata.VideoData, error)
}

type iGenerator interface {
	GenerateRandomString(length int) string
}

type Config struct {
	// MembersLimit is the largest capacity a room may be configured with.
	MembersLimit    int
	DefaultCapacity int
	MetadataTimeout time.Duration
}

type service struct {
	roomRepo        iRoomRepo
	connRepo        iConnRepo
	chatRepo        iChatRepo
	metadata        iVideoMetadata
	generator       iGenerator
	locker          *keymutex.KeyMutex
	now             func() time.Time
	membersLimit    int
	defaultCapacity int
	metadataTimeout time.Duration
	logger          *slog.Logger
}

// NewService wires the room service. metadata may be nil, in which case YouTube titles are not looked up.
func NewService(roomRepo iRoomRepo, connRepo iConnRepo, chatRepo iChatRepo, metadata iVideoMetadata, cfg *Config, logger *slog.Logger) *service {
	s := service{
		roomRepo:        roomRepo,
		connRepo:        connRepo,
		chatRepo:        chatRepo,
		metadata:        metadata,
		locker:          keymutex.New(),
		now:             func() time.Time { return time.Now().UTC() },
		membersLimit:    cfg.MembersLimit,
		defaultCapacity: cfg.DefaultCapacity,
		metadataTimeout: cfg.MetadataTimeout,
		logger:          logger,
	}

	if s.defaultCapacity == 0 {
		s.defaultCapacity = domain.DefaultMaxParticipants
	}
	if s.metadataTimeout == 0 {
		s.metadataTimeout = 3 * time.Second
	}

	letterBytes := []byte("ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789")
	s.generator = randstr.New(letterBytes)

	return &s
}

package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/scenesync/server/internal/controller"
	chatsqlite "github.com/scenesync/server/internal/repository/chat/sqlite"
	"github.com/scenesync/server/internal/repository/connection"
	"github.com/scenesync/server/internal/repository/connection/inmemory"
	roomredis "github.com/scenesync/server/internal/repository/room/redis"
	"github.com/scenesync/server/internal/repository/upload/disk"
	"github.com/scenesync/server/internal/service/auth"
	"github.com/scenesync/server/internal/service/room"
	"github.com/scenesync/server/pkg/ctxlogger"
	"github.com/scenesync/server/pkg/redisclient"
	"github.com/scenesync/server/pkg/ytvideodata"
)

const shutdownTimeout = 30 * time.Second

type AppConfig struct {
	Secret               string        `json:"-"`
	Host                 string        `json:"host"`
	Port                 int           `json:"port"`
	LogLevel             string        `json:"log_level"`
	MembersLimit         int           `json:"members_limit"`
	DefaultCapacity      int           `json:"default_capacity"`
	RedisHost            string        `json:"redis_host"`
	RedisPort            int           `json:"redis_port"`
	RedisPassword        string        `json:"-"`
	RedisTimeout         time.Duration `json:"redis_timeout"`
	ChatDBPath           string        `json:"chat_db_path"`
	UploadDir            string        `json:"upload_dir"`
	UploadMaxSize        int64         `json:"upload_max_size"`
	UploadPublicPath     string        `json:"upload_public_path"`
	WSRate               float64       `json:"ws_rate"`
	WSBurst              int           `json:"ws_burst"`
	InactiveRoomTTL      time.Duration `json:"inactive_room_ttl"`
	ResolveVideoMetadata bool          `json:"resolve_video_metadata"`
}

func (cfg *AppConfig) Validate() error {
	return validation.ValidateStruct(cfg,
		validation.Field(&cfg.Secret, validation.Required),
		validation.Field(&cfg.Port, validation.Min(0), validation.Max(65535)),
		validation.Field(&cfg.LogLevel, validation.Required),
		validation.Field(&cfg.MembersLimit, validation.Required, validation.Min(1)),
		validation.Field(&cfg.DefaultCapacity, validation.Required, validation.Min(1), validation.Max(cfg.MembersLimit)),
		validation.Field(&cfg.RedisHost, validation.Required),
		validation.Field(&cfg.RedisPort, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&cfg.ChatDBPath, validation.Required),
		validation.Field(&cfg.UploadDir, validation.Required),
		validation.Field(&cfg.UploadMaxSize, validation.Required, validation.Min(int64(1))),
		validation.Field(&cfg.UploadPublicPath, validation.Required, validation.By(func(value any) error {
			if !strings.HasPrefix(value.(string), "/") {
				return errors.New("must start with /")
			}
			return nil
		})),
		validation.Field(&cfg.WSRate, validation.Min(0.0)),
		validation.Field(&cfg.WSBurst, validation.Min(0)),
		validation.Field(&cfg.InactiveRoomTTL, validation.Min(time.Duration(0))),
	)
}

type iConnRegistry interface {
	All() []*connection.Conn
}

type iVideoMetadata interface {
	Get(ctx context.Context, videoId string) (*ytvideodata.VideoData, error)
}

// App owns every long-lived dependency of the server.
type App struct {
	handler  http.Handler
	connRepo iConnRegistry
	faults   chan error
	rc       *redis.Client
	db       *sql.DB
	logger   *slog.Logger
}

func New(ctx context.Context, cfg *AppConfig, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	rc, err := redisclient.NewRedisClient(ctx, &redisclient.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		Timeout:  cfg.RedisTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create redis client: %w", err)
	}

	db, err := chatsqlite.Open(cfg.ChatDBPath)
	if err != nil {
		rc.Close()
		return nil, fmt.Errorf("failed to open chat db: %w", err)
	}

	uploadStore, err := disk.NewStore(&disk.Config{
		Dir:        cfg.UploadDir,
		PublicPath: cfg.UploadPublicPath,
		MaxSize:    cfg.UploadMaxSize,
	}, logger)
	if err != nil {
		db.Close()
		rc.Close()
		return nil, fmt.Errorf("failed to create upload store: %w", err)
	}

	var metadata iVideoMetadata
	if cfg.ResolveVideoMetadata {
		metadata = ytvideodata.New()
	}

	a := &App{
		faults: make(chan error, 1),
		rc:     rc,
		db:     db,
		logger: logger,
	}

	roomRepo := roomredis.NewRepo(rc, cfg.InactiveRoomTTL, logger)
	chatRepo := chatsqlite.NewRepo(db, logger)
	connRepo := inmemory.NewRepo(logger)
	roomService := room.NewService(roomRepo, connRepo, chatRepo, metadata, &room.Config{
		MembersLimit:    cfg.MembersLimit,
		DefaultCapacity: cfg.DefaultCapacity,
	}, logger)
	controller := controller.NewController(roomService, auth.NewVerifier(cfg.Secret), uploadStore, &controller.Config{
		WSRate:        cfg.WSRate,
		WSBurst:       cfg.WSBurst,
		UploadDir:     cfg.UploadDir,
		UploadPath:    strings.TrimSuffix(cfg.UploadPublicPath, "/"),
		UploadMaxSize: cfg.UploadMaxSize,
		OnFault:       a.fault,
	}, logger)

	a.handler = controller.GetMux()
	a.connRepo = connRepo

	return a, nil
}

func (a *App) Handler() http.Handler {
	return a.handler
}

// fault reports an error the server cannot recover from. Only the first one is kept.
func (a *App) fault(err error) {
	select {
	case a.faults <- err:
	default:
	}
}

// Serve accepts connections on ln until ctx is done or a fault is reported, then shuts down:
// no new connections, every live socket closed with 1001. A fault makes Serve return an error.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	server := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(ln)
	}()
	a.logger.InfoContext(ctx, "starting server", "address", ln.Addr().String())

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.InfoContext(ctx, "shutting down")
	case err := <-a.faults:
		a.logger.ErrorContext(ctx, "shutting down after fault", "error", err)
		runErr = fmt.Errorf("fatal fault: %w", err)
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("failed to shutdown server: %w", err))
	}

	if err := a.closeConns(shutdownCtx); err != nil {
		runErr = errors.Join(runErr, err)
	}

	return runErr
}

// closeConns asks every live connection to go away and waits for their handlers to finish.
func (a *App) closeConns(ctx context.Context) error {
	for _, conn := range a.connRepo.All() {
		conn.CloseWithReason(websocket.CloseGoingAway, "server shutting down")
	}

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for len(a.connRepo.All()) > 0 {
		select {
		case <-ctx.Done():
			return fmt.Errorf("failed to close connections: %w", ctx.Err())
		case <-ticker.C:
		}
	}

	return nil
}

func (a *App) Close() error {
	return errors.Join(a.db.Close(), a.rc.Close())
}

func Run(ctx context.Context, cfg *AppConfig) error {
	logLevel := slog.LevelInfo
	if err := logLevel.UnmarshalText([]byte(strings.ToUpper(cfg.LogLevel))); err != nil {
		return fmt.Errorf("failed to parse log level: %w", err)
	}

	h := ctxlogger.ContextHandler{
		Handler: slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level:     logLevel,
			AddSource: true,
		}),
	}

	logger := slog.New(&h)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	a, err := New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.Host, cfg.Port))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	return a.Serve(ctx, ln)
}

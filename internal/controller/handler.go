package controller

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/scenesync/server/internal/domain"
	"github.com/scenesync/server/internal/repository/connection"
	"github.com/scenesync/server/internal/service/room"
	"github.com/scenesync/server/pkg/ctxlogger"
	"github.com/scenesync/server/pkg/rest"
	"github.com/scenesync/server/pkg/wsrouter"
	"golang.org/x/time/rate"
)

// CloseAuthenticationFailed is sent when the connection token does not verify.
const CloseAuthenticationFailed = 4001

const (
	outputError    = "error"
	outputRoomFull = "room-full"
)

type Output struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type ErrorPayload struct {
	Message   string `json:"message"`
	Code      string `json:"code"`
	Retryable bool   `json:"retryable"`
	// RequestType is the type of the message that failed, if known.
	RequestType string `json:"requestType,omitempty"`
	Details     any    `json:"details,omitempty"`
}

type RoomFullPayload struct {
	Message string `json:"message"`
}

// connect upgrades the request and serves the connection until it goes away.
func (c controller) connect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, authErr := c.verifier.Verify(ctx, c.getToken(r))

	ws, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.logger.WarnContext(ctx, "failed to upgrade to websocket", "error", err)
		return
	}

	if authErr != nil {
		c.logger.InfoContext(ctx, "failed to verify token", "error", authErr)
		c.rejectConn(ctx, ws, authErr)
		return
	}

	conn := connection.NewConn(uuid.NewString(), ws, identity)
	ctx = ctxlogger.AppendCtx(ctx, slog.String("conn_id", conn.Id))
	ctx = ctxlogger.AppendCtx(ctx, slog.String("user_id", identity.Id))

	if err := c.roomService.ConnectMember(ctx, &room.ConnectMemberParams{Conn: conn}); err != nil {
		c.logger.WarnContext(ctx, "failed to connect member", "error", err)
		ws.Close()
		return
	}
	go c.writePump(ctx, conn)

	defer func() {
		if p := recover(); p != nil {
			c.reportPanic(ctx, p, "panic while serving conn")
		}

		if err := c.roomService.DisconnectMember(context.WithoutCancel(ctx), &room.DisconnectMemberParams{
			ConnId: conn.Id,
		}); err != nil {
			c.logger.WarnContext(ctx, "failed to disconnect member", "error", err)
		}
	}()

	c.logger.InfoContext(ctx, "conn established")

	ctx = context.WithValue(ctx, connCtxKey, conn)
	ctx = context.WithValue(ctx, limiterCtxKey, rate.NewLimiter(c.wsRate, c.wsBurst))

	conn.PrepareRead()
	if err := c.wsRouter.ServeConn(ctx, ws); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
			c.logger.InfoContext(ctx, "conn closed unexpectedly", "error", err)
			return
		}
		c.logger.DebugContext(ctx, "conn closed", "error", err)
	}
}

func (c controller) writePump(ctx context.Context, conn *connection.Conn) {
	defer func() {
		if p := recover(); p != nil {
			conn.Close()
			c.reportPanic(ctx, p, "panic in write pump")
		}
	}()

	conn.WritePump()
}

// rejectConn reports an authentication failure on a freshly upgraded socket and closes it.
func (c controller) rejectConn(ctx context.Context, ws *websocket.Conn, err error) {
	defer ws.Close()

	class, message, _ := classifyError(err)
	ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := ws.WriteJSON(&Output{
		Type: outputError,
		Payload: ErrorPayload{
			Message:   message,
			Code:      class.code,
			Retryable: false,
		},
	}); err != nil {
		c.logger.DebugContext(ctx, "failed to write error", "error", err)
		return
	}

	if err := ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(CloseAuthenticationFailed, message),
		time.Now().Add(5*time.Second),
	); err != nil {
		c.logger.DebugContext(ctx, "failed to write close message", "error", err)
	}
}

// handleWSError reports a failed command to the connection that sent it.
func (c controller) handleWSError(ctx context.Context, _ *websocket.Conn, err error) {
	conn := c.getConnFromCtx(ctx)
	if conn == nil {
		return
	}

	class, message, details := classifyError(err)
	if class.code == CodePersistenceFailure {
		c.logger.ErrorContext(ctx, "failed to handle websocket message", "error", err)
	} else {
		c.logger.InfoContext(ctx, "rejected websocket message", "error", err)
	}

	output := Output{
		Type: outputError,
		Payload: ErrorPayload{
			Message:     message,
			Code:        class.code,
			Retryable:   class.retryable,
			RequestType: wsrouter.GetMessageTypeFromCtx(ctx),
			Details:     details,
		},
	}
	if errors.Is(err, domain.ErrRoomFull) {
		output = Output{
			Type:    outputRoomFull,
			Payload: RoomFullPayload{Message: message},
		}
	}

	if err := conn.SendJSON(&output); err != nil {
		c.logger.DebugContext(ctx, "failed to send error", "error", err)
	}
}

func (c controller) writeError(w http.ResponseWriter, r *http.Request, err error) {
	class, message, details := classifyError(err)
	if class.code == CodePersistenceFailure {
		c.logger.ErrorContext(r.Context(), "failed to handle request", "error", err)
	} else {
		c.logger.InfoContext(r.Context(), "rejected request", "error", err)
	}

	if err := rest.WriteError(w, class.status, rest.ErrorBody{
		Code:    class.code,
		Message: message,
		Details: details,
	}); err != nil {
		c.logger.WarnContext(r.Context(), "failed to write response", "error", err)
	}
}

func (c controller) writeData(w http.ResponseWriter, r *http.Request, status int, data any) {
	if err := rest.WriteData(w, status, data); err != nil {
		c.logger.WarnContext(r.Context(), "failed to write response", "error", err)
	}
}

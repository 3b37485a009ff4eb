package controller

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/scenesync/server/pkg/ctxlogger"
	"github.com/scenesync/server/pkg/rest"
)

func (c controller) generateTimeBasedId() string {
	return ulid.Make().String()
}

// reportPanic logs a recovered panic and hands it to the fault hook, which stops the server.
func (c controller) reportPanic(ctx context.Context, p any, msg string) {
	c.logger.ErrorContext(ctx, msg, "panic", p, "stack", string(debug.Stack()))
	c.onFault(fmt.Errorf("%s: %v", msg, p))
}

// recovererMw turns a handler panic into a 500 and reports it as a fault.
func (c controller) recovererMw(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			p := recover()
			if p == nil {
				return
			}
			if p == http.ErrAbortHandler {
				panic(p)
			}

			c.reportPanic(r.Context(), p, "panic while serving request")
			if r.Header.Get("Connection") != "Upgrade" {
				rest.WriteError(w, http.StatusInternalServerError, rest.ErrorBody{
					Code:    CodeInternalFailure,
					Message: http.StatusText(http.StatusInternalServerError),
				})
			}
		}()

		next.ServeHTTP(w, r)
	})
}

func (c controller) requestIdMw(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		ctx = ctxlogger.AppendCtx(ctx, slog.String("request_id", c.generateTimeBasedId()))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (c controller) requestLoggingMw(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.logger.InfoContext(r.Context(), "request",
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
			"user_agent", r.UserAgent(),
		)
		next.ServeHTTP(w, r)
	})
}

// authMw resolves the bearer token into an identity for the REST handlers.
func (c controller) authMw(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := c.verifier.Verify(r.Context(), c.getToken(r))
		if err != nil {
			c.logger.InfoContext(r.Context(), "failed to verify token", "error", err)
			c.writeError(w, r, err)
			return
		}

		ctx := ctxlogger.AppendCtx(r.Context(), slog.String("user_id", identity.Id))
		ctx = context.WithValue(ctx, identityCtxKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// getToken reads the token from the Authorization header, or from the query for websocket clients
// that cannot set headers.
func (c controller) getToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		token, ok := strings.CutPrefix(header, "Bearer ")
		if ok {
			return strings.TrimSpace(token)
		}
	}

	return r.URL.Query().Get("token")
}

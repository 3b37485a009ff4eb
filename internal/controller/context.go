package controller

import (
	"context"

	"github.com/scenesync/server/internal/domain"
	"github.com/scenesync/server/internal/repository/connection"
	"golang.org/x/time/rate"
)

type contextKey int

const (
	connCtxKey contextKey = iota
	identityCtxKey
	limiterCtxKey
)

func (c controller) getConnFromCtx(ctx context.Context) *connection.Conn {
	conn, ok := ctx.Value(connCtxKey).(*connection.Conn)
	if !ok {
		return nil
	}

	return conn
}

func (c controller) getIdentityFromCtx(ctx context.Context) domain.Identity {
	if conn := c.getConnFromCtx(ctx); conn != nil {
		return conn.Identity
	}

	identity, ok := ctx.Value(identityCtxKey).(domain.Identity)
	if !ok {
		return domain.Identity{}
	}

	return identity
}

func (c controller) getLimiterFromCtx(ctx context.Context) *rate.Limiter {
	limiter, ok := ctx.Value(limiterCtxKey).(*rate.Limiter)
	if !ok {
		return nil
	}

	return limiter
}

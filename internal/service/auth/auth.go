// Package auth verifies the bearer tokens issued by the identity provider.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/scenesync/server/internal/domain"
)

var ErrInvalidToken = errors.New("invalid token")

const (
	idKey        = "id"
	usernameKey  = "username"
	emailKey     = "email"
	anonymousKey = "anonymous"
)

type verifier struct {
	secret []byte
	now    func() time.Time
}

func NewVerifier(secret string) *verifier {
	return &verifier{
		secret: []byte(secret),
		now:    time.Now,
	}
}

// Verify checks the HS256 signature and expiry of token and returns the identity it carries.
// The user id is read from "id", falling back to "sub".
func (v verifier) Verify(_ context.Context, token string) (domain.Identity, error) {
	if token == "" {
		return domain.Identity{}, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}

	parsed, err := jwt.Parse(token, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return domain.Identity{}, ErrInvalidToken
	}

	id, _ := claims[idKey].(string)
	if id == "" {
		id, _ = claims.GetSubject()
	}
	if id == "" {
		return domain.Identity{}, fmt.Errorf("%w: missing user id", ErrInvalidToken)
	}

	username, _ := claims[usernameKey].(string)
	if username == "" {
		return domain.Identity{}, fmt.Errorf("%w: missing username", ErrInvalidToken)
	}

	email, _ := claims[emailKey].(string)
	anonymous, _ := claims[anonymousKey].(bool)

	return domain.Identity{
		Id:          id,
		Username:    username,
		Email:       email,
		IsAnonymous: anonymous,
	}, nil
}

// Issue signs a token for identity. Production tokens come from the identity provider;
// cmd/devtoken uses this for local setups.
func (v verifier) Issue(identity domain.Identity, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		idKey:       identity.Id,
		usernameKey: identity.Username,
		"exp":       v.now().Add(ttl).Unix(),
	}
	if identity.Email != "" {
		claims[emailKey] = identity.Email
	}
	if identity.IsAnonymous {
		claims[anonymousKey] = true
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

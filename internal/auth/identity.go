// Huddle - Realtime Chat and Call Signaling Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Authentication modes.
const (
	ModeJWT  = "jwt"
	ModeNone = "none"
)

var (
	// ErrMissingToken means the request carried no bearer token.
	ErrMissingToken = errors.New("missing bearer token")

	// ErrInvalidToken wraps every token validation failure.
	ErrInvalidToken = errors.New("invalid bearer token")
)

// Identity is who is on the other end of a request or connection.
type Identity struct {
	UserID string
	Role   string

	// Verified is true only when UserID came from a validated token.
	// Unverified identities are development conveniences.
	Verified bool
}

// Authenticator resolves the Identity for an incoming request.
type Authenticator interface {
	Authenticate(r *http.Request) (Identity, error)
	Mode() string
}

// NewAuthenticator returns the authenticator for mode.
func NewAuthenticator(mode string, jwtManager *JWTManager) (Authenticator, error) {
	switch mode {
	case ModeJWT:
		if jwtManager == nil {
			return nil, errors.New("jwt mode requires a JWT manager")
		}
		return &JWTAuthenticator{manager: jwtManager}, nil
	case ModeNone:
		return NoneAuthenticator{}, nil
	default:
		return nil, fmt.Errorf("unknown auth mode %q", mode)
	}
}

// JWTAuthenticator reads the token from the Authorization header or, for
// browser websocket clients that cannot set headers, the token query parameter.
type JWTAuthenticator struct {
	manager *JWTManager
}

func (a *JWTAuthenticator) Mode() string { return ModeJWT }

func (a *JWTAuthenticator) Authenticate(r *http.Request) (Identity, error) {
	token := bearerToken(r)
	if token == "" {
		return Identity{}, ErrMissingToken
	}
	claims, err := a.manager.ValidateToken(token)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return Identity{UserID: claims.Subject, Role: claims.Role, Verified: true}, nil
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

// NoneAuthenticator trusts the X-User-ID header. For local development only;
// config validation refuses it in production.
type NoneAuthenticator struct{}

func (NoneAuthenticator) Mode() string { return ModeNone }

func (NoneAuthenticator) Authenticate(r *http.Request) (Identity, error) {
	return Identity{UserID: r.Header.Get("X-User-ID")}, nil
}

type contextKey string

const identityKey contextKey = "identity"

// ContextWithIdentity stores id in ctx.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext returns the identity stored by Middleware.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// Huddle - Realtime Chat and Call Signaling Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewAuthenticator(t *testing.T) {
	if _, err := NewAuthenticator(ModeJWT, nil); err == nil {
		t.Error("jwt mode without manager should fail")
	}
	if _, err := NewAuthenticator("basic", nil); err == nil {
		t.Error("unknown mode should fail")
	}
	a, err := NewAuthenticator(ModeNone, nil)
	if err != nil || a.Mode() != ModeNone {
		t.Errorf("NewAuthenticator(none) = %v, %v", a, err)
	}
}

func TestJWTAuthenticator(t *testing.T) {
	m := newTestManager(t, time.Hour)
	a, err := NewAuthenticator(ModeJWT, m)
	if err != nil {
		t.Fatal(err)
	}
	token, _ := m.GenerateToken("alice", "member")

	t.Run("authorization header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ws", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		id, err := a.Authenticate(req)
		if err != nil {
			t.Fatalf("Authenticate() error = %v", err)
		}
		if id.UserID != "alice" || !id.Verified {
			t.Errorf("Identity = %+v, want verified alice", id)
		}
	})

	t.Run("query parameter", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ws?token="+token, nil)
		id, err := a.Authenticate(req)
		if err != nil || id.UserID != "alice" {
			t.Errorf("Authenticate() = %+v, %v", id, err)
		}
	})

	t.Run("missing", func(t *testing.T) {
		_, err := a.Authenticate(httptest.NewRequest(http.MethodGet, "/ws", nil))
		if !errors.Is(err, ErrMissingToken) {
			t.Errorf("error = %v, want ErrMissingToken", err)
		}
	})

	t.Run("non-bearer scheme", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ws?token="+token, nil)
		req.Header.Set("Authorization", "Basic YWxpY2U6c2VjcmV0")
		if _, err := a.Authenticate(req); !errors.Is(err, ErrMissingToken) {
			t.Errorf("error = %v, want ErrMissingToken", err)
		}
	})

	t.Run("invalid", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ws?token=bogus", nil)
		if _, err := a.Authenticate(req); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("error = %v, want ErrInvalidToken", err)
		}
	})
}

func TestMiddleware(t *testing.T) {
	m := newTestManager(t, time.Hour)
	a, _ := NewAuthenticator(ModeJWT, m)
	token, _ := m.GenerateToken("alice", "")

	var seen Identity
	handler := Middleware(a)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = IdentityFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/presence", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/presence", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if seen.UserID != "alice" {
		t.Errorf("identity in context = %+v, want alice", seen)
	}
}

func TestNoneAuthenticator(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/presence", nil)
	req.Header.Set("X-User-ID", "dev")
	id, err := NoneAuthenticator{}.Authenticate(req)
	if err != nil || id.UserID != "dev" || id.Verified {
		t.Errorf("Authenticate() = %+v, %v, want unverified dev", id, err)
	}
}

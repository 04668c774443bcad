// Huddle - Realtime Chat and Call Signaling Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/huddle/internal/audit"
	"github.com/tomtom215/huddle/internal/auth"
	"github.com/tomtom215/huddle/internal/authz"
	"github.com/tomtom215/huddle/internal/config"
	"github.com/tomtom215/huddle/internal/gateway"
	"github.com/tomtom215/huddle/internal/logging"
	"github.com/tomtom215/huddle/internal/storage"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{Level: "error", Format: "json", Output: io.Discard})
}

const testSecret = "router_test_secret_with_at_least_32_characters"

type testServer struct {
	handler  http.Handler
	gw       *gateway.Gateway
	store    *storage.BreakerStore
	enforcer *authz.Enforcer
	jwt      *auth.JWTManager
	cfg      *config.Config
	audit    *audit.MemoryStore
}

func testConfig() *config.Config {
	return &config.Config{
		Gateway: config.GatewayConfig{
			SendBuffer:     64,
			MaxMessageSize: 64 * 1024,
			WriteWait:      time.Second,
			PongWait:       5 * time.Second,
			PersistTimeout: time.Second,
		},
		Storage: config.StorageConfig{InMemory: true, HistoryPageLimit: 3},
		Breaker: config.BreakerConfig{Name: "test", Timeout: time.Second, FailureThreshold: 5},
		Security: config.SecurityConfig{
			AuthMode:        auth.ModeJWT,
			JWTSecret:       testSecret,
			JWTIssuer:       "huddle-test",
			TokenTTL:        time.Hour,
			RateLimitReqs:   1000,
			RateLimitWindow: time.Minute,
			Admins:          []string{"root"},
		},
	}
}

// newTestServer wires real storage, authorization and a running gateway.
// mutate may adjust the configuration first.
func newTestServer(t *testing.T, mutate func(*config.Config)) *testServer {
	t.Helper()
	cfg := testConfig()
	if mutate != nil {
		mutate(cfg)
	}

	badgerStore, err := storage.Open(cfg.Storage)
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	store := storage.NewBreakerStore(badgerStore, cfg.Breaker)
	t.Cleanup(func() { _ = store.Close() })

	enforcer, err := authz.NewEnforcer(authz.Config{Admins: cfg.Security.Admins})
	if err != nil {
		t.Fatalf("authz.NewEnforcer: %v", err)
	}
	t.Cleanup(enforcer.Close)

	jwtManager, err := auth.NewJWTManager(&cfg.Security)
	if err != nil {
		t.Fatal(err)
	}
	authn, err := auth.NewAuthenticator(cfg.Security.AuthMode, jwtManager)
	if err != nil {
		t.Fatal(err)
	}

	gw := gateway.New(cfg.Gateway, gateway.Options{
		Store:       store,
		Permissions: enforcer,
		AuthMode:    cfg.Security.AuthMode,
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = gw.RunWithContext(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	auditStore := audit.NewMemoryStore(100)
	auditLog := audit.NewLogger(auditStore, config.AuditConfig{Enabled: true, BufferSize: 16})
	t.Cleanup(func() { _ = auditLog.Close() })

	h := NewHandler(HandlerOptions{
		Gateway:       gw,
		History:       store,
		Roles:         enforcer,
		StoreHealth:   store,
		Authenticator: authn,
		Audit:         auditLog,
		Config:        cfg,
	})
	router := NewRouter(h, authn, NewChiMiddlewareFromSecurity(cfg.Security))

	return &testServer{
		handler:  router.SetupChi(),
		gw:       gw,
		store:    store,
		enforcer: enforcer,
		jwt:      jwtManager,
		cfg:      cfg,
		audit:    auditStore,
	}
}

func (s *testServer) token(t *testing.T, userID string) string {
	t.Helper()
	tok, err := s.jwt.GenerateToken(userID, "")
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

// do performs a request as userID ("" sends no token) and decodes the
// envelope.
func (s *testServer) do(t *testing.T, method, path, userID string) (int, APIResponse) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+s.token(t, userID))
	}
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)

	var resp APIResponse
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode %s %s: %v (%s)", method, path, err, w.Body.String())
		}
	}
	return w.Code, resp
}

// decodeData re-decodes resp.Data into v.
func decodeData(t *testing.T, resp APIResponse, v interface{}) {
	t.Helper()
	raw, err := json.Marshal(resp.Data)
	if err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		t.Fatalf("decode data %s: %v", raw, err)
	}
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t, nil)

	code, resp := s.do(t, http.MethodGet, "/api/v1/health/live", "")
	if code != http.StatusOK || !resp.Success {
		t.Errorf("live = %d %+v", code, resp)
	}

	c := gateway.NewClient(s.gw, nil, auth.Identity{UserID: "alice", Verified: true})
	s.gw.JoinRoom(c, "general")
	if err := s.gw.JoinCall(c, "standup"); err != nil {
		t.Fatal(err)
	}

	code, resp = s.do(t, http.MethodGet, "/api/v1/health/ready", "")
	if code != http.StatusOK {
		t.Fatalf("ready = %d %+v", code, resp.Error)
	}
	var status ReadyStatus
	decodeData(t, resp, &status)
	if !status.Ready || !status.Storage || status.BreakerState != "closed" {
		t.Errorf("ready status = %+v", status)
	}
	if status.ChatRooms != 1 || status.ActiveCalls != 1 {
		t.Errorf("rooms = %d, calls = %d, want 1 and 1", status.ChatRooms, status.ActiveCalls)
	}
	if resp.Meta == nil || resp.Meta.RequestID == "" {
		t.Error("response meta should carry the request id")
	}
}

func TestHealthReady_NotReady(t *testing.T) {
	tests := []struct {
		name string
		opts HandlerOptions
	}{
		{name: "no gateway", opts: HandlerOptions{StoreHealth: stubHealth{healthy: true, state: "closed"}}},
		{name: "breaker open", opts: HandlerOptions{
			Gateway:     gateway.New(config.GatewayConfig{}, gateway.Options{}),
			StoreHealth: stubHealth{state: "open"},
		}},
		{name: "no storage", opts: HandlerOptions{Gateway: gateway.New(config.GatewayConfig{}, gateway.Options{})}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(tt.opts)
			w := httptest.NewRecorder()
			h.HealthReady(w, httptest.NewRequest(http.MethodGet, "/api/v1/health/ready", nil))
			if w.Code != http.StatusServiceUnavailable {
				t.Errorf("status = %d, want 503", w.Code)
			}
		})
	}
}

type stubHealth struct {
	healthy bool
	state   string
}

func (s stubHealth) Healthy() bool { return s.healthy }
func (s stubHealth) State() string { return s.state }

func TestAPIRequiresToken(t *testing.T) {
	s := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/presence", nil)
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token = %d, want 401", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/presence", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	w = httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("bad token = %d, want 401", w.Code)
	}
}

func TestPresenceEndpoints(t *testing.T) {
	s := newTestServer(t, nil)
	s.gw.Presence().Register("bob", "c2")
	s.gw.Presence().Register("alice", "c1")
	s.gw.Presence().Register("carol", "c3")
	s.gw.Presence().Disconnect("c3")

	code, resp := s.do(t, http.MethodGet, "/api/v1/presence", "alice")
	if code != http.StatusOK {
		t.Fatalf("list = %d", code)
	}
	var online []gateway.PresenceInfo
	decodeData(t, resp, &online)
	if len(online) != 2 || online[0].UserID != "alice" || online[1].UserID != "bob" {
		t.Errorf("online = %+v", online)
	}
	if resp.Meta.Count == nil || *resp.Meta.Count != 2 {
		t.Errorf("meta count = %v", resp.Meta.Count)
	}

	tests := []struct {
		user       string
		wantStatus gateway.PresenceStatus
		wantSeen   bool
	}{
		{"alice", gateway.PresenceOnline, false},
		{"carol", gateway.PresenceOffline, true},
		{"nobody", gateway.PresenceOffline, false},
	}
	for _, tt := range tests {
		code, resp := s.do(t, http.MethodGet, "/api/v1/presence/"+tt.user, "alice")
		if code != http.StatusOK {
			t.Fatalf("get %s = %d", tt.user, code)
		}
		var info gateway.PresenceInfo
		decodeData(t, resp, &info)
		if info.Status != tt.wantStatus || (info.LastSeen != nil) != tt.wantSeen {
			t.Errorf("%s = %+v", tt.user, info)
		}
	}

	code, _ = s.do(t, http.MethodGet, "/api/v1/presence/"+strings.Repeat("u", 129), "alice")
	if code != http.StatusBadRequest {
		t.Errorf("overlong user id = %d, want 400", code)
	}
}

func TestRoomMessages(t *testing.T) {
	s := newTestServer(t, nil)
	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		if _, err := s.store.SaveMessage(ctx, storage.Message{RoomID: "general", SenderID: "alice", Content: fmt.Sprintf("m%d", i)}); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		query string
		want  string
	}{
		{"", "m3,m4,m5"},
		{"?limit=2", "m4,m5"},
		{"?limit=50", "m3,m4,m5"},
		{"?limit=0", "m3,m4,m5"},
		{"?limit=abc", "m3,m4,m5"},
	}
	for _, tt := range tests {
		code, resp := s.do(t, http.MethodGet, "/api/v1/rooms/general/messages"+tt.query, "bob")
		if code != http.StatusOK {
			t.Fatalf("%s: status %d", tt.query, code)
		}
		var msgs []storage.Message
		decodeData(t, resp, &msgs)
		got := make([]string, len(msgs))
		for i, m := range msgs {
			got[i] = m.Content
		}
		if strings.Join(got, ",") != tt.want {
			t.Errorf("limit %q = %v, want %s", tt.query, got, tt.want)
		}
	}

	code, resp := s.do(t, http.MethodGet, "/api/v1/rooms/empty/messages", "bob")
	var msgs []storage.Message
	decodeData(t, resp, &msgs)
	if code != http.StatusOK || len(msgs) != 0 {
		t.Errorf("empty room = %d %v", code, msgs)
	}
}

func TestRoomPins(t *testing.T) {
	s := newTestServer(t, nil)
	if _, err := s.store.PinMessage(context.Background(), "general", "m1"); err != nil {
		t.Fatal(err)
	}

	code, resp := s.do(t, http.MethodGet, "/api/v1/rooms/general/pins", "bob")
	if code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	var pins []string
	decodeData(t, resp, &pins)
	if len(pins) != 1 || pins[0] != "m1" {
		t.Errorf("pins = %v", pins)
	}
}

func TestRoomRoles(t *testing.T) {
	s := newTestServer(t, nil)
	path := "/api/v1/rooms/general/roles/"

	code, _ := s.do(t, http.MethodPut, path+"alice/owner", "mallory")
	if code != http.StatusForbidden {
		t.Fatalf("grant by stranger = %d, want 403", code)
	}

	code, resp := s.do(t, http.MethodPut, path+"alice/owner", "root")
	if code != http.StatusOK {
		t.Fatalf("grant by admin = %d %+v", code, resp.Error)
	}
	var assigned RoleAssignment
	decodeData(t, resp, &assigned)
	if !assigned.Changed || strings.Join(assigned.Roles, ",") != "owner" {
		t.Errorf("assignment = %+v", assigned)
	}

	code, resp = s.do(t, http.MethodPut, path+"bob/moderator", "alice")
	if code != http.StatusOK {
		t.Fatalf("grant by owner = %d %+v", code, resp.Error)
	}
	allowed, err := s.enforcer.IsAllowed(context.Background(), "bob", "general", authz.ActionPin)
	if err != nil || !allowed {
		t.Errorf("bob pin after moderator grant = %v, %v", allowed, err)
	}

	code, _ = s.do(t, http.MethodPut, path+"carol/moderator", "bob")
	if code != http.StatusForbidden {
		t.Errorf("grant by moderator = %d, want 403", code)
	}

	code, _ = s.do(t, http.MethodPut, path+"carol/admin", "root")
	if code != http.StatusBadRequest {
		t.Errorf("grant admin via room = %d, want 400", code)
	}

	code, resp = s.do(t, http.MethodGet, path+"bob", "carol")
	decodeData(t, resp, &assigned)
	if code != http.StatusOK || strings.Join(assigned.Roles, ",") != "moderator" {
		t.Errorf("roles of bob = %d %+v", code, assigned)
	}

	code, resp = s.do(t, http.MethodDelete, path+"bob/moderator", "alice")
	decodeData(t, resp, &assigned)
	if code != http.StatusOK || !assigned.Changed || len(assigned.Roles) != 0 {
		t.Errorf("revoke = %d %+v", code, assigned)
	}
	code, resp = s.do(t, http.MethodDelete, path+"bob/moderator", "alice")
	decodeData(t, resp, &assigned)
	if code != http.StatusOK || assigned.Changed {
		t.Errorf("second revoke = %d %+v, want unchanged", code, assigned)
	}
}

func TestAPIRateLimit(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) {
		c.Security.RateLimitReqs = 2
	})

	var codes []int
	for i := 0; i < 3; i++ {
		code, _ := s.do(t, http.MethodGet, "/api/v1/presence", "alice")
		codes = append(codes, code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("codes = %v, want [200 200 429]", codes)
	}

	code, _ := s.do(t, http.MethodGet, "/api/v1/health/live", "")
	if code != http.StatusOK {
		t.Errorf("health is not rate limited, got %d", code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, nil)
	s.do(t, http.MethodGet, "/api/v1/presence", "alice")

	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("metrics = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "huddle_") {
		t.Error("metrics output should contain huddle_ series")
	}
}

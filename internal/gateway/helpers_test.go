// Huddle - Realtime Chat and Call Signaling Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/huddle/internal/audit"
	"github.com/tomtom215/huddle/internal/auth"
	"github.com/tomtom215/huddle/internal/config"
	"github.com/tomtom215/huddle/internal/logging"
	"github.com/tomtom215/huddle/internal/storage"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{Level: "error", Format: "json", Output: io.Discard})
}

var t0 = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fakeStore records calls and can be told to fail.
type fakeStore struct {
	mu         sync.Mutex
	seq        int
	saved      []storage.Message
	last       map[string]string
	pins       map[string][]string
	statuses   []statusCall
	failSave   error
	failPins   error
	failStatus error
}

type statusCall struct {
	roomID, messageID, readerID string
	status                      storage.Status
}

func newFakeStore() *fakeStore {
	return &fakeStore{last: map[string]string{}, pins: map[string][]string{}}
}

func (s *fakeStore) SaveMessage(_ context.Context, msg storage.Message) (storage.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSave != nil {
		return storage.Message{}, s.failSave
	}
	s.seq++
	msg.ID = fmt.Sprintf("m%d", s.seq)
	msg.Timestamp = t0
	msg.Status = storage.StatusSent
	s.saved = append(s.saved, msg)
	return msg, nil
}

func (s *fakeStore) SetLastMessage(_ context.Context, roomID, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last[roomID] = messageID
	return nil
}

func (s *fakeStore) PinMessage(_ context.Context, roomID, messageID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failPins != nil {
		return nil, s.failPins
	}
	if !slices.Contains(s.pins[roomID], messageID) {
		s.pins[roomID] = append(s.pins[roomID], messageID)
	}
	return slices.Clone(s.pins[roomID]), nil
}

func (s *fakeStore) UnpinMessage(_ context.Context, roomID, messageID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failPins != nil {
		return nil, s.failPins
	}
	s.pins[roomID] = slices.DeleteFunc(s.pins[roomID], func(id string) bool { return id == messageID })
	if len(s.pins[roomID]) == 0 {
		delete(s.pins, roomID)
		return []string{}, nil
	}
	return slices.Clone(s.pins[roomID]), nil
}

func (s *fakeStore) UpdateStatus(_ context.Context, roomID, messageID string, status storage.Status, readerID string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, statusCall{roomID: roomID, messageID: messageID, readerID: readerID, status: status})
	return s.failStatus
}

func (s *fakeStore) savedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saved)
}

// fakeResolver allows (user, room, action) triples listed in allow.
type fakeResolver struct {
	allow map[string]bool
	err   error
}

func (r *fakeResolver) IsAllowed(_ context.Context, userID, roomID, action string) (bool, error) {
	if r.err != nil {
		return false, r.err
	}
	return r.allow[userID+"|"+roomID+"|"+action], nil
}

type publishedEvent struct {
	topic   string
	payload interface{}
}

type fakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *fakePublisher) Publish(_ context.Context, topic string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{topic, payload})
	return nil
}

func (p *fakePublisher) topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.topic
	}
	return out
}

// fakeAuditor records audited actions as "kind|user|room|action|target|conn".
type fakeAuditor struct {
	mu      sync.Mutex
	records []string
}

func (a *fakeAuditor) LogAuthzDenied(_ context.Context, actorID, roomID, action string, source audit.Source) {
	a.add("denied|" + actorID + "|" + roomID + "|" + action + "||" + source.ConnectionID)
}

func (a *fakeAuditor) LogRoomAction(_ context.Context, actorID, roomID, action, targetID string, source audit.Source) {
	a.add("action|" + actorID + "|" + roomID + "|" + action + "|" + targetID + "|" + source.ConnectionID)
}

func (a *fakeAuditor) add(r string) {
	a.mu.Lock()
	a.records = append(a.records, r)
	a.mu.Unlock()
}

func (a *fakeAuditor) all() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.records)
}

type testEnv struct {
	gw       *Gateway
	store    *fakeStore
	resolver *fakeResolver
	events   *fakePublisher
	audit    *fakeAuditor
	clock    *fakeClock
}

func testGatewayConfig() config.GatewayConfig {
	return config.GatewayConfig{
		SendBuffer:     64,
		MaxMessageSize: 64 * 1024,
		WriteWait:      time.Second,
		PongWait:       5 * time.Second,
		PersistTimeout: time.Second,
	}
}

func newTestEnv(t *testing.T, mode string) *testEnv {
	t.Helper()
	env := &testEnv{
		store:    newFakeStore(),
		resolver: &fakeResolver{allow: map[string]bool{}},
		events:   &fakePublisher{},
		audit:    &fakeAuditor{},
		clock:    &fakeClock{now: t0},
	}
	env.gw = New(testGatewayConfig(), Options{
		Store:       env.store,
		Permissions: env.resolver,
		Events:      env.events,
		Audit:       env.audit,
		AuthMode:    mode,
		Clock:       env.clock.Now,
	})
	return env
}

// connect attaches a client without a socket and discards connection:ready.
// A non-empty userID is bound as a verified identity.
func (e *testEnv) connect(t *testing.T, userID string) *Client {
	t.Helper()
	c := NewClient(e.gw, nil, auth.Identity{UserID: userID, Verified: userID != "" && e.gw.authMode == auth.ModeJWT})
	e.gw.attach(c)
	expect(t, c, EventConnectionReady)
	return c
}

// online connects userID and announces it, draining the caller's queue.
func (e *testEnv) online(t *testing.T, userID string) *Client {
	t.Helper()
	c := e.connect(t, userID)
	if err := e.gw.Announce(context.Background(), c, userID); err != nil {
		t.Fatalf("Announce(%s): %v", userID, err)
	}
	return c
}

func (e *testEnv) allow(userID, roomID, action string) {
	e.resolver.allow[userID+"|"+roomID+"|"+action] = true
}

// expect returns the next queued message and fails unless it has type typ.
func expect(t *testing.T, c *Client, typ string) Message {
	t.Helper()
	select {
	case msg, ok := <-c.send:
		if !ok {
			t.Fatalf("conn %s: queue closed, wanted %s", c.id, typ)
		}
		if msg.Type != typ {
			t.Fatalf("conn %s: got %s (%+v), want %s", c.id, msg.Type, msg.Data, typ)
		}
		return msg
	case <-time.After(time.Second):
		t.Fatalf("conn %s: no %s received", c.id, typ)
	}
	return Message{}
}

// expectNone fails if anything is queued for c.
func expectNone(t *testing.T, c *Client) {
	t.Helper()
	select {
	case msg, ok := <-c.send:
		if ok {
			t.Fatalf("conn %s: unexpected %s (%+v)", c.id, msg.Type, msg.Data)
		}
	default:
	}
}

// drain discards everything queued for the given clients.
func drain(clients ...*Client) {
	for _, c := range clients {
		drainOne(c)
	}
}

func drainOne(c *Client) {
	for {
		select {
		case _, ok := <-c.send:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

var errDiskFull = errors.New("disk full")

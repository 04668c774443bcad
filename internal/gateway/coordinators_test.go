// Huddle - Realtime Chat and Call Signaling Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

package gateway

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/tomtom215/huddle/internal/auth"
	"github.com/tomtom215/huddle/internal/authz"
	"github.com/tomtom215/huddle/internal/events"
)

func TestSetTyping_ExcludesSender(t *testing.T) {
	env := newTestEnv(t, auth.ModeJWT)
	alice := env.connect(t, "alice")
	bob := env.connect(t, "bob")
	env.gw.JoinRoom(alice, "r")
	env.gw.JoinRoom(bob, "r")

	for _, typing := range []bool{true, false} {
		if err := env.gw.SetTyping(alice, "r", typing); err != nil {
			t.Fatal(err)
		}
		data := expect(t, bob, EventTypingStatus).Data.(TypingStatusData)
		if data.UserID != "alice" || data.IsTyping != typing {
			t.Errorf("typing data = %+v, want alice %v", data, typing)
		}
		expectNone(t, alice)
	}
}

func TestSetPin_Idempotent(t *testing.T) {
	env := newTestEnv(t, auth.ModeJWT)
	ctx := context.Background()
	alice := env.connect(t, "alice")
	bob := env.connect(t, "bob")
	env.gw.JoinRoom(alice, "r")
	env.gw.JoinRoom(bob, "r")
	env.allow("alice", "r", authz.ActionPin)
	env.allow("alice", "r", authz.ActionUnpin)

	steps := []struct {
		action   string
		wantPins string
	}{
		{PinActionPin, "m1"},
		{PinActionPin, "m1"},
		{PinActionUnpin, ""},
		{PinActionUnpin, ""},
	}
	for i, step := range steps {
		if err := env.gw.SetPin(ctx, alice, "r", "m1", step.action); err != nil {
			t.Fatalf("step %d %s: %v", i, step.action, err)
		}
		data := expect(t, bob, EventRoomUpdate).Data.(RoomUpdateData)
		if data.Type != RoomUpdatePinType || data.Action != step.action || data.MessageID != "m1" {
			t.Errorf("step %d: room:update = %+v", i, data)
		}
		if got := strings.Join(data.PinnedMessages, ","); got != step.wantPins {
			t.Errorf("step %d: pinnedMessages = %q, want %q", i, got, step.wantPins)
		}
		if data.PinnedMessages == nil {
			t.Errorf("step %d: pinnedMessages is nil", i)
		}
		reply := expect(t, alice, EventRoomUpdate).Data.(RoomUpdateData)
		if reply.Action != step.action || strings.Join(reply.PinnedMessages, ",") != step.wantPins {
			t.Errorf("step %d: reply to requester = %+v", i, reply)
		}
		expectNone(t, alice)
	}

	var pinned int
	for _, topic := range env.events.topics() {
		if topic == events.TopicMessagePinned {
			pinned++
		}
	}
	if pinned != len(steps) {
		t.Errorf("published %d pin events, want %d", pinned, len(steps))
	}
}

func TestSetPin_RequesterOutsideRoomGetsReply(t *testing.T) {
	env := newTestEnv(t, auth.ModeJWT)
	alice := env.connect(t, "alice")
	env.allow("alice", "r", authz.ActionPin)

	if err := env.gw.SetPin(context.Background(), alice, "r", "m1", PinActionPin); err != nil {
		t.Fatal(err)
	}
	reply := expect(t, alice, EventRoomUpdate).Data.(RoomUpdateData)
	if reply.RoomID != "r" || reply.MessageID != "m1" || strings.Join(reply.PinnedMessages, ",") != "m1" {
		t.Errorf("reply = %+v", reply)
	}
	expectNone(t, alice)
}

func TestSetPin_PermissionDenied(t *testing.T) {
	tests := []struct {
		name     string
		resolver PermissionResolver
	}{
		{name: "not allowed", resolver: &fakeResolver{allow: map[string]bool{}}},
		{name: "resolver error", resolver: &fakeResolver{err: errors.New("policy store down")}},
		{name: "no resolver"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, auth.ModeJWT)
			env.gw.perms = tt.resolver
			alice := env.connect(t, "alice")
			bob := env.connect(t, "bob")
			env.gw.JoinRoom(bob, "r")

			err := env.gw.SetPin(context.Background(), alice, "r", "m1", PinActionPin)
			if !errors.Is(err, ErrPermissionDenied) {
				t.Fatalf("err = %v, want permission denied", err)
			}
			expectNone(t, bob)
			if len(env.store.pins) != 0 {
				t.Errorf("pins changed: %v", env.store.pins)
			}
		})
	}
}

func TestSetPin_Audited(t *testing.T) {
	env := newTestEnv(t, auth.ModeJWT)
	ctx := context.Background()
	alice := env.connect(t, "alice")
	bob := env.connect(t, "bob")
	env.allow("alice", "r", authz.ActionPin)

	if err := env.gw.SetPin(ctx, alice, "r", "m1", PinActionPin); err != nil {
		t.Fatal(err)
	}
	if err := env.gw.SetPin(ctx, bob, "r", "m1", PinActionUnpin); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("unpin by bob = %v, want denied", err)
	}

	want := []string{
		"action|alice|r|pin|m1|" + alice.id,
		"denied|bob|r|unpin||" + bob.id,
	}
	if got := env.audit.all(); strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Errorf("audit records = %q, want %q", got, want)
	}
}

func TestSetPin_UnpinNeedsUnpinPermission(t *testing.T) {
	env := newTestEnv(t, auth.ModeJWT)
	alice := env.connect(t, "alice")
	env.allow("alice", "r", authz.ActionPin)

	if err := env.gw.SetPin(context.Background(), alice, "r", "m1", PinActionUnpin); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("unpin with only pin permission = %v, want denied", err)
	}
}

func TestSetPin_StoreFailure(t *testing.T) {
	env := newTestEnv(t, auth.ModeJWT)
	env.store.failPins = errDiskFull
	alice := env.connect(t, "alice")
	bob := env.connect(t, "bob")
	env.gw.JoinRoom(bob, "r")
	env.allow("alice", "r", authz.ActionPin)

	err := env.gw.SetPin(context.Background(), alice, "r", "m1", PinActionPin)
	if !errors.Is(err, ErrPersistenceFailure) {
		t.Fatalf("err = %v, want persistence failure", err)
	}
	expectNone(t, bob)
}

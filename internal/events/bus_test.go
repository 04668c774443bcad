// Huddle - Realtime Chat and Call Signaling Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

package events

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/huddle/internal/config"
	"github.com/tomtom215/huddle/internal/logging"
)

func init() {
	logging.Init(logging.Config{Level: "error", Format: "json", Output: io.Discard})
}

func newTestBus(t *testing.T) *Bus {
	t.Helper()
	b, err := NewBus(config.EventsConfig{Enabled: true, Backend: BackendGoChannel, TopicPrefix: "huddle"}, logging.NewWatermillLogger())
	if err != nil {
		t.Fatalf("NewBus: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestBusPublishSubscribe(t *testing.T) {
	b := newTestBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgs, err := b.Subscribe(ctx, TopicCallEnded)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	want := CallEnded{RoomID: "r1", EndedBy: "alice", Participants: 3, At: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	if err := b.Publish(ctx, TopicCallEnded, want); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case msg := <-msgs:
		msg.Ack()
		var got CallEnded
		if err := json.Unmarshal(msg.Payload, &got); err != nil {
			t.Fatal(err)
		}
		if got.RoomID != want.RoomID || got.EndedBy != want.EndedBy || got.Participants != 3 || !got.At.Equal(want.At) {
			t.Errorf("payload = %+v, want %+v", got, want)
		}
		if msg.Metadata.Get("topic") != TopicCallEnded {
			t.Errorf("topic metadata = %q", msg.Metadata.Get("topic"))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}
}

func TestBusTopicPrefix(t *testing.T) {
	tests := []struct {
		prefix string
		want   string
	}{
		{"huddle", "huddle.message.created"},
		{"", "message.created"},
	}
	for _, tt := range tests {
		b := &Bus{prefix: tt.prefix}
		if got := b.Topic(TopicMessageCreated); got != tt.want {
			t.Errorf("Topic with prefix %q = %q, want %q", tt.prefix, got, tt.want)
		}
	}
}

func TestBusClosed(t *testing.T) {
	b := newTestBus(t)
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
	if err := b.Close(); err != nil {
		t.Errorf("second Close = %v, want nil", err)
	}
	if err := b.Publish(context.Background(), TopicMessagePinned, PinChanged{}); !errors.Is(err, ErrClosed) {
		t.Errorf("Publish after Close = %v, want ErrClosed", err)
	}
}

func TestNewBusUnknownBackend(t *testing.T) {
	if _, err := NewBus(config.EventsConfig{Backend: "kafka"}, nil); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestServeClosesOnCancel(t *testing.T) {
	b := newTestBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Serve(ctx) }()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
	if err := b.Publish(context.Background(), TopicCallEnded, CallEnded{}); !errors.Is(err, ErrClosed) {
		t.Errorf("Publish after Serve = %v, want ErrClosed", err)
	}
}

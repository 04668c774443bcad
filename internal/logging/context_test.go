// Huddle - Realtime Chat and Call Signaling Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestGenerateCorrelationID(t *testing.T) {
	t.Parallel()

	a := GenerateCorrelationID()
	b := GenerateCorrelationID()
	if len(a) != 8 {
		t.Errorf("expected 8 characters, got %d", len(a))
	}
	if a == b {
		t.Error("expected distinct correlation ids")
	}
}

func TestContextIDs(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	if CorrelationIDFromContext(ctx) != "" || RequestIDFromContext(ctx) != "" || ConnectionIDFromContext(ctx) != "" {
		t.Fatal("empty context should carry no ids")
	}

	ctx = ContextWithCorrelationID(ctx, "corr1234")
	ctx = ContextWithRequestID(ctx, "req-1")
	ctx = ContextWithConnectionID(ctx, "conn-1")

	if got := CorrelationIDFromContext(ctx); got != "corr1234" {
		t.Errorf("correlation id = %q", got)
	}
	if got := RequestIDFromContext(ctx); got != "req-1" {
		t.Errorf("request id = %q", got)
	}
	if got := ConnectionIDFromContext(ctx); got != "conn-1" {
		t.Errorf("connection id = %q", got)
	}
}

func TestCtx(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(NewTestLogger(&buf))
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	ctx := ContextWithConnectionID(ContextWithCorrelationID(context.Background(), "abcd1234"), "c-9")
	Ctx(ctx).Info().Msg("event handled")

	out := buf.String()
	for _, want := range []string{`"correlation_id":"abcd1234"`, `"conn_id":"c-9"`, "event handled"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in output: %s", want, out)
		}
	}
	if strings.Contains(out, "request_id") {
		t.Errorf("request_id should be omitted when absent: %s", out)
	}
}

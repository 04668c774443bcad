// Huddle - Realtime Chat and Call Signaling Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

package peer

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/goccy/go-json"
)

func newTestMesh() (*Mesh, *fakeSignaler, *pcRecorder) {
	sig := &fakeSignaler{}
	rec := &pcRecorder{}
	return NewMesh(sig, rec.factory), sig, rec
}

func rawSignal(t *testing.T, sig Signal) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(sig)
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

func TestMesh_ExistingUsersWaitsForOffers(t *testing.T) {
	m, sig, rec := newTestMesh()
	m.HandleExistingUsers([]string{"c1", "c2"})

	if rec.count() != 0 || len(sig.all()) != 0 {
		t.Errorf("joiner must not initiate: built %d sent %d", rec.count(), len(sig.all()))
	}
	if got := m.ParticipantCount(); got != 3 {
		t.Errorf("ParticipantCount = %d, want 3", got)
	}
	if len(m.Peers()) != 0 {
		t.Errorf("Peers = %v, want none", m.Peers())
	}
}

func TestMesh_UserJoinedOffers(t *testing.T) {
	m, sig, _ := newTestMesh()
	if err := m.HandleUserJoined(context.Background(), "c9"); err != nil {
		t.Fatal(err)
	}
	got := sig.last(t)
	if got.to != "c9" || got.sig.Type != SignalOffer {
		t.Errorf("sent %+v, want offer to c9", got)
	}
	p, ok := m.Peer("c9")
	if !ok || p.State() != StateOffered {
		t.Errorf("peer c9 = %v %v", ok, p)
	}
	if m.ParticipantCount() != 2 {
		t.Errorf("ParticipantCount = %d, want 2", m.ParticipantCount())
	}
}

func TestMesh_UserJoinedFactoryErrorDropsPeer(t *testing.T) {
	sig := &fakeSignaler{}
	rec := &pcRecorder{err: errors.New("no codecs")}
	m := NewMesh(sig, rec.factory)
	if err := m.HandleUserJoined(context.Background(), "c9"); err == nil {
		t.Fatal("expected error")
	}
	if _, ok := m.Peer("c9"); ok {
		t.Error("failed peer should be removed")
	}
}

func TestMesh_FullHandshakeBetweenTwoMeshes(t *testing.T) {
	ctx := context.Background()
	a, sigA, _ := newTestMesh() // already in the room as c1
	b, sigB, _ := newTestMesh() // joins as c2

	b.HandleExistingUsers([]string{"c1"})
	if err := a.HandleUserJoined(ctx, "c2"); err != nil {
		t.Fatal(err)
	}

	offer := sigA.last(t)
	if err := b.HandleSignal(ctx, "c1", rawSignal(t, offer.sig)); err != nil {
		t.Fatalf("b handles offer: %v", err)
	}
	answer := sigB.last(t)
	if answer.to != "c1" || answer.sig.Type != SignalAnswer {
		t.Fatalf("answer = %+v", answer)
	}
	if err := a.HandleSignal(ctx, "c2", rawSignal(t, answer.sig)); err != nil {
		t.Fatalf("a handles answer: %v", err)
	}

	pa, _ := a.Peer("c2")
	pb, _ := b.Peer("c1")
	if pa.State() != StateAnswered || pb.State() != StateAnswered {
		t.Errorf("states = %s / %s", pa.State(), pb.State())
	}
}

func TestMesh_LazyPeerOnEarlyCandidate(t *testing.T) {
	ctx := context.Background()
	m, _, rec := newTestMesh()

	err := m.HandleSignal(ctx, "c1", rawSignal(t, Signal{Type: SignalCandidate, Candidate: candidate("candidate:1")}))
	if err != nil {
		t.Fatal(err)
	}
	p, ok := m.Peer("c1")
	if !ok {
		t.Fatal("peer should be created lazily")
	}
	if p.PendingCandidates() != 1 || rec.count() != 1 {
		t.Errorf("pending = %d built = %d", p.PendingCandidates(), rec.count())
	}
}

func TestMesh_SignalErrors(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name    string
		raw     string
		wantErr error
	}{
		{"answer from unknown connection", `{"type":"answer","sdp":"v=0"}`, ErrUnexpectedSignal},
		{"unknown type", `{"type":"bye"}`, ErrUnknownSignal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _, rec := newTestMesh()
			err := m.HandleSignal(ctx, "c1", json.RawMessage(tt.raw))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
			if rec.count() != 0 {
				t.Errorf("no connection should be built")
			}
		})
	}
}

func TestMesh_UserLeftClosesPeer(t *testing.T) {
	ctx := context.Background()
	m, _, rec := newTestMesh()
	_ = m.HandleUserJoined(ctx, "c1")
	_ = m.HandleUserJoined(ctx, "c2")

	m.HandleUserLeft("c1")
	if !reflect.DeepEqual(m.Peers(), []string{"c2"}) {
		t.Errorf("Peers = %v, want [c2]", m.Peers())
	}
	if !rec.get(t, 0).isClosed() {
		t.Error("c1 connection should be closed")
	}
	if m.ParticipantCount() != 2 {
		t.Errorf("ParticipantCount = %d, want 2", m.ParticipantCount())
	}

	// Unknown ids are ignored.
	m.HandleUserLeft("c404")
}

func TestMesh_RejoinAfterLeaveBuildsNewPeer(t *testing.T) {
	ctx := context.Background()
	m, _, rec := newTestMesh()
	_ = m.HandleUserJoined(ctx, "c1")
	m.HandleUserLeft("c1")
	if err := m.HandleUserJoined(ctx, "c1"); err != nil {
		t.Fatal(err)
	}
	if rec.count() != 2 {
		t.Errorf("built %d connections, want 2", rec.count())
	}
}

func TestMesh_EndedClosesEverything(t *testing.T) {
	ctx := context.Background()
	m, _, rec := newTestMesh()
	m.HandleExistingUsers([]string{"c5"})
	_ = m.HandleUserJoined(ctx, "c1")
	_ = m.HandleSignal(ctx, "c2", rawSignal(t, Signal{Type: SignalOffer, SDP: "v=0"}))

	m.HandleEnded()
	if len(m.Peers()) != 0 {
		t.Errorf("Peers = %v, want none", m.Peers())
	}
	if m.ParticipantCount() != 1 {
		t.Errorf("ParticipantCount = %d, want 1", m.ParticipantCount())
	}
	for i := 0; i < rec.count(); i++ {
		if !rec.get(t, i).isClosed() {
			t.Errorf("connection %d not closed", i)
		}
	}
}

// Huddle - Realtime Chat and Call Signaling Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

package peer

// State is the local negotiation state of one peer connection.
type State int

const (
	StateIdle State = iota
	StateOffering
	StateOffered
	StateAnswering
	StateAnswered
	StateConnected
	StateClosed
)

var stateNames = [...]string{
	StateIdle:      "idle",
	StateOffering:  "offering",
	StateOffered:   "offered",
	StateAnswering: "answering",
	StateAnswered:  "answered",
	StateConnected: "connected",
	StateClosed:    "closed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Offerers walk Idle, Offering, Offered, Answered. Answerers walk Idle,
// Answering, Answered. Every state except Closed may close.
var transitions = map[State][]State{
	StateIdle:      {StateOffering, StateAnswering, StateClosed},
	StateOffering:  {StateOffered, StateClosed},
	StateOffered:   {StateAnswered, StateClosed},
	StateAnswering: {StateAnswered, StateClosed},
	StateAnswered:  {StateConnected, StateClosed},
	StateConnected: {StateClosed},
}

// CanTransition reports whether to is a legal next state.
func (s State) CanTransition(to State) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

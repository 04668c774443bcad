// Huddle - Realtime Chat and Call Signaling Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

package api

import (
	"net/http"
	"time"
)

// HealthLive returns 200 while the process is running.
//
// @Summary Liveness probe
// @Tags Core
// @Success 200 {object} APIResponse "Service is alive"
// @Router /health/live [get]
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(map[string]interface{}{
		"alive":  true,
		"uptime": time.Since(h.startTime).Seconds(),
	})
}

// ReadyStatus is the readiness report.
type ReadyStatus struct {
	Ready        bool   `json:"ready"`
	Gateway      bool   `json:"gateway"`
	Storage      bool   `json:"storage"`
	BreakerState string `json:"breakerState,omitempty"`
	Connections  int    `json:"connections"`
	Online       int    `json:"online"`
	ChatRooms    int    `json:"chatRooms"`
	ActiveCalls  int    `json:"activeCalls"`
}

// HealthReady returns 200 when the gateway is running and storage is
// usable, 503 otherwise. An open breaker makes the service not ready.
//
// @Summary Readiness probe
// @Tags Core
// @Success 200 {object} APIResponse{data=ReadyStatus} "Service is ready"
// @Failure 503 {object} APIResponse "Service is not ready"
// @Router /health/ready [get]
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	status := ReadyStatus{Gateway: h.gw != nil}
	if h.gw != nil {
		status.Connections = h.gw.ClientCount()
		status.Online = h.gw.Presence().Count()
		status.ChatRooms = h.gw.ChatRooms().Count()
		status.ActiveCalls = h.gw.CallRooms().Count()
	}
	if h.storeHealth != nil {
		status.Storage = h.storeHealth.Healthy()
		status.BreakerState = h.storeHealth.State()
	}
	status.Ready = status.Gateway && status.Storage

	rw := NewResponseWriter(w, r)
	if !status.Ready {
		rw.ErrorWithDetails(http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "not ready", status)
		return
	}
	rw.Success(status)
}

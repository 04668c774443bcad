// Huddle - Realtime Chat and Call Signaling Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/huddle/internal/metrics"
)

func TestPrometheusMetrics_UsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(PrometheusMetrics)
	r.Get("/api/v1/rooms/{roomID}/pins", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	counter := metrics.APIRequestsTotal.WithLabelValues(http.MethodGet, "/api/v1/rooms/{roomID}/pins", "404")
	before := testutil.ToFloat64(counter)

	for _, room := range []string{"r1", "r2", "r3"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/rooms/"+room+"/pins", nil))
		if rec.Code != http.StatusNotFound {
			t.Fatalf("Expected status 404, got %d", rec.Code)
		}
	}

	if got := testutil.ToFloat64(counter); got != before+3 {
		t.Errorf("Expected 3 requests under one route label, got %v", got-before)
	}
}

func TestPrometheusMetrics_DefaultStatus(t *testing.T) {
	handler := PrometheusMetrics(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))

	counter := metrics.APIRequestsTotal.WithLabelValues(http.MethodGet, "/plain", "200")
	before := testutil.ToFloat64(counter)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/plain", nil))

	if got := testutil.ToFloat64(counter); got != before+1 {
		t.Errorf("Expected one 200 request recorded, got %v", got-before)
	}
}

// Huddle - Realtime Chat and Call Signaling Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/huddle/internal/auth"
	"github.com/tomtom215/huddle/internal/middleware"
)

// Router wires handlers and middleware into a chi router.
type Router struct {
	handler       *Handler
	authn         auth.Authenticator
	chiMiddleware *ChiMiddleware
}

// NewRouter creates a router. A nil ChiMiddleware uses the defaults.
func NewRouter(handler *Handler, authn auth.Authenticator, mw *ChiMiddleware) *Router {
	if mw == nil {
		mw = NewChiMiddleware(nil)
	}
	return &Router{handler: handler, authn: authn, chiMiddleware: mw}
}

// SetupChi builds the route table.
func (router *Router) SetupChi() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMiddleware.CORS())

	// The upgrade authenticates itself and must not pass through writers
	// that hide http.Hijacker.
	r.Get("/ws", router.handler.WebSocket)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/health", func(r chi.Router) {
		r.Get("/live", router.handler.HealthLive)
		r.Get("/ready", router.handler.HealthReady)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimit())
		r.Use(middleware.PrometheusMetrics)
		if router.authn != nil {
			r.Use(auth.Middleware(router.authn))
		}

		r.Get("/presence", router.handler.PresenceList)
		r.Get("/presence/{userID}", router.handler.PresenceGet)

		r.Route("/rooms/{roomID}", func(r chi.Router) {
			r.Get("/messages", router.handler.RoomMessages)
			r.Get("/pins", router.handler.RoomPins)
			r.Get("/roles/{userID}", router.handler.RoomRoles)
			r.Put("/roles/{userID}/{role}", router.handler.GrantRoomRole)
			r.Delete("/roles/{userID}/{role}", router.handler.RevokeRoomRole)
		})

		r.Get("/audit", router.handler.AuditEvents)
	})

	return r
}

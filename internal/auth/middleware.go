// Huddle - Realtime Chat and Call Signaling Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

package auth

import (
	"net/http"

	"github.com/tomtom215/huddle/internal/logging"
)

// Middleware rejects requests whose identity cannot be resolved and stores
// the resolved Identity in the request context.
func Middleware(authn Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := authn.Authenticate(r)
			if err != nil {
				logging.Ctx(r.Context()).Debug().Err(err).Msg("request authentication failed")
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), id)))
		})
	}
}

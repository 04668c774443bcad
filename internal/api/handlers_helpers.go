// Huddle - Realtime Chat and Call Signaling Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/huddle/internal/validation"
)

// sanitizeLogValue strips control characters and truncates s so request
// data cannot forge log lines.
func sanitizeLogValue(s string) string {
	const maxLen = 200
	s = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
	if len(s) > maxLen {
		s = s[:maxLen] + "..."
	}
	return s
}

// getIntParam parses an integer query parameter, falling back to
// defaultValue when it is missing or invalid.
func getIntParam(r *http.Request, key string, defaultValue int) int {
	value := r.URL.Query().Get(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

// pathID returns the chi URL parameter name after validating it with tag.
// On failure a 400 has already been written.
func pathID(w http.ResponseWriter, r *http.Request, name, tag string) (string, bool) {
	id := chi.URLParam(r, name)
	if err := validation.ValidateVar(id, tag); err != nil {
		NewResponseWriter(w, r).ValidationError("invalid "+name, []string{name})
		return "", false
	}
	return id, true
}

// Huddle - Realtime Chat and Call Signaling Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

// Package authz is the permission resolver for privileged room actions.
//
// Decisions are made by a casbin RBAC model with room domains: a role is
// granted to a user within one room (owner of room r1) or globally (admin).
// The embedded policy maps roles to the actions below.
package authz

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"

	"github.com/tomtom215/huddle/internal/metrics"
)

//go:embed model.conf
var embeddedModel string

//go:embed policy.csv
var embeddedPolicy string

// Privileged actions.
const (
	ActionPin         = "pin"
	ActionUnpin       = "unpin"
	ActionCallEnd     = "call.end"
	ActionManageRoles = "roles.manage"
	ActionReadAudit   = "audit.read"
)

// ScopeGlobal is the room id used for checks not tied to a room. Only
// policies with a wildcard domain match it.
const ScopeGlobal = "*"

// Built-in roles.
const (
	RoleOwner     = "owner"
	RoleModerator = "moderator"
	RoleAdmin     = "admin"
)

// Config configures the enforcer.
type Config struct {
	// DefaultRole is evaluated for every user in addition to explicit grants.
	DefaultRole string

	// Admins receive the global admin role at startup.
	Admins []string

	CacheEnabled bool
	CacheTTL     time.Duration
}

// Enforcer answers isAllowed(userId, roomId, action).
type Enforcer struct {
	cfg      Config
	enforcer *casbin.SyncedEnforcer
	cache    *decisionCache
	reserved map[string]bool
}

// NewEnforcer builds an enforcer from the embedded model and policy.
func NewEnforcer(cfg Config) (*Enforcer, error) {
	m, err := model.NewModelFromString(embeddedModel)
	if err != nil {
		return nil, fmt.Errorf("failed to load casbin model: %w", err)
	}

	se, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("failed to create casbin enforcer: %w", err)
	}
	if err := loadEmbeddedPolicy(se, embeddedPolicy); err != nil {
		return nil, err
	}

	e := &Enforcer{
		cfg:      cfg,
		enforcer: se,
		reserved: map[string]bool{RoleOwner: true, RoleModerator: true, RoleAdmin: true},
	}
	if cfg.DefaultRole != "" {
		e.reserved[cfg.DefaultRole] = true
	}
	if cfg.CacheEnabled {
		e.cache = newDecisionCache(cfg.CacheTTL)
	}

	for _, admin := range cfg.Admins {
		if _, err := se.AddNamedGroupingPolicy("g2", admin, RoleAdmin); err != nil {
			return nil, fmt.Errorf("failed to grant admin to %s: %w", admin, err)
		}
	}
	return e, nil
}

// loadEmbeddedPolicy parses "p" (sub, dom, act), "g" (user, role, room) and
// "g2" (user, role) lines.
func loadEmbeddedPolicy(se *casbin.SyncedEnforcer, policy string) error {
	for _, line := range strings.Split(policy, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}

		var err error
		switch rule := parts[1:]; {
		case parts[0] == "p" && len(rule) == 3:
			_, err = se.AddPolicy(rule[0], rule[1], rule[2])
		case parts[0] == "g" && len(rule) == 3:
			_, err = se.AddGroupingPolicy(rule[0], rule[1], rule[2])
		case parts[0] == "g2" && len(rule) == 2:
			_, err = se.AddNamedGroupingPolicy("g2", rule[0], rule[1])
		default:
			return fmt.Errorf("malformed policy line %q", line)
		}
		if err != nil {
			return fmt.Errorf("failed to load policy line %q: %w", line, err)
		}
	}
	return nil
}

// IsAllowed reports whether userID may perform action in roomID.
//
// User ids that collide with a role name are always denied, since casbin
// treats a name as linked to itself.
func (e *Enforcer) IsAllowed(_ context.Context, userID, roomID, action string) (bool, error) {
	if userID == "" || e.reserved[userID] {
		metrics.RecordAuthzDecision(action, false, nil)
		return false, nil
	}

	allowed, err := e.enforce(userID, roomID, action)
	if err == nil && !allowed && e.cfg.DefaultRole != "" {
		allowed, err = e.enforce(e.cfg.DefaultRole, roomID, action)
	}
	metrics.RecordAuthzDecision(action, allowed, err)
	return allowed, err
}

func (e *Enforcer) enforce(sub, room, action string) (bool, error) {
	if e.cache != nil {
		if allowed, ok := e.cache.get(sub, room, action); ok {
			metrics.AuthzCacheHits.Inc()
			return allowed, nil
		}
		metrics.AuthzCacheMisses.Inc()
	}

	allowed, err := e.enforcer.Enforce(sub, room, action)
	if err != nil {
		return false, fmt.Errorf("enforcement failed: %w", err)
	}
	if e.cache != nil {
		e.cache.set(sub, room, action, allowed)
	}
	return allowed, nil
}

// GrantRole gives userID role within roomID.
func (e *Enforcer) GrantRole(userID, role, roomID string) (bool, error) {
	added, err := e.enforcer.AddGroupingPolicy(userID, role, roomID)
	if err != nil {
		return false, fmt.Errorf("failed to grant role: %w", err)
	}
	e.invalidate(userID)
	return added, nil
}

// RevokeRole removes role from userID within roomID.
func (e *Enforcer) RevokeRole(userID, role, roomID string) (bool, error) {
	removed, err := e.enforcer.RemoveGroupingPolicy(userID, role, roomID)
	if err != nil {
		return false, fmt.Errorf("failed to revoke role: %w", err)
	}
	e.invalidate(userID)
	return removed, nil
}

// RolesInRoom lists the roles userID holds in roomID, excluding global roles.
func (e *Enforcer) RolesInRoom(userID, roomID string) ([]string, error) {
	rules, err := e.enforcer.GetFilteredGroupingPolicy(0, userID, "", roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	roles := make([]string, 0, len(rules))
	for _, rule := range rules {
		roles = append(roles, rule[1])
	}
	return roles, nil
}

func (e *Enforcer) invalidate(userID string) {
	if e.cache != nil {
		e.cache.invalidateSubject(userID)
	}
}

// Close stops the cache janitor.
func (e *Enforcer) Close() {
	if e.cache != nil {
		e.cache.stop()
	}
}

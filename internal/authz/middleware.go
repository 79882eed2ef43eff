// Streetwatch - Community Activity Reporting and Moderation
// Copyright 2026 Streetwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streetwatch/streetwatch

package authz

import (
	"net/http"

	"github.com/streetwatch/streetwatch/internal/audit"
	"github.com/streetwatch/streetwatch/internal/auth"
	"github.com/streetwatch/streetwatch/internal/logging"
)

// Middleware gates routes on a capability. Anonymous requests get 401,
// authenticated-but-unauthorized get 403; neither response reveals
// whether the target resource exists.
type Middleware struct {
	enforcer *Enforcer
	audit    *audit.Logger
}

// NewMiddleware builds the capability gate.
func NewMiddleware(enforcer *Enforcer, auditLog *audit.Logger) *Middleware {
	return &Middleware{enforcer: enforcer, audit: auditLog}
}

// Require wraps next so it only runs when the authenticated caller
// holds the object/action capability. Denials are audit-logged.
func (m *Middleware) Require(object, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := auth.IdentityFromContext(r.Context())
			if id == nil {
				http.Error(w, "authentication required", http.StatusUnauthorized)
				return
			}

			allowed, err := m.enforcer.Allowed(id.Subject, id.Roles, object, action)
			if err != nil {
				logging.Ctx(r.Context()).Error().Err(err).Msg("Authorization check failed")
				http.Error(w, "internal server error", http.StatusInternalServerError)
				return
			}
			if !allowed {
				m.audit.LogAuthzDenied(r.Context(), audit.VerifierActor(id.Subject, id.Roles), object, action)
				http.Error(w, "insufficient permissions", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

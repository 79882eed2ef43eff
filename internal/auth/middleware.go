// Streetwatch - Community Activity Reporting and Moderation
// Copyright 2026 Streetwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streetwatch/streetwatch

package auth

import (
	"context"
	"net/http"
	"strings"
)

// Identity is the authenticated caller attached to the request context.
type Identity struct {
	Subject string
	Roles   []string
}

type contextKey struct{}

// ContextWithIdentity attaches an identity to the context. Exposed for
// handler tests.
func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// IdentityFromContext returns the authenticated identity, or nil for an
// anonymous request.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(contextKey{}).(*Identity)
	return id
}

// Middleware extracts and validates a Bearer token when present. A
// missing header leaves the request anonymous; an invalid token is
// rejected outright rather than downgraded, so a typo'd credential
// never silently becomes an anonymous request. Authorization decisions
// happen later, per route.
func Middleware(m *JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				http.Error(w, "malformed authorization header", http.StatusUnauthorized)
				return
			}
			claims, err := m.ValidateToken(token)
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			id := &Identity{Subject: claims.Subject, Roles: claims.Roles}
			next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), id)))
		})
	}
}

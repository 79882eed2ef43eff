// Streetwatch - Community Activity Reporting and Moderation
// Copyright 2026 Streetwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streetwatch/streetwatch

package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMiddlewareAttachesIdentity(t *testing.T) {
	t.Parallel()
	m := newManager(t)
	token, err := m.GenerateToken("mod-1", []string{"verifier"})
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	var got *Identity
	handler := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = IdentityFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got == nil || got.Subject != "mod-1" {
		t.Errorf("identity = %+v, want subject mod-1", got)
	}
}

func TestMiddlewareAllowsAnonymous(t *testing.T) {
	t.Parallel()
	m := newManager(t)

	var got *Identity
	called := false
	handler := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		got = IdentityFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if !called {
		t.Fatal("anonymous request blocked")
	}
	if got != nil {
		t.Errorf("identity = %+v, want nil for anonymous", got)
	}
}

func TestMiddlewareRejectsBadTokens(t *testing.T) {
	t.Parallel()
	m := newManager(t)
	handler := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler reached with a bad token")
	}))

	for _, header := range []string{"Bearer garbage", "Bearer ", "Basic dXNlcg=="} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", header)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("header %q: status = %d, want 401", header, rec.Code)
		}
	}
}

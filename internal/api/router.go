// Streetwatch - Community Activity Reporting and Moderation
// Copyright 2026 Streetwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streetwatch/streetwatch

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/streetwatch/streetwatch/internal/auth"
	"github.com/streetwatch/streetwatch/internal/authz"
	"github.com/streetwatch/streetwatch/internal/config"
	"github.com/streetwatch/streetwatch/internal/middleware"
)

// RouterConfig carries the middleware dependencies the router needs on
// top of the handlers.
type RouterConfig struct {
	JWT      *auth.JWTManager
	Authz    *authz.Middleware
	Security config.SecurityConfig
}

// NewRouter assembles the full route tree. The edge rate limit here is
// a crude per-IP flood guard in front of everything; the per-client
// daily submission quota lives in the ingestion pipeline where it can
// hash identities and audit rejections.
func NewRouter(h *Handlers, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.PrometheusMetrics)
	if len(cfg.Security.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.Security.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}
	edgeLimit := cfg.Security.EdgeRateLimit
	if edgeLimit <= 0 {
		edgeLimit = 100
	}
	edgeWindow := cfg.Security.EdgeRateWindow
	if edgeWindow <= 0 {
		edgeWindow = time.Minute
	}
	r.Use(httprate.LimitByIP(edgeLimit, edgeWindow))
	r.Use(auth.Middleware(cfg.JWT))

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Public surface.
		r.Get("/health/live", h.HealthLive)
		r.Get("/health/ready", h.HealthReady)
		r.Post("/reports", h.SubmitReport)
		r.Post("/reports/image", h.UploadImage)
		r.Get("/reports/verified", h.ListVerified)
		r.Get("/stats", h.GetStats)

		// Moderation surface.
		r.Group(func(r chi.Router) {
			r.Use(cfg.Authz.Require(authz.ObjectReports, authz.ActionModerate))
			r.Get("/reports/pending", h.ListPending)
			r.Post("/reports/{key}/verify", h.VerifyReport)
			r.Post("/reports/{key}/deny", h.DenyReport)
			r.Delete("/reports/{key}", h.DeletePendingReport)
		})

		r.Group(func(r chi.Router) {
			r.Use(cfg.Authz.Require(authz.ObjectAudit, authz.ActionRead))
			r.Get("/audit", h.GetAudit)
		})

		// Operator surface.
		r.Route("/admin", func(r chi.Router) {
			r.Use(cfg.Authz.Require(authz.ObjectMaintenance, authz.ActionRun))
			r.Post("/migrate/archive", h.RunMigration)
			r.Post("/stats/recalculate", h.RecomputeStats)
			r.Post("/consolidate", h.Consolidate)
			r.Post("/delete-since", h.DeleteSince)
		})
	})

	return r
}

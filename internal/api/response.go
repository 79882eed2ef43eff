// Streetwatch - Community Activity Reporting and Moderation
// Copyright 2026 Streetwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streetwatch/streetwatch

// Package api is the HTTP surface: public submission and map data,
// verifier moderation endpoints, and operator maintenance endpoints.
// Every response uses the same envelope; every error maps to a stable
// machine-readable code.
package api

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/streetwatch/streetwatch/internal/logging"
	"github.com/streetwatch/streetwatch/internal/models"
)

// responder writes enveloped responses for one request.
type responder struct {
	w     http.ResponseWriter
	r     *http.Request
	start time.Time
}

func newResponder(w http.ResponseWriter, r *http.Request) *responder {
	return &responder{w: w, r: r, start: time.Now()}
}

func (rd *responder) meta() models.Metadata {
	return models.Metadata{
		Timestamp:   time.Now().UTC(),
		QueryTimeMS: time.Since(rd.start).Milliseconds(),
	}
}

// success writes a 200 envelope with data.
func (rd *responder) success(data interface{}) {
	rd.writeJSON(http.StatusOK, models.APIResponse{
		Status:   "ok",
		Data:     data,
		Metadata: rd.meta(),
	})
}

// created writes a 201 envelope with data.
func (rd *responder) created(data interface{}) {
	rd.writeJSON(http.StatusCreated, models.APIResponse{
		Status:   "ok",
		Data:     data,
		Metadata: rd.meta(),
	})
}

// failure writes an error envelope with the given status and code.
func (rd *responder) failure(status int, code, message string) {
	rd.writeJSON(status, models.APIResponse{
		Status:   "error",
		Metadata: rd.meta(),
		Error: &models.APIError{
			Code:    code,
			Message: message,
		},
	})
}

func (rd *responder) writeJSON(status int, body models.APIResponse) {
	rd.w.Header().Set("Content-Type", "application/json; charset=utf-8")
	rd.w.WriteHeader(status)
	if err := json.NewEncoder(rd.w).Encode(body); err != nil {
		logging.Ctx(rd.r.Context()).Error().Err(err).Msg("Failed to encode response")
	}
}

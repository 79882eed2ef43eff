// Streetwatch - Community Activity Reporting and Moderation
// Copyright 2026 Streetwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streetwatch/streetwatch

package api

import (
	"errors"
	"net/http"

	"github.com/streetwatch/streetwatch/internal/logging"
	"github.com/streetwatch/streetwatch/internal/models"
)

// Error codes surfaced to clients.
const (
	CodeValidationError    = "VALIDATION_ERROR"
	CodeModerationRejected = "MODERATION_REJECTED"
	CodeNotFound           = "NOT_FOUND"
	CodeQuotaExceeded      = "QUOTA_EXCEEDED"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeInternalError      = "INTERNAL_ERROR"
)

// writeDomainError maps the models error taxonomy onto HTTP. Validation
// detail is surfaced verbatim; moderation rejections get a fixed generic
// message with the classifier output kept server-side; anything outside
// the taxonomy is logged in full and surfaced as a generic internal
// error.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	rd := newResponder(w, r)
	switch {
	case errors.Is(err, models.ErrValidation):
		rd.failure(http.StatusBadRequest, CodeValidationError, err.Error())
	case errors.Is(err, models.ErrModerationRejected):
		rd.failure(http.StatusUnprocessableEntity, CodeModerationRejected,
			"Submission rejected. Please avoid abusive language and resubmit.")
	case errors.Is(err, models.ErrNotFound):
		rd.failure(http.StatusNotFound, CodeNotFound,
			"No report found. Check the address or report identifier and try again.")
	case errors.Is(err, models.ErrQuotaExceeded):
		rd.failure(http.StatusTooManyRequests, CodeQuotaExceeded,
			"Daily submission limit reached. The quota resets at midnight UTC.")
	case errors.Is(err, models.ErrUnauthorized):
		rd.failure(http.StatusForbidden, CodeUnauthorized, "Insufficient permissions.")
	default:
		logging.Ctx(r.Context()).Error().Err(err).Msg("Request failed")
		rd.failure(http.StatusInternalServerError, CodeInternalError,
			"An internal error occurred. Please try again later.")
	}
}

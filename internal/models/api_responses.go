// Streetwatch - Community Activity Reporting and Moderation
// Copyright 2026 Streetwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streetwatch/streetwatch

package models

import (
	"time"
)

// APIResponse is the standardized response wrapper used by all HTTP
// endpoints.
//
// Example error response:
//
//	{
//	  "status": "error",
//	  "error": {
//	    "code": "QUOTA_EXCEEDED",
//	    "message": "Daily submission limit reached. The quota resets at midnight UTC."
//	  },
//	  "metadata": {"timestamp": "2026-08-29T12:00:00Z"}
//	}
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata contains response metadata for observability.
type Metadata struct {
	Timestamp   time.Time `json:"timestamp"`
	QueryTimeMS int64     `json:"query_time_ms,omitempty"`
}

// APIError carries a stable machine-readable code and a human-readable
// message. Codes: VALIDATION_ERROR, MODERATION_REJECTED, NOT_FOUND,
// QUOTA_EXCEEDED, UNAUTHORIZED, RATE_LIMITED, INTERNAL_ERROR.
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// SubmitResponse is returned for an accepted submission.
type SubmitResponse struct {
	Message          string `json:"message"`
	FormattedAddress string `json:"formatted_address"`
}

// UploadResponse is returned for a staged image upload. The client echoes
// ImagePath back as the submission's image_path.
type UploadResponse struct {
	ImagePath string `json:"image_path"`
}

// ActionResponse is returned by verifier and maintenance endpoints.
type ActionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

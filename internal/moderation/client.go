// Streetwatch - Community Activity Reporting and Moderation
// Copyright 2026 Streetwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streetwatch/streetwatch

package moderation

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/streetwatch/streetwatch/internal/config"
	"github.com/streetwatch/streetwatch/internal/logging"
	"github.com/streetwatch/streetwatch/internal/metrics"
)

// Moderator classifies free text as acceptable or abusive.
type Moderator interface {
	// IsFlagged reports whether text should be rejected. The error is
	// non-nil only when no decision could be made and the configured
	// failure policy is fail-closed.
	IsFlagged(ctx context.Context, text string) (bool, error)
}

const (
	breakerName       = "moderation"
	defaultTimeout    = 10 * time.Second
	defaultMaxTextLen = 2000
)

type checkRequest struct {
	Text string `json:"text"`
}

type checkResponse struct {
	Flagged bool   `json:"flagged"`
	Label   string `json:"label,omitempty"`
}

// Client calls the content-moderation provider over HTTP. A circuit
// breaker sheds calls while the provider is failing; what a shed or
// failed call means is decided by the FailOpen policy.
type Client struct {
	cfg        config.ModerationConfig
	httpClient *http.Client
	cb         *gobreaker.CircuitBreaker[bool]
	maxTextLen int
}

// NewClient builds the provider client. Breaker settings follow the
// usual shape: open at a 60% failure rate over at least 10 calls, probe
// again after 2 minutes.
func NewClient(cfg config.ModerationConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxTextLen := cfg.MaxTextLength
	if maxTextLen <= 0 {
		maxTextLen = defaultMaxTextLen
	}

	metrics.ProviderBreakerState.WithLabelValues(breakerName).Set(0)

	cb := gobreaker.NewCircuitBreaker[bool](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Moderation breaker state transition")
			metrics.ProviderBreakerState.WithLabelValues(name).Set(breakerStateValue(to))
		},
	})

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		cb:         cb,
		maxTextLen: maxTextLen,
	}
}

// IsFlagged classifies text. Oversized text is flagged locally without a
// provider call: the classifier has an input cap and anything past it is
// not worth the round trip. Provider failures resolve through the
// FailOpen policy.
func (c *Client) IsFlagged(ctx context.Context, text string) (bool, error) {
	if len(text) > c.maxTextLen {
		metrics.SubmissionsTotal.WithLabelValues("flagged_oversize").Inc()
		return true, nil
	}

	start := time.Now()
	flagged, err := c.cb.Execute(func() (bool, error) {
		return c.classify(ctx, text)
	})
	if err != nil {
		metrics.ObserveProviderCall(breakerName, "failure", start)
		if c.cfg.FailOpen {
			logging.Ctx(ctx).Warn().Err(err).Msg("Moderation provider unavailable, failing open")
			return false, nil
		}
		return false, fmt.Errorf("moderation check: %w", err)
	}

	metrics.ObserveProviderCall(breakerName, "success", start)
	return flagged, nil
}

func (c *Client) classify(ctx context.Context, text string) (bool, error) {
	body, err := json.Marshal(checkRequest{Text: text})
	if err != nil {
		return false, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("call provider: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("provider returned status %d", resp.StatusCode)
	}

	var decoded checkResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return false, fmt.Errorf("decode response: %w", err)
	}

	if decoded.Flagged {
		// The classifier label is audit-only and never surfaces to the
		// submitter.
		logging.Ctx(ctx).Info().
			Str("label", decoded.Label).
			Msg("Submission flagged by moderation provider")
	}
	return decoded.Flagged, nil
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 2
	default:
		return 0
	}
}

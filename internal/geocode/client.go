// Streetwatch - Community Activity Reporting and Moderation
// Copyright 2026 Streetwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streetwatch/streetwatch

package geocode

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/streetwatch/streetwatch/internal/config"
	"github.com/streetwatch/streetwatch/internal/logging"
	"github.com/streetwatch/streetwatch/internal/metrics"
	"github.com/streetwatch/streetwatch/internal/models"
)

// Geocoder resolves a free-text address into validated coordinates.
type Geocoder interface {
	// Resolve returns the provider's best match, or models.ErrNotFound
	// when the address is unresolvable or too imprecise to pin.
	Resolve(ctx context.Context, address string) (*Result, error)
}

// Result is a resolved, precision-checked address.
type Result struct {
	Lat              float64
	Lng              float64
	FormattedAddress string
}

const (
	breakerName    = "geocode"
	defaultTimeout = 10 * time.Second
	defaultRPS     = 5
)

// Provider wire types, Google-geocoding-shaped: a results array with a
// formatted address, a location, and typed address components.
type providerResponse struct {
	Status  string           `json:"status"`
	Results []providerResult `json:"results"`
}

type providerResult struct {
	FormattedAddress string `json:"formatted_address"`
	Geometry         struct {
		Location struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"location"`
	} `json:"geometry"`
	AddressComponents []addressComponent `json:"address_components"`
}

type addressComponent struct {
	LongName  string   `json:"long_name"`
	ShortName string   `json:"short_name"`
	Types     []string `json:"types"`
}

// Client calls the geocoding provider over HTTP, paced by a token-bucket
// limiter (the provider bills per call) and guarded by a circuit
// breaker. Every successful response still has to pass the precision
// filter before it becomes a Result.
type Client struct {
	cfg        config.GeocodeConfig
	httpClient *http.Client
	cb         *gobreaker.CircuitBreaker[*providerResult]
	limiter    *rate.Limiter
}

// NewClient builds the provider client.
func NewClient(cfg config.GeocodeConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = defaultRPS
	}

	metrics.ProviderBreakerState.WithLabelValues(breakerName).Set(0)

	cb := gobreaker.NewCircuitBreaker[*providerResult](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Geocode breaker state transition")
			metrics.ProviderBreakerState.WithLabelValues(name).Set(breakerStateValue(to))
		},
	})

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		cb:         cb,
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// Resolve geocodes address. Provider failures and empty result sets both
// surface as models.ErrNotFound: a submission is never accepted with
// null coordinates, whatever the underlying cause.
func (c *Client) Resolve(ctx context.Context, address string) (*Result, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("geocode pacing: %w", err)
	}

	start := time.Now()
	res, err := c.cb.Execute(func() (*providerResult, error) {
		return c.lookup(ctx, address)
	})
	if err != nil {
		metrics.ObserveProviderCall(breakerName, "failure", start)
		logging.Ctx(ctx).Warn().Err(err).Msg("Geocode lookup failed, treating as not found")
		return nil, models.ErrNotFound
	}

	if !preciseEnough(res) {
		metrics.ObserveProviderCall(breakerName, "imprecise", start)
		logging.Ctx(ctx).Debug().
			Str("formatted_address", res.FormattedAddress).
			Msg("Geocode result too imprecise to pin")
		return nil, models.ErrNotFound
	}

	metrics.ObserveProviderCall(breakerName, "success", start)
	return &Result{
		Lat:              res.Geometry.Location.Lat,
		Lng:              res.Geometry.Location.Lng,
		FormattedAddress: res.FormattedAddress,
	}, nil
}

func (c *Client) lookup(ctx context.Context, address string) (*providerResult, error) {
	q := url.Values{}
	q.Set("address", address)
	if c.cfg.Region != "" {
		q.Set("region", c.cfg.Region)
	}
	if c.cfg.APIKey != "" {
		q.Set("key", c.cfg.APIKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.URL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call provider: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("provider returned status %d", resp.StatusCode)
	}

	var decoded providerResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if decoded.Status == "ZERO_RESULTS" || len(decoded.Results) == 0 {
		return nil, models.ErrNotFound
	}
	if decoded.Status != "" && decoded.Status != "OK" {
		return nil, fmt.Errorf("provider status %s", decoded.Status)
	}
	return &decoded.Results[0], nil
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

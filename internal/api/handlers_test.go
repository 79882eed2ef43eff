// Streetwatch - Community Activity Reporting and Moderation
// Copyright 2026 Streetwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streetwatch/streetwatch

package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streetwatch/streetwatch/internal/audit"
	"github.com/streetwatch/streetwatch/internal/auth"
	"github.com/streetwatch/streetwatch/internal/authz"
	"github.com/streetwatch/streetwatch/internal/config"
	"github.com/streetwatch/streetwatch/internal/geocode"
	"github.com/streetwatch/streetwatch/internal/ingest"
	"github.com/streetwatch/streetwatch/internal/migrate"
	"github.com/streetwatch/streetwatch/internal/models"
	"github.com/streetwatch/streetwatch/internal/stats"
	"github.com/streetwatch/streetwatch/internal/testinfra"
	"github.com/streetwatch/streetwatch/internal/verify"
)

type apiFixture struct {
	srv *httptest.Server

	pending   *testinfra.MemReportStore
	verified  *testinfra.MemReportStore
	archive   *testinfra.MemArchiveStore
	blobs     *testinfra.MemBlobStore
	memStats  *testinfra.MemStats
	limiter   *testinfra.StaticLimiter
	moderator *testinfra.StaticModerator
	geocoder  *testinfra.StaticGeocoder

	jwt       *auth.JWTManager
	liveDown  bool
	submitted time.Time
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	f := &apiFixture{
		pending:   testinfra.NewMemReportStore(),
		verified:  testinfra.NewMemReportStore(),
		archive:   testinfra.NewMemArchiveStore(),
		blobs:     testinfra.NewMemBlobStore(),
		memStats:  &testinfra.MemStats{},
		limiter:   &testinfra.StaticLimiter{},
		moderator: &testinfra.StaticModerator{},
		geocoder: &testinfra.StaticGeocoder{
			Result: &geocode.Result{
				Lat:              39.7817,
				Lng:              -89.6501,
				FormattedAddress: "123 Main St, Springfield, IL 62701, USA",
			},
		},
		submitted: time.Now().UTC(),
	}

	events := audit.NewMemoryStore(1000)
	auditLog := audit.NewLogger(events, nil)
	t.Cleanup(func() { _ = auditLog.Close() })

	jwtManager, err := auth.NewJWTManager(config.SecurityConfig{
		JWTSecret: "0123456789abcdef0123456789abcdef",
		TokenTTL:  time.Hour,
	})
	require.NoError(t, err)
	f.jwt = jwtManager

	enforcer, err := authz.NewEnforcer(authz.EnforcerConfig{})
	require.NoError(t, err)
	t.Cleanup(enforcer.Close)

	gate := ingest.NewGate(f.limiter, f.moderator, f.geocoder, f.pending, f.memStats, auditLog)
	decider := verify.NewService(f.pending, f.verified, f.blobs, auditLog)
	recomputer := stats.NewAggregator(f.pending, f.verified, f.archive, f.memStats, auditLog)
	migrator := migrate.NewArchivalMigrator(f.verified, f.archive, f.memStats, auditLog, 7)
	consolidator := migrate.NewConsolidator(auditLog)
	deleter := migrate.NewRangeDeleter(f.pending, f.verified, f.archive, auditLog)

	h := NewHandlers(HandlersConfig{
		Gate:         gate,
		Blobs:        f.blobs,
		Decider:      decider,
		Pending:      f.pending,
		Verified:     f.verified,
		Archive:      f.archive,
		Stats:        f.memStats,
		Recomputer:   recomputer,
		Migrator:     migrator,
		Consolidator: consolidator,
		Deleter:      deleter,
		AuditStore:   events,
		LivePing: func(ctx context.Context) error {
			if f.liveDown {
				return errors.New("live store down")
			}
			return nil
		},
		ArchivePing: func(ctx context.Context) error { return nil },
		Version:     "test",
		API:         config.APIConfig{DefaultPageSize: 100, MaxPageSize: 1000},
	})

	router := NewRouter(h, RouterConfig{
		JWT:   jwtManager,
		Authz: authz.NewMiddleware(enforcer, auditLog),
		Security: config.SecurityConfig{
			EdgeRateLimit:  1000,
			EdgeRateWindow: time.Minute,
		},
	})

	f.srv = httptest.NewServer(router)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *apiFixture) token(t *testing.T, subject string, roles ...string) string {
	t.Helper()
	token, err := f.jwt.GenerateToken(subject, roles)
	require.NoError(t, err)
	return token
}

func (f *apiFixture) do(t *testing.T, method, path, token string, body interface{}) (*http.Response, models.APIResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, f.srv.URL+path, &buf)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	// Middleware rejections are plain text; everything else is the
	// JSON envelope.
	var envelope models.APIResponse
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	}
	return resp, envelope
}

func (f *apiFixture) submission() map[string]string {
	return map[string]string{
		"added_at":        f.submitted.Format("2006-01-02T15:04:05.000Z"),
		"address":         "123 main st springfield",
		"additional_info": "ongoing noise after midnight",
	}
}

func TestSubmitReportEndpoint(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)

	resp, envelope := f.do(t, http.MethodPost, "/api/v1/reports", "", f.submission())
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "ok", envelope.Status)

	data, err := json.Marshal(envelope.Data)
	require.NoError(t, err)
	var submitResp models.SubmitResponse
	require.NoError(t, json.Unmarshal(data, &submitResp))
	assert.Equal(t, "123 Main St, Springfield, IL 62701, USA", submitResp.FormattedAddress)

	assert.Equal(t, 1, f.pending.Len())
}

func (f *apiFixture) uploadImage(t *testing.T, field, filename, content string) (*http.Response, models.APIResponse) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, f.srv.URL+"/api/v1/reports/image", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := f.srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	var envelope models.APIResponse
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	}
	return resp, envelope
}

func TestUploadImageThenSubmit(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)

	resp, envelope := f.uploadImage(t, "image", "sedan.jpg", "jpeg-bytes")
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	data, err := json.Marshal(envelope.Data)
	require.NoError(t, err)
	var upload models.UploadResponse
	require.NoError(t, json.Unmarshal(data, &upload))
	assert.True(t, strings.HasPrefix(upload.ImagePath, "staging/"), "image path = %q", upload.ImagePath)
	assert.True(t, strings.HasSuffix(upload.ImagePath, ".jpg"), "image path = %q", upload.ImagePath)

	sub := f.submission()
	sub["image_path"] = upload.ImagePath
	resp, _ = f.do(t, http.MethodPost, "/api/v1/reports", "", sub)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	stored, err := f.pending.Get(context.Background(), "123_main_st_springfield_il_62701_usa")
	require.NoError(t, err)
	assert.Equal(t, upload.ImagePath, stored.ImagePath)
}

func TestUploadImageRequiresField(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)

	resp, envelope := f.uploadImage(t, "attachment", "sedan.jpg", "jpeg-bytes")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, CodeValidationError, envelope.Error.Code)
}

func TestSubmitRejectsForgedImagePath(t *testing.T) {
	t.Parallel()

	for _, path := range []string{"../secret.txt", "staging/../secret.txt", "staging/handmade.jpg"} {
		t.Run(path, func(t *testing.T) {
			t.Parallel()
			f := newAPIFixture(t)

			sub := f.submission()
			sub["image_path"] = path
			resp, envelope := f.do(t, http.MethodPost, "/api/v1/reports", "", sub)
			require.Equal(t, http.StatusBadRequest, resp.StatusCode)
			require.NotNil(t, envelope.Error)
			assert.Equal(t, CodeValidationError, envelope.Error.Code)
			assert.Equal(t, 0, f.pending.Len())
		})
	}
}

func TestSubmitReportErrorMapping(t *testing.T) {
	t.Parallel()

	t.Run("malformed body", func(t *testing.T) {
		t.Parallel()
		f := newAPIFixture(t)
		req, err := http.NewRequest(http.MethodPost, f.srv.URL+"/api/v1/reports", bytes.NewBufferString("{not json"))
		require.NoError(t, err)
		resp, err := f.srv.Client().Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("quota exceeded", func(t *testing.T) {
		t.Parallel()
		f := newAPIFixture(t)
		f.limiter.Err = models.ErrQuotaExceeded

		resp, envelope := f.do(t, http.MethodPost, "/api/v1/reports", "", f.submission())
		assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
		require.NotNil(t, envelope.Error)
		assert.Equal(t, CodeQuotaExceeded, envelope.Error.Code)
		assert.Contains(t, envelope.Error.Message, "resets at midnight UTC")
	})

	t.Run("flagged content", func(t *testing.T) {
		t.Parallel()
		f := newAPIFixture(t)
		f.moderator.Flagged = true

		resp, envelope := f.do(t, http.MethodPost, "/api/v1/reports", "", f.submission())
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		require.NotNil(t, envelope.Error)
		assert.Equal(t, CodeModerationRejected, envelope.Error.Code)
		// The classifier output never leaks into the response.
		assert.NotContains(t, envelope.Error.Message, "harassment")
	})

	t.Run("unresolvable address", func(t *testing.T) {
		t.Parallel()
		f := newAPIFixture(t)
		f.geocoder.Err = models.ErrNotFound

		resp, envelope := f.do(t, http.MethodPost, "/api/v1/reports", "", f.submission())
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		require.NotNil(t, envelope.Error)
		assert.Equal(t, CodeNotFound, envelope.Error.Code)
	})

	t.Run("validation detail surfaced", func(t *testing.T) {
		t.Parallel()
		f := newAPIFixture(t)
		sub := f.submission()
		sub["added_at"] = "not-a-date"

		resp, envelope := f.do(t, http.MethodPost, "/api/v1/reports", "", sub)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		require.NotNil(t, envelope.Error)
		assert.Equal(t, CodeValidationError, envelope.Error.Code)
	})
}

func TestModerationEndpointsRequireVerifierRole(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)

	// Anonymous.
	resp, _ := f.do(t, http.MethodGet, "/api/v1/reports/pending", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Authenticated but without the verifier role.
	resp, _ = f.do(t, http.MethodGet, "/api/v1/reports/pending", f.token(t, "someone"), nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Verifier.
	resp, _ = f.do(t, http.MethodGet, "/api/v1/reports/pending", f.token(t, "mod-1", "verifier"), nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestVerifyFlow(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)

	// Submit, then approve as a verifier.
	resp, _ := f.do(t, http.MethodPost, "/api/v1/reports", "", f.submission())
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	key := "123_main_st_springfield_il_62701_usa"
	token := f.token(t, "mod-1", "verifier")

	resp, envelope := f.do(t, http.MethodPost, "/api/v1/reports/"+key+"/verify", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", envelope.Status)

	assert.Equal(t, 0, f.pending.Len())
	assert.Equal(t, 1, f.verified.Len())

	// Verifying again is a 404: the pending entry is gone.
	resp, envelope = f.do(t, http.MethodPost, "/api/v1/reports/"+key+"/verify", token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, CodeNotFound, envelope.Error.Code)
}

func TestDenyFlow(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)

	resp, _ := f.do(t, http.MethodPost, "/api/v1/reports", "", f.submission())
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	key := "123_main_st_springfield_il_62701_usa"
	resp, _ = f.do(t, http.MethodPost, "/api/v1/reports/"+key+"/deny", f.token(t, "mod-1", "verifier"), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, 0, f.pending.Len())
	assert.Equal(t, 0, f.verified.Len())
}

func TestListVerifiedPublicAndPaginated(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)

	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		f.verified.Seed(fmt.Sprintf("key_%d", i), &models.Report{
			AddedAt:       base.Add(-time.Duration(i) * time.Hour),
			Address:       fmt.Sprintf("%d Main St", i),
			ReportedCount: 1,
			VerifiedAt:    base,
		})
	}

	resp, envelope := f.do(t, http.MethodGet, "/api/v1/reports/verified?limit=2&offset=1", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	data, err := json.Marshal(envelope.Data)
	require.NoError(t, err)
	var list []reportEntry
	require.NoError(t, json.Unmarshal(data, &list))
	require.Len(t, list, 2)
	// Newest first, offset 1 skips the most recent.
	assert.Equal(t, "key_1", list[0].Key)
	assert.Equal(t, "key_2", list[1].Key)
}

func TestStatsEndpoint(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)

	resp, _ := f.do(t, http.MethodPost, "/api/v1/reports", "", f.submission())
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, envelope := f.do(t, http.MethodGet, "/api/v1/stats", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	data, err := json.Marshal(envelope.Data)
	require.NoError(t, err)
	var snap models.StatsSnapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	assert.Equal(t, int64(1), snap.Total)
}

func TestAdminEndpointsRequireAdminRole(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)

	// Verifiers cannot run maintenance.
	resp, _ := f.do(t, http.MethodPost, "/api/v1/admin/stats/recalculate", f.token(t, "mod-1", "verifier"), nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, "/api/v1/admin/stats/recalculate", f.token(t, "op-1", "admin"), nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAdminMigrationRun(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)

	f.verified.Seed("aged", &models.Report{
		AddedAt:       time.Now().UTC().Add(-30 * 24 * time.Hour),
		Address:       "9 Elm St, Springfield, IL 62701, USA",
		ReportedCount: 1,
	})

	resp, envelope := f.do(t, http.MethodPost, "/api/v1/admin/migrate/archive", f.token(t, "op-1", "admin"), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	data, err := json.Marshal(envelope.Data)
	require.NoError(t, err)
	var result models.MigrationResult
	require.NoError(t, json.Unmarshal(data, &result))
	assert.Equal(t, 1, result.Moved)
	assert.Equal(t, 0, f.verified.Len())
	assert.Equal(t, 1, f.archive.Len())
}

func TestAdminDeleteSince(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)
	token := f.token(t, "op-1", "admin")
	cutoff := time.Now().UTC().Format("2006-01-02")

	f.verified.Seed("recent", &models.Report{
		AddedAt:       time.Now().UTC(),
		Address:       "9 Elm St",
		ReportedCount: 1,
	})

	// An explicit non-yes answer is refused.
	resp, _ := f.do(t, http.MethodPost, "/api/v1/admin/delete-since", token,
		map[string]interface{}{"cutoff_date": cutoff, "confirm": "no"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, 1, f.verified.Len())

	// Omitting confirm degrades to a dry run: counts come back, nothing
	// is deleted.
	resp, envelope := f.do(t, http.MethodPost, "/api/v1/admin/delete-since", token,
		map[string]interface{}{"cutoff_date": cutoff})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data, err := json.Marshal(envelope.Data)
	require.NoError(t, err)
	var result models.RangeDeleteResult
	require.NoError(t, json.Unmarshal(data, &result))
	assert.True(t, result.DryRun)
	assert.Equal(t, 1, result.Live)
	assert.Equal(t, 1, f.verified.Len())

	// Confirmed requests delete.
	resp, _ = f.do(t, http.MethodPost, "/api/v1/admin/delete-since", token,
		map[string]interface{}{"cutoff_date": cutoff, "confirm": "yes"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 0, f.verified.Len())

	// Malformed cutoff is a validation error.
	resp, _ = f.do(t, http.MethodPost, "/api/v1/admin/delete-since", token,
		map[string]interface{}{"cutoff_date": "yesterday", "confirm": "yes"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAdminConsolidate(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)
	token := f.token(t, "op-1", "admin")

	// Legacy keys re-group under the canonical address key.
	f.verified.Seed("9 Elm St, Springfield, IL 62701, USA", &models.Report{
		AddedAt:       time.Now().UTC(),
		Address:       "9 Elm St, Springfield, IL 62701, USA",
		ReportedCount: 2,
	})
	f.verified.Seed("9_elm_st_springfield_il_62701_usa", &models.Report{
		AddedAt:       time.Now().UTC().Add(-time.Hour),
		Address:       "9 Elm St, Springfield, IL 62701, USA",
		ReportedCount: 1,
	})

	resp, envelope := f.do(t, http.MethodPost, "/api/v1/admin/consolidate", token,
		map[string]string{"store": "live"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	data, err := json.Marshal(envelope.Data)
	require.NoError(t, err)
	var summaries []migrate.ConsolidationSummary
	require.NoError(t, json.Unmarshal(data, &summaries))
	require.Len(t, summaries, 2) // pending then verified
	assert.Equal(t, 2, summaries[1].Before)
	assert.Equal(t, 1, summaries[1].After)
	assert.Equal(t, 1, f.verified.Len())

	merged, err := f.verified.Get(context.Background(), "9_elm_st_springfield_il_62701_usa")
	require.NoError(t, err)
	assert.Equal(t, int64(3), merged.Count())

	// An unknown store name is rejected.
	resp, _ = f.do(t, http.MethodPost, "/api/v1/admin/consolidate", token,
		map[string]string{"store": "everything"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)

	resp, _ := f.do(t, http.MethodGet, "/api/v1/health/live", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, envelope := f.do(t, http.MethodGet, "/api/v1/health/ready", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", envelope.Status)

	f.liveDown = true
	resp, _ = f.do(t, http.MethodGet, "/api/v1/health/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestAuditEndpoint(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)

	// Generate an audit trail, then read it back as an admin.
	resp, _ := f.do(t, http.MethodPost, "/api/v1/reports", "", f.submission())
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// The trail is admin-only.
	resp, _ = f.do(t, http.MethodGet, "/api/v1/audit", f.token(t, "mod-1", "verifier"), nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Async audit writes need a moment to land.
	var events []audit.Event
	require.Eventually(t, func() bool {
		resp, envelope := f.do(t, http.MethodGet, "/api/v1/audit", f.token(t, "op-1", "admin"), nil)
		if resp.StatusCode != http.StatusOK {
			return false
		}
		data, err := json.Marshal(envelope.Data)
		if err != nil {
			return false
		}
		events = nil
		return json.Unmarshal(data, &events) == nil && len(events) > 0
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, audit.EventTypeReportSubmitted, events[0].Type)
}

// Streetwatch - Community Activity Reporting and Moderation
// Copyright 2026 Streetwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streetwatch/streetwatch

package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/streetwatch/streetwatch/internal/audit"
	"github.com/streetwatch/streetwatch/internal/auth"
	"github.com/streetwatch/streetwatch/internal/blob"
	"github.com/streetwatch/streetwatch/internal/config"
	"github.com/streetwatch/streetwatch/internal/ingest"
	"github.com/streetwatch/streetwatch/internal/migrate"
	"github.com/streetwatch/streetwatch/internal/models"
	"github.com/streetwatch/streetwatch/internal/reports"
)

// Submitter runs the ingestion pipeline for one submission.
type Submitter interface {
	Submit(ctx context.Context, sub ingest.Submission, clientAddr string) (*models.SubmitResponse, error)
}

// Decider applies verifier decisions to pending reports.
type Decider interface {
	Verify(ctx context.Context, actor audit.Actor, key string) error
	Deny(ctx context.Context, actor audit.Actor, key string) error
	Delete(ctx context.Context, actor audit.Actor, key string) error
}

// StatsReader reads the aggregate counters.
type StatsReader interface {
	GetStats(ctx context.Context) (models.StatsSnapshot, error)
}

// Recomputer rebuilds the aggregate counters from the stores.
type Recomputer interface {
	Recompute(ctx context.Context) (models.StatsSnapshot, error)
}

// Migrator runs the archival migration on demand.
type Migrator interface {
	Run(ctx context.Context) (models.MigrationResult, error)
	LastRun() *time.Time
}

// StoreConsolidator re-keys one store under canonical address keys.
type StoreConsolidator interface {
	Run(ctx context.Context, name string, store reports.Store) (migrate.ConsolidationSummary, error)
}

// RangeDeleter deletes reports added on or after a cutoff date.
type RangeDeleter interface {
	DeleteSince(ctx context.Context, cutoffDate string, confirm migrate.Confirmer, dryRun bool) (models.RangeDeleteResult, error)
}

// Pinger reports whether a backing store is reachable.
type Pinger func(ctx context.Context) error

// Handlers holds every HTTP handler and its dependencies.
type Handlers struct {
	gate         Submitter
	blobs        blob.Store
	decider      Decider
	pending      reports.Store
	verified     reports.Store
	archive      reports.Store
	stats        StatsReader
	recomputer   Recomputer
	migrator     Migrator
	consolidator StoreConsolidator
	deleter      RangeDeleter
	auditStore   audit.Store

	livePing    Pinger
	archivePing Pinger
	version     string
	startTime   time.Time

	pageSize    int
	maxPageSize int
	maxUpload   int64
}

// HandlersConfig wires the handler dependencies.
type HandlersConfig struct {
	Gate         Submitter
	Blobs        blob.Store
	Decider      Decider
	Pending      reports.Store
	Verified     reports.Store
	Archive      reports.Store
	Stats        StatsReader
	Recomputer   Recomputer
	Migrator     Migrator
	Consolidator StoreConsolidator
	Deleter      RangeDeleter
	AuditStore   audit.Store
	LivePing     Pinger
	ArchivePing  Pinger
	Version      string
	API          config.APIConfig

	// MaxUploadBytes caps a single image upload; zero means 10 MiB.
	MaxUploadBytes int64
}

// NewHandlers builds the handler set.
func NewHandlers(cfg HandlersConfig) *Handlers {
	pageSize := cfg.API.DefaultPageSize
	if pageSize <= 0 {
		pageSize = 100
	}
	maxPageSize := cfg.API.MaxPageSize
	if maxPageSize <= 0 {
		maxPageSize = 1000
	}
	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 10 << 20
	}
	return &Handlers{
		gate:         cfg.Gate,
		blobs:        cfg.Blobs,
		decider:      cfg.Decider,
		pending:      cfg.Pending,
		verified:     cfg.Verified,
		archive:      cfg.Archive,
		stats:        cfg.Stats,
		recomputer:   cfg.Recomputer,
		migrator:     cfg.Migrator,
		consolidator: cfg.Consolidator,
		deleter:      cfg.Deleter,
		auditStore:   cfg.AuditStore,
		livePing:     cfg.LivePing,
		archivePing:  cfg.ArchivePing,
		version:      cfg.Version,
		startTime:    time.Now().UTC(),
		pageSize:     pageSize,
		maxPageSize:  maxPageSize,
		maxUpload:    maxUpload,
	}
}

// reportEntry is a stored report together with its address key.
type reportEntry struct {
	Key string `json:"key"`
	models.Report
}

// SubmitReport handles POST /api/v1/reports: the public ingestion
// entry point.
func (h *Handlers) SubmitReport(w http.ResponseWriter, r *http.Request) {
	var sub ingest.Submission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		newResponder(w, r).failure(http.StatusBadRequest, CodeValidationError, "request body must be valid JSON")
		return
	}

	resp, err := h.gate.Submit(r.Context(), sub, clientAddr(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	newResponder(w, r).created(resp)
}

// UploadImage handles POST /api/v1/reports/image: stages a multipart
// image and returns the path the submission carries in image_path. Only
// paths minted here pass the ingestion check.
func (h *Handlers) UploadImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)

	file, header, err := r.FormFile("image")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			newResponder(w, r).failure(http.StatusRequestEntityTooLarge, CodeValidationError, "image exceeds the upload size limit")
			return
		}
		newResponder(w, r).failure(http.StatusBadRequest, CodeValidationError, "multipart field 'image' is required")
		return
	}
	defer file.Close()

	stagedPath, err := h.blobs.SaveStaged(r.Context(), header.Filename, file)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	newResponder(w, r).created(models.UploadResponse{ImagePath: stagedPath})
}

// ListVerified handles GET /api/v1/reports/verified: the public map data.
func (h *Handlers) ListVerified(w http.ResponseWriter, r *http.Request) {
	h.listReports(w, r, h.verified)
}

// ListPending handles GET /api/v1/reports/pending: the moderation queue.
func (h *Handlers) ListPending(w http.ResponseWriter, r *http.Request) {
	h.listReports(w, r, h.pending)
}

func (h *Handlers) listReports(w http.ResponseWriter, r *http.Request, store reports.Store) {
	entries, err := store.All(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	list := make([]reportEntry, 0, len(entries))
	for key, rep := range entries {
		list = append(list, reportEntry{Key: key, Report: *rep})
	}
	// Newest first; key as tiebreaker for a stable order.
	sort.Slice(list, func(i, j int) bool {
		if !list[i].AddedAt.Equal(list[j].AddedAt) {
			return list[i].AddedAt.After(list[j].AddedAt)
		}
		return list[i].Key < list[j].Key
	})

	offset := queryInt(r, "offset", 0, 0, len(list))
	limit := queryInt(r, "limit", h.pageSize, 1, h.maxPageSize)
	end := offset + limit
	if end > len(list) {
		end = len(list)
	}
	newResponder(w, r).success(list[offset:end])
}

// GetStats handles GET /api/v1/stats.
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	snap, err := h.stats.GetStats(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	newResponder(w, r).success(snap)
}

// VerifyReport handles POST /api/v1/reports/{key}/verify.
func (h *Handlers) VerifyReport(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.decider.Verify, "Report verified")
}

// DenyReport handles POST /api/v1/reports/{key}/deny.
func (h *Handlers) DenyReport(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.decider.Deny, "Report denied")
}

// DeletePendingReport handles DELETE /api/v1/reports/{key}.
func (h *Handlers) DeletePendingReport(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.decider.Delete, "Report deleted")
}

func (h *Handlers) decide(w http.ResponseWriter, r *http.Request, op func(context.Context, audit.Actor, string) error, message string) {
	key := chi.URLParam(r, "key")
	if key == "" {
		newResponder(w, r).failure(http.StatusBadRequest, CodeValidationError, "report key is required")
		return
	}
	if err := op(r.Context(), requestActor(r), key); err != nil {
		writeDomainError(w, r, err)
		return
	}
	newResponder(w, r).success(models.ActionResponse{Success: true, Message: message})
}

// GetAudit handles GET /api/v1/audit, most recent first.
func (h *Handlers) GetAudit(w http.ResponseWriter, r *http.Request) {
	filter := audit.QueryFilter{
		Limit: queryInt(r, "limit", h.pageSize, 1, h.maxPageSize),
	}
	if t := r.URL.Query().Get("type"); t != "" {
		filter.Types = []audit.EventType{audit.EventType(t)}
	}
	if actor := r.URL.Query().Get("actor"); actor != "" {
		filter.ActorID = actor
	}

	events, err := h.auditStore.Query(r.Context(), filter)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	newResponder(w, r).success(events)
}

// HealthLive handles GET /api/v1/health/live: process liveness only.
func (h *Handlers) HealthLive(w http.ResponseWriter, r *http.Request) {
	newResponder(w, r).success(map[string]string{"status": "ok"})
}

// HealthReady handles GET /api/v1/health/ready: both stores must answer.
func (h *Handlers) HealthReady(w http.ResponseWriter, r *http.Request) {
	status := models.HealthStatus{
		Status:           "ok",
		Version:          h.version,
		LiveStoreReady:   h.livePing(r.Context()) == nil,
		ArchiveReady:     h.archivePing(r.Context()) == nil,
		LastMigrationRun: h.migrator.LastRun(),
		Uptime:           time.Since(h.startTime).Seconds(),
	}
	if !status.LiveStoreReady || !status.ArchiveReady {
		status.Status = "degraded"
		newResponder(w, r).writeJSON(http.StatusServiceUnavailable, models.APIResponse{
			Status:   "error",
			Data:     status,
			Metadata: models.Metadata{Timestamp: time.Now().UTC()},
			Error:    &models.APIError{Code: CodeInternalError, Message: "a backing store is unavailable"},
		})
		return
	}
	newResponder(w, r).success(status)
}

// RunMigration handles POST /api/v1/admin/migrate/archive.
func (h *Handlers) RunMigration(w http.ResponseWriter, r *http.Request) {
	result, err := h.migrator.Run(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	newResponder(w, r).success(result)
}

// RecomputeStats handles POST /api/v1/admin/stats/recalculate.
func (h *Handlers) RecomputeStats(w http.ResponseWriter, r *http.Request) {
	snap, err := h.recomputer.Recompute(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	newResponder(w, r).success(snap)
}

// consolidateRequest selects which tier to re-key: "live" covers both
// live buckets, "archive" the cold store.
type consolidateRequest struct {
	Store string `json:"store"`
}

// Consolidate handles POST /api/v1/admin/consolidate.
func (h *Handlers) Consolidate(w http.ResponseWriter, r *http.Request) {
	var req consolidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		newResponder(w, r).failure(http.StatusBadRequest, CodeValidationError, "request body must be valid JSON")
		return
	}

	type target struct {
		name  string
		store reports.Store
	}
	var targets []target
	switch req.Store {
	case "live":
		targets = []target{{"pending", h.pending}, {"verified", h.verified}}
	case "archive":
		targets = []target{{"archive", h.archive}}
	default:
		newResponder(w, r).failure(http.StatusBadRequest, CodeValidationError,
			`store must be "live" or "archive"`)
		return
	}

	summaries := make([]migrate.ConsolidationSummary, 0, len(targets))
	for _, t := range targets {
		summary, err := h.consolidator.Run(r.Context(), t.name, t.store)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		summaries = append(summaries, summary)
	}
	newResponder(w, r).success(summaries)
}

// deleteSinceRequest is the body for the range-delete endpoint. Confirm
// carries the operator's explicit answer; only "y" or "yes" proceeds.
// Omitting it entirely degrades the request to a dry run, preserving
// the count-then-confirm flow over HTTP.
type deleteSinceRequest struct {
	CutoffDate string `json:"cutoff_date"`
	Confirm    string `json:"confirm"`
	DryRun     bool   `json:"dry_run"`
}

// DeleteSince handles POST /api/v1/admin/delete-since.
func (h *Handlers) DeleteSince(w http.ResponseWriter, r *http.Request) {
	var req deleteSinceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		newResponder(w, r).failure(http.StatusBadRequest, CodeValidationError, "request body must be valid JSON")
		return
	}

	dryRun := req.DryRun || req.Confirm == ""
	confirm := func(ctx context.Context, count int64) (string, error) {
		return req.Confirm, nil
	}
	result, err := h.deleter.DeleteSince(r.Context(), req.CutoffDate, confirm, dryRun)
	if err != nil {
		if errors.Is(err, migrate.ErrNotConfirmed) {
			newResponder(w, r).failure(http.StatusConflict, CodeValidationError,
				"Deletion not confirmed. Set confirm to \"yes\" to proceed.")
			return
		}
		writeDomainError(w, r, err)
		return
	}
	newResponder(w, r).success(result)
}

// requestActor identifies the verifier for audit purposes.
func requestActor(r *http.Request) audit.Actor {
	if id := auth.IdentityFromContext(r.Context()); id != nil {
		return audit.VerifierActor(id.Subject, id.Roles)
	}
	return audit.SystemActor()
}

// clientAddr is the submitter's network identity: the first
// X-Forwarded-For hop when present, otherwise the connection address.
func clientAddr(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first, _, ok := strings.Cut(fwd, ","); ok {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// queryInt parses an integer query parameter, clamped to [min, max].
func queryInt(r *http.Request, name string, fallback, min, max int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	if n < min {
		return min
	}
	if n > max {
		return max
	}
	return n
}

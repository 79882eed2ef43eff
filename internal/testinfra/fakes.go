// Streetwatch - Community Activity Reporting and Moderation
// Copyright 2026 Streetwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streetwatch/streetwatch

package testinfra

import (
	"context"
	"io"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/streetwatch/streetwatch/internal/geocode"
	"github.com/streetwatch/streetwatch/internal/models"
)

// MemReportStore is an in-memory reports.Store with the same merge
// semantics as the real tiers. Safe for concurrent use.
type MemReportStore struct {
	mu      sync.Mutex
	entries map[string]*models.Report

	// FailPut, when set, makes every write operation return this error.
	FailPut error
}

// NewMemReportStore returns an empty store.
func NewMemReportStore() *MemReportStore {
	return &MemReportStore{entries: make(map[string]*models.Report)}
}

// Seed stores a copy of r under key without merge semantics.
func (s *MemReportStore) Seed(key string, r *models.Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *r
	s.entries[key] = &c
}

// Len reports how many entries the store holds.
func (s *MemReportStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *MemReportStore) Get(ctx context.Context, key string) (*models.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.entries[key]
	if !ok {
		return nil, models.ErrNotFound
	}
	c := *r
	return &c, nil
}

func (s *MemReportStore) Put(ctx context.Context, key string, r *models.Report) error {
	if s.FailPut != nil {
		return s.FailPut
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *r
	s.entries[key] = &c
	return nil
}

func (s *MemReportStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *MemReportStore) All(ctx context.Context) (map[string]*models.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*models.Report, len(s.entries))
	for k, r := range s.entries {
		c := *r
		out[k] = &c
	}
	return out, nil
}

func (s *MemReportStore) Merge(ctx context.Context, key string, incoming *models.Report) (bool, error) {
	if s.FailPut != nil {
		return false, s.FailPut
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.entries[key]; ok {
		s.entries[key] = models.Merge(existing, incoming)
		return false, nil
	}
	c := *incoming
	c.ReportedCount = incoming.Count()
	s.entries[key] = &c
	return true, nil
}

func (s *MemReportStore) DeleteBatch(ctx context.Context, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.entries, k)
	}
	return nil
}

func (s *MemReportStore) ReplaceAll(ctx context.Context, entries map[string]*models.Report) error {
	if s.FailPut != nil {
		return s.FailPut
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*models.Report, len(entries))
	for k, r := range entries {
		c := *r
		s.entries[k] = &c
	}
	return nil
}

// MemArchiveStore is MemReportStore plus the archive tier's date-range
// primitives.
type MemArchiveStore struct {
	MemReportStore
}

// NewMemArchiveStore returns an empty archive store.
func NewMemArchiveStore() *MemArchiveStore {
	return &MemArchiveStore{MemReportStore{entries: make(map[string]*models.Report)}}
}

// Count returns how many entries the archive holds.
func (s *MemArchiveStore) Count(ctx context.Context) (int64, error) {
	return int64(s.Len()), nil
}

// CountAddedSince counts entries with AddedAt at or past cutoff.
func (s *MemArchiveStore) CountAddedSince(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, r := range s.entries {
		if !r.AddedAt.Before(cutoff) {
			n++
		}
	}
	return n, nil
}

// DeleteAddedSince removes entries with AddedAt at or past cutoff and
// returns how many it removed.
func (s *MemArchiveStore) DeleteAddedSince(ctx context.Context, cutoff time.Time) (int64, error) {
	if s.FailPut != nil {
		return 0, s.FailPut
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, r := range s.entries {
		if !r.AddedAt.Before(cutoff) {
			delete(s.entries, k)
			n++
		}
	}
	return n, nil
}

// StaticLimiter is a quota limiter with a fixed answer.
type StaticLimiter struct {
	Err error

	mu     sync.Mutex
	allows int
}

func (l *StaticLimiter) Allow(ctx context.Context, bucket, clientAddr string, now time.Time) (int, error) {
	if clientAddr == "" {
		return 0, models.ErrValidation
	}
	if l.Err != nil {
		return 0, l.Err
	}
	l.mu.Lock()
	l.allows++
	l.mu.Unlock()
	return 1, nil
}

func (l *StaticLimiter) Hash(clientAddr string) (string, error) {
	if clientAddr == "" {
		return "", models.ErrValidation
	}
	return "hash-" + clientAddr, nil
}

// Allows reports how many submissions passed the quota gate.
func (l *StaticLimiter) Allows() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.allows
}

// StaticModerator returns a fixed verdict.
type StaticModerator struct {
	Flagged bool
	Err     error

	mu    sync.Mutex
	calls []string
}

func (m *StaticModerator) IsFlagged(ctx context.Context, text string) (bool, error) {
	m.mu.Lock()
	m.calls = append(m.calls, text)
	m.mu.Unlock()
	return m.Flagged, m.Err
}

// Calls returns the texts classified so far.
func (m *StaticModerator) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// StaticGeocoder returns a fixed result.
type StaticGeocoder struct {
	Result *geocode.Result
	Err    error

	mu    sync.Mutex
	calls []string
}

func (g *StaticGeocoder) Resolve(ctx context.Context, address string) (*geocode.Result, error) {
	g.mu.Lock()
	g.calls = append(g.calls, address)
	g.mu.Unlock()
	if g.Err != nil {
		return nil, g.Err
	}
	return g.Result, nil
}

// Calls returns the addresses resolved so far.
func (g *StaticGeocoder) Calls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.calls...)
}

// MemStats is an in-memory stats recorder mirroring the live store's
// counter semantics.
type MemStats struct {
	mu   sync.Mutex
	snap models.StatsSnapshot
}

func (s *MemStats) IncrementStats(ctx context.Context, addedAt, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Total++
	s.snap.ThisWeek++
	ay, am, ad := addedAt.UTC().Date()
	ny, nm, nd := now.UTC().Date()
	if ay == ny && am == nm && ad == nd {
		s.snap.Today++
	}
	return nil
}

func (s *MemStats) GetStats(ctx context.Context) (models.StatsSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap, nil
}

func (s *MemStats) SetStats(ctx context.Context, snap models.StatsSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = snap
	return nil
}

func (s *MemStats) ApplyArchivalAdjustment(ctx context.Context, archived int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Today = 0
	s.snap.ThisWeek -= archived
	if s.snap.ThisWeek < 0 {
		s.snap.ThisWeek = 0
	}
	return nil
}

// MemBlobStore tracks image locations in memory.
type MemBlobStore struct {
	mu sync.Mutex

	// Staged, Public, Denied map logical paths to contents.
	Staged map[string]string
	Public map[string]string
	Denied map[string]string

	// FailPromote, when set, makes Promote and Quarantine fail.
	FailPromote error
}

// NewMemBlobStore returns an empty blob store.
func NewMemBlobStore() *MemBlobStore {
	return &MemBlobStore{
		Staged: make(map[string]string),
		Public: make(map[string]string),
		Denied: make(map[string]string),
	}
}

// Stage records a staged image directly.
func (b *MemBlobStore) Stage(path, content string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Staged[path] = content
}

func (b *MemBlobStore) SaveStaged(ctx context.Context, filename string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	// Same staging/<uuid><ext> shape the real backends mint.
	staged := "staging/" + uuid.NewString() + strings.ToLower(path.Ext(filename))
	b.Staged[staged] = string(data)
	return staged, nil
}

func (b *MemBlobStore) Promote(ctx context.Context, stagedPath, key string) (string, string, error) {
	if b.FailPromote != nil {
		return "", "", b.FailPromote
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	content, ok := b.Staged[stagedPath]
	if !ok {
		return "", "", models.ErrNotFound
	}
	stored := "public/" + key
	b.Public[stored] = content
	delete(b.Staged, stagedPath)
	return stored, "https://img.test/" + key, nil
}

func (b *MemBlobStore) Quarantine(ctx context.Context, stagedPath, key string) (string, error) {
	if b.FailPromote != nil {
		return "", b.FailPromote
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	content, ok := b.Staged[stagedPath]
	if !ok {
		return "", models.ErrNotFound
	}
	stored := "denied/" + key
	b.Denied[stored] = content
	delete(b.Staged, stagedPath)
	return stored, nil
}

func (b *MemBlobStore) Discard(ctx context.Context, stagedPath string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.Staged, stagedPath)
	return nil
}

func (b *MemBlobStore) Remove(ctx context.Context, storedPath string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.Public, storedPath)
	return nil
}

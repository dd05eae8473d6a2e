// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package telemetry provides usage tracking and analytics for coprelay.
package telemetry

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/jeranaias/coprelay/internal/copilot"
)

// =============================================================================
// RECORD TYPES
// =============================================================================

// Status classifies how a request finished.
type Status string

const (
	StatusOK      Status = "ok"
	StatusTimeout Status = "timeout"
	StatusError   Status = "error"
)

// StatusForError maps a chat error to a telemetry status.
func StatusForError(err error) Status {
	switch {
	case err == nil:
		return StatusOK
	case copilot.IsTimeout(err):
		return StatusTimeout
	default:
		return StatusError
	}
}

// Request is one recorded chat completion.
type Request struct {
	Timestamp        time.Time `json:"timestamp"`
	Model            string    `json:"model"`
	Status           Status    `json:"status"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	FilesCount       int       `json:"files_count"`
	DurationMs       int64     `json:"duration_ms"`
	WorkspaceID      string    `json:"workspace_id,omitempty"`
	Streamed         bool      `json:"streamed,omitempty"`
}

// Totals aggregates recorded requests.
type Totals struct {
	Requests         int64   `json:"requests"`
	Succeeded        int64   `json:"succeeded"`
	Failed           int64   `json:"failed"`
	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	FilesProduced    int64   `json:"files_produced"`
	AvgDurationMs    float64 `json:"avg_duration_ms"`
}

// ModelUsage aggregates usage for one model.
type ModelUsage struct {
	Model    string `json:"model"`
	Requests int64  `json:"requests"`
	Tokens   int64  `json:"tokens"`
}

// DailyUsage aggregates usage for one calendar day.
type DailyUsage struct {
	Date     string `json:"date"`
	Requests int64  `json:"requests"`
	Tokens   int64  `json:"tokens"`
	Files    int64  `json:"files"`
}

// Snapshot is the in-memory usage picture since process start.
type Snapshot struct {
	Since    time.Time    `json:"since"`
	Totals   Totals       `json:"totals"`
	PerModel []ModelUsage `json:"per_model"`
}

// =============================================================================
// TRACKER
// =============================================================================

// purgeInterval is how often the retention loop runs. The first purge
// happens at startup.
const purgeInterval = 12 * time.Hour

// Options configures a Tracker.
type Options struct {
	// Enabled turns persistent recording on. The in-memory snapshot is
	// kept either way; a disabled tracker never touches the filesystem.
	Enabled bool
	// DBPath is the SQLite database location.
	DBPath string
	// RetentionDays is how long stored records are kept. 0 keeps forever.
	RetentionDays int
}

// Tracker aggregates per-request usage in memory and, when enabled,
// persists each request for historical queries.
type Tracker struct {
	mu         sync.RWMutex
	since      time.Time
	totals     Totals
	durationMs int64
	perModel   map[string]*ModelUsage

	store     *Store
	retention int
	cancel    context.CancelFunc
}

// NewTracker builds a tracker, opening the store and starting the
// retention loop when persistence is enabled.
func NewTracker(opts Options) (*Tracker, error) {
	t := &Tracker{
		since:    time.Now(),
		perModel: make(map[string]*ModelUsage),
	}
	if !opts.Enabled {
		return t, nil
	}

	store, err := OpenStore(opts.DBPath)
	if err != nil {
		return nil, err
	}
	t.store = store
	t.retention = opts.RetentionDays

	if opts.RetentionDays > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		t.cancel = cancel
		go t.retentionLoop(ctx)
	}
	return t, nil
}

// Enabled reports whether persistent recording is active.
func (t *Tracker) Enabled() bool {
	return t.store != nil
}

// Record aggregates one request and stores it when persistence is
// enabled. Insert failures are logged and swallowed so a chat request
// never fails on telemetry.
func (t *Tracker) Record(rec Request) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	t.mu.Lock()
	t.totals.Requests++
	if rec.Status == StatusOK {
		t.totals.Succeeded++
	} else {
		t.totals.Failed++
	}
	t.totals.PromptTokens += int64(rec.PromptTokens)
	t.totals.CompletionTokens += int64(rec.CompletionTokens)
	t.totals.FilesProduced += int64(rec.FilesCount)
	t.durationMs += rec.DurationMs

	usage := t.perModel[rec.Model]
	if usage == nil {
		usage = &ModelUsage{Model: rec.Model}
		t.perModel[rec.Model] = usage
	}
	usage.Requests++
	usage.Tokens += int64(rec.PromptTokens + rec.CompletionTokens)
	t.mu.Unlock()

	if t.store == nil {
		return
	}
	if err := t.store.Insert(rec); err != nil {
		log.Printf("Failed to record telemetry: %v", err)
	}
}

// Snapshot returns the in-memory aggregates since process start, with
// per-model usage sorted busiest first.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	snap := Snapshot{
		Since:    t.since,
		Totals:   t.totals,
		PerModel: make([]ModelUsage, 0, len(t.perModel)),
	}
	if t.totals.Requests > 0 {
		snap.Totals.AvgDurationMs = float64(t.durationMs) / float64(t.totals.Requests)
	}
	for _, usage := range t.perModel {
		snap.PerModel = append(snap.PerModel, *usage)
	}
	sort.Slice(snap.PerModel, func(i, j int) bool {
		if snap.PerModel[i].Requests != snap.PerModel[j].Requests {
			return snap.PerModel[i].Requests > snap.PerModel[j].Requests
		}
		return snap.PerModel[i].Model < snap.PerModel[j].Model
	})
	return snap
}

// Totals returns all-time aggregates from the store. Zero values when
// persistence is disabled.
func (t *Tracker) Totals() (Totals, error) {
	if t.store == nil {
		return Totals{}, nil
	}
	return t.store.Totals()
}

// ModelBreakdown returns all-time per-model usage. Nil when persistence
// is disabled.
func (t *Tracker) ModelBreakdown() ([]ModelUsage, error) {
	if t.store == nil {
		return nil, nil
	}
	return t.store.ModelBreakdown()
}

// DailyBreakdown returns the trailing N days of usage. Nil when
// persistence is disabled.
func (t *Tracker) DailyBreakdown(days int) ([]DailyUsage, error) {
	if t.store == nil {
		return nil, nil
	}
	return t.store.DailyBreakdown(days)
}

// Recent returns the newest stored records. Nil when persistence is
// disabled.
func (t *Tracker) Recent(limit int) ([]Request, error) {
	if t.store == nil {
		return nil, nil
	}
	return t.store.Recent(limit)
}

// Close stops the retention loop and closes the store.
func (t *Tracker) Close() error {
	if t.cancel != nil {
		t.cancel()
	}
	if t.store == nil {
		return nil
	}
	return t.store.Close()
}

// retentionLoop purges expired records at startup and on an interval.
func (t *Tracker) retentionLoop(ctx context.Context) {
	t.purge()

	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.purge()
		}
	}
}

func (t *Tracker) purge() {
	cutoff := time.Now().AddDate(0, 0, -t.retention)
	n, err := t.store.PurgeOlderThan(cutoff)
	if err != nil {
		log.Printf("Telemetry purge failed: %v", err)
		return
	}
	if n > 0 {
		log.Printf("Purged %d telemetry records older than %d days", n, t.retention)
	}
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jeranaias/coprelay/internal/copilot"
)

func TestStatusForError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Status
	}{
		{
			name: "nil is ok",
			err:  nil,
			want: StatusOK,
		},
		{
			name: "timeout sentinel",
			err:  copilot.ErrTimeout,
			want: StatusTimeout,
		},
		{
			name: "wrapped timeout",
			err:  fmt.Errorf("chat failed: %w", copilot.ErrTimeout),
			want: StatusTimeout,
		},
		{
			name: "missing CLI",
			err:  copilot.ErrCLINotFound,
			want: StatusError,
		},
		{
			name: "plain error",
			err:  errors.New("boom"),
			want: StatusError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, StatusForError(tt.err))
		})
	}
}

func TestNewTracker_Disabled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "telemetry.db")
	tracker, err := NewTracker(Options{Enabled: false, DBPath: path})
	require.NoError(t, err)
	defer tracker.Close()

	require.False(t, tracker.Enabled())

	// The in-memory snapshot still aggregates.
	tracker.Record(Request{Model: "gpt-5", Status: StatusOK, PromptTokens: 3})
	snap := tracker.Snapshot()
	require.Equal(t, int64(1), snap.Totals.Requests)
	require.Equal(t, int64(3), snap.Totals.PromptTokens)

	// Persistent queries come back empty.
	totals, err := tracker.Totals()
	require.NoError(t, err)
	require.Equal(t, int64(0), totals.Requests)

	usage, err := tracker.ModelBreakdown()
	require.NoError(t, err)
	require.Nil(t, usage)

	recs, err := tracker.Recent(5)
	require.NoError(t, err)
	require.Nil(t, recs)

	// The database file is never created.
	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err), "disabled tracker should not touch the filesystem")
}

func TestTracker_Snapshot(t *testing.T) {
	tracker, err := NewTracker(Options{Enabled: false})
	require.NoError(t, err)
	defer tracker.Close()

	start := tracker.Snapshot()
	require.Equal(t, int64(0), start.Totals.Requests)
	require.Empty(t, start.PerModel)
	require.False(t, start.Since.IsZero())

	records := []Request{
		{Model: "gpt-5", Status: StatusOK, PromptTokens: 10, CompletionTokens: 20, FilesCount: 1, DurationMs: 100},
		{Model: "claude-sonnet-4", Status: StatusOK, PromptTokens: 40, CompletionTokens: 60, DurationMs: 300},
		{Model: "gpt-5", Status: StatusTimeout, PromptTokens: 5, DurationMs: 200},
	}
	for _, rec := range records {
		tracker.Record(rec)
	}

	snap := tracker.Snapshot()
	require.Equal(t, int64(3), snap.Totals.Requests)
	require.Equal(t, int64(2), snap.Totals.Succeeded)
	require.Equal(t, int64(1), snap.Totals.Failed)
	require.Equal(t, int64(55), snap.Totals.PromptTokens)
	require.Equal(t, int64(80), snap.Totals.CompletionTokens)
	require.Equal(t, int64(1), snap.Totals.FilesProduced)
	require.Equal(t, float64(200), snap.Totals.AvgDurationMs)

	// Busiest model first.
	require.Len(t, snap.PerModel, 2)
	require.Equal(t, "gpt-5", snap.PerModel[0].Model)
	require.Equal(t, int64(2), snap.PerModel[0].Requests)
	require.Equal(t, int64(35), snap.PerModel[0].Tokens)
	require.Equal(t, "claude-sonnet-4", snap.PerModel[1].Model)
	require.Equal(t, int64(100), snap.PerModel[1].Tokens)
}

func TestTracker_ConcurrentRecord(t *testing.T) {
	tracker, err := NewTracker(Options{Enabled: false})
	require.NoError(t, err)
	defer tracker.Close()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tracker.Record(Request{Model: "gpt-5", Status: StatusOK, PromptTokens: 1})
			_ = tracker.Snapshot()
		}()
	}
	wg.Wait()

	snap := tracker.Snapshot()
	require.Equal(t, int64(50), snap.Totals.Requests)
	require.Equal(t, int64(50), snap.Totals.PromptTokens)
}

func TestTracker_RecordAndQuery(t *testing.T) {
	tracker, err := NewTracker(Options{
		Enabled: true,
		DBPath:  filepath.Join(t.TempDir(), "telemetry.db"),
	})
	require.NoError(t, err)
	defer tracker.Close()

	require.True(t, tracker.Enabled())

	tracker.Record(Request{
		Model:            "claude-sonnet-4",
		Status:           StatusOK,
		PromptTokens:     10,
		CompletionTokens: 25,
		DurationMs:       500,
	})
	tracker.Record(Request{
		Model:      "gpt-5",
		Status:     StatusError,
		DurationMs: 90,
	})

	totals, err := tracker.Totals()
	require.NoError(t, err)
	require.Equal(t, int64(2), totals.Requests)
	require.Equal(t, int64(1), totals.Succeeded)
	require.Equal(t, int64(1), totals.Failed)

	recs, err := tracker.Recent(10)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	// A zero timestamp is filled at record time.
	for _, rec := range recs {
		require.False(t, rec.Timestamp.IsZero(), "record %q has zero timestamp", rec.Model)
	}
}

func TestTracker_Purge(t *testing.T) {
	store, err := OpenStore(filepath.Join(t.TempDir(), "telemetry.db"))
	require.NoError(t, err)
	tracker := &Tracker{store: store, retention: 30}
	defer tracker.Close()

	now := time.Now()
	inserts := []Request{
		{Timestamp: now.AddDate(0, 0, -45), Model: "gpt-5", Status: StatusOK},
		{Timestamp: now.AddDate(0, 0, -5), Model: "gpt-5", Status: StatusOK},
	}
	for _, rec := range inserts {
		require.NoError(t, store.Insert(rec))
	}

	tracker.purge()

	n, err := store.Count()
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

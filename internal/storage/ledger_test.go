// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	ledger, err := NewLedgerWithDir(filepath.Join(t.TempDir(), "workspaces"))
	require.NoError(t, err)
	return ledger
}

// makeWorkspaceDir creates a fake retained workspace directory.
func makeWorkspaceDir(t *testing.T, root, id string) string {
	t.Helper()
	path := filepath.Join(root, id)
	require.NoError(t, os.MkdirAll(path, 0700))
	return path
}

func TestNewLedgerWithDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "workspaces")
	ledger, err := NewLedgerWithDir(dir)
	require.NoError(t, err)
	require.Equal(t, dir, ledger.BaseDir)
	require.Equal(t, 100, ledger.MaxRecords)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestLedger_RecordAndGet(t *testing.T) {
	ledger := newTestLedger(t)
	wsRoot := t.TempDir()
	path := makeWorkspaceDir(t, wsRoot, "copilot_workspace_a1b2c3d4")

	rec := WorkspaceRecord{
		ID:         "copilot_workspace_a1b2c3d4",
		Path:       path,
		Model:      "claude-sonnet-4",
		Prompt:     "  write a\nfibonacci script  ",
		FilesCount: 2,
	}
	require.NoError(t, ledger.Record(rec))

	got, err := ledger.Get("copilot_workspace_a1b2c3d4")
	require.NoError(t, err)
	require.Equal(t, path, got.Path)
	require.Equal(t, "claude-sonnet-4", got.Model)
	require.Equal(t, 2, got.FilesCount)
	require.False(t, got.Missing)
	require.False(t, got.CreatedAt.IsZero(), "zero CreatedAt should be filled at record time")

	// The prompt is flattened to one trimmed line.
	require.Equal(t, "write a fibonacci script", got.Prompt)
}

func TestLedger_RecordRequiresID(t *testing.T) {
	ledger := newTestLedger(t)
	err := ledger.Record(WorkspaceRecord{Path: "/tmp/somewhere"})
	require.Error(t, err)
}

func TestLedger_PromptTruncated(t *testing.T) {
	ledger := newTestLedger(t)

	long := strings.Repeat("a", 200)
	require.NoError(t, ledger.Record(WorkspaceRecord{ID: "copilot_workspace_ffffffff", Prompt: long}))

	got, err := ledger.Get("copilot_workspace_ffffffff")
	require.NoError(t, err)
	require.Equal(t, 80, len([]rune(got.Prompt)))
	require.True(t, strings.HasSuffix(got.Prompt, "..."))
}

func TestLedger_GetNotFound(t *testing.T) {
	ledger := newTestLedger(t)
	_, err := ledger.Get("copilot_workspace_missing1")
	require.True(t, errors.Is(err, ErrRecordNotFound))
}

func TestLedger_List(t *testing.T) {
	ledger := newTestLedger(t)
	wsRoot := t.TempDir()

	now := time.Now()
	records := []WorkspaceRecord{
		{ID: "copilot_workspace_00000001", Path: makeWorkspaceDir(t, wsRoot, "copilot_workspace_00000001"), CreatedAt: now.Add(-2 * time.Hour)},
		{ID: "copilot_workspace_00000002", Path: makeWorkspaceDir(t, wsRoot, "copilot_workspace_00000002"), CreatedAt: now.Add(-time.Hour)},
		{ID: "copilot_workspace_00000003", Path: filepath.Join(wsRoot, "never_created"), CreatedAt: now},
	}
	for _, rec := range records {
		require.NoError(t, ledger.Record(rec))
	}

	recs, err := ledger.List()
	require.NoError(t, err)
	require.Len(t, recs, 3)

	// Newest first.
	require.Equal(t, "copilot_workspace_00000003", recs[0].ID)
	require.Equal(t, "copilot_workspace_00000001", recs[2].ID)

	// The record whose directory vanished is flagged.
	require.True(t, recs[0].Missing)
	require.False(t, recs[1].Missing)
}

func TestLedger_ListEmpty(t *testing.T) {
	ledger := newTestLedger(t)
	recs, err := ledger.List()
	require.NoError(t, err)
	require.Empty(t, recs)

	// A ledger whose directory never existed lists as empty too.
	gone := &Ledger{BaseDir: filepath.Join(t.TempDir(), "nope")}
	recs, err = gone.List()
	require.NoError(t, err)
	require.Empty(t, recs)
}

func TestLedger_Remove(t *testing.T) {
	ledger := newTestLedger(t)
	require.NoError(t, ledger.Record(WorkspaceRecord{ID: "copilot_workspace_deadbeef"}))

	require.NoError(t, ledger.Remove("copilot_workspace_deadbeef"))

	_, err := ledger.Get("copilot_workspace_deadbeef")
	require.True(t, errors.Is(err, ErrRecordNotFound))

	err = ledger.Remove("copilot_workspace_deadbeef")
	require.True(t, errors.Is(err, ErrRecordNotFound))
}

func TestLedger_Prune(t *testing.T) {
	ledger := newTestLedger(t)
	wsRoot := t.TempDir()

	now := time.Now()
	oldPath := makeWorkspaceDir(t, wsRoot, "copilot_workspace_0000o1d1")
	keptPath := makeWorkspaceDir(t, wsRoot, "copilot_workspace_0000new1")
	records := []WorkspaceRecord{
		{ID: "copilot_workspace_0000o1d1", Path: oldPath, CreatedAt: now.Add(-48 * time.Hour)},
		{ID: "copilot_workspace_0000new1", Path: keptPath, CreatedAt: now},
		{ID: "copilot_workspace_0000gone", Path: filepath.Join(wsRoot, "vanished"), CreatedAt: now},
	}
	for _, rec := range records {
		require.NoError(t, ledger.Record(rec))
	}

	removed, err := ledger.Prune(24 * time.Hour)
	require.NoError(t, err)
	require.Equal(t, 2, removed, "expired and stale records should go")

	// The expired workspace directory went with its record.
	_, err = os.Stat(oldPath)
	require.True(t, os.IsNotExist(err))

	// The fresh workspace survived.
	_, err = os.Stat(keptPath)
	require.NoError(t, err)

	recs, err := ledger.List()
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, "copilot_workspace_0000new1", recs[0].ID)
}

func TestLedger_PruneAll(t *testing.T) {
	ledger := newTestLedger(t)
	wsRoot := t.TempDir()

	path := makeWorkspaceDir(t, wsRoot, "copilot_workspace_11111111")
	require.NoError(t, ledger.Record(WorkspaceRecord{ID: "copilot_workspace_11111111", Path: path, CreatedAt: time.Now()}))

	removed, err := ledger.Prune(0)
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err))

	recs, err := ledger.List()
	require.NoError(t, err)
	require.Empty(t, recs)
}

func TestLedger_EnforceLimit(t *testing.T) {
	ledger := newTestLedger(t)
	ledger.MaxRecords = 3

	now := time.Now()
	ids := []string{
		"copilot_workspace_00000001",
		"copilot_workspace_00000002",
		"copilot_workspace_00000003",
		"copilot_workspace_00000004",
		"copilot_workspace_00000005",
	}
	for i, id := range ids {
		rec := WorkspaceRecord{ID: id, CreatedAt: now.Add(time.Duration(i) * time.Minute)}
		require.NoError(t, ledger.Record(rec))
	}

	recs, err := ledger.List()
	require.NoError(t, err)
	require.Len(t, recs, 3)

	// The newest three survive.
	require.Equal(t, "copilot_workspace_00000005", recs[0].ID)
	require.Equal(t, "copilot_workspace_00000003", recs[2].ID)
}

func TestLedger_Clear(t *testing.T) {
	ledger := newTestLedger(t)
	wsRoot := t.TempDir()
	path := makeWorkspaceDir(t, wsRoot, "copilot_workspace_22222222")

	require.NoError(t, ledger.Record(WorkspaceRecord{ID: "copilot_workspace_22222222", Path: path}))
	require.NoError(t, ledger.Clear())

	recs, err := ledger.List()
	require.NoError(t, err)
	require.Empty(t, recs)

	// Clear drops records only, not workspaces.
	_, err = os.Stat(path)
	require.NoError(t, err)
}

func TestFormatList(t *testing.T) {
	require.Equal(t, "No retained workspaces.", FormatList(nil))

	recs := []WorkspaceRecord{
		{
			ID:         "copilot_workspace_a1b2c3d4",
			CreatedAt:  time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC),
			Model:      "claude-sonnet-4",
			Prompt:     "write a fibonacci script",
			FilesCount: 2,
		},
		{
			ID:      "copilot_workspace_gone0000",
			Missing: true,
		},
	}

	out := FormatList(recs)
	require.Contains(t, out, "copilot_workspace_a1b2c3d4")
	require.Contains(t, out, "2025-03-14 09:30")
	require.Contains(t, out, "claude-sonnet-4")
	require.Contains(t, out, "write a fibonacci script")
	require.Contains(t, out, "(gone)")
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides the on-disk ledger of retained workspaces.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jeranaias/coprelay/internal/config"
	"github.com/jeranaias/coprelay/internal/util"
)

// =============================================================================
// RECORD TYPE
// =============================================================================

// WorkspaceRecord describes one workspace kept after its run.
type WorkspaceRecord struct {
	// Identity
	ID        string    `json:"id"` // workspace directory name
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"created_at"`

	// Run context
	Model      string `json:"model"`
	Prompt     string `json:"prompt"` // first user line, truncated
	FilesCount int    `json:"files_count"`

	// Computed at list time, not persisted
	Missing bool `json:"-"`
}

// =============================================================================
// LEDGER
// =============================================================================

// Ledger persists workspace records as one JSON file each.
type Ledger struct {
	// BaseDir is the directory for ledger records.
	// Default: ~/.coprelay/workspaces/
	BaseDir string

	// MaxRecords limits stored records (0 = unlimited)
	MaxRecords int
}

// NewLedger creates a ledger rooted in the config directory.
func NewLedger() (*Ledger, error) {
	dir, err := config.ConfigDir()
	if err != nil {
		return nil, err
	}
	return NewLedgerWithDir(filepath.Join(dir, "workspaces"))
}

// NewLedgerWithDir creates a ledger with a custom directory.
func NewLedgerWithDir(baseDir string) (*Ledger, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, err
	}

	return &Ledger{
		BaseDir:    baseDir,
		MaxRecords: 100,
	}, nil
}

// =============================================================================
// SAVE OPERATIONS
// =============================================================================

// Record persists one workspace record.
func (l *Ledger) Record(rec WorkspaceRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("workspace record needs an ID")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	rec.Prompt = promptPreview(rec.Prompt)

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}

	// RELIABILITY: Atomic write with fsync prevents a torn record on crash
	if err := util.AtomicWriteFile(l.filePath(rec.ID), data, 0600); err != nil {
		return err
	}

	if l.MaxRecords > 0 {
		l.enforceLimit()
	}

	return nil
}

// promptPreview reduces a prompt to a single short line.
func promptPreview(prompt string) string {
	prompt = strings.ReplaceAll(prompt, "\r", "")
	prompt = strings.ReplaceAll(prompt, "\n", " ")
	return util.TruncateRunes(strings.TrimSpace(prompt), 80)
}

// enforceLimit removes the oldest records when over the cap.
func (l *Ledger) enforceLimit() {
	recs, err := l.List()
	if err != nil || len(recs) <= l.MaxRecords {
		return
	}

	// List is newest first, so the tail is the oldest.
	for _, rec := range recs[l.MaxRecords:] {
		l.Remove(rec.ID)
	}
}

// =============================================================================
// LOAD OPERATIONS
// =============================================================================

// Get retrieves a record by workspace ID.
func (l *Ledger) Get(id string) (*WorkspaceRecord, error) {
	data, err := os.ReadFile(l.filePath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}

	var rec WorkspaceRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}

	_, statErr := os.Stat(rec.Path)
	rec.Missing = statErr != nil

	return &rec, nil
}

// List returns all records, newest first. Records whose workspace
// directory has vanished are flagged Missing.
func (l *Ledger) List() ([]WorkspaceRecord, error) {
	entries, err := os.ReadDir(l.BaseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []WorkspaceRecord{}, nil
		}
		return nil, err
	}

	recs := make([]WorkspaceRecord, 0)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		id := strings.TrimSuffix(entry.Name(), ".json")
		rec, err := l.Get(id)
		if err != nil {
			continue // skip corrupted records
		}
		recs = append(recs, *rec)
	}

	sort.Slice(recs, func(i, j int) bool {
		return recs[i].CreatedAt.After(recs[j].CreatedAt)
	})

	return recs, nil
}

// =============================================================================
// DELETE OPERATIONS
// =============================================================================

// Remove deletes a record by ID. The workspace directory is untouched.
func (l *Ledger) Remove(id string) error {
	if err := os.Remove(l.filePath(id)); err != nil {
		if os.IsNotExist(err) {
			return ErrRecordNotFound
		}
		return err
	}
	return nil
}

// Prune removes records older than the given age together with their
// workspace directories, plus any record whose directory already
// vanished. A zero age prunes everything. Returns how many records
// were removed.
func (l *Ledger) Prune(olderThan time.Duration) (int, error) {
	recs, err := l.List()
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-olderThan)
	removed := 0
	for _, rec := range recs {
		expired := olderThan == 0 || rec.CreatedAt.Before(cutoff)
		if !expired && !rec.Missing {
			continue
		}
		if !rec.Missing {
			if err := os.RemoveAll(rec.Path); err != nil {
				continue
			}
		}
		if err := l.Remove(rec.ID); err == nil {
			removed++
		}
	}

	return removed, nil
}

// Clear removes every record. Workspace directories are untouched.
func (l *Ledger) Clear() error {
	entries, err := os.ReadDir(l.BaseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".json") {
			os.Remove(filepath.Join(l.BaseDir, entry.Name()))
		}
	}

	return nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// filePath returns the record file path for a workspace ID.
func (l *Ledger) filePath(id string) string {
	return filepath.Join(l.BaseDir, id+".json")
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrRecordNotFound is returned when a workspace record doesn't exist.
// Use errors.Is(err, ErrRecordNotFound) to check for this error.
var ErrRecordNotFound = &LedgerError{Message: "workspace record not found"}

// LedgerError represents a ledger-related error.
type LedgerError struct {
	Message string
}

// Error implements the error interface.
func (e *LedgerError) Error() string {
	return e.Message
}

// Is implements errors.Is support for comparing ledger errors.
func (e *LedgerError) Is(target error) bool {
	t, ok := target.(*LedgerError)
	if !ok {
		return false
	}
	return e.Message == t.Message
}

// =============================================================================
// LIST FORMATTING
// =============================================================================

// FormatList renders records as a table for the workspaces command.
func FormatList(recs []WorkspaceRecord) string {
	if len(recs) == 0 {
		return "No retained workspaces."
	}

	var sb strings.Builder
	sb.WriteString("Retained workspaces:\n")
	sb.WriteString("---------------------------------------------------------------------------\n")
	sb.WriteString(util.PadRight("ID", 34) + " " +
		util.PadRight("Created", 17) + " " +
		util.PadRight("Files", 5) + " " +
		util.PadRight("Model", 18) + " Prompt\n")
	sb.WriteString("---------------------------------------------------------------------------\n")

	for _, rec := range recs {
		id := rec.ID
		if rec.Missing {
			id += " (gone)"
		}
		sb.WriteString(util.PadRight(util.TruncateRunes(id, 34), 34) + " " +
			util.PadRight(rec.CreatedAt.Format("2006-01-02 15:04"), 17) + " " +
			util.PadRight(fmt.Sprintf("%d", rec.FilesCount), 5) + " " +
			util.PadRight(util.TruncateRunes(rec.Model, 18), 18) + " " +
			util.TruncateRunes(rec.Prompt, 40) + "\n")
	}
	return sb.String()
}

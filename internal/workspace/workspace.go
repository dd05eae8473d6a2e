// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package workspace manages per-request scratch directories and collects
// the files a run leaves behind.
package workspace

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DirPrefix is the name prefix of every workspace directory.
const DirPrefix = "copilot_workspace_"

// minFreeDiskSpace is the free-space floor below which workspace
// creation logs a warning.
const minFreeDiskSpace = 32 << 20 // 32 MiB

// =============================================================================
// WORKSPACE TYPE
// =============================================================================

// Workspace is one scratch directory, alive for the span of a request
// unless the manager is configured to keep it.
type Workspace struct {
	ID        string
	Path      string
	CreatedAt time.Time
}

// =============================================================================
// MANAGER
// =============================================================================

// Options configures a Manager.
type Options struct {
	// Root is the parent directory for workspaces. Empty means the OS
	// temp directory.
	Root string

	// Keep retains workspace directories after the run instead of
	// removing them.
	Keep bool

	// MaxFileSize caps per-file scan size in bytes. Non-positive means
	// DefaultMaxFileSize.
	MaxFileSize int64

	// ExtraIgnoredDirs, ExtraIgnoredExts, and ExtraIgnoredFiles extend
	// the built-in scan ignore rules.
	ExtraIgnoredDirs  []string
	ExtraIgnoredExts  []string
	ExtraIgnoredFiles []string
}

// Manager creates, scans, and removes workspace directories.
type Manager struct {
	root string
	keep bool

	mu      sync.RWMutex
	scanner *Scanner
}

// NewManager creates a manager from options.
func NewManager(opts Options) *Manager {
	return &Manager{
		root:    opts.Root,
		keep:    opts.Keep,
		scanner: NewScanner(opts.MaxFileSize, opts.ExtraIgnoredDirs, opts.ExtraIgnoredExts, opts.ExtraIgnoredFiles),
	}
}

// Root returns the directory workspaces are created under.
func (m *Manager) Root() string {
	if m.root != "" {
		return m.root
	}
	return os.TempDir()
}

// Keep reports whether workspaces are retained after runs.
func (m *Manager) Keep() bool {
	return m.keep
}

// Create makes a fresh workspace directory with a random 8-character ID.
func (m *Manager) Create() (*Workspace, error) {
	root := m.Root()

	// RELIABILITY: warn before a run starts writing into a nearly full
	// disk. Advisory only; the run itself surfaces any real write error.
	if free, err := freeDiskSpace(root); err == nil && free < minFreeDiskSpace {
		log.Printf("Low disk space under %s: %d bytes free", root, free)
	}

	id := uuid.New().String()[:8]
	path := filepath.Join(root, DirPrefix+id)
	if err := os.MkdirAll(path, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}

	log.Printf("Created temp workspace: %s", path)
	return &Workspace{ID: id, Path: path, CreatedAt: time.Now()}, nil
}

// Scan collects the artifacts a run left inside the workspace.
func (m *Manager) Scan(ws *Workspace) ([]FileArtifact, error) {
	m.mu.RLock()
	scanner := m.scanner
	m.mu.RUnlock()
	return scanner.Scan(ws.Path)
}

// SetExtraIgnores replaces the extra ignore rules, keeping the size cap.
// In-flight scans finish under the old rules.
func (m *Manager) SetExtraIgnores(dirs, exts, files []string) {
	m.mu.Lock()
	m.scanner = NewScanner(m.scanner.maxFileSize, dirs, exts, files)
	m.mu.Unlock()
}

// Cleanup removes the workspace directory unless the manager keeps
// workspaces. Removal failures are logged, not returned: by the time
// cleanup runs the response is already decided.
func (m *Manager) Cleanup(ws *Workspace) {
	if ws == nil {
		return
	}
	if m.keep {
		log.Printf("Keeping workspace: %s", ws.Path)
		return
	}
	if _, err := os.Stat(ws.Path); err != nil {
		return
	}
	if err := os.RemoveAll(ws.Path); err != nil {
		log.Printf("Failed to cleanup workspace %s: %v", ws.Path, err)
		return
	}
	log.Printf("Cleaned up workspace: %s", ws.Path)
}

// =============================================================================
// LEFTOVER WORKSPACES
// =============================================================================

// Info describes one workspace directory found on disk.
type Info struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	Files     int       `json:"files"`
	SizeBytes int64     `json:"size_bytes"`
	ModTime   time.Time `json:"mod_time"`
}

// List returns the workspaces present under the root, newest first.
func (m *Manager) List() ([]Info, error) {
	root := m.Root()
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to read workspace root: %w", err)
	}

	infos := make([]Info, 0)
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), DirPrefix) {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			continue
		}

		path := filepath.Join(root, entry.Name())
		files, size := measure(path)
		infos = append(infos, Info{
			ID:        strings.TrimPrefix(entry.Name(), DirPrefix),
			Path:      path,
			Files:     files,
			SizeBytes: size,
			ModTime:   fi.ModTime(),
		})
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].ModTime.After(infos[j].ModTime)
	})
	return infos, nil
}

// Purge removes workspace directories older than the given age and
// returns how many were removed. A zero age removes everything.
func (m *Manager) Purge(olderThan time.Duration) (int, error) {
	infos, err := m.List()
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-olderThan)
	removed := 0
	for _, info := range infos {
		if olderThan > 0 && info.ModTime.After(cutoff) {
			continue
		}
		if err := os.RemoveAll(info.Path); err != nil {
			log.Printf("Failed to remove workspace %s: %v", info.Path, err)
			continue
		}
		removed++
	}
	return removed, nil
}

// measure counts regular files and their total size under a directory.
func measure(root string) (files int, size int64) {
	filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.Mode().IsRegular() {
			files++
			size += info.Size()
		}
		return nil
	})
	return files, size
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// =============================================================================
// CONFIG FILE WATCHER
// =============================================================================

// Watcher reloads the global configuration when the config file changes
// on disk. Events are debounced: editors fire several writes per save.
// When fsnotify cannot deliver events (watch limit exhausted, unsupported
// filesystem), the watcher degrades to polling the file's modification
// time.
type Watcher struct {
	path     string
	debounce time.Duration
	interval time.Duration     // polling mode tick
	watcher  *fsnotify.Watcher // nil in polling mode
	onReload func(*Config)
	ctx      context.Context
	cancel   context.CancelFunc

	mu      sync.Mutex
	pending time.Time // zero when no change is queued

	// Polling state, touched only by the poll goroutine
	lastMod  time.Time
	lastSize int64
}

// NewWatcher creates a watcher for the default config file. The
// callback runs after every successful reload; nil is allowed.
func NewWatcher(onReload func(*Config)) (*Watcher, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("Config watcher unavailable, falling back to polling: %v", err)
		fw = nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		path:     path,
		debounce: 500 * time.Millisecond,
		interval: 2 * time.Second,
		watcher:  fw,
		onReload: onReload,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Watch starts watching for config file changes.
// The watch is placed on the directory, not the file: editors replace
// files by rename, which silently drops a watch on the file itself.
func (w *Watcher) Watch() error {
	if err := EnsureConfigDir(); err != nil {
		return err
	}

	if w.watcher != nil {
		if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
			log.Printf("Config watch failed, falling back to polling: %v", err)
			w.watcher.Close()
			w.watcher = nil
		}
	}

	if w.watcher != nil {
		go w.processEvents()
	} else {
		if info, err := os.Stat(w.path); err == nil {
			w.lastMod = info.ModTime()
			w.lastSize = info.Size()
		}
		go w.pollLoop()
	}
	go w.processPending()

	return nil
}

// pollLoop queues reloads by comparing the file's mtime and size each
// tick. A file that appears after startup counts as a change.
func (w *Watcher) pollLoop() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return

		case <-ticker.C:
			info, err := os.Stat(w.path)
			if err != nil {
				continue
			}
			if info.ModTime().Equal(w.lastMod) && info.Size() == w.lastSize {
				continue
			}
			w.lastMod = info.ModTime()
			w.lastSize = info.Size()

			w.mu.Lock()
			w.pending = time.Now()
			w.mu.Unlock()
		}
	}
}

// processEvents queues reloads for events touching the config file.
func (w *Watcher) processEvents() {
	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.mu.Lock()
			w.pending = time.Now()
			w.mu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("Config watcher error: %v", err)
		}
	}
}

// processPending fires the reload once events have settled.
func (w *Watcher) processPending() {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return

		case <-ticker.C:
			w.mu.Lock()
			ready := !w.pending.IsZero() && time.Since(w.pending) >= w.debounce
			if ready {
				w.pending = time.Time{}
			}
			w.mu.Unlock()

			if ready {
				w.reload()
			}
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load()
	if err != nil {
		log.Printf("Config reload failed, keeping previous config: %v", err)
		return
	}
	SetGlobal(cfg)
	log.Printf("Config reloaded from %s", w.path)
	if w.onReload != nil {
		w.onReload(cfg)
	}
}

// Close stops watching and releases resources.
func (w *Watcher) Close() error {
	w.cancel()
	if w.watcher != nil {
		return w.watcher.Close()
	}
	return nil
}

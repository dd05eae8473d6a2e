// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"sync"
	"sync/atomic"
	"time"
)

// =============================================================================
// SERVER STATS
// =============================================================================

// ServerStats tracks request counters since startup. Totals use atomics;
// the per-route map takes a mutex.
type ServerStats struct {
	startTime time.Time

	totalRequests int64
	totalErrors   int64

	mu      sync.RWMutex
	byRoute map[string]int64
}

// NewServerStats creates a stats tracker starting now.
func NewServerStats() *ServerStats {
	return &ServerStats{
		startTime: time.Now(),
		byRoute:   make(map[string]int64),
	}
}

// RecordRequest counts one finished request. Statuses of 500 and above
// count as errors; client errors do not, so bad input cannot drown out
// real failures.
func (s *ServerStats) RecordRequest(route string, status int) {
	atomic.AddInt64(&s.totalRequests, 1)
	if status >= 500 {
		atomic.AddInt64(&s.totalErrors, 1)
	}

	s.mu.Lock()
	s.byRoute[route]++
	s.mu.Unlock()
}

// Uptime returns how long the stats tracker has been running.
func (s *ServerStats) Uptime() time.Duration {
	return time.Since(s.startTime)
}

// StatsSnapshot is a point-in-time copy of the counters, shaped for the
// stats endpoint.
type StatsSnapshot struct {
	UptimeSeconds int64            `json:"uptime_seconds"`
	Requests      int64            `json:"requests"`
	Errors        int64            `json:"errors"`
	ByRoute       map[string]int64 `json:"by_route"`
}

// Snapshot returns a consistent copy of the counters.
func (s *ServerStats) Snapshot() StatsSnapshot {
	snap := StatsSnapshot{
		UptimeSeconds: int64(s.Uptime().Seconds()),
		Requests:      atomic.LoadInt64(&s.totalRequests),
		Errors:        atomic.LoadInt64(&s.totalErrors),
		ByRoute:       make(map[string]int64),
	}

	s.mu.RLock()
	for route, count := range s.byRoute {
		snap.ByRoute[route] = count
	}
	s.mu.RUnlock()

	return snap
}

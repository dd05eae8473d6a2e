// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package telemetry provides usage tracking and analytics for coprelay.
//
// This package aggregates each Copilot CLI request (model, token
// counts, file artifacts, latency, outcome) in memory for the stats
// endpoint and, when enabled, records it in a local SQLite database
// for historical queries.
//
// # Key Types
//
//   - Tracker: Aggregates requests and answers usage queries
//   - Snapshot: In-memory aggregates since process start
//   - Store: SQLite-backed persistence for request records
//   - Request: Single recorded chat completion
//   - Totals: Aggregated statistics over a set of requests
//
// # Usage
//
// Record a completed request:
//
//	tracker, _ := telemetry.NewTracker(telemetry.Options{
//	    Enabled: true,
//	    DBPath:  dbPath,
//	})
//	tracker.Record(telemetry.Request{
//	    Model:            "claude-sonnet-4",
//	    Status:           telemetry.StatusOK,
//	    PromptTokens:     12,
//	    CompletionTokens: 48,
//	    DurationMs:       1840,
//	})
//
// Summarize usage:
//
//	totals, _ := tracker.Totals()
//	fmt.Printf("%d requests, %d tokens\n",
//	    totals.Requests, totals.PromptTokens+totals.CompletionTokens)
//
// # Privacy
//
// Tracking is local-only and never transmits data. Prompt and response
// content is never stored, only counts and timings.
package telemetry

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server exposes the Copilot CLI relay as an HTTP API.
//
// Endpoints:
//
//	POST /api/chat             - run a chat completion
//	POST /api/stream           - same, replayed as server-sent events
//	GET  /api/health           - liveness plus CLI availability (no auth)
//	GET  /api/models           - the static model catalog
//	GET  /api/stats            - request counters and usage snapshot
//	POST /v1/chat/completions  - OpenAI-compatible alias with stream flag
//
// Every request passes through the middleware chain: panic recovery,
// security headers, logging, CORS, per-IP rate limiting, and API key
// auth. Auth accepts "Bearer <key>", "ApiKey <key>", or the raw key,
// verified against a plaintext key or a PBKDF2 hash.
//
// Usage:
//
//	srv := server.New(cfg, svc, workspaces).
//		WithTracker(tracker).
//		WithLedger(ledger)
//	go srv.Start()
//	...
//	srv.Shutdown(ctx)
//
// The server binds 127.0.0.1 by default and is meant to stay local:
// anything with access to the port can drive an agentic CLI with full
// tool access.
package server

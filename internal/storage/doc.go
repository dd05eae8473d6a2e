// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides the on-disk ledger of retained workspaces.
//
// When workspace retention is enabled, the server keeps each run's
// scratch directory instead of removing it and writes a ledger record
// describing the run (model, prompt preview, artifact count). The
// workspaces command reads the ledger to list and prune what was kept.
//
// # Key Types
//
//   - Ledger: Saves, lists, and prunes workspace records
//   - WorkspaceRecord: One retained workspace with its run context
//
// # Usage
//
// Record a kept workspace:
//
//	ledger, err := storage.NewLedger()
//	err = ledger.Record(storage.WorkspaceRecord{
//	    ID:    "copilot_workspace_a1b2c3d4",
//	    Path:  path,
//	    Model: "claude-sonnet-4",
//	})
//
// List and prune:
//
//	recs, err := ledger.List()
//	removed, err := ledger.Prune(24 * time.Hour)
//
// # Storage Location
//
// Records are stored in ~/.coprelay/workspaces/ as JSON files, one per
// retained workspace.
package storage

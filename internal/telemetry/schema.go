// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

// Schema defines the telemetry database schema.
// Versioned through the metadata table; additive changes only.
const Schema = `
-- Metadata table for schema version
CREATE TABLE IF NOT EXISTS metadata (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
) WITHOUT ROWID;

-- Requests table: one row per chat completion
CREATE TABLE IF NOT EXISTS requests (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    created_at INTEGER NOT NULL,        -- Unix timestamp
    model TEXT NOT NULL,
    status TEXT NOT NULL,               -- ok, timeout, error
    prompt_tokens INTEGER NOT NULL,
    completion_tokens INTEGER NOT NULL,
    files_count INTEGER NOT NULL,
    duration_ms INTEGER NOT NULL,
    workspace_id TEXT NOT NULL DEFAULT '',
    streamed INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_requests_created_at ON requests(created_at);
CREATE INDEX IF NOT EXISTS idx_requests_model ON requests(model);
`

// InitMetadata seeds the schema version on first open.
const InitMetadata = `
INSERT OR IGNORE INTO metadata (key, value) VALUES ('schema_version', '1');
`

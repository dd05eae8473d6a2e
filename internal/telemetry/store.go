// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// =============================================================================
// SQLITE STORE
// =============================================================================

// Store persists request records to SQLite.
type Store struct {
	db *sql.DB
}

// OpenStore opens (creating if needed) the telemetry database at path.
func OpenStore(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create telemetry directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if _, err := db.Exec(InitMetadata); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize metadata: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// =============================================================================
// WRITES
// =============================================================================

// Insert records one request.
func (s *Store) Insert(rec Request) error {
	streamed := 0
	if rec.Streamed {
		streamed = 1
	}
	_, err := s.db.Exec(`
		INSERT INTO requests
			(created_at, model, status, prompt_tokens, completion_tokens,
			 files_count, duration_ms, workspace_id, streamed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.Timestamp.Unix(), rec.Model, string(rec.Status),
		rec.PromptTokens, rec.CompletionTokens,
		rec.FilesCount, rec.DurationMs, rec.WorkspaceID, streamed)
	return err
}

// PurgeOlderThan deletes records created before the cutoff and reports
// how many were removed.
func (s *Store) PurgeOlderThan(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec("DELETE FROM requests WHERE created_at < ?", cutoff.Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// =============================================================================
// QUERIES
// =============================================================================

// Count returns the number of stored request records.
func (s *Store) Count() (int64, error) {
	var n int64
	err := s.db.QueryRow("SELECT COUNT(*) FROM requests").Scan(&n)
	return n, err
}

// Totals aggregates all stored requests.
func (s *Store) Totals() (Totals, error) {
	var t Totals
	err := s.db.QueryRow(`
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'ok' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(prompt_tokens), 0),
			COALESCE(SUM(completion_tokens), 0),
			COALESCE(SUM(files_count), 0),
			COALESCE(AVG(duration_ms), 0)
		FROM requests
	`).Scan(&t.Requests, &t.Succeeded, &t.PromptTokens,
		&t.CompletionTokens, &t.FilesProduced, &t.AvgDurationMs)
	if err != nil {
		return Totals{}, err
	}
	t.Failed = t.Requests - t.Succeeded
	return t, nil
}

// ModelBreakdown aggregates usage per model, busiest first.
func (s *Store) ModelBreakdown() ([]ModelUsage, error) {
	rows, err := s.db.Query(`
		SELECT model, COUNT(*), COALESCE(SUM(prompt_tokens + completion_tokens), 0)
		FROM requests
		GROUP BY model
		ORDER BY COUNT(*) DESC, model
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var usage []ModelUsage
	for rows.Next() {
		var m ModelUsage
		if err := rows.Scan(&m.Model, &m.Requests, &m.Tokens); err != nil {
			return nil, err
		}
		usage = append(usage, m)
	}
	return usage, rows.Err()
}

// DailyBreakdown aggregates the trailing N days, oldest first.
func (s *Store) DailyBreakdown(days int) ([]DailyUsage, error) {
	since := time.Now().AddDate(0, 0, -days)
	rows, err := s.db.Query(`
		SELECT
			date(created_at, 'unixepoch'),
			COUNT(*),
			COALESCE(SUM(prompt_tokens + completion_tokens), 0),
			COALESCE(SUM(files_count), 0)
		FROM requests
		WHERE created_at >= ?
		GROUP BY date(created_at, 'unixepoch')
		ORDER BY date(created_at, 'unixepoch')
	`, since.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var daily []DailyUsage
	for rows.Next() {
		var d DailyUsage
		if err := rows.Scan(&d.Date, &d.Requests, &d.Tokens, &d.Files); err != nil {
			return nil, err
		}
		daily = append(daily, d)
	}
	return daily, rows.Err()
}

// Recent returns the newest request records, newest first.
func (s *Store) Recent(limit int) ([]Request, error) {
	rows, err := s.db.Query(`
		SELECT created_at, model, status, prompt_tokens, completion_tokens,
		       files_count, duration_ms, workspace_id, streamed
		FROM requests
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []Request
	for rows.Next() {
		var (
			rec        Request
			createdAt  int64
			status     string
			durationMs int64
			streamed   int
		)
		if err := rows.Scan(&createdAt, &rec.Model, &status,
			&rec.PromptTokens, &rec.CompletionTokens,
			&rec.FilesCount, &durationMs, &rec.WorkspaceID, &streamed); err != nil {
			return nil, err
		}
		rec.Timestamp = time.Unix(createdAt, 0)
		rec.Status = Status(status)
		rec.DurationMs = durationMs
		rec.Streamed = streamed != 0
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package workspace manages per-request scratch directories and collects
// the files a run leaves behind.
//
// Each chat request gets an isolated directory named
// "copilot_workspace_<id>" under the configured root (the OS temp
// directory by default). After the run the directory is scanned for
// artifacts and then removed, unless the manager is configured to keep
// workspaces for inspection.
//
// # Key Types
//
//   - Manager: Creates, scans, and removes workspace directories
//   - Scanner: Walks a directory applying the ignore rules
//   - FileArtifact: One collected file with text and base64 content
//   - Info: Metadata about a leftover workspace directory
//
// # Scan Rules
//
// Scans skip dependency and cache directories (node_modules, .venv, .git,
// build outputs), compiled and temporary files, OS metadata files, and
// dotfiles other than .gitignore and .dockerignore. Environment files
// such as .env are never returned. Files over the size cap (1 MiB by
// default) are skipped with a warning.
package workspace

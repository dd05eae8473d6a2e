// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package workspace

import (
	"path/filepath"
	"strings"
)

// =============================================================================
// IGNORE RULES
// =============================================================================

// ignoredDirs are directory names whose subtrees are excluded from scans.
var ignoredDirs = map[string]bool{
	// Virtual environments
	".venv": true, "venv": true, "env": true, ".env": true,
	// Python caches
	"__pycache__": true, ".pytest_cache": true, ".mypy_cache": true, ".ruff_cache": true,
	// Node.js
	"node_modules": true, ".npm": true,
	// Version control
	".git": true, ".svn": true, ".hg": true,
	// IDE folders
	".idea": true, ".vscode": true, ".vs": true,
	// Build outputs
	"dist": true, "build": true, "target": true, "out": true,
	// Testing
	".tox": true, ".nox": true, "htmlcov": true, ".coverage": true,
	// Python packaging
	"egg-info": true, ".eggs": true,
}

// ignoredExtensions are file extensions excluded from scans.
// Matched against the lowercased extension.
var ignoredExtensions = map[string]bool{
	// Python compiled
	".pyc": true, ".pyo": true, ".pyd": true,
	// Compiled libraries
	".so": true, ".dll": true, ".dylib": true,
	// Executables
	".exe": true,
	// Temp/log files
	".log": true, ".tmp": true, ".temp": true,
	// System/git files
	".DS_Store": true, ".gitignore": true, ".gitattributes": true,
}

// ignoredFiles are exact file names excluded from scans.
// Environment files may contain secrets and are never returned.
var ignoredFiles = map[string]bool{
	".DS_Store":        true,
	"Thumbs.db":        true,
	"desktop.ini":      true,
	".env":             true,
	".env.local":       true,
	".env.development": true,
}

// scannableDotfiles are the dotfiles kept despite the leading dot.
var scannableDotfiles = map[string]bool{
	".gitignore":    true,
	".dockerignore": true,
}

// fileExt returns the lowercased extension of a file name. A leading dot
// alone does not start an extension, so dotfiles like ".gitignore" have
// none.
func fileExt(name string) string {
	ext := filepath.Ext(name)
	if ext == name {
		return ""
	}
	return strings.ToLower(ext)
}

// skipDir reports whether a directory subtree is excluded from scans.
func (s *Scanner) skipDir(name string) bool {
	return ignoredDirs[name] || s.extraDirs[name]
}

// skipFile reports whether a file is excluded from scans.
func (s *Scanner) skipFile(name string) bool {
	if ignoredFiles[name] || s.extraFiles[name] {
		return true
	}
	if strings.HasPrefix(name, ".") && !scannableDotfiles[name] {
		return true
	}
	ext := fileExt(name)
	return ignoredExtensions[ext] || s.extraExts[ext]
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package workspace

import (
	"encoding/base64"
	"log"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/alecthomas/chroma/v2/lexers"
)

// DefaultMaxFileSize is the per-file size cap for scans. Files over the
// cap are skipped with a warning rather than failing the scan.
const DefaultMaxFileSize = 1 << 20 // 1 MiB

// =============================================================================
// FILE ARTIFACT TYPE
// =============================================================================

// FileArtifact is one file collected from a workspace after a run.
// Path always uses forward slashes regardless of host OS. ContentText is
// nil for binary files; ContentBase64 is set for every file.
type FileArtifact struct {
	Path          string  `json:"path"`
	Name          string  `json:"name"`
	Extension     string  `json:"extension"`
	Size          int64   `json:"size"`
	IsBinary      bool    `json:"is_binary"`
	MimeType      string  `json:"mime_type"`
	ContentBase64 string  `json:"content_base64"`
	ContentText   *string `json:"content_text"`
	Language      string  `json:"language,omitempty"`
}

// =============================================================================
// SCANNER
// =============================================================================

// Scanner walks a workspace directory and collects the files a run
// produced, honoring the ignore rules.
type Scanner struct {
	maxFileSize int64
	extraDirs   map[string]bool
	extraExts   map[string]bool
	extraFiles  map[string]bool
}

// NewScanner creates a scanner. A non-positive maxFileSize falls back to
// DefaultMaxFileSize. Extra ignored directory names, extensions, and exact
// file names extend the built-in rules.
func NewScanner(maxFileSize int64, extraDirs, extraExts, extraFiles []string) *Scanner {
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}

	s := &Scanner{
		maxFileSize: maxFileSize,
		extraDirs:   make(map[string]bool, len(extraDirs)),
		extraExts:   make(map[string]bool, len(extraExts)),
		extraFiles:  make(map[string]bool, len(extraFiles)),
	}
	for _, dir := range extraDirs {
		s.extraDirs[dir] = true
	}
	for _, ext := range extraExts {
		s.extraExts[ext] = true
	}
	for _, name := range extraFiles {
		s.extraFiles[name] = true
	}
	return s
}

// Scan walks root and returns the artifacts found, in lexical path order.
// Unreadable entries are skipped with a warning. The returned slice is
// never nil, so an empty workspace serializes as a JSON array.
func (s *Scanner) Scan(root string) ([]FileArtifact, error) {
	files := make([]FileArtifact, 0)

	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip unreadable entries
		}

		name := info.Name()
		if info.IsDir() {
			if path == root {
				return nil
			}
			if s.skipDir(name) {
				return filepath.SkipDir
			}
			return nil
		}

		if !info.Mode().IsRegular() {
			return nil
		}
		if s.skipFile(name) {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}

		if info.Size() > s.maxFileSize {
			log.Printf("Skipping large file: %s (%d bytes)", filepath.ToSlash(rel), info.Size())
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			log.Printf("Failed to read file %s: %v", path, err)
			return nil
		}

		files = append(files, buildArtifact(rel, name, content))
		return nil
	})
	if err != nil {
		return files, err
	}

	return files, nil
}

// buildArtifact creates an artifact from file content. UTF-8 content is
// returned both as text and base64; anything else is flagged binary and
// carried as base64 only.
func buildArtifact(rel, name string, content []byte) FileArtifact {
	ext := fileExt(name)
	isBinary := !utf8.Valid(content)

	artifact := FileArtifact{
		Path:          filepath.ToSlash(rel),
		Name:          name,
		Extension:     ext,
		Size:          int64(len(content)),
		IsBinary:      isBinary,
		MimeType:      mimeTypeFor(ext),
		ContentBase64: base64.StdEncoding.EncodeToString(content),
	}

	if !isBinary {
		text := string(content)
		artifact.ContentText = &text
		artifact.Language = detectLanguage(name)
	}

	return artifact
}

// detectLanguage names the language of a file from its name, or returns
// "" when no lexer claims it.
func detectLanguage(name string) string {
	lexer := lexers.Match(name)
	if lexer == nil {
		return ""
	}
	return lexer.Config().Name
}

// =============================================================================
// MIME TYPES
// =============================================================================

// mimeMap maps lowercased file extensions to MIME types.
var mimeMap = map[string]string{
	".py":         "text/x-python",
	".js":         "text/javascript",
	".ts":         "text/typescript",
	".jsx":        "text/jsx",
	".tsx":        "text/tsx",
	".json":       "application/json",
	".html":       "text/html",
	".css":        "text/css",
	".md":         "text/markdown",
	".txt":        "text/plain",
	".yaml":       "text/yaml",
	".yml":        "text/yaml",
	".xml":        "application/xml",
	".sh":         "text/x-shellscript",
	".bash":       "text/x-shellscript",
	".ps1":        "text/x-powershell",
	".java":       "text/x-java",
	".c":          "text/x-c",
	".cpp":        "text/x-c++",
	".h":          "text/x-c",
	".cs":         "text/x-csharp",
	".go":         "text/x-go",
	".rs":         "text/x-rust",
	".rb":         "text/x-ruby",
	".php":        "text/x-php",
	".sql":        "text/x-sql",
	".dockerfile": "text/x-dockerfile",
	".gitignore":  "text/plain",
	".env":        "text/plain",
}

// mimeTypeFor returns the MIME type for an extension, defaulting to
// application/octet-stream.
func mimeTypeFor(ext string) string {
	if mime, ok := mimeMap[ext]; ok {
		return mime
	}
	return "application/octet-stream"
}

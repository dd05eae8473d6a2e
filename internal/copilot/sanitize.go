// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package copilot

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ansiEscape matches ANSI escape sequences: CSI sequences with their
// parameter and intermediate bytes, plus two-byte escapes.
var ansiEscape = regexp.MustCompile(`\x1b(?:[@-Z\\-_]|\[[0-?]*[ -/]*[@-~])`)

// spinnerGlyphs are the braille animation frames the CLI draws while
// thinking. Any line containing one is progress noise, not output.
const spinnerGlyphs = "⠋⠙⠹⠸⠼⠴⠦⠧⠇⠏"

// CleanOutput strips terminal control noise from raw CLI stdout:
// ANSI escapes, spinner animation lines, and leading blank lines.
// Empty input produces a placeholder so callers always have content.
func CleanOutput(raw string) string {
	if raw == "" {
		return "No response from Copilot"
	}

	cleaned := ansiEscape.ReplaceAllString(raw, "")

	// UNICODE: NFC so combining sequences from the terminal compare and
	// measure the same as their precomposed forms.
	cleaned = norm.NFC.String(cleaned)

	lines := strings.Split(cleaned, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.ContainsAny(line, spinnerGlyphs) {
			continue
		}
		kept = append(kept, line)
	}

	// Progress output leaves blank lines above the real answer.
	start := 0
	for start < len(kept) && strings.TrimSpace(kept[start]) == "" {
		start++
	}

	return strings.TrimSpace(strings.Join(kept[start:], "\n"))
}

// cliFailureText formats a nonzero-exit run as response text. The
// stderr tail is usually the most useful thing the CLI said.
func cliFailureText(stderr string) string {
	if stderr == "" {
		return "Copilot CLI error"
	}
	return strings.TrimSpace(stderr)
}

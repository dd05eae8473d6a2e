// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the Bubble Tea chat interface for coprelay.
//
// This file implements the slash commands. They mirror the plain REPL
// commands so either interface works the same:
//
//	/help, /h           Show available commands
//	/clear, /c          Clear conversation history
//	/model [name]       Show or switch model
//	/files, /f          List files from the last response
//	/quit, /q           Exit chat
package chat

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/coprelay/internal/workspace"
)

// chatHelp is the /help notice body.
const chatHelp = `Commands:
/help, /h       show this help
/clear, /c      clear conversation history
/model [name]   show or switch model
/files, /f      list files from the last response
/quit, /q       exit chat

Enter sends, Alt+Enter inserts a newline, Ctrl+C cancels a running
response or quits when idle.`

// handleSlashCommand dispatches a typed slash command. Feedback goes
// into the transcript as notices.
func (m Model) handleSlashCommand(input string) (tea.Model, tea.Cmd) {
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return m, nil
	}

	command := strings.ToLower(parts[0])
	rest := parts[1:]

	switch command {
	case "/help", "/h", "/?", "/":
		m.appendNotice("%s", chatHelp)

	case "/clear", "/c":
		m.turns = nil
		m.appendNotice("Conversation cleared.")

	case "/model", "/m":
		if len(rest) == 0 {
			m.appendNotice("Model: %s", m.currentModel())
		} else {
			m.modelName = rest[0]
			m.appendNotice("Switched to model: %s", m.modelName)
		}

	case "/files", "/f":
		m.appendNotice("%s", describeLastFiles(m.lastAssistantFiles()))

	case "/quit", "/q", "/exit":
		return m, tea.Quit

	default:
		m.appendNotice("Unknown command: %s (/help lists commands)", command)
	}

	m.refreshTranscript(true)
	return m, nil
}

// describeLastFiles summarizes the artifacts of the latest response.
func describeLastFiles(files []workspace.FileArtifact) string {
	if len(files) == 0 {
		return "No files in the last response."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Files from last response (%d):\n", len(files))
	for _, f := range files {
		kind := f.MimeType
		if f.IsBinary {
			kind += ", binary"
		}
		fmt.Fprintf(&b, "%s (%s, %s)\n", f.Path, formatSize(f.Size), kind)
	}
	b.WriteString("Save them with: coprelay ask --save-files DIR \"...\"")
	return b.String()
}

// formatSize renders a byte count in human units.
func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

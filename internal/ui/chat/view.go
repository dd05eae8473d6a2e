// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the Bubble Tea chat interface for coprelay.
//
// This file renders the chat interface: the header, the status line
// under the transcript, and the markdown treatment for finalized
// assistant turns. Transcript bubbles live in transcript.go.
package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/coprelay/internal/ui/styles"
)

// =============================================================================
// LAYOUT
// =============================================================================

const (
	// inputHeight is the textarea height in rows.
	inputHeight = 3

	// minWrapWidth is the narrowest wrap width before clamping.
	minWrapWidth = 20
)

// =============================================================================
// MARKDOWN RENDERING
// =============================================================================

// markdownRenderer renders finalized assistant turns as terminal
// markdown. A nil inner renderer falls back to plain text, so a
// glamour initialization failure degrades the display instead of
// breaking it.
type markdownRenderer struct {
	width    int
	renderer *glamour.TermRenderer
}

// newMarkdownRenderer builds a renderer wrapping at the given width.
func newMarkdownRenderer(width int) *markdownRenderer {
	if width < minWrapWidth {
		width = minWrapWidth
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return &markdownRenderer{width: width}
	}
	return &markdownRenderer{width: width, renderer: r}
}

// render converts markdown to styled terminal text. The original
// content comes back untouched when rendering is unavailable.
func (r *markdownRenderer) render(content string) string {
	if r == nil || r.renderer == nil {
		return content
	}

	rendered, err := r.renderer.Render(content)
	if err != nil {
		return content
	}
	// Glamour pads with blank lines top and bottom; the bubble
	// supplies its own spacing.
	return strings.Trim(rendered, "\n")
}

// =============================================================================
// VIEW
// =============================================================================

// View renders the complete chat interface.
func (m Model) View() string {
	if !m.ready {
		return "\n  Starting chat..."
	}

	return lipgloss.JoinVertical(
		lipgloss.Left,
		m.renderHeader(),
		m.viewport.View(),
		m.renderStatusLine(),
		m.input.View(),
	)
}

// renderHeader renders the title bar with the active model and relay
// address.
func (m Model) renderHeader() string {
	title := lipgloss.NewStyle().
		Foreground(styles.Cyan).
		Bold(true).
		Render("coprelay chat")

	meta := lipgloss.NewStyle().
		Foreground(styles.TextMuted).
		Render(fmt.Sprintf("%s  •  %s", m.currentModel(), m.client.BaseURL()))

	line := title + "  " + meta

	width := m.width
	if width < 1 {
		width = 1
	}
	separator := lipgloss.NewStyle().
		Foreground(styles.OverlayDim).
		Render(strings.Repeat("─", width))

	return lipgloss.JoinVertical(lipgloss.Left, line, separator)
}

// renderStatusLine renders the hint line between transcript and input.
func (m Model) renderStatusLine() string {
	hintStyle := lipgloss.NewStyle().Foreground(styles.TextMuted)

	if m.state == StateStreaming {
		return m.spinner.View() + hintStyle.Render(" waiting for the relay  •  Ctrl+C cancels")
	}

	if m.statusMsg != "" {
		return lipgloss.NewStyle().Foreground(styles.Amber).Render(m.statusMsg)
	}

	return hintStyle.Render("Enter send  •  Alt+Enter newline  •  /help commands  •  Ctrl+C quit")
}

// chromeHeight is the number of rows everything except the viewport
// occupies, used to size the viewport on resize.
func (m Model) chromeHeight() int {
	return lipgloss.Height(m.renderHeader()) +
		lipgloss.Height(m.renderStatusLine()) +
		lipgloss.Height(m.input.View())
}

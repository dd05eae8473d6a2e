// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the Bubble Tea chat interface for coprelay.
//
// This file renders the transcript: user turns as right-aligned blue
// bubbles, assistant turns as left-aligned purple bubbles with
// markdown applied once the turn finalizes, and notices centered in
// amber.
package chat

import (
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/coprelay/internal/ui/styles"
	"github.com/jeranaias/coprelay/internal/util"
)

// =============================================================================
// TRANSCRIPT
// =============================================================================

// renderTranscript renders every turn, separated by blank lines.
func (m Model) renderTranscript() string {
	if len(m.turns) == 0 {
		return m.renderWelcome()
	}

	parts := make([]string, 0, len(m.turns))
	for i, t := range m.turns {
		switch t.role {
		case roleUser:
			parts = append(parts, m.renderUserTurn(t))
		case roleAssistant:
			streaming := !t.final && i == len(m.turns)-1 && m.state == StateStreaming
			parts = append(parts, m.renderAssistantTurn(t, streaming))
		case roleNotice:
			parts = append(parts, m.renderNoticeTurn(t))
		}
	}

	return strings.Join(parts, "\n\n")
}

// renderWelcome fills the empty transcript with a short orientation.
func (m Model) renderWelcome() string {
	text := lipgloss.NewStyle().
		Foreground(styles.TextMuted).
		Render("Connected to " + m.client.BaseURL() + "\n\n" +
			"Type a prompt and press Enter. /help lists commands.")

	return lipgloss.NewStyle().
		Width(m.width).
		Align(lipgloss.Center).
		PaddingTop(2).
		Render(text)
}

// =============================================================================
// USER TURNS
// =============================================================================

// renderUserTurn renders a right-aligned blue bubble.
func (m Model) renderUserTurn(t turn) string {
	content := t.content
	if content == "" {
		content = "..."
	}

	wrapped := wordWrap(content, m.wrapWidth())
	contentWidth := m.bubbleWidth(wrapped)

	bubble := lipgloss.NewStyle().
		Foreground(styles.UserBubbleFg).
		Background(styles.UserBubbleBg).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(styles.UserBubbleBorder).
		Padding(0, 2).
		Width(contentWidth).
		Render(wrapped)

	header := roleLabel("you", t.started)

	// Push the bubble to the right edge.
	leftMargin := m.width - contentWidth - 4
	if leftMargin < 0 {
		leftMargin = 0
	}
	margin := lipgloss.NewStyle().MarginLeft(leftMargin)

	return lipgloss.JoinVertical(lipgloss.Right,
		margin.Render(header),
		margin.Render(bubble),
	)
}

// =============================================================================
// ASSISTANT TURNS
// =============================================================================

// renderAssistantTurn renders a left-aligned purple bubble. While the
// turn streams it shows raw text with a cursor; once finalized the
// content is rendered as markdown. Glamour output carries its own
// backgrounds, so the bubble sets none.
func (m Model) renderAssistantTurn(t turn, streaming bool) string {
	var body string
	switch {
	case t.final:
		body = m.markdown.render(t.content)
	case streaming:
		body = wordWrap(t.content, m.wrapWidth()) + streamCursor()
	default:
		body = wordWrap(t.content, m.wrapWidth())
	}
	if body == "" {
		body = "..."
	}

	contentWidth := m.bubbleWidth(body)

	bubble := lipgloss.NewStyle().
		Foreground(styles.AssistantBubbleFg).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(styles.AssistantBubbleBorder).
		Padding(0, 2).
		Width(contentWidth).
		MarginRight(4).
		Render(body)

	label := "assistant"
	if m.modelName != "" {
		label = m.modelName
	}
	header := roleLabel(label, t.started)

	result := lipgloss.JoinVertical(lipgloss.Left, header, bubble)
	if files := renderFilesLine(t); files != "" {
		result = lipgloss.JoinVertical(lipgloss.Left, result, files)
	}
	return result
}

// renderFilesLine lists the artifacts a finalized turn produced.
func renderFilesLine(t turn) string {
	if !t.final || len(t.files) == 0 {
		return ""
	}

	names := make([]string, len(t.files))
	for i, f := range t.files {
		names[i] = f.Name
	}

	count := lipgloss.NewStyle().
		Foreground(styles.Emerald).
		Render(util.IntToString(len(t.files)) + " file(s)")
	list := lipgloss.NewStyle().
		Foreground(styles.TextMuted).
		Render(strings.Join(names, ", ") + "  •  /files for details")

	return lipgloss.NewStyle().
		PaddingLeft(2).
		Render(count + " " + list)
}

// streamCursor renders the blinking cursor appended while streaming.
func streamCursor() string {
	return lipgloss.NewStyle().
		Foreground(styles.Purple).
		Blink(true).
		Render("▊")
}

// =============================================================================
// NOTICES
// =============================================================================

// renderNoticeTurn renders a centered amber bubble for errors, slash
// command feedback, and other interface events.
func (m Model) renderNoticeTurn(t turn) string {
	wrapped := wordWrap(t.content, m.wrapWidth())
	contentWidth := m.bubbleWidth(wrapped)

	bubble := lipgloss.NewStyle().
		Foreground(styles.NoticeBubbleFg).
		Background(styles.NoticeBubbleBg).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(styles.NoticeBubbleBorder).
		Padding(0, 2).
		Width(contentWidth).
		Align(lipgloss.Center).
		Render(wrapped)

	center := lipgloss.NewStyle().
		Width(m.width).
		Align(lipgloss.Center)

	return center.Render(bubble)
}

// =============================================================================
// HELPERS
// =============================================================================

// roleLabel renders the muted italic "who and when" line above a
// bubble.
func roleLabel(role string, ts time.Time) string {
	label := lipgloss.NewStyle().
		Foreground(styles.TextMuted).
		Italic(true).
		Render(role)

	if ts.IsZero() {
		return label
	}
	stamp := lipgloss.NewStyle().
		Foreground(styles.TextMuted).
		Italic(true).
		Render(ts.Format("15:04"))
	return label + " " + stamp
}

// wrapWidth returns the width content wraps at, leaving room for
// bubble borders, padding, and the opposing margin.
func (m Model) wrapWidth() int {
	w := m.width - 12
	if w < minWrapWidth {
		w = minWrapWidth
	}
	return w
}

// bubbleWidth sizes a bubble to its widest line, clamped to the
// window.
func (m Model) bubbleWidth(wrapped string) int {
	w := maxLineWidth(wrapped) + 4
	limit := m.width - 8
	if limit < minWrapWidth {
		limit = minWrapWidth
	}
	if w > limit {
		w = limit
	}
	return w
}

// wordWrap wraps text at word boundaries, preserving existing line
// breaks.
// UNICODE: widths are measured in runes, not bytes.
func wordWrap(text string, width int) string {
	if width <= 0 {
		return text
	}

	var result strings.Builder
	for lineIdx, line := range strings.Split(text, "\n") {
		if lineIdx > 0 {
			result.WriteString("\n")
		}

		words := strings.Fields(line)
		if len(words) == 0 {
			continue
		}

		current := words[0]
		for _, word := range words[1:] {
			if util.RuneLen(current)+1+util.RuneLen(word) <= width {
				current += " " + word
			} else {
				result.WriteString(current)
				result.WriteString("\n")
				current = word
			}
		}
		result.WriteString(current)
	}

	return result.String()
}

// maxLineWidth returns the display width of the widest line.
func maxLineWidth(text string) int {
	maxWidth := 0
	for _, line := range strings.Split(text, "\n") {
		if w := lipgloss.Width(line); w > maxWidth {
			maxWidth = w
		}
	}
	return maxWidth
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the Bubble Tea chat interface for coprelay.
//
// This file implements the update loop: window resizing, key
// handling, prompt submission, and folding stream events into the
// transcript.
package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/coprelay/internal/copilot"
)

// =============================================================================
// UPDATE
// =============================================================================

// Update handles all incoming messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg)

	case tea.KeyMsg:
		return m.handleKey(msg)

	case streamEventMsg:
		return m.handleStreamEvent(msg)

	case streamDoneMsg:
		return m.handleStreamDone()

	case streamErrMsg:
		return m.handleStreamFailure(msg.err)

	case spinner.TickMsg:
		if m.state != StateStreaming {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	// Everything else (mouse wheel and the like) goes to the viewport.
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// =============================================================================
// RESIZE
// =============================================================================

// handleResize fits the layout to the new window and rebuilds the
// markdown renderer at the new wrap width.
func (m Model) handleResize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	m.width = msg.Width
	m.height = msg.Height

	inputWidth := msg.Width - 2
	if inputWidth < minWrapWidth {
		inputWidth = minWrapWidth
	}
	m.input.SetWidth(inputWidth)
	m.markdown = newMarkdownRenderer(m.wrapWidth())

	vpHeight := msg.Height - m.chromeHeight()
	if vpHeight < 1 {
		vpHeight = 1
	}

	if !m.ready {
		m.viewport = viewport.New(msg.Width, vpHeight)
		m.ready = true
	} else {
		m.viewport.Width = msg.Width
		m.viewport.Height = vpHeight
	}

	m.refreshTranscript(true)
	return m, nil
}

// =============================================================================
// KEYS
// =============================================================================

// handleKey routes key presses between submit, cancel, scrolling, and
// the textarea.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		if m.state == StateStreaming {
			m.cancelMgr.cancel()
			m.statusMsg = "Cancelling..."
			return m, nil
		}
		return m, tea.Quit

	case tea.KeyEnter:
		if msg.Alt {
			m.input.InsertString("\n")
			return m, nil
		}
		return m.handleSubmit()

	case tea.KeyPgUp, tea.KeyPgDown:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	m.statusMsg = ""
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// =============================================================================
// SUBMIT
// =============================================================================

// handleSubmit sends the typed prompt to the relay, or dispatches it
// as a slash command.
func (m Model) handleSubmit() (tea.Model, tea.Cmd) {
	if m.state == StateStreaming {
		m.statusMsg = "Still streaming. Ctrl+C cancels."
		return m, nil
	}

	prompt := trimmedPrompt(m.input.Value())
	if prompt == "" {
		return m, nil
	}

	if strings.HasPrefix(prompt, "/") {
		m.input.Reset()
		return m.handleSlashCommand(prompt)
	}

	m.input.Reset()
	m.statusMsg = ""

	now := time.Now()
	m.turns = append(m.turns,
		turn{role: roleUser, content: prompt, started: now, final: true},
		turn{role: roleAssistant, started: now},
	)

	m.state = StateStreaming
	cmd := startStream(&m, m.historyMessages())

	m.refreshTranscript(true)
	return m, tea.Batch(m.spinner.Tick, cmd)
}

// historyMessages converts the transcript into the request history.
// Notices and the in-flight assistant turn stay local.
func (m Model) historyMessages() []copilot.ChatMessage {
	msgs := make([]copilot.ChatMessage, 0, len(m.turns))
	for _, t := range m.turns {
		switch t.role {
		case roleUser:
			msgs = append(msgs, copilot.NewUserMessage(t.content))
		case roleAssistant:
			if t.final && t.content != "" {
				msgs = append(msgs, copilot.NewAssistantMessage(t.content))
			}
		}
	}
	return msgs
}

// =============================================================================
// STREAM EVENTS
// =============================================================================

// handleStreamEvent folds one event into the trailing assistant turn
// and re-arms the pump.
func (m Model) handleStreamEvent(msg streamEventMsg) (tea.Model, tea.Cmd) {
	// A buffered event can land after cancellation tore the stream
	// down. Dropping it keeps the pump from re-arming on nothing.
	if m.stream == nil {
		return m, nil
	}

	ev := msg.event

	if ev.Err != nil {
		m.appendNotice("Stream error: %v", ev.Err)
	}

	if i := m.activeAssistantIndex(); i >= 0 {
		if ev.Content != "" {
			m.turns[i].content += ev.Content
		}
		if ev.HasFiles() {
			m.turns[i].files = ev.Files
		}
		if ev.Done() {
			m.turns[i].final = true
		}
	}

	// Keep the view pinned only while the user is at the bottom.
	atBottom := m.viewport.AtBottom()
	m.refreshTranscript(atBottom)

	return m, pumpStream(m.stream)
}

// handleStreamDone finalizes the turn after a clean close.
func (m Model) handleStreamDone() (tea.Model, tea.Cmd) {
	m.finishStream()

	if i := m.activeAssistantIndex(); i >= 0 {
		m.turns[i].final = true
	}

	m.refreshTranscript(true)
	return m, nil
}

// handleStreamFailure reports a failed or cancelled stream. A turn
// with partial content is kept and finalized; an empty one is
// dropped.
func (m Model) handleStreamFailure(err error) (tea.Model, tea.Cmd) {
	m.finishStream()

	if i := m.activeAssistantIndex(); i >= 0 {
		if m.turns[i].content == "" {
			m.turns = append(m.turns[:i], m.turns[i+1:]...)
		} else {
			m.turns[i].final = true
		}
	}

	if errors.Is(err, context.Canceled) {
		m.appendNotice("Response cancelled.")
	} else {
		m.appendNotice("Stream failed: %v", err)
	}

	m.refreshTranscript(true)
	return m, nil
}

// finishStream releases the stream context and returns to ready.
func (m *Model) finishStream() {
	m.cancelMgr.cancel()
	m.stream = nil
	m.state = StateReady
	m.statusMsg = ""
}

// activeAssistantIndex returns the index of the trailing assistant
// turn, skipping notices, or -1 when the last exchange has none.
func (m Model) activeAssistantIndex() int {
	for i := len(m.turns) - 1; i >= 0; i-- {
		switch m.turns[i].role {
		case roleAssistant:
			return i
		case roleUser:
			return -1
		}
	}
	return -1
}

// refreshTranscript re-renders the transcript into the viewport.
func (m *Model) refreshTranscript(goBottom bool) {
	m.viewport.SetContent(m.renderTranscript())
	if goBottom {
		m.viewport.GotoBottom()
	}
}

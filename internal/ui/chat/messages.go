// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the Bubble Tea chat interface for coprelay.
//
// This file defines the Bubble Tea message types for the chat
// interface and the commands that bridge the relay's SSE stream into
// the update loop. The stream arrives on a channel; a pump command
// reads one event at a time and re-arms itself, so every event passes
// through Update like any other message.
package chat

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/coprelay/internal/client"
	"github.com/jeranaias/coprelay/internal/copilot"
)

// =============================================================================
// STREAM MESSAGES
// =============================================================================

// streamEventMsg delivers one decoded stream event.
type streamEventMsg struct {
	event client.StreamEvent
}

// streamDoneMsg signals that the stream closed cleanly.
type streamDoneMsg struct{}

// streamErrMsg signals that the stream failed.
type streamErrMsg struct {
	err error
}

// =============================================================================
// STREAM HANDLE
// =============================================================================

// streamHandle carries the live channels of one in-flight stream.
type streamHandle struct {
	events <-chan client.StreamEvent
	errc   <-chan error
}

// startStream opens a streaming chat request against the relay and
// returns the handle plus the first pump command. The context is
// registered with the cancel manager so Ctrl+C can abort mid-stream.
func startStream(m *Model, messages []copilot.ChatMessage) tea.Cmd {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancelMgr.set(cancel)

	events, errc := m.client.ChatStreamChan(ctx, &copilot.ChatRequest{
		Messages: messages,
		Model:    m.modelName,
	})
	m.stream = &streamHandle{events: events, errc: errc}

	return pumpStream(m.stream)
}

// pumpStream reads the next event from the stream. When the events
// channel closes, the buffered error channel decides between a clean
// finish and a failure.
func pumpStream(h *streamHandle) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-h.events
		if !ok {
			if err := <-h.errc; err != nil {
				return streamErrMsg{err: err}
			}
			return streamDoneMsg{}
		}
		return streamEventMsg{event: ev}
	}
}


// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the Bubble Tea chat interface for coprelay.
package chat

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/coprelay/internal/client"
	"github.com/jeranaias/coprelay/internal/ui/styles"
	"github.com/jeranaias/coprelay/internal/workspace"
)

// =============================================================================
// CHAT STATE
// =============================================================================

// State represents the current state of the chat view.
type State int

const (
	StateReady     State = iota // Ready for input
	StateStreaming              // Receiving a streamed response
)

// =============================================================================
// TRANSCRIPT
// =============================================================================

// Turn roles in the transcript.
const (
	roleUser      = "user"
	roleAssistant = "assistant"
	roleNotice    = "notice"
)

// turn is one entry in the transcript.
type turn struct {
	role    string
	content string
	files   []workspace.FileArtifact
	started time.Time
	final   bool
}

// =============================================================================
// OPTIONS
// =============================================================================

// Options configures the chat interface.
type Options struct {
	// Client talks to the relay. Required.
	Client *client.Client

	// Model overrides the relay's default model when non-empty.
	Model string
}

// =============================================================================
// CHAT MODEL
// =============================================================================

// Model is the Bubble Tea model for the chat interface.
type Model struct {
	// State
	state State

	// Dimensions
	width  int
	height int
	ready  bool

	// Transcript
	turns []turn

	// Relay
	client    *client.Client
	modelName string

	// In-flight stream
	stream    *streamHandle
	cancelMgr *cancelManager

	// UI components
	viewport viewport.Model
	input    textarea.Model
	spinner  spinner.Model

	// Markdown rendering, rebuilt on resize
	markdown *markdownRenderer

	// Transient status line message
	statusMsg string
}

// New creates a chat model from options.
func New(opts Options) Model {
	ta := textarea.New()
	ta.Placeholder = "Ask anything. Enter sends, Alt+Enter for a new line."
	ta.Prompt = "┃ "
	ta.CharLimit = 0
	ta.SetHeight(inputHeight)
	ta.ShowLineNumbers = false
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.KeyMap.InsertNewline.SetEnabled(false)
	ta.Focus()

	sp := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(lipgloss.NewStyle().Foreground(styles.Purple)),
	)

	return Model{
		state:     StateReady,
		client:    opts.Client,
		modelName: opts.Model,
		cancelMgr: newCancelManager(),
		input:     ta,
		spinner:   sp,
		markdown:  newMarkdownRenderer(80),
	}
}

// Init starts the cursor blink.
func (m Model) Init() tea.Cmd {
	return textarea.Blink
}

// currentModel returns the model name shown in the header.
func (m Model) currentModel() string {
	if m.modelName != "" {
		return m.modelName
	}
	return "relay default"
}

// lastAssistantFiles returns the artifacts from the most recent
// assistant turn, newest first lookup.
func (m Model) lastAssistantFiles() []workspace.FileArtifact {
	for i := len(m.turns) - 1; i >= 0; i-- {
		if m.turns[i].role == roleAssistant && len(m.turns[i].files) > 0 {
			return m.turns[i].files
		}
	}
	return nil
}

// appendNotice adds an amber notice line to the transcript.
func (m *Model) appendNotice(format string, args ...interface{}) {
	m.turns = append(m.turns, turn{
		role:    roleNotice,
		content: fmt.Sprintf(format, args...),
		final:   true,
	})
}

// =============================================================================
// RUN
// =============================================================================

// Run starts the chat interface and blocks until it exits.
func Run(opts Options) error {
	if opts.Client == nil {
		return fmt.Errorf("chat requires a relay client")
	}

	p := tea.NewProgram(
		New(opts),
		tea.WithAltScreen(),
	)

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("chat interface failed: %w", err)
	}
	return nil
}

// =============================================================================
// TRANSCRIPT HELPERS
// =============================================================================

// trimmedPrompt normalizes submitted input.
func trimmedPrompt(s string) string {
	return strings.TrimSpace(s)
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package chat provides the full-screen chat interface for coprelay.

The chat package implements a terminal chat session against a running
coprelay relay using the Bubble Tea framework. Prompts stream through
the relay to the GitHub Copilot CLI; responses render live into a
scrollable transcript.

# Key Components

## Model (model.go)

The Model struct is the central Bubble Tea model holding all chat
state:
  - Transcript of user, assistant, and notice turns
  - Relay client and active model selection
  - Streaming state and the in-flight stream handle
  - Viewport, textarea, and spinner components

## View Rendering (view.go, transcript.go)

Rendering for the complete interface:
  - Header with model name and relay address
  - Right-aligned user bubbles, left-aligned assistant bubbles
  - Markdown rendering of finalized assistant turns via glamour
  - Centered amber notices for errors and command feedback
  - Status line with hints, or a spinner while streaming

## Update Loop (update.go)

Handles all Bubble Tea messages:
  - Keyboard input, including Enter to send and Alt+Enter for newlines
  - Stream events folded into the trailing assistant turn
  - Ctrl+C cancellation of a running response
  - Window resize handling

## Streaming (messages.go, cancel.go)

The relay stream arrives on channels; a pump command reads one event
at a time so every token passes through the update loop. The cancel
function is mutex-guarded because Bubble Tea copies the model on every
update.

## Commands (commands.go)

Slash commands, mirroring the plain REPL:
  - /help - Show available commands
  - /clear - Clear conversation
  - /model - Show or switch model
  - /files - List files from the last response
  - /quit - Exit chat

# Usage

Start the interface with a relay client:

	c := client.New("http://127.0.0.1:8788")
	err := chat.Run(chat.Options{
		Client: c,
		Model:  "gpt-5",
	})
	if err != nil {
		log.Fatal(err)
	}
*/
package chat

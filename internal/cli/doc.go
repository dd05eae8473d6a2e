// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli provides command-line interface parsing and execution for
// coprelay.
//
// This package implements every coprelay command, covering both the
// relay server process and the client-side commands that talk to it
// over HTTP.
//
// # Key Types
//
//   - Command: Enumeration of all available CLI commands
//   - Args: Parsed command-line arguments with global and command-specific flags
//
// # Usage
//
// Parse and dispatch commands:
//
//	cmd, args := cli.Parse()
//	switch cmd {
//	case cli.CmdServe:
//	    cli.HandleServe(args)
//	case cli.CmdAsk:
//	    cli.HandleAsk(args)
//	// ... other commands
//	}
//
// # Commands Overview
//
// Server:
//   - serve: Run the relay HTTP server (the default command)
//
// Client:
//   - ask: One-shot question through the relay
//   - chat: Interactive chat session (TUI or plain REPL)
//   - status: Relay health, models, and usage display
//   - models: List models the relay can route to
//   - config: Configuration management
//   - workspaces: Inspect and prune retained scratch workspaces
//
// All client commands support --json for scripting, and --server and
// --key global flags for reaching a non-default relay.
package cli

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package copilot runs prompts through the GitHub Copilot CLI and
// packages the results as OpenAI-style chat completions.
//
// The CLI ("copilot -p") is non-interactive: each chat turn flattens the
// message history into a single prompt, runs the CLI inside a fresh
// scratch workspace, strips terminal noise from the output, and collects
// any files the run created as base64 artifacts.
//
// Authentication uses a GitHub fine-grained PAT with the "Copilot
// Requests" permission, exported to the CLI as GH_TOKEN and GITHUB_TOKEN.
//
// # Key Types
//
//   - Service: Orchestrates workspace, invocation, cleanup, and assembly
//   - ChatMessage / ChatRequest: Wire format of chat endpoint requests
//   - ChatResponse: OpenAI-style completion extended with file artifacts
//   - StreamChunk / FilesChunk: Word-level simulated streaming events
//   - ProbeResult: CLI availability and authentication state
//
// # Usage
//
//	svc := copilot.New(nil, workspace.NewManager(workspace.Options{}))
//	resp, err := svc.Chat(ctx, []copilot.ChatMessage{
//	    copilot.NewUserMessage("Explain git rebase"),
//	}, "")
package copilot

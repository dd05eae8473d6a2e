// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package client is the HTTP client for a coprelay server.
//
// It backs the command-line tools, covering every relay endpoint: chat,
// streaming chat, health, models, and stats. Transient failures are
// retried with exponential backoff, response bodies are size-capped, and
// relay error envelopes surface as sentinel errors or a typed APIError.
//
// # Usage
//
// Create a client and send a chat request:
//
//	c := client.New("").WithAPIKey(key)
//	resp, err := c.Chat(ctx, &copilot.ChatRequest{
//	    Messages: []copilot.ChatMessage{copilot.NewUserMessage("Hello")},
//	})
//
// Streaming delivers decoded events through a callback or a channel:
//
//	err := c.ChatStream(ctx, req, func(ev client.StreamEvent) {
//	    fmt.Print(ev.Content)
//	})
package client

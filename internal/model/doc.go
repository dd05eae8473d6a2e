// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// This package defines the core domain types used throughout the application
// for representing chat conversations, messages, and the model catalog.
//
// # Key Types
//
//   - Conversation: Container for a chat session with messages and metadata
//   - Message: Single message with role, content, timestamp, and run metadata
//   - ModelInfo: Catalog entry for a model reachable through the Copilot CLI
//   - Role: Message role enumeration (user, assistant, system)
//
// # Usage
//
// Create a new conversation:
//
//	conv := model.NewConversation()
//	conv.AddUserMessage("How do I list files in a directory?")
//
// Work with catalog information:
//
//	info, ok := model.GetModelInfo("sonnet")
//	if ok {
//	    fmt.Printf("Model: %s (%s)\n", info.Name, info.Provider)
//	}
package model

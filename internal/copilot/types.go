// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package copilot

import (
	"github.com/jeranaias/coprelay/internal/workspace"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// ChatMessage is one turn in a chat request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// NewUserMessage creates a user chat message.
func NewUserMessage(content string) ChatMessage {
	return ChatMessage{Role: "user", Content: content}
}

// NewAssistantMessage creates an assistant chat message.
func NewAssistantMessage(content string) ChatMessage {
	return ChatMessage{Role: "assistant", Content: content}
}

// NewSystemMessage creates a system chat message.
func NewSystemMessage(content string) ChatMessage {
	return ChatMessage{Role: "system", Content: content}
}

// ChatRequest is the body of a chat endpoint call. Stream is honored by
// the OpenAI-compatible endpoint; the dedicated /api/stream endpoint
// always streams.
type ChatRequest struct {
	Messages []ChatMessage `json:"messages"`
	Model    string        `json:"model,omitempty"`
	Stream   bool          `json:"stream,omitempty"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// ChatResponse is an OpenAI-style chat completion extended with the
// files the run created and workspace metadata.
type ChatResponse struct {
	ID          string                   `json:"id"`
	Object      string                   `json:"object"`
	Created     int64                    `json:"created"`
	Model       string                   `json:"model"`
	Choices     []Choice                 `json:"choices"`
	Usage       Usage                    `json:"usage"`
	Files       []workspace.FileArtifact `json:"files"`
	FilesCount  int                      `json:"files_count"`
	WorkspaceID string                   `json:"workspace_id"`
	Metadata    Metadata                 `json:"copilot_metadata"`
}

// Choice is one completion alternative. The CLI produces exactly one.
type Choice struct {
	Index        int             `json:"index"`
	Message      ResponseMessage `json:"message"`
	FinishReason string          `json:"finish_reason"`
}

// ResponseMessage is the assistant message inside a choice.
type ResponseMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage counts whitespace-separated words, not model tokens: the CLI
// does not report real token usage.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Metadata describes how the completion was produced.
type Metadata struct {
	CLIVersion    string `json:"cli_version"`
	Model         string `json:"model"`
	WorkspaceUsed bool   `json:"workspace_used"`
}

// Content returns the assistant content of the first choice.
func (r *ChatResponse) Content() string {
	if len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}

// =============================================================================
// PROBE TYPES
// =============================================================================

// ProbeResult reports CLI availability and authentication state. Field
// presence varies with the failure mode, matching what health consumers
// expect: HasToken appears only once the CLI itself responded.
type ProbeResult struct {
	Available    bool   `json:"available"`
	Error        string `json:"error,omitempty"`
	Version      string `json:"version,omitempty"`
	HasToken     *bool  `json:"has_token,omitempty"`
	DefaultModel string `json:"default_model,omitempty"`
}

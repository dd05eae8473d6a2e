// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

// =============================================================================
// CATALOG TESTS
// =============================================================================

func TestCatalog_Order(t *testing.T) {
	wantOrder := []string{
		"claude-sonnet-4.5",
		"claude-sonnet-4",
		"claude-opus-4.5",
		"claude-haiku-4.5",
		"gpt-5",
		"gpt-5.1",
		"gpt-5.2",
		"gpt-5-mini",
		"gemini-3-pro-preview",
	}

	if len(Catalog) != len(wantOrder) {
		t.Fatalf("Catalog has %d models, want %d", len(Catalog), len(wantOrder))
	}
	for i, id := range wantOrder {
		if Catalog[i].ID != id {
			t.Errorf("Catalog[%d].ID = %q, want %q", i, Catalog[i].ID, id)
		}
	}
}

func TestCatalog_HaveRequiredFields(t *testing.T) {
	for _, info := range Catalog {
		t.Run(info.ID, func(t *testing.T) {
			if info.ID == "" {
				t.Error("ModelInfo.ID should not be empty")
			}
			if info.Name == "" {
				t.Error("ModelInfo.Name should not be empty")
			}
			if info.Description == "" {
				t.Error("ModelInfo.Description should not be empty")
			}
			if info.Provider == "" {
				t.Error("ModelInfo.Provider should not be empty")
			}
		})
	}
}

func TestShortNames_ResolveToCatalog(t *testing.T) {
	for alias, full := range ShortNames {
		if !IsKnown(full) {
			t.Errorf("Alias %q points at %q, which is not in the catalog", alias, full)
		}
	}
}

// =============================================================================
// LOOKUP TESTS
// =============================================================================

func TestGetModelInfo(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		wantID string
		wantOK bool
	}{
		{"exact ID", "claude-opus-4.5", "claude-opus-4.5", true},
		{"short alias", "sonnet", "claude-sonnet-4.5", true},
		{"alias wins over substring", "haiku", "claude-haiku-4.5", true},
		{"substring match", "gemini-3", "gemini-3-pro-preview", true},
		{"substring in catalog order", "sonnet-4", "claude-sonnet-4.5", true},
		{"unknown model", "nonexistent-model-xyz", "", false},
		{"empty query", "", "", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			info, ok := GetModelInfo(tc.query)
			if ok != tc.wantOK {
				t.Fatalf("GetModelInfo(%q) ok = %v, want %v", tc.query, ok, tc.wantOK)
			}
			if ok && info.ID != tc.wantID {
				t.Errorf("GetModelInfo(%q).ID = %q, want %q", tc.query, info.ID, tc.wantID)
			}
		})
	}
}

func TestResolveAlias(t *testing.T) {
	if got := ResolveAlias("opus"); got != "claude-opus-4.5" {
		t.Errorf("ResolveAlias(opus) = %q, want claude-opus-4.5", got)
	}
	if got := ResolveAlias("gpt-5.2"); got != "gpt-5.2" {
		t.Errorf("ResolveAlias should pass through non-aliases, got %q", got)
	}
	if got := ResolveAlias("some-future-model"); got != "some-future-model" {
		t.Errorf("ResolveAlias should pass through unknown IDs, got %q", got)
	}
}

func TestGetModelsByProvider(t *testing.T) {
	tests := []struct {
		provider string
		want     int
	}{
		{"anthropic", 4},
		{"openai", 4},
		{"google", 1},
		{"Anthropic", 4}, // case-insensitive
		{"local", 0},
	}

	for _, tc := range tests {
		t.Run(tc.provider, func(t *testing.T) {
			models := GetModelsByProvider(tc.provider)
			if len(models) != tc.want {
				t.Errorf("GetModelsByProvider(%q) returned %d models, want %d",
					tc.provider, len(models), tc.want)
			}
			for _, m := range models {
				if !strings.EqualFold(m.Provider, tc.provider) {
					t.Errorf("GetModelsByProvider(%q) returned %s model", tc.provider, m.Provider)
				}
			}
		})
	}
}

func TestProviders(t *testing.T) {
	want := []string{"anthropic", "openai", "google"}
	got := Providers()

	if len(got) != len(want) {
		t.Fatalf("Providers() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Providers()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

// =============================================================================
// ROLE TESTS
// =============================================================================

func TestRole_DisplayName(t *testing.T) {
	tests := []struct {
		role Role
		want string
	}{
		{RoleUser, "You"},
		{RoleAssistant, "Copilot"},
		{RoleSystem, "System"},
		{Role("other"), "other"},
	}

	for _, tc := range tests {
		if got := tc.role.DisplayName(); got != tc.want {
			t.Errorf("DisplayName(%s) = %q, want %q", tc.role, got, tc.want)
		}
	}
}

func TestRole_Valid(t *testing.T) {
	for _, r := range []Role{RoleUser, RoleAssistant, RoleSystem} {
		if !r.Valid() {
			t.Errorf("Role %q should be valid", r)
		}
	}
	for _, r := range []Role{Role("tool"), Role(""), Role("USER")} {
		if r.Valid() {
			t.Errorf("Role %q should not be valid", r)
		}
	}
}

// =============================================================================
// MESSAGE TESTS
// =============================================================================

func TestNewUserMessage(t *testing.T) {
	msg := NewUserMessage("hello")

	if msg.Role != RoleUser {
		t.Errorf("Role = %s, want user", msg.Role)
	}
	if msg.Content != "hello" {
		t.Errorf("Content = %q, want hello", msg.Content)
	}
	if !strings.HasPrefix(msg.ID, "msg_") {
		t.Errorf("ID = %q, want msg_ prefix", msg.ID)
	}
	if msg.IsStreaming {
		t.Error("User messages should not be streaming")
	}
	if msg.Timestamp.IsZero() {
		t.Error("Timestamp should be set")
	}
}

func TestMessage_Streaming(t *testing.T) {
	msg := NewAssistantMessage()

	if !msg.IsStreaming {
		t.Fatal("NewAssistantMessage should start in streaming state")
	}
	if !msg.IsEmpty() {
		t.Error("Fresh streaming message should be empty")
	}

	msg.AppendToken("Hello")
	msg.AppendToken(", ")
	msg.AppendToken("world")

	if got := msg.GetDisplayContent(); got != "Hello, world" {
		t.Errorf("GetDisplayContent() during stream = %q, want 'Hello, world'", got)
	}
	if msg.Content != "" {
		t.Error("Content should stay empty until finalized")
	}

	stats := &Statistics{
		TTFT:             150 * time.Millisecond,
		TotalDuration:    2 * time.Second,
		CompletionTokens: 3,
		TokensPerSecond:  1.5,
	}
	msg.FinalizeStream(stats)

	if msg.IsStreaming {
		t.Error("FinalizeStream should clear streaming state")
	}
	if msg.Content != "Hello, world" {
		t.Errorf("Content after finalize = %q, want 'Hello, world'", msg.Content)
	}
	if msg.TokenCount != 3 {
		t.Errorf("TokenCount = %d, want 3", msg.TokenCount)
	}
	if msg.TTFT != 150*time.Millisecond {
		t.Errorf("TTFT = %v, want 150ms", msg.TTFT)
	}

	// AppendToken after finalize is a no-op
	msg.AppendToken(" extra")
	if msg.GetDisplayContent() != "Hello, world" {
		t.Error("AppendToken after finalize should not modify content")
	}
}

func TestMessage_Preview(t *testing.T) {
	tests := []struct {
		name    string
		content string
		maxLen  int
		want    string
	}{
		{"short passes through", "hi there", 20, "hi there"},
		{"long is truncated", "this is a very long message content", 10, "this is..."},
		{"unicode safe", "日本語のメッセージです", 8, "日本語のメ..."},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			msg := NewUserMessage(tc.content)
			if got := msg.Preview(tc.maxLen); got != tc.want {
				t.Errorf("Preview(%d) = %q, want %q", tc.maxLen, got, tc.want)
			}
		})
	}
}

func TestMessage_EstimateTokens(t *testing.T) {
	msg := NewUserMessage("12345678") // 8 chars -> 2 tokens
	if got := msg.EstimateTokens(); got != 2 {
		t.Errorf("EstimateTokens() = %d, want 2", got)
	}

	empty := NewUserMessage("")
	if got := empty.EstimateTokens(); got != 0 {
		t.Errorf("EstimateTokens() for empty = %d, want 0", got)
	}
}

func TestMessage_FormatStats(t *testing.T) {
	user := NewUserMessage("hello")
	if got := user.FormatStats(); got != "" {
		t.Errorf("FormatStats() for user message = %q, want empty", got)
	}

	pending := NewAssistantMessage()
	if got := pending.FormatStats(); got != "" {
		t.Errorf("FormatStats() without duration = %q, want empty", got)
	}

	msg := &Message{
		Role:          RoleAssistant,
		TotalDuration: 2500 * time.Millisecond,
		TokenCount:    128,
		TokensPerSec:  51.2,
		TTFT:          234 * time.Millisecond,
		FilesCount:    3,
	}
	want := "2.5s | 128 tokens | 51.2 tok/s | TTFT 234ms | 3 files"
	if got := msg.FormatStats(); got != want {
		t.Errorf("FormatStats() = %q, want %q", got, want)
	}

	// Sub-second runs render in milliseconds, optional parts drop out
	quick := &Message{
		Role:          RoleAssistant,
		TotalDuration: 450 * time.Millisecond,
		TokenCount:    12,
	}
	if got := quick.FormatStats(); got != "450ms | 12 tokens" {
		t.Errorf("FormatStats() = %q, want '450ms | 12 tokens'", got)
	}
}

func TestStatistics_Flow(t *testing.T) {
	stats := NewStatistics()
	if stats.StartTime.IsZero() {
		t.Fatal("NewStatistics should record start time")
	}

	stats.RecordFirstToken()
	firstTTFT := stats.TTFT
	if stats.FirstTokenTime.IsZero() {
		t.Error("RecordFirstToken should set FirstTokenTime")
	}

	// Second call must not move the first-token marker
	stats.RecordFirstToken()
	if stats.TTFT != firstTTFT {
		t.Error("RecordFirstToken should be idempotent")
	}

	stats.Finalize(42)
	if stats.CompletionTokens != 42 {
		t.Errorf("CompletionTokens = %d, want 42", stats.CompletionTokens)
	}
	if stats.TotalDuration <= 0 {
		t.Error("Finalize should compute a positive duration")
	}
	if stats.TokensPerSecond <= 0 {
		t.Error("Finalize should compute tokens per second")
	}
}

// =============================================================================
// CONVERSATION TESTS
// =============================================================================

func TestConversation_AddAndTitle(t *testing.T) {
	conv := NewConversation()

	if !conv.IsEmpty() {
		t.Error("New conversation should be empty")
	}
	if !strings.HasPrefix(conv.ID, "conv_") {
		t.Errorf("ID = %q, want conv_ prefix", conv.ID)
	}
	if conv.GetTitle() != "New Conversation" {
		t.Errorf("GetTitle() = %q, want default", conv.GetTitle())
	}

	conv.AddUserMessage("How do I rebase a branch?")
	conv.AddAssistantMessage()

	if conv.MessageCount() != 2 {
		t.Errorf("MessageCount() = %d, want 2", conv.MessageCount())
	}
	if conv.GetTitle() != "How do I rebase a branch?" {
		t.Errorf("Title should come from first user message, got %q", conv.GetTitle())
	}
	if conv.TokensUsed == 0 {
		t.Error("Token estimate should update on add")
	}
}

func TestConversation_LastMessageLookups(t *testing.T) {
	conv := NewConversation()
	if conv.GetLastMessage() != nil {
		t.Error("GetLastMessage on empty conversation should be nil")
	}

	conv.AddUserMessage("first")
	asst := conv.AddAssistantMessage()
	asst.AppendToken("answer")
	conv.FinalizeLast(nil)
	conv.AddUserMessage("second")

	if got := conv.GetLastUserMessage(); got == nil || got.Content != "second" {
		t.Error("GetLastUserMessage should return the newest user message")
	}
	if got := conv.GetLastAssistantMessage(); got == nil || got.Content != "answer" {
		t.Error("GetLastAssistantMessage should return the finalized answer")
	}
}

func TestConversation_ToChatMessages(t *testing.T) {
	conv := NewConversation()
	conv.SystemPrompt = "Answer briefly."

	conv.AddUserMessage("hello")
	asst := conv.AddAssistantMessage()
	asst.AppendToken("hi there")
	conv.FinalizeLast(nil)
	conv.AddUserMessage("next question")
	conv.AddAssistantMessage() // still empty, must be skipped

	msgs := conv.ToChatMessages()
	if len(msgs) != 4 {
		t.Fatalf("ToChatMessages() returned %d messages, want 4", len(msgs))
	}

	wantRoles := []string{"system", "user", "assistant", "user"}
	for i, role := range wantRoles {
		if msgs[i].Role != role {
			t.Errorf("msgs[%d].Role = %q, want %q", i, msgs[i].Role, role)
		}
	}
	if msgs[0].Content != "Answer briefly." {
		t.Errorf("System prompt content = %q", msgs[0].Content)
	}
	if msgs[2].Content != "hi there" {
		t.Errorf("Assistant content = %q, want 'hi there'", msgs[2].Content)
	}
}

func TestConversation_ClearHistory(t *testing.T) {
	conv := NewConversation()
	conv.AddUserMessage("something")
	conv.ClearHistory()

	if !conv.IsEmpty() {
		t.Error("ClearHistory should remove all messages")
	}
	if conv.TokensUsed != 0 {
		t.Error("ClearHistory should reset token usage")
	}
}

func TestConversation_DropLastExchange(t *testing.T) {
	conv := NewConversation()
	conv.AddUserMessage("first question")
	asst := conv.AddAssistantMessage()
	asst.AppendToken("first answer")
	conv.FinalizeLast(nil)

	// A turn that fails mid-stream leaves a user message plus a
	// streaming assistant placeholder.
	conv.AddUserMessage("failing question")
	conv.AddAssistantMessage()

	conv.DropLastExchange()

	if conv.MessageCount() != 2 {
		t.Fatalf("MessageCount() = %d, want 2", conv.MessageCount())
	}
	if got := conv.GetLastMessage().Content; got != "first answer" {
		t.Errorf("last message = %q, want the first answer to survive", got)
	}

	before := conv.TokensUsed
	conv.AddUserMessage("also fails before any reply")
	conv.DropLastExchange()
	if conv.MessageCount() != 2 {
		t.Errorf("MessageCount() = %d after dropping a reply-less turn, want 2", conv.MessageCount())
	}
	if conv.TokensUsed != before {
		t.Errorf("TokensUsed = %d, want %d after rollback", conv.TokensUsed, before)
	}

	// No-op on an empty conversation
	empty := NewConversation()
	empty.DropLastExchange()
	if !empty.IsEmpty() {
		t.Error("DropLastExchange on empty conversation should be a no-op")
	}
}

func TestConversation_ContextTracking(t *testing.T) {
	conv := NewConversation()
	conv.SetMaxTokens(100)

	// ~25 tokens of content plus per-message overhead
	conv.AddUserMessage(strings.Repeat("a", 100))

	if conv.GetContextPercent() <= 0 {
		t.Error("Context percent should be positive after adding content")
	}
	if conv.IsContextNearLimit() {
		t.Error("Should not be near limit at low usage")
	}

	conv.AddUserMessage(strings.Repeat("b", 300))
	if !conv.IsContextNearLimit() {
		t.Errorf("Should be near limit at %.0f%%", conv.GetContextPercent())
	}
}

func TestConversation_PruneKeepsSystemMessages(t *testing.T) {
	conv := NewConversation()
	conv.AddSystemMessage("persistent system prompt")

	for i := 0; i < MaxMessages+10; i++ {
		conv.AddMessage(NewUserMessage(fmt.Sprintf("message %d", i)))
	}

	if conv.MessageCount() != MaxMessages+1 {
		t.Fatalf("MessageCount() = %d, want %d", conv.MessageCount(), MaxMessages+1)
	}
	if conv.Messages[0].Role != RoleSystem {
		t.Error("System message should survive pruning")
	}
	if conv.Messages[1].Content != "message 10" {
		t.Errorf("Oldest surviving message = %q, want 'message 10'", conv.Messages[1].Content)
	}
}

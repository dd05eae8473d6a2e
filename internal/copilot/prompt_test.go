// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package copilot

import "testing"

func TestBuildPrompt(t *testing.T) {
	tests := []struct {
		name     string
		messages []ChatMessage
		want     string
	}{
		{
			name:     "single user message",
			messages: []ChatMessage{NewUserMessage("write a haiku")},
			want:     "User: write a haiku",
		},
		{
			name: "full conversation",
			messages: []ChatMessage{
				NewSystemMessage("be brief"),
				NewUserMessage("hi"),
				NewAssistantMessage("hello"),
				NewUserMessage("bye"),
			},
			want: "System instructions: be brief\n\nUser: hi\n\nAssistant: hello\n\nUser: bye",
		},
		{
			name:     "missing role defaults to user",
			messages: []ChatMessage{{Content: "no role here"}},
			want:     "User: no role here",
		},
		{
			name: "unknown roles dropped",
			messages: []ChatMessage{
				{Role: "tool", Content: "tool output"},
				NewUserMessage("hi"),
				{Role: "function", Content: "result"},
			},
			want: "User: hi",
		},
		{
			name:     "no messages",
			messages: nil,
			want:     "",
		},
		{
			name:     "only unknown roles",
			messages: []ChatMessage{{Role: "tool", Content: "x"}},
			want:     "",
		},
		{
			name:     "empty content keeps label",
			messages: []ChatMessage{NewUserMessage("")},
			want:     "User: ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BuildPrompt(tt.messages); got != tt.want {
				t.Errorf("BuildPrompt() = %q, want %q", got, tt.want)
			}
		})
	}
}

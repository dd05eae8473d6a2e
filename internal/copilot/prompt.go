// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package copilot

import "strings"

// BuildPrompt flattens a chat transcript into the single prompt string
// the CLI accepts. Roles map to labeled blocks joined by blank lines;
// a missing role is treated as "user" and unrecognized roles are
// dropped.
func BuildPrompt(messages []ChatMessage) string {
	parts := make([]string, 0, len(messages))
	for _, msg := range messages {
		role := msg.Role
		if role == "" {
			role = "user"
		}
		switch role {
		case "system":
			parts = append(parts, "System instructions: "+msg.Content)
		case "user":
			parts = append(parts, "User: "+msg.Content)
		case "assistant":
			parts = append(parts, "Assistant: "+msg.Content)
		}
	}
	return strings.Join(parts, "\n\n")
}

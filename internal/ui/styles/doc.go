// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles provides the visual styling system for the coprelay TUI.

This package defines the color palette used by the chat interface. All
colors use Lip Gloss AdaptiveColor so the same styles render correctly
on light and dark terminals without configuration.

# Color System (colors.go)

## Accent Colors

  - Purple - Primary accent for assistant messages and the spinner
  - Cyan - Brand color for the header and user highlights
  - Emerald - Success states and the connected relay indicator
  - Amber - Warnings, degraded relay, and file artifact notices
  - Rose - Errors and stream failures

## Semantic Colors

Message bubbles use semantic color tokens:

	UserBubbleBg      - Background for user messages
	UserBubbleFg      - Text color for user messages
	AssistantBubbleBg - Background for assistant messages
	AssistantBubbleFg - Text color for assistant messages
	NoticeBubbleBg    - Background for artifact and warning notices

## Text Colors

Hierarchical text color system:

	TextPrimary   - Main content text
	TextSecondary - Supporting text
	TextMuted     - De-emphasized text
	TextInverse   - Text on colored backgrounds

# Usage

	headerStyle := lipgloss.NewStyle().
		Foreground(styles.Cyan).
		Bold(true)
*/
package styles

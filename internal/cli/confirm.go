// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// confirm.go - Confirmation prompts for destructive commands.
//
// USABILITY: TTY detection for proper terminal handling
//
// The pattern, in order:
//  1. A --yes flag proceeds without prompting
//  2. JSON mode requires --yes (no interactive prompts in JSON mode)
//  3. A non-TTY stdin requires --yes (nothing to prompt)
//  4. Otherwise an interactive [y/N] prompt decides
package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// confirmAction checks that the user really wants a destructive
// action. It returns (false, nil) when the prompt is answered with
// anything but yes, and an error when confirmation is required but
// cannot be asked for.
func confirmAction(yesFlag bool, action string, jsonMode bool) (bool, error) {
	if yesFlag {
		return true, nil
	}

	if jsonMode {
		return false, NewValidationErrorWithExample("--yes", "",
			"JSON mode cannot prompt; pass --yes to "+action,
			"coprelay workspaces prune --older-than 0 --yes --json")
	}

	if !IsTTY() {
		return false, NewValidationErrorWithExample("--yes", "",
			"stdin is not a terminal; pass --yes to "+action,
			"coprelay workspaces prune --older-than 0 --yes")
	}

	fmt.Printf("Are you sure you want to %s? [y/N]: ", action)

	reader := bufio.NewReader(os.Stdin)
	input, err := reader.ReadString('\n')
	if err != nil {
		return false, WrapError(err, "failed to read confirmation")
	}

	response := strings.ToLower(strings.TrimSpace(input))
	return response == "y" || response == "yes", nil
}

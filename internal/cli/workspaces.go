// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// workspaces.go - Workspaces command implementation for the coprelay CLI.
//
// CLI: Comprehensive help and examples for all commands
//
// Command: workspaces [subcommand]
// Short:   Inspect and prune retained scratch workspaces
// Aliases: workspace, ws
//
// Subcommands:
//   list (default)      List retained workspaces
//   prune               Remove old workspaces and their records
//
// Examples:
//   coprelay workspaces                   List retained workspaces
//   coprelay ws list --json               Listing in JSON format
//   coprelay workspaces prune             Prune workspaces older than 24h
//   coprelay workspaces prune --older-than 7d
//   coprelay workspaces prune --older-than 0 --yes   Prune everything
//
// Workspaces only accumulate when workspace.keep is enabled; the
// default is to delete each scratch directory after its run.
package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jeranaias/coprelay/internal/config"
	"github.com/jeranaias/coprelay/internal/storage"
	"github.com/jeranaias/coprelay/internal/workspace"
)

// defaultPruneAge is used when prune is run without --older-than.
const defaultPruneAge = 24 * time.Hour

// HandleWorkspacesCommand handles the "workspaces" command.
func HandleWorkspacesCommand(args Args) error {
	switch args.Subcommand {
	case "", "list", "ls":
		return handleWorkspacesList(args.JSON)

	case "prune":
		return handleWorkspacesPrune(args)

	default:
		return NewValidationErrorWithExample("subcommand", args.Subcommand,
			"must be one of: list, prune",
			"coprelay workspaces prune --older-than 7d")
	}
}

// handleWorkspacesList prints the retained workspace records.
func handleWorkspacesList(jsonMode bool) error {
	ledger, err := storage.NewLedger()
	if err != nil {
		return WrapError(err, "failed to open workspace ledger")
	}

	recs, err := ledger.List()
	if err != nil {
		return WrapError(err, "failed to list workspaces")
	}

	if jsonMode {
		return outputJSON(recs)
	}

	fmt.Print(storage.FormatList(recs))
	if len(recs) == 0 {
		fmt.Println(DimStyle.Render("Retention is off by default. Enable it with: coprelay config set workspace.keep true"))
	} else {
		fmt.Println()
		fmt.Println(DimStyle.Render("Remove old ones with: coprelay workspaces prune --older-than 7d"))
	}
	return nil
}

// handleWorkspacesPrune removes old workspace records and their
// directories, then sweeps the workspace root for stray directories
// nothing recorded (crashed runs).
func handleWorkspacesPrune(args Args) error {
	age, err := parseAge(args.OlderThan)
	if err != nil {
		return err
	}

	// An age of zero wipes every retained workspace, so it gets the
	// same confirmation gate as other destructive commands.
	if age == 0 {
		confirmed, err := confirmAction(args.Yes, "remove every retained workspace", args.JSON)
		if err != nil {
			return err
		}
		if !confirmed {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	ledger, err := storage.NewLedger()
	if err != nil {
		return WrapError(err, "failed to open workspace ledger")
	}

	removed, err := ledger.Prune(age)
	if err != nil {
		return WrapError(err, "failed to prune workspaces")
	}

	cfg := config.Global()
	manager := workspace.NewManager(workspace.Options{Root: cfg.Workspace.Root})
	strays, err := manager.Purge(age)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: stray workspace sweep failed: %v\n", err)
	}

	if removed == 0 && strays == 0 {
		fmt.Println("Nothing to prune.")
		return nil
	}

	fmt.Printf("%s Pruned %d recorded workspace(s)", SuccessStyle.Render("[OK]"), removed)
	if strays > 0 {
		fmt.Printf(", removed %d stray director(ies)", strays)
	}
	fmt.Println()
	return nil
}

// parseAge parses an --older-than value. Supports Go durations plus a
// day suffix ("7d"), since retention is usually thought of in days.
// "0" prunes everything.
func parseAge(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultPruneAge, nil
	}
	if s == "0" {
		return 0, nil
	}

	if strings.HasSuffix(s, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err == nil && days >= 0 {
			return time.Duration(days) * 24 * time.Hour, nil
		}
	}

	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, NewValidationErrorWithExample("--older-than", s,
			"must be a duration like 30m, 24h, or 7d",
			"coprelay workspaces prune --older-than 7d")
	}
	return d, nil
}

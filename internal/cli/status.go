// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// status.go - Status command implementation for the coprelay CLI.
//
// CLI: Comprehensive help and examples for all commands
//
// Command: status
// Short:   Display relay health, models, and usage
// Aliases: s
//
// Examples:
//   coprelay status               Show relay status
//   coprelay s                    Show status (short alias)
//   coprelay status --json        Status in JSON format
//
// Status Sections:
//   Relay:    Reachability, version, uptime, request counts
//   Copilot:  CLI availability, version, token presence, default model
//   Models:   Catalog size and identifiers
//   Usage:    Persisted totals and per-model breakdown
package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/coprelay/internal/client"
	"github.com/jeranaias/coprelay/internal/model"
	"github.com/jeranaias/coprelay/internal/telemetry"
)

// statusTimeout bounds each status probe.
const statusTimeout = 10 * time.Second

// statusReport aggregates everything the status command collects.
type statusReport struct {
	Relay     string               `json:"relay"`
	Reachable bool                 `json:"reachable"`
	Health    *client.HealthReport `json:"health,omitempty"`
	Models    []model.ModelInfo    `json:"models,omitempty"`
	Server    *client.ServerStats  `json:"server,omitempty"`
	Usage     *telemetry.Snapshot  `json:"usage,omitempty"`
	Error     string               `json:"error,omitempty"`
}

// HandleStatusCommand handles the "status" command.
// Probes /api/health, /api/models, and /api/stats on the relay and
// renders a combined summary.
func HandleStatusCommand(args Args) error {
	c := relayClient(args)
	report := collectStatus(c)

	if args.JSON {
		return outputJSON(report)
	}

	printStatusReport(report)

	if !report.Reachable {
		return WrapError(fmt.Errorf("%s", report.Error), "relay is not reachable")
	}
	return nil
}

// collectStatus gathers health, models, and stats from the relay.
// A failed health probe short-circuits; the relay is down.
func collectStatus(c *client.Client) statusReport {
	report := statusReport{Relay: c.BaseURL()}

	ctx, cancel := context.WithTimeout(context.Background(), statusTimeout)
	defer cancel()

	health, err := c.Health(ctx)
	if err != nil {
		report.Error = err.Error()
		return report
	}
	report.Reachable = true
	report.Health = health

	// Models and stats are best-effort; auth failures and the like
	// still leave the health section useful.
	if models, err := c.Models(ctx); err == nil {
		report.Models = models
	}
	if stats, err := c.Stats(ctx); err == nil {
		report.Server = &stats.Server
		report.Usage = &stats.Usage
	}

	return report
}

// printStatusReport renders the human-readable status view.
func printStatusReport(report statusReport) {
	fmt.Println()
	fmt.Println(TitleStyle.Render("coprelay Status"))
	fmt.Println(RenderSeparator())
	fmt.Println()

	// Relay section
	fmt.Println(SectionStyle.Render("Relay"))
	fmt.Printf("  %s%s\n", LabelStyle.Render("URL:"), ValueStyle.Render(report.Relay))
	if !report.Reachable {
		fmt.Printf("  %s%s %s\n",
			LabelStyle.Render("Status:"),
			RenderStatus("fail"),
			DimStyle.Render(report.Error))
		fmt.Println()
		fmt.Println(DimStyle.Render("  Start it with: coprelay serve"))
		fmt.Println()
		return
	}

	health := report.Health
	fmt.Printf("  %s%s %s\n",
		LabelStyle.Render("Status:"),
		RenderStatus(health.Status),
		DimStyle.Render(health.Status))
	fmt.Printf("  %s%s\n", LabelStyle.Render("Version:"), ValueStyle.Render(health.Version))
	if report.Server != nil {
		uptime := time.Duration(report.Server.UptimeSeconds) * time.Second
		fmt.Printf("  %s%s\n", LabelStyle.Render("Uptime:"), ValueStyle.Render(formatDuration(uptime)))
		fmt.Printf("  %s%s requests, %s errors\n",
			LabelStyle.Render("Handled:"),
			ValueStyle.Render(formatCount(report.Server.Requests)),
			ValueStyle.Render(formatCount(report.Server.Errors)))
	}
	fmt.Println()

	// Copilot section
	fmt.Println(SectionStyle.Render("Copilot CLI"))
	cp := health.Copilot
	if cp.Available {
		fmt.Printf("  %s%s\n", LabelStyle.Render("Available:"), RenderStatus("ok"))
		if cp.Version != "" {
			fmt.Printf("  %s%s\n", LabelStyle.Render("Version:"), ValueStyle.Render(cp.Version))
		}
	} else {
		fmt.Printf("  %s%s %s\n",
			LabelStyle.Render("Available:"),
			RenderStatus("fail"),
			DimStyle.Render(cp.Error))
	}
	if cp.HasToken != nil {
		if *cp.HasToken {
			fmt.Printf("  %s%s\n", LabelStyle.Render("Token:"), SuccessStyle.Render("configured"))
		} else {
			fmt.Printf("  %s%s\n", LabelStyle.Render("Token:"), WarningStyle.Render("not configured"))
		}
	}
	if cp.DefaultModel != "" {
		fmt.Printf("  %s%s\n", LabelStyle.Render("Model:"), HighlightStyle.Render(cp.DefaultModel))
	}
	fmt.Println()

	// Models section
	if len(report.Models) > 0 {
		fmt.Println(SectionStyle.Render(fmt.Sprintf("Models (%d)", len(report.Models))))
		ids := make([]string, 0, len(report.Models))
		for _, m := range report.Models {
			ids = append(ids, m.ID)
		}
		fmt.Printf("  %s\n", DimStyle.Render(strings.Join(ids, ", ")))
		fmt.Println()
	}

	// Usage section
	if report.Usage != nil {
		printUsageSection(report.Usage)
	}
}

// printUsageSection renders the persisted usage totals.
func printUsageSection(usage *telemetry.Snapshot) {
	fmt.Println(SectionStyle.Render("Usage"))
	t := usage.Totals
	if t.Requests == 0 {
		fmt.Printf("  %s\n", DimStyle.Render("No recorded requests yet."))
		fmt.Println()
		return
	}

	fmt.Printf("  %s%s (%s ok, %s failed)\n",
		LabelStyle.Render("Requests:"),
		ValueStyle.Render(formatCount(t.Requests)),
		SuccessStyle.Render(formatCount(t.Succeeded)),
		ErrorStyle.Render(formatCount(t.Failed)))
	fmt.Printf("  %s%s prompt, %s completion\n",
		LabelStyle.Render("Tokens:"),
		ValueStyle.Render(formatCount(t.PromptTokens)),
		ValueStyle.Render(formatCount(t.CompletionTokens)))
	fmt.Printf("  %s%s\n",
		LabelStyle.Render("Files:"),
		ValueStyle.Render(formatCount(t.FilesProduced)))
	fmt.Printf("  %s%s\n",
		LabelStyle.Render("Avg time:"),
		ValueStyle.Render(fmt.Sprintf("%.0f ms", t.AvgDurationMs)))
	if !usage.Since.IsZero() {
		fmt.Printf("  %s%s\n",
			LabelStyle.Render("Since:"),
			DimStyle.Render(usage.Since.Format("2006-01-02 15:04")))
	}

	if len(usage.PerModel) > 0 {
		fmt.Println()
		fmt.Printf("  %s\n", DimStyle.Render("Per model:"))
		for _, m := range usage.PerModel {
			fmt.Printf("    %s %s requests, %s tokens\n",
				HighlightStyle.Render(fmt.Sprintf("%-22s", m.Model)),
				ValueStyle.Render(formatCount(m.Requests)),
				ValueStyle.Render(formatCount(m.Tokens)))
		}
	}
	fmt.Println()
}

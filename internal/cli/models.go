// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// models.go - Models command implementation for the coprelay CLI.
//
// CLI: Comprehensive help and examples for all commands
//
// Command: models
// Short:   List models the relay can route to
// Aliases: model-list
//
// Examples:
//   coprelay models               List available models
//   coprelay models --json        Model catalog in JSON format
package cli

import (
	"context"
	"fmt"

	"github.com/jeranaias/coprelay/internal/config"
	"github.com/jeranaias/coprelay/internal/model"
)

// HandleModelsCommand handles the "models" command.
// The relay is asked first so the list reflects what it actually
// serves; when it is down the bundled catalog is shown instead.
func HandleModelsCommand(args Args) error {
	models, fromRelay := fetchModels(args)

	if args.JSON {
		return outputJSON(models)
	}

	defaultModel := config.Global().Copilot.DefaultModel

	fmt.Println()
	fmt.Println(TitleStyle.Render(fmt.Sprintf("Available Models (%d)", len(models))))
	if !fromRelay {
		fmt.Println(DimStyle.Render("(relay unreachable, showing bundled catalog)"))
	}
	fmt.Println(RenderSeparator())

	printModelsByProvider(models, defaultModel)

	fmt.Println(DimStyle.Render("Select one with: coprelay ask -m MODEL \"...\" or set copilot.default_model"))
	fmt.Println()
	return nil
}

// fetchModels returns the relay's model list, or the local catalog
// when the relay cannot be reached.
func fetchModels(args Args) ([]model.ModelInfo, bool) {
	c := relayClient(args)
	ctx, cancel := context.WithTimeout(context.Background(), statusTimeout)
	defer cancel()

	models, err := c.Models(ctx)
	if err != nil || len(models) == 0 {
		return model.Catalog, false
	}
	return models, true
}

// printModelsByProvider renders models grouped by provider, marking
// the configured default.
func printModelsByProvider(models []model.ModelInfo, defaultModel string) {
	grouped := make(map[string][]model.ModelInfo)
	var order []string
	for _, m := range models {
		if _, seen := grouped[m.Provider]; !seen {
			order = append(order, m.Provider)
		}
		grouped[m.Provider] = append(grouped[m.Provider], m)
	}

	for _, provider := range order {
		fmt.Println()
		fmt.Println(SectionStyle.Render(provider))
		for _, m := range grouped[provider] {
			marker := "  "
			id := ValueStyle.Render(fmt.Sprintf("%-24s", m.ID))
			if m.ID == defaultModel {
				marker = HighlightStyle.Render("* ")
				id = HighlightStyle.Render(fmt.Sprintf("%-24s", m.ID))
			}
			fmt.Printf("  %s%s %s\n", marker, id, DimStyle.Render(m.Description))
		}
	}

	fmt.Println()
	if defaultModel != "" {
		fmt.Printf("%s %s\n",
			DimStyle.Render("* default:"),
			HighlightStyle.Render(defaultModel))
		fmt.Println()
	}
}

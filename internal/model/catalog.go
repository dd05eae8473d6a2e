// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import "strings"

// =============================================================================
// MODEL INFO TYPE
// =============================================================================

// ModelInfo describes one model selectable through the Copilot CLI.
// The JSON field names match the wire format of the models endpoint.
type ModelInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Provider    string `json:"provider"`
}

// String returns a human-readable one-line summary.
func (m ModelInfo) String() string {
	return m.Name + " (" + m.ID + ")"
}

// =============================================================================
// MODEL CATALOG
// =============================================================================

// Catalog lists the models the Copilot CLI accepts, in display order.
// The catalog is static: the CLI itself is the authority on which models
// actually resolve, so unknown IDs are passed through rather than rejected.
var Catalog = []ModelInfo{
	{
		ID:          "claude-sonnet-4.5",
		Name:        "Claude Sonnet 4.5",
		Description: "Latest Claude Sonnet model",
		Provider:    "anthropic",
	},
	{
		ID:          "claude-sonnet-4",
		Name:        "Claude Sonnet 4",
		Description: "Claude Sonnet 4 model",
		Provider:    "anthropic",
	},
	{
		ID:          "claude-opus-4.5",
		Name:        "Claude Opus 4.5",
		Description: "Most capable Claude model",
		Provider:    "anthropic",
	},
	{
		ID:          "claude-haiku-4.5",
		Name:        "Claude Haiku 4.5",
		Description: "Fast Claude model",
		Provider:    "anthropic",
	},
	{
		ID:          "gpt-5",
		Name:        "GPT-5",
		Description: "OpenAI GPT-5",
		Provider:    "openai",
	},
	{
		ID:          "gpt-5.1",
		Name:        "GPT-5.1",
		Description: "OpenAI GPT-5.1",
		Provider:    "openai",
	},
	{
		ID:          "gpt-5.2",
		Name:        "GPT-5.2",
		Description: "OpenAI GPT-5.2",
		Provider:    "openai",
	},
	{
		ID:          "gpt-5-mini",
		Name:        "GPT-5 Mini",
		Description: "Smaller GPT-5 model",
		Provider:    "openai",
	},
	{
		ID:          "gemini-3-pro-preview",
		Name:        "Gemini 3 Pro Preview",
		Description: "Google Gemini 3 Pro",
		Provider:    "google",
	},
}

// byID indexes Catalog for exact-ID lookups.
var byID = make(map[string]ModelInfo, len(Catalog))

func init() {
	for _, info := range Catalog {
		byID[info.ID] = info
	}
}

// ShortNames maps convenient aliases to full model IDs.
var ShortNames = map[string]string{
	"sonnet": "claude-sonnet-4.5",
	"opus":   "claude-opus-4.5",
	"haiku":  "claude-haiku-4.5",
	"gpt":    "gpt-5",
	"mini":   "gpt-5-mini",
	"gemini": "gemini-3-pro-preview",
}

// =============================================================================
// LOOKUP FUNCTIONS
// =============================================================================

// GetModelInfo looks up a model by exact ID, short alias, or substring.
// Substring matches are resolved in catalog order, first hit wins.
func GetModelInfo(id string) (ModelInfo, bool) {
	if info, ok := byID[id]; ok {
		return info, true
	}

	if full, ok := ShortNames[strings.ToLower(id)]; ok {
		return byID[full], true
	}

	needle := strings.ToLower(id)
	if needle == "" {
		return ModelInfo{}, false
	}
	for _, info := range Catalog {
		if strings.Contains(strings.ToLower(info.ID), needle) {
			return info, true
		}
	}

	return ModelInfo{}, false
}

// IsKnown reports whether the exact model ID is in the catalog.
func IsKnown(id string) bool {
	_, ok := byID[id]
	return ok
}

// ResolveAlias expands a short alias to its full model ID.
// Non-alias input is returned unchanged, so callers can apply it blindly.
func ResolveAlias(id string) string {
	if full, ok := ShortNames[strings.ToLower(id)]; ok {
		return full
	}
	return id
}

// GetModelsByProvider returns catalog models for one provider, in catalog order.
func GetModelsByProvider(provider string) []ModelInfo {
	var models []ModelInfo
	for _, info := range Catalog {
		if strings.EqualFold(info.Provider, provider) {
			models = append(models, info)
		}
	}
	return models
}

// Providers returns the distinct provider names in catalog order.
func Providers() []string {
	seen := make(map[string]bool)
	var providers []string
	for _, info := range Catalog {
		if !seen[info.Provider] {
			seen[info.Provider] = true
			providers = append(providers, info.Provider)
		}
	}
	return providers
}

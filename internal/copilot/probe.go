// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package copilot

import (
	"context"
	"os"
	"strings"
)

// Probe checks whether chat requests can succeed: the binary is on
// PATH, it answers a version query, and a token is available. The
// result is always a report, never an error; callers map it straight
// into health output.
func (s *Service) Probe(ctx context.Context) ProbeResult {
	if _, err := s.lookPath(s.config.CLIPath); err != nil {
		return ProbeResult{
			Available: false,
			Error:     "Copilot CLI not found. Install with: winget install GitHub.Copilot",
		}
	}

	probeCtx, cancel := context.WithTimeout(ctx, s.config.ProbeTimeout)
	defer cancel()

	res, err := s.invoke(probeCtx, invokeSpec{
		Path: s.config.CLIPath,
		Args: []string{"--version"},
		Env:  cliEnv(s.config.Token),
	})
	if err != nil || res.ExitCode != 0 {
		return ProbeResult{Available: false, Error: "Copilot CLI not installed"}
	}

	version := strings.TrimSpace(res.Stdout)
	hasToken := s.hasToken()
	if !hasToken {
		return ProbeResult{
			Available: false,
			Error:     "GH_TOKEN or GITHUB_TOKEN not set. Create a PAT with 'Copilot Requests' permission.",
			Version:   version,
			HasToken:  &hasToken,
		}
	}

	return ProbeResult{
		Available:    true,
		Version:      version,
		HasToken:     &hasToken,
		DefaultModel: s.config.DefaultModel,
	}
}

// hasToken reports whether any token source is set, configured or
// inherited.
func (s *Service) hasToken() bool {
	if s.config.Token != "" {
		return true
	}
	return os.Getenv("GH_TOKEN") != "" || os.Getenv("GITHUB_TOKEN") != ""
}

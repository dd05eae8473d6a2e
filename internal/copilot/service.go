// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package copilot

import (
	"context"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/jeranaias/coprelay/internal/workspace"
)

// =============================================================================
// CONFIGURATION
// =============================================================================

const (
	// DefaultModel is used when neither the request nor the config
	// names one.
	DefaultModel = "claude-sonnet-4"

	// DefaultCLIPath resolves through PATH.
	DefaultCLIPath = "copilot"

	// DefaultTimeout bounds one chat run. Agentic runs write files and
	// shell out, so this is generous.
	DefaultTimeout = 5 * time.Minute

	// DefaultProbeTimeout bounds a version check.
	DefaultProbeTimeout = 10 * time.Second

	// cliVersionTag labels responses with the backend that produced
	// them.
	cliVersionTag = "copilot-cli"
)

// Config holds settings for the CLI service.
type Config struct {
	// CLIPath is the copilot binary to run (default: "copilot")
	CLIPath string
	// Token authenticates runs; exported as GH_TOKEN and GITHUB_TOKEN.
	// When empty the CLI falls back to the inherited environment.
	Token string
	// DefaultModel is used when a request names none (default: claude-sonnet-4)
	DefaultModel string
	// Timeout for one chat run (default: 5m)
	Timeout time.Duration
	// ProbeTimeout for availability checks (default: 10s)
	ProbeTimeout time.Duration
}

// DefaultConfig returns the default service configuration.
func DefaultConfig() Config {
	return Config{
		CLIPath:      DefaultCLIPath,
		DefaultModel: DefaultModel,
		Timeout:      DefaultTimeout,
		ProbeTimeout: DefaultProbeTimeout,
	}
}

// =============================================================================
// SERVICE
// =============================================================================

// Service runs chat requests through the Copilot CLI, one isolated
// workspace per request.
type Service struct {
	config     Config
	workspaces *workspace.Manager

	// Seams for tests: swap to fakes so no copilot binary is needed.
	invoke   invoker
	lookPath func(string) (string, error)
}

// New creates a service with custom configuration. Zero-value fields
// fall back to defaults.
func New(config Config, workspaces *workspace.Manager) *Service {
	if config.CLIPath == "" {
		config.CLIPath = DefaultCLIPath
	}
	if config.DefaultModel == "" {
		config.DefaultModel = DefaultModel
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.ProbeTimeout <= 0 {
		config.ProbeTimeout = DefaultProbeTimeout
	}
	return &Service{
		config:     config,
		workspaces: workspaces,
		invoke:     runCLI,
		lookPath:   exec.LookPath,
	}
}

// GetConfig returns a copy of the service configuration.
func (s *Service) GetConfig() Config {
	return s.config
}

// DefaultModel returns the model used when requests name none.
func (s *Service) DefaultModel() string {
	return s.config.DefaultModel
}

// CLIPath returns the binary the service runs.
func (s *Service) CLIPath() string {
	return s.config.CLIPath
}

// =============================================================================
// CHAT
// =============================================================================

// Chat runs one chat completion: build the prompt, run the CLI in a
// fresh workspace, sanitize its output, and collect every file it
// created. A nonzero CLI exit becomes response text, not an error;
// the workspace is still scanned so partial output survives.
func (s *Service) Chat(ctx context.Context, messages []ChatMessage, model string) (*ChatResponse, error) {
	if len(messages) == 0 {
		return nil, ErrNoMessages
	}

	ws, err := s.workspaces.Create()
	if err != nil {
		return nil, &ServiceError{
			Type:    ErrTypeWorkspace,
			Message: "failed to create workspace",
			Cause:   err,
		}
	}
	defer s.workspaces.Cleanup(ws)

	prompt := BuildPrompt(messages)
	if model == "" {
		model = s.config.DefaultModel
	}

	runCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	log.Printf("Running Copilot CLI in workspace %s (model=%s)", ws.Path, model)
	res, err := s.invoke(runCtx, invokeSpec{
		Path: s.config.CLIPath,
		Args: buildArgs(prompt, model),
		Env:  cliEnv(s.config.Token),
		Dir:  ws.Path,
	})
	if err != nil {
		return nil, err
	}
	log.Printf("Copilot CLI completed with exit code %d", res.ExitCode)

	var content string
	if res.ExitCode != 0 {
		content = cliFailureText(res.Stderr)
	} else {
		content = CleanOutput(res.Stdout)
	}

	// A failed scan costs the artifacts, not the response.
	files, err := s.workspaces.Scan(ws)
	if err != nil {
		log.Printf("Workspace scan failed for %s: %v", ws.Path, err)
		files = nil
	}

	return buildResponse(content, prompt, model, files, ws), nil
}

// buildArgs assembles the CLI argument list: programmatic prompt mode,
// screen-reader output, full tool access, no color.
func buildArgs(prompt, model string) []string {
	args := []string{"-p", prompt}
	if model != "" {
		args = append(args, "--model", model)
	}
	return append(args, "-s", "--allow-all-tools", "--no-color")
}

// cliEnv extends the inherited environment with the configured token.
// Duplicate keys are fine: the last value wins at exec time.
func cliEnv(token string) []string {
	env := os.Environ()
	if token != "" {
		env = append(env, "GH_TOKEN="+token, "GITHUB_TOKEN="+token)
	}
	return env
}

// buildResponse assembles the OpenAI-style completion. Token counts
// are whitespace word counts: the CLI reports no real usage.
func buildResponse(content, prompt, model string, files []workspace.FileArtifact, ws *workspace.Workspace) *ChatResponse {
	workspaceID := filepath.Base(ws.Path)
	promptTokens := len(strings.Fields(prompt))
	completionTokens := len(strings.Fields(content))
	if files == nil {
		files = []workspace.FileArtifact{}
	}

	return &ChatResponse{
		ID:      "copilot-" + workspaceID,
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   "github-copilot-" + model,
		Choices: []Choice{{
			Index:        0,
			Message:      ResponseMessage{Role: "assistant", Content: content},
			FinishReason: "stop",
		}},
		Usage: Usage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		},
		Files:       files,
		FilesCount:  len(files),
		WorkspaceID: workspaceID,
		Metadata: Metadata{
			CLIVersion:    cliVersionTag,
			Model:         model,
			WorkspaceUsed: true,
		},
	}
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// ask.go - One-shot question command for the coprelay CLI.
//
// CLI: Comprehensive help and examples for all commands
// USABILITY: Markdown rendering for better CLI experience
//
// Handles the "coprelay ask" command which sends a single question to a
// running relay and prints the answer plus any files the run produced.
//
// Command: ask
// Short:   Ask a single question
//
// Examples:
//   coprelay ask "explain this error" -f build.log
//   coprelay ask --stream "write a readme for this project"
//   coprelay ask --model gpt-5.2 "summarize the attached file" -f notes.md
//   coprelay ask --save-files ./out "generate a python hello world script"
//   cat main.go | coprelay ask "review this code"
//
// Flags:
//   -m, --model NAME    Model for this request
//   -f, --file FILE     Attach a file as context
//   --stream            Print the answer as it is generated
//   --save-files DIR    Write returned artifacts into DIR
//   --json              Print the raw response JSON
package cli

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/coprelay/internal/client"
	"github.com/jeranaias/coprelay/internal/config"
	"github.com/jeranaias/coprelay/internal/copilot"
	"github.com/jeranaias/coprelay/internal/workspace"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// MaxContextFileSize caps attached context files (50KB). Larger
	// files would blow past the relay's per-message content limit.
	MaxContextFileSize = 50 * 1024
)

// =============================================================================
// MARKDOWN RENDERING
// =============================================================================

// markdownRenderer is the global glamour renderer for markdown output.
// USABILITY: Renders markdown responses with syntax highlighting.
var markdownRenderer *glamour.TermRenderer

func init() {
	var err error
	markdownRenderer, err = glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		// Fallback to plain text if renderer initialization fails
		markdownRenderer = nil
	}
}

// renderMarkdown renders markdown content for terminal display.
// Returns the original content if rendering fails or the renderer is
// unavailable.
func renderMarkdown(content string) string {
	if markdownRenderer == nil {
		return content
	}

	rendered, err := markdownRenderer.Render(content)
	if err != nil {
		return content
	}
	return rendered
}

// displayResponse displays a response with markdown rendering when
// appropriate. Only renders markdown when stdout is a TTY to avoid
// corrupting piped output.
func displayResponse(response string) {
	if IsStdoutTTY() {
		fmt.Print(renderMarkdown(response))
	} else {
		fmt.Println(response)
	}
}

// =============================================================================
// CLIENT CONSTRUCTION
// =============================================================================

// relayClient builds an API client for the configured relay, honoring
// the --server and --key overrides.
func relayClient(args Args) *client.Client {
	cfg := config.Global()

	base := args.Server
	if base == "" {
		base = "http://" + cfg.ListenAddr()
	}

	c := client.New(base)

	key := args.APIKey
	if key == "" {
		key = cfg.Server.APIKey
	}
	if key != "" {
		c = c.WithAPIKey(key)
	}
	return c
}

// =============================================================================
// CONTEXT FILE HANDLING
// =============================================================================

// readFileForContext reads a file to attach as question context.
// Caps the size at MaxContextFileSize to stay within relay limits.
func readFileForContext(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", NewNotFoundError("file", path)
	}
	if info.IsDir() {
		return "", NewValidationError("file", path, "is a directory")
	}
	if info.Size() > MaxContextFileSize {
		return "", NewValidationError("file", path,
			fmt.Sprintf("too large (%s, max %s)", formatBytes(info.Size()), formatBytes(MaxContextFileSize)))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", WrapError(err, "failed to read context file")
	}
	return string(data), nil
}

// readStdinContext reads piped stdin, capped like a context file.
func readStdinContext() (string, error) {
	data, err := io.ReadAll(io.LimitReader(os.Stdin, MaxContextFileSize+1))
	if err != nil {
		return "", WrapError(err, "failed to read stdin")
	}
	if len(data) > MaxContextFileSize {
		return "", NewValidationError("stdin", "",
			fmt.Sprintf("piped input too large (max %s)", formatBytes(MaxContextFileSize)))
	}
	return string(data), nil
}

// buildQuestion combines the query, an optional context file, and piped
// stdin into the final user message.
func buildQuestion(args Args) (string, error) {
	question := strings.TrimSpace(args.Query)

	var contexts []string

	if args.File != "" {
		content, err := readFileForContext(args.File)
		if err != nil {
			return "", err
		}
		contexts = append(contexts, fmt.Sprintf("Context from %s:\n```\n%s\n```",
			filepath.Base(args.File), strings.TrimRight(content, "\n")))
	}

	// Piped stdin becomes context when a question was given, or the
	// question itself when none was.
	if StdinIsPiped() {
		content, err := readStdinContext()
		if err != nil {
			return "", err
		}
		content = strings.TrimSpace(content)
		if content != "" {
			if question == "" {
				question = content
			} else {
				contexts = append(contexts, fmt.Sprintf("Context:\n```\n%s\n```", content))
			}
		}
	}

	if question == "" {
		return "", ErrMissingArgument("question", `coprelay ask "your question"`)
	}

	if len(contexts) > 0 {
		question = question + "\n\n" + strings.Join(contexts, "\n\n")
	}
	return question, nil
}

// =============================================================================
// ASK HANDLER
// =============================================================================

// HandleAskCommand handles the "ask" command.
func HandleAskCommand(args Args) error {
	question, err := buildQuestion(args)
	if err != nil {
		return err
	}

	req := &copilot.ChatRequest{
		Messages: []copilot.ChatMessage{
			{Role: "user", Content: question},
		},
		Model: args.Model,
	}

	c := relayClient(args)
	ctx := context.Background()

	// JSON mode always uses the non-streaming endpoint so the complete
	// response document can be printed.
	if args.Stream && !args.JSON {
		return askStreaming(ctx, c, req, args)
	}
	return askComplete(ctx, c, req, args)
}

// askComplete sends a blocking chat request and renders the result.
func askComplete(ctx context.Context, c *client.Client, req *copilot.ChatRequest, args Args) error {
	if !args.Quiet && !args.JSON && IsStderrTTY() {
		fmt.Fprintf(os.Stderr, "%s\n", DimStyle.Render("Waiting for the relay..."))
	}

	resp, err := c.Chat(ctx, req)
	if err != nil {
		return err
	}

	if args.JSON {
		return outputJSON(resp)
	}

	displayResponse(resp.Content())

	if err := handleArtifacts(resp.Files, args); err != nil {
		return err
	}

	if !args.Quiet && IsStderrTTY() {
		fmt.Fprintf(os.Stderr, "%s\n", DimStyle.Render(fmt.Sprintf(
			"model %s | %d tokens", resp.Model, resp.Usage.TotalTokens)))
	}
	return nil
}

// askStreaming consumes the SSE stream and prints deltas as they arrive.
func askStreaming(ctx context.Context, c *client.Client, req *copilot.ChatRequest, args Args) error {
	var files []workspace.FileArtifact

	err := c.ChatStream(ctx, req, func(ev client.StreamEvent) {
		if ev.Err != nil {
			fmt.Fprintf(os.Stderr, "\n%s %v\n", ErrorStyle.Render("[stream]"), ev.Err)
			return
		}
		if ev.Content != "" {
			fmt.Print(ev.Content)
		}
		if ev.HasFiles() {
			files = ev.Files
		}
	})
	if err != nil {
		return err
	}
	fmt.Println()

	return handleArtifacts(files, args)
}

// =============================================================================
// ARTIFACT HANDLING
// =============================================================================

// handleArtifacts prints a summary of returned files and writes them to
// disk when --save-files was given.
func handleArtifacts(files []workspace.FileArtifact, args Args) error {
	if len(files) == 0 {
		return nil
	}

	if !args.Quiet {
		fmt.Println()
		fmt.Println(SectionStyle.Render(fmt.Sprintf("Files produced (%d)", len(files))))
		for _, f := range files {
			kind := f.MimeType
			if f.IsBinary {
				kind += ", binary"
			}
			fmt.Printf("  %s %s\n",
				HighlightStyle.Render(f.Path),
				DimStyle.Render(fmt.Sprintf("(%s, %s)", formatBytes(f.Size), kind)))
		}
	}

	if args.SaveFiles == "" {
		if !args.Quiet {
			fmt.Println(DimStyle.Render("  Use --save-files DIR to write them to disk."))
		}
		return nil
	}

	saved, err := saveArtifacts(files, args.SaveFiles)
	if err != nil {
		return err
	}
	if !args.Quiet {
		fmt.Printf("%s Saved %d file(s) to %s\n",
			SuccessStyle.Render("[OK]"), saved, args.SaveFiles)
	}
	return nil
}

// saveArtifacts decodes returned artifacts and writes them under dir.
// SECURITY: Artifact paths come from the relay; every target is
// validated to stay inside dir before writing.
func saveArtifacts(files []workspace.FileArtifact, dir string) (int, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return 0, WrapError(err, "invalid save directory")
	}
	if err := os.MkdirAll(absDir, 0o755); err != nil {
		return 0, WrapError(err, "failed to create save directory")
	}

	saved := 0
	for _, f := range files {
		target := filepath.Join(absDir, filepath.FromSlash(f.Path))
		if !pathWithinDir(target, absDir) {
			return saved, NewCommandError("ask", "save-files",
				fmt.Sprintf("artifact path escapes target directory: %s", f.Path), nil)
		}

		data, err := base64.StdEncoding.DecodeString(f.ContentBase64)
		if err != nil {
			return saved, NewCommandError("ask", "save-files",
				fmt.Sprintf("artifact %s has invalid base64 content", f.Path), err)
		}

		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return saved, WrapError(err, "failed to create artifact directory")
		}
		if err := os.WriteFile(target, data, 0o644); err != nil {
			return saved, WrapError(err, "failed to write artifact")
		}
		saved++
	}
	return saved, nil
}

// pathWithinDir checks that path sits inside dir with a proper path
// boundary. SECURITY: Prevents the HasPrefix bypass where
// /out-evil would match /out.
func pathWithinDir(path, dir string) bool {
	cleanPath := filepath.Clean(path)
	cleanDir := filepath.Clean(dir)
	if cleanPath == cleanDir {
		return false
	}
	return strings.HasPrefix(cleanPath, cleanDir+string(filepath.Separator))
}

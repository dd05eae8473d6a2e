// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive chat command handler for the coprelay CLI.
//
// CLI: Comprehensive help and examples for all commands
// USABILITY: Markdown rendering and history for better CLI experience
//
// Handles the "coprelay chat" command which provides an interactive
// conversation against a running relay. On a terminal this launches the
// full-screen TUI; with --plain (or piped stdio) it runs a line REPL.
//
// Command: chat
// Short:   Start an interactive chat session
//
// Examples:
//   coprelay chat                     Start interactive chat (default model)
//   coprelay chat --model gpt-5.2     Use a specific model
//   coprelay chat --plain             Line REPL instead of the TUI
//
// Interactive Commands (plain REPL):
//   /help, /h           Show available commands
//   /clear, /c          Clear conversation history
//   /model [name]       Show or switch model
//   /files, /f          List files from the last response
//   /quit, /q           Exit chat
//   Ctrl+C              Cancel current generation
//   Ctrl+D              Exit chat
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/peterh/liner"

	"github.com/jeranaias/coprelay/internal/client"
	"github.com/jeranaias/coprelay/internal/config"
	"github.com/jeranaias/coprelay/internal/copilot"
	"github.com/jeranaias/coprelay/internal/model"
	chatui "github.com/jeranaias/coprelay/internal/ui/chat"
	"github.com/jeranaias/coprelay/internal/workspace"
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// ChatCLI provides input history and line editing for the plain REPL.
// USABILITY: Supports arrow keys for history navigation and line editing.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI creates a new ChatCLI with input history support.
func NewChatCLI() *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	// History lives next to the config file
	configDir, err := config.ConfigDir()
	if err != nil {
		configDir = os.TempDir()
	}
	historyFile := filepath.Join(configDir, "chat_history")

	cli := &ChatCLI{
		line:        line,
		historyFile: historyFile,
	}
	cli.LoadHistory()
	return cli
}

// LoadHistory loads command history from file.
func (c *ChatCLI) LoadHistory() {
	if f, err := os.Open(c.historyFile); err == nil {
		c.line.ReadHistory(f)
		f.Close()
	}
}

// ReadInput reads a line of input with the given prompt.
// Supports history navigation with arrow keys.
func (c *ChatCLI) ReadInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}

	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// SaveHistory persists command history with secure permissions.
func (c *ChatCLI) SaveHistory() {
	if err := config.EnsureConfigDir(); err != nil {
		return
	}

	// SECURITY: 0600 so prompts stay private to the owner
	f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return
	}
	defer f.Close()

	c.line.WriteHistory(f)
}

// Close saves history and closes the liner.
func (c *ChatCLI) Close() {
	c.SaveHistory()
	c.line.Close()
}

// =============================================================================
// SESSION STATE
// =============================================================================

// ChatSession holds the state for a plain REPL chat session.
type ChatSession struct {
	// Conversation history with per-turn statistics
	Conv *model.Conversation

	// Files returned by the most recent turn
	LastFiles []workspace.FileArtifact

	Quiet bool

	// Tracking
	StartTime  time.Time
	Turns      int
	TotalFiles int

	Client *client.Client

	// Cancel function for the in-flight turn
	CancelFunc context.CancelFunc

	// Input history handler
	InputCLI *ChatCLI
}

// NewChatSession creates a new plain REPL session.
func NewChatSession(args Args) *ChatSession {
	cfg := config.Global()

	modelName := args.Model
	if modelName == "" {
		modelName = cfg.Copilot.DefaultModel
	}

	return &ChatSession{
		Conv:      model.NewConversationWithModel(modelName),
		Quiet:     args.Quiet,
		StartTime: time.Now(),
		Client:    relayClient(args),
		InputCLI:  NewChatCLI(),
	}
}

// =============================================================================
// CHAT HANDLER
// =============================================================================

// HandleChatCommand handles the "chat" command.
// A real terminal gets the full-screen TUI; --plain or piped stdio gets
// the line REPL.
func HandleChatCommand(args Args) error {
	if !args.Plain && IsTTY() && IsStdoutTTY() {
		cfg := config.Global()
		modelName := args.Model
		if modelName == "" {
			modelName = cfg.Copilot.DefaultModel
		}
		return chatui.Run(chatui.Options{
			Client: relayClient(args),
			Model:  modelName,
		})
	}
	return runPlainChat(args)
}

// runPlainChat runs the liner-based REPL loop.
func runPlainChat(args Args) error {
	session := NewChatSession(args)

	// Confirm the relay is reachable before entering the loop
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	health, err := session.Client.Health(ctx)
	cancel()
	if err != nil {
		return WrapError(err, "relay is not reachable (is 'coprelay serve' running?)")
	}
	if !health.Healthy() && !session.Quiet {
		fmt.Fprintf(os.Stderr, "%s relay reports degraded: %s\n",
			WarningStyle.Render("[WARN]"), health.Copilot.Error)
	}

	if !session.Quiet {
		printWelcome(session)
	}

	// Save input history on exit
	defer session.InputCLI.Close()

	// First Ctrl+C during generation cancels the in-flight turn
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		for range sigChan {
			if session.CancelFunc != nil {
				session.CancelFunc()
				session.CancelFunc = nil
				fmt.Fprintln(os.Stderr, "\n"+WarningStyle.Render("[Cancelled]"))
			}
		}
	}()

	// Main REPL loop using liner for input history
	for {
		input, err := session.InputCLI.ReadInput(HighlightStyle.Render("coprelay> "))
		if err != nil {
			// liner.ErrPromptAborted is Ctrl+C at the prompt; EOF is
			// Ctrl+D. Both exit gracefully.
			fmt.Println()
			printExitSummary(session)
			return nil
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			shouldContinue, err := handleSlashCommand(input, session)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s %v\n", ErrorStyle.Render("[Error]"), err)
			}
			if !shouldContinue {
				printExitSummary(session)
				return nil
			}
			continue
		}

		if strings.EqualFold(input, "exit") || strings.EqualFold(input, "quit") {
			printExitSummary(session)
			return nil
		}

		if err := processMessage(session, input); err != nil {
			fmt.Fprintf(os.Stderr, "%s %v\n", ErrorStyle.Render("[Error]"), err)
		}
	}
}

// =============================================================================
// MESSAGE PROCESSING
// =============================================================================

// processMessage sends one turn through the relay and prints the reply.
func processMessage(session *ChatSession, input string) error {
	session.Conv.AddUserMessage(input)

	// Build the request before adding the assistant placeholder; the
	// placeholder carries no content yet and must not be sent upstream.
	req := &copilot.ChatRequest{
		Messages: session.Conv.ToChatMessages(),
		Model:    session.Conv.Model,
	}

	ctx, cancel := context.WithCancel(context.Background())
	session.CancelFunc = cancel
	defer func() {
		session.CancelFunc = nil
		cancel()
	}()

	// USABILITY: Render markdown on TTY; stream raw text otherwise.
	// With markdown the reply is collected and rendered once complete.
	useMarkdown := IsStdoutTTY()

	reply := session.Conv.AddAssistantMessage()
	stats := model.NewStatistics()
	fmt.Println()

	var files []workspace.FileArtifact

	err := session.Client.ChatStream(ctx, req, func(ev client.StreamEvent) {
		if ev.Err != nil {
			fmt.Fprintf(os.Stderr, "\n%s %v\n", ErrorStyle.Render("[Error]"), ev.Err)
			return
		}
		if ev.Content != "" {
			stats.RecordFirstToken()
			session.Conv.AppendToLast(ev.Content)
			if !useMarkdown {
				fmt.Print(ev.Content)
			}
		}
		if ev.HasFiles() {
			files = ev.Files
		}
	})
	if err != nil {
		// Drop the failed turn so history stays consistent
		session.Conv.DropLastExchange()
		return err
	}

	stats.Finalize(reply.EstimateTokens())
	session.Conv.FinalizeLast(stats)
	reply.FilesCount = len(files)

	if useMarkdown {
		fmt.Print(renderMarkdown(reply.Content))
	} else {
		fmt.Println()
	}

	session.LastFiles = files
	session.Turns++
	session.TotalFiles += len(files)

	if len(files) > 0 && !session.Quiet {
		fmt.Printf("%s %d file(s) returned. /files to list them.\n",
			HighlightStyle.Render("[Files]"), len(files))
	}

	fmt.Println()
	if !session.Quiet {
		fmt.Fprintf(os.Stderr, "%s %s | %s\n",
			DimStyle.Render("[Turn]"),
			session.Conv.Model,
			reply.FormatStats())
	}
	return nil
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// handleSlashCommand processes slash commands.
// Returns (shouldContinue, error) where shouldContinue=false means exit.
func handleSlashCommand(cmd string, session *ChatSession) (bool, error) {
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return true, nil
	}

	command := strings.ToLower(parts[0])
	rest := parts[1:]

	switch command {
	case "/help", "/h", "/?", "/":
		printChatHelp()
		return true, nil

	case "/clear", "/c":
		session.Conv.ClearHistory()
		session.LastFiles = nil
		fmt.Println(SuccessStyle.Render("[Conversation cleared]"))
		return true, nil

	case "/model", "/m":
		return handleModelSwitch(session, rest)

	case "/files", "/f":
		printLastFiles(session)
		return true, nil

	case "/quit", "/q", "/exit":
		return false, nil

	default:
		return true, fmt.Errorf("unknown command: %s (type /help for commands)", command)
	}
}

// handleModelSwitch shows or switches the session model.
func handleModelSwitch(session *ChatSession, rest []string) (bool, error) {
	if len(rest) == 0 {
		fmt.Printf("%s Current model: %s\n",
			DimStyle.Render("[Model]"),
			HighlightStyle.Render(session.Conv.Model))
		return true, nil
	}

	session.Conv.SetModel(rest[0])
	fmt.Printf("%s Switched to model: %s\n",
		SuccessStyle.Render("[OK]"), session.Conv.Model)
	return true, nil
}

// printLastFiles lists files from the most recent response.
func printLastFiles(session *ChatSession) {
	if len(session.LastFiles) == 0 {
		fmt.Println(DimStyle.Render("[No files in the last response]"))
		return
	}

	fmt.Println()
	fmt.Println(SectionStyle.Render(fmt.Sprintf("Files from last response (%d)", len(session.LastFiles))))
	for _, f := range session.LastFiles {
		kind := f.MimeType
		if f.IsBinary {
			kind += ", binary"
		}
		fmt.Printf("  %s %s\n",
			HighlightStyle.Render(f.Path),
			DimStyle.Render(fmt.Sprintf("(%s, %s)", formatBytes(f.Size), kind)))
	}
	fmt.Println(DimStyle.Render("  Re-run with: coprelay ask --save-files DIR \"...\""))
	fmt.Println()
}

// =============================================================================
// DISPLAY FUNCTIONS
// =============================================================================

// printWelcome prints the REPL welcome banner.
func printWelcome(session *ChatSession) {
	fmt.Println()
	fmt.Println(TitleStyle.Render("coprelay interactive chat"))
	fmt.Println(SeparatorStyle.Render(strings.Repeat("─", 30)))
	fmt.Printf("%s %s\n",
		DimStyle.Render("Relay:"),
		ValueStyle.Render(session.Client.BaseURL()))
	fmt.Printf("%s %s\n",
		DimStyle.Render("Model:"),
		HighlightStyle.Render(session.Conv.Model))
	fmt.Println()
	fmt.Println(DimStyle.Render("Type your message and press Enter. Commands: /help, /quit"))
	fmt.Println()
}

// printChatHelp prints available REPL commands.
func printChatHelp() {
	fmt.Println()
	fmt.Println(SectionStyle.Render("Available Commands"))
	fmt.Println(SeparatorStyle.Render(strings.Repeat("─", 20)))
	fmt.Println()

	commands := []struct {
		cmd  string
		desc string
	}{
		{"/help, /h", "Show this help"},
		{"/clear, /c", "Clear conversation history"},
		{"/model [name]", "Show or switch model"},
		{"/files, /f", "List files from the last response"},
		{"/quit, /q", "Exit chat"},
	}

	for _, c := range commands {
		fmt.Printf("  %s  %s\n",
			HighlightStyle.Render(fmt.Sprintf("%-15s", c.cmd)),
			DimStyle.Render(c.desc))
	}

	fmt.Println()
	fmt.Println(DimStyle.Render("Tip: Ctrl+C cancels the current turn, Ctrl+D exits"))
	fmt.Println()
}

// printExitSummary prints the session summary on exit.
func printExitSummary(session *ChatSession) {
	if session.Turns == 0 {
		fmt.Println(DimStyle.Render("Goodbye!"))
		return
	}

	elapsed := time.Since(session.StartTime).Round(time.Second)

	fmt.Println()
	fmt.Println(SectionStyle.Render("Session Summary"))
	fmt.Println(SeparatorStyle.Render(strings.Repeat("─", 15)))
	fmt.Printf("  %s %d\n", DimStyle.Render("Turns:"), session.Turns)
	fmt.Printf("  %s %d\n", DimStyle.Render("Files:"), session.TotalFiles)
	fmt.Printf("  %s ~%d\n", DimStyle.Render("Tokens:"), session.Conv.EstimateTokens())
	fmt.Printf("  %s %s\n", DimStyle.Render("Duration:"), elapsed.String())
	fmt.Println()
	fmt.Println(DimStyle.Render("Goodbye!"))
}

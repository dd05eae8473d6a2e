// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - CLI parsing and command handlers for coprelay.
//
// CLI: Comprehensive help and examples for all commands
package cli

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdServe Command = iota
	CmdAsk
	CmdChat
	CmdStatus
	CmdModels
	CmdConfig
	CmdWorkspaces
	CmdVersion
	CmdHelp
	CmdUnknown
)

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	Quiet   bool
	Verbose bool
	JSON    bool // Output in JSON format
	Model   string
	Server  string // Relay base URL override for client commands
	APIKey  string // API key override for client commands

	// Command-specific
	Query       string
	File        string // Context file attached to an ask request
	Stream      bool   // Stream the answer instead of waiting for completion
	SaveFiles   string // Directory to write returned artifacts into
	Plain       bool   // Line REPL instead of the full-screen chat TUI
	Host        string // serve: listen address override
	Port        int    // serve: listen port override
	WatchConfig bool   // serve: reload the config file on change
	OlderThan   string // workspaces prune: age cutoff
	Yes         bool   // Skip confirmation prompts
	ConfigKey   string
	ConfigVal   string
	Subcommand  string

	// Raw args (remaining after flag parsing)
	Raw []string
}

const usageText = `coprelay - local HTTP relay for the GitHub Copilot CLI

Coprelay exposes the Copilot CLI as a local HTTP chat API. Each request
runs the CLI non-interactively inside a throwaway workspace and returns
the cleaned output plus every file the run produced.

Usage:
  coprelay                        Run the relay server (default)
  coprelay serve                  Run the relay server
    --host HOST                   Listen address (default: 127.0.0.1)
    --port N                      Listen port (default: 8788)
    --watch-config                Reload the config file on change
  coprelay ask "question"         One-shot question against a running relay
    -m, --model NAME              Model for this request
    -f, --file FILE               Attach a file as context
    --stream                      Print the answer as it is generated
    --save-files DIR              Write returned artifacts into DIR
  coprelay chat                   Interactive chat session
    -m, --model NAME              Model for the session
    --plain                       Line REPL instead of the full-screen TUI
  coprelay status, s              Relay health, models, and usage summary
  coprelay models                 List available models
  coprelay config [show|path|init|set|hash-key]
                                  Configuration management
  coprelay workspaces [list|prune]
                                  Retained workspace management
    --older-than DUR              Prune cutoff (default: 24h, 0 prunes all)
    -y, --yes                     Skip the prune-everything confirmation
  coprelay version                Show version information
  coprelay help                   Show this help

Global Flags:
  --server URL                    Relay base URL (default: from config)
  --key KEY                       API key presented to the relay
  -q, --quiet                     Minimal output
  --verbose                       Verbose (debug) logging
  --json                          JSON output where supported

Configuration:
  Config file: ~/.coprelay/config.toml (coprelay config init)
  Environment: COPRELAY_PORT, COPRELAY_API_KEY, COPILOT_PATH,
               COPILOT_MODEL, GH_TOKEN

Examples:
  coprelay serve --port 9000
  coprelay ask "explain this error" -f build.log
  coprelay ask --stream "write a readme for this project"
  coprelay ask --save-files ./out "generate a python hello world script"
  coprelay chat --model gpt-5.2
  coprelay config set server.api_key relay-secret
  coprelay config hash-key
  coprelay workspaces prune --older-than 48h

Version: %s
`

// PrintUsage prints the usage/help text.
func PrintUsage() {
	fmt.Printf(usageText, Version)
}

// PrintVersion prints version information.
func PrintVersion() {
	fmt.Printf("coprelay version %s\n", Version)
	fmt.Printf("  Git commit: %s\n", GitCommit)
	fmt.Printf("  Build date: %s\n", BuildDate)
	fmt.Printf("  Go version: %s\n", runtime.Version())
}

// Parse parses command-line arguments and returns the command and args.
func Parse() (Command, Args) {
	args := os.Args[1:]

	// Parse global flags first
	remaining, parsedArgs := parseGlobalFlags(args)

	// If no remaining args, default to serving the relay
	if len(remaining) == 0 {
		return CmdServe, parsedArgs
	}

	// Check first argument for command
	cmd := strings.ToLower(remaining[0])
	remaining = remaining[1:]
	parsedArgs.Raw = remaining

	switch cmd {
	case "serve", "server", "run":
		parseServeArgs(&parsedArgs, remaining)
		return CmdServe, parsedArgs

	case "ask":
		parseAskArgs(&parsedArgs, remaining)
		return CmdAsk, parsedArgs

	case "chat":
		parseChatArgs(&parsedArgs, remaining)
		return CmdChat, parsedArgs

	case "status", "s":
		return CmdStatus, parsedArgs

	case "models", "model-list":
		return CmdModels, parsedArgs

	case "config":
		parseConfigArgs(&parsedArgs, remaining)
		return CmdConfig, parsedArgs

	case "workspaces", "workspace", "ws":
		parseWorkspacesArgs(&parsedArgs, remaining)
		return CmdWorkspaces, parsedArgs

	case "version", "-v", "--version":
		return CmdVersion, parsedArgs

	case "help", "-h", "--help":
		return CmdHelp, parsedArgs

	default:
		// Unknown command. Keep it in Raw so the caller can report it.
		parsedArgs.Raw = append([]string{cmd}, remaining...)
		return CmdUnknown, parsedArgs
	}
}

// parseGlobalFlags extracts global flags from args and returns remaining args.
func parseGlobalFlags(args []string) ([]string, Args) {
	var remaining []string
	var parsedArgs Args

	i := 0
	for i < len(args) {
		arg := args[i]

		switch arg {
		case "-q", "--quiet":
			parsedArgs.Quiet = true
		case "--verbose":
			parsedArgs.Verbose = true
		case "--json":
			parsedArgs.JSON = true
		case "--server":
			if i+1 < len(args) {
				i++
				parsedArgs.Server = args[i]
			}
		case "--key", "--api-key":
			if i+1 < len(args) {
				i++
				parsedArgs.APIKey = args[i]
			}
		case "--model":
			if i+1 < len(args) {
				i++
				parsedArgs.Model = args[i]
			}
		default:
			switch {
			case strings.HasPrefix(arg, "--server="):
				parsedArgs.Server = strings.TrimPrefix(arg, "--server=")
			case strings.HasPrefix(arg, "--key="):
				parsedArgs.APIKey = strings.TrimPrefix(arg, "--key=")
			case strings.HasPrefix(arg, "--model="):
				parsedArgs.Model = strings.TrimPrefix(arg, "--model=")
			default:
				remaining = append(remaining, arg)
			}
		}
		i++
	}

	return remaining, parsedArgs
}

// parseServeArgs parses serve command specific arguments.
func parseServeArgs(args *Args, remaining []string) {
	for i := 0; i < len(remaining); i++ {
		arg := remaining[i]

		switch arg {
		case "--host":
			if i+1 < len(remaining) {
				i++
				args.Host = remaining[i]
			}
		case "-p", "--port":
			if i+1 < len(remaining) {
				i++
				if n, err := strconv.Atoi(remaining[i]); err == nil && n > 0 {
					args.Port = n
				}
			}
		case "--watch-config":
			args.WatchConfig = true
		default:
			switch {
			case strings.HasPrefix(arg, "--host="):
				args.Host = strings.TrimPrefix(arg, "--host=")
			case strings.HasPrefix(arg, "--port="):
				if n, err := strconv.Atoi(strings.TrimPrefix(arg, "--port=")); err == nil && n > 0 {
					args.Port = n
				}
			}
		}
	}
}

// parseAskArgs parses ask command specific arguments.
func parseAskArgs(args *Args, remaining []string) {
	var query []string

	i := 0
	for i < len(remaining) {
		arg := remaining[i]

		switch arg {
		case "-f", "--file":
			if i+1 < len(remaining) {
				i++
				args.File = remaining[i]
			}
		case "-m", "--model":
			if i+1 < len(remaining) {
				i++
				args.Model = remaining[i]
			}
		case "--stream":
			args.Stream = true
		case "--save-files":
			if i+1 < len(remaining) {
				i++
				args.SaveFiles = remaining[i]
			}
		default:
			switch {
			case strings.HasPrefix(arg, "--file="):
				args.File = strings.TrimPrefix(arg, "--file=")
			case strings.HasPrefix(arg, "--model="):
				args.Model = strings.TrimPrefix(arg, "--model=")
			case strings.HasPrefix(arg, "--save-files="):
				args.SaveFiles = strings.TrimPrefix(arg, "--save-files=")
			case !strings.HasPrefix(arg, "-"):
				query = append(query, arg)
			}
		}
		i++
	}

	args.Query = strings.Join(query, " ")
}

// parseChatArgs parses chat command specific arguments.
func parseChatArgs(args *Args, remaining []string) {
	for i := 0; i < len(remaining); i++ {
		arg := remaining[i]

		switch arg {
		case "-m", "--model":
			if i+1 < len(remaining) {
				i++
				args.Model = remaining[i]
			}
		case "--plain":
			args.Plain = true
		default:
			if strings.HasPrefix(arg, "--model=") {
				args.Model = strings.TrimPrefix(arg, "--model=")
			}
		}
	}
}

// parseConfigArgs parses config command specific arguments.
func parseConfigArgs(args *Args, remaining []string) {
	if len(remaining) > 0 {
		args.Subcommand = remaining[0]
		if len(remaining) > 1 {
			args.ConfigKey = remaining[1]
		}
		if len(remaining) > 2 {
			args.ConfigVal = strings.Join(remaining[2:], " ")
		}
	}
}

// parseWorkspacesArgs parses workspaces command specific arguments.
func parseWorkspacesArgs(args *Args, remaining []string) {
	for i := 0; i < len(remaining); i++ {
		arg := remaining[i]

		switch arg {
		case "--older-than":
			if i+1 < len(remaining) {
				i++
				args.OlderThan = remaining[i]
			}
		case "--yes", "-y":
			args.Yes = true
		default:
			switch {
			case strings.HasPrefix(arg, "--older-than="):
				args.OlderThan = strings.TrimPrefix(arg, "--older-than=")
			case !strings.HasPrefix(arg, "-") && args.Subcommand == "":
				args.Subcommand = arg
			}
		}
	}
}

// =============================================================================
// COMMAND HANDLERS
// =============================================================================

// ERROR HANDLING: Errors must not be silently ignored

// HandleServe handles the "serve" command.
// This delegates to the full implementation in serve.go.
func HandleServe(args Args) {
	if err := HandleServeCommand(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(GetExitCode(err))
	}
}

// HandleAsk handles the "ask" command.
// This delegates to the full implementation in ask.go.
func HandleAsk(args Args) {
	if err := HandleAskCommand(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(GetExitCode(err))
	}
}

// HandleChat handles the "chat" command.
// This delegates to the full implementation in chat.go.
func HandleChat(args Args) {
	if err := HandleChatCommand(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(GetExitCode(err))
	}
}

// HandleStatus handles the "status" command.
// This delegates to the full implementation in status.go.
func HandleStatus(args Args) {
	if err := HandleStatusCommand(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(GetExitCode(err))
	}
}

// HandleModels handles the "models" command.
// This delegates to the full implementation in models.go.
func HandleModels(args Args) {
	if err := HandleModelsCommand(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(GetExitCode(err))
	}
}

// HandleConfig handles the "config" command.
// This delegates to the full implementation in config.go.
func HandleConfig(args Args) {
	if err := HandleConfigCommand(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(GetExitCode(err))
	}
}

// HandleWorkspaces handles the "workspaces" command.
// This delegates to the full implementation in workspaces.go.
func HandleWorkspaces(args Args) {
	if err := HandleWorkspacesCommand(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(GetExitCode(err))
	}
}

// HandleVersion handles the "version" command.
func HandleVersion(args Args) {
	if args.JSON {
		outputJSON(map[string]string{
			"version":    Version,
			"git_commit": GitCommit,
			"build_date": BuildDate,
			"go_version": runtime.Version(),
		})
		return
	}
	PrintVersion()
}

// HandleHelp handles the "help" command.
func HandleHelp() {
	PrintUsage()
}

// HandleUnknown reports an unrecognized command and exits with a usage error.
// USABILITY: A near-miss gets a "did you mean" hint before the help pointer.
func HandleUnknown(args Args) {
	name := ""
	if len(args.Raw) > 0 {
		name = args.Raw[0]
	}
	fmt.Fprintf(os.Stderr, "Unknown command: %s\n", name)
	if suggestion := SuggestCommand(name); suggestion != "" {
		fmt.Fprintf(os.Stderr, "Did you mean: coprelay %s\n", suggestion)
	}
	fmt.Fprintf(os.Stderr, "\nRun 'coprelay help' for usage.\n")
	os.Exit(ExitUsage)
}

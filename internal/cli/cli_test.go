// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli provides command-line interface parsing and execution.
//
// This test file covers argument parsing, exit code mapping, and the
// display helpers shared across commands.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jeranaias/coprelay/internal/client"
	"github.com/jeranaias/coprelay/internal/copilot"
)

// =============================================================================
// PARSE INTEGRATION TESTS (testing Parse() with os.Args simulation)
// =============================================================================

// TestParse_Integration tests the actual Parse() function by temporarily
// modifying os.Args. This is an integration test of the full CLI parsing.
func TestParse_Integration(t *testing.T) {
	// Save original args
	originalArgs := os.Args
	defer func() { os.Args = originalArgs }()

	tests := []struct {
		name        string
		args        []string
		wantCommand Command
		validate    func(*testing.T, Args)
	}{
		{
			name:        "no args defaults to serve",
			args:        []string{"coprelay"},
			wantCommand: CmdServe,
		},
		{
			name:        "serve with host and port",
			args:        []string{"coprelay", "serve", "--host", "0.0.0.0", "-p", "9000"},
			wantCommand: CmdServe,
			validate: func(t *testing.T, a Args) {
				if a.Host != "0.0.0.0" {
					t.Errorf("Host = %q, want %q", a.Host, "0.0.0.0")
				}
				if a.Port != 9000 {
					t.Errorf("Port = %d, want %d", a.Port, 9000)
				}
			},
		},
		{
			name:        "serve with port equals form",
			args:        []string{"coprelay", "serve", "--port=8790"},
			wantCommand: CmdServe,
			validate: func(t *testing.T, a Args) {
				if a.Port != 8790 {
					t.Errorf("Port = %d, want %d", a.Port, 8790)
				}
			},
		},
		{
			name:        "serve with watch config",
			args:        []string{"coprelay", "serve", "--watch-config"},
			wantCommand: CmdServe,
			validate: func(t *testing.T, a Args) {
				if !a.WatchConfig {
					t.Error("WatchConfig = false, want true")
				}
			},
		},
		{
			name:        "verbose flag",
			args:        []string{"coprelay", "serve", "--verbose"},
			wantCommand: CmdServe,
			validate: func(t *testing.T, a Args) {
				if !a.Verbose {
					t.Error("Verbose = false, want true")
				}
			},
		},
		{
			name:        "ask command",
			args:        []string{"coprelay", "ask", "What is Go?"},
			wantCommand: CmdAsk,
			validate: func(t *testing.T, a Args) {
				if a.Query != "What is Go?" {
					t.Errorf("Query = %q, want %q", a.Query, "What is Go?")
				}
			},
		},
		{
			name:        "ask joins positional words",
			args:        []string{"coprelay", "ask", "explain", "Go", "interfaces"},
			wantCommand: CmdAsk,
			validate: func(t *testing.T, a Args) {
				if a.Query != "explain Go interfaces" {
					t.Errorf("Query = %q, want %q", a.Query, "explain Go interfaces")
				}
			},
		},
		{
			name:        "ask with model flag",
			args:        []string{"coprelay", "ask", "-m", "gpt-5", "Hello"},
			wantCommand: CmdAsk,
			validate: func(t *testing.T, a Args) {
				if a.Model != "gpt-5" {
					t.Errorf("Model = %q, want %q", a.Model, "gpt-5")
				}
				if a.Query != "Hello" {
					t.Errorf("Query = %q, want %q", a.Query, "Hello")
				}
			},
		},
		{
			name:        "ask with stream flag",
			args:        []string{"coprelay", "ask", "--stream", "Question"},
			wantCommand: CmdAsk,
			validate: func(t *testing.T, a Args) {
				if !a.Stream {
					t.Error("Stream should be true")
				}
			},
		},
		{
			name:        "ask with save-files",
			args:        []string{"coprelay", "ask", "--save-files", "./out", "Write a script"},
			wantCommand: CmdAsk,
			validate: func(t *testing.T, a Args) {
				if a.SaveFiles != "./out" {
					t.Errorf("SaveFiles = %q, want %q", a.SaveFiles, "./out")
				}
				if a.Query != "Write a script" {
					t.Errorf("Query = %q, want %q", a.Query, "Write a script")
				}
			},
		},
		{
			name:        "ask with context file",
			args:        []string{"coprelay", "ask", "-f", "main.go", "Review this"},
			wantCommand: CmdAsk,
			validate: func(t *testing.T, a Args) {
				if a.File != "main.go" {
					t.Errorf("File = %q, want %q", a.File, "main.go")
				}
			},
		},
		{
			name:        "global json flag",
			args:        []string{"coprelay", "--json", "ask", "Question"},
			wantCommand: CmdAsk,
			validate: func(t *testing.T, a Args) {
				if !a.JSON {
					t.Error("JSON should be true")
				}
			},
		},
		{
			name:        "global server override",
			args:        []string{"coprelay", "--server", "http://10.0.0.5:8788", "status"},
			wantCommand: CmdStatus,
			validate: func(t *testing.T, a Args) {
				if a.Server != "http://10.0.0.5:8788" {
					t.Errorf("Server = %q, want %q", a.Server, "http://10.0.0.5:8788")
				}
			},
		},
		{
			name:        "global api key",
			args:        []string{"coprelay", "--key", "secret-key-12345", "status"},
			wantCommand: CmdStatus,
			validate: func(t *testing.T, a Args) {
				if a.APIKey != "secret-key-12345" {
					t.Errorf("APIKey = %q, want %q", a.APIKey, "secret-key-12345")
				}
			},
		},
		{
			name:        "global quiet flag",
			args:        []string{"coprelay", "-q", "ask", "Question"},
			wantCommand: CmdAsk,
			validate: func(t *testing.T, a Args) {
				if !a.Quiet {
					t.Error("Quiet should be true")
				}
			},
		},
		{
			name:        "chat command",
			args:        []string{"coprelay", "chat"},
			wantCommand: CmdChat,
		},
		{
			name:        "chat plain mode",
			args:        []string{"coprelay", "chat", "--plain"},
			wantCommand: CmdChat,
			validate: func(t *testing.T, a Args) {
				if !a.Plain {
					t.Error("Plain should be true")
				}
			},
		},
		{
			name:        "chat with model",
			args:        []string{"coprelay", "chat", "-m", "claude-opus-4.5"},
			wantCommand: CmdChat,
			validate: func(t *testing.T, a Args) {
				if a.Model != "claude-opus-4.5" {
					t.Errorf("Model = %q, want %q", a.Model, "claude-opus-4.5")
				}
			},
		},
		{
			name:        "status command",
			args:        []string{"coprelay", "status"},
			wantCommand: CmdStatus,
		},
		{
			name:        "status short alias",
			args:        []string{"coprelay", "s"},
			wantCommand: CmdStatus,
		},
		{
			name:        "models command",
			args:        []string{"coprelay", "models"},
			wantCommand: CmdModels,
		},
		{
			name:        "config show",
			args:        []string{"coprelay", "config", "show"},
			wantCommand: CmdConfig,
			validate: func(t *testing.T, a Args) {
				if a.Subcommand != "show" {
					t.Errorf("Subcommand = %q, want %q", a.Subcommand, "show")
				}
			},
		},
		{
			name:        "config set key value",
			args:        []string{"coprelay", "config", "set", "copilot.default_model", "gpt-5"},
			wantCommand: CmdConfig,
			validate: func(t *testing.T, a Args) {
				if a.Subcommand != "set" {
					t.Errorf("Subcommand = %q, want %q", a.Subcommand, "set")
				}
				if a.ConfigKey != "copilot.default_model" {
					t.Errorf("ConfigKey = %q, want %q", a.ConfigKey, "copilot.default_model")
				}
				if a.ConfigVal != "gpt-5" {
					t.Errorf("ConfigVal = %q, want %q", a.ConfigVal, "gpt-5")
				}
			},
		},
		{
			name:        "config set joins multiword value",
			args:        []string{"coprelay", "config", "set", "workspace.root", "/var/lib/coprelay", "workspaces"},
			wantCommand: CmdConfig,
			validate: func(t *testing.T, a Args) {
				if a.ConfigVal != "/var/lib/coprelay workspaces" {
					t.Errorf("ConfigVal = %q, want %q", a.ConfigVal, "/var/lib/coprelay workspaces")
				}
			},
		},
		{
			name:        "config hash-key",
			args:        []string{"coprelay", "config", "hash-key", "my-secret-key"},
			wantCommand: CmdConfig,
			validate: func(t *testing.T, a Args) {
				if a.Subcommand != "hash-key" {
					t.Errorf("Subcommand = %q, want %q", a.Subcommand, "hash-key")
				}
				if a.ConfigKey != "my-secret-key" {
					t.Errorf("ConfigKey = %q, want %q", a.ConfigKey, "my-secret-key")
				}
			},
		},
		{
			name:        "workspaces default",
			args:        []string{"coprelay", "workspaces"},
			wantCommand: CmdWorkspaces,
			validate: func(t *testing.T, a Args) {
				if a.Subcommand != "" {
					t.Errorf("Subcommand = %q, want empty", a.Subcommand)
				}
			},
		},
		{
			name:        "workspaces prune with age",
			args:        []string{"coprelay", "ws", "prune", "--older-than", "7d"},
			wantCommand: CmdWorkspaces,
			validate: func(t *testing.T, a Args) {
				if a.Subcommand != "prune" {
					t.Errorf("Subcommand = %q, want %q", a.Subcommand, "prune")
				}
				if a.OlderThan != "7d" {
					t.Errorf("OlderThan = %q, want %q", a.OlderThan, "7d")
				}
			},
		},
		{
			name:        "workspaces prune equals form",
			args:        []string{"coprelay", "workspaces", "prune", "--older-than=48h"},
			wantCommand: CmdWorkspaces,
			validate: func(t *testing.T, a Args) {
				if a.OlderThan != "48h" {
					t.Errorf("OlderThan = %q, want %q", a.OlderThan, "48h")
				}
			},
		},
		{
			name:        "workspaces prune with yes flag",
			args:        []string{"coprelay", "workspaces", "prune", "--older-than", "0", "-y"},
			wantCommand: CmdWorkspaces,
			validate: func(t *testing.T, a Args) {
				if a.OlderThan != "0" {
					t.Errorf("OlderThan = %q, want %q", a.OlderThan, "0")
				}
				if !a.Yes {
					t.Error("Yes should be set by -y")
				}
			},
		},
		{
			name:        "version command",
			args:        []string{"coprelay", "version"},
			wantCommand: CmdVersion,
		},
		{
			name:        "version flag",
			args:        []string{"coprelay", "--version"},
			wantCommand: CmdVersion,
		},
		{
			name:        "help command",
			args:        []string{"coprelay", "help"},
			wantCommand: CmdHelp,
		},
		{
			name:        "unknown command",
			args:        []string{"coprelay", "frobnicate"},
			wantCommand: CmdUnknown,
			validate: func(t *testing.T, a Args) {
				if len(a.Raw) == 0 || a.Raw[0] != "frobnicate" {
					t.Errorf("Raw = %v, want [frobnicate ...]", a.Raw)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Args = tt.args
			cmd, args := Parse()

			if cmd != tt.wantCommand {
				t.Errorf("Command = %v, want %v", cmd, tt.wantCommand)
			}

			if tt.validate != nil {
				tt.validate(t, args)
			}
		})
	}
}

// =============================================================================
// EXIT CODE TESTS (errors.go)
// =============================================================================

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{
			name: "nil error",
			err:  nil,
			want: ExitSuccess,
		},
		{
			name: "validation error",
			err:  NewValidationError("port", "abc", "must be a number"),
			want: ExitUsage,
		},
		{
			name: "wrapped validation error",
			err:  fmt.Errorf("parsing flags: %w", NewValidationError("port", "abc", "must be a number")),
			want: ExitUsage,
		},
		{
			name: "not found error",
			err:  NewNotFoundError("file", "missing.txt"),
			want: ExitNotFound,
		},
		{
			name: "unauthorized sentinel",
			err:  fmt.Errorf("chat failed: %w", client.ErrUnauthorized),
			want: ExitAuth,
		},
		{
			name: "run timeout sentinel",
			err:  fmt.Errorf("chat failed: %w", client.ErrRunTimeout),
			want: ExitTimeout,
		},
		{
			name: "copilot timeout sentinel",
			err:  copilot.ErrTimeout,
			want: ExitTimeout,
		},
		{
			name: "cli not found sentinel",
			err:  copilot.ErrCLINotFound,
			want: ExitNotFound,
		},
		{
			name: "context deadline",
			err:  context.DeadlineExceeded,
			want: ExitTimeout,
		},
		{
			name: "timed out message beats connection wording",
			err:  errors.New("request timed out waiting for connection"),
			want: ExitTimeout,
		},
		{
			name: "config message",
			err:  errors.New("invalid configuration: port out of range"),
			want: ExitConfig,
		},
		{
			name: "auth message",
			err:  errors.New("request rejected: api key invalid"),
			want: ExitAuth,
		},
		{
			name: "network message",
			err:  errors.New("dial tcp 127.0.0.1:8788: connection refused"),
			want: ExitNetwork,
		},
		{
			name: "not found message",
			err:  errors.New("workspace record not found"),
			want: ExitNotFound,
		},
		{
			name: "generic error",
			err:  errors.New("something unexpected happened"),
			want: ExitGeneral,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetExitCode(tt.err); got != tt.want {
				t.Errorf("GetExitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestCommandError_Unwrap(t *testing.T) {
	inner := errors.New("inner failure")
	err := NewCommandError("ask", "send request", "relay rejected it", inner)

	if !errors.Is(err, inner) {
		t.Error("CommandError should unwrap to the inner error")
	}
	if !strings.Contains(err.Error(), "ask") {
		t.Errorf("Error() = %q, should mention the command", err.Error())
	}
}

func TestErrMissingArgument(t *testing.T) {
	err := ErrMissingArgument("question", `coprelay ask "your question"`)

	if GetExitCode(err) != ExitUsage {
		t.Errorf("GetExitCode = %d, want %d", GetExitCode(err), ExitUsage)
	}
	if !strings.Contains(err.Error(), "question") {
		t.Errorf("Error() = %q, should name the argument", err.Error())
	}
}

// =============================================================================
// HELPER TESTS (helpers.go)
// =============================================================================

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0s"},
		{45 * time.Second, "45s"},
		{90 * time.Second, "1m30s"},
		{2*time.Hour + 5*time.Minute, "2h5m"},
		{26 * time.Hour, "1d2h"},
		{3*24*time.Hour + 4*time.Hour, "3d4h"},
	}

	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{0, "0 bytes"},
		{512, "512 bytes"},
		{1024, "1.00 KB"},
		{1536, "1.50 KB"},
		{1048576, "1.00 MB"},
		{1073741824, "1.00 GB"},
	}

	for _, tt := range tests {
		if got := formatBytes(tt.bytes); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.bytes, got, tt.want)
		}
	}
}

func TestFormatCount(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{1234567, "1,234,567"},
	}

	for _, tt := range tests {
		if got := formatCount(tt.n); got != tt.want {
			t.Errorf("formatCount(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestMaskAPIKey(t *testing.T) {
	tests := []struct {
		name string
		key  string
		want string
	}{
		{"empty key", "", "(not set)"},
		{"short key fully masked", "short", "****"},
		{"eight chars fully masked", "12345678", "****"},
		{"long key keeps edges", "sk-verylongapikey-9876", "sk-v...9876"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := maskAPIKey(tt.key); got != tt.want {
				t.Errorf("maskAPIKey(%q) = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
}

func TestMaskIfSecret(t *testing.T) {
	tests := []struct {
		key    string
		value  string
		masked bool
	}{
		{"server.api_key", "sk-verylongapikey-9876", true},
		{"copilot.token", "ghp_sometoken", true},
		{"copilot.default_model", "gpt-5", false},
		{"server.port", "9000", false},
	}

	for _, tt := range tests {
		got := maskIfSecret(tt.key, tt.value)
		if tt.masked && got == tt.value {
			t.Errorf("maskIfSecret(%q) should mask the value", tt.key)
		}
		if !tt.masked && got != tt.value {
			t.Errorf("maskIfSecret(%q) = %q, want unmasked %q", tt.key, got, tt.value)
		}
	}
}

func TestTruncateLine(t *testing.T) {
	tests := []struct {
		name string
		s    string
		max  int
		want string
	}{
		{"short string untouched", "hello", 10, "hello"},
		{"long string truncated", "hello world, this is long", 10, "hello w..."},
		{"newlines become spaces", "a\nb", 10, "a b"},
		{"unicode safe", "héllo wörld", 8, "héllo..."},
		{"tiny max", "abcdef", 3, "abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := truncateLine(tt.s, tt.max); got != tt.want {
				t.Errorf("truncateLine(%q, %d) = %q, want %q", tt.s, tt.max, got, tt.want)
			}
		})
	}
}

// =============================================================================
// ARTIFACT PATH VALIDATION TESTS (ask.go)
// =============================================================================

func TestPathWithinDir(t *testing.T) {
	sep := string(filepath.Separator)
	out := sep + "out"

	tests := []struct {
		name string
		path string
		dir  string
		want bool
	}{
		{"nested file inside", filepath.Join(out, "sub", "file.txt"), out, true},
		{"direct child inside", filepath.Join(out, "file.txt"), out, true},
		{"dir itself is not inside", out, out, false},
		{"sibling prefix rejected", out + "-evil" + sep + "x", out, false},
		{"unrelated path rejected", sep + filepath.Join("elsewhere", "f"), out, false},
		{"dotdot escape rejected", filepath.Join(out, "..", "etc", "passwd"), out, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := pathWithinDir(tt.path, tt.dir); got != tt.want {
				t.Errorf("pathWithinDir(%q, %q) = %v, want %v", tt.path, tt.dir, got, tt.want)
			}
		})
	}
}

// =============================================================================
// CONTEXT FILE TESTS (ask.go)
// =============================================================================

func TestReadFileForContext(t *testing.T) {
	dir := t.TempDir()

	t.Run("reads regular file", func(t *testing.T) {
		path := filepath.Join(dir, "ctx.txt")
		if err := os.WriteFile(path, []byte("some context"), 0o644); err != nil {
			t.Fatal(err)
		}

		content, err := readFileForContext(path)
		if err != nil {
			t.Fatalf("readFileForContext() error = %v", err)
		}
		if content != "some context" {
			t.Errorf("content = %q, want %q", content, "some context")
		}
	})

	t.Run("missing file is a not-found error", func(t *testing.T) {
		_, err := readFileForContext(filepath.Join(dir, "absent.txt"))
		if err == nil {
			t.Fatal("expected an error")
		}
		if GetExitCode(err) != ExitNotFound {
			t.Errorf("GetExitCode = %d, want %d", GetExitCode(err), ExitNotFound)
		}
	})

	t.Run("directory rejected", func(t *testing.T) {
		_, err := readFileForContext(dir)
		if err == nil {
			t.Fatal("expected an error")
		}
		if !IsValidationError(err) {
			t.Errorf("expected a validation error, got %T", err)
		}
	})

	t.Run("oversized file rejected", func(t *testing.T) {
		path := filepath.Join(dir, "big.txt")
		big := strings.Repeat("x", MaxContextFileSize+1)
		if err := os.WriteFile(path, []byte(big), 0o644); err != nil {
			t.Fatal(err)
		}

		_, err := readFileForContext(path)
		if err == nil {
			t.Fatal("expected an error")
		}
		if !IsValidationError(err) {
			t.Errorf("expected a validation error, got %T", err)
		}
	})
}

// =============================================================================
// PRUNE AGE TESTS (workspaces.go)
// =============================================================================

func TestParseAge(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"empty defaults to a day", "", 24 * time.Hour, false},
		{"zero prunes everything", "0", 0, false},
		{"day suffix", "7d", 7 * 24 * time.Hour, false},
		{"plain duration", "30m", 30 * time.Minute, false},
		{"compound duration", "1h30m", 90 * time.Minute, false},
		{"garbage rejected", "soon", 0, true},
		{"negative rejected", "-5m", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseAge(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				if GetExitCode(err) != ExitUsage {
					t.Errorf("GetExitCode = %d, want %d", GetExitCode(err), ExitUsage)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseAge(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("parseAge(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

// =============================================================================
// STATUS RENDERING TESTS (styles.go)
// =============================================================================

func TestRenderStatus(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"ok", "[OK]"},
		{"healthy", "[OK]"},
		{"error", "[FAIL]"},
		{"unavailable", "[FAIL]"},
		{"degraded", "[WARN]"},
		{"mystery", "[MYSTERY]"},
	}

	for _, tt := range tests {
		if got := RenderStatus(tt.in); !strings.Contains(got, tt.want) {
			t.Errorf("RenderStatus(%q) = %q, want it to contain %q", tt.in, got, tt.want)
		}
	}
}

// =============================================================================
// COMMAND SUGGESTION TESTS (suggest.go)
// =============================================================================

func TestSuggestCommand(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"stauts", "status"},
		{"serv", "serve"},
		{"hepl", "help"},
		{"modles", "models"},
		{"workspace", "workspaces"},
		{"confg", "config"},
		{"frobnicate", ""}, // nothing close
		{"x", ""},          // too short to guess
		{"serve", ""},      // exact match needs no suggestion
	}

	for _, tt := range tests {
		if got := SuggestCommand(tt.input); got != tt.want {
			t.Errorf("SuggestCommand(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestLevenshteinDistance(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "abc", 3},
		{"abc", "", 3},
		{"abc", "abc", 0},
		{"kitten", "sitting", 3},
		{"stauts", "status", 2},
	}

	for _, tt := range tests {
		if got := levenshteinDistance(tt.a, tt.b); got != tt.want {
			t.Errorf("levenshteinDistance(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

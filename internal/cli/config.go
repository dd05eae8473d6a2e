// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config.go - Config command implementation for the coprelay CLI.
//
// CLI: Comprehensive help and examples for all commands
//
// Command: config [subcommand]
// Short:   View and modify configuration
// Aliases: (none)
//
// Subcommands:
//   show (default)      Display current configuration
//   path                Show configuration file path
//   init                Write a default config file if none exists
//   set <key> <value>   Set a configuration value
//   hash-key [KEY]      Hash an API key for server.api_key_hash
//
// Examples:
//   coprelay config                                   Show current config
//   coprelay config show --json                       Config in JSON format
//   coprelay config path                              Show config file location
//   coprelay config init                              Create ~/.coprelay/config.toml
//   coprelay config set copilot.default_model gpt-5
//   coprelay config set server.port 9000
//   coprelay config set workspace.keep true
//   coprelay config hash-key                          Hash a key read from stdin
//   coprelay config hash-key my-secret-key            Hash the given key
//
// Configuration Keys:
//   server.host                 Listen address
//   server.port                 Listen port
//   server.api_key              Plaintext API key (empty disables auth)
//   server.api_key_hash         PBKDF2 key hash (preferred over api_key)
//   copilot.path                Copilot CLI binary
//   copilot.token               GitHub token for the CLI
//   copilot.default_model       Model used when requests name none
//   copilot.timeout_secs        Chat run timeout
//   workspace.root              Scratch workspace parent directory
//   workspace.keep              Retain workspaces after each request
//   telemetry.enabled           Record usage telemetry
//   logging.level               debug, info, warn, or error
//
// Flags:
//   --json              Output in JSON format
package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/coprelay/internal/config"
)

// configPathStyle renders file locations in config output.
var configPathStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("245")).
	Italic(true)

// configFilePath returns the config file path, or "" when the home
// directory cannot be resolved.
func configFilePath() string {
	path, err := config.ConfigPath()
	if err != nil {
		return ""
	}
	return path
}

// =============================================================================
// HANDLE CONFIG
// =============================================================================

// HandleConfigCommand handles the "config" command.
func HandleConfigCommand(args Args) error {
	switch args.Subcommand {
	case "", "show":
		if args.JSON {
			return handleConfigShowJSON()
		}
		return handleConfigShow()

	case "path":
		return handleConfigPath(args.JSON)

	case "init":
		return handleConfigInit()

	case "set":
		return handleConfigSet(args.ConfigKey, args.ConfigVal)

	case "hash-key", "hashkey":
		return handleConfigHashKey(args.ConfigKey)

	default:
		return NewValidationErrorWithExample("subcommand", args.Subcommand,
			"must be one of: show, path, init, set, hash-key",
			"coprelay config set copilot.default_model gpt-5")
	}
}

// loadOrDefault loads the config, falling back to defaults with a
// warning so show/set keep working against a broken file.
func loadOrDefault() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %s (using defaults)\n", err)
	}
	if cfg == nil {
		cfg = config.Default()
	}
	return cfg
}

// redactedClone copies the config with secrets masked for display.
// SECURITY: Plaintext keys and tokens never appear in show output, in
// either rendering mode.
func redactedClone(cfg *config.Config) *config.Config {
	clone := cfg.Clone()
	clone.Server.APIKey = maskAPIKey(clone.Server.APIKey)
	clone.Copilot.Token = maskAPIKey(clone.Copilot.Token)
	return clone
}

// handleConfigShowJSON outputs the redacted configuration as JSON.
func handleConfigShowJSON() error {
	cfg := loadOrDefault()
	return outputJSON(struct {
		Path   string         `json:"path"`
		Config *config.Config `json:"config"`
	}{
		Path:   configFilePath(),
		Config: redactedClone(cfg),
	})
}

// handleConfigShow displays the current configuration section by
// section, mirroring the TOML layout.
func handleConfigShow() error {
	cfg := loadOrDefault()

	fmt.Println()
	fmt.Println(TitleStyle.Render("coprelay Configuration"))
	fmt.Println(RenderSeparator())
	fmt.Println()

	// Server section
	fmt.Println(SectionStyle.Render("[server]"))
	printConfigKV("host:", cfg.Server.Host)
	printConfigKV("port:", fmt.Sprintf("%d", cfg.Server.Port))
	fmt.Printf("  %s%s\n",
		LabelStyle.Render("api_key:"),
		DimStyle.Render(maskAPIKey(cfg.Server.APIKey)))
	hashState := "(not set)"
	if cfg.Server.APIKeyHash != "" {
		hashState = "set (pbkdf2)"
	}
	fmt.Printf("  %s%s\n",
		LabelStyle.Render("api_key_hash:"),
		DimStyle.Render(hashState))
	printConfigKV("allowed_origins:", strings.Join(cfg.Server.AllowedOrigins, ", "))
	rateLimit := "disabled"
	if cfg.Server.RateLimitEnabled {
		rateLimit = fmt.Sprintf("%.0f req/s, burst %d", cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)
	}
	printConfigKV("rate_limit:", rateLimit)
	printConfigKV("max_body:", formatBytes(cfg.Server.MaxBodyBytes))
	fmt.Println()

	// Copilot section
	fmt.Println(SectionStyle.Render("[copilot]"))
	printConfigKV("path:", cfg.Copilot.Path)
	fmt.Printf("  %s%s\n",
		LabelStyle.Render("token:"),
		DimStyle.Render(maskAPIKey(cfg.Copilot.Token)))
	printConfigKV("default_model:", cfg.Copilot.DefaultModel)
	printConfigKV("timeout_secs:", fmt.Sprintf("%d", cfg.Copilot.TimeoutSecs))
	printConfigKV("probe_timeout_secs:", fmt.Sprintf("%d", cfg.Copilot.ProbeTimeoutSecs))
	fmt.Println()

	// Workspace section
	fmt.Println(SectionStyle.Render("[workspace]"))
	root := cfg.Workspace.Root
	if root == "" {
		root = "(system temp)"
	}
	printConfigKV("root:", root)
	printConfigKV("keep:", fmt.Sprintf("%t", cfg.Workspace.Keep))
	printConfigKV("max_file_size:", formatBytes(cfg.Workspace.MaxFileSize))
	if len(cfg.Workspace.ExtraIgnoredDirs) > 0 {
		printConfigKV("extra_ignored_dirs:", strings.Join(cfg.Workspace.ExtraIgnoredDirs, ", "))
	}
	if len(cfg.Workspace.ExtraIgnoredExts) > 0 {
		printConfigKV("extra_ignored_exts:", strings.Join(cfg.Workspace.ExtraIgnoredExts, ", "))
	}
	fmt.Println()

	// Telemetry section
	fmt.Println(SectionStyle.Render("[telemetry]"))
	printConfigKV("enabled:", fmt.Sprintf("%t", cfg.Telemetry.Enabled))
	printConfigKV("db_path:", cfg.Telemetry.DBPath)
	printConfigKV("retention_days:", fmt.Sprintf("%d", cfg.Telemetry.RetentionDays))
	fmt.Println()

	// Logging section
	fmt.Println(SectionStyle.Render("[logging]"))
	printConfigKV("level:", cfg.Logging.Level)
	logFile := cfg.Logging.File
	if logFile == "" {
		logFile = "(stderr only)"
	}
	printConfigKV("file:", logFile)
	fmt.Println()

	fmt.Println(SeparatorStyle.Render(strings.Repeat("-", 41)))
	fmt.Printf("Config file: %s\n", configPathStyle.Render(configFilePath()))
	fmt.Println()

	return nil
}

// printConfigKV prints one aligned key/value line.
func printConfigKV(key, value string) {
	fmt.Printf("  %s%s\n", LabelStyle.Render(key), ValueStyle.Render(value))
}

// handleConfigPath shows the config file path.
func handleConfigPath(jsonMode bool) error {
	path := configFilePath()
	_, err := os.Stat(path)
	exists := !os.IsNotExist(err)

	if jsonMode {
		return outputJSON(map[string]interface{}{
			"path":   path,
			"exists": exists,
		})
	}

	fmt.Println(path)
	if !exists {
		fmt.Fprintf(os.Stderr, "%s (file does not exist, run 'coprelay config init' to create it)\n",
			DimStyle.Render("Note"))
	}
	return nil
}

// handleConfigInit writes a default config file. An existing file is
// left untouched.
func handleConfigInit() error {
	path := configFilePath()
	if path == "" {
		return NewCommandError("config", "resolve config path", "home directory unavailable", nil)
	}

	if _, err := os.Stat(path); err == nil {
		fmt.Printf("%s Config already exists: %s\n",
			WarningStyle.Render("[WARN]"),
			configPathStyle.Render(path))
		fmt.Println(DimStyle.Render("Edit it directly or use 'coprelay config set'."))
		return nil
	}

	if err := config.Save(config.Default()); err != nil {
		return WrapError(err, "failed to write default config")
	}

	fmt.Printf("%s Created %s\n", SuccessStyle.Render("[OK]"), configPathStyle.Render(path))
	fmt.Println(DimStyle.Render("Set an API key to protect the relay: coprelay config set server.api_key YOUR-KEY"))
	return nil
}

// handleConfigSet sets one configuration value by dot-notation key.
func handleConfigSet(key, value string) error {
	if key == "" {
		return ErrMissingArgument("key", "coprelay config set <key> <value>")
	}
	if value == "" {
		return ErrMissingArgument("value", fmt.Sprintf("coprelay config set %s <value>", key))
	}

	cfg := loadOrDefault()

	key = strings.ToLower(strings.TrimSpace(key))
	if err := cfg.Set(key, value); err != nil {
		return NewValidationErrorWithExample("key", key,
			fmt.Sprintf("%v (known keys: %s)", err, strings.Join(config.GetAllKeys(), ", ")),
			"coprelay config set copilot.default_model gpt-5")
	}

	if err := cfg.Validate(); err != nil {
		return WrapError(err, "invalid configuration value")
	}
	if err := config.Save(cfg); err != nil {
		return WrapError(err, "failed to save config")
	}

	fmt.Printf("%s %s = %s\n",
		SuccessStyle.Render("[OK]"),
		key,
		maskIfSecret(key, value))

	if strings.HasPrefix(key, "server.") || strings.HasPrefix(key, "copilot.") {
		fmt.Println(DimStyle.Render("Restart 'coprelay serve' for this change to take effect."))
	}
	return nil
}

// handleConfigHashKey hashes an API key for server.api_key_hash. The
// key comes from the argument or, when absent, from stdin so it stays
// out of shell history.
func handleConfigHashKey(key string) error {
	if key == "" {
		if IsTTY() {
			fmt.Fprint(os.Stderr, "API key: ")
		}
		reader := bufio.NewReader(os.Stdin)
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return WrapError(err, "failed to read key from stdin")
		}
		key = strings.TrimSpace(line)
	}

	if key == "" {
		return ErrMissingArgument("key", "coprelay config hash-key [KEY]  (or pipe the key on stdin)")
	}
	if len(key) < 8 {
		fmt.Fprintf(os.Stderr, "%s keys under 8 characters are easy to brute-force\n",
			WarningStyle.Render("[WARN]"))
	}

	hash, err := config.HashAPIKey(key)
	if err != nil {
		return WrapError(err, "failed to hash key")
	}

	fmt.Println(hash)
	fmt.Fprintln(os.Stderr, DimStyle.Render("Store it with: coprelay config set server.api_key_hash '"+hash+"'"))
	return nil
}

// maskIfSecret masks the value when the key names a secret field.
func maskIfSecret(key, value string) string {
	keyLower := strings.ToLower(key)
	for _, s := range []string{"key", "secret", "token", "password"} {
		if strings.Contains(keyLower, s) {
			return maskAPIKey(value)
		}
	}
	return value
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides unified configuration loading and management for coprelay.
//
// Configuration comes from a TOML file with sensible defaults, environment
// variable overrides, and validation.
//
// Configuration file locations (in order of precedence):
//   - Environment variables (COPRELAY_*)
//   - ~/.coprelay/config.toml
//   - Built-in defaults
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/jeranaias/coprelay/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete coprelay configuration.
type Config struct {
	// General settings
	Version string `toml:"version" json:"version"`

	// HTTP server configuration
	Server ServerConfig `toml:"server" json:"server"`

	// Copilot CLI configuration
	Copilot CopilotConfig `toml:"copilot" json:"copilot"`

	// Workspace configuration
	Workspace WorkspaceConfig `toml:"workspace" json:"workspace"`

	// Telemetry configuration
	Telemetry TelemetryConfig `toml:"telemetry" json:"telemetry"`

	// Logging configuration
	Logging LoggingConfig `toml:"logging" json:"logging"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	// Host is the listen address (default: 127.0.0.1)
	Host string `toml:"host" json:"host"`
	// Port is the listen port (default: 8788)
	Port int `toml:"port" json:"port"`
	// APIKey protects every endpoint except /api/health.
	// SECURITY: An empty key disables authentication entirely; the
	// server logs a warning and accepts every request.
	APIKey string `toml:"api_key" json:"api_key"`
	// APIKeyHash verifies presented keys without storing the plaintext.
	// Format: pbkdf2$<iterations>$<salt-hex>$<hash-hex>. Takes
	// precedence over APIKey when both are set.
	APIKeyHash string `toml:"api_key_hash" json:"api_key_hash"`
	// AllowedOrigins lists allowed CORS origins (default: ["*"])
	AllowedOrigins []string `toml:"allowed_origins" json:"allowed_origins"`
	// RateLimitEnabled toggles per-IP rate limiting (default: true)
	RateLimitEnabled bool `toml:"rate_limit_enabled" json:"rate_limit_enabled"`
	// RateLimitRPS is the sustained requests per second allowed per
	// client IP (default: 2)
	RateLimitRPS float64 `toml:"rate_limit_rps" json:"rate_limit_rps"`
	// RateLimitBurst is the instantaneous burst allowed per client IP
	// (default: 10)
	RateLimitBurst int `toml:"rate_limit_burst" json:"rate_limit_burst"`
	// MaxBodyBytes caps request body size (default: 1 MiB)
	MaxBodyBytes int64 `toml:"max_body_bytes" json:"max_body_bytes"`
	// TrustedProxies lists CIDRs whose X-Forwarded-For headers are
	// honored for client IP extraction. Empty means never trust them.
	TrustedProxies []string `toml:"trusted_proxies" json:"trusted_proxies"`
	// ShutdownTimeoutSecs bounds graceful shutdown (default: 10)
	ShutdownTimeoutSecs int `toml:"shutdown_timeout_secs" json:"shutdown_timeout_secs"`
}

// CopilotConfig contains Copilot CLI configuration.
type CopilotConfig struct {
	// Path is the CLI binary, resolved through PATH when relative
	// (default: "copilot")
	Path string `toml:"path" json:"path"`
	// Token is the GitHub PAT exported as GH_TOKEN/GITHUB_TOKEN.
	// Empty falls back to the inherited environment.
	Token string `toml:"token" json:"token"`
	// DefaultModel is used when requests name none (default: claude-sonnet-4)
	DefaultModel string `toml:"default_model" json:"default_model"`
	// TimeoutSecs bounds one chat run (default: 300)
	TimeoutSecs int `toml:"timeout_secs" json:"timeout_secs"`
	// ProbeTimeoutSecs bounds availability checks (default: 10)
	ProbeTimeoutSecs int `toml:"probe_timeout_secs" json:"probe_timeout_secs"`
}

// WorkspaceConfig contains scratch workspace configuration.
type WorkspaceConfig struct {
	// Root is the directory workspaces are created under.
	// Empty means the system temp directory.
	Root string `toml:"root" json:"root"`
	// Keep retains workspaces after each request instead of deleting
	// them. Debugging aid.
	Keep bool `toml:"keep" json:"keep"`
	// MaxFileSize caps scanned artifact size in bytes (default: 1 MiB)
	MaxFileSize int64 `toml:"max_file_size" json:"max_file_size"`
	// ExtraIgnoredDirs adds directory names to the scanner's skip set
	ExtraIgnoredDirs []string `toml:"extra_ignored_dirs" json:"extra_ignored_dirs"`
	// ExtraIgnoredExts adds file extensions to the scanner's skip set
	ExtraIgnoredExts []string `toml:"extra_ignored_extensions" json:"extra_ignored_extensions"`
	// ExtraIgnoredFiles adds exact file names to the scanner's skip set
	ExtraIgnoredFiles []string `toml:"extra_ignored_files" json:"extra_ignored_files"`
}

// TelemetryConfig contains usage tracking configuration.
type TelemetryConfig struct {
	// Enabled controls whether request telemetry is recorded (default: true)
	Enabled bool `toml:"enabled" json:"enabled"`
	// DBPath is the SQLite database path (default: ~/.coprelay/usage.db)
	DBPath string `toml:"db_path" json:"db_path"`
	// RetentionDays is how long request records are kept (default: 30)
	RetentionDays int `toml:"retention_days" json:"retention_days"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is one of: debug, info, warn, error (default: info)
	Level string `toml:"level" json:"level"`
	// File appends log output to a file. Empty means stderr only.
	File string `toml:"file" json:"file"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Version: "1.0.0",

		Server: ServerConfig{
			Host:                "127.0.0.1",
			Port:                8788,
			APIKey:              "",
			AllowedOrigins:      []string{"*"},
			RateLimitEnabled:    true,
			RateLimitRPS:        2,
			RateLimitBurst:      10,
			MaxBodyBytes:        1 << 20,
			ShutdownTimeoutSecs: 10,
		},

		Copilot: CopilotConfig{
			Path:             "copilot",
			Token:            "",
			DefaultModel:     "claude-sonnet-4",
			TimeoutSecs:      300,
			ProbeTimeoutSecs: 10,
		},

		Workspace: WorkspaceConfig{
			Root:        "",
			Keep:        false,
			MaxFileSize: 1 << 20,
		},

		Telemetry: TelemetryConfig{
			Enabled:       true,
			RetentionDays: 30,
		},

		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the coprelay configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".coprelay"), nil
}

// ConfigPath returns the path to the TOML config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the config file, falling back to
// defaults when no file exists. Environment overrides are applied
// after file values, and the result is always validated.
func Load() (*Config, error) {
	cfg := Default()
	var loadErr error

	path, err := ConfigPath()
	if err == nil {
		if _, statErr := os.Stat(path); statErr == nil {
			if err := loadTOML(cfg, path); err != nil {
				loadErr = fmt.Errorf("failed to load config: %w", err)
			}
		}
	}

	cfg.ApplyEnvOverrides()
	if err := fillDefaults(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, loadErr
}

// LoadFromPath loads configuration from a specific file path with full
// validation.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	if err := loadTOML(cfg, path); err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}

	cfg.ApplyEnvOverrides()
	if err := fillDefaults(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// loadTOML decodes a TOML file over the given config.
// SECURITY: Checks and fixes file permissions on load.
func loadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		// Permissions might not be fixable on all systems.
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return nil
}

// fillDefaults fills in any missing values with defaults. Decoding
// over Default() covers absent keys; this covers explicitly blanked
// values and configs built by hand.
func fillDefaults(cfg *Config) error {
	defaults := Default()

	if cfg.Version == "" {
		cfg.Version = defaults.Version
	}

	// Server
	if cfg.Server.Host == "" {
		cfg.Server.Host = defaults.Server.Host
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = defaults.Server.Port
	}
	if cfg.Server.AllowedOrigins == nil {
		cfg.Server.AllowedOrigins = defaults.Server.AllowedOrigins
	}
	if cfg.Server.RateLimitRPS == 0 {
		cfg.Server.RateLimitRPS = defaults.Server.RateLimitRPS
	}
	if cfg.Server.RateLimitBurst == 0 {
		cfg.Server.RateLimitBurst = defaults.Server.RateLimitBurst
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = defaults.Server.MaxBodyBytes
	}
	if cfg.Server.ShutdownTimeoutSecs == 0 {
		cfg.Server.ShutdownTimeoutSecs = defaults.Server.ShutdownTimeoutSecs
	}

	// Copilot
	if cfg.Copilot.Path == "" {
		cfg.Copilot.Path = defaults.Copilot.Path
	}
	if cfg.Copilot.DefaultModel == "" {
		cfg.Copilot.DefaultModel = defaults.Copilot.DefaultModel
	}
	if cfg.Copilot.TimeoutSecs == 0 {
		cfg.Copilot.TimeoutSecs = defaults.Copilot.TimeoutSecs
	}
	if cfg.Copilot.ProbeTimeoutSecs == 0 {
		cfg.Copilot.ProbeTimeoutSecs = defaults.Copilot.ProbeTimeoutSecs
	}

	// Workspace
	if cfg.Workspace.MaxFileSize == 0 {
		cfg.Workspace.MaxFileSize = defaults.Workspace.MaxFileSize
	}

	// Telemetry
	if cfg.Telemetry.DBPath == "" {
		dir, err := ConfigDir()
		if err == nil {
			cfg.Telemetry.DBPath = filepath.Join(dir, "usage.db")
		}
	}
	if cfg.Telemetry.RetentionDays == 0 {
		cfg.Telemetry.RetentionDays = defaults.Telemetry.RetentionDays
	}

	// Logging
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = defaults.Logging.Level
	}

	return nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML saves the configuration to a TOML file.
// SECURITY: Config files are written 0600 (owner read/write only).
// RELIABILITY: Atomic write with fsync prevents data loss on crash.
func SaveTOML(cfg *Config, path string) error {
	if err := EnsureConfigDir(); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var buf bytes.Buffer
	fmt.Fprintln(&buf, "# coprelay configuration file")
	fmt.Fprintln(&buf, "# Generated by coprelay - edit with care")
	fmt.Fprintln(&buf, "#")
	fmt.Fprintln(&buf, "# Documentation: https://github.com/jeranaias/coprelay")
	fmt.Fprintln(&buf, "")

	encoder := toml.NewEncoder(&buf)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	// Server settings
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("must be 1-65535, got %d", c.Server.Port),
		})
	}
	if c.Server.RateLimitEnabled {
		if c.Server.RateLimitRPS <= 0 {
			errs = append(errs, ValidationError{
				Field:   "server.rate_limit_rps",
				Message: fmt.Sprintf("must be positive, got %g", c.Server.RateLimitRPS),
			})
		}
		if c.Server.RateLimitBurst < 1 {
			errs = append(errs, ValidationError{
				Field:   "server.rate_limit_burst",
				Message: fmt.Sprintf("must be at least 1, got %d", c.Server.RateLimitBurst),
			})
		}
	}
	if c.Server.APIKeyHash != "" {
		if err := ValidateKeyHash(c.Server.APIKeyHash); err != nil {
			errs = append(errs, ValidationError{
				Field:   "server.api_key_hash",
				Message: err.Error(),
			})
		}
	}
	if c.Server.MaxBodyBytes < 1024 {
		errs = append(errs, ValidationError{
			Field:   "server.max_body_bytes",
			Message: fmt.Sprintf("must be at least 1024, got %d", c.Server.MaxBodyBytes),
		})
	}
	for _, cidr := range c.Server.TrustedProxies {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			errs = append(errs, ValidationError{
				Field:   "server.trusted_proxies",
				Message: fmt.Sprintf("invalid CIDR '%s'", cidr),
			})
		}
	}
	if c.Server.ShutdownTimeoutSecs < 1 || c.Server.ShutdownTimeoutSecs > 300 {
		errs = append(errs, ValidationError{
			Field:   "server.shutdown_timeout_secs",
			Message: fmt.Sprintf("must be 1-300, got %d", c.Server.ShutdownTimeoutSecs),
		})
	}

	// Copilot settings
	if c.Copilot.Path == "" {
		errs = append(errs, ValidationError{
			Field:   "copilot.path",
			Message: "cannot be empty",
		})
	}
	if c.Copilot.TimeoutSecs < 1 || c.Copilot.TimeoutSecs > 3600 {
		errs = append(errs, ValidationError{
			Field:   "copilot.timeout_secs",
			Message: fmt.Sprintf("must be 1-3600, got %d", c.Copilot.TimeoutSecs),
		})
	}
	if c.Copilot.ProbeTimeoutSecs < 1 || c.Copilot.ProbeTimeoutSecs > 300 {
		errs = append(errs, ValidationError{
			Field:   "copilot.probe_timeout_secs",
			Message: fmt.Sprintf("must be 1-300, got %d", c.Copilot.ProbeTimeoutSecs),
		})
	}

	// Workspace settings
	if c.Workspace.MaxFileSize < 0 {
		errs = append(errs, ValidationError{
			Field:   "workspace.max_file_size",
			Message: "cannot be negative",
		})
	}

	// Telemetry settings
	if c.Telemetry.RetentionDays < 0 || c.Telemetry.RetentionDays > 3650 {
		errs = append(errs, ValidationError{
			Field:   "telemetry.retention_days",
			Message: fmt.Sprintf("must be 0-3650, got %d", c.Telemetry.RetentionDays),
		})
	}

	// Logging settings
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid level '%s', must be one of: debug, info, warn, error", c.Logging.Level),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - COPRELAY_HOST: overrides server.host
//   - COPRELAY_PORT: overrides server.port
//   - COPRELAY_API_KEY: overrides server.api_key
//   - COPRELAY_API_KEY_HASH: overrides server.api_key_hash
//   - COPRELAY_CLI_PATH: overrides copilot.path
//   - COPRELAY_MODEL: overrides copilot.default_model
//   - COPRELAY_TOKEN: overrides copilot.token
//   - COPRELAY_TIMEOUT: overrides copilot.timeout_secs
//   - COPRELAY_WORKSPACE_ROOT: overrides workspace.root
//   - COPRELAY_KEEP_WORKSPACES: set to "1" or "true" to keep workspaces
//   - COPRELAY_TELEMETRY: set to "0" or "false" to disable telemetry
//   - COPRELAY_LOG_LEVEL: overrides logging.level
//
// Compatibility variables, honored when the COPRELAY_* form is unset:
// COPILOT_PATH, COPILOT_MODEL, GH_TOKEN, GITHUB_TOKEN, API_KEY, PORT.
func (c *Config) ApplyEnvOverrides() {
	// Compatibility names first so COPRELAY_* wins below.
	if path := os.Getenv("COPILOT_PATH"); path != "" {
		c.Copilot.Path = path
	}
	if model := os.Getenv("COPILOT_MODEL"); model != "" {
		c.Copilot.DefaultModel = model
	}
	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		c.Copilot.Token = token
	}
	if token := os.Getenv("GH_TOKEN"); token != "" {
		c.Copilot.Token = token
	}
	if key := os.Getenv("API_KEY"); key != "" {
		c.Server.APIKey = key
	}
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}

	if host := os.Getenv("COPRELAY_HOST"); host != "" {
		c.Server.Host = host
	}
	if port := os.Getenv("COPRELAY_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}
	if key := os.Getenv("COPRELAY_API_KEY"); key != "" {
		c.Server.APIKey = key
	}
	if hash := os.Getenv("COPRELAY_API_KEY_HASH"); hash != "" {
		c.Server.APIKeyHash = hash
	}
	if path := os.Getenv("COPRELAY_CLI_PATH"); path != "" {
		c.Copilot.Path = path
	}
	if model := os.Getenv("COPRELAY_MODEL"); model != "" {
		c.Copilot.DefaultModel = model
	}
	if token := os.Getenv("COPRELAY_TOKEN"); token != "" {
		c.Copilot.Token = token
	}
	if timeout := os.Getenv("COPRELAY_TIMEOUT"); timeout != "" {
		if secs, err := strconv.Atoi(timeout); err == nil {
			c.Copilot.TimeoutSecs = secs
		}
	}
	if root := os.Getenv("COPRELAY_WORKSPACE_ROOT"); root != "" {
		c.Workspace.Root = root
	}
	if keep := os.Getenv("COPRELAY_KEEP_WORKSPACES"); keep != "" {
		c.Workspace.Keep = keep == "1" || strings.ToLower(keep) == "true"
	}
	if telemetry := os.Getenv("COPRELAY_TELEMETRY"); telemetry != "" {
		c.Telemetry.Enabled = telemetry != "0" && strings.ToLower(telemetry) != "false"
	}
	if level := os.Getenv("COPRELAY_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g., "server.port").
func (c *Config) Get(key string) (interface{}, error) {
	parts := strings.Split(key, ".")
	if len(parts) == 0 {
		return nil, errors.New("empty key")
	}

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		fieldName := normalizeFieldName(part)

		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName)
		})

		if !field.IsValid() {
			return nil, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}

		if i == len(parts)-1 {
			return field.Interface(), nil
		}

		if field.Kind() == reflect.Struct {
			v = field
		} else {
			return nil, fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
	}

	return nil, fmt.Errorf("invalid key: %s", key)
}

// Set sets a configuration value using dot notation (e.g., "server.port").
func (c *Config) Set(key string, value interface{}) error {
	parts := strings.Split(key, ".")
	if len(parts) == 0 {
		return errors.New("empty key")
	}

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		fieldName := normalizeFieldName(part)

		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName)
		})

		if !field.IsValid() {
			return fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}

		if i == len(parts)-1 {
			if !field.CanSet() {
				return fmt.Errorf("cannot set field: %s", key)
			}
			return setFieldValue(field, value)
		}

		if field.Kind() == reflect.Struct {
			v = field
		} else {
			return fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
	}

	return fmt.Errorf("invalid key: %s", key)
}

// normalizeFieldName converts a snake_case or kebab-case name to its Go
// field equivalent.
func normalizeFieldName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-'
	})

	var result strings.Builder
	for _, part := range parts {
		if len(part) > 0 {
			result.WriteString(strings.ToUpper(string(part[0])))
			result.WriteString(strings.ToLower(part[1:]))
		}
	}

	return result.String()
}

// setFieldValue sets a reflect.Value from an interface{} value with type
// conversion. String inputs are parsed for numeric and bool fields so
// CLI "config set" arguments work without type annotations.
func setFieldValue(field reflect.Value, value interface{}) error {
	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Float64:
			floatVal, err := strconv.ParseFloat(strVal, 64)
			if err != nil {
				return fmt.Errorf("invalid number value: %v", err)
			}
			field.SetFloat(floatVal)
			return nil
		case reflect.Bool:
			boolVal := strVal == "1" || strings.ToLower(strVal) == "true" || strings.ToLower(strVal) == "yes"
			field.SetBool(boolVal)
			return nil
		}
	}

	val := reflect.ValueOf(value)
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) {
		field.Set(val.Convert(field.Type()))
		return nil
	}

	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// GetAllKeys returns all configuration keys in dot notation.
func GetAllKeys() []string {
	return []string{
		"version",
		"server.host",
		"server.port",
		"server.api_key",
		"server.api_key_hash",
		"server.allowed_origins",
		"server.rate_limit_enabled",
		"server.rate_limit_rps",
		"server.rate_limit_burst",
		"server.max_body_bytes",
		"server.trusted_proxies",
		"server.shutdown_timeout_secs",
		"copilot.path",
		"copilot.token",
		"copilot.default_model",
		"copilot.timeout_secs",
		"copilot.probe_timeout_secs",
		"workspace.root",
		"workspace.keep",
		"workspace.max_file_size",
		"workspace.extra_ignored_dirs",
		"workspace.extra_ignored_extensions",
		"workspace.extra_ignored_files",
		"telemetry.enabled",
		"telemetry.db_path",
		"telemetry.retention_days",
		"logging.level",
		"logging.file",
	}
}

// ListenAddr returns the host:port the server binds.
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// Timeout returns the chat run timeout as a duration.
func (c *CopilotConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// ProbeTimeout returns the probe timeout as a duration.
func (c *CopilotConfig) ProbeTimeout() time.Duration {
	return time.Duration(c.ProbeTimeoutSecs) * time.Second
}

// ShutdownTimeout returns the graceful shutdown bound as a duration.
func (c *ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSecs) * time.Second
}

// Clone creates an independent copy of the config.
func (c *Config) Clone() *Config {
	clone := *c

	if c.Server.AllowedOrigins != nil {
		clone.Server.AllowedOrigins = append([]string(nil), c.Server.AllowedOrigins...)
	}
	if c.Server.TrustedProxies != nil {
		clone.Server.TrustedProxies = append([]string(nil), c.Server.TrustedProxies...)
	}
	if c.Workspace.ExtraIgnoredDirs != nil {
		clone.Workspace.ExtraIgnoredDirs = append([]string(nil), c.Workspace.ExtraIgnoredDirs...)
	}
	if c.Workspace.ExtraIgnoredExts != nil {
		clone.Workspace.ExtraIgnoredExts = append([]string(nil), c.Workspace.ExtraIgnoredExts...)
	}
	if c.Workspace.ExtraIgnoredFiles != nil {
		clone.Workspace.ExtraIgnoredFiles = append([]string(nil), c.Workspace.ExtraIgnoredFiles...)
	}

	return &clone
}

// String returns a string representation of the config for debugging.
// SECURITY: Redacts the API key and GitHub token so they never reach
// logs or terminal output.
func (c *Config) String() string {
	safe := c.Clone()

	if safe.Server.APIKey != "" {
		safe.Server.APIKey = "[REDACTED]"
	}
	if safe.Copilot.Token != "" {
		safe.Copilot.Token = "[REDACTED]"
	}

	data, _ := json.MarshalIndent(safe, "", "  ")
	return string(data)
}

// =============================================================================
// SINGLETON PATTERN (THREAD-SAFE)
// =============================================================================

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
)

// Global returns the global configuration instance.
// Loads configuration on first access. Thread-safe.
func Global() *Config {
	globalConfigOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
			if cfg == nil {
				cfg = Default()
			}
		}
		globalConfig = cfg
	})

	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// ReloadGlobal reloads the global configuration from disk. Thread-safe.
func ReloadGlobal() error {
	cfg, err := Load()
	if err != nil {
		return err
	}
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
	return nil
}

// SetGlobal sets the global configuration instance. Thread-safe.
func SetGlobal(cfg *Config) {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting resets the global config state for testing.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
	globalConfigOnce = sync.Once{}
}

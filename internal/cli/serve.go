// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// serve.go - Relay server command for the coprelay CLI.
//
// CLI: Comprehensive help and examples for all commands
//
// Handles the "coprelay serve" command (also the default when no command
// is given): wires the workspace manager, Copilot service, telemetry,
// and retained-workspace ledger into the HTTP server and runs it until
// interrupted.
//
// Command: serve
// Short:   Run the relay server
// Aliases: server, run
//
// Examples:
//   coprelay serve                Run on the configured address
//   coprelay serve --port 9000    Override the listen port
//   coprelay serve --host 0.0.0.0 Listen on all interfaces
package cli

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jeranaias/coprelay/internal/config"
	"github.com/jeranaias/coprelay/internal/copilot"
	"github.com/jeranaias/coprelay/internal/server"
	"github.com/jeranaias/coprelay/internal/storage"
	"github.com/jeranaias/coprelay/internal/telemetry"
	"github.com/jeranaias/coprelay/internal/workspace"
)

// HandleServeCommand handles the "serve" command.
func HandleServeCommand(args Args) error {
	cfg, err := config.Load()
	if err != nil {
		// A broken config file still serves with defaults; the load
		// error is surfaced but not fatal.
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
	if cfg == nil {
		cfg = config.Default()
	}

	// CLI flags override the file and environment
	if args.Host != "" {
		cfg.Server.Host = args.Host
	}
	if args.Port > 0 {
		cfg.Server.Port = args.Port
	}
	if args.Verbose {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return WrapError(err, "invalid configuration")
	}
	config.SetGlobal(cfg)

	cleanup, err := setupLogging(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	logStartup(cfg)

	// Workspace manager: one throwaway directory per request
	manager := workspace.NewManager(workspace.Options{
		Root:              cfg.Workspace.Root,
		Keep:              cfg.Workspace.Keep,
		MaxFileSize:       cfg.Workspace.MaxFileSize,
		ExtraIgnoredDirs:  cfg.Workspace.ExtraIgnoredDirs,
		ExtraIgnoredExts:  cfg.Workspace.ExtraIgnoredExts,
		ExtraIgnoredFiles: cfg.Workspace.ExtraIgnoredFiles,
	})

	svc := copilot.New(copilot.Config{
		CLIPath:      cfg.Copilot.Path,
		Token:        cfg.Copilot.Token,
		DefaultModel: cfg.Copilot.DefaultModel,
		Timeout:      cfg.Copilot.Timeout(),
		ProbeTimeout: cfg.Copilot.ProbeTimeout(),
	}, manager)

	// Up-front probe so a missing CLI is visible at startup, not on the
	// first request.
	probeCtx, probeCancel := context.WithTimeout(context.Background(), cfg.Copilot.ProbeTimeout())
	probe := svc.Probe(probeCtx)
	probeCancel()
	if probe.Available {
		log.Printf("[serve] copilot CLI available: version=%s default_model=%s", probe.Version, cfg.Copilot.DefaultModel)
	} else {
		log.Printf("[serve] WARNING: copilot CLI unavailable: %s", probe.Error)
		log.Printf("[serve] requests will fail until the CLI is installed; /api/health reports degraded")
	}

	srv := server.New(cfg, svc, manager)

	// Usage telemetry (persisted when enabled)
	tracker, err := telemetry.NewTracker(telemetry.Options{
		Enabled:       cfg.Telemetry.Enabled,
		DBPath:        cfg.Telemetry.DBPath,
		RetentionDays: cfg.Telemetry.RetentionDays,
	})
	if err != nil {
		// RELIABILITY: Telemetry is never a reason not to serve.
		log.Printf("[serve] telemetry disabled: %v", err)
	} else {
		srv = srv.WithTracker(tracker)
		defer tracker.Close()
	}

	// Retained-workspace ledger, only useful when directories survive
	if cfg.Workspace.Keep {
		ledger, err := storage.NewLedger()
		if err != nil {
			log.Printf("[serve] workspace ledger disabled: %v", err)
		} else {
			srv = srv.WithLedger(ledger)
		}
	}

	// Live config reload for non-critical settings
	if args.WatchConfig {
		watcher, err := config.NewWatcher(func(next *config.Config) {
			applyDynamicConfig(srv, manager, next)
			logRestartRequired(cfg, next)
		})
		if err != nil {
			log.Printf("[serve] config watcher disabled: %v", err)
		} else if err := watcher.Watch(); err != nil {
			log.Printf("[serve] config watcher disabled: %v", err)
		} else {
			defer watcher.Close()
		}
	}

	// Run until interrupted
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return WrapError(err, "server failed")
	case <-ctx.Done():
		log.Printf("[serve] shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return WrapError(err, "graceful shutdown failed")
	}
	log.Printf("[serve] shutdown complete")
	return nil
}

// setupLogging configures the process logger from the logging section.
// Returns a cleanup function closing any opened log file.
func setupLogging(cfg *config.Config) (func(), error) {
	cleanup := func() {}

	applyLogFlags(cfg.Logging.Level)

	if cfg.Logging.File != "" {
		f, err := os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return cleanup, WrapError(err, "failed to open log file")
		}
		log.SetOutput(io.MultiWriter(os.Stderr, f))
		cleanup = func() { f.Close() }
	}

	return cleanup, nil
}

// applyLogFlags sets the process logger flags for the given level.
func applyLogFlags(level string) {
	if level == "debug" {
		log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	} else {
		log.SetFlags(log.LstdFlags)
	}
}

// applyDynamicConfig pushes the reloaded settings that may change at
// runtime into the running components: log level, rate-limit numbers,
// and the scanner's extra ignore rules.
func applyDynamicConfig(srv *server.Server, manager *workspace.Manager, next *config.Config) {
	applyLogFlags(next.Logging.Level)
	srv.ApplyRateLimit(next.Server.RateLimitRPS, next.Server.RateLimitBurst)
	manager.SetExtraIgnores(
		next.Workspace.ExtraIgnoredDirs,
		next.Workspace.ExtraIgnoredExts,
		next.Workspace.ExtraIgnoredFiles,
	)
}

// logStartup reports the effective configuration once at boot.
func logStartup(cfg *config.Config) {
	path, _ := config.ConfigPath()

	log.Printf("[serve] coprelay %s starting", Version)
	log.Printf("[serve] config: %s", path)
	log.Printf("[serve] listen: http://%s", cfg.ListenAddr())

	switch {
	case cfg.Server.APIKeyHash != "":
		log.Printf("[serve] auth: hashed API key")
	case cfg.Server.APIKey != "":
		log.Printf("[serve] auth: API key")
	default:
		log.Printf("[serve] auth: DISABLED (set server.api_key to protect this relay)")
	}

	if cfg.Workspace.Keep {
		log.Printf("[serve] workspaces retained under %s", cfg.Workspace.Root)
	}
	if cfg.Logging.Level == "debug" {
		log.Printf("[serve] debug logging enabled")
		log.Printf("[serve] config dump: %s", cfg.String())
	}
}

// logRestartRequired flags reloaded settings that only apply on restart.
// The listener, auth gate, and CLI invocation config are captured at
// startup; everything else takes effect via the global config.
func logRestartRequired(prev, next *config.Config) {
	if prev.ListenAddr() != next.ListenAddr() {
		log.Printf("[serve] config change to server address requires restart")
	}
	if prev.Server.APIKey != next.Server.APIKey || prev.Server.APIKeyHash != next.Server.APIKeyHash {
		log.Printf("[serve] config change to API key requires restart")
	}
	if prev.Server.RateLimitEnabled != next.Server.RateLimitEnabled {
		log.Printf("[serve] config change to rate limiting on/off requires restart")
	}
	if prev.Copilot.Path != next.Copilot.Path || prev.Copilot.Token != next.Copilot.Token {
		log.Printf("[serve] config change to copilot invocation requires restart")
	}
}

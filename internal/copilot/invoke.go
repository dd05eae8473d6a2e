// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package copilot

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
)

// invokeSpec describes one CLI process run.
type invokeSpec struct {
	Path string
	Args []string
	Env  []string
	Dir  string
}

// invokeResult captures everything the process produced. A nonzero
// ExitCode is a result, not an error: the CLI writes its diagnosis to
// stderr and callers fold that into the response.
type invokeResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// invoker runs one CLI process. Swappable so tests never need a real
// copilot binary on PATH.
type invoker func(ctx context.Context, spec invokeSpec) (invokeResult, error)

// runCLI executes the CLI and classifies failures. Order matters:
// a deadline kill also surfaces as *exec.ExitError, so the context is
// checked first.
func runCLI(ctx context.Context, spec invokeSpec) (invokeResult, error) {
	cmd := exec.CommandContext(ctx, spec.Path, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = spec.Env

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := invokeResult{Stdout: stdout.String(), Stderr: stderr.String()}

	if err != nil {
		if ctxErr := ctx.Err(); errors.Is(ctxErr, context.DeadlineExceeded) || errors.Is(ctxErr, context.Canceled) {
			return res, ErrTimeout
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		if errors.Is(err, exec.ErrNotFound) {
			return res, ErrCLINotFound
		}
		return res, &ServiceError{
			Type:    ErrTypeExecution,
			Message: "failed to run Copilot CLI",
			Cause:   err,
		}
	}

	return res, nil
}

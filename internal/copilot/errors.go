// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package copilot

import "errors"

// =============================================================================
// ERROR TYPES
// =============================================================================

// ServiceError represents an error from the Copilot service.
type ServiceError struct {
	Type    ErrorType
	Message string
	Cause   error
}

func (e *ServiceError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ServiceError) Unwrap() error {
	return e.Cause
}

// ErrorType categorizes service errors for handling.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	ErrTypeNotFound
	ErrTypeTimeout
	ErrTypeInvalidInput
	ErrTypeWorkspace
	ErrTypeExecution
)

// installGuidance tells the operator how to get a working CLI.
const installGuidance = "GitHub Copilot CLI not found. Please install it:\n" +
	"- Windows: winget install GitHub.Copilot\n" +
	"- macOS/Linux: brew install copilot-cli\n" +
	"- npm: npm install -g @github/copilot\n" +
	"Then set GH_TOKEN with a PAT that has 'Copilot Requests' permission"

// Sentinel errors for easy checking.
var (
	ErrCLINotFound = &ServiceError{Type: ErrTypeNotFound, Message: installGuidance}
	ErrTimeout     = &ServiceError{Type: ErrTypeTimeout, Message: "Copilot CLI run timed out"}
	ErrNoMessages  = &ServiceError{Type: ErrTypeInvalidInput, Message: "no messages provided"}
)

// IsNotFound checks if an error means the CLI binary is missing.
func IsNotFound(err error) bool {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr.Type == ErrTypeNotFound
	}
	return errors.Is(err, ErrCLINotFound)
}

// IsTimeout checks if an error is a timeout error.
func IsTimeout(err error) bool {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr.Type == ErrTypeTimeout
	}
	return errors.Is(err, ErrTimeout)
}

// IsInvalidInput checks if an error came from a rejected request.
func IsInvalidInput(err error) bool {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr.Type == ErrTypeInvalidInput
	}
	return errors.Is(err, ErrNoMessages)
}

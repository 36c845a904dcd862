// Copyright 2026 © The Spendlens Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"

	"github.com/jllopis/spendlens/pkg/errors"
)

// CLIError wraps a typed error with a hint for the user.
type CLIError struct {
	Err  *errors.Error
	Hint string
}

// NewCLIError creates a new CLI error.
func NewCLIError(e *errors.Error, hint string) *CLIError {
	return &CLIError{Err: e, Hint: hint}
}

// Error returns the formatted error message with hints.
func (e *CLIError) Error() string {
	if e.Err == nil {
		return "unknown error"
	}
	msg := e.Err.Error()
	if e.Hint != "" {
		msg += "\n  Hint: " + e.Hint
	}
	return msg
}

// Unwrap exposes the typed error to errors.HasCode.
func (e *CLIError) Unwrap() error {
	if e.Err == nil {
		return nil
	}
	return e.Err
}

// PrintError writes the error as text or as a JSON object.
func (e *CLIError) PrintError(w io.Writer, asJSON bool) {
	if e.Err == nil {
		fmt.Fprintln(w, "Error: unknown error")
		return
	}
	if asJSON {
		writeJSONError(w, string(e.Err.Code), e.Err.Message, e.Hint)
		return
	}
	fmt.Fprintf(w, "Error [%s]: %s\n", FormatErrorCode(e.Err.Code), e.Err.Message)
	if e.Err.Err != nil {
		fmt.Fprintf(w, "  Cause: %v\n", e.Err.Err)
	}
	if e.Hint != "" {
		fmt.Fprintf(w, "  Hint: %s\n", e.Hint)
	}
}

func writeJSONError(w io.Writer, code, message, hint string) {
	payload := map[string]map[string]string{"error": {"code": code, "message": message}}
	if hint != "" {
		payload["error"]["hint"] = hint
	}
	data, _ := json.Marshal(payload)
	fmt.Fprintf(w, "%s\n", data)
}

// NewInvalidArgumentError creates an invalid argument error with CLI hints.
func NewInvalidArgumentError(arg, reason string) *CLIError {
	e := errors.New(errors.CodeInvalidInput, fmt.Sprintf("invalid argument %s: %s", arg, reason), nil).
		WithContext("argument", arg).
		WithRecoverable(false)
	return NewCLIError(e, "run 'spendlens help' for usage information")
}

// NewConfigError creates a configuration error with CLI hints.
func NewConfigError(err error, configPath string) *CLIError {
	e := errors.New(errors.CodeInvalidInput, "configuration error", err).
		WithContext("config_path", configPath).
		WithRecoverable(false)

	hint := "check --set values and SPENDLENS_* environment variables"
	if configPath != "" {
		hint = fmt.Sprintf("check %s for syntax errors", configPath)
	}
	return NewCLIError(e, hint)
}

// NewNotFoundError creates a not found error with CLI hints.
func NewNotFoundError(resource, name string) *CLIError {
	e := errors.New(errors.CodeNotFound, fmt.Sprintf("%s '%s' not found", resource, name), nil).
		WithContext("resource", resource).
		WithContext("name", name)
	return NewCLIError(e, fmt.Sprintf("check that the %s exists", resource))
}

// wrapRunError attaches a hint to errors returned by an analysis run.
func wrapRunError(err error) error {
	if err == nil {
		return nil
	}
	if errors.CodeOf(err) == "" {
		return err
	}
	typed := errors.As(err)
	switch typed.Code {
	case errors.CodeInvalidInput:
		return NewCLIError(typed, "dates are YYYY-MM-DD and --end must not be before --start")
	case errors.CodeArtifactPersist:
		return NewCLIError(typed, "check that storage.artifact_dir is writable")
	case errors.CodePlanParse:
		return NewCLIError(typed, "check the plan file against 'spendlens tools'")
	case errors.CodeUnavailable, errors.CodeLLMError:
		return NewCLIError(typed, "check that the model server at llm.base_url is running")
	}
	return NewCLIError(typed, "")
}

// reportError prints err in the requested format.
func reportError(w io.Writer, err error, asJSON bool) {
	var cliErr *CLIError
	if stderrors.As(err, &cliErr) {
		cliErr.PrintError(w, asJSON)
		return
	}
	if errors.CodeOf(err) != "" {
		NewCLIError(errors.As(err), "").PrintError(w, asJSON)
		return
	}
	if asJSON {
		writeJSONError(w, "UNKNOWN", err.Error(), "")
		return
	}
	fmt.Fprintf(w, "Error: %s\n", err.Error())
}

// FormatErrorCode returns a user-friendly name for error codes.
func FormatErrorCode(code errors.ErrorCode) string {
	switch code {
	case errors.CodeInternal:
		return "Internal Error"
	case errors.CodeInvalidInput:
		return "Invalid Input"
	case errors.CodeNotFound:
		return "Not Found"
	case errors.CodeTimeout:
		return "Timeout"
	case errors.CodeLLMError:
		return "LLM Error"
	case errors.CodeUnavailable:
		return "Unavailable"
	case errors.CodeArtifactPersist:
		return "Artifact Not Saved"
	case errors.CodePlanParse:
		return "Invalid Plan"
	case errors.CodeContextLost:
		return "Context Lost"
	default:
		return string(code)
	}
}

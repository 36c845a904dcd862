// SPDX-License-Identifier: Apache-2.0
// Package errors provides the coded error taxonomy used across spendlens.
// Every failure that crosses a component boundary carries an ErrorCode so the
// orchestrator can decide whether it is recovered locally or surfaced.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
)

// ErrorCode classifies spendlens errors for monitoring and recovery.
type ErrorCode string

const (
	// CodeInternal indicates an internal system error.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// CodeInvalidInput indicates the input was invalid.
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// CodePlanParse indicates the planner could not use the model output.
	// Always recovered by substituting the fallback plan.
	CodePlanParse ErrorCode = "PLAN_PARSE"

	// CodeToolNotRegistered indicates a task named an unknown capability.
	CodeToolNotRegistered ErrorCode = "TOOL_NOT_REGISTERED"

	// CodeToolInvocation wraps any failure raised by a capability call.
	CodeToolInvocation ErrorCode = "TOOL_INVOCATION"

	// CodeSandboxExecution indicates generated code failed or produced no artifact.
	// Never leaves the sandbox package.
	CodeSandboxExecution ErrorCode = "SANDBOX_EXECUTION"

	// CodeArtifactPersist indicates an artifact could not be written to storage.
	// The only code allowed to propagate out of an orchestration run.
	CodeArtifactPersist ErrorCode = "ARTIFACT_PERSIST"

	// CodeMissingTemplateKey indicates a prompt template was not registered.
	CodeMissingTemplateKey ErrorCode = "MISSING_TEMPLATE_KEY"

	// CodeMissingPlaceholder indicates a template references an unsupplied substitution.
	CodeMissingPlaceholder ErrorCode = "MISSING_PLACEHOLDER"

	// CodeContextLost indicates the context was canceled mid-operation.
	CodeContextLost ErrorCode = "CONTEXT_LOST"

	// CodeTimeout indicates an operation exceeded its time limit.
	CodeTimeout ErrorCode = "TIMEOUT"

	// CodeNotFound indicates a resource was not found.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeLLMError indicates an LLM provider error.
	CodeLLMError ErrorCode = "LLM_ERROR"

	// CodeUnavailable indicates a dependency is temporarily rejecting calls.
	CodeUnavailable ErrorCode = "UNAVAILABLE"

	// CodePolicyDenied indicates a task called a tool the tool policy forbids.
	CodePolicyDenied ErrorCode = "POLICY_DENIED"
)

// Error is a typed error with context for observability.
// It implements the error interface and can be unwrapped with errors.As().
type Error struct {
	Code        ErrorCode
	Message     string
	Err         error
	Context     map[string]interface{}
	Recoverable bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements errors.Unwrap for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Err
}

// MarshalJSON implements json.Marshaler for structured logging.
func (e *Error) MarshalJSON() ([]byte, error) {
	out := struct {
		Code        string                 `json:"code"`
		Message     string                 `json:"message"`
		Cause       string                 `json:"cause,omitempty"`
		Context     map[string]interface{} `json:"context,omitempty"`
		Recoverable bool                   `json:"recoverable"`
	}{
		Code:        string(e.Code),
		Message:     e.Message,
		Context:     e.Context,
		Recoverable: e.Recoverable,
	}
	if e.Err != nil {
		out.Cause = e.Err.Error()
	}
	return json.Marshal(out)
}

// New creates a new Error with the given code, message, and cause.
func New(code ErrorCode, msg string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: msg,
		Err:     cause,
		Context: make(map[string]interface{}),
	}
}

// Newf is New with a formatted message and no cause.
func Newf(code ErrorCode, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// WithContext adds a key-value pair to the error context.
// Returns the error for method chaining.
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithRecoverable sets whether the error can be recovered from.
// Returns the error for method chaining.
func (e *Error) WithRecoverable(recoverable bool) *Error {
	e.Recoverable = recoverable
	return e
}

// RecoverableString returns "true" or "false" as a string for observability.
func (e *Error) RecoverableString() string {
	if e.Recoverable {
		return "true"
	}
	return "false"
}

// As returns the first *Error in err's chain, wrapping unknown errors as internal.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e
	}
	return New(CodeInternal, "wrapped error", err)
}

// CodeOf returns the code of the first *Error in err's chain, or "" if none.
func CodeOf(err error) ErrorCode {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return ""
}

// HasCode reports whether any *Error in err's chain carries code.
func HasCode(err error, code ErrorCode) bool {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Code == code {
			return true
		}
		err = stderrors.Unwrap(err)
	}
	return false
}

// ToolNotRegistered builds the error recorded when a plan names an unknown capability.
func ToolNotRegistered(name string) *Error {
	return Newf(CodeToolNotRegistered, "tool %q is not registered", name).
		WithContext("tool", name)
}

// ToolInvocation wraps a capability failure.
func ToolInvocation(name string, cause error) *Error {
	return New(CodeToolInvocation, fmt.Sprintf("tool %q failed", name), cause).
		WithContext("tool", name)
}

// ArtifactPersist wraps a storage failure for the named artifact.
func ArtifactPersist(name string, cause error) *Error {
	return New(CodeArtifactPersist, fmt.Sprintf("persist artifact %q", name), cause).
		WithContext("artifact", name)
}

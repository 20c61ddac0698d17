package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Exit codes for the drawbridge CLI
const (
	ExitSuccess      = 0
	ExitGeneralError = 1
	ExitConfigError  = 2
	ExitRuntimeError = 3
)

// Code classifies a gateway error. The code decides the HTTP status a
// request-level error maps to and the exit code a CLI-level error maps to.
type Code string

const (
	CodeAuth         Code = "auth"
	CodeMalformed    Code = "malformed"
	CodeStaleSession Code = "stale_session"
	CodeNotFound     Code = "not_found"
	CodeAmbiguous    Code = "ambiguous"
	CodeExecution    Code = "execution"
	CodeUpstream     Code = "upstream"
	CodeConfig       Code = "config"
	CodeInternal     Code = "internal"
)

// GatewayError is the base error type for drawbridge
type GatewayError struct {
	Code    Code
	Message string
	Cause   error
}

func (e *GatewayError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *GatewayError) Unwrap() error {
	return e.Cause
}

// HTTPStatus returns the HTTP status this error maps to at the gateway
// boundary. Policy and secret blocks are not errors and never reach this
// path; they are shaped as 200 blocked results by the handlers.
func (e *GatewayError) HTTPStatus() int {
	switch e.Code {
	case CodeAuth:
		return http.StatusUnauthorized
	case CodeMalformed, CodeStaleSession, CodeAmbiguous:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ExitCode returns the process exit code for this error
func (e *GatewayError) ExitCode() int {
	switch e.Code {
	case CodeConfig:
		return ExitConfigError
	case CodeExecution, CodeUpstream:
		return ExitRuntimeError
	default:
		return ExitGeneralError
	}
}

// New creates a new GatewayError
func New(code Code, message string) *GatewayError {
	return &GatewayError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with a GatewayError
func Wrap(code Code, message string, cause error) *GatewayError {
	return &GatewayError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Common error constructors

// Unauthorized returns the error for a missing or invalid bearer token
func Unauthorized() *GatewayError {
	return New(CodeAuth, "unauthorized")
}

// Malformed returns an error for a request missing required fields
func Malformed(message string) *GatewayError {
	return New(CodeMalformed, message)
}

// StaleSession returns the error for a workspace hash with no mapping file
func StaleSession(hash string) *GatewayError {
	return New(CodeStaleSession, fmt.Sprintf("no path mapping for workspace %s (session may have ended)", hash))
}

// NotFound returns an error for an unknown resource
func NotFound(what string) *GatewayError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", what))
}

// Ambiguous returns an error for a reference matching more than one agent
func Ambiguous(ref string, candidates []string) *GatewayError {
	return New(CodeAmbiguous, fmt.Sprintf("ambiguous reference %q matches %v", ref, candidates))
}

// ExecutionFailed returns an error for a host operation that failed
func ExecutionFailed(op string, cause error) *GatewayError {
	return Wrap(CodeExecution, fmt.Sprintf("%s failed", op), cause)
}

// UpstreamFailed returns an error for an upstream forwarding failure
func UpstreamFailed(name string, cause error) *GatewayError {
	return Wrap(CodeUpstream, fmt.Sprintf("upstream %s unreachable", name), cause)
}

// ConfigError returns an error for configuration issues
func ConfigError(message string, cause error) *GatewayError {
	return Wrap(CodeConfig, message, cause)
}

// Internal returns an error for unexpected internal failures
func Internal(message string, cause error) *GatewayError {
	return Wrap(CodeInternal, message, cause)
}

// HTTPStatus extracts the HTTP status for an error chain. Errors that are
// not GatewayErrors are treated as internal.
func HTTPStatus(err error) int {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr.HTTPStatus()
	}
	return http.StatusInternalServerError
}

// GetExitCode extracts the exit code from an error
func GetExitCode(err error) int {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr.ExitCode()
	}
	return ExitGeneralError
}

// CodeOf returns the error code of err, or CodeInternal for foreign errors
func CodeOf(err error) Code {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr.Code
	}
	return CodeInternal
}

// Is checks if an error is of a specific type
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target any) bool {
	return errors.As(err, target)
}

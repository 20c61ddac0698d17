package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/drawbridge-sh/drawbridge/internal/errors"
	"github.com/drawbridge-sh/drawbridge/internal/logging"
)

// ToolResult is the envelope for a command the gateway ran to completion.
// Success mirrors the exit code so shims can branch without parsing it.
type ToolResult struct {
	Success  bool   `json:"success"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exitCode"`
}

// blockedExitCode is what a blocked command reports as its exit code.
// 126 is the shell's "found but cannot execute", which is what a refusal
// looks like from inside the sandbox.
const blockedExitCode = 126

// BlockedResult is the envelope for a command refused by policy or the
// secret scanner. It travels as HTTP 200: the gateway answered fine, the
// command simply was not allowed to run.
type BlockedResult struct {
	Success  bool   `json:"success"`
	Blocked  bool   `json:"blocked"`
	Reason   string `json:"reason"`
	ExitCode int    `json:"exitCode"`
}

func blockedResult(reason string) BlockedResult {
	return BlockedResult{Blocked: true, Reason: reason, ExitCode: blockedExitCode}
}

// errorResponse is the envelope for transport-level failures: bad auth,
// malformed bodies, stale sessions, unknown routes.
type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Debug("response encode failed", "error", err)
	}
}

// writeError maps err onto its transport status and writes the error
// envelope.
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, errors.HTTPStatus(err), errorResponse{Error: err.Error()})
}

// Package logging provides logging utilities for drawbridge.
//
// This package provides two categories of output:
//   - Structured logging: slog-based logs for the gateway process
//   - User output: formatted messages for CLI commands
//
// # Structured Logging
//
// Structured logs are written using slog and controlled by verbosity settings:
//
//	logging.Debug("loaded mappings", "workspace", hash, "entries", n)
//	logging.Warn("audit append failed", "error", err)
//
// The gateway's per-request access log uses a derived logger:
//
//	log := logging.With("request_id", id)
//
// # User Output
//
// CLI commands print user-facing messages with status indicators:
//
//	logging.UserSuccess("workspace %s registered", hash)
//	logging.UserError("failed to write token file: %v", err)
//
// Output destinations:
//   - UserInfo, UserSuccess: stdout
//   - UserWarning, UserError: stderr
package logging

// Package errors provides typed errors for the drawbridge gateway.
//
// # Error Types
//
// GatewayError is the base error type that carries a classification code:
//
//	type GatewayError struct {
//	    Code    Code   // Error classification
//	    Message string // User-facing message
//	    Cause   error  // Wrapped error
//	}
//
// # Codes
//
// The code decides how an error surfaces at each boundary. At the HTTP
// boundary, HTTPStatus maps codes to statuses (auth → 401, malformed and
// stale_session → 400, not_found → 404, upstream → 502, everything else →
// 500). At the CLI boundary, ExitCode maps codes to process exit codes.
//
// Policy and secret blocks are deliberately not errors: the gateway shapes
// them as HTTP 200 blocked results so sandbox callers treat them as an
// ordinary tool result with exit code 126.
//
// # Constructors
//
// Use the provided constructors for consistent error creation:
//
//	errors.Unauthorized()
//	errors.Malformed("prompt is required")
//	errors.StaleSession(hash)
//	errors.Ambiguous("build", []string{"a1b2", "a1c3"})
//	errors.UpstreamFailed("github", err)
//
// # Extracting Status and Exit Codes
//
// Use HTTPStatus and GetExitCode to classify an error chain:
//
//	status := errors.HTTPStatus(err) // at the HTTP boundary
//	os.Exit(errors.GetExitCode(err)) // in main
package errors

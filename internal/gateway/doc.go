// Package gateway is the HTTP surface of drawbridge. It authenticates
// sandbox callers with a shared bearer token, shapes every response as a
// JSON envelope, and routes tool execution, agent lifecycle, and MCP
// forwarding requests to the packages that implement them.
//
// The handler chain is: panic recovery, request id + access log, metrics,
// rate limiting, bearer auth, body cap, then the route table. Only
// /health and /metrics skip auth. Policy and secret blocks are shaped as
// HTTP 200 blocked results; non-200 statuses are reserved for transport
// level failures.
package gateway

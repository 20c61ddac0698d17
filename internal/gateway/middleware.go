package gateway

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/drawbridge-sh/drawbridge/internal/errors"
	"github.com/drawbridge-sh/drawbridge/internal/logging"
)

// statusRecorder wraps http.ResponseWriter to capture the status code.
// Flush must pass through so MCP event streams keep flowing.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// recoverPanics turns a handler panic into a 500 envelope so one bad
// request cannot take the gateway down with it.
func recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				logging.Error("handler panic", "panic", v, "method", r.Method, "path", r.URL.Path)
				writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// accessLog assigns each request a correlation id, echoes it back as
// X-Request-Id, and logs one line per completed request.
func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := r.Header.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", reqID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		logging.Debug("request",
			"id", reqID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds())
	})
}

// openRoute reports whether a path answers without a token and outside
// the rate budget: liveness probes and metric scrapes carry neither.
func openRoute(path string) bool {
	return path == "/health" || path == "/metrics"
}

// authenticate rejects requests whose bearer token does not match the
// current token, before any other processing. The comparison is constant
// time; the token pointer is swapped atomically on SIGHUP reloads.
func (g *Gateway) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if openRoute(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		presented, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		token := g.token.Load()
		if !ok || token == nil ||
			subtle.ConstantTimeCompare([]byte(presented), []byte(*token)) != 1 {
			writeError(w, errors.Unauthorized())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// capBody rejects oversized requests up front and wraps the body so a
// lying Content-Length still cannot stream past the cap.
func (g *Gateway) capBody(next http.Handler) http.Handler {
	max := g.cfg.Gateway.MaxBodyBytes
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > max {
			writeJSON(w, http.StatusRequestEntityTooLarge,
				errorResponse{Error: fmt.Sprintf("request body exceeds %d byte limit", max)})
			return
		}
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, max)
		}
		next.ServeHTTP(w, r)
	})
}

// limitKey buckets a request for rate limiting. Tool requests carry the
// hash in a body the middleware must not consume, so the query parameter
// is the only per-workspace signal; everything else shares one ambient
// bucket.
func limitKey(r *http.Request) string {
	if h := r.URL.Query().Get("workspace_hash"); h != "" {
		return h
	}
	return "ambient"
}

func (g *Gateway) rateLimit(next http.Handler) http.Handler {
	if g.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if openRoute(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		key := limitKey(r)
		if !g.limiter.allow(key) {
			logging.Warn("rate limit exceeded", "workspace", key)
			writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// rateLimiter implements per-workspace sliding-window rate limiting.
type rateLimiter struct {
	maxRequests int
	window      time.Duration
	requests    map[string][]time.Time
	mu          sync.Mutex
	stopClean   chan struct{}
}

func newRateLimiter(maxRequests int, window time.Duration) *rateLimiter {
	rl := &rateLimiter{
		maxRequests: maxRequests,
		window:      window,
		requests:    make(map[string][]time.Time),
		stopClean:   make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

func (rl *rateLimiter) allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-rl.window)

	reqs := rl.requests[key]
	var valid []time.Time
	for _, t := range reqs {
		if t.After(windowStart) {
			valid = append(valid, t)
		}
	}

	if len(valid) >= rl.maxRequests {
		rl.requests[key] = valid
		return false
	}

	rl.requests[key] = append(valid, now)
	return true
}

// cleanupLoop periodically removes stale entries from the requests map
// to prevent unbounded memory growth from idle workspaces.
func (rl *rateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.window * 2)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopClean:
			return
		}
	}
}

func (rl *rateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	windowStart := time.Now().Add(-rl.window)
	for key, reqs := range rl.requests {
		var valid []time.Time
		for _, t := range reqs {
			if t.After(windowStart) {
				valid = append(valid, t)
			}
		}
		if len(valid) == 0 {
			delete(rl.requests, key)
		} else {
			rl.requests[key] = valid
		}
	}
}

func (rl *rateLimiter) stop() {
	close(rl.stopClean)
}

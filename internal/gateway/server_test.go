package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/drawbridge-sh/drawbridge/internal/audit"
	"github.com/drawbridge-sh/drawbridge/internal/config"
	"github.com/drawbridge-sh/drawbridge/internal/runtime"
	"github.com/drawbridge-sh/drawbridge/internal/system"
	"github.com/drawbridge-sh/drawbridge/internal/workspace"
)

const testToken = "tok-4f1d2a8c9b3e7a50"

// testGateway bundles a Gateway wired to mocks with its handler chain.
type testGateway struct {
	*Gateway
	handler http.Handler
	exec    *system.MockExecutor
	rt      *runtime.MockRuntime
}

func newTestGateway(t *testing.T, mutate func(*config.Config)) *testGateway {
	t.Helper()

	dir := t.TempDir()
	cfg := config.Default()
	cfg.Gateway.DataRoot = dir
	cfg.Gateway.TokenFile = filepath.Join(dir, "token")
	if mutate != nil {
		mutate(cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
	if err := os.WriteFile(cfg.Gateway.TokenFile, []byte(testToken+"\n"), 0600); err != nil {
		t.Fatalf("writing token file: %v", err)
	}

	exec := system.NewMockExecutor()
	rt := runtime.NewMockRuntime()
	g, err := New(Options{
		Config:           cfg,
		Executor:         exec,
		Runtime:          rt,
		AgentPoll:        5 * time.Millisecond,
		AgentWaitTimeout: 100 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		g.Shutdown(ctx)
	})

	return &testGateway{Gateway: g, handler: g.Handler(), exec: exec, rt: rt}
}

// registerWorkspace writes a one-entry mapping table and returns the
// workspace hash and its host root.
func registerWorkspace(t *testing.T, tg *testGateway) (string, string) {
	t.Helper()
	hostRoot := t.TempDir()
	hash := workspace.Hash(hostRoot)
	err := workspace.WriteMappings(tg.paths, hash, []workspace.Mapping{
		{Sandbox: "/workspace", Host: hostRoot},
	})
	if err != nil {
		t.Fatalf("WriteMappings() = %v", err)
	}
	return hash, hostRoot
}

// request performs one request against the full middleware chain using
// the given bearer token. A nil body sends no payload.
func (tg *testGateway) request(t *testing.T, method, target, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshaling body: %v", err)
		}
		rd = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, rd)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	tg.handler.ServeHTTP(rec, req)
	return rec
}

// do is request with the valid test token.
func (tg *testGateway) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return tg.request(t, method, target, testToken, body)
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("response is not JSON: %v\nbody: %s", err, rec.Body.String())
	}
	return m
}

// eventsOfType reads back the audit log for a workspace, filtered.
func eventsOfType(t *testing.T, tg *testGateway, hash, eventType string) []audit.Event {
	t.Helper()
	events, err := tg.audit.Events(hash)
	if err != nil {
		t.Fatalf("Events(%q) = %v", hash, err)
	}
	var out []audit.Event
	for _, e := range events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func TestHealthNoAuth(t *testing.T) {
	tg := newTestGateway(t, nil)

	rec := tg.request(t, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /health = %d, want 200", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["success"] != true {
		t.Errorf("success = %v, want true", body["success"])
	}
}

func TestMetricsNoAuth(t *testing.T) {
	tg := newTestGateway(t, nil)

	rec := tg.request(t, http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /metrics = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "drawbridge_agents_running") {
		t.Errorf("metrics output missing drawbridge_agents_running:\n%s", rec.Body.String())
	}
}

func TestAuthRejectsMissingToken(t *testing.T) {
	tg := newTestGateway(t, nil)

	rec := tg.request(t, http.MethodGet, "/agent/list?workspace_hash=abcd1234", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["error"] != "unauthorized" {
		t.Errorf("error = %v, want unauthorized", body["error"])
	}
}

func TestAuthRejectsBeforeAnySideEffect(t *testing.T) {
	tg := newTestGateway(t, nil)

	rec := tg.request(t, http.MethodPost, "/gh", "wrong-token", map[string]any{"args": []string{"pr", "list"}})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if len(tg.exec.Commands) != 0 {
		t.Errorf("executor ran %d commands before auth, want 0", len(tg.exec.Commands))
	}
}

func TestUnknownRouteIsJSON404(t *testing.T) {
	tg := newTestGateway(t, nil)

	rec := tg.do(t, http.MethodGet, "/no/such/route", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["error"] != "route not found" {
		t.Errorf("error = %v, want route not found", body["error"])
	}
}

func TestMethodNotAllowed(t *testing.T) {
	tg := newTestGateway(t, nil)

	rec := tg.do(t, http.MethodGet, "/gh", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET /gh = %d, want 405", rec.Code)
	}
}

func TestMCPRouteForwards(t *testing.T) {
	tg := newTestGateway(t, nil)

	var gotPath, gotQuery, gotAuth string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"jsonrpc":"2.0","id":1,"result":{}}`)
	}))
	defer upstream.Close()

	servers := "servers:\n  linear:\n    url: " + upstream.URL + "/mcp\n" +
		"    headers:\n      Authorization: Bearer upstream-key\n"
	if err := os.WriteFile(tg.paths.MCPServersFile(), []byte(servers), 0600); err != nil {
		t.Fatalf("writing MCP config: %v", err)
	}

	rec := tg.do(t, http.MethodPost, "/mcp/linear/tools/list?cursor=abc", map[string]any{"jsonrpc": "2.0"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200\nbody: %s", rec.Code, rec.Body.String())
	}
	if gotPath != "/mcp/tools/list" {
		t.Errorf("upstream path = %q, want /mcp/tools/list", gotPath)
	}
	if gotQuery != "cursor=abc" {
		t.Errorf("upstream query = %q, want cursor=abc", gotQuery)
	}
	if gotAuth != "Bearer upstream-key" {
		t.Errorf("upstream Authorization = %q, want the configured header, not the gateway token", gotAuth)
	}
	if !strings.Contains(rec.Body.String(), `"jsonrpc"`) {
		t.Errorf("upstream body not relayed: %s", rec.Body.String())
	}
}

func TestMCPRouteRequiresAuth(t *testing.T) {
	tg := newTestGateway(t, nil)

	rec := tg.request(t, http.MethodPost, "/mcp/linear", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestBodyCapRejectsOversize(t *testing.T) {
	tg := newTestGateway(t, func(cfg *config.Config) {
		cfg.Gateway.MaxBodyBytes = 64
	})

	big := map[string]any{"args": []string{strings.Repeat("x", 256)}}
	rec := tg.do(t, http.MethodPost, "/gh", big)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", rec.Code)
	}
	if len(tg.exec.Commands) != 0 {
		t.Errorf("executor ran %d commands on an oversized request, want 0", len(tg.exec.Commands))
	}
}

func TestRequestIDGenerated(t *testing.T) {
	tg := newTestGateway(t, nil)

	rec := tg.request(t, http.MethodGet, "/health", "", nil)
	if rec.Header().Get("X-Request-Id") == "" {
		t.Error("response missing X-Request-Id")
	}
}

func TestRequestIDEchoed(t *testing.T) {
	tg := newTestGateway(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-Id", "caller-supplied-id")
	rec := httptest.NewRecorder()
	tg.handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-Id"); got != "caller-supplied-id" {
		t.Errorf("X-Request-Id = %q, want caller-supplied-id", got)
	}
}

func TestRateLimitExceeded(t *testing.T) {
	tg := newTestGateway(t, func(cfg *config.Config) {
		cfg.Gateway.RateLimit = 2
	})

	for i := 0; i < 2; i++ {
		rec := tg.do(t, http.MethodPost, "/gh", map[string]any{"args": []string{"repo", "view"}})
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d = %d, want 200", i+1, rec.Code)
		}
	}

	rec := tg.do(t, http.MethodPost, "/gh", map[string]any{"args": []string{"repo", "view"}})
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("third request = %d, want 429", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["error"] != "rate limit exceeded" {
		t.Errorf("error = %v, want rate limit exceeded", body["error"])
	}

	// A workspace identified by query parameter has its own bucket.
	hash, _ := registerWorkspace(t, tg)
	rec = tg.do(t, http.MethodGet, "/agent/list?workspace_hash="+hash, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("per-workspace request = %d, want 200 after ambient bucket exhausted", rec.Code)
	}

	// Liveness stays reachable regardless.
	rec = tg.request(t, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("GET /health = %d, want 200 under rate limiting", rec.Code)
	}
}

func TestRateLimiterWindowExpiry(t *testing.T) {
	rl := newRateLimiter(1, 20*time.Millisecond)
	defer rl.stop()

	if !rl.allow("w") {
		t.Fatal("first request denied")
	}
	if rl.allow("w") {
		t.Fatal("second request allowed inside window")
	}

	time.Sleep(30 * time.Millisecond)
	if !rl.allow("w") {
		t.Error("request denied after window expired")
	}
}

func TestTokenReload(t *testing.T) {
	tg := newTestGateway(t, nil)

	if err := os.WriteFile(tg.cfg.Gateway.TokenFile, []byte("rotated-token\n"), 0600); err != nil {
		t.Fatalf("rotating token file: %v", err)
	}
	if err := tg.ReloadToken(); err != nil {
		t.Fatalf("ReloadToken() = %v", err)
	}

	rec := tg.request(t, http.MethodGet, "/agent/list?workspace_hash=abcd1234", testToken, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("old token = %d, want 401", rec.Code)
	}

	rec = tg.request(t, http.MethodGet, "/agent/list?workspace_hash=abcd1234", "rotated-token", nil)
	if rec.Code == http.StatusUnauthorized {
		t.Errorf("rotated token still rejected")
	}
}

func TestNewRefusesMissingToken(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Gateway.DataRoot = dir
	cfg.Gateway.TokenFile = filepath.Join(dir, "token")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}

	_, err := New(Options{Config: cfg, Executor: system.NewMockExecutor(), Runtime: runtime.NewMockRuntime()})
	if err == nil {
		t.Fatal("New() succeeded without a token file")
	}
}

func TestNewRefusesEmptyToken(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Gateway.DataRoot = dir
	cfg.Gateway.TokenFile = filepath.Join(dir, "token")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
	if err := os.WriteFile(cfg.Gateway.TokenFile, []byte("  \n"), 0600); err != nil {
		t.Fatalf("writing token file: %v", err)
	}

	_, err := New(Options{Config: cfg, Executor: system.NewMockExecutor(), Runtime: runtime.NewMockRuntime()})
	if err == nil {
		t.Fatal("New() succeeded with an empty token file")
	}
}

func TestRecoverPanics(t *testing.T) {
	h := recoverPanics(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("panic response is not JSON: %v", err)
	}
	if body["error"] != "internal error" {
		t.Errorf("error = %v, want internal error", body["error"])
	}
}

func TestMetricsCountRequests(t *testing.T) {
	tg := newTestGateway(t, nil)

	if rec := tg.do(t, http.MethodPost, "/gh", map[string]any{"args": []string{"repo", "view"}}); rec.Code != http.StatusOK {
		t.Fatalf("POST /gh = %d, want 200", rec.Code)
	}

	rec := tg.request(t, http.MethodGet, "/metrics", "", nil)
	out := rec.Body.String()
	if !strings.Contains(out, `path="POST /gh"`) {
		t.Errorf("metrics missing request counter for POST /gh:\n%s", out)
	}
	if !strings.Contains(out, `drawbridge_tool_executions_total{outcome="ok",tool="gh"} 1`) {
		t.Errorf("metrics missing tool execution counter:\n%s", out)
	}
}

package gateway

import (
	"context"
	"net/http"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/drawbridge-sh/drawbridge/internal/agents"
	"github.com/drawbridge-sh/drawbridge/internal/audit"
	"github.com/drawbridge-sh/drawbridge/internal/config"
	"github.com/drawbridge-sh/drawbridge/internal/creds"
	"github.com/drawbridge-sh/drawbridge/internal/errors"
	"github.com/drawbridge-sh/drawbridge/internal/logging"
	"github.com/drawbridge-sh/drawbridge/internal/mcp"
	"github.com/drawbridge-sh/drawbridge/internal/runtime"
	"github.com/drawbridge-sh/drawbridge/internal/system"
)

// Options carries the dependencies a Gateway is built from. Executor and
// Runtime are injected so tests can run the full HTTP surface against
// mocks.
type Options struct {
	Config   *config.Config
	Executor system.CommandExecutor
	Runtime  runtime.Runtime

	// AgentPoll and AgentWaitTimeout shrink the agent wait loop in
	// tests; zero keeps the defaults.
	AgentPoll        time.Duration
	AgentWaitTimeout time.Duration
}

// Gateway is the assembled HTTP service.
type Gateway struct {
	cfg      *config.Config
	paths    *config.Paths
	executor system.CommandExecutor
	audit    *audit.Emitter
	store    *agents.Store
	agents   *agents.Manager
	mcp      *mcp.Forwarder
	creds    *creds.Cache
	metrics  *metrics
	limiter  *rateLimiter
	token    atomic.Pointer[string]
	server   *http.Server
}

// New builds a Gateway from validated configuration. It fails when the
// bearer token cannot be loaded: without a token every request would
// have to be refused, so refusing to start is the honest failure.
func New(opts Options) (*Gateway, error) {
	cfg := opts.Config
	paths := config.NewPaths(cfg.Gateway.DataRoot)

	g := &Gateway{
		cfg:      cfg,
		paths:    paths,
		executor: opts.Executor,
		audit:    audit.NewEmitter(paths),
	}
	g.store = agents.NewStore(paths)
	g.agents = agents.NewManager(g.store, opts.Runtime, g.audit, agents.Options{
		Image:        cfg.Agents.Image,
		CPUs:         cfg.Agents.CPUs,
		Memory:       cfg.Agents.Memory,
		Network:      cfg.Agents.Network,
		PollInterval: opts.AgentPoll,
		WaitTimeout:  opts.AgentWaitTimeout,
	})
	g.mcp = mcp.NewForwarder(paths.MCPServersFile(), g.audit)
	g.creds = creds.NewCache(opts.Executor, creds.DefaultTTL)
	g.metrics = newMetrics(g.store)

	if cfg.Gateway.RateLimit > 0 {
		g.limiter = newRateLimiter(cfg.Gateway.RateLimit, time.Minute)
	}

	if err := g.ReloadToken(); err != nil {
		return nil, err
	}

	g.server = &http.Server{
		Addr:    cfg.ListenAddr(),
		Handler: g.Handler(),
		// Header reads get a short fuse. There is deliberately no
		// write timeout: agent waits and MCP event streams hold
		// responses open far longer than any fixed budget.
		ReadHeaderTimeout: 10 * time.Second,
	}
	return g, nil
}

// ReloadToken re-reads the bearer token file. Called at startup and on
// SIGHUP, so rotating the token does not require a restart.
func (g *Gateway) ReloadToken() error {
	data, err := os.ReadFile(g.cfg.Gateway.TokenFile)
	if err != nil {
		return errors.ConfigError("cannot read token file (run `drawbridge token generate`)", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return errors.ConfigError("token file is empty", nil)
	}
	g.token.Store(&token)
	return nil
}

// Handler assembles the middleware chain and route table.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", g.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(g.metrics.registry, promhttp.HandlerOpts{}))

	mux.HandleFunc("POST /gh", g.handleTool("gh"))
	mux.HandleFunc("POST /git", g.handleTool("git"))
	mux.HandleFunc("POST /terraform", g.handleTool("terraform"))
	mux.HandleFunc("POST /kubectl", g.handleTool("kubectl"))
	mux.HandleFunc("POST /aws", g.handleTool("aws"))

	mux.HandleFunc("/mcp/{name}", g.handleMCP)
	mux.HandleFunc("/mcp/{name}/{subpath...}", g.handleMCP)

	mux.HandleFunc("POST /agent/spawn", g.handleAgentSpawn)
	mux.HandleFunc("GET /agent/list", g.handleAgentList)
	mux.HandleFunc("GET /agent/log/{ref}", g.handleAgentLog)
	mux.HandleFunc("POST /agent/kill/{ref}", g.handleAgentKill)
	mux.HandleFunc("GET /agent/results", g.handleAgentResults)
	mux.HandleFunc("GET /agent/wait/{ref}", g.handleAgentWait)

	mux.HandleFunc("/", g.handleNotFound)

	var h http.Handler = mux
	h = g.capBody(h)
	h = g.authenticate(h)
	h = g.rateLimit(h)
	h = g.metrics.observe(h)
	h = accessLog(h)
	h = recoverPanics(h)
	return h
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (g *Gateway) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, errors.NotFound("route"))
}

func (g *Gateway) handleMCP(w http.ResponseWriter, r *http.Request) {
	g.mcp.Forward(w, r, r.PathValue("name"), r.PathValue("subpath"))
}

// ListenAndServe runs the gateway until Shutdown. A closed-server return
// is normal termination, not an error.
func (g *Gateway) ListenAndServe() error {
	logging.Info("gateway listening", "addr", g.server.Addr)
	if err := g.server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops background goroutines.
func (g *Gateway) Shutdown(ctx context.Context) error {
	if g.limiter != nil {
		g.limiter.stop()
	}
	return g.server.Shutdown(ctx)
}

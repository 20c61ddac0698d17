package agents

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/drawbridge-sh/drawbridge/internal/audit"
	"github.com/drawbridge-sh/drawbridge/internal/creds"
	"github.com/drawbridge-sh/drawbridge/internal/errors"
	"github.com/drawbridge-sh/drawbridge/internal/logging"
	"github.com/drawbridge-sh/drawbridge/internal/runtime"
)

// KillAll is the sentinel reference that kills every running agent in a
// workspace.
const KillAll = "--all"

// DefaultAPIKeyEnv is the credential looked up when a spawn request
// does not name one.
const DefaultAPIKeyEnv = "ANTHROPIC_API_KEY"

// Options fixes the launch parameters for every agent container.
type Options struct {
	Image   string
	CPUs    string
	Memory  string
	Network string
	// PollInterval is the wait-loop tick; zero means 2 seconds.
	PollInterval time.Duration
	// WaitTimeout is the wait-loop ceiling; zero means 5 minutes.
	WaitTimeout time.Duration
}

// Manager owns the agent lifecycle for all workspaces.
type Manager struct {
	store   *Store
	runtime runtime.Runtime
	audit   *audit.Emitter
	opts    Options

	// lookupEnv is swapped in tests so spawning does not depend on
	// the test process environment.
	lookupEnv func(string) string
	// tempDir holds short-lived credential files; empty means the
	// system temp directory.
	tempDir string
}

func NewManager(store *Store, rt runtime.Runtime, emitter *audit.Emitter, opts Options) *Manager {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = 5 * time.Minute
	}
	return &Manager{
		store:     store,
		runtime:   rt,
		audit:     emitter,
		opts:      opts,
		lookupEnv: os.Getenv,
	}
}

// SpawnRequest carries everything needed to launch one agent.
type SpawnRequest struct {
	Prompt string
	Hash   string
	// Root is the host workspace root mounted read-only into the
	// container.
	Root string
	Name string
	// Tools is the allowed tool list advertised to the agent.
	Tools []string
	// APIKeyEnv names the gateway-side environment variable holding
	// the agent's API credential.
	APIKeyEnv string
	// Runtime is the agent runtime identity passed through to the
	// container.
	Runtime string
}

var validEnvName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Spawn launches a new agent container and persists its record. The
// credential travels via a 0600 env file that is deleted the moment the
// engine has consumed it. No metadata is written when the credential is
// missing or the launch fails.
func (m *Manager) Spawn(ctx context.Context, req SpawnRequest) (*Agent, error) {
	keyEnv := req.APIKeyEnv
	if keyEnv == "" {
		keyEnv = DefaultAPIKeyEnv
	}
	if !validEnvName.MatchString(keyEnv) {
		return nil, errors.Malformed(fmt.Sprintf("invalid credential variable name %q", keyEnv))
	}
	credential := m.lookupEnv(keyEnv)
	if credential == "" {
		return nil, errors.Malformed(fmt.Sprintf("credential %s not set in gateway environment", keyEnv))
	}

	id, err := newID()
	if err != nil {
		return nil, errors.Internal("generating agent id", err)
	}
	name := req.Name
	if name == "" {
		name = "agent-" + id[:4]
	}

	envFile, cleanup, err := creds.WriteTempEnvFile(m.tempDir, map[string]string{keyEnv: credential})
	if err != nil {
		return nil, errors.Internal("preparing agent credential", err)
	}

	env := map[string]string{
		"AGENT_ID":     id,
		"AGENT_PROMPT": req.Prompt,
	}
	if len(req.Tools) > 0 {
		env["AGENT_TOOLS"] = strings.Join(req.Tools, ",")
	}
	if req.Runtime != "" {
		env["AGENT_RUNTIME"] = req.Runtime
	}

	agent := &Agent{
		ID:        id,
		Name:      name,
		Prompt:    req.Prompt,
		Status:    StatusRunning,
		StartedAt: time.Now().UTC(),
	}

	launchErr := m.runtime.Launch(ctx, runtime.LaunchSpec{
		Name:    agent.ContainerName(),
		Image:   m.opts.Image,
		CPUs:    m.opts.CPUs,
		Memory:  m.opts.Memory,
		Network: m.opts.Network,
		Labels:  map[string]string{"drawbridge.workspace": req.Hash},
		Mounts:  []runtime.Mount{{Host: req.Root, Container: "/workspace", ReadOnly: true}},
		EnvFile: envFile,
		Env:     env,
	})
	// The engine has read the env file by the time run returns; do
	// not leave the credential on disk any longer than that.
	cleanup()
	if launchErr != nil {
		return nil, errors.ExecutionFailed("launching agent container", launchErr)
	}

	if err := m.store.Save(req.Hash, agent); err != nil {
		// Container is up but unrecorded; take it back down rather
		// than leak it.
		if rmErr := m.runtime.Remove(ctx, agent.ContainerName()); rmErr != nil {
			logging.Warn("could not remove unrecorded agent container", "id", id, "error", rmErr)
		}
		return nil, errors.Internal("persisting agent record", err)
	}

	m.audit.Emit(req.Hash, audit.EventAgentSpawn, map[string]any{"id": id, "name": name})
	logging.Info("agent spawned", "id", id, "name", name, "workspace", req.Hash)
	return agent, nil
}

// newID returns 8 random bytes hex-encoded: 16 chars, unique enough
// for agents scoped to one workspace.
func newID() (string, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf[:]), nil
}

// List returns the workspace's agents, reconciling the status of any
// recorded as running against the container engine first.
func (m *Manager) List(ctx context.Context, hash string) ([]*Agent, error) {
	agents, err := m.store.List(hash)
	if err != nil {
		return nil, errors.Internal("listing agents", err)
	}
	for _, a := range agents {
		m.reconcile(ctx, hash, a)
	}
	return agents, nil
}

// reconcile flips a running agent to done/failed if its container has
// exited or vanished, persisting the change. Engine errors leave the
// record untouched; the next call retries.
func (m *Manager) reconcile(ctx context.Context, hash string, a *Agent) {
	if a.Status != StatusRunning {
		return
	}

	state, err := m.runtime.Inspect(ctx, a.ContainerName())
	if err != nil {
		logging.Debug("agent inspect failed", "id", a.ID, "error", err)
		return
	}

	switch state.Status {
	case runtime.StatusRunning:
		return
	case runtime.StatusNotFound:
		// Container vanished without a recorded exit
		code := -1
		a.Status = StatusFailed
		a.ExitCode = &code
	case runtime.StatusExited:
		code := state.ExitCode
		a.ExitCode = &code
		if code == 0 {
			a.Status = StatusDone
		} else {
			a.Status = StatusFailed
		}
	}

	if err := m.store.Save(hash, a); err != nil {
		logging.Warn("could not persist agent status", "id", a.ID, "error", err)
	}
}

// Resolve maps a possibly-partial id or name to exactly one agent.
// Matching order: exact id, id prefix, exact name, name prefix. More
// than one match at any stage is ambiguous, never a guess.
func (m *Manager) Resolve(hash, ref string) (*Agent, error) {
	agents, err := m.store.List(hash)
	if err != nil {
		return nil, errors.Internal("listing agents", err)
	}

	match := func(pred func(*Agent) bool) []*Agent {
		var out []*Agent
		for _, a := range agents {
			if pred(a) {
				out = append(out, a)
			}
		}
		return out
	}

	stages := []func(*Agent) bool{
		func(a *Agent) bool { return a.ID == ref },
		func(a *Agent) bool { return strings.HasPrefix(a.ID, ref) },
		func(a *Agent) bool { return a.Name == ref },
		func(a *Agent) bool { return strings.HasPrefix(a.Name, ref) },
	}
	for _, pred := range stages {
		found := match(pred)
		if len(found) == 1 {
			return found[0], nil
		}
		if len(found) > 1 {
			candidates := make([]string, len(found))
			for i, a := range found {
				candidates[i] = fmt.Sprintf("%s (%s)", a.ID, a.Name)
			}
			return nil, errors.Ambiguous(ref, candidates)
		}
	}
	return nil, errors.NotFound(fmt.Sprintf("agent %q", ref))
}

// Logs returns the accumulated container output for one agent.
func (m *Manager) Logs(ctx context.Context, hash, ref string) (*Agent, string, error) {
	agent, err := m.Resolve(hash, ref)
	if err != nil {
		return nil, "", err
	}
	m.reconcile(ctx, hash, agent)

	logs, err := m.runtime.Logs(ctx, agent.ContainerName())
	if err != nil {
		return agent, "", errors.ExecutionFailed(fmt.Sprintf("fetching logs for agent %s", agent.ID), err)
	}
	return agent, logs, nil
}

// Kill force-removes containers and marks their agents killed. The ref
// KillAll targets every running agent; a single ref that resolves to an
// agent no longer running is a no-op. Returns the killed ids.
func (m *Manager) Kill(ctx context.Context, hash, ref string) ([]string, error) {
	var targets []*Agent

	if ref == KillAll {
		agents, err := m.List(ctx, hash)
		if err != nil {
			return nil, err
		}
		for _, a := range agents {
			if a.Status == StatusRunning {
				targets = append(targets, a)
			}
		}
	} else {
		agent, err := m.Resolve(hash, ref)
		if err != nil {
			return nil, err
		}
		m.reconcile(ctx, hash, agent)
		if agent.Status == StatusRunning {
			targets = append(targets, agent)
		}
	}

	killed := make([]string, 0, len(targets))
	for _, a := range targets {
		if err := m.runtime.Remove(ctx, a.ContainerName()); err != nil {
			logging.Warn("could not remove agent container", "id", a.ID, "error", err)
		}
		a.Status = StatusKilled
		if err := m.store.Save(hash, a); err != nil {
			logging.Warn("could not persist kill", "id", a.ID, "error", err)
			continue
		}
		killed = append(killed, a.ID)
	}

	if len(killed) > 0 {
		m.audit.Emit(hash, audit.EventAgentKill, map[string]any{"ids": killed})
		logging.Info("agents killed", "ids", killed, "workspace", hash)
	}
	return killed, nil
}

// HarvestResult is one harvested agent with its final logs.
type HarvestResult struct {
	*Agent
	Logs string `json:"logs"`
}

// Results reconciles, then harvests every agent in a terminal state:
// logs are fetched best-effort, the container and metadata record are
// deleted, and the agent is returned. Each agent is returned exactly
// once; a second call right after finds nothing.
func (m *Manager) Results(ctx context.Context, hash string) ([]HarvestResult, error) {
	agents, err := m.List(ctx, hash)
	if err != nil {
		return nil, err
	}

	var results []HarvestResult
	var ids []string
	for _, a := range agents {
		if !a.Terminal() {
			continue
		}

		logs, err := m.runtime.Logs(ctx, a.ContainerName())
		if err != nil {
			// Killed agents have no container left; their logs
			// are simply gone
			logs = ""
		}
		if err := m.runtime.Remove(ctx, a.ContainerName()); err != nil {
			logging.Warn("could not remove harvested container", "id", a.ID, "error", err)
		}
		if err := m.store.Delete(hash, a.ID); err != nil {
			logging.Warn("could not delete agent record", "id", a.ID, "error", err)
			continue
		}

		results = append(results, HarvestResult{Agent: a, Logs: logs})
		ids = append(ids, a.ID)
	}

	if len(ids) > 0 {
		m.audit.Emit(hash, audit.EventAgentHarvest, map[string]any{"ids": ids})
	}
	return results, nil
}

// WaitResult is the outcome of waiting on one agent.
type WaitResult struct {
	Agent *Agent
	Logs  string
	// TimedOut is set when the ceiling passed with the agent still
	// running; nothing was mutated and a later wait can retry.
	TimedOut bool
}

// Wait polls the agent's container until it leaves the running state or
// the ceiling expires. The poll holds the connection open; client
// disconnects do not cancel the agent itself.
func (m *Manager) Wait(ctx context.Context, hash, ref string) (*WaitResult, error) {
	agent, err := m.Resolve(hash, ref)
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(m.opts.WaitTimeout)
	for {
		m.reconcile(ctx, hash, agent)
		if agent.Terminal() {
			logs, err := m.runtime.Logs(ctx, agent.ContainerName())
			if err != nil {
				logs = ""
			}
			return &WaitResult{Agent: agent, Logs: logs}, nil
		}
		if !time.Now().Before(deadline) {
			return &WaitResult{Agent: agent, TimedOut: true}, nil
		}
		time.Sleep(m.opts.PollInterval)
	}
}

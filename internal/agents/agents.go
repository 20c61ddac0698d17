// Package agents manages ephemeral sub-agent containers: spawning them
// with injected credentials, reconciling their status against the
// container engine, and harvesting their results exactly once.
package agents

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/drawbridge-sh/drawbridge/internal/config"
)

// Agent statuses. Running transitions to done or failed lazily when a
// list/wait/results call finds the container exited, and to killed only
// through an explicit kill.
const (
	StatusRunning = "running"
	StatusDone    = "done"
	StatusFailed  = "failed"
	StatusKilled  = "killed"
)

// Agent is the persisted record for one spawned agent. ExitCode stays
// null until the container is known to have exited.
type Agent struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Prompt    string    `json:"prompt"`
	Status    string    `json:"status"`
	ExitCode  *int      `json:"exit_code"`
	StartedAt time.Time `json:"started_at"`
}

// ContainerName is the name of the container backing this agent.
func (a *Agent) ContainerName() string {
	return config.ContainerPrefix + a.ID
}

// Terminal reports whether the agent has left the running state.
func (a *Agent) Terminal() bool {
	return a.Status != StatusRunning
}

// Store persists one JSON record per agent under the workspace
// directory. Records are re-read per call; the files are the source of
// truth, not any in-memory copy.
type Store struct {
	paths *config.Paths
}

func NewStore(paths *config.Paths) *Store {
	return &Store{paths: paths}
}

// Save writes the agent record, creating the workspace directory on
// first use.
func (s *Store) Save(hash string, a *Agent) error {
	if err := s.paths.EnsureWorkspace(hash); err != nil {
		return fmt.Errorf("creating agents directory: %w", err)
	}
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.paths.AgentFile(hash, a.ID), append(data, '\n'), 0644)
}

// Load reads one agent record by exact id.
func (s *Store) Load(hash, id string) (*Agent, error) {
	data, err := os.ReadFile(s.paths.AgentFile(hash, id))
	if err != nil {
		return nil, err
	}
	var a Agent
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("parsing agent record %s: %w", id, err)
	}
	return &a, nil
}

// List returns every agent recorded for the workspace, oldest first.
func (s *Store) List(hash string) ([]*Agent, error) {
	entries, err := os.ReadDir(s.paths.AgentsDir(hash))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var agents []*Agent
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		a, err := s.Load(hash, strings.TrimSuffix(e.Name(), ".json"))
		if err != nil {
			continue
		}
		agents = append(agents, a)
	}

	sort.Slice(agents, func(i, j int) bool {
		if agents[i].StartedAt.Equal(agents[j].StartedAt) {
			return agents[i].ID < agents[j].ID
		}
		return agents[i].StartedAt.Before(agents[j].StartedAt)
	})
	return agents, nil
}

// Delete removes an agent record. Deleting a record that is already
// gone is a no-op, so concurrent harvests stay idempotent.
func (s *Store) Delete(hash, id string) error {
	if err := os.Remove(s.paths.AgentFile(hash, id)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// RunningCount counts agents recorded as running across every
// workspace. Used by the metrics gauge; staleness until the next
// reconcile is acceptable there.
func (s *Store) RunningCount() int {
	count := 0
	count += s.countRunning("")

	entries, err := os.ReadDir(s.paths.WorkspacesDir())
	if err != nil {
		return count
	}
	for _, e := range entries {
		if e.IsDir() {
			count += s.countRunning(e.Name())
		}
	}
	return count
}

func (s *Store) countRunning(hash string) int {
	agents, err := s.List(hash)
	if err != nil {
		return 0
	}
	count := 0
	for _, a := range agents {
		if a.Status == StatusRunning {
			count++
		}
	}
	return count
}

package runtime

import (
	"context"
	"sync"
)

// MockContainer is the state MockRuntime tracks per container.
type MockContainer struct {
	State ContainerState
	Logs  string
	Spec  LaunchSpec
}

// MockRuntime implements Runtime in memory for tests. All methods are
// safe for concurrent use so a test goroutine can flip container state
// while a wait loop polls.
type MockRuntime struct {
	mu sync.Mutex

	// Containers maps container name to its simulated state.
	Containers map[string]*MockContainer

	// Launched records every spec passed to Launch, in order.
	Launched []LaunchSpec

	// Removed records every name passed to Remove, in order.
	Removed []string

	// Errors injects a failure per operation: keys are "launch",
	// "inspect", "logs", "remove".
	Errors map[string]error
}

func NewMockRuntime() *MockRuntime {
	return &MockRuntime{
		Containers: make(map[string]*MockContainer),
		Errors:     make(map[string]error),
	}
}

func (m *MockRuntime) Name() string {
	return "mock"
}

func (m *MockRuntime) Launch(ctx context.Context, spec LaunchSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.Errors["launch"]; err != nil {
		return err
	}
	m.Launched = append(m.Launched, spec)
	m.Containers[spec.Name] = &MockContainer{
		State: ContainerState{Status: StatusRunning},
		Spec:  spec,
	}
	return nil
}

func (m *MockRuntime) Inspect(ctx context.Context, name string) (*ContainerState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.Errors["inspect"]; err != nil {
		return nil, err
	}
	c, ok := m.Containers[name]
	if !ok {
		return &ContainerState{Status: StatusNotFound}, nil
	}
	state := c.State
	return &state, nil
}

func (m *MockRuntime) Logs(ctx context.Context, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.Errors["logs"]; err != nil {
		return "", err
	}
	c, ok := m.Containers[name]
	if !ok {
		return "", nil
	}
	return c.Logs, nil
}

func (m *MockRuntime) Remove(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.Errors["remove"]; err != nil {
		return err
	}
	m.Removed = append(m.Removed, name)
	delete(m.Containers, name)
	return nil
}

// AddContainer seeds a container without going through Launch.
func (m *MockRuntime) AddContainer(name string, state ContainerState, logs string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Containers[name] = &MockContainer{State: state, Logs: logs}
}

// MarkExited flips a container to exited with the given code.
func (m *MockRuntime) MarkExited(name string, exitCode int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.Containers[name]; ok {
		c.State.Status = StatusExited
		c.State.ExitCode = exitCode
	}
}

// SetLogs replaces a container's accumulated logs.
func (m *MockRuntime) SetLogs(name string, logs string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.Containers[name]; ok {
		c.Logs = logs
	}
}

var _ Runtime = (*MockRuntime)(nil)

package system

import (
	"context"
	"fmt"
	"sync"
)

// MockExecutor implements CommandExecutor for testing. Responses are
// keyed by "name arg0" with a fallback on "name" alone, so a test can
// script `docker inspect` and `docker rm` separately.
type MockExecutor struct {
	mu sync.Mutex

	// Commands records every request in execution order.
	Commands []Request

	// Responses maps command patterns to canned results.
	Responses map[string]*Result

	// Default is returned when no pattern matches. Nil means an
	// empty successful result.
	Default *Result

	// Missing marks binaries LookPath should report as absent.
	Missing map[string]bool
}

// NewMockExecutor returns an empty mock where every command succeeds
// with no output.
func NewMockExecutor() *MockExecutor {
	return &MockExecutor{
		Responses: make(map[string]*Result),
		Missing:   make(map[string]bool),
	}
}

// AddResponse registers a canned result for a command pattern.
func (m *MockExecutor) AddResponse(pattern string, result *Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Responses[pattern] = result
}

func (m *MockExecutor) Run(ctx context.Context, req Request) *Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Commands = append(m.Commands, req)

	if len(req.Args) > 0 {
		if resp, ok := m.Responses[req.Name+" "+req.Args[0]]; ok {
			return resp
		}
	}
	if resp, ok := m.Responses[req.Name]; ok {
		return resp
	}
	if m.Default != nil {
		return m.Default
	}
	return &Result{}
}

func (m *MockExecutor) LookPath(name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Missing[name] {
		return "", fmt.Errorf("exec: %q: executable file not found in $PATH", name)
	}
	return "/usr/bin/" + name, nil
}

// LastCommand returns the most recently executed request.
func (m *MockExecutor) LastCommand() (Request, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Commands) == 0 {
		return Request{}, false
	}
	return m.Commands[len(m.Commands)-1], true
}

// CommandsFor returns every recorded request for the named binary.
func (m *MockExecutor) CommandsFor(name string) []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Request
	for _, c := range m.Commands {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// Reset clears recorded commands, keeping registered responses.
func (m *MockExecutor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Commands = nil
}

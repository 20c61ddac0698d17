// Package runtime drives a container engine (docker or podman) through
// its CLI to launch, inspect, and remove agent containers.
package runtime

import (
	"context"
	"fmt"

	"github.com/drawbridge-sh/drawbridge/internal/system"
)

// Status is the coarse container state the lifecycle manager acts on.
type Status string

const (
	StatusRunning  Status = "running"
	StatusExited   Status = "exited"
	StatusNotFound Status = "not-found"
)

// ContainerState is what Inspect reports about one container.
type ContainerState struct {
	Status     Status
	ExitCode   int
	StartedAt  string
	FinishedAt string
}

// Mount is a bind mount from host into container.
type Mount struct {
	Host      string
	Container string
	ReadOnly  bool
}

// LaunchSpec describes a detached container to start.
type LaunchSpec struct {
	Name    string
	Image   string
	CPUs    string
	Memory  string
	Network string
	Labels  map[string]string
	Mounts  []Mount
	// EnvFile is passed to the engine as --env-file; the file may be
	// deleted as soon as Launch returns.
	EnvFile string
	Env     map[string]string
}

// Runtime abstracts the container engine so tests can run against a
// mock instead of a real daemon.
type Runtime interface {
	// Name identifies the engine ("docker" or "podman").
	Name() string

	// Launch starts a detached container from the spec.
	Launch(ctx context.Context, spec LaunchSpec) error

	// Inspect reports the container's state. A container the engine
	// does not know yields StatusNotFound, not an error.
	Inspect(ctx context.Context, name string) (*ContainerState, error)

	// Logs returns the container's accumulated stdout and stderr.
	Logs(ctx context.Context, name string) (string, error)

	// Remove force-removes the container. Removing a container that
	// is already gone is a no-op.
	Remove(ctx context.Context, name string) error
}

// New selects a container engine. Preference "docker" or "podman" pins
// the engine; "auto" (or empty) tries podman first, then docker.
func New(preference string, exec system.CommandExecutor) (Runtime, error) {
	switch preference {
	case "docker", "podman":
		if _, err := exec.LookPath(preference); err != nil {
			return nil, fmt.Errorf("container runtime %s not found in PATH", preference)
		}
		return &DockerRuntime{Command: preference, exec: exec}, nil
	case "auto", "":
		if _, err := exec.LookPath("podman"); err == nil {
			return &DockerRuntime{Command: "podman", exec: exec}, nil
		}
		if _, err := exec.LookPath("docker"); err == nil {
			return &DockerRuntime{Command: "docker", exec: exec}, nil
		}
		return nil, fmt.Errorf("neither podman nor docker found in PATH")
	default:
		return nil, fmt.Errorf("unknown container runtime %q (want docker, podman, or auto)", preference)
	}
}

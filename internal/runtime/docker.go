package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/drawbridge-sh/drawbridge/internal/logging"
	"github.com/drawbridge-sh/drawbridge/internal/system"
)

// DockerRuntime drives docker or podman through its CLI. Both engines
// share the subcommand surface this package uses.
type DockerRuntime struct {
	// Command is the engine binary (docker or podman).
	Command string

	exec system.CommandExecutor
}

func (r *DockerRuntime) Name() string {
	return r.Command
}

// run executes an engine subcommand, turning a non-zero exit into an
// error carrying the engine's stderr.
func (r *DockerRuntime) run(ctx context.Context, args ...string) (string, error) {
	result := r.exec.Run(ctx, system.Request{Name: r.Command, Args: args})
	if !result.Success() {
		return "", fmt.Errorf("%s %s failed: %s", r.Command, args[0], strings.TrimSpace(result.Stderr))
	}
	return result.Stdout, nil
}

func (r *DockerRuntime) Launch(ctx context.Context, spec LaunchSpec) error {
	logging.Debug("launching container", "name", spec.Name, "image", spec.Image, "runtime", r.Command)

	args := []string{"run", "-d", "--name", spec.Name}
	if spec.CPUs != "" {
		args = append(args, "--cpus", spec.CPUs)
	}
	if spec.Memory != "" {
		args = append(args, "--memory", spec.Memory)
	}
	if spec.Network != "" {
		args = append(args, "--network", spec.Network)
	}
	for _, k := range sortedKeys(spec.Labels) {
		args = append(args, "--label", k+"="+spec.Labels[k])
	}
	for _, m := range spec.Mounts {
		vol := m.Host + ":" + m.Container
		if m.ReadOnly {
			vol += ":ro"
		}
		args = append(args, "-v", vol)
	}
	if spec.EnvFile != "" {
		args = append(args, "--env-file", spec.EnvFile)
	}
	for _, k := range sortedKeys(spec.Env) {
		args = append(args, "-e", k+"="+spec.Env[k])
	}
	args = append(args, spec.Image)

	_, err := r.run(ctx, args...)
	return err
}

// dockerInspect holds the fields of `docker inspect` output this
// package reads. Podman emits the same shape.
type dockerInspect struct {
	State struct {
		Status     string `json:"Status"`
		Running    bool   `json:"Running"`
		ExitCode   int    `json:"ExitCode"`
		StartedAt  string `json:"StartedAt"`
		FinishedAt string `json:"FinishedAt"`
	} `json:"State"`
}

func (r *DockerRuntime) Inspect(ctx context.Context, name string) (*ContainerState, error) {
	output, err := r.run(ctx, "inspect", name)
	if err != nil {
		if isNotFound(err) {
			return &ContainerState{Status: StatusNotFound}, nil
		}
		return nil, err
	}

	var inspects []dockerInspect
	if err := json.Unmarshal([]byte(output), &inspects); err != nil {
		return nil, fmt.Errorf("parsing %s inspect output: %w", r.Command, err)
	}
	if len(inspects) == 0 {
		return &ContainerState{Status: StatusNotFound}, nil
	}

	state := inspects[0].State
	cs := &ContainerState{
		ExitCode:   state.ExitCode,
		StartedAt:  state.StartedAt,
		FinishedAt: state.FinishedAt,
	}
	if state.Running {
		cs.Status = StatusRunning
	} else {
		cs.Status = StatusExited
	}
	return cs, nil
}

func (r *DockerRuntime) Logs(ctx context.Context, name string) (string, error) {
	// docker logs replays container stdout on stdout and container
	// stderr on stderr; callers want both.
	result := r.exec.Run(ctx, system.Request{Name: r.Command, Args: []string{"logs", name}})
	if !result.Success() {
		return "", fmt.Errorf("%s logs failed: %s", r.Command, strings.TrimSpace(result.Stderr))
	}
	return result.Stdout + result.Stderr, nil
}

func (r *DockerRuntime) Remove(ctx context.Context, name string) error {
	logging.Debug("removing container", "name", name, "runtime", r.Command)

	_, err := r.run(ctx, "rm", "-f", name)
	if err != nil && isNotFound(err) {
		return nil
	}
	return err
}

func isNotFound(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "No such container") ||
		strings.Contains(msg, "no such container") ||
		strings.Contains(msg, "No such object")
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Package system runs host commands and captures their results.
//
// Arguments are always passed as a vector, never through a shell, so
// sandbox-supplied strings cannot inject commands. Failures of any kind
// come back as a Result rather than an error: callers inspect ExitCode,
// they never need to distinguish a spawn error from a non-zero exit.
package system

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
)

// Request describes one command invocation.
type Request struct {
	Name string
	Args []string
	// Dir is the working directory; empty means the process default.
	Dir string
	// Env is overlaid onto the ambient environment.
	Env map[string]string
}

// Result carries everything a caller needs about a finished command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Success reports whether the command exited zero.
func (r *Result) Success() bool {
	return r.ExitCode == 0
}

// CommandExecutor abstracts process execution so tests can substitute
// canned results.
type CommandExecutor interface {
	// Run executes the request and always returns a Result. Spawn
	// errors (missing binary, permission denied) surface as
	// ExitCode 1 with the error text on stderr.
	Run(ctx context.Context, req Request) *Result

	// LookPath reports where a binary resolves on this host.
	LookPath(name string) (string, error)
}

type osExecutor struct{}

// NewExecutor returns the real host-process executor.
func NewExecutor() CommandExecutor {
	return &osExecutor{}
}

func (e *osExecutor) Run(ctx context.Context, req Request) *Result {
	cmd := exec.CommandContext(ctx, req.Name, req.Args...)
	cmd.Dir = req.Dir
	if len(req.Env) > 0 {
		env := os.Environ()
		for k, v := range req.Env {
			env = append(env, k+"="+v)
		}
		cmd.Env = env
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := &Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.ExitCode = 1
			if result.Stderr != "" {
				result.Stderr += "\n"
			}
			result.Stderr += err.Error()
		}
	}
	return result
}

func (e *osExecutor) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

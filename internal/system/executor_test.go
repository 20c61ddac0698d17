package system

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
)

func TestRun_CapturesStdout(t *testing.T) {
	exec := NewExecutor()

	result := exec.Run(context.Background(), Request{
		Name: "sh",
		Args: []string{"-c", "echo hello"},
	})

	if !result.Success() {
		t.Fatalf("ExitCode = %d, stderr = %q", result.ExitCode, result.Stderr)
	}
	if result.Stdout != "hello\n" {
		t.Errorf("Stdout = %q, want %q", result.Stdout, "hello\n")
	}
}

func TestRun_SeparatesStreams(t *testing.T) {
	exec := NewExecutor()

	result := exec.Run(context.Background(), Request{
		Name: "sh",
		Args: []string{"-c", "echo out; echo err >&2"},
	})

	if result.Stdout != "out\n" {
		t.Errorf("Stdout = %q, want %q", result.Stdout, "out\n")
	}
	if result.Stderr != "err\n" {
		t.Errorf("Stderr = %q, want %q", result.Stderr, "err\n")
	}
}

func TestRun_NonZeroExit(t *testing.T) {
	exec := NewExecutor()

	result := exec.Run(context.Background(), Request{
		Name: "sh",
		Args: []string{"-c", "exit 3"},
	})

	if result.Success() {
		t.Error("Success() should be false for exit 3")
	}
	if result.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", result.ExitCode)
	}
}

func TestRun_MissingBinaryIsResult(t *testing.T) {
	exec := NewExecutor()

	result := exec.Run(context.Background(), Request{
		Name: "drawbridge-no-such-binary-xyzzy",
	})

	if result.Success() {
		t.Error("missing binary should not succeed")
	}
	if result.ExitCode != 1 {
		t.Errorf("ExitCode = %d, want 1", result.ExitCode)
	}
	if result.Stderr == "" {
		t.Error("Stderr should describe the spawn error")
	}
}

func TestRun_WorkingDirectory(t *testing.T) {
	exec := NewExecutor()
	dir := t.TempDir()

	result := exec.Run(context.Background(), Request{
		Name: "pwd",
		Dir:  dir,
	})

	if !result.Success() {
		t.Fatalf("pwd failed: %s", result.Stderr)
	}
	// TempDir may sit behind a symlink (macOS /var -> /private/var)
	got, err := filepath.EvalSymlinks(strings.TrimSpace(result.Stdout))
	if err != nil {
		t.Fatal(err)
	}
	want, err := filepath.EvalSymlinks(dir)
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("pwd = %q, want %q", got, want)
	}
}

func TestRun_EnvOverlay(t *testing.T) {
	exec := NewExecutor()

	result := exec.Run(context.Background(), Request{
		Name: "sh",
		Args: []string{"-c", "echo $DRAWBRIDGE_TEST_VAR; echo $HOME"},
		Env:  map[string]string{"DRAWBRIDGE_TEST_VAR": "overlaid"},
	})

	lines := strings.Split(strings.TrimSpace(result.Stdout), "\n")
	if lines[0] != "overlaid" {
		t.Errorf("overlay var = %q, want overlaid", lines[0])
	}
	// Ambient environment still present
	if len(lines) < 2 || lines[1] == "" {
		t.Error("ambient HOME should survive the overlay")
	}
}

func TestLookPath(t *testing.T) {
	exec := NewExecutor()

	if _, err := exec.LookPath("sh"); err != nil {
		t.Errorf("LookPath(sh) error: %v", err)
	}
	if _, err := exec.LookPath("drawbridge-no-such-binary-xyzzy"); err == nil {
		t.Error("LookPath on missing binary should fail")
	}
}

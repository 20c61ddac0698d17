package workspace

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/drawbridge-sh/drawbridge/internal/config"
)

func TestHash(t *testing.T) {
	h := Hash("/home/alice/projects/api")

	if len(h) != HashLength {
		t.Errorf("Hash length = %d, want %d", len(h), HashLength)
	}
	if ValidateHash(h) != nil {
		t.Errorf("Hash output %q should validate", h)
	}
	if h != Hash("/home/alice/projects/api") {
		t.Error("Hash should be deterministic")
	}
	if h == Hash("/home/alice/projects/web") {
		t.Error("different paths should hash differently")
	}
}

func TestValidateHash(t *testing.T) {
	valid := []string{"abcd", "3f2c81d09ab4", strings.Repeat("a", 64)}
	for _, h := range valid {
		if err := ValidateHash(h); err != nil {
			t.Errorf("ValidateHash(%q) = %v, want nil", h, err)
		}
	}

	invalid := []string{"", "abc", "ABCDEF", "..", "3f2c/81d0", strings.Repeat("a", 65), "xyz123"}
	for _, h := range invalid {
		if err := ValidateHash(h); err == nil {
			t.Errorf("ValidateHash(%q) should fail", h)
		}
	}
}

func testRegistry(t *testing.T, mappings []Mapping) (*config.Paths, string) {
	t.Helper()
	paths := config.NewPaths(t.TempDir())
	hash := Hash("/home/alice/projects/api")
	if err := WriteMappings(paths, hash, mappings); err != nil {
		t.Fatalf("WriteMappings() error: %v", err)
	}
	return paths, hash
}

func TestLoad_MissingHashFailsClosed(t *testing.T) {
	paths := config.NewPaths(t.TempDir())

	_, err := Load(paths, "deadbeef0123")
	if !errors.Is(err, ErrNoMapping) {
		t.Fatalf("Load() error = %v, want ErrNoMapping", err)
	}
	if !strings.Contains(err.Error(), "deadbeef0123") {
		t.Errorf("error %q should name the hash", err)
	}
}

func TestLoad_AmbientAbsenceIsEmpty(t *testing.T) {
	paths := config.NewPaths(t.TempDir())

	reg, err := Load(paths, "")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !reg.Empty() {
		t.Error("missing ambient mappings should load as empty registry")
	}
	// Unmatched paths pass through
	if got, _ := reg.Resolve("/workspace/main.go"); got != "/workspace/main.go" {
		t.Errorf("Resolve on empty registry = %q, want pass-through", got)
	}
}

func TestLoad_MalformedJSON(t *testing.T) {
	paths := config.NewPaths(t.TempDir())
	if err := paths.EnsureWorkspace("abcd1234"); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(paths.MappingsFile("abcd1234"), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(paths, "abcd1234"); err == nil {
		t.Fatal("Load() should fail on malformed mappings")
	}
}

func TestResolve(t *testing.T) {
	hostRoot := t.TempDir()
	paths, hash := testRegistry(t, []Mapping{
		{Sandbox: "/workspace", Host: hostRoot},
		{Sandbox: "/deps", Host: "/home/alice/go/pkg/mod"},
	})

	reg, err := Load(paths, hash)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	tests := []struct {
		in   string
		want string
	}{
		{"/workspace", hostRoot},
		{"/workspace/main.go", filepath.Join(hostRoot, "main.go")},
		{"/workspace/src/deep/file.go", filepath.Join(hostRoot, "src/deep/file.go")},
		{"/deps", "/home/alice/go/pkg/mod"},
		{"/etc/passwd", "/etc/passwd"},
		{"/workspaces/other", "/workspaces/other"},
		{"relative/path", "relative/path"},
	}

	for _, tt := range tests {
		got, err := reg.Resolve(tt.in)
		if err != nil {
			t.Errorf("Resolve(%q) error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Resolve(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestResolve_ContainsTraversal(t *testing.T) {
	hostRoot := t.TempDir()
	paths, hash := testRegistry(t, []Mapping{
		{Sandbox: "/workspace", Host: hostRoot},
	})

	reg, err := Load(paths, hash)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	got, err := reg.Resolve("/workspace/../../../etc/passwd")
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if !strings.HasPrefix(got, hostRoot) {
		t.Errorf("Resolve() = %q, escaped mapped root %q", got, hostRoot)
	}
}

func TestTranslateArg(t *testing.T) {
	paths, hash := testRegistry(t, []Mapping{
		{Sandbox: "/workspace", Host: "/home/alice/projects/api"},
	})

	reg, err := Load(paths, hash)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	tests := []struct {
		in   string
		want string
	}{
		{"/workspace/main.tf", "/home/alice/projects/api/main.tf"},
		{"/workspace", "/home/alice/projects/api"},
		{"-var-file=/workspace/prod.tfvars", "-var-file=/home/alice/projects/api/prod.tfvars"},
		{"--chdir=/workspace/infra", "--chdir=/home/alice/projects/api/infra"},
		{"plan", "plan"},
		{"-out=plan.bin", "-out=plan.bin"},
		{"--workspace=staging", "--workspace=staging"},
		{"/etc/hosts", "/etc/hosts"},
	}

	for _, tt := range tests {
		if got := reg.TranslateArg(tt.in); got != tt.want {
			t.Errorf("TranslateArg(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRoot(t *testing.T) {
	paths, hash := testRegistry(t, []Mapping{
		{Sandbox: "/workspace", Host: "/home/alice/projects/api"},
		{Sandbox: "/deps", Host: "/home/alice/go/pkg/mod"},
	})

	reg, err := Load(paths, hash)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	root, err := reg.Root()
	if err != nil {
		t.Fatalf("Root() error: %v", err)
	}
	if root != "/home/alice/projects/api" {
		t.Errorf("Root() = %q, want first mapping's host", root)
	}

	if _, err := (&Registry{}).Root(); err == nil {
		t.Error("Root() on empty registry should fail")
	}
}

func TestRegisteredWorkspaces(t *testing.T) {
	paths := config.NewPaths(t.TempDir())

	if err := WriteMappings(paths, "aaaa00001111", []Mapping{{Sandbox: "/workspace", Host: "/tmp/a"}}); err != nil {
		t.Fatal(err)
	}
	if err := WriteMappings(paths, "bbbb22223333", []Mapping{{Sandbox: "/workspace", Host: "/tmp/b"}}); err != nil {
		t.Fatal(err)
	}
	// A workspace dir without a mappings file does not count
	if err := paths.EnsureWorkspace("cccc44445555"); err != nil {
		t.Fatal(err)
	}

	hashes, err := RegisteredWorkspaces(paths)
	if err != nil {
		t.Fatalf("RegisteredWorkspaces() error: %v", err)
	}
	if len(hashes) != 2 {
		t.Fatalf("got %d workspaces, want 2: %v", len(hashes), hashes)
	}

	// Empty data root is fine
	empty := config.NewPaths(filepath.Join(t.TempDir(), "nothing"))
	hashes, err = RegisteredWorkspaces(empty)
	if err != nil || hashes != nil {
		t.Errorf("empty data root: got %v, %v", hashes, err)
	}
}

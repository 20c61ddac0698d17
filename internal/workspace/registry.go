package workspace

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"

	"github.com/drawbridge-sh/drawbridge/internal/config"
)

// ErrNoMapping is returned by Load when a request names a workspace hash
// that has no mappings file on disk. The session that registered the
// workspace has likely ended.
var ErrNoMapping = errors.New("no path mapping for workspace")

// Registry holds the sandbox-to-host path mappings for one workspace.
// Registries are cheap and short-lived: handlers load a fresh one per
// request so that edits to the mappings file take effect immediately.
type Registry struct {
	mappings []Mapping
}

// Load reads the mappings for the given workspace hash. An empty hash
// loads the ambient (hash-less) mappings file; its absence is not an
// error and yields an empty registry. A named hash whose file is
// missing fails closed with ErrNoMapping.
func Load(paths *config.Paths, hash string) (*Registry, error) {
	data, err := os.ReadFile(paths.MappingsFile(hash))
	if err != nil {
		if os.IsNotExist(err) {
			if hash == "" {
				return &Registry{}, nil
			}
			return nil, fmt.Errorf("%w %s", ErrNoMapping, hash)
		}
		return nil, fmt.Errorf("reading mappings for %q: %w", hash, err)
	}

	var mappings []Mapping
	if err := json.Unmarshal(data, &mappings); err != nil {
		return nil, fmt.Errorf("parsing mappings for %q: %w", hash, err)
	}
	return &Registry{mappings: mappings}, nil
}

// WriteMappings persists the mappings for a workspace hash, creating the
// workspace directory if needed.
func WriteMappings(paths *config.Paths, hash string, mappings []Mapping) error {
	if hash != "" {
		if err := paths.EnsureWorkspace(hash); err != nil {
			return err
		}
	} else if err := paths.EnsureDataRoot(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(mappings, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(paths.MappingsFile(hash), append(data, '\n'), 0644)
}

// Mappings returns the loaded mappings in file order.
func (r *Registry) Mappings() []Mapping {
	return r.mappings
}

// Empty reports whether the registry has no mappings at all.
func (r *Registry) Empty() bool {
	return len(r.mappings) == 0
}

// Root returns the host directory of the first mapping, which by
// convention is the workspace root. Agents are mounted from here.
func (r *Registry) Root() (string, error) {
	if len(r.mappings) == 0 {
		return "", errors.New("workspace has no path mappings")
	}
	return r.mappings[0].Host, nil
}

// Resolve translates a sandbox path to its host equivalent. Exact
// matches map straight to the host directory. Paths underneath a mapped
// prefix splice the remainder onto the host directory, with the
// remainder contained inside it so a crafted ../ cannot escape. Paths
// matching no mapping pass through unchanged.
func (r *Registry) Resolve(sandboxPath string) (string, error) {
	for _, m := range r.mappings {
		if sandboxPath == m.Sandbox {
			return m.Host, nil
		}
		rest, ok := strings.CutPrefix(sandboxPath, m.Sandbox+"/")
		if !ok {
			continue
		}
		host, err := securejoin.SecureJoin(m.Host, rest)
		if err != nil {
			return "", fmt.Errorf("resolving %q: %w", sandboxPath, err)
		}
		return host, nil
	}
	return sandboxPath, nil
}

// TranslateArg rewrites a command argument if it is, or contains, a
// sandbox path. Plain arguments are matched whole; KEY=VALUE arguments
// have only the value half considered. Arguments that do not start with
// a mapped prefix are returned unchanged, so flags and free text are
// never mangled.
func (r *Registry) TranslateArg(arg string) string {
	if translated, ok := r.translate(arg); ok {
		return translated
	}
	if key, value, found := strings.Cut(arg, "="); found {
		if translated, ok := r.translate(value); ok {
			return key + "=" + translated
		}
	}
	return arg
}

// translate attempts a path rewrite, reporting whether any mapping
// prefix actually matched.
func (r *Registry) translate(s string) (string, bool) {
	for _, m := range r.mappings {
		if s == m.Sandbox {
			return m.Host, true
		}
		rest, ok := strings.CutPrefix(s, m.Sandbox+"/")
		if !ok {
			continue
		}
		host, err := securejoin.SecureJoin(m.Host, rest)
		if err != nil {
			return "", false
		}
		return host, true
	}
	return "", false
}

// RegisteredWorkspaces lists the hashes that currently have a workspace
// directory under the data root.
func RegisteredWorkspaces(paths *config.Paths) ([]string, error) {
	entries, err := os.ReadDir(paths.WorkspacesDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var hashes []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if ValidateHash(e.Name()) != nil {
			continue
		}
		if _, err := os.Stat(filepath.Join(paths.WorkspaceDir(e.Name()), "mappings.json")); err != nil {
			continue
		}
		hashes = append(hashes, e.Name())
	}
	return hashes, nil
}

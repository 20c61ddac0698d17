// Package health runs startup preflight checks over the gateway's
// external dependencies: the container engine, the data root, the token
// file, and the MCP server table.
package health

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/drawbridge-sh/drawbridge/internal/config"
	"github.com/drawbridge-sh/drawbridge/internal/mcp"
	"github.com/drawbridge-sh/drawbridge/internal/system"
)

// CheckResult is the outcome of one preflight check.
type CheckResult struct {
	Name   string
	OK     bool
	Detail string
}

// RunChecks performs every preflight check and returns all results,
// passing and failing alike. Callers decide which failures are fatal;
// only an unreadable token actually prevents the gateway from serving.
func RunChecks(cfg *config.Config, paths *config.Paths, exec system.CommandExecutor) []CheckResult {
	return []CheckResult{
		checkRuntime(cfg, exec),
		checkDataRoot(paths),
		checkTokenFile(cfg),
		checkMCPConfig(paths),
	}
}

func checkRuntime(cfg *config.Config, exec system.CommandExecutor) CheckResult {
	result := CheckResult{Name: "container-runtime"}

	preference := cfg.Agents.Runtime
	candidates := []string{preference}
	if preference == "auto" || preference == "" {
		candidates = []string{"podman", "docker"}
	}
	for _, name := range candidates {
		if path, err := exec.LookPath(name); err == nil {
			result.OK = true
			result.Detail = path
			return result
		}
	}
	result.Detail = fmt.Sprintf("no container runtime found (looked for %v); agent spawning will fail", candidates)
	return result
}

func checkDataRoot(paths *config.Paths) CheckResult {
	result := CheckResult{Name: "data-root"}

	if err := paths.EnsureDataRoot(); err != nil {
		result.Detail = fmt.Sprintf("cannot create data root: %v", err)
		return result
	}
	probe := filepath.Join(paths.DataRoot, ".write-probe")
	if err := os.WriteFile(probe, []byte("ok"), 0644); err != nil {
		result.Detail = fmt.Sprintf("data root not writable: %v", err)
		return result
	}
	os.Remove(probe)

	result.OK = true
	result.Detail = paths.DataRoot
	return result
}

func checkTokenFile(cfg *config.Config) CheckResult {
	result := CheckResult{Name: "token-file"}

	info, err := os.Stat(cfg.Gateway.TokenFile)
	if err != nil {
		result.Detail = fmt.Sprintf("token file missing: %s (generate one with `drawbridge token generate`)", cfg.Gateway.TokenFile)
		return result
	}
	if info.Mode().Perm()&0077 != 0 {
		result.Detail = fmt.Sprintf("token file %s is readable by other users (mode %o)", cfg.Gateway.TokenFile, info.Mode().Perm())
		return result
	}

	result.OK = true
	result.Detail = cfg.Gateway.TokenFile
	return result
}

func checkMCPConfig(paths *config.Paths) CheckResult {
	result := CheckResult{Name: "mcp-config"}

	path := paths.MCPServersFile()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		result.OK = true
		result.Detail = "not configured"
		return result
	}

	servers, err := mcp.LoadConfig(path)
	if err != nil {
		result.Detail = err.Error()
		return result
	}
	result.OK = true
	result.Detail = fmt.Sprintf("%d server(s)", len(servers))
	return result
}

// AllOK reports whether every check passed.
func AllOK(results []CheckResult) bool {
	for _, r := range results {
		if !r.OK {
			return false
		}
	}
	return true
}

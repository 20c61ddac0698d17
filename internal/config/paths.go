package config

import (
	"os"
	"path/filepath"
)

// Paths derives the on-disk state layout from the data root. All persisted
// gateway state lives under one directory so a workspace (and everything it
// owns) can be located from its hash alone.
type Paths struct {
	DataRoot string
}

// NewPaths creates a Paths rooted at dataRoot.
func NewPaths(dataRoot string) *Paths {
	return &Paths{DataRoot: dataRoot}
}

// MCPServersFile is the upstream endpoint configuration, re-read per request.
func (p *Paths) MCPServersFile() string {
	return filepath.Join(p.DataRoot, "mcp-servers.yaml")
}

// WorkspacesDir holds one subdirectory per registered workspace hash.
func (p *Paths) WorkspacesDir() string {
	return filepath.Join(p.DataRoot, "workspaces")
}

// WorkspaceDir is the state directory for one workspace.
func (p *Paths) WorkspaceDir(hash string) string {
	return filepath.Join(p.WorkspacesDir(), hash)
}

// MappingsFile is the path-mapping table for a workspace. An empty hash
// selects the ambient single-session mapping at the data root.
func (p *Paths) MappingsFile(hash string) string {
	if hash == "" {
		return filepath.Join(p.DataRoot, "mappings.json")
	}
	return filepath.Join(p.WorkspaceDir(hash), "mappings.json")
}

// AuditLogFile is the append-only event log for a workspace. An empty hash
// selects the ambient log at the data root.
func (p *Paths) AuditLogFile(hash string) string {
	if hash == "" {
		return filepath.Join(p.DataRoot, "audit.jsonl")
	}
	return filepath.Join(p.WorkspaceDir(hash), "audit.jsonl")
}

// AgentsDir holds one metadata record per live agent in a workspace.
func (p *Paths) AgentsDir(hash string) string {
	if hash == "" {
		return filepath.Join(p.DataRoot, "agents")
	}
	return filepath.Join(p.WorkspaceDir(hash), "agents")
}

// AgentFile is the metadata record for one agent.
func (p *Paths) AgentFile(hash, id string) string {
	return filepath.Join(p.AgentsDir(hash), id+".json")
}

// EnsureDataRoot creates the data root if it does not exist.
func (p *Paths) EnsureDataRoot() error {
	return os.MkdirAll(p.DataRoot, 0755)
}

// EnsureWorkspace creates the state directories for a workspace.
func (p *Paths) EnsureWorkspace(hash string) error {
	return os.MkdirAll(p.AgentsDir(hash), 0755)
}

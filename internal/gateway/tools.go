package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"

	"github.com/drawbridge-sh/drawbridge/internal/audit"
	"github.com/drawbridge-sh/drawbridge/internal/errors"
	"github.com/drawbridge-sh/drawbridge/internal/policy"
	"github.com/drawbridge-sh/drawbridge/internal/secrets"
	"github.com/drawbridge-sh/drawbridge/internal/system"
	"github.com/drawbridge-sh/drawbridge/internal/workspace"
)

// toolRequest is the body of every tool endpoint. Cwd and paths inside
// args are sandbox-side; the gateway rewrites them before execution.
type toolRequest struct {
	Args          []string `json:"args"`
	Cwd           string   `json:"cwd"`
	WorkspaceHash string   `json:"workspace_hash"`
}

func decodeToolRequest(r *http.Request) (*toolRequest, error) {
	var req toolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, errors.Malformed("invalid request body: " + err.Error())
	}
	if req.WorkspaceHash != "" {
		if err := workspace.ValidateHash(req.WorkspaceHash); err != nil {
			return nil, errors.Malformed(err.Error())
		}
	}
	return &req, nil
}

// loadRegistry loads the mapping table for a hash. A missing table under
// an explicit hash means the session that registered it has ended.
func (g *Gateway) loadRegistry(hash string) (*workspace.Registry, error) {
	reg, err := workspace.Load(g.paths, hash)
	if err != nil {
		if errors.Is(err, workspace.ErrNoMapping) {
			return nil, errors.StaleSession(hash)
		}
		return nil, errors.Internal("cannot load workspace mappings", err)
	}
	return reg, nil
}

// iacTools run through the read-only policy engine and get their
// arguments path-translated. The VCS tools skip both: their arguments
// are the user's literal git/gh invocation.
var iacTools = map[string]bool{"terraform": true, "kubectl": true, "aws": true}

// handleTool returns the handler for one tool endpoint. The pipeline is
// decode, policy, translate, pre-scan, execute, post-scan, respond, with
// audit events at every decision point.
func (g *Gateway) handleTool(tool string) http.HandlerFunc {
	iac := iacTools[tool]
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := decodeToolRequest(r)
		if err != nil {
			writeError(w, err)
			return
		}
		if tool == "git" && req.Cwd == "" {
			writeError(w, errors.Malformed("git requires a cwd"))
			return
		}

		reg, err := g.loadRegistry(req.WorkspaceHash)
		if err != nil {
			writeError(w, err)
			return
		}

		hash := req.WorkspaceHash
		args := req.Args

		if iac {
			if d := policy.Validate(tool, args); !d.Allowed {
				g.audit.Emit(hash, audit.EventToolBlocked, map[string]any{
					"tool":    tool,
					"command": commandLine(tool, args),
					"reason":  d.Reason,
					"kind":    "policy",
				})
				g.metrics.toolExecutions.WithLabelValues(tool, outcomeBlocked).Inc()
				writeJSON(w, http.StatusOK, blockedResult(d.Reason))
				return
			}

			translated := make([]string, len(args))
			for i, a := range args {
				translated[i] = reg.TranslateArg(a)
			}
			args = translated
		}

		cwd, err := g.resolveCwd(reg, req.Cwd, iac)
		if err != nil {
			writeError(w, err)
			return
		}

		if hits := secrets.Scan(strings.Join(args, " ")); len(hits) > 0 {
			patterns := secrets.PatternNames(hits)
			g.metrics.recordSecretHits(patterns)
			if g.cfg.Gateway.BlockSecrets {
				reason := "secret material detected in arguments: " + strings.Join(patterns, ", ")
				g.audit.Emit(hash, audit.EventToolBlocked, map[string]any{
					"tool":    tool,
					"command": commandLine(tool, args),
					"reason":  reason,
					"kind":    "secret",
				})
				g.metrics.toolExecutions.WithLabelValues(tool, outcomeBlocked).Inc()
				writeJSON(w, http.StatusOK, blockedResult(reason))
				return
			}
			g.audit.Emit(hash, audit.EventSecretWarning, map[string]any{
				"tool":     tool,
				"patterns": patterns,
				"source":   "args",
			})
		}

		var env map[string]string
		if tool == "gh" || tool == "git" {
			if tok := g.creds.Get(r.Context()); tok != "" {
				env = map[string]string{"GH_TOKEN": tok, "GITHUB_TOKEN": tok}
			}
		}

		// context.Background(): a dropped client connection must not
		// kill a command that is already mutating remote state.
		start := time.Now()
		result := g.executor.Run(context.Background(), system.Request{
			Name: tool,
			Args: args,
			Dir:  cwd,
			Env:  env,
		})
		duration := time.Since(start)

		fields := map[string]any{
			"tool":        tool,
			"command":     commandLine(tool, args),
			"exit_code":   result.ExitCode,
			"duration_ms": duration.Milliseconds(),
		}
		if cwd != "" {
			fields["cwd"] = cwd
		}
		g.audit.Emit(hash, audit.EventToolExecute, fields)

		if hits := secrets.Scan(result.Stdout + "\n" + result.Stderr); len(hits) > 0 {
			patterns := secrets.PatternNames(hits)
			g.metrics.recordSecretHits(patterns)
			g.audit.Emit(hash, audit.EventSecretWarning, map[string]any{
				"tool":     tool,
				"patterns": patterns,
				"source":   "output",
			})
			if g.cfg.Gateway.BlockSecrets {
				g.metrics.toolExecutions.WithLabelValues(tool, outcomeBlocked).Inc()
				writeJSON(w, http.StatusOK, blockedResult(
					"secret material detected in command output: "+strings.Join(patterns, ", ")))
				return
			}
		}

		outcome := outcomeOK
		if !result.Success() {
			outcome = outcomeFailed
		}
		g.metrics.toolExecutions.WithLabelValues(tool, outcome).Inc()

		writeJSON(w, http.StatusOK, ToolResult{
			Success:  result.Success(),
			Stdout:   result.Stdout,
			Stderr:   result.Stderr,
			ExitCode: result.ExitCode,
		})
	}
}

// resolveCwd translates the request cwd to its host path. IaC tools with
// no cwd default to the workspace root so relative module and manifest
// paths resolve; without a mapping they fall back to the gateway's own
// cwd.
func (g *Gateway) resolveCwd(reg *workspace.Registry, cwd string, iac bool) (string, error) {
	if cwd == "" {
		if iac {
			if root, err := reg.Root(); err == nil {
				return root, nil
			}
		}
		return "", nil
	}
	resolved, err := reg.Resolve(cwd)
	if err != nil {
		return "", errors.Malformed("cannot resolve cwd: " + err.Error())
	}
	return resolved, nil
}

// commandLine renders the audited command the way a shell user would
// type it.
func commandLine(tool string, args []string) string {
	return shellquote.Join(append([]string{tool}, args...)...)
}

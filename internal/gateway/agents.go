package gateway

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/drawbridge-sh/drawbridge/internal/agents"
	"github.com/drawbridge-sh/drawbridge/internal/errors"
	"github.com/drawbridge-sh/drawbridge/internal/workspace"
)

// agentHash extracts and validates the workspace hash from the query
// string. Agents always belong to a workspace; there is no ambient agent
// surface over HTTP.
func agentHash(r *http.Request) (string, error) {
	hash := r.URL.Query().Get("workspace_hash")
	if hash == "" {
		return "", errors.Malformed("workspace_hash is required")
	}
	if err := workspace.ValidateHash(hash); err != nil {
		return "", errors.Malformed(err.Error())
	}
	return hash, nil
}

type spawnBody struct {
	Prompt        string   `json:"prompt"`
	WorkspaceHash string   `json:"workspace_hash"`
	Name          string   `json:"name"`
	Tools         []string `json:"tools"`
	APIKeyEnv     string   `json:"api_key_env"`
	Runtime       string   `json:"runtime"`
}

func (g *Gateway) handleAgentSpawn(w http.ResponseWriter, r *http.Request) {
	var body spawnBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, errors.Malformed("invalid request body: "+err.Error()))
		return
	}
	if body.Prompt == "" {
		writeError(w, errors.Malformed("prompt is required"))
		return
	}
	if body.WorkspaceHash == "" {
		writeError(w, errors.Malformed("workspace_hash is required"))
		return
	}
	if err := workspace.ValidateHash(body.WorkspaceHash); err != nil {
		writeError(w, errors.Malformed(err.Error()))
		return
	}

	reg, err := g.loadRegistry(body.WorkspaceHash)
	if err != nil {
		writeError(w, err)
		return
	}
	root, err := reg.Root()
	if err != nil {
		writeError(w, errors.Malformed("workspace has no registered mappings"))
		return
	}

	agent, err := g.agents.Spawn(context.Background(), agents.SpawnRequest{
		Prompt:    body.Prompt,
		Hash:      body.WorkspaceHash,
		Root:      root,
		Name:      body.Name,
		Tools:     body.Tools,
		APIKeyEnv: body.APIKeyEnv,
		Runtime:   body.Runtime,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"id":      agent.ID,
		"name":    agent.Name,
		"status":  agent.Status,
	})
}

func (g *Gateway) handleAgentList(w http.ResponseWriter, r *http.Request) {
	hash, err := agentHash(r)
	if err != nil {
		writeError(w, err)
		return
	}

	list, err := g.agents.List(context.Background(), hash)
	if err != nil {
		writeError(w, err)
		return
	}
	if list == nil {
		list = []*agents.Agent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "agents": list})
}

func (g *Gateway) handleAgentLog(w http.ResponseWriter, r *http.Request) {
	hash, err := agentHash(r)
	if err != nil {
		writeError(w, err)
		return
	}

	agent, logs, err := g.agents.Logs(context.Background(), hash, r.PathValue("ref"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"id":      agent.ID,
		"name":    agent.Name,
		"status":  agent.Status,
		"logs":    logs,
	})
}

func (g *Gateway) handleAgentKill(w http.ResponseWriter, r *http.Request) {
	var body struct {
		WorkspaceHash string `json:"workspace_hash"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, errors.Malformed("invalid request body: "+err.Error()))
		return
	}
	if body.WorkspaceHash == "" {
		writeError(w, errors.Malformed("workspace_hash is required"))
		return
	}
	if err := workspace.ValidateHash(body.WorkspaceHash); err != nil {
		writeError(w, errors.Malformed(err.Error()))
		return
	}

	killed, err := g.agents.Kill(context.Background(), body.WorkspaceHash, r.PathValue("ref"))
	if err != nil {
		writeError(w, err)
		return
	}
	if killed == nil {
		killed = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "killed": killed})
}

func (g *Gateway) handleAgentResults(w http.ResponseWriter, r *http.Request) {
	hash, err := agentHash(r)
	if err != nil {
		writeError(w, err)
		return
	}

	results, err := g.agents.Results(context.Background(), hash)
	if err != nil {
		writeError(w, err)
		return
	}
	if results == nil {
		results = []agents.HarvestResult{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "results": results})
}

func (g *Gateway) handleAgentWait(w http.ResponseWriter, r *http.Request) {
	hash, err := agentHash(r)
	if err != nil {
		writeError(w, err)
		return
	}

	// context.Background(): the wait survives a dropped client; the
	// only ceiling is the manager's own timeout.
	res, err := g.agents.Wait(context.Background(), hash, r.PathValue("ref"))
	if err != nil {
		writeError(w, err)
		return
	}

	if res.TimedOut {
		writeJSON(w, http.StatusOK, map[string]any{
			"success": false,
			"timeout": true,
			"id":      res.Agent.ID,
			"status":  agents.StatusRunning,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"id":        res.Agent.ID,
		"status":    res.Agent.Status,
		"exit_code": res.Agent.ExitCode,
		"logs":      res.Logs,
	})
}

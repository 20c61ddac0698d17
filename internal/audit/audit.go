// Package audit appends structured gateway events to per-workspace
// JSON Lines files.
//
// Emission is strictly best-effort: a full disk or unwritable data root
// must never fail the request that triggered the event, so every error
// is logged at debug level and swallowed.
package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/drawbridge-sh/drawbridge/internal/config"
	"github.com/drawbridge-sh/drawbridge/internal/logging"
)

// Event types emitted by the gateway.
const (
	EventToolExecute   = "tool.execute"
	EventToolBlocked   = "tool.blocked"
	EventSecretWarning = "secret.warning"
	EventAgentSpawn    = "agent.spawn"
	EventAgentKill     = "agent.kill"
	EventAgentHarvest  = "agent.harvest"
	EventMCPForward    = "mcp.forward"
)

const (
	// defaultMaxSize rotates an audit log once it passes 50 MiB.
	defaultMaxSize = 50 * 1024 * 1024
	// keepFiles is how many rotated logs are retained.
	keepFiles = 3
)

// Event is one parsed audit record. Fields carries everything beyond
// the timestamp and type.
type Event struct {
	TS     time.Time
	Type   string
	Fields map[string]any
}

// Emitter appends events to the audit log of a workspace (or the
// ambient log when the workspace hash is empty).
type Emitter struct {
	paths   *config.Paths
	maxSize int64
	mu      sync.Mutex
}

// NewEmitter returns an emitter writing under the given data root.
func NewEmitter(paths *config.Paths) *Emitter {
	return &Emitter{paths: paths, maxSize: defaultMaxSize}
}

// Emit appends one event. It never returns an error: audit failures
// must not break request handling.
func (e *Emitter) Emit(hash, eventType string, fields map[string]any) {
	record := make(map[string]any, len(fields)+2)
	for k, v := range fields {
		record[k] = v
	}
	record["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	record["type"] = eventType

	data, err := json.Marshal(record)
	if err != nil {
		logging.Debug("audit marshal failed", "type", eventType, "error", err)
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	path := e.paths.AuditLogFile(hash)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		logging.Debug("audit mkdir failed", "path", path, "error", err)
		return
	}

	e.rotateIfNeeded(path)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		logging.Debug("audit open failed", "path", path, "error", err)
		return
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		logging.Debug("audit write failed", "path", path, "error", err)
	}
}

// rotateIfNeeded shifts path -> path.1 -> path.2 -> path.3 once the
// live log exceeds maxSize. The oldest file falls off the end.
func (e *Emitter) rotateIfNeeded(path string) {
	info, err := os.Stat(path)
	if err != nil || info.Size() < e.maxSize {
		return
	}

	for i := keepFiles - 1; i >= 1; i-- {
		os.Rename(fmt.Sprintf("%s.%d", path, i), fmt.Sprintf("%s.%d", path, i+1))
	}
	if err := os.Rename(path, path+".1"); err != nil {
		logging.Debug("audit rotate failed", "path", path, "error", err)
	}
}

// Events reads a workspace's audit log in append order, skipping
// malformed lines.
func (e *Emitter) Events(hash string) ([]Event, error) {
	f, err := os.Open(e.paths.AuditLogFile(hash))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening audit log: %w", err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var raw map[string]any
		if err := json.Unmarshal(line, &raw); err != nil {
			continue
		}
		events = append(events, parseEvent(raw))
	}
	if err := scanner.Err(); err != nil {
		return events, fmt.Errorf("reading audit log: %w", err)
	}
	return events, nil
}

func parseEvent(raw map[string]any) Event {
	ev := Event{Fields: raw}
	if s, ok := raw["ts"].(string); ok {
		if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
			ev.TS = ts
		}
		delete(raw, "ts")
	}
	if s, ok := raw["type"].(string); ok {
		ev.Type = s
		delete(raw, "type")
	}
	return ev
}

// Package mcp forwards requests from the sandbox to configured MCP
// servers, injecting auth headers the sandbox never sees.
//
// Servers are declared in a YAML file keyed by name:
//
//	servers:
//	  linear:
//	    url: https://mcp.linear.app/mcp
//	    headers:
//	      Authorization: "Bearer ${LINEAR_API_KEY}"
//
// The file is re-read on every request, so adding a server never needs
// a gateway restart. ${VAR} references in header values expand against
// the gateway's environment at load time.
package mcp

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/drawbridge-sh/drawbridge/internal/audit"
	"github.com/drawbridge-sh/drawbridge/internal/logging"
)

// ServerConfig is one upstream MCP endpoint.
type ServerConfig struct {
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`
}

type serversFile struct {
	Servers map[string]ServerConfig `yaml:"servers"`
}

// LoadConfig reads the MCP server table. A missing file is an empty
// table, not an error.
func LoadConfig(path string) (map[string]ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]ServerConfig{}, nil
		}
		return nil, fmt.Errorf("reading MCP config: %w", err)
	}

	var file serversFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing MCP config: %w", err)
	}

	servers := file.Servers
	if servers == nil {
		servers = map[string]ServerConfig{}
	}
	for name, sc := range servers {
		for k, v := range sc.Headers {
			sc.Headers[k] = os.ExpandEnv(v)
		}
		servers[name] = sc
	}
	return servers, nil
}

// passthroughHeaders are the only inbound headers copied upstream.
// Mcp-Session-Id travels both directions; the MCP protocol needs it for
// stateful sessions. Everything else from the sandbox is dropped.
var passthroughHeaders = []string{"Content-Type", "Accept", "Mcp-Session-Id"}

// Forwarder proxies one request/response per call to a named upstream.
type Forwarder struct {
	// ConfigPath locates the YAML server table.
	ConfigPath string

	Audit  *audit.Emitter
	Client *http.Client
}

// NewForwarder returns a forwarder with an untimed client: MCP
// responses may stream for as long as the upstream keeps talking.
func NewForwarder(configPath string, emitter *audit.Emitter) *Forwarder {
	return &Forwarder{
		ConfigPath: configPath,
		Audit:      emitter,
		Client:     &http.Client{Timeout: 0},
	}
}

// Forward proxies the request to the named server, streaming the
// response back chunk by chunk. Unknown names get 404, upstream
// failures 502, both as JSON envelopes.
func (f *Forwarder) Forward(w http.ResponseWriter, r *http.Request, name, subpath string) {
	start := time.Now()

	servers, err := LoadConfig(f.ConfigPath)
	if err != nil {
		logging.Warn("MCP config unreadable", "error", err)
		writeError(w, http.StatusInternalServerError, "MCP configuration unreadable")
		return
	}

	server, ok := servers[name]
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown MCP server %q", name))
		return
	}

	target := server.URL
	if subpath != "" {
		target = singleJoiningSlash(server.URL, subpath)
	}
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}

	req, err := http.NewRequestWithContext(r.Context(), r.Method, target, r.Body)
	if err != nil {
		writeError(w, http.StatusBadGateway, fmt.Sprintf("building upstream request: %v", err))
		return
	}

	for _, h := range passthroughHeaders {
		if v := r.Header.Get(h); v != "" {
			req.Header.Set(h, v)
		}
	}
	// Configured auth headers win over anything the sandbox sent
	for k, v := range server.Headers {
		req.Header.Set(k, v)
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		logging.Warn("MCP upstream unreachable", "server", name, "error", err)
		writeError(w, http.StatusBadGateway, fmt.Sprintf("upstream %s unreachable", name))
		return
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	if sid := resp.Header.Get("Mcp-Session-Id"); sid != "" {
		w.Header().Set("Mcp-Session-Id", sid)
	}
	w.WriteHeader(resp.StatusCode)

	f.stream(w, resp.Body)

	f.Audit.Emit("", audit.EventMCPForward, map[string]any{
		"server":      name,
		"path":        subpath,
		"status":      resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	})
}

// stream pumps the upstream body to the client in small chunks,
// flushing after each so event-stream responses arrive as they are
// produced instead of when the connection closes.
func (f *Forwarder) stream(w http.ResponseWriter, body io.Reader) {
	flusher, canFlush := w.(http.Flusher)

	buf := make([]byte, 4096)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				// Client went away; drain no further
				return
			}
			if canFlush {
				flusher.Flush()
			}
		}
		if err != nil {
			if err != io.EOF {
				logging.Debug("MCP stream ended", "error", err)
			}
			return
		}
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, "{\"success\": false, \"error\": %q}\n", message)
}

func singleJoiningSlash(a, b string) string {
	aSlash := strings.HasSuffix(a, "/")
	bSlash := strings.HasPrefix(b, "/")
	switch {
	case aSlash && bSlash:
		return a + b[1:]
	case !aSlash && !bSlash:
		return a + "/" + b
	}
	return a + b
}

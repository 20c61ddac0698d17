// Package config provides configuration types and loading for drawbridge.
//
// # Resolution Order
//
// Gateway configuration is resolved in four layers, later layers winning:
//
//  1. Built-in defaults (Default)
//  2. TOML config file (~/.config/drawbridge/config.toml, or --config)
//  3. DRAWBRIDGE_* environment variables
//  4. Command-line flags (applied by the serve command)
//
// # Config File
//
// The file has two sections:
//
//	[gateway]
//	port = 8642
//	token_file = "/home/me/.local/share/drawbridge/token"
//	data_root = "/home/me/.local/share/drawbridge"
//	block_secrets = true
//	rate_limit = 120
//
//	[agents]
//	image = "drawbridge-agent:latest"
//	cpus = "2"
//	memory = "2g"
//	network = "drawbridge-net"
//
// # On-Disk Layout
//
// Paths derives the per-workspace layout from the data root:
//
//	<dataRoot>/
//	  token                      # shared secret (0600)
//	  mcp-servers.yaml           # upstream endpoint config
//	  mappings.json              # ambient single-session mapping
//	  audit.jsonl                # events not tied to a workspace
//	  workspaces/<hash>/
//	    mappings.json            # sandbox prefix -> host base pairs
//	    audit.jsonl              # per-workspace event log
//	    agents/<id>.json         # one metadata record per live agent
//
// The mapping and MCP files are re-read on every request; the gateway never
// trusts an in-memory copy where staleness would route a request into the
// wrong repository.
package config

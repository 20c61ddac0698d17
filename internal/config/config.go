package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
)

const (
	// DefaultPort is the gateway listen port.
	DefaultPort = 8642

	// DefaultBindAddr is loopback-only; the gateway is reachable from
	// sandbox containers via the container network's host gateway address.
	DefaultBindAddr = "127.0.0.1"

	// DefaultMaxBodyBytes caps inbound request bodies at 10 MiB.
	DefaultMaxBodyBytes = 10 << 20

	// DefaultRateLimit is requests per minute per workspace (0 disables).
	DefaultRateLimit = 0

	// ContainerPrefix is prepended to agent ids to form container names.
	ContainerPrefix = "drawbridge-agent-"
)

// GatewayConfig holds the HTTP gateway settings.
type GatewayConfig struct {
	// Port is the TCP port to listen on.
	Port int `toml:"port"`

	// BindAddr is the address to bind. Must be a loopback address unless
	// AllowRemote is set.
	BindAddr string `toml:"bind_addr"`

	// AllowRemote permits binding to non-loopback addresses.
	AllowRemote bool `toml:"allow_remote"`

	// TokenFile is the path to the shared-secret token file. Defaults to
	// <data_root>/token.
	TokenFile string `toml:"token_file"`

	// DataRoot is the base directory for all persisted state.
	DataRoot string `toml:"data_root"`

	// BlockSecrets makes a secret-scanner hit replace the tool result with
	// a blocked response instead of a logged warning.
	BlockSecrets bool `toml:"block_secrets"`

	// RateLimit is the max requests per minute per workspace (0 = unlimited).
	RateLimit int `toml:"rate_limit"`

	// MaxBodyBytes caps inbound request bodies.
	MaxBodyBytes int64 `toml:"max_body_bytes"`
}

// AgentsConfig holds the sub-agent container settings.
type AgentsConfig struct {
	// Image is the container image agents run.
	Image string `toml:"image"`

	// CPUs is the --cpus cap passed to the container runtime.
	CPUs string `toml:"cpus"`

	// Memory is the --memory cap passed to the container runtime.
	Memory string `toml:"memory"`

	// Network is the container network agents join. Egress filtering is the
	// network's concern, not the gateway's.
	Network string `toml:"network"`

	// Runtime selects the container engine: "docker", "podman", or "auto".
	Runtime string `toml:"runtime"`
}

// Config is the full gateway configuration.
type Config struct {
	Gateway GatewayConfig `toml:"gateway"`
	Agents  AgentsConfig  `toml:"agents"`
}

// Default returns the built-in configuration defaults.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Port:         DefaultPort,
			BindAddr:     DefaultBindAddr,
			DataRoot:     DefaultDataRoot(),
			RateLimit:    DefaultRateLimit,
			MaxBodyBytes: DefaultMaxBodyBytes,
		},
		Agents: AgentsConfig{
			Image:   "drawbridge-agent:latest",
			CPUs:    "2",
			Memory:  "2g",
			Network: "bridge",
			Runtime: "auto",
		},
	}
}

// DefaultConfigFile returns the default config file location,
// ~/.config/drawbridge/config.toml.
func DefaultConfigFile() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "drawbridge", "config.toml")
	}
	return filepath.Join(".", "drawbridge.toml")
}

// DefaultDataRoot returns the default state directory,
// ~/.local/share/drawbridge.
func DefaultDataRoot() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "drawbridge")
	}
	return filepath.Join(".", "drawbridge-data")
}

// Load resolves configuration from defaults, the TOML file at path, and
// DRAWBRIDGE_* environment variables, in that order. An empty path means
// the default location, whose absence is not an error; an explicit path
// that does not exist is.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if path == "" {
		path = DefaultConfigFile()
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case os.IsNotExist(err) && !explicit:
		// Defaults only
	default:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg.applyEnv()
	return cfg, nil
}

// applyEnv overlays DRAWBRIDGE_* environment variables onto the config.
func (c *Config) applyEnv() {
	envString("DRAWBRIDGE_BIND_ADDR", &c.Gateway.BindAddr)
	envString("DRAWBRIDGE_TOKEN_FILE", &c.Gateway.TokenFile)
	envString("DRAWBRIDGE_DATA_ROOT", &c.Gateway.DataRoot)
	envString("DRAWBRIDGE_AGENT_IMAGE", &c.Agents.Image)
	envString("DRAWBRIDGE_AGENT_CPUS", &c.Agents.CPUs)
	envString("DRAWBRIDGE_AGENT_MEMORY", &c.Agents.Memory)
	envString("DRAWBRIDGE_AGENT_NETWORK", &c.Agents.Network)
	envString("DRAWBRIDGE_RUNTIME", &c.Agents.Runtime)
	envInt("DRAWBRIDGE_PORT", &c.Gateway.Port)
	envInt("DRAWBRIDGE_RATE_LIMIT", &c.Gateway.RateLimit)
	envBool("DRAWBRIDGE_ALLOW_REMOTE", &c.Gateway.AllowRemote)
	envBool("DRAWBRIDGE_BLOCK_SECRETS", &c.Gateway.BlockSecrets)
}

func envString(name string, dst *string) {
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}

func envInt(name string, dst *int) {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envBool(name string, dst *bool) {
	if v := os.Getenv(name); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

// Validate normalizes derived fields and checks the configuration is usable.
// It must be called after all layers (file, env, flags) have been applied.
func (c *Config) Validate() error {
	if c.Gateway.Port < 1 || c.Gateway.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be between 1 and 65535", c.Gateway.Port)
	}

	if c.Gateway.DataRoot == "" {
		return fmt.Errorf("data root is required")
	}

	if c.Gateway.TokenFile == "" {
		c.Gateway.TokenFile = filepath.Join(c.Gateway.DataRoot, "token")
	}

	if c.Gateway.MaxBodyBytes <= 0 {
		c.Gateway.MaxBodyBytes = DefaultMaxBodyBytes
	}

	if c.Gateway.RateLimit < 0 {
		return fmt.Errorf("invalid rate limit %d: must be >= 0", c.Gateway.RateLimit)
	}

	if !c.Gateway.AllowRemote {
		ip := net.ParseIP(c.Gateway.BindAddr)
		if ip == nil || !ip.IsLoopback() {
			return fmt.Errorf("bind address %q is not a loopback address (set allow_remote to override)", c.Gateway.BindAddr)
		}
	}

	switch c.Agents.Runtime {
	case "docker", "podman", "auto":
	default:
		return fmt.Errorf("invalid runtime %q: must be docker, podman, or auto", c.Agents.Runtime)
	}

	return nil
}

// ListenAddr returns the host:port the gateway binds to.
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.Gateway.BindAddr, strconv.Itoa(c.Gateway.Port))
}

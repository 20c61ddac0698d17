package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/drawbridge-sh/drawbridge/internal/config"
	"github.com/drawbridge-sh/drawbridge/internal/gateway"
	"github.com/drawbridge-sh/drawbridge/internal/health"
	"github.com/drawbridge-sh/drawbridge/internal/logging"
	"github.com/drawbridge-sh/drawbridge/internal/runtime"
	"github.com/drawbridge-sh/drawbridge/internal/system"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gateway",
	Long: `Run the drawbridge gateway on loopback.

Configuration is resolved from built-in defaults, the TOML config file,
DRAWBRIDGE_* environment variables, and flags, in that order. Credentials
the gateway injects (agent API keys, MCP upstream tokens) are read from
its own environment; --env-file loads one before anything else.

Signals:
  SIGINT, SIGTERM   drain in-flight requests and exit
  SIGHUP            re-read the bearer token file`,
	RunE: runServe,
}

var (
	servePort         int
	serveConfig       string
	serveEnvFile      string
	serveTokenFile    string
	serveDataRoot     string
	serveBlockSecrets bool
	serveRateLimit    int
)

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", config.DefaultPort, "Port to listen on")
	serveCmd.Flags().StringVar(&serveConfig, "config", "", "Path to config file")
	serveCmd.Flags().StringVar(&serveEnvFile, "env-file", "", "Env file to load before reading configuration")
	serveCmd.Flags().StringVar(&serveTokenFile, "token-file", "", "Path to the bearer token file")
	serveCmd.Flags().StringVar(&serveDataRoot, "data-root", "", "Base directory for gateway state")
	serveCmd.Flags().BoolVar(&serveBlockSecrets, "block-secrets", false, "Block commands on secret scanner hits instead of warning")
	serveCmd.Flags().IntVar(&serveRateLimit, "rate-limit", config.DefaultRateLimit, "Max requests per minute per workspace (0 = unlimited)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if serveEnvFile != "" {
		if err := godotenv.Load(serveEnvFile); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", serveEnvFile, err)
		}
	}

	cfg, err := config.Load(serveConfig)
	if err != nil {
		return err
	}
	applyServeFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	paths := config.NewPaths(cfg.Gateway.DataRoot)
	if err := paths.EnsureDataRoot(); err != nil {
		return fmt.Errorf("failed to create data root: %w", err)
	}

	executor := system.NewExecutor()

	for _, check := range health.RunChecks(cfg, paths, executor) {
		if !check.OK {
			logWarning("preflight %s: %s", check.Name, check.Detail)
		}
	}

	rt, err := runtime.New(cfg.Agents.Runtime, executor)
	if err != nil {
		return err
	}

	g, err := gateway.New(gateway.Options{
		Config:   cfg,
		Executor: executor,
		Runtime:  rt,
	})
	if err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logging.Info("shutting down gateway")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := g.Shutdown(ctx); err != nil {
			logging.Warn("shutdown did not complete cleanly", "error", err)
		}
	}()

	hupCh := make(chan os.Signal, 1)
	signal.Notify(hupCh, syscall.SIGHUP)
	go func() {
		for range hupCh {
			logging.Info("reloading bearer token")
			if err := g.ReloadToken(); err != nil {
				logging.Warn("failed to reload token", "error", err)
			}
		}
	}()

	logInfo("Starting drawbridge gateway on %s", cfg.ListenAddr())
	logInfo("Data root: %s", cfg.Gateway.DataRoot)
	logInfo("Container runtime: %s", rt.Name())
	if cfg.Gateway.BlockSecrets {
		logInfo("Secret scanner: blocking")
	} else {
		logInfo("Secret scanner: warn only")
	}
	if cfg.Gateway.RateLimit > 0 {
		logInfo("Rate limit: %d requests/min per workspace", cfg.Gateway.RateLimit)
	}

	return g.ListenAndServe()
}

// applyServeFlags overlays explicitly set flags onto the config. Flags
// are the outermost layer; unset flags leave file and env values alone.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("port") {
		cfg.Gateway.Port = servePort
	}
	if cmd.Flags().Changed("token-file") {
		cfg.Gateway.TokenFile = serveTokenFile
	}
	if cmd.Flags().Changed("data-root") {
		cfg.Gateway.DataRoot = serveDataRoot
	}
	if cmd.Flags().Changed("block-secrets") {
		cfg.Gateway.BlockSecrets = serveBlockSecrets
	}
	if cmd.Flags().Changed("rate-limit") {
		cfg.Gateway.RateLimit = serveRateLimit
	}
}

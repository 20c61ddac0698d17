package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/drawbridge-sh/drawbridge/internal/config"
	"github.com/drawbridge-sh/drawbridge/internal/logging"
)

var (
	verbose    bool
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "drawbridge",
	Short: "Privileged HTTP gateway for sandboxed coding agents",
	Long: `drawbridge runs on the host and exposes a small, auditable HTTP
surface to sandboxed AI coding agents.

Sandboxes hold no credentials. They call the gateway over loopback with
a shared bearer token, and the gateway executes git, gh, terraform,
kubectl, and aws on their behalf: read-only policy enforced, sandbox
paths translated to host paths, arguments and output scanned for secret
material, and every execution written to a per-workspace audit log.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Setup(verbose, jsonOutput, os.Stderr)
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output logs in JSON format")
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// Helper aliases for user-facing output (delegates to logging package)
var (
	logInfo    = logging.UserInfo
	logSuccess = logging.UserSuccess
	logWarning = logging.UserWarning
)

// resolvePaths resolves the state layout the same way serve does, with
// an optional data-root override as the outermost layer.
func resolvePaths(dataRoot string) (*config.Paths, error) {
	cfg, err := config.Load("")
	if err != nil {
		return nil, err
	}
	if dataRoot != "" {
		cfg.Gateway.DataRoot = dataRoot
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return config.NewPaths(cfg.Gateway.DataRoot), nil
}

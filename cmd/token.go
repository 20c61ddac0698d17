package cmd

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/drawbridge-sh/drawbridge/internal/config"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage the shared bearer token",
}

var tokenGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a new bearer token",
	Long: `Generate a fresh bearer token and write it to the token file.

Sandbox provisioning copies the token into each sandbox; the gateway
reads the same file at startup. Re-running this command rotates the
token; send SIGHUP to a running gateway to pick up the new value.`,
	RunE: runTokenGenerate,
}

var tokenOutput string

func init() {
	tokenGenerateCmd.Flags().StringVar(&tokenOutput, "output", "", "Where to write the token (default <data-root>/token)")
	tokenCmd.AddCommand(tokenGenerateCmd)
	rootCmd.AddCommand(tokenCmd)
}

func runTokenGenerate(cmd *cobra.Command, args []string) error {
	path := tokenOutput
	if path == "" {
		cfg, err := config.Load("")
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		path = cfg.Gateway.TokenFile
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return fmt.Errorf("failed to generate token: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(raw)+"\n"), 0600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	// WriteFile only applies the mode on create; tighten rotated files
	// that may predate it.
	if err := os.Chmod(path, 0600); err != nil {
		return fmt.Errorf("failed to restrict token file permissions: %w", err)
	}

	logSuccess("Token written to %s", path)
	return nil
}

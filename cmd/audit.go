package cmd

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/drawbridge-sh/drawbridge/internal/audit"
	"github.com/drawbridge-sh/drawbridge/internal/workspace"
)

var auditCmd = &cobra.Command{
	Use:   "audit [workspace-hash]",
	Short: "Display the audit trail for a workspace",
	Long: `Display the audit trail for a workspace.

Without a hash, reads the ambient log at the data root. Every tool
execution, policy or secret block, agent lifecycle change, and MCP
forward leaves one event here.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAudit,
}

var (
	auditJSON     bool
	auditDataRoot string
)

func init() {
	auditCmd.Flags().BoolVar(&auditJSON, "json", false, "Output events as JSON lines")
	auditCmd.Flags().StringVar(&auditDataRoot, "data-root", "", "Base directory for gateway state")
	rootCmd.AddCommand(auditCmd)
}

func runAudit(cmd *cobra.Command, args []string) error {
	hash := ""
	if len(args) > 0 {
		hash = args[0]
		if err := workspace.ValidateHash(hash); err != nil {
			return err
		}
	}

	paths, err := resolvePaths(auditDataRoot)
	if err != nil {
		return err
	}

	events, err := audit.NewEmitter(paths).Events(hash)
	if err != nil {
		return fmt.Errorf("failed to read audit log: %w", err)
	}
	if len(events) == 0 {
		logInfo("No events recorded")
		return nil
	}

	for _, e := range events {
		if auditJSON {
			record := map[string]any{"ts": e.TS, "type": e.Type}
			for k, v := range e.Fields {
				record[k] = v
			}
			data, err := json.Marshal(record)
			if err != nil {
				return fmt.Errorf("failed to marshal event: %w", err)
			}
			fmt.Println(string(data))
			continue
		}

		ts := e.TS.Local().Format("2006-01-02 15:04:05")
		fmt.Printf("[%s] %-15s %s\n", ts, e.Type, formatFields(e.Fields))
	}
	return nil
}

// formatFields renders event fields as key=value pairs in stable order.
func formatFields(fields map[string]any) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, fields[k])
	}
	return strings.Join(parts, " ")
}

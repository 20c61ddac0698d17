package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/drawbridge-sh/drawbridge/internal/workspace"
)

var workspaceCmd = &cobra.Command{
	Use:   "workspace",
	Short: "Manage workspace registrations",
	Long: `Manage workspace registrations.

Registering a workspace writes a path mapping table keyed by the
workspace hash. Sandboxes send that hash with every request, and the
gateway uses the table to translate sandbox paths like /workspace/src
into the host directory behind them.`,
}

var workspaceHashCmd = &cobra.Command{
	Use:   "hash <path>",
	Short: "Print the workspace hash for a host path",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkspaceHash,
}

var workspaceRegisterCmd = &cobra.Command{
	Use:   "register <host-path>",
	Short: "Register a host directory as a workspace",
	Long: `Register a host directory as a workspace and print its hash.

The hash goes into the sandbox environment at provisioning time;
everything the sandbox asks the gateway to run is scoped by it.`,
	Args: cobra.ExactArgs(1),
	RunE: runWorkspaceRegister,
}

var workspaceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered workspaces",
	RunE:  runWorkspaceList,
}

var (
	workspaceDataRoot    string
	workspaceSandboxPath string
)

func init() {
	workspaceCmd.PersistentFlags().StringVar(&workspaceDataRoot, "data-root", "", "Base directory for gateway state")
	workspaceRegisterCmd.Flags().StringVar(&workspaceSandboxPath, "sandbox", "/workspace", "Mount point the sandbox sees")
	workspaceCmd.AddCommand(workspaceHashCmd)
	workspaceCmd.AddCommand(workspaceRegisterCmd)
	workspaceCmd.AddCommand(workspaceListCmd)
	rootCmd.AddCommand(workspaceCmd)
}

func runWorkspaceHash(cmd *cobra.Command, args []string) error {
	abs, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	fmt.Println(workspace.Hash(abs))
	return nil
}

func runWorkspaceRegister(cmd *cobra.Command, args []string) error {
	hostPath, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	info, err := os.Stat(hostPath)
	if err != nil {
		return fmt.Errorf("workspace root %s: %w", hostPath, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("workspace root %s is not a directory", hostPath)
	}

	paths, err := resolvePaths(workspaceDataRoot)
	if err != nil {
		return err
	}

	hash := workspace.Hash(hostPath)
	mappings := []workspace.Mapping{{Sandbox: workspaceSandboxPath, Host: hostPath}}
	if err := workspace.WriteMappings(paths, hash, mappings); err != nil {
		return fmt.Errorf("failed to write mapping table: %w", err)
	}

	logSuccess("Registered %s as %s", hostPath, workspaceSandboxPath)
	fmt.Println(hash)
	return nil
}

func runWorkspaceList(cmd *cobra.Command, args []string) error {
	paths, err := resolvePaths(workspaceDataRoot)
	if err != nil {
		return err
	}

	hashes, err := workspace.RegisteredWorkspaces(paths)
	if err != nil {
		return err
	}
	if len(hashes) == 0 {
		logInfo("No workspaces registered. Register one with: drawbridge workspace register <path>")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "HASH\tSANDBOX\tHOST")
	fmt.Fprintln(w, "----\t-------\t----")
	for _, hash := range hashes {
		reg, err := workspace.Load(paths, hash)
		if err != nil {
			fmt.Fprintf(w, "%s\t-\t(unreadable: %v)\n", hash, err)
			continue
		}
		for _, m := range reg.Mappings() {
			fmt.Fprintf(w, "%s\t%s\t%s\n", hash, m.Sandbox, m.Host)
		}
	}
	return w.Flush()
}

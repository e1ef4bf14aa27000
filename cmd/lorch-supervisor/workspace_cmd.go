package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/iambrandonn/opencode-cc-supervisor/internal/workspace"
)

var workspaceCmd = &cobra.Command{
	Use:   "workspace",
	Short: "Inspect and clean up per-child workspace directories",
}

var workspaceGCCmd = &cobra.Command{
	Use:   "gc",
	Short: "Remove worktree directories with no matching registry entry",
	Long: `gc sweeps <config-dir>/worktrees for directories that are not the
workspace directory of any registered child session — left behind by a
crashed provisioning attempt, or by a child the registry no longer tracks —
and reports or removes them.`,
	RunE: runWorkspaceGC,
}

func init() {
	workspaceCmd.AddCommand(workspaceGCCmd)
	workspaceGCCmd.Flags().Bool("delete", false, "Actually remove orphaned directories (default: dry-run, list only)")
}

func runWorkspaceGC(cmd *cobra.Command, args []string) error {
	reg, _, configDir, err := loadRegistryFromFlags(cmd)
	if err != nil {
		return err
	}

	del, err := cmd.Flags().GetBool("delete")
	if err != nil {
		return err
	}

	worktreesDir := filepath.Join(configDir, "worktrees")

	var tracked []string
	for _, c := range reg.All() {
		if c.Workspace.Directory != "" {
			tracked = append(tracked, c.Workspace.Directory)
		}
	}

	orphans, err := workspace.Orphans(worktreesDir, tracked)
	if err != nil {
		return fmt.Errorf("scan %s: %w", worktreesDir, err)
	}

	if len(orphans) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no orphaned workspace directories found")
		return nil
	}

	for _, dir := range orphans {
		if !del {
			fmt.Fprintf(cmd.OutOrStdout(), "orphan: %s\n", dir)
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "failed to remove %s: %v\n", dir, err)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed: %s\n", dir)
	}

	if !del {
		fmt.Fprintf(cmd.OutOrStdout(), "\n%d orphan(s) found; re-run with --delete to remove\n", len(orphans))
	}

	return nil
}

package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var registryCmd = &cobra.Command{
	Use:   "registry",
	Short: "Inspect the durable child session registry",
}

var registryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every registered child session across all orchestrators",
	RunE:  runRegistryList,
}

var registryShowCmd = &cobra.Command{
	Use:   "show <child-id>",
	Short: "Show the full stored record for one child session",
	Args:  cobra.ExactArgs(1),
	RunE:  runRegistryShow,
}

func init() {
	registryCmd.AddCommand(registryListCmd)
	registryCmd.AddCommand(registryShowCmd)
	registryShowCmd.Flags().String("format", "json", "Output format: json or yaml")
}

func runRegistryList(cmd *cobra.Command, args []string) error {
	reg, _, _, err := loadRegistryFromFlags(cmd)
	if err != nil {
		return err
	}

	children := reg.All()
	if len(children) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no child sessions registered")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
	fmt.Fprintln(w, "CHILD ID\tORCHESTRATOR\tTITLE\tSTATE\tCREATED\tLAST ACTIVITY")
	for _, c := range children {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			c.ChildSessionID,
			c.OrchestratorSessionID,
			c.Title,
			c.State,
			formatMillis(c.CreatedAt),
			formatMillis(c.LastActivityAt),
		)
	}
	return w.Flush()
}

func runRegistryShow(cmd *cobra.Command, args []string) error {
	childID := args[0]

	reg, _, _, err := loadRegistryFromFlags(cmd)
	if err != nil {
		return err
	}

	rec, ok := reg.Get(childID)
	if !ok {
		return fmt.Errorf("no registered child session %q", childID)
	}

	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return err
	}

	switch format {
	case "yaml":
		data, err := yaml.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal yaml: %w", err)
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	case "json", "":
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	default:
		return fmt.Errorf("unknown --format %q: want json or yaml", format)
	}
}

func formatMillis(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return time.UnixMilli(ms).Format(time.RFC3339)
}

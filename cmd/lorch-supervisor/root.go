package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/iambrandonn/opencode-cc-supervisor/internal/config"
	"github.com/iambrandonn/opencode-cc-supervisor/internal/registry"
)

var rootCmd = &cobra.Command{
	Use:   "lorch-supervisor",
	Short: "Operator tooling for the orchestrator supervisor's session registry",
	Long: `lorch-supervisor inspects and repairs the session registry and per-child
workspaces the supervisor plugin manages, out-of-band from the host runtime.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(registryCmd)
	rootCmd.AddCommand(workspaceCmd)
	rootCmd.PersistentFlags().String("config-dir", "", "Path to the .opencode-style config directory (default: discovered by walking up from cwd)")
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// loadRegistryFromFlags discovers (or accepts an explicit) config directory
// and opens the registry document beneath it. It always uses the default
// supervisor config; no config file is read from the config directory.
func loadRegistryFromFlags(cmd *cobra.Command) (*registry.Registry, *config.Config, string, error) {
	cfg := config.GenerateDefault()

	configDir, err := cmd.Flags().GetString("config-dir")
	if err != nil {
		return nil, nil, "", err
	}
	if configDir == "" {
		configDir, err = registry.LocateConfigDir(cfg)
		if err != nil {
			return nil, nil, "", fmt.Errorf("locate config dir: %w", err)
		}
	}

	path := registry.RegistryPath(configDir, cfg)
	legacy := registry.LegacyDir(configDir, cfg)
	reg := registry.Load(path, legacy, newLogger())

	return reg, cfg, configDir, nil
}

// Package config loads and validates the supervisor's own tunables: the
// debounce interval, workspace naming, and where the registry document
// lives on disk.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config holds the supervisor's configurable knobs.
type Config struct {
	Version            string `json:"version"`
	ConfigDirName      string `json:"config_dir_name"`
	ProductDirName     string `json:"product_dir_name"`
	RegistryFileName   string `json:"registry_file_name"`
	WorktreeNamePrefix string `json:"worktree_name_prefix"`
	DebounceMS         int    `json:"debounce_ms"`
	ExcerptMaxChars    int    `json:"excerpt_max_chars"`
	WorktreeBackoffMS  []int  `json:"worktree_backoff_ms"`
}

// GenerateDefault returns the supervisor's default configuration.
func GenerateDefault() *Config {
	return &Config{
		Version:            "1.0",
		ConfigDirName:      ".opencode",
		ProductDirName:     "opencode-cc",
		RegistryFileName:   "session-registry.json",
		WorktreeNamePrefix: "wt",
		DebounceMS:         5000,
		ExcerptMaxChars:    400,
		WorktreeBackoffMS:  []int{50, 100, 200, 400, 800, 1200},
	}
}

// Validate checks the configuration for errors and returns user-friendly
// error messages, in the style of the rest of this package's hints.
func (c *Config) Validate() error {
	if c.Version == "" {
		return fmt.Errorf("configuration error: missing required field 'version'\n\nHint: Add a version field like:\n  \"version\": \"1.0\"")
	}

	if c.ConfigDirName == "" {
		return fmt.Errorf("configuration error: missing required field 'config_dir_name'\n\nHint: Add a config_dir_name field like:\n  \"config_dir_name\": \".opencode\"")
	}

	if c.RegistryFileName == "" {
		return fmt.Errorf("configuration error: missing required field 'registry_file_name'\n\nHint: Add a registry_file_name field like:\n  \"registry_file_name\": \"session-registry.json\"")
	}

	if c.DebounceMS <= 0 {
		return fmt.Errorf("configuration error: invalid 'debounce_ms' value: %d\n\nHint: debounce_ms must be a positive number of milliseconds:\n  \"debounce_ms\": 5000", c.DebounceMS)
	}

	if c.ExcerptMaxChars <= 0 {
		return fmt.Errorf("configuration error: invalid 'excerpt_max_chars' value: %d\n\nHint: excerpt_max_chars must be positive:\n  \"excerpt_max_chars\": 400", c.ExcerptMaxChars)
	}

	if len(c.WorktreeBackoffMS) == 0 {
		return fmt.Errorf("configuration error: missing required field 'worktree_backoff_ms'\n\nHint: Add a backoff schedule, e.g.:\n  \"worktree_backoff_ms\": [50, 100, 200, 400, 800, 1200]")
	}

	return nil
}

// LoadFromFile loads a configuration from a JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return &cfg, nil
}

// SaveToFile writes the configuration to a JSON file with 0600 permissions.
func (c *Config) SaveToFile(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}

	return nil
}

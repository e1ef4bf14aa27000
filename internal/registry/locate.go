package registry

import (
	"os"
	"path/filepath"

	"github.com/iambrandonn/opencode-cc-supervisor/internal/config"
)

// LocateConfigDir walks upward from the current working directory looking
// for a directory named cfg.ConfigDirName, the way the teacher's
// findConfigInTree walks upward from the CWD looking for lorch.json. If no
// marker directory is found anywhere up to the filesystem root, the path
// <cwd>/<cfg.ConfigDirName> is returned (it need not exist yet).
func LocateConfigDir(cfg *config.Config) (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		candidate := filepath.Join(dir, cfg.ConfigDirName)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, cfg.ConfigDirName), nil
}

// RegistryPath returns the canonical path of the registry document beneath
// a located config directory.
func RegistryPath(configDir string, cfg *config.Config) string {
	return filepath.Join(configDir, cfg.ProductDirName, cfg.RegistryFileName)
}

// LegacyDir returns the directory a one-shot migration reads from: a
// per-child-file "sessions" directory inside the product directory, next to
// the registry document.
func LegacyDir(configDir string, cfg *config.Config) string {
	return filepath.Join(configDir, cfg.ProductDirName, "sessions")
}

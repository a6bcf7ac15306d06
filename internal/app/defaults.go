package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - BACKER_CONFIG_PATH: config file location (default: ~/.config/backer.toml)
//   - BACKER_HOME: base directory for the catalog and logs (default: ~/.local/share/backer)
func GetDefaults() (map[string]string, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	baseDir, err := getBaseDir()
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path":  configPath,
		"base_dir":     baseDir,
		"log_dir":      filepath.Join(baseDir, "log"),
		"catalog_path": filepath.Join(baseDir, "catalog.db"),
	}, nil
}

func getConfigPath() (string, error) {
	if path := os.Getenv("BACKER_CONFIG_PATH"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "backer.toml"), nil
}

// getBaseDir follows the XDG data directory layout unless BACKER_HOME is set.
func getBaseDir() (string, error) {
	if path := os.Getenv("BACKER_HOME"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "backer"), nil
}

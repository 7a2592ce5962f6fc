// Package config owns the on-disk layout under ~/.postdad and the
// application settings file. Settings are JSONC so the file can carry
// comments.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
)

const (
	// FilePermissions is the default permission mode for regular files
	FilePermissions = 0644
	// DirPermissions is the default permission mode for directories
	DirPermissions = 0755
)

var (
	// ConfigDir is the global configuration directory (~/.postdad)
	ConfigDir string

	// CollectionsDir holds the .hcl collection files
	CollectionsDir string

	// EnvironmentsFile is the environment definitions file
	EnvironmentsFile string

	// DatabasePath is the SQLite database file for execution history
	DatabasePath string

	// SettingsFile is the application settings file
	SettingsFile string
)

// Settings are the user-tunable application defaults.
type Settings struct {
	Output            string `json:"output,omitempty"`            // text, json, yaml
	HistoryRetention  int    `json:"historyRetention,omitempty"`  // entries kept per request
	GRPCBridge        string `json:"grpcBridge,omitempty"`        // bridge binary, default grpcurl
	DefaultTimeoutSec int    `json:"defaultTimeoutSec,omitempty"` // per-request deadline
}

// Initialize sets up the configuration directories and default files,
// creating ~/.postdad/ on first run.
func Initialize() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	ConfigDir = filepath.Join(homeDir, ".postdad")
	CollectionsDir = filepath.Join(ConfigDir, "collections")
	EnvironmentsFile = filepath.Join(ConfigDir, "environments.hcl")
	DatabasePath = filepath.Join(ConfigDir, "postdad.db")
	SettingsFile = filepath.Join(ConfigDir, "settings.jsonc")

	for _, dir := range []string{ConfigDir, CollectionsDir} {
		if err := os.MkdirAll(dir, DirPermissions); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	if _, err := os.Stat(EnvironmentsFile); os.IsNotExist(err) {
		defaultEnvs := []byte(`env "default" {
  base_url = "https://jsonplaceholder.typicode.com"
}
`)
		if err := os.WriteFile(EnvironmentsFile, defaultEnvs, FilePermissions); err != nil {
			return fmt.Errorf("failed to create environments file: %w", err)
		}
	}

	if _, err := os.Stat(SettingsFile); os.IsNotExist(err) {
		defaultSettings := []byte(`{
  // output: text, json or yaml
  "output": "text",
  // executions kept per request name
  "historyRetention": 100
}
`)
		if err := os.WriteFile(SettingsFile, defaultSettings, FilePermissions); err != nil {
			return fmt.Errorf("failed to create settings file: %w", err)
		}
	}

	return nil
}

// LoadSettings reads the settings file, tolerating comments and
// trailing commas. A missing file yields the zero settings.
func LoadSettings(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Settings{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}

	var s Settings
	if err := json.Unmarshal(jsonc.ToJSON(data), &s); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}
	return &s, nil
}

// ResolveDir expands a user-supplied directory: ~/ prefixes expand to
// the home directory, relative paths resolve against ConfigDir.
func ResolveDir(dir string) (string, error) {
	if dir == "" {
		return CollectionsDir, nil
	}
	if strings.HasPrefix(dir, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(homeDir, dir[2:])
	}
	if filepath.IsAbs(dir) {
		return dir, nil
	}
	return filepath.Join(ConfigDir, dir), nil
}

package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath names a config file when -config is not given.
const EnvConfigPath = "STLVIEWER_CONFIG"

// Load builds the effective configuration: defaults, then the first config
// file found, then command-line flags. The result is validated.
func Load() (*Config, error) {
	cfg := Default()

	if path := resolveConfigPath(); path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			return nil, fmt.Errorf("loading config from %s: %w", path, err)
		}
	}

	applyFlags(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// resolveConfigPath picks the config file: -config, then $STLVIEWER_CONFIG,
// then the standard locations. An explicit path is returned even if missing
// so that Load reports it.
func resolveConfigPath() string {
	if p := ConfigPath(); p != "" {
		return p
	}
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	return findConfigFile()
}

// findConfigFile returns the first existing config.yaml in the working
// directory or ConfigDir.
func findConfigFile() string {
	for _, p := range []string{"config.yaml", filepath.Join(ConfigDir(), "config.yaml")} {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return ""
}

// ConfigDir returns the per-user config directory for the viewer.
func ConfigDir() string {
	home, _ := os.UserHomeDir()
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "STLViewer")
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "STLViewer")
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "stlviewer")
	}
	return filepath.Join(home, ".config", "stlviewer")
}

// loadFromFile merges a YAML file over cfg. Unknown keys are rejected so
// typos do not silently fall back to defaults.
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	return dec.Decode(cfg)
}

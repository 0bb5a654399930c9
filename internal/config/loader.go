package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Load reads and merges configuration from global and project paths.
// Order of precedence (highest to lowest): project config, global config, defaults.
// Missing files are not errors; malformed JSON returns an error.
func Load(globalPath, projectPath string) (*Config, error) {
	cfg := DefaultConfig()

	if globalPath != "" {
		if err := mergeConfigFile(cfg, globalPath); err != nil {
			return nil, fmt.Errorf("loading global config: %w", err)
		}
	}

	if projectPath != "" {
		if err := mergeConfigFile(cfg, projectPath); err != nil {
			return nil, fmt.Errorf("loading project config: %w", err)
		}
	}

	return cfg, nil
}

// DefaultPaths returns the conventional global and project config paths.
// Global: ~/.tasksched/config.json
// Project: .tasksched/config.json (relative to cwd)
func DefaultPaths() (globalPath, projectPath string, err error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(homeDir, ".tasksched", "config.json"), filepath.Join(".tasksched", "config.json"), nil
}

// LoadDefault loads configuration from the conventional paths.
func LoadDefault() (*Config, error) {
	globalPath, projectPath, err := DefaultPaths()
	if err != nil {
		return nil, err
	}
	return Load(globalPath, projectPath)
}

// mergeConfigFile reads a JSON config file and merges it into the base config.
// Scalars override when set; kinds merge per key. Missing files are skipped.
func mergeConfigFile(base *Config, path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	var loaded Config
	if err := json.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	merge(base, &loaded)
	return nil
}

func merge(base, over *Config) {
	if over.Workers != 0 {
		base.Workers = over.Workers
	}
	if over.RecheckInterval != 0 {
		base.RecheckInterval = over.RecheckInterval
	}
	if over.Log.Level != "" {
		base.Log.Level = over.Log.Level
	}
	if over.Log.Format != "" {
		base.Log.Format = over.Log.Format
	}
	if over.MetricsAddr != "" {
		base.MetricsAddr = over.MetricsAddr
	}
	if over.ProfileDB != "" {
		base.ProfileDB = over.ProfileDB
	}

	r := over.Retry
	if r.InitialInterval != 0 {
		base.Retry.InitialInterval = r.InitialInterval
	}
	if r.MaxInterval != 0 {
		base.Retry.MaxInterval = r.MaxInterval
	}
	if r.MaxElapsedTime != 0 {
		base.Retry.MaxElapsedTime = r.MaxElapsedTime
	}
	if r.Multiplier != 0 {
		base.Retry.Multiplier = r.Multiplier
	}
	if r.RandomizationFactor != 0 {
		base.Retry.RandomizationFactor = r.RandomizationFactor
	}

	if base.Kinds == nil {
		base.Kinds = make(map[string]KindConfig)
	}
	for key, kind := range over.Kinds {
		base.Kinds[key] = kind
	}
}

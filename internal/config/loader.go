package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// envPrefix namespaces environment overrides, e.g. MARIONETTE_API_LISTEN.
const envPrefix = "MARIONETTE"

// Load reads configuration from a YAML file, applies defaults for anything
// unset, and finally applies environment overrides. An empty path skips the
// file and uses defaults plus environment only.
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	if configPath != "" {
		absPath, err := filepath.Abs(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
		}

		data, err := os.ReadFile(absPath)
		if err != nil {
			return nil, fmt.Errorf("config file not found: %s\n"+
				"Hint: Check the path or run with --config flag", absPath)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", absPath, err)
		}
	}

	// Environment wins over file values.
	if err := envconfig.Process(envPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.API.Listen == "" {
		return fmt.Errorf("api.listen must not be empty")
	}
	if cfg.Execute.Timeout <= 0 {
		return fmt.Errorf("execute.timeout must be positive")
	}
	if cfg.History.Enabled && cfg.History.Path == "" {
		return fmt.Errorf("history.path must be set when history is enabled")
	}
	return nil
}

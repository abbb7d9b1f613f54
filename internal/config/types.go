package config

import "time"

// Config represents the complete marionette configuration.
type Config struct {
	Service ServiceConfig `yaml:"service"`
	API     APIConfig     `yaml:"api"`
	Execute ExecuteConfig `yaml:"execute"`
	History HistoryConfig `yaml:"history"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name     string `yaml:"name"`
	LogLevel string `yaml:"log_level" envconfig:"LOG_LEVEL"`
	// PIDFile, when set, enforces a single daemon instance via flock.
	PIDFile string `yaml:"pid_file" envconfig:"PID_FILE"`
}

// APIConfig defines HTTP server settings.
type APIConfig struct {
	Listen string `yaml:"listen" envconfig:"API_LISTEN"`
	// APIKey is the bearer token protecting the command surface. Empty
	// disables auth; only sensible on loopback.
	APIKey string `yaml:"api_key" envconfig:"API_KEY"`
}

// ExecuteConfig defines execute bridge settings.
type ExecuteConfig struct {
	// Timeout bounds how long one execute call waits for its completion.
	Timeout Duration `yaml:"timeout" envconfig:"EXECUTE_TIMEOUT"`
}

// HistoryConfig defines the execute history store.
type HistoryConfig struct {
	Enabled   bool     `yaml:"enabled" envconfig:"HISTORY_ENABLED"`
	Path      string   `yaml:"path" envconfig:"HISTORY_PATH"`
	Retention Duration `yaml:"retention" envconfig:"HISTORY_RETENTION"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:     "marionette",
			LogLevel: "INFO",
		},
		API: APIConfig{
			Listen: "127.0.0.1:8940",
		},
		Execute: ExecuteConfig{
			Timeout: Duration(30 * time.Second),
		},
		History: HistoryConfig{
			Enabled:   true,
			Path:      "./marionette.db",
			Retention: Duration(24 * time.Hour),
		},
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaultsOnly(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "marionette", cfg.Service.Name)
	assert.Equal(t, "127.0.0.1:8940", cfg.API.Listen)
	assert.Equal(t, 30*time.Second, cfg.Execute.Timeout.Std())
	assert.True(t, cfg.History.Enabled)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
service:
  name: test-rig
  log_level: DEBUG
api:
  listen: "127.0.0.1:9000"
  api_key: sekret
execute:
  timeout: 10s
history:
  enabled: false
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "test-rig", cfg.Service.Name)
	assert.Equal(t, "DEBUG", cfg.Service.LogLevel)
	assert.Equal(t, "127.0.0.1:9000", cfg.API.Listen)
	assert.Equal(t, "sekret", cfg.API.APIKey)
	assert.Equal(t, 10*time.Second, cfg.Execute.Timeout.Std())
	assert.False(t, cfg.History.Enabled)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file not found")
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
api:
  listen: "127.0.0.1:9000"
`)

	t.Setenv("MARIONETTE_API_LISTEN", "127.0.0.1:9999")
	t.Setenv("MARIONETTE_EXECUTE_TIMEOUT", "5s")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9999", cfg.API.Listen)
	assert.Equal(t, 5*time.Second, cfg.Execute.Timeout.Std())
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "empty listen", yaml: "api:\n  listen: \"\"\n"},
		{name: "zero timeout", yaml: "execute:\n  timeout: 0s\n"},
		{name: "history enabled without path", yaml: "history:\n  enabled: true\n  path: \"\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.yaml)
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

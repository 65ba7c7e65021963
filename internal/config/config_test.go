package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaultsAndFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
database:
  driver: memory
jwt:
  secret: file-secret
outbox:
  poll_interval: 2s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, "file-secret", cfg.JWT.Secret)
	assert.Equal(t, 2*time.Second, cfg.Outbox.PollInterval)
	assert.Equal(t, 100, cfg.Outbox.BatchSize)
	assert.Equal(t, 7*24*time.Hour, cfg.JWT.Expiry())
	assert.NoError(t, cfg.Validate())
}

func TestSecretsOverrideFile(t *testing.T) {
	path := writeConfig(t, "jwt:\n  secret: file-secret\n")
	t.Setenv("PATIENTFLOW_JWT_SECRET", "env-secret")
	t.Setenv("PATIENTFLOW_OPENAI_API_KEY", "sk-test")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env-secret", cfg.JWT.Secret)
	assert.Equal(t, "sk-test", cfg.AI.APIKey)
	assert.True(t, cfg.AI.Enabled())
}

func TestEnvOverridesNestedKeys(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 8080\n")
	t.Setenv("PATIENTFLOW_SERVER_PORT", "7000")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Server.Port)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Database: DatabaseConfig{Driver: "postgres"},
			JWT:      JWTConfig{Secret: "s", ExpiryHours: 1},
			Outbox:   OutboxConfig{BatchSize: 10, PollInterval: time.Second},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing secret", func(c *Config) { c.JWT.Secret = "" }},
		{"bad driver", func(c *Config) { c.Database.Driver = "sqlite" }},
		{"zero batch", func(c *Config) { c.Outbox.BatchSize = 0 }},
		{"zero poll interval", func(c *Config) { c.Outbox.PollInterval = 0 }},
		{"zero expiry", func(c *Config) { c.JWT.ExpiryHours = 0 }},
	}

	require.NoError(t, valid().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

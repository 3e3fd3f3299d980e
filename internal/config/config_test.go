package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/blind-match/internal/database"
	"github.com/ZanzyTHEbar/blind-match/internal/errors"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "release", cfg.Server.Mode)
	assert.Equal(t, database.DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, "./data", cfg.Database.DataDir)
	assert.Equal(t, 6*time.Hour, cfg.Cache.MemoryTTL)
	assert.Equal(t, 8, cfg.Scoring.Parallelism)
	assert.Equal(t, "default", cfg.Scoring.Policy)
	assert.Equal(t, 5, cfg.RateLimit.LoginAttempts)
	assert.Equal(t, 15*time.Minute, cfg.RateLimit.LoginWindow)
	assert.Empty(t, cfg.Redis.Addr)
	assert.Empty(t, cfg.LLM.APIKey)
	assert.True(t, cfg.Server.Compression)
	assert.Equal(t, 1024, cfg.Server.CompressMinSize)
	assert.False(t, cfg.Server.Profiling)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
  mode: debug
  allowed_origins:
    - https://events.example.com
  profiling: true
database:
  driver: postgres
  dsn: postgres://match@localhost/match
llm:
  model: small-model
  timeout: 5s
scoring:
  parallelism: 4
`)
	t.Setenv("BLINDMATCH_SERVER_PORT", "9100")
	t.Setenv("BLINDMATCH_ADMIN_JWT_SECRET", "from-the-environment-123")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port, "env wins over file")
	assert.Equal(t, "debug", cfg.Server.Mode)
	assert.True(t, cfg.Server.Profiling)
	assert.Equal(t, []string{"https://events.example.com"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, database.DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, "small-model", cfg.LLM.Model)
	assert.Equal(t, 5*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 4, cfg.Scoring.Parallelism)
	assert.Equal(t, "from-the-environment-123", cfg.Admin.JWTSecret)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Equal(t, errors.CategoryConfiguration, errors.ToAppError(err).Category)
}

func TestValidate(t *testing.T) {
	t.Chdir(t.TempDir())
	loaded, err := Load("")
	require.NoError(t, err)

	tests := []struct {
		name    string
		mutate  func(*Config)
		problem string
	}{
		{"port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"mode", func(c *Config) { c.Server.Mode = "prod" }, "server.mode"},
		{"driver", func(c *Config) { c.Database.Driver = "mysql" }, "database.driver"},
		{"postgres dsn", func(c *Config) { c.Database.Driver = database.DriverPostgres }, "database.dsn"},
		{"parallelism", func(c *Config) { c.Scoring.Parallelism = 0 }, "scoring.parallelism"},
		{"temperature", func(c *Config) { c.LLM.Temperature = 3 }, "llm.temperature"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := *loaded
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.problem)
			assert.Equal(t, errors.CategoryConfiguration, errors.ToAppError(err).Category)
		})
	}
}

func TestConfig_Mappings(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("BLINDMATCH_ADMIN_PASSWORD", "pw")
	t.Setenv("BLINDMATCH_RATELIMIT_LOGIN_ATTEMPTS", "3")

	cfg, err := Load("")
	require.NoError(t, err)

	db := cfg.DatabaseConfig()
	assert.Equal(t, cfg.Database.DataDir, db.DataDir)
	assert.Equal(t, cfg.Database.MaxOpenConns, db.MaxOpenConns)

	assert.Equal(t, cfg.LLM.Model, cfg.LLMConfig().Model)

	rl := cfg.RateLimitConfig()
	assert.Equal(t, 3, rl.LoginAttempts)
	assert.Equal(t, cfg.RateLimit.IPPerMinute, rl.IPLimitPerMin)

	auth := cfg.AuthConfig()
	assert.Equal(t, "pw", auth.Password)
	assert.Equal(t, 3, auth.LoginAttempts)

	sc := cfg.SecurityConfig()
	assert.Equal(t, cfg.Server.AllowedOrigins, sc.AllowedOrigins)
	assert.Equal(t, 60*time.Second, sc.RequestTimeout)
}

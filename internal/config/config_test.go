package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfigToml = `
[development]
environment = "development"
port = 5000
log_level = "trace"
log_to_stdout = true
storage = "memory"
cache = "local"
cache_ttl = "2m"
timezone = "Europe/Berlin"
allowed_origins = ["http://localhost:3000"]

[production]
environment = "production"
host = "0.0.0.0"
port = 9000
storage = "postgres"
postgres_host = "db"
postgres_db_name = "healthpulse"
cache = "redis"
redis_host = "redis"
write_rate_limit_allowed_per_min = 30
`

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Development(t *testing.T) {
	path := writeTestConfig(t, testConfigToml)

	cfg, err := Load("dev", path)
	require.NoError(t, err)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 5000, cfg.Port)
	assert.Equal(t, StorageMemory, cfg.Storage)
	assert.Equal(t, CacheLocal, cfg.Cache)
	assert.Equal(t, 2*time.Minute, cfg.CacheTTL)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.AllowedOrigins)
	assert.False(t, cfg.RedisRequired())

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", loc.String())
}

func TestLoad_Production(t *testing.T) {
	path := writeTestConfig(t, testConfigToml)

	cfg, err := Load("production", path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, "5432", cfg.PostgresPort)
	assert.Equal(t, "6379", cfg.RedisPort)
	assert.Equal(t, "UTC", cfg.Timezone)
	assert.Equal(t, 10*time.Minute, cfg.CacheTTL)
	assert.Equal(t, "2112", cfg.PrometheusMetricsPort)
	assert.True(t, cfg.RedisRequired())
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load("dev", filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)

	path := writeTestConfig(t, testConfigToml)
	_, err = Load("staging", path)
	require.ErrorContains(t, err, "unknown env")

	path = writeTestConfig(t, "[production]\nport = 1\n")
	_, err = Load("dev", path)
	require.ErrorContains(t, err, "not found")

	path = writeTestConfig(t, "[development]\nstorage = \"mongo\"\n")
	_, err = Load("dev", path)
	require.ErrorContains(t, err, "unknown storage")

	path = writeTestConfig(t, "[development]\ntimezone = \"Mars/Olympus\"\n")
	_, err = Load("dev", path)
	require.ErrorContains(t, err, "load timezone")
}

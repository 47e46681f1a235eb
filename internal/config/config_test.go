package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"RISK_HTTP_ADDR", "RISK_DB_DRIVER", "RISK_DB_DSN", "DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD",
	"DB_NAME", "DB_SSLMODE", "RISK_LOG_LEVEL", "RISK_JWT_SIGNING_KEY", "RISK_TRUST_IDENTITY_HEADER",
	"RISK_RATE_LIMIT", "RISK_RATE_BURST", "RISK_CORS_ORIGINS", "OTEL_EXPORTER_OTLP_ENDPOINT", "RISK_AUTO_MIGRATE",
	"RISK_TRACE_SAMPLE_RATIO",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("RISK_JWT_SIGNING_KEY", "secret")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.True(t, cfg.Database.AutoMigrate)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, float64(20), cfg.RateLimit.RequestsPerSecond)
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("RISK_HTTP_ADDR", ":9090")
	t.Setenv("RISK_DB_DRIVER", "sqlite")
	t.Setenv("RISK_DB_DSN", "file:test.db")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("RISK_TRUST_IDENTITY_HEADER", "true")
	t.Setenv("RISK_RATE_LIMIT", "2.5")
	t.Setenv("RISK_RATE_BURST", "5")
	t.Setenv("RISK_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("RISK_AUTO_MIGRATE", "false")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "file:test.db", cfg.DatabaseConnection().DataSourceName())
	assert.Equal(t, 6543, cfg.Database.Port)
	assert.True(t, cfg.Auth.TrustIdentityHeader)
	assert.Equal(t, 2.5, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 5, cfg.RateLimit.Burst)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.HTTP.CORSOrigins)
	assert.False(t, cfg.Database.AutoMigrate)
}

func TestLoadYAMLThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "risksvc.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http:
  addr: ":7070"
database:
  driver: sqlite
  dsn: "file:yaml.db"
log:
  level: debug
  development: true
auth:
  jwt_signing_key: from-yaml
tracing:
  sample_ratio: 0.25
  attributes:
    site: head-office
`), 0o600))
	t.Setenv("RISK_LOG_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.HTTP.Addr)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.True(t, cfg.Log.Development)
	assert.Equal(t, "from-yaml", cfg.Auth.JWTSigningKey)
	assert.Equal(t, 0.25, cfg.Tracing.SampleRatio)
	assert.Equal(t, map[string]string{"site": "head-office"}, cfg.Tracing.Attributes)
	// Fields absent from the file keep their defaults.
	assert.Equal(t, 40, cfg.RateLimit.Burst)
	assert.Equal(t, "risksvc", cfg.Tracing.ServiceName)
}

func TestLoadRejectsInvalid(t *testing.T) {
	clearEnv(t)

	_, err := Load("")
	assert.ErrorContains(t, err, "jwt signing key")

	t.Setenv("RISK_JWT_SIGNING_KEY", "secret")
	t.Setenv("RISK_DB_DRIVER", "mysql")
	_, err = Load("")
	assert.ErrorContains(t, err, "unsupported database driver")

	t.Setenv("RISK_DB_DRIVER", "")
	t.Setenv("RISK_TRACE_SAMPLE_RATIO", "1.5")
	_, err = Load("")
	assert.ErrorContains(t, err, "sample ratio")

	t.Setenv("RISK_TRACE_SAMPLE_RATIO", "")
	t.Setenv("DB_PORT", "not-a-port")
	_, err = Load("")
	assert.ErrorContains(t, err, "DB_PORT")
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

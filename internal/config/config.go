// Package config loads service configuration from defaults, an optional YAML
// file and the environment, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/dhawalhost/riskregister/pkg/database"
	"gopkg.in/yaml.v3"
)

// Config holds server configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Log       LogConfig       `yaml:"log"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

// HTTPConfig controls the listener.
type HTTPConfig struct {
	Addr        string   `yaml:"addr"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// DatabaseConfig selects the driver and connection.
type DatabaseConfig struct {
	Driver      string `yaml:"driver"`
	DSN         string `yaml:"dsn"`
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	User        string `yaml:"user"`
	Password    string `yaml:"password"`
	Name        string `yaml:"name"`
	SSLMode     string `yaml:"sslmode"`
	AutoMigrate bool   `yaml:"auto_migrate"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// AuthConfig controls how callers are identified.
type AuthConfig struct {
	JWTSigningKey string `yaml:"jwt_signing_key"`
	// TrustIdentityHeader accepts X-User-ID from a trusted upstream proxy.
	TrustIdentityHeader bool `yaml:"trust_identity_header"`
}

// RateLimitConfig is the per-client token bucket.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// TracingConfig configures the OTLP exporter. An empty endpoint disables tracing.
type TracingConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	ServiceName  string `yaml:"service_name"`
	Environment  string `yaml:"environment"`
	// SampleRatio is the fraction of root traces kept, in (0, 1].
	SampleRatio float64 `yaml:"sample_ratio"`
	// Attributes are added to the resource of every span, for example the
	// site or the register instance.
	Attributes map[string]string `yaml:"attributes"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		HTTP: HTTPConfig{Addr: ":8080"},
		Database: DatabaseConfig{
			Driver:      database.DriverPostgres,
			Host:        "localhost",
			Port:        5432,
			User:        "riskregister",
			Password:    "riskregister",
			Name:        "riskregister",
			SSLMode:     "disable",
			AutoMigrate: true,
		},
		Log:       LogConfig{Level: "info"},
		RateLimit: RateLimitConfig{RequestsPerSecond: 20, Burst: 40},
		Tracing:   TracingConfig{ServiceName: "risksvc", Environment: "development", SampleRatio: 1},
	}
}

// Load builds the configuration. path may be empty, in which case only
// defaults and the environment apply.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %q: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.HTTP.Addr, "RISK_HTTP_ADDR")
	setString(&c.Database.Driver, "RISK_DB_DRIVER")
	setString(&c.Database.DSN, "RISK_DB_DSN")
	setString(&c.Database.Host, "DB_HOST")
	setString(&c.Database.User, "DB_USER")
	setString(&c.Database.Password, "DB_PASSWORD")
	setString(&c.Database.Name, "DB_NAME")
	setString(&c.Database.SSLMode, "DB_SSLMODE")
	setString(&c.Log.Level, "RISK_LOG_LEVEL")
	setString(&c.Auth.JWTSigningKey, "RISK_JWT_SIGNING_KEY")
	setString(&c.Tracing.OTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")

	if v := os.Getenv("RISK_CORS_ORIGINS"); v != "" {
		c.HTTP.CORSOrigins = nil
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				c.HTTP.CORSOrigins = append(c.HTTP.CORSOrigins, o)
			}
		}
	}
	if err := setInt(&c.Database.Port, "DB_PORT"); err != nil {
		return err
	}
	if err := setInt(&c.RateLimit.Burst, "RISK_RATE_BURST"); err != nil {
		return err
	}
	if err := setBool(&c.Auth.TrustIdentityHeader, "RISK_TRUST_IDENTITY_HEADER"); err != nil {
		return err
	}
	if err := setBool(&c.Database.AutoMigrate, "RISK_AUTO_MIGRATE"); err != nil {
		return err
	}
	if v := os.Getenv("RISK_TRACE_SAMPLE_RATIO"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("RISK_TRACE_SAMPLE_RATIO: %w", err)
		}
		c.Tracing.SampleRatio = f
	}
	if v := os.Getenv("RISK_RATE_LIMIT"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("RISK_RATE_LIMIT: %w", err)
		}
		c.RateLimit.RequestsPerSecond = f
	}
	return nil
}

// Validate rejects configurations the server cannot start with.
func (c Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case database.DriverPostgres, database.DriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("unsupported database driver %q", c.Database.Driver))
	}
	if c.HTTP.Addr == "" {
		errs = append(errs, errors.New("http addr is required"))
	}
	if !c.Auth.TrustIdentityHeader && c.Auth.JWTSigningKey == "" {
		errs = append(errs, errors.New("jwt signing key is required unless the identity header is trusted"))
	}
	if c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0 {
		errs = append(errs, errors.New("rate limit and burst must be positive"))
	}
	if c.Tracing.SampleRatio <= 0 || c.Tracing.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("tracing sample ratio %v is outside (0, 1]", c.Tracing.SampleRatio))
	}
	return errors.Join(errs...)
}

// DatabaseConnection converts to the connection settings used by pkg/database.
func (c Config) DatabaseConnection() database.Config {
	return database.Config{
		Driver:   c.Database.Driver,
		DSN:      c.Database.DSN,
		Host:     c.Database.Host,
		Port:     c.Database.Port,
		User:     c.Database.User,
		Password: c.Database.Password,
		DBName:   c.Database.Name,
		SSLMode:  c.Database.SSLMode,
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func setBool(dst *bool, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = b
	return nil
}

// Package config loads Hodos service configuration from defaults, an optional
// YAML file and HODOS_* environment variables, in that order of precedence.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	sdkerrors "github.com/wehubfusion/Hodos/pkg/errors"
	"github.com/wehubfusion/Hodos/pkg/links"
	"github.com/wehubfusion/Hodos/pkg/naming"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Repository backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendBlob   = "blob"
)

// ConfigSource indicates where the configuration came from
type ConfigSource string

const (
	ConfigSourceDefault ConfigSource = "default"
	ConfigSourceFile    ConfigSource = "file"
)

// Config is the complete service configuration.
type Config struct {
	Naming     NamingConfig     `yaml:"naming"`
	Links      LinksConfig      `yaml:"links"`
	Locale     LocaleConfig     `yaml:"locale"`
	Repository RepositoryConfig `yaml:"repository"`
	NATS       NATSConfig       `yaml:"nats"`
	Tracing    TracingConfig    `yaml:"tracing"`
	Sentry     SentryConfig     `yaml:"sentry"`
	Log        LogConfig        `yaml:"log"`

	// Source records whether a file contributed to the configuration.
	Source ConfigSource `yaml:"-"`
}

// NamingConfig selects the node naming strategy.
type NamingConfig struct {
	Mode string `yaml:"mode"`
}

// LinksConfig configures item URL rendering.
type LinksConfig struct {
	ServerURL     string `yaml:"serverUrl"`
	SiteRoot      string `yaml:"siteRoot"`
	links.Options `yaml:",inline"`
}

// LocaleConfig selects the UI language and the catalog files to load.
type LocaleConfig struct {
	Language string   `yaml:"language"`
	Catalogs []string `yaml:"catalogs"`
}

// RepositoryConfig selects and configures the content item store.
type RepositoryConfig struct {
	Backend string      `yaml:"backend"`
	Redis   RedisConfig `yaml:"redis"`
	Blob    BlobConfig  `yaml:"blob"`
	Guard   GuardConfig `yaml:"guard"`
}

// GuardConfig bounds and breaks lookups against remote backends.
type GuardConfig struct {
	MaxConcurrent    int           `yaml:"maxConcurrent"`
	FailureThreshold int64         `yaml:"failureThreshold"`
	ResetTimeout     time.Duration `yaml:"resetTimeout"`
}

// RedisConfig configures the Redis item store.
type RedisConfig struct {
	URL            string        `yaml:"url"`
	KeyPrefix      string        `yaml:"keyPrefix"`
	ConnectTimeout time.Duration `yaml:"connectTimeout"`
	ReadTimeout    time.Duration `yaml:"readTimeout"`
	WriteTimeout   time.Duration `yaml:"writeTimeout"`
}

// BlobConfig configures the Azure blob item store.
type BlobConfig struct {
	ConnectionString string `yaml:"connectionString"`
	Container        string `yaml:"container"`
	Prefix           string `yaml:"prefix"`
}

// NATSConfig configures the projection endpoint.
type NATSConfig struct {
	URL           string        `yaml:"url"`
	Name          string        `yaml:"name"`
	Subject       string        `yaml:"subject"`
	QueueGroup    string        `yaml:"queueGroup"`
	Token         string        `yaml:"token"`
	Username      string        `yaml:"username"`
	Password      string        `yaml:"password"`
	MaxReconnects int           `yaml:"maxReconnects"`
	ReconnectWait time.Duration `yaml:"reconnectWait"`
	Timeout       time.Duration `yaml:"timeout"`
}

// TracingConfig configures the OTLP trace exporter.
type TracingConfig struct {
	Enabled        bool    `yaml:"enabled"`
	ServiceName    string  `yaml:"serviceName"`
	ServiceVersion string  `yaml:"serviceVersion"`
	Environment    string  `yaml:"environment"`
	OTLPEndpoint   string  `yaml:"otlpEndpoint"`
	SampleRatio    float64 `yaml:"sampleRatio"`
}

// SentryConfig enables error reporting when DSN is set.
type SentryConfig struct {
	DSN         string `yaml:"dsn"`
	Environment string `yaml:"environment"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	return &Config{
		Naming: NamingConfig{Mode: string(naming.DefaultMode)},
		Locale: LocaleConfig{Language: "en"},
		Repository: RepositoryConfig{
			Backend: BackendMemory,
			Redis: RedisConfig{
				KeyPrefix:      "hodos:item:",
				ConnectTimeout: 5 * time.Second,
				ReadTimeout:    3 * time.Second,
				WriteTimeout:   3 * time.Second,
			},
			Blob: BlobConfig{Prefix: "items"},
			Guard: GuardConfig{
				MaxConcurrent:    64,
				FailureThreshold: 10,
				ResetTimeout:     30 * time.Second,
			},
		},
		NATS: NATSConfig{
			URL:           "nats://localhost:4222",
			Name:          "hodos-projection",
			Subject:       "hodos.projection",
			QueueGroup:    "hodos",
			MaxReconnects: 10,
			ReconnectWait: 2 * time.Second,
			Timeout:       5 * time.Second,
		},
		Tracing: TracingConfig{
			ServiceName:    "hodos",
			ServiceVersion: "1.0.0",
			Environment:    "development",
			OTLPEndpoint:   "127.0.0.1:4318",
			SampleRatio:    1.0,
		},
		Log:    LogConfig{Level: "info"},
		Source: ConfigSourceDefault,
	}
}

// Load builds the configuration with priority: env vars > file > defaults.
// An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := cfg.decode(bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
		cfg.Source = ConfigSourceFile
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decode(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Naming.Mode = getEnv("HODOS_NAMING_MODE", c.Naming.Mode)

	c.Links.ServerURL = getEnv("HODOS_SERVER_URL", c.Links.ServerURL)
	c.Links.SiteRoot = getEnv("HODOS_SITE_ROOT", c.Links.SiteRoot)
	c.Links.AlwaysIncludeServerURL = getEnvBool("HODOS_ALWAYS_INCLUDE_SERVER_URL", c.Links.AlwaysIncludeServerURL)
	c.Links.LanguageEmbedding = getEnvBool("HODOS_LANGUAGE_EMBEDDING", c.Links.LanguageEmbedding)
	c.Links.LowercaseURLs = getEnvBool("HODOS_LOWERCASE_URLS", c.Links.LowercaseURLs)

	c.Locale.Language = getEnv("HODOS_LANGUAGE", c.Locale.Language)
	if catalogs := getEnv("HODOS_CATALOGS", ""); catalogs != "" {
		c.Locale.Catalogs = splitList(catalogs)
	}

	c.Repository.Backend = strings.ToLower(getEnv("HODOS_REPOSITORY_BACKEND", c.Repository.Backend))
	c.Repository.Redis.URL = getEnv("HODOS_REDIS_URL", c.Repository.Redis.URL)
	c.Repository.Redis.KeyPrefix = getEnv("HODOS_REDIS_KEY_PREFIX", c.Repository.Redis.KeyPrefix)
	c.Repository.Blob.ConnectionString = getEnv("HODOS_BLOB_CONNECTION_STRING", c.Repository.Blob.ConnectionString)
	c.Repository.Blob.Container = getEnv("HODOS_BLOB_CONTAINER", c.Repository.Blob.Container)
	c.Repository.Blob.Prefix = getEnv("HODOS_BLOB_PREFIX", c.Repository.Blob.Prefix)
	c.Repository.Guard.MaxConcurrent = getEnvInt("HODOS_REPOSITORY_MAX_CONCURRENT", c.Repository.Guard.MaxConcurrent)

	c.NATS.URL = getEnv("HODOS_NATS_URL", c.NATS.URL)
	c.NATS.Subject = getEnv("HODOS_NATS_SUBJECT", c.NATS.Subject)
	c.NATS.QueueGroup = getEnv("HODOS_NATS_QUEUE_GROUP", c.NATS.QueueGroup)
	c.NATS.Token = getEnv("HODOS_NATS_TOKEN", c.NATS.Token)
	c.NATS.Username = getEnv("HODOS_NATS_USERNAME", c.NATS.Username)
	c.NATS.Password = getEnv("HODOS_NATS_PASSWORD", c.NATS.Password)
	c.NATS.MaxReconnects = getEnvInt("HODOS_NATS_MAX_RECONNECTS", c.NATS.MaxReconnects)
	c.NATS.Timeout = getEnvDuration("HODOS_NATS_TIMEOUT", c.NATS.Timeout)

	c.Tracing.Enabled = getEnvBool("HODOS_TRACING_ENABLED", c.Tracing.Enabled)
	c.Tracing.OTLPEndpoint = getEnv("HODOS_OTLP_ENDPOINT", c.Tracing.OTLPEndpoint)
	c.Tracing.Environment = getEnv("HODOS_ENVIRONMENT", c.Tracing.Environment)
	c.Tracing.SampleRatio = getEnvFloat("HODOS_TRACING_SAMPLE_RATIO", c.Tracing.SampleRatio)

	c.Sentry.DSN = getEnv("HODOS_SENTRY_DSN", c.Sentry.DSN)
	c.Sentry.Environment = getEnv("HODOS_ENVIRONMENT", c.Sentry.Environment)

	c.Log.Level = getEnv("HODOS_LOG_LEVEL", c.Log.Level)
	c.Log.Development = getEnvBool("HODOS_LOG_DEVELOPMENT", c.Log.Development)
}

// Validate checks the configuration. Errors wrap ErrInvalidConfig.
func (c *Config) Validate() error {
	if _, err := naming.ParseMode(c.Naming.Mode); err != nil {
		return sdkerrors.InvalidConfig(err.Error())
	}
	if _, err := links.NewPathResolver(c.Links.ServerURL, c.Links.SiteRoot); err != nil {
		return sdkerrors.InvalidConfig(err.Error())
	}
	if c.Links.AlwaysIncludeServerURL && c.Links.ServerURL == "" {
		return sdkerrors.InvalidConfig("links.serverUrl is required when alwaysIncludeServerUrl is set")
	}

	switch c.Repository.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Repository.Redis.URL == "" {
			return sdkerrors.InvalidConfig("repository.redis.url is required for the redis backend")
		}
	case BackendBlob:
		if c.Repository.Blob.ConnectionString == "" || c.Repository.Blob.Container == "" {
			return sdkerrors.InvalidConfig("repository.blob.connectionString and container are required for the blob backend")
		}
	default:
		return sdkerrors.InvalidConfig(fmt.Sprintf("unknown repository backend %q", c.Repository.Backend))
	}

	if c.NATS.URL == "" || c.NATS.Subject == "" {
		return sdkerrors.InvalidConfig("nats.url and nats.subject are required")
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return sdkerrors.InvalidConfig(fmt.Sprintf("tracing.sampleRatio %v is outside [0, 1]", c.Tracing.SampleRatio))
	}
	if _, err := zap.ParseAtomicLevel(c.Log.Level); err != nil {
		return sdkerrors.InvalidConfig(err.Error())
	}
	return nil
}

// NamingMode returns the parsed naming mode. Call after Validate.
func (c *Config) NamingMode() naming.Mode {
	mode, err := naming.ParseMode(c.Naming.Mode)
	if err != nil {
		return naming.DefaultMode
	}
	return mode
}

// NewLogger builds the zap logger described by c.Log.
func (c *Config) NewLogger() (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if c.Log.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = level
	return zc.Build()
}

// String returns a formatted string representation of the config without secrets
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Mode: %s, Language: %s, Backend: %s, NATS: %s/%s, Tracing: %t, Sentry: %t, Source: %s}",
		c.Naming.Mode,
		c.Locale.Language,
		c.Repository.Backend,
		c.NATS.URL,
		c.NATS.Subject,
		c.Tracing.Enabled,
		c.Sentry.DSN != "",
		c.Source,
	)
}

// getEnv retrieves a string from environment variable with default fallback
func getEnv(key string, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer from environment variable with default fallback
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Config holds all application configuration
type Config struct {
	AgentName         string             // Build-time metadata, not configurable via environment
	AgentDescription  string             // Build-time metadata, not configurable via environment
	AgentVersion      string             // Build-time metadata, not configurable via environment
	AgentURL          string             `env:"AGENT_URL"`
	AgentCardFilePath string             `env:"AGENT_CARD_FILE_PATH" description:"Path to JSON file containing static agent card definition"`
	Debug             bool               `env:"DEBUG,default=false"`
	Timezone          string             `env:"TIMEZONE,default=UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York, Europe/London)"`
	CapabilitiesConfig CapabilitiesConfig `env:",prefix=CAPABILITIES_"`
	AuthConfig        AuthConfig         `env:",prefix=AUTH_"`
	StorageConfig     StorageConfig      `env:",prefix=STORAGE_"`
	PushConfig        PushConfig         `env:",prefix=PUSH_"`
	ServerConfig      ServerConfig       `env:",prefix=SERVER_"`
	TelemetryConfig   TelemetryConfig    `env:",prefix=TELEMETRY_"`
	ArtifactsConfig   ArtifactsConfig    `env:",prefix=ARTIFACTS_"`
}

// CapabilitiesConfig defines agent capabilities
type CapabilitiesConfig struct {
	Streaming              bool `env:"STREAMING,default=true" description:"Enable streaming support"`
	PushNotifications      bool `env:"PUSH_NOTIFICATIONS,default=true" description:"Enable push notifications"`
	StateTransitionHistory bool `env:"STATE_TRANSITION_HISTORY,default=false" description:"Enable state transition history"`
}

// TLSConfig holds TLS configuration
type TLSConfig struct {
	Enable   bool   `env:"ENABLE,default=false"`
	CertPath string `env:"CERT_PATH" description:"TLS certificate path"`
	KeyPath  string `env:"KEY_PATH" description:"TLS key path"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	Enable       bool   `env:"ENABLE,default=false"`
	IssuerURL    string `env:"ISSUER_URL" description:"OIDC issuer URL"`
	ClientID     string `env:"CLIENT_ID" description:"OIDC client id the token audience must match"`
	ClientSecret string `env:"CLIENT_SECRET"`
}

// StorageConfig selects and configures the task store backend
type StorageConfig struct {
	Provider      string `env:"PROVIDER,default=memory" description:"Task store provider (memory, sqlite, redis)"`
	DSN           string `env:"DSN" description:"Database DSN for the sqlite provider (file path or :memory:)"`
	URL           string `env:"URL" description:"Connection URL for the redis provider"`
	TaskTableName string `env:"TASK_TABLE_NAME,default=tasks" description:"Table name for the sqlite provider"`
}

// PushConfig configures push notification persistence
type PushConfig struct {
	Enable        bool   `env:"ENABLE,default=true" description:"Enable push notification delivery"`
	EncryptionKey string `env:"ENCRYPTION_KEY" description:"Base64-encoded 32-byte key; when set, webhook tokens and credentials are encrypted at rest"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port                  string        `env:"PORT,default=8080" description:"HTTP server port"`
	ReadTimeout           time.Duration `env:"READ_TIMEOUT,default=120s" description:"HTTP server read timeout"`
	WriteTimeout          time.Duration `env:"WRITE_TIMEOUT,default=120s" description:"HTTP server write timeout"`
	IdleTimeout           time.Duration `env:"IDLE_TIMEOUT,default=120s" description:"HTTP server idle timeout"`
	DisableHealthcheckLog bool          `env:"DISABLE_HEALTHCHECK_LOG,default=true" description:"Disable logging for health check requests"`
	TLSConfig             TLSConfig     `env:",prefix=TLS_"`
}

// MetricsConfig holds metrics server configuration
type MetricsConfig struct {
	Port         string        `env:"PORT,default=9090" description:"Metrics server port"`
	Host         string        `env:"HOST,default=" description:"Metrics server host (empty for all interfaces)"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT,default=30s" description:"Metrics server read timeout"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT,default=30s" description:"Metrics server write timeout"`
	IdleTimeout  time.Duration `env:"IDLE_TIMEOUT,default=60s" description:"Metrics server idle timeout"`
}

// TelemetryConfig holds telemetry configuration
type TelemetryConfig struct {
	Enable        bool          `env:"ENABLE,default=false" description:"Enable telemetry collection"`
	MetricsConfig MetricsConfig `env:",prefix=METRICS_"`
}

// ArtifactsConfig holds artifact storage configuration
type ArtifactsConfig struct {
	Enable        bool                   `env:"ENABLE,default=false" description:"Enable artifact storage offload"`
	StorageConfig ArtifactsStorageConfig `env:",prefix=STORAGE_" description:"Storage configuration for artifacts"`
}

// ArtifactsStorageConfig holds storage configuration for artifacts
type ArtifactsStorageConfig struct {
	Provider   string `env:"PROVIDER,default=filesystem" description:"Storage provider (filesystem, minio)"`
	BasePath   string `env:"BASE_PATH,default=./artifacts" description:"Base path for filesystem storage"`
	BaseURL    string `env:"BASE_URL" description:"Base URL for accessing stored artifacts"`
	Endpoint   string `env:"ENDPOINT" description:"Storage endpoint URL (for MinIO)"`
	AccessKey  string `env:"ACCESS_KEY" description:"Storage access key"`
	SecretKey  string `env:"SECRET_KEY" description:"Storage secret key"`
	BucketName string `env:"BUCKET_NAME,default=artifacts" description:"Storage bucket name"`
	Region     string `env:"REGION,default=us-east-1" description:"Storage region"`
	UseSSL     bool   `env:"USE_SSL,default=true" description:"Use SSL for storage connections"`
}

// Load loads configuration from environment variables, merging with the provided base config.
func Load(ctx context.Context, baseConfig *Config) (*Config, error) {
	return LoadWithLookuper(ctx, baseConfig, envconfig.OsLookuper())
}

// LoadWithLookuper creates and loads configuration using a custom lookuper and merges with user config
func LoadWithLookuper(ctx context.Context, baseConfig *Config, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config

	if baseConfig != nil {
		cfg = *baseConfig
	}

	err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	})
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// NewWithDefaults creates a new config with defaults applied from struct tags.
func NewWithDefaults(ctx context.Context, baseConfig *Config) (*Config, error) {
	return LoadWithLookuper(ctx, baseConfig, &emptyLookuper{})
}

// emptyLookuper ensures that only default values from struct tags are used
type emptyLookuper struct{}

func (e *emptyLookuper) Lookup(key string) (string, bool) {
	return "", false
}

// Validate validates the configuration and applies corrections for invalid values
func (c *Config) Validate() error {
	switch c.StorageConfig.Provider {
	case "memory", "sqlite", "redis":
	default:
		return fmt.Errorf("invalid storage provider '%s'", c.StorageConfig.Provider)
	}

	if c.StorageConfig.Provider == "redis" && c.StorageConfig.URL == "" {
		return fmt.Errorf("storage provider 'redis' requires STORAGE_URL")
	}

	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone '%s': %w", c.Timezone, err)
	}

	return nil
}

// GetTimezone returns the timezone location for timestamps
func (c *Config) GetTimezone() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// GetCurrentTime returns the current time in the configured timezone
func (c *Config) GetCurrentTime() (time.Time, error) {
	loc, err := c.GetTimezone()
	if err != nil {
		return time.Time{}, err
	}
	return time.Now().In(loc), nil
}

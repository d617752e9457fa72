package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server        ServerConfig
	Directory     DirectoryConfig
	Auth          AuthConfig
	Catalog       CatalogConfig
	Cache         CacheConfig
	Audit         AuditConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// DirectoryConfig holds the external Directory connection settings.
type DirectoryConfig struct {
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Audience     string
	Timeout      time.Duration

	// ApplicationID scopes the permissions and roles this deployment owns.
	ApplicationID string
}

// AuthConfig holds token verification and guard settings.
type AuthConfig struct {
	IssuerURL string
	Audience  string

	// ClaimsNamespace prefixes the custom claim keys.
	ClaimsNamespace  string
	GroupsClaim      string
	PermissionsClaim string

	// PublicOrg is the organization anonymous requests are scoped to.
	PublicOrg string
}

// CatalogConfig holds scope catalog and reconciliation settings.
type CatalogConfig struct {
	// Path to a YAML catalog file; empty means the compiled-in catalog.
	Path string

	// WatchEnabled reloads the catalog file on change and triggers a
	// reconciliation pass.
	WatchEnabled bool

	// ReconcileSchedule is a cron expression; empty disables the schedule.
	ReconcileSchedule string
}

// CacheConfig holds membership cache settings.
type CacheConfig struct {
	Enabled bool

	RedisURL      string
	RedisPassword string
	RedisDB       int

	TTL    time.Duration
	L1Size int
}

// AuditConfig holds the audit sink settings.
type AuditConfig struct {
	// PostgresURL enables the database audit sink; empty disables auditing.
	PostgresURL string
}

// ObservabilityConfig holds logging, metrics and tracing settings.
type ObservabilityConfig struct {
	LogLevel string

	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("AUTHCORE_HOST", "0.0.0.0"),
			Port:            getEnv("AUTHCORE_PORT", "8080"),
			ReadTimeout:     getEnvDuration("AUTHCORE_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("AUTHCORE_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("AUTHCORE_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("AUTHCORE_SHUTDOWN_TIMEOUT", 30*time.Second),
			HealthPort:      getEnv("AUTHCORE_HEALTH_PORT", "9090"),
		},
		Directory: DirectoryConfig{
			BaseURL:       getEnv("AUTHCORE_DIRECTORY_URL", ""),
			TokenURL:      getEnv("AUTHCORE_DIRECTORY_TOKEN_URL", ""),
			ClientID:      getEnv("AUTHCORE_DIRECTORY_CLIENT_ID", ""),
			ClientSecret:  getEnv("AUTHCORE_DIRECTORY_CLIENT_SECRET", ""),
			Audience:      getEnv("AUTHCORE_DIRECTORY_AUDIENCE", ""),
			Timeout:       getEnvDuration("AUTHCORE_DIRECTORY_TIMEOUT", 10*time.Second),
			ApplicationID: getEnv("AUTHCORE_APPLICATION_ID", ""),
		},
		Auth: AuthConfig{
			IssuerURL:        getEnv("AUTHCORE_ISSUER_URL", ""),
			Audience:         getEnv("AUTHCORE_AUDIENCE", ""),
			ClaimsNamespace:  getEnv("AUTHCORE_CLAIMS_NAMESPACE", "https://geodeck.io/"),
			GroupsClaim:      getEnv("AUTHCORE_GROUPS_CLAIM", "groups"),
			PermissionsClaim: getEnv("AUTHCORE_PERMISSIONS_CLAIM", "permissions"),
			PublicOrg:        getEnv("AUTHCORE_PUBLIC_ORG", "GEODECK-PUBLIC"),
		},
		Catalog: CatalogConfig{
			Path:              getEnv("AUTHCORE_CATALOG_PATH", ""),
			WatchEnabled:      getEnvBool("AUTHCORE_CATALOG_WATCH", false),
			ReconcileSchedule: getEnv("AUTHCORE_RECONCILE_SCHEDULE", "0 * * * *"),
		},
		Cache: CacheConfig{
			Enabled:       getEnvBool("AUTHCORE_CACHE_ENABLED", true),
			RedisURL:      getEnv("AUTHCORE_REDIS_URL", ""),
			RedisPassword: getEnv("AUTHCORE_REDIS_PASSWORD", ""),
			RedisDB:       getEnvInt("AUTHCORE_REDIS_DB", 0),
			TTL:           getEnvDuration("AUTHCORE_CACHE_TTL", 5*time.Minute),
			L1Size:        getEnvInt("AUTHCORE_CACHE_L1_SIZE", 4096),
		},
		Audit: AuditConfig{
			PostgresURL: getEnv("AUTHCORE_AUDIT_POSTGRES_URL", ""),
		},
		Observability: ObservabilityConfig{
			LogLevel:           getEnv("AUTHCORE_LOG_LEVEL", "info"),
			MetricsEnabled:     getEnvBool("AUTHCORE_METRICS_ENABLED", true),
			OTelEnabled:        getEnvBool("AUTHCORE_OTEL_ENABLED", false),
			OTelEndpoint:       getEnv("AUTHCORE_OTEL_ENDPOINT", "localhost:4317"),
			OTelServiceName:    getEnv("AUTHCORE_OTEL_SERVICE_NAME", "authcore"),
			OTelServiceVersion: getEnv("AUTHCORE_OTEL_SERVICE_VERSION", "1.0.0"),
			OTelInsecure:       getEnvBool("AUTHCORE_OTEL_INSECURE", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Directory.BaseURL == "" {
		return fmt.Errorf("directory URL is required")
	}
	if c.Directory.ApplicationID == "" {
		return fmt.Errorf("application id is required")
	}
	if c.Directory.ClientID != "" && c.Directory.TokenURL == "" {
		return fmt.Errorf("directory token URL is required when client credentials are set")
	}

	if c.Auth.IssuerURL == "" {
		return fmt.Errorf("issuer URL is required")
	}
	if c.Auth.PublicOrg == "" {
		return fmt.Errorf("public organization name is required")
	}

	if c.Catalog.WatchEnabled && c.Catalog.Path == "" {
		return fmt.Errorf("catalog path is required when catalog watching is enabled")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}
	return nil
}

// getEnv returns an environment variable value or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

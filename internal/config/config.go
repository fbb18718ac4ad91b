// Package config loads configuration from files, env vars, and flags, and validates it.
package config

import (
	"time"

	"autoapi/internal/naming"
)

// Config holds the application configuration.
type Config struct {
	Connectors    map[string]ConnectorConfig `mapstructure:"connectors"`
	Entities      EntitiesConfig             `mapstructure:"entities"`
	Server        ServerConfig               `mapstructure:"server"`
	Planner       PlannerConfig              `mapstructure:"planner"`
	Observability ObservabilityConfig        `mapstructure:"observability"`
	Naming        naming.Config              `mapstructure:"naming"`
}

// EntitiesConfig points at the YAML entity definitions.
type EntitiesConfig struct {
	// Dir is scanned for *.yaml and *.yml files.
	Dir string `mapstructure:"dir"`
	// Files are loaded after Dir, in order.
	Files []string `mapstructure:"files"`
}

// PoolConfig holds connection pool parameters.
type PoolConfig struct {
	MaxOpen     int           `mapstructure:"max_open"`
	MaxIdle     int           `mapstructure:"max_idle"`
	MaxLifetime time.Duration `mapstructure:"max_lifetime"`
}

// TLSConfig holds TLS settings for MySQL connectors.
type TLSConfig struct {
	// Mode is one of off, skip-verify, verify-ca, verify-full.
	Mode       string `mapstructure:"mode"`
	CAFile     string `mapstructure:"ca_file"`
	CertFile   string `mapstructure:"cert_file"`
	KeyFile    string `mapstructure:"key_file"`
	ServerName string `mapstructure:"server_name"`
}

// ConnectorConfig is one named data source. Entities pick a connector by
// name; entities without one use "default".
type ConnectorConfig struct {
	// Driver is mysql, postgres or sqlite.
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
	// DSNFile holds the DSN; "@-" reads it from stdin.
	DSNFile string `mapstructure:"dsn_file"`
	// Password replaces the password embedded in the DSN.
	Password       string    `mapstructure:"password"`
	PasswordFile   string    `mapstructure:"password_file"`
	PasswordPrompt bool      `mapstructure:"password_prompt"`
	TLS            TLSConfig `mapstructure:"tls"`

	Pool PoolConfig `mapstructure:"pool"`

	// ConnectionTimeout is the max time to wait for the database on startup.
	ConnectionTimeout time.Duration `mapstructure:"connection_timeout"`
	// ConnectionRetryInterval is the initial interval between connection retries.
	ConnectionRetryInterval time.Duration `mapstructure:"connection_retry_interval"`
}

// PlannerConfig bounds generated queries.
type PlannerConfig struct {
	// DefaultLimit applies to GraphQL list queries without take. Zero is unbounded.
	DefaultLimit int `mapstructure:"default_limit"`
	// MaxInClause splits relation loads into chunks of at most this many keys.
	MaxInClause int `mapstructure:"max_in_clause"`
}

// AuthConfig selects how bearer tokens are verified. With neither secret
// nor OIDC configured every request is anonymous.
type AuthConfig struct {
	JWTSecret     string        `mapstructure:"jwt_secret"`
	JWTSecretFile string        `mapstructure:"jwt_secret_file"`
	JWTIssuer     string        `mapstructure:"jwt_issuer"`
	JWTAudience   string        `mapstructure:"jwt_audience"`
	RolesClaim    string        `mapstructure:"roles_claim"`
	ClockSkew     time.Duration `mapstructure:"clock_skew"`

	OIDCEnabled       bool   `mapstructure:"oidc_enabled"`
	OIDCIssuerURL     string `mapstructure:"oidc_issuer_url"`
	OIDCAudience      string `mapstructure:"oidc_audience"`
	OIDCCAFile        string `mapstructure:"oidc_ca_file"`
	OIDCSkipTLSVerify bool   `mapstructure:"oidc_skip_tls_verify"`
}

// Enabled reports whether any token verifier is configured.
func (a AuthConfig) Enabled() bool {
	return a.OIDCEnabled || a.JWTSecret != ""
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port               int           `mapstructure:"port"`
	GraphQLPath        string        `mapstructure:"graphql_path"`
	RESTPrefix         string        `mapstructure:"rest_prefix"`
	RESTEnabled        bool          `mapstructure:"rest_enabled"`
	GraphiQLEnabled    bool          `mapstructure:"graphiql_enabled"`
	Auth               AuthConfig    `mapstructure:"auth"`
	RateLimitEnabled   bool          `mapstructure:"rate_limit_enabled"`
	RateLimitRPS       float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst     int           `mapstructure:"rate_limit_burst"`
	CORS               CORSConfig    `mapstructure:"cors"`
	ReadTimeout        time.Duration `mapstructure:"read_timeout"`
	WriteTimeout       time.Duration `mapstructure:"write_timeout"`
	IdleTimeout        time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout"`
	HealthCheckTimeout time.Duration `mapstructure:"health_check_timeout"`
	TLSCertFile        string        `mapstructure:"tls_cert_file"`
	TLSKeyFile         string        `mapstructure:"tls_key_file"`
}

// CORSConfig holds cross-origin settings.
type CORSConfig struct {
	Enabled          bool     `mapstructure:"enabled"`
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	ExposeHeaders    []string `mapstructure:"expose_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

// LoggingConfig holds logging parameters.
type LoggingConfig struct {
	Level          string `mapstructure:"level"`           // debug, info, warn, error
	Format         string `mapstructure:"format"`          // json, text
	ExportsEnabled bool   `mapstructure:"exports_enabled"` // Enable OTLP log export
}

// ObservabilityConfig holds observability parameters.
type ObservabilityConfig struct {
	ServiceName      string        `mapstructure:"service_name"`
	ServiceVersion   string        `mapstructure:"service_version"`
	Environment      string        `mapstructure:"environment"`
	MetricsEnabled   bool          `mapstructure:"metrics_enabled"`
	TracingEnabled   bool          `mapstructure:"tracing_enabled"`
	TraceSampleRatio float64       `mapstructure:"trace_sample_ratio"`
	Logging          LoggingConfig `mapstructure:"logging"`

	// Global OTLP settings (defaults for all signals)
	OTLP OTLPConfig `mapstructure:"otlp"`

	// Signal-specific overrides (optional)
	Traces *OTLPConfig `mapstructure:"traces,omitempty"`
	Logs   *OTLPConfig `mapstructure:"logs,omitempty"`
}

// OTLPConfig holds OTLP exporter configuration
type OTLPConfig struct {
	Endpoint    string            `mapstructure:"endpoint"`
	Protocol    string            `mapstructure:"protocol"` // "grpc", "http/protobuf"
	Insecure    bool              `mapstructure:"insecure"`
	TLSCertFile string            `mapstructure:"tls_cert_file"`
	Headers     map[string]string `mapstructure:"headers"`
	Timeout     time.Duration     `mapstructure:"timeout"`
	Compression string            `mapstructure:"compression"` // "none", "gzip"
}

// GetTracesConfig returns the effective OTLP config for traces
func (c *ObservabilityConfig) GetTracesConfig() OTLPConfig {
	if c.Traces != nil {
		return mergeOTLPConfigs(c.OTLP, *c.Traces)
	}
	return c.OTLP
}

// GetLogsConfig returns the effective OTLP config for logs
func (c *ObservabilityConfig) GetLogsConfig() OTLPConfig {
	if c.Logs != nil {
		return mergeOTLPConfigs(c.OTLP, *c.Logs)
	}
	return c.OTLP
}

// mergeOTLPConfigs lays signal-specific values over the global ones.
func mergeOTLPConfigs(base OTLPConfig, override OTLPConfig) OTLPConfig {
	result := base

	if override.Endpoint != "" {
		result.Endpoint = override.Endpoint
	}
	if override.Protocol != "" {
		result.Protocol = override.Protocol
	}
	// A bool cannot tell unset from false; an override block always wins.
	result.Insecure = override.Insecure

	if override.TLSCertFile != "" {
		result.TLSCertFile = override.TLSCertFile
	}
	if override.Headers != nil {
		result.Headers = make(map[string]string, len(base.Headers)+len(override.Headers))
		for k, v := range base.Headers {
			result.Headers[k] = v
		}
		for k, v := range override.Headers {
			result.Headers[k] = v
		}
	}
	if override.Timeout != 0 {
		result.Timeout = override.Timeout
	}
	if override.Compression != "" {
		result.Compression = override.Compression
	}
	return result
}

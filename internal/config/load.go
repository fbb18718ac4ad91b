package config

import (
	"fmt"
	"io"
	"os"
	"reflect"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

// EnvPrefix prefixes every environment variable: AUTOAPI_SERVER_PORT.
const EnvPrefix = "AUTOAPI"

// DefaultConnector is the connector used by entities that name none.
const DefaultConnector = "default"

var defineFlagsOnce sync.Once

// Load loads configuration from multiple sources with the following precedence:
// 1. Command line flags
// 2. Environment variables
// 3. Config file
// 4. Default values
//
// Secrets referenced by *_file settings and password prompts are resolved
// after unmarshalling.
func Load() (*Config, error) {
	defineFlagsOnce.Do(func() { defineFlags(pflag.CommandLine) })
	if !pflag.Parsed() {
		pflag.Parse()
	}
	return loadWith(viper.New(), pflag.CommandLine)
}

func loadWith(v *viper.Viper, fs *pflag.FlagSet) (*Config, error) {
	// Defaults (lowest priority)
	setDefaults(v)

	// --- Config file ---
	cfgPath, _ := fs.GetString("config")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.SetConfigName("autoapi")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/autoapi/")
		v.AddConfigPath("$HOME/.autoapi")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		if cfgPath != "" {
			return nil, fmt.Errorf("failed to read config file %q: %w", cfgPath, err)
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// --- Environment variables ---
	// Canonical keys: dot + snake_case
	// Env vars: AUTOAPI_PLANNER_MAX_IN_CLAUSE
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	// Connectors are a map, so AutomaticEnv cannot discover them; the
	// default connector is reachable from the environment explicitly.
	for _, key := range []string{"driver", "dsn", "dsn_file", "password", "password_file"} {
		_ = v.BindEnv("connectors." + DefaultConnector + "." + key)
	}

	// --- Flags binding (highest normal priority) ---
	bindChangedFlagsToViper(v, fs)

	var cfg Config
	if err := v.UnmarshalExact(
		&cfg,
		viper.DecodeHook(
			mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				stringToStringSliceHookFunc(","),
			),
		),
	); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	for name, conn := range cfg.Connectors {
		conn.applyDefaults()
		cfg.Connectors[name] = conn
	}
	if err := cfg.resolveSecrets(promptPassword); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// resolveSecrets reads DSN, password and JWT secret files and prompts for
// passwords where requested. Only one setting may read from stdin.
func (c *Config) resolveSecrets(prompt func(connector string) (string, error)) error {
	if err := c.validateSingleStdinSource(); err != nil {
		return err
	}

	for _, name := range c.ConnectorNames() {
		conn := c.Connectors[name]
		if conn.DSN == "" && conn.DSNFile != "" {
			dsn, err := readSecretFile(conn.DSNFile)
			if err != nil {
				return fmt.Errorf("failed to read DSN file of connector %s: %w", name, err)
			}
			conn.DSN = dsn
		}
		if conn.Password == "" && conn.PasswordFile != "" {
			pwd, err := readSecretFile(conn.PasswordFile)
			if err != nil {
				return fmt.Errorf("failed to read password file of connector %s: %w", name, err)
			}
			conn.Password = pwd
		}
		if conn.Password == "" && conn.PasswordPrompt {
			pwd, err := prompt(name)
			if err != nil {
				return fmt.Errorf("failed to read password: %w", err)
			}
			conn.Password = pwd
		}
		c.Connectors[name] = conn
	}

	auth := &c.Server.Auth
	if auth.JWTSecret == "" && auth.JWTSecretFile != "" {
		secret, err := readSecretFile(auth.JWTSecretFile)
		if err != nil {
			return fmt.Errorf("failed to read JWT secret file: %w", err)
		}
		if secret == "" {
			return fmt.Errorf("JWT secret file %q is empty", auth.JWTSecretFile)
		}
		auth.JWTSecret = secret
	}
	return nil
}

// ConnectorNames returns the configured connector names in sorted order.
func (c *Config) ConnectorNames() []string {
	names := make([]string, 0, len(c.Connectors))
	for name := range c.Connectors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *Config) validateSingleStdinSource() error {
	var configured []string
	for _, name := range c.ConnectorNames() {
		conn := c.Connectors[name]
		if strings.TrimSpace(conn.DSNFile) == "@-" {
			configured = append(configured, "connectors."+name+".dsn_file")
		}
		if strings.TrimSpace(conn.PasswordFile) == "@-" {
			configured = append(configured, "connectors."+name+".password_file")
		}
	}
	if strings.TrimSpace(c.Server.Auth.JWTSecretFile) == "@-" {
		configured = append(configured, "server.auth.jwt_secret_file")
	}
	if len(configured) > 1 {
		return fmt.Errorf(
			"multiple stdin-backed file settings use @- (%s); only one @- source is allowed",
			strings.Join(configured, ", "),
		)
	}
	return nil
}

// bindChangedFlagsToViper copies only explicitly-set flags into Viper,
// preserving precedence: flags > env > file > defaults.
func bindChangedFlagsToViper(v *viper.Viper, fs *pflag.FlagSet) {
	fs.Visit(func(f *pflag.Flag) {
		if f.Name == "config" || f.Name == "version" {
			return
		}

		switch f.Value.Type() {
		case "string":
			val, _ := fs.GetString(f.Name)
			v.Set(f.Name, val)
		case "int":
			val, _ := fs.GetInt(f.Name)
			v.Set(f.Name, val)
		case "bool":
			val, _ := fs.GetBool(f.Name)
			v.Set(f.Name, val)
		case "float64":
			val, _ := fs.GetFloat64(f.Name)
			v.Set(f.Name, val)
		case "duration":
			val, _ := fs.GetDuration(f.Name)
			v.Set(f.Name, val)
		case "stringSlice":
			val, _ := fs.GetStringSlice(f.Name)
			v.Set(f.Name, val)
		default:
			v.Set(f.Name, f.Value.String())
		}
	})
}

// defineFlags defines all command line flags using canonical snake_case keys.
func defineFlags(fs *pflag.FlagSet) {
	// Default connector flags
	fs.String("connectors.default.driver", "", "Driver of the default connector (mysql, postgres, sqlite)")
	fs.String("connectors.default.dsn", "", "DSN of the default connector")
	fs.String("connectors.default.dsn_file", "", "Path to file containing the default connector DSN (use @- for stdin)")
	fs.String("connectors.default.password_file", "", "Path to file containing the default connector password (use @- for stdin)")
	fs.Bool("connectors.default.password_prompt", false, "Prompt for the default connector password securely")

	// Entity definition flags
	fs.String("entities.dir", "", "Directory of entity definition files")
	fs.StringSlice("entities.files", nil, "Entity definition files (comma-separated or repeated)")

	// Planner flags
	fs.Int("planner.default_limit", 0, "Default page size of GraphQL list queries without take")
	fs.Int("planner.max_in_clause", 0, "Maximum keys per IN clause in relation loads")

	// Server flags
	fs.Int("server.port", 0, "HTTP server port")
	fs.String("server.graphql_path", "", "GraphQL endpoint path")
	fs.String("server.rest_prefix", "", "Path prefix of the REST routes")
	fs.Bool("server.rest_enabled", false, "Serve the REST routes")
	fs.Bool("server.graphiql_enabled", false, "Enable GraphiQL UI (dev only)")
	fs.String("server.auth.jwt_secret_file", "", "Path to file containing the HS256 token secret (use @- for stdin)")
	fs.String("server.auth.jwt_issuer", "", "Expected issuer of HS256 tokens")
	fs.String("server.auth.jwt_audience", "", "Expected audience of HS256 tokens")
	fs.String("server.auth.roles_claim", "", "Claim path holding user roles (e.g. realm_access.roles)")
	fs.Duration("server.auth.clock_skew", 0, "Allowed token clock skew (e.g. 2m)")
	fs.Bool("server.auth.oidc_enabled", false, "Verify tokens against an OIDC provider")
	fs.String("server.auth.oidc_issuer_url", "", "OIDC issuer URL (for discovery and JWKS)")
	fs.String("server.auth.oidc_audience", "", "Expected JWT audience (client ID)")
	fs.String("server.auth.oidc_ca_file", "", "CA bundle for the OIDC provider")
	fs.Bool("server.auth.oidc_skip_tls_verify", false, "Skip TLS verification for OIDC provider (dev only)")
	fs.Bool("server.rate_limit_enabled", false, "Enable global rate limiting for all HTTP endpoints")
	fs.Float64("server.rate_limit_rps", 0, "Global rate limit requests per second")
	fs.Int("server.rate_limit_burst", 0, "Global rate limit burst size")
	fs.Bool("server.cors.enabled", false, "Enable CORS (Cross-Origin Resource Sharing)")
	fs.StringSlice("server.cors.allowed_origins", nil, "Allowed CORS origins (comma-separated or repeated)")
	fs.Bool("server.cors.allow_credentials", false, "Allow credentials in CORS requests")
	fs.Duration("server.read_timeout", 0, "HTTP server read timeout")
	fs.Duration("server.write_timeout", 0, "HTTP server write timeout")
	fs.Duration("server.idle_timeout", 0, "HTTP server idle timeout")
	fs.Duration("server.shutdown_timeout", 0, "HTTP server graceful shutdown timeout")
	fs.Duration("server.health_check_timeout", 0, "Health check timeout")
	fs.String("server.tls_cert_file", "", "Path to TLS certificate file")
	fs.String("server.tls_key_file", "", "Path to TLS private key file")

	// Observability flags
	fs.String("observability.service_name", "", "Service name for observability")
	fs.String("observability.service_version", "", "Service version for observability")
	fs.String("observability.environment", "", "Environment name (dev, staging, prod)")
	fs.Bool("observability.metrics_enabled", false, "Enable metrics collection")
	fs.Bool("observability.tracing_enabled", false, "Enable distributed tracing")
	fs.Float64("observability.trace_sample_ratio", 0, "Trace sampling ratio from 0.0 to 1.0")
	fs.String("observability.logging.level", "", "Log level (debug, info, warn, error)")
	fs.String("observability.logging.format", "", "Log format (json, text)")
	fs.Bool("observability.logging.exports_enabled", false, "Enable OTLP log export")
	fs.String("observability.otlp.endpoint", "", "OTLP endpoint for all signals (e.g., localhost:4317)")
	fs.String("observability.otlp.protocol", "", "OTLP protocol for all signals (grpc, http/protobuf)")
	fs.Bool("observability.otlp.insecure", false, "Use insecure connection (no TLS)")
	fs.Duration("observability.otlp.timeout", 0, "OTLP export timeout")
	fs.String("observability.otlp.compression", "", "OTLP compression (none, gzip)")

	// Config file flag
	fs.StringP("config", "c", "", "Config file path")
}

// setDefaults sets default values (lowest precedence).
func setDefaults(v *viper.Viper) {
	// Entity defaults
	v.SetDefault("entities.dir", "")
	v.SetDefault("entities.files", []string{})

	// Planner defaults
	v.SetDefault("planner.default_limit", 100)
	v.SetDefault("planner.max_in_clause", 1000)

	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.graphql_path", "/graphql")
	v.SetDefault("server.rest_prefix", "/table")
	v.SetDefault("server.rest_enabled", true)
	v.SetDefault("server.graphiql_enabled", false)
	v.SetDefault("server.auth.jwt_secret", "")
	v.SetDefault("server.auth.jwt_secret_file", "")
	v.SetDefault("server.auth.jwt_issuer", "")
	v.SetDefault("server.auth.jwt_audience", "")
	v.SetDefault("server.auth.roles_claim", "roles")
	v.SetDefault("server.auth.clock_skew", 2*time.Minute)
	v.SetDefault("server.auth.oidc_enabled", false)
	v.SetDefault("server.auth.oidc_issuer_url", "")
	v.SetDefault("server.auth.oidc_audience", "")
	v.SetDefault("server.auth.oidc_ca_file", "")
	v.SetDefault("server.auth.oidc_skip_tls_verify", false)
	v.SetDefault("server.rate_limit_enabled", false)
	v.SetDefault("server.rate_limit_rps", 0.0)
	v.SetDefault("server.rate_limit_burst", 0)
	v.SetDefault("server.cors.enabled", false)
	v.SetDefault("server.cors.allowed_origins", []string{})
	v.SetDefault("server.cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	v.SetDefault("server.cors.allowed_headers", []string{"Content-Type", "Authorization"})
	v.SetDefault("server.cors.expose_headers", []string{})
	v.SetDefault("server.cors.allow_credentials", false)
	v.SetDefault("server.cors.max_age", 86400)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.health_check_timeout", 2*time.Second)
	v.SetDefault("server.tls_cert_file", "")
	v.SetDefault("server.tls_key_file", "")

	// Observability defaults
	v.SetDefault("observability.service_name", "autoapi")
	v.SetDefault("observability.service_version", "")
	v.SetDefault("observability.environment", "development")
	v.SetDefault("observability.metrics_enabled", true)
	v.SetDefault("observability.tracing_enabled", false)
	v.SetDefault("observability.trace_sample_ratio", 1.0)
	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "json")
	v.SetDefault("observability.logging.exports_enabled", false)
	v.SetDefault("observability.otlp.endpoint", "localhost:4317")
	v.SetDefault("observability.otlp.protocol", "grpc")
	v.SetDefault("observability.otlp.insecure", false)
	v.SetDefault("observability.otlp.tls_cert_file", "")
	v.SetDefault("observability.otlp.timeout", 10*time.Second)
	v.SetDefault("observability.otlp.compression", "gzip")

	// Naming defaults
	v.SetDefault("naming.plural_overrides", map[string]string{})
	v.SetDefault("naming.singular_overrides", map[string]string{})
	v.SetDefault("naming.uncountable", []string{})
}

// applyDefaults fills pool and retry settings a connector left unset.
func (c *ConnectorConfig) applyDefaults() {
	if c.Pool.MaxOpen == 0 {
		c.Pool.MaxOpen = 25
	}
	if c.Pool.MaxIdle == 0 {
		c.Pool.MaxIdle = 5
	}
	if c.Pool.MaxLifetime == 0 {
		c.Pool.MaxLifetime = 5 * time.Minute
	}
	if c.ConnectionRetryInterval == 0 {
		c.ConnectionRetryInterval = 2 * time.Second
	}
}

// promptPassword prompts the user for a password without echoing to terminal.
func promptPassword(connector string) (string, error) {
	fmt.Printf("Enter password for connector %s: ", connector)
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(bytePassword), nil
}

func readSecretFile(path string) (string, error) {
	var data []byte
	var err error

	if strings.TrimSpace(path) == "@-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func stringToStringSliceHookFunc(sep string) mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if from.Kind() != reflect.String || to != reflect.TypeOf([]string{}) {
			return data, nil
		}

		raw := strings.TrimSpace(data.(string))
		if raw == "" {
			return []string{}, nil
		}

		parts := strings.Split(raw, sep)
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts, nil
	}
}

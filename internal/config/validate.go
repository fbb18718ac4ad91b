package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"autoapi/internal/naming"
)

// ValidationError represents a configuration validation error with context.
type ValidationError struct {
	Field   string
	Message string
	Hint    string
}

func (e ValidationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s (hint: %s)", e.Field, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Field   string
	Message string
	Hint    string
}

// ValidationResult contains the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Error returns a combined error message if there are validation errors.
func (r *ValidationResult) Error() string {
	if !r.HasErrors() {
		return ""
	}
	var msgs []string
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

func (r *ValidationResult) addError(field, message, hint string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message, Hint: hint})
}

func (r *ValidationResult) addWarning(field, message, hint string) {
	r.Warnings = append(r.Warnings, ValidationWarning{Field: field, Message: message, Hint: hint})
}

// Validate checks the configuration for errors and returns validation results.
// It returns both errors (fatal) and warnings (non-fatal issues).
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{}

	if len(c.Connectors) == 0 {
		result.addError("connectors", "no connectors configured",
			"set connectors.default.dsn or AUTOAPI_CONNECTORS_DEFAULT_DSN")
	}
	for _, name := range c.ConnectorNames() {
		conn := c.Connectors[name]
		conn.validate("connectors."+name, result)
	}

	if c.Entities.Dir == "" && len(c.Entities.Files) == 0 {
		result.addError("entities", "no entity definitions configured", "set entities.dir or entities.files")
	}

	c.Planner.validate(result)
	c.Server.validate(result)
	c.Observability.validate(result)
	validateNamingConfig(result, c.Naming)

	return result
}

func (c *ConnectorConfig) validate(prefix string, result *ValidationResult) {
	switch c.DriverName() {
	case DriverMySQL, DriverPostgres, DriverSQLite:
	default:
		result.addError(prefix+".driver", fmt.Sprintf("unsupported driver %q", c.Driver), "valid values are: mysql, postgres, sqlite")
	}
	if strings.TrimSpace(c.DSN) == "" {
		result.addError(prefix+".dsn", "dsn is required", "set dsn or dsn_file")
	} else if _, err := c.EffectiveDSN(strings.TrimPrefix(prefix, "connectors.")); err != nil {
		result.addError(prefix+".dsn", err.Error(), "")
	}

	validModes := map[string]bool{"": true, "off": true, "skip-verify": true, "verify-ca": true, "verify-full": true}
	if !validModes[c.TLS.Mode] {
		result.addError(prefix+".tls.mode", fmt.Sprintf("invalid TLS mode %q", c.TLS.Mode),
			"valid values are: off, skip-verify, verify-ca, verify-full")
	}
	if c.TLS.Mode != "" && c.DriverName() != DriverMySQL {
		result.addWarning(prefix+".tls.mode", "tls settings only apply to mysql connectors",
			"configure TLS in the DSN for other drivers")
	}
	if (c.TLS.Mode == "verify-ca" || c.TLS.Mode == "verify-full") && c.TLS.CAFile == "" {
		result.addError(prefix+".tls.ca_file", "CA file is required for verify-ca and verify-full modes", "")
	}
	if (c.TLS.CertFile == "") != (c.TLS.KeyFile == "") {
		result.addError(prefix+".tls.cert_file", "both cert_file and key_file must be specified for client certificate authentication",
			"provide both cert_file and key_file, or neither")
	}
	if c.TLS.Mode == "skip-verify" {
		result.addWarning(prefix+".tls.mode", "skip-verify mode does not verify server certificates",
			"use verify-ca or verify-full in production")
	}

	if c.Pool.MaxOpen < 0 {
		result.addError(prefix+".pool.max_open", "max_open cannot be negative", "")
	}
	if c.Pool.MaxIdle < 0 {
		result.addError(prefix+".pool.max_idle", "max_idle cannot be negative", "")
	}
	if c.Pool.MaxIdle > c.Pool.MaxOpen && c.Pool.MaxOpen > 0 {
		result.addWarning(prefix+".pool.max_idle", "max_idle is greater than max_open",
			"idle connections will be limited to max_open")
	}
	if c.ConnectionTimeout < 0 {
		result.addError(prefix+".connection_timeout", "connection_timeout cannot be negative", "")
	}
	if c.ConnectionRetryInterval < 0 {
		result.addError(prefix+".connection_retry_interval", "connection_retry_interval cannot be negative", "")
	}
	if c.ConnectionTimeout > 0 && c.ConnectionRetryInterval > c.ConnectionTimeout {
		result.addWarning(prefix+".connection_retry_interval", "connection_retry_interval is greater than connection_timeout",
			"only one connection attempt will be made")
	}
}

func (p *PlannerConfig) validate(result *ValidationResult) {
	if p.DefaultLimit < 0 {
		result.addError("planner.default_limit", "default_limit cannot be negative", "")
	}
	if p.MaxInClause < 0 {
		result.addError("planner.max_in_clause", "max_in_clause cannot be negative", "")
	}
}

func (s *ServerConfig) validate(result *ValidationResult) {
	if s.Port < 1 || s.Port > 65535 {
		result.addError("server.port", fmt.Sprintf("port %d is out of valid range (1-65535)", s.Port), "")
	}
	if !strings.HasPrefix(s.GraphQLPath, "/") {
		result.addError("server.graphql_path", fmt.Sprintf("path %q must start with /", s.GraphQLPath), "")
	}
	if s.RESTEnabled && (!strings.HasPrefix(s.RESTPrefix, "/") || s.RESTPrefix == "/") {
		result.addError("server.rest_prefix", fmt.Sprintf("prefix %q must start with / and name a path", s.RESTPrefix), "")
	}
	if s.RESTEnabled && strings.TrimRight(s.RESTPrefix, "/") == strings.TrimRight(s.GraphQLPath, "/") {
		result.addError("server.rest_prefix", "rest_prefix collides with graphql_path", "")
	}

	if s.RateLimitEnabled {
		if s.RateLimitRPS <= 0 {
			result.addError("server.rate_limit_rps", "rate_limit_rps must be greater than 0 when rate limiting is enabled", "")
		}
		if s.RateLimitBurst <= 0 {
			result.addError("server.rate_limit_burst", "rate_limit_burst must be greater than 0 when rate limiting is enabled", "")
		}
	}
	if !s.RateLimitEnabled && (s.RateLimitRPS > 0 || s.RateLimitBurst > 0) {
		result.addWarning("server.rate_limit_enabled", "rate limit values are set but rate limiting is disabled",
			"enable server.rate_limit_enabled to apply rate limits")
	}

	if s.CORS.Enabled {
		if len(s.CORS.AllowedOrigins) == 0 {
			result.addError("server.cors.allowed_origins", "CORS enabled but no allowed origins configured",
				"set cors.allowed_origins or disable CORS")
		}
		hasWildcard := false
		for _, origin := range s.CORS.AllowedOrigins {
			if strings.TrimSpace(origin) == "*" {
				hasWildcard = true
				break
			}
		}
		if hasWildcard && s.CORS.AllowCredentials {
			result.addError("server.cors.allowed_origins", "wildcard origin (*) cannot be used with credentials",
				"use specific origins with credentials, or wildcard without credentials")
		}
		if hasWildcard {
			result.addWarning("server.cors.allowed_origins", "CORS wildcard origin enabled",
				"use specific origins in production for better security")
		}
	}

	if s.Auth.OIDCEnabled {
		if s.Auth.OIDCIssuerURL == "" {
			result.addError("server.auth.oidc_issuer_url", "issuer URL is required when OIDC is enabled", "")
		}
		if s.Auth.OIDCAudience == "" {
			result.addError("server.auth.oidc_audience", "audience is required when OIDC is enabled", "")
		}
		if s.Auth.JWTSecret != "" {
			result.addError("server.auth.jwt_secret", "jwt_secret and oidc_enabled are mutually exclusive",
				"choose one token verifier")
		}
	}
	if s.Auth.JWTSecret != "" && len(s.Auth.JWTSecret) < 32 {
		result.addWarning("server.auth.jwt_secret", "jwt_secret is shorter than 32 bytes",
			"use a longer random secret for HS256")
	}
	if !s.Auth.Enabled() {
		result.addWarning("server.auth", "no token verifier configured; every request is anonymous",
			"set server.auth.jwt_secret or enable OIDC")
	}

	if (s.TLSCertFile == "") != (s.TLSKeyFile == "") {
		result.addError("server.tls_cert_file", "tls_cert_file and tls_key_file must be set together", "")
	}
}

func (o *ObservabilityConfig) validate(result *ValidationResult) {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[o.Logging.Level] {
		result.addError("observability.logging.level", fmt.Sprintf("invalid log level %q", o.Logging.Level),
			"valid values are: debug, info, warn, error")
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[o.Logging.Format] {
		result.addError("observability.logging.format", fmt.Sprintf("invalid log format %q", o.Logging.Format),
			"valid values are: json, text")
	}

	if o.TraceSampleRatio < 0 || o.TraceSampleRatio > 1 {
		result.addError("observability.trace_sample_ratio", "trace_sample_ratio must be between 0 and 1", "")
	}

	o.OTLP.validate("observability.otlp", result)
	if o.Traces != nil {
		o.Traces.validate("observability.traces", result)
	}
	if o.Logs != nil {
		o.Logs.validate("observability.logs", result)
	}
}

func (o *OTLPConfig) validate(prefix string, result *ValidationResult) {
	validProtocols := map[string]bool{"": true, "grpc": true, "http/protobuf": true}
	if !validProtocols[o.Protocol] {
		result.addError(prefix+".protocol", fmt.Sprintf("invalid OTLP protocol %q", o.Protocol),
			"valid values are: grpc, http/protobuf")
	}
	if o.Protocol == "http/protobuf" && !validOTLPEndpoint(o.Endpoint) {
		result.addError(prefix+".endpoint", fmt.Sprintf("invalid OTLP endpoint %q for http/protobuf", o.Endpoint),
			"use host:port or a full URL")
	}
	validCompressions := map[string]bool{"": true, "none": true, "gzip": true}
	if !validCompressions[o.Compression] {
		result.addError(prefix+".compression", fmt.Sprintf("invalid OTLP compression %q", o.Compression),
			"valid values are: none, gzip")
	}
}

func validOTLPEndpoint(endpoint string) bool {
	if endpoint == "" {
		return false
	}
	if strings.Contains(endpoint, "://") {
		parsed, err := url.Parse(endpoint)
		if err != nil {
			return false
		}
		return parsed.Host != ""
	}
	_, _, err := net.SplitHostPort(endpoint)
	return err == nil
}

func validateNamingConfig(result *ValidationResult, cfg naming.Config) {
	for singular, plural := range cfg.PluralOverrides {
		if strings.TrimSpace(singular) == "" || strings.TrimSpace(plural) == "" {
			result.addError("naming.plural_overrides", "override keys and values cannot be empty", "")
		}
	}
	for plural, singular := range cfg.SingularOverrides {
		if strings.TrimSpace(plural) == "" || strings.TrimSpace(singular) == "" {
			result.addError("naming.singular_overrides", "override keys and values cannot be empty", "")
		}
	}
	for _, word := range cfg.Uncountable {
		if strings.TrimSpace(word) == "" {
			result.addError("naming.uncountable", "uncountable words cannot be empty", "")
		}
	}
}

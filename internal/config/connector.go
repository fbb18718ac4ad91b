package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// Supported connector drivers.
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// tlsConfigPrefix prefixes the TLS config names registered with the MySQL driver.
const tlsConfigPrefix = "autoapi-"

// DriverName returns the database/sql driver name for the connector.
func (c *ConnectorConfig) DriverName() string {
	switch strings.ToLower(strings.TrimSpace(c.Driver)) {
	case "", DriverMySQL:
		return DriverMySQL
	case DriverPostgres, "postgresql", "pg":
		return DriverPostgres
	case DriverSQLite, "sqlite3":
		return DriverSQLite
	}
	return c.Driver
}

// EffectiveDSN returns the DSN handed to sql.Open for the connector named
// name. MySQL DSNs get parseTime and the TLS parameter;
// a configured password replaces the one in the DSN.
func (c *ConnectorConfig) EffectiveDSN(name string) (string, error) {
	dsn := strings.TrimSpace(c.DSN)
	switch c.DriverName() {
	case DriverMySQL:
		parsed, err := mysql.ParseDSN(dsn)
		if err != nil {
			return "", fmt.Errorf("connectors.%s.dsn is invalid: %w", name, err)
		}
		parsed.ParseTime = true
		if c.Password != "" {
			parsed.Passwd = c.Password
		}
		if param := c.tlsParam(name); param != "" && parsed.TLSConfig == "" {
			parsed.TLSConfig = param
		}
		return parsed.FormatDSN(), nil
	case DriverPostgres:
		if c.Password == "" {
			return dsn, nil
		}
		if strings.Contains(dsn, "://") {
			u, err := url.Parse(dsn)
			if err != nil {
				return "", fmt.Errorf("connectors.%s.dsn is invalid: %w", name, err)
			}
			user := ""
			if u.User != nil {
				user = u.User.Username()
			}
			u.User = url.UserPassword(user, c.Password)
			return u.String(), nil
		}
		return dsn + " password='" + strings.ReplaceAll(c.Password, "'", `\'`) + "'", nil
	}
	return dsn, nil
}

// tlsParam returns the MySQL tls DSN parameter, or "" when TLS is not configured.
func (c *ConnectorConfig) tlsParam(name string) string {
	switch c.TLS.Mode {
	case "":
		return ""
	case "off":
		return "false"
	case "skip-verify":
		return "skip-verify"
	case "verify-ca", "verify-full":
		return tlsConfigPrefix + name
	}
	return c.TLS.Mode
}

// RegisterTLS registers the custom TLS configuration of a MySQL connector.
// It must run before the connector is opened and is a no-op for modes
// that need no custom configuration.
func (c *ConnectorConfig) RegisterTLS(name string) error {
	if c.DriverName() != DriverMySQL || (c.TLS.Mode != "verify-ca" && c.TLS.Mode != "verify-full") {
		return nil
	}
	tlsCfg, err := c.buildTLSConfig()
	if err != nil {
		return fmt.Errorf("failed to build TLS config for connector %s: %w", name, err)
	}
	if err := mysql.RegisterTLSConfig(tlsConfigPrefix+name, tlsCfg); err != nil {
		return fmt.Errorf("failed to register TLS config for connector %s: %w", name, err)
	}
	return nil
}

func (c *ConnectorConfig) buildTLSConfig() (*tls.Config, error) {
	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12}

	if c.TLS.CAFile != "" {
		caCert, err := os.ReadFile(c.TLS.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA file %q: %w", c.TLS.CAFile, err)
		}
		certPool := x509.NewCertPool()
		if !certPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA certificate from %q", c.TLS.CAFile)
		}
		tlsCfg.RootCAs = certPool
	}

	if c.TLS.CertFile != "" && c.TLS.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(c.TLS.CertFile, c.TLS.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	} else if c.TLS.CertFile != "" || c.TLS.KeyFile != "" {
		return nil, fmt.Errorf("both cert_file and key_file must be specified for client certificate authentication")
	}

	if c.TLS.Mode == "verify-ca" {
		// Verify the chain against RootCAs without matching the host name.
		tlsCfg.InsecureSkipVerify = true
		roots := tlsCfg.RootCAs
		tlsCfg.VerifyPeerCertificate = func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
			return verifyChain(rawCerts, roots)
		}
	}
	if c.TLS.Mode == "verify-full" && c.TLS.ServerName != "" {
		tlsCfg.ServerName = c.TLS.ServerName
	}
	return tlsCfg, nil
}

func verifyChain(rawCerts [][]byte, roots *x509.CertPool) error {
	if len(rawCerts) == 0 {
		return fmt.Errorf("server presented no certificate")
	}
	certs := make([]*x509.Certificate, len(rawCerts))
	for i, raw := range rawCerts {
		cert, err := x509.ParseCertificate(raw)
		if err != nil {
			return err
		}
		certs[i] = cert
	}
	intermediates := x509.NewCertPool()
	for _, cert := range certs[1:] {
		intermediates.AddCert(cert)
	}
	_, err := certs[0].Verify(x509.VerifyOptions{Roots: roots, Intermediates: intermediates})
	return err
}

package auth

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// Verifier turns a bearer token into a User.
type Verifier interface {
	Verify(ctx context.Context, token string) (*User, error)
}

// HMACConfig configures shared-secret token verification.
type HMACConfig struct {
	Secret     string
	Issuer     string
	Audience   string
	RolesClaim string
	ClockSkew  time.Duration
}

// HMACVerifier validates HS256 tokens signed with a shared secret.
type HMACVerifier struct {
	secret     []byte
	rolesClaim string
	options    []jwt.ParserOption
}

// NewHMACVerifier creates an HS256 verifier.
func NewHMACVerifier(cfg HMACConfig) (*HMACVerifier, error) {
	if cfg.Secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(cfg.ClockSkew),
	}
	if cfg.Issuer != "" {
		options = append(options, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		options = append(options, jwt.WithAudience(cfg.Audience))
	}
	return &HMACVerifier{secret: []byte(cfg.Secret), rolesClaim: cfg.RolesClaim, options: options}, nil
}

func (v *HMACVerifier) Verify(_ context.Context, token string) (*User, error) {
	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, v.options...)
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, errors.New("invalid token")
	}
	return UserFromClaims(claims, v.rolesClaim), nil
}

// OIDCConfig configures OIDC/JWKS token verification.
type OIDCConfig struct {
	IssuerURL     string
	Audience      string
	RolesClaim    string
	ClockSkew     time.Duration
	CAFile        string
	SkipTLSVerify bool
}

// OIDCVerifier validates tokens against an OIDC provider's JWKS.
type OIDCVerifier struct {
	verifier   *oidc.IDTokenVerifier
	rolesClaim string
	clockSkew  time.Duration
}

// NewOIDCVerifier performs provider discovery and returns a verifier.
func NewOIDCVerifier(ctx context.Context, cfg OIDCConfig) (*OIDCVerifier, error) {
	if cfg.IssuerURL == "" || cfg.Audience == "" {
		return nil, errors.New("oidc issuer and audience are required")
	}
	if cfg.ClockSkew == 0 {
		cfg.ClockSkew = 2 * time.Minute
	}
	issuerURL, err := url.Parse(cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid oidc issuer url: %w", err)
	}
	if issuerURL.Scheme != "https" {
		return nil, errors.New("oidc issuer url must use https")
	}

	httpClient, err := newOIDCHTTPClient(cfg)
	if err != nil {
		return nil, err
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)

	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize oidc provider: %w", err)
	}
	return &OIDCVerifier{
		verifier:   provider.Verifier(&oidc.Config{ClientID: cfg.Audience}),
		rolesClaim: cfg.RolesClaim,
		clockSkew:  cfg.ClockSkew,
	}, nil
}

func (v *OIDCVerifier) Verify(ctx context.Context, token string) (*User, error) {
	idToken, err := v.verifier.Verify(ctx, token)
	if err != nil {
		return nil, err
	}
	claims := map[string]any{}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("parse claims: %w", err)
	}
	if err := validateTimeClaims(claims, v.clockSkew); err != nil {
		return nil, err
	}
	return UserFromClaims(claims, v.rolesClaim), nil
}

func newOIDCHTTPClient(cfg OIDCConfig) (*http.Client, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12, InsecureSkipVerify: cfg.SkipTLSVerify}
	if cfg.CAFile != "" {
		pem, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read oidc ca file: %w", err)
		}
		pool, err := x509.SystemCertPool()
		if err != nil || pool == nil {
			pool = x509.NewCertPool()
		}
		if !pool.AppendCertsFromPEM(pem) {
			return nil, errors.New("oidc ca file contains no certificates")
		}
		tlsConfig.RootCAs = pool
	}
	return &http.Client{
		Transport: &http.Transport{TLSClientConfig: tlsConfig},
		Timeout:   10 * time.Second,
	}, nil
}

func validateTimeClaims(claims map[string]any, skew time.Duration) error {
	if skew <= 0 {
		return nil
	}
	now := time.Now()
	if exp, ok := numericDate(claims["exp"]); ok && now.After(exp.Add(skew)) {
		return errors.New("token expired")
	}
	if nbf, ok := numericDate(claims["nbf"]); ok && now.Add(skew).Before(nbf) {
		return errors.New("token not valid yet")
	}
	return nil
}

func numericDate(value any) (time.Time, bool) {
	switch v := value.(type) {
	case float64:
		return time.Unix(int64(v), 0), true
	case int64:
		return time.Unix(v, 0), true
	case json.Number:
		parsed, err := v.Int64()
		if err != nil {
			return time.Time{}, false
		}
		return time.Unix(parsed, 0), true
	case string:
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return time.Time{}, false
		}
		return time.Unix(parsed, 0), true
	default:
		return time.Time{}, false
	}
}

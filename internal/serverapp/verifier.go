package serverapp

import (
	"context"
	"log/slog"

	"autoapi/internal/auth"
	"autoapi/internal/config"
	"autoapi/internal/logging"
)

// buildVerifier selects OIDC discovery or a shared HS256 secret. With
// neither configured it returns nil and every request is anonymous.
func buildVerifier(ctx context.Context, cfg *config.Config, logger *logging.Logger) (auth.Verifier, error) {
	a := cfg.Server.Auth
	switch {
	case a.OIDCEnabled:
		if a.OIDCSkipTLSVerify {
			logger.Warn("oidc tls verification is disabled; enable only for local development",
				slog.String("issuer", a.OIDCIssuerURL),
			)
		}
		v, err := auth.NewOIDCVerifier(ctx, auth.OIDCConfig{
			IssuerURL:     a.OIDCIssuerURL,
			Audience:      a.OIDCAudience,
			RolesClaim:    a.RolesClaim,
			ClockSkew:     a.ClockSkew,
			CAFile:        a.OIDCCAFile,
			SkipTLSVerify: a.OIDCSkipTLSVerify,
		})
		if err != nil {
			return nil, err
		}
		logger.Info("bearer tokens verified by OIDC provider", slog.String("issuer", a.OIDCIssuerURL))
		return v, nil
	case a.JWTSecret != "":
		v, err := auth.NewHMACVerifier(auth.HMACConfig{
			Secret:     a.JWTSecret,
			Issuer:     a.JWTIssuer,
			Audience:   a.JWTAudience,
			RolesClaim: a.RolesClaim,
			ClockSkew:  a.ClockSkew,
		})
		if err != nil {
			return nil, err
		}
		logger.Info("bearer tokens verified with shared secret")
		return v, nil
	default:
		logger.Warn("no token verifier configured; all requests are anonymous")
		return nil, nil
	}
}

package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"autoapi/internal/auth"
	"autoapi/internal/logging"
	"autoapi/internal/observability"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// BearerAuth resolves the request user from an Authorization bearer token.
// Requests without a token continue anonymously and are judged later by the
// entity gate; a token that fails verification is rejected with 401. A nil
// verifier treats every request as anonymous.
func BearerAuth(verifier auth.Verifier, metrics *observability.SecurityMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if verifier == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			endpoint := r.URL.Path

			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}
			metrics.RecordAuthAttempt(ctx, endpoint)

			token, ok := bearerToken(header)
			if !ok {
				metrics.RecordAuthFailure(ctx, endpoint, "malformed_header")
				logging.FromContext(ctx).Warn("authentication failed: malformed authorization header",
					slog.String("endpoint", endpoint),
					slog.String("remote_addr", r.RemoteAddr),
				)
				unauthorized(w, "invalid authorization header")
				return
			}

			user, err := verifier.Verify(ctx, token)
			if err != nil {
				metrics.RecordAuthFailure(ctx, endpoint, "invalid_token")
				metrics.RecordTokenValidationError(ctx, "verification_failed")
				logging.FromContext(ctx).Warn("token verification failed",
					slog.String("error", err.Error()),
					slog.String("endpoint", endpoint),
					slog.String("remote_addr", r.RemoteAddr),
				)
				unauthorized(w, "invalid token")
				return
			}

			metrics.RecordAuthSuccess(ctx, endpoint)
			reqLogger := logging.FromContext(ctx).WithFields(slog.String("user", user.ID))
			reqLogger.Debug("authenticated", slog.Any("roles", user.Roles))
			if span := trace.SpanFromContext(ctx); span.IsRecording() {
				span.SetAttributes(
					attribute.String("auth.subject", user.ID),
					attribute.StringSlice("auth.roles", user.Roles),
				)
			}

			ctx = auth.WithUser(ctx, user)
			ctx = logging.WithLogger(ctx, reqLogger)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	writeMessage(w, http.StatusUnauthorized, message)
}

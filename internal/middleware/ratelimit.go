package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"autoapi/internal/logging"

	"golang.org/x/time/rate"
)

// RateLimit enforces a single token bucket shared by every request through
// the handler. rps or burst <= 0 disables limiting.
func RateLimit(enabled bool, rps float64, burst int) func(http.Handler) http.Handler {
	if !enabled || rps <= 0 || burst <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				logging.FromContext(r.Context()).Warn("rate limit exceeded",
					slog.String("path", r.URL.Path),
					slog.String("remote_addr", r.RemoteAddr),
				)
				w.Header().Set("Retry-After", "1")
				writeMessage(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// writeMessage writes the {"message": ...} error body the API handlers use.
func writeMessage(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": message})
}

package middleware

import (
	"net/http"

	"autoapi/internal/observability"
)

// ActiveRequests tracks in-flight API requests on the shared gauge. A nil
// metrics value records nothing.
func ActiveRequests(metrics *observability.APIMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			metrics.IncrementActiveRequests(ctx)
			defer metrics.DecrementActiveRequests(ctx)
			next.ServeHTTP(w, r)
		})
	}
}

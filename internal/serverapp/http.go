package serverapp

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"autoapi/internal/auth"
	"autoapi/internal/config"
	"autoapi/internal/dbexec"
	"autoapi/internal/engine"
	"autoapi/internal/hooks"
	"autoapi/internal/logging"
	"autoapi/internal/middleware"
	"autoapi/internal/observability"
	"autoapi/internal/resolver"
	"autoapi/internal/rest"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/handler"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// routeSet holds the normalized mount points of the API surfaces.
type routeSet struct {
	graphql string
	rest    string // empty when REST is disabled
}

func newRouteSet(cfg *config.Config) routeSet {
	routes := routeSet{graphql: "/" + strings.Trim(cfg.Server.GraphQLPath, "/")}
	if routes.graphql == "/" {
		routes.graphql = "/graphql"
	}
	if cfg.Server.RESTEnabled {
		routes.rest = "/" + strings.Trim(cfg.Server.RESTPrefix, "/")
	}
	return routes
}

// spanRoute collapses request paths onto a small set of span names.
func (r routeSet) spanRoute(path string) string {
	switch {
	case path == "/", path == "/health", path == "/metrics", path == r.graphql:
		return path
	case r.rest != "" && strings.HasPrefix(path, r.rest+"/"):
		return r.rest + "/{table}"
	default:
		return "/*"
	}
}

type routerDeps struct {
	schema          *graphql.Schema
	engine          *engine.Engine
	pool            *dbexec.Pool
	verifier        auth.Verifier
	apiMetrics      *observability.APIMetrics
	securityMetrics *observability.SecurityMetrics
	metricsEnabled  bool
}

func buildRouter(cfg *config.Config, logger *logging.Logger, routes routeSet, deps routerDeps) *http.ServeMux {
	api := func(h http.Handler) http.Handler {
		h = middleware.ActiveRequests(deps.apiMetrics)(h)
		return middleware.BearerAuth(deps.verifier, deps.securityMetrics)(h)
	}

	mux := http.NewServeMux()
	mux.Handle(routes.graphql, api(graphqlHandler(deps.schema, cfg.Server.GraphiQLEnabled)))
	if routes.rest != "" {
		mux.Handle(routes.rest+"/", api(rest.NewHandler(deps.engine, routes.rest)))
		logger.Info("REST routes enabled", slog.String("prefix", routes.rest))
	}
	mux.HandleFunc("/health", healthHandler(deps.pool, cfg.Server.HealthCheckTimeout))
	if deps.metricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info("metrics endpoint enabled", slog.String("path", "/metrics"))
	}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			http.Redirect(w, r, routes.graphql, http.StatusFound)
			return
		}
		http.NotFound(w, r)
	})
	return mux
}

// graphqlHandler serves the schema with request-scoped relation batching
// and runs the afterResultSent hooks once the response is written.
func graphqlHandler(schema *graphql.Schema, graphiQL bool) http.Handler {
	h := handler.New(&handler.Config{
		Schema:     schema,
		Pretty:     true,
		GraphiQL:   graphiQL,
		Playground: false,
	})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := resolver.NewBatchingContext(r.Context())
		ctx, deferred := hooks.WithDeferred(ctx)
		h.ContextHandler(ctx, w, r)

		if hits, misses, ok := resolver.BatchStats(ctx); ok && hits+misses > 0 {
			logging.FromContext(ctx).Debug("relation batching",
				slog.Int("cache_hits", int(hits)),
				slog.Int("cache_misses", int(misses)),
			)
		}
		if deferred.Len() > 0 {
			_ = http.NewResponseController(w).Flush()
			deferred.Flush(context.WithoutCancel(ctx))
		}
	})
}

// wrapHTTPHandler applies the server-wide middleware. The outermost layer
// runs first: tracing, logging, CORS, then rate limiting.
func wrapHTTPHandler(cfg *config.Config, logger *logging.Logger, routes routeSet, h http.Handler) http.Handler {
	h = middleware.RateLimit(cfg.Server.RateLimitEnabled, cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)(h)
	h = middleware.CORS(cfg.Server.CORS)(h)
	h = middleware.RequestLogging(logger)(h)

	if cfg.Observability.MetricsEnabled || cfg.Observability.TracingEnabled {
		h = otelhttp.NewHandler(h, "http.server",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return r.Method + " " + routes.spanRoute(r.URL.Path)
			}),
		)
		logger.Info("HTTP instrumentation enabled")
	}
	return h
}

func buildServer(cfg *config.Config, h http.Handler, addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}
}

type healthStatus struct {
	Status     string            `json:"status"`
	Connectors map[string]string `json:"connectors"`
}

// healthHandler pings every connector. Failures are reported per connector
// without driver detail.
func healthHandler(pool *dbexec.Pool, timeout time.Duration) http.HandlerFunc {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := logging.FromContext(r.Context())
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		body := healthStatus{Status: "healthy", Connectors: map[string]string{}}
		status := http.StatusOK
		for _, name := range pool.Names() {
			conn, err := pool.Connector(name)
			if err == nil && conn.DB != nil {
				err = conn.DB.PingContext(ctx)
			}
			if err != nil {
				reqLogger.Error("health check failed",
					slog.String("connector", name),
					slog.String("error", err.Error()),
				)
				body.Connectors[name] = "failed"
				body.Status = "unhealthy"
				status = http.StatusServiceUnavailable
				continue
			}
			body.Connectors[name] = "ok"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}

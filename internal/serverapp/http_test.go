package serverapp

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"autoapi/internal/config"
	"autoapi/internal/dbexec"
	"autoapi/internal/planner"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNewRouteSet(t *testing.T) {
	routes := newRouteSet(&config.Config{Server: config.ServerConfig{
		GraphQLPath: "api/graphql/",
		RESTPrefix:  "/table/",
		RESTEnabled: true,
	}})
	assert.Equal(t, "/api/graphql", routes.graphql)
	assert.Equal(t, "/table", routes.rest)

	routes = newRouteSet(&config.Config{Server: config.ServerConfig{RESTPrefix: "/table"}})
	assert.Equal(t, "/graphql", routes.graphql)
	assert.Empty(t, routes.rest)
}

func TestRouteSet_SpanRoute(t *testing.T) {
	routes := routeSet{graphql: "/graphql", rest: "/table"}
	tests := map[string]string{
		"/graphql":           "/graphql",
		"/health":            "/health",
		"/metrics":           "/metrics",
		"/":                  "/",
		"/table/products":    "/table/{table}",
		"/table/products/12": "/table/{table}",
		"/tables":            "/*",
		"/products/123":      "/*",
		"":                   "/*",
	}
	for path, want := range tests {
		assert.Equal(t, want, routes.spanRoute(path), path)
	}
}

func TestWrapHTTPHandler_NamesRootSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.AlwaysSample()))
	tp.RegisterSpanProcessor(recorder)
	original := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(original)
	})

	cfg := &config.Config{Observability: config.ObservabilityConfig{TracingEnabled: true}}
	routes := routeSet{graphql: "/graphql", rest: "/table"}
	h := wrapHTTPHandler(cfg, testLogger(), routes, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/table/products/3", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)

	var names []string
	for _, span := range recorder.Ended() {
		names = append(names, span.Name())
	}
	assert.Contains(t, names, "GET /table/{table}")
}

func TestWrapHTTPHandler_AppliesCORSAndRateLimit(t *testing.T) {
	cfg := &config.Config{Server: config.ServerConfig{
		RateLimitEnabled: true,
		RateLimitRPS:     0.001,
		RateLimitBurst:   1,
		CORS: config.CORSConfig{
			Enabled:        true,
			AllowedOrigins: []string{"http://app.example"},
		},
	}}
	h := wrapHTTPHandler(cfg, testLogger(), routeSet{graphql: "/graphql"}, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/graphql", nil)
	req.Header.Set("Origin", "http://app.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://app.example", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "http://app.example", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestHealthHandler_ReportsFailedConnector(t *testing.T) {
	okDB, okMock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer okDB.Close()
	badDB, badMock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer badDB.Close()

	okMock.ExpectPing()
	badMock.ExpectPing().WillReturnError(errors.New("connection refused"))

	pool := dbexec.NewPool()
	_, err = pool.Add("default", "mysql", okDB, nil, planner.Options{})
	require.NoError(t, err)
	_, err = pool.Add("reports", "postgres", badDB, nil, planner.Options{})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	healthHandler(pool, time.Second)(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"unhealthy","connectors":{"default":"ok","reports":"failed"}}`, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "refused")
	require.NoError(t, okMock.ExpectationsWereMet())
	require.NoError(t, badMock.ExpectationsWereMet())
}

func TestWaitForDatabase_RetriesUntilReady(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPing().WillReturnError(errors.New("starting up"))
	mock.ExpectPing()

	err = waitForDatabase(context.Background(), testLogger(), "default", db, time.Second, time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWaitForDatabase_GivesUp(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()
	for i := 0; i < 50; i++ {
		mock.ExpectPing().WillReturnError(errors.New("down"))
	}

	err = waitForDatabase(context.Background(), testLogger(), "default", db, 20*time.Millisecond, 5*time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database not available")
}

func TestWaitForDatabase_ZeroTimeoutTriesOnce(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectPing().WillReturnError(errors.New("down"))

	require.Error(t, waitForDatabase(context.Background(), testLogger(), "default", db, 0, time.Second))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBuildVerifier(t *testing.T) {
	cfg := &config.Config{}
	v, err := buildVerifier(context.Background(), cfg, testLogger())
	require.NoError(t, err)
	assert.Nil(t, v)

	cfg.Server.Auth.JWTSecret = "0123456789abcdef0123456789abcdef"
	v, err = buildVerifier(context.Background(), cfg, testLogger())
	require.NoError(t, err)
	assert.NotNil(t, v)

	cfg.Server.Auth.OIDCEnabled = true
	cfg.Server.Auth.OIDCIssuerURL = "http://issuer.example"
	cfg.Server.Auth.OIDCAudience = "autoapi"
	_, err = buildVerifier(context.Background(), cfg, testLogger())
	require.Error(t, err)
}

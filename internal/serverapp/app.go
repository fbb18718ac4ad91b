// Package serverapp assembles the autoapi server: telemetry, connectors,
// entity registry, engine, GraphQL schema and REST routes behind one HTTP
// server with an ordered shutdown.
package serverapp

import (
	"fmt"
	"net/http"
	"sync"

	"autoapi/internal/config"
	"autoapi/internal/dbexec"
	"autoapi/internal/engine"
	"autoapi/internal/entity"
	"autoapi/internal/hooks"
	"autoapi/internal/logging"
	"autoapi/internal/observability"
	"autoapi/internal/resolver"
)

// App owns runtime resources for the server lifecycle.
type App struct {
	cfg    *config.Config
	logger *logging.Logger

	hookBuilder *hooks.Builder
	custom      resolver.Custom

	loggerProvider *observability.LoggerProvider

	meterProvider   *observability.MeterProvider
	apiMetrics      *observability.APIMetrics
	securityMetrics *observability.SecurityMetrics
	tracerProvider  *observability.TracerProvider

	pool     *dbexec.Pool
	registry *entity.Registry
	engine   *engine.Engine

	handler http.Handler

	serverAddr string
	srv        *http.Server

	cleanup cleanupStack

	stateMu      sync.Mutex
	initialized  bool
	started      bool
	serverErrors chan error

	shutdownOnce sync.Once
}

// Option customizes an App before Init.
type Option func(*App)

// WithHooks installs the hooks registered on b. They are built during Init
// so that hook timings reach the operation metrics.
func WithHooks(b *hooks.Builder) Option {
	return func(a *App) { a.hookBuilder = b }
}

// WithCustomFields merges externally defined GraphQL root fields into the
// generated schema.
func WithCustomFields(custom resolver.Custom) Option {
	return func(a *App) { a.custom = custom }
}

// New creates an App lifecycle wrapper.
func New(cfg *config.Config, logger *logging.Logger, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	a := &App{cfg: cfg, logger: logger}
	for _, opt := range opts {
		opt(a)
	}
	if a.hookBuilder == nil {
		a.hookBuilder = hooks.NewBuilder()
	}
	return a, nil
}

// AttachLoggerProvider registers an optional logger provider for shutdown cleanup.
func (a *App) AttachLoggerProvider(provider *observability.LoggerProvider) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	a.loggerProvider = provider
}

// Handler returns the root HTTP handler. It is nil before Init.
func (a *App) Handler() http.Handler {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.handler
}

// Engine returns the operation engine. It is nil before Init.
func (a *App) Engine() *engine.Engine {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.engine
}

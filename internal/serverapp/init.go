package serverapp

import (
	"context"
	"fmt"
	"log/slog"

	"autoapi/internal/auth"
	"autoapi/internal/config"
	"autoapi/internal/engine"
	"autoapi/internal/entity"
	"autoapi/internal/hooks"
	"autoapi/internal/logging"
	"autoapi/internal/naming"
	"autoapi/internal/resolver"
)

// Init acquires every runtime resource. It is idempotent; a failed Init
// releases whatever it had acquired.
func (a *App) Init(ctx context.Context) error {
	a.stateMu.Lock()
	if a.initialized {
		a.stateMu.Unlock()
		return nil
	}
	a.stateMu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}

	cleanup := cleanupStack{}
	success := false
	defer func() {
		if !success {
			cleanup.run(context.Background(), a.logger)
		}
	}()

	if a.loggerProvider != nil {
		lp := a.loggerProvider
		cleanup.push("logger provider", func(shutdownCtx context.Context) error {
			return lp.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}

	meterProvider, apiMetrics, securityMetrics, err := initMetrics(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry metrics: %w", err)
	}
	if meterProvider != nil {
		cleanup.push("meter provider", func(shutdownCtx context.Context) error {
			return meterProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}

	tracerProvider, err := initTracing(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry tracing: %w", err)
	}
	if tracerProvider != nil {
		cleanup.push("tracer provider", func(shutdownCtx context.Context) error {
			return tracerProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}

	registry, err := loadRegistry(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to load entity definitions: %w", err)
	}

	pool, err := connectAll(ctx, a.cfg, a.logger, registry, &cleanup)
	if err != nil {
		return err
	}

	gate, err := auth.NewGate(registry, securityMetrics)
	if err != nil {
		return fmt.Errorf("failed to compile entity policies: %w", err)
	}
	eng, err := engine.New(registry, pool, engine.Options{
		Gate:    gate,
		Hooks:   a.hookBuilder.Build(hooks.WithMetrics(apiMetrics)),
		Metrics: apiMetrics,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize engine: %w", err)
	}

	schema, err := resolver.BuildSchema(registry, eng, a.custom,
		resolver.WithNamer(naming.New(a.cfg.Naming, a.logger.Logger)),
		resolver.WithDefaultLimit(a.cfg.Planner.DefaultLimit),
		resolver.WithLogger(a.logger.Logger),
	)
	if err != nil {
		return fmt.Errorf("failed to build GraphQL schema: %w", err)
	}

	verifier, err := buildVerifier(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize token verification: %w", err)
	}

	routes := newRouteSet(a.cfg)
	mux := buildRouter(a.cfg, a.logger, routes, routerDeps{
		schema:          &schema,
		engine:          eng,
		pool:            pool,
		verifier:        verifier,
		apiMetrics:      apiMetrics,
		securityMetrics: securityMetrics,
		metricsEnabled:  meterProvider != nil,
	})
	handler := wrapHTTPHandler(a.cfg, a.logger, routes, mux)

	serverAddr := fmt.Sprintf(":%d", a.cfg.Server.Port)
	srv := buildServer(a.cfg, handler, serverAddr)
	cleanup.push("HTTP server", func(shutdownCtx context.Context) error {
		return srv.Shutdown(shutdownCtx)
	})

	a.logger.Info("api ready",
		slog.Int("entities", len(registry.Entities())),
		slog.Any("connectors", pool.Names()),
		slog.String("graphql_path", routes.graphql),
		slog.String("rest_prefix", routes.rest),
	)

	a.stateMu.Lock()
	a.meterProvider = meterProvider
	a.apiMetrics = apiMetrics
	a.securityMetrics = securityMetrics
	a.tracerProvider = tracerProvider
	a.pool = pool
	a.registry = registry
	a.engine = eng
	a.handler = handler
	a.serverAddr = serverAddr
	a.srv = srv
	a.cleanup = cleanup
	a.initialized = true
	a.stateMu.Unlock()

	success = true
	return nil
}

func loadRegistry(cfg *config.Config, logger *logging.Logger) (*entity.Registry, error) {
	var defs []entity.Definition
	if cfg.Entities.Dir != "" {
		found, err := entity.LoadDir(cfg.Entities.Dir)
		if err != nil {
			return nil, err
		}
		defs = append(defs, found...)
	}
	if len(cfg.Entities.Files) > 0 {
		found, err := entity.LoadFiles(cfg.Entities.Files...)
		if err != nil {
			return nil, err
		}
		defs = append(defs, found...)
	}
	registry, err := entity.NewRegistry(defs)
	if err != nil {
		return nil, err
	}
	logger.Info("entity definitions loaded", slog.Int("count", len(defs)))
	return registry, nil
}

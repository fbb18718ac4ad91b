package serverapp

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"autoapi/internal/config"
	"autoapi/internal/dbexec"
	"autoapi/internal/entity"
	"autoapi/internal/logging"
	"autoapi/internal/planner"

	"github.com/XSAM/otelsql"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	_ "modernc.org/sqlite"
)

const maxRetryInterval = 30 * time.Second

// connectAll opens every configured connector in name order and registers
// its close on cleanup.
func connectAll(ctx context.Context, cfg *config.Config, logger *logging.Logger, registry *entity.Registry, cleanup *cleanupStack) (*dbexec.Pool, error) {
	pool := dbexec.NewPool()
	names := cfg.ConnectorNames()
	for _, name := range names {
		conn := cfg.Connectors[name]
		db, err := openConnector(ctx, cfg, logger, name, conn, cleanup)
		if err != nil {
			return nil, fmt.Errorf("connector %s: %w", name, err)
		}
		if _, err := pool.Add(name, conn.DriverName(), db, dbexec.NewStandardExecutor(db).Named(name), planner.Options{
			MaxInClause: cfg.Planner.MaxInClause,
		}); err != nil {
			return nil, err
		}
	}

	// Entities bound to an unknown connector fail per request with
	// "No database"; surface the mistake at boot as well.
	for _, name := range registry.Connectors() {
		if !slices.Contains(names, name) {
			logger.Warn("entities reference an unconfigured connector", slog.String("connector", name))
		}
	}
	return pool, nil
}

func openConnector(ctx context.Context, cfg *config.Config, logger *logging.Logger, name string, conn config.ConnectorConfig, cleanup *cleanupStack) (*sql.DB, error) {
	if err := conn.RegisterTLS(name); err != nil {
		return nil, fmt.Errorf("failed to register database TLS config: %w", err)
	}
	dsn, err := conn.EffectiveDSN(name)
	if err != nil {
		return nil, err
	}

	driver := conn.DriverName()
	system := dbSystem(driver)
	opts := []otelsql.Option{
		otelsql.WithAttributes(system, attribute.String("db.connector", name)),
		otelsql.WithSpanOptions(otelsql.SpanOptions{DisableErrSkip: true, OmitConnResetSession: true}),
	}
	db, err := otelsql.Open(driver, dsn, opts...)
	if err != nil {
		return nil, err
	}

	var statsReg interface{ Unregister() error }
	if cfg.Observability.MetricsEnabled {
		statsReg, err = otelsql.RegisterDBStatsMetrics(db, otelsql.WithAttributes(system, attribute.String("db.connector", name)))
		if err != nil {
			logger.Warn("failed to register DB stats metrics",
				slog.String("connector", name),
				slog.String("error", err.Error()),
			)
		}
	}
	cleanup.push("connector "+name, func(_ context.Context) error {
		if statsReg != nil {
			if err := statsReg.Unregister(); err != nil {
				logger.Warn("failed to unregister DB stats metrics", slog.String("error", err.Error()))
			}
		}
		return db.Close()
	})

	db.SetMaxOpenConns(conn.Pool.MaxOpen)
	db.SetMaxIdleConns(conn.Pool.MaxIdle)
	db.SetConnMaxLifetime(conn.Pool.MaxLifetime)

	if err := waitForDatabase(ctx, logger, name, db, conn.ConnectionTimeout, conn.ConnectionRetryInterval); err != nil {
		return nil, err
	}
	logger.Info("connected to database",
		slog.String("connector", name),
		slog.String("driver", driver),
		slog.Int("pool_max_open", conn.Pool.MaxOpen),
		slog.Int("pool_max_idle", conn.Pool.MaxIdle),
	)
	return db, nil
}

func dbSystem(driver string) attribute.KeyValue {
	switch driver {
	case config.DriverPostgres:
		return semconv.DBSystemPostgreSQL
	case config.DriverSQLite:
		return semconv.DBSystemSqlite
	default:
		return semconv.DBSystemMySQL
	}
}

// waitForDatabase pings db until it answers or timeout elapses, doubling
// the interval between attempts up to maxRetryInterval. A zero timeout
// tries once.
func waitForDatabase(ctx context.Context, logger *logging.Logger, name string, db *sql.DB, timeout, interval time.Duration) error {
	if timeout <= 0 {
		return db.PingContext(ctx)
	}
	if interval <= 0 {
		interval = time.Second
	}

	deadline := time.Now().Add(timeout)
	for attempt := 1; ; attempt++ {
		err := db.PingContext(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Info("database connection established",
					slog.String("connector", name),
					slog.Int("attempts", attempt),
				)
			}
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("database not available after %v: %w", timeout, err)
		}

		logger.Warn("database not ready, retrying",
			slog.String("connector", name),
			slog.Int("attempt", attempt),
			slog.Duration("retry_in", interval),
			slog.String("error", err.Error()),
		)
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		interval = min(interval*2, maxRetryInterval)
	}
}

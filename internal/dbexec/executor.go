// Package dbexec provides database query execution abstractions and the
// named connector pool entities are bound to.
package dbexec

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"autoapi/internal/logging"
)

// Rows is the subset of *sql.Rows the scanners read from.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// QueryExecutor runs built statements. Tests substitute recording or
// failing implementations.
type QueryExecutor interface {
	QueryContext(ctx context.Context, query string, args ...any) (Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// StandardExecutor runs statements on a connector's handle and logs each
// one at debug level with its duration.
type StandardExecutor struct {
	db        *sql.DB
	connector string
}

// NewStandardExecutor creates an executor for db.
func NewStandardExecutor(db *sql.DB) *StandardExecutor {
	return &StandardExecutor{db: db}
}

// Named labels statement logs with the connector name.
func (e *StandardExecutor) Named(connector string) *StandardExecutor {
	return &StandardExecutor{db: e.db, connector: connector}
}

func (e *StandardExecutor) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	if e.db == nil {
		return nil, sql.ErrConnDone
	}
	start := time.Now()
	rows, err := e.db.QueryContext(ctx, query, args...)
	e.logStatement(ctx, "query", query, len(args), start, err)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (e *StandardExecutor) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if e.db == nil {
		return nil, sql.ErrConnDone
	}
	start := time.Now()
	res, err := e.db.ExecContext(ctx, query, args...)
	e.logStatement(ctx, "exec", query, len(args), start, err)
	return res, err
}

func (e *StandardExecutor) logStatement(ctx context.Context, kind, query string, args int, start time.Time, err error) {
	logger := logging.FromContext(ctx)
	if !logger.Enabled(ctx, slog.LevelDebug) {
		return
	}
	attrs := []any{
		slog.String("kind", kind),
		slog.String("sql", query),
		slog.Int("args", args),
		slog.Duration("duration", time.Since(start)),
	}
	if e.connector != "" {
		attrs = append(attrs, slog.String("connector", e.connector))
	}
	if err != nil {
		logger.Debug("statement failed", append(attrs, slog.String("error", err.Error()))...)
		return
	}
	logger.Debug("statement executed", attrs...)
}

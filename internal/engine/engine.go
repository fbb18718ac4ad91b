// Package engine implements the entity operations shared by the GraphQL and
// REST surfaces: authorize, run hooks, plan, execute and attach relations.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"autoapi/internal/apperr"
	"autoapi/internal/auth"
	"autoapi/internal/dbexec"
	"autoapi/internal/entity"
	"autoapi/internal/hooks"
	"autoapi/internal/logging"
	"autoapi/internal/observability"
	"autoapi/internal/planner"
	"autoapi/internal/relations"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Options carries the optional collaborators of an Engine.
type Options struct {
	Gate    *auth.Gate
	Hooks   *hooks.Table
	Metrics *observability.APIMetrics
}

// Engine runs entity operations. It holds no per-request state.
type Engine struct {
	registry  *entity.Registry
	pool      *dbexec.Pool
	gate      *auth.Gate
	hooks     *hooks.Table
	relations *relations.Resolver
	metrics   *observability.APIMetrics
}

// New creates an engine. Without a gate, entity roles are still enforced by
// a gate built from the registry.
func New(registry *entity.Registry, pool *dbexec.Pool, opts Options) (*Engine, error) {
	gate := opts.Gate
	if gate == nil {
		var err error
		gate, err = auth.NewGate(registry, nil)
		if err != nil {
			return nil, err
		}
	}
	return &Engine{
		registry:  registry,
		pool:      pool,
		gate:      gate,
		hooks:     opts.Hooks,
		relations: relations.New(registry, pool, opts.Hooks, opts.Metrics),
		metrics:   opts.Metrics,
	}, nil
}

// Registry returns the entity registry.
func (e *Engine) Registry() *entity.Registry { return e.registry }

// Relations returns the relation resolver used for nested loads.
func (e *Engine) Relations() *relations.Resolver { return e.relations }

// Authorize checks op on ent for the request user.
func (e *Engine) Authorize(ctx context.Context, ent *entity.Entity, op entity.Operation) error {
	return e.gate.Check(ctx, ent, op, auth.UserFromContext(ctx))
}

// operation describes one pipeline run. plan may be nil for operations that
// do not touch the database.
type operation struct {
	op   entity.Operation
	plan func(ctx context.Context, conn *dbexec.Connector, hc hooks.Context) (planner.Statement, error)
	exec func(ctx context.Context, conn *dbexec.Connector, hc hooks.Context) (any, error)
}

// execute runs authorize, beforeResolver, plan, beforeSendQuery, execute,
// afterQueryResult and schedules afterResultSent.
func (e *Engine) execute(ctx context.Context, name string, args map[string]any, o operation) (result any, err error) {
	start := time.Now()
	ctx = logging.WithOperation(ctx, name, string(o.op))
	ctx, span := otel.Tracer("autoapi/engine").Start(ctx, "engine."+string(o.op))
	span.SetAttributes(
		attribute.String("autoapi.entity", name),
		attribute.String("autoapi.operation", string(o.op)),
	)
	defer func() {
		kind := ""
		if err != nil {
			kind = apperr.KindOf(err).String()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			if apperr.Is(err, apperr.KindUpstream) || apperr.Is(err, apperr.KindConfiguration) {
				logging.FromContext(ctx).Error("operation failed",
					slog.String("error", errorDetail(err)),
				)
			}
		}
		e.metrics.RecordOperation(ctx, name, string(o.op), time.Since(start), kind)
		span.End()
	}()

	ent, err := e.registry.Resolve(name)
	if err != nil {
		return nil, err
	}
	user := auth.UserFromContext(ctx)
	if err := e.gate.Check(ctx, ent, o.op, user); err != nil {
		return nil, err
	}
	if args == nil {
		args = make(map[string]any)
	}
	var conn *dbexec.Connector
	if o.plan != nil {
		if conn, err = e.pool.Connector(ent.Connector); err != nil {
			return nil, err
		}
	}
	hc := hooks.Context{Entity: ent, Operation: o.op, User: user, Args: args, Connector: conn}
	if hc, err = e.hooks.Run(ctx, hooks.BeforeResolver, hc); err != nil {
		return nil, err
	}

	if o.plan != nil {
		if hc.Query, err = o.plan(ctx, conn, hc); err != nil {
			return nil, err
		}
	}
	if hc, err = e.hooks.Run(ctx, hooks.BeforeSendQuery, hc); err != nil {
		return nil, err
	}
	if hc.Results, err = o.exec(ctx, conn, hc); err != nil {
		return nil, err
	}
	if hc, err = e.hooks.Run(ctx, hooks.AfterQueryResult, hc); err != nil {
		return nil, err
	}
	e.hooks.Defer(ctx, hc)
	return hc.Results, nil
}

// errorDetail includes the wrapped driver error, which never reaches clients.
func errorDetail(err error) string {
	if inner := errors.Unwrap(err); inner != nil {
		return err.Error() + ": " + inner.Error()
	}
	return err.Error()
}

func resultAs[T any](v any, op entity.Operation) (T, error) {
	out, ok := v.(T)
	if !ok {
		var zero T
		return zero, apperr.Configuration("%s hook returned %T, expected %T", op, v, zero)
	}
	return out, nil
}

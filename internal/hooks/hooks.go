// Package hooks runs user-supplied functions around every entity operation.
//
// A hook receives the operation context and returns it, possibly modified.
// Stages run in order beforeResolver, beforeSendQuery, afterQueryResult and
// afterResultSent. For each stage the entity's "all" hook runs first, then
// the operation-specific hook.
package hooks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"autoapi/internal/auth"
	"autoapi/internal/dbexec"
	"autoapi/internal/entity"
	"autoapi/internal/logging"
	"autoapi/internal/observability"
	"autoapi/internal/planner"
)

// Stage identifies a point in the operation lifecycle.
type Stage string

const (
	BeforeResolver   Stage = "beforeResolver"
	BeforeSendQuery  Stage = "beforeSendQuery"
	AfterQueryResult Stage = "afterQueryResult"
	AfterResultSent  Stage = "afterResultSent"
)

// Stages lists every stage in execution order.
var Stages = []Stage{BeforeResolver, BeforeSendQuery, AfterQueryResult, AfterResultSent}

func (s Stage) valid() bool {
	for _, known := range Stages {
		if s == known {
			return true
		}
	}
	return false
}

// Context is the state handed from stage to stage.
//
// Args holds the raw operation arguments (filter, data, page). Query is the
// planned statement and is nil before beforeSendQuery. Results is the
// operation result once available. Values is free-form storage hooks can
// use to pass data between stages.
//
// Connector is the data source of the entity, set for every operation that
// reaches the database. Hooks run follow-up statements through its
// Executor and build them with its Planner.
//
// For a relation load, Operation is query, Query is a *planner.Related and
// Results holds the fetched rows; rows of to-many relations carry the
// parent key under planner.BatchParentAlias.
type Context struct {
	Entity    *entity.Entity
	Operation entity.Operation
	User      *auth.User
	Args      map[string]any
	Query     planner.Statement
	Results   any
	Values    map[string]any
	Connector *dbexec.Connector
}

// Func is a hook. Returning an error aborts the operation, except in
// afterResultSent where errors are logged.
type Func func(ctx context.Context, hc Context) (Context, error)

type key struct {
	entity string
	op     entity.Operation
	stage  Stage
}

// Builder collects hooks at boot.
type Builder struct {
	hooks map[key]Func
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{hooks: make(map[key]Func)}
}

// Register adds fn for entityName, op and stage. op may be entity.OpAll.
// Each combination accepts one hook.
func (b *Builder) Register(entityName string, op entity.Operation, stage Stage, fn Func) error {
	if fn == nil {
		return fmt.Errorf("hook %s.%s.%s is nil", entityName, op, stage)
	}
	if !stage.valid() {
		return fmt.Errorf("unknown hook stage %q", stage)
	}
	k := key{entity: entityName, op: op, stage: stage}
	if _, exists := b.hooks[k]; exists {
		return fmt.Errorf("hook %s.%s.%s already registered", entityName, op, stage)
	}
	b.hooks[k] = fn
	return nil
}

// Option configures a Table.
type Option func(*Table)

// WithMetrics records stage durations.
func WithMetrics(m *observability.APIMetrics) Option {
	return func(t *Table) { t.metrics = m }
}

// Build freezes the registered hooks into a Table.
func (b *Builder) Build(opts ...Option) *Table {
	t := &Table{hooks: make(map[key]Func, len(b.hooks))}
	for k, fn := range b.hooks {
		t.hooks[k] = fn
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Table is the immutable hook lookup used at request time. A nil Table runs no hooks.
type Table struct {
	hooks   map[key]Func
	metrics *observability.APIMetrics
}

// Lookup returns the hooks for a stage: the "all" hook, then the operation hook.
func (t *Table) Lookup(entityName string, op entity.Operation, stage Stage) []Func {
	if t == nil {
		return nil
	}
	var out []Func
	if fn := t.hooks[key{entity: entityName, op: entity.OpAll, stage: stage}]; fn != nil {
		out = append(out, fn)
	}
	if op != entity.OpAll {
		if fn := t.hooks[key{entity: entityName, op: op, stage: stage}]; fn != nil {
			out = append(out, fn)
		}
	}
	return out
}

// Run executes the hooks of stage sequentially. With no hooks hc is returned unchanged.
func (t *Table) Run(ctx context.Context, stage Stage, hc Context) (Context, error) {
	if hc.Entity == nil {
		return hc, nil
	}
	fns := t.Lookup(hc.Entity.Name, hc.Operation, stage)
	if len(fns) == 0 {
		return hc, nil
	}
	if hc.Values == nil {
		hc.Values = make(map[string]any)
	}
	start := time.Now()
	for _, fn := range fns {
		next, err := fn(ctx, hc)
		if err != nil {
			t.metrics.RecordHook(ctx, string(stage), time.Since(start), true)
			if stage == AfterResultSent {
				logging.FromContext(ctx).Warn("afterResultSent hook failed",
					slog.String("entity", hc.Entity.Name),
					slog.String("operation", string(hc.Operation)),
					slog.String("error", err.Error()),
				)
				return hc, nil
			}
			return hc, err
		}
		hc = next
	}
	t.metrics.RecordHook(ctx, string(stage), time.Since(start), false)
	return hc, nil
}

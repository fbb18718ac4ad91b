// Package relations loads related rows for a set of parent rows without
// per-parent queries and merges them back into the parents.
package relations

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"autoapi/internal/apperr"
	"autoapi/internal/auth"
	"autoapi/internal/dbexec"
	"autoapi/internal/entity"
	"autoapi/internal/hooks"
	"autoapi/internal/observability"
	"autoapi/internal/planner"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

// MissingRelationMessage is reported when a foreign key column has no relation to resolve it.
const MissingRelationMessage = "Column should have a relation"

// MergeMode selects how related rows are attached to their parents.
type MergeMode int

const (
	// MergeNest attaches a related object or list under the relation field.
	MergeNest MergeMode = iota
	// MergeOverwrite replaces a many-to-one foreign key with the related display value.
	MergeOverwrite
)

// Request asks for one relation of the parent entity. Page applies per parent.
type Request struct {
	Relation *entity.Relation
	Columns  []string
	Filter   planner.Filter
	Page     planner.Page
	Order    []planner.Order
}

// Index maps a parent link value (see Key) to its related rows.
type Index map[string][]entity.Row

// Key normalizes a link value so driver and client representations of the
// same key compare equal.
func Key(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(t)
	case string:
		return t
	}
	return fmt.Sprint(v)
}

// Lookup returns the rows linked to value.
func (ix Index) Lookup(value any) []entity.Row {
	if value == nil {
		return nil
	}
	return ix[Key(value)]
}

// Resolver loads relations through the connector of the related entity.
// Every load runs the remote entity's beforeSendQuery and afterQueryResult
// query hooks, so predicates a hook adds to direct reads also bound the rows
// reachable through a relation.
type Resolver struct {
	registry *entity.Registry
	pool     *dbexec.Pool
	hooks    *hooks.Table
	metrics  *observability.APIMetrics
}

// New creates a relation resolver. hooks and metrics may be nil.
func New(registry *entity.Registry, pool *dbexec.Pool, table *hooks.Table, metrics *observability.APIMetrics) *Resolver {
	return &Resolver{registry: registry, pool: pool, hooks: table, metrics: metrics}
}

// Fetch loads req.Relation for every parent with one batched plan.
func (r *Resolver) Fetch(ctx context.Context, parent *entity.Entity, req Request, parents []entity.Row) (Index, error) {
	rel := req.Relation
	if rel == nil {
		return nil, fmt.Errorf("relation request on %s has no relation", parent.Name)
	}
	remote, err := r.registry.Resolve(rel.RemoteEntity)
	if err != nil {
		return nil, apperr.Configuration("relation %s references unknown entity %q", rel, rel.RemoteEntity)
	}
	values := LinkValues(parents, rel.LocalColumn)

	ctx, span := otel.Tracer("autoapi/relations").Start(ctx, "relation.fetch")
	span.SetAttributes(
		attribute.String("relation.kind", string(rel.Kind)),
		attribute.String("relation.field", rel.Field),
		attribute.Int("relation.parent_count", len(values)),
	)
	defer span.End()

	index, err := r.load(ctx, remote, rel, req, values)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return index, nil
}

func (r *Resolver) load(ctx context.Context, remote *entity.Entity, rel *entity.Relation, req Request, values []any) (Index, error) {
	kind := string(rel.Kind)
	if len(values) == 0 {
		r.metrics.RecordBatchSkipped(ctx, kind, "no_parent_keys")
		return Index{}, nil
	}
	conn, err := r.pool.Connector(remote.Connector)
	if err != nil {
		return nil, err
	}

	stmt, err := conn.Planner.BuildRelated(remote, rel, values, planner.RelatedOptions{
		Columns: req.Columns,
		Filter:  req.Filter,
		Page:    req.Page,
		Order:   req.Order,
	})
	if err != nil {
		return nil, err
	}

	hc := hooks.Context{
		Entity:    remote,
		Operation: entity.OpQuery,
		User:      auth.UserFromContext(ctx),
		Args:      map[string]any{"relation": rel.String()},
		Query:     stmt,
		Connector: conn,
	}
	if hc, err = r.hooks.Run(ctx, hooks.BeforeSendQuery, hc); err != nil {
		return nil, err
	}
	related, ok := hc.Query.(*planner.Related)
	if !ok {
		return nil, apperr.Configuration("beforeSendQuery hook on %s replaced a relation load with %T", remote.Name, hc.Query)
	}
	plan, err := related.Plan()
	if err != nil {
		return nil, err
	}
	if plan.Empty() {
		r.metrics.RecordBatchSkipped(ctx, kind, "never_matches")
		return Index{}, nil
	}

	r.metrics.RecordBatchParentCount(ctx, int64(len(values)), kind)
	var fetched []entity.Row
	for _, query := range plan.Queries {
		rows, err := dbexec.QueryRows(ctx, conn.Executor, query, plan.Columns)
		if err != nil {
			return nil, apperr.Upstream(err)
		}
		for _, raw := range rows {
			fetched = append(fetched, remote.ScanRow(entity.Row(raw)))
		}
	}
	r.metrics.RecordBatchResultRows(ctx, int64(len(fetched)), kind)
	r.metrics.RecordBatchQueriesSaved(ctx, int64(len(values)-len(plan.Queries)), kind)

	hc.Results = fetched
	if hc, err = r.hooks.Run(ctx, hooks.AfterQueryResult, hc); err != nil {
		return nil, err
	}
	if fetched, ok = hc.Results.([]entity.Row); !ok && hc.Results != nil {
		return nil, apperr.Configuration("afterQueryResult hook on %s returned %T, expected []entity.Row", remote.Name, hc.Results)
	}

	index := make(Index)
	for _, row := range fetched {
		key := Key(row[plan.KeyColumn])
		if plan.KeyColumn == planner.BatchParentAlias {
			delete(row, planner.BatchParentAlias)
		}
		index[key] = append(index[key], row)
	}
	return index, nil
}

// LinkValues returns the distinct non-null values of column across rows, in
// first-seen order.
func LinkValues(rows []entity.Row, column string) []any {
	seen := make(map[string]struct{}, len(rows))
	values := make([]any, 0, len(rows))
	for _, row := range rows {
		v := row[column]
		if v == nil {
			continue
		}
		key := Key(v)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		values = append(values, v)
	}
	return values
}

// fetchUnit is one query plan serving one or more requests.
type fetchUnit struct {
	requests []Request
	columns  []string
	index    Index
}

// Resolve loads every request for parents and merges the results in place.
// Many-to-one requests that target the same remote key share one fetch.
// Fetches run concurrently; the first failure cancels the rest.
func (r *Resolver) Resolve(ctx context.Context, parent *entity.Entity, parents []entity.Row, reqs []Request, mode MergeMode) error {
	if len(parents) == 0 || len(reqs) == 0 {
		return nil
	}
	units := groupRequests(reqs)

	g, gctx := errgroup.WithContext(ctx)
	for _, unit := range units {
		g.Go(func() error {
			index, err := r.fetchUnit(gctx, parent, unit, parents)
			if err != nil {
				return err
			}
			unit.index = index
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, unit := range units {
		for _, req := range unit.requests {
			merge(parents, req, unit.index, mode)
		}
	}
	return nil
}

func (r *Resolver) fetchUnit(ctx context.Context, parent *entity.Entity, unit *fetchUnit, parents []entity.Row) (Index, error) {
	if len(unit.requests) == 1 {
		return r.Fetch(ctx, parent, unit.requests[0], parents)
	}
	// Merged many-to-one: collect link values from every local column.
	first := unit.requests[0].Relation
	combined := make([]entity.Row, 0, len(parents)*len(unit.requests))
	for _, req := range unit.requests {
		for _, row := range parents {
			combined = append(combined, entity.Row{first.LocalColumn: row[req.Relation.LocalColumn]})
		}
	}
	return r.Fetch(ctx, parent, Request{Relation: first, Columns: unit.columns}, combined)
}

func groupRequests(reqs []Request) []*fetchUnit {
	var units []*fetchUnit
	byTarget := make(map[string]*fetchUnit)
	for _, req := range reqs {
		rel := req.Relation
		if rel == nil {
			continue
		}
		if rel.Kind != entity.ManyToOne {
			units = append(units, &fetchUnit{requests: []Request{req}, columns: req.Columns})
			continue
		}
		target := rel.RemoteEntity + "." + rel.RemoteKey
		if unit, ok := byTarget[target]; ok {
			unit.requests = append(unit.requests, req)
			unit.columns = unionColumns(unit.columns, req.Columns)
			continue
		}
		unit := &fetchUnit{requests: []Request{req}, columns: req.Columns}
		byTarget[target] = unit
		units = append(units, unit)
	}
	return units
}

// unionColumns merges column lists. A nil list means every column and wins.
func unionColumns(a, b []string) []string {
	if a == nil || b == nil {
		return nil
	}
	set := make(map[string]struct{}, len(a)+len(b))
	for _, c := range a {
		set[c] = struct{}{}
	}
	for _, c := range b {
		set[c] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func merge(parents []entity.Row, req Request, index Index, mode MergeMode) {
	rel := req.Relation
	for _, row := range parents {
		related := index.Lookup(row[rel.LocalColumn])
		if rel.Kind != entity.ManyToOne {
			list := make([]entity.Row, 0, len(related))
			list = append(list, related...)
			row[rel.Field] = list
			continue
		}
		var match entity.Row
		if len(related) > 0 {
			match = related[0]
		}
		if mode == MergeOverwrite {
			if match != nil {
				row[rel.LocalColumn] = match[rel.Display]
			}
			continue
		}
		if match == nil {
			row[rel.Field] = nil
		} else {
			row[rel.Field] = match
		}
	}
}

// FriendlyRequests returns the requests that replace every foreign key of e
// with its display value. A foreign key without a relation is a configuration error.
func FriendlyRequests(e *entity.Entity) ([]Request, error) {
	var reqs []Request
	for _, cr := range entity.ColumnsWithRelations(e) {
		if cr.Relation == nil {
			return nil, apperr.Configuration(MissingRelationMessage)
		}
		reqs = append(reqs, Request{
			Relation: cr.Relation,
			Columns:  distinct(cr.Relation.RemoteKey, cr.Relation.Display),
		})
	}
	return reqs, nil
}

// DetailRequests returns one nested request per relation of e, selecting the
// related columns visible in relation views.
func DetailRequests(registry *entity.Registry, e *entity.Entity) ([]Request, error) {
	reqs := make([]Request, 0, len(e.Relations))
	for _, rel := range e.Relations {
		remote, err := registry.Resolve(rel.RemoteEntity)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, Request{
			Relation: rel,
			Columns:  entity.ColumnsVisibleFor(remote, entity.ViewRelation),
		})
	}
	return reqs, nil
}

func distinct(names ...string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		dup := false
		for _, existing := range out {
			if existing == n {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, n)
		}
	}
	return out
}

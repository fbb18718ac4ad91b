package planner

import (
	"fmt"
	"strings"

	"autoapi/internal/apperr"
	"autoapi/internal/entity"

	sq "github.com/Masterminds/squirrel"
)

// BatchParentAlias is the column alias used to return parent keys in batch queries.
const BatchParentAlias = "__batch_parent_id"

// BatchPlan is a chunked set of queries that load one relation for many parents.
type BatchPlan struct {
	Queries []SQLQuery
	// Columns is the scan order of every query in the plan.
	Columns []string
	// KeyColumn is the scanned column that links a row back to its parent.
	KeyColumn string
}

// Empty reports a plan that needs no I/O.
func (b BatchPlan) Empty() bool { return len(b.Queries) == 0 }

// ManyToOne plans loading remote rows whose key is in values.
func (p *Planner) ManyToOne(remote *entity.Entity, key string, values []any, columns []string) (BatchPlan, error) {
	return p.manyToOne(remote, key, values, columns, nil)
}

func (p *Planner) manyToOne(remote *entity.Entity, key string, values []any, columns []string, extra []sq.Sqlizer) (BatchPlan, error) {
	cols, err := resolveColumns(remote, columns, key, remote.PrimaryKey)
	if err != nil {
		return BatchPlan{}, err
	}
	plan := BatchPlan{Columns: cols, KeyColumn: key}
	for _, chunk := range chunkValues(values, p.maxIn) {
		builder := sq.Select(p.columnList("", cols)...).
			From(p.dialect.Quote(remote.Table)).
			Where(sq.Eq{p.dialect.Quote(key): chunk})
		for _, pred := range extra {
			builder = builder.Where(pred)
		}
		query, args, err := builder.PlaceholderFormat(p.dialect.Placeholder).ToSql()
		if err != nil {
			return BatchPlan{}, err
		}
		plan.Queries = append(plan.Queries, SQLQuery{SQL: query, Args: args})
	}
	return plan, nil
}

// RelatedOptions narrows a to-many relation load. Page applies per parent.
type RelatedOptions struct {
	Columns []string
	Filter  Filter
	Page    Page
	Order   []Order
	// Where holds predicates ANDed into every chunk after Filter.
	Where []sq.Sqlizer
}

// batchSource is the FROM side of a to-many batch and the expression that
// links a row to its parent.
type batchSource struct {
	qualifier  string
	from       string
	parentExpr string
	// distinct collapses repeated junction rows onto one row per parent.
	distinct bool
}

// OneToMany plans loading child rows whose fk is in parentIDs.
func (p *Planner) OneToMany(child *entity.Entity, fk string, parentIDs []any, opts RelatedOptions) (BatchPlan, error) {
	if child.Column(fk) == nil {
		return BatchPlan{}, fmt.Errorf("unknown column %s.%s", child.Name, fk)
	}
	return p.relatedBatch(child, batchSource{
		from:       p.dialect.Quote(child.Table),
		parentExpr: p.dialect.Quote(fk),
	}, parentIDs, opts)
}

// ManyToMany plans loading remote rows linked through rel's junction to
// parentIDs. A remote row linked to the same parent more than once is
// returned once.
func (p *Planner) ManyToMany(remote *entity.Entity, rel *entity.Relation, parentIDs []any, opts RelatedOptions) (BatchPlan, error) {
	if rel.Through == nil {
		return BatchPlan{}, fmt.Errorf("relation %s has no junction", rel.Field)
	}
	from := fmt.Sprintf("%s INNER JOIN %s ON %s = %s",
		p.dialect.Quote(remote.Table),
		p.dialect.Quote(rel.Through.Table),
		p.dialect.QuoteQualified(rel.Through.Table, rel.Through.RemoteKey),
		p.dialect.QuoteQualified(remote.Table, rel.RemoteKey),
	)
	return p.relatedBatch(remote, batchSource{
		qualifier:  remote.Table,
		from:       from,
		parentExpr: p.dialect.QuoteQualified(rel.Through.Table, rel.Through.LocalKey),
		distinct:   true,
	}, parentIDs, opts)
}

func (p *Planner) relatedBatch(e *entity.Entity, src batchSource, parentIDs []any, opts RelatedOptions) (BatchPlan, error) {
	if err := opts.Page.Validate(); err != nil {
		return BatchPlan{}, err
	}
	if err := validateOrder(e, opts.Order); err != nil {
		return BatchPlan{}, err
	}
	required := []string{e.PrimaryKey}
	if src.distinct {
		// DISTINCT needs every ORDER BY column in the select list.
		for _, order := range opts.Order {
			required = append(required, order.Column)
		}
	}
	cols, err := resolveColumns(e, opts.Columns, required...)
	if err != nil {
		return BatchPlan{}, err
	}
	plan := BatchPlan{
		Columns:   append(append([]string{}, cols...), BatchParentAlias),
		KeyColumn: BatchParentAlias,
	}

	cond, never, err := p.buildWhere(src.qualifier, e, opts.Filter)
	if err != nil {
		return BatchPlan{}, err
	}
	if never {
		return plan, nil
	}
	var conds []sq.Sqlizer
	if cond != nil {
		conds = append(conds, cond)
	}
	for _, pred := range opts.Where {
		if pred != nil {
			conds = append(conds, pred)
		}
	}

	for _, chunk := range chunkValues(parentIDs, p.maxIn) {
		var (
			query SQLQuery
			err   error
		)
		if opts.Page.Take > 0 || opts.Page.Skip > 0 {
			query, err = p.windowBatch(e, src, cols, opts.Order, chunk, conds, opts.Page)
		} else {
			query, err = p.plainBatch(e, src, cols, opts.Order, chunk, conds)
		}
		if err != nil {
			return BatchPlan{}, err
		}
		plan.Queries = append(plan.Queries, query)
	}
	return plan, nil
}

func (p *Planner) plainBatch(e *entity.Entity, src batchSource, cols []string, orders []Order, chunk []any, conds []sq.Sqlizer) (SQLQuery, error) {
	builder := sq.Select(p.columnList(src.qualifier, cols)...).
		Column(fmt.Sprintf("%s AS %s", src.parentExpr, BatchParentAlias)).
		From(src.from).
		Where(sq.Eq{src.parentExpr: chunk})
	if src.distinct {
		builder = builder.Distinct()
	}
	for _, cond := range conds {
		builder = builder.Where(cond)
	}
	query, args, err := builder.
		OrderBy(append([]string{BatchParentAlias}, p.orderClauses(src.qualifier, e, orders)...)...).
		PlaceholderFormat(p.dialect.Placeholder).
		ToSql()
	if err != nil {
		return SQLQuery{}, err
	}
	return SQLQuery{SQL: query, Args: args}, nil
}

// windowBatch emits the ROW_NUMBER() pattern so take/skip apply per parent.
// Distinct sources are collapsed in a derived table before numbering.
func (p *Planner) windowBatch(e *entity.Entity, src batchSource, cols []string, orders []Order, chunk []any, conds []sq.Sqlizer, page Page) (SQLQuery, error) {
	where := sq.And{sq.Eq{src.parentExpr: chunk}}
	where = append(where, conds...)
	whereSQL, whereArgs, err := where.ToSql()
	if err != nil {
		return SQLQuery{}, err
	}

	outerCols := strings.Join(p.columnList("", cols), ", ")
	bounds := "__rn > ?"
	args := append([]any{}, whereArgs...)
	args = append(args, page.Skip)
	if page.Take > 0 {
		bounds += " AND __rn <= ?"
		args = append(args, page.Skip+page.Take)
	}

	var numbered string
	if src.distinct {
		numbered = fmt.Sprintf(
			"SELECT %s, %s, ROW_NUMBER() OVER (PARTITION BY %s ORDER BY %s) AS __rn FROM (SELECT DISTINCT %s, %s AS %s FROM %s WHERE %s) AS __linked",
			outerCols, BatchParentAlias,
			BatchParentAlias, strings.Join(p.orderClauses("", e, orders), ", "),
			strings.Join(p.columnList(src.qualifier, cols), ", "), src.parentExpr, BatchParentAlias,
			src.from, whereSQL,
		)
	} else {
		numbered = fmt.Sprintf(
			"SELECT %s, %s AS %s, ROW_NUMBER() OVER (PARTITION BY %s ORDER BY %s) AS __rn FROM %s WHERE %s",
			strings.Join(p.columnList(src.qualifier, cols), ", "), src.parentExpr, BatchParentAlias,
			src.parentExpr, strings.Join(p.orderClauses(src.qualifier, e, orders), ", "),
			src.from, whereSQL,
		)
	}
	query := fmt.Sprintf("SELECT %s, %s FROM (%s) AS __batch WHERE %s ORDER BY %s, __rn",
		outerCols, BatchParentAlias, numbered, bounds, BatchParentAlias)
	rebound, err := p.dialect.Rebind(query)
	if err != nil {
		return SQLQuery{}, err
	}
	return SQLQuery{SQL: rebound, Args: args}, nil
}

// Related is the batched read behind one relation load. Hooks narrow it
// through Where; the added predicates apply to every chunk of the plan.
type Related struct {
	planner  *Planner
	entity   *entity.Entity
	relation *entity.Relation
	values   []any
	opts     RelatedOptions
}

var _ Conditional = (*Related)(nil)

// BuildRelated plans loading rel's remote entity for the parent link values.
func (p *Planner) BuildRelated(remote *entity.Entity, rel *entity.Relation, values []any, opts RelatedOptions) (*Related, error) {
	opts.Where = append([]sq.Sqlizer(nil), opts.Where...)
	r := &Related{planner: p, entity: remote, relation: rel, values: values, opts: opts}
	if _, err := r.Plan(); err != nil {
		return nil, err
	}
	return r, nil
}

// Entity returns the remote entity being read.
func (r *Related) Entity() *entity.Entity { return r.entity }

// Relation returns the relation being loaded.
func (r *Related) Relation() *entity.Relation { return r.relation }

// Where adds a predicate on the remote entity's columns.
func (r *Related) Where(pred sq.Sqlizer) {
	if pred != nil {
		r.opts.Where = append(r.opts.Where, pred)
	}
}

// Plan renders every chunk.
func (r *Related) Plan() (BatchPlan, error) {
	switch r.relation.Kind {
	case entity.ManyToOne:
		return r.planner.manyToOne(r.entity, r.relation.RemoteKey, r.values, r.opts.Columns, r.opts.Where)
	case entity.OneToMany:
		return r.planner.OneToMany(r.entity, r.relation.RemoteKey, r.values, r.opts)
	case entity.ManyToMany:
		return r.planner.ManyToMany(r.entity, r.relation, r.values, r.opts)
	}
	return BatchPlan{}, apperr.Configuration("unsupported relation kind %q", r.relation.Kind)
}

// Empty reports a load that needs no I/O.
func (r *Related) Empty() bool {
	plan, err := r.Plan()
	return err == nil && plan.Empty()
}

// ToSQL renders the first chunk; Plan returns all of them.
func (r *Related) ToSQL() (SQLQuery, error) {
	plan, err := r.Plan()
	if err != nil || plan.Empty() {
		return SQLQuery{}, err
	}
	return plan.Queries[0], nil
}

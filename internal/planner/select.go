package planner

import (
	"math"

	"autoapi/internal/entity"

	sq "github.com/Masterminds/squirrel"
)

// Statement is a planned statement that hooks may inspect before it is sent.
type Statement interface {
	Entity() *entity.Entity
	// Empty reports a statement that cannot affect or return any row; the
	// executor answers it without I/O.
	Empty() bool
	ToSQL() (SQLQuery, error)
}

// Conditional is a Statement whose WHERE clause hooks can extend.
type Conditional interface {
	Statement
	Where(pred sq.Sqlizer)
}

// QueryOptions describes a read.
type QueryOptions struct {
	Columns []string
	Filter  Filter
	Page    Page
	Order   []Order
}

// Select is a planned SELECT (or COUNT) over one entity.
type Select struct {
	planner *Planner
	entity  *entity.Entity
	columns []string
	where   []sq.Sqlizer
	never   bool
	page    Page
	order   []Order
	count   bool
}

var (
	_ Conditional = (*Select)(nil)
	_ Conditional = (*Update)(nil)
	_ Conditional = (*Delete)(nil)
	_ Statement   = (*Insert)(nil)
)

// BuildQuery plans a read of e. The primary key is always selected.
func (p *Planner) BuildQuery(e *entity.Entity, opts QueryOptions) (*Select, error) {
	if err := opts.Page.Validate(); err != nil {
		return nil, err
	}
	if err := validateOrder(e, opts.Order); err != nil {
		return nil, err
	}
	columns, err := resolveColumns(e, opts.Columns, e.PrimaryKey)
	if err != nil {
		return nil, err
	}
	cond, never, err := p.buildWhere("", e, opts.Filter)
	if err != nil {
		return nil, err
	}
	s := &Select{
		planner: p,
		entity:  e,
		columns: columns,
		never:   never,
		page:    opts.Page,
		order:   opts.Order,
	}
	if cond != nil {
		s.where = append(s.where, cond)
	}
	return s, nil
}

// BuildCount plans SELECT COUNT(*) over rows matching filter.
func (p *Planner) BuildCount(e *entity.Entity, filter Filter) (*Select, error) {
	cond, never, err := p.buildWhere("", e, filter)
	if err != nil {
		return nil, err
	}
	s := &Select{planner: p, entity: e, never: never, count: true}
	if cond != nil {
		s.where = append(s.where, cond)
	}
	return s, nil
}

// Entity returns the entity being read.
func (s *Select) Entity() *entity.Entity { return s.entity }

// Empty reports a read that matches no rows.
func (s *Select) Empty() bool { return s.never }

// IsCount reports a COUNT statement.
func (s *Select) IsCount() bool { return s.count }

// Columns returns the selected columns in scan order.
func (s *Select) Columns() []string {
	if s.count {
		return []string{"count"}
	}
	out := make([]string, len(s.columns))
	copy(out, s.columns)
	return out
}

// Page returns the pagination bounds.
func (s *Select) Page() Page { return s.page }

// Where adds a predicate ANDed with the existing filter.
func (s *Select) Where(pred sq.Sqlizer) {
	if pred != nil {
		s.where = append(s.where, pred)
	}
}

// ToSQL renders the statement in the planner's dialect.
func (s *Select) ToSQL() (SQLQuery, error) {
	return s.render(s.planner.dialect.Placeholder)
}

func (s *Select) render(format sq.PlaceholderFormat) (SQLQuery, error) {
	p := s.planner
	var builder sq.SelectBuilder
	if s.count {
		builder = sq.Select("COUNT(*) AS " + p.dialect.Quote("count"))
	} else {
		builder = sq.Select(p.columnList("", s.columns)...)
	}
	builder = builder.From(p.dialect.Quote(s.entity.Table))
	for _, cond := range s.where {
		builder = builder.Where(cond)
	}
	if !s.count {
		builder = builder.OrderBy(p.orderClauses("", s.entity, s.order)...)
		builder = applyPage(builder, s.page)
	}
	query, args, err := builder.PlaceholderFormat(format).ToSql()
	if err != nil {
		return SQLQuery{}, err
	}
	return SQLQuery{SQL: query, Args: args}, nil
}

func applyPage(builder sq.SelectBuilder, page Page) sq.SelectBuilder {
	switch {
	case page.Take > 0:
		builder = builder.Limit(uint64(page.Take))
	case page.Skip > 0:
		// MySQL and SQLite need a LIMIT before OFFSET.
		builder = builder.Limit(math.MaxInt64)
	}
	if page.Skip > 0 {
		builder = builder.Offset(uint64(page.Skip))
	}
	return builder
}

package planner

import (
	"fmt"
	"sort"

	"autoapi/internal/apperr"
	"autoapi/internal/entity"

	sq "github.com/Masterminds/squirrel"
)

// Insert is a planned single-row INSERT.
type Insert struct {
	planner *Planner
	entity  *entity.Entity
	row     entity.Row
}

// BuildInsert plans inserting row into e.
func (p *Planner) BuildInsert(e *entity.Entity, row entity.Row) (*Insert, error) {
	for name := range row {
		if e.Column(name) == nil {
			return nil, apperr.InvalidInput("unknown column %q for %s", name, e.Name)
		}
	}
	return &Insert{planner: p, entity: e, row: row}, nil
}

// Entity returns the target entity.
func (i *Insert) Entity() *entity.Entity { return i.entity }

// Empty is always false for inserts.
func (i *Insert) Empty() bool { return false }

// Row returns the values to insert; hooks may modify it before ToSQL.
func (i *Insert) Row() entity.Row { return i.row }

// Returning reports whether ToSQL appends RETURNING for the primary key.
func (i *Insert) Returning() bool { return i.planner.dialect.Returning }

// ToSQL renders the INSERT with columns in sorted order.
func (i *Insert) ToSQL() (SQLQuery, error) {
	p := i.planner
	table := p.dialect.Quote(i.entity.Table)
	returning := ""
	if p.dialect.Returning {
		returning = " RETURNING " + p.dialect.Quote(i.entity.PrimaryKey)
	}
	if len(i.row) == 0 {
		return SQLQuery{SQL: fmt.Sprintf("INSERT INTO %s %s%s", table, p.dialect.EmptyInsert, returning)}, nil
	}

	names := make([]string, 0, len(i.row))
	for name := range i.row {
		names = append(names, name)
	}
	sort.Strings(names)
	values := make([]any, len(names))
	for idx, name := range names {
		values[idx] = i.row[name]
	}

	builder := sq.Insert(table).
		Columns(p.columnList("", names)...).
		Values(values...)
	if returning != "" {
		builder = builder.Suffix(returning[1:])
	}
	query, args, err := builder.PlaceholderFormat(p.dialect.Placeholder).ToSql()
	if err != nil {
		return SQLQuery{}, err
	}
	return SQLQuery{SQL: query, Args: args}, nil
}

// Update is a planned UPDATE. It runs in two steps: ToSQL selects the primary
// keys of matching rows (honouring take/skip), then Apply updates exactly
// those keys.
type Update struct {
	planner *Planner
	entity  *entity.Entity
	set     entity.Row
	keys    *Select
}

// BuildUpdate plans setting row on rows of e matching filter within page.
// Like BuildDelete, an unrestricted update is rejected.
func (p *Planner) BuildUpdate(e *entity.Entity, filter Filter, page Page, row entity.Row) (*Update, error) {
	if len(row) == 0 {
		return nil, apperr.InvalidInput("update data cannot be empty")
	}
	for name := range row {
		if e.Column(name) == nil {
			return nil, apperr.InvalidInput("unknown column %q for %s", name, e.Name)
		}
	}
	if filter == nil {
		return nil, apperr.InvalidFilter("update requires a filter")
	}
	keys, err := p.BuildQuery(e, QueryOptions{
		Columns: []string{e.PrimaryKey},
		Filter:  filter,
		Page:    page,
	})
	if err != nil {
		return nil, err
	}
	return &Update{planner: p, entity: e, set: row, keys: keys}, nil
}

// Entity returns the target entity.
func (u *Update) Entity() *entity.Entity { return u.entity }

// Empty reports an update whose filter matches nothing.
func (u *Update) Empty() bool { return u.keys.Empty() }

// Where restricts the rows to update.
func (u *Update) Where(pred sq.Sqlizer) { u.keys.Where(pred) }

// Set returns the values to write; hooks may modify it before Apply.
func (u *Update) Set() entity.Row { return u.set }

// KeyQuery returns the key selection.
func (u *Update) KeyQuery() *Select { return u.keys }

// ToSQL renders the key selection.
func (u *Update) ToSQL() (SQLQuery, error) { return u.keys.ToSQL() }

// Apply renders UPDATE statements for the selected keys, chunked by the
// planner's IN limit.
func (u *Update) Apply(keys []any) ([]SQLQuery, error) {
	if len(u.set) == 0 {
		return nil, apperr.InvalidInput("update data cannot be empty")
	}
	p := u.planner
	setMap := make(map[string]any, len(u.set))
	for col, val := range u.set {
		setMap[p.dialect.Quote(col)] = val
	}

	queries := make([]SQLQuery, 0, 1)
	for _, chunk := range chunkValues(keys, p.maxIn) {
		query, args, err := sq.Update(p.dialect.Quote(u.entity.Table)).
			SetMap(setMap).
			Where(sq.Eq{p.dialect.Quote(u.entity.PrimaryKey): chunk}).
			PlaceholderFormat(p.dialect.Placeholder).
			ToSql()
		if err != nil {
			return nil, err
		}
		queries = append(queries, SQLQuery{SQL: query, Args: args})
	}
	return queries, nil
}

// Delete is a planned DELETE.
type Delete struct {
	planner *Planner
	entity  *entity.Entity
	where   []sq.Sqlizer
	never   bool
}

// BuildDelete plans deleting rows of e matching filter. An unrestricted
// delete is rejected.
func (p *Planner) BuildDelete(e *entity.Entity, filter Filter) (*Delete, error) {
	if filter == nil {
		return nil, apperr.InvalidFilter("delete requires a filter")
	}
	cond, never, err := p.buildWhere("", e, filter)
	if err != nil {
		return nil, err
	}
	d := &Delete{planner: p, entity: e, never: never}
	if cond != nil {
		d.where = append(d.where, cond)
	}
	return d, nil
}

// Entity returns the target entity.
func (d *Delete) Entity() *entity.Entity { return d.entity }

// Empty reports a delete whose filter matches nothing.
func (d *Delete) Empty() bool { return d.never }

// Where restricts the rows to delete.
func (d *Delete) Where(pred sq.Sqlizer) {
	if pred != nil {
		d.where = append(d.where, pred)
	}
}

// ToSQL renders the DELETE.
func (d *Delete) ToSQL() (SQLQuery, error) {
	p := d.planner
	builder := sq.Delete(p.dialect.Quote(d.entity.Table))
	for _, cond := range d.where {
		builder = builder.Where(cond)
	}
	query, args, err := builder.PlaceholderFormat(p.dialect.Placeholder).ToSql()
	if err != nil {
		return SQLQuery{}, err
	}
	return SQLQuery{SQL: query, Args: args}, nil
}

package engine

import (
	"context"
	"fmt"

	"autoapi/internal/apperr"
	"autoapi/internal/dbexec"
	"autoapi/internal/entity"
	"autoapi/internal/hooks"
	"autoapi/internal/planner"
	"autoapi/internal/relations"
)

// QueryRequest reads rows of one entity.
type QueryRequest struct {
	Entity string
	Filter map[string]any
	Page   planner.Page
	// Order terms are column names, "-col" or "col desc".
	Order []string
	// Columns defaults to the list-visible columns.
	Columns []string
	// Friendly replaces foreign keys with their related display values.
	Friendly bool
}

// UpdateRequest changes rows selected by ID and/or Filter.
type UpdateRequest struct {
	Entity string
	ID     any
	Filter map[string]any
	Page   planner.Page
	Data   map[string]any
}

// DeleteResult reports how many rows a delete removed.
type DeleteResult struct {
	Deleted int64 `json:"deleted"`
}

// Query returns the rows of an entity matching the request.
func (e *Engine) Query(ctx context.Context, req QueryRequest) ([]entity.Row, error) {
	args := map[string]any{
		ArgFilter:   req.Filter,
		ArgPage:     req.Page,
		ArgOrder:    req.Order,
		ArgColumns:  req.Columns,
		ArgFriendly: req.Friendly,
	}
	result, err := e.execute(ctx, req.Entity, args, operation{
		op:   entity.OpQuery,
		plan: e.planSelect(entity.ViewList),
		exec: func(ctx context.Context, conn *dbexec.Connector, hc hooks.Context) (any, error) {
			rows, err := e.selectRows(ctx, conn, hc.Query)
			if err != nil {
				return nil, err
			}
			if argBool(hc.Args, ArgFriendly) {
				reqs, err := relations.FriendlyRequests(hc.Entity)
				if err != nil {
					return nil, err
				}
				if err := e.relations.Resolve(ctx, hc.Entity, rows, reqs, relations.MergeOverwrite); err != nil {
					return nil, err
				}
			}
			e.metrics.RecordResultsCount(ctx, int64(len(rows)), string(entity.OpQuery))
			return rows, nil
		},
	})
	if err != nil {
		return nil, err
	}
	return resultAs[[]entity.Row](result, entity.OpQuery)
}

// Count returns the number of rows matching filter.
func (e *Engine) Count(ctx context.Context, name string, filter map[string]any) (int64, error) {
	result, err := e.execute(ctx, name, map[string]any{ArgFilter: filter}, operation{
		op: entity.OpCount,
		plan: func(_ context.Context, conn *dbexec.Connector, hc hooks.Context) (planner.Statement, error) {
			f, err := e.filterArg(hc.Entity, hc.Args)
			if err != nil {
				return nil, err
			}
			return conn.Planner.BuildCount(hc.Entity, f)
		},
		exec: func(ctx context.Context, conn *dbexec.Connector, hc hooks.Context) (any, error) {
			if hc.Query.Empty() {
				return int64(0), nil
			}
			q, err := hc.Query.ToSQL()
			if err != nil {
				return nil, err
			}
			v, err := dbexec.QueryValue(ctx, conn.Executor, q)
			if err != nil {
				return nil, apperr.Upstream(err)
			}
			if v == nil {
				return int64(0), nil
			}
			n, err := entity.CoerceNumber(v)
			if err != nil {
				return nil, apperr.Upstream(fmt.Errorf("count: %w", err))
			}
			return n, nil
		},
	})
	if err != nil {
		return 0, err
	}
	return resultAs[int64](result, entity.OpCount)
}

// Get returns the row with primary key id using detail-visible columns.
// includeRelations nests every relation of the entity.
func (e *Engine) Get(ctx context.Context, name string, id any, includeRelations bool) (entity.Row, error) {
	args := map[string]any{
		ArgID:               id,
		ArgPage:             planner.Page{Take: 1},
		ArgIncludeRelations: includeRelations,
	}
	result, err := e.execute(ctx, name, args, operation{
		op:   entity.OpQuery,
		plan: e.planSelect(entity.ViewDetail),
		exec: func(ctx context.Context, conn *dbexec.Connector, hc hooks.Context) (any, error) {
			rows, err := e.selectRows(ctx, conn, hc.Query)
			if err != nil {
				return nil, err
			}
			if len(rows) == 0 {
				return nil, apperr.NotFound("%s %v not found", hc.Entity.Name, hc.Args[ArgID])
			}
			if argBool(hc.Args, ArgIncludeRelations) {
				reqs, err := relations.DetailRequests(e.registry, hc.Entity)
				if err != nil {
					return nil, err
				}
				if err := e.relations.Resolve(ctx, hc.Entity, rows[:1], reqs, relations.MergeNest); err != nil {
					return nil, err
				}
			}
			return rows[0], nil
		},
	})
	if err != nil {
		return nil, err
	}
	return resultAs[entity.Row](result, entity.OpQuery)
}

// Add inserts one row and returns it re-selected by primary key.
func (e *Engine) Add(ctx context.Context, name string, data map[string]any) ([]entity.Row, error) {
	result, err := e.execute(ctx, name, map[string]any{ArgData: data}, operation{
		op: entity.OpAdd,
		plan: func(_ context.Context, conn *dbexec.Connector, hc hooks.Context) (planner.Statement, error) {
			raw, err := argMap(hc.Args, ArgData)
			if err != nil {
				return nil, err
			}
			row, err := hc.Entity.CoerceInput(raw)
			if err != nil {
				return nil, err
			}
			return conn.Planner.BuildInsert(hc.Entity, row)
		},
		exec: func(ctx context.Context, conn *dbexec.Connector, hc hooks.Context) (any, error) {
			ins, ok := hc.Query.(*planner.Insert)
			if !ok {
				return nil, apperr.Configuration("add expects an insert statement, got %T", hc.Query)
			}
			key, err := e.insert(ctx, conn, ins)
			if err != nil {
				return nil, err
			}
			return e.reselect(ctx, conn, hc.Entity, []any{key})
		},
	})
	if err != nil {
		return nil, err
	}
	return resultAs[[]entity.Row](result, entity.OpAdd)
}

// insert runs ins and returns the new row's key: the submitted key, the
// RETURNING value or the driver's last insert id. A row whose key cannot be
// recovered fails as upstream, since it cannot be re-selected.
func (e *Engine) insert(ctx context.Context, conn *dbexec.Connector, ins *planner.Insert) (any, error) {
	ent := ins.Entity()
	q, err := ins.ToSQL()
	if err != nil {
		return nil, err
	}
	if ins.Returning() {
		v, err := dbexec.QueryValue(ctx, conn.Executor, q)
		if err != nil {
			return nil, apperr.Upstream(err)
		}
		if v == nil {
			return nil, apperr.Upstream(fmt.Errorf("insert into %s returned no key", ent.Table))
		}
		return ent.ScanValue(ent.PrimaryKey, v), nil
	}
	res, err := conn.Executor.ExecContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, apperr.Upstream(err)
	}
	if submitted, ok := ins.Row()[ent.PrimaryKey]; ok && submitted != nil {
		return submitted, nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, apperr.Upstream(fmt.Errorf("insert into %s: last insert id: %w", ent.Table, err))
	}
	if id == 0 {
		return nil, apperr.Upstream(fmt.Errorf("insert into %s generated no key", ent.Table))
	}
	return id, nil
}

// Update applies data to the matching rows and returns them re-selected.
func (e *Engine) Update(ctx context.Context, req UpdateRequest) ([]entity.Row, error) {
	args := map[string]any{
		ArgFilter: req.Filter,
		ArgPage:   req.Page,
		ArgData:   req.Data,
	}
	if req.ID != nil {
		args[ArgID] = req.ID
	}
	result, err := e.execute(ctx, req.Entity, args, operation{
		op: entity.OpUpdate,
		plan: func(_ context.Context, conn *dbexec.Connector, hc hooks.Context) (planner.Statement, error) {
			f, err := e.filterArg(hc.Entity, hc.Args)
			if err != nil {
				return nil, err
			}
			raw, err := argMap(hc.Args, ArgData)
			if err != nil {
				return nil, err
			}
			row, err := hc.Entity.CoerceInput(raw)
			if err != nil {
				return nil, err
			}
			return conn.Planner.BuildUpdate(hc.Entity, f, argPage(hc.Args), row)
		},
		exec: func(ctx context.Context, conn *dbexec.Connector, hc hooks.Context) (any, error) {
			upd, ok := hc.Query.(*planner.Update)
			if !ok {
				return nil, apperr.Configuration("update expects an update statement, got %T", hc.Query)
			}
			if upd.Empty() {
				return []entity.Row{}, nil
			}
			keyRows, err := e.selectRows(ctx, conn, upd.KeyQuery())
			if err != nil {
				return nil, err
			}
			keys := make([]any, 0, len(keyRows))
			for _, row := range keyRows {
				keys = append(keys, row[hc.Entity.PrimaryKey])
			}
			if len(keys) == 0 {
				return []entity.Row{}, nil
			}
			queries, err := upd.Apply(keys)
			if err != nil {
				return nil, err
			}
			for _, q := range queries {
				if _, err := conn.Executor.ExecContext(ctx, q.SQL, q.Args...); err != nil {
					return nil, apperr.Upstream(err)
				}
			}
			return e.reselect(ctx, conn, hc.Entity, keys)
		},
	})
	if err != nil {
		return nil, err
	}
	return resultAs[[]entity.Row](result, entity.OpUpdate)
}

// Delete removes the rows matching id and/or filter. A delete with neither is rejected.
func (e *Engine) Delete(ctx context.Context, name string, id any, filter map[string]any) (DeleteResult, error) {
	args := map[string]any{ArgFilter: filter}
	if id != nil {
		args[ArgID] = id
	}
	result, err := e.execute(ctx, name, args, operation{
		op: entity.OpDelete,
		plan: func(_ context.Context, conn *dbexec.Connector, hc hooks.Context) (planner.Statement, error) {
			f, err := e.filterArg(hc.Entity, hc.Args)
			if err != nil {
				return nil, err
			}
			return conn.Planner.BuildDelete(hc.Entity, f)
		},
		exec: func(ctx context.Context, conn *dbexec.Connector, hc hooks.Context) (any, error) {
			if hc.Query.Empty() {
				return DeleteResult{}, nil
			}
			q, err := hc.Query.ToSQL()
			if err != nil {
				return nil, err
			}
			res, err := conn.Executor.ExecContext(ctx, q.SQL, q.Args...)
			if err != nil {
				return nil, apperr.Upstream(err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return nil, apperr.Upstream(err)
			}
			return DeleteResult{Deleted: n}, nil
		},
	})
	if err != nil {
		return DeleteResult{}, err
	}
	return resultAs[DeleteResult](result, entity.OpDelete)
}

// Config describes an entity for client-side rendering.
func (e *Engine) Config(ctx context.Context, name string) (EntityConfig, error) {
	result, err := e.execute(ctx, name, nil, operation{
		op: entity.OpConfig,
		exec: func(_ context.Context, _ *dbexec.Connector, hc hooks.Context) (any, error) {
			return describe(hc.Entity), nil
		},
	})
	if err != nil {
		return EntityConfig{}, err
	}
	return resultAs[EntityConfig](result, entity.OpConfig)
}

func (e *Engine) planSelect(view entity.View) func(context.Context, *dbexec.Connector, hooks.Context) (planner.Statement, error) {
	return func(_ context.Context, conn *dbexec.Connector, hc hooks.Context) (planner.Statement, error) {
		f, err := e.filterArg(hc.Entity, hc.Args)
		if err != nil {
			return nil, err
		}
		order, err := planner.ParseOrder(hc.Entity, argStrings(hc.Args, ArgOrder))
		if err != nil {
			return nil, err
		}
		return conn.Planner.BuildQuery(hc.Entity, planner.QueryOptions{
			Columns: e.columnsArg(hc.Entity, hc.Args, view),
			Filter:  f,
			Page:    argPage(hc.Args),
			Order:   order,
		})
	}
}

// columnar is implemented by statements that return rows.
type columnar interface {
	planner.Statement
	Columns() []string
}

func (e *Engine) selectRows(ctx context.Context, conn *dbexec.Connector, stmt planner.Statement) ([]entity.Row, error) {
	sel, ok := stmt.(columnar)
	if !ok {
		return nil, apperr.Configuration("query expects a select statement, got %T", stmt)
	}
	rows := []entity.Row{}
	if sel.Empty() {
		return rows, nil
	}
	q, err := sel.ToSQL()
	if err != nil {
		return nil, err
	}
	raw, err := dbexec.QueryRows(ctx, conn.Executor, q, sel.Columns())
	if err != nil {
		return nil, apperr.Upstream(err)
	}
	ent := sel.Entity()
	for _, r := range raw {
		rows = append(rows, ent.ScanRow(entity.Row(r)))
	}
	return rows, nil
}

func (e *Engine) reselect(ctx context.Context, conn *dbexec.Connector, ent *entity.Entity, keys []any) ([]entity.Row, error) {
	sel, err := conn.Planner.BuildQuery(ent, planner.QueryOptions{
		Columns: entity.ColumnsVisibleFor(ent, entity.ViewDetail),
		Filter:  planner.KeysFilter(ent, keys),
	})
	if err != nil {
		return nil, err
	}
	return e.selectRows(ctx, conn, sel)
}

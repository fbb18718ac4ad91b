package resolver

import (
	"context"
	"fmt"
	"sort"

	"autoapi/internal/apperr"
	"autoapi/internal/engine"
	"autoapi/internal/entity"
	"autoapi/internal/planner"
	"autoapi/internal/relations"

	"github.com/graphql-go/graphql"
)

func (b *builder) listResolver(ent *entity.Entity) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		order, err := orderTerms(p.Args)
		if err != nil {
			return nil, toFieldError(err)
		}
		page := pageArgs(p.Args)
		if _, ok := p.Args[argTake]; !ok && b.defaultLimit > 0 {
			page.Take = b.defaultLimit
		}
		rows, err := b.eng.Query(p.Context, engine.QueryRequest{
			Entity:  ent.Name,
			Filter:  mapArg(p.Args, argFilter),
			Page:    page,
			Order:   order,
			Columns: selectedColumns(p.Info, ent),
		})
		if err != nil {
			return nil, toFieldError(err)
		}
		seedBatchRows(p.Context, pathKey(p.Info.Path), rows)
		return rows, nil
	}
}

func (b *builder) countResolver(ent *entity.Entity) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		n, err := b.eng.Count(p.Context, ent.Name, mapArg(p.Args, argFilter))
		if err != nil {
			return nil, toFieldError(err)
		}
		return n, nil
	}
}

func (b *builder) addResolver(ent *entity.Entity) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		rows, err := b.eng.Add(p.Context, ent.Name, mapArg(p.Args, argData))
		if err != nil {
			return nil, toFieldError(err)
		}
		seedBatchRows(p.Context, pathKey(p.Info.Path), rows)
		return rows, nil
	}
}

func (b *builder) updateResolver(ent *entity.Entity) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		rows, err := b.eng.Update(p.Context, engine.UpdateRequest{
			Entity: ent.Name,
			ID:     p.Args[argID],
			Filter: mapArg(p.Args, argFilter),
			Page:   pageArgs(p.Args),
			Data:   mapArg(p.Args, argData),
		})
		if err != nil {
			return nil, toFieldError(err)
		}
		seedBatchRows(p.Context, pathKey(p.Info.Path), rows)
		return rows, nil
	}
}

func (b *builder) deleteResolver(ent *entity.Entity) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		res, err := b.eng.Delete(p.Context, ent.Name, p.Args[argID], mapArg(p.Args, argFilter))
		if err != nil {
			return nil, toFieldError(err)
		}
		return res, nil
	}
}

// relationResolver answers a relation field for one parent row. The first
// call for a batch loads the relation for every sibling parent; later calls
// read the shared index.
func (b *builder) relationResolver(ent *entity.Entity, rel *entity.Relation, remote *entity.Entity) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		row := sourceRow(p.Source)
		if row == nil {
			return nil, toFieldError(fmt.Errorf("relation %s: unexpected source %T", rel, p.Source))
		}
		if err := b.eng.Authorize(p.Context, remote, entity.OpQuery); err != nil {
			return nil, toFieldError(err)
		}

		index, err := b.loadRelation(p, ent, rel, remote, row)
		if err != nil {
			return nil, relationError(p.Context, rel.String(), err)
		}
		related := index.Lookup(row[rel.LocalColumn])
		if rel.Kind == entity.ManyToOne {
			if len(related) == 0 {
				return nil, nil
			}
			return related[0], nil
		}
		if related == nil {
			related = []entity.Row{}
		}
		return related, nil
	}
}

func (b *builder) loadRelation(p graphql.ResolveParams, ent *entity.Entity, rel *entity.Relation, remote *entity.Entity, row entity.Row) (relations.Index, error) {
	req, err := b.relationRequest(p, rel, remote)
	if err != nil {
		return nil, err
	}
	childKey := pathKey(p.Info.Path)

	state, ok := getBatchState(p.Context)
	parentKey, tagged := parentKeyFromSource(row)
	if !ok || !tagged {
		index, err := b.eng.Relations().Fetch(p.Context, ent, req, []entity.Row{row})
		if err != nil {
			return nil, err
		}
		seedBatchRows(p.Context, childKey, rowsOf(index))
		return index, nil
	}

	load, created := state.relationLoad(parentKey + "|" + responseKey(p.Info.FieldASTs) + "|" + stableArgsKey(p.Args))
	if created {
		state.IncrementCacheMiss()
	} else {
		state.IncrementCacheHit()
	}
	load.once.Do(func() {
		parents := state.getParentRows(parentKey)
		if len(parents) == 0 {
			parents = []entity.Row{row}
		}
		load.index, load.err = tracedRelationFetch(p.Context, rel, parents, func(ctx context.Context) (relations.Index, error) {
			return b.eng.Relations().Fetch(ctx, ent, req, parents)
		})
		if load.err == nil {
			seedBatchRows(p.Context, childKey, rowsOf(load.index))
		}
	})
	return load.index, load.err
}

// relationRequest reads filter, paging and ordering arguments of a to-many
// relation field. Many-to-one fields take no arguments.
func (b *builder) relationRequest(p graphql.ResolveParams, rel *entity.Relation, remote *entity.Entity) (relations.Request, error) {
	req := relations.Request{
		Relation: rel,
		Columns:  selectedColumns(p.Info, remote),
	}
	if rel.Kind == entity.ManyToOne {
		return req, nil
	}
	filter, err := planner.ParseFilter(b.reg, remote, mapArg(p.Args, argFilter))
	if err != nil {
		return req, err
	}
	terms, err := orderTerms(p.Args)
	if err != nil {
		return req, err
	}
	order, err := planner.ParseOrder(remote, terms)
	if err != nil {
		return req, err
	}
	req.Filter = filter
	req.Page = pageArgs(p.Args)
	req.Order = order
	return req, nil
}

func mapArg(args map[string]interface{}, key string) map[string]interface{} {
	m, _ := args[key].(map[string]interface{})
	return m
}

func pageArgs(args map[string]interface{}) planner.Page {
	var page planner.Page
	if take, ok := args[argTake].(int); ok {
		page.Take = take
	}
	if skip, ok := args[argSkip].(int); ok {
		page.Skip = skip
	}
	return page
}

// orderTerms converts [{name: DESC}, {id: ASC}] into "-name", "id". Keys
// within one element are taken in name order.
func orderTerms(args map[string]interface{}) ([]string, error) {
	raw, ok := args[argOrderBy].([]interface{})
	if !ok {
		return nil, nil
	}
	var terms []string
	for _, item := range raw {
		entry, ok := item.(map[string]interface{})
		if !ok {
			return nil, apperr.InvalidInput("orderBy entries must be objects")
		}
		cols := make([]string, 0, len(entry))
		for col := range entry {
			cols = append(cols, col)
		}
		sort.Strings(cols)
		for _, col := range cols {
			switch entry[col] {
			case "DESC":
				terms = append(terms, "-"+col)
			case "ASC", nil:
				terms = append(terms, col)
			default:
				return nil, apperr.InvalidInput("invalid direction %v for %s", entry[col], col)
			}
		}
	}
	return terms, nil
}

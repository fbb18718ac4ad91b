package engine

import (
	"autoapi/internal/apperr"
	"autoapi/internal/entity"
	"autoapi/internal/planner"
)

// Argument keys stored in hooks.Context.Args. beforeResolver hooks may
// rewrite them; planning reads them afterwards.
const (
	ArgFilter           = "filter"
	ArgData             = "data"
	ArgID               = "id"
	ArgPage             = "page"
	ArgOrder            = "order"
	ArgColumns          = "columns"
	ArgFriendly         = "friendlyData"
	ArgIncludeRelations = "includeRelations"
)

func argMap(args map[string]any, key string) (map[string]any, error) {
	switch v := args[key].(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return v, nil
	case entity.Row:
		return v, nil
	default:
		return nil, apperr.InvalidInput("%s must be an object", key)
	}
}

func argStrings(args map[string]any, key string) []string {
	switch v := args[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	}
	return nil
}

func argPage(args map[string]any) planner.Page {
	page, _ := args[ArgPage].(planner.Page)
	return page
}

func argBool(args map[string]any, key string) bool {
	b, _ := args[key].(bool)
	return b
}

// filterArg parses the filter argument and, when an id argument is present,
// restricts it to that primary key.
func (e *Engine) filterArg(ent *entity.Entity, args map[string]any) (planner.Filter, error) {
	raw, err := argMap(args, ArgFilter)
	if err != nil {
		return nil, apperr.InvalidFilter("filter must be an object")
	}
	filter, err := planner.ParseFilter(e.registry, ent, raw)
	if err != nil {
		return nil, err
	}
	if id, ok := args[ArgID]; ok && id != nil {
		key, err := ent.CoerceKey(id)
		if err != nil {
			return nil, err
		}
		filter = planner.AndFilters(planner.KeyFilter(ent, key), filter)
	}
	return filter, nil
}

func (e *Engine) columnsArg(ent *entity.Entity, args map[string]any, view entity.View) []string {
	if cols := argStrings(args, ArgColumns); len(cols) > 0 {
		return cols
	}
	return entity.ColumnsVisibleFor(ent, view)
}

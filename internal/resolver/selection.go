package resolver

import (
	"autoapi/internal/entity"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"
)

// selectedColumns returns the columns of ent needed to answer the field's
// selection set: selected columns plus the local link column of every
// selected relation. The primary key is always included.
func selectedColumns(info graphql.ResolveInfo, ent *entity.Entity) []string {
	seen := map[string]struct{}{ent.PrimaryKey: {}}
	cols := []string{ent.PrimaryKey}
	add := func(name string) {
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		cols = append(cols, name)
	}

	visit := func(name string) {
		if col := ent.Column(name); col != nil {
			add(col.Name)
			return
		}
		if rel := ent.Relation(name); rel != nil {
			add(rel.LocalColumn)
		}
	}
	for _, field := range info.FieldASTs {
		if field == nil {
			continue
		}
		collectFieldNames(field.SelectionSet, info.Fragments, visit, map[string]bool{})
	}
	return cols
}

func collectFieldNames(set *ast.SelectionSet, fragments map[string]ast.Definition, visit func(string), visited map[string]bool) {
	if set == nil {
		return
	}
	for _, selection := range set.Selections {
		switch sel := selection.(type) {
		case *ast.Field:
			if sel.Name != nil {
				visit(sel.Name.Value)
			}
		case *ast.InlineFragment:
			collectFieldNames(sel.SelectionSet, fragments, visit, visited)
		case *ast.FragmentSpread:
			if sel.Name == nil || visited[sel.Name.Value] {
				continue
			}
			visited[sel.Name.Value] = true
			if frag, ok := fragments[sel.Name.Value].(*ast.FragmentDefinition); ok {
				collectFieldNames(frag.SelectionSet, fragments, visit, visited)
			}
		}
	}
}

// responseKey is the alias of the resolving field, or its name.
func responseKey(fields []*ast.Field) string {
	if len(fields) == 0 || fields[0] == nil {
		return ""
	}
	if fields[0].Alias != nil {
		return fields[0].Alias.Value
	}
	return fields[0].Name.Value
}

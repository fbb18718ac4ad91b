package resolver

import (
	"autoapi/internal/entity"
	"autoapi/internal/scalars"

	"github.com/graphql-go/graphql"
)

// Argument names of generated fields.
const (
	argFilter  = "filter"
	argTake    = "take"
	argSkip    = "skip"
	argOrderBy = "orderBy"
	argData    = "data"
	argID      = "id"
)

// scalarTable is the fixed data type mapping. Every schema build gets its
// own scalar instances.
func scalarTable() map[entity.DataType]*graphql.Scalar {
	return map[entity.DataType]*graphql.Scalar{
		entity.TypeString:  graphql.String,
		entity.TypeNumber:  graphql.Int,
		entity.TypeBoolean: graphql.Boolean,
		entity.TypeFloat:   graphql.Float,
		entity.TypeFile:    scalars.Upload(),
		entity.TypeDate:    scalars.DateTime(),
	}
}

func (b *builder) scalar(t entity.DataType) *graphql.Scalar {
	if s, ok := b.scalars[t]; ok {
		return s
	}
	return graphql.String
}

// exposed reports whether col appears on the object type: in at least one
// view, or as the primary key.
func exposed(col *entity.Column) bool {
	return col.PrimaryKey || col.Visibility.List || col.Visibility.Detail || col.Visibility.Relation
}

// objectType returns the output type of ent. Fields are built lazily so
// relations can reference types that are not built yet.
func (b *builder) objectType(ent *entity.Entity) *graphql.Object {
	if cached, ok := b.objects[ent.Name]; ok {
		return cached
	}
	obj := graphql.NewObject(graphql.ObjectConfig{
		Name:        b.typeNames[ent.Name],
		Description: ent.Label,
		Fields: graphql.FieldsThunk(func() graphql.Fields {
			return b.objectFields(ent)
		}),
	})
	b.objects[ent.Name] = obj
	return obj
}

func (b *builder) objectFields(ent *entity.Entity) graphql.Fields {
	fields := graphql.Fields{}
	for _, col := range ent.Columns {
		if !exposed(col) {
			continue
		}
		var fieldType graphql.Output = b.scalar(col.Type)
		if col.PrimaryKey {
			fieldType = graphql.NewNonNull(fieldType)
		}
		fields[col.Name] = &graphql.Field{
			Type:        fieldType,
			Description: col.Label,
			Resolve:     columnResolver(col.Name),
		}
	}

	for _, rel := range ent.Relations {
		remote, err := b.reg.Resolve(rel.RemoteEntity)
		if err != nil {
			b.fail(err)
			continue
		}
		remoteType := b.objectType(remote)
		if rel.Kind == entity.ManyToOne {
			fields[rel.Field] = &graphql.Field{
				Type:    remoteType,
				Resolve: b.relationResolver(ent, rel, remote),
			}
			continue
		}
		fields[rel.Field] = &graphql.Field{
			Type:    graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(remoteType))),
			Args:    b.listArgs(remote),
			Resolve: b.relationResolver(ent, rel, remote),
		}
	}
	return fields
}

// listArgs are the arguments of root list queries and to-many relations.
func (b *builder) listArgs(ent *entity.Entity) graphql.FieldConfigArgument {
	return graphql.FieldConfigArgument{
		argFilter:  &graphql.ArgumentConfig{Type: b.filterType(ent)},
		argTake:    &graphql.ArgumentConfig{Type: b.nonNegativeInt},
		argSkip:    &graphql.ArgumentConfig{Type: b.nonNegativeInt},
		argOrderBy: &graphql.ArgumentConfig{Type: graphql.NewList(graphql.NewNonNull(b.orderByType(ent)))},
	}
}

// filterType returns the <Type>Filter input. _and, _or and relation fields
// refer back to filter types, so fields are built lazily.
func (b *builder) filterType(ent *entity.Entity) *graphql.InputObject {
	if cached, ok := b.filters[ent.Name]; ok {
		return cached
	}
	var input *graphql.InputObject
	input = graphql.NewInputObject(graphql.InputObjectConfig{
		Name: b.typeNames[ent.Name] + "Filter",
		Fields: graphql.InputObjectConfigFieldMapThunk(func() graphql.InputObjectConfigFieldMap {
			fields := graphql.InputObjectConfigFieldMap{}
			for _, col := range ent.Columns {
				if !col.Filterable && !col.PrimaryKey {
					continue
				}
				fields[col.Name] = &graphql.InputObjectFieldConfig{Type: b.comparisonType(col.Type)}
			}
			for _, rel := range ent.Relations {
				remote, err := b.reg.Resolve(rel.RemoteEntity)
				if err != nil {
					b.fail(err)
					continue
				}
				fields[rel.Field] = &graphql.InputObjectFieldConfig{Type: b.filterType(remote)}
			}
			fields["_and"] = &graphql.InputObjectFieldConfig{Type: graphql.NewList(graphql.NewNonNull(input))}
			fields["_or"] = &graphql.InputObjectFieldConfig{Type: graphql.NewList(graphql.NewNonNull(input))}
			return fields
		}),
	})
	b.filters[ent.Name] = input
	return input
}

// comparisonType returns the shared operator input for a data type.
func (b *builder) comparisonType(t entity.DataType) *graphql.InputObject {
	if cached, ok := b.comparisons[t]; ok {
		return cached
	}
	s := b.scalar(t)
	fields := graphql.InputObjectConfigFieldMap{
		"_eq": &graphql.InputObjectFieldConfig{Type: s},
		"_in": &graphql.InputObjectFieldConfig{Type: graphql.NewList(graphql.NewNonNull(s))},
	}
	if t == entity.TypeString {
		fields["_like"] = &graphql.InputObjectFieldConfig{Type: graphql.String}
	}
	input := graphql.NewInputObject(graphql.InputObjectConfig{
		Name:   s.Name() + "Comparison",
		Fields: fields,
	})
	b.comparisons[t] = input
	return input
}

func (b *builder) orderByType(ent *entity.Entity) *graphql.InputObject {
	if cached, ok := b.orderBys[ent.Name]; ok {
		return cached
	}
	fields := graphql.InputObjectConfigFieldMap{}
	for _, col := range ent.Columns {
		if !exposed(col) {
			continue
		}
		fields[col.Name] = &graphql.InputObjectFieldConfig{Type: b.orderDirection}
	}
	input := graphql.NewInputObject(graphql.InputObjectConfig{
		Name:   b.typeNames[ent.Name] + "OrderBy",
		Fields: fields,
	})
	b.orderBys[ent.Name] = input
	return input
}

func newOrderDirectionEnum() *graphql.Enum {
	return graphql.NewEnum(graphql.EnumConfig{
		Name: "OrderDirection",
		Values: graphql.EnumValueConfigMap{
			"ASC":  &graphql.EnumValueConfig{Value: "ASC"},
			"DESC": &graphql.EnumValueConfig{Value: "DESC"},
		},
	})
}

// inputType is the add payload: every writable column, required when the
// column is not nullable. A primary key that is not generated is writable.
func (b *builder) inputType(ent *entity.Entity) *graphql.InputObject {
	fields := graphql.InputObjectConfigFieldMap{}
	for _, col := range writableColumns(ent) {
		var fieldType graphql.Input = b.scalar(col.Type)
		if !col.Nullable && !col.PrimaryKey {
			fieldType = graphql.NewNonNull(fieldType)
		}
		fields[col.Name] = &graphql.InputObjectFieldConfig{Type: fieldType}
	}
	return graphql.NewInputObject(graphql.InputObjectConfig{
		Name:   b.typeNames[ent.Name] + "Input",
		Fields: fields,
	})
}

// patchType is the update payload: every writable column, all optional.
func (b *builder) patchType(ent *entity.Entity) *graphql.InputObject {
	fields := graphql.InputObjectConfigFieldMap{}
	for _, col := range ent.InputColumns() {
		fields[col.Name] = &graphql.InputObjectFieldConfig{Type: b.scalar(col.Type)}
	}
	return graphql.NewInputObject(graphql.InputObjectConfig{
		Name:   b.typeNames[ent.Name] + "Patch",
		Fields: fields,
	})
}

func writableColumns(ent *entity.Entity) []*entity.Column {
	cols := ent.InputColumns()
	if pk := ent.PrimaryKeyColumn(); pk != nil && !pk.AutoGenerated {
		cols = append([]*entity.Column{pk}, cols...)
	}
	return cols
}

func newDeleteResultType() *graphql.Object {
	return graphql.NewObject(graphql.ObjectConfig{
		Name: "DeleteResult",
		Fields: graphql.Fields{
			"deleted": &graphql.Field{
				Type: graphql.NewNonNull(graphql.Int),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if res, ok := p.Source.(deleteResult); ok {
						return res.Deleted, nil
					}
					return nil, nil
				},
			},
		},
	})
}

func columnResolver(name string) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		row := sourceRow(p.Source)
		if row == nil {
			return nil, nil
		}
		return row[name], nil
	}
}

func sourceRow(source interface{}) entity.Row {
	switch row := source.(type) {
	case entity.Row:
		return row
	case map[string]interface{}:
		return row
	}
	return nil
}

// Package resolver synthesizes the GraphQL schema from the entity registry.
// Generated fields delegate to the engine; relation fields load through the
// relation resolver, batched across every parent of the enclosing list.
package resolver

import (
	"log/slog"
	"sort"

	"autoapi/internal/apperr"
	"autoapi/internal/engine"
	"autoapi/internal/entity"
	"autoapi/internal/naming"
	"autoapi/internal/scalars"

	"github.com/graphql-go/graphql"
)

type deleteResult = engine.DeleteResult

// Custom holds externally defined root fields merged into the schema.
type Custom struct {
	Queries   graphql.Fields
	Mutations graphql.Fields
}

// Option customizes a schema build.
type Option func(*builder)

// WithNamer sets the namer used for type and root field names.
func WithNamer(n *naming.Namer) Option {
	return func(b *builder) {
		if n != nil {
			b.namer = n
		}
	}
}

// WithDefaultLimit bounds root list queries that pass no take argument.
// Zero leaves them unbounded.
func WithDefaultLimit(limit int) Option {
	return func(b *builder) {
		if limit > 0 {
			b.defaultLimit = limit
		}
	}
}

// WithLogger sets the logger used during the build.
func WithLogger(logger *slog.Logger) Option {
	return func(b *builder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

type builder struct {
	reg          *entity.Registry
	eng          *engine.Engine
	namer        *naming.Namer
	logger       *slog.Logger
	defaultLimit int

	scalars        map[entity.DataType]*graphql.Scalar
	nonNegativeInt *graphql.Scalar
	orderDirection *graphql.Enum
	deleteResult   *graphql.Object

	typeNames   map[string]string
	objects     map[string]*graphql.Object
	filters     map[string]*graphql.InputObject
	orderBys    map[string]*graphql.InputObject
	comparisons map[entity.DataType]*graphql.InputObject

	err error
}

// fail records the first error raised while thunks run inside NewSchema.
func (b *builder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

// BuildSchema generates the executable schema for every entity of reg and
// merges custom root fields. It runs once at boot; a custom field that
// collides with a generated one is a configuration error.
func BuildSchema(reg *entity.Registry, eng *engine.Engine, custom Custom, opts ...Option) (graphql.Schema, error) {
	b := &builder{
		reg:            reg,
		eng:            eng,
		namer:          naming.Default(),
		logger:         slog.Default(),
		scalars:        scalarTable(),
		nonNegativeInt: scalars.NonNegativeInt(),
		orderDirection: newOrderDirectionEnum(),
		deleteResult:   newDeleteResultType(),
		typeNames:      make(map[string]string),
		objects:        make(map[string]*graphql.Object),
		filters:        make(map[string]*graphql.InputObject),
		orderBys:       make(map[string]*graphql.InputObject),
		comparisons:    make(map[entity.DataType]*graphql.InputObject),
	}
	for _, opt := range opts {
		opt(b)
	}
	if err := b.validateNames(); err != nil {
		return graphql.Schema{}, err
	}

	queryFields := graphql.Fields{}
	mutationFields := graphql.Fields{}
	for _, ent := range reg.Entities() {
		if err := b.addEntityFields(queryFields, mutationFields, ent); err != nil {
			return graphql.Schema{}, err
		}
	}
	if err := mergeCustom(queryFields, custom.Queries, "query"); err != nil {
		return graphql.Schema{}, err
	}
	if err := mergeCustom(mutationFields, custom.Mutations, "mutation"); err != nil {
		return graphql.Schema{}, err
	}

	// A schema needs at least one query field.
	if len(queryFields) == 0 {
		queryFields["_schema"] = &graphql.Field{
			Type: graphql.String,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return "No entities configured", nil
			},
			Description: "Placeholder field when no entities are configured",
		}
	}

	schemaConfig := graphql.SchemaConfig{
		Query: graphql.NewObject(graphql.ObjectConfig{Name: "Query", Fields: queryFields}),
	}
	if len(mutationFields) > 0 {
		schemaConfig.Mutation = graphql.NewObject(graphql.ObjectConfig{
			Name:   "Mutation",
			Fields: mutationFields,
		})
	}

	schema, err := graphql.NewSchema(schemaConfig)
	if b.err != nil {
		return graphql.Schema{}, b.err
	}
	if err != nil {
		return graphql.Schema{}, apperr.Configuration("graphql schema: %v", err)
	}
	b.logger.Info("graphql schema built",
		slog.Int("entities", len(reg.Entities())),
		slog.Int("queries", len(queryFields)),
		slog.Int("mutations", len(mutationFields)),
	)
	return schema, nil
}

// validateNames assigns type names and rejects names GraphQL cannot carry.
func (b *builder) validateNames() error {
	b.namer.Reset()
	for _, ent := range b.reg.Entities() {
		b.typeNames[ent.Name] = b.namer.RegisterType(ent.Name)
		if !naming.Valid(b.typeNames[ent.Name]) || !naming.Valid(b.namer.QueryFieldName(ent.Name)) {
			return apperr.Configuration("entity %q cannot be exposed over GraphQL", ent.Name)
		}
		for _, col := range ent.Columns {
			if !naming.Valid(col.Name) {
				return apperr.Configuration("entity %q: column %q is not a valid GraphQL name", ent.Name, col.Name)
			}
		}
		for _, rel := range ent.Relations {
			if !naming.Valid(rel.Field) {
				return apperr.Configuration("entity %q: relation %q is not a valid GraphQL name", ent.Name, rel.Field)
			}
		}
	}
	return nil
}

type rootField struct {
	target graphql.Fields
	name   string
	field  *graphql.Field
}

func (b *builder) addEntityFields(queries, mutations graphql.Fields, ent *entity.Entity) error {
	obj := b.objectType(ent)
	rows := graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(obj)))
	pk := b.scalar(ent.PrimaryKeyColumn().Type)

	generated := []rootField{
		{queries, b.namer.QueryFieldName(ent.Name), &graphql.Field{
			Type:        rows,
			Description: ent.Label,
			Args:        b.listArgs(ent),
			Resolve:     b.listResolver(ent),
		}},
		{queries, b.namer.CountFieldName(ent.Name), &graphql.Field{
			Type:    graphql.NewNonNull(graphql.Int),
			Args:    graphql.FieldConfigArgument{argFilter: &graphql.ArgumentConfig{Type: b.filterType(ent)}},
			Resolve: b.countResolver(ent),
		}},
		{mutations, b.namer.MutationFieldName("delete", ent.Name), &graphql.Field{
			Type: graphql.NewNonNull(b.deleteResult),
			Args: graphql.FieldConfigArgument{
				argID:     &graphql.ArgumentConfig{Type: pk},
				argFilter: &graphql.ArgumentConfig{Type: b.filterType(ent)},
			},
			Resolve: b.deleteResolver(ent),
		}},
	}
	if len(writableColumns(ent)) > 0 {
		generated = append(generated, rootField{mutations, b.namer.MutationFieldName("add", ent.Name), &graphql.Field{
			Type:    rows,
			Args:    graphql.FieldConfigArgument{argData: &graphql.ArgumentConfig{Type: graphql.NewNonNull(b.inputType(ent))}},
			Resolve: b.addResolver(ent),
		}})
	}
	if len(ent.InputColumns()) > 0 {
		generated = append(generated, rootField{mutations, b.namer.MutationFieldName("update", ent.Name), &graphql.Field{
			Type: rows,
			Args: graphql.FieldConfigArgument{
				argID:     &graphql.ArgumentConfig{Type: pk},
				argFilter: &graphql.ArgumentConfig{Type: b.filterType(ent)},
				argTake:   &graphql.ArgumentConfig{Type: b.nonNegativeInt},
				argSkip:   &graphql.ArgumentConfig{Type: b.nonNegativeInt},
				argData:   &graphql.ArgumentConfig{Type: graphql.NewNonNull(b.patchType(ent))},
			},
			Resolve: b.updateResolver(ent),
		}})
	}

	for _, g := range generated {
		if _, exists := g.target[g.name]; exists {
			return apperr.Configuration("entity %q: generated field %q collides with another entity", ent.Name, g.name)
		}
		g.target[g.name] = g.field
	}
	return nil
}

func mergeCustom(target, custom graphql.Fields, kind string) error {
	names := make([]string, 0, len(custom))
	for name := range custom {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, exists := target[name]; exists {
			return apperr.Configuration("custom %s %q collides with a generated field", kind, name)
		}
		if custom[name] == nil {
			return apperr.Configuration("custom %s %q has no definition", kind, name)
		}
		target[name] = custom[name]
	}
	return nil
}

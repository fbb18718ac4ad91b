// Package entity holds the immutable metadata model that drives schema
// synthesis, query planning and relation resolution.
package entity

import (
	"strings"
)

// DataType is the declared type of a column.
type DataType string

const (
	TypeString  DataType = "string"
	TypeNumber  DataType = "number"
	TypeBoolean DataType = "boolean"
	TypeFloat   DataType = "float"
	TypeFile    DataType = "file"
	TypeDate    DataType = "date"
)

// Valid reports whether t is one of the supported data types.
func (t DataType) Valid() bool {
	switch t {
	case TypeString, TypeNumber, TypeBoolean, TypeFloat, TypeFile, TypeDate:
		return true
	}
	return false
}

// View selects which visibility flag applies.
type View string

const (
	ViewList     View = "list"
	ViewDetail   View = "detail"
	ViewRelation View = "relation"
)

// Visibility carries per-view display flags for a column.
type Visibility struct {
	List     bool
	Detail   bool
	Relation bool
}

// For returns the flag for a view.
func (v Visibility) For(view View) bool {
	switch view {
	case ViewList:
		return v.List
	case ViewDetail:
		return v.Detail
	case ViewRelation:
		return v.Relation
	}
	return false
}

// Operation names an API operation; used for roles and hooks.
type Operation string

const (
	OpAll    Operation = "all"
	OpConfig Operation = "config"
	OpCount  Operation = "count"
	OpAdd    Operation = "add"
	OpQuery  Operation = "query"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Operations lists every concrete operation (excluding OpAll).
var Operations = []Operation{OpConfig, OpCount, OpAdd, OpQuery, OpUpdate, OpDelete}

func parseOperation(s string) (Operation, bool) {
	op := Operation(strings.ToLower(strings.TrimSpace(s)))
	if op == OpAll {
		return op, true
	}
	for _, known := range Operations {
		if op == known {
			return op, true
		}
	}
	return "", false
}

// RelationKind is the cardinality of a relation.
type RelationKind string

const (
	ManyToOne  RelationKind = "many-to-one"
	OneToMany  RelationKind = "one-to-many"
	ManyToMany RelationKind = "many-to-many"
)

func parseRelationKind(s string) (RelationKind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "many-to-one", "n:1", "manytoone":
		return ManyToOne, true
	case "one-to-many", "1:n", "onetomany":
		return OneToMany, true
	case "many-to-many", "m:n", "n:m", "manytomany":
		return ManyToMany, true
	}
	return "", false
}

// Junction describes the link table of a many-to-many relation.
// LocalKey references the owning entity, RemoteKey the related one.
type Junction struct {
	Table     string
	LocalKey  string
	RemoteKey string
}

// Relation links an entity to another entity.
//
// For many-to-one, LocalColumn is the foreign key on the owning entity and
// RemoteKey the referenced column on RemoteEntity. For one-to-many,
// LocalColumn is the owning key (usually the primary key) and RemoteKey the
// foreign key on RemoteEntity. For many-to-many, Through is the junction and
// LocalColumn/RemoteKey are the keys the junction points at.
type Relation struct {
	Kind         RelationKind
	Field        string
	LocalColumn  string
	RemoteEntity string
	RemoteKey    string
	Display      string
	Through      *Junction
}

// Column is one configured column of an entity.
type Column struct {
	Name          string
	Label         string
	Type          DataType
	Nullable      bool
	PrimaryKey    bool
	Filterable    bool
	AutoGenerated bool
	ForeignKey    bool
	Visibility    Visibility
	Relation      *Relation
}

// Entity is the metadata for one exposed table.
type Entity struct {
	Name       string
	Table      string
	Connector  string
	Label      string
	PrimaryKey string
	Columns    []*Column
	Relations  []*Relation
	Roles      Roles
	Policy     string

	columnsByName   map[string]*Column
	relationsByName map[string]*Relation
}

// Column returns the named column or nil.
func (e *Entity) Column(name string) *Column {
	return e.columnsByName[name]
}

// Relation returns the relation exposed under field, or nil.
func (e *Entity) Relation(field string) *Relation {
	return e.relationsByName[field]
}

// PrimaryKeyColumn returns the primary key column.
func (e *Entity) PrimaryKeyColumn() *Column {
	return e.columnsByName[e.PrimaryKey]
}

// ColumnNames returns every column name in declaration order.
func (e *Entity) ColumnNames() []string {
	names := make([]string, len(e.Columns))
	for i, col := range e.Columns {
		names[i] = col.Name
	}
	return names
}

// InputColumns returns the columns accepted by add/update payloads.
func (e *Entity) InputColumns() []*Column {
	cols := make([]*Column, 0, len(e.Columns))
	for _, col := range e.Columns {
		if col.PrimaryKey || col.AutoGenerated {
			continue
		}
		cols = append(cols, col)
	}
	return cols
}

// ColumnsVisibleFor returns the column names visible in view, in declaration
// order. The primary key is always included.
func ColumnsVisibleFor(e *Entity, view View) []string {
	names := make([]string, 0, len(e.Columns))
	for _, col := range e.Columns {
		if col.PrimaryKey || col.Visibility.For(view) {
			names = append(names, col.Name)
		}
	}
	return names
}

// ColumnRelation pairs a foreign key column with its relation. Relation is
// nil when the column is flagged as a foreign key but no relation links it.
type ColumnRelation struct {
	Column   *Column
	Relation *Relation
}

// ColumnsWithRelations returns every foreign key column of e.
func ColumnsWithRelations(e *Entity) []ColumnRelation {
	var out []ColumnRelation
	for _, col := range e.Columns {
		if !col.ForeignKey {
			continue
		}
		out = append(out, ColumnRelation{Column: col, Relation: col.Relation})
	}
	return out
}

// Roles maps operations to the roles allowed to perform them.
type Roles map[Operation][]string

// For returns the roles for op, falling back to the "all" entry.
func (r Roles) For(op Operation) []string {
	if roles, ok := r[op]; ok {
		return roles
	}
	return r[OpAll]
}

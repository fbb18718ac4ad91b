package entity

import (
	"fmt"
	"strings"

	"autoapi/internal/apperr"
)

// Registry is the read-only set of configured entities. It is built once at
// boot and shared by every request.
type Registry struct {
	entities []*Entity
	byName   map[string]*Entity
}

// NewRegistry validates definitions and freezes them into a Registry.
// Every validation failure is a configuration error.
func NewRegistry(defs []Definition) (*Registry, error) {
	reg := &Registry{
		entities: make([]*Entity, 0, len(defs)),
		byName:   make(map[string]*Entity, len(defs)),
	}

	for i := range defs {
		ent, err := buildEntity(&defs[i])
		if err != nil {
			return nil, err
		}
		if _, exists := reg.byName[ent.Name]; exists {
			return nil, apperr.Configuration("duplicate entity %q", ent.Name)
		}
		reg.entities = append(reg.entities, ent)
		reg.byName[ent.Name] = ent
	}

	for i := range defs {
		ent := reg.byName[strings.TrimSpace(defs[i].Name)]
		if err := reg.linkRelations(ent, &defs[i]); err != nil {
			return nil, err
		}
	}

	return reg, nil
}

// Resolve returns the entity with the given name.
func (r *Registry) Resolve(name string) (*Entity, error) {
	ent, ok := r.byName[name]
	if !ok {
		return nil, apperr.NotFound("entity %q not found", name)
	}
	return ent, nil
}

// Entities returns entities in definition order.
func (r *Registry) Entities() []*Entity {
	out := make([]*Entity, len(r.entities))
	copy(out, r.entities)
	return out
}

// Connectors returns the distinct connector names referenced by entities.
func (r *Registry) Connectors() []string {
	seen := make(map[string]struct{})
	var names []string
	for _, ent := range r.entities {
		if _, ok := seen[ent.Connector]; ok {
			continue
		}
		seen[ent.Connector] = struct{}{}
		names = append(names, ent.Connector)
	}
	return names
}

func buildEntity(def *Definition) (*Entity, error) {
	name := strings.TrimSpace(def.Name)
	if name == "" {
		return nil, apperr.Configuration("entity name is required")
	}
	if len(def.Columns) == 0 {
		return nil, apperr.Configuration("entity %q has no columns", name)
	}

	ent := &Entity{
		Name:            name,
		Table:           strings.TrimSpace(def.Table),
		Connector:       strings.TrimSpace(def.Connector),
		Label:           def.Label,
		Policy:          strings.TrimSpace(def.Policy),
		columnsByName:   make(map[string]*Column, len(def.Columns)),
		relationsByName: make(map[string]*Relation, len(def.Relations)),
	}
	if ent.Table == "" {
		ent.Table = name
	}
	if ent.Connector == "" {
		ent.Connector = "default"
	}
	if ent.Label == "" {
		ent.Label = name
	}

	roles, err := buildRoles(name, def.Roles)
	if err != nil {
		return nil, err
	}
	ent.Roles = roles

	primaryKey := strings.TrimSpace(def.PrimaryKey)
	for _, cd := range def.Columns {
		colName := strings.TrimSpace(cd.Name)
		if colName == "" {
			return nil, apperr.Configuration("entity %q has a column without a name", name)
		}
		if _, exists := ent.columnsByName[colName]; exists {
			return nil, apperr.Configuration("entity %q: duplicate column %q", name, colName)
		}
		dataType := DataType(strings.ToLower(strings.TrimSpace(cd.Type)))
		if dataType == "" {
			dataType = TypeString
		}
		if !dataType.Valid() {
			return nil, apperr.Configuration("entity %q: column %q has unsupported type %q", name, colName, cd.Type)
		}
		col := &Column{
			Name:          colName,
			Label:         cd.Label,
			Type:          dataType,
			Nullable:      cd.Nullable,
			PrimaryKey:    cd.PrimaryKey || colName == primaryKey,
			Filterable:    cd.Filterable,
			AutoGenerated: cd.AutoGenerated,
			ForeignKey:    cd.ForeignKey || cd.Relation != "",
			Visibility:    cd.Visible.resolve(),
		}
		if col.Label == "" {
			col.Label = colName
		}
		if col.PrimaryKey {
			if primaryKey != "" && primaryKey != colName {
				return nil, apperr.Configuration("entity %q declares more than one primary key", name)
			}
			primaryKey = colName
		}
		ent.Columns = append(ent.Columns, col)
		ent.columnsByName[colName] = col
	}

	if primaryKey == "" {
		return nil, apperr.Configuration("entity %q has no primary key", name)
	}
	if _, ok := ent.columnsByName[primaryKey]; !ok {
		return nil, apperr.Configuration("entity %q: primary key %q is not a column", name, primaryKey)
	}
	ent.PrimaryKey = primaryKey

	return ent, nil
}

func buildRoles(name string, def RoleDefinition) (Roles, error) {
	if len(def) == 0 {
		return nil, nil
	}
	roles := make(Roles, len(def))
	for key, list := range def {
		op, ok := parseOperation(key)
		if !ok {
			return nil, apperr.Configuration("entity %q: unknown operation %q in roles", name, key)
		}
		cleaned := make([]string, 0, len(list))
		for _, role := range list {
			if role = strings.TrimSpace(role); role != "" {
				cleaned = append(cleaned, role)
			}
		}
		roles[op] = cleaned
	}
	return roles, nil
}

func (r *Registry) linkRelations(ent *Entity, def *Definition) error {
	for _, rd := range def.Relations {
		rel, err := r.buildRelation(ent, rd)
		if err != nil {
			return err
		}
		if _, exists := ent.relationsByName[rel.Field]; exists {
			return apperr.Configuration("entity %q: duplicate relation field %q", ent.Name, rel.Field)
		}
		if ent.Column(rel.Field) != nil {
			return apperr.Configuration("entity %q: relation field %q collides with a column", ent.Name, rel.Field)
		}
		ent.Relations = append(ent.Relations, rel)
		ent.relationsByName[rel.Field] = rel

		if rel.Kind == ManyToOne {
			col := ent.Column(rel.LocalColumn)
			col.ForeignKey = true
			if col.Relation == nil {
				col.Relation = rel
			}
		}
	}

	// Explicit column annotations must name a many-to-one relation on that column.
	for _, cd := range def.Columns {
		if cd.Relation == "" {
			continue
		}
		rel := ent.Relation(cd.Relation)
		if rel == nil {
			return apperr.Configuration("entity %q: column %q references unknown relation %q", ent.Name, cd.Name, cd.Relation)
		}
		if rel.Kind != ManyToOne || rel.LocalColumn != strings.TrimSpace(cd.Name) {
			return apperr.Configuration("entity %q: column %q can only reference a many-to-one relation on itself", ent.Name, cd.Name)
		}
		ent.Column(rel.LocalColumn).Relation = rel
	}
	return nil
}

func (r *Registry) buildRelation(ent *Entity, rd RelationDefinition) (*Relation, error) {
	kind, ok := parseRelationKind(rd.Kind)
	if !ok {
		return nil, apperr.Configuration("entity %q: unknown relation kind %q", ent.Name, rd.Kind)
	}
	remoteName := strings.TrimSpace(rd.Remote)
	remote, ok := r.byName[remoteName]
	if !ok {
		return nil, apperr.Configuration("entity %q: relation references unknown entity %q", ent.Name, remoteName)
	}

	rel := &Relation{
		Kind:         kind,
		Field:        strings.TrimSpace(rd.Field),
		LocalColumn:  strings.TrimSpace(rd.LocalColumn),
		RemoteEntity: remote.Name,
		RemoteKey:    strings.TrimSpace(rd.RemoteKey),
		Display:      strings.TrimSpace(rd.Display),
	}
	if rel.Field == "" {
		rel.Field = remote.Name
	}

	switch kind {
	case ManyToOne:
		if rel.LocalColumn == "" {
			return nil, apperr.Configuration("entity %q: many-to-one relation %q needs localColumn", ent.Name, rel.Field)
		}
		if rel.RemoteKey == "" {
			rel.RemoteKey = remote.PrimaryKey
		}
	case OneToMany:
		if rel.LocalColumn == "" {
			rel.LocalColumn = ent.PrimaryKey
		}
		if rel.RemoteKey == "" {
			return nil, apperr.Configuration("entity %q: one-to-many relation %q needs remoteKey", ent.Name, rel.Field)
		}
	case ManyToMany:
		if rel.LocalColumn == "" {
			rel.LocalColumn = ent.PrimaryKey
		}
		if rel.RemoteKey == "" {
			rel.RemoteKey = remote.PrimaryKey
		}
		if rd.Through == nil {
			return nil, apperr.Configuration("entity %q: many-to-many relation %q needs a junction table", ent.Name, rel.Field)
		}
		junction := &Junction{
			Table:     strings.TrimSpace(rd.Through.Table),
			LocalKey:  strings.TrimSpace(rd.Through.LocalKey),
			RemoteKey: strings.TrimSpace(rd.Through.RemoteKey),
		}
		if junction.Table == "" || junction.LocalKey == "" || junction.RemoteKey == "" {
			return nil, apperr.Configuration("entity %q: junction for %q needs table, localKey and remoteKey", ent.Name, rel.Field)
		}
		if junction.LocalKey == junction.RemoteKey {
			return nil, apperr.Configuration("entity %q: junction %q must use two distinct key columns", ent.Name, junction.Table)
		}
		rel.Through = junction
	}

	if ent.Column(rel.LocalColumn) == nil {
		return nil, apperr.Configuration("entity %q: relation %q uses unknown local column %q", ent.Name, rel.Field, rel.LocalColumn)
	}
	if remote.Column(rel.RemoteKey) == nil {
		return nil, apperr.Configuration("entity %q: relation %q uses unknown remote column %s.%s", ent.Name, rel.Field, remote.Name, rel.RemoteKey)
	}
	if rel.Display == "" {
		rel.Display = rel.RemoteKey
	}
	if remote.Column(rel.Display) == nil {
		return nil, apperr.Configuration("entity %q: relation %q uses unknown display column %s.%s", ent.Name, rel.Field, remote.Name, rel.Display)
	}
	return rel, nil
}

// String implements fmt.Stringer for log output.
func (rel *Relation) String() string {
	return fmt.Sprintf("%s(%s -> %s.%s)", rel.Kind, rel.LocalColumn, rel.RemoteEntity, rel.RemoteKey)
}

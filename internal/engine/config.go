package engine

import "autoapi/internal/entity"

// EntityConfig is the client-facing description of an entity.
type EntityConfig struct {
	Name    string         `json:"name"`
	Label   string         `json:"label"`
	PK      string         `json:"pk"`
	Columns []ColumnConfig `json:"columns"`
}

// ColumnConfig describes one column.
type ColumnConfig struct {
	Name          string          `json:"name"`
	Label         string          `json:"label"`
	Type          entity.DataType `json:"type"`
	Nullable      bool            `json:"nullable"`
	PrimaryKey    bool            `json:"primaryKey,omitempty"`
	Filterable    bool            `json:"filterable"`
	AutoGenerated bool            `json:"autoGenerated,omitempty"`
	Visible       VisibleConfig   `json:"visible"`
	Relation      *RelationConfig `json:"relation,omitempty"`
}

// VisibleConfig mirrors entity.Visibility.
type VisibleConfig struct {
	List     bool `json:"list"`
	Detail   bool `json:"detail"`
	Relation bool `json:"relation"`
}

// RelationConfig describes the relation behind a foreign key column.
type RelationConfig struct {
	Kind    entity.RelationKind `json:"kind"`
	Entity  string              `json:"entity"`
	Field   string              `json:"field"`
	Key     string              `json:"key"`
	Display string              `json:"display"`
}

func describe(ent *entity.Entity) EntityConfig {
	cfg := EntityConfig{
		Name:    ent.Name,
		Label:   ent.Label,
		PK:      ent.PrimaryKey,
		Columns: make([]ColumnConfig, 0, len(ent.Columns)),
	}
	for _, col := range ent.Columns {
		cc := ColumnConfig{
			Name:          col.Name,
			Label:         col.Label,
			Type:          col.Type,
			Nullable:      col.Nullable,
			PrimaryKey:    col.PrimaryKey,
			Filterable:    col.Filterable,
			AutoGenerated: col.AutoGenerated,
			Visible: VisibleConfig{
				List:     col.Visibility.List,
				Detail:   col.Visibility.Detail,
				Relation: col.Visibility.Relation,
			},
		}
		if rel := col.Relation; rel != nil {
			cc.Relation = &RelationConfig{
				Kind:    rel.Kind,
				Entity:  rel.RemoteEntity,
				Field:   rel.Field,
				Key:     rel.RemoteKey,
				Display: rel.Display,
			}
		}
		cfg.Columns = append(cfg.Columns, cc)
	}
	return cfg
}

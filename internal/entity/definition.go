package entity

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Definition is the declarative form of an entity, as read from YAML.
type Definition struct {
	Name       string               `yaml:"name"`
	Table      string               `yaml:"table"`
	Connector  string               `yaml:"connector"`
	Label      string               `yaml:"label"`
	PrimaryKey string               `yaml:"primaryKey"`
	Roles      RoleDefinition       `yaml:"roles"`
	Policy     string               `yaml:"policy"`
	Columns    []ColumnDefinition   `yaml:"columns"`
	Relations  []RelationDefinition `yaml:"relations"`
}

// ColumnDefinition is the declarative form of a column.
type ColumnDefinition struct {
	Name          string                `yaml:"name"`
	Label         string                `yaml:"label"`
	Type          string                `yaml:"type"`
	Nullable      bool                  `yaml:"nullable"`
	PrimaryKey    bool                  `yaml:"primaryKey"`
	Filterable    bool                  `yaml:"filterable"`
	AutoGenerated bool                  `yaml:"autoGenerated"`
	ForeignKey    bool                  `yaml:"foreignKey"`
	Relation      string                `yaml:"relation"`
	Visible       *VisibilityDefinition `yaml:"visible"`
}

// VisibilityDefinition holds optional visibility flags; unset flags default to true.
type VisibilityDefinition struct {
	List       *bool `yaml:"list"`
	EntityPage *bool `yaml:"entityPage"`
	Detail     *bool `yaml:"detail"`
	Relation   *bool `yaml:"relation"`
}

// RelationDefinition is the declarative form of a relation.
type RelationDefinition struct {
	Kind        string              `yaml:"kind"`
	Field       string              `yaml:"field"`
	LocalColumn string              `yaml:"localColumn"`
	Remote      string              `yaml:"remote"`
	RemoteKey   string              `yaml:"remoteKey"`
	Display     string              `yaml:"display"`
	Through     *JunctionDefinition `yaml:"through"`
}

// JunctionDefinition names the junction table of a many-to-many relation.
type JunctionDefinition struct {
	Table     string `yaml:"table"`
	LocalKey  string `yaml:"localKey"`
	RemoteKey string `yaml:"remoteKey"`
}

// RoleDefinition accepts either a list of roles (applied to every operation)
// or a mapping of operation to roles.
type RoleDefinition map[string][]string

// UnmarshalYAML implements yaml.Unmarshaler.
func (r *RoleDefinition) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.SequenceNode:
		var roles []string
		if err := value.Decode(&roles); err != nil {
			return err
		}
		*r = RoleDefinition{string(OpAll): roles}
		return nil
	case yaml.MappingNode:
		var byOp map[string][]string
		if err := value.Decode(&byOp); err != nil {
			return err
		}
		*r = byOp
		return nil
	case yaml.ScalarNode:
		if value.Tag == "!!null" || value.Value == "" || value.Value == "public" {
			*r = nil
			return nil
		}
		*r = RoleDefinition{string(OpAll): {value.Value}}
		return nil
	default:
		return fmt.Errorf("line %d: roles must be a list or a mapping", value.Line)
	}
}

func (v *VisibilityDefinition) resolve() Visibility {
	if v == nil {
		return Visibility{List: true, Detail: true, Relation: true}
	}
	list := v.List
	if list == nil {
		list = v.EntityPage
	}
	return Visibility{
		List:     boolOrTrue(list),
		Detail:   boolOrTrue(v.Detail),
		Relation: boolOrTrue(v.Relation),
	}
}

func boolOrTrue(b *bool) bool {
	if b == nil {
		return true
	}
	return *b
}

package planner

import (
	"sort"
	"strings"

	"autoapi/internal/apperr"
	"autoapi/internal/entity"
)

// Op is a column comparison operator.
type Op string

const (
	OpEq   Op = "_eq"
	OpIn   Op = "_in"
	OpLike Op = "_like"
)

// GroupOp joins child filters.
type GroupOp string

const (
	And GroupOp = "_and"
	Or  GroupOp = "_or"
)

// Filter is a node of a parsed filter tree: *Leaf, *Group or *RelationFilter.
type Filter interface {
	filterNode()
}

// Leaf compares one column.
type Leaf struct {
	Column string
	Op     Op
	Value  any
}

// Group combines children with AND or OR.
type Group struct {
	Op       GroupOp
	Children []Filter
}

// RelationFilter restricts rows to those whose related rows match Child.
// A nil Child matches rows that have at least one related row.
type RelationFilter struct {
	Relation *entity.Relation
	Remote   *entity.Entity
	Child    Filter
}

func (*Leaf) filterNode()           {}
func (*Group) filterNode()          {}
func (*RelationFilter) filterNode() {}

// Resolver looks up related entities while parsing relation filters.
type Resolver interface {
	Resolve(name string) (*entity.Entity, error)
}

// ParseFilter parses a client filter such as
//
//	{"name": {"_like": "a%"}, "_or": [{"id": {"_eq": 1}}, {"families": {"name": {"_eq": "x"}}}]}
//
// into a Filter tree. Null operands and null subtrees are ignored. A nil
// Filter with a nil error means "no restriction".
func ParseFilter(reg Resolver, e *entity.Entity, raw map[string]any) (Filter, error) {
	return parseObject(reg, e, raw)
}

// KeyFilter matches the row whose primary key equals value.
func KeyFilter(e *entity.Entity, value any) Filter {
	return &Leaf{Column: e.PrimaryKey, Op: OpEq, Value: value}
}

// KeysFilter matches rows whose primary key is in values.
func KeysFilter(e *entity.Entity, values []any) Filter {
	return &Leaf{Column: e.PrimaryKey, Op: OpIn, Value: values}
}

// AndFilters joins non-nil filters with AND.
func AndFilters(filters ...Filter) Filter {
	children := make([]Filter, 0, len(filters))
	for _, f := range filters {
		if f != nil {
			children = append(children, f)
		}
	}
	switch len(children) {
	case 0:
		return nil
	case 1:
		return children[0]
	}
	return &Group{Op: And, Children: children}
}

func parseObject(reg Resolver, e *entity.Entity, raw map[string]any) (Filter, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(raw))
	for key := range raw {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	children := make([]Filter, 0, len(keys))
	for _, key := range keys {
		value := raw[key]
		if value == nil {
			continue
		}
		var (
			node Filter
			err  error
		)
		switch key {
		case string(And), string(Or):
			node, err = parseGroup(reg, e, GroupOp(key), value)
		default:
			node, err = parseField(reg, e, key, value)
		}
		if err != nil {
			return nil, err
		}
		if node != nil {
			children = append(children, node)
		}
	}
	return AndFilters(children...), nil
}

func parseGroup(reg Resolver, e *entity.Entity, op GroupOp, value any) (Filter, error) {
	items, ok := value.([]any)
	if !ok {
		if single, isMap := value.(map[string]any); isMap {
			items = []any{single}
		} else {
			return nil, apperr.InvalidFilter("%s must be a list of filters", op)
		}
	}
	group := &Group{Op: op}
	for _, item := range items {
		if item == nil {
			continue
		}
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, apperr.InvalidFilter("%s items must be objects", op)
		}
		child, err := parseObject(reg, e, obj)
		if err != nil {
			return nil, err
		}
		if child != nil {
			group.Children = append(group.Children, child)
		}
	}
	if len(group.Children) == 0 {
		return nil, nil
	}
	return group, nil
}

func parseField(reg Resolver, e *entity.Entity, key string, value any) (Filter, error) {
	if col := e.Column(key); col != nil {
		if !col.Filterable && !col.PrimaryKey {
			return nil, apperr.InvalidFilter("column %q of %s is not filterable", key, e.Name)
		}
		ops, ok := value.(map[string]any)
		if !ok {
			// Shorthand for equality.
			ops = map[string]any{string(OpEq): value}
		}
		return parseColumnOps(e, key, ops)
	}

	if rel := e.Relation(key); rel != nil {
		obj, ok := value.(map[string]any)
		if !ok {
			return nil, apperr.InvalidFilter("filter for relation %q must be an object", key)
		}
		remote, err := reg.Resolve(rel.RemoteEntity)
		if err != nil {
			return nil, err
		}
		child, err := parseObject(reg, remote, obj)
		if err != nil {
			return nil, err
		}
		return &RelationFilter{Relation: rel, Remote: remote, Child: child}, nil
	}

	return nil, apperr.InvalidFilter("unknown filter field %q for %s", key, e.Name)
}

func parseColumnOps(e *entity.Entity, column string, ops map[string]any) (Filter, error) {
	names := make([]string, 0, len(ops))
	for name := range ops {
		names = append(names, name)
	}
	sort.Strings(names)

	leaves := make([]Filter, 0, len(ops))
	for _, name := range names {
		operand := ops[name]
		switch Op(name) {
		case OpEq, OpIn, OpLike:
		default:
			return nil, apperr.InvalidFilter("unknown operator %q on %s", strings.TrimSpace(name), column)
		}
		if operand == nil {
			continue
		}
		switch Op(name) {
		case OpEq:
			value, err := e.CoerceValue(column, operand)
			if err != nil {
				return nil, apperr.InvalidFilter("%s._eq: %v", column, err)
			}
			leaves = append(leaves, &Leaf{Column: column, Op: OpEq, Value: value})
		case OpIn:
			list, ok := operand.([]any)
			if !ok {
				return nil, apperr.InvalidFilter("%s._in must be a list", column)
			}
			values := make([]any, 0, len(list))
			for _, item := range list {
				value, err := e.CoerceValue(column, item)
				if err != nil {
					return nil, apperr.InvalidFilter("%s._in: %v", column, err)
				}
				values = append(values, value)
			}
			leaves = append(leaves, &Leaf{Column: column, Op: OpIn, Value: values})
		case OpLike:
			pattern, ok := operand.(string)
			if !ok {
				return nil, apperr.InvalidFilter("%s._like must be a string", column)
			}
			leaves = append(leaves, &Leaf{Column: column, Op: OpLike, Value: pattern})
		}
	}
	return AndFilters(leaves...), nil
}

package planner

import (
	"fmt"

	"autoapi/internal/entity"

	sq "github.com/Masterminds/squirrel"
)

// buildWhere translates a filter into a squirrel predicate. never reports a
// predicate that cannot match any row (an empty _in that survives AND/OR
// folding); callers skip I/O in that case. A nil predicate with never false
// means no restriction. When qualifier is non-empty, columns are written as
// qualifier.column.
func (p *Planner) buildWhere(qualifier string, e *entity.Entity, f Filter) (cond sq.Sqlizer, never bool, err error) {
	switch node := f.(type) {
	case nil:
		return nil, false, nil
	case *Leaf:
		return p.buildLeaf(qualifier, node)
	case *Group:
		return p.buildGroup(qualifier, e, node)
	case *RelationFilter:
		return p.buildRelationFilter(qualifier, e, node)
	}
	return nil, false, fmt.Errorf("unsupported filter node %T", f)
}

func (p *Planner) buildLeaf(qualifier string, leaf *Leaf) (sq.Sqlizer, bool, error) {
	column := p.dialect.QuoteQualified(qualifier, leaf.Column)
	switch leaf.Op {
	case OpEq:
		return sq.Eq{column: leaf.Value}, false, nil
	case OpIn:
		values, ok := leaf.Value.([]any)
		if !ok {
			return nil, false, fmt.Errorf("%s: _in operand must be a list", leaf.Column)
		}
		nonNull := make([]any, 0, len(values))
		for _, v := range values {
			if v != nil {
				nonNull = append(nonNull, v)
			}
		}
		if len(nonNull) == 0 {
			return nil, true, nil
		}
		return sq.Eq{column: nonNull}, false, nil
	case OpLike:
		return sq.Like{column: leaf.Value}, false, nil
	}
	return nil, false, fmt.Errorf("unsupported operator %q", leaf.Op)
}

func (p *Planner) buildGroup(qualifier string, e *entity.Entity, group *Group) (sq.Sqlizer, bool, error) {
	conds := make([]sq.Sqlizer, 0, len(group.Children))
	dropped := 0
	for _, child := range group.Children {
		cond, never, err := p.buildWhere(qualifier, e, child)
		if err != nil {
			return nil, false, err
		}
		if never {
			if group.Op == And {
				return nil, true, nil
			}
			dropped++
			continue
		}
		if cond == nil {
			if group.Op == Or {
				// One unrestricted branch makes the whole OR unrestricted.
				return nil, false, nil
			}
			continue
		}
		conds = append(conds, cond)
	}

	if len(conds) == 0 {
		return nil, dropped > 0, nil
	}
	if len(conds) == 1 {
		return conds[0], false, nil
	}
	if group.Op == Or {
		return sq.Or(conds), false, nil
	}
	return sq.And(conds), false, nil
}

func (p *Planner) buildRelationFilter(qualifier string, e *entity.Entity, rf *RelationFilter) (sq.Sqlizer, bool, error) {
	rel := rf.Relation
	remote := rf.Remote
	if remote == nil {
		return nil, false, fmt.Errorf("relation filter %s has no remote entity", rel.Field)
	}

	childCond, never, err := p.buildWhere("", remote, rf.Child)
	if err != nil {
		return nil, false, err
	}
	if never {
		return nil, true, nil
	}

	// Every relation kind reduces to local IN (SELECT key FROM ...).
	sub := sq.Select(p.dialect.Quote(rel.RemoteKey)).From(p.dialect.Quote(remote.Table))
	if childCond != nil {
		sub = sub.Where(childCond)
	}

	if rel.Kind == entity.ManyToMany {
		remoteSQL, remoteArgs, err := sub.ToSql()
		if err != nil {
			return nil, false, err
		}
		sub = sq.Select(p.dialect.Quote(rel.Through.LocalKey)).
			From(p.dialect.Quote(rel.Through.Table)).
			Where(sq.Expr(fmt.Sprintf("%s IN (%s)", p.dialect.Quote(rel.Through.RemoteKey), remoteSQL), remoteArgs...))
	}

	subSQL, subArgs, err := sub.ToSql()
	if err != nil {
		return nil, false, err
	}
	local := p.dialect.QuoteQualified(qualifier, rel.LocalColumn)
	return sq.Expr(fmt.Sprintf("%s IN (%s)", local, subSQL), subArgs...), false, nil
}

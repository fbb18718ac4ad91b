package planner

import (
	"testing"

	"autoapi/internal/entity"

	"autoapi/internal/sqlutil"
	"autoapi/internal/testutil"

	sq "github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManyToOne_Chunks(t *testing.T) {
	reg := testutil.Catalog(t)
	families := testutil.MustEntity(t, reg, "families")
	p := New(sqlutil.MySQL, Options{MaxInClause: 2})

	plan, err := p.ManyToOne(families, "id", []any{int64(1), int64(2), int64(3)}, []string{"name"})
	require.NoError(t, err)
	require.Len(t, plan.Queries, 2)
	assert.Equal(t, []string{"name", "id"}, plan.Columns)
	assert.Equal(t, "id", plan.KeyColumn)
	assert.Equal(t, "SELECT `name`, `id` FROM `families` WHERE `id` IN (?,?)", plan.Queries[0].SQL)
	assert.Equal(t, "SELECT `name`, `id` FROM `families` WHERE `id` IN (?)", plan.Queries[1].SQL)
	assert.Equal(t, []any{int64(3)}, plan.Queries[1].Args)
}

func TestManyToOne_NoValues(t *testing.T) {
	reg := testutil.Catalog(t)
	families := testutil.MustEntity(t, reg, "families")

	plan, err := newTestPlanner().ManyToOne(families, "id", nil, nil)
	require.NoError(t, err)
	assert.True(t, plan.Empty())
}

func TestOneToMany_Plain(t *testing.T) {
	reg := testutil.Catalog(t)
	products := testutil.MustEntity(t, reg, "products")

	plan, err := newTestPlanner().OneToMany(products, "family_id", []any{int64(1), int64(2)}, RelatedOptions{
		Columns: []string{"id", "name"},
		Filter:  parse(t, reg, products, map[string]any{"active": map[string]any{"_eq": true}}),
	})
	require.NoError(t, err)
	require.Len(t, plan.Queries, 1)
	assert.Equal(t, []string{"id", "name", BatchParentAlias}, plan.Columns)
	assert.Equal(t, BatchParentAlias, plan.KeyColumn)
	assert.Equal(t,
		"SELECT `id`, `name`, `family_id` AS __batch_parent_id FROM `products` WHERE `family_id` IN (?,?) AND `active` = ? ORDER BY __batch_parent_id, `id` ASC",
		plan.Queries[0].SQL)
	assert.Equal(t, []any{int64(1), int64(2), true}, plan.Queries[0].Args)
}

func TestOneToMany_PerParentWindow(t *testing.T) {
	reg := testutil.Catalog(t)
	products := testutil.MustEntity(t, reg, "products")

	plan, err := New(sqlutil.Postgres, Options{}).OneToMany(products, "family_id", []any{int64(1), int64(2)}, RelatedOptions{
		Columns: []string{"id"},
		Page:    Page{Take: 2, Skip: 1},
	})
	require.NoError(t, err)
	require.Len(t, plan.Queries, 1)
	q := plan.Queries[0]
	assert.Equal(t,
		`SELECT "id", __batch_parent_id FROM (SELECT "id", "family_id" AS __batch_parent_id, ROW_NUMBER() OVER (PARTITION BY "family_id" ORDER BY "id" ASC) AS __rn FROM "products" WHERE ("family_id" IN ($1,$2))) AS __batch WHERE __rn > $3 AND __rn <= $4 ORDER BY __batch_parent_id, __rn`,
		q.SQL)
	assert.Equal(t, []any{int64(1), int64(2), 1, 3}, q.Args)
}

func TestOneToMany_EmptyFilter(t *testing.T) {
	reg := testutil.Catalog(t)
	products := testutil.MustEntity(t, reg, "products")

	plan, err := newTestPlanner().OneToMany(products, "family_id", []any{int64(1)}, RelatedOptions{
		Filter: parse(t, reg, products, map[string]any{"id": map[string]any{"_in": []any{}}}),
	})
	require.NoError(t, err)
	assert.True(t, plan.Empty())
}

func TestManyToMany(t *testing.T) {
	reg := testutil.Catalog(t)
	users := testutil.MustEntity(t, reg, "users")
	roles := testutil.MustEntity(t, reg, "roles")
	rel := users.Relation("roles")

	plan, err := newTestPlanner().ManyToMany(roles, rel, []any{int64(7)}, RelatedOptions{
		Columns: []string{"id", "name"},
		Filter:  parse(t, reg, roles, map[string]any{"name": map[string]any{"_like": "a%"}}),
	})
	require.NoError(t, err)
	require.Len(t, plan.Queries, 1)
	assert.Equal(t,
		"SELECT DISTINCT `roles`.`id`, `roles`.`name`, `user_roles`.`user_id` AS __batch_parent_id FROM `roles` INNER JOIN `user_roles` ON `user_roles`.`role_id` = `roles`.`id` WHERE `user_roles`.`user_id` IN (?) AND `roles`.`name` LIKE ? ORDER BY __batch_parent_id, `roles`.`id` ASC",
		plan.Queries[0].SQL)
	assert.Equal(t, []any{int64(7), "a%"}, plan.Queries[0].Args)
}

func TestManyToMany_PerParentWindowIsDistinct(t *testing.T) {
	reg := testutil.Catalog(t)
	users := testutil.MustEntity(t, reg, "users")
	roles := testutil.MustEntity(t, reg, "roles")

	plan, err := New(sqlutil.Postgres, Options{}).ManyToMany(roles, users.Relation("roles"), []any{int64(7)}, RelatedOptions{
		Columns: []string{"id"},
		Order:   []Order{{Column: "name", Desc: true}},
		Page:    Page{Take: 1},
	})
	require.NoError(t, err)
	require.Len(t, plan.Queries, 1)
	assert.Equal(t, []string{"id", "name", BatchParentAlias}, plan.Columns)
	assert.Equal(t,
		`SELECT "id", "name", __batch_parent_id FROM (SELECT "id", "name", __batch_parent_id, ROW_NUMBER() OVER (PARTITION BY __batch_parent_id ORDER BY "name" DESC, "id" ASC) AS __rn FROM (SELECT DISTINCT "roles"."id", "roles"."name", "user_roles"."user_id" AS __batch_parent_id FROM "roles" INNER JOIN "user_roles" ON "user_roles"."role_id" = "roles"."id" WHERE ("user_roles"."user_id" IN ($1))) AS __linked) AS __batch WHERE __rn > $2 AND __rn <= $3 ORDER BY __batch_parent_id, __rn`,
		plan.Queries[0].SQL)
	assert.Equal(t, []any{int64(7), 0, 1}, plan.Queries[0].Args)
}

func TestBuildRelated_WhereAppliesToEveryChunk(t *testing.T) {
	reg := testutil.Catalog(t)
	families := testutil.MustEntity(t, reg, "families")
	products := testutil.MustEntity(t, reg, "products")
	p := New(sqlutil.MySQL, Options{MaxInClause: 1})

	stmt, err := p.BuildRelated(products, families.Relation("products"), []any{int64(1), int64(2)}, RelatedOptions{
		Columns: []string{"name"},
	})
	require.NoError(t, err)
	stmt.Where(sq.Eq{"active": true})

	plan, err := stmt.Plan()
	require.NoError(t, err)
	require.Len(t, plan.Queries, 2)
	for i, q := range plan.Queries {
		assert.Contains(t, q.SQL, "WHERE `family_id` IN (?) AND `active` = ?")
		assert.Equal(t, []any{int64(i + 1), true}, q.Args)
	}

	first, err := stmt.ToSQL()
	require.NoError(t, err)
	assert.Equal(t, plan.Queries[0], first)
	assert.False(t, stmt.Empty())
	assert.Equal(t, entity.OneToMany, stmt.Relation().Kind)
}

func TestBuildRelated_ManyToOneWhere(t *testing.T) {
	reg := testutil.Catalog(t)
	products := testutil.MustEntity(t, reg, "products")
	families := testutil.MustEntity(t, reg, "families")

	stmt, err := newTestPlanner().BuildRelated(families, products.Relation("families"), []any{int64(3)}, RelatedOptions{})
	require.NoError(t, err)
	stmt.Where(sq.NotEq{"name": "Hidden"})

	q, err := stmt.ToSQL()
	require.NoError(t, err)
	assert.Contains(t, q.SQL, "WHERE `id` IN (?) AND `name` <> ?")
	assert.Equal(t, []any{int64(3), "Hidden"}, q.Args)
}

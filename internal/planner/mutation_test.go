package planner

import (
	"testing"

	"autoapi/internal/apperr"
	"autoapi/internal/entity"
	"autoapi/internal/sqlutil"
	"autoapi/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildInsert(t *testing.T) {
	reg := testutil.Catalog(t)
	products := testutil.MustEntity(t, reg, "products")

	ins, err := newTestPlanner().BuildInsert(products, entity.Row{"name": "Chair", "family_id": int64(1)})
	require.NoError(t, err)
	assert.False(t, ins.Empty())
	assert.False(t, ins.Returning())

	q, err := ins.ToSQL()
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO `products` (`family_id`,`name`) VALUES (?,?)", q.SQL)
	assert.Equal(t, []any{int64(1), "Chair"}, q.Args)
}

func TestBuildInsert_Postgres(t *testing.T) {
	reg := testutil.Catalog(t)
	products := testutil.MustEntity(t, reg, "products")

	ins, err := New(sqlutil.Postgres, Options{}).BuildInsert(products, entity.Row{"name": "Chair"})
	require.NoError(t, err)
	assert.True(t, ins.Returning())

	q, err := ins.ToSQL()
	require.NoError(t, err)
	assert.Equal(t, `INSERT INTO "products" ("name") VALUES ($1) RETURNING "id"`, q.SQL)
}

func TestBuildInsert_EmptyRow(t *testing.T) {
	reg := testutil.Catalog(t)
	families := testutil.MustEntity(t, reg, "families")

	ins, err := newTestPlanner().BuildInsert(families, entity.Row{})
	require.NoError(t, err)
	q, err := ins.ToSQL()
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO `families` () VALUES ()", q.SQL)
	assert.Empty(t, q.Args)

	ins, err = New(sqlutil.SQLite, Options{}).BuildInsert(families, entity.Row{})
	require.NoError(t, err)
	q, err = ins.ToSQL()
	require.NoError(t, err)
	assert.Equal(t, `INSERT INTO "families" DEFAULT VALUES`, q.SQL)
}

func TestBuildInsert_UnknownColumn(t *testing.T) {
	reg := testutil.Catalog(t)
	families := testutil.MustEntity(t, reg, "families")

	_, err := newTestPlanner().BuildInsert(families, entity.Row{"colour": "red"})
	assert.True(t, apperr.Is(err, apperr.KindInvalidInput))
}

func TestBuildUpdate(t *testing.T) {
	reg := testutil.Catalog(t)
	products := testutil.MustEntity(t, reg, "products")
	p := New(sqlutil.MySQL, Options{MaxInClause: 2})

	filter := parse(t, reg, products, map[string]any{"family_id": map[string]any{"_eq": 3}})
	upd, err := p.BuildUpdate(products, filter, Page{Take: 5}, entity.Row{"name": "Renamed"})
	require.NoError(t, err)
	assert.False(t, upd.Empty())

	keys, err := upd.ToSQL()
	require.NoError(t, err)
	assert.Equal(t, "SELECT `id` FROM `products` WHERE `family_id` = ? ORDER BY `id` ASC LIMIT 5", keys.SQL)

	queries, err := upd.Apply([]any{int64(1), int64(2), int64(3)})
	require.NoError(t, err)
	require.Len(t, queries, 2)
	assert.Equal(t, "UPDATE `products` SET `name` = ? WHERE `id` IN (?,?)", queries[0].SQL)
	assert.Equal(t, []any{"Renamed", int64(1), int64(2)}, queries[0].Args)
	assert.Equal(t, "UPDATE `products` SET `name` = ? WHERE `id` IN (?)", queries[1].SQL)
}

func TestBuildUpdate_Rejects(t *testing.T) {
	reg := testutil.Catalog(t)
	products := testutil.MustEntity(t, reg, "products")
	p := newTestPlanner()

	_, err := p.BuildUpdate(products, nil, Page{}, entity.Row{})
	assert.True(t, apperr.Is(err, apperr.KindInvalidInput))

	_, err = p.BuildUpdate(products, nil, Page{}, entity.Row{"colour": "red"})
	assert.True(t, apperr.Is(err, apperr.KindInvalidInput))

	_, err = p.BuildUpdate(products, nil, Page{Take: 5}, entity.Row{"name": "Renamed"})
	assert.True(t, apperr.Is(err, apperr.KindInvalidFilter))
}

func TestBuildDelete(t *testing.T) {
	reg := testutil.Catalog(t)
	families := testutil.MustEntity(t, reg, "families")
	p := newTestPlanner()

	del, err := p.BuildDelete(families, KeyFilter(families, int64(4)))
	require.NoError(t, err)
	q, err := del.ToSQL()
	require.NoError(t, err)
	assert.Equal(t, "DELETE FROM `families` WHERE `id` = ?", q.SQL)
	assert.Equal(t, []any{int64(4)}, q.Args)

	del, err = p.BuildDelete(families, KeysFilter(families, nil))
	require.NoError(t, err)
	assert.True(t, del.Empty())

	_, err = p.BuildDelete(families, nil)
	assert.True(t, apperr.Is(err, apperr.KindInvalidFilter))
}

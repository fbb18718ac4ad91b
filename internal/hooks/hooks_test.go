package hooks

import (
	"context"
	"errors"
	"testing"

	"autoapi/internal/entity"
	"autoapi/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func appendTrace(label string) Func {
	return func(_ context.Context, hc Context) (Context, error) {
		trace, _ := hc.Values["trace"].([]string)
		hc.Values["trace"] = append(trace, label)
		return hc, nil
	}
}

func TestTable_RunOrder(t *testing.T) {
	reg := testutil.Catalog(t)
	families := testutil.MustEntity(t, reg, "families")

	b := NewBuilder()
	require.NoError(t, b.Register("families", entity.OpQuery, BeforeResolver, appendTrace("query")))
	require.NoError(t, b.Register("families", entity.OpAll, BeforeResolver, appendTrace("all")))
	require.NoError(t, b.Register("products", entity.OpAll, BeforeResolver, appendTrace("other")))
	table := b.Build()

	hc, err := table.Run(context.Background(), BeforeResolver, Context{Entity: families, Operation: entity.OpQuery})
	require.NoError(t, err)
	assert.Equal(t, []string{"all", "query"}, hc.Values["trace"])

	hc, err = table.Run(context.Background(), BeforeResolver, Context{Entity: families, Operation: entity.OpCount})
	require.NoError(t, err)
	assert.Equal(t, []string{"all"}, hc.Values["trace"])
}

func TestTable_PassThrough(t *testing.T) {
	reg := testutil.Catalog(t)
	families := testutil.MustEntity(t, reg, "families")
	in := Context{Entity: families, Operation: entity.OpAdd, Args: map[string]any{"data": 1}}

	out, err := NewBuilder().Build().Run(context.Background(), BeforeSendQuery, in)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	var nilTable *Table
	out, err = nilTable.Run(context.Background(), BeforeSendQuery, in)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestTable_ErrorAborts(t *testing.T) {
	reg := testutil.Catalog(t)
	families := testutil.MustEntity(t, reg, "families")
	boom := errors.New("rejected")
	called := false

	b := NewBuilder()
	require.NoError(t, b.Register("families", entity.OpAll, BeforeResolver, func(_ context.Context, hc Context) (Context, error) {
		return hc, boom
	}))
	require.NoError(t, b.Register("families", entity.OpAdd, BeforeResolver, func(_ context.Context, hc Context) (Context, error) {
		called = true
		return hc, nil
	}))

	_, err := b.Build().Run(context.Background(), BeforeResolver, Context{Entity: families, Operation: entity.OpAdd})
	assert.ErrorIs(t, err, boom)
	assert.False(t, called)
}

func TestTable_AfterResultSentErrorsIgnored(t *testing.T) {
	reg := testutil.Catalog(t)
	families := testutil.MustEntity(t, reg, "families")

	b := NewBuilder()
	require.NoError(t, b.Register("families", entity.OpAll, AfterResultSent, func(_ context.Context, hc Context) (Context, error) {
		return hc, errors.New("audit sink down")
	}))

	_, err := b.Build().Run(context.Background(), AfterResultSent, Context{Entity: families, Operation: entity.OpQuery})
	assert.NoError(t, err)
}

func TestBuilder_Rejects(t *testing.T) {
	b := NewBuilder()
	assert.Error(t, b.Register("families", entity.OpAll, "afterEverything", appendTrace("x")))
	assert.Error(t, b.Register("families", entity.OpAll, BeforeResolver, nil))
	require.NoError(t, b.Register("families", entity.OpAll, BeforeResolver, appendTrace("x")))
	assert.Error(t, b.Register("families", entity.OpAll, BeforeResolver, appendTrace("y")))
}

func TestBuilder_BuildIsIsolated(t *testing.T) {
	reg := testutil.Catalog(t)
	families := testutil.MustEntity(t, reg, "families")

	b := NewBuilder()
	table := b.Build()
	require.NoError(t, b.Register("families", entity.OpAll, BeforeResolver, appendTrace("late")))
	assert.Empty(t, table.Lookup(families.Name, entity.OpQuery, BeforeResolver))
}

func TestDeferred(t *testing.T) {
	reg := testutil.Catalog(t)
	families := testutil.MustEntity(t, reg, "families")
	var sent []string

	b := NewBuilder()
	require.NoError(t, b.Register("families", entity.OpQuery, AfterResultSent, func(_ context.Context, hc Context) (Context, error) {
		sent = append(sent, hc.Entity.Name)
		return hc, nil
	}))
	table := b.Build()

	ctx, queue := WithDeferred(context.Background())
	table.Defer(ctx, Context{Entity: families, Operation: entity.OpQuery})
	table.Defer(ctx, Context{Entity: families, Operation: entity.OpCount})
	assert.Empty(t, sent, "nothing runs before flush")
	assert.Equal(t, 1, queue.Len())

	queue.Flush(ctx)
	assert.Equal(t, []string{"families"}, sent)
	assert.Equal(t, 0, queue.Len())

	table.Defer(context.Background(), Context{Entity: families, Operation: entity.OpQuery})
	assert.Len(t, sent, 2, "without a queue the stage runs immediately")
}

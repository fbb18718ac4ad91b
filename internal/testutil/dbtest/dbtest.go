// Package dbtest builds connector pools backed by sqlmock.
package dbtest

import (
	"testing"

	"autoapi/internal/dbexec"
	"autoapi/internal/planner"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

// MockPool returns a pool with a single "default" mysql connector backed by
// sqlmock. Expectations are matched in any order because relation fetches
// run concurrently.
func MockPool(t testing.TB) (*dbexec.Pool, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	mock.MatchExpectationsInOrder(false)

	pool := dbexec.NewPool()
	_, err = pool.Add("default", "mysql", db, nil, planner.Options{})
	require.NoError(t, err)
	return pool, mock
}

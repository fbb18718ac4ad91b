package dbexec

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"autoapi/internal/logging"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func debugContext(buf *bytes.Buffer) context.Context {
	logger := &logging.Logger{Logger: slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))}
	return logging.WithLogger(context.Background(), logger)
}

func TestStandardExecutor_LogsStatements(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE products").WithArgs("Chair", 1).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT name").WillReturnError(errors.New("boom"))

	var buf bytes.Buffer
	ctx := debugContext(&buf)
	exec := NewStandardExecutor(db).Named("main")

	_, err = exec.ExecContext(ctx, "UPDATE products SET name = ? WHERE id = ?", "Chair", 1)
	require.NoError(t, err)
	_, err = exec.QueryContext(ctx, "SELECT name FROM products")
	require.Error(t, err)

	out := buf.String()
	assert.Contains(t, out, `"msg":"statement executed"`)
	assert.Contains(t, out, `"kind":"exec"`)
	assert.Contains(t, out, `"args":2`)
	assert.Contains(t, out, `"connector":"main"`)
	assert.Contains(t, out, `"msg":"statement failed"`)
	assert.Contains(t, out, `"error":"boom"`)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStandardExecutor_QuietAboveDebug(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectExec("DELETE FROM products").WillReturnResult(sqlmock.NewResult(0, 0))

	var buf bytes.Buffer
	logger := &logging.Logger{Logger: slog.New(slog.NewJSONHandler(&buf, nil))}
	ctx := logging.WithLogger(context.Background(), logger)

	_, err = NewStandardExecutor(db).ExecContext(ctx, "DELETE FROM products")
	require.NoError(t, err)
	assert.Empty(t, buf.String())
}

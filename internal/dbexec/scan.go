package dbexec

import (
	"context"
	"fmt"

	"autoapi/internal/planner"
)

// QueryRows runs q and scans each row into a map keyed by columns, which must
// match the statement's select list order.
func QueryRows(ctx context.Context, exec QueryExecutor, q planner.SQLQuery, columns []string) ([]map[string]any, error) {
	rows, err := exec.QueryContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(columns))
		dest := make([]any, len(columns))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// QueryValue runs q and returns the first column of the first row, or nil
// when the result is empty.
func QueryValue(ctx context.Context, exec QueryExecutor, q planner.SQLQuery) (any, error) {
	rows, err := QueryRows(ctx, exec, q, []string{"value"})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0]["value"], nil
}

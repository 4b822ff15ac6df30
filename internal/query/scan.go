package query

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ScanRows drains rows into Row mappings keyed by output column name.
func ScanRows(rows *sql.Rows) ([]string, []Row, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("query columns: %w", err)
	}

	result := make([]Row, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, nil, fmt.Errorf("scan row: %w", err)
		}
		row := make(Row, len(columns))
		for i, column := range columns {
			row[column] = NormalizeValue(values[i])
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate rows: %w", err)
	}
	return columns, result, nil
}

// Execute runs one read query against db and scans the full result. Every failure is
// reported as an *ExecutionError.
func Execute(ctx context.Context, db *sql.DB, sqlText string) (Result, error) {
	start := time.Now()
	prepared, err := PrepareSQL(sqlText)
	if err != nil {
		return Result{}, &ExecutionError{SQL: sqlText, Err: err}
	}

	rows, err := db.QueryContext(ctx, prepared)
	if err != nil {
		return Result{}, &ExecutionError{SQL: sqlText, Err: err}
	}
	defer func() { _ = rows.Close() }()

	columns, resultRows, err := ScanRows(rows)
	if err != nil {
		return Result{}, &ExecutionError{SQL: sqlText, Err: err}
	}
	return Result{
		Columns:  columns,
		Rows:     resultRows,
		Duration: time.Since(start),
	}, nil
}

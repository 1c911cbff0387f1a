package store

import (
	"context"
	"fmt"
	"strconv"

	sq "github.com/Masterminds/squirrel"

	"github.com/roach88/ranklist/internal/ir"
)

// Exec renders b and runs it on q. It returns the number of affected rows,
// or -1 when the driver cannot report it.
func Exec(ctx context.Context, q Querier, b sq.Sqlizer) (int64, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build statement: %w", err)
	}
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("exec %q: %w", query, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return -1, nil
	}
	return n, nil
}

// Query renders b and returns every row keyed by column name.
func Query(ctx context.Context, q Querier, b sq.Sqlizer) ([]ir.IRObject, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", query, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}

	var out []ir.IRObject
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		obj := make(ir.IRObject, len(cols))
		for i, col := range cols {
			v, err := columnValue(values[i])
			if err != nil {
				return nil, fmt.Errorf("column %q: %w", col, err)
			}
			obj[col] = v
		}
		out = append(out, obj)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

// QueryOne is Query for statements that match at most one row. It returns
// nil when nothing matched.
func QueryOne(ctx context.Context, q Querier, b sq.Sqlizer) (ir.IRObject, error) {
	rows, err := Query(ctx, q, b)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// InsertReturning runs b with a RETURNING clause for column and returns the
// generated integer key.
func InsertReturning(ctx context.Context, q Querier, b sq.InsertBuilder, column string) (int64, error) {
	query, args, err := b.Suffix("RETURNING " + column).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build insert: %w", err)
	}
	var id int64
	if err := q.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert %q: %w", query, err)
	}
	return id, nil
}

// columnValue converts a driver value into an IRValue. REAL columns that
// do not hold a representable integer (fractions, infinities, anything
// outside int64) are carried as their decimal text.
func columnValue(v any) (ir.IRValue, error) {
	if f, ok := v.(float32); ok {
		v = float64(f)
	}
	if f, ok := v.(float64); ok && !ir.IntegralFloat(f) {
		return ir.IRString(strconv.FormatFloat(f, 'g', -1, 64)), nil
	}
	return ir.FromAny(v)
}

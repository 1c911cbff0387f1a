package store

import (
	"context"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// dialect holds the handful of statements that differ between drivers.
// Everything else is built with squirrel and rendered with placeholder().
type dialect interface {
	name() Driver
	placeholder() sq.PlaceholderFormat
	columnsQuery(table string) (string, []any)
	lockScope(ctx context.Context, q Querier, key int64) error
}

func dialectFor(d Driver) (dialect, error) {
	switch d {
	case "", DriverSQLite:
		return sqliteDialect{}, nil
	case DriverPostgres, "postgres":
		return postgresDialect{}, nil
	default:
		return nil, fmt.Errorf("unsupported driver %q (want %q or %q)", d, DriverSQLite, DriverPostgres)
	}
}

type sqliteDialect struct{}

func (sqliteDialect) name() Driver { return DriverSQLite }

func (sqliteDialect) placeholder() sq.PlaceholderFormat { return questionFormat{} }

// questionFormat is sq.Question plus the ?? escape that sq.Dollar already
// honours, so raw predicates read the same on both drivers.
type questionFormat struct{}

func (questionFormat) ReplacePlaceholders(sql string) (string, error) {
	return strings.ReplaceAll(sql, "??", "?"), nil
}

func (sqliteDialect) columnsQuery(table string) (string, []any) {
	return "SELECT name FROM pragma_table_info(?) ORDER BY cid", []any{table}
}

// lockScope is a no-op: the connection is opened with _txlock=immediate,
// so the transaction already holds the database write lock.
func (sqliteDialect) lockScope(context.Context, Querier, int64) error { return nil }

type postgresDialect struct{}

func (postgresDialect) name() Driver { return DriverPostgres }

func (postgresDialect) placeholder() sq.PlaceholderFormat { return sq.Dollar }

func (postgresDialect) columnsQuery(table string) (string, []any) {
	return `SELECT column_name FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = $1
		ORDER BY ordinal_position`, []any{table}
}

// lockScope takes a transaction-scoped advisory lock. It is released on
// commit or rollback.
func (postgresDialect) lockScope(ctx context.Context, q Querier, key int64) error {
	_, err := q.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", key)
	return err
}

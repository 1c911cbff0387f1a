// Package store provides the relational storage handle that ordered lists
// live in.
//
// A Store wraps a database/sql pool for one of two drivers:
//   - sqlite3: github.com/mattn/go-sqlite3, one connection, WAL mode,
//     BEGIN IMMEDIATE transactions
//   - pgx: github.com/jackc/pgx/v5 through a pgxpool and its stdlib adapter
//
// # Statements
//
// Callers build statements with Builder(), a squirrel statement builder
// that already carries the driver's placeholder format, and run them with
// Exec, Query, QueryOne or InsertReturning against either the Store's DB or
// a transaction from WithTx. Rows come back as ir.IRObject values keyed by
// column name.
//
// # Locking
//
// LockScope serialises writers of one list inside a transaction. On
// Postgres it takes pg_advisory_xact_lock(key). On SQLite the transaction
// already holds the write lock, so it does nothing.
package store

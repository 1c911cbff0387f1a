// Package engine keeps the rows of a table in dense, gapless lists.
//
// A Manager is built from a Config naming the table, the position column,
// the primary key and a scope.Spec that partitions rows into independent
// lists. Within each list the non-NULL positions are always exactly 1..N
// between operations. A NULL position means the row exists but is not in
// its list.
//
// OPERATIONS:
//
// Mutations (InsertAt, InsertAtTop, InsertAtBottom, MoveHigher, MoveLower,
// MoveToTop, MoveToBottom, Remove, IncrementPosition, DecrementPosition)
// each run in one transaction:
//  1. Resolve the record's scope once
//  2. Lock the list (pg_advisory_xact_lock on Postgres; SQLite transactions
//     begin IMMEDIATE and already hold the write lock)
//  3. Re-read the record's stored position
//  4. Shift the affected range of the list with one UPDATE
//  5. Assign the record's own position
//
// Queries (BottomPosition, HigherItem, LowerItem, IsFirst, IsLast, Items,
// Check, Load) read through the connection pool and use the record's
// in-memory position.
//
// LIFECYCLE:
//
// Callers that write rows themselves call OnCreate before inserting and
// OnDestroy before deleting. Create and Destroy wrap both steps in one
// transaction.
//
// Nothing is cached between calls. The store is the only state.
package engine

// Package queryir provides the predicate intermediate representation used to
// describe "which rows belong to this list".
//
// A scope resolves to a Predicate; the engine then ANDs position range
// conditions onto it for every bulk shift. Keeping predicates as data rather
// than strings means the same scope can be compiled for SQLite and Postgres,
// logged, hashed for advisory locks, and unit tested without a database.
//
//	[scope spec] → [Predicate] → [querysql] → squirrel.Sqlizer → SQL
//
// SEALED INTERFACE:
//
// Predicate is sealed using the marker method pattern. Only types in this
// package implement it, so compilers can switch over it exhaustively:
//
//	switch p := pred.(type) {
//	case Raw:
//	case Equals:
//	case NotEquals:
//	case IsNull:
//	case Compare:
//	case And:
//	}
//
// VALUES:
//
// Literal values are ir.IRValue, never floats. Values are always bound as
// parameters by the compiler. Raw is the only escape hatch: its SQL text is
// used verbatim and its placeholders must be written as "?".
package queryir

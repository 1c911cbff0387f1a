// Package harness runs ordering scenarios against the list engine.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: insert_in_middle
//	description: "insert_at shifts the rows at and below the rank"
//	list:
//	  table: phones
//	  scope: {field: contact}
//	setup:
//	  - {contact_id: 1, number: A}
//	  - {contact_id: 1, number: B}
//	  - {contact_id: 1, number: C}
//	steps:
//	  - op: insert_at
//	    id: 3
//	    rank: 1
//	    expect:
//	      position: 1
//	      list: [3, 1, 2]
//	assertions:
//	  - type: contiguous
//	    where: {contact_id: 1}
//
// schema may hold DDL for the tables a scenario needs; without it the
// phones table is created. Setup rows go through Manager.Create, so they get
// bottom positions unless they name one.
//
// # Assertion Types
//
//   - order: the primary keys of the list selected by where, in order
//   - position: one row's stored position (omit position for "not in list")
//   - contiguous: the list selected by where holds exactly 1..N
//   - count: the number of rows in the table matching where
//
// # Deterministic Traces
//
// Each scenario runs in its own in-memory SQLite database. Steps are
// numbered from 1, and op IDs come from engine.SequenceGenerator, so the
// trace, and therefore its golden snapshot, is the same on every run.
package harness

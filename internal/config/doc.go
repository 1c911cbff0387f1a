// Package config loads list definitions written in CUE.
//
// A config directory holds one CUE package. Each entry under the top-level
// list struct describes one positioned list:
//
//	package lists
//
//	list: phones: {
//		table: "phones"
//		scope: field: "contact"
//	}
//
//	list: tax_frequencies: {
//		table:  "labels"
//		column: "pos"
//		kind: {column: "type", value: "TaxFrequency"}
//	}
//
// The embedded schema supplies the defaults (column "position", primary key
// "id") and rejects unknown keys. A scope is either a field, which follows
// the _id convention, or a fixed SQL predicate.
package config

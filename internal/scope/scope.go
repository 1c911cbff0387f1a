// Package scope turns a list's scope specification and a record into the
// predicate that selects "this record's list".
package scope

import (
	"fmt"
	"strings"

	"github.com/roach88/ranklist/internal/ir"
	"github.com/roach88/ranklist/internal/queryir"
)

// Spec is a sealed interface describing how a list is partitioned.
// Only Fixed, Field and Func implement it. A nil Spec means the whole table
// is one list.
type Spec interface {
	scopeSpec() // Sealed
}

// Fixed is a literal SQL predicate shared by every record, for example
// "archived = 0". It takes no arguments, so a question mark inside it is
// written ?? ("note <> 'why??'"). Blank means the whole table.
type Fixed string

func (Fixed) scopeSpec() {}

// Field partitions by the value of one column, foreign-key style.
// Field("contact") uses contact_id when the table has that column.
type Field string

func (Field) scopeSpec() {}

// Func computes the predicate from the record itself. It is called once per
// logical operation and its result is used verbatim.
type Func func(rec *ir.Record) queryir.Predicate

func (Func) scopeSpec() {}

// Mode names the variant of a Spec for display and configuration.
type Mode string

const (
	ModeWhole Mode = "whole"
	ModeFixed Mode = "fixed"
	ModeField Mode = "field"
	ModeFunc  Mode = "func"
)

// ModeOf reports which variant spec is.
func ModeOf(spec Spec) Mode {
	switch spec.(type) {
	case Fixed:
		return ModeFixed
	case Field:
		return ModeField
	case Func:
		return ModeFunc
	default:
		return ModeWhole
	}
}

// Describe renders spec for log lines and CLI output.
func Describe(spec Spec) string {
	switch s := spec.(type) {
	case Fixed:
		if strings.TrimSpace(string(s)) == "" {
			return string(ModeWhole)
		}
		return fmt.Sprintf("fixed(%s)", strings.TrimSpace(string(s)))
	case Field:
		return fmt.Sprintf("field(%s)", string(s))
	case Func:
		return string(ModeFunc)
	default:
		return string(ModeWhole)
	}
}

// Schema is the set of column names of the list's table. It is a plain
// value so the column conventions can be exercised without a database.
type Schema map[string]struct{}

// NewSchema builds a Schema from column names.
func NewSchema(columns ...string) Schema {
	s := make(Schema, len(columns))
	for _, c := range columns {
		s[c] = struct{}{}
	}
	return s
}

// Has reports whether the table has column.
func (s Schema) Has(column string) bool {
	_, ok := s[column]
	return ok
}

// Column derives the column a Field spec compares against. The "_id"
// suffix is appended when field lacks it and the schema has that column.
// ok is false for a blank field name.
func Column(field Field, schema Schema) (column string, ok bool) {
	name := strings.TrimSpace(string(field))
	if name == "" {
		return "", false
	}
	if !strings.HasSuffix(name, "_id") && schema.Has(name+"_id") {
		return name + "_id", true
	}
	return name, true
}

// Resolve returns the predicate selecting rec's list.
//
// A Field whose value on rec is absent or NULL resolves to "column IS NULL",
// so null-scoped records share one list.
//
// Resolve never fails. A spec it cannot make sense of (a blank Field, a nil
// Func, an unknown implementation) falls back to the always-true predicate
// and resolved is false, so the caller can warn about it.
func Resolve(rec *ir.Record, spec Spec, schema Schema) (pred queryir.Predicate, resolved bool) {
	switch s := spec.(type) {
	case nil:
		return queryir.True(), true
	case Fixed:
		if strings.TrimSpace(string(s)) == "" {
			return queryir.True(), true
		}
		return queryir.Raw{SQL: string(s)}, true
	case Field:
		col, ok := Column(s, schema)
		if !ok {
			return queryir.True(), false
		}
		v := rec.Field(col)
		if ir.IsNull(v) {
			return queryir.IsNull{Field: col}, true
		}
		return queryir.Equals{Field: col, Value: v}, true
	case Func:
		if s == nil {
			return queryir.True(), false
		}
		p := s(rec)
		if p == nil {
			return queryir.True(), true
		}
		return p, true
	default:
		return queryir.True(), false
	}
}

// Validate checks a spec against the table's schema at configuration
// time. It rejects what would produce broken SQL. Specs that Resolve treats
// as the whole table (a blank Field, a nil Func) pass.
func Validate(spec Spec, schema Schema) error {
	switch s := spec.(type) {
	case Field:
		col, ok := Column(s, schema)
		if !ok {
			return nil
		}
		if !queryir.ValidIdentifier(col) {
			return fmt.Errorf("scope field %q is not a valid column name", col)
		}
		if len(schema) > 0 && !schema.Has(col) {
			return fmt.Errorf("scope column %q not found in table", col)
		}
	case Fixed:
		fixed := queryir.Raw{SQL: string(s)}
		if res := queryir.Validate(fixed); !res.Valid {
			return res.Err()
		}
	}
	return nil
}

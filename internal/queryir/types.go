package queryir

import "github.com/roach88/ranklist/internal/ir"

// Predicate represents a row filter.
//
// This is a sealed interface - only types in this package implement it.
//
// Predicate types:
//   - Raw: literal SQL text with "?" placeholders
//   - Equals / NotEquals: field compared to a literal
//   - IsNull / NotNull: field IS [NOT] NULL
//   - Compare: field <, <=, >, >= literal
//   - And: all predicates must be true (empty = always true)
type Predicate interface {
	predicateNode() // Marker method - seals interface to this package
}

// Raw is a literal predicate used verbatim.
//
// Example:
//
//	Raw{SQL: "contact_id = ? AND completed = 0", Args: []any{int64(3)}}
//
// An empty SQL string means "always true". Each ? is a placeholder; a
// literal question mark is written ??, as in "note <> 'why??'".
type Raw struct {
	SQL  string
	Args []any
}

func (Raw) predicateNode() {}

// Equals represents <field> = <value>.
//
// NULL never equals anything in SQL; use IsNull to match absent keys.
type Equals struct {
	Field string
	Value ir.IRValue
}

func (Equals) predicateNode() {}

// NotEquals represents <field> <> <value>. The engine uses it to exclude a
// row by primary key.
type NotEquals struct {
	Field string
	Value ir.IRValue
}

func (NotEquals) predicateNode() {}

// IsNull represents <field> IS NULL.
//
// Records whose scope key is absent resolve to this predicate so that they
// share one list instead of matching nothing.
type IsNull struct {
	Field string
}

func (IsNull) predicateNode() {}

// NotNull represents <field> IS NOT NULL.
type NotNull struct {
	Field string
}

func (NotNull) predicateNode() {}

// CompareOp is an ordering comparison operator.
type CompareOp string

const (
	OpLess         CompareOp = "<"
	OpLessEqual    CompareOp = "<="
	OpGreater      CompareOp = ">"
	OpGreaterEqual CompareOp = ">="
)

// Compare represents <field> <op> <value>. Position range conditions of
// bulk shifts are expressed with it.
type Compare struct {
	Field string
	Op    CompareOp
	Value ir.IRValue
}

func (Compare) predicateNode() {}

// And represents a conjunction of predicates.
//
// Semantics:
//
//	<predicate1> AND <predicate2> AND ... AND <predicateN>
//
// An empty Predicates slice is vacuously true.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// True returns the always-true predicate.
func True() Predicate {
	return And{}
}

// IsTrue reports whether p is trivially always true: nil, an empty And, or
// a blank Raw.
func IsTrue(p Predicate) bool {
	switch pred := p.(type) {
	case nil:
		return true
	case Raw:
		return isBlank(pred.SQL)
	case *Raw:
		return pred == nil || isBlank(pred.SQL)
	case And:
		return allTrue(pred.Predicates)
	case *And:
		return pred == nil || allTrue(pred.Predicates)
	}
	return false
}

// Conj ANDs predicates together, dropping always-true members and
// flattening nested conjunctions so compiled SQL stays readable.
func Conj(preds ...Predicate) Predicate {
	out := make([]Predicate, 0, len(preds))
	for _, p := range preds {
		if IsTrue(p) {
			continue
		}
		switch pred := p.(type) {
		case And:
			out = append(out, flatten(pred.Predicates)...)
		case *And:
			out = append(out, flatten(pred.Predicates)...)
		default:
			out = append(out, p)
		}
	}
	if len(out) == 1 {
		return out[0]
	}
	return And{Predicates: out}
}

func flatten(preds []Predicate) []Predicate {
	conj := Conj(preds...)
	if and, ok := conj.(And); ok {
		return and.Predicates
	}
	return []Predicate{conj}
}

func allTrue(preds []Predicate) bool {
	for _, p := range preds {
		if !IsTrue(p) {
			return false
		}
	}
	return true
}

func isBlank(s string) bool {
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return false
		}
	}
	return true
}

// Placeholders counts the ? placeholders in raw SQL. ?? is an escaped
// literal question mark and does not count.
func Placeholders(sql string) int {
	n := 0
	for i := 0; i < len(sql); i++ {
		if sql[i] != '?' {
			continue
		}
		if i+1 < len(sql) && sql[i+1] == '?' {
			i++
			continue
		}
		n++
	}
	return n
}

package queryir

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/ranklist/internal/ir"
)

// ValidationResult contains the problems found in a predicate.
type ValidationResult struct {
	// Valid is true when Problems is empty.
	Valid bool

	// Problems lists every structural issue found, in traversal order.
	Problems []string
}

// Err folds the problems into a single error, or nil when valid.
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	return fmt.Errorf("invalid predicate: %s", strings.Join(r.Problems, "; "))
}

// identPattern accepts bare and table-qualified column names.
var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// ValidIdentifier reports whether name can be spliced into SQL as a column
// or table name.
func ValidIdentifier(name string) bool {
	return identPattern.MatchString(name)
}

// Validate checks that a predicate can be compiled safely:
//  1. Field names are plain identifiers (they are spliced into SQL)
//  2. Comparison operators are known
//  3. Values are scalars
//  4. Raw placeholder count matches its argument count
//
// Validate is a pure function with no side effects.
func Validate(p Predicate) ValidationResult {
	v := &validator{problems: []string{}}
	v.validatePredicate(p)
	return ValidationResult{
		Valid:    len(v.problems) == 0,
		Problems: v.problems,
	}
}

// validator accumulates problems during traversal.
type validator struct {
	problems []string
}

func (v *validator) addProblem(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) validatePredicate(p Predicate) {
	switch pred := p.(type) {
	case nil:
		// nil is always true
	case Raw:
		v.validateRaw(pred)
	case *Raw:
		if pred != nil {
			v.validateRaw(*pred)
		}
	case Equals:
		v.validateField(pred.Field)
		v.validateValue(pred.Field, pred.Value)
		if ir.IsNull(pred.Value) {
			v.addProblem("field %q compared to NULL with '=' never matches; use IsNull", pred.Field)
		}
	case *Equals:
		if pred != nil {
			v.validatePredicate(*pred)
		}
	case NotEquals:
		v.validateField(pred.Field)
		v.validateValue(pred.Field, pred.Value)
	case *NotEquals:
		if pred != nil {
			v.validatePredicate(*pred)
		}
	case IsNull:
		v.validateField(pred.Field)
	case *IsNull:
		if pred != nil {
			v.validatePredicate(*pred)
		}
	case NotNull:
		v.validateField(pred.Field)
	case *NotNull:
		if pred != nil {
			v.validatePredicate(*pred)
		}
	case Compare:
		v.validateField(pred.Field)
		v.validateValue(pred.Field, pred.Value)
		switch pred.Op {
		case OpLess, OpLessEqual, OpGreater, OpGreaterEqual:
		default:
			v.addProblem("unknown comparison operator %q on field %q", pred.Op, pred.Field)
		}
	case *Compare:
		if pred != nil {
			v.validatePredicate(*pred)
		}
	case And:
		for _, sub := range pred.Predicates {
			v.validatePredicate(sub)
		}
	case *And:
		if pred != nil {
			v.validatePredicate(*pred)
		}
	default:
		v.addProblem("unknown predicate type: %T", p)
	}
}

func (v *validator) validateRaw(raw Raw) {
	if n := Placeholders(raw.SQL); n != len(raw.Args) {
		v.addProblem("raw predicate %q has %d placeholders but %d args", raw.SQL, n, len(raw.Args))
	}
}

func (v *validator) validateField(field string) {
	if !ValidIdentifier(field) {
		v.addProblem("invalid field name %q", field)
	}
}

func (v *validator) validateValue(field string, value ir.IRValue) {
	if _, err := ir.Native(value); err != nil {
		v.addProblem("field %q: %v", field, err)
	}
}

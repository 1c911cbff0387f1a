// Package querysql compiles queryir predicates to squirrel SQL fragments.
package querysql

import (
	"fmt"
	"hash/fnv"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/roach88/ranklist/internal/ir"
	"github.com/roach88/ranklist/internal/queryir"
)

// Compile converts a predicate to a squirrel.Sqlizer that can be handed to
// any builder's Where clause.
//
// All literal values are parameterized (never interpolated). Raw predicates
// are wrapped in parentheses so that an OR inside them cannot escape the
// surrounding conjunction. A nil predicate compiles to the always-true
// expression.
func Compile(p queryir.Predicate) (sq.Sqlizer, error) {
	switch pred := p.(type) {
	case nil:
		return sq.And{}, nil
	case queryir.Raw:
		return compileRaw(pred), nil
	case *queryir.Raw:
		if pred == nil {
			return sq.And{}, nil
		}
		return compileRaw(*pred), nil
	case queryir.Equals:
		return compileEquals(pred)
	case *queryir.Equals:
		return compileEquals(*pred)
	case queryir.NotEquals:
		return compileNotEquals(pred)
	case *queryir.NotEquals:
		return compileNotEquals(*pred)
	case queryir.IsNull:
		return compileIsNull(pred)
	case *queryir.IsNull:
		return compileIsNull(*pred)
	case queryir.NotNull:
		return compileNotNull(pred)
	case *queryir.NotNull:
		return compileNotNull(*pred)
	case queryir.Compare:
		return compileCompare(pred)
	case *queryir.Compare:
		return compileCompare(*pred)
	case queryir.And:
		return compileAnd(pred)
	case *queryir.And:
		if pred == nil {
			return sq.And{}, nil
		}
		return compileAnd(*pred)
	default:
		return nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

// ToSQL compiles a predicate and renders it with "?" placeholders.
// Used for logging, lock keys and tests; statements are built with Compile.
func ToSQL(p queryir.Predicate) (string, []any, error) {
	s, err := Compile(p)
	if err != nil {
		return "", nil, err
	}
	return s.ToSql()
}

// Fingerprint returns a stable 64-bit FNV-1a hash of a table name and the
// compiled predicate with its arguments. Two operations on the same list
// produce the same fingerprint, which makes it usable as an advisory lock key.
func Fingerprint(table string, p queryir.Predicate) (int64, error) {
	sqlStr, args, err := ToSQL(p)
	if err != nil {
		return 0, err
	}
	h := fnv.New64a()
	h.Write([]byte(table))
	h.Write([]byte{0})
	h.Write([]byte(sqlStr))
	for _, arg := range args {
		h.Write([]byte{0})
		fmt.Fprintf(h, "%T:%v", arg, arg)
	}
	return int64(h.Sum64()), nil
}

func compileRaw(raw queryir.Raw) sq.Sqlizer {
	text := strings.TrimSpace(raw.SQL)
	if text == "" {
		return sq.And{}
	}
	return sq.Expr("("+text+")", raw.Args...)
}

// compileEquals compiles "field = ?". A NULL value compiles to IS NULL
// because "= NULL" never matches.
func compileEquals(eq queryir.Equals) (sq.Sqlizer, error) {
	if err := checkField(eq.Field); err != nil {
		return nil, err
	}
	param, err := ir.Native(eq.Value)
	if err != nil {
		return nil, fmt.Errorf("convert value for %q: %w", eq.Field, err)
	}
	return sq.Eq{eq.Field: param}, nil
}

func compileNotEquals(ne queryir.NotEquals) (sq.Sqlizer, error) {
	if err := checkField(ne.Field); err != nil {
		return nil, err
	}
	param, err := ir.Native(ne.Value)
	if err != nil {
		return nil, fmt.Errorf("convert value for %q: %w", ne.Field, err)
	}
	return sq.NotEq{ne.Field: param}, nil
}

func compileIsNull(isNull queryir.IsNull) (sq.Sqlizer, error) {
	if err := checkField(isNull.Field); err != nil {
		return nil, err
	}
	return sq.Eq{isNull.Field: nil}, nil
}

func compileNotNull(notNull queryir.NotNull) (sq.Sqlizer, error) {
	if err := checkField(notNull.Field); err != nil {
		return nil, err
	}
	return sq.NotEq{notNull.Field: nil}, nil
}

func compileCompare(cmp queryir.Compare) (sq.Sqlizer, error) {
	if err := checkField(cmp.Field); err != nil {
		return nil, err
	}
	param, err := ir.Native(cmp.Value)
	if err != nil {
		return nil, fmt.Errorf("convert value for %q: %w", cmp.Field, err)
	}
	switch cmp.Op {
	case queryir.OpLess:
		return sq.Lt{cmp.Field: param}, nil
	case queryir.OpLessEqual:
		return sq.LtOrEq{cmp.Field: param}, nil
	case queryir.OpGreater:
		return sq.Gt{cmp.Field: param}, nil
	case queryir.OpGreaterEqual:
		return sq.GtOrEq{cmp.Field: param}, nil
	default:
		return nil, fmt.Errorf("unsupported comparison operator %q", cmp.Op)
	}
}

// compileAnd compiles a conjunction. Always-true members are dropped and
// an empty conjunction compiles to squirrel's "(1=1)".
func compileAnd(and queryir.And) (sq.Sqlizer, error) {
	conj := queryir.Conj(and.Predicates...)
	flat, ok := conj.(queryir.And)
	if !ok {
		// Conj collapsed to a single predicate.
		return Compile(conj)
	}
	parts := make(sq.And, 0, len(flat.Predicates))
	for _, pred := range flat.Predicates {
		part, err := Compile(pred)
		if err != nil {
			return nil, err
		}
		parts = append(parts, part)
	}
	return parts, nil
}

func checkField(field string) error {
	if !queryir.ValidIdentifier(field) {
		return fmt.Errorf("invalid field name %q", field)
	}
	return nil
}

package queryir

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/ranklist/internal/ir"
)

func TestPredicatesAreSealed(t *testing.T) {
	preds := []Predicate{
		Raw{SQL: "1 = 1"},
		Equals{Field: "contact_id", Value: ir.IRInt(1)},
		NotEquals{Field: "id", Value: ir.IRInt(2)},
		IsNull{Field: "contact_id"},
		NotNull{Field: "position"},
		Compare{Field: "position", Op: OpGreater, Value: ir.IRInt(3)},
		And{},
	}
	for _, p := range preds {
		switch p.(type) {
		case Raw, Equals, NotEquals, IsNull, NotNull, Compare, And:
		default:
			t.Fatalf("unexpected predicate type %T", p)
		}
	}
}

func TestIsTrue(t *testing.T) {
	tests := []struct {
		name     string
		pred     Predicate
		expected bool
	}{
		{"nil", nil, true},
		{"empty and", And{}, true},
		{"nested empty and", And{Predicates: []Predicate{And{}, Raw{SQL: "  "}}}, true},
		{"blank raw", Raw{SQL: ""}, true},
		{"raw", Raw{SQL: "1 = 1"}, false},
		{"equals", Equals{Field: "a", Value: ir.IRInt(1)}, false},
		{"and with member", And{Predicates: []Predicate{IsNull{Field: "a"}}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsTrue(tt.pred))
		})
	}
}

func TestConjFlattens(t *testing.T) {
	a := Equals{Field: "contact_id", Value: ir.IRInt(1)}
	b := Compare{Field: "position", Op: OpGreater, Value: ir.IRInt(2)}
	c := IsNull{Field: "deleted_at"}

	got := Conj(And{Predicates: []Predicate{a, True()}}, nil, And{Predicates: []Predicate{b, And{Predicates: []Predicate{c}}}})

	assert.Equal(t, And{Predicates: []Predicate{a, b, c}}, got)
}

func TestConjSingleAndEmpty(t *testing.T) {
	a := Equals{Field: "contact_id", Value: ir.IRInt(1)}
	assert.Equal(t, a, Conj(True(), a))
	assert.True(t, IsTrue(Conj()))
	assert.True(t, IsTrue(Conj(True(), Raw{})))
}

func TestPlaceholders(t *testing.T) {
	tests := map[string]int{
		"":                      0,
		"contact_id = ?":        1,
		"a = ? AND b = ?":       2,
		"note <> 'why??'":       0,
		"note <> 'why??' AND ?": 1,
		"???":                   1,
	}
	for sql, want := range tests {
		assert.Equal(t, want, Placeholders(sql), sql)
	}
}

package harness

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/roach88/ranklist/internal/engine"
	"github.com/roach88/ranklist/internal/ir"
	"github.com/roach88/ranklist/internal/store"
)

// validIdentifier matches column names that may be interpolated into SQL.
var validIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

// EvaluateAssertions checks every assertion against the current database
// and returns one message per failure.
func (h *Harness) EvaluateAssertions(ctx context.Context, assertions []Assertion) []string {
	var msgs []string
	for i, a := range assertions {
		if err := h.evaluate(ctx, a); err != nil {
			msgs = append(msgs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return msgs
}

func (h *Harness) evaluate(ctx context.Context, a Assertion) error {
	switch a.Type {
	case AssertOrder:
		return h.assertOrder(ctx, a)
	case AssertPosition:
		return h.assertPosition(ctx, a)
	case AssertContiguous:
		return h.assertContiguous(ctx, a)
	case AssertCount:
		return h.assertCount(ctx, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// assertOrder checks the primary keys of a list in position order.
func (h *Harness) assertOrder(ctx context.Context, a Assertion) error {
	probe, err := h.probe(a.Where)
	if err != nil {
		return err
	}
	items, err := h.manager.Items(ctx, probe)
	if err != nil {
		return err
	}
	got := make([]int64, len(items))
	for i, it := range items {
		got[i] = it.ID
	}
	if !slices.Equal(got, a.IDs) {
		return &AssertionError{
			Type:     AssertOrder,
			Expected: fmt.Sprintf("%v where %s", a.IDs, formatWhere(a.Where)),
			Actual:   fmt.Sprintf("%v", got),
		}
	}
	return nil
}

// assertPosition checks one row's stored position.
func (h *Harness) assertPosition(ctx context.Context, a Assertion) error {
	rec, err := h.manager.Load(ctx, a.ID)
	if engine.IsNotFound(err) {
		return &AssertionError{
			Type:     AssertPosition,
			Expected: fmt.Sprintf("row %d at %s", a.ID, positionString(a.Position)),
			Actual:   "row not found",
		}
	}
	if err != nil {
		return err
	}
	same := (rec.Position == nil) == (a.Position == nil)
	if same && rec.Position != nil {
		same = *rec.Position == *a.Position
	}
	if !same {
		return &AssertionError{
			Type:     AssertPosition,
			Expected: fmt.Sprintf("row %d at %s", a.ID, positionString(a.Position)),
			Actual:   positionString(rec.Position),
		}
	}
	return nil
}

// assertContiguous checks that a list holds exactly 1..N.
func (h *Harness) assertContiguous(ctx context.Context, a Assertion) error {
	probe, err := h.probe(a.Where)
	if err != nil {
		return err
	}
	if err := h.manager.Check(ctx, probe); err != nil {
		if engine.IsContiguityError(err) {
			return &AssertionError{
				Type:     AssertContiguous,
				Expected: fmt.Sprintf("positions 1..N where %s", formatWhere(a.Where)),
				Actual:   err.Error(),
			}
		}
		return err
	}
	return nil
}

// assertCount checks how many rows of the list's table match Where.
func (h *Harness) assertCount(ctx context.Context, a Assertion) error {
	where := sq.Eq{}
	for k, v := range a.Where {
		if !validIdentifier.MatchString(k) {
			return fmt.Errorf("invalid column name %q", k)
		}
		where[k] = v
	}
	table := h.manager.Config().Table
	row, err := store.QueryOne(ctx, h.store.DB(), h.store.Builder().
		Select("COUNT(*) AS n").
		From(table).
		Where(where))
	if err != nil {
		return err
	}
	n, _ := row["n"].(ir.IRInt)
	if int(n) != *a.Count {
		return &AssertionError{
			Type:     AssertCount,
			Expected: fmt.Sprintf("%d rows in %s where %s", *a.Count, table, formatWhere(a.Where)),
			Actual:   fmt.Sprintf("%d rows", n),
		}
	}
	return nil
}

// formatWhere renders a where clause as "k=v AND ..." in key order.
func formatWhere(where Row) string {
	if len(where) == 0 {
		return "(all rows)"
	}
	parts := make([]string, 0, len(where))
	for _, k := range sortedRowKeys(where) {
		v, err := ir.FromAny(where[k])
		if err != nil {
			parts = append(parts, fmt.Sprintf("%s=%v", k, where[k]))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%s", k, ir.String(v)))
	}
	return strings.Join(parts, " AND ")
}

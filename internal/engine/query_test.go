package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ranklist/internal/ir"
	"github.com/roach88/ranklist/internal/scope"
	"github.com/roach88/ranklist/internal/testutil"
)

func TestNeighbours(t *testing.T) {
	s := newTestStore(t)
	m := newPhones(t, s)
	ctx := context.Background()
	recs := createPhones(t, m, ir.IRInt(1), "A", "B", "C", "D")

	tests := []struct {
		name          string
		rec           *ir.Record
		higher, lower string
	}{
		{"first", recs[0], "", "B"},
		{"middle", recs[1], "A", "C"},
		{"last", recs[3], "C", ""},
	}
	number := func(rec *ir.Record) string {
		if rec == nil {
			return ""
		}
		return ir.String(rec.Field("number"))
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			higher, err := m.HigherItem(ctx, tt.rec)
			require.NoError(t, err)
			lower, err := m.LowerItem(ctx, tt.rec)
			require.NoError(t, err)
			assert.Equal(t, tt.higher, number(higher))
			assert.Equal(t, tt.lower, number(lower))
		})
	}

	require.NoError(t, m.Remove(ctx, recs[1]))
	higher, err := m.HigherItem(ctx, recs[1])
	require.NoError(t, err)
	assert.Nil(t, higher, "a record outside the list has no neighbours")
}

func TestBottomPosition(t *testing.T) {
	s := newTestStore(t)
	m := newPhones(t, s)
	ctx := context.Background()

	probe := ir.NewRecord(ir.IRObject{"contact_id": ir.IRInt(9)})
	bottom, err := m.BottomPosition(ctx, probe)
	require.NoError(t, err)
	assert.Equal(t, int64(0), bottom)

	recs := createPhones(t, m, ir.IRInt(9), "A", "B", "C")
	bottom, err = m.BottomPosition(ctx, probe)
	require.NoError(t, err)
	assert.Equal(t, int64(3), bottom)

	require.NoError(t, m.Remove(ctx, recs[2]))
	bottom, err = m.BottomPosition(ctx, probe)
	require.NoError(t, err)
	assert.Equal(t, int64(2), bottom, "removed rows do not count")
}

func TestIsFirstAndIsLast(t *testing.T) {
	s := newTestStore(t)
	m := newPhones(t, s)
	ctx := context.Background()
	recs := createPhones(t, m, ir.IRInt(1), "A", "B", "C")

	assert.True(t, m.IsFirst(recs[0]))
	assert.False(t, m.IsFirst(recs[1]))

	last, err := m.IsLast(ctx, recs[2])
	require.NoError(t, err)
	assert.True(t, last)
	last, err = m.IsLast(ctx, recs[1])
	require.NoError(t, err)
	assert.False(t, last)

	require.NoError(t, m.Remove(ctx, recs[0]))
	assert.False(t, m.IsFirst(recs[0]))
	last, err = m.IsLast(ctx, recs[0])
	require.NoError(t, err)
	assert.False(t, last)
}

func TestItems_SkipsRowsOutsideList(t *testing.T) {
	s := newTestStore(t)
	m := newPhones(t, s)
	ctx := context.Background()
	recs := createPhones(t, m, ir.IRInt(1), "A", "B", "C")

	require.NoError(t, m.Remove(ctx, recs[0]))

	items, err := m.Items(ctx, recs[1])
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, recs[1].ID, items[0].ID)
	assert.Equal(t, ir.IRInt(1), items[0].Field("contact_id"))
	assert.Equal(t, ir.IRNull{}, items[0].Field("position"), "position is not kept in Fields")
}

func TestLoadAndReload(t *testing.T) {
	s := newTestStore(t)
	m := newPhones(t, s)
	ctx := context.Background()
	recs := createPhones(t, m, ir.IRInt(1), "A", "B")

	loaded, err := m.Load(ctx, recs[1].ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), *loaded.Position)
	assert.Equal(t, ir.IRString("B"), loaded.Field("number"))

	_, err = m.Load(ctx, 999)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	// Another handle moves B; the first one is stale until reloaded.
	require.NoError(t, m.MoveToTop(ctx, loaded))
	assert.Equal(t, int64(2), *recs[1].Position)
	require.NoError(t, m.Reload(ctx, recs[1]))
	assert.Equal(t, int64(1), *recs[1].Position)

	require.NoError(t, m.Destroy(ctx, recs[0]))
	err = m.Reload(ctx, recs[0])
	assert.True(t, IsNotFound(err))
}

func TestCheck_DetectsExternalWrites(t *testing.T) {
	s := newTestStore(t)
	m := newPhones(t, s)
	ctx := context.Background()
	recs := createPhones(t, m, ir.IRInt(1), "A", "B", "C")
	require.NoError(t, m.Check(ctx, recs[0]))

	_, err := s.DB().Exec(`INSERT INTO phones (contact_id, number, position) VALUES (1, 'E', 5)`)
	require.NoError(t, err)

	err = m.Check(ctx, recs[0])
	require.Error(t, err)
	assert.True(t, IsContiguityError(err))

	var ce *ContiguityError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "phones", ce.Table)
	assert.Equal(t, "contact_id = ?", ce.Scope)
	assert.Equal(t, 4, ce.Count)
	assert.Equal(t, []int64{4}, ce.Missing)
	assert.Empty(t, ce.Duplicates)
	assert.Equal(t, []int64{5}, ce.OutOfRange)
}

func TestContiguity(t *testing.T) {
	tests := []struct {
		name       string
		positions  []int64
		ok         bool
		missing    []int64
		duplicates []int64
		outOfRange []int64
	}{
		{name: "empty", ok: true},
		{name: "ordered", positions: []int64{1, 2, 3}, ok: true},
		{name: "gap", positions: []int64{1, 3}, missing: []int64{2}, outOfRange: []int64{3}},
		{name: "duplicate", positions: []int64{1, 1, 2}, missing: []int64{3}, duplicates: []int64{1}},
		{name: "zero", positions: []int64{0, 1}, missing: []int64{2}, outOfRange: []int64{0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := contiguity(tt.positions)
			if tt.ok {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, len(tt.positions), got.Count)
			assert.Equal(t, tt.missing, got.Missing)
			assert.Equal(t, tt.duplicates, got.Duplicates)
			assert.Equal(t, tt.outOfRange, got.OutOfRange)
		})
	}
}

func TestReads_HugeRealColumn(t *testing.T) {
	s := testutil.NewStore(t, `CREATE TABLE items (
		id INTEGER PRIMARY KEY,
		list_id INTEGER,
		weight REAL,
		position INTEGER
	)`)
	_, err := s.DB().Exec(`INSERT INTO items (id, list_id, weight, position)
		VALUES (1, 1, 1e20, 1), (2, 1, 9e999, 2)`)
	require.NoError(t, err)

	ctx := context.Background()
	m, err := New(ctx, s, Config{Table: "items", Scope: scope.Field("list")}, WithLogger(quietLogger()))
	require.NoError(t, err)

	rec, err := m.Load(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, ir.IRString("+Inf"), rec.Field("weight"))

	require.NoError(t, m.MoveHigher(ctx, rec))
	assert.Equal(t, int64(1), *rec.Position)

	items, err := m.Items(ctx, rec)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, int64(2), items[0].ID)
	assert.Equal(t, int64(1), items[1].ID)
	assert.Equal(t, ir.IRString("1e+20"), items[1].Field("weight"))
	assert.NoError(t, m.Check(ctx, rec))
}

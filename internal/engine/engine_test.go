package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ranklist/internal/ir"
	"github.com/roach88/ranklist/internal/scope"
	"github.com/roach88/ranklist/internal/store"
	"github.com/roach88/ranklist/internal/testutil"
)

const testSchema = `
CREATE TABLE phones (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	contact_id INTEGER,
	number TEXT NOT NULL DEFAULT '',
	position INTEGER
);
CREATE TABLE labels (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	type TEXT NOT NULL,
	name TEXT NOT NULL DEFAULT '',
	pos INTEGER
);
`

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	return testutil.NewStore(t, testSchema)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newPhones(t *testing.T, s *store.Store, opts ...Option) *Manager {
	t.Helper()
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	m, err := New(context.Background(), s, Config{Table: "phones", Scope: scope.Field("contact")}, opts...)
	require.NoError(t, err)
	return m
}

// createPhones creates one phone per number in contact's list, in order.
func createPhones(t *testing.T, m *Manager, contact ir.IRValue, numbers ...string) []*ir.Record {
	t.Helper()
	out := make([]*ir.Record, 0, len(numbers))
	for _, n := range numbers {
		rec := ir.NewRecord(ir.IRObject{"contact_id": contact, "number": ir.IRString(n)})
		require.NoError(t, m.Create(context.Background(), rec))
		out = append(out, rec)
	}
	return out
}

// listBy renders rec's list as "field@position" in order.
func listBy(t *testing.T, m *Manager, rec *ir.Record, field string) []string {
	t.Helper()
	items, err := m.Items(context.Background(), rec)
	require.NoError(t, err)
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = fmt.Sprintf("%s@%d", ir.String(it.Field(field)), it.PositionValue())
	}
	return out
}

func listOf(t *testing.T, m *Manager, rec *ir.Record) []string {
	t.Helper()
	return listBy(t, m, rec, "number")
}

// storedPosition reads rec's position straight from the store.
func storedPosition(t *testing.T, m *Manager, rec *ir.Record) *int64 {
	t.Helper()
	fresh, err := m.Load(context.Background(), rec.ID)
	require.NoError(t, err)
	return fresh.Position
}

type observation struct {
	op      string
	outcome string
	shifted int64
}

type recordingMetrics struct {
	mu  sync.Mutex
	obs []observation
}

func (r *recordingMetrics) ObserveOperation(op, outcome string, shifted int64, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.obs = append(r.obs, observation{op, outcome, shifted})
}

func TestNew_Defaults(t *testing.T) {
	s := newTestStore(t)
	m := newPhones(t, s)

	cfg := m.Config()
	assert.Equal(t, "phones", cfg.Table)
	assert.Equal(t, DefaultColumn, cfg.Column)
	assert.Equal(t, DefaultPrimaryKey, cfg.PrimaryKey)
	assert.Equal(t, []string{"contact_id", "id", "number", "position"}, m.Columns())
}

func TestNew_InvalidConfig(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name string
		cfg  Config
		msg  string
	}{
		{"missing table", Config{Table: "nope"}, "table not found"},
		{"bad table name", Config{Table: "phones; DROP"}, "not a valid identifier"},
		{"missing column", Config{Table: "phones", Column: "rank"}, "position column"},
		{"missing primary key", Config{Table: "phones", PrimaryKey: "uuid"}, "primary key"},
		{"missing kind column", Config{Table: "phones", Kind: &Kind{Column: "type", Value: ir.IRString("x")}}, "kind column"},
		{"kind without value", Config{Table: "labels", Column: "pos", Kind: &Kind{Column: "type"}}, "needs a value"},
		{"missing scope column", Config{Table: "phones", Scope: scope.Field("owner")}, "not found"},
		{"bad fixed scope", Config{Table: "phones", Scope: scope.Fixed("contact_id = ?")}, "placeholders"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(ctx, s, tt.cfg, WithLogger(quietLogger()))
			require.Error(t, err)
			assert.True(t, IsInvalidConfig(err), "got %v", err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestCreate_EmptyScopeIsFirstAndLast(t *testing.T) {
	s := newTestStore(t)
	m := newPhones(t, s)
	ctx := context.Background()

	recs := createPhones(t, m, ir.IRInt(1), "A")
	a := recs[0]

	require.NotNil(t, a.Position)
	assert.Equal(t, int64(1), *a.Position)
	assert.True(t, a.Persisted())
	assert.True(t, m.IsFirst(a))
	last, err := m.IsLast(ctx, a)
	require.NoError(t, err)
	assert.True(t, last)
}

func TestCreate_AppendsToBottom(t *testing.T) {
	s := newTestStore(t)
	m := newPhones(t, s)

	recs := createPhones(t, m, ir.IRInt(1), "A", "B", "C")

	assert.Equal(t, []string{"A@1", "B@2", "C@3"}, listOf(t, m, recs[0]))
	for i, rec := range recs {
		assert.Equal(t, int64(i+1), rec.ID)
		assert.Equal(t, int64(i+1), *storedPosition(t, m, rec))
	}
}

func TestCreate_ExplicitPositionIsKept(t *testing.T) {
	s := newTestStore(t)
	m := newPhones(t, s)
	ctx := context.Background()

	rec := ir.NewRecord(ir.IRObject{"contact_id": ir.IRInt(1), "number": ir.IRString("A")})
	rec.SetPosition(ir.Int64(1))
	require.NoError(t, m.Create(ctx, rec))

	assert.Equal(t, int64(1), *storedPosition(t, m, rec))
}

func TestCreate_RejectsNonPositivePosition(t *testing.T) {
	s := newTestStore(t)
	m := newPhones(t, s)
	ctx := context.Background()

	for _, p := range []int64{0, -3} {
		rec := ir.NewRecord(ir.IRObject{"contact_id": ir.IRInt(1)})
		rec.SetPosition(ir.Int64(p))

		err := m.Create(ctx, rec)
		require.Error(t, err)
		assert.True(t, IsValidationError(err))
		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "position", ve.Field)
		assert.False(t, rec.Persisted())
	}

	var count int
	require.NoError(t, s.DB().QueryRow("SELECT COUNT(*) FROM phones").Scan(&count))
	assert.Zero(t, count, "no row may be written for a rejected position")
}

func TestCreate_UnknownColumnRollsBack(t *testing.T) {
	s := newTestStore(t)
	m := newPhones(t, s)
	ctx := context.Background()

	rec := ir.NewRecord(ir.IRObject{"contact_id": ir.IRInt(1), "colour": ir.IRString("red")})
	err := m.Create(ctx, rec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "colour")
	assert.Nil(t, rec.Position, "position must be restored after a failed create")
	assert.False(t, rec.Persisted())
}

func TestOperations_RequirePersistedRecord(t *testing.T) {
	s := newTestStore(t)
	m := newPhones(t, s)
	ctx := context.Background()
	rec := ir.NewRecord(ir.IRObject{"contact_id": ir.IRInt(1)})

	ops := map[string]func() error{
		OpInsertAtBottom:    func() error { return m.InsertAtBottom(ctx, rec) },
		OpInsertAtTop:       func() error { return m.InsertAtTop(ctx, rec) },
		OpInsertAt:          func() error { return m.InsertAt(ctx, rec, 1) },
		OpMoveHigher:        func() error { return m.MoveHigher(ctx, rec) },
		OpMoveLower:         func() error { return m.MoveLower(ctx, rec) },
		OpMoveToTop:         func() error { return m.MoveToTop(ctx, rec) },
		OpMoveToBottom:      func() error { return m.MoveToBottom(ctx, rec) },
		OpRemove:            func() error { return m.Remove(ctx, rec) },
		OpIncrementPosition: func() error { return m.IncrementPosition(ctx, rec) },
		OpDecrementPosition: func() error { return m.DecrementPosition(ctx, rec) },
		OpDestroy:           func() error { return m.Destroy(ctx, rec) },
		"reload":            func() error { return m.Reload(ctx, rec) },
	}
	for name, fn := range ops {
		t.Run(name, func(t *testing.T) {
			err := fn()
			require.Error(t, err)
			assert.True(t, IsNotPersisted(err), "got %v", err)
		})
	}
}

func TestOperations_MissingRow(t *testing.T) {
	s := newTestStore(t)
	m := newPhones(t, s)
	ctx := context.Background()

	rec := &ir.Record{ID: 999, Fields: ir.IRObject{"contact_id": ir.IRInt(1)}}
	err := m.MoveHigher(ctx, rec)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	var le *ListError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, OpMoveHigher, le.Op)
	assert.Equal(t, int64(999), le.ID)
}

func TestLogging_OpIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var buf syncBuffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	m := newPhones(t, s, WithLogger(logger), WithOpIDGenerator(NewFixedGenerator("op-1", "op-2", "op-3")))

	recs := createPhones(t, m, ir.IRInt(1), "A")
	require.NoError(t, m.MoveHigher(ctx, recs[0]))
	require.NoError(t, m.Remove(ctx, recs[0]))

	out := buf.String()
	assert.Contains(t, out, `"msg":"list operation","table":"phones","op":"create","op_id":"op-1"`)
	assert.Contains(t, out, `"op":"move_higher","op_id":"op-2","id":1,"reason":"no neighbour"`)
	assert.Contains(t, out, `"op":"remove","op_id":"op-3","id":1,"position":"NULL","shifted":0`)
}

func TestLogging_ScopeFallbackWarns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var buf syncBuffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	m, err := New(ctx, s, Config{Table: "phones", Scope: scope.Field("  ")}, WithLogger(logger))
	require.NoError(t, err)

	recs := createPhones(t, m, ir.IRInt(1), "A")
	createPhones(t, m, ir.IRInt(2), "B")

	assert.Contains(t, buf.String(), "scope fell back to whole table")
	// The whole table is one list.
	assert.Equal(t, []string{"A@1", "B@2"}, listOf(t, m, recs[0]))
}

func TestMetrics_Observations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	rm := &recordingMetrics{}
	m := newPhones(t, s, WithMetrics(rm))

	recs := createPhones(t, m, ir.IRInt(1), "A", "B", "C")
	require.NoError(t, m.MoveToTop(ctx, recs[2]))
	require.NoError(t, m.MoveHigher(ctx, recs[2]))
	require.NoError(t, m.MoveLower(ctx, recs[2]))
	require.Error(t, m.InsertAt(ctx, recs[0], 0))

	assert.Equal(t, []observation{
		{OpCreate, "ok", 0},
		{OpCreate, "ok", 0},
		{OpCreate, "ok", 0},
		{OpMoveToTop, "ok", 2},
		{OpMoveHigher, "noop", 0},
		{OpMoveLower, "ok", 1},
		{OpInsertAt, "error", 0},
	}, rm.obs)
}

// syncBuffer is a bytes.Buffer safe for concurrent log writes.
type syncBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}

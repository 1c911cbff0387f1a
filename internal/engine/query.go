package engine

import (
	"context"
	"slices"

	sq "github.com/Masterminds/squirrel"

	"github.com/roach88/ranklist/internal/ir"
	"github.com/roach88/ranklist/internal/queryir"
	"github.com/roach88/ranklist/internal/querysql"
	"github.com/roach88/ranklist/internal/store"
)

// Read-only queries. They run outside a transaction against the store's
// connection pool and use the record's in-memory position; call Reload
// first when it may be stale.

func (m *Manager) reader(name string, rec *ir.Record) *op {
	return &op{m: m, name: name, rec: rec, q: m.store.DB(), scope: m.ScopeFor(rec)}
}

// InList reports whether rec holds a position.
func (m *Manager) InList(rec *ir.Record) bool {
	return rec.InList()
}

// BottomPosition returns the highest position in rec's list, or 0 when the
// list is empty.
func (m *Manager) BottomPosition(ctx context.Context, rec *ir.Record) (int64, error) {
	o := m.reader("bottom_position", rec)
	bottom, err := o.bottom(ctx, 0)
	if err != nil {
		return 0, o.wrap(err)
	}
	return bottom, nil
}

// HigherItem returns the row directly above rec, or nil when rec is first
// or not in the list.
func (m *Manager) HigherItem(ctx context.Context, rec *ir.Record) (*ir.Record, error) {
	return m.neighbour(ctx, "higher_item", rec, -1)
}

// LowerItem returns the row directly below rec, or nil when rec is last or
// not in the list.
func (m *Manager) LowerItem(ctx context.Context, rec *ir.Record) (*ir.Record, error) {
	return m.neighbour(ctx, "lower_item", rec, +1)
}

func (m *Manager) neighbour(ctx context.Context, name string, rec *ir.Record, dir int64) (*ir.Record, error) {
	if !rec.InList() {
		return nil, nil
	}
	o := m.reader(name, rec)
	other, err := o.at(ctx, rec.PositionValue()+dir)
	if err != nil {
		return nil, o.wrap(err)
	}
	return other, nil
}

// IsFirst reports whether rec is at position 1.
func (m *Manager) IsFirst(rec *ir.Record) bool {
	return rec.InList() && rec.PositionValue() == 1
}

// IsLast reports whether rec holds the bottom position of its list.
func (m *Manager) IsLast(ctx context.Context, rec *ir.Record) (bool, error) {
	if !rec.InList() {
		return false, nil
	}
	bottom, err := m.BottomPosition(ctx, rec)
	if err != nil {
		return false, err
	}
	return rec.PositionValue() == bottom, nil
}

// Items returns the rows of rec's list ordered by position. Rows outside
// the list are not included.
func (m *Manager) Items(ctx context.Context, rec *ir.Record) ([]*ir.Record, error) {
	o := m.reader("items", rec)
	items, err := o.items(ctx)
	if err != nil {
		return nil, o.wrap(err)
	}
	return items, nil
}

func (o *op) items(ctx context.Context) ([]*ir.Record, error) {
	cfg := o.m.cfg
	where, err := o.where(queryir.NotNull{Field: cfg.Column})
	if err != nil {
		return nil, err
	}
	rows, err := store.Query(ctx, o.q, o.m.store.Builder().
		Select("*").
		From(cfg.Table).
		Where(where).
		OrderBy(cfg.Column, cfg.PrimaryKey))
	if err != nil {
		return nil, err
	}
	return o.m.toRecords(rows)
}

// Load reads the row with primary key id. Returns a ListError with
// ErrCodeRowNotFound when there is no such row, or when it belongs to
// another kind.
func (m *Manager) Load(ctx context.Context, id int64) (*ir.Record, error) {
	o := &op{m: m, name: "load", rec: &ir.Record{ID: id}, q: m.store.DB()}
	where := sq.And{sq.Eq{m.cfg.PrimaryKey: id}}
	if m.cfg.Kind != nil {
		v, err := ir.Native(m.cfg.Kind.Value)
		if err != nil {
			return nil, o.wrap(err)
		}
		where = append(where, sq.Eq{m.cfg.Kind.Column: v})
	}
	row, err := store.QueryOne(ctx, o.q, m.store.Builder().
		Select("*").
		From(m.cfg.Table).
		Where(where))
	if err != nil {
		return nil, o.wrap(err)
	}
	if row == nil {
		return nil, &ListError{Code: ErrCodeRowNotFound, Op: "load", Table: m.cfg.Table, ID: id}
	}
	rec, err := m.toRecord(row)
	if err != nil {
		return nil, o.wrap(err)
	}
	return rec, nil
}

// Reload refreshes rec's position and fields from the store.
func (m *Manager) Reload(ctx context.Context, rec *ir.Record) error {
	if !rec.Persisted() {
		return &ListError{Code: ErrCodeNotPersisted, Op: "reload", Table: m.cfg.Table}
	}
	fresh, err := m.Load(ctx, rec.ID)
	if err != nil {
		return err
	}
	rec.SetPosition(fresh.Position)
	rec.Fields = fresh.Fields
	return nil
}

// Check verifies that the positions of rec's list are exactly 1..N.
// It returns a ContiguityError describing any gap or duplicate.
func (m *Manager) Check(ctx context.Context, rec *ir.Record) error {
	o := m.reader("check", rec)
	items, err := o.items(ctx)
	if err != nil {
		return o.wrap(err)
	}

	positions := make([]int64, len(items))
	for i, it := range items {
		positions[i] = it.PositionValue()
	}
	cerr := contiguity(positions)
	if cerr == nil {
		return nil
	}
	cerr.Table = m.cfg.Table
	if s, _, err := querysql.ToSQL(o.scope); err == nil {
		cerr.Scope = s
	}
	return cerr
}

// contiguity returns nil when positions is a permutation of 1..len.
func contiguity(positions []int64) *ContiguityError {
	n := int64(len(positions))
	seen := make(map[int64]int, len(positions))
	for _, p := range positions {
		seen[p]++
	}

	e := &ContiguityError{Count: len(positions)}
	for p := int64(1); p <= n; p++ {
		if seen[p] == 0 {
			e.Missing = append(e.Missing, p)
		}
	}
	for p, c := range seen {
		if c > 1 {
			e.Duplicates = append(e.Duplicates, p)
		}
		if p < 1 || p > n {
			e.OutOfRange = append(e.OutOfRange, p)
		}
	}
	if len(e.Missing) == 0 && len(e.Duplicates) == 0 && len(e.OutOfRange) == 0 {
		return nil
	}
	slices.Sort(e.Duplicates)
	slices.Sort(e.OutOfRange)
	return e
}

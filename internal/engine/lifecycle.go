package engine

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/roach88/ranklist/internal/ir"
	"github.com/roach88/ranklist/internal/store"
)

// Lifecycle hooks. A caller that inserts and deletes rows itself calls
// OnCreate before the INSERT and OnDestroy before the DELETE, passing the
// transaction it uses for that statement. Create and Destroy do both in one
// transaction of their own.

// OnCreate assigns rec the position after the bottom of its list when it
// has none. An explicit position is validated and kept as is.
//
// q should be the transaction the row will be inserted with, so the
// bottom read and the insert are serialised with other writers.
func (m *Manager) OnCreate(ctx context.Context, q store.Querier, rec *ir.Record) error {
	if err := m.validatePosition(rec.Position); err != nil {
		m.metrics.ObserveOperation(OpOnCreate, "error", 0, 0)
		return err
	}
	m.applyKind(rec)

	o := m.newOp(OpOnCreate, rec)
	o.q = q
	if rec.Position != nil {
		o.skip("position supplied")
		return o.finish(nil)
	}
	if err := o.lock(ctx); err != nil {
		return o.finish(err)
	}
	return o.finish(o.assignBottom(ctx))
}

// OnDestroy closes the gap rec leaves in its list. The stored position is
// re-read through q, so a record already taken out with Remove (or already
// deleted) is not shifted again. rec's position is left untouched.
func (m *Manager) OnDestroy(ctx context.Context, q store.Querier, rec *ir.Record) error {
	if !rec.Persisted() {
		m.metrics.ObserveOperation(OpOnDestroy, "error", 0, 0)
		return &ListError{Code: ErrCodeNotPersisted, Op: OpOnDestroy, Table: m.cfg.Table}
	}
	o := m.newOp(OpOnDestroy, rec)
	o.q = q
	if err := o.lock(ctx); err != nil {
		return o.finish(err)
	}
	return o.finish(o.releaseSlot(ctx))
}

// Create inserts rec into the table, giving it the bottom position of its
// list when it has none. rec.ID is set from the generated key.
func (m *Manager) Create(ctx context.Context, rec *ir.Record) error {
	if err := m.validatePosition(rec.Position); err != nil {
		m.metrics.ObserveOperation(OpCreate, "error", 0, 0)
		return err
	}
	m.applyKind(rec)

	o := m.newOp(OpCreate, rec)
	prev := rec.Position
	var id int64
	err := m.store.WithTx(ctx, func(tx *sql.Tx) error {
		o.q = tx
		if err := o.lock(ctx); err != nil {
			return err
		}
		if rec.Position == nil {
			if err := o.assignBottom(ctx); err != nil {
				return err
			}
		}
		insert, err := m.insertStatement(rec)
		if err != nil {
			return err
		}
		id, err = store.InsertReturning(ctx, tx, insert, m.cfg.PrimaryKey)
		return err
	})
	if err != nil {
		rec.Position = prev
		return o.finish(err)
	}
	rec.ID = id
	return o.finish(nil)
}

// Destroy deletes rec's row after closing the gap it leaves. Calling Remove
// first does not cause a second shift. rec's position is cleared.
func (m *Manager) Destroy(ctx context.Context, rec *ir.Record) error {
	if !rec.Persisted() {
		m.metrics.ObserveOperation(OpDestroy, "error", 0, 0)
		return &ListError{Code: ErrCodeNotPersisted, Op: OpDestroy, Table: m.cfg.Table}
	}
	o := m.newOp(OpDestroy, rec)
	err := m.store.WithTx(ctx, func(tx *sql.Tx) error {
		o.q = tx
		if err := o.lock(ctx); err != nil {
			return err
		}
		if err := o.releaseSlot(ctx); err != nil {
			return err
		}
		_, err := store.Exec(ctx, tx, m.store.Builder().
			Delete(m.cfg.Table).
			Where(sq.Eq{m.cfg.PrimaryKey: rec.ID}))
		return err
	})
	if err != nil {
		return o.finish(err)
	}
	rec.Position = nil
	return o.finish(nil)
}

// assignBottom sets the in-memory position of the op's record to bottom+1.
func (o *op) assignBottom(ctx context.Context) error {
	bottom, err := o.bottom(ctx, o.rec.ID)
	if err != nil {
		return err
	}
	o.rec.SetPosition(ir.Int64(bottom + 1))
	return nil
}

// releaseSlot closes the gap left by the op's record without touching the
// record's own row.
func (o *op) releaseSlot(ctx context.Context) error {
	cur, err := o.current(ctx)
	if IsNotFound(err) {
		o.skip("row not found")
		return nil
	}
	if err != nil {
		return err
	}
	if cur == nil {
		o.skip("not in list")
		return nil
	}
	return o.closeGap(ctx, *cur)
}

func (m *Manager) validatePosition(p *int64) error {
	if err := ValidatePosition(p); err != nil {
		if ve, ok := err.(*ValidationError); ok {
			return &ValidationError{Field: m.cfg.Column, Message: ve.Message}
		}
		return err
	}
	return nil
}

// applyKind stamps the list's discriminator on rec when it has none.
func (m *Manager) applyKind(rec *ir.Record) {
	if m.cfg.Kind == nil {
		return
	}
	if rec.Fields == nil {
		rec.Fields = ir.IRObject{}
	}
	if ir.IsNull(rec.Field(m.cfg.Kind.Column)) {
		rec.Fields[m.cfg.Kind.Column] = m.cfg.Kind.Value
	}
}

// insertStatement builds the INSERT for rec. The primary key is included
// only when rec already carries one.
func (m *Manager) insertStatement(rec *ir.Record) (sq.InsertBuilder, error) {
	cols := make([]string, 0, len(rec.Fields)+2)
	vals := make([]any, 0, len(rec.Fields)+2)

	if rec.ID != 0 {
		cols = append(cols, m.cfg.PrimaryKey)
		vals = append(vals, rec.ID)
	}
	for _, col := range rec.Fields.SortedKeys() {
		if col == m.cfg.PrimaryKey || col == m.cfg.Column {
			continue
		}
		if !m.schema.Has(col) {
			return sq.InsertBuilder{}, fmt.Errorf("column %q not found in %s", col, m.cfg.Table)
		}
		v, err := ir.Native(rec.Fields[col])
		if err != nil {
			return sq.InsertBuilder{}, fmt.Errorf("column %q: %w", col, err)
		}
		cols = append(cols, col)
		vals = append(vals, v)
	}
	cols = append(cols, m.cfg.Column)
	vals = append(vals, rec.PositionValue())

	return m.store.Builder().Insert(m.cfg.Table).Columns(cols...).Values(vals...), nil
}

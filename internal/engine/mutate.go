package engine

import (
	"context"

	"github.com/roach88/ranklist/internal/ir"
	"github.com/roach88/ranklist/internal/queryir"
)

// Every mutation below is one transaction: the scope lock, the read of the
// record's stored position, the bulk shift and the final assignment commit
// or roll back together. Shifts are single UPDATE statements over the scope
// plus a position range, never loops over loaded rows.
//
// Operations on a record outside its list (nil position) are no-ops unless
// noted, and return nil.

// InsertAtBottom appends rec to the end of its list. A record already in
// the list is moved to the bottom.
func (m *Manager) InsertAtBottom(ctx context.Context, rec *ir.Record) error {
	return m.run(ctx, OpInsertAtBottom, rec, func(ctx context.Context, o *op, cur *int64) (*int64, error) {
		if cur != nil {
			return o.moveToBottom(ctx, *cur)
		}
		bottom, err := o.bottom(ctx, rec.ID)
		if err != nil {
			return nil, err
		}
		pos := ir.Int64(bottom + 1)
		return pos, o.assign(ctx, rec.ID, pos)
	})
}

// InsertAtTop puts rec at position 1 and pushes every other row of the
// list down by one.
func (m *Manager) InsertAtTop(ctx context.Context, rec *ir.Record) error {
	return m.run(ctx, OpInsertAtTop, rec, func(ctx context.Context, o *op, cur *int64) (*int64, error) {
		return o.insertAt(ctx, cur, 1)
	})
}

// InsertAt puts rec at rank. Rows previously at or below rank move down by
// one and rows above it do not move. rec is first taken out of its current
// slot when it is in the list.
//
// rank must be at least 1. A rank past the end of the list is clamped to
// the position right after the last row.
func (m *Manager) InsertAt(ctx context.Context, rec *ir.Record, rank int64) error {
	if rank < 1 {
		m.metrics.ObserveOperation(OpInsertAt, "error", 0, 0)
		return &ValidationError{Field: "rank", Message: "must be greater than 0"}
	}
	return m.run(ctx, OpInsertAt, rec, func(ctx context.Context, o *op, cur *int64) (*int64, error) {
		return o.insertAt(ctx, cur, rank)
	})
}

func (o *op) insertAt(ctx context.Context, cur *int64, rank int64) (*int64, error) {
	id := o.rec.ID
	if cur != nil {
		if err := o.closeGap(ctx, *cur); err != nil {
			return nil, err
		}
	}
	bottom, err := o.bottom(ctx, id)
	if err != nil {
		return nil, err
	}
	if rank > bottom+1 {
		rank = bottom + 1
	}
	if err := o.shift(ctx, +1, o.position(queryir.OpGreaterEqual, rank), o.notID(id)); err != nil {
		return nil, err
	}
	pos := ir.Int64(rank)
	return pos, o.assign(ctx, id, pos)
}

// MoveHigher swaps rec with the row directly above it. It is a no-op when
// rec is first.
func (m *Manager) MoveHigher(ctx context.Context, rec *ir.Record) error {
	return m.run(ctx, OpMoveHigher, rec, func(ctx context.Context, o *op, cur *int64) (*int64, error) {
		return o.swap(ctx, cur, -1)
	})
}

// MoveLower swaps rec with the row directly below it. It is a no-op when
// rec is last.
func (m *Manager) MoveLower(ctx context.Context, rec *ir.Record) error {
	return m.run(ctx, OpMoveLower, rec, func(ctx context.Context, o *op, cur *int64) (*int64, error) {
		return o.swap(ctx, cur, +1)
	})
}

// swap exchanges positions with the neighbour at cur+dir.
func (o *op) swap(ctx context.Context, cur *int64, dir int64) (*int64, error) {
	if cur == nil {
		o.skip("not in list")
		return nil, nil
	}
	other, err := o.at(ctx, *cur+dir)
	if err != nil {
		return nil, err
	}
	if other == nil {
		o.skip("no neighbour")
		return cur, nil
	}
	if err := o.assign(ctx, other.ID, cur); err != nil {
		return nil, err
	}
	pos := ir.Int64(*cur + dir)
	if err := o.assign(ctx, o.rec.ID, pos); err != nil {
		return nil, err
	}
	o.shifted++
	return pos, nil
}

// MoveToTop moves rec to position 1. Rows that were above it move down by
// one.
func (m *Manager) MoveToTop(ctx context.Context, rec *ir.Record) error {
	return m.run(ctx, OpMoveToTop, rec, func(ctx context.Context, o *op, cur *int64) (*int64, error) {
		if cur == nil {
			o.skip("not in list")
			return nil, nil
		}
		if err := o.shift(ctx, +1, o.position(queryir.OpLess, *cur)); err != nil {
			return nil, err
		}
		pos := ir.Int64(1)
		return pos, o.assign(ctx, rec.ID, pos)
	})
}

// MoveToBottom moves rec to the last position. Rows that were below it
// move up by one.
func (m *Manager) MoveToBottom(ctx context.Context, rec *ir.Record) error {
	return m.run(ctx, OpMoveToBottom, rec, func(ctx context.Context, o *op, cur *int64) (*int64, error) {
		if cur == nil {
			o.skip("not in list")
			return nil, nil
		}
		return o.moveToBottom(ctx, *cur)
	})
}

func (o *op) moveToBottom(ctx context.Context, cur int64) (*int64, error) {
	if err := o.closeGap(ctx, cur); err != nil {
		return nil, err
	}
	bottom, err := o.bottom(ctx, o.rec.ID)
	if err != nil {
		return nil, err
	}
	pos := ir.Int64(bottom + 1)
	return pos, o.assign(ctx, o.rec.ID, pos)
}

// Remove takes rec out of its list: rows below it move up by one and its
// position becomes NULL. The row itself is kept.
//
// Removing a record that is not in the list does nothing, which is what
// makes a later Destroy safe: the gap is closed exactly once.
func (m *Manager) Remove(ctx context.Context, rec *ir.Record) error {
	return m.run(ctx, OpRemove, rec, func(ctx context.Context, o *op, cur *int64) (*int64, error) {
		if cur == nil {
			o.skip("not in list")
			return nil, nil
		}
		if err := o.closeGap(ctx, *cur); err != nil {
			return nil, err
		}
		return nil, o.assign(ctx, rec.ID, nil)
	})
}

// closeGap moves every row below pos up by one.
func (o *op) closeGap(ctx context.Context, pos int64) error {
	return o.shift(ctx, -1, o.position(queryir.OpGreater, pos))
}

// IncrementPosition adds one to rec's position and touches no other row.
// It is a building block: on its own it breaks contiguity.
func (m *Manager) IncrementPosition(ctx context.Context, rec *ir.Record) error {
	return m.run(ctx, OpIncrementPosition, rec, func(ctx context.Context, o *op, cur *int64) (*int64, error) {
		return o.nudge(ctx, cur, +1)
	})
}

// DecrementPosition subtracts one from rec's position and touches no other
// row. It is a building block: on its own it breaks contiguity. A row at
// position 1 is left alone, since 0 is not a valid position.
func (m *Manager) DecrementPosition(ctx context.Context, rec *ir.Record) error {
	return m.run(ctx, OpDecrementPosition, rec, func(ctx context.Context, o *op, cur *int64) (*int64, error) {
		if cur != nil && *cur <= 1 {
			o.skip("already at position 1")
			return cur, nil
		}
		return o.nudge(ctx, cur, -1)
	})
}

func (o *op) nudge(ctx context.Context, cur *int64, delta int64) (*int64, error) {
	if cur == nil {
		o.skip("not in list")
		return nil, nil
	}
	pos := ir.Int64(*cur + delta)
	return pos, o.assign(ctx, o.rec.ID, pos)
}

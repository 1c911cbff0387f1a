package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/roach88/ranklist/internal/ir"
	"github.com/roach88/ranklist/internal/queryir"
	"github.com/roach88/ranklist/internal/querysql"
	"github.com/roach88/ranklist/internal/store"
)

// Operation names, as they appear in logs, metrics and errors.
const (
	OpInsertAtBottom    = "insert_at_bottom"
	OpInsertAtTop       = "insert_at_top"
	OpInsertAt          = "insert_at"
	OpMoveHigher        = "move_higher"
	OpMoveLower         = "move_lower"
	OpMoveToTop         = "move_to_top"
	OpMoveToBottom      = "move_to_bottom"
	OpRemove            = "remove"
	OpIncrementPosition = "increment_position"
	OpDecrementPosition = "decrement_position"
	OpCreate            = "create"
	OpDestroy           = "destroy"
	OpOnCreate          = "on_create"
	OpOnDestroy         = "on_destroy"
)

// op is one logical operation on one list. The scope is resolved once when
// the op is created and reused by every statement it issues.
type op struct {
	m       *Manager
	name    string
	id      string
	rec     *ir.Record
	q       store.Querier
	scope   queryir.Predicate
	shifted int64
	reason  string
	start   time.Time
}

func (m *Manager) newOp(name string, rec *ir.Record) *op {
	return &op{
		m:     m,
		name:  name,
		id:    m.ids.Generate(),
		rec:   rec,
		scope: m.ScopeFor(rec),
		start: time.Now(),
	}
}

// run executes fn as one transaction on rec's list. fn receives the
// position currently stored for rec and returns the position rec ends up
// with; rec is updated only after commit.
func (m *Manager) run(
	ctx context.Context,
	name string,
	rec *ir.Record,
	fn func(ctx context.Context, o *op, cur *int64) (*int64, error),
) error {
	if !rec.Persisted() {
		err := &ListError{Code: ErrCodeNotPersisted, Op: name, Table: m.cfg.Table}
		m.metrics.ObserveOperation(name, "error", 0, 0)
		return err
	}

	o := m.newOp(name, rec)
	var pos *int64
	err := m.store.WithTx(ctx, func(tx *sql.Tx) error {
		o.q = tx
		if err := o.lock(ctx); err != nil {
			return err
		}
		cur, err := o.current(ctx)
		if err != nil {
			return err
		}
		pos, err = fn(ctx, o, cur)
		return err
	})
	if err != nil {
		return o.finish(err)
	}
	rec.SetPosition(pos)
	return o.finish(nil)
}

// skip marks the op as a no-op.
func (o *op) skip(reason string) {
	o.reason = reason
}

// finish logs the outcome, records metrics and wraps err.
func (o *op) finish(err error) error {
	elapsed := time.Since(o.start)
	attrs := []any{"op", o.name, "op_id", o.id, "id", recordID(o.rec)}

	switch {
	case err != nil:
		err = o.wrap(err)
		o.m.logger.Debug("list operation failed", append(attrs, "error", err)...)
		o.m.metrics.ObserveOperation(o.name, "error", 0, elapsed)
	case o.reason != "":
		o.m.logger.Debug("list operation skipped", append(attrs, "reason", o.reason)...)
		o.m.metrics.ObserveOperation(o.name, "noop", 0, elapsed)
	default:
		o.m.logger.Debug("list operation",
			append(attrs, "position", positionAttr(o.rec.Position), "shifted", o.shifted)...)
		o.m.metrics.ObserveOperation(o.name, "ok", o.shifted, elapsed)
	}
	return err
}

func (o *op) wrap(err error) error {
	var le *ListError
	var ve *ValidationError
	if errors.As(err, &le) || errors.As(err, &ve) {
		return err
	}
	return &ListError{Code: ErrCodeStore, Op: o.name, Table: o.m.cfg.Table, ID: recordID(o.rec), Err: err}
}

// lock serialises this op against other writers of the same list.
func (o *op) lock(ctx context.Context) error {
	key, err := querysql.Fingerprint(o.m.cfg.Table, o.scope)
	if err != nil {
		return fmt.Errorf("scope: %w", err)
	}
	return o.m.store.LockScope(ctx, o.q, key)
}

// where compiles the op's scope ANDed with extra conditions.
func (o *op) where(extra ...queryir.Predicate) (sq.Sqlizer, error) {
	preds := append([]queryir.Predicate{o.scope}, extra...)
	where, err := querysql.Compile(queryir.Conj(preds...))
	if err != nil {
		return nil, fmt.Errorf("scope: %w", err)
	}
	return where, nil
}

func (o *op) position(cmp queryir.CompareOp, v int64) queryir.Predicate {
	return queryir.Compare{Field: o.m.cfg.Column, Op: cmp, Value: ir.IRInt(v)}
}

func (o *op) notID(id int64) queryir.Predicate {
	return queryir.NotEquals{Field: o.m.cfg.PrimaryKey, Value: ir.IRInt(id)}
}

// current reads the position stored for the op's record.
func (o *op) current(ctx context.Context) (*int64, error) {
	cfg := o.m.cfg
	row, err := store.QueryOne(ctx, o.q, o.m.store.Builder().
		Select(cfg.Column).
		From(cfg.Table).
		Where(sq.Eq{cfg.PrimaryKey: o.rec.ID}))
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, &ListError{Code: ErrCodeRowNotFound, Op: o.name, Table: cfg.Table, ID: o.rec.ID}
	}
	switch p := row[cfg.Column].(type) {
	case ir.IRInt:
		return ir.Int64(int64(p)), nil
	case ir.IRNull:
		return nil, nil
	default:
		return nil, fmt.Errorf("position column %q is %T, want integer", cfg.Column, p)
	}
}

// shift adds delta to the position of every row in the list matching extra,
// in one statement.
func (o *op) shift(ctx context.Context, delta int64, extra ...queryir.Predicate) error {
	where, err := o.where(extra...)
	if err != nil {
		return err
	}
	col := o.m.cfg.Column
	expr := fmt.Sprintf("%s + %d", col, delta)
	if delta < 0 {
		expr = fmt.Sprintf("%s - %d", col, -delta)
	}
	n, err := store.Exec(ctx, o.q, o.m.store.Builder().
		Update(o.m.cfg.Table).
		Set(col, sq.Expr(expr)).
		Where(where))
	if err != nil {
		return err
	}
	if n > 0 {
		o.shifted += n
	}
	return nil
}

// assign sets one row's position. nil stores NULL.
func (o *op) assign(ctx context.Context, id int64, pos *int64) error {
	var val any
	if pos != nil {
		val = *pos
	}
	_, err := store.Exec(ctx, o.q, o.m.store.Builder().
		Update(o.m.cfg.Table).
		Set(o.m.cfg.Column, val).
		Where(sq.Eq{o.m.cfg.PrimaryKey: id}))
	return err
}

// bottom returns the highest position in the list, or 0 when it is empty.
// A non-zero except leaves that row out.
func (o *op) bottom(ctx context.Context, except int64) (int64, error) {
	cfg := o.m.cfg
	extra := []queryir.Predicate{queryir.NotNull{Field: cfg.Column}}
	if except != 0 {
		extra = append(extra, o.notID(except))
	}
	where, err := o.where(extra...)
	if err != nil {
		return 0, err
	}
	row, err := store.QueryOne(ctx, o.q, o.m.store.Builder().
		Select(cfg.Column).
		From(cfg.Table).
		Where(where).
		OrderBy(cfg.Column+" DESC").
		Limit(1))
	if err != nil {
		return 0, err
	}
	if row == nil {
		return 0, nil
	}
	p, ok := row[cfg.Column].(ir.IRInt)
	if !ok {
		return 0, fmt.Errorf("position column %q is %T, want integer", cfg.Column, row[cfg.Column])
	}
	return int64(p), nil
}

// at returns the row of the list holding pos, or nil.
func (o *op) at(ctx context.Context, pos int64) (*ir.Record, error) {
	cfg := o.m.cfg
	where, err := o.where(queryir.Equals{Field: cfg.Column, Value: ir.IRInt(pos)})
	if err != nil {
		return nil, err
	}
	row, err := store.QueryOne(ctx, o.q, o.m.store.Builder().
		Select("*").
		From(cfg.Table).
		Where(where).
		OrderBy(cfg.PrimaryKey).
		Limit(1))
	if err != nil || row == nil {
		return nil, err
	}
	return o.m.toRecord(row)
}

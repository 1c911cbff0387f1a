package engine

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/roach88/ranklist/internal/ir"
	"github.com/roach88/ranklist/internal/queryir"
	"github.com/roach88/ranklist/internal/scope"
	"github.com/roach88/ranklist/internal/store"
)

// Default column names.
const (
	DefaultColumn     = "position"
	DefaultPrimaryKey = "id"
)

// Config describes one ordered list: which table it lives in, which column
// holds the position and how rows are partitioned.
type Config struct {
	// Table is the backing table. Required.
	Table string

	// Column holds the 1-based position. Default "position".
	Column string

	// PrimaryKey is the integer key column. Default "id".
	PrimaryKey string

	// Scope partitions the table into independent lists. nil means the
	// whole table is one list.
	Scope scope.Spec

	// Kind restricts the list to one record kind of a table shared by
	// several kinds. It is ANDed into every resolved scope.
	Kind *Kind
}

// Kind is a discriminator column and the value rows of this list carry.
type Kind struct {
	Column string
	Value  ir.IRValue
}

// Metrics receives one observation per finished list operation.
// outcome is one of "ok", "noop" or "error".
type Metrics interface {
	ObserveOperation(op, outcome string, shifted int64, elapsed time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) ObserveOperation(string, string, int64, time.Duration) {}

// Manager runs list operations for one Config.
//
// A Manager holds no list state. Every operation re-reads what it needs
// from the store inside its own transaction, so a Manager is safe for
// concurrent use and several processes may share one table.
type Manager struct {
	store   *store.Store
	cfg     Config
	schema  scope.Schema
	logger  *slog.Logger
	metrics Metrics
	ids     OpIDGenerator
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithMetrics sets the metrics sink. Default: discard.
func WithMetrics(mt Metrics) Option {
	return func(m *Manager) {
		if mt != nil {
			m.metrics = mt
		}
	}
}

// WithOpIDGenerator sets the generator for operation IDs.
// Default: UUIDv7Generator.
func WithOpIDGenerator(g OpIDGenerator) Option {
	return func(m *Manager) {
		if g != nil {
			m.ids = g
		}
	}
}

// New creates a Manager for cfg, checking it against the table's columns.
//
// Returns a ListError with ErrCodeInvalidConfig when the table, the
// position column, the primary key, the kind column or a Field scope
// column is missing.
func New(ctx context.Context, s *store.Store, cfg Config, opts ...Option) (*Manager, error) {
	if cfg.Column == "" {
		cfg.Column = DefaultColumn
	}
	if cfg.PrimaryKey == "" {
		cfg.PrimaryKey = DefaultPrimaryKey
	}

	invalid := func(format string, args ...any) error {
		return &ListError{Code: ErrCodeInvalidConfig, Op: "new", Table: cfg.Table, Err: fmt.Errorf(format, args...)}
	}

	for _, ident := range []string{cfg.Table, cfg.Column, cfg.PrimaryKey} {
		if !queryir.ValidIdentifier(ident) {
			return nil, invalid("%q is not a valid identifier", ident)
		}
	}

	cols, err := s.Columns(ctx, cfg.Table)
	if err != nil {
		return nil, &ListError{Code: ErrCodeStore, Op: "new", Table: cfg.Table, Err: err}
	}
	if len(cols) == 0 {
		return nil, invalid("table not found")
	}
	schema := scope.NewSchema(cols...)

	if !schema.Has(cfg.Column) {
		return nil, invalid("position column %q not found", cfg.Column)
	}
	if !schema.Has(cfg.PrimaryKey) {
		return nil, invalid("primary key %q not found", cfg.PrimaryKey)
	}
	if cfg.Kind != nil {
		if !schema.Has(cfg.Kind.Column) {
			return nil, invalid("kind column %q not found", cfg.Kind.Column)
		}
		if ir.IsNull(cfg.Kind.Value) {
			return nil, invalid("kind %q needs a value", cfg.Kind.Column)
		}
	}
	if err := scope.Validate(cfg.Scope, schema); err != nil {
		return nil, invalid("%v", err)
	}

	m := &Manager{
		store:   s,
		cfg:     cfg,
		schema:  schema,
		logger:  slog.Default(),
		metrics: noopMetrics{},
		ids:     UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("table", cfg.Table)
	return m, nil
}

// Config returns the manager's configuration with defaults applied.
func (m *Manager) Config() Config {
	return m.cfg
}

// Columns returns the table's column names, sorted.
func (m *Manager) Columns() []string {
	cols := make([]string, 0, len(m.schema))
	for c := range m.schema {
		cols = append(cols, c)
	}
	slices.Sort(cols)
	return cols
}

// ScopeFor resolves the predicate selecting rec's list, including the
// kind discriminator.
func (m *Manager) ScopeFor(rec *ir.Record) queryir.Predicate {
	pred, resolved := scope.Resolve(rec, m.cfg.Scope, m.schema)
	if !resolved {
		m.logger.Warn("scope fell back to whole table",
			"scope", scope.Describe(m.cfg.Scope),
			"id", recordID(rec),
		)
	}
	if m.cfg.Kind != nil {
		pred = queryir.Conj(queryir.Equals{Field: m.cfg.Kind.Column, Value: m.cfg.Kind.Value}, pred)
	}
	return pred
}

// toRecord splits a table row into key, position and the remaining fields.
func (m *Manager) toRecord(row ir.IRObject) (*ir.Record, error) {
	rec := &ir.Record{Fields: make(ir.IRObject, len(row))}
	for col, v := range row {
		switch col {
		case m.cfg.PrimaryKey:
			id, ok := v.(ir.IRInt)
			if !ok {
				return nil, fmt.Errorf("primary key %q is %T, want integer", col, v)
			}
			rec.ID = int64(id)
		case m.cfg.Column:
			switch p := v.(type) {
			case ir.IRNull:
			case ir.IRInt:
				rec.SetPosition(ir.Int64(int64(p)))
			default:
				return nil, fmt.Errorf("position column %q is %T, want integer", col, v)
			}
		default:
			rec.Fields[col] = v
		}
	}
	return rec, nil
}

func (m *Manager) toRecords(rows []ir.IRObject) ([]*ir.Record, error) {
	out := make([]*ir.Record, 0, len(rows))
	for _, row := range rows {
		rec, err := m.toRecord(row)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func recordID(rec *ir.Record) int64 {
	if rec == nil {
		return 0
	}
	return rec.ID
}

func positionAttr(p *int64) any {
	if p == nil {
		return "NULL"
	}
	return *p
}

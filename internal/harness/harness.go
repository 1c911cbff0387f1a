package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/roach88/ranklist/internal/engine"
	"github.com/roach88/ranklist/internal/ir"
	"github.com/roach88/ranklist/internal/store"
	"github.com/roach88/ranklist/internal/testutil"
)

// Outcome of a step that returned no error.
const OutcomeOK = "ok"

// Error codes used in traces and expect clauses besides the engine's own
// ListError codes.
const (
	ErrCodeValidation = "VALIDATION"
	ErrCodeContiguity = "CONTIGUITY"
	ErrCodeUnknown    = "ERROR"
)

// Harness runs one scenario against a fresh in-memory database.
type Harness struct {
	store   *store.Store
	manager *engine.Manager
	ids     *recordingGenerator
	seq     testutil.Seq
	logger  *slog.Logger

	// known keeps the last loaded copy of every row, so steps on a row that
	// has since been destroyed still know its scope.
	known map[int64]*ir.Record
}

// Run executes a scenario and returns the result. The scenario's steps,
// expectations and assertions all run; failures are collected in the
// result. An error is returned only when the scenario cannot run at all.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	st, err := store.OpenSQLite(ctx, ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	schema := scenario.Schema
	if schema == "" {
		schema = testutil.PhonesSchema
	}
	if _, err := st.DB().ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	def, err := scenario.List.ListDef(scenario.Name)
	if err != nil {
		return nil, fmt.Errorf("invalid list: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ids := &recordingGenerator{next: engine.NewSequenceGenerator("op")}
	m, err := engine.New(ctx, st, def.EngineConfig(),
		engine.WithLogger(logger),
		engine.WithOpIDGenerator(ids))
	if err != nil {
		return nil, fmt.Errorf("invalid list: %w", err)
	}

	h := &Harness{
		store:   st,
		manager: m,
		ids:     ids,
		logger:  logger,
		known:   make(map[int64]*ir.Record),
	}

	for i, row := range scenario.Setup {
		rec, err := h.recordFromRow(row)
		if err != nil {
			return nil, fmt.Errorf("setup[%d]: %w", i, err)
		}
		if err := m.Create(ctx, rec); err != nil {
			return nil, fmt.Errorf("setup[%d]: %w", i, err)
		}
		h.remember(rec)
	}
	ids.take()

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
	}

	for _, msg := range h.EvaluateAssertions(ctx, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// executeStep runs one step, traces it and checks its expect clause.
// Operation errors are outcomes; only failures to observe the result are
// returned.
func (h *Harness) executeStep(ctx context.Context, index int, step Step, result *Result) error {
	ev := TraceEvent{Seq: h.seq.Next(), Op: step.Op, ID: step.ID, Rank: step.Rank}

	rec, err := h.target(ctx, step)
	if err != nil {
		return err
	}
	opErr := h.apply(ctx, step, rec)

	ev.OpID = h.ids.take()
	ev.ID = rec.ID
	ev.Outcome = OutcomeOK
	if opErr != nil {
		ev.Outcome = ErrorCode(opErr)
	}
	if rec.Position != nil {
		ev.Position = ir.Int64(*rec.Position)
	}

	items, err := h.manager.Items(ctx, rec)
	if err != nil {
		return fmt.Errorf("read list: %w", err)
	}
	ev.List = make([]string, len(items))
	listIDs := make([]int64, len(items))
	for i, it := range items {
		ev.List[i] = fmt.Sprintf("%d@%d", it.ID, it.PositionValue())
		listIDs[i] = it.ID
	}
	result.AddTrace(ev)

	if opErr == nil && step.Op != OpDestroy {
		h.remember(rec)
	}

	h.logger.Debug("scenario step",
		"step", index,
		"op", step.Op,
		"op_id", ev.OpID,
		"id", ev.ID,
		"outcome", ev.Outcome,
	)

	prefix := fmt.Sprintf("step %d (%s id=%d)", index, step.Op, ev.ID)
	exp := step.Expect
	if exp == nil {
		if opErr != nil {
			result.AddError(fmt.Sprintf("%s: unexpected error: %v", prefix, opErr))
		}
		return nil
	}

	if exp.Error != ev.Outcome && !(exp.Error == "" && ev.Outcome == OutcomeOK) {
		want := exp.Error
		if want == "" {
			want = OutcomeOK
		}
		result.AddError(fmt.Sprintf("%s: expected outcome %s, got %s", prefix, want, ev.Outcome))
	}
	if exp.Position != nil && (ev.Position == nil || *ev.Position != *exp.Position) {
		result.AddError(fmt.Sprintf("%s: expected position %d, got %s", prefix, *exp.Position, positionString(ev.Position)))
	}
	if exp.InList != nil && *exp.InList != (ev.Position != nil) {
		result.AddError(fmt.Sprintf("%s: expected in_list %t, got position %s", prefix, *exp.InList, positionString(ev.Position)))
	}
	if exp.List != nil && !slices.Equal(exp.List, listIDs) {
		result.AddError(fmt.Sprintf("%s: expected list %v, got %v", prefix, exp.List, listIDs))
	}
	return nil
}

// target returns the record a step operates on.
func (h *Harness) target(ctx context.Context, step Step) (*ir.Record, error) {
	if step.Op == OpCreate {
		return h.recordFromRow(step.Row)
	}
	rec, err := h.manager.Load(ctx, step.ID)
	if err == nil {
		return rec, nil
	}
	if !engine.IsNotFound(err) {
		return nil, err
	}
	if known, ok := h.known[step.ID]; ok {
		rec := known.Clone()
		rec.Position = nil
		return rec, nil
	}
	return &ir.Record{ID: step.ID, Fields: ir.IRObject{}}, nil
}

func (h *Harness) apply(ctx context.Context, step Step, rec *ir.Record) error {
	m := h.manager
	switch step.Op {
	case OpCreate:
		return m.Create(ctx, rec)
	case OpDestroy:
		return m.Destroy(ctx, rec)
	case OpReload:
		return m.Reload(ctx, rec)
	case OpInsertAt:
		return m.InsertAt(ctx, rec, step.Rank)
	case OpInsertAtTop:
		return m.InsertAtTop(ctx, rec)
	case OpInsertAtBottom:
		return m.InsertAtBottom(ctx, rec)
	case OpMoveHigher:
		return m.MoveHigher(ctx, rec)
	case OpMoveLower:
		return m.MoveLower(ctx, rec)
	case OpMoveToTop:
		return m.MoveToTop(ctx, rec)
	case OpMoveToBottom:
		return m.MoveToBottom(ctx, rec)
	case OpRemove:
		return m.Remove(ctx, rec)
	case OpIncrementPosition:
		return m.IncrementPosition(ctx, rec)
	case OpDecrementPosition:
		return m.DecrementPosition(ctx, rec)
	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}
}

// recordFromRow builds an unsaved record. "id" and the position column
// become the record's key and position.
func (h *Harness) recordFromRow(row Row) (*ir.Record, error) {
	cfg := h.manager.Config()
	rec := ir.NewRecord(nil)
	for _, k := range sortedRowKeys(row) {
		v, err := ir.FromAny(row[k])
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		switch k {
		case cfg.PrimaryKey:
			id, ok := v.(ir.IRInt)
			if !ok {
				return nil, fmt.Errorf("%s must be an integer", k)
			}
			rec.ID = int64(id)
		case cfg.Column:
			switch p := v.(type) {
			case ir.IRNull:
			case ir.IRInt:
				rec.SetPosition(ir.Int64(int64(p)))
			default:
				return nil, fmt.Errorf("%s must be an integer", k)
			}
		default:
			rec.Fields[k] = v
		}
	}
	return rec, nil
}

func (h *Harness) remember(rec *ir.Record) {
	if rec.Persisted() {
		h.known[rec.ID] = rec.Clone()
	}
}

// probe builds a record whose fields select a list.
func (h *Harness) probe(where Row) (*ir.Record, error) {
	fields, err := ir.NewIRObject(where)
	if err != nil {
		return nil, err
	}
	return ir.NewRecord(fields), nil
}

// ErrorCode maps an operation error to the code used in traces.
func ErrorCode(err error) string {
	var le *engine.ListError
	switch {
	case err == nil:
		return OutcomeOK
	case errors.As(err, &le):
		return string(le.Code)
	case engine.IsValidationError(err):
		return ErrCodeValidation
	case engine.IsContiguityError(err):
		return ErrCodeContiguity
	default:
		return ErrCodeUnknown
	}
}

// recordingGenerator remembers the last op ID handed to the engine so the
// trace can show which steps the engine assigned one to.
type recordingGenerator struct {
	next engine.OpIDGenerator
	last string
}

func (g *recordingGenerator) Generate() string {
	g.last = g.next.Generate()
	return g.last
}

func (g *recordingGenerator) take() string {
	id := g.last
	g.last = ""
	return id
}

func positionString(p *int64) string {
	if p == nil {
		return "NULL"
	}
	return fmt.Sprintf("%d", *p)
}

func sortedRowKeys(row Row) []string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

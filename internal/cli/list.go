package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/ranklist/internal/engine"
	"github.com/roach88/ranklist/internal/ir"
)

// ItemView is one row of a list.
type ItemView struct {
	ID       int64 `json:"id"`
	Position int64 `json:"position"`
}

// RecordView shows a row and the list it belongs to.
type RecordView struct {
	List     string     `json:"list"`
	Op       string     `json:"op,omitempty"`
	ID       int64      `json:"id"`
	Position *int64     `json:"position"`
	Higher   *int64     `json:"higher,omitempty"`
	Lower    *int64     `json:"lower,omitempty"`
	Items    []ItemView `json:"items"`
}

func (v *RecordView) String() string {
	var b strings.Builder
	if v.Op != "" {
		fmt.Fprintf(&b, "%s: ", v.Op)
	}
	fmt.Fprintf(&b, "%s id=%d ", v.List, v.ID)
	if v.Position == nil {
		b.WriteString("not in list")
	} else {
		fmt.Fprintf(&b, "position %d of %d", *v.Position, len(v.Items))
	}
	for _, it := range v.Items {
		mark := ""
		if it.ID == v.ID {
			mark = "  <"
		}
		fmt.Fprintf(&b, "\n  %3d. id=%d%s", it.Position, it.ID, mark)
	}
	return b.String()
}

// recordView reads rec's neighbours and list.
func (s *session) recordView(ctx context.Context, rec *ir.Record, op string) (*RecordView, error) {
	view := &RecordView{List: s.def.Name, Op: op, ID: rec.ID, Position: rec.Position}

	higher, err := s.manager.HigherItem(ctx, rec)
	if err != nil {
		return nil, err
	}
	if higher != nil {
		view.Higher = ir.Int64(higher.ID)
	}
	lower, err := s.manager.LowerItem(ctx, rec)
	if err != nil {
		return nil, err
	}
	if lower != nil {
		view.Lower = ir.Int64(lower.ID)
	}

	items, err := s.manager.Items(ctx, rec)
	if err != nil {
		return nil, err
	}
	view.Items = make([]ItemView, len(items))
	for i, it := range items {
		view.Items[i] = ItemView{ID: it.ID, Position: it.PositionValue()}
	}
	return view, nil
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <list> <id>",
		Short: "Show a row's position and its list",
		Example: `  ranklist show phones 3
  ranklist show phones 3 --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRecord(rootOpts, cmd, args, "", nil)
		},
	}
}

// Directions accepted by the move command.
var moveOps = map[string]string{
	"higher": engine.OpMoveHigher,
	"up":     engine.OpMoveHigher,
	"lower":  engine.OpMoveLower,
	"down":   engine.OpMoveLower,
	"top":    engine.OpMoveToTop,
	"bottom": engine.OpMoveToBottom,
}

// NewMoveCommand creates the move command.
func NewMoveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "move <list> <id> <higher|lower|top|bottom>",
		Short: "Move a row within its list",
		Long: `Move a row one step (higher, lower) or to an end (top, bottom) of its
list. Moving the first row higher or the last row lower changes nothing.
"up" and "down" are accepted for higher and lower.`,
		Example: `  ranklist move phones 3 top
  ranklist move phones 3 down`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			op, ok := moveOps[args[2]]
			if !ok {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid direction %q: want higher, lower, top or bottom", args[2]))
			}
			return withRecord(rootOpts, cmd, args[:2], op, func(ctx context.Context, m *engine.Manager, rec *ir.Record) error {
				switch op {
				case engine.OpMoveHigher:
					return m.MoveHigher(ctx, rec)
				case engine.OpMoveLower:
					return m.MoveLower(ctx, rec)
				case engine.OpMoveToTop:
					return m.MoveToTop(ctx, rec)
				default:
					return m.MoveToBottom(ctx, rec)
				}
			})
		},
	}
}

// NewInsertAtCommand creates the insert-at command.
func NewInsertAtCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "insert-at <list> <id> <rank>",
		Short: "Put a row at a position, shifting the rows below it",
		Long: `Put a row at rank, shifting the rows at and below rank down by one. A rank
past the bottom puts the row at the bottom. A row outside its list is
inserted.`,
		Example:       `  ranklist insert-at phones 4 2`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			rank, err := strconv.ParseInt(args[2], 10, 64)
			if err != nil {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid rank %q", args[2]))
			}
			return withRecord(rootOpts, cmd, args[:2], engine.OpInsertAt, func(ctx context.Context, m *engine.Manager, rec *ir.Record) error {
				return m.InsertAt(ctx, rec, rank)
			})
		},
	}
}

// NewRemoveCommand creates the remove command.
func NewRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <list> <id>",
		Short: "Take a row out of its list without deleting it",
		Long: `Take a row out of its list: its position becomes NULL and the rows below
it move up to close the gap. The row itself is kept.`,
		Example:       `  ranklist remove phones 2`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRecord(rootOpts, cmd, args, engine.OpRemove, func(ctx context.Context, m *engine.Manager, rec *ir.Record) error {
				return m.Remove(ctx, rec)
			})
		},
	}
}

// withRecord opens the list named by args[0], loads the row args[1],
// applies fn (when set) and prints the resulting view.
func withRecord(
	opts *RootOptions,
	cmd *cobra.Command,
	args []string,
	op string,
	fn func(ctx context.Context, m *engine.Manager, rec *ir.Record) error,
) error {
	ctx := commandContext(cmd)
	s, err := openSession(ctx, opts, cmd, args[0])
	if err != nil {
		return err
	}
	defer s.Close()

	rec, err := s.load(ctx, args[1])
	if err != nil {
		return err
	}
	if fn != nil {
		if err := fn(ctx, s.manager, rec); err != nil {
			return s.out.operationError(err)
		}
		s.out.VerboseLog("%s %s id=%d (op %s)", op, s.def.Name, rec.ID, s.ops.last)
	}

	view, err := s.recordView(ctx, rec, op)
	if err != nil {
		return s.out.operationError(err)
	}
	return s.out.SuccessWithOp(view, s.ops.last)
}

// CheckResult reports a list that holds exactly 1..N.
type CheckResult struct {
	List  string `json:"list"`
	ID    int64  `json:"id"`
	Count int    `json:"count"`
}

func (r CheckResult) String() string {
	return fmt.Sprintf("✓ %s: %d row(s) numbered 1..%d", r.List, r.Count, r.Count)
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check <list> <id>",
		Short: "Verify that a row's list is numbered 1..N",
		Long: `Verify that the list holding the given row is numbered 1..N with no gaps or
duplicates. Positions written outside ranklist are a common cause of
failures.

Exit codes:
  0 - The list is contiguous
  1 - Gaps, duplicates or out-of-range positions were found
  2 - Command error`,
		Example:       `  ranklist check phones 3`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(rootOpts, cmd, args)
		},
	}
}

func runCheck(opts *RootOptions, cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	s, err := openSession(ctx, opts, cmd, args[0])
	if err != nil {
		return err
	}
	defer s.Close()

	rec, err := s.load(ctx, args[1])
	if err != nil {
		return err
	}

	err = s.manager.Check(ctx, rec)
	var ce *engine.ContiguityError
	if errors.As(err, &ce) {
		if outErr := s.out.Error(ErrCodeContiguity, ce.Error(), ce); outErr != nil {
			return outErr
		}
		return WrapExitError(ExitFailure, "list is not contiguous", err)
	}
	if err != nil {
		return s.out.operationError(err)
	}

	items, err := s.manager.Items(ctx, rec)
	if err != nil {
		return s.out.operationError(err)
	}
	return s.out.Success(CheckResult{List: s.def.Name, ID: rec.ID, Count: len(items)})
}

package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/ranklist/internal/config"
	"github.com/roach88/ranklist/internal/engine"
	"github.com/roach88/ranklist/internal/ir"
	"github.com/roach88/ranklist/internal/store"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Database bool // also check every list against the database
}

// ListSummary describes one valid list definition.
type ListSummary struct {
	Name       string `json:"name"`
	Table      string `json:"table"`
	Column     string `json:"column"`
	PrimaryKey string `json:"primary_key"`
	Scope      string `json:"scope,omitempty"`
	Kind       string `json:"kind,omitempty"`
}

// ValidationIssue is one problem found in the definitions.
type ValidationIssue struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	List    string `json:"list,omitempty"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Lists  []ListSummary     `json:"lists"`
	Errors []ValidationIssue `json:"errors,omitempty"`
}

func (r ValidationResult) String() string {
	var b strings.Builder
	for _, l := range r.Lists {
		fmt.Fprintf(&b, "✓ %s: %s.%s", l.Name, l.Table, l.Column)
		if l.Scope != "" {
			fmt.Fprintf(&b, " scope %s", l.Scope)
		}
		if l.Kind != "" {
			fmt.Fprintf(&b, " kind %s", l.Kind)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "%d list(s) valid", len(r.Lists))
	return b.String()
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate [config-dir]",
		Short: "Validate CUE list definitions",
		Long: `Validate the CUE list definitions in a directory (default: --config).

Every file is unified with the list schema and every problem is reported,
not just the first. With --db each list is also checked against its table:
the table, position column, primary key, scope and kind columns must exist.

Exit codes:
  0 - All definitions are valid
  1 - One or more definitions are invalid
  2 - Command error (directory not found, no CUE files, etc.)`,
		Example: `  ranklist validate ./lists
  ranklist validate ./lists --db --dsn app.db`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := rootOpts.Config
			if len(args) == 1 {
				dir = args[0]
			}
			return runValidate(opts, dir, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Database, "db", false, "also check each list against the database")
	return cmd
}

func runValidate(opts *ValidateOptions, dir string, cmd *cobra.Command) error {
	out := newFormatter(opts.RootOptions, cmd)

	res, loadErrs := config.LoadDir(dir, config.LoadModeCollectAll)
	if res == nil {
		code, msg := config.ErrCodeGeneric, "failed to load definitions"
		if len(loadErrs) > 0 {
			msg = loadErrs[0].Error()
			var le *config.LoadError
			if errors.As(loadErrs[0], &le) {
				code, msg = le.Code, le.Message
			}
		}
		if err := out.Error(code, msg, nil); err != nil {
			return err
		}
		return NewExitError(ExitCommandError, msg)
	}
	out.VerboseLog("Found %d CUE file(s) in %s", res.FileCount, dir)

	result := ValidationResult{Lists: make([]ListSummary, 0, len(res.Lists))}
	for _, err := range loadErrs {
		result.Errors = append(result.Errors, issueFor(err))
	}
	for _, def := range res.Lists {
		out.VerboseLog("Validating list: %s", def.Name)
		result.Lists = append(result.Lists, summarize(def))
	}

	if opts.Database && len(res.Lists) > 0 {
		issues, err := checkAgainstDatabase(opts, cmd, res.Lists)
		if err != nil {
			return err
		}
		result.Errors = append(result.Errors, issues...)
	}

	result.Valid = len(result.Errors) == 0
	if !result.Valid {
		if out.Format == "json" {
			if err := out.Error(result.Errors[0].Code, fmt.Sprintf("%d invalid definition(s)", len(result.Errors)), result); err != nil {
				return err
			}
		} else {
			w := out.Writer
			for _, issue := range result.Errors {
				loc := ""
				if issue.File != "" {
					loc = fmt.Sprintf("%s:%d: ", issue.File, issue.Line)
				}
				fmt.Fprintf(w, "✗ %s[%s] %s\n", loc, issue.Code, issue.Message)
			}
		}
		return NewExitError(ExitFailure, fmt.Sprintf("%d invalid definition(s)", len(result.Errors)))
	}
	return out.Success(result)
}

// checkAgainstDatabase builds a manager for every list, which verifies the
// columns it names.
func checkAgainstDatabase(opts *ValidateOptions, cmd *cobra.Command, defs []config.ListDef) ([]ValidationIssue, error) {
	ctx := commandContext(cmd)
	st, err := store.Open(ctx, store.Options{Driver: store.Driver(opts.Driver), DSN: opts.DSN})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	logger := newLogger(cmd.ErrOrStderr(), opts.Verbose)
	var issues []ValidationIssue
	for _, def := range defs {
		if _, err := engine.New(ctx, st, def.EngineConfig(), engine.WithLogger(logger)); err != nil {
			issues = append(issues, ValidationIssue{
				Code:    string(engine.ErrCodeInvalidConfig),
				Message: err.Error(),
				List:    def.Name,
			})
		}
	}
	return issues, nil
}

func issueFor(err error) ValidationIssue {
	var le *config.LoadError
	if !errors.As(err, &le) {
		return ValidationIssue{Code: config.ErrCodeGeneric, Message: err.Error()}
	}
	issue := ValidationIssue{Code: le.Code, Message: le.Message}
	if le.Pos.IsValid() {
		issue.File = le.Pos.Filename()
		issue.Line = le.Pos.Line()
	}
	return issue
}

func summarize(def config.ListDef) ListSummary {
	cfg := def.EngineConfig()
	s := ListSummary{
		Name:       def.Name,
		Table:      def.Table,
		Column:     cfg.Column,
		PrimaryKey: cfg.PrimaryKey,
	}
	if s.Column == "" {
		s.Column = engine.DefaultColumn
	}
	if s.PrimaryKey == "" {
		s.PrimaryKey = engine.DefaultPrimaryKey
	}
	if sc := def.Scope; sc != nil {
		if sc.Field != "" {
			s.Scope = sc.Field
		} else {
			s.Scope = fmt.Sprintf("%q", sc.Predicate)
		}
	}
	if k := def.Kind; k != nil {
		s.Kind = fmt.Sprintf("%s=%s", k.Column, ir.String(k.Value))
	}
	return s
}

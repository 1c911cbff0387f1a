package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/ranklist/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool   // rewrite golden/<name>.golden from the current traces
	Filter string // glob over scenario names (file name without extension)
}

// ScenarioOutcome is the result of one scenario file.
type ScenarioOutcome struct {
	Name     string   `json:"name"`
	Pass     bool     `json:"pass"`
	Steps    int      `json:"steps"`
	Failures []string `json:"failures,omitempty"`
}

// TestSummary aggregates a test run.
type TestSummary struct {
	Scenarios []ScenarioOutcome `json:"scenarios"`
	Passed    int               `json:"passed"`
	Failed    int               `json:"failed"`
}

func (s *TestSummary) add(o ScenarioOutcome) {
	s.Scenarios = append(s.Scenarios, o)
	if o.Pass {
		s.Passed++
	} else {
		s.Failed++
	}
}

func (s *TestSummary) String() string {
	line := fmt.Sprintf("%d passed, %d failed (%d scenarios)", s.Passed, s.Failed, len(s.Scenarios))
	if s.Failed == 0 {
		return "✓ " + line
	}
	return "✗ " + line
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run ordering scenarios",
		Long: `Run the YAML ordering scenarios in a directory. Each one gets a fresh
in-memory SQLite database; its step expectations and final assertions are
checked, and its trace must match golden/<name>.golden when that file
exists.

Exit codes:
  0 - every scenario passed
  1 - at least one scenario failed
  2 - the directory or filter is unusable`,
		Example: `  ranklist test ./scenarios
  ranklist test ./scenarios --filter "null_*"
  ranklist test ./scenarios --update`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "rewrite golden files from the current traces")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "only run scenarios whose name matches this glob")

	return cmd
}

func runTests(opts *TestOptions, dir string, cmd *cobra.Command) error {
	out := newFormatter(opts.RootOptions, cmd)

	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return NewExitError(ExitCommandError, fmt.Sprintf("scenarios directory not found: %s", dir))
	}
	files, err := scenarioFiles(dir, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list scenarios", err)
	}

	// Progress lines would corrupt JSON output.
	progress := io.Discard
	if out.Format != "json" {
		progress = out.Writer
	}

	summary := &TestSummary{Scenarios: []ScenarioOutcome{}}
	for _, file := range files {
		o := runScenarioFile(file, opts.Update)
		summary.add(o)
		reportOutcome(progress, o, opts.Update)
	}

	if len(files) == 0 && out.Format != "json" {
		fmt.Fprintln(out.Writer, "No scenarios found.")
		return nil
	}
	if summary.Failed == 0 {
		return out.Success(summary)
	}

	msg := fmt.Sprintf("%d scenario(s) failed", summary.Failed)
	if out.Format == "json" {
		if err := out.Error(ErrCodeTestFailed, msg, summary); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(out.Writer, summary)
	}
	return NewExitError(ExitFailure, msg)
}

func reportOutcome(w io.Writer, o ScenarioOutcome, updated bool) {
	switch {
	case !o.Pass:
		fmt.Fprintf(w, "✗ %s\n", o.Name)
		for _, f := range o.Failures {
			fmt.Fprintf(w, "    %s\n", f)
		}
	case updated:
		fmt.Fprintf(w, "✓ %s (golden updated)\n", o.Name)
	default:
		fmt.Fprintf(w, "✓ %s\n", o.Name)
	}
}

// scenarioFiles returns the *.yaml and *.yml files directly inside dir, in
// name order. Subdirectories, golden/ included, are skipped.
func scenarioFiles(dir, filter string) ([]string, error) {
	if filter != "" {
		if _, err := filepath.Match(filter, ""); err != nil {
			return nil, fmt.Errorf("invalid filter %q: %w", filter, err)
		}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		name, ok := scenarioName(e)
		if !ok {
			continue
		}
		if filter != "" {
			if matched, _ := filepath.Match(filter, name); !matched {
				continue
			}
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	slices.Sort(files)
	return files, nil
}

func scenarioName(e os.DirEntry) (string, bool) {
	if e.IsDir() {
		return "", false
	}
	ext := filepath.Ext(e.Name())
	if ext != ".yaml" && ext != ".yml" {
		return "", false
	}
	return strings.TrimSuffix(e.Name(), ext), true
}

// runScenarioFile loads, runs and golden-checks one scenario.
func runScenarioFile(file string, update bool) ScenarioOutcome {
	o := ScenarioOutcome{Name: filepath.Base(file)}

	scenario, err := harness.LoadScenario(file)
	if err != nil {
		o.Failures = []string{fmt.Sprintf("failed to load scenario: %v", err)}
		return o
	}
	o.Name = scenario.Name
	o.Steps = len(scenario.Steps)

	result, err := harness.Run(scenario)
	if err != nil {
		o.Failures = []string{fmt.Sprintf("scenario could not run: %v", err)}
		return o
	}
	o.Failures = append(o.Failures, result.Errors...)

	snapshot, err := harness.Snapshot(scenario.Name, result.Trace)
	if err != nil {
		o.Failures = append(o.Failures, fmt.Sprintf("failed to render trace: %v", err))
		return o
	}
	path := goldenPath(file)

	if update {
		if err := writeGolden(path, snapshot); err != nil {
			o.Failures = append(o.Failures, err.Error())
		}
	} else if msg := compareGolden(path, snapshot); msg != "" {
		o.Failures = append(o.Failures, msg)
	}

	o.Pass = len(o.Failures) == 0
	return o
}

// goldenPath maps dir/name.yaml to dir/golden/name.golden.
func goldenPath(scenarioFile string) string {
	name := strings.TrimSuffix(filepath.Base(scenarioFile), filepath.Ext(scenarioFile))
	return filepath.Join(filepath.Dir(scenarioFile), "golden", name+".golden")
}

// compareGolden returns a failure message, or "" when the snapshot matches
// or there is no golden file.
func compareGolden(path string, snapshot []byte) string {
	want, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		return ""
	case err != nil:
		return fmt.Sprintf("failed to read golden file: %v", err)
	case !bytes.Equal(want, snapshot):
		return "trace does not match golden file (run with --update to regenerate)"
	}
	return ""
}

func writeGolden(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create golden directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write golden file: %w", err)
	}
	return nil
}

package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/ranklist/internal/config"
	"github.com/roach88/ranklist/internal/ir"
)

// Scenario is one ordering scenario: a table, a list definition over it,
// the rows that exist before the first step, the operations to run and the
// state expected afterwards.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario checks.
	Description string `yaml:"description"`

	// Schema is the DDL applied to the empty database. When empty the
	// phones table (id, contact_id, number, position) is created.
	Schema string `yaml:"schema,omitempty"`

	// List describes the ordering under test.
	List ListSpec `yaml:"list"`

	// Setup rows are created in order through the engine, so each one lands
	// at the bottom of its list unless it names a position.
	Setup []Row `yaml:"setup,omitempty"`

	// Steps are the operations under test.
	Steps []Step `yaml:"steps"`

	// Assertions are checked after the last step.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// ListSpec mirrors a CUE list definition.
type ListSpec struct {
	Table      string     `yaml:"table"`
	Column     string     `yaml:"column,omitempty"`
	PrimaryKey string     `yaml:"primary_key,omitempty"`
	Scope      *ScopeSpec `yaml:"scope,omitempty"`
	Kind       *KindSpec  `yaml:"kind,omitempty"`
}

// ScopeSpec holds exactly one of Field or Predicate.
type ScopeSpec struct {
	Field     string `yaml:"field,omitempty"`
	Predicate string `yaml:"predicate,omitempty"`
}

// KindSpec is a single-table-inheritance discriminator.
type KindSpec struct {
	Column string `yaml:"column"`
	Value  any    `yaml:"value"`
}

// Row is a set of column values. "id" and the position column are pulled
// out into the record; everything else becomes a field.
type Row map[string]any

// Step is one operation on one row.
type Step struct {
	// Op is one of the operation names in Ops.
	Op string `yaml:"op"`

	// ID is the primary key of the row to operate on. Unused by create.
	ID int64 `yaml:"id,omitempty"`

	// Rank is the target position for insert_at.
	Rank int64 `yaml:"rank,omitempty"`

	// Row holds the column values for create.
	Row Row `yaml:"row,omitempty"`

	// Expect is checked right after the step. Nil means the step must
	// succeed and nothing else is checked.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect describes the outcome of one step.
type Expect struct {
	// Error is the expected error code (see ErrorCode). Empty means success.
	Error string `yaml:"error,omitempty"`

	// Position is the record's position after the step.
	Position *int64 `yaml:"position,omitempty"`

	// InList false means the record must end up outside its list.
	InList *bool `yaml:"in_list,omitempty"`

	// List is the record's list after the step as primary keys in order.
	List []int64 `yaml:"list,omitempty"`
}

// Assertion checks final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Where selects the list by its scope columns (order, contiguous) or
	// filters the rows counted (count).
	Where Row `yaml:"where,omitempty"`

	// IDs is the expected order for order assertions.
	IDs []int64 `yaml:"ids,omitempty"`

	// ID and Position are used by position assertions. A nil Position
	// means the row must be outside its list.
	ID       int64  `yaml:"id,omitempty"`
	Position *int64 `yaml:"position,omitempty"`

	// Count is the expected row count for count assertions.
	Count *int `yaml:"count,omitempty"`
}

// Assertion types.
const (
	AssertOrder      = "order"
	AssertPosition   = "position"
	AssertContiguous = "contiguous"
	AssertCount      = "count"
)

// Step operations. The list operations use the engine's names.
const (
	OpCreate            = "create"
	OpDestroy           = "destroy"
	OpReload            = "reload"
	OpInsertAt          = "insert_at"
	OpInsertAtTop       = "insert_at_top"
	OpInsertAtBottom    = "insert_at_bottom"
	OpMoveHigher        = "move_higher"
	OpMoveLower         = "move_lower"
	OpMoveToTop         = "move_to_top"
	OpMoveToBottom      = "move_to_bottom"
	OpRemove            = "remove"
	OpIncrementPosition = "increment_position"
	OpDecrementPosition = "decrement_position"
)

// Ops lists every operation a step may name.
var Ops = []string{
	OpCreate, OpDestroy, OpReload,
	OpInsertAt, OpInsertAtTop, OpInsertAtBottom,
	OpMoveHigher, OpMoveLower, OpMoveToTop, OpMoveToBottom,
	OpRemove, OpIncrementPosition, OpDecrementPosition,
}

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected so typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// ListDef converts the list spec into a config definition.
func (l ListSpec) ListDef(name string) (config.ListDef, error) {
	def := config.ListDef{
		Name:       name,
		Table:      l.Table,
		Column:     l.Column,
		PrimaryKey: l.PrimaryKey,
	}
	if l.Scope != nil {
		def.Scope = &config.ScopeDef{Field: l.Scope.Field, Predicate: l.Scope.Predicate}
	}
	if l.Kind != nil {
		v, err := ir.FromAny(l.Kind.Value)
		if err != nil {
			return config.ListDef{}, fmt.Errorf("kind value: %w", err)
		}
		def.Kind = &config.KindDef{Column: l.Kind.Column, Value: v}
	}
	return def, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.List.Table == "" {
		return fmt.Errorf("list.table is required")
	}
	if sc := s.List.Scope; sc != nil && (sc.Field == "") == (sc.Predicate == "") {
		return fmt.Errorf("list.scope needs exactly one of field or predicate")
	}
	if k := s.List.Kind; k != nil && (k.Column == "" || k.Value == nil) {
		return fmt.Errorf("list.kind needs a column and a value")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if !knownOp(step.Op) {
			return fmt.Errorf("steps[%d]: unknown op %q", i, step.Op)
		}
		if step.Op == OpCreate {
			if step.Row == nil {
				return fmt.Errorf("steps[%d]: row is required for create", i)
			}
			continue
		}
		if step.ID == 0 {
			return fmt.Errorf("steps[%d]: id is required for %s", i, step.Op)
		}
		if step.Op != OpInsertAt && step.Rank != 0 {
			return fmt.Errorf("steps[%d]: rank is only valid for insert_at", i)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertOrder:
		if a.IDs == nil {
			return fmt.Errorf("assertions[%d]: ids is required for order (use [] for an empty list)", index)
		}
	case AssertPosition:
		if a.ID == 0 {
			return fmt.Errorf("assertions[%d]: id is required for position", index)
		}
	case AssertContiguous:
	case AssertCount:
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

func knownOp(op string) bool {
	for _, o := range Ops {
		if o == op {
			return true
		}
	}
	return false
}

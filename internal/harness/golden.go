package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/ranklist/internal/ir"
)

// GoldenDir is where trace snapshots live, relative to the test's package.
const GoldenDir = "testdata/golden"

// Snapshot renders a trace as canonical JSON. Keys are sorted, op IDs are
// the deterministic "op-N" sequence and positions outside a list are null,
// so two runs of one scenario produce identical bytes.
func Snapshot(name string, trace []TraceEvent) ([]byte, error) {
	events := make(ir.IRArray, len(trace))
	for i, ev := range trace {
		obj := ir.IRObject{
			"seq":     ir.IRInt(ev.Seq),
			"op":      ir.IRString(ev.Op),
			"id":      ir.IRInt(ev.ID),
			"outcome": ir.IRString(ev.Outcome),
		}
		if ev.OpID != "" {
			obj["op_id"] = ir.IRString(ev.OpID)
		}
		if ev.Rank != 0 {
			obj["rank"] = ir.IRInt(ev.Rank)
		}
		if ev.Position != nil {
			obj["position"] = ir.IRInt(*ev.Position)
		} else {
			obj["position"] = ir.IRNull{}
		}
		list := make(ir.IRArray, len(ev.List))
		for j, s := range ev.List {
			list[j] = ir.IRString(s)
		}
		obj["list"] = list
		events[i] = obj
	}
	return ir.MarshalCanonical(ir.IRObject{
		"scenario_name": ir.IRString(name),
		"trace":         events,
	})
}

// RunWithGolden executes a scenario and compares its trace with
// testdata/golden/{scenario.Name}.golden. Regenerate with
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result's trace with its golden file.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := Snapshot(name, result.Trace)
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir(GoldenDir),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}

package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/graphres/internal/ir"
)

// Snapshot captures the outcome of a scenario execution.
// All fields use canonical JSON serialization for deterministic comparison.
type Snapshot struct {
	ScenarioName string
	Edges        []EdgeOutcome
	Toolchain    *ToolchainOutcome
}

// toCanonicalMap converts a Snapshot to a map[string]any for canonical JSON serialization.
// This is required because ir.MarshalCanonical only handles IR types and primitives.
func (s *Snapshot) toCanonicalMap() map[string]any {
	edges := make([]any, len(s.Edges))
	for i, e := range s.Edges {
		m := map[string]any{
			"id":                 e.ID,
			"attribute_matching": e.AttributeMatching,
		}
		if e.Component != "" {
			m["component"] = e.Component
		}
		if e.Variants != nil {
			m["variants"] = e.Variants
		}
		if e.Cache != "" {
			m["cache"] = e.Cache
		}
		if e.Failure != "" {
			m["failure"] = e.Failure
		}
		if len(e.Steps) > 0 {
			steps := make([]any, len(e.Steps))
			for j, st := range e.Steps {
				sm := map[string]any{"step": st.Step, "kind": st.Kind}
				if st.Files != nil {
					sm["files"] = st.Files
				}
				steps[j] = sm
			}
			m["steps"] = steps
		}
		edges[i] = m
	}

	result := map[string]any{
		"scenario_name": s.ScenarioName,
		"edges":         edges,
	}
	if tc := s.Toolchain; tc != nil {
		tm := map[string]any{"no_match": tc.NoMatch}
		if tc.Location != "" {
			tm["location"] = tc.Location
		}
		if tc.Version != "" {
			tm["version"] = tc.Version
		}
		result["toolchain"] = tm
	}
	return result
}

// MarshalSnapshot renders the outcome of a scenario as canonical JSON.
// Context keys and failure messages are left out; the golden file records
// what was selected, not how it was hashed or worded.
func MarshalSnapshot(scenarioName string, result *Result) ([]byte, error) {
	s := Snapshot{ScenarioName: scenarioName, Edges: result.Edges, Toolchain: result.Toolchain}
	return ir.MarshalCanonical(s.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares its outcome against a
// golden file stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the outcome doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	return AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares the given result against a golden file.
// This is useful when you've already run a scenario and want to compare
// the result against a golden file without re-running.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := MarshalSnapshot(scenarioName, result)
	if err != nil {
		return err
	}

	// Compare with golden file using goldie
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)

	return nil
}

package harness

import (
	"fmt"
	"slices"
	"strings"
)

// ExpectationError is returned when an edge does not resolve as expected.
// It includes detailed context to help debug the failure.
type ExpectationError struct {
	Edge     string        // Edge id, or "toolchain"
	Field    string        // Expectation that failed
	Expected string        // Human-readable expected outcome
	Actual   string        // Human-readable actual outcome
	Edges    []EdgeOutcome // Every outcome for debugging context
}

// Error implements the error interface.
func (e *ExpectationError) Error() string {
	var buf strings.Builder

	// Header with the failing expectation
	fmt.Fprintf(&buf, "Expectation failed: %s %s\n", e.Edge, e.Field)

	// Expected vs Actual (most important info)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	// Every outcome for context
	if len(e.Edges) > 0 {
		fmt.Fprintf(&buf, "\nResolved edges:\n")
		for i, o := range e.Edges {
			if o.Failure != "" {
				fmt.Fprintf(&buf, "  [%d] %s failed: %s\n", i+1, o.ID, o.Failure)
				continue
			}
			fmt.Fprintf(&buf, "  [%d] %s -> %s %v\n", i+1, o.ID, o.Component, o.Variants)
		}
	}

	return buf.String()
}

// EvaluateExpectations checks every expectation of the scenario and
// returns one message per mismatch, in scenario order.
func EvaluateExpectations(result *Result, scenario *Scenario) []string {
	var errs []string
	for _, exp := range scenario.Edges {
		if err := assertEdge(result, exp); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if scenario.Toolchain != nil {
		if err := assertToolchain(result.Toolchain, *scenario.Toolchain); err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}

// assertEdge compares one edge outcome with its expectation.
// Only fields set in the expectation are compared.
func assertEdge(result *Result, exp EdgeExpectation) error {
	fail := func(field, expected, actual string) error {
		return &ExpectationError{Edge: exp.ID, Field: field, Expected: expected, Actual: actual, Edges: result.Edges}
	}

	got, ok := result.Edge(exp.ID)
	if !ok {
		return fail("id", "edge in model", "no such edge")
	}

	if exp.Failure != "" {
		if got.Failure == "" {
			return fail("failure", exp.Failure, "resolved to "+got.Component)
		}
		if got.Failure != exp.Failure {
			return fail("failure", exp.Failure, got.Failure)
		}
		if exp.Message != "" && !strings.Contains(got.Message, exp.Message) {
			return fail("message", fmt.Sprintf("containing %q", exp.Message), got.Message)
		}
		return nil
	}
	if got.Failure != "" {
		return fail("failure", "edge resolves", fmt.Sprintf("%s: %s", got.Failure, got.Message))
	}

	if exp.Component != "" && got.Component != exp.Component {
		return fail("component", exp.Component, got.Component)
	}
	if exp.Variants != nil && !slices.Equal(exp.Variants, got.Variants) {
		return fail("variants", fmt.Sprintf("%v", exp.Variants), fmt.Sprintf("%v", got.Variants))
	}
	if exp.AttributeMatching != nil && *exp.AttributeMatching != got.AttributeMatching {
		return fail("attribute_matching", fmt.Sprintf("%v", *exp.AttributeMatching), fmt.Sprintf("%v", got.AttributeMatching))
	}
	if exp.Cache != "" && exp.Cache != got.Cache {
		return fail("cache", exp.Cache, got.Cache)
	}
	if exp.Steps != nil {
		if len(exp.Steps) != len(got.Steps) {
			return fail("steps", fmt.Sprintf("%d step(s)", len(exp.Steps)), fmt.Sprintf("%d step(s)", len(got.Steps)))
		}
		for i, want := range exp.Steps {
			have := got.Steps[i]
			field := fmt.Sprintf("steps[%d]", i)
			if want.Step != have.Step || want.Kind != have.Kind {
				return fail(field, want.Step+" "+want.Kind, have.Step+" "+have.Kind)
			}
			if want.Kind == KindFiles && !slices.Equal(want.Files, have.Files) {
				return fail(field+".files", fmt.Sprintf("%v", want.Files), fmt.Sprintf("%v", have.Files))
			}
		}
	}
	return nil
}

// assertToolchain compares the toolchain selection with its expectation.
func assertToolchain(got *ToolchainOutcome, exp ToolchainExpectation) error {
	fail := func(field, expected, actual string) error {
		return &ExpectationError{Edge: "toolchain", Field: field, Expected: expected, Actual: actual}
	}
	if got == nil {
		return fail("selection", "a toolchain section", "model declares no toolchain")
	}
	if exp.NoMatch {
		if !got.NoMatch {
			return fail("no_match", "no matching installation", "selected "+got.Location)
		}
		return nil
	}
	if got.Error != "" {
		return fail("selection", "an installation", got.Error)
	}
	if exp.Location != "" && exp.Location != got.Location {
		return fail("location", exp.Location, got.Location)
	}
	if exp.Version != "" && exp.Version != got.Version {
		return fail("version", exp.Version, got.Version)
	}
	return nil
}

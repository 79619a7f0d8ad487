package harness

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/viant/afs"
	"github.com/viant/afs/url"
	"gopkg.in/yaml.v3"
)

// Scenario defines a resolution test scenario.
// A scenario names a build model and states what each dependency edge is
// expected to resolve to.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Model is a directory of CUE files, relative to the scenario file.
	Model string `yaml:"model,omitempty"`

	// Source is an inline CUE model. Exactly one of Model and Source is set.
	Source string `yaml:"source,omitempty"`

	// Passes is how many times the model is resolved against the same
	// store. Expectations apply to the last pass, so 2 observes cache hits.
	// Defaults to 1.
	Passes int `yaml:"passes,omitempty"`

	// Edges lists per-edge expectations.
	Edges []EdgeExpectation `yaml:"edges"`

	// Toolchain is the optional toolchain selection expectation.
	Toolchain *ToolchainExpectation `yaml:"toolchain,omitempty"`

	// baseURL is the directory the scenario was loaded from.
	baseURL string
}

// EdgeExpectation is what one dependency edge should resolve to.
// Only the fields that are set are checked.
type EdgeExpectation struct {
	// ID is the dependency id in the model.
	ID string `yaml:"id"`

	// Component is the expected selected component id.
	Component string `yaml:"component,omitempty"`

	// Variants are the expected selected variant names, in order.
	Variants []string `yaml:"variants,omitempty"`

	// AttributeMatching is the expected selection mode.
	AttributeMatching *bool `yaml:"attribute_matching,omitempty"`

	// Cache is the expected cache status (none, hit, miss, corrupt).
	Cache string `yaml:"cache,omitempty"`

	// Steps are the expected per-step dependencies, in pipeline order.
	Steps []StepExpectation `yaml:"steps,omitempty"`

	// Failure is the expected failure kind (e.g. "no-matching-variant").
	// An edge without Failure must resolve.
	Failure string `yaml:"failure,omitempty"`

	// Message is a substring the failure message must contain.
	Message string `yaml:"message,omitempty"`
}

// StepExpectation is the expected dependencies of one transform step.
type StepExpectation struct {
	Step  string   `yaml:"step"`
	Kind  string   `yaml:"kind"`
	Files []string `yaml:"files,omitempty"`
}

// ToolchainExpectation is the expected toolchain selection.
type ToolchainExpectation struct {
	Location string `yaml:"location,omitempty"`
	Version  string `yaml:"version,omitempty"`
	// NoMatch expects that no installation satisfies the request.
	NoMatch bool `yaml:"no_match,omitempty"`
}

// Step kinds.
const (
	KindNotRequired = "not-required"
	KindFiles       = "files"
)

// LoadScenario reads and parses a scenario YAML file.
// The path may be a local path or any URL viant/afs understands.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(location string) (*Scenario, error) {
	ctx := context.Background()
	fs := afs.New()

	data, err := fs.DownloadWithURL(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	if i := strings.LastIndex(location, "/"); i >= 0 {
		scenario.baseURL = location[:i]
	} else {
		scenario.baseURL = "."
	}

	if scenario.Model != "" {
		ok, err := fs.Exists(ctx, scenario.ModelURL())
		if err != nil {
			return nil, fmt.Errorf("invalid scenario: checking model: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("invalid scenario: model directory not found: %s", scenario.ModelURL())
		}
	}
	return scenario, nil
}

// ParseScenario parses scenario YAML. A Model directory is resolved
// against the current directory.
func ParseScenario(data []byte) (*Scenario, error) {
	// Parse YAML with strict field validation (catches typos like "edge:" vs "edges:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	if scenario.Passes == 0 {
		scenario.Passes = 1
	}
	return &scenario, nil
}

// ModelURL returns the model directory resolved against the scenario file.
func (s *Scenario) ModelURL() string {
	if s.Model == "" || s.baseURL == "" || path.IsAbs(s.Model) || strings.Contains(s.Model, "://") {
		return s.Model
	}
	return url.Join(s.baseURL, s.Model)
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	switch {
	case s.Model == "" && s.Source == "":
		return fmt.Errorf("one of model or source is required")
	case s.Model != "" && s.Source != "":
		return fmt.Errorf("model and source are mutually exclusive")
	}

	if s.Passes < 0 {
		return fmt.Errorf("passes must be positive")
	}

	if len(s.Edges) == 0 {
		return fmt.Errorf("edges list is required and must be non-empty")
	}

	seen := make(map[string]bool, len(s.Edges))
	for i, e := range s.Edges {
		if err := validateEdge(i, &e); err != nil {
			return err
		}
		if seen[e.ID] {
			return fmt.Errorf("edges[%d]: duplicate edge %q", i, e.ID)
		}
		seen[e.ID] = true
	}

	if tc := s.Toolchain; tc != nil && tc.NoMatch && (tc.Location != "" || tc.Version != "") {
		return fmt.Errorf("toolchain: no_match excludes location and version")
	}

	return nil
}

// validateEdge validates a single edge expectation.
func validateEdge(index int, e *EdgeExpectation) error {
	if e.ID == "" {
		return fmt.Errorf("edges[%d]: id is required", index)
	}

	if e.Failure != "" {
		if e.Component != "" || len(e.Variants) > 0 || e.AttributeMatching != nil || len(e.Steps) > 0 || e.Cache != "" {
			return fmt.Errorf("edges[%d]: a failing edge expects only failure and message", index)
		}
		return nil
	}
	if e.Message != "" {
		return fmt.Errorf("edges[%d]: message needs failure", index)
	}

	switch e.Cache {
	case "", "none", "hit", "miss", "corrupt":
	default:
		return fmt.Errorf("edges[%d]: unknown cache status %q", index, e.Cache)
	}

	for j, st := range e.Steps {
		if st.Step == "" {
			return fmt.Errorf("edges[%d].steps[%d]: step is required", index, j)
		}
		switch st.Kind {
		case KindNotRequired:
			if len(st.Files) > 0 {
				return fmt.Errorf("edges[%d].steps[%d]: not-required step has no files", index, j)
			}
		case KindFiles:
		default:
			return fmt.Errorf("edges[%d].steps[%d]: unknown kind %q", index, j, st.Kind)
		}
	}
	return nil
}

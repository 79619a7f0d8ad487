package harness

// StepOutcome is the resolved dependencies of one transform step.
type StepOutcome struct {
	Step  string   `json:"step"`
	Kind  string   `json:"kind"`
	Files []string `json:"files,omitempty"`
}

// EdgeOutcome is what one dependency edge resolved to on the last pass.
type EdgeOutcome struct {
	ID                string        `json:"id"`
	Component         string        `json:"component,omitempty"`
	Variants          []string      `json:"variants,omitempty"`
	AttributeMatching bool          `json:"attribute_matching"`
	Cache             string        `json:"cache,omitempty"`
	ContextKey        string        `json:"context_key,omitempty"`
	Steps             []StepOutcome `json:"steps,omitempty"`
	Failure           string        `json:"failure,omitempty"`
	Message           string        `json:"message,omitempty"`
}

// ToolchainOutcome is the toolchain selection of the model, if it has one.
type ToolchainOutcome struct {
	Location string `json:"location,omitempty"`
	Version  string `json:"version,omitempty"`
	Error    string `json:"error,omitempty"`
	NoMatch  bool   `json:"no_match,omitempty"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every expectation matches.
	Pass bool `json:"pass"`

	// Edges contains every edge outcome in model order.
	// Used for expectations and golden comparison.
	Edges []EdgeOutcome `json:"edges"`

	// Toolchain is set when the model declares a toolchain.
	Toolchain *ToolchainOutcome `json:"toolchain,omitempty"`

	// Errors contains expectation failures.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Edges:  []EdgeOutcome{},
		Errors: []string{},
	}
}

// AddError adds an expectation failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Edge returns the outcome of the edge with the given id.
func (r *Result) Edge(id string) (EdgeOutcome, bool) {
	for _, e := range r.Edges {
		if e.ID == id {
			return e, true
		}
	}
	return EdgeOutcome{}, false
}

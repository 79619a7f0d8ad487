package ir

// BuildModel is the compiled form of a build model directory.
// It is pure data: the project package turns it into runtime objects.
type BuildModel struct {
	Schema         SchemaSpec          `json:"schema"`
	Consumer       ConsumerSpec        `json:"consumer"`
	Configurations []ConfigurationSpec `json:"configurations"`
	Components     []ComponentSpec     `json:"components"`
	Dependencies   []DependencySpec    `json:"dependencies"`
	Transforms     []TransformSpec     `json:"transforms"`
	Toolchain      *ToolchainSpec      `json:"toolchain,omitempty"`
}

// SchemaSpec declares per-attribute matching rules.
type SchemaSpec struct {
	Attributes []AttributeRuleSpec `json:"attributes"`
	// Precedence lists attribute names whose disambiguation runs first,
	// in order. Attributes not listed run afterwards by name.
	Precedence []string `json:"precedence,omitempty"`
}

// Compatibility rule names.
const (
	CompatibilityEqual  = "equal"
	CompatibilityAny    = "any"
	CompatibilityAtMost = "at-most"
	CompatibilitySemver = "semver"
)

// Disambiguation rule names.
const (
	DisambiguationNone      = ""
	DisambiguationPrefer    = "prefer"
	DisambiguationClosest   = "closest"
	DisambiguationRequested = "requested"
)

// ValidCompatibilityRules lists the accepted compatibility rule names.
var ValidCompatibilityRules = map[string]bool{
	CompatibilityEqual:  true,
	CompatibilityAny:    true,
	CompatibilityAtMost: true,
	CompatibilitySemver: true,
}

// ValidDisambiguationRules lists the accepted disambiguation rule names.
var ValidDisambiguationRules = map[string]bool{
	DisambiguationNone:      true,
	DisambiguationPrefer:    true,
	DisambiguationClosest:   true,
	DisambiguationRequested: true,
}

// AttributeRuleSpec is the matching policy of one attribute.
type AttributeRuleSpec struct {
	Name           string  `json:"name"`
	Compatibility  string  `json:"compatibility"`
	Disambiguation string  `json:"disambiguation,omitempty"`
	Prefer         []Value `json:"prefer,omitempty"`
}

// ConsumerSpec names the resolvable configuration being resolved and the
// attributes it requests.
type ConsumerSpec struct {
	Configuration string `json:"configuration"`
	Attributes    Object `json:"attributes"`
}

// ConfigurationSpec declares a source configuration.
type ConfigurationSpec struct {
	Name    string   `json:"name"`
	Role    string   `json:"role"`
	Extends []string `json:"extends,omitempty"`
}

// ComponentSpec is one published component version, or a project of the
// current build when Project is set.
type ComponentSpec struct {
	ID             ComponentID               `json:"id"`
	Variants       []VariantSpec             `json:"variants,omitempty"`
	Configurations []LegacyConfigurationSpec `json:"configurations,omitempty"`
}

// VariantSpec is a published variant.
type VariantSpec struct {
	Name         string         `json:"name"`
	Attributes   Object         `json:"attributes"`
	Capabilities []Capability   `json:"capabilities,omitempty"`
	Artifacts    []ArtifactName `json:"artifacts,omitempty"`
	Files        FileSet        `json:"files,omitempty"`
	Upstream     FileSet        `json:"upstream,omitempty"`
}

// LegacyConfigurationSpec is a configuration of a component without
// variant metadata.
type LegacyConfigurationSpec struct {
	Name       string         `json:"name"`
	Role       string         `json:"role,omitempty"`
	Extends    []string       `json:"extends,omitempty"`
	Attributes Object         `json:"attributes,omitempty"`
	Artifacts  []ArtifactName `json:"artifacts,omitempty"`
	Files      FileSet        `json:"files,omitempty"`
	Upstream   FileSet        `json:"upstream,omitempty"`
}

// DependencySpec is one declared dependency edge.
type DependencySpec struct {
	ID            string            `json:"id"`
	Configuration string            `json:"configuration"`
	Module        *ModuleID         `json:"module,omitempty"`
	Project       string            `json:"project,omitempty"`
	BuildPath     string            `json:"build_path,omitempty"`
	Version       VersionConstraint `json:"version"`
	Attributes    Object            `json:"attributes,omitempty"`
	Capabilities  []Capability      `json:"capabilities,omitempty"`
	Transitive    bool              `json:"transitive"`
	Constraint    bool              `json:"constraint"`
	Changing      bool              `json:"changing"`
	Reason        string            `json:"reason,omitempty"`
	Mappings      []MappingSpec     `json:"mappings,omitempty"`
	// Artifacts maps a source configuration name to the artifacts the edge
	// requests when resolved through it.
	Artifacts map[string][]ArtifactName `json:"artifacts,omitempty"`
	// Excludes maps a source configuration name to excluded modules.
	Excludes          map[string][]ModuleID `json:"excludes,omitempty"`
	AttributeMatching bool                  `json:"attribute_matching"`
	Pipeline          []string              `json:"pipeline,omitempty"`
}

// MappingSpec maps source configurations to target configurations.
// "*" in From matches any source configuration.
type MappingSpec struct {
	From []string `json:"from"`
	To   []string `json:"to"`
}

// TransformSpec declares a transform step.
type TransformSpec struct {
	Name                 string `json:"name"`
	RequiresDependencies bool   `json:"requires_dependencies"`
}

// ToolchainSpec declares the requested toolchain and discovered candidates.
type ToolchainSpec struct {
	Version    string                   `json:"version"`
	Vendor     string                   `json:"vendor,omitempty"`
	Candidates []ToolchainCandidateSpec `json:"candidates"`
}

// ToolchainCandidateSpec is one discovered installation with its probed
// metadata.
type ToolchainCandidateSpec struct {
	Location     string `json:"location"`
	Source       string `json:"source"`
	AutoDetected bool   `json:"auto_detected"`
	Version      string `json:"version"`
	Vendor       string `json:"vendor,omitempty"`
}

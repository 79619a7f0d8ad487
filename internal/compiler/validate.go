package compiler

import (
	"fmt"
	"sort"

	"github.com/Masterminds/semver/v3"

	"github.com/roach88/graphres/internal/ir"
	"github.com/roach88/graphres/internal/role"
)

// Validation error codes (E100-E199)
const (
	ErrUnknownRole          = "E100" // role name is not predefined
	ErrInvalidSchemaRule    = "E101" // unknown compatibility/disambiguation rule
	ErrUnknownConsumer      = "E102" // consumer configuration not declared
	ErrDuplicateName        = "E103" // duplicate configuration/component/variant/transform/edge
	ErrUnknownReference     = "E104" // extends, configuration or pipeline reference not declared
	ErrInvalidVersion       = "E105" // version constraint does not parse
	ErrRoleUsage            = "E106" // configuration used in a way its role forbids
	ErrHierarchyCycle       = "E107" // configuration extends itself
	ErrInvalidFileSet       = "E108" // empty or duplicate path
	ErrEmptyComponent       = "E109" // component publishes nothing
	ErrInvalidToolchainSpec = "E110" // toolchain section invalid
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a compiled model for consistency.
// Returns all errors found (does not fail-fast), in model order.
func Validate(m *ir.BuildModel) []ValidationError {
	var errs []ValidationError
	add := func(code, field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...), Code: code})
	}

	validateSchema(m.Schema, add)

	configs := make(map[string]bool, len(m.Configurations))
	roles := make(map[string]role.Role, len(m.Configurations))
	for i, c := range m.Configurations {
		field := fmt.Sprintf("configurations[%d]", i)
		if configs[c.Name] {
			add(ErrDuplicateName, field+".name", "duplicate configuration %q", c.Name)
		}
		configs[c.Name] = true
		if c.Role == "" {
			roles[c.Name] = role.Legacy
			continue
		}
		if r, ok := role.ByName(c.Role); ok {
			roles[c.Name] = r
		} else {
			add(ErrUnknownRole, field+".role", "unknown role %q, must be one of %v", c.Role, role.Names())
		}
	}
	for i, c := range m.Configurations {
		for j, parent := range c.Extends {
			if !configs[parent] {
				add(ErrUnknownReference, fmt.Sprintf("configurations[%d].extends[%d]", i, j),
					"configuration %q extends unknown %q", c.Name, parent)
			}
		}
	}
	for _, cycle := range FindHierarchyCycles(m.Configurations) {
		add(ErrHierarchyCycle, "configurations", "%s", cycle.Message)
	}

	if m.Consumer.Configuration != "" && !configs[m.Consumer.Configuration] {
		add(ErrUnknownConsumer, "consumer.configuration", "configuration %q is not declared", m.Consumer.Configuration)
	}
	if r, ok := roles[m.Consumer.Configuration]; ok && !r.Allows(role.Resolution) {
		add(ErrRoleUsage, "consumer.configuration", "configuration %q (role %s) cannot be resolved", m.Consumer.Configuration, r)
	}

	components := make(map[string]bool, len(m.Components))
	for i, c := range m.Components {
		field := fmt.Sprintf("components[%d]", i)
		key := c.ID.String()
		if components[key] {
			add(ErrDuplicateName, field+".id", "duplicate component %s", key)
		}
		components[key] = true
		if len(c.Variants) == 0 && len(c.Configurations) == 0 {
			add(ErrEmptyComponent, field, "component %s publishes neither variants nor configurations", key)
		}

		variants := map[string]bool{}
		for j, v := range c.Variants {
			vf := fmt.Sprintf("%s.variants[%d]", field, j)
			if variants[v.Name] {
				add(ErrDuplicateName, vf+".name", "duplicate variant %q of %s", v.Name, key)
			}
			variants[v.Name] = true
			checkFiles(add, vf+".files", v.Files)
			checkFiles(add, vf+".upstream", v.Upstream)
		}

		legacy := map[string]bool{}
		for _, lc := range c.Configurations {
			legacy[lc.Name] = true
		}
		for j, lc := range c.Configurations {
			cf := fmt.Sprintf("%s.configurations[%d]", field, j)
			if lc.Role != "" {
				if _, ok := role.ByName(lc.Role); !ok {
					add(ErrUnknownRole, cf+".role", "unknown role %q", lc.Role)
				}
			}
			for k, parent := range lc.Extends {
				if !legacy[parent] {
					add(ErrUnknownReference, fmt.Sprintf("%s.extends[%d]", cf, k),
						"configuration %q of %s extends unknown %q", lc.Name, key, parent)
				}
			}
			checkFiles(add, cf+".files", lc.Files)
			checkFiles(add, cf+".upstream", lc.Upstream)
		}
	}

	transforms := make(map[string]bool, len(m.Transforms))
	for i, t := range m.Transforms {
		if transforms[t.Name] {
			add(ErrDuplicateName, fmt.Sprintf("transforms[%d].name", i), "duplicate transform %q", t.Name)
		}
		transforms[t.Name] = true
	}

	edges := make(map[string]bool, len(m.Dependencies))
	for i, d := range m.Dependencies {
		field := fmt.Sprintf("dependencies[%d]", i)
		if edges[d.ID] {
			add(ErrDuplicateName, field+".id", "duplicate dependency %q", d.ID)
		}
		edges[d.ID] = true
		if !configs[d.Configuration] {
			add(ErrUnknownReference, field+".configuration", "dependency %q declared in unknown configuration %q", d.ID, d.Configuration)
		} else if r, ok := roles[d.Configuration]; ok && !r.Allows(role.DeclarationAgainst) {
			add(ErrRoleUsage, field+".configuration", "configuration %q (role %s) does not allow declaring dependencies", d.Configuration, r)
		}
		if err := d.Version.Validate(); err != nil {
			add(ErrInvalidVersion, field+".version", "%v", err)
		}
		for j, step := range d.Pipeline {
			if !transforms[step] {
				add(ErrUnknownReference, fmt.Sprintf("%s.pipeline[%d]", field, j), "unknown transform %q", step)
			}
		}
		for _, conf := range sortedKeys(d.Artifacts) {
			if !configs[conf] {
				add(ErrUnknownReference, field+".artifacts."+conf, "unknown configuration %q", conf)
			}
		}
		for _, conf := range sortedKeys(d.Excludes) {
			if !configs[conf] {
				add(ErrUnknownReference, field+".excludes."+conf, "unknown configuration %q", conf)
			}
		}
	}

	if m.Toolchain != nil {
		validateToolchain(m.Toolchain, add)
	}

	return errs
}

func validateSchema(s ir.SchemaSpec, add func(code, field, format string, args ...any)) {
	names := make(map[string]bool, len(s.Attributes))
	for i, a := range s.Attributes {
		field := fmt.Sprintf("schema.attributes[%d]", i)
		if names[a.Name] {
			add(ErrDuplicateName, field+".name", "duplicate attribute rule %q", a.Name)
		}
		names[a.Name] = true
		if !ir.ValidCompatibilityRules[a.Compatibility] {
			add(ErrInvalidSchemaRule, field+".compatibility", "unknown compatibility rule %q", a.Compatibility)
		}
		if !ir.ValidDisambiguationRules[a.Disambiguation] {
			add(ErrInvalidSchemaRule, field+".disambiguation", "unknown disambiguation rule %q", a.Disambiguation)
		}
		if a.Disambiguation == ir.DisambiguationPrefer && len(a.Prefer) == 0 {
			add(ErrInvalidSchemaRule, field+".prefer", "prefer disambiguation needs a prefer list")
		}
	}
	for i, p := range s.Precedence {
		if !names[p] {
			add(ErrUnknownReference, fmt.Sprintf("schema.precedence[%d]", i), "no rule for attribute %q", p)
		}
	}
}

func validateToolchain(t *ir.ToolchainSpec, add func(code, field, format string, args ...any)) {
	if t.Version != "" {
		if _, err := semver.NewConstraint(t.Version); err != nil {
			add(ErrInvalidToolchainSpec, "toolchain.version", "invalid version constraint %q: %v", t.Version, err)
		}
	}
	seen := make(map[string]bool, len(t.Candidates))
	for i, c := range t.Candidates {
		if seen[c.Location] {
			add(ErrInvalidToolchainSpec, fmt.Sprintf("toolchain.candidates[%d].location", i), "duplicate location %q", c.Location)
		}
		seen[c.Location] = true
	}
}

func checkFiles(add func(code, field, format string, args ...any), field string, fs ir.FileSet) {
	if err := fs.Validate(); err != nil {
		add(ErrInvalidFileSet, field, "%v", err)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

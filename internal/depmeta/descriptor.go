package depmeta

import (
	"log/slog"
	"slices"

	"github.com/roach88/graphres/internal/ir"
	"github.com/roach88/graphres/internal/role"
	"github.com/roach88/graphres/internal/variant"
)

// Wildcard matches any source configuration in a mapping rule.
const Wildcard = "*"

// Configuration is the source configuration a dependency was declared in.
// Hierarchy lists the configuration itself first, then every configuration
// it extends in declaration order.
type Configuration struct {
	Name      string
	Role      role.Role
	Hierarchy []string
}

// MappingRule maps source configurations to target configurations.
type MappingRule struct {
	From []string
	To   []string
}

func (r MappingRule) matches(configuration string) bool {
	for _, f := range r.From {
		if f == Wildcard || f == configuration {
			return true
		}
	}
	return false
}

// Descriptor is an external dependency as declared. Treat as immutable:
// derive changed copies with the With* methods.
type Descriptor struct {
	Selector   ModuleSelector
	Transitive bool
	Constraint bool
	Changing   bool
	Mappings   []MappingRule
	// Artifacts maps a source configuration to the artifacts requested
	// through it.
	Artifacts map[string][]ir.ArtifactName
	// Excludes maps a source configuration to excluded modules.
	Excludes map[string][]ir.ModuleID
}

// WithSelector returns a copy targeting sel. Everything else is shared.
func (d *Descriptor) WithSelector(sel ModuleSelector) *Descriptor {
	out := *d
	out.Selector = sel
	return &out
}

// WithRequested returns a copy with a new version constraint.
func (d *Descriptor) WithRequested(v ir.VersionConstraint) *Descriptor {
	sel := d.Selector
	sel.Version = v
	return d.WithSelector(sel)
}

// ConfigurationArtifacts returns the artifacts requested through the
// configuration or anything it extends, in hierarchy order.
func (d *Descriptor) ConfigurationArtifacts(conf Configuration) []ir.ArtifactName {
	var out []ir.ArtifactName
	for _, name := range conf.Hierarchy {
		for _, a := range d.Artifacts[name] {
			if !slices.Contains(out, a) {
				out = append(out, a)
			}
		}
	}
	return out
}

// ConfigurationExcludes returns the excludes that apply to a source
// hierarchy, in hierarchy order.
func (d *Descriptor) ConfigurationExcludes(hierarchy []string) []ir.ModuleID {
	var out []ir.ModuleID
	for _, name := range hierarchy {
		for _, m := range d.Excludes[name] {
			if !slices.Contains(out, m) {
				out = append(out, m)
			}
		}
	}
	return out
}

// SelectLegacyConfigurations applies the classic mapping algorithm: walk the
// source hierarchy in order and, for each configuration, try the mapping
// rules in declaration order. The first matching rule decides the target
// configurations; later rules and configurations are never consulted.
func (d *Descriptor) SelectLegacyConfigurations(logger *slog.Logger, from Configuration, target *variant.ComponentState, failures variant.FailureProcessor) ([]*variant.Variant, error) {
	targets, ok := d.mappedConfigurations(from)
	if !ok {
		return nil, failures.ConfigurationNotFound(target.ID, "", from.Name)
	}

	out := make([]*variant.Variant, 0, len(targets))
	for _, name := range targets {
		conf, ok := target.Configuration(name)
		if !ok {
			return nil, failures.ConfigurationNotFound(target.ID, name, from.Name)
		}
		deprecated, err := conf.Role.Check(name, role.Consumption)
		if err != nil {
			return nil, failures.ConfigurationNotConsumable(target.ID, name, conf.Role)
		}
		if deprecated {
			if logger == nil {
				logger = slog.Default()
			}
			logger.Warn("consuming deprecated configuration",
				"component", target.ID.String(),
				"configuration", name,
				"from", from.Name)
		}
		v, _ := target.LegacyVariant(name)
		out = append(out, v)
	}
	return out, nil
}

func (d *Descriptor) mappedConfigurations(from Configuration) ([]string, bool) {
	for _, name := range from.Hierarchy {
		for _, rule := range d.Mappings {
			if !rule.matches(name) {
				continue
			}
			var targets []string
			for _, to := range rule.To {
				if !slices.Contains(targets, to) {
					targets = append(targets, to)
				}
			}
			return targets, len(targets) > 0
		}
	}
	return nil, false
}

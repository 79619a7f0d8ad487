// Package variant selects the published variant of a target component
// that satisfies a dependency edge.
//
// Selection is a pure function of its inputs: consumer attributes, schema,
// requested capabilities and the immutable ComponentState. Failures are
// built by a caller-supplied FailureProcessor and returned, so independent
// edges can each report their own failure.
package variant

import (
	"fmt"
	"sort"

	"github.com/roach88/graphres/internal/attr"
	"github.com/roach88/graphres/internal/ir"
	"github.com/roach88/graphres/internal/role"
)

// DefaultConfiguration is the legacy configuration consumed when nothing
// else is requested.
const DefaultConfiguration = "default"

// Variant is a named, attribute-tagged bundle of artifacts published by a
// component. Variants synthesized from legacy configurations have Legacy set.
type Variant struct {
	Name         string
	Attributes   attr.Attributes
	Capabilities []ir.Capability
	Artifacts    []ir.ArtifactName
	// Files are the variant's own artifact files.
	Files ir.FileSet
	// Upstream are the resolved artifact files of the variant's own
	// dependencies.
	Upstream ir.FileSet
	Legacy   bool
}

// Provides reports whether the variant provides the capability. A variant
// without declared capabilities provides only the implicit one.
func (v *Variant) Provides(c ir.Capability, implicit ir.Capability) bool {
	if len(v.Capabilities) == 0 {
		return c.SameCapability(implicit)
	}
	for _, own := range v.Capabilities {
		if own.SameCapability(c) {
			return true
		}
	}
	return false
}

func (v *Variant) hasClassifier(classifier string) bool {
	for _, a := range v.Artifacts {
		if a.Classifier == classifier {
			return true
		}
	}
	return false
}

// LegacyConfiguration is a configuration of a component published without
// variant metadata.
type LegacyConfiguration struct {
	Name       string
	Role       role.Role
	Extends    []string
	Attributes attr.Attributes
	Artifacts  []ir.ArtifactName
	Files      ir.FileSet
	Upstream   ir.FileSet
}

// ComponentState is the immutable published metadata of one target
// component version. Safe for concurrent use.
type ComponentState struct {
	ID ir.ComponentID

	variants       []*Variant
	configurations map[string]*LegacyConfiguration
}

// NewComponentState validates and freezes a component's metadata.
// Variants are ordered by name; legacy extends references must resolve and
// must not form a cycle.
func NewComponentState(id ir.ComponentID, variants []*Variant, configurations []*LegacyConfiguration) (*ComponentState, error) {
	c := &ComponentState{
		ID:             id,
		variants:       make([]*Variant, 0, len(variants)),
		configurations: make(map[string]*LegacyConfiguration, len(configurations)),
	}

	seen := make(map[string]bool, len(variants))
	for _, v := range variants {
		if v.Name == "" {
			return nil, fmt.Errorf("component %s: variant without name", id)
		}
		if seen[v.Name] {
			return nil, fmt.Errorf("component %s: duplicate variant %q", id, v.Name)
		}
		seen[v.Name] = true
		c.variants = append(c.variants, v)
	}
	sort.Slice(c.variants, func(i, j int) bool {
		return c.variants[i].Name < c.variants[j].Name
	})

	for _, conf := range configurations {
		if conf.Name == "" {
			return nil, fmt.Errorf("component %s: configuration without name", id)
		}
		if _, dup := c.configurations[conf.Name]; dup {
			return nil, fmt.Errorf("component %s: duplicate configuration %q", id, conf.Name)
		}
		c.configurations[conf.Name] = conf
	}
	for _, conf := range configurations {
		for _, parent := range conf.Extends {
			if _, ok := c.configurations[parent]; !ok {
				return nil, fmt.Errorf("component %s: configuration %q extends unknown %q", id, conf.Name, parent)
			}
		}
	}
	for _, conf := range configurations {
		if err := c.checkAcyclic(conf.Name, map[string]bool{}); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *ComponentState) checkAcyclic(name string, path map[string]bool) error {
	if path[name] {
		return fmt.Errorf("component %s: configuration %q extends itself", c.ID, name)
	}
	path[name] = true
	defer delete(path, name)
	for _, parent := range c.configurations[name].Extends {
		if err := c.checkAcyclic(parent, path); err != nil {
			return err
		}
	}
	return nil
}

// UseVariants reports whether the component publishes variant metadata.
func (c *ComponentState) UseVariants() bool {
	return len(c.variants) > 0
}

// Variants returns the published variants ordered by name.
func (c *ComponentState) Variants() []*Variant {
	out := make([]*Variant, len(c.variants))
	copy(out, c.variants)
	return out
}

// Configuration returns a legacy configuration by name.
func (c *ComponentState) Configuration(name string) (*LegacyConfiguration, bool) {
	conf, ok := c.configurations[name]
	return conf, ok
}

// ConfigurationNames returns legacy configuration names in sorted order.
func (c *ComponentState) ConfigurationNames() []string {
	names := make([]string, 0, len(c.configurations))
	for n := range c.configurations {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ImplicitCapability is the capability every component provides by default:
// its own module coordinates.
func (c *ComponentState) ImplicitCapability() ir.Capability {
	return ir.Capability{
		Group:   c.ID.Module.Group,
		Name:    c.ID.Module.Name,
		Version: c.ID.Version,
	}
}

// Hierarchy returns the named configuration followed by every configuration
// it extends, depth first in declaration order, each listed once.
func (c *ComponentState) Hierarchy(name string) []string {
	var out []string
	seen := map[string]bool{}
	var walk func(string)
	walk = func(n string) {
		if seen[n] {
			return
		}
		seen[n] = true
		out = append(out, n)
		if conf, ok := c.configurations[n]; ok {
			for _, parent := range conf.Extends {
				walk(parent)
			}
		}
	}
	walk(name)
	return out
}

// LegacyVariant synthesizes a variant view over a legacy configuration.
// Artifacts, files and upstream files accumulate over the extends hierarchy;
// attributes are the configuration's own.
func (c *ComponentState) LegacyVariant(name string) (*Variant, bool) {
	conf, ok := c.configurations[name]
	if !ok {
		return nil, false
	}
	v := &Variant{
		Name:         name,
		Attributes:   conf.Attributes,
		Capabilities: []ir.Capability{c.ImplicitCapability()},
		Files:        ir.NewFileSet(),
		Upstream:     ir.NewFileSet(),
		Legacy:       true,
	}
	seenArtifact := map[ir.ArtifactName]bool{}
	for _, n := range c.Hierarchy(name) {
		part := c.configurations[n]
		for _, a := range part.Artifacts {
			if !seenArtifact[a] {
				seenArtifact[a] = true
				v.Artifacts = append(v.Artifacts, a)
			}
		}
		v.Files = v.Files.Union(part.Files)
		v.Upstream = v.Upstream.Union(part.Upstream)
	}
	return v, true
}

// Shape is the canonical description of the component's published
// metadata. Two states with equal shapes select identically.
func (c *ComponentState) Shape() ir.Object {
	variants := make(ir.List, 0, len(c.variants))
	for _, v := range c.variants {
		variants = append(variants, variantShape(v))
	}
	configs := make(ir.List, 0, len(c.configurations))
	for _, n := range c.ConfigurationNames() {
		conf := c.configurations[n]
		configs = append(configs, ir.Object{
			"name":       ir.String(conf.Name),
			"role":       ir.String(conf.Role.Name()),
			"extends":    stringList(conf.Extends),
			"attributes": conf.Attributes.Object(),
			"artifacts":  artifactList(conf.Artifacts),
			"files":      stringList(conf.Files),
			"upstream":   stringList(conf.Upstream),
		})
	}
	return ir.Object{
		"id":             ir.String(c.ID.String()),
		"variants":       variants,
		"configurations": configs,
	}
}

func variantShape(v *Variant) ir.Object {
	caps := make(ir.List, len(v.Capabilities))
	for i, cp := range v.Capabilities {
		caps[i] = ir.String(cp.String())
	}
	return ir.Object{
		"name":         ir.String(v.Name),
		"attributes":   v.Attributes.Object(),
		"capabilities": caps,
		"artifacts":    artifactList(v.Artifacts),
		"files":        stringList(v.Files),
		"upstream":     stringList(v.Upstream),
	}
}

func stringList[S ~[]string](s S) ir.List {
	out := make(ir.List, len(s))
	for i, x := range s {
		out[i] = ir.String(x)
	}
	return out
}

func artifactList(as []ir.ArtifactName) ir.List {
	out := make(ir.List, len(as))
	for i, a := range as {
		out[i] = ir.String(a.String())
	}
	return out
}

// Package depmeta models a declared dependency edge: its target selector,
// flags and source configuration, plus the logic that turns it into a
// variant selection.
//
// Metadata values are immutable. Every With* mutator returns the receiver
// when the new value equals the old one, otherwise a new instance sharing
// all other fields.
package depmeta

import (
	"log/slog"
	"slices"

	"github.com/roach88/graphres/internal/attr"
	"github.com/roach88/graphres/internal/ir"
	"github.com/roach88/graphres/internal/variant"
)

// DependencyMetadata is satisfied by Metadata and ProjectMetadata.
type DependencyMetadata interface {
	Selector() ComponentSelector
	IsTransitive() bool
	IsConstraint() bool
	Reason() string
	Artifacts() []ir.ArtifactName
	Excludes() []ir.ModuleID
	SelectVariants(sel *variant.Selector, consumer attr.Attributes, target *variant.ComponentState, schema attr.Schema, caps []ir.Capability) (variant.SelectionResult, error)
	WithTarget(target ComponentSelector) (DependencyMetadata, error)
	WithTargetAndArtifacts(target ComponentSelector, artifacts []ir.ArtifactName) (DependencyMetadata, error)
}

// Metadata is an external dependency bound to the source configuration
// that declared it.
type Metadata struct {
	component  ir.ComponentID
	source     Configuration
	descriptor *Descriptor

	alwaysUseAttributeMatching bool
	endorsingStrictVersions    bool
	reason                     string

	// artifacts overrides the descriptor's configuration artifacts when set.
	artifacts    []ir.ArtifactName
	hasArtifacts bool

	logger *slog.Logger
}

// Option configures a Metadata at construction.
type Option func(*Metadata)

// AlwaysUseAttributeMatching makes legacy targets select through attribute
// matching against their default configuration instead of the descriptor's
// configuration mappings.
func AlwaysUseAttributeMatching() Option {
	return func(m *Metadata) {
		m.alwaysUseAttributeMatching = true
	}
}

// WithLogger sets the logger used for deprecation warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Metadata) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// Reason sets the human-readable reason at construction.
func Reason(reason string) Option {
	return func(m *Metadata) {
		m.reason = reason
	}
}

// EndorseStrictVersions sets the endorse-strict-versions flag at construction.
func EndorseStrictVersions() Option {
	return func(m *Metadata) {
		m.endorsingStrictVersions = true
	}
}

// New binds a descriptor to its source configuration. component identifies
// the component that declared the dependency.
func New(source Configuration, component ir.ComponentID, descriptor *Descriptor, opts ...Option) *Metadata {
	m := &Metadata{
		component:  component,
		source:     source,
		descriptor: descriptor,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Metadata) clone() *Metadata {
	out := *m
	return &out
}

// Selector returns the module selector as a ComponentSelector.
func (m *Metadata) Selector() ComponentSelector { return m.descriptor.Selector }

// ModuleSelector returns the typed module selector.
func (m *Metadata) ModuleSelector() ModuleSelector { return m.descriptor.Selector }

// Source returns the declaring configuration.
func (m *Metadata) Source() Configuration { return m.source }

// Component returns the identifier of the declaring component.
func (m *Metadata) Component() ir.ComponentID { return m.component }

// Descriptor returns the bound descriptor. Do not modify it.
func (m *Metadata) Descriptor() *Descriptor { return m.descriptor }

func (m *Metadata) IsTransitive() bool              { return m.descriptor.Transitive }
func (m *Metadata) IsConstraint() bool              { return m.descriptor.Constraint }
func (m *Metadata) IsChanging() bool                { return m.descriptor.Changing }
func (m *Metadata) IsEndorsingStrictVersions() bool { return m.endorsingStrictVersions }
func (m *Metadata) Reason() string                  { return m.reason }

// IsAlwaysUseAttributeMatching reports whether legacy targets are matched
// by attributes.
func (m *Metadata) IsAlwaysUseAttributeMatching() bool {
	return m.alwaysUseAttributeMatching
}

// Artifacts returns the requested artifacts: the explicit override, or the
// descriptor's artifacts for the source hierarchy.
func (m *Metadata) Artifacts() []ir.ArtifactName {
	if m.hasArtifacts {
		return m.artifacts
	}
	return m.descriptor.ConfigurationArtifacts(m.source)
}

// Excludes returns the descriptor excludes applying to the source hierarchy.
func (m *Metadata) Excludes() []ir.ModuleID {
	return m.descriptor.ConfigurationExcludes(m.source.Hierarchy)
}

// SelectVariants picks the target variants for this edge.
//
//  1. target publishes variants: attribute matching, exactly one variant
//  2. legacy target, always-use-attribute-matching set: match the default
//     configuration
//  3. legacy target otherwise: descriptor configuration mapping
//
// The selector's own attributes override the consumer's.
func (m *Metadata) SelectVariants(sel *variant.Selector, consumer attr.Attributes, target *variant.ComponentState, schema attr.Schema, caps []ir.Capability) (variant.SelectionResult, error) {
	requested := consumer.Merge(m.descriptor.Selector.Attributes)

	if target.UseVariants() {
		res, err := sel.SelectByAttributeMatching(requested, caps, target, schema, m.Artifacts())
		if err != nil {
			return variant.SelectionResult{}, err
		}
		return variant.SelectionResult{Variants: res.Variants, UsedAttributeMatching: true}, nil
	}

	if m.alwaysUseAttributeMatching {
		res, err := sel.SelectLegacyConfiguration(requested, target, schema)
		if err != nil {
			return variant.SelectionResult{}, err
		}
		return variant.SelectionResult{Variants: res.Variants, UsedAttributeMatching: false}, nil
	}

	variants, err := m.descriptor.SelectLegacyConfigurations(m.logger, m.source, target, sel.Failures())
	if err != nil {
		return variant.SelectionResult{}, err
	}
	return variant.SelectionResult{Variants: variants, UsedAttributeMatching: false}, nil
}

// WithTarget retargets the edge. An equal module selector returns the
// receiver; a different one rebinds the descriptor; a project selector
// converts to ProjectMetadata.
func (m *Metadata) WithTarget(target ComponentSelector) (DependencyMetadata, error) {
	switch t := target.(type) {
	case ModuleSelector:
		if t.Equal(m.descriptor.Selector) {
			return m, nil
		}
		return m.withRequested(t), nil
	case ProjectSelector:
		return NewProjectMetadata(t, m), nil
	default:
		return nil, &UnsupportedSelectorError{Selector: target}
	}
}

// WithTargetAndArtifacts retargets the edge and replaces the requested
// artifacts. Returns the receiver only if both are unchanged.
func (m *Metadata) WithTargetAndArtifacts(target ComponentSelector, artifacts []ir.ArtifactName) (DependencyMetadata, error) {
	switch t := target.(type) {
	case ModuleSelector:
		if t.Equal(m.descriptor.Selector) && slices.Equal(artifacts, m.Artifacts()) {
			return m, nil
		}
		out := m.withRequested(t)
		out.artifacts = slices.Clone(artifacts)
		out.hasArtifacts = true
		return out, nil
	case ProjectSelector:
		out := m.clone()
		out.artifacts = slices.Clone(artifacts)
		out.hasArtifacts = true
		return NewProjectMetadata(t, out), nil
	default:
		return nil, &UnsupportedSelectorError{Selector: target}
	}
}

func (m *Metadata) withRequested(sel ModuleSelector) *Metadata {
	out := m.clone()
	out.descriptor = m.descriptor.WithSelector(sel)
	return out
}

// WithRequestedVersion replaces the version constraint.
func (m *Metadata) WithRequestedVersion(v ir.VersionConstraint) *Metadata {
	if v.Equal(m.descriptor.Selector.Version) {
		return m
	}
	out := m.clone()
	out.descriptor = m.descriptor.WithRequested(v)
	return out
}

// WithReason replaces the reason.
func (m *Metadata) WithReason(reason string) *Metadata {
	if reason == m.reason {
		return m
	}
	out := m.clone()
	out.reason = reason
	return out
}

// WithEndorseStrictVersions replaces the endorse-strict-versions flag.
func (m *Metadata) WithEndorseStrictVersions(endorse bool) *Metadata {
	if endorse == m.endorsingStrictVersions {
		return m
	}
	out := m.clone()
	out.endorsingStrictVersions = endorse
	return out
}

// WithDescriptor rebinds to another descriptor. Always a new instance.
func (m *Metadata) WithDescriptor(d *Descriptor) *Metadata {
	out := m.clone()
	out.descriptor = d
	return out
}

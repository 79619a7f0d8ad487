package depmeta

import (
	"slices"

	"github.com/roach88/graphres/internal/attr"
	"github.com/roach88/graphres/internal/ir"
	"github.com/roach88/graphres/internal/variant"
)

// ProjectMetadata is a dependency on another project of the current build.
// It keeps the external metadata it was converted from as its delegate so
// flags, reason and artifacts survive retargeting.
type ProjectMetadata struct {
	selector ProjectSelector
	delegate *Metadata
}

// NewProjectMetadata wraps delegate with a project target.
func NewProjectMetadata(selector ProjectSelector, delegate *Metadata) *ProjectMetadata {
	return &ProjectMetadata{selector: selector, delegate: delegate}
}

func (p *ProjectMetadata) Selector() ComponentSelector { return p.selector }

// ProjectSelector returns the typed project selector.
func (p *ProjectMetadata) ProjectSelector() ProjectSelector { return p.selector }

// Delegate returns the wrapped external metadata.
func (p *ProjectMetadata) Delegate() *Metadata { return p.delegate }

func (p *ProjectMetadata) IsTransitive() bool           { return p.delegate.IsTransitive() }
func (p *ProjectMetadata) IsConstraint() bool           { return p.delegate.IsConstraint() }
func (p *ProjectMetadata) Reason() string               { return p.delegate.Reason() }
func (p *ProjectMetadata) Artifacts() []ir.ArtifactName { return p.delegate.Artifacts() }
func (p *ProjectMetadata) Excludes() []ir.ModuleID      { return p.delegate.Excludes() }
func (p *ProjectMetadata) Source() Configuration        { return p.delegate.Source() }

// SelectVariants selects among the target project's variants exactly as
// for an external component.
func (p *ProjectMetadata) SelectVariants(sel *variant.Selector, consumer attr.Attributes, target *variant.ComponentState, schema attr.Schema, caps []ir.Capability) (variant.SelectionResult, error) {
	return p.delegate.SelectVariants(sel, consumer, target, schema, caps)
}

// WithTarget returns the receiver for an equal project selector, a new
// ProjectMetadata for another project, and converts back to external
// metadata for a module selector.
func (p *ProjectMetadata) WithTarget(target ComponentSelector) (DependencyMetadata, error) {
	switch t := target.(type) {
	case ProjectSelector:
		if t == p.selector {
			return p, nil
		}
		return NewProjectMetadata(t, p.delegate), nil
	case ModuleSelector:
		return p.delegate.withRequested(t), nil
	default:
		return nil, &UnsupportedSelectorError{Selector: target}
	}
}

// WithTargetAndArtifacts is WithTarget plus an artifact override.
func (p *ProjectMetadata) WithTargetAndArtifacts(target ComponentSelector, artifacts []ir.ArtifactName) (DependencyMetadata, error) {
	if t, ok := target.(ProjectSelector); ok && t == p.selector && slices.Equal(artifacts, p.Artifacts()) {
		return p, nil
	}
	switch target.(type) {
	case ProjectSelector, ModuleSelector:
		d := p.delegate.clone()
		d.artifacts = slices.Clone(artifacts)
		d.hasArtifacts = true
		return NewProjectMetadata(p.selector, d).WithTarget(target)
	default:
		return nil, &UnsupportedSelectorError{Selector: target}
	}
}

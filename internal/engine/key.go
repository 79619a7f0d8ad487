package engine

import (
	"fmt"

	"github.com/roach88/graphres/internal/attr"
	"github.com/roach88/graphres/internal/depmeta"
	"github.com/roach88/graphres/internal/ir"
	"github.com/roach88/graphres/internal/variant"
)

// shaper is implemented by schemas that can describe themselves. Schemas
// without a shape are keyed by their Go type.
type shaper interface {
	Shape() ir.Object
}

// sourced is implemented by Metadata and ProjectMetadata.
type sourced interface {
	Source() depmeta.Configuration
}

// contextInputs builds the object hashed into the context key of an edge
// with a transform pipeline. Every input that can change the selection or
// the step dependencies is part of it; access times are not.
func contextInputs(req *Request, edge *Edge, target *variant.ComponentState) (ir.Object, error) {
	fingerprint, err := ir.ComponentFingerprint(target.Shape())
	if err != nil {
		return nil, fmt.Errorf("fingerprint %s: %w", target.ID, err)
	}

	steps := make(ir.List, len(edge.Pipeline))
	for i, s := range edge.Pipeline {
		steps[i] = ir.Object{
			"name":     ir.String(s.DisplayName()),
			"requires": ir.Bool(s.RequiresDependencies()),
		}
	}

	inputs := ir.Object{
		"engine":       ir.String(ir.EngineVersion),
		"model":        ir.String(ir.ModelVersion),
		"edge":         ir.String(edge.ID),
		"dependency":   dependencyShape(edge.Dependency),
		"consumer":     req.Consumer.Object(),
		"schema":       schemaShape(req.Schema),
		"capabilities": capabilityList(edge.Capabilities),
		"pipeline":     steps,
		"target":       ir.String(fingerprint),
	}
	if edge.Upstream != nil {
		inputs["upstream"] = ir.String(edge.UpstreamKey)
	}
	return inputs, nil
}

func schemaShape(s attr.Schema) ir.Value {
	if sh, ok := s.(shaper); ok {
		return sh.Shape()
	}
	return ir.String(fmt.Sprintf("%T", s))
}

func dependencyShape(dep depmeta.DependencyMetadata) ir.Object {
	obj := ir.Object{
		"selector":   ir.String(dep.Selector().DisplayName()),
		"transitive": ir.Bool(dep.IsTransitive()),
		"constraint": ir.Bool(dep.IsConstraint()),
		"artifacts":  artifactList(dep.Artifacts()),
	}
	if ms, ok := dep.Selector().(depmeta.ModuleSelector); ok {
		obj["selectorAttributes"] = ms.Attributes.Object()
		obj["selectorCapabilities"] = capabilityList(ms.Capabilities)
	}
	if s, ok := dep.(sourced); ok {
		src := s.Source()
		obj["source"] = ir.Object{
			"name":      ir.String(src.Name),
			"hierarchy": stringList(src.Hierarchy),
		}
	}

	var m *depmeta.Metadata
	switch d := dep.(type) {
	case *depmeta.Metadata:
		m = d
	case *depmeta.ProjectMetadata:
		m = d.Delegate()
	}
	if m != nil {
		mappings := make(ir.List, len(m.Descriptor().Mappings))
		for i, r := range m.Descriptor().Mappings {
			mappings[i] = ir.Object{"from": stringList(r.From), "to": stringList(r.To)}
		}
		obj["mappings"] = mappings
		obj["alwaysAttributeMatching"] = ir.Bool(m.IsAlwaysUseAttributeMatching())
	}
	return obj
}

func capabilityList(caps []ir.Capability) ir.List {
	out := make(ir.List, len(caps))
	for i, c := range caps {
		out[i] = ir.String(c.String())
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

func stringList(s []string) ir.List {
	out := make(ir.List, len(s))
	for i, x := range s {
		out[i] = ir.String(x)
	}
	return out
}

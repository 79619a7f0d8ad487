package project

import (
	"log/slog"
	"slices"

	"github.com/roach88/graphres/internal/attr"
	"github.com/roach88/graphres/internal/compiler"
	"github.com/roach88/graphres/internal/depmeta"
	"github.com/roach88/graphres/internal/engine"
	"github.com/roach88/graphres/internal/ir"
	"github.com/roach88/graphres/internal/role"
	"github.com/roach88/graphres/internal/toolchain"
	"github.com/roach88/graphres/internal/transform"
	"github.com/roach88/graphres/internal/variant"
)

// Root identifies the project that declares the model's dependencies.
var Root = ir.ComponentID{Project: ":"}

// DefaultMapping maps every source configuration to the target's default
// configuration. Applied to dependencies that declare no mapping.
var DefaultMapping = depmeta.MappingRule{
	From: []string{depmeta.Wildcard},
	To:   []string{variant.DefaultConfiguration},
}

// Project is a build model ready to resolve.
type Project struct {
	Model *ir.BuildModel

	// Configurations holds the source configurations in declaration order.
	Configurations []depmeta.Configuration
	Consumer       depmeta.Configuration
	Schema         attr.Schema
	Components     []*variant.ComponentState
	Request        *engine.Request
}

// Option configures Load.
type Option func(*loader)

// WithLogger sets the logger for deprecation warnings.
func WithLogger(l *slog.Logger) Option {
	return func(ld *loader) {
		if l != nil {
			ld.logger = l
		}
	}
}

type loader struct {
	logger *slog.Logger
	model  *ir.BuildModel

	specs   map[string]ir.ConfigurationSpec
	configs map[string]depmeta.Configuration
}

// Load assembles m. The model is expected to have passed
// compiler.Validate; Load still rejects anything it cannot assemble.
func Load(m *ir.BuildModel, opts ...Option) (*Project, error) {
	ld := &loader{
		logger:  slog.Default(),
		model:   m,
		specs:   make(map[string]ir.ConfigurationSpec, len(m.Configurations)),
		configs: make(map[string]depmeta.Configuration, len(m.Configurations)),
	}
	for _, opt := range opts {
		opt(ld)
	}

	p := &Project{Model: m}
	var err error
	if p.Configurations, err = ld.configurations(); err != nil {
		return nil, err
	}

	consumer, ok := ld.configs[m.Consumer.Configuration]
	if !ok {
		return nil, loadError("consumer", nil, "configuration %q is not declared", m.Consumer.Configuration)
	}
	if err := consumer.Role.CheckAndWarn(ld.logger, consumer.Name, role.Resolution); err != nil {
		return nil, loadError("consumer", err, "cannot resolve")
	}
	p.Consumer = consumer

	if p.Schema, err = buildSchema(m.Schema); err != nil {
		return nil, loadError("schema", err, "invalid schema")
	}

	for _, spec := range m.Components {
		c, err := buildComponent(spec)
		if err != nil {
			return nil, loadError("components."+spec.ID.String(), err, "invalid component")
		}
		p.Components = append(p.Components, c)
	}

	pipelines := make(map[string]transform.Step, len(m.Transforms))
	for _, t := range m.Transforms {
		pipelines[t.Name] = transform.NewStep(t.Name, t.RequiresDependencies)
	}

	p.Request = &engine.Request{
		Consumer: attr.Of(m.Consumer.Attributes),
		Schema:   p.Schema,
		Edges:    make([]engine.Edge, 0, len(m.Dependencies)),
	}
	for _, d := range m.Dependencies {
		edge, err := ld.edge(d, pipelines, p.Components)
		if err != nil {
			return nil, err
		}
		p.Request.Edges = append(p.Request.Edges, edge)
	}

	ld.logger.Debug("project loaded",
		"configurations", len(p.Configurations),
		"components", len(p.Components),
		"edges", len(p.Request.Edges),
	)
	return p, nil
}

// Configuration returns the named source configuration.
func (p *Project) Configuration(name string) (depmeta.Configuration, bool) {
	for _, c := range p.Configurations {
		if c.Name == name {
			return c, true
		}
	}
	return depmeta.Configuration{}, false
}

// SelectToolchain picks the toolchain installation the model asks for.
// Returns nil without error when the model declares no toolchain.
func (p *Project) SelectToolchain() (*toolchain.Selection, error) {
	if p.Model.Toolchain == nil {
		return nil, nil
	}
	candidates, probe, spec := toolchain.FromModel(*p.Model.Toolchain)
	return toolchain.Select(candidates, probe, spec)
}

func (ld *loader) configurations() ([]depmeta.Configuration, error) {
	for _, c := range ld.model.Configurations {
		if _, dup := ld.specs[c.Name]; dup {
			return nil, loadError("configurations."+c.Name, nil, "declared twice")
		}
		ld.specs[c.Name] = c
	}
	for _, c := range ld.model.Configurations {
		for _, parent := range c.Extends {
			if _, ok := ld.specs[parent]; !ok {
				return nil, loadError("configurations."+c.Name, nil, "extends unknown configuration %q", parent)
			}
		}
	}
	if cycles := compiler.FindHierarchyCycles(ld.model.Configurations); len(cycles) > 0 {
		return nil, loadError("configurations", nil, "%s", cycles[0].Message)
	}

	out := make([]depmeta.Configuration, 0, len(ld.model.Configurations))
	for _, c := range ld.model.Configurations {
		r, err := roleOf(c.Role)
		if err != nil {
			return nil, loadError("configurations."+c.Name, err, "invalid role")
		}
		conf := depmeta.Configuration{Name: c.Name, Role: r, Hierarchy: ld.hierarchy(c.Name)}
		ld.configs[c.Name] = conf
		out = append(out, conf)
	}
	return out, nil
}

// hierarchy lists name, then everything it extends depth-first in
// declaration order. Each configuration appears once.
func (ld *loader) hierarchy(name string) []string {
	var out []string
	seen := map[string]bool{}
	var walk func(string)
	walk = func(n string) {
		if seen[n] {
			return
		}
		seen[n] = true
		out = append(out, n)
		for _, parent := range ld.specs[n].Extends {
			walk(parent)
		}
	}
	walk(name)
	return out
}

func (ld *loader) edge(d ir.DependencySpec, pipelines map[string]transform.Step, components []*variant.ComponentState) (engine.Edge, error) {
	subject := "dependencies." + d.ID
	source, ok := ld.configs[d.Configuration]
	if !ok {
		return engine.Edge{}, loadError(subject, nil, "configuration %q is not declared", d.Configuration)
	}
	if err := source.Role.CheckAndWarn(ld.logger, source.Name, role.DeclarationAgainst); err != nil {
		return engine.Edge{}, loadError(subject, err, "cannot declare dependency")
	}

	desc := &depmeta.Descriptor{
		Selector: depmeta.ModuleSelector{
			Version:      d.Version,
			Attributes:   attr.Of(d.Attributes),
			Capabilities: slices.Clone(d.Capabilities),
		},
		Transitive: d.Transitive,
		Constraint: d.Constraint,
		Changing:   d.Changing,
		Artifacts:  d.Artifacts,
		Excludes:   d.Excludes,
	}
	if d.Module != nil {
		desc.Selector.Module = *d.Module
	}
	for _, mp := range d.Mappings {
		desc.Mappings = append(desc.Mappings, depmeta.MappingRule{From: slices.Clone(mp.From), To: slices.Clone(mp.To)})
	}
	if len(desc.Mappings) == 0 {
		desc.Mappings = []depmeta.MappingRule{DefaultMapping}
	}

	opts := []depmeta.Option{depmeta.WithLogger(ld.logger)}
	if d.Reason != "" {
		opts = append(opts, depmeta.Reason(d.Reason))
	}
	if d.AttributeMatching {
		opts = append(opts, depmeta.AlwaysUseAttributeMatching())
	}
	meta := depmeta.New(source, Root, desc, opts...)

	edge := engine.Edge{
		ID:           d.ID,
		Dependency:   meta,
		Candidates:   components,
		Capabilities: slices.Clone(d.Capabilities),
	}
	switch {
	case d.Project != "":
		edge.Dependency = depmeta.NewProjectMetadata(depmeta.ProjectSelector{BuildPath: d.BuildPath, ProjectPath: d.Project}, meta)
	case d.Module == nil:
		return engine.Edge{}, loadError(subject, nil, "declares neither module nor project")
	}

	for _, name := range d.Pipeline {
		step, ok := pipelines[name]
		if !ok {
			return engine.Edge{}, loadError(subject, nil, "unknown transform %q", name)
		}
		edge.Pipeline = append(edge.Pipeline, step)
	}
	return edge, nil
}

// buildSchema uses plain equality when the model declares no rules.
func buildSchema(spec ir.SchemaSpec) (attr.Schema, error) {
	if len(spec.Attributes) == 0 && len(spec.Precedence) == 0 {
		return attr.EqualitySchema{}, nil
	}
	return attr.NewRuleSchema(spec)
}

func buildComponent(spec ir.ComponentSpec) (*variant.ComponentState, error) {
	variants := make([]*variant.Variant, 0, len(spec.Variants))
	for _, v := range spec.Variants {
		variants = append(variants, &variant.Variant{
			Name:         v.Name,
			Attributes:   attr.Of(v.Attributes),
			Capabilities: slices.Clone(v.Capabilities),
			Artifacts:    slices.Clone(v.Artifacts),
			Files:        ir.NewFileSet(v.Files...),
			Upstream:     ir.NewFileSet(v.Upstream...),
		})
	}
	configs := make([]*variant.LegacyConfiguration, 0, len(spec.Configurations))
	for _, c := range spec.Configurations {
		r, err := roleOf(c.Role)
		if err != nil {
			return nil, err
		}
		configs = append(configs, &variant.LegacyConfiguration{
			Name:       c.Name,
			Role:       r,
			Extends:    slices.Clone(c.Extends),
			Attributes: attr.Of(c.Attributes),
			Artifacts:  slices.Clone(c.Artifacts),
			Files:      ir.NewFileSet(c.Files...),
			Upstream:   ir.NewFileSet(c.Upstream...),
		})
	}
	return variant.NewComponentState(spec.ID, variants, configs)
}

// roleOf maps a role name to its predefined role. No name means legacy.
func roleOf(name string) (role.Role, error) {
	if name == "" {
		return role.Legacy, nil
	}
	r, ok := role.ByName(name)
	if !ok {
		return role.Role{}, &UnknownRoleError{Name: name}
	}
	return r, nil
}

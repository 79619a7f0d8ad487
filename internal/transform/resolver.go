package transform

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/roach88/graphres/internal/ir"
)

// Step is one stage of a transform pipeline.
type Step interface {
	DisplayName() string
	// RequiresDependencies reports whether the step consumes the resolved
	// upstream artifacts of the edge as extra input.
	RequiresDependencies() bool
}

type step struct {
	name     string
	requires bool
}

func (s step) DisplayName() string        { return s.name }
func (s step) RequiresDependencies() bool { return s.requires }

// NewStep declares a step.
func NewStep(name string, requiresDependencies bool) Step {
	return step{name: name, requires: requiresDependencies}
}

// Pipeline is an ordered list of steps.
type Pipeline []Step

// Names returns the step names in order.
func (p Pipeline) Names() []string {
	out := make([]string, len(p))
	for i, s := range p {
		out[i] = s.DisplayName()
	}
	return out
}

// Result is the memoized outcome of computing a step's upstream artifacts.
type Result struct {
	Files ir.FileSet
	Err   error
}

// DependencyVisitor receives each build dependency of a resolver.
type DependencyVisitor func(dependency string)

// Resolver supplies the upstream dependencies of one transform step.
type Resolver interface {
	// SelectedArtifacts returns the upstream files of the edge.
	SelectedArtifacts(ctx context.Context) (ir.FileSet, error)
	// ComputeArtifacts returns the memoized resolution result.
	ComputeArtifacts(ctx context.Context) Result
	// VisitDependencies reports the work that must run before the files
	// exist.
	VisitDependencies(visit DependencyVisitor) error
}

// ResolverFactory hands out the resolver of each step.
type ResolverFactory interface {
	DependenciesFor(step Step) Resolver
}

// UpstreamSource resolves the upstream files of an edge.
type UpstreamSource func(ctx context.Context) (ir.FileSet, error)

// UpstreamResolvers is the live factory bound to a resolved edge. Each step
// gets one resolver whose result is computed at most once.
type UpstreamResolvers struct {
	source    UpstreamSource
	buildDeps []string

	mu        sync.Mutex
	resolvers map[string]*upstreamResolver
}

// NewUpstreamResolvers binds a live factory to source. buildDeps name the
// work producing the upstream files, reported by VisitDependencies.
func NewUpstreamResolvers(source UpstreamSource, buildDeps ...string) *UpstreamResolvers {
	return &UpstreamResolvers{
		source:    source,
		buildDeps: buildDeps,
		resolvers: make(map[string]*upstreamResolver),
	}
}

// DependenciesFor returns the step's resolver, creating it on first use.
func (u *UpstreamResolvers) DependenciesFor(s Step) Resolver {
	u.mu.Lock()
	defer u.mu.Unlock()

	r, ok := u.resolvers[s.DisplayName()]
	if !ok {
		r = &upstreamResolver{parent: u}
		u.resolvers[s.DisplayName()] = r
	}
	return r
}

type upstreamResolver struct {
	parent *UpstreamResolvers
	cell   Cell[ir.FileSet]
}

func (r *upstreamResolver) ComputeArtifacts(ctx context.Context) Result {
	files, err := r.cell.Get(func() (ir.FileSet, error) {
		files, err := r.parent.source(ctx)
		if err != nil {
			return nil, err
		}
		if err := files.Validate(); err != nil {
			return nil, fmt.Errorf("upstream artifacts: %w", err)
		}
		return files.Clone(), nil
	})
	return Result{Files: files, Err: err}
}

func (r *upstreamResolver) SelectedArtifacts(ctx context.Context) (ir.FileSet, error) {
	res := r.ComputeArtifacts(ctx)
	if res.Err != nil {
		return nil, res.Err
	}
	return res.Files.Clone(), nil
}

func (r *upstreamResolver) VisitDependencies(visit DependencyVisitor) error {
	for _, d := range r.parent.buildDeps {
		visit(d)
	}
	return nil
}

// FixedResolver is a frozen replay of a persisted result. It answers the
// same files for every step and refuses dependency traversal.
type FixedResolver struct {
	result Result
}

// NewFixedResolver freezes a copy of files.
func NewFixedResolver(files ir.FileSet) *FixedResolver {
	return &FixedResolver{result: Result{Files: files.Clone()}}
}

// DependenciesFor returns the receiver for every step.
func (f *FixedResolver) DependenciesFor(Step) Resolver { return f }

func (f *FixedResolver) SelectedArtifacts(context.Context) (ir.FileSet, error) {
	return f.result.Files.Clone(), nil
}

func (f *FixedResolver) ComputeArtifacts(context.Context) Result {
	return Result{Files: f.result.Files.Clone(), Err: f.result.Err}
}

// VisitDependencies always fails: the dependency graph that produced the
// files does not exist in a replay.
func (f *FixedResolver) VisitDependencies(DependencyVisitor) error {
	return &IllegalReplayStateError{Operation: "visit dependencies"}
}

type noDependencies struct{}

// NoDependencies is the resolver of steps that need nothing.
var NoDependencies interface {
	Resolver
	ResolverFactory
} = noDependencies{}

func (noDependencies) DependenciesFor(Step) Resolver { return NoDependencies }

func (noDependencies) SelectedArtifacts(context.Context) (ir.FileSet, error) {
	return ir.NewFileSet(), nil
}

func (noDependencies) ComputeArtifacts(context.Context) Result {
	return Result{Files: ir.NewFileSet()}
}

func (noDependencies) VisitDependencies(DependencyVisitor) error { return nil }

// SnapshotResolvers is the factory recreated from persisted per-step
// results. Steps without a persisted result get NoDependencies.
type SnapshotResolvers struct {
	steps map[string]Resolver
}

// NewSnapshotResolvers recreates one resolver per persisted step.
func NewSnapshotResolvers(deps []StepDependencies) *SnapshotResolvers {
	steps := make(map[string]Resolver, len(deps))
	for _, d := range deps {
		steps[d.Step] = d.Dependencies.Recreate()
	}
	return &SnapshotResolvers{steps: steps}
}

func (s *SnapshotResolvers) DependenciesFor(st Step) Resolver {
	if r, ok := s.steps[st.DisplayName()]; ok {
		return r
	}
	return NoDependencies
}

// ResolveDependencies computes, for each step in pipeline order, whether it
// needs upstream dependencies and, if so, which files.
func ResolveDependencies(ctx context.Context, pipeline Pipeline, factory ResolverFactory) ([]StepDependencies, error) {
	out := make([]StepDependencies, 0, len(pipeline))
	for _, s := range pipeline {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !s.RequiresDependencies() {
			out = append(out, StepDependencies{Step: s.DisplayName(), Dependencies: NotRequired})
			continue
		}
		files, err := factory.DependenciesFor(s).SelectedArtifacts(ctx)
		if err != nil {
			return nil, fmt.Errorf("transform step %s: %w", s.DisplayName(), err)
		}
		out = append(out, StepDependencies{Step: s.DisplayName(), Dependencies: FileDependencies{Files: files}})
	}
	return out, nil
}

// IllegalReplayStateError reports an operation a frozen replay cannot
// perform. Always fatal to the caller.
type IllegalReplayStateError struct {
	Operation string
}

func (e *IllegalReplayStateError) Error() string {
	return fmt.Sprintf("cannot %s of a resolver recreated from a persisted result", e.Operation)
}

// IsIllegalReplayState returns true if err is an IllegalReplayStateError.
func IsIllegalReplayState(err error) bool {
	var e *IllegalReplayStateError
	return errors.As(err, &e)
}

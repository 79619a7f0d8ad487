package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/graphres/internal/attr"
	"github.com/roach88/graphres/internal/codec"
	"github.com/roach88/graphres/internal/depmeta"
	"github.com/roach88/graphres/internal/ir"
	"github.com/roach88/graphres/internal/store"
	"github.com/roach88/graphres/internal/transform"
	"github.com/roach88/graphres/internal/variant"
)

// Edge is one dependency edge to resolve.
type Edge struct {
	// ID names the edge; unique within a request.
	ID string

	// Dependency is the edge metadata bound to its source configuration.
	Dependency depmeta.DependencyMetadata

	// Candidates are the published components the selector may match.
	Candidates []*variant.ComponentState

	// Capabilities are the explicitly requested capabilities, if any.
	Capabilities []ir.Capability

	// Pipeline is the artifact transform chain applied to the edge. Edges
	// without a pipeline are never cached.
	Pipeline transform.Pipeline

	// Upstream overrides the upstream files handed to transform steps.
	// Defaults to the union of the selected variants' upstream files.
	// The context key cannot see the function, only UpstreamKey: an override
	// must return the same files for the same UpstreamKey, or cache hits
	// replay files it would no longer produce.
	Upstream transform.UpstreamSource

	// UpstreamKey identifies what Upstream returns. Hashed into the context
	// key of edges that set Upstream.
	UpstreamKey string
}

// Request is a batch of edges resolved against one consumer.
type Request struct {
	Consumer attr.Attributes
	Schema   attr.Schema
	Edges    []Edge
}

// Mode is how the variants of an edge were selected.
type Mode string

const (
	ModeAttributeMatching Mode = "attribute-matching"
	ModeLegacy            Mode = "legacy"
)

// CacheStatus is how the cache was involved in an edge.
type CacheStatus string

const (
	CacheNone    CacheStatus = "none"
	CacheHit     CacheStatus = "hit"
	CacheMiss    CacheStatus = "miss"
	CacheCorrupt CacheStatus = "corrupt"
)

// EdgeResult is the outcome of one edge. Failure is set for edges that
// could not be resolved; the other fields are then empty.
type EdgeResult struct {
	EdgeID            string
	Component         ir.ComponentID
	Variants          []*variant.Variant
	AttributeMatching bool
	Steps             []transform.StepDependencies
	Resolvers         transform.ResolverFactory
	ContextKey        string
	Cache             CacheStatus
	Failure           error
}

// Mode reports the selection mode of a resolved edge.
func (r EdgeResult) Mode() Mode {
	if r.AttributeMatching {
		return ModeAttributeMatching
	}
	return ModeLegacy
}

// VariantNames returns the selected variant names in order.
func (r EdgeResult) VariantNames() []string {
	return variant.SelectionResult{Variants: r.Variants}.Names()
}

// Result holds every edge outcome in request order.
type Result struct {
	ID       string
	Edges    []EdgeResult
	Failures []EdgeFailure
}

// Err returns a FailuresError listing every failed edge, or nil.
func (r *Result) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	return &FailuresError{Failures: r.Failures}
}

// Edge returns the result of the edge with the given id.
func (r *Result) Edge(id string) (EdgeResult, bool) {
	for _, e := range r.Edges {
		if e.EdgeID == id {
			return e, true
		}
	}
	return EdgeResult{}, false
}

// Engine resolves requests. Edges of a request run in parallel on a
// bounded worker pool; every selection is a pure function of its inputs,
// so the result never depends on scheduling.
//
// Thread-safety: Resolve may be called from any goroutine.
type Engine struct {
	store    *store.Store
	selector *variant.Selector
	metrics  *Metrics
	clock    TimeSource
	ids      IDGenerator
	logger   *slog.Logger
	workers  int
	maxEdges int
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithStore enables the transform dependency cache.
func WithStore(s *store.Store) EngineOption {
	return func(e *Engine) {
		e.store = s
	}
}

// WithFailureProcessor replaces the selection failure processor.
func WithFailureProcessor(fp variant.FailureProcessor) EngineOption {
	return func(e *Engine) {
		e.selector = variant.NewSelector(fp)
	}
}

// WithMetrics sets the collectors the engine reports to.
func WithMetrics(m *Metrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithTimeSource sets the clock used for cache access times.
func WithTimeSource(ts TimeSource) EngineOption {
	return func(e *Engine) {
		e.clock = ts
	}
}

// WithIDGenerator sets the generator of resolution ids.
func WithIDGenerator(g IDGenerator) EngineOption {
	return func(e *Engine) {
		e.ids = g
	}
}

// WithLogger sets the engine logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithWorkers sets the number of edges resolved concurrently.
//
// Default: 8 (DefaultWorkers). Use WithWorkers(1) for strictly sequential
// resolution.
func WithWorkers(n int) EngineOption {
	return func(e *Engine) {
		e.workers = n
	}
}

// WithMaxEdges bounds the edges of one request. Zero disables the limit.
func WithMaxEdges(n int) EngineOption {
	return func(e *Engine) {
		e.maxEdges = n
	}
}

// New creates an Engine. Without WithStore nothing is cached.
func New(opts ...EngineOption) *Engine {
	e := &Engine{
		selector: variant.NewSelector(nil),
		clock:    SystemTime{},
		ids:      UUIDv7Generator{},
		workers:  DefaultWorkers,
		maxEdges: DefaultMaxEdges,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.metrics == nil {
		e.metrics = NewMetrics(nil)
	}
	if e.workers < 1 {
		e.workers = 1
	}
	return e
}

// Metrics returns the engine's collectors.
func (e *Engine) Metrics() *Metrics {
	return e.metrics
}

// Resolve resolves every edge of req.
//
// Edge failures (no matching variant, ambiguity, missing configuration, ...)
// are collected into the result and surfaced together by Result.Err.
// Structural failures (invalid request, store I/O, cancellation) abort the
// resolution and are returned as the error.
func (e *Engine) Resolve(ctx context.Context, req *Request) (*Result, error) {
	return e.resolve(ctx, req, true)
}

func (e *Engine) resolve(ctx context.Context, req *Request, useCache bool) (*Result, error) {
	if err := validateRequest(req, e.maxEdges); err != nil {
		return nil, err
	}
	started := time.Now()
	id := e.ids.Generate()
	logger := e.logger.With("resolution", id)
	logger.Debug("resolution starting", "edges", len(req.Edges), "workers", e.workers)

	results := make([]EdgeResult, len(req.Edges))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i := range req.Edges {
		i := i
		g.Go(func() error {
			res, err := e.resolveEdge(gctx, logger, req, &req.Edges[i], useCache)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error("resolution aborted", "error", err)
		return nil, err
	}

	out := &Result{ID: id, Edges: results}
	for _, r := range results {
		if r.Failure == nil {
			e.metrics.EdgesResolved.WithLabelValues(string(r.Mode())).Inc()
			continue
		}
		kind := variant.FailureKind(r.Failure)
		out.Failures = append(out.Failures, EdgeFailure{EdgeID: r.EdgeID, Kind: kind, Err: r.Failure})
		e.metrics.EdgeFailures.WithLabelValues(kind).Inc()
	}
	e.metrics.ResolutionDuration.Observe(time.Since(started).Seconds())

	logger.Info("resolution finished",
		"edges", len(results),
		"failures", len(out.Failures),
	)
	return out, nil
}

func validateRequest(req *Request, maxEdges int) error {
	if req == nil {
		return invalidRequest("", "nil request")
	}
	if req.Schema == nil {
		return invalidRequest("", "missing attribute schema")
	}
	if err := checkEdgeLimit(len(req.Edges), maxEdges); err != nil {
		return err
	}
	seen := make(map[string]bool, len(req.Edges))
	for i, edge := range req.Edges {
		if edge.ID == "" {
			return invalidRequest("", "edge %d has no id", i)
		}
		if seen[edge.ID] {
			return invalidRequest(edge.ID, "duplicate edge id")
		}
		seen[edge.ID] = true
		if edge.Dependency == nil {
			return invalidRequest(edge.ID, "missing dependency metadata")
		}
	}
	return nil
}

// resolveEdge returns an edge failure inside the result and structural
// failures as the error.
func (e *Engine) resolveEdge(ctx context.Context, logger *slog.Logger, req *Request, edge *Edge, useCache bool) (EdgeResult, error) {
	if err := ctx.Err(); err != nil {
		return EdgeResult{}, err
	}
	res := EdgeResult{EdgeID: edge.ID, Cache: CacheNone}

	target, err := depmeta.SelectComponent(edge.Dependency.Selector(), edge.Candidates)
	if err != nil {
		return e.edgeFailure(logger, res, err)
	}
	res.Component = target.ID

	var inputs ir.Object
	if len(edge.Pipeline) > 0 {
		inputs, err = contextInputs(req, edge, target)
		if err != nil {
			return EdgeResult{}, &EngineError{Code: ErrCodeInvalidRequest, Message: "context key", EdgeID: edge.ID, Err: err}
		}
		res.ContextKey, err = ir.ContextKey(inputs)
		if err != nil {
			return EdgeResult{}, &EngineError{Code: ErrCodeInvalidRequest, Message: "context key", EdgeID: edge.ID, Err: err}
		}
	}

	cached := useCache && e.store != nil && res.ContextKey != ""
	if cached {
		hit, status, err := e.lookup(ctx, logger, edge, target, res)
		if err != nil {
			return EdgeResult{}, err
		}
		if status == CacheHit {
			return hit, nil
		}
		res.Cache = status
	}

	sel, err := edge.Dependency.SelectVariants(e.selector, req.Consumer, target, req.Schema, edge.Capabilities)
	if err != nil {
		return e.edgeFailure(logger, res, err)
	}
	res.Variants = sel.Variants
	res.AttributeMatching = sel.UsedAttributeMatching

	if len(edge.Pipeline) > 0 {
		factory := e.liveResolvers(edge, target, sel.Variants)
		res.Steps, err = transform.ResolveDependencies(ctx, edge.Pipeline, factory)
		if err != nil {
			if ctx.Err() != nil {
				return EdgeResult{}, ctx.Err()
			}
			return EdgeResult{}, &EngineError{Code: ErrCodeUpstream, Message: "resolve transform dependencies", EdgeID: edge.ID, Err: err}
		}
		res.Resolvers = factory
	}

	if cached {
		if err := e.persist(ctx, res, inputs); err != nil {
			return EdgeResult{}, err
		}
	}

	logger.Debug("edge resolved",
		"edge", edge.ID,
		"component", res.Component.String(),
		"variants", res.VariantNames(),
		"mode", res.Mode(),
		"cache", res.Cache,
	)
	return res, nil
}

func (e *Engine) edgeFailure(logger *slog.Logger, res EdgeResult, err error) (EdgeResult, error) {
	if variant.FailureKind(err) == "" {
		if depmeta.IsUnsupportedSelector(err) {
			return EdgeResult{}, &EngineError{Code: ErrCodeInvalidRequest, Message: "unsupported selector", EdgeID: res.EdgeID, Err: err}
		}
		return EdgeResult{}, fmt.Errorf("edge %s: %w", res.EdgeID, err)
	}
	logger.Debug("edge failed", "edge", res.EdgeID, "kind", variant.FailureKind(err), "error", err)
	return EdgeResult{EdgeID: res.EdgeID, Component: res.Component, ContextKey: res.ContextKey, Cache: CacheNone, Failure: err}, nil
}

// liveResolvers binds the upstream files of the selected variants.
func (e *Engine) liveResolvers(edge *Edge, target *variant.ComponentState, selected []*variant.Variant) *transform.UpstreamResolvers {
	source := edge.Upstream
	if source == nil {
		source = func(context.Context) (ir.FileSet, error) {
			files := ir.NewFileSet()
			for _, v := range selected {
				files = files.Union(v.Upstream)
			}
			return files, nil
		}
	}
	deps := make([]string, len(selected))
	for i, v := range selected {
		deps[i] = target.ID.String() + " " + v.Name
	}
	return transform.NewUpstreamResolvers(source, deps...)
}

// lookup reads the cache entry of res.ContextKey. A hit returns the
// replayed result; a corrupt entry is logged and reported as such so the
// caller recomputes and overwrites it.
func (e *Engine) lookup(ctx context.Context, logger *slog.Logger, edge *Edge, target *variant.ComponentState, res EdgeResult) (EdgeResult, CacheStatus, error) {
	entry, err := e.store.ReadEntry(ctx, res.ContextKey)
	if errors.Is(err, store.ErrEntryNotFound) {
		e.metrics.CacheEvents.WithLabelValues(cacheMiss).Inc()
		return res, CacheMiss, nil
	}
	if err != nil {
		return EdgeResult{}, CacheNone, storeError(edge.ID, "read cache entry", err)
	}

	snap, err := codec.DecodeSnapshot(entry.Payload)
	if err == nil {
		var replayed EdgeResult
		replayed, err = replaySnapshot(res, target, snap)
		if err == nil {
			if err := e.store.TouchEntry(ctx, res.ContextKey, e.clock.Now()); err != nil {
				return EdgeResult{}, CacheNone, storeError(edge.ID, "touch cache entry", err)
			}
			e.metrics.CacheEvents.WithLabelValues(cacheHit).Inc()
			logger.Debug("cache hit", "edge", edge.ID, "key", res.ContextKey)
			return replayed, CacheHit, nil
		}
	}

	logger.Warn("corrupt cache entry, recomputing",
		"edge", edge.ID,
		"key", res.ContextKey,
		"error", err,
	)
	e.metrics.CacheEvents.WithLabelValues(cacheCorrupt).Inc()
	return res, CacheCorrupt, nil
}

// replaySnapshot rebuilds an edge result from a persisted snapshot. The
// selection is not recomputed: variants are looked up by name and the
// attribute-matching flag is taken as persisted.
func replaySnapshot(res EdgeResult, target *variant.ComponentState, snap codec.Snapshot) (EdgeResult, error) {
	if snap.Component != target.ID.String() {
		return EdgeResult{}, &EngineError{
			Code:    ErrCodeReplayMismatch,
			Message: fmt.Sprintf("entry recorded for %s, target is %s", snap.Component, target.ID),
			EdgeID:  res.EdgeID,
		}
	}
	variants, err := lookupVariants(target, snap.Variants)
	if err != nil {
		return EdgeResult{}, &EngineError{Code: ErrCodeReplayMismatch, Message: err.Error(), EdgeID: res.EdgeID}
	}
	res.Variants = variants
	res.AttributeMatching = snap.AttributeMatching
	res.Steps = snap.Steps
	res.Resolvers = transform.NewSnapshotResolvers(snap.Steps)
	res.Cache = CacheHit
	return res, nil
}

func lookupVariants(target *variant.ComponentState, names []string) ([]*variant.Variant, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("no variants recorded")
	}
	out := make([]*variant.Variant, 0, len(names))
	for _, name := range names {
		v, ok := findVariant(target, name)
		if !ok {
			return nil, fmt.Errorf("variant %q not published by %s", name, target.ID)
		}
		out = append(out, v)
	}
	return out, nil
}

func findVariant(target *variant.ComponentState, name string) (*variant.Variant, bool) {
	if target.UseVariants() {
		for _, v := range target.Variants() {
			if v.Name == name {
				return v, true
			}
		}
		return nil, false
	}
	return target.LegacyVariant(name)
}

func (e *Engine) persist(ctx context.Context, res EdgeResult, inputs ir.Object) error {
	payload, err := codec.EncodeSnapshot(snapshotOf(res))
	if err != nil {
		return &EngineError{Code: ErrCodeStore, Message: "encode cache entry", EdgeID: res.EdgeID, Err: err}
	}
	err = e.store.WriteEntry(ctx, store.Entry{
		ContextKey:    res.ContextKey,
		Inputs:        inputs,
		Payload:       payload,
		FormatVersion: int(codec.SnapshotFormatVersion),
		CreatedAt:     e.clock.Now(),
	})
	if err != nil {
		return storeError(res.EdgeID, "write cache entry", err)
	}
	return nil
}

func snapshotOf(res EdgeResult) codec.Snapshot {
	return codec.Snapshot{
		Component:         res.Component.String(),
		Variants:          res.VariantNames(),
		AttributeMatching: res.AttributeMatching,
		Steps:             res.Steps,
	}
}

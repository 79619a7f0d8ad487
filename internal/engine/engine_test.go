package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/graphres/internal/attr"
	"github.com/roach88/graphres/internal/depmeta"
	"github.com/roach88/graphres/internal/ir"
	"github.com/roach88/graphres/internal/testutil"
	"github.com/roach88/graphres/internal/transform"
	"github.com/roach88/graphres/internal/variant"
)

func TestEngine_New(t *testing.T) {
	e := New()

	assert.NotNil(t, e.selector)
	assert.NotNil(t, e.logger)
	assert.NotNil(t, e.Metrics())
	assert.Equal(t, DefaultWorkers, e.workers)
	assert.Equal(t, DefaultMaxEdges, e.maxEdges)
	assert.Nil(t, e.store)
}

func TestEngine_WithWorkersClampsToOne(t *testing.T) {
	e := New(WithWorkers(0))
	assert.Equal(t, 1, e.workers)
}

func TestResolve_AttributeMatching(t *testing.T) {
	e := newTestEngine(WithIDGenerator(NewFixedGenerator("res-1")))

	res, err := e.Resolve(context.Background(), testRequest(guavaEdge("compile->guava")))
	require.NoError(t, err)
	require.NoError(t, res.Err())

	assert.Equal(t, "res-1", res.ID)
	require.Len(t, res.Edges, 1)
	edge := res.Edges[0]
	assert.Equal(t, "compile->guava", edge.EdgeID)
	assert.Equal(t, "com.google.guava:guava:32.0.0", edge.Component.String())
	assert.Equal(t, []string{"apiElements"}, edge.VariantNames())
	assert.Equal(t, ModeAttributeMatching, edge.Mode())
	assert.Equal(t, CacheNone, edge.Cache)
	assert.Empty(t, edge.ContextKey, "edges without a pipeline are not keyed")
	assert.Nil(t, edge.Failure)
}

func TestResolve_SelectorAttributesOverrideConsumer(t *testing.T) {
	e := newTestEngine()

	dep := moduleDep("com.google.guava", "guava", "31.1.0")
	dep = dep.WithDescriptor(dep.Descriptor().WithSelector(depmeta.ModuleSelector{
		Module:     ir.ModuleID{Group: "com.google.guava", Name: "guava"},
		Version:    ir.VersionConstraint{Required: "31.1.0"},
		Attributes: testutil.Attrs("usage", "java-runtime"),
	}))
	edge := Edge{ID: "runtime", Dependency: dep, Candidates: guavaEdge("").Candidates}

	res, err := e.Resolve(context.Background(), testRequest(edge))
	require.NoError(t, err)
	assert.Equal(t, []string{"runtimeElements"}, res.Edges[0].VariantNames())
	assert.Equal(t, "com.google.guava:guava:31.1.0", res.Edges[0].Component.String())
}

func TestResolve_LegacyMapping(t *testing.T) {
	e := newTestEngine()

	edge := Edge{
		ID:         "compile->lib",
		Dependency: moduleDep("org.legacy", "lib", "2.0.0"),
		Candidates: []*variant.ComponentState{legacyLib(t)},
	}
	res, err := e.Resolve(context.Background(), testRequest(edge))
	require.NoError(t, err)
	require.NoError(t, res.Err())

	got := res.Edges[0]
	assert.Equal(t, ModeLegacy, got.Mode())
	assert.Equal(t, []string{"default"}, got.VariantNames())
	assert.Equal(t, ir.NewFileSet("lib.jar", "lib-runtime.jar"), got.Variants[0].Files)
}

func TestResolve_CollectsEdgeFailures(t *testing.T) {
	reg := prometheus.NewRegistry()
	e := newTestEngine(WithMetrics(NewMetrics(reg)))

	missing := Edge{
		ID:         "compile->missing",
		Dependency: moduleDep("org.missing", "missing", "1.0.0"),
		Candidates: guavaEdge("").Candidates,
	}
	mismatch := guavaEdge("compile->guava-test")
	mismatch.Capabilities = []ir.Capability{{Group: "com.google.guava", Name: "guava-testlib", Version: "32.0.0"}}

	req := testRequest(missing, guavaEdge("compile->guava"), mismatch)
	res, err := e.Resolve(context.Background(), req)
	require.NoError(t, err, "edge failures are not structural")

	require.Len(t, res.Edges, 3)
	require.Len(t, res.Failures, 2)
	assert.Equal(t, "compile->missing", res.Failures[0].EdgeID)
	assert.Equal(t, depmeta.KindNoMatchingComponent, res.Failures[0].Kind)
	assert.Equal(t, "compile->guava-test", res.Failures[1].EdgeID)
	assert.Equal(t, variant.KindNoMatchingCapabilities, res.Failures[1].Kind)

	ok, found := res.Edge("compile->guava")
	require.True(t, found)
	assert.Nil(t, ok.Failure)

	failErr := res.Err()
	require.Error(t, failErr)
	assert.True(t, IsFailures(failErr))
	assert.True(t, depmeta.IsNoMatchingComponent(failErr))
	assert.True(t, strings.HasPrefix(failErr.Error(), "2 edges failed to resolve:"))
	assert.Contains(t, failErr.Error(), "edge compile->missing [no-matching-component]")

	m := e.Metrics()
	assert.Equal(t, 1.0, promtest.ToFloat64(m.EdgesResolved.WithLabelValues(string(ModeAttributeMatching))))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.EdgeFailures.WithLabelValues(depmeta.KindNoMatchingComponent)))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.EdgeFailures.WithLabelValues(variant.KindNoMatchingCapabilities)))
}

// bareProcessor reports unmatched variants as untyped errors.
type bareProcessor struct {
	variant.DescribingFailureProcessor
}

func (bareProcessor) NoMatchingVariant(ir.ComponentID, attr.Attributes, []variant.CandidateMismatch) error {
	return errors.New("no matching variant")
}

func TestResolve_CustomFailureProcessorFailsOnlyItsEdge(t *testing.T) {
	e := newTestEngine(WithFailureProcessor(bareProcessor{}))

	native := Edge{
		ID:         "bad",
		Dependency: moduleDep("org.native", "lib", "1.0.0"),
		Candidates: []*variant.ComponentState{
			testutil.Component("org.native:lib:1.0.0",
				testutil.Variant("linkElements", testutil.Attrs("usage", "native-link"))),
		},
	}
	res, err := e.Resolve(context.Background(), testRequest(native, guavaEdge("good")))
	require.NoError(t, err)

	require.Len(t, res.Failures, 1)
	assert.Equal(t, "bad", res.Failures[0].EdgeID)
	assert.Equal(t, variant.KindNoMatchingVariant, res.Failures[0].Kind)
	assert.EqualError(t, res.Failures[0].Err, "no matching variant")

	good, found := res.Edge("good")
	require.True(t, found)
	assert.Nil(t, good.Failure)
	assert.Equal(t, []string{"apiElements"}, good.VariantNames())
}

func TestResolve_InvalidRequests(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	tests := []struct {
		name string
		req  *Request
	}{
		{"nil request", nil},
		{"nil schema", &Request{Edges: []Edge{guavaEdge("a")}}},
		{"empty edge id", testRequest(guavaEdge(""))},
		{"duplicate edge id", testRequest(guavaEdge("a"), guavaEdge("a"))},
		{"missing metadata", testRequest(Edge{ID: "a"})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Resolve(ctx, tt.req)
			require.Error(t, err)
			assert.True(t, IsInvalidRequest(err), "got %v", err)
		})
	}
}

func TestResolve_UnsupportedSelectorIsStructural(t *testing.T) {
	e := newTestEngine()

	edge := guavaEdge("a")
	edge.Dependency = unsupportedDep{edge.Dependency}
	_, err := e.Resolve(context.Background(), testRequest(edge))
	require.Error(t, err)
	assert.True(t, IsInvalidRequest(err))
	assert.True(t, depmeta.IsUnsupportedSelector(err))
}

type oddSelector struct{}

func (oddSelector) DisplayName() string { return "odd" }

type unsupportedDep struct {
	depmeta.DependencyMetadata
}

func (unsupportedDep) Selector() depmeta.ComponentSelector { return oddSelector{} }

func TestResolve_EdgeLimit(t *testing.T) {
	e := newTestEngine(WithMaxEdges(2))

	_, err := e.Resolve(context.Background(), testRequest(guavaEdge("a"), guavaEdge("b"), guavaEdge("c")))
	require.Error(t, err)
	assert.True(t, IsEdgeLimit(err))
	assert.Contains(t, err.Error(), "request has 3 edges, limit is 2")

	unlimited := newTestEngine(WithMaxEdges(0))
	_, err = unlimited.Resolve(context.Background(), testRequest(guavaEdge("a"), guavaEdge("b"), guavaEdge("c")))
	assert.NoError(t, err)
}

func TestResolve_Cancelled(t *testing.T) {
	e := newTestEngine()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Resolve(ctx, testRequest(guavaEdge("a")))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestResolve_DeterministicAcrossWorkerCounts(t *testing.T) {
	edges := make([]Edge, 0, 24)
	for i := 0; i < 24; i++ {
		edge := guavaEdge(fmt.Sprintf("edge-%02d", i))
		if i%3 == 0 {
			edge.Pipeline = testPipeline()
		}
		if i%5 == 0 {
			edge.Dependency = moduleDep("org.missing", "missing", "1.0.0")
		}
		edges = append(edges, edge)
	}

	project := func(res *Result) []string {
		out := make([]string, len(res.Edges))
		for i, r := range res.Edges {
			out[i] = fmt.Sprintf("%s %s %v %s %s %v", r.EdgeID, r.Component, r.VariantNames(), r.Mode(), r.ContextKey, r.Failure != nil)
		}
		return out
	}

	var baseline []string
	for _, workers := range []int{1, 2, 8, 32} {
		e := newTestEngine(WithWorkers(workers))
		res, err := e.Resolve(context.Background(), testRequest(edges...))
		require.NoError(t, err)
		got := project(res)
		if baseline == nil {
			baseline = got
			continue
		}
		assert.Equal(t, baseline, got, "workers=%d", workers)
	}
}

func TestResolve_PipelineWithoutStore(t *testing.T) {
	e := newTestEngine()

	var calls atomic.Int32
	edge := guavaEdge("a")
	edge.Pipeline = testPipeline()
	edge.Upstream = countingUpstream(&calls, "dep-1.jar", "dep-2.jar")

	res, err := e.Resolve(context.Background(), testRequest(edge))
	require.NoError(t, err)

	got := res.Edges[0]
	assert.NotEmpty(t, got.ContextKey)
	assert.Equal(t, CacheNone, got.Cache)
	require.Len(t, got.Steps, 2)
	assert.Equal(t, "minify", got.Steps[0].Step)
	assert.Equal(t, transform.NotRequired, got.Steps[0].Dependencies)
	assert.True(t, transform.Equal(
		transform.FileDependencies{Files: ir.NewFileSet("dep-1.jar", "dep-2.jar")},
		got.Steps[1].Dependencies,
	))
	assert.Equal(t, int32(1), calls.Load())

	var visited []string
	require.NoError(t, got.Resolvers.DependenciesFor(testPipeline()[1]).VisitDependencies(func(d string) {
		visited = append(visited, d)
	}))
	assert.Equal(t, []string{"com.google.guava:guava:32.0.0 apiElements"}, visited)
}

func TestResolve_DefaultUpstreamIsSelectedVariants(t *testing.T) {
	e := newTestEngine()

	edge := guavaEdge("a")
	edge.Pipeline = testPipeline()

	res, err := e.Resolve(context.Background(), testRequest(edge))
	require.NoError(t, err)
	assert.True(t, transform.Equal(
		transform.FileDependencies{Files: ir.NewFileSet("failureaccess.jar")},
		res.Edges[0].Steps[1].Dependencies,
	))
}

func TestResolve_UpstreamErrorIsStructural(t *testing.T) {
	e := newTestEngine()

	edge := guavaEdge("a")
	edge.Pipeline = testPipeline()
	edge.Upstream = func(context.Context) (ir.FileSet, error) {
		return nil, errors.New("artifact download failed")
	}

	_, err := e.Resolve(context.Background(), testRequest(edge))
	require.Error(t, err)
	assert.True(t, IsUpstreamError(err))
	assert.Contains(t, err.Error(), "artifact download failed")
	assert.Contains(t, err.Error(), "transform step shrink")
}

func TestContextKey_StableAndSensitive(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	keyOf := func(req *Request) string {
		t.Helper()
		res, err := e.Resolve(ctx, req)
		require.NoError(t, err)
		require.NotEmpty(t, res.Edges[0].ContextKey)
		return res.Edges[0].ContextKey
	}
	edge := guavaEdge("a")
	edge.Pipeline = testPipeline()

	base := keyOf(testRequest(edge))
	assert.Equal(t, base, keyOf(testRequest(edge)))

	other := testRequest(edge)
	other.Consumer = testutil.Attrs("usage", "java-runtime")
	assert.NotEqual(t, base, keyOf(other), "consumer attributes are keyed")

	renamed := edge
	renamed.ID = "b"
	assert.NotEqual(t, base, keyOf(testRequest(renamed)), "edge id is keyed")

	reordered := edge
	reordered.Pipeline = transform.Pipeline{testPipeline()[1], testPipeline()[0]}
	assert.NotEqual(t, base, keyOf(testRequest(reordered)), "pipeline order is keyed")

	republished := edge
	republished.Candidates = []*variant.ComponentState{
		testutil.Component("com.google.guava:guava:32.0.0",
			testutil.Variant("apiElements", testutil.Attrs("usage", "java-api")),
		),
	}
	assert.NotEqual(t, base, keyOf(testRequest(republished)), "target metadata is keyed")

	var calls atomic.Int32
	overridden := edge
	overridden.Upstream = countingUpstream(&calls, "dep-1.jar")
	overridden.UpstreamKey = "v1"
	withOverride := keyOf(testRequest(overridden))
	assert.NotEqual(t, base, withOverride, "an upstream override is keyed")

	overridden.Upstream = countingUpstream(&calls, "dep-2.jar")
	assert.Equal(t, withOverride, keyOf(testRequest(overridden)), "only the upstream key is hashed")

	overridden.UpstreamKey = "v2"
	assert.NotEqual(t, withOverride, keyOf(testRequest(overridden)), "the upstream key is keyed")
}

func TestResolve_MetricsRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	e := newTestEngine(WithMetrics(NewMetrics(reg)))

	_, err := e.Resolve(context.Background(), testRequest(guavaEdge("a"), guavaEdge("b")))
	require.NoError(t, err)

	assert.Equal(t, 2.0, promtest.ToFloat64(e.Metrics().EdgesResolved.WithLabelValues(string(ModeAttributeMatching))))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "graphres_edges_resolved_total")
	assert.Contains(t, names, "graphres_resolution_duration_seconds")
}

func TestEdgeResult_Mode(t *testing.T) {
	assert.Equal(t, ModeLegacy, EdgeResult{}.Mode())
	assert.Equal(t, ModeAttributeMatching, EdgeResult{AttributeMatching: true}.Mode())
	assert.Empty(t, EdgeResult{}.VariantNames())
}

func TestResult_Edge(t *testing.T) {
	res := &Result{Edges: []EdgeResult{{EdgeID: "a"}, {EdgeID: "b"}}}

	got, ok := res.Edge("b")
	assert.True(t, ok)
	assert.Equal(t, "b", got.EdgeID)

	_, ok = res.Edge("c")
	assert.False(t, ok)
	assert.NoError(t, res.Err())
}

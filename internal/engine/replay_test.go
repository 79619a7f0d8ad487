package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/graphres/internal/codec"
	"github.com/roach88/graphres/internal/ir"
	"github.com/roach88/graphres/internal/store"
	"github.com/roach88/graphres/internal/testutil"
	"github.com/roach88/graphres/internal/transform"
)

func cachedEdge(id string, calls *atomic.Int32) Edge {
	edge := guavaEdge(id)
	edge.Pipeline = testPipeline()
	edge.Upstream = countingUpstream(calls, "dep-1.jar", "dep-2.jar")
	return edge
}

func TestCache_MissThenHit(t *testing.T) {
	s := setupTestStore(t)
	clock := NewSteppingClock(testutil.Epoch, time.Minute)
	e := newTestEngine(WithStore(s), WithTimeSource(clock), WithMetrics(NewMetrics(prometheus.NewRegistry())))
	ctx := context.Background()

	var calls atomic.Int32
	req := testRequest(cachedEdge("a", &calls))

	first, err := e.Resolve(ctx, req)
	require.NoError(t, err)
	miss := first.Edges[0]
	assert.Equal(t, CacheMiss, miss.Cache)
	assert.Equal(t, int32(1), calls.Load())

	second, err := e.Resolve(ctx, req)
	require.NoError(t, err)
	hit := second.Edges[0]
	assert.Equal(t, CacheHit, hit.Cache)
	assert.Equal(t, int32(1), calls.Load(), "a hit never asks for upstream files")

	assert.Equal(t, miss.ContextKey, hit.ContextKey)
	assert.Equal(t, miss.Component, hit.Component)
	assert.Equal(t, miss.VariantNames(), hit.VariantNames())
	assert.Equal(t, miss.Mode(), hit.Mode())
	require.Len(t, hit.Steps, 2)
	for i := range miss.Steps {
		assert.Equal(t, miss.Steps[i].Step, hit.Steps[i].Step)
		assert.True(t, transform.Equal(miss.Steps[i].Dependencies, hit.Steps[i].Dependencies))
	}

	// The replayed resolver is frozen.
	r := hit.Resolvers.DependenciesFor(testPipeline()[1])
	files, err := r.SelectedArtifacts(ctx)
	require.NoError(t, err)
	assert.Equal(t, ir.NewFileSet("dep-1.jar", "dep-2.jar"), files)
	err = r.VisitDependencies(func(string) {})
	assert.True(t, transform.IsIllegalReplayState(err))

	m := e.Metrics()
	assert.Equal(t, 1.0, promtest.ToFloat64(m.CacheEvents.WithLabelValues(cacheMiss)))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.CacheEvents.WithLabelValues(cacheHit)))

	// Written at the first tick, touched at the second.
	records, err := s.AccessRecords(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, testutil.Epoch.Add(time.Minute).Equal(records[0].LastAccess))
	assert.Equal(t, int64(2), clock.Calls())

	entry, err := s.ReadEntry(ctx, miss.ContextKey)
	require.NoError(t, err)
	assert.Equal(t, int(codec.SnapshotFormatVersion), entry.FormatVersion)
	assert.True(t, testutil.Epoch.Equal(entry.CreatedAt))
	assert.Equal(t, ir.String("a"), entry.Inputs["edge"])
}

func TestCache_PathsReplayByteForByte(t *testing.T) {
	e := newTestEngine(WithStore(setupTestStore(t)))
	ctx := context.Background()

	// Canonically equivalent but distinct paths, plus one that is not UTF-8.
	files := []string{"caf\u00e9.jar", "cafe\u0301.jar", "lib/\xff.jar"}
	var calls atomic.Int32
	edge := guavaEdge("a")
	edge.Pipeline = testPipeline()
	edge.Upstream = countingUpstream(&calls, files...)
	req := testRequest(edge)

	var statuses []CacheStatus
	for n := 0; n < 3; n++ {
		res, err := e.Resolve(ctx, req)
		require.NoError(t, err)
		statuses = append(statuses, res.Edges[0].Cache)

		deps, ok := res.Edges[0].Steps[1].Dependencies.(transform.FileDependencies)
		require.True(t, ok)
		assert.Equal(t, ir.FileSet(files), deps.Files)
	}
	assert.Equal(t, []CacheStatus{CacheMiss, CacheHit, CacheHit}, statuses)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCache_UpstreamKeyChangeMisses(t *testing.T) {
	e := newTestEngine(WithStore(setupTestStore(t)))
	ctx := context.Background()

	var calls atomic.Int32
	edge := cachedEdge("a", &calls)
	edge.UpstreamKey = "deps@1"
	first, err := e.Resolve(ctx, testRequest(edge))
	require.NoError(t, err)
	assert.Equal(t, CacheMiss, first.Edges[0].Cache)

	edge.Upstream = countingUpstream(&calls, "dep-3.jar")
	edge.UpstreamKey = "deps@2"
	second, err := e.Resolve(ctx, testRequest(edge))
	require.NoError(t, err)
	assert.Equal(t, CacheMiss, second.Edges[0].Cache)
	assert.NotEqual(t, first.Edges[0].ContextKey, second.Edges[0].ContextKey)
	assert.True(t, transform.Equal(
		transform.FileDependencies{Files: ir.NewFileSet("dep-3.jar")},
		second.Edges[0].Steps[1].Dependencies,
	))
	assert.Equal(t, int32(2), calls.Load())
}

func TestCache_EdgeWithoutPipelineNotPersisted(t *testing.T) {
	s := setupTestStore(t)
	e := newTestEngine(WithStore(s))
	ctx := context.Background()

	res, err := e.Resolve(ctx, testRequest(guavaEdge("a")))
	require.NoError(t, err)
	assert.Equal(t, CacheNone, res.Edges[0].Cache)

	entries, err := s.ListEntries(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCache_CorruptEntryRecomputedAndOverwritten(t *testing.T) {
	s := setupTestStore(t)
	e := newTestEngine(WithStore(s), WithMetrics(NewMetrics(prometheus.NewRegistry())))
	ctx := context.Background()

	var calls atomic.Int32
	req := testRequest(cachedEdge("a", &calls))

	first, err := e.Resolve(ctx, req)
	require.NoError(t, err)
	key := first.Edges[0].ContextKey

	require.NoError(t, s.WriteEntry(ctx, store.Entry{
		ContextKey:    key,
		Payload:       []byte("GRS\x01garbage"),
		FormatVersion: 1,
		CreatedAt:     testutil.Epoch,
	}))

	second, err := e.Resolve(ctx, req)
	require.NoError(t, err)
	got := second.Edges[0]
	assert.Equal(t, CacheCorrupt, got.Cache)
	assert.Equal(t, []string{"apiElements"}, got.VariantNames())
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 1.0, promtest.ToFloat64(e.Metrics().CacheEvents.WithLabelValues(cacheCorrupt)))

	entry, err := s.ReadEntry(ctx, key)
	require.NoError(t, err)
	_, err = codec.DecodeSnapshot(entry.Payload)
	assert.NoError(t, err, "corrupt entry must be overwritten")

	third, err := e.Resolve(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, CacheHit, third.Edges[0].Cache)
}

func TestCache_UnknownVariantTreatedAsCorrupt(t *testing.T) {
	s := setupTestStore(t)
	e := newTestEngine(WithStore(s))
	ctx := context.Background()

	var calls atomic.Int32
	req := testRequest(cachedEdge("a", &calls))
	first, err := e.Resolve(ctx, req)
	require.NoError(t, err)
	key := first.Edges[0].ContextKey

	snap := snapshotOf(first.Edges[0])
	snap.Variants = []string{"shadowElements"}
	payload, err := codec.EncodeSnapshot(snap)
	require.NoError(t, err)
	require.NoError(t, s.WriteEntry(ctx, store.Entry{ContextKey: key, Payload: payload, FormatVersion: 1, CreatedAt: testutil.Epoch}))

	second, err := e.Resolve(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, CacheCorrupt, second.Edges[0].Cache)
	assert.Equal(t, []string{"apiElements"}, second.Edges[0].VariantNames())
}

func TestCache_ReplayKeepsPersistedMode(t *testing.T) {
	s := setupTestStore(t)
	e := newTestEngine(WithStore(s))
	ctx := context.Background()

	var calls atomic.Int32
	req := testRequest(cachedEdge("a", &calls))
	first, err := e.Resolve(ctx, req)
	require.NoError(t, err)
	require.True(t, first.Edges[0].AttributeMatching)

	snap := snapshotOf(first.Edges[0])
	snap.AttributeMatching = false
	payload, err := codec.EncodeSnapshot(snap)
	require.NoError(t, err)
	require.NoError(t, s.WriteEntry(ctx, store.Entry{ContextKey: first.Edges[0].ContextKey, Payload: payload, FormatVersion: 1, CreatedAt: testutil.Epoch}))

	second, err := e.Resolve(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, CacheHit, second.Edges[0].Cache)
	assert.Equal(t, ModeLegacy, second.Edges[0].Mode(), "the mode is never recomputed on replay")
}

func TestReplay(t *testing.T) {
	s := setupTestStore(t)
	e := newTestEngine(WithStore(s))
	ctx := context.Background()

	var calls atomic.Int32
	first, err := e.Resolve(ctx, testRequest(cachedEdge("a", &calls)))
	require.NoError(t, err)
	key := first.Edges[0].ContextKey

	replayed, err := e.Replay(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, key, replayed.ContextKey)
	assert.Equal(t, "com.google.guava:guava:32.0.0", replayed.Snapshot.Component)
	assert.Equal(t, []string{"apiElements"}, replayed.Snapshot.Variants)
	assert.True(t, replayed.Snapshot.AttributeMatching)

	files, err := replayed.Resolvers.DependenciesFor(transform.NewStep("shrink", true)).SelectedArtifacts(ctx)
	require.NoError(t, err)
	assert.Equal(t, ir.NewFileSet("dep-1.jar", "dep-2.jar"), files)

	files, err = replayed.Resolvers.DependenciesFor(transform.NewStep("unknown", true)).SelectedArtifacts(ctx)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestReplay_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := newTestEngine().Replay(ctx, "k")
	assert.True(t, IsInvalidRequest(err))

	s := setupTestStore(t)
	e := newTestEngine(WithStore(s))
	_, err = e.Replay(ctx, "missing")
	assert.True(t, errors.Is(err, store.ErrEntryNotFound))

	require.NoError(t, s.WriteEntry(ctx, store.Entry{ContextKey: "bad", Payload: []byte{1}, FormatVersion: 1, CreatedAt: testutil.Epoch}))
	_, err = e.Replay(ctx, "bad")
	assert.True(t, codec.IsCorruptCacheEntry(err))
}

func TestVerify(t *testing.T) {
	s := setupTestStore(t)
	e := newTestEngine(WithStore(s))
	ctx := context.Background()

	var calls atomic.Int32
	req := testRequest(cachedEdge("cached", &calls), guavaEdge("plain"))

	// Nothing persisted yet.
	v, err := e.Verify(ctx, req)
	require.NoError(t, err)
	require.Len(t, v.Edges, 2)
	assert.Equal(t, VerifyMissing, v.Edges[0].Status)
	assert.Equal(t, VerifySkipped, v.Edges[1].Status)
	assert.True(t, v.OK())

	entries, err := s.ListEntries(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries, "verify never writes")

	first, err := e.Resolve(ctx, req)
	require.NoError(t, err)
	key := first.Edges[0].ContextKey

	v, err = e.Verify(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, VerifyMatch, v.Edges[0].Status)
	assert.Equal(t, key, v.Edges[0].ContextKey)
	assert.True(t, v.OK())

	snap := snapshotOf(first.Edges[0])
	snap.Steps = []transform.StepDependencies{{Step: "minify", Dependencies: transform.NotRequired}}
	payload, err := codec.EncodeSnapshot(snap)
	require.NoError(t, err)
	require.NoError(t, s.WriteEntry(ctx, store.Entry{ContextKey: key, Payload: payload, FormatVersion: 1, CreatedAt: testutil.Epoch}))

	v, err = e.Verify(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, VerifyMismatch, v.Edges[0].Status)
	assert.False(t, v.OK())

	require.NoError(t, s.WriteEntry(ctx, store.Entry{ContextKey: key, Payload: []byte{0}, FormatVersion: 1, CreatedAt: testutil.Epoch}))
	v, err = e.Verify(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, VerifyCorrupt, v.Edges[0].Status)
	assert.False(t, v.OK())
}

func TestVerify_RequiresStore(t *testing.T) {
	_, err := newTestEngine().Verify(context.Background(), testRequest(guavaEdge("a")))
	assert.True(t, IsInvalidRequest(err))
}

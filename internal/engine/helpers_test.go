package engine

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/graphres/internal/attr"
	"github.com/roach88/graphres/internal/depmeta"
	"github.com/roach88/graphres/internal/ir"
	"github.com/roach88/graphres/internal/role"
	"github.com/roach88/graphres/internal/store"
	"github.com/roach88/graphres/internal/testutil"
	"github.com/roach88/graphres/internal/transform"
	"github.com/roach88/graphres/internal/variant"
)

var compileClasspath = depmeta.Configuration{
	Name:      "compileClasspath",
	Role:      role.IntendedResolvable,
	Hierarchy: []string{"compileClasspath", "implementation"},
}

var app = testutil.Module("com.example:app:1.0.0")

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(t.TempDir() + "/cache.db")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestEngine(opts ...EngineOption) *Engine {
	base := []EngineOption{
		WithLogger(testutil.DiscardLogger()),
		WithTimeSource(NewSteppingClock(testutil.Epoch, 0)),
	}
	return New(append(base, opts...)...)
}

// guava publishes an api and a runtime variant.
func guava(version string) *variant.ComponentState {
	return testutil.Component("com.google.guava:guava:"+version,
		testutil.Variant("apiElements", testutil.Attrs("usage", "java-api"), "failureaccess.jar"),
		testutil.Variant("runtimeElements", testutil.Attrs("usage", "java-runtime"), "failureaccess.jar", "jsr305.jar"),
	)
}

// legacyLib publishes only legacy configurations.
func legacyLib(t *testing.T) *variant.ComponentState {
	t.Helper()
	c, err := variant.NewComponentState(testutil.Module("org.legacy:lib:2.0.0"), nil, []*variant.LegacyConfiguration{
		{Name: "default", Role: role.Legacy, Extends: []string{"runtime"}, Files: ir.NewFileSet("lib.jar")},
		{Name: "runtime", Role: role.Legacy, Files: ir.NewFileSet("lib-runtime.jar"), Upstream: ir.NewFileSet("commons.jar")},
	})
	require.NoError(t, err)
	return c
}

func moduleDep(group, name, required string) *depmeta.Metadata {
	return depmeta.New(compileClasspath, app, &depmeta.Descriptor{
		Selector: depmeta.ModuleSelector{
			Module:  ir.ModuleID{Group: group, Name: name},
			Version: ir.VersionConstraint{Required: required},
		},
		Transitive: true,
		Mappings:   []depmeta.MappingRule{{From: []string{depmeta.Wildcard}, To: []string{"default"}}},
	})
}

func guavaEdge(id string) Edge {
	return Edge{
		ID:         id,
		Dependency: moduleDep("com.google.guava", "guava", ">=31.0.0"),
		Candidates: []*variant.ComponentState{guava("30.1.0"), guava("31.1.0"), guava("32.0.0")},
	}
}

func testPipeline() transform.Pipeline {
	return transform.Pipeline{
		transform.NewStep("minify", false),
		transform.NewStep("shrink", true),
	}
}

// countingUpstream returns files and counts how often it was asked.
func countingUpstream(calls *atomic.Int32, files ...string) transform.UpstreamSource {
	return func(context.Context) (ir.FileSet, error) {
		calls.Add(1)
		return ir.NewFileSet(files...), nil
	}
}

func testRequest(edges ...Edge) *Request {
	return &Request{
		Consumer: testutil.Attrs("usage", "java-api"),
		Schema:   attr.EqualitySchema{},
		Edges:    edges,
	}
}

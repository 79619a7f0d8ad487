package project

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/graphres/internal/attr"
	"github.com/roach88/graphres/internal/depmeta"
	"github.com/roach88/graphres/internal/engine"
	"github.com/roach88/graphres/internal/ir"
	"github.com/roach88/graphres/internal/role"
	"github.com/roach88/graphres/internal/testutil"
	"github.com/roach88/graphres/internal/toolchain"
	"github.com/roach88/graphres/internal/variant"
)

var (
	guavaModule  = ir.ModuleID{Group: "com.google.guava", Name: "guava"}
	legacyModule = ir.ModuleID{Group: "org.legacy", Name: "old"}
)

func guavaSpec(version string) ir.ComponentSpec {
	return ir.ComponentSpec{
		ID: ir.ComponentID{Module: guavaModule, Version: version},
		Variants: []ir.VariantSpec{
			{Name: "apiElements", Attributes: ir.Object{"usage": ir.String("java-api")}, Files: ir.FileSet{"guava-" + version + ".jar"}},
			{Name: "runtimeElements", Attributes: ir.Object{"usage": ir.String("java-runtime")}, Files: ir.FileSet{"guava-" + version + ".jar"}},
		},
	}
}

func testModel() *ir.BuildModel {
	return &ir.BuildModel{
		Schema: ir.SchemaSpec{
			Attributes: []ir.AttributeRuleSpec{{Name: "usage", Compatibility: ir.CompatibilityEqual}},
		},
		Consumer: ir.ConsumerSpec{
			Configuration: "compileClasspath",
			Attributes:    ir.Object{"usage": ir.String("java-api")},
		},
		Configurations: []ir.ConfigurationSpec{
			{Name: "api", Role: "bucket"},
			{Name: "implementation", Role: "bucket", Extends: []string{"api"}},
			{Name: "compileClasspath", Role: "resolvable", Extends: []string{"implementation"}},
		},
		Components: []ir.ComponentSpec{
			guavaSpec("31.1.0"),
			guavaSpec("32.0.0"),
			{
				ID: ir.ComponentID{Module: legacyModule, Version: "2.0.0"},
				Configurations: []ir.LegacyConfigurationSpec{
					{Name: "default", Extends: []string{"runtime"}, Files: ir.FileSet{"old.jar"}},
					{Name: "runtime", Files: ir.FileSet{"old-runtime.jar"}},
				},
			},
			{
				ID: ir.ComponentID{Project: ":lib"},
				Variants: []ir.VariantSpec{
					{Name: "apiElements", Attributes: ir.Object{"usage": ir.String("java-api")}, Files: ir.FileSet{"lib.jar"}},
				},
			},
		},
		Dependencies: []ir.DependencySpec{
			{ID: "guava", Configuration: "implementation", Module: &guavaModule, Version: ir.VersionConstraint{Required: ">=31.0.0"}, Transitive: true, Pipeline: []string{"minify"}},
			{ID: "old", Configuration: "implementation", Module: &legacyModule, Version: ir.VersionConstraint{Required: "2.0.0"}, Transitive: true, Reason: "legacy api"},
			{ID: "lib", Configuration: "api", Project: ":lib", Transitive: true},
		},
		Transforms: []ir.TransformSpec{{Name: "minify", RequiresDependencies: true}},
	}
}

func load(t *testing.T, m *ir.BuildModel) *Project {
	t.Helper()
	p, err := Load(m, WithLogger(testutil.DiscardLogger()))
	require.NoError(t, err)
	return p
}

func TestLoad(t *testing.T) {
	p := load(t, testModel())

	require.Len(t, p.Configurations, 3)
	assert.Equal(t, []string{"compileClasspath", "implementation", "api"}, p.Consumer.Hierarchy)
	assert.Equal(t, role.IntendedResolvable, p.Consumer.Role)

	impl, ok := p.Configuration("implementation")
	require.True(t, ok)
	assert.Equal(t, []string{"implementation", "api"}, impl.Hierarchy)
	assert.Equal(t, role.IntendedBucket, impl.Role)
	_, ok = p.Configuration("missing")
	assert.False(t, ok)

	assert.IsType(t, &attr.RuleSchema{}, p.Schema)
	require.Len(t, p.Components, 4)

	req := p.Request
	require.Len(t, req.Edges, 3)
	assert.True(t, req.Consumer.Equal(testutil.Attrs("usage", "java-api")))

	guava, ok := req.Edges[0].Dependency.(*depmeta.Metadata)
	require.True(t, ok)
	assert.Equal(t, "implementation", guava.Source().Name)
	assert.Equal(t, Root, guava.Component())
	assert.Equal(t, []depmeta.MappingRule{DefaultMapping}, guava.Descriptor().Mappings)
	assert.Equal(t, []string{"minify"}, req.Edges[0].Pipeline.Names())
	assert.True(t, req.Edges[0].Pipeline[0].RequiresDependencies())

	old := req.Edges[1].Dependency.(*depmeta.Metadata)
	assert.Equal(t, "legacy api", old.Reason())
	assert.False(t, old.IsAlwaysUseAttributeMatching())

	lib, ok := req.Edges[2].Dependency.(*depmeta.ProjectMetadata)
	require.True(t, ok)
	assert.Equal(t, depmeta.ProjectSelector{ProjectPath: ":lib"}, lib.ProjectSelector())
	assert.Equal(t, "api", lib.Source().Name)
}

func TestLoad_ResolvesWithEngine(t *testing.T) {
	p := load(t, testModel())
	e := engine.New(engine.WithLogger(testutil.DiscardLogger()))

	res, err := e.Resolve(context.Background(), p.Request)
	require.NoError(t, err)
	require.NoError(t, res.Err())

	guava, ok := res.Edge("guava")
	require.True(t, ok)
	assert.Equal(t, "com.google.guava:guava:32.0.0", guava.Component.String())
	assert.Equal(t, []string{"apiElements"}, guava.VariantNames())
	assert.Equal(t, engine.ModeAttributeMatching, guava.Mode())
	require.Len(t, guava.Steps, 1)

	old, _ := res.Edge("old")
	assert.Equal(t, []string{"default"}, old.VariantNames())
	assert.Equal(t, engine.ModeLegacy, old.Mode())
	assert.Equal(t, ir.FileSet{"old.jar", "old-runtime.jar"}, old.Variants[0].Files)

	lib, _ := res.Edge("lib")
	assert.Equal(t, "project :lib", lib.Component.String())
	assert.Equal(t, []string{"apiElements"}, lib.VariantNames())
}

func TestLoad_ExplicitMappingAndAttributeMatching(t *testing.T) {
	m := testModel()
	m.Components[2].Configurations[1].Attributes = ir.Object{"usage": ir.String("java-api")}
	m.Dependencies[1].Mappings = []ir.MappingSpec{{From: []string{"implementation"}, To: []string{"runtime"}}}
	p := load(t, m)

	old := p.Request.Edges[1].Dependency.(*depmeta.Metadata)
	assert.Equal(t, []depmeta.MappingRule{{From: []string{"implementation"}, To: []string{"runtime"}}}, old.Descriptor().Mappings)

	res, err := engine.New(engine.WithLogger(testutil.DiscardLogger())).Resolve(context.Background(), p.Request)
	require.NoError(t, err)
	edge, _ := res.Edge("old")
	assert.Equal(t, []string{"runtime"}, edge.VariantNames())

	m.Dependencies[1].AttributeMatching = true
	p = load(t, m)
	assert.True(t, p.Request.Edges[1].Dependency.(*depmeta.Metadata).IsAlwaysUseAttributeMatching())
}

func TestLoad_EmptySchemaUsesEquality(t *testing.T) {
	m := testModel()
	m.Schema = ir.SchemaSpec{}
	p := load(t, m)
	assert.Equal(t, attr.EqualitySchema{}, p.Schema)
}

func TestLoad_RoleEnforcement(t *testing.T) {
	t.Run("consumer not resolvable", func(t *testing.T) {
		m := testModel()
		m.Consumer.Configuration = "implementation"

		_, err := Load(m, WithLogger(testutil.DiscardLogger()))
		require.Error(t, err)
		assert.True(t, IsLoadError(err))
		assert.True(t, role.IsUsageNotAllowed(err))
		assert.Contains(t, err.Error(), "consumer: cannot resolve")
	})

	t.Run("declared against consumable configuration", func(t *testing.T) {
		m := testModel()
		m.Configurations = append(m.Configurations, ir.ConfigurationSpec{Name: "apiElements", Role: "consumable"})
		m.Dependencies[0].Configuration = "apiElements"

		_, err := Load(m, WithLogger(testutil.DiscardLogger()))
		require.Error(t, err)
		assert.True(t, role.IsUsageNotAllowed(err))

		var le *LoadError
		require.True(t, errors.As(err, &le))
		assert.Equal(t, "dependencies.guava", le.Subject)
	})

	t.Run("deprecated usage warns", func(t *testing.T) {
		m := testModel()
		m.Configurations[0].Role = "deprecated-consumable"

		var buf bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&buf, nil))
		_, err := Load(m, WithLogger(logger))
		require.NoError(t, err)
		assert.Contains(t, buf.String(), "deprecated configuration usage")
		assert.Contains(t, buf.String(), "configuration=api")
	})
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(m *ir.BuildModel)
		want   string
	}{
		{
			name:   "unknown consumer",
			mutate: func(m *ir.BuildModel) { m.Consumer.Configuration = "nope" },
			want:   `consumer: configuration "nope" is not declared`,
		},
		{
			name:   "hierarchy cycle",
			mutate: func(m *ir.BuildModel) { m.Configurations[0].Extends = []string{"compileClasspath"} },
			want:   "configurations: configuration hierarchy cycle: api -> compileClasspath -> implementation -> api",
		},
		{
			name:   "unknown parent",
			mutate: func(m *ir.BuildModel) { m.Configurations[0].Extends = []string{"ghost"} },
			want:   `configurations.api: extends unknown configuration "ghost"`,
		},
		{
			name:   "duplicate configuration",
			mutate: func(m *ir.BuildModel) { m.Configurations = append(m.Configurations, ir.ConfigurationSpec{Name: "api"}) },
			want:   "configurations.api: declared twice",
		},
		{
			name:   "unknown role",
			mutate: func(m *ir.BuildModel) { m.Configurations[0].Role = "weird" },
			want:   `configurations.api: invalid role: unknown role "weird"`,
		},
		{
			name:   "unknown transform",
			mutate: func(m *ir.BuildModel) { m.Dependencies[0].Pipeline = []string{"shrink"} },
			want:   `dependencies.guava: unknown transform "shrink"`,
		},
		{
			name:   "unknown dependency configuration",
			mutate: func(m *ir.BuildModel) { m.Dependencies[0].Configuration = "runtimeOnly" },
			want:   `dependencies.guava: configuration "runtimeOnly" is not declared`,
		},
		{
			name:   "dependency without target",
			mutate: func(m *ir.BuildModel) { m.Dependencies[0].Module = nil },
			want:   "dependencies.guava: declares neither module nor project",
		},
		{
			name: "invalid schema",
			mutate: func(m *ir.BuildModel) {
				m.Schema.Precedence = []string{"jvm"}
			},
			want: "schema: invalid schema",
		},
		{
			name: "legacy extends unknown",
			mutate: func(m *ir.BuildModel) {
				m.Components[2].Configurations[1].Extends = []string{"compile"}
			},
			want: "components.org.legacy:old:2.0.0: invalid component",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := testModel()
			tt.mutate(m)

			_, err := Load(m, WithLogger(testutil.DiscardLogger()))
			require.Error(t, err)
			assert.True(t, IsLoadError(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_UnknownRoleError(t *testing.T) {
	m := testModel()
	m.Components[2].Configurations[0].Role = "weird"

	_, err := Load(m, WithLogger(testutil.DiscardLogger()))
	var re *UnknownRoleError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "weird", re.Name)
}

func TestLoad_UnmatchedEdgeIsCollected(t *testing.T) {
	m := testModel()
	m.Consumer.Attributes = ir.Object{"usage": ir.String("native-link")}
	p := load(t, m)

	res, err := engine.New(engine.WithLogger(testutil.DiscardLogger())).Resolve(context.Background(), p.Request)
	require.NoError(t, err)
	require.Error(t, res.Err())
	assert.True(t, variant.IsNoMatchingVariant(res.Err()))
	assert.Len(t, res.Failures, 2, "guava and lib publish no native-link variant")
}

func TestProject_SelectToolchain(t *testing.T) {
	p := load(t, testModel())
	sel, err := p.SelectToolchain()
	require.NoError(t, err)
	assert.Nil(t, sel)

	m := testModel()
	m.Toolchain = &ir.ToolchainSpec{
		Version: ">=17",
		Candidates: []ir.ToolchainCandidateSpec{
			{Location: "/opt/jdk-17", Version: "17.0.9"},
			{Location: "/opt/jdk-21", Version: "21.0.1"},
			{Location: "/opt/jdk-11", Version: "11.0.2"},
		},
	}
	sel, err = load(t, m).SelectToolchain()
	require.NoError(t, err)
	assert.Equal(t, "/opt/jdk-21", sel.Selected.Location)
	assert.Len(t, sel.Rejected, 1)

	m.Toolchain.Version = ">=25"
	_, err = load(t, m).SelectToolchain()
	assert.True(t, toolchain.IsNoMatchingInstallation(err))
}

package variant

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/graphres/internal/attr"
	"github.com/roach88/graphres/internal/ir"
	"github.com/roach88/graphres/internal/role"
)

var libID = ir.ComponentID{Module: ir.ModuleID{Group: "org", Name: "lib"}, Version: "1.0.0"}

func testSchema(t *testing.T) attr.Schema {
	t.Helper()
	s, err := attr.NewRuleSchema(ir.SchemaSpec{
		Attributes: []ir.AttributeRuleSpec{
			{Name: "usage", Compatibility: "equal"},
			{Name: "jvm", Compatibility: "at-most", Disambiguation: "closest"},
		},
	})
	require.NoError(t, err)
	return s
}

func libVariants() []*Variant {
	return []*Variant{
		{Name: "apiElements", Attributes: attr.Of(ir.Object{"usage": ir.String("java-api"), "jvm": ir.Int(11)})},
		{Name: "apiElementsJava17", Attributes: attr.Of(ir.Object{"usage": ir.String("java-api"), "jvm": ir.Int(17)})},
		{Name: "runtimeElements", Attributes: attr.Of(ir.Object{"usage": ir.String("java-runtime"), "jvm": ir.Int(11)})},
		{Name: "sourcesElements", Attributes: attr.Of(ir.Object{"usage": ir.String("sources")}),
			Artifacts: []ir.ArtifactName{{Name: "lib", Extension: "jar", Classifier: "sources"}}},
	}
}

func mustState(t *testing.T, vs []*Variant, confs ...*LegacyConfiguration) *ComponentState {
	t.Helper()
	s, err := NewComponentState(libID, vs, confs)
	require.NoError(t, err)
	return s
}

func TestSelectByAttributeMatching(t *testing.T) {
	sel := NewSelector(nil)
	target := mustState(t, libVariants())

	res, err := sel.SelectByAttributeMatching(
		attr.Of(ir.Object{"usage": ir.String("java-api"), "jvm": ir.Int(21)}),
		nil, target, testSchema(t), nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"apiElementsJava17"}, res.Names())
	assert.True(t, res.UsedAttributeMatching)
}

func TestSelectByAttributeMatchingIsOrderIndependent(t *testing.T) {
	sel := NewSelector(nil)
	schema := testSchema(t)
	consumer := attr.Of(ir.Object{"usage": ir.String("java-api"), "jvm": ir.Int(17)})

	rng := rand.New(rand.NewSource(42))
	var first []string
	for i := 0; i < 50; i++ {
		vs := libVariants()
		rng.Shuffle(len(vs), func(a, b int) { vs[a], vs[b] = vs[b], vs[a] })

		res, err := sel.SelectByAttributeMatching(consumer, nil, mustState(t, vs), schema, nil)
		require.NoError(t, err)
		if first == nil {
			first = res.Names()
			continue
		}
		assert.Equal(t, first, res.Names(), "iteration %d", i)
	}
	assert.Equal(t, []string{"apiElementsJava17"}, first)
}

func TestSelectByAttributeMatchingNoMatch(t *testing.T) {
	sel := NewSelector(nil)
	target := mustState(t, libVariants())

	_, err := sel.SelectByAttributeMatching(
		attr.Of(ir.Object{"usage": ir.String("java-api"), "jvm": ir.Int(8)}),
		nil, target, testSchema(t), nil)
	require.Error(t, err)
	assert.True(t, IsNoMatchingVariant(err))
	assert.Equal(t, KindNoMatchingVariant, FailureKind(err))

	var nm *NoMatchingVariantError
	require.ErrorAs(t, err, &nm)
	assert.Equal(t, libID, nm.Target)
	require.Len(t, nm.Candidates, 4)
	assert.Equal(t, "apiElements", nm.Candidates[0].Variant)
	assert.Contains(t, err.Error(), `variant "apiElements": jvm=11 (required 8)`)
}

func TestSelectByAttributeMatchingAmbiguous(t *testing.T) {
	sel := NewSelector(nil)
	target := mustState(t, []*Variant{
		{Name: "b", Attributes: attr.Of(ir.Object{"usage": ir.String("java-api"), "flavor": ir.String("x")})},
		{Name: "a", Attributes: attr.Of(ir.Object{"usage": ir.String("java-api"), "flavor": ir.String("y")})},
	})

	_, err := sel.SelectByAttributeMatching(
		attr.Of(ir.Object{"usage": ir.String("java-api")}), nil, target, testSchema(t), nil)
	require.Error(t, err)
	assert.True(t, IsAmbiguousVariant(err))

	var amb *AmbiguousVariantError
	require.ErrorAs(t, err, &amb)
	assert.Equal(t, []string{"a", "b"}, amb.Variants, "ambiguity lists variants in name order")
}

func TestSelectByAttributeMatchingClassifierNarrowing(t *testing.T) {
	sel := NewSelector(nil)
	target := mustState(t, []*Variant{
		{Name: "javadoc", Attributes: attr.Of(ir.Object{"usage": ir.String("docs")}),
			Artifacts: []ir.ArtifactName{{Name: "lib", Classifier: "javadoc"}}},
		{Name: "sources", Attributes: attr.Of(ir.Object{"usage": ir.String("docs")}),
			Artifacts: []ir.ArtifactName{{Name: "lib", Classifier: "sources"}}},
	})

	res, err := sel.SelectByAttributeMatching(
		attr.Of(ir.Object{"usage": ir.String("docs")}), nil, target, testSchema(t),
		[]ir.ArtifactName{{Name: "lib", Classifier: "sources"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"sources"}, res.Names())
}

func TestSelectByAttributeMatchingCapabilities(t *testing.T) {
	feature := ir.Capability{Group: "org", Name: "lib-feature", Version: "1.0.0"}
	implicit := ir.Capability{Group: "org", Name: "lib", Version: "1.0.0"}
	sel := NewSelector(nil)
	target := mustState(t, []*Variant{
		{Name: "main", Attributes: attr.Of(ir.Object{"usage": ir.String("java-api")})},
		{Name: "feature", Attributes: attr.Of(ir.Object{"usage": ir.String("java-api")}),
			Capabilities: []ir.Capability{feature}},
		{Name: "featureAndMain", Attributes: attr.Of(ir.Object{"usage": ir.String("java-api")}),
			Capabilities: []ir.Capability{feature, implicit}},
	})
	consumer := attr.Of(ir.Object{"usage": ir.String("java-api")})

	t.Run("implicit capability", func(t *testing.T) {
		res, err := sel.SelectByAttributeMatching(consumer, nil, target, testSchema(t), nil)
		// main provides the implicit capability; featureAndMain declares it too.
		require.Error(t, err)
		assert.True(t, IsAmbiguousVariant(err))
		assert.Empty(t, res.Variants)
	})

	t.Run("requested capability exact match preferred", func(t *testing.T) {
		res, err := sel.SelectByAttributeMatching(consumer, []ir.Capability{{Group: "org", Name: "lib-feature"}},
			target, testSchema(t), nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"feature"}, res.Names())
	})

	t.Run("unknown capability", func(t *testing.T) {
		_, err := sel.SelectByAttributeMatching(consumer, []ir.Capability{{Group: "org", Name: "missing"}},
			target, testSchema(t), nil)
		require.Error(t, err)
		assert.Equal(t, KindNoMatchingCapabilities, FailureKind(err))
		assert.Contains(t, err.Error(), "org:missing")
	})
}

func TestSelectLegacyConfiguration(t *testing.T) {
	sel := NewSelector(nil)
	schema := testSchema(t)

	t.Run("default configuration", func(t *testing.T) {
		target := mustState(t, nil,
			&LegacyConfiguration{Name: "default", Role: role.Legacy, Extends: []string{"runtime"},
				Files: ir.NewFileSet("lib.jar")},
			&LegacyConfiguration{Name: "runtime", Role: role.Legacy, Files: ir.NewFileSet("dep.jar")},
		)
		res, err := sel.SelectLegacyConfiguration(attr.Of(ir.Object{"usage": ir.String("java-api")}), target, schema)
		require.NoError(t, err)
		assert.False(t, res.UsedAttributeMatching)
		require.Len(t, res.Variants, 1)
		assert.Equal(t, "default", res.Variants[0].Name)
		assert.Equal(t, ir.FileSet{"lib.jar", "dep.jar"}, res.Variants[0].Files)
	})

	t.Run("incompatible attributes", func(t *testing.T) {
		target := mustState(t, nil, &LegacyConfiguration{Name: "default", Role: role.Legacy,
			Attributes: attr.Of(ir.Object{"usage": ir.String("java-runtime")})})
		_, err := sel.SelectLegacyConfiguration(attr.Of(ir.Object{"usage": ir.String("java-api")}), target, schema)
		assert.True(t, IsNoMatchingVariant(err))
	})

	t.Run("missing default", func(t *testing.T) {
		target := mustState(t, nil, &LegacyConfiguration{Name: "compile", Role: role.Legacy})
		_, err := sel.SelectLegacyConfiguration(attr.Attributes{}, target, schema)
		assert.True(t, IsConfigurationNotFound(err))
	})

	t.Run("not consumable", func(t *testing.T) {
		target := mustState(t, nil, &LegacyConfiguration{Name: "default", Role: role.IntendedResolvable})
		_, err := sel.SelectLegacyConfiguration(attr.Attributes{}, target, schema)
		assert.Equal(t, KindConfigurationNotConsumable, FailureKind(err))
	})
}

type recordingProcessor struct {
	DescribingFailureProcessor
	calls []string
}

func (r *recordingProcessor) AmbiguousVariants(target ir.ComponentID, requested attr.Attributes, matches []*Variant) error {
	r.calls = append(r.calls, "ambiguous")
	return r.DescribingFailureProcessor.AmbiguousVariants(target, requested, matches)
}

func TestSelectorUsesFailureProcessor(t *testing.T) {
	rec := &recordingProcessor{}
	sel := NewSelector(rec)

	target := mustState(t, []*Variant{{Name: "a"}, {Name: "b"}})
	_, err := sel.SelectByAttributeMatching(attr.Attributes{}, nil, target, attr.EqualitySchema{}, nil)
	require.Error(t, err)
	assert.Equal(t, []string{"ambiguous"}, rec.calls)
}

// plainProcessor reports bare errors, or nothing at all when nilErrors is set.
type plainProcessor struct {
	nilErrors bool
}

func (p plainProcessor) fail(msg string) error {
	if p.nilErrors {
		return nil
	}
	return errors.New(msg)
}

func (p plainProcessor) NoMatchingVariant(ir.ComponentID, attr.Attributes, []CandidateMismatch) error {
	return p.fail("no matching variant")
}

func (p plainProcessor) AmbiguousVariants(ir.ComponentID, attr.Attributes, []*Variant) error {
	return p.fail("ambiguous")
}

func (p plainProcessor) NoMatchingCapabilities(ir.ComponentID, []ir.Capability, []*Variant) error {
	return p.fail("no capabilities")
}

func (p plainProcessor) ConfigurationNotFound(ir.ComponentID, string, string) error {
	return p.fail("no configuration")
}

func (p plainProcessor) ConfigurationNotConsumable(ir.ComponentID, string, role.Role) error {
	return p.fail("not consumable")
}

func TestSelectorClassifiesCustomProcessorErrors(t *testing.T) {
	schema := testSchema(t)
	consumer := attr.Of(ir.Object{"usage": ir.String("native-link")})

	t.Run("plain error", func(t *testing.T) {
		sel := NewSelector(plainProcessor{})
		_, err := sel.SelectByAttributeMatching(consumer, nil, mustState(t, libVariants()), schema, nil)
		require.Error(t, err)
		assert.Equal(t, KindNoMatchingVariant, FailureKind(err))
		assert.EqualError(t, err, "no matching variant")

		var pf *ProcessorFailure
		require.True(t, errors.As(err, &pf))
		assert.Equal(t, libID, pf.Target)
	})

	t.Run("nil error", func(t *testing.T) {
		sel := NewSelector(plainProcessor{nilErrors: true})
		_, err := sel.SelectByAttributeMatching(consumer, nil, mustState(t, libVariants()), schema, nil)
		require.Error(t, err)
		assert.Equal(t, KindNoMatchingVariant, FailureKind(err))
		assert.Equal(t, "no-matching-variant: org:lib:1.0.0", err.Error())
	})

	t.Run("legacy", func(t *testing.T) {
		sel := NewSelector(plainProcessor{})
		target := mustState(t, nil, &LegacyConfiguration{Name: "compile", Role: role.Legacy})
		_, err := sel.SelectLegacyConfiguration(attr.Attributes{}, target, schema)
		assert.Equal(t, KindConfigurationNotFound, FailureKind(err))

		err = sel.Failures().ConfigurationNotConsumable(libID, "default", role.IntendedResolvable)
		assert.Equal(t, KindConfigurationNotConsumable, FailureKind(err))
	})

	t.Run("typed errors pass through", func(t *testing.T) {
		sel := NewSelector(&recordingProcessor{})
		target := mustState(t, []*Variant{{Name: "a"}, {Name: "b"}})
		_, err := sel.SelectByAttributeMatching(attr.Attributes{}, nil, target, attr.EqualitySchema{}, nil)
		assert.True(t, IsAmbiguousVariant(err))

		var pf *ProcessorFailure
		assert.False(t, errors.As(err, &pf))
	})
}

package variant

import (
	"sort"

	"github.com/roach88/graphres/internal/attr"
	"github.com/roach88/graphres/internal/ir"
	"github.com/roach88/graphres/internal/role"
)

// SelectionResult is the outcome of variant selection: a non-empty ordered
// list of variants and whether attribute matching produced it.
//
// UsedAttributeMatching is persisted with the result and must never be
// recomputed: capability conflict resolution downstream depends on it.
type SelectionResult struct {
	Variants              []*Variant
	UsedAttributeMatching bool
}

// Names returns the selected variant names in order.
func (r SelectionResult) Names() []string {
	names := make([]string, len(r.Variants))
	for i, v := range r.Variants {
		names[i] = v.Name
	}
	return names
}

// FailureProcessor builds the error reported for each selection failure.
// Implementations return the error; they never panic. Errors that do not
// implement EdgeFailure are wrapped in a ProcessorFailure of the kind the
// method reports, so a custom processor can never abort independent edges.
type FailureProcessor interface {
	NoMatchingVariant(target ir.ComponentID, requested attr.Attributes, candidates []CandidateMismatch) error
	AmbiguousVariants(target ir.ComponentID, requested attr.Attributes, matches []*Variant) error
	NoMatchingCapabilities(target ir.ComponentID, requested []ir.Capability, variants []*Variant) error
	ConfigurationNotFound(target ir.ComponentID, configuration, fromConfiguration string) error
	ConfigurationNotConsumable(target ir.ComponentID, configuration string, r role.Role) error
}

// DescribingFailureProcessor builds the typed errors of this package.
type DescribingFailureProcessor struct{}

func (DescribingFailureProcessor) NoMatchingVariant(target ir.ComponentID, requested attr.Attributes, candidates []CandidateMismatch) error {
	return &NoMatchingVariantError{Target: target, Requested: requested, Candidates: candidates}
}

func (DescribingFailureProcessor) AmbiguousVariants(target ir.ComponentID, requested attr.Attributes, matches []*Variant) error {
	return &AmbiguousVariantError{Target: target, Requested: requested, Variants: names(matches)}
}

func (DescribingFailureProcessor) NoMatchingCapabilities(target ir.ComponentID, requested []ir.Capability, variants []*Variant) error {
	return &NoMatchingCapabilitiesError{Target: target, Requested: requested, Variants: names(variants)}
}

func (DescribingFailureProcessor) ConfigurationNotFound(target ir.ComponentID, configuration, fromConfiguration string) error {
	return &ConfigurationNotFoundError{Target: target, Configuration: configuration, FromConfiguration: fromConfiguration}
}

func (DescribingFailureProcessor) ConfigurationNotConsumable(target ir.ComponentID, configuration string, r role.Role) error {
	return &ConfigurationNotConsumableError{Target: target, Configuration: configuration, Role: r.Name()}
}

// classifyingProcessor guarantees that the errors of a custom processor
// carry a failure kind.
type classifyingProcessor struct {
	fp FailureProcessor
}

func (c classifyingProcessor) NoMatchingVariant(target ir.ComponentID, requested attr.Attributes, candidates []CandidateMismatch) error {
	return classify(KindNoMatchingVariant, target, c.fp.NoMatchingVariant(target, requested, candidates))
}

func (c classifyingProcessor) AmbiguousVariants(target ir.ComponentID, requested attr.Attributes, matches []*Variant) error {
	return classify(KindAmbiguousVariants, target, c.fp.AmbiguousVariants(target, requested, matches))
}

func (c classifyingProcessor) NoMatchingCapabilities(target ir.ComponentID, requested []ir.Capability, variants []*Variant) error {
	return classify(KindNoMatchingCapabilities, target, c.fp.NoMatchingCapabilities(target, requested, variants))
}

func (c classifyingProcessor) ConfigurationNotFound(target ir.ComponentID, configuration, fromConfiguration string) error {
	return classify(KindConfigurationNotFound, target, c.fp.ConfigurationNotFound(target, configuration, fromConfiguration))
}

func (c classifyingProcessor) ConfigurationNotConsumable(target ir.ComponentID, configuration string, r role.Role) error {
	return classify(KindConfigurationNotConsumable, target, c.fp.ConfigurationNotConsumable(target, configuration, r))
}

// classify leaves edge failures alone and wraps anything else, nil
// included, in a ProcessorFailure.
func classify(kind string, target ir.ComponentID, err error) error {
	if IsEdgeFailure(err) {
		return err
	}
	return &ProcessorFailure{Kind: kind, Target: target, Err: err}
}

func names(vs []*Variant) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = v.Name
	}
	return out
}

// Selector performs attribute-matching and legacy selection. It holds no
// mutable state and is safe for concurrent use.
type Selector struct {
	failures FailureProcessor
}

// NewSelector creates a selector reporting through fp.
// A nil fp uses DescribingFailureProcessor.
func NewSelector(fp FailureProcessor) *Selector {
	switch fp.(type) {
	case nil:
		fp = DescribingFailureProcessor{}
	case DescribingFailureProcessor, classifyingProcessor:
	default:
		fp = classifyingProcessor{fp}
	}
	return &Selector{failures: fp}
}

// Failures returns the selector's failure processor. Every error it
// returns is an EdgeFailure.
func (s *Selector) Failures() FailureProcessor {
	return s.failures
}

// SelectByAttributeMatching picks exactly one variant of target.
//
// Candidates are considered in name order so the result never depends on
// the order in which the component declared its variants. Steps:
//  1. keep variants providing every requested capability (the implicit
//     capability when none is requested)
//  2. keep variants whose attributes are all compatible under schema;
//     attributes a variant does not declare are compatible
//  3. let the schema disambiguate
//  4. prefer variants whose capabilities exactly match the request
//  5. with a single requested artifact, prefer variants publishing its
//     classifier
func (s *Selector) SelectByAttributeMatching(consumer attr.Attributes, caps []ir.Capability, target *ComponentState, schema attr.Schema, requestedArtifacts []ir.ArtifactName) (SelectionResult, error) {
	all := target.Variants()
	implicit := target.ImplicitCapability()

	candidates := filterVariants(all, func(v *Variant) bool {
		if len(caps) == 0 {
			return v.Provides(implicit, implicit)
		}
		for _, c := range caps {
			if !v.Provides(c, implicit) {
				return false
			}
		}
		return true
	})
	if len(candidates) == 0 {
		requested := caps
		if len(requested) == 0 {
			requested = []ir.Capability{implicit}
		}
		return SelectionResult{}, s.failures.NoMatchingCapabilities(target.ID, requested, all)
	}

	var matches []*Variant
	var rejected []CandidateMismatch
	for _, v := range candidates {
		if mismatches := incompatible(consumer, v.Attributes, schema); len(mismatches) > 0 {
			rejected = append(rejected, CandidateMismatch{Variant: v.Name, Mismatches: mismatches})
			continue
		}
		matches = append(matches, v)
	}
	if len(matches) == 0 {
		return SelectionResult{}, s.failures.NoMatchingVariant(target.ID, consumer, rejected)
	}

	if len(matches) > 1 {
		matches = disambiguate(consumer, matches, schema)
	}
	if len(matches) > 1 && len(caps) > 0 {
		matches = preferNonEmpty(matches, func(v *Variant) bool {
			return len(v.Capabilities) == len(caps)
		})
	}
	if len(matches) > 1 && len(requestedArtifacts) == 1 && requestedArtifacts[0].Classifier != "" {
		classifier := requestedArtifacts[0].Classifier
		matches = preferNonEmpty(matches, func(v *Variant) bool {
			return v.hasClassifier(classifier)
		})
	}
	if len(matches) > 1 {
		return SelectionResult{}, s.failures.AmbiguousVariants(target.ID, consumer, matches)
	}
	return SelectionResult{Variants: matches, UsedAttributeMatching: true}, nil
}

// SelectLegacyConfiguration matches the consumer attributes against the
// target's default configuration. Never ambiguous by construction.
func (s *Selector) SelectLegacyConfiguration(consumer attr.Attributes, target *ComponentState, schema attr.Schema) (SelectionResult, error) {
	conf, ok := target.Configuration(DefaultConfiguration)
	if !ok {
		return SelectionResult{}, s.failures.ConfigurationNotFound(target.ID, DefaultConfiguration, "")
	}
	if !conf.Role.IsConsumable() {
		return SelectionResult{}, s.failures.ConfigurationNotConsumable(target.ID, conf.Name, conf.Role)
	}
	v, _ := target.LegacyVariant(DefaultConfiguration)
	if mismatches := incompatible(consumer, v.Attributes, schema); len(mismatches) > 0 {
		return SelectionResult{}, s.failures.NoMatchingVariant(target.ID, consumer,
			[]CandidateMismatch{{Variant: v.Name, Mismatches: mismatches}})
	}
	return SelectionResult{Variants: []*Variant{v}}, nil
}

func incompatible(requested, provided attr.Attributes, schema attr.Schema) []AttributeMismatch {
	var out []AttributeMismatch
	for _, name := range requested.Names() {
		want, _ := requested.Get(name)
		have, ok := provided.Get(name)
		if !ok {
			continue
		}
		if !schema.Compatible(name, want, have) {
			out = append(out, AttributeMismatch{Attribute: name, Requested: want, Provided: have})
		}
	}
	return out
}

func disambiguate(consumer attr.Attributes, matches []*Variant, schema attr.Schema) []*Variant {
	attrs := make([]attr.Attributes, len(matches))
	for i, v := range matches {
		attrs[i] = v.Attributes
	}
	kept := schema.Disambiguate(consumer, attrs)

	// A schema returning nothing usable cannot narrow the set.
	var out []*Variant
	seen := map[int]bool{}
	idx := append([]int(nil), kept...)
	sort.Ints(idx)
	for _, i := range idx {
		if i < 0 || i >= len(matches) || seen[i] {
			continue
		}
		seen[i] = true
		out = append(out, matches[i])
	}
	if len(out) == 0 {
		return matches
	}
	return out
}

func filterVariants(vs []*Variant, keep func(*Variant) bool) []*Variant {
	var out []*Variant
	for _, v := range vs {
		if keep(v) {
			out = append(out, v)
		}
	}
	return out
}

func preferNonEmpty(vs []*Variant, keep func(*Variant) bool) []*Variant {
	if out := filterVariants(vs, keep); len(out) > 0 {
		return out
	}
	return vs
}

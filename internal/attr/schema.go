package attr

import (
	"fmt"
	"sort"

	"github.com/Masterminds/semver/v3"

	"github.com/roach88/graphres/internal/ir"
)

// Schema is the compatibility and disambiguation policy consulted during
// attribute matching. Implementations must be pure and safe for
// concurrent use: the engine shares one schema across all edges.
type Schema interface {
	// Compatible reports whether a provided value satisfies a requested one.
	Compatible(attribute string, requested, provided ir.Value) bool

	// Disambiguate narrows a set of compatible candidates. It returns the
	// indices of the retained candidates in ascending order; returning all
	// indices means the schema cannot decide.
	Disambiguate(requested Attributes, candidates []Attributes) []int
}

// EqualitySchema treats every attribute as exact-match and never
// disambiguates.
type EqualitySchema struct{}

func (EqualitySchema) Compatible(_ string, requested, provided ir.Value) bool {
	return ir.Equal(requested, provided)
}

func (EqualitySchema) Disambiguate(_ Attributes, candidates []Attributes) []int {
	return allIndices(len(candidates))
}

// Shape describes the schema for cache keys.
func (EqualitySchema) Shape() ir.Object {
	return ir.Object{"kind": ir.String("equality")}
}

type rule struct {
	compatibility  string
	disambiguation string
	prefer         []ir.Value
}

// RuleSchema is the configuration-supplied schema: one rule per attribute,
// disambiguation applied in precedence order.
type RuleSchema struct {
	rules map[string]rule
	order []string
}

// NewRuleSchema validates a schema spec and builds the policy.
func NewRuleSchema(spec ir.SchemaSpec) (*RuleSchema, error) {
	s := &RuleSchema{rules: make(map[string]rule, len(spec.Attributes))}

	for i, a := range spec.Attributes {
		if a.Name == "" {
			return nil, fmt.Errorf("schema attribute %d: missing name", i)
		}
		if _, dup := s.rules[a.Name]; dup {
			return nil, fmt.Errorf("schema attribute %q declared twice", a.Name)
		}
		compat := a.Compatibility
		if compat == "" {
			compat = ir.CompatibilityEqual
		}
		if !ir.ValidCompatibilityRules[compat] {
			return nil, fmt.Errorf("schema attribute %q: unknown compatibility rule %q", a.Name, compat)
		}
		if !ir.ValidDisambiguationRules[a.Disambiguation] {
			return nil, fmt.Errorf("schema attribute %q: unknown disambiguation rule %q", a.Name, a.Disambiguation)
		}
		if a.Disambiguation == ir.DisambiguationPrefer && len(a.Prefer) == 0 {
			return nil, fmt.Errorf("schema attribute %q: prefer rule needs at least one value", a.Name)
		}
		s.rules[a.Name] = rule{
			compatibility:  compat,
			disambiguation: a.Disambiguation,
			prefer:         a.Prefer,
		}
	}

	listed := make(map[string]bool, len(spec.Precedence))
	for _, name := range spec.Precedence {
		if _, ok := s.rules[name]; !ok {
			return nil, fmt.Errorf("precedence names undeclared attribute %q", name)
		}
		if listed[name] {
			return nil, fmt.Errorf("precedence lists %q twice", name)
		}
		listed[name] = true
		s.order = append(s.order, name)
	}
	rest := make([]string, 0, len(s.rules))
	for name := range s.rules {
		if !listed[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	s.order = append(s.order, rest...)

	return s, nil
}

// Shape describes the rules in precedence order. Equal shapes decide
// identically.
func (s *RuleSchema) Shape() ir.Object {
	rules := make(ir.List, 0, len(s.order))
	for _, name := range s.order {
		r := s.rules[name]
		prefer := make(ir.List, len(r.prefer))
		copy(prefer, r.prefer)
		rules = append(rules, ir.Object{
			"name":           ir.String(name),
			"compatibility":  ir.String(r.compatibility),
			"disambiguation": ir.String(r.disambiguation),
			"prefer":         prefer,
		})
	}
	return ir.Object{"kind": ir.String("rules"), "rules": rules}
}

// Compatible implements Schema.
func (s *RuleSchema) Compatible(attribute string, requested, provided ir.Value) bool {
	r, ok := s.rules[attribute]
	if !ok {
		return ir.Equal(requested, provided)
	}
	switch r.compatibility {
	case ir.CompatibilityAny:
		return true
	case ir.CompatibilityAtMost:
		req, okReq := requested.(ir.Int)
		prov, okProv := provided.(ir.Int)
		if okReq && okProv {
			return prov <= req
		}
	case ir.CompatibilitySemver:
		req, okReq := requested.(ir.String)
		prov, okProv := provided.(ir.String)
		if okReq && okProv {
			return semverSatisfies(string(req), string(prov))
		}
	}
	return ir.Equal(requested, provided)
}

func semverSatisfies(constraint, version string) bool {
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return constraint == version
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		return false
	}
	return c.Check(v)
}

// Disambiguate implements Schema.
func (s *RuleSchema) Disambiguate(requested Attributes, candidates []Attributes) []int {
	remaining := allIndices(len(candidates))
	for _, name := range s.order {
		if len(remaining) <= 1 {
			break
		}
		r := s.rules[name]
		if r.disambiguation == ir.DisambiguationNone {
			continue
		}
		req, hasReq := requested.Get(name)
		narrowed := narrow(r, req, hasReq, name, candidates, remaining)
		if len(narrowed) > 0 {
			remaining = narrowed
		}
	}
	return remaining
}

func narrow(r rule, requested ir.Value, hasRequested bool, name string, candidates []Attributes, remaining []int) []int {
	switch r.disambiguation {
	case ir.DisambiguationPrefer:
		for _, p := range r.prefer {
			if out := filter(remaining, func(i int) bool {
				v, ok := candidates[i].Get(name)
				return ok && ir.Equal(v, p)
			}); len(out) > 0 {
				return out
			}
		}
		return nil

	case ir.DisambiguationRequested:
		if !hasRequested {
			return nil
		}
		return filter(remaining, func(i int) bool {
			v, ok := candidates[i].Get(name)
			return ok && ir.Equal(v, requested)
		})

	case ir.DisambiguationClosest:
		target, targetIsInt := requested.(ir.Int)
		best := int64(-1)
		var out []int
		for _, i := range remaining {
			v, ok := candidates[i].Get(name)
			n, isInt := v.(ir.Int)
			if !ok || !isInt {
				continue
			}
			// Without a requested value the highest provided value wins.
			score := int64(n)
			if hasRequested && targetIsInt {
				score = -abs(int64(target) - int64(n))
			}
			switch {
			case out == nil || score > best:
				best = score
				out = []int{i}
			case score == best:
				out = append(out, i)
			}
		}
		return out
	}
	return nil
}

func filter(indices []int, keep func(int) bool) []int {
	var out []int
	for _, i := range indices {
		if keep(i) {
			out = append(out, i)
		}
	}
	return out
}

func allIndices(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}

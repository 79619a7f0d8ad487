package depmeta

import (
	"slices"

	"github.com/roach88/graphres/internal/ir"
	"github.com/roach88/graphres/internal/variant"
)

// SelectComponent picks the target component of an edge among the
// published candidates.
//
// Module selectors keep candidates of the same module whose version the
// constraint accepts. Versions matching the preferred part win; otherwise
// the highest version wins. Project selectors match by project path.
// The result never depends on candidate order.
func SelectComponent(selector ComponentSelector, candidates []*variant.ComponentState) (*variant.ComponentState, error) {
	switch sel := selector.(type) {
	case ModuleSelector:
		return selectModule(sel, candidates)
	case ProjectSelector:
		for _, c := range candidates {
			if c.ID.Project != "" && c.ID.Project == sel.ProjectPath {
				return c, nil
			}
		}
		return nil, &NoMatchingComponentError{Selector: sel}
	default:
		return nil, &UnsupportedSelectorError{Selector: selector}
	}
}

func selectModule(sel ModuleSelector, candidates []*variant.ComponentState) (*variant.ComponentState, error) {
	var (
		versions  []string
		best      *variant.ComponentState
		preferred *variant.ComponentState
	)
	higher := func(a, b *variant.ComponentState) bool {
		return b == nil || ir.CompareVersions(a.ID.Version, b.ID.Version) > 0
	}
	for _, c := range candidates {
		if c.ID.Project != "" || c.ID.Module != sel.Module {
			continue
		}
		versions = append(versions, c.ID.Version)
		if !sel.Version.Accepts(c.ID.Version) {
			continue
		}
		if higher(c, best) {
			best = c
		}
		if sel.Version.Prefers(c.ID.Version) && higher(c, preferred) {
			preferred = c
		}
	}
	if preferred != nil {
		return preferred, nil
	}
	if best != nil {
		return best, nil
	}
	slices.SortFunc(versions, ir.CompareVersions)
	return nil, &NoMatchingComponentError{Selector: sel, Versions: versions}
}

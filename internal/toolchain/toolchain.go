// Package toolchain chooses a build toolchain among discovered
// installations. It sits outside the dependency graph: the chosen
// installation is reported, never resolved against.
package toolchain

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/roach88/graphres/internal/ir"
)

// Candidate is a discovered installation location.
type Candidate struct {
	Location string
	// Source names where the candidate was found (an environment variable,
	// a well-known directory, an explicit setting).
	Source       string
	AutoDetected bool
}

// Metadata is what probing an installation reports.
type Metadata struct {
	Version string
	Vendor  string
}

// Installation is a probed candidate with valid metadata.
type Installation struct {
	Candidate
	Metadata

	version *semver.Version
}

// Probe inspects a candidate. Errors reject the candidate, they never abort
// selection.
type Probe func(Candidate) (Metadata, error)

// Spec is the requested toolchain: a semver constraint on the version and
// an optional vendor (case-insensitive).
type Spec struct {
	Version string
	Vendor  string
}

// Rejection is a candidate that was not eligible.
type Rejection struct {
	Candidate Candidate
	Reason    string
}

// Selection is the outcome of Select.
type Selection struct {
	Selected Installation
	// Eligible lists every installation matching the spec, best first.
	Eligible []Installation
	// Rejected lists the other candidates in input order.
	Rejected []Rejection
}

// NoMatchingInstallationError reports that no candidate satisfied the spec.
type NoMatchingInstallationError struct {
	Spec     Spec
	Rejected []Rejection
}

func (e *NoMatchingInstallationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "no installation matches version %q", e.Spec.Version)
	if e.Spec.Vendor != "" {
		fmt.Fprintf(&b, " vendor %q", e.Spec.Vendor)
	}
	for _, r := range e.Rejected {
		fmt.Fprintf(&b, "\n  - %s: %s", r.Candidate.Location, r.Reason)
	}
	return b.String()
}

// IsNoMatchingInstallation returns true if err is a NoMatchingInstallationError.
func IsNoMatchingInstallation(err error) bool {
	var ne *NoMatchingInstallationError
	return errors.As(err, &ne)
}

// Select probes every candidate and picks the highest version satisfying
// spec. Ties go to explicitly configured candidates before auto-detected
// ones, then to the lexically smallest location. The result never depends
// on candidate order.
func Select(candidates []Candidate, probe Probe, spec Spec) (*Selection, error) {
	raw := strings.TrimSpace(spec.Version)
	if raw == "" {
		raw = "*"
	}
	constraint, err := semver.NewConstraint(raw)
	if err != nil {
		return nil, fmt.Errorf("toolchain version %q: %w", spec.Version, err)
	}

	sel := &Selection{}
	for _, c := range candidates {
		inst, reason := inspect(c, probe, constraint, spec.Vendor)
		if reason != "" {
			sel.Rejected = append(sel.Rejected, Rejection{Candidate: c, Reason: reason})
			continue
		}
		sel.Eligible = append(sel.Eligible, inst)
	}
	if len(sel.Eligible) == 0 {
		return nil, &NoMatchingInstallationError{Spec: spec, Rejected: sel.Rejected}
	}

	sort.SliceStable(sel.Eligible, func(i, j int) bool {
		a, b := sel.Eligible[i], sel.Eligible[j]
		if c := a.version.Compare(b.version); c != 0 {
			return c > 0
		}
		if a.AutoDetected != b.AutoDetected {
			return !a.AutoDetected
		}
		return a.Location < b.Location
	})
	sel.Selected = sel.Eligible[0]
	return sel, nil
}

func inspect(c Candidate, probe Probe, constraint *semver.Constraints, vendor string) (Installation, string) {
	if c.Location == "" {
		return Installation{}, "empty location"
	}
	md, err := probe(c)
	if err != nil {
		return Installation{}, "probe failed: " + err.Error()
	}
	v, err := semver.NewVersion(strings.TrimSpace(md.Version))
	if err != nil {
		return Installation{}, fmt.Sprintf("invalid version %q", md.Version)
	}
	if !constraint.Check(v) {
		return Installation{}, fmt.Sprintf("version %s does not satisfy %s", md.Version, constraint)
	}
	if vendor != "" && !strings.EqualFold(vendor, md.Vendor) {
		return Installation{}, fmt.Sprintf("vendor %q is not %q", md.Vendor, vendor)
	}
	return Installation{Candidate: c, Metadata: md, version: v}, ""
}

// FromModel turns a model's toolchain section into candidates, a probe
// answering the recorded metadata, and the requested spec.
func FromModel(m ir.ToolchainSpec) ([]Candidate, Probe, Spec) {
	candidates := make([]Candidate, len(m.Candidates))
	recorded := make(map[string]Metadata, len(m.Candidates))
	for i, c := range m.Candidates {
		candidates[i] = Candidate{Location: c.Location, Source: c.Source, AutoDetected: c.AutoDetected}
		recorded[c.Location] = Metadata{Version: c.Version, Vendor: c.Vendor}
	}
	probe := func(c Candidate) (Metadata, error) {
		md, ok := recorded[c.Location]
		if !ok {
			return Metadata{}, fmt.Errorf("no metadata recorded for %s", c.Location)
		}
		return md, nil
	}
	return candidates, probe, Spec{Version: m.Version, Vendor: m.Vendor}
}

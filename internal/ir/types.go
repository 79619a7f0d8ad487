package ir

import (
	"fmt"
	"slices"

	"github.com/Masterminds/semver/v3"
)

// ModuleID identifies a published module by group and name.
type ModuleID struct {
	Group string `json:"group"`
	Name  string `json:"name"`
}

// String renders "group:name".
func (m ModuleID) String() string {
	return m.Group + ":" + m.Name
}

// ComponentID identifies one published version of a module, or a project
// inside the current build when Project is set.
type ComponentID struct {
	Module  ModuleID `json:"module"`
	Version string   `json:"version,omitempty"`
	Project string   `json:"project,omitempty"`
}

// String renders "group:name:version" or "project :path".
func (c ComponentID) String() string {
	if c.Project != "" {
		return "project " + c.Project
	}
	return c.Module.String() + ":" + c.Version
}

// Capability is a (group, name, version) triple a variant provides.
// Two variants providing the same capability conflict in a graph.
type Capability struct {
	Group   string `json:"group"`
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// String renders "group:name:version" or "group:name" when unversioned.
func (c Capability) String() string {
	if c.Version == "" {
		return c.Group + ":" + c.Name
	}
	return c.Group + ":" + c.Name + ":" + c.Version
}

// SameCapability reports whether two capabilities name the same group and
// name. Versions are ignored: a request for a capability accepts any version.
func (c Capability) SameCapability(other Capability) bool {
	return c.Group == other.Group && c.Name == other.Name
}

// ArtifactName names one requested or published artifact.
type ArtifactName struct {
	Name       string `json:"name"`
	Type       string `json:"type,omitempty"`
	Extension  string `json:"extension,omitempty"`
	Classifier string `json:"classifier,omitempty"`
}

// String renders "name[-classifier].extension".
func (a ArtifactName) String() string {
	s := a.Name
	if a.Classifier != "" {
		s += "-" + a.Classifier
	}
	ext := a.Extension
	if ext == "" {
		ext = a.Type
	}
	if ext != "" {
		s += "." + ext
	}
	return s
}

// VersionConstraint is the rich version requirement of a module selector.
// Required and Preferred are exact versions or semver ranges; Strictly,
// when set, overrides Required. Rejects lists versions or ranges that are
// never acceptable.
type VersionConstraint struct {
	Required  string   `json:"required,omitempty"`
	Preferred string   `json:"preferred,omitempty"`
	Strictly  string   `json:"strictly,omitempty"`
	Rejects   []string `json:"rejects,omitempty"`
}

// Equal reports whether two constraints are identical.
func (v VersionConstraint) Equal(other VersionConstraint) bool {
	return v.Required == other.Required &&
		v.Preferred == other.Preferred &&
		v.Strictly == other.Strictly &&
		slices.Equal(v.Rejects, other.Rejects)
}

// IsEmpty reports whether the constraint accepts every version.
func (v VersionConstraint) IsEmpty() bool {
	return v.Required == "" && v.Preferred == "" && v.Strictly == "" && len(v.Rejects) == 0
}

// String renders the constraint the way dependency reports show it.
func (v VersionConstraint) String() string {
	switch {
	case v.Strictly != "":
		return "{strictly " + v.Strictly + "}"
	case v.Required != "" && v.Preferred != "":
		return "{require " + v.Required + "; prefer " + v.Preferred + "}"
	case v.Required != "":
		return v.Required
	case v.Preferred != "":
		return "{prefer " + v.Preferred + "}"
	}
	return "*"
}

// Validate checks that every part parses as a semver version or range.
func (v VersionConstraint) Validate() error {
	for _, part := range []struct{ field, value string }{
		{"required", v.Required},
		{"preferred", v.Preferred},
		{"strictly", v.Strictly},
	} {
		if part.value == "" {
			continue
		}
		if _, err := semver.NewConstraint(part.value); err != nil {
			return fmt.Errorf("%s %q: %w", part.field, part.value, err)
		}
	}
	for i, r := range v.Rejects {
		if _, err := semver.NewConstraint(r); err != nil {
			return fmt.Errorf("rejects[%d] %q: %w", i, r, err)
		}
	}
	return nil
}

// Accepts reports whether the version satisfies the constraint.
// Versions that fail to parse are never accepted.
func (v VersionConstraint) Accepts(version string) bool {
	ver, err := semver.NewVersion(version)
	if err != nil {
		return false
	}
	base := v.Required
	if v.Strictly != "" {
		base = v.Strictly
	}
	if base != "" && !satisfies(ver, base) {
		return false
	}
	for _, r := range v.Rejects {
		if satisfies(ver, r) {
			return false
		}
	}
	return true
}

// Prefers reports whether the version satisfies the preferred part.
func (v VersionConstraint) Prefers(version string) bool {
	if v.Preferred == "" {
		return false
	}
	ver, err := semver.NewVersion(version)
	if err != nil {
		return false
	}
	return satisfies(ver, v.Preferred)
}

func satisfies(ver *semver.Version, constraint string) bool {
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return false
	}
	return c.Check(ver)
}

// CompareVersions orders two version strings by semver precedence.
// Unparseable versions sort before parseable ones, then lexically.
func CompareVersions(a, b string) int {
	va, errA := semver.NewVersion(a)
	vb, errB := semver.NewVersion(b)
	switch {
	case errA != nil && errB != nil:
		return compareStrings(a, b)
	case errA != nil:
		return -1
	case errB != nil:
		return 1
	}
	if c := va.Compare(vb); c != 0 {
		return c
	}
	// 1.0 and 1.0.0 are equal in semver; keep the order total.
	return compareStrings(a, b)
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// FileSet is an ordered set of file paths: no empty path, no duplicate.
// Order is the resolution order and is preserved through persistence.
type FileSet []string

// NewFileSet builds a FileSet, dropping empty paths and later duplicates.
// The result is never nil so that an empty set encodes as [].
func NewFileSet(paths ...string) FileSet {
	out := make(FileSet, 0, len(paths))
	seen := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// Validate enforces the file-set contract.
func (fs FileSet) Validate() error {
	seen := make(map[string]int, len(fs))
	for i, p := range fs {
		if p == "" {
			return fmt.Errorf("file set entry %d: empty path", i)
		}
		if first, dup := seen[p]; dup {
			return fmt.Errorf("file set entry %d: duplicate of entry %d (%q)", i, first, p)
		}
		seen[p] = i
	}
	return nil
}

// Union appends the paths of other not already present.
func (fs FileSet) Union(other FileSet) FileSet {
	return NewFileSet(append(slices.Clone([]string(fs)), other...)...)
}

// Clone returns an independent copy. Never nil.
func (fs FileSet) Clone() FileSet {
	out := make(FileSet, len(fs))
	copy(out, fs)
	return out
}

// Equal reports element-wise equality. nil and empty are equal.
func (fs FileSet) Equal(other FileSet) bool {
	return slices.Equal(fs, other)
}

package depmeta

import (
	"slices"

	"github.com/roach88/graphres/internal/attr"
	"github.com/roach88/graphres/internal/ir"
)

// ComponentSelector identifies the target of a dependency edge.
// ModuleSelector and ProjectSelector are the supported kinds.
type ComponentSelector interface {
	DisplayName() string
}

// ModuleSelector targets a published module by coordinates and version
// constraint.
type ModuleSelector struct {
	Module       ir.ModuleID
	Version      ir.VersionConstraint
	Attributes   attr.Attributes
	Capabilities []ir.Capability
}

// DisplayName renders "group:name:constraint".
func (s ModuleSelector) DisplayName() string {
	return s.Module.String() + ":" + s.Version.String()
}

// Equal reports whether two module selectors are identical.
func (s ModuleSelector) Equal(other ModuleSelector) bool {
	return s.Module == other.Module &&
		s.Version.Equal(other.Version) &&
		s.Attributes.Equal(other.Attributes) &&
		slices.Equal(s.Capabilities, other.Capabilities)
}

// ProjectSelector targets a project of the current build.
type ProjectSelector struct {
	BuildPath   string
	ProjectPath string
}

// DisplayName renders "project :path", prefixed by the build path for
// included builds.
func (s ProjectSelector) DisplayName() string {
	if s.BuildPath == "" || s.BuildPath == ":" {
		return "project " + s.ProjectPath
	}
	return "project " + s.BuildPath + s.ProjectPath
}

// Package transform resolves, per artifact transform step, the upstream
// artifacts the step needs, and recreates frozen resolvers from persisted
// results.
package transform

import (
	"fmt"

	"github.com/roach88/graphres/internal/ir"
)

// Dependencies is the sealed result of resolving one transform step:
// NotRequired or FileDependencies. Consumers switch exhaustively and panic
// on anything else.
type Dependencies interface {
	// Recreate turns a persisted result back into a resolver. The resolver
	// is a frozen replay: it answers the same files for every step and
	// cannot traverse dependencies.
	Recreate() Resolver

	isDependencies() // Sealed
}

type notRequired struct{}

func (notRequired) isDependencies()    {}
func (notRequired) Recreate() Resolver { return NoDependencies }
func (notRequired) String() string     { return "NotRequired" }

// NotRequired is the shared result of a step that needs no upstream
// dependencies.
var NotRequired Dependencies = notRequired{}

// FileDependencies holds the resolved upstream files of one step.
type FileDependencies struct {
	Files ir.FileSet
}

func (FileDependencies) isDependencies() {}

// Recreate returns a FixedResolver over a copy of the files.
func (d FileDependencies) Recreate() Resolver {
	return NewFixedResolver(d.Files)
}

func (d FileDependencies) String() string {
	return fmt.Sprintf("FileDependencies%v", []string(d.Files))
}

// Equal reports whether two results are the same variant with equal files.
func Equal(a, b Dependencies) bool {
	switch av := a.(type) {
	case notRequired:
		_, ok := b.(notRequired)
		return ok
	case FileDependencies:
		bv, ok := b.(FileDependencies)
		return ok && av.Files.Equal(bv.Files)
	case nil:
		return b == nil
	default:
		panic(fmt.Sprintf("transform: unknown dependencies variant %T", a))
	}
}

// Kind returns "not-required" or "files".
func Kind(d Dependencies) string {
	switch d.(type) {
	case notRequired:
		return "not-required"
	case FileDependencies:
		return "files"
	default:
		panic(fmt.Sprintf("transform: unknown dependencies variant %T", d))
	}
}

// StepDependencies pairs a step name with its resolved dependencies.
type StepDependencies struct {
	Step         string
	Dependencies Dependencies
}

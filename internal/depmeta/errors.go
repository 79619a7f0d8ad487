package depmeta

import (
	"errors"
	"fmt"
	"strings"
)

// KindNoMatchingComponent is the failure kind of NoMatchingComponentError.
const KindNoMatchingComponent = "no-matching-component"

// UnsupportedSelectorError reports an edge retargeted to a selector kind
// this package does not know. Integration error; fatal.
type UnsupportedSelectorError struct {
	Selector ComponentSelector
}

func (e *UnsupportedSelectorError) Error() string {
	name := "<nil>"
	if e.Selector != nil {
		name = e.Selector.DisplayName()
	}
	return fmt.Sprintf("unsupported component selector %T (%s)", e.Selector, name)
}

// NoMatchingComponentError reports that no published component satisfies
// a selector. Fails only its own edge.
type NoMatchingComponentError struct {
	Selector ComponentSelector
	// Versions lists the published versions of the module that were
	// considered, in ascending order.
	Versions []string
}

func (e *NoMatchingComponentError) FailureKind() string { return KindNoMatchingComponent }

func (e *NoMatchingComponentError) Error() string {
	if len(e.Versions) == 0 {
		return fmt.Sprintf("could not find %s", e.Selector.DisplayName())
	}
	return fmt.Sprintf("could not find %s; versions available: %s",
		e.Selector.DisplayName(), strings.Join(e.Versions, ", "))
}

// IsUnsupportedSelector returns true if err is an UnsupportedSelectorError.
func IsUnsupportedSelector(err error) bool {
	var e *UnsupportedSelectorError
	return errors.As(err, &e)
}

// IsNoMatchingComponent returns true if err is a NoMatchingComponentError.
func IsNoMatchingComponent(err error) bool {
	var e *NoMatchingComponentError
	return errors.As(err, &e)
}

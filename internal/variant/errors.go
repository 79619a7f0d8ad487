package variant

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/graphres/internal/attr"
	"github.com/roach88/graphres/internal/ir"
)

// Failure kinds reported by per-edge resolution failures.
const (
	KindNoMatchingVariant          = "no-matching-variant"
	KindAmbiguousVariants          = "ambiguous-variants"
	KindNoMatchingCapabilities     = "no-matching-capabilities"
	KindConfigurationNotFound      = "configuration-not-found"
	KindConfigurationNotConsumable = "configuration-not-consumable"
)

// EdgeFailure is implemented by errors that fail a single dependency edge
// without aborting resolution of independent edges.
type EdgeFailure interface {
	error
	FailureKind() string
}

// FailureKind returns the kind of a per-edge failure, or "" if err is not
// one. Uses errors.As to handle wrapped errors.
func FailureKind(err error) string {
	var f EdgeFailure
	if errors.As(err, &f) {
		return f.FailureKind()
	}
	return ""
}

// IsEdgeFailure returns true if err fails only its own edge.
func IsEdgeFailure(err error) bool {
	return FailureKind(err) != ""
}

// ProcessorFailure is a selection failure reported by a custom
// FailureProcessor whose error does not classify itself.
type ProcessorFailure struct {
	Kind   string
	Target ir.ComponentID
	Err    error
}

func (e *ProcessorFailure) FailureKind() string { return e.Kind }

func (e *ProcessorFailure) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Target)
	}
	return e.Err.Error()
}

func (e *ProcessorFailure) Unwrap() error { return e.Err }

// AttributeMismatch records one incompatible attribute of a candidate.
type AttributeMismatch struct {
	Attribute string
	Requested ir.Value
	Provided  ir.Value
}

// CandidateMismatch lists why one candidate variant was rejected.
type CandidateMismatch struct {
	Variant    string
	Mismatches []AttributeMismatch
}

// NoMatchingVariantError reports that no variant is compatible with the
// requested attributes.
type NoMatchingVariantError struct {
	Target     ir.ComponentID
	Requested  attr.Attributes
	Candidates []CandidateMismatch
}

func (e *NoMatchingVariantError) FailureKind() string { return KindNoMatchingVariant }

func (e *NoMatchingVariantError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "no matching variant of %s was found; consumer requested %s", e.Target, e.Requested)
	for _, c := range e.Candidates {
		fmt.Fprintf(&b, "\n  - variant %q:", c.Variant)
		for _, m := range c.Mismatches {
			fmt.Fprintf(&b, " %s=%s (required %s);",
				m.Attribute, ir.Format(m.Provided), ir.Format(m.Requested))
		}
	}
	return b.String()
}

// AmbiguousVariantError reports that more than one variant survived
// disambiguation.
type AmbiguousVariantError struct {
	Target    ir.ComponentID
	Requested attr.Attributes
	Variants  []string
}

func (e *AmbiguousVariantError) FailureKind() string { return KindAmbiguousVariants }

func (e *AmbiguousVariantError) Error() string {
	return fmt.Sprintf("cannot choose between the variants of %s: %s; consumer requested %s",
		e.Target, strings.Join(e.Variants, ", "), e.Requested)
}

// NoMatchingCapabilitiesError reports that no variant provides the
// requested capabilities.
type NoMatchingCapabilitiesError struct {
	Target    ir.ComponentID
	Requested []ir.Capability
	Variants  []string
}

func (e *NoMatchingCapabilitiesError) FailureKind() string { return KindNoMatchingCapabilities }

func (e *NoMatchingCapabilitiesError) Error() string {
	caps := make([]string, len(e.Requested))
	for i, c := range e.Requested {
		caps[i] = c.String()
	}
	return fmt.Sprintf("no variant of %s provides capabilities [%s]; variants: %s",
		e.Target, strings.Join(caps, ", "), strings.Join(e.Variants, ", "))
}

// ConfigurationNotFoundError reports that the legacy mapping found no
// target configuration.
type ConfigurationNotFoundError struct {
	Target ir.ComponentID
	// Configuration is the missing target configuration; empty when no
	// mapping rule matched the source hierarchy.
	Configuration string
	// FromConfiguration is the source configuration whose hierarchy was walked.
	FromConfiguration string
}

func (e *ConfigurationNotFoundError) FailureKind() string { return KindConfigurationNotFound }

func (e *ConfigurationNotFoundError) Error() string {
	if e.Configuration == "" {
		return fmt.Sprintf("no configuration mapping of %s matches configuration %q or its hierarchy",
			e.Target, e.FromConfiguration)
	}
	return fmt.Sprintf("%s has no configuration %q (declared by configuration %q)",
		e.Target, e.Configuration, e.FromConfiguration)
}

// ConfigurationNotConsumableError reports a mapped legacy configuration
// whose role forbids consumption.
type ConfigurationNotConsumableError struct {
	Target        ir.ComponentID
	Configuration string
	Role          string
}

func (e *ConfigurationNotConsumableError) FailureKind() string {
	return KindConfigurationNotConsumable
}

func (e *ConfigurationNotConsumableError) Error() string {
	return fmt.Sprintf("configuration %q of %s cannot be consumed (role %s)", e.Configuration, e.Target, e.Role)
}

// IsNoMatchingVariant returns true if err is a NoMatchingVariantError.
func IsNoMatchingVariant(err error) bool {
	var e *NoMatchingVariantError
	return errors.As(err, &e)
}

// IsAmbiguousVariant returns true if err is an AmbiguousVariantError.
func IsAmbiguousVariant(err error) bool {
	var e *AmbiguousVariantError
	return errors.As(err, &e)
}

// IsConfigurationNotFound returns true if err is a ConfigurationNotFoundError.
func IsConfigurationNotFound(err error) bool {
	var e *ConfigurationNotFoundError
	return errors.As(err, &e)
}

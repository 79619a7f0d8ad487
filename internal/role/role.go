// Package role defines configuration roles: which usages a configuration
// allows and which of those are deprecated.
//
// Roles are immutable values. The predefined roles are package-level
// values shared freely across goroutines.
package role

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// Usage is one way a configuration may be used.
type Usage int

const (
	// Consumption: selected by another project as a dependency.
	Consumption Usage = iota
	// Resolution: resolved by this project to a set of files.
	Resolution
	// DeclarationAgainst: dependencies declared against it.
	DeclarationAgainst
)

// String returns the usage's configuration-language name.
func (u Usage) String() string {
	switch u {
	case Consumption:
		return "consumption"
	case Resolution:
		return "resolution"
	case DeclarationAgainst:
		return "declaration-against"
	}
	return fmt.Sprintf("usage(%d)", int(u))
}

// Role is the set of legal usages of a configuration.
// The zero Role allows nothing.
type Role struct {
	name string

	consumable        bool
	resolvable        bool
	declarableAgainst bool

	consumptionDeprecated        bool
	resolutionDeprecated         bool
	declarationAgainstDeprecated bool
}

const (
	deprecatedSuffix = " (but this behavior is marked deprecated)"
	noUsage          = "\tThis configuration does not allow any usage"

	consumableLine  = "\tConsumable - this configuration can be selected by another project as a dependency"
	resolvableLine  = "\tResolvable - this configuration can be resolved by this project to a set of files"
	declarableLine  = "\tDeclarable Against - this configuration can have dependencies added to it"
	customRoleName  = "custom"
	invalidRoleText = "cannot deprecate a usage that is not allowed"
)

// Predefined roles.
var (
	// Legacy allows every usage. Default for configurations that declare
	// no role.
	Legacy = mustRole("legacy", true, true, true, false, false, false)

	IntendedConsumable       = mustRole("consumable", true, false, false, false, false, false)
	IntendedResolvable       = mustRole("resolvable", false, true, false, false, false, false)
	IntendedResolvableBucket = mustRole("resolvable-bucket", false, true, true, false, false, false)
	IntendedConsumableBucket = mustRole("consumable-bucket", true, false, true, false, false, false)
	IntendedBucket           = mustRole("bucket", false, false, true, false, false, false)

	// DeprecatedConsumable is meant for consumption only; resolving it or
	// declaring against it still works but warns.
	DeprecatedConsumable = mustRole("deprecated-consumable", true, true, true, false, true, true)
	// DeprecatedResolvable is meant for resolution only.
	DeprecatedResolvable = mustRole("deprecated-resolvable", true, true, true, true, false, true)
)

var predefined = map[string]Role{}

func init() {
	for _, r := range []Role{
		Legacy,
		IntendedConsumable,
		IntendedResolvable,
		IntendedResolvableBucket,
		IntendedConsumableBucket,
		IntendedBucket,
		DeprecatedConsumable,
		DeprecatedResolvable,
	} {
		predefined[r.name] = r
	}
}

// ForUsage builds a custom role. Fails with InvalidRoleConfigurationError if
// a deprecated flag is set on a usage that is not allowed.
func ForUsage(consumable, resolvable, declarableAgainst, consumptionDeprecated, resolutionDeprecated, declarationAgainstDeprecated bool) (Role, error) {
	return newRole(customRoleName, consumable, resolvable, declarableAgainst,
		consumptionDeprecated, resolutionDeprecated, declarationAgainstDeprecated)
}

func newRole(name string, consumable, resolvable, declarableAgainst, consumptionDeprecated, resolutionDeprecated, declarationAgainstDeprecated bool) (Role, error) {
	if (consumptionDeprecated && !consumable) ||
		(resolutionDeprecated && !resolvable) ||
		(declarationAgainstDeprecated && !declarableAgainst) {
		return Role{}, &InvalidRoleConfigurationError{
			Consumable:                   consumable,
			Resolvable:                   resolvable,
			DeclarableAgainst:            declarableAgainst,
			ConsumptionDeprecated:        consumptionDeprecated,
			ResolutionDeprecated:         resolutionDeprecated,
			DeclarationAgainstDeprecated: declarationAgainstDeprecated,
		}
	}
	return Role{
		name:                         name,
		consumable:                   consumable,
		resolvable:                   resolvable,
		declarableAgainst:            declarableAgainst,
		consumptionDeprecated:        consumptionDeprecated,
		resolutionDeprecated:         resolutionDeprecated,
		declarationAgainstDeprecated: declarationAgainstDeprecated,
	}, nil
}

func mustRole(name string, flags ...bool) Role {
	r, err := newRole(name, flags[0], flags[1], flags[2], flags[3], flags[4], flags[5])
	if err != nil {
		panic(fmt.Sprintf("predefined role %s: %v", name, err))
	}
	return r
}

// ByName looks up a predefined role by its configuration-language name.
func ByName(name string) (Role, bool) {
	r, ok := predefined[name]
	return r, ok
}

// Names returns the predefined role names in sorted order.
func Names() []string {
	names := make([]string, 0, len(predefined))
	for n := range predefined {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Name returns the role's name; "custom" for roles built with ForUsage.
func (r Role) Name() string { return r.name }

// String implements fmt.Stringer.
func (r Role) String() string { return r.name }

func (r Role) IsConsumable() bool                   { return r.consumable }
func (r Role) IsResolvable() bool                   { return r.resolvable }
func (r Role) IsDeclarableAgainst() bool            { return r.declarableAgainst }
func (r Role) IsConsumptionDeprecated() bool        { return r.consumptionDeprecated }
func (r Role) IsResolutionDeprecated() bool         { return r.resolutionDeprecated }
func (r Role) IsDeclarationAgainstDeprecated() bool { return r.declarationAgainstDeprecated }

// Allows reports whether the usage is allowed, deprecated or not.
func (r Role) Allows(u Usage) bool {
	switch u {
	case Consumption:
		return r.consumable
	case Resolution:
		return r.resolvable
	case DeclarationAgainst:
		return r.declarableAgainst
	}
	return false
}

// Deprecates reports whether the usage is allowed but deprecated.
func (r Role) Deprecates(u Usage) bool {
	switch u {
	case Consumption:
		return r.consumptionDeprecated
	case Resolution:
		return r.resolutionDeprecated
	case DeclarationAgainst:
		return r.declarationAgainstDeprecated
	}
	return false
}

// Check validates a usage of the named configuration. A disallowed usage
// fails with UsageNotAllowedError; an allowed but deprecated usage returns
// deprecated=true.
func (r Role) Check(configuration string, u Usage) (deprecated bool, err error) {
	if !r.Allows(u) {
		return false, &UsageNotAllowedError{Configuration: configuration, Role: r, Usage: u}
	}
	return r.Deprecates(u), nil
}

// CheckAndWarn is Check plus a warning on the logger for deprecated usage.
func (r Role) CheckAndWarn(logger *slog.Logger, configuration string, u Usage) error {
	deprecated, err := r.Check(configuration, u)
	if err != nil {
		return err
	}
	if deprecated {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("deprecated configuration usage",
			"configuration", configuration,
			"role", r.name,
			"usage", u.String())
	}
	return nil
}

// DescribeUsage renders one line per allowed usage in the order consumable,
// resolvable, declarable against.
func (r Role) DescribeUsage() string {
	var lines []string
	add := func(allowed, deprecated bool, line string) {
		if !allowed {
			return
		}
		if deprecated {
			line += deprecatedSuffix
		}
		lines = append(lines, line)
	}
	add(r.consumable, r.consumptionDeprecated, consumableLine)
	add(r.resolvable, r.resolutionDeprecated, resolvableLine)
	add(r.declarableAgainst, r.declarationAgainstDeprecated, declarableLine)

	if len(lines) == 0 {
		return noUsage
	}
	return strings.Join(lines, "\n")
}

package role

import (
	"errors"
	"fmt"
)

// InvalidRoleConfigurationError reports a role whose deprecation flags name
// a usage it does not allow. Programmer error; never retried.
type InvalidRoleConfigurationError struct {
	Consumable                   bool
	Resolvable                   bool
	DeclarableAgainst            bool
	ConsumptionDeprecated        bool
	ResolutionDeprecated         bool
	DeclarationAgainstDeprecated bool
}

func (e *InvalidRoleConfigurationError) Error() string {
	return invalidRoleText
}

// UsageNotAllowedError reports a configuration used in a way its role
// forbids.
type UsageNotAllowedError struct {
	Configuration string
	Role          Role
	Usage         Usage
}

func (e *UsageNotAllowedError) Error() string {
	return fmt.Sprintf("configuration %q (role %s) does not allow %s", e.Configuration, e.Role.Name(), e.Usage)
}

// IsInvalidRoleConfiguration returns true if err is an InvalidRoleConfigurationError.
// Uses errors.As to handle wrapped errors.
func IsInvalidRoleConfiguration(err error) bool {
	var re *InvalidRoleConfigurationError
	return errors.As(err, &re)
}

// IsUsageNotAllowed returns true if err is a UsageNotAllowedError.
func IsUsageNotAllowed(err error) bool {
	var ue *UsageNotAllowedError
	return errors.As(err, &ue)
}

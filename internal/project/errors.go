package project

import (
	"errors"
	"fmt"
)

// LoadError reports a model that cannot be assembled. Subject names the
// model element, e.g. "dependencies.guava".
type LoadError struct {
	Subject string
	Message string
	Err     error
}

func (e *LoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Subject, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Subject, e.Message)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// IsLoadError returns true if err is a LoadError.
func IsLoadError(err error) bool {
	var le *LoadError
	return errors.As(err, &le)
}

func loadError(subject string, err error, format string, args ...any) *LoadError {
	return &LoadError{Subject: subject, Message: fmt.Sprintf(format, args...), Err: err}
}

// UnknownRoleError reports a role name that is not predefined.
type UnknownRoleError struct {
	Name string
}

func (e *UnknownRoleError) Error() string {
	return fmt.Sprintf("unknown role %q", e.Name)
}

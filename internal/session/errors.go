package session

import (
	"errors"
	"fmt"
)

// ConnectionClosedError is returned by Resolve once the connection is
// closing or closed.
type ConnectionClosedError struct {
	ConnectionID string
}

func (e *ConnectionClosedError) Error() string {
	return fmt.Sprintf("connection %s is closed", e.ConnectionID)
}

// IllegalStateError is returned by Connect while a previous connection is
// still tearing down.
type IllegalStateError struct {
	Message string
}

func (e *IllegalStateError) Error() string {
	return "illegal state: " + e.Message
}

// IsConnectionClosed returns true if err is a ConnectionClosedError.
func IsConnectionClosed(err error) bool {
	var ce *ConnectionClosedError
	return errors.As(err, &ce)
}

// IsIllegalState returns true if err is an IllegalStateError.
func IsIllegalState(err error) bool {
	var ie *IllegalStateError
	return errors.As(err, &ie)
}

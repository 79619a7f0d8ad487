package codec

import (
	"errors"
	"fmt"
)

// CorruptCacheEntryError reports a persisted entry that cannot be decoded.
// The engine treats it as a cache miss and overwrites the entry.
type CorruptCacheEntryError struct {
	Reason string
	Err    error
}

func (e *CorruptCacheEntryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("corrupt cache entry: %s: %v", e.Reason, e.Err)
	}
	return "corrupt cache entry: " + e.Reason
}

func (e *CorruptCacheEntryError) Unwrap() error {
	return e.Err
}

// IsCorruptCacheEntry returns true if err is a CorruptCacheEntryError.
func IsCorruptCacheEntry(err error) bool {
	var e *CorruptCacheEntryError
	return errors.As(err, &e)
}

func corrupt(reason string, args ...any) error {
	return &CorruptCacheEntryError{Reason: fmt.Sprintf(reason, args...)}
}

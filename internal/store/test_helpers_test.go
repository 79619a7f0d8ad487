package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/graphres/internal/ir"
)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestEntry creates an entry keyed by the hash of a small input object.
func createTestEntry(t *testing.T, edge string, payload []byte, at time.Time) Entry {
	t.Helper()
	inputs := ir.Object{"edge": ir.String(edge)}
	key, err := ir.ContextKey(inputs)
	if err != nil {
		t.Fatalf("ContextKey() failed: %v", err)
	}
	return Entry{
		ContextKey:    key,
		Inputs:        inputs,
		Payload:       payload,
		FormatVersion: 1,
		CreatedAt:     at,
	}
}

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/roach88/graphres/internal/ir"
)

// Entry is one persisted resolution.
type Entry struct {
	ContextKey    string
	EntryDir      string
	Inputs        ir.Object
	Payload       []byte
	FormatVersion int
	CreatedAt     time.Time
}

// AccessRecord pairs an entry with the last time it was used.
type AccessRecord struct {
	EntryDir   string
	ContextKey string
	LastAccess time.Time
}

const metaInception = "inception"

// WriteEntry upserts an entry and records it as accessed at CreatedAt.
//
// Uses ON CONFLICT(context_key) DO UPDATE so a recomputed entry replaces a
// corrupt one under the same key. Entry dir defaults to ir.EntryDir of the
// key.
func (s *Store) WriteEntry(ctx context.Context, e Entry) error {
	if e.ContextKey == "" {
		return fmt.Errorf("write entry: empty context key")
	}
	if e.EntryDir == "" {
		e.EntryDir = ir.EntryDir(e.ContextKey)
	}
	inputs, err := marshalInputs(e.Inputs)
	if err != nil {
		return fmt.Errorf("write entry: %w", err)
	}
	payload := e.Payload
	if payload == nil {
		payload = []byte{}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write entry: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	_, err = tx.ExecContext(ctx, `
		INSERT INTO cache_entries
		(context_key, entry_dir, inputs, payload, format_version, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(context_key) DO UPDATE SET
			entry_dir = excluded.entry_dir,
			inputs = excluded.inputs,
			payload = excluded.payload,
			format_version = excluded.format_version,
			created_at = excluded.created_at
	`,
		e.ContextKey,
		e.EntryDir,
		inputs,
		payload,
		e.FormatVersion,
		toMillis(e.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("write entry: insert: %w", err)
	}

	if err := touch(ctx, tx, e.ContextKey, e.CreatedAt); err != nil {
		return fmt.Errorf("write entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write entry: commit: %w", err)
	}
	return nil
}

// TouchEntry records an access of an existing entry. Returns
// ErrEntryNotFound if no entry has the key.
func (s *Store) TouchEntry(ctx context.Context, contextKey string, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("touch entry: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var exists int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM cache_entries WHERE context_key = ?
	`, contextKey).Scan(&exists)
	if err != nil {
		return fmt.Errorf("touch entry: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("touch entry %s: %w", contextKey, ErrEntryNotFound)
	}

	if err := touch(ctx, tx, contextKey, at); err != nil {
		return fmt.Errorf("touch entry: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("touch entry: commit: %w", err)
	}
	return nil
}

type txExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// touch moves last_access forward only; a late writer with an older
// timestamp never rewinds the journal.
func touch(ctx context.Context, tx txExecer, contextKey string, at time.Time) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO access_journal (context_key, last_access)
		VALUES (?, ?)
		ON CONFLICT(context_key) DO UPDATE SET
			last_access = MAX(last_access, excluded.last_access)
	`, contextKey, toMillis(at))
	if err != nil {
		return fmt.Errorf("record access: %w", err)
	}
	return nil
}

// MarkInception records the cache creation time once. Later calls keep the
// first value and return it.
func (s *Store) MarkInception(ctx context.Context, at time.Time) (time.Time, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cache_meta (key, value)
		VALUES (?, ?)
		ON CONFLICT(key) DO NOTHING
	`, metaInception, strconv.FormatInt(toMillis(at), 10))
	if err != nil {
		return time.Time{}, fmt.Errorf("mark inception: %w", err)
	}

	inception, ok, err := s.Inception(ctx)
	if err != nil {
		return time.Time{}, err
	}
	if !ok {
		return time.Time{}, fmt.Errorf("mark inception: value missing after insert")
	}
	return inception, nil
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ErrEntryNotFound is returned when no entry has the requested key.
var ErrEntryNotFound = errors.New("cache entry not found")

// ReadEntry retrieves a single entry by context key.
// Returns ErrEntryNotFound if not found.
func (s *Store) ReadEntry(ctx context.Context, contextKey string) (Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT context_key, entry_dir, inputs, payload, format_version, created_at
		FROM cache_entries
		WHERE context_key = ?
	`, contextKey)

	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("read entry %s: %w", contextKey, ErrEntryNotFound)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("read entry %s: %w", contextKey, err)
	}
	return e, nil
}

// ListEntries returns every entry in deterministic order:
// ORDER BY entry_dir ASC, context_key COLLATE BINARY ASC.
//
// Returns an empty slice (not nil) if the store is empty.
func (s *Store) ListEntries(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT context_key, entry_dir, inputs, payload, format_version, created_at
		FROM cache_entries
		ORDER BY entry_dir ASC, context_key COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

// AccessRecords returns the (entry dir, last access) pairs consumed by the
// cleanup collaborator, ordered by entry_dir then context_key.
func (s *Store) AccessRecords(ctx context.Context) ([]AccessRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.entry_dir, e.context_key, a.last_access
		FROM cache_entries e
		JOIN access_journal a ON a.context_key = e.context_key
		ORDER BY e.entry_dir ASC, e.context_key COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query access records: %w", err)
	}
	defer rows.Close()

	records := []AccessRecord{}
	for rows.Next() {
		var rec AccessRecord
		var lastAccess int64
		if err := rows.Scan(&rec.EntryDir, &rec.ContextKey, &lastAccess); err != nil {
			return nil, fmt.Errorf("scan access record: %w", err)
		}
		rec.LastAccess = fromMillis(lastAccess)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate access records: %w", err)
	}
	return records, nil
}

// Inception returns the recorded cache creation time. ok is false if
// MarkInception was never called.
func (s *Store) Inception(ctx context.Context) (inception time.Time, ok bool, err error) {
	var value string
	err = s.db.QueryRowContext(ctx, `
		SELECT value FROM cache_meta WHERE key = ?
	`, metaInception).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read inception: %w", err)
	}
	ms, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read inception: parse %q: %w", value, err)
	}
	return fromMillis(ms), true, nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (Entry, error) {
	var e Entry
	var inputs string
	var createdAt int64
	err := row.Scan(&e.ContextKey, &e.EntryDir, &inputs, &e.Payload, &e.FormatVersion, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, err
		}
		return Entry{}, fmt.Errorf("scan entry: %w", err)
	}

	e.Inputs, err = unmarshalInputs(inputs)
	if err != nil {
		return Entry{}, err
	}
	e.CreatedAt = fromMillis(createdAt)
	return e, nil
}

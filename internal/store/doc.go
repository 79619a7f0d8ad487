// Package store provides SQLite-backed persistence for resolution cache
// entries.
//
// The store holds:
//   - Cache entries: encoded resolution snapshots keyed by context key
//   - Access journal: last access time of every entry
//   - Cache meta: the inception timestamp of the cache
//
// # Critical Patterns
//
// Content addressing
//   - context_key is the domain-separated SHA-256 of the resolution inputs
//   - entry_dir is the two-level directory the entry belongs to
//
// Never delete
//   - The store exposes no delete; cleanup is an external collaborator that
//     reads AccessRecords and the inception time
//
// Deterministic query results
//   - Listings use ORDER BY entry_dir ASC, context_key COLLATE BINARY ASC
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: access_journal rows reference cache_entries
package store

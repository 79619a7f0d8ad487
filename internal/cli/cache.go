package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/graphres/internal/ir"
	"github.com/roach88/graphres/internal/store"
)

// CacheOptions holds flags for the cache command.
type CacheOptions struct {
	*RootOptions
	Database string
	Key      string // optional - show one entry with its context inputs
}

// CacheEntry is one persisted resolution with its last access.
type CacheEntry struct {
	ContextKey    string    `json:"context_key"`
	EntryDir      string    `json:"entry_dir"`
	FormatVersion int       `json:"format_version"`
	CreatedAt     time.Time `json:"created_at"`
	LastAccess    time.Time `json:"last_access"`
	Size          int       `json:"size"`
	Inputs        ir.Object `json:"inputs,omitempty"`
}

// CacheResult holds the cache listing.
type CacheResult struct {
	Inception *time.Time   `json:"inception,omitempty"`
	Entries   []CacheEntry `json:"entries"`
}

// NewCacheCommand creates the cache command.
func NewCacheCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CacheOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the resolution cache",
		Long: `Inspect the resolution cache.

Lists every persisted entry ordered by entry directory, with the time it
was created and last accessed. These are the records a cleanup pass uses to
evict stale entries. The inception time is when the cache was first used.

With --key, only that entry is shown, including the context inputs its key
was hashed from.

Examples:
  graphres cache --db ./graphres.db
  graphres cache --db ./graphres.db --key 3f2a...
  graphres cache --db ./graphres.db --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCache(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Key, "key", "", "show a single entry with its inputs")

	return cmd
}

func runCache(opts *CacheOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if _, err := os.Stat(opts.Database); err != nil {
		return WrapExitError(ExitCommandError, "database not found", err)
	}
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	result, err := buildCacheResult(ctx, st, opts.Key)
	if errors.Is(err, store.ErrEntryNotFound) {
		return WrapExitError(ExitFailure, "no cache entry for key "+opts.Key, err)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read cache", err)
	}

	formatter := newFormatter(opts.RootOptions, cmd)
	if formatter.JSON() {
		return formatter.Respond(CLIResponse{Status: "ok", Data: result})
	}
	outputCacheText(formatter.Writer, result, opts.Verbose)
	return nil
}

// buildCacheResult joins entries with their access records.
func buildCacheResult(ctx context.Context, st *store.Store, key string) (CacheResult, error) {
	var result CacheResult
	inception, ok, err := st.Inception(ctx)
	if err != nil {
		return result, err
	}
	if ok {
		result.Inception = &inception
	}

	records, err := st.AccessRecords(ctx)
	if err != nil {
		return result, err
	}
	lastAccess := make(map[string]time.Time, len(records))
	for _, r := range records {
		lastAccess[r.ContextKey] = r.LastAccess
	}

	if key != "" {
		e, err := st.ReadEntry(ctx, key)
		if err != nil {
			return result, err
		}
		entry := cacheEntry(e, lastAccess)
		entry.Inputs = e.Inputs
		result.Entries = []CacheEntry{entry}
		return result, nil
	}

	entries, err := st.ListEntries(ctx)
	if err != nil {
		return result, err
	}
	result.Entries = make([]CacheEntry, 0, len(entries))
	for _, e := range entries {
		result.Entries = append(result.Entries, cacheEntry(e, lastAccess))
	}
	return result, nil
}

func cacheEntry(e store.Entry, lastAccess map[string]time.Time) CacheEntry {
	return CacheEntry{
		ContextKey:    e.ContextKey,
		EntryDir:      e.EntryDir,
		FormatVersion: e.FormatVersion,
		CreatedAt:     e.CreatedAt,
		LastAccess:    lastAccess[e.ContextKey],
		Size:          len(e.Payload),
	}
}

// outputCacheText outputs the cache listing as text.
func outputCacheText(w io.Writer, result CacheResult, verbose bool) {
	if result.Inception != nil {
		fmt.Fprintf(w, "Cache in use since %s\n", result.Inception.Format(time.RFC3339))
	}
	fmt.Fprintf(w, "%d entr(ies)\n\n", len(result.Entries))

	for _, e := range result.Entries {
		key := e.ContextKey
		if !verbose {
			key = truncateID(key)
		}
		fmt.Fprintf(w, "  %s  %s  last access %s\n", e.EntryDir, key, e.LastAccess.Format(time.RFC3339))
		if verbose {
			fmt.Fprintf(w, "    created %s, %d byte(s), format v%d\n", e.CreatedAt.Format(time.RFC3339), e.Size, e.FormatVersion)
		}
		if e.Inputs != nil {
			for _, k := range e.Inputs.SortedKeys() {
				fmt.Fprintf(w, "    %s = %s\n", k, ir.Format(e.Inputs[k]))
			}
		}
	}
}

// truncateID truncates a long ID for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:8] + "..." + id[len(id)-8:]
}

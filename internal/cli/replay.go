package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/graphres/internal/codec"
	"github.com/roach88/graphres/internal/engine"
	"github.com/roach88/graphres/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	Key      string // optional - replay one entry instead of verifying a model
}

// ReplayEntryResult is one cache entry recreated from the store.
type ReplayEntryResult struct {
	ContextKey        string       `json:"context_key"`
	Component         string       `json:"component"`
	Variants          []string     `json:"variants"`
	AttributeMatching bool         `json:"attribute_matching"`
	Steps             []StepReport `json:"steps"`
}

// VerifyEdgeResult is the verification of one edge.
type VerifyEdgeResult struct {
	EdgeID     string `json:"edge_id"`
	ContextKey string `json:"context_key,omitempty"`
	Status     string `json:"status"`
}

// ReplayResult holds the overall verification result.
type ReplayResult struct {
	Edges            []VerifyEdgeResult `json:"edges"`
	TotalEdges       int                `json:"total_edges"`
	AllDeterministic bool               `json:"all_deterministic"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay [model-dir]",
		Short: "Replay cached resolutions and verify determinism",
		Long: `Replay cached resolutions and verify determinism.

Given a model directory, every edge is resolved again without the cache and
compared byte for byte with the entry persisted under its context key.
Entries that are missing do not fail verification; mismatched or corrupt
entries do. The database is only read.

With --key, the single entry stored under that context key is decoded and
printed without consulting any model.

Exit codes:
  0 - All cached edges are deterministic
  1 - Determinism verification failed, or the entry is corrupt
  2 - Command error (database or entry not found, invalid model, etc.)

Examples:
  graphres replay --db ./graphres.db ./model
  graphres replay --db ./graphres.db --key 3f2a...
  graphres replay --db ./graphres.db ./model --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			modelDir := ""
			if len(args) == 1 {
				modelDir = args[0]
			}
			return runReplay(opts, modelDir, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Key, "key", "", "replay the entry with this context key only")

	return cmd
}

func runReplay(opts *ReplayOptions, modelDir string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := formatter.Logger()

	if opts.Key == "" && modelDir == "" {
		return NewExitError(ExitCommandError, "replay needs a model directory or --key")
	}

	// store.Open would create a fresh database; replaying one makes no sense.
	if _, err := os.Stat(opts.Database); err != nil {
		return WrapExitError(ExitCommandError, "database not found", err)
	}
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	eng := engine.New(engine.WithStore(st), engine.WithLogger(logger))

	if opts.Key != "" {
		return replayEntry(ctx, eng, opts.Key, formatter)
	}

	p, verrs, err := LoadProject(modelDir, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load model", err)
	}
	if len(verrs) > 0 {
		return WrapExitError(ExitCommandError, "invalid model", verrs[0])
	}

	v, err := eng.Verify(ctx, p.Request)
	if err != nil {
		return WrapExitError(ExitCommandError, "verification aborted", err)
	}

	result := ReplayResult{
		Edges:            make([]VerifyEdgeResult, 0, len(v.Edges)),
		TotalEdges:       len(v.Edges),
		AllDeterministic: v.OK(),
	}
	for _, e := range v.Edges {
		result.Edges = append(result.Edges, VerifyEdgeResult{
			EdgeID:     e.EdgeID,
			ContextKey: e.ContextKey,
			Status:     string(e.Status),
		})
	}

	if formatter.JSON() {
		return outputReplayJSON(formatter, result)
	}
	return outputReplayText(formatter, result)
}

// replayEntry decodes the entry stored under key.
func replayEntry(ctx context.Context, eng *engine.Engine, key string, formatter *OutputFormatter) error {
	r, err := eng.Replay(ctx, key)
	switch {
	case errors.Is(err, store.ErrEntryNotFound):
		return WrapExitError(ExitCommandError, "no cache entry for key "+key, err)
	case codec.IsCorruptCacheEntry(err):
		return WrapExitError(ExitFailure, "cache entry is corrupt", err)
	case err != nil:
		return WrapExitError(ExitCommandError, "replay failed", err)
	}

	result := ReplayEntryResult{
		ContextKey:        r.ContextKey,
		Component:         r.Snapshot.Component,
		Variants:          r.Snapshot.Variants,
		AttributeMatching: r.Snapshot.AttributeMatching,
		Steps:             make([]StepReport, 0, len(r.Snapshot.Steps)),
	}
	for _, s := range r.Snapshot.Steps {
		result.Steps = append(result.Steps, stepReport(s))
	}

	if formatter.JSON() {
		return formatter.Respond(CLIResponse{Status: "ok", Data: result})
	}

	w := formatter.Writer
	mode := engine.ModeLegacy
	if result.AttributeMatching {
		mode = engine.ModeAttributeMatching
	}
	fmt.Fprintf(w, "Entry %s\n", result.ContextKey)
	fmt.Fprintf(w, "  component: %s\n", result.Component)
	fmt.Fprintf(w, "  variants: %v (%s)\n", result.Variants, mode)
	for _, s := range result.Steps {
		fmt.Fprintf(w, "  %s: %s %v\n", s.Step, s.Kind, s.Files)
	}
	return nil
}

// outputReplayJSON outputs the replay result as JSON.
func outputReplayJSON(formatter *OutputFormatter, result ReplayResult) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
	}

	if !result.AllDeterministic {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    "E_DETERMINISM",
			Message: "determinism verification failed",
		}
	}

	if err := formatter.Respond(response); err != nil {
		return err
	}

	if !result.AllDeterministic {
		// Determinism failure = exit code 1
		return NewExitError(ExitFailure, "determinism verification failed")
	}
	return nil
}

// outputReplayText outputs the replay result as text.
func outputReplayText(formatter *OutputFormatter, result ReplayResult) error {
	w := formatter.Writer

	fmt.Fprintf(w, "Replay Summary: %d edge(s)\n", result.TotalEdges)
	fmt.Fprintln(w)

	for _, e := range result.Edges {
		status := "✓"
		switch engine.VerifyStatus(e.Status) {
		case engine.VerifyMismatch, engine.VerifyCorrupt:
			status = "✗"
		case engine.VerifyMissing, engine.VerifySkipped:
			status = "-"
		}
		fmt.Fprintf(w, "%s %s: %s\n", status, e.EdgeID, e.Status)
		if formatter.Verbose && e.ContextKey != "" {
			fmt.Fprintf(w, "  key: %s\n", e.ContextKey)
		}
	}
	fmt.Fprintln(w)

	if result.AllDeterministic {
		fmt.Fprintln(w, "✓ All cached edges verified deterministic")
		return nil
	}

	fmt.Fprintln(w, "✗ Determinism verification failed")
	// Determinism failure = exit code 1
	return NewExitError(ExitFailure, "determinism verification failed")
}

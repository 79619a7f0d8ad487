package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/graphres/internal/engine"
	"github.com/roach88/graphres/internal/session"
	"github.com/roach88/graphres/internal/store"
	"github.com/roach88/graphres/internal/toolchain"
	"github.com/roach88/graphres/internal/transform"
	"github.com/roach88/graphres/internal/variant"
)

// ResolveOptions holds flags for the resolve command.
type ResolveOptions struct {
	*RootOptions
	Database string
	Workers  int
	Metrics  bool

	// TimeSource allows overriding the cache clock (for testing).
	// If nil, defaults to engine.SystemTime.
	TimeSource engine.TimeSource
	// IDGenerator allows overriding resolution and connection ids (for
	// testing). If nil, defaults to UUIDv7Generator.
	IDGenerator engine.IDGenerator
}

// StepReport is the resolved dependencies of one transform step.
type StepReport struct {
	Step  string   `json:"step"`
	Kind  string   `json:"kind"`
	Files []string `json:"files,omitempty"`
}

// EdgeReport is the outcome of one dependency edge.
type EdgeReport struct {
	ID          string       `json:"id"`
	Component   string       `json:"component,omitempty"`
	Variants    []string     `json:"variants,omitempty"`
	Mode        string       `json:"mode,omitempty"`
	Cache       string       `json:"cache,omitempty"`
	ContextKey  string       `json:"context_key,omitempty"`
	Steps       []StepReport `json:"steps,omitempty"`
	FailureKind string       `json:"failure_kind,omitempty"`
	Failure     string       `json:"failure,omitempty"`
}

// ToolchainReport is the selected toolchain installation.
type ToolchainReport struct {
	Location string `json:"location,omitempty"`
	Source   string `json:"source,omitempty"`
	Version  string `json:"version,omitempty"`
	Vendor   string `json:"vendor,omitempty"`
	Error    string `json:"error,omitempty"`
}

// ResolveResult holds the outcome of a resolve command.
type ResolveResult struct {
	ResolutionID string             `json:"resolution_id"`
	Consumer     string             `json:"consumer"`
	Edges        []EdgeReport       `json:"edges"`
	Failures     int                `json:"failures"`
	Toolchain    *ToolchainReport   `json:"toolchain,omitempty"`
	Metrics      map[string]float64 `json:"metrics,omitempty"`
}

// NewResolveCommand creates the resolve command.
func NewResolveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResolveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "resolve <model-dir>",
		Short: "Resolve every dependency edge of a build model",
		Long: `Resolve every dependency edge of a build model.

The model is loaded, validated and assembled; each declared dependency is
resolved to a component and its variants. Edges carrying a transform
pipeline have their upstream dependencies cached in the SQLite database
given by --db (created if it doesn't exist). Without --db nothing is cached.

Exit codes:
  0 - Every edge resolved
  1 - One or more edges failed, the model is invalid, or no toolchain matched
  2 - Command error (invalid paths, database errors, etc.)

Examples:
  graphres resolve ./model
  graphres resolve --db ./graphres.db ./model --verbose
  graphres resolve --db ./graphres.db ./model --format json --metrics`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite cache database")
	cmd.Flags().IntVar(&opts.Workers, "workers", engine.DefaultWorkers, "edges resolved concurrently")
	cmd.Flags().BoolVar(&opts.Metrics, "metrics", false, "report engine metrics")

	return cmd
}

func runResolve(opts *ResolveOptions, modelDir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := formatter.Logger()

	logger.Info("loading model", "dir", modelDir)
	p, verrs, err := LoadProject(modelDir, logger)
	if err != nil {
		return outputCompileError(formatter, err)
	}
	if len(verrs) > 0 {
		return outputValidationErrors(formatter, verrs)
	}

	clock := opts.TimeSource
	if clock == nil {
		clock = engine.SystemTime{}
	}
	ids := opts.IDGenerator
	if ids == nil {
		ids = engine.UUIDv7Generator{}
	}
	reg := prometheus.NewRegistry()
	engOpts := []engine.EngineOption{
		engine.WithLogger(logger),
		engine.WithWorkers(opts.Workers),
		engine.WithTimeSource(clock),
		engine.WithIDGenerator(ids),
		engine.WithMetrics(engine.NewMetrics(reg)),
	}

	// Setup signal handling for graceful shutdown
	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.Database != "" {
		logger.Info("opening database", "path", opts.Database)
		st, err := store.Open(opts.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing database", "error", closeErr)
			}
		}()
		if _, err := st.MarkInception(ctx, clock.Now()); err != nil {
			return WrapExitError(ExitCommandError, "failed to initialise cache", err)
		}
		engOpts = append(engOpts, engine.WithStore(st))
	}

	eng := engine.New(engOpts...)
	sessions := session.NewManager(eng, session.WithIDGenerator(ids), session.WithLogger(logger))
	conn, err := sessions.Connect()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open session", err)
	}
	res, err := conn.Resolve(ctx, p.Request)
	if closeErr := conn.Close(); closeErr != nil {
		logger.Error("error closing session", "error", closeErr)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "resolution aborted", err)
	}

	result := ResolveResult{
		ResolutionID: res.ID,
		Consumer:     p.Consumer.Name,
		Edges:        edgeReports(res),
		Failures:     len(res.Failures),
	}

	sel, tcErr := p.SelectToolchain()
	switch {
	case tcErr != nil:
		result.Toolchain = &ToolchainReport{Error: tcErr.Error()}
	case sel != nil:
		result.Toolchain = toolchainReport(sel)
	}

	if opts.Metrics {
		result.Metrics, err = gatherMetrics(reg)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to gather metrics", err)
		}
	}

	if formatter.JSON() {
		if err := outputResolveJSON(formatter, result); err != nil {
			return err
		}
	} else {
		outputResolveText(cmd.OutOrStdout(), result, opts.Verbose)
	}

	if result.Failures > 0 {
		return WrapExitError(ExitFailure, "resolution failed", res.Err())
	}
	if toolchain.IsNoMatchingInstallation(tcErr) {
		return WrapExitError(ExitFailure, "no matching toolchain", tcErr)
	}
	if tcErr != nil {
		return WrapExitError(ExitCommandError, "toolchain selection", tcErr)
	}
	return nil
}

// edgeReports renders every edge result in request order.
func edgeReports(res *engine.Result) []EdgeReport {
	out := make([]EdgeReport, 0, len(res.Edges))
	for _, r := range res.Edges {
		rep := EdgeReport{ID: r.EdgeID, ContextKey: r.ContextKey}
		if r.Failure != nil {
			rep.FailureKind = variant.FailureKind(r.Failure)
			rep.Failure = r.Failure.Error()
			out = append(out, rep)
			continue
		}
		rep.Component = r.Component.String()
		rep.Variants = r.VariantNames()
		rep.Mode = string(r.Mode())
		rep.Cache = string(r.Cache)
		for _, st := range r.Steps {
			rep.Steps = append(rep.Steps, stepReport(st))
		}
		out = append(out, rep)
	}
	return out
}

func stepReport(st transform.StepDependencies) StepReport {
	rep := StepReport{Step: st.Step, Kind: transform.Kind(st.Dependencies)}
	if fd, ok := st.Dependencies.(transform.FileDependencies); ok {
		rep.Files = []string(fd.Files)
	}
	return rep
}

func toolchainReport(sel *toolchain.Selection) *ToolchainReport {
	return &ToolchainReport{
		Location: sel.Selected.Location,
		Source:   sel.Selected.Source,
		Version:  sel.Selected.Version,
		Vendor:   sel.Selected.Vendor,
	}
}

// gatherMetrics flattens counter and histogram samples into
// "name{label=value}" keys.
func gatherMetrics(reg *prometheus.Registry) (map[string]float64, error) {
	families, err := reg.Gather()
	if err != nil {
		return nil, err
	}
	out := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			labels := make([]string, 0, len(m.GetLabel()))
			for _, l := range m.GetLabel() {
				labels = append(labels, l.GetName()+"="+l.GetValue())
			}
			key := mf.GetName()
			if len(labels) > 0 {
				key += "{" + strings.Join(labels, ",") + "}"
			}
			switch {
			case m.GetCounter() != nil:
				out[key] = m.GetCounter().GetValue()
			case m.GetHistogram() != nil:
				out[key+"_count"] = float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return out, nil
}

// outputResolveJSON outputs the resolve result as JSON.
func outputResolveJSON(formatter *OutputFormatter, result ResolveResult) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
	}
	if result.Failures > 0 {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    "E_RESOLUTION",
			Message: fmt.Sprintf("%d edge(s) failed to resolve", result.Failures),
		}
	}

	return formatter.Respond(response)
}

// outputResolveText outputs the resolve result as text.
func outputResolveText(w io.Writer, result ResolveResult, verbose bool) {
	fmt.Fprintf(w, "Resolution %s: %d edge(s) from %s\n\n", result.ResolutionID, len(result.Edges), result.Consumer)

	for _, e := range result.Edges {
		if e.Failure != "" {
			fmt.Fprintf(w, "✗ %s [%s]\n", e.ID, e.FailureKind)
			for _, line := range strings.Split(e.Failure, "\n") {
				fmt.Fprintf(w, "  %s\n", line)
			}
			continue
		}
		fmt.Fprintf(w, "✓ %s → %s %s (%s)\n", e.ID, e.Component, strings.Join(e.Variants, ", "), e.Mode)
		if e.ContextKey != "" {
			fmt.Fprintf(w, "  cache: %s\n", e.Cache)
			if verbose {
				fmt.Fprintf(w, "  key: %s\n", e.ContextKey)
			}
		}
		for _, s := range e.Steps {
			if len(s.Files) == 0 {
				fmt.Fprintf(w, "  %s: %s\n", s.Step, s.Kind)
				continue
			}
			fmt.Fprintf(w, "  %s: %s %s\n", s.Step, s.Kind, strings.Join(s.Files, ", "))
		}
	}
	fmt.Fprintln(w)

	if tc := result.Toolchain; tc != nil {
		if tc.Error != "" {
			fmt.Fprintf(w, "✗ Toolchain: %s\n\n", tc.Error)
		} else {
			fmt.Fprintf(w, "Toolchain: %s %s (%s)\n\n", tc.Location, tc.Version, tc.Source)
		}
	}

	if len(result.Metrics) > 0 {
		fmt.Fprintln(w, "Metrics:")
		keys := make([]string, 0, len(result.Metrics))
		for k := range result.Metrics {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "  %s %g\n", k, result.Metrics[k])
		}
		fmt.Fprintln(w)
	}

	if result.Failures > 0 {
		fmt.Fprintf(w, "✗ %d edge(s) failed to resolve\n", result.Failures)
		return
	}
	fmt.Fprintln(w, "✓ All edges resolved")
}

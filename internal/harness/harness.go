package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/viant/afs"

	"github.com/roach88/graphres/internal/compiler"
	"github.com/roach88/graphres/internal/engine"
	"github.com/roach88/graphres/internal/ir"
	"github.com/roach88/graphres/internal/project"
	"github.com/roach88/graphres/internal/store"
	"github.com/roach88/graphres/internal/testutil"
	"github.com/roach88/graphres/internal/toolchain"
	"github.com/roach88/graphres/internal/transform"
	"github.com/roach88/graphres/internal/variant"
)

// Harness is the test execution engine.
// It resolves a scenario's model with a deterministic clock and ids.
type Harness struct {
	fs     afs.Service
	clock  engine.TimeSource
	ids    engine.IDGenerator
	logger *slog.Logger
}

// Option configures a Harness.
type Option func(*Harness)

// WithLogger sets the logger passed to the engine. Defaults to discarding.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithFS sets the file service models are read through.
func WithFS(fs afs.Service) Option {
	return func(h *Harness) {
		if fs != nil {
			h.fs = fs
		}
	}
}

// New creates a harness. The clock starts at testutil.Epoch and advances a
// second per reading; resolution ids are "resolution-1", "resolution-2", ...
func New(opts ...Option) *Harness {
	h := &Harness{
		fs:     afs.New(),
		clock:  engine.NewSteppingClock(testutil.Epoch, time.Second),
		ids:    &sequentialIDs{prefix: "resolution"},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run executes a test scenario with a fresh harness.
func Run(scenario *Scenario) (*Result, error) {
	return New().Run(context.Background(), scenario)
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Load, validate and assemble the model
// 2. Resolve every edge Passes times against the same store
// 3. Select the toolchain, if the model declares one
// 4. Check expectations against the last pass
//
// An error is returned only when the scenario cannot run; expectation
// failures are reported in the result.
func (h *Harness) Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	model, err := h.loadModel(ctx, scenario)
	if err != nil {
		return nil, err
	}
	if errs := compiler.Validate(model); len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return nil, fmt.Errorf("invalid model:\n  %s", strings.Join(msgs, "\n  "))
	}
	p, err := project.Load(model, project.WithLogger(h.logger))
	if err != nil {
		return nil, fmt.Errorf("failed to assemble model: %w", err)
	}

	st, err := store.Open(store.Memory)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	eng := engine.New(
		engine.WithStore(st),
		engine.WithTimeSource(h.clock),
		engine.WithIDGenerator(h.ids),
		engine.WithLogger(h.logger),
	)

	var res *engine.Result
	for pass := 1; pass <= scenario.Passes; pass++ {
		res, err = eng.Resolve(ctx, p.Request)
		if err != nil {
			return nil, fmt.Errorf("pass %d: %w", pass, err)
		}
		h.logger.Info("pass completed",
			"scenario", scenario.Name,
			"pass", pass,
			"resolution", res.ID,
			"failures", len(res.Failures),
		)
	}

	result := NewResult()
	for _, r := range res.Edges {
		result.Edges = append(result.Edges, outcomeOf(r))
	}
	if model.Toolchain != nil {
		result.Toolchain = toolchainOutcome(p.SelectToolchain())
	}

	for _, msg := range EvaluateExpectations(result, scenario) {
		result.AddError(msg)
	}
	return result, nil
}

func outcomeOf(r engine.EdgeResult) EdgeOutcome {
	out := EdgeOutcome{ID: r.EdgeID, ContextKey: r.ContextKey}
	if r.Failure != nil {
		out.Failure = variant.FailureKind(r.Failure)
		out.Message = r.Failure.Error()
		return out
	}
	out.Component = r.Component.String()
	out.Variants = r.VariantNames()
	out.AttributeMatching = r.AttributeMatching
	out.Cache = string(r.Cache)
	for _, s := range r.Steps {
		step := StepOutcome{Step: s.Step, Kind: transform.Kind(s.Dependencies)}
		if fd, ok := s.Dependencies.(transform.FileDependencies); ok {
			step.Files = []string(fd.Files)
		}
		out.Steps = append(out.Steps, step)
	}
	return out
}

func toolchainOutcome(sel *toolchain.Selection, err error) *ToolchainOutcome {
	if err != nil {
		return &ToolchainOutcome{Error: err.Error(), NoMatch: toolchain.IsNoMatchingInstallation(err)}
	}
	return &ToolchainOutcome{Location: sel.Selected.Location, Version: sel.Selected.Version}
}

// loadModel reads the scenario's CUE files and compiles them. Files of a
// model directory are unified in name order.
func (h *Harness) loadModel(ctx context.Context, scenario *Scenario) (*ir.BuildModel, error) {
	cctx := cuecontext.New()
	var value cue.Value

	if scenario.Source != "" {
		value = cctx.CompileString(scenario.Source, cue.Filename(scenario.Name+".cue"))
	} else {
		dir := scenario.ModelURL()
		objects, err := h.fs.List(ctx, dir)
		if err != nil {
			return nil, fmt.Errorf("failed to list model directory: %w", err)
		}
		var names []string
		urls := map[string]string{}
		for _, obj := range objects {
			if obj.IsDir() || !strings.HasSuffix(obj.Name(), ".cue") {
				continue
			}
			names = append(names, obj.Name())
			urls[obj.Name()] = obj.URL()
		}
		if len(names) == 0 {
			return nil, fmt.Errorf("no CUE files found in %s", dir)
		}
		sort.Strings(names)

		value = cctx.CompileString("{}")
		for _, name := range names {
			data, err := h.fs.DownloadWithURL(ctx, urls[name])
			if err != nil {
				return nil, fmt.Errorf("failed to read %s: %w", name, err)
			}
			value = value.Unify(cctx.CompileBytes(data, cue.Filename(name)))
		}
	}

	if err := value.Err(); err != nil {
		return nil, fmt.Errorf("building CUE value: %w", err)
	}
	model, err := compiler.CompileModel(value)
	if err != nil {
		return nil, fmt.Errorf("failed to compile model: %w", err)
	}
	return model, nil
}

// sequentialIDs generates "prefix-1", "prefix-2", ...
type sequentialIDs struct {
	prefix string
	n      atomic.Int64
}

func (g *sequentialIDs) Generate() string {
	return fmt.Sprintf("%s-%d", g.prefix, g.n.Add(1))
}

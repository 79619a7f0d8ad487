package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/graphres/internal/ir"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompilationStats holds summary statistics.
type CompilationStats struct {
	Configurations int
	Components     int
	Variants       int
	Dependencies   int
	Transforms     int
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <model-dir>",
		Short: "Compile a CUE build model to IR",
		Long: `Compile a CUE build model to its IR form.

The compiler parses the CUE files of the directory and outputs the
build model as JSON: schema, consumer, configurations, components,
dependencies, transforms and toolchain.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, modelDir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	result, err := LoadModel(modelDir)
	if result != nil {
		formatter.VerboseLog("Found %d CUE file(s) in %s", result.FileCount, modelDir)
	}
	if err != nil {
		return outputCompileError(formatter, err)
	}

	stats := calculateStats(result.Model)

	if opts.Output != "" {
		if err := writeIRToFile(result.Model, opts.Output); err != nil {
			return outputCompileError(formatter, &LoadError{Code: ErrCodeWriteFailed, Message: fmt.Sprintf("writing output file: %v", err)})
		}
	}

	return outputCompileSuccess(formatter, result.Model, stats, opts.Output)
}

// calculateStats computes summary statistics from a compiled model.
func calculateStats(m *ir.BuildModel) CompilationStats {
	stats := CompilationStats{
		Configurations: len(m.Configurations),
		Components:     len(m.Components),
		Dependencies:   len(m.Dependencies),
		Transforms:     len(m.Transforms),
	}
	for _, c := range m.Components {
		stats.Variants += len(c.Variants)
	}
	return stats
}

// outputCompileSuccess outputs successful compilation results.
func outputCompileSuccess(formatter *OutputFormatter, m *ir.BuildModel, stats CompilationStats, outputFile string) error {
	if formatter.JSON() {
		return formatter.Success(m)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "✓ Compiled %d configuration(s), %d component(s), %d dependency(ies)\n\n",
		stats.Configurations, stats.Components, stats.Dependencies)

	fmt.Fprintf(w, "Consumer: %s\n\n", m.Consumer.Configuration)

	if len(m.Components) > 0 {
		fmt.Fprintln(w, "Components:")
		for _, c := range m.Components {
			fmt.Fprintf(w, "  %s: %d variant(s), %d configuration(s)\n",
				c.ID, len(c.Variants), len(c.Configurations))
		}
		fmt.Fprintln(w)
	}

	if len(m.Dependencies) > 0 {
		fmt.Fprintln(w, "Dependencies:")
		for _, d := range m.Dependencies {
			target := d.Project
			if d.Module != nil {
				target = d.Module.String() + ":" + d.Version.String()
			}
			fmt.Fprintf(w, "  %s: %s → %s\n", d.ID, d.Configuration, target)
		}
		fmt.Fprintln(w)
	}

	if outputFile != "" {
		fmt.Fprintf(w, "Wrote IR to %s\n", outputFile)
	}

	return nil
}

// outputCompileError outputs a load or compilation error.
func outputCompileError(formatter *OutputFormatter, err error) error {
	code, message := ErrCodeGeneric, err.Error()
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		code, message = loadErr.Code, loadErr.Message
	}

	if formatter.JSON() {
		_ = formatter.Error(code, message, nil)
	} else {
		fmt.Fprintln(formatter.Writer, "✗ Compilation failed")
		fmt.Fprintln(formatter.Writer)
		if loadErr != nil && loadErr.Pos.IsValid() {
			fmt.Fprintf(formatter.Writer, "%s:%d:%d\n",
				loadErr.Pos.Filename(),
				loadErr.Pos.Line(),
				loadErr.Pos.Column())
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n", code, message)
	}

	// Compilation errors are command-level errors (exit code 2)
	return WrapExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message), nil)
}

// writeIRToFile writes the compiled model to a file as indented JSON.
func writeIRToFile(m *ir.BuildModel, filename string) error {
	// Use standard JSON with indentation for readability
	// (canonical JSON without indentation is used only for hashing)
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling IR: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}

	return nil
}

package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/graphres/internal/compiler"
	"github.com/roach88/graphres/internal/ir"
	"github.com/roach88/graphres/internal/project"
)

// LoadResult contains the results of loading a build model directory.
type LoadResult struct {
	Model     *ir.BuildModel
	CUEValue  cue.Value // The raw CUE value for additional processing
	FileCount int       // Number of CUE files found
}

// LoadError represents an error that occurred during model loading.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadModel loads the CUE files of dir and compiles them into a build model.
// On a compile error the result is still returned with a nil Model so
// callers can report the file count.
func LoadModel(dir string) (*LoadResult, error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("model directory not found: %s", dir)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing model directory: %v", err)}
	}
	if !info.IsDir() {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}
	}

	cueFiles, err := FindCUEFiles(dir)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}
	}
	if len(cueFiles) == 0 {
		return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}
	}

	result := &LoadResult{CUEValue: value, FileCount: len(cueFiles)}
	model, err := compiler.CompileModel(value)
	if err != nil {
		return result, convertCompileError(err)
	}
	result.Model = model
	return result, nil
}

// LoadProject loads, validates and assembles the model in dir. Validation
// failures are returned as the slice, everything else as the error.
func LoadProject(dir string, logger *slog.Logger) (*project.Project, []compiler.ValidationError, error) {
	res, err := LoadModel(dir)
	if err != nil {
		return nil, nil, err
	}
	if errs := compiler.Validate(res.Model); len(errs) > 0 {
		return nil, errs, nil
	}
	p, err := project.Load(res.Model, project.WithLogger(logger))
	if err != nil {
		return nil, nil, &LoadError{Code: ErrCodeProject, Message: err.Error()}
	}
	return p, nil, nil
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    MapFieldToErrorCode(compileErr.Field),
			Message: fmt.Sprintf("%s: %s", compileErr.Field, compileErr.Message),
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{Code: ErrCodeGeneric, Message: err.Error()}
}

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeWriteFailed = "E007" // File write error
	ErrCodeProject     = "E008" // Model cannot be assembled
	ErrCodeStore       = "E009" // Cache database error
)

// MapFieldToErrorCode maps a compiler error field to an error code. The
// codes are shared with compiler.Validate.
func MapFieldToErrorCode(field string) string {
	section, rest, _ := strings.Cut(field, ".")
	switch {
	case section == "schema":
		return compiler.ErrInvalidSchemaRule
	case section == "consumer":
		return compiler.ErrUnknownConsumer
	case section == "toolchain":
		return compiler.ErrInvalidToolchainSpec
	case strings.HasSuffix(rest, ".version") || rest == "version":
		return compiler.ErrInvalidVersion
	case strings.HasSuffix(rest, ".files") || strings.HasSuffix(rest, ".upstream"):
		return compiler.ErrInvalidFileSet
	default:
		return ErrCodeGeneric
	}
}

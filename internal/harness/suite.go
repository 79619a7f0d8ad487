package harness

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/viant/afs"
	"github.com/viant/afs/storage"
	"github.com/viant/afs/url"
)

// FindScenarios returns every .yaml or .yml file under dir whose base name
// (without extension) matches the glob filter, sorted. An empty filter
// matches everything. Files under golden/ directories are skipped.
func FindScenarios(ctx context.Context, fs afs.Service, dir, filter string) ([]string, error) {
	if filter != "" {
		if _, err := path.Match(filter, ""); err != nil {
			return nil, fmt.Errorf("invalid filter pattern: %w", err)
		}
	}

	var files []string
	var visitor storage.OnVisit = func(ctx context.Context, baseURL, parent string, info os.FileInfo, reader io.Reader) (bool, error) {
		if info.IsDir() {
			return info.Name() != "golden", nil
		}
		ext := path.Ext(info.Name())
		if ext != ".yaml" && ext != ".yml" {
			return true, nil
		}
		if filter != "" {
			matched, _ := path.Match(filter, strings.TrimSuffix(info.Name(), ext))
			if !matched {
				return true, nil
			}
		}
		files = append(files, url.Join(baseURL, parent, info.Name()))
		return true, nil
	}
	if err := fs.Walk(ctx, dir, visitor); err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// ScenarioOutcome is the result of one scenario of a suite.
type ScenarioOutcome struct {
	Path   string  `json:"path"`
	Name   string  `json:"name"`
	Result *Result `json:"result,omitempty"`
	// Err is set when the scenario could not be loaded or run.
	Err error `json:"-"`
}

// Pass reports whether the scenario ran and met every expectation.
func (o ScenarioOutcome) Pass() bool {
	return o.Err == nil && o.Result != nil && o.Result.Pass
}

// SuiteResult summarizes a suite run.
type SuiteResult struct {
	Scenarios []ScenarioOutcome `json:"scenarios"`
	Passed    int               `json:"passed"`
	Failed    int               `json:"failed"`
}

// RunSuite loads and runs every scenario under dir matching filter.
// A scenario that fails to load or run counts as failed; it never stops
// the suite.
func (h *Harness) RunSuite(ctx context.Context, dir, filter string) (*SuiteResult, error) {
	files, err := FindScenarios(ctx, h.fs, dir, filter)
	if err != nil {
		return nil, err
	}

	out := &SuiteResult{Scenarios: make([]ScenarioOutcome, 0, len(files))}
	for _, file := range files {
		o := ScenarioOutcome{Path: file, Name: path.Base(file)}
		scenario, err := LoadScenario(file)
		if err != nil {
			o.Err = err
		} else {
			o.Name = scenario.Name
			o.Result, o.Err = h.Run(ctx, scenario)
		}

		if o.Pass() {
			out.Passed++
		} else {
			out.Failed++
		}
		out.Scenarios = append(out.Scenarios, o)
	}
	return out, nil
}

package harness

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ScenarioOutcome is the result of one scenario file in a suite.
type ScenarioOutcome struct {
	Path   string   `json:"path"`
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
}

// SuiteResult summarizes a suite run.
type SuiteResult struct {
	Total     int               `json:"total"`
	Passed    int               `json:"passed"`
	Failed    int               `json:"failed"`
	Scenarios []ScenarioOutcome `json:"scenarios"`
}

// FindScenarios returns the scenario files under path, sorted. A file path
// is returned as is. filter is a glob matched against the file's base name
// without extension; empty matches everything.
func FindScenarios(path, filter string) ([]string, error) {
	if filter != "" {
		if _, err := filepath.Match(filter, ""); err != nil {
			return nil, fmt.Errorf("invalid filter %q: %w", filter, err)
		}
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to access scenarios: %w", err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := filepath.Ext(p)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if filter != "" {
			base := strings.TrimSuffix(filepath.Base(p), ext)
			if ok, _ := filepath.Match(filter, base); !ok {
				return nil
			}
		}
		files = append(files, p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk scenarios: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

// Check inspects a scenario that ran and returns extra failures, for
// example a golden file mismatch.
type Check func(path string, scenario *Scenario, result *Result) []string

// RunSuite loads and runs every scenario file, then applies check (if any)
// to each scenario that ran. A file that fails to load or execute counts as
// a failed scenario; the suite itself only errors when the context is
// cancelled.
func (h *Harness) RunSuite(ctx context.Context, files []string, check Check) (*SuiteResult, error) {
	out := &SuiteResult{Scenarios: []ScenarioOutcome{}}
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		outcome := ScenarioOutcome{Path: path}

		scenario, err := LoadScenario(path)
		if err != nil {
			outcome.Errors = []string{err.Error()}
		} else {
			outcome.Name = scenario.Name
			result, err := h.Run(ctx, scenario)
			if err != nil {
				outcome.Errors = []string{err.Error()}
			} else {
				outcome.Errors = result.Errors
				if check != nil {
					outcome.Errors = append(outcome.Errors, check(path, scenario, result)...)
				}
				outcome.Pass = len(outcome.Errors) == 0
			}
		}

		out.Total++
		if outcome.Pass {
			out.Passed++
		} else {
			out.Failed++
		}
		out.Scenarios = append(out.Scenarios, outcome)
	}
	return out, nil
}

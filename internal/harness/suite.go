package harness

import (
	"fmt"
	"path/filepath"
	"sort"
)

// SuiteResult summarizes running every scenario in a directory.
type SuiteResult struct {
	Total    int               `json:"total"`
	Passed   int               `json:"passed"`
	Failed   int               `json:"failed"`
	Failures []ScenarioFailure `json:"failures,omitempty"`
}

// ScenarioFailure records one scenario that failed to load, run, or pass.
type ScenarioFailure struct {
	Path  string `json:"path"`
	Name  string `json:"name,omitempty"`
	Error string `json:"error"`
}

// RunSuite loads and runs every *.yaml scenario under dir, in path
// order, and summarizes the outcome.
//
// For each scenario:
//  1. Load and validate the YAML
//  2. Run it on a fresh runtime
//  3. Evaluate its assertions
//  4. Collect failures with enough context to debug
//
// A scenario that fails to load still counts toward Total, so a suite
// with a typo'd file fails loudly instead of silently shrinking.
func RunSuite(dir string) (*SuiteResult, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("failed to list scenarios: %w", err)
	}
	sort.Strings(paths)

	suite := &SuiteResult{}
	for _, path := range paths {
		suite.Total++

		scenario, err := LoadScenario(path)
		if err != nil {
			suite.fail(path, "", fmt.Sprintf("failed to load scenario: %v", err))
			continue
		}

		result, err := Run(scenario)
		if err != nil {
			suite.fail(path, scenario.Name, fmt.Sprintf("scenario execution failed: %v", err))
			continue
		}

		if !result.Pass {
			suite.fail(path, scenario.Name, fmt.Sprintf("scenario assertions failed: %v", result.Errors))
			continue
		}

		suite.Passed++
	}

	return suite, nil
}

func (s *SuiteResult) fail(path, name, msg string) {
	s.Failed++
	s.Failures = append(s.Failures, ScenarioFailure{
		Path:  path,
		Name:  name,
		Error: msg,
	})
}

package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/instant/internal/canon"
)

// toCanonicalMap converts the result's instant records to a
// map[string]any document for canonical JSON serialization. Record
// values are already in canonical shape (renderValue), so the document
// is pure strings, bools, int64s, slices, and maps.
func (r *Result) toCanonicalMap(scenarioName string) map[string]any {
	instants := make([]any, len(r.Instants))
	for i, rec := range r.Instants {
		completed := make([]any, len(rec.Completed))
		for j, c := range rec.Completed {
			cm := map[string]any{"process": c.Process}
			if c.Error != "" {
				cm["error"] = c.Error
			} else {
				cm["value"] = c.Value
			}
			completed[j] = cm
		}

		m := map[string]any{
			"instant":      int64(rec.Instant),
			"completed":    completed,
			"still_active": rec.StillActive,
		}
		if len(rec.Signals) > 0 {
			signals := make(map[string]any, len(rec.Signals))
			for name, v := range rec.Signals {
				signals[name] = v
			}
			m["signals"] = signals
		}
		instants[i] = m
	}

	return map[string]any{
		"scenario_name": scenarioName,
		"instants":      instants,
	}
}

// RunWithGolden executes a scenario and compares its instant records
// against a golden file. The golden file is stored in
// testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Golden files serve as the source of truth for expected per-instant
// behavior; the canonical JSON encoding makes the comparison
// byte-exact.
//
// Returns error if scenario execution or encoding fails. Test failure
// (via goldie) occurs if the records don't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}

	return AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares the given result's records against a golden
// file. Useful when the scenario has already run and the result is in
// hand.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	doc, err := canon.Marshal(result.toCanonicalMap(scenarioName))
	if err != nil {
		return err
	}
	doc = append(doc, '\n')

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, doc)

	return nil
}

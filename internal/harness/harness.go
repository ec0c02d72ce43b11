package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/instant"
	"github.com/roach88/instant/internal/testutil"
)

// maxScenarioInstants bounds run_until_terminated scenarios. A scenario
// that has not gone quiescent by then is looping and the run errors out
// rather than spinning.
const maxScenarioInstants = 64

// Run executes a test scenario and returns the result.
//
// Each scenario runs on a fresh Runtime for isolation, with sequence
// process tokens and a discarded logger so two runs of the same scenario
// are byte-for-byte identical.
//
// Execution flow:
//  1. Create a fresh Runtime
//  2. Build signals and processes from the declarations
//  3. Run the requested instants, recording each
//  4. Evaluate assertions against the records
//  5. Return result with pass/fail, records, and errors
func Run(scenario *Scenario) (*Result, error) {
	rt := instant.New(
		instant.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		instant.WithTokenGenerator(testutil.NewSequenceTokenGenerator("p")),
	)

	signals, err := buildSignals(rt, scenario.Signals)
	if err != nil {
		return nil, fmt.Errorf("failed to build signals: %w", err)
	}

	// Registration order is declaration order; names index the reports.
	names := make(map[instant.ProcessHandle]string, len(scenario.Processes))
	for i := range scenario.Processes {
		def := &scenario.Processes[i]
		p, err := buildProcess(signals, &def.Run)
		if err != nil {
			return nil, fmt.Errorf("failed to build process %q: %w", def.Name, err)
		}
		names[rt.Register(p)] = def.Name
	}

	ctx := context.Background()
	result := NewResult()

	limit := scenario.Instants
	if scenario.RunUntilTerminated {
		limit = maxScenarioInstants
	}
	for i := 0; i < limit; i++ {
		report, err := rt.RunInstant(ctx)
		if err != nil {
			return nil, fmt.Errorf("instant %d: %w", i, err)
		}
		result.Instants = append(result.Instants, summarize(report, names, scenario.Signals, signals))

		if scenario.RunUntilTerminated && rt.Quiescent() {
			return evaluate(result, scenario), nil
		}
	}
	if scenario.RunUntilTerminated {
		return nil, fmt.Errorf("scenario did not go quiescent within %d instants", maxScenarioInstants)
	}

	return evaluate(result, scenario), nil
}

// evaluate runs the scenario's assertions against the recorded instants.
func evaluate(result *Result, scenario *Scenario) *Result {
	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result
}

// summarize reduces one instant report to its record: completions by
// process name and present signals with their end-of-instant values.
func summarize(report instant.Report, names map[instant.ProcessHandle]string, defs []SignalDef, signals map[string]instant.Signal[any]) InstantRecord {
	rec := InstantRecord{
		Instant:     report.Instant,
		Completed:   make([]CompletionRecord, 0, len(report.Completed)),
		StillActive: report.StillActive,
	}

	for _, c := range report.Completed {
		cr := CompletionRecord{Process: names[c.Handle]}
		if c.Err != nil {
			var rerr *instant.RuntimeError
			if errors.As(c.Err, &rerr) {
				cr.Error = string(rerr.Code)
			} else {
				cr.Error = c.Err.Error()
			}
		} else {
			cr.Value = renderValue(c.Value)
		}
		rec.Completed = append(rec.Completed, cr)
	}

	// Declaration order for determinism
	for _, def := range defs {
		if v, ok := signals[def.Name].Value(); ok {
			if rec.Signals == nil {
				rec.Signals = make(map[string]any)
			}
			rec.Signals[def.Name] = renderValue(v)
		}
	}

	return rec
}

// renderValue converts a completion or signal value into the canonical
// record shape: unit results render as "()", pairs as first/second
// objects, and integers widen to int64.
func renderValue(v any) any {
	switch val := v.(type) {
	case struct{}:
		return "()"
	case instant.Pair[any, any]:
		return map[string]any{
			"first":  renderValue(val.First),
			"second": renderValue(val.Second),
		}
	case int:
		return int64(val)
	case int64, uint64, string, bool:
		return val
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = renderValue(elem)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for key, elem := range val {
			out[key] = renderValue(elem)
		}
		return out
	default:
		// Catch-all keeps the record encodable whatever a custom
		// process produced.
		return fmt.Sprintf("%v", v)
	}
}

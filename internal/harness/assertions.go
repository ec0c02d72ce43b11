package harness

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// AssertionError is returned when an assertion fails.
// It includes the full instant history to help debug the failure.
type AssertionError struct {
	Type     string          // Assertion type for categorization
	Expected string          // Human-readable expected outcome
	Actual   string          // Human-readable actual outcome
	Instants []InstantRecord // Full history for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nInstant history:\n")
	for _, rec := range e.Instants {
		fmt.Fprintf(&buf, "  [%d] completed=%s signals=%s active=%t\n",
			rec.Instant, formatCompletions(rec.Completed), formatSignals(rec.Signals), rec.StillActive)
	}

	return buf.String()
}

// formatCompletions renders completion records compactly for error output.
func formatCompletions(completed []CompletionRecord) string {
	parts := make([]string, len(completed))
	for i, c := range completed {
		if c.Error != "" {
			parts[i] = fmt.Sprintf("%s!%s", c.Process, c.Error)
		} else {
			parts[i] = fmt.Sprintf("%s=%v", c.Process, c.Value)
		}
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// formatSignals renders present signals compactly, sorted for stable output.
func formatSignals(signals map[string]any) string {
	if len(signals) == 0 {
		return "{}"
	}
	names := make([]string, 0, len(signals))
	for name := range signals {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s=%v", name, signals[name])
	}
	return "{" + strings.Join(parts, " ") + "}"
}

// assertCompleted checks that the named process completed at the given
// instant, optionally with a specific value or runtime error code.
func assertCompleted(result *Result, a Assertion) error {
	rec, ok := result.recordAt(*a.Instant)
	if !ok {
		return &AssertionError{
			Type:     AssertCompleted,
			Expected: fmt.Sprintf("a record for instant %d", *a.Instant),
			Actual:   fmt.Sprintf("only %d instants were run", len(result.Instants)),
			Instants: result.Instants,
		}
	}

	for _, c := range rec.Completed {
		if c.Process != a.Process {
			continue
		}
		if a.Error != "" {
			if c.Error != a.Error {
				return &AssertionError{
					Type:     AssertCompleted,
					Expected: fmt.Sprintf("process %q failing with %s at instant %d", a.Process, a.Error, *a.Instant),
					Actual:   fmt.Sprintf("error=%q value=%v", c.Error, c.Value),
					Instants: result.Instants,
				}
			}
			return nil
		}
		if a.Value != nil {
			want, err := normalizeValue(a.Value)
			if err != nil {
				return fmt.Errorf("completed assertion value: %w", err)
			}
			if c.Error != "" || !reflect.DeepEqual(c.Value, want) {
				return &AssertionError{
					Type:     AssertCompleted,
					Expected: fmt.Sprintf("process %q completing with %v at instant %d", a.Process, want, *a.Instant),
					Actual:   fmt.Sprintf("error=%q value=%v", c.Error, c.Value),
					Instants: result.Instants,
				}
			}
		}
		return nil
	}

	return &AssertionError{
		Type:     AssertCompleted,
		Expected: fmt.Sprintf("process %q completing at instant %d", a.Process, *a.Instant),
		Actual:   fmt.Sprintf("completions were %s", formatCompletions(rec.Completed)),
		Instants: result.Instants,
	}
}

// assertSignalPresent checks that the signal was present at the given
// instant, optionally with a specific end-of-instant value.
func assertSignalPresent(result *Result, a Assertion) error {
	rec, ok := result.recordAt(*a.Instant)
	if !ok {
		return &AssertionError{
			Type:     AssertSignalPresent,
			Expected: fmt.Sprintf("a record for instant %d", *a.Instant),
			Actual:   fmt.Sprintf("only %d instants were run", len(result.Instants)),
			Instants: result.Instants,
		}
	}

	v, present := rec.Signals[a.Signal]
	if !present {
		return &AssertionError{
			Type:     AssertSignalPresent,
			Expected: fmt.Sprintf("signal %q present at instant %d", a.Signal, *a.Instant),
			Actual:   fmt.Sprintf("present signals were %s", formatSignals(rec.Signals)),
			Instants: result.Instants,
		}
	}
	if a.Value != nil {
		want, err := normalizeValue(a.Value)
		if err != nil {
			return fmt.Errorf("signal_present assertion value: %w", err)
		}
		if !reflect.DeepEqual(v, want) {
			return &AssertionError{
				Type:     AssertSignalPresent,
				Expected: fmt.Sprintf("signal %q carrying %v at instant %d", a.Signal, want, *a.Instant),
				Actual:   fmt.Sprintf("value was %v", v),
				Instants: result.Instants,
			}
		}
	}
	return nil
}

// assertSignalAbsent checks that the signal was absent at the given instant.
func assertSignalAbsent(result *Result, a Assertion) error {
	rec, ok := result.recordAt(*a.Instant)
	if !ok {
		return &AssertionError{
			Type:     AssertSignalAbsent,
			Expected: fmt.Sprintf("a record for instant %d", *a.Instant),
			Actual:   fmt.Sprintf("only %d instants were run", len(result.Instants)),
			Instants: result.Instants,
		}
	}

	if v, present := rec.Signals[a.Signal]; present {
		return &AssertionError{
			Type:     AssertSignalAbsent,
			Expected: fmt.Sprintf("signal %q absent at instant %d", a.Signal, *a.Instant),
			Actual:   fmt.Sprintf("present with value %v", v),
			Instants: result.Instants,
		}
	}
	return nil
}

// assertActive checks the still_active flag of the given instant.
func assertActive(result *Result, a Assertion) error {
	rec, ok := result.recordAt(*a.Instant)
	if !ok {
		return &AssertionError{
			Type:     AssertActive,
			Expected: fmt.Sprintf("a record for instant %d", *a.Instant),
			Actual:   fmt.Sprintf("only %d instants were run", len(result.Instants)),
			Instants: result.Instants,
		}
	}

	if rec.StillActive != *a.StillActive {
		return &AssertionError{
			Type:     AssertActive,
			Expected: fmt.Sprintf("still_active=%t at instant %d", *a.StillActive, *a.Instant),
			Actual:   fmt.Sprintf("still_active=%t", rec.StillActive),
			Instants: result.Instants,
		}
	}
	return nil
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertCompleted:
			err = assertCompleted(result, assertion)
		case AssertSignalPresent:
			err = assertSignalPresent(result, assertion)
		case AssertSignalAbsent:
			err = assertSignalAbsent(result, assertion)
		case AssertActive:
			err = assertActive(result, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}

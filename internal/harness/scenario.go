package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance test scenario.
// Scenarios build a reactive program from signal and process
// declarations, run it instant by instant, and assert on the
// per-instant outcomes.
type Scenario struct {
	// Name uniquely identifies this scenario. It is also the golden
	// file name for RunWithGolden.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Signals declares the signals the processes share.
	Signals []SignalDef `yaml:"signals,omitempty"`

	// Processes declares the top-level processes, registered in order.
	// Registration order is scheduling order within the first instant.
	Processes []ProcessDef `yaml:"processes"`

	// Instants runs exactly this many instants. Mutually exclusive with
	// RunUntilTerminated; exactly one of the two must be set.
	Instants int `yaml:"instants,omitempty"`

	// RunUntilTerminated runs instants until the runtime is quiescent.
	RunUntilTerminated bool `yaml:"run_until_terminated,omitempty"`

	// Assertions validate the per-instant records.
	// Supported types: completed, signal_present, signal_absent, active
	Assertions []Assertion `yaml:"assertions"`
}

// SignalDef declares one signal.
type SignalDef struct {
	// Name identifies the signal in expressions and assertions.
	Name string `yaml:"name"`

	// Combine names the emission fold policy: sum, max, last, or
	// collect. Empty means last (last write wins).
	Combine string `yaml:"combine,omitempty"`
}

// ProcessDef declares one top-level process.
type ProcessDef struct {
	// Name identifies the process in records and assertions.
	Name string `yaml:"name"`

	// Run is the process expression tree.
	Run ExprNode `yaml:"run"`
}

// ExprNode is one process expression. Exactly one field must be set;
// see the package documentation for the form of each.
type ExprNode struct {
	Value          *any         `yaml:"value,omitempty"`
	Pause          *PauseExpr   `yaml:"pause,omitempty"`
	Then           []ExprNode   `yaml:"then,omitempty"`
	Join           *JoinExpr    `yaml:"join,omitempty"`
	Loop           *LoopExpr    `yaml:"loop,omitempty"`
	Repeat         *RepeatExpr  `yaml:"repeat,omitempty"`
	Emit           *EmitExpr    `yaml:"emit,omitempty"`
	AwaitImmediate *SignalRef   `yaml:"await_immediate,omitempty"`
	Await          *SignalRef   `yaml:"await,omitempty"`
	AwaitAbsence   *SignalRef   `yaml:"await_absence,omitempty"`
	Present        *PresentExpr `yaml:"present,omitempty"`
}

// PauseExpr is the empty body of a pause form; write it as "pause: {}".
type PauseExpr struct{}

// JoinExpr runs both branches in parallel and pairs their results.
type JoinExpr struct {
	Left  ExprNode `yaml:"left"`
	Right ExprNode `yaml:"right"`
}

// LoopExpr restarts its body forever.
type LoopExpr struct {
	Body ExprNode `yaml:"body"`
}

// RepeatExpr restarts its body a fixed number of times.
type RepeatExpr struct {
	Body  ExprNode `yaml:"body"`
	Times int      `yaml:"times"`
}

// EmitExpr emits a value on a signal.
type EmitExpr struct {
	Signal string `yaml:"signal"`
	Value  any    `yaml:"value"`
}

// SignalRef names a signal for the await forms.
type SignalRef struct {
	Signal string `yaml:"signal"`
}

// PresentExpr branches on signal presence.
type PresentExpr struct {
	Signal string   `yaml:"signal"`
	Then   ExprNode `yaml:"then"`
	Else   ExprNode `yaml:"else"`
}

// Assertion validates one per-instant outcome.
type Assertion struct {
	// Type specifies the assertion type:
	// - "completed": process completed at an instant
	// - "signal_present": signal was present at an instant
	// - "signal_absent": signal was absent at an instant
	// - "active": the still_active flag of an instant
	Type string `yaml:"type"`

	// Process is the process name (used by completed).
	Process string `yaml:"process,omitempty"`

	// Signal is the signal name (used by signal_present, signal_absent).
	Signal string `yaml:"signal,omitempty"`

	// Instant is the zero-based instant number the assertion inspects.
	// Required for every type; a pointer so instant 0 is expressible.
	Instant *int `yaml:"instant"`

	// Value is the expected completion or signal value. Optional;
	// when omitted only presence of the completion or signal is checked.
	Value any `yaml:"value,omitempty"`

	// Error is the expected runtime error code of a failed completion
	// (used by completed). Mutually exclusive with Value.
	Error string `yaml:"error,omitempty"`

	// StillActive is the expected flag (used by active).
	StillActive *bool `yaml:"still_active,omitempty"`
}

// Assertion type constants.
const (
	AssertCompleted     = "completed"
	AssertSignalPresent = "signal_present"
	AssertSignalAbsent  = "signal_absent"
	AssertActive        = "active"
)

// Builtin combine policy names.
const (
	CombineSum     = "sum"
	CombineMax     = "max"
	CombineLast    = "last"
	CombineCollect = "collect"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	signals := make(map[string]bool, len(s.Signals))
	for i, def := range s.Signals {
		if def.Name == "" {
			return fmt.Errorf("signals[%d]: name is required", i)
		}
		if signals[def.Name] {
			return fmt.Errorf("signals[%d]: duplicate signal name %q", i, def.Name)
		}
		signals[def.Name] = true

		switch def.Combine {
		case "", CombineSum, CombineMax, CombineLast, CombineCollect:
		default:
			return fmt.Errorf("signals[%d]: unknown combine %q", i, def.Combine)
		}
	}

	if len(s.Processes) == 0 {
		return fmt.Errorf("processes list is required and must be non-empty")
	}
	processes := make(map[string]bool, len(s.Processes))
	for i, def := range s.Processes {
		if def.Name == "" {
			return fmt.Errorf("processes[%d]: name is required", i)
		}
		if processes[def.Name] {
			return fmt.Errorf("processes[%d]: duplicate process name %q", i, def.Name)
		}
		processes[def.Name] = true

		path := fmt.Sprintf("processes[%d].run", i)
		if err := validateExpr(path, &def.Run, signals); err != nil {
			return err
		}
	}

	if s.Instants < 0 {
		return fmt.Errorf("instants must be non-negative")
	}
	if (s.Instants > 0) == s.RunUntilTerminated {
		return fmt.Errorf("exactly one of instants and run_until_terminated must be set")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i], s, signals, processes); err != nil {
			return err
		}
	}

	return nil
}

// validateExpr checks that the expression has exactly one form and that
// every referenced signal is declared. path names the node in errors.
func validateExpr(path string, e *ExprNode, signals map[string]bool) error {
	forms := 0
	if e.Value != nil {
		forms++
	}
	if e.Pause != nil {
		forms++
	}
	if len(e.Then) > 0 {
		forms++
	}
	if e.Join != nil {
		forms++
	}
	if e.Loop != nil {
		forms++
	}
	if e.Repeat != nil {
		forms++
	}
	if e.Emit != nil {
		forms++
	}
	if e.AwaitImmediate != nil {
		forms++
	}
	if e.Await != nil {
		forms++
	}
	if e.AwaitAbsence != nil {
		forms++
	}
	if e.Present != nil {
		forms++
	}
	if forms != 1 {
		return fmt.Errorf("%s: expression needs exactly one form, found %d", path, forms)
	}

	checkSignal := func(name string) error {
		if name == "" {
			return fmt.Errorf("%s: signal is required", path)
		}
		if !signals[name] {
			return fmt.Errorf("%s: undeclared signal %q", path, name)
		}
		return nil
	}

	switch {
	case e.Value != nil:
		return validateValue(path, *e.Value)
	case len(e.Then) > 0:
		for i := range e.Then {
			if err := validateExpr(fmt.Sprintf("%s.then[%d]", path, i), &e.Then[i], signals); err != nil {
				return err
			}
		}
	case e.Join != nil:
		if err := validateExpr(path+".join.left", &e.Join.Left, signals); err != nil {
			return err
		}
		return validateExpr(path+".join.right", &e.Join.Right, signals)
	case e.Loop != nil:
		return validateExpr(path+".loop.body", &e.Loop.Body, signals)
	case e.Repeat != nil:
		if e.Repeat.Times < 1 {
			return fmt.Errorf("%s: repeat times must be at least 1", path)
		}
		return validateExpr(path+".repeat.body", &e.Repeat.Body, signals)
	case e.Emit != nil:
		if err := checkSignal(e.Emit.Signal); err != nil {
			return err
		}
		return validateValue(path+".emit.value", e.Emit.Value)
	case e.AwaitImmediate != nil:
		return checkSignal(e.AwaitImmediate.Signal)
	case e.Await != nil:
		return checkSignal(e.Await.Signal)
	case e.AwaitAbsence != nil:
		return checkSignal(e.AwaitAbsence.Signal)
	case e.Present != nil:
		if err := checkSignal(e.Present.Signal); err != nil {
			return err
		}
		if err := validateExpr(path+".present.then", &e.Present.Then, signals); err != nil {
			return err
		}
		return validateExpr(path+".present.else", &e.Present.Else, signals)
	}

	return nil
}

// validateValue rejects value shapes that cannot round-trip through the
// canonical JSON records: nulls and non-integral floats.
func validateValue(path string, v any) error {
	switch val := v.(type) {
	case nil:
		return fmt.Errorf("%s: null values are forbidden", path)
	case string, bool, int, int64:
		return nil
	case float64:
		if val != float64(int64(val)) {
			return fmt.Errorf("%s: non-integral floats are forbidden: %v", path, val)
		}
		return nil
	case []any:
		for i, elem := range val {
			if err := validateValue(fmt.Sprintf("%s[%d]", path, i), elem); err != nil {
				return err
			}
		}
		return nil
	case map[string]any:
		for key, elem := range val {
			if err := validateValue(fmt.Sprintf("%s.%s", path, key), elem); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("%s: unsupported value type %T", path, v)
	}
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, s *Scenario, signals, processes map[string]bool) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if a.Instant == nil {
		return fmt.Errorf("assertions[%d]: instant is required", index)
	}
	if *a.Instant < 0 {
		return fmt.Errorf("assertions[%d]: instant must be non-negative", index)
	}
	if s.Instants > 0 && *a.Instant >= s.Instants {
		return fmt.Errorf("assertions[%d]: instant %d is beyond the %d instants the scenario runs", index, *a.Instant, s.Instants)
	}

	switch a.Type {
	case AssertCompleted:
		if a.Process == "" {
			return fmt.Errorf("assertions[%d]: process is required for completed", index)
		}
		if !processes[a.Process] {
			return fmt.Errorf("assertions[%d]: undeclared process %q", index, a.Process)
		}
		if a.Value != nil && a.Error != "" {
			return fmt.Errorf("assertions[%d]: value and error are mutually exclusive", index)
		}
		if a.Value != nil {
			if err := validateValue(fmt.Sprintf("assertions[%d].value", index), a.Value); err != nil {
				return err
			}
		}
	case AssertSignalPresent, AssertSignalAbsent:
		if a.Signal == "" {
			return fmt.Errorf("assertions[%d]: signal is required for %s", index, a.Type)
		}
		if !signals[a.Signal] {
			return fmt.Errorf("assertions[%d]: undeclared signal %q", index, a.Signal)
		}
		if a.Type == AssertSignalAbsent && a.Value != nil {
			return fmt.Errorf("assertions[%d]: signal_absent takes no value", index)
		}
		if a.Value != nil {
			if err := validateValue(fmt.Sprintf("assertions[%d].value", index), a.Value); err != nil {
				return err
			}
		}
	case AssertActive:
		if a.StillActive == nil {
			return fmt.Errorf("assertions[%d]: still_active is required for active", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}

package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeScenario drops a scenario YAML into a temp dir and returns its path.
func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadScenario_ValidFile(t *testing.T) {
	path := writeScenario(t, `
name: test_scenario
description: "Scenario for loader validation"
signals:
  - name: ping
processes:
  - name: emitter
    run:
      emit: {signal: ping, value: 5}
  - name: listener
    run:
      await_immediate: {signal: ping}
instants: 1
assertions:
  - type: completed
    process: listener
    instant: 0
    value: 5
`)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "test_scenario", scenario.Name)
	assert.Equal(t, "Scenario for loader validation", scenario.Description)
	assert.Len(t, scenario.Signals, 1)
	assert.Len(t, scenario.Processes, 2)
	assert.Equal(t, 1, scenario.Instants)
	assert.Len(t, scenario.Assertions, 1)

	require.NotNil(t, scenario.Processes[0].Run.Emit)
	assert.Equal(t, "ping", scenario.Processes[0].Run.Emit.Signal)
	require.NotNil(t, scenario.Processes[1].Run.AwaitImmediate)

	require.NotNil(t, scenario.Assertions[0].Instant)
	assert.Equal(t, 0, *scenario.Assertions[0].Instant)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("/nonexistent/scenario.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_UnknownField(t *testing.T) {
	path := writeScenario(t, `
name: test
description: "Typo'd key"
processes:
  - name: p
    run: {value: 1}
instants: 1
assertion:
  - type: active
    instant: 0
    still_active: false
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoadScenario_MissingName(t *testing.T) {
	path := writeScenario(t, `
description: "Missing name"
processes:
  - name: p
    run: {value: 1}
instants: 1
assertions:
  - type: active
    instant: 0
    still_active: false
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name is required")
}

func TestLoadScenario_MissingDescription(t *testing.T) {
	path := writeScenario(t, `
name: test
processes:
  - name: p
    run: {value: 1}
instants: 1
assertions:
  - type: active
    instant: 0
    still_active: false
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "description is required")
}

func TestLoadScenario_MissingProcesses(t *testing.T) {
	path := writeScenario(t, `
name: test
description: "No processes"
processes: []
instants: 1
assertions:
  - type: active
    instant: 0
    still_active: false
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "processes list is required")
}

func TestLoadScenario_MissingAssertions(t *testing.T) {
	path := writeScenario(t, `
name: test
description: "No assertions"
processes:
  - name: p
    run: {value: 1}
instants: 1
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "assertions list is required")
}

func TestLoadScenario_DuplicateProcessName(t *testing.T) {
	path := writeScenario(t, `
name: test
description: "Duplicate process"
processes:
  - name: p
    run: {value: 1}
  - name: p
    run: {value: 2}
instants: 1
assertions:
  - type: active
    instant: 0
    still_active: false
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `duplicate process name "p"`)
}

func TestLoadScenario_UnknownCombine(t *testing.T) {
	path := writeScenario(t, `
name: test
description: "Bad combine"
signals:
  - name: s
    combine: average
processes:
  - name: p
    run: {value: 1}
instants: 1
assertions:
  - type: active
    instant: 0
    still_active: false
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown combine "average"`)
}

func TestLoadScenario_ExpressionNeedsOneForm(t *testing.T) {
	path := writeScenario(t, `
name: test
description: "Two forms on one node"
processes:
  - name: p
    run:
      value: 1
      pause: {}
instants: 1
assertions:
  - type: active
    instant: 0
    still_active: false
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exactly one form, found 2")
	assert.Contains(t, err.Error(), "processes[0].run")
}

func TestLoadScenario_EmptyExpression(t *testing.T) {
	path := writeScenario(t, `
name: test
description: "Else branch left empty"
signals:
  - name: go
processes:
  - name: p
    run:
      present:
        signal: go
        then: {value: 1}
        else: {}
instants: 1
assertions:
  - type: active
    instant: 0
    still_active: false
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "processes[0].run.present.else")
	assert.Contains(t, err.Error(), "exactly one form, found 0")
}

func TestLoadScenario_UndeclaredSignal(t *testing.T) {
	path := writeScenario(t, `
name: test
description: "Emit on undeclared signal"
processes:
  - name: p
    run:
      emit: {signal: ghost, value: 1}
instants: 1
assertions:
  - type: active
    instant: 0
    still_active: false
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `undeclared signal "ghost"`)
}

func TestLoadScenario_NullValueForbidden(t *testing.T) {
	path := writeScenario(t, `
name: test
description: "Null emission value"
signals:
  - name: s
processes:
  - name: p
    run:
      emit: {signal: s, value: ~}
instants: 1
assertions:
  - type: active
    instant: 0
    still_active: false
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "null values are forbidden")
}

func TestLoadScenario_RepeatTimes(t *testing.T) {
	path := writeScenario(t, `
name: test
description: "Repeat with zero times"
processes:
  - name: p
    run:
      repeat:
        times: 0
        body: {value: 1}
instants: 1
assertions:
  - type: active
    instant: 0
    still_active: false
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "repeat times must be at least 1")
}

func TestLoadScenario_RunModeRequired(t *testing.T) {
	path := writeScenario(t, `
name: test
description: "No run mode"
processes:
  - name: p
    run: {value: 1}
assertions:
  - type: active
    instant: 0
    still_active: false
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exactly one of instants and run_until_terminated")
}

func TestLoadScenario_RunModesExclusive(t *testing.T) {
	path := writeScenario(t, `
name: test
description: "Both run modes"
processes:
  - name: p
    run: {value: 1}
instants: 2
run_until_terminated: true
assertions:
  - type: active
    instant: 0
    still_active: false
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exactly one of instants and run_until_terminated")
}

func TestLoadScenario_AssertionMissingInstant(t *testing.T) {
	path := writeScenario(t, `
name: test
description: "Assertion without instant"
processes:
  - name: p
    run: {value: 1}
instants: 1
assertions:
  - type: completed
    process: p
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "instant is required")
}

func TestLoadScenario_AssertionBeyondRun(t *testing.T) {
	path := writeScenario(t, `
name: test
description: "Assertion beyond the run"
processes:
  - name: p
    run: {value: 1}
instants: 1
assertions:
  - type: completed
    process: p
    instant: 3
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "beyond the 1 instants")
}

func TestLoadScenario_AssertionUnknownProcess(t *testing.T) {
	path := writeScenario(t, `
name: test
description: "Assertion on unknown process"
processes:
  - name: p
    run: {value: 1}
instants: 1
assertions:
  - type: completed
    process: q
    instant: 0
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `undeclared process "q"`)
}

func TestLoadScenario_AssertionValueErrorExclusive(t *testing.T) {
	path := writeScenario(t, `
name: test
description: "Assertion with both value and error"
processes:
  - name: p
    run: {value: 1}
instants: 1
assertions:
  - type: completed
    process: p
    instant: 0
    value: 1
    error: INSTANTANEOUS_LOOP
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "value and error are mutually exclusive")
}

func TestLoadScenario_UnknownAssertionType(t *testing.T) {
	path := writeScenario(t, `
name: test
description: "Unknown assertion type"
processes:
  - name: p
    run: {value: 1}
instants: 1
assertions:
  - type: trace_contains
    instant: 0
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown assertion type "trace_contains"`)
}

// Package harness provides scenario-driven conformance testing for the
// instant runtime.
//
// The harness builds a reactive program from a YAML description, runs it
// for a fixed number of instants (or until the runtime is quiescent),
// and validates the per-instant outcomes: which processes completed with
// which values, which signals were present, and whether work remained.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	signals:
//	  - name: beat
//	    combine: sum          # sum | max | last | collect (default last)
//	processes:
//	  - name: pacer
//	    run:
//	      then:
//	        - emit: {signal: beat, value: 1}
//	        - pause: {}
//	        - emit: {signal: beat, value: 2}
//	instants: 2               # or: run_until_terminated: true
//	assertions:
//	  - type: completed
//	    process: pacer
//	    instant: 1
//
// # Expression Forms
//
// A process expression is a mapping with exactly one of these keys:
//
//	value: v                                   terminate with v
//	pause: {}                                  suspend one instant
//	then: [expr, expr, ...]                    run in sequence
//	join: {left: expr, right: expr}            run in parallel, pair results
//	loop: {body: expr}                         restart body forever
//	repeat: {body: expr, times: n}             restart body n times
//	emit: {signal: s, value: v}                emit v on s this instant
//	await_immediate: {signal: s}               wait for presence, take value now
//	await: {signal: s}                         wait for presence, take final value next instant
//	await_absence: {signal: s}                 wait for an instant without s
//	present: {signal: s, then: expr, else: expr}
//
// Combinators that take Go functions (Map, Bind, While, custom combine
// functions) have no YAML form; they are exercised directly in package
// tests. The collect combine folds same-instant emissions into a list,
// so a lone emission stays a scalar and the list only appears once a
// second emission folds in.
//
// # Assertion Types
//
// The following assertion types are supported:
//
//   - completed: a process completed at an instant, optionally with a
//     value or a runtime error code
//   - signal_present: a signal was present at an instant, optionally
//     with its end-of-instant value
//   - signal_absent: a signal was absent at an instant
//   - active: the still_active flag of an instant's report
//
// # Deterministic Testing
//
// Every run builds a fresh Runtime with sequence process tokens and a
// discarded logger, so two runs of the same scenario produce identical
// results. Golden files hold the canonical JSON encoding of the
// per-instant records; see RunWithGolden.
//
// # Usage
//
// Load and run a scenario:
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/pause_pipeline.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
package harness

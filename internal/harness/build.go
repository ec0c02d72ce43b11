package harness

import (
	"fmt"

	"github.com/roach88/instant"
)

// Scenario expressions are untyped, so every process is built as a
// Process[any] and every signal as a Signal[any]; the typed combinator
// API stays the same underneath, the harness just erases eagerly.

// erase widens a typed process to Process[any].
func erase[T any](p instant.Process[T]) instant.Process[any] {
	return instant.Map(p, func(v T) any { return v })
}

// buildSignals creates one signal per declaration, keyed by name.
func buildSignals(rt *instant.Runtime, defs []SignalDef) (map[string]instant.Signal[any], error) {
	signals := make(map[string]instant.Signal[any], len(defs))
	for _, def := range defs {
		combine := builtinCombine(def.Combine)
		if combine == nil {
			signals[def.Name] = instant.NewSignal[any](rt, instant.WithSignalName(def.Name))
			continue
		}
		sig, err := instant.NewCombinedSignal(rt, combine, instant.WithSignalName(def.Name))
		if err != nil {
			return nil, fmt.Errorf("signal %q: %w", def.Name, err)
		}
		signals[def.Name] = sig
	}
	return signals, nil
}

// builtinCombine maps a combine policy name to its fold function.
// Returns nil for last-write-wins, which is the runtime's own default.
func builtinCombine(name string) func(any, any) any {
	switch name {
	case CombineSum:
		return func(prior, next any) any {
			return asInt64(prior) + asInt64(next)
		}
	case CombineMax:
		return func(prior, next any) any {
			if n := asInt64(next); n > asInt64(prior) {
				return n
			}
			return asInt64(prior)
		}
	case CombineCollect:
		return func(prior, next any) any {
			if list, ok := prior.([]any); ok {
				return append(list, next)
			}
			return []any{prior, next}
		}
	default:
		return nil
	}
}

// asInt64 reads the integer out of an emitted value. Emissions reaching
// a sum or max signal are normalized integers; anything else folds as 0.
func asInt64(v any) int64 {
	switch val := v.(type) {
	case int64:
		return val
	case int:
		return int64(val)
	default:
		return 0
	}
}

// buildProcess compiles an expression tree into a registrable process.
// The tree is validated before it gets here; the errors below guard
// against programmatically constructed scenarios that skipped
// validation.
func buildProcess(signals map[string]instant.Signal[any], e *ExprNode) (instant.Process[any], error) {
	switch {
	case e.Value != nil:
		v, err := normalizeValue(*e.Value)
		if err != nil {
			return instant.Process[any]{}, err
		}
		return instant.Value[any](v), nil

	case e.Pause != nil:
		return erase(instant.Pause()), nil

	case len(e.Then) > 0:
		acc, err := buildProcess(signals, &e.Then[0])
		if err != nil {
			return instant.Process[any]{}, err
		}
		for i := 1; i < len(e.Then); i++ {
			next, err := buildProcess(signals, &e.Then[i])
			if err != nil {
				return instant.Process[any]{}, err
			}
			acc = instant.Then(acc, next)
		}
		return acc, nil

	case e.Join != nil:
		left, err := buildProcess(signals, &e.Join.Left)
		if err != nil {
			return instant.Process[any]{}, err
		}
		right, err := buildProcess(signals, &e.Join.Right)
		if err != nil {
			return instant.Process[any]{}, err
		}
		return erase(instant.Join(left, right)), nil

	case e.Loop != nil:
		body, err := buildProcess(signals, &e.Loop.Body)
		if err != nil {
			return instant.Process[any]{}, err
		}
		return erase(instant.Loop(body)), nil

	case e.Repeat != nil:
		body, err := buildProcess(signals, &e.Repeat.Body)
		if err != nil {
			return instant.Process[any]{}, err
		}
		return instant.Repeat(body, e.Repeat.Times), nil

	case e.Emit != nil:
		sig, ok := signals[e.Emit.Signal]
		if !ok {
			return instant.Process[any]{}, fmt.Errorf("undeclared signal %q", e.Emit.Signal)
		}
		v, err := normalizeValue(e.Emit.Value)
		if err != nil {
			return instant.Process[any]{}, err
		}
		return erase(instant.Emit(sig, v)), nil

	case e.AwaitImmediate != nil:
		sig, ok := signals[e.AwaitImmediate.Signal]
		if !ok {
			return instant.Process[any]{}, fmt.Errorf("undeclared signal %q", e.AwaitImmediate.Signal)
		}
		return instant.AwaitImmediate(sig), nil

	case e.Await != nil:
		sig, ok := signals[e.Await.Signal]
		if !ok {
			return instant.Process[any]{}, fmt.Errorf("undeclared signal %q", e.Await.Signal)
		}
		return instant.Await(sig), nil

	case e.AwaitAbsence != nil:
		sig, ok := signals[e.AwaitAbsence.Signal]
		if !ok {
			return instant.Process[any]{}, fmt.Errorf("undeclared signal %q", e.AwaitAbsence.Signal)
		}
		return erase(instant.AwaitAbsence(sig)), nil

	case e.Present != nil:
		sig, ok := signals[e.Present.Signal]
		if !ok {
			return instant.Process[any]{}, fmt.Errorf("undeclared signal %q", e.Present.Signal)
		}
		thenP, err := buildProcess(signals, &e.Present.Then)
		if err != nil {
			return instant.Process[any]{}, err
		}
		elseP, err := buildProcess(signals, &e.Present.Else)
		if err != nil {
			return instant.Process[any]{}, err
		}
		return instant.Present(sig, thenP, elseP), nil

	default:
		return instant.Process[any]{}, fmt.Errorf("expression has no recognized form")
	}
}

// normalizeValue converts a YAML-parsed value into the shape the records
// use: integers widen to int64, integral floats collapse to int64, and
// nulls and non-integral floats are rejected.
func normalizeValue(v any) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, fmt.Errorf("null values are forbidden")
	case string, bool, int64:
		return val, nil
	case int:
		return int64(val), nil
	case float64:
		// YAML may hand integers back as float64
		if val == float64(int64(val)) {
			return int64(val), nil
		}
		return nil, fmt.Errorf("non-integral floats are forbidden: %v", val)
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			norm, err := normalizeValue(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = norm
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for key, elem := range val {
			norm, err := normalizeValue(elem)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			out[key] = norm
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

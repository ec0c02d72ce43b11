package instant

import "fmt"

// SignalHandle identifies a signal created on a Runtime.
type SignalHandle uint64

// signalCore is the runtime-side state of one signal.
//
// Presence, value, and emission state are per-instant: they are reset
// unconditionally at the start of every instant, before any task of that
// instant runs. Waiter sets persist across instants until resolved.
type signalCore struct {
	id   SignalHandle
	name string
	rt   *Runtime

	// combine folds a new emission into the value already emitted this
	// instant. nil means last write wins.
	combine func(prior, next any) any

	present        bool
	value          any
	emissions      int
	declaredAbsent bool

	// presenceWaiters wake on the first emission (same instant).
	presenceWaiters []ProcessHandle
	// absenceWaiters wake when an instant closes without an emission.
	absenceWaiters []ProcessHandle
	// decisionWaiters are presence tests: woken on emission in the same
	// instant, diverted to their else branch at instant end otherwise.
	decisionWaiters []ProcessHandle
	// gatherWaiters receive the final combined value of an emission
	// instant, delivered at the start of the following instant.
	gatherWaiters []ProcessHandle
}

// resetForInstant clears per-instant presence state. Waiter sets are
// deliberately untouched.
func (s *signalCore) resetForInstant() {
	s.present = false
	s.value = nil
	s.emissions = 0
	s.declaredAbsent = false
}

// applyEmission folds v into the signal's value for this instant.
// Emissions fold in arrival order; arrival order is deterministic because
// the fixpoint loop is single-threaded.
func (s *signalCore) applyEmission(v any) {
	if !s.present {
		s.present = true
		s.value = v
	} else if s.combine != nil {
		s.value = s.combine(s.value, v)
	} else {
		s.value = v
	}
	s.emissions++
}

// Signal is a per-instant presence/value channel shared among processes.
// A Signal belongs to the Runtime it was created on; using it in a
// process registered elsewhere fails that process.
type Signal[T any] struct {
	core *signalCore
}

// SignalOption configures a signal at creation.
type SignalOption func(*signalCore)

// WithSignalName sets the name used for the signal in logs, traces, and
// errors. Defaults to "signal-<handle>".
func WithSignalName(name string) SignalOption {
	return func(s *signalCore) {
		s.name = name
	}
}

// NewSignal creates a signal with last-write-wins emission policy: when
// several processes emit in the same instant, the value observed is the
// latest emission in scheduling order. The policy is deterministic
// because scheduling order is.
func NewSignal[T any](rt *Runtime, opts ...SignalOption) Signal[T] {
	core := rt.addSignal(nil)
	for _, opt := range opts {
		opt(core)
	}
	return Signal[T]{core: core}
}

// NewCombinedSignal creates a signal whose same-instant emissions are
// folded left to right with combine: the first emission seeds the value,
// each later emission v updates it to combine(current, v).
//
// A nil combine is a configuration error (InvalidCombine); use NewSignal
// for the last-write-wins default.
func NewCombinedSignal[T any](rt *Runtime, combine func(T, T) T, opts ...SignalOption) (Signal[T], error) {
	core := rt.addSignal(nil)
	for _, opt := range opts {
		opt(core)
	}
	if combine == nil {
		rt.dropSignal(core)
		return Signal[T]{}, NewInvalidCombineError(core.name)
	}
	core.combine = func(prior, next any) any {
		return combine(prior.(T), next.(T))
	}
	return Signal[T]{core: core}, nil
}

// Handle returns the signal's identity on its runtime.
func (s Signal[T]) Handle() SignalHandle {
	return s.core.id
}

// Name returns the signal's display name.
func (s Signal[T]) Name() string {
	return s.core.name
}

// IsPresent reports whether the signal was emitted in the most recently
// started instant. Between RunInstant calls it reflects the instant that
// just resolved; state resets when the next instant begins.
func (s Signal[T]) IsPresent() bool {
	return s.core.present
}

// Value returns the value carried by the most recently started instant
// and whether the signal is present in it. Mid-instant the value
// reflects the emissions folded so far; the final combined value is only
// stable once the instant has closed.
func (s Signal[T]) Value() (T, bool) {
	if !s.core.present {
		var zero T
		return zero, false
	}
	return s.core.value.(T), true
}

func defaultSignalName(id SignalHandle) string {
	return fmt.Sprintf("signal-%d", id)
}

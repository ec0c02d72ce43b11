package instant

import "log/slog"

// DefaultMaxLoopIterations is the default number of times a single loop
// body may terminate within one instant before the process fails with
// InstantaneousLoop. This keeps a zero-duration loop body from spinning
// the fixpoint forever.
const DefaultMaxLoopIterations = 1000

// Option configures a Runtime at construction.
type Option func(*Runtime)

// WithMaxLoopIterations sets the per-instant loop iteration cap.
//
// Default: 1000 iterations (DefaultMaxLoopIterations)
// Use WithMaxLoopIterations(100000) for Repeat counts known to be large.
// Use WithMaxLoopIterations(10) for testing the guard.
func WithMaxLoopIterations(n int) Option {
	return func(rt *Runtime) {
		rt.maxLoopIterations = n
	}
}

// WithLogger sets the runtime's structured logger.
// Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(rt *Runtime) {
		rt.logger = l
	}
}

// WithTokenGenerator sets the process token source.
// Defaults to UUIDv7Generator; tests use FixedGenerator for stable
// tokens in golden traces.
func WithTokenGenerator(g TokenGenerator) Option {
	return func(rt *Runtime) {
		rt.tokens = g
	}
}

// WithRecorder attaches a trace recorder. With no recorder, tracing is
// disabled and costs nothing per event.
func WithRecorder(r Recorder) Option {
	return func(rt *Runtime) {
		rt.recorder = r
	}
}

// WithClock sets the logical clock used to stamp trace events.
// NewClockAt lets a host continue seq numbering from a prior trace.
func WithClock(c *Clock) Option {
	return func(rt *Runtime) {
		rt.clock = c
	}
}

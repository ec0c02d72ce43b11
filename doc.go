// Package instant implements a synchronous reactive execution engine.
//
// Computation is organized into discrete logical instants. Within an
// instant, a graph of cooperating processes communicates through signals
// and either terminates or suspends until the next instant. The host
// drives the clock: each call to Runtime.RunInstant executes exactly one
// instant to its fixpoint and reports which top-level processes finished.
//
// ARCHITECTURE:
//
// Single-Writer Fixpoint Loop:
// The runtime resolves each instant in a single goroutine for deterministic
// behavior. This ensures:
// - Predictable resumption order (FIFO by readiness)
// - Reproducible traces on re-execution
// - Simple reasoning about causality
//
// Instant Resolution Flow:
// 1. Signal presence and value state is reset
// 2. Tasks scheduled from the previous instant seed the ready queue
// 3. Ready tasks are resumed in FIFO order; an emit wakes the signal's
//    presence waiters into the same queue before the loop continues
// 4. When the queue drains, signals with outstanding absence waiters and
//    no emission are declared absent and their waiters re-run
// 5. Deferred deliveries are scheduled, the instant counter advances, and
//    a Report is returned to the host
//
// "Parallel" composition (Join) means logical interleaving of steps within
// the same instant's fixpoint loop, not concurrent threads. The runtime is
// designed for correctness and determinism, not throughput.
//
// CRITICAL PATTERNS:
//
// CP-1: Logical Clock
// All trace events are stamped with a monotonic seq counter from
// Clock.Next(). NEVER wall-clock timestamps for ordering.
//
// CP-2: Deterministic Scheduling
// Tasks are resumed in FIFO readiness order; readiness is a function of
// registration order and emission order only. No randomness, no
// concurrency, no non-determinism.
//
// CP-3: One-Shot Resumption
// A suspended task is resumed at most once per suspension. Resuming a
// terminated task is an invariant violation and fails the instant.
//
// CP-4: Handles, Not Ownership
// Tasks reference each other and signal waiter sets by integer handle
// into a slab, never by direct pointer ownership. Loop bodies and join
// branches cannot form reference cycles.
package instant

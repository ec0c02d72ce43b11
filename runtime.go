package instant

import (
	"context"
	"fmt"
	"log/slog"
)

// Runtime orchestrates processes, signals, and instants.
//
// A Runtime is explicit state with an explicit lifecycle: create one with
// New, register processes, and drive it by calling RunInstant once per
// logical tick. Nothing is process-wide; independent runtimes are fully
// isolated, which keeps tests deterministic and parallelizable.
//
// CRITICAL: All mutation happens inside RunInstant's single-threaded
// fixpoint loop. Runtime methods are not safe for concurrent use; the
// host calls them from one goroutine, between ticks.
type Runtime struct {
	logger   *slog.Logger
	clock    *Clock
	tokens   TokenGenerator
	recorder Recorder

	// maxLoopIterations caps body terminations of a single loop within
	// one instant before the process fails with InstantaneousLoop.
	maxLoopIterations int

	// instant is the number of the instant currently running, or, between
	// ticks, the number the next RunInstant call will run. Starts at 0.
	instant uint64

	tasks       *slab
	ready       *readyQueue
	nextInstant []ProcessHandle
	signals     []*signalCore
	completed   []Completion
}

// New creates a Runtime.
//
// Defaults: slog.Default() logging, UUIDv7 process tokens, a fresh
// logical clock, no trace recorder, and a loop iteration cap of
// DefaultMaxLoopIterations. Options override each of these.
func New(opts ...Option) *Runtime {
	rt := &Runtime{
		logger:            slog.Default(),
		clock:             NewClock(),
		tokens:            UUIDv7Generator{},
		maxLoopIterations: DefaultMaxLoopIterations,
		tasks:             newSlab(),
		ready:             newReadyQueue(),
	}

	for _, opt := range opts {
		opt(rt)
	}

	return rt
}

// Register creates the task for p and schedules it to start in the next
// instant that runs. The returned handle identifies the process in
// reports, Kill, and traces.
//
// Panics if p is a zero Process: there is nothing to run.
func (rt *Runtime) Register(p AnyProcess) ProcessHandle {
	if p == nil || p.proc() == nil {
		panic("instant: Register of zero Process")
	}

	t := rt.newTask(p.proc(), 0)
	t.token = rt.tokens.Generate()
	rt.nextInstant = append(rt.nextInstant, t.handle)

	rt.record(TraceRegister, t.token, "", "")
	rt.logger.Debug("process registered",
		"process", t.token,
		"handle", uint64(t.handle),
		"instant", rt.instant,
	)
	return t.handle
}

// Kill transitions the process for h directly to terminated, removing it
// and its join branch descendants from every queue and waiter set. The
// process reports no completion. Killing one branch of a Join from
// inside the graph is not expressible; Kill always targets a registered
// top-level handle, so siblings of nested branches go down with the
// tree, never independently.
//
// Returns an UnknownHandle error if h has no live process.
func (rt *Runtime) Kill(h ProcessHandle) error {
	t, ok := rt.tasks.get(h)
	if !ok {
		return NewUnknownHandleError(h)
	}

	rt.record(TraceKill, t.token, "", "")
	rt.logger.Debug("process killed",
		"process", t.token,
		"handle", uint64(h),
		"instant", rt.instant,
	)
	rt.killTree(h)
	return nil
}

// RunInstant executes exactly one instant to its fixpoint and reports
// which top-level processes terminated in it.
//
// The per-instant algorithm:
//  1. Reset every signal's presence and value state
//  2. Seed the ready queue with tasks scheduled from the previous instant
//  3. Resume ready tasks FIFO until the queue drains; emissions wake
//     presence waiters into the same queue
//  4. Declare signals with absence waiters and no emission absent, wake
//     those waiters, and drain again; repeat until stable
//  5. Deliver end-of-instant values, advance the instant counter, report
//
// A fatal scheduler error (ResumeAfterTermination, DeadlockedAwait)
// aborts the instant: the error is returned, the instant counter does
// not advance, and the runtime state is not rolled back. The host
// decides whether to retry, reset, or abandon the session.
//
// ctx is checked between task resumptions; cancellation aborts the
// instant the same way.
func (rt *Runtime) RunInstant(ctx context.Context) (Report, error) {
	cur := rt.instant
	rt.record(TraceInstantBegin, "", "", "")

	for _, sig := range rt.signals {
		sig.resetForInstant()
	}

	seeds := rt.nextInstant
	rt.nextInstant = rt.nextInstant[:0]
	for _, h := range seeds {
		rt.ready.push(h)
	}
	rt.completed = rt.completed[:0]

	rt.logger.Debug("instant starting",
		"instant", cur,
		"seeded", rt.ready.len(),
	)

	if err := rt.drainReady(ctx); err != nil {
		rt.logger.Error("instant aborted", "instant", cur, "error", err)
		return Report{}, fmt.Errorf("run instant %d: %w", cur, err)
	}

	// Absence resolution: the fixpoint above vouches that no further
	// emission can happen without advancing time, so signals still not
	// present can be declared absent. Waking absence waiters may park
	// new ones, so iterate until nothing new wakes.
	for rt.resolveAbsence() {
		if err := rt.drainReady(ctx); err != nil {
			rt.logger.Error("instant aborted", "instant", cur, "error", err)
			return Report{}, fmt.Errorf("run instant %d: %w", cur, err)
		}
	}

	rt.finalizeInstant()
	rt.instant++

	completed := make([]Completion, len(rt.completed))
	copy(completed, rt.completed)
	report := Report{
		Instant:     cur,
		Completed:   completed,
		StillActive: rt.tasks.len() > 0,
	}

	rt.logger.Info("instant complete",
		"instant", cur,
		"completed", len(completed),
		"still_active", report.StillActive,
	)
	return report, nil
}

// RunUntilTerminated drives RunInstant until no further instant can make
// progress, returning every report in order.
//
// Progress is possible while any task is scheduled for the next instant,
// or any absence waiter is outstanding: with nothing else runnable no
// emission can happen, so an outstanding absence is certain to resolve
// one instant later. Presence and gather waiters are the opposite: with
// nothing scheduled, no future emission can ever wake them, so they are
// stranded and the loop stops. The final report's StillActive flag tells
// full termination and stranded waiters apart.
func (rt *Runtime) RunUntilTerminated(ctx context.Context) ([]Report, error) {
	var reports []Report
	for {
		report, err := rt.RunInstant(ctx)
		if err != nil {
			return reports, err
		}
		reports = append(reports, report)
		if rt.Quiescent() {
			return reports, nil
		}
	}
}

// Quiescent reports whether no further instant can make progress: no
// task is scheduled for the next instant and no absence waiter is
// outstanding. Hosts driving RunInstant manually use this as their stop
// condition; RunUntilTerminated is that loop prepackaged.
func (rt *Runtime) Quiescent() bool {
	if len(rt.nextInstant) > 0 {
		return false
	}
	for _, sig := range rt.signals {
		if len(sig.absenceWaiters) > 0 {
			return false
		}
	}
	return true
}

// drainReady resumes ready tasks in FIFO order until the queue is empty.
// Stale handles (tasks since terminated or killed) are skipped.
func (rt *Runtime) drainReady(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		h, ok := rt.ready.pop()
		if !ok {
			return nil
		}
		t, ok := rt.tasks.get(h)
		if !ok {
			continue
		}
		rt.record(TraceResume, t.token, "", "")
		if err := rt.stepTask(t); err != nil {
			return err
		}
	}
}

// resolveAbsence declares every signal that has outstanding absence
// waiters and no emission this instant absent, and wakes those waiters.
// Returns true if any waiter woke.
func (rt *Runtime) resolveAbsence() bool {
	woke := false
	for _, sig := range rt.signals {
		if sig.present || sig.declaredAbsent || len(sig.absenceWaiters) == 0 {
			continue
		}
		sig.declaredAbsent = true
		rt.wakeWaiters(sig, &sig.absenceWaiters, "absence")
		woke = true
	}
	return woke
}

// finalizeInstant performs the end-of-instant deliveries: gathered values
// for signals that were present, and else-branch diversions for presence
// tests whose signal stayed absent. Both resume at the next instant.
func (rt *Runtime) finalizeInstant() {
	for _, sig := range rt.signals {
		if sig.present {
			for _, h := range sig.gatherWaiters {
				t, ok := rt.tasks.get(h)
				if !ok || t.awaitSig != sig {
					continue
				}
				t.awaitSig = nil
				t.status = statusSuspended
				t.reason = reasonEndOfInstant
				t.resumeVal = sig.value
				rt.nextInstant = append(rt.nextInstant, h)
				rt.record(TraceWake, t.token, sig.name, "gather")
			}
			sig.gatherWaiters = sig.gatherWaiters[:0]
			continue
		}

		for _, h := range sig.decisionWaiters {
			t, ok := rt.tasks.get(h)
			if !ok || t.awaitSig != sig {
				continue
			}
			pn, isPresent := t.node.(presentNode)
			if !isPresent {
				continue
			}
			t.awaitSig = nil
			t.status = statusSuspended
			t.reason = reasonEndOfInstant
			t.node = pn.els
			rt.nextInstant = append(rt.nextInstant, h)
			rt.record(TraceWake, t.token, sig.name, "else")
		}
		sig.decisionWaiters = sig.decisionWaiters[:0]
	}
	rt.record(TraceInstantEnd, "", "", "")
}

// newTask inserts a fresh task for node into the slab. root names the
// registered ancestor; 0 means the task is itself top-level.
func (rt *Runtime) newTask(node procNode, root ProcessHandle) *task {
	t := &task{
		node:            node,
		root:            root,
		status:          statusPending,
		lastStepInstant: neverStepped,
	}
	h := rt.tasks.insert(t)
	if root == 0 {
		t.root = h
	}
	return t
}

// addSignal allocates a signal core on this runtime.
func (rt *Runtime) addSignal(combine func(any, any) any) *signalCore {
	id := SignalHandle(len(rt.signals) + 1)
	core := &signalCore{
		id:      id,
		name:    defaultSignalName(id),
		rt:      rt,
		combine: combine,
	}
	rt.signals = append(rt.signals, core)
	return core
}

// dropSignal unregisters a core whose creation failed validation. Cores
// are only ever dropped immediately after addSignal, so it is the tail.
func (rt *Runtime) dropSignal(core *signalCore) {
	if n := len(rt.signals); n > 0 && rt.signals[n-1] == core {
		rt.signals = rt.signals[:n-1]
	}
}

// Clock returns the runtime's logical clock.
// Trace events are stamped from it.
func (rt *Runtime) Clock() *Clock {
	return rt.clock
}

// Instant returns the number of the next instant RunInstant will run,
// which equals the count of instants completed so far.
func (rt *Runtime) Instant() uint64 {
	return rt.instant
}

// Live returns the number of live tasks, including join branches.
// Useful for monitoring and testing.
func (rt *Runtime) Live() int {
	return rt.tasks.len()
}

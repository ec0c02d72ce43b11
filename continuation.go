package instant

// taskStatus tracks the lifecycle of a task.
type taskStatus int

const (
	// statusPending: registered or woken, waiting in a queue to step.
	statusPending taskStatus = iota
	// statusRunning: mid-step. Not observable outside stepTask.
	statusRunning
	// statusSuspended: parked in a waiter set or for the next instant.
	statusSuspended
	// statusDone: terminated. Resuming a done task is an invariant
	// violation (CP-3).
	statusDone
)

// suspendReason records why a suspended task is parked.
type suspendReason int

const (
	reasonNone suspendReason = iota
	// reasonEndOfInstant: scheduled to resume at the next instant.
	reasonEndOfInstant
	// reasonAwaitPresence: parked until the signal is emitted.
	reasonAwaitPresence
	// reasonAwaitAbsence: parked until an instant ends without emission.
	reasonAwaitAbsence
	// reasonAwaitDecision: presence test; emitted -> then branch this
	// instant, instant ends absent -> else branch next instant.
	reasonAwaitDecision
	// reasonAwaitGather: parked for the final combined value, delivered
	// at the close of the emission instant.
	reasonAwaitGather
	// reasonAwaitJoin: parked until both join branches terminate.
	reasonAwaitJoin
)

const neverStepped = ^uint64(0)

// frame is one entry of a task's continuation stack: what to do with the
// value of the sub-process currently running. Frames are dispatched by
// type switch, same closed-variant shape as procNode.
type frame interface {
	frame()
}

type mapFrame struct{ f func(any) any }

type thenFrame struct{ next procNode }

type bindFrame struct{ f func(any) procNode }

// loopFrame is mutable across body terminations, so it goes on the stack
// by pointer.
type loopFrame struct {
	body      procNode
	remaining int
	forever   bool
	steps     int // body terminations within the current instant
}

type whileFrame struct {
	body  procNode
	steps int
}

func (mapFrame) frame()    {}
func (thenFrame) frame()   {}
func (bindFrame) frame()   {}
func (*loopFrame) frame()  {}
func (*whileFrame) frame() {}

// joinState coordinates one Join. Both branch tasks share it; whichever
// branch finishes first stores its result here and the second finisher
// readies the parent.
type joinState struct {
	parent  ProcessHandle
	pair    func(l, r any) any
	handles [2]ProcessHandle
	results [2]any
	done    [2]bool
}

// task is the continuation of one process: the runtime-side state machine
// created when a Process is registered (or when a Join forks a branch).
//
// A task resumes either by evaluating t.node (a pending process node) or,
// when t.node is nil, by popping frames with t.resumeVal. Suspension is
// expressed only through the runtime's park helpers; stepTask itself
// never blocks.
type task struct {
	handle ProcessHandle
	token  string
	// root is the registered top-level ancestor this task reports under.
	// For a top-level task, root == handle.
	root ProcessHandle

	status taskStatus
	reason suspendReason

	node      procNode
	frames    []frame
	resumeVal any

	// awaitSig is the signal the task is parked on, if any. Wakes check
	// it so a stale waiter entry can never resume the wrong wait.
	awaitSig *signalCore

	// join is set while this task waits for its branch tasks; parentJoin
	// and branch locate a branch task in its parent's join.
	join       *joinState
	parentJoin *joinState
	branch     int

	// lastStepInstant detects instant boundaries so per-instant loop
	// budgets reset exactly once per instant.
	lastStepInstant uint64

	// consumedPresence and consumedAbsence record the instant in which
	// this task last observed a signal's presence or absence. A task
	// observes each signal state at most once per instant; a repeated
	// await in the same instant defers to the next.
	consumedPresence map[SignalHandle]uint64
	consumedAbsence  map[SignalHandle]uint64
}

func (t *task) presenceConsumed(id SignalHandle, instant uint64) bool {
	v, ok := t.consumedPresence[id]
	return ok && v == instant
}

func (t *task) markPresenceConsumed(id SignalHandle, instant uint64) {
	if t.consumedPresence == nil {
		t.consumedPresence = make(map[SignalHandle]uint64)
	}
	t.consumedPresence[id] = instant
}

func (t *task) absenceConsumed(id SignalHandle, instant uint64) bool {
	v, ok := t.consumedAbsence[id]
	return ok && v == instant
}

func (t *task) markAbsenceConsumed(id SignalHandle, instant uint64) {
	if t.consumedAbsence == nil {
		t.consumedAbsence = make(map[SignalHandle]uint64)
	}
	t.consumedAbsence[id] = instant
}

// resetLoopBudgets zeroes the per-instant iteration counters of every
// loop frame on the stack. Called when the task first steps in a new
// instant.
func (t *task) resetLoopBudgets() {
	for _, fr := range t.frames {
		switch f := fr.(type) {
		case *loopFrame:
			f.steps = 0
		case *whileFrame:
			f.steps = 0
		}
	}
}

// stepTask resumes t and runs it until it terminates or suspends.
//
// The returned error is fatal to the current instant (resume after
// termination, deadlocked await). Process-level failures such as an
// instantaneous loop terminate t and its process tree but return nil:
// the instant continues for unrelated processes.
func (rt *Runtime) stepTask(t *task) error {
	if t.status == statusDone {
		return NewResumeAfterTerminationError(t.token, rt.instant)
	}
	if t.lastStepInstant != rt.instant {
		t.resetLoopBudgets()
		t.lastStepInstant = rt.instant
	}
	t.status = statusRunning
	t.reason = reasonNone
	t.awaitSig = nil

	cur := t.node
	t.node = nil
	val := t.resumeVal
	t.resumeVal = nil

	for {
		if cur != nil {
			switch n := cur.(type) {
			case valueNode:
				val = n.v
				cur = nil

			case pauseNode:
				t.resumeVal = struct{}{}
				rt.parkForNextInstant(t, "pause")
				return nil

			case mapNode:
				t.frames = append(t.frames, mapFrame{f: n.f})
				cur = n.p

			case thenNode:
				t.frames = append(t.frames, thenFrame{next: n.q})
				cur = n.p

			case bindNode:
				t.frames = append(t.frames, bindFrame{f: n.f})
				cur = n.p

			case loopNode:
				t.frames = append(t.frames, &loopFrame{
					body:      n.body,
					remaining: n.times,
					forever:   n.forever,
				})
				cur = n.body

			case whileNode:
				t.frames = append(t.frames, &whileFrame{body: n.body})
				cur = n.body

			case emitNode:
				if n.sig.rt != rt {
					rt.failTask(t, foreignSignalError(n.sig, rt.instant))
					return nil
				}
				if err := rt.emit(t, n.sig, n.v); err != nil {
					return err
				}
				val = struct{}{}
				cur = nil

			case awaitImmediateNode:
				sig := n.sig
				if sig.rt != rt {
					rt.failTask(t, foreignSignalError(sig, rt.instant))
					return nil
				}
				switch {
				case sig.present && !t.presenceConsumed(sig.id, rt.instant):
					t.markPresenceConsumed(sig.id, rt.instant)
					val = sig.value
					cur = nil
				case sig.present:
					// Already observed this instant; wait for the next
					// emission instant.
					t.node = n
					rt.parkForNextInstant(t, "reawait")
					return nil
				default:
					t.node = n
					rt.parkOnSignal(t, sig, reasonAwaitPresence)
					return nil
				}

			case awaitNode:
				if n.sig.rt != rt {
					rt.failTask(t, foreignSignalError(n.sig, rt.instant))
					return nil
				}
				// The gathered value is only stable once the instant has
				// closed; delivery happens in finalizeInstant.
				rt.parkOnSignal(t, n.sig, reasonAwaitGather)
				return nil

			case awaitAbsenceNode:
				sig := n.sig
				if sig.rt != rt {
					rt.failTask(t, foreignSignalError(sig, rt.instant))
					return nil
				}
				switch {
				case sig.declaredAbsent && !t.absenceConsumed(sig.id, rt.instant):
					t.markAbsenceConsumed(sig.id, rt.instant)
					val = struct{}{}
					cur = nil
				case sig.declaredAbsent:
					// Already observed this instant; at most one absence
					// observation per signal per instant.
					t.node = n
					rt.parkForNextInstant(t, "reawait")
					return nil
				default:
					t.node = n
					rt.parkOnSignal(t, sig, reasonAwaitAbsence)
					return nil
				}

			case presentNode:
				sig := n.sig
				if sig.rt != rt {
					rt.failTask(t, foreignSignalError(sig, rt.instant))
					return nil
				}
				switch {
				case sig.present:
					cur = n.then
				case sig.declaredAbsent:
					// Absence already decided; the else branch runs at
					// the next instant.
					t.node = n.els
					rt.parkForNextInstant(t, "else")
					return nil
				default:
					t.node = n
					rt.parkOnSignal(t, sig, reasonAwaitDecision)
					return nil
				}

			case joinNode:
				rt.forkJoin(t, n)
				return nil

			default:
				rt.failTask(t, invalidNodeError(rt.instant))
				return nil
			}
			continue
		}

		// cur == nil: deliver val to the topmost frame.
		if len(t.frames) == 0 {
			rt.completeTask(t, val)
			return nil
		}

		switch f := t.frames[len(t.frames)-1].(type) {
		case mapFrame:
			t.frames = t.frames[:len(t.frames)-1]
			val = f.f(val)

		case thenFrame:
			t.frames = t.frames[:len(t.frames)-1]
			cur = f.next

		case bindFrame:
			t.frames = t.frames[:len(t.frames)-1]
			cur = f.f(val)

		case *loopFrame:
			f.steps++
			if f.steps > rt.maxLoopIterations {
				rt.failTask(t, NewInstantaneousLoopError(t.token, rt.instant, f.steps, rt.maxLoopIterations))
				return nil
			}
			if !f.forever {
				f.remaining--
				if f.remaining <= 0 {
					// val carries the final iteration's result.
					t.frames = t.frames[:len(t.frames)-1]
					continue
				}
			}
			cur = f.body

		case *whileFrame:
			s := val.(loopSignal)
			if s.exit {
				t.frames = t.frames[:len(t.frames)-1]
				val = s.v
				continue
			}
			f.steps++
			if f.steps > rt.maxLoopIterations {
				rt.failTask(t, NewInstantaneousLoopError(t.token, rt.instant, f.steps, rt.maxLoopIterations))
				return nil
			}
			cur = f.body
		}
	}
}

// forkJoin suspends t on a fresh joinState and schedules both branch
// tasks in the current instant, left before right.
func (rt *Runtime) forkJoin(t *task, n joinNode) {
	js := &joinState{parent: t.handle, pair: n.pair}

	left := rt.newTask(n.left, t.root)
	left.token = t.token + "/L"
	left.parentJoin = js
	left.branch = 0

	right := rt.newTask(n.right, t.root)
	right.token = t.token + "/R"
	right.parentJoin = js
	right.branch = 1

	js.handles = [2]ProcessHandle{left.handle, right.handle}
	t.join = js
	t.status = statusSuspended
	t.reason = reasonAwaitJoin

	rt.ready.push(left.handle)
	rt.ready.push(right.handle)
	rt.record(TraceFork, t.token, "", "")
}

// completeTask terminates t with result. A branch task stores its result
// in the parent's joinState and, as the second finisher, readies the
// parent in the same instant; a top-level task reports a completion.
func (rt *Runtime) completeTask(t *task, result any) {
	rt.tasks.remove(t.handle)
	t.status = statusDone
	rt.record(TraceComplete, t.token, "", "")

	if js := t.parentJoin; js != nil {
		js.results[t.branch] = result
		js.done[t.branch] = true
		if js.done[0] && js.done[1] {
			parent, ok := rt.tasks.get(js.parent)
			if !ok {
				return
			}
			parent.join = nil
			parent.resumeVal = js.pair(js.results[0], js.results[1])
			parent.status = statusPending
			parent.reason = reasonNone
			rt.ready.push(parent.handle)
			rt.record(TraceWake, parent.token, "", "join")
		}
		return
	}

	rt.completed = append(rt.completed, Completion{
		Handle: t.handle,
		Token:  t.token,
		Value:  result,
	})
}

// failTask terminates the whole process tree t belongs to and reports the
// error on the registered top-level handle. Unrelated processes are
// untouched; only fatal scheduler errors abort the instant itself.
func (rt *Runtime) failTask(t *task, err error) {
	rootToken := t.token
	if root, ok := rt.tasks.get(t.root); ok {
		rootToken = root.token
	}
	rootHandle := t.root

	rt.logger.Warn("process failed",
		"process", rootToken,
		"instant", rt.instant,
		"error", err,
	)
	rt.record(TraceFail, rootToken, "", err.Error())
	rt.killTree(rootHandle)

	rt.completed = append(rt.completed, Completion{
		Handle: rootHandle,
		Token:  rootToken,
		Err:    err,
	})
}

// killTree terminates the task for h and, recursively, its join branch
// descendants. Waiter sets and queues are not scrubbed: their entries go
// stale with the slab slot generation and are skipped when popped.
func (rt *Runtime) killTree(h ProcessHandle) {
	t, ok := rt.tasks.get(h)
	if !ok {
		return
	}
	if t.join != nil {
		rt.killTree(t.join.handles[0])
		rt.killTree(t.join.handles[1])
	}
	rt.tasks.remove(h)
	t.status = statusDone
}

// parkForNextInstant suspends t until the next instant.
func (rt *Runtime) parkForNextInstant(t *task, why string) {
	t.status = statusSuspended
	t.reason = reasonEndOfInstant
	rt.nextInstant = append(rt.nextInstant, t.handle)
	rt.record(TracePark, t.token, "", why)
}

// parkOnSignal suspends t in one of sig's waiter sets.
func (rt *Runtime) parkOnSignal(t *task, sig *signalCore, reason suspendReason) {
	t.status = statusSuspended
	t.reason = reason
	t.awaitSig = sig

	var why string
	switch reason {
	case reasonAwaitPresence:
		sig.presenceWaiters = append(sig.presenceWaiters, t.handle)
		why = "presence"
	case reasonAwaitAbsence:
		sig.absenceWaiters = append(sig.absenceWaiters, t.handle)
		why = "absence"
	case reasonAwaitDecision:
		sig.decisionWaiters = append(sig.decisionWaiters, t.handle)
		why = "decision"
	case reasonAwaitGather:
		sig.gatherWaiters = append(sig.gatherWaiters, t.handle)
		why = "gather"
	}
	rt.record(TracePark, t.token, sig.name, why)
}

// emit folds v into sig for this instant and, on the first emission,
// wakes the signal's presence and decision waiters into the current
// instant's ready queue.
//
// Emitting a signal the current instant has already declared absent is a
// contradiction in the process graph: the instant's fixpoint vouched for
// the absence. That is fatal (DeadlockedAwait).
func (rt *Runtime) emit(t *task, sig *signalCore, v any) error {
	if sig.declaredAbsent {
		return NewDeadlockedAwaitError(t.token, sig.name, rt.instant)
	}

	first := !sig.present
	sig.applyEmission(v)
	rt.record(TraceEmit, t.token, sig.name, "")
	rt.logger.Debug("signal emitted",
		"signal", sig.name,
		"process", t.token,
		"instant", rt.instant,
		"emissions", sig.emissions,
	)

	if first {
		rt.wakeWaiters(sig, &sig.presenceWaiters, "presence")
		rt.wakeWaiters(sig, &sig.decisionWaiters, "decision")
	}
	return nil
}

// wakeWaiters moves every live waiter in list into the ready queue and
// clears the list. Stale handles (killed tasks) are dropped.
func (rt *Runtime) wakeWaiters(sig *signalCore, list *[]ProcessHandle, why string) {
	for _, h := range *list {
		t, ok := rt.tasks.get(h)
		if !ok || t.awaitSig != sig {
			continue
		}
		t.awaitSig = nil
		t.status = statusPending
		t.reason = reasonNone
		rt.ready.push(h)
		rt.record(TraceWake, t.token, sig.name, why)
	}
	*list = (*list)[:0]
}

func foreignSignalError(sig *signalCore, instant uint64) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeUnknownHandle,
		Message: "signal belongs to a different runtime",
		Signal:  sig.name,
		Instant: instant,
	}
}

func invalidNodeError(instant uint64) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeUnknownHandle,
		Message: "process contains an invalid node (zero Process?)",
		Instant: instant,
	}
}

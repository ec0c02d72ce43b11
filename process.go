package instant

// procNode is the closed set of process shapes. Combinators build trees
// of these nodes; the scheduler evaluates them with a type switch rather
// than virtual dispatch through captured closures (CP-4: no unbounded
// ownership graphs).
type procNode interface {
	node()
}

type valueNode struct{ v any }

type pauseNode struct{}

type mapNode struct {
	p procNode
	f func(any) any
}

type thenNode struct{ p, q procNode }

type bindNode struct {
	p procNode
	f func(any) procNode
}

type joinNode struct {
	left, right procNode
	pair        func(l, r any) any
}

type loopNode struct {
	body    procNode
	times   int
	forever bool
}

type whileNode struct{ body procNode }

type emitNode struct {
	sig *signalCore
	v   any
}

type awaitImmediateNode struct{ sig *signalCore }

type awaitNode struct{ sig *signalCore }

type awaitAbsenceNode struct{ sig *signalCore }

type presentNode struct {
	sig       *signalCore
	then, els procNode
}

func (valueNode) node()          {}
func (pauseNode) node()          {}
func (mapNode) node()            {}
func (thenNode) node()           {}
func (bindNode) node()           {}
func (joinNode) node()           {}
func (loopNode) node()           {}
func (whileNode) node()          {}
func (emitNode) node()           {}
func (awaitImmediateNode) node() {}
func (awaitNode) node()          {}
func (awaitAbsenceNode) node()   {}
func (presentNode) node()        {}

// loopSignal is the erased form of LoopStatus used by the scheduler.
type loopSignal struct {
	exit bool
	v    any
}

// mustNode rejects zero Process operands at construction, where the bug
// is, instead of letting a nil node surface mid-instant.
func mustNode(n procNode) procNode {
	if n == nil {
		panic("instant: combinator applied to zero Process")
	}
	return n
}

// mustCore rejects zero Signal operands the same way.
func mustCore(c *signalCore) *signalCore {
	if c == nil {
		panic("instant: combinator applied to zero Signal")
	}
	return c
}

// Process is a composable description of a reactive computation that
// terminates with a value of type T. A Process is inert: registering it
// with a Runtime creates the task that actually executes it, so the same
// Process value can be registered any number of times.
//
// The zero Process is invalid; build processes with the combinators in
// this package.
type Process[T any] struct {
	n procNode
}

// AnyProcess is the type-erased view of a Process accepted by
// Runtime.Register. Every Process[T] implements it.
type AnyProcess interface {
	proc() procNode
}

func (p Process[T]) proc() procNode { return p.n }

// Pair holds the results of both branches of a Join.
type Pair[A, B any] struct {
	First  A
	Second B
}

// LoopStatus directs a While loop after each body termination: Continue
// restarts the body, Exit terminates the loop with a value.
type LoopStatus[T any] struct {
	exit bool
	v    T
}

// Continue restarts the enclosing While loop.
func Continue[T any]() LoopStatus[T] { return LoopStatus[T]{} }

// Exit terminates the enclosing While loop with v.
func Exit[T any](v T) LoopStatus[T] { return LoopStatus[T]{exit: true, v: v} }

// Value terminates immediately with v, consuming no instant.
func Value[T any](v T) Process[T] {
	return Process[T]{n: valueNode{v: v}}
}

// Pause suspends for exactly one instant, then terminates.
func Pause() Process[struct{}] {
	return Process[struct{}]{n: pauseNode{}}
}

// Map runs p to termination, then applies f to its result without
// consuming an extra instant.
func Map[A, B any](p Process[A], f func(A) B) Process[B] {
	return Process[B]{n: mapNode{
		p: mustNode(p.n),
		f: func(v any) any { return f(v.(A)) },
	}}
}

// Then runs p to termination, discards its result, and runs q. If p
// terminated without consuming the current instant, q starts in the same
// instant; otherwise q starts in the instant p terminated in.
func Then[A, B any](p Process[A], q Process[B]) Process[B] {
	return Process[B]{n: thenNode{p: mustNode(p.n), q: mustNode(q.n)}}
}

// Bind runs p to termination, feeds its result to f, and continues with
// the process f returns. Like Then, the continuation starts in the same
// instant when p was instantaneous.
func Bind[A, B any](p Process[A], f func(A) Process[B]) Process[B] {
	return Process[B]{n: bindNode{
		p: mustNode(p.n),
		f: func(v any) procNode { return f(v.(A)).n },
	}}
}

// Join runs p and q in parallel: both branches advance every instant, and
// the join terminates in the instant the later branch terminates,
// yielding both results. A branch that finishes early is held, never
// re-stepped, until its sibling catches up.
func Join[A, B any](p Process[A], q Process[B]) Process[Pair[A, B]] {
	return Process[Pair[A, B]]{n: joinNode{
		left:  mustNode(p.n),
		right: mustNode(q.n),
		pair:  func(l, r any) any { return Pair[A, B]{First: l.(A), Second: r.(B)} },
	}}
}

// Loop restarts body after each termination, indefinitely. A Loop never
// terminates with a value; a body that terminates without consuming the
// instant trips the runtime's iteration cap and fails the process with
// an InstantaneousLoop error.
func Loop[T any](body Process[T]) Process[struct{}] {
	return Process[struct{}]{n: loopNode{body: mustNode(body.n), forever: true}}
}

// Repeat restarts body after each termination, n times in total, and
// terminates with the final iteration's result. Repeat with n <= 0
// terminates immediately with the zero value of T.
func Repeat[T any](body Process[T], n int) Process[T] {
	if n <= 0 {
		var zero T
		return Value(zero)
	}
	return Process[T]{n: loopNode{body: mustNode(body.n), times: n}}
}

// While restarts body while it yields Continue and terminates with v when
// it yields Exit(v). The instantaneous-loop cap applies exactly as for
// Loop.
func While[T any](body Process[LoopStatus[T]]) Process[T] {
	erased := mapNode{
		p: mustNode(body.n),
		f: func(v any) any {
			s := v.(LoopStatus[T])
			return loopSignal{exit: s.exit, v: s.v}
		},
	}
	return Process[T]{n: whileNode{body: erased}}
}

// Emit marks s present for the current instant, combining v with any
// value already emitted this instant, wakes the signal's presence
// waiters, and terminates immediately.
func Emit[T any](s Signal[T], v T) Process[struct{}] {
	return Process[struct{}]{n: emitNode{sig: mustCore(s.core), v: v}}
}

// AwaitImmediate suspends until s is present and terminates with the
// value observed at that moment. If s is already present in the current
// instant, it terminates in the same instant. A process observes a given
// signal's presence at most once per instant; a second AwaitImmediate of
// the same signal in the same instant waits for the next one.
func AwaitImmediate[T any](s Signal[T]) Process[T] {
	return Process[T]{n: awaitImmediateNode{sig: mustCore(s.core)}}
}

// Await suspends until an instant in which s is present, then terminates
// at the start of the following instant with the final combined value of
// the emission instant. Unlike AwaitImmediate, the value is stable: every
// emission of the instant has already been folded in.
func Await[T any](s Signal[T]) Process[T] {
	return Process[T]{n: awaitNode{sig: mustCore(s.core)}}
}

// AwaitAbsence suspends until an instant concludes with s never having
// been emitted, then terminates. Absence is only decidable at the end of
// an instant, so the earliest possible termination is at the close of
// the current instant.
func AwaitAbsence[T any](s Signal[T]) Process[struct{}] {
	return Process[struct{}]{n: awaitAbsenceNode{sig: mustCore(s.core)}}
}

// Present branches on the presence of s: if s is present this instant,
// then runs in the same instant; if the instant ends with s absent, els
// runs at the next instant. The delayed else branch is what keeps the
// decision causal - absence cannot be observed before the instant closes.
func Present[T, A any](s Signal[T], then, els Process[A]) Process[A] {
	return Process[A]{n: presentNode{sig: mustCore(s.core), then: mustNode(then.n), els: mustNode(els.n)}}
}

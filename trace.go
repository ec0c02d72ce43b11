package instant

import "sync"

// TraceKind labels a trace event.
type TraceKind string

const (
	// TraceRegister: a top-level process was registered.
	TraceRegister TraceKind = "register"
	// TraceInstantBegin: an instant started resolving.
	TraceInstantBegin TraceKind = "instant_begin"
	// TraceInstantEnd: an instant finished resolving.
	TraceInstantEnd TraceKind = "instant_end"
	// TraceResume: a task was popped from the ready queue and stepped.
	TraceResume TraceKind = "resume"
	// TraceEmit: a signal was emitted.
	TraceEmit TraceKind = "emit"
	// TraceWake: a parked task became runnable (detail says why).
	TraceWake TraceKind = "wake"
	// TracePark: a task suspended (detail says why).
	TracePark TraceKind = "park"
	// TraceFork: a join forked its branch tasks.
	TraceFork TraceKind = "fork"
	// TraceComplete: a task terminated with a value.
	TraceComplete TraceKind = "complete"
	// TraceFail: a process tree was terminated by a scheduler error.
	TraceFail TraceKind = "fail"
	// TraceKill: a process tree was killed by the host.
	TraceKill TraceKind = "kill"
)

// TraceEvent is one step of a runtime's execution history.
//
// Seq comes from the runtime's logical clock (CP-1): strictly increasing,
// so two traces of the same graph can be compared event by event. Process
// is the token of the task involved; join branches carry their parent's
// token with a /L or /R suffix per nesting level.
type TraceEvent struct {
	Seq     int64     `json:"seq"`
	Instant uint64    `json:"instant"`
	Kind    TraceKind `json:"kind"`
	Process string    `json:"process,omitempty"`
	Signal  string    `json:"signal,omitempty"`
	Detail  string    `json:"detail,omitempty"`
}

// Recorder receives trace events as the runtime produces them.
// Implementations must not call back into the Runtime.
type Recorder interface {
	Record(ev TraceEvent)
}

// MemoryRecorder collects trace events in memory.
//
// Thread-safety: safe for concurrent use, though the runtime records
// from its single scheduling goroutine.
type MemoryRecorder struct {
	mu     sync.Mutex
	events []TraceEvent
}

// NewMemoryRecorder creates an empty recorder.
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{}
}

// Record implements Recorder.
func (r *MemoryRecorder) Record(ev TraceEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of everything recorded so far.
func (r *MemoryRecorder) Events() []TraceEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]TraceEvent, len(r.events))
	copy(out, r.events)
	return out
}

// Reset discards all recorded events.
func (r *MemoryRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = r.events[:0]
}

// record stamps and forwards a trace event. With no recorder attached it
// must stay cheap: no clock draw, no allocation.
func (rt *Runtime) record(kind TraceKind, process, signal, detail string) {
	if rt.recorder == nil {
		return
	}
	rt.recorder.Record(TraceEvent{
		Seq:     rt.clock.Next(),
		Instant: rt.instant,
		Kind:    kind,
		Process: process,
		Signal:  signal,
		Detail:  detail,
	})
}

package instant

// Report describes one completed instant.
type Report struct {
	// Instant is the number of the instant that ran (0-based).
	Instant uint64

	// Completed lists the top-level processes that terminated this
	// instant, in termination order.
	Completed []Completion

	// StillActive is false when the ready queue, every waiter set, and
	// the next-instant schedule are all empty: no registered process
	// remains in any form.
	StillActive bool
}

// Completion is the terminal outcome of one registered process.
//
// Exactly one of Value and Err is meaningful: Err is set only for
// scheduler-imposed failures (for example InstantaneousLoop). A process
// that computes a domain error still terminates with that error as its
// Value; composition treats it like any other result, and inspecting it
// is the host's business.
type Completion struct {
	// Handle is the registered process's handle.
	Handle ProcessHandle

	// Token is the process token minted at registration.
	Token string

	// Value is the process's terminal value.
	Value any

	// Err is the scheduler error that terminated the process, if any.
	Err error
}

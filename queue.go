package instant

// readyQueue is the FIFO queue of task handles runnable in the current
// instant.
//
// The queue is unbounded so cascading wakes can enqueue arbitrarily many
// tasks without blocking. It needs no locking: all pushes and pops happen
// inside the single-threaded fixpoint loop (CP-2).
type readyQueue struct {
	handles []ProcessHandle
}

// newReadyQueue creates an empty ready queue.
func newReadyQueue() *readyQueue {
	return &readyQueue{
		handles: make([]ProcessHandle, 0, 64), // Pre-allocate for typical graphs
	}
}

// push adds a handle to the back of the queue.
func (q *readyQueue) push(h ProcessHandle) {
	q.handles = append(q.handles, h)
}

// pop removes and returns the front handle.
// Returns (0, false) if the queue is empty.
func (q *readyQueue) pop() (ProcessHandle, bool) {
	if len(q.handles) == 0 {
		return 0, false
	}

	h := q.handles[0]

	// Reset the slice when draining the last element so the backing
	// array's front slots are reused instead of leaking behind the
	// reslice under steady load.
	if len(q.handles) == 1 {
		q.handles = q.handles[:0]
	} else {
		q.handles = q.handles[1:]
	}

	return h, true
}

// len returns the current queue length.
func (q *readyQueue) len() int {
	return len(q.handles)
}

package instant

// ProcessHandle identifies a task registered with a Runtime.
//
// Handles implement CP-4: tasks, waiter sets, and reports refer to tasks
// by handle, never by direct pointer ownership. A handle encodes a slot
// index and a generation counter, so a handle left over from a removed
// task can never alias a task that later reuses the slot.
//
// The zero handle is never valid.
type ProcessHandle uint64

const handleIndexBits = 32

func makeHandle(idx, gen uint32) ProcessHandle {
	return ProcessHandle(uint64(gen)<<handleIndexBits | uint64(idx))
}

func (h ProcessHandle) index() uint32 {
	return uint32(h)
}

func (h ProcessHandle) generation() uint32 {
	return uint32(h >> handleIndexBits)
}

// slab stores live tasks in reusable slots addressed by ProcessHandle.
//
// Removal bumps the slot generation, invalidating every handle minted for
// the previous occupant. Freed slots are recycled LIFO.
type slab struct {
	slots []slabSlot
	free  []uint32
	live  int
}

type slabSlot struct {
	gen  uint32
	task *task
}

func newSlab() *slab {
	return &slab{}
}

// insert stores t and returns its handle. The handle is also written to
// t.handle so the task knows its own identity.
func (s *slab) insert(t *task) ProcessHandle {
	var idx uint32
	if n := len(s.free); n > 0 {
		idx = s.free[n-1]
		s.free = s.free[:n-1]
	} else {
		s.slots = append(s.slots, slabSlot{gen: 1})
		idx = uint32(len(s.slots) - 1)
	}

	slot := &s.slots[idx]
	slot.task = t
	s.live++

	h := makeHandle(idx, slot.gen)
	t.handle = h
	return h
}

// get returns the task for h, or (nil, false) if h is stale or unknown.
func (s *slab) get(h ProcessHandle) (*task, bool) {
	idx := h.index()
	if idx >= uint32(len(s.slots)) {
		return nil, false
	}
	slot := &s.slots[idx]
	if slot.task == nil || slot.gen != h.generation() {
		return nil, false
	}
	return slot.task, true
}

// remove frees the slot for h. Returns false if h is stale or unknown.
// The slot generation is bumped so outstanding copies of h go stale.
func (s *slab) remove(h ProcessHandle) bool {
	idx := h.index()
	if idx >= uint32(len(s.slots)) {
		return false
	}
	slot := &s.slots[idx]
	if slot.task == nil || slot.gen != h.generation() {
		return false
	}

	// Nil out the task pointer so the GC can collect its frames.
	slot.task = nil
	slot.gen++
	s.free = append(s.free, idx)
	s.live--
	return true
}

// len returns the number of live tasks.
func (s *slab) len() int {
	return s.live
}

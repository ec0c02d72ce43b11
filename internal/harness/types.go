package harness

// InstantRecord summarizes one resolved instant.
type InstantRecord struct {
	// Instant is the zero-based instant number.
	Instant uint64 `json:"instant"`

	// Completed lists the top-level processes that terminated in this
	// instant, in completion order.
	Completed []CompletionRecord `json:"completed"`

	// Signals maps each signal present this instant to its
	// end-of-instant value. Absent signals are not listed.
	Signals map[string]any `json:"signals,omitempty"`

	// StillActive reports whether live processes remained after the
	// instant resolved.
	StillActive bool `json:"still_active"`
}

// CompletionRecord is one process termination.
// Exactly one of Value and Error is meaningful: a process that the
// scheduler failed carries the runtime error code instead of a value.
type CompletionRecord struct {
	Process string `json:"process"`
	Value   any    `json:"value,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall success: every assertion held.
	Pass bool `json:"pass"`

	// Instants holds one record per instant run, in order.
	Instants []InstantRecord `json:"instants"`

	// Errors contains assertion failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for scenario execution.
func NewResult() *Result {
	return &Result{
		Pass:     true,
		Instants: []InstantRecord{},
		Errors:   []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// recordAt returns the record for the given instant number.
func (r *Result) recordAt(instant int) (*InstantRecord, bool) {
	for i := range r.Instants {
		if r.Instants[i].Instant == uint64(instant) {
			return &r.Instants[i], true
		}
	}
	return nil, false
}

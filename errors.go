package instant

import (
	"errors"
	"fmt"
)

// RuntimeError represents an error detected while configuring or running
// the engine.
//
// Runtime errors include:
//   - Invalid combine: signal created with a nil combine function
//   - Resume after termination: a terminated task was resumed
//   - Instantaneous loop: a loop body made no instant-consuming step
//   - Deadlocked await: an emission contradicted a declared absence
//   - Unknown handle: an operation referenced a dead or foreign handle
//
// RuntimeError includes structured fields for diagnostics and recovery.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Process identifies the affected process token, if any.
	Process string

	// Signal identifies the affected signal name, if any.
	Signal string

	// Instant is the logical instant in which the error was detected.
	Instant uint64

	// Details contains additional context.
	Details map[string]string
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeInvalidCombine indicates a signal was created with a nil
	// combine function.
	ErrCodeInvalidCombine RuntimeErrorCode = "INVALID_COMBINE"

	// ErrCodeResumeTerminated indicates a terminated task was resumed.
	ErrCodeResumeTerminated RuntimeErrorCode = "RESUME_AFTER_TERMINATION"

	// ErrCodeInstantaneousLoop indicates a loop body completed more times
	// in one instant than the configured cap allows.
	ErrCodeInstantaneousLoop RuntimeErrorCode = "INSTANTANEOUS_LOOP"

	// ErrCodeDeadlockedAwait indicates a signal was emitted after the
	// current instant already declared it absent.
	ErrCodeDeadlockedAwait RuntimeErrorCode = "DEADLOCKED_AWAIT"

	// ErrCodeUnknownHandle indicates an operation referenced a handle
	// that is not registered with this runtime.
	ErrCodeUnknownHandle RuntimeErrorCode = "UNKNOWN_HANDLE"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.Process != "" && e.Signal != "" {
		return fmt.Sprintf("%s: %s (process=%s, signal=%s)", e.Code, e.Message, e.Process, e.Signal)
	}
	if e.Process != "" {
		return fmt.Sprintf("%s: %s (process=%s)", e.Code, e.Message, e.Process)
	}
	if e.Signal != "" {
		return fmt.Sprintf("%s: %s (signal=%s)", e.Code, e.Message, e.Signal)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsInvalidCombineError returns true if the error is an invalid combine
// configuration error. Uses errors.As to handle wrapped errors.
func IsInvalidCombineError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeInvalidCombine
	}
	return false
}

// IsResumeAfterTerminationError returns true if the error is a resume
// after termination invariant violation. Uses errors.As to handle
// wrapped errors.
func IsResumeAfterTerminationError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeResumeTerminated
	}
	return false
}

// IsInstantaneousLoopError returns true if the error is an instantaneous
// loop guard trip. Uses errors.As to handle wrapped errors.
func IsInstantaneousLoopError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeInstantaneousLoop
	}
	return false
}

// IsDeadlockedAwaitError returns true if the error is an absence
// contradiction. Uses errors.As to handle wrapped errors.
func IsDeadlockedAwaitError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeDeadlockedAwait
	}
	return false
}

// IsUnknownHandleError returns true if the error is an unknown handle
// error. Uses errors.As to handle wrapped errors.
func IsUnknownHandleError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeUnknownHandle
	}
	return false
}

// NewInvalidCombineError creates a RuntimeError for a nil combine function.
func NewInvalidCombineError(signal string) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeInvalidCombine,
		Message: "combine function must not be nil",
		Signal:  signal,
	}
}

// NewResumeAfterTerminationError creates a RuntimeError for resuming a
// terminated task.
func NewResumeAfterTerminationError(token string, instant uint64) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeResumeTerminated,
		Message: "terminated process resumed",
		Process: token,
		Instant: instant,
	}
}

// NewInstantaneousLoopError creates a RuntimeError for a loop body that
// terminated more times in one instant than the configured cap.
func NewInstantaneousLoopError(token string, instant uint64, iterations, cap int) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeInstantaneousLoop,
		Message: fmt.Sprintf("loop body completed %d times without consuming the instant (cap %d)", iterations, cap),
		Process: token,
		Instant: instant,
		Details: map[string]string{
			"iterations": fmt.Sprintf("%d", iterations),
			"cap":        fmt.Sprintf("%d", cap),
		},
	}
}

// NewDeadlockedAwaitError creates a RuntimeError for an emission that
// contradicts an absence already declared this instant.
func NewDeadlockedAwaitError(token, signal string, instant uint64) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeDeadlockedAwait,
		Message: "signal emitted after absence was declared this instant",
		Process: token,
		Signal:  signal,
		Instant: instant,
	}
}

// NewUnknownHandleError creates a RuntimeError for an operation on a
// handle with no live task.
func NewUnknownHandleError(handle ProcessHandle) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeUnknownHandle,
		Message: "no live process for handle",
		Details: map[string]string{
			"handle": fmt.Sprintf("%d", handle),
		},
	}
}

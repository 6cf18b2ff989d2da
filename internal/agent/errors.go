package agent

import "errors"

// Sentinel errors, checked with errors.Is.
var (
	// ErrModelInvocation indicates the underlying model call failed. This is a
	// boundary failure that escalates to the caller; nothing is persisted.
	ErrModelInvocation = errors.New("model invocation failed")

	// ErrExecutionInFlight indicates another execution already holds the
	// per-thread lock. The caller should retry after the running execution
	// completes.
	ErrExecutionInFlight = errors.New("execution already in flight for this thread")
)

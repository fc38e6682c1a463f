package source

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced by queriers, cursors and renderers. The reader
// layer distinguishes three classes: end-of-stream, timeouts (re-check
// cancellation and keep waiting), and transient faults that earn a retry.
var (
	// ErrNoMoreItems signals normal end of a cursor's result stream.
	ErrNoMoreItems = errors.New("no more items")

	// ErrTimedOut signals a bounded cursor wait elapsed with nothing to
	// return yet.
	ErrTimedOut = errors.New("operation timed out")

	// Transient faults. Sources wrap the underlying cause with one of
	// these so the reader can classify without knowing source internals.
	ErrUnavailable        = errors.New("source unavailable or busy")
	ErrConnectionAborted  = errors.New("connection aborted")
	ErrResourceLocked     = errors.New("resource locked")
	ErrShutdownInProgress = errors.New("shutdown in progress")
	ErrNotReady           = errors.New("source not ready")

	// ErrAccessDenied is treated as transient: on live systems access
	// checks can fail spuriously under load and succeed on retry.
	ErrAccessDenied = errors.New("access denied")
)

// IsTransient reports whether err is worth retrying with backoff.
// Cancellation and end-of-stream are never transient.
func IsTransient(err error) bool {
	for _, t := range []error{
		ErrUnavailable,
		ErrConnectionAborted,
		ErrResourceLocked,
		ErrShutdownInProgress,
		ErrNotReady,
		ErrTimedOut,
		ErrAccessDenied,
	} {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}

// BufferSizeError reports that a caller-supplied buffer was too small.
// The caller is expected to grow to Needed and retry once.
type BufferSizeError struct {
	Needed int
}

func (e *BufferSizeError) Error() string {
	return fmt.Sprintf("buffer too small, need %d bytes", e.Needed)
}

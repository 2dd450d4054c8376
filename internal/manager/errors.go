package manager

import (
	"context"
	"errors"

	"detectd/internal/ensemble"
)

// duplicateIDError signals a Register call with an already-present ID.
type duplicateIDError struct{ id string }

func (e duplicateIDError) Error() string { return "duplicate detector id: " + e.id }

// IsDuplicateID reports whether err indicates a duplicate registration.
func IsDuplicateID(err error) bool {
	var t duplicateIDError
	return errors.As(err, &t)
}

// notFoundError signals a detector ID absent from the registry.
type notFoundError struct{ id string }

func (e notFoundError) Error() string { return "detector not found: " + e.id }

// ErrDetectorNotFound constructs a notFoundError.
func ErrDetectorNotFound(id string) error { return notFoundError{id: id} }

// IsNotFound reports whether the error indicates a missing detector id.
func IsNotFound(err error) bool {
	var t notFoundError
	return errors.As(err, &t)
}

// concurrentLoadError signals a load requested while one is in flight.
type concurrentLoadError struct{ id string }

func (e concurrentLoadError) Error() string { return "load already in progress: " + e.id }

// IsConcurrentLoad reports whether err indicates a duplicate in-flight load.
func IsConcurrentLoad(err error) bool {
	var t concurrentLoadError
	return errors.As(err, &t)
}

// loadFailedError wraps a detector's load failure. Recoverable: the next
// Load call retries from the error state.
type loadFailedError struct {
	id    string
	cause error
}

func (e loadFailedError) Error() string { return "load detector " + e.id + ": " + e.cause.Error() }
func (e loadFailedError) Unwrap() error { return e.cause }

// IsLoadFailed reports whether err is a detector load failure.
func IsLoadFailed(err error) bool {
	var t loadFailedError
	return errors.As(err, &t)
}

// notReadyError signals predict dispatched to a detector that is not ready.
type notReadyError struct {
	id    string
	state DetectorState
}

func (e notReadyError) Error() string {
	return "detector " + e.id + " not ready (state " + string(e.state) + ")"
}

// IsNotReady reports whether err indicates a non-ready detector.
func IsNotReady(err error) bool {
	var t notReadyError
	return errors.As(err, &t)
}

// IsNoValidResults reports whether every detector in a run failed.
func IsNoValidResults(err error) bool {
	return errors.Is(err, ensemble.ErrNoValidResults)
}

// IsCancelled reports whether a run was aborted by its caller.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled)
}

// Package asyncflow provides ES2022-inspired error types with cause chain support,
// adapted to the error kinds this runtime raises.
package asyncflow

import (
	"errors"
	"fmt"
)

// ErrUninitializedRead is returned when a reader observes an epoch that
// concluded as written while its cell holds no value (e.g. after the cell's
// last strong reference was released). A write or emplace token dropped
// without committing is reported as a CancelledError instead.
var ErrUninitializedRead = errors.New("asyncflow: read of uninitialized value")

// ErrCancelled is the sentinel matched by errors.Is on a CancelledError.
var ErrCancelled = errors.New("asyncflow: cancelled")

// CancelledError reports that a reader observed an epoch in its error state
// because its writer was dropped without committing, or was itself cancelled.
// It satisfies errors.Is(err, ErrCancelled) and unwraps to an optional
// underlying cause.
type CancelledError struct {
	// Cause is the error that triggered cancellation, if any. May be nil for
	// a bare dropped-write-token cancellation.
	Cause error
}

// Error implements the error interface.
func (e *CancelledError) Error() string {
	if e.Cause == nil {
		return "asyncflow: cancelled"
	}
	return fmt.Sprintf("asyncflow: cancelled: %s", e.Cause.Error())
}

// Unwrap returns the underlying cause for use with [errors.Is] and [errors.As].
func (e *CancelledError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is ErrCancelled, so that a CancelledError always
// matches the sentinel regardless of its wrapped Cause.
func (e *CancelledError) Is(target error) bool {
	return target == ErrCancelled
}

// TaskPanicError reports that a task's goroutine recovered a panic. The
// task's goroutine logs it via the task's Logger (or the package default
// logger), records this error as the task's result, and then re-panics the
// original value on a freshly spawned goroutine: Go has no process-wide
// uncaught-exception hook to emulate std::terminate directly, so surfacing
// the panic on a goroutine whose only job is to crash the process is the
// closest equivalent.
type TaskPanicError struct {
	// Value is the recovered panic value.
	Value any
}

// Error implements the error interface.
func (e *TaskPanicError) Error() string {
	return fmt.Sprintf("asyncflow: task panic: %v", e.Value)
}

// Unwrap returns the underlying error if the panic value is an error type.
// Returns nil if the panic value is not an error (e.g. a string).
func (e *TaskPanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// TokenMisuseError reports a programming error in how a token or task was
// used: calling Emplace twice on an emplace token, emplacing into an
// already-constructed cell, or committing a write or mutate token a second
// time or after it was released.
// The runtime is permitted to terminate on this class of error.
type TokenMisuseError struct {
	Cause   error
	Message string
}

// Error implements the error interface.
func (e *TokenMisuseError) Error() string {
	if e.Message == "" {
		return "asyncflow: token misuse"
	}
	return e.Message
}

// Unwrap returns the underlying cause for use with [errors.Is] and [errors.As].
func (e *TokenMisuseError) Unwrap() error {
	return e.Cause
}

// WrapError wraps an error with a message and optional cause chain.
func WrapError(message string, cause error) error {
	return fmt.Errorf("%s: %w", message, cause)
}

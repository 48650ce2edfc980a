package asyncflow

import (
	"weak"
)

// Async is a shared handle to a lazily-constructed cell plus its ordering
// queue. Copying an Async[T] value copies the handle, not the underlying
// storage: the cell and queue are shared-owned, and access tokens carry
// their own strong references so tokens may outlive the handle that
// created them.
type Async[T any] struct {
	cell  *cell[T]
	queue *epochQueue[T]
}

// New returns an empty, uninitialized Async[T]: its cell holds no value
// until a writer commits one.
func New[T any]() Async[T] {
	c := newCell[T]()
	q := newEpochQueue(c)
	q.initialize(false)
	return Async[T]{cell: c, queue: q}
}

// NewValue returns an Async[T] whose cell already holds v, with a single
// already-completed writer epoch.
func NewValue[T any](v T) Async[T] {
	c := newCellWithValue(v)
	q := newEpochQueue(c)
	q.initialize(true)
	return Async[T]{cell: c, queue: q}
}

// IsZero reports whether a is the zero Async[T] (never constructed via New
// or NewValue), useful for detecting an unset field.
func (a Async[T]) IsZero() bool {
	return a.cell == nil
}

// Read acquires a read token on the current tail epoch.
func (a Async[T]) Read() *ReadToken[T] {
	e := a.queue.createReadContext()
	return newReadToken(a.cell, a.queue, e)
}

// Write acquires a write token on a fresh (or the still-unbound bootstrap)
// epoch.
func (a Async[T]) Write() *WriteToken[T] {
	e := a.queue.createWriteContext()
	return newWriteToken(a.cell, a.queue, e)
}

// Mutate acquires a read-modify-write token: its Await returns the most
// recently committed value as the starting point, and its Commit writes the
// updated value into a new epoch.
func (a Async[T]) Mutate() *MutateToken[T] {
	pred, next := a.queue.createMutateContext()
	return newMutateToken(a.cell, a.queue, pred, next)
}

// Emplace acquires a single-shot in-place-construction token, legal only on
// an uninitialized cell.
func (a Async[T]) Emplace() *EmplaceToken[T] {
	e := a.queue.createWriteContext()
	return newEmplaceToken(a.cell, a.queue, e)
}

// Weak returns a weak reference to a's cell, for callers (e.g. a deferred
// view wrapping an externally owned value) that want to observe the cell
// without keeping it alive on their own.
func (a Async[T]) Weak() weak.Pointer[cell[T]] {
	return a.cell.weakRef()
}

// HasPendingWriters reports whether a's underlying epoch queue still has
// outstanding write work, useful for scheduler introspection/metrics.
func (a Async[T]) HasPendingWriters() bool {
	return a.queue.HasPendingWriters()
}

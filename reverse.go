package asyncflow

import (
	"context"
	"errors"
	"sync"
)

// ReverseValue accumulates contributions to a single gradient cell from
// potentially many upstream consumers, then exposes the accumulated total
// through the ordinary Async[T] read path once Finalize concludes the
// accumulation. Per spec.md §4.8, each contribution prepends a new earliest
// epoch onto the underlying queue and commits its running total through
// that epoch's own write token, rather than bypassing the epoch machinery
// with a bare mutex-guarded scalar — reverse-mode gradients are produced in
// the reverse of the order their corresponding forward values were
// computed, so "arrived before Finalize" is the only ordering guarantee
// that matters here, not wall-clock arrival order. The queue's tail epoch
// (fixed at construction) is reserved for Finalize's own commit, so Output
// stays unresolved until Finalize runs regardless of how many contributions
// landed first.
type ReverseValue[T Numeric] struct {
	mu    sync.Mutex
	total T
	acc   Async[T]
}

// NewReverseValue creates a gradient accumulator seeded at the zero value.
func NewReverseValue[T Numeric]() *ReverseValue[T] {
	return &ReverseValue[T]{acc: New[T]()}
}

// Input folds delta into the running total and prepends a fresh earliest
// epoch recording it: prependEpoch makes the new epoch the queue's head, so
// its write token binds immediately (no predecessor to wait on), and
// committing it collapses the chain straight back down via the same
// pruning pass every ordinary write relies on (epochqueue.go's
// pruneFrontLocked) — the queue never grows unbounded across many
// contributions.
func (r *ReverseValue[T]) Input(delta T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.total += delta
	e := r.acc.queue.prependEpoch()
	w := newWriteToken(r.acc.cell, r.acc.queue, e)
	// A just-prepended epoch is always the queue's head, so Await binds and
	// returns synchronously: this never parks.
	if err := w.Await(context.Background()); err != nil {
		w.Release()
		return
	}
	_ = w.Commit(r.total)
}

// AddAssign reads delta and folds it in. A cancelled upstream read
// contributes nothing rather than poisoning the accumulator, matching the
// pass-through-not-cancellation resolution used throughout this package's
// mutate semantics; any other read error still propagates.
func (r *ReverseValue[T]) AddAssign(ctx context.Context, delta Async[T]) error {
	v, err := delta.Read().Await(ctx)
	if err != nil {
		if isCancelled(err) {
			return nil
		}
		return err
	}
	r.Input(v)
	return nil
}

// SubAssign is AddAssign's subtraction counterpart.
func (r *ReverseValue[T]) SubAssign(ctx context.Context, delta Async[T]) error {
	v, err := delta.Read().Await(ctx)
	if err != nil {
		if isCancelled(err) {
			return nil
		}
		return err
	}
	r.Input(-v)
	return nil
}

// Finalize commits the accumulated total as the value observable through
// Output. It advances the queue defensively before claiming the tail
// epoch's write token: every Input call already prunes the chain back down
// to the tail as part of its own commit, but this guards against claiming a
// stale head if that invariant is ever violated by a future caller of
// prependEpoch. Further Input calls after Finalize still fold into total
// but are never observed by an already-resolved Output token.
func (r *ReverseValue[T]) Finalize(ctx context.Context) error {
	r.mu.Lock()
	v := r.total
	r.mu.Unlock()
	r.acc.queue.advance()
	w := r.acc.Write()
	if err := w.Await(ctx); err != nil {
		return err
	}
	return w.Commit(v)
}

// Output returns a read token on the finalized total.
func (r *ReverseValue[T]) Output() *ReadToken[T] {
	return r.acc.Read()
}

func isCancelled(err error) bool {
	var ce *CancelledError
	return errors.As(err, &ce)
}

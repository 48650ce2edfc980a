package asyncflow

import (
	"context"
	"sync"
)

// ReadToken is a move-only-by-convention RAII handle naming one read on one
// epoch. It must either be awaited exactly once (via Await) or released
// (explicitly, or implicitly by garbage collection never counts — callers
// must call Release if they never Await).
type ReadToken[T any] struct {
	c    *cell[T]
	q    *epochQueue[T]
	e    *epoch[T]
	once sync.Once
	done bool
}

func newReadToken[T any](c *cell[T], q *epochQueue[T], e *epoch[T]) *ReadToken[T] {
	c.addStrong()
	return &ReadToken[T]{c: c, q: q, e: e}
}

// Await blocks the calling goroutine until the token's epoch's writer has
// concluded, returning the committed value or an error (uninitialized /
// cancelled). The context allows the wait itself to be abandoned; the token
// is still released either way.
func (t *ReadToken[T]) Await(ctx context.Context) (T, error) {
	defer t.Release()
	var zero T

	ch := make(chan error, 1)
	ready, err := t.e.registerReader(reader{resume: ch})
	if !ready {
		err = awaitWake(ctx, ch)
	}
	if err != nil {
		return zero, err
	}
	v, constructed := t.c.snapshot()
	if !constructed {
		return zero, ErrUninitializedRead
	}
	return v, nil
}

// Maybe awaits like Await, but reports absence (uninitialized or cancelled)
// as ok=false rather than an error, per spec.md's "maybe" read semantics.
func (t *ReadToken[T]) Maybe(ctx context.Context) (value T, ok bool) {
	v, err := t.Await(ctx)
	if err != nil {
		var zero T
		return zero, false
	}
	return v, true
}

// Release is idempotent; it decrements the epoch's outstanding reader-token
// count and advances the owning queue if this was the last one, and
// releases this token's strong reference to the cell.
func (t *ReadToken[T]) Release() {
	t.once.Do(func() {
		t.done = true
		if t.e.releaseReaderToken() {
			t.q.advance()
		}
		t.c.releaseStrong()
	})
}

// WriteToken is a move-only-by-convention RAII handle naming one write on
// one epoch. Awaiting it suspends until the epoch is at the head and bound
// to this writer; Commit writes the value and concludes the epoch as
// written. Dropping the token without committing concludes the epoch as
// error (uninitialized), cancelling waiting readers per spec.md §7.
type WriteToken[T any] struct {
	c        *cell[T]
	q        *epochQueue[T]
	e        *epoch[T]
	once     sync.Once
	resolved bool
}

func newWriteToken[T any](c *cell[T], q *epochQueue[T], e *epoch[T]) *WriteToken[T] {
	c.addStrong()
	return &WriteToken[T]{c: c, q: q, e: e}
}

// Await blocks until this token's epoch is ready to be written (its
// predecessor has drained and this epoch has been bound as the active
// writer). Returns nil once bound, or the wait's error; the value is then
// written through t.Commit.
func (t *WriteToken[T]) Await(ctx context.Context) error {
	ch := make(chan error, 1)
	if !t.q.requestWrite(t.e, &reader{resume: ch}) {
		// Not our turn yet: the epoch isn't at the head. Park until the
		// queue's activateHeadWriterLocked binds and wakes us, once every
		// earlier epoch has fully drained.
		return awaitWake(ctx, ch)
	}
	return nil
}

// Commit writes v into the cell and concludes the epoch as written, waking
// any parked readers.
func (t *WriteToken[T]) Commit(v T) error {
	var committed bool
	t.once.Do(func() {
		t.resolved = true
		committed = true
		_ = t.c.overwrite(v)
		t.e.commitWriter()
		t.c.releaseStrong()
	})
	if !committed {
		return &TokenMisuseError{Message: "asyncflow: write token committed or released twice"}
	}
	t.q.advance()
	return nil
}

// Release cancels the write without committing: the epoch concludes as
// error/uninitialized, and any parked readers observe cancellation (strict)
// or absence (maybe), per spec.md §7/§8 scenario E. Idempotent.
func (t *WriteToken[T]) Release() {
	t.Fail(nil)
}

// Fail concludes the epoch as an error carrying cause, waking parked
// readers with it rather than the bare cancellation Release produces. Used
// by the arithmetic surface (ops.go) to propagate an operand read failure
// into the result's epoch instead of silently dropping it. Idempotent.
func (t *WriteToken[T]) Fail(cause error) {
	t.once.Do(func() {
		t.resolved = true
		t.e.failWriter(cause)
		t.c.releaseStrong()
	})
	t.q.advance()
}

// MutateToken behaves like a WriteToken whose initial value is the most
// recently committed value: internally it couples a read of the predecessor
// epoch (auto-released on commit) with a write on this epoch. Dropping a
// mutate token without committing is a pass-through (the existing committed
// value survives unchanged) rather than a cancellation — this is the
// resolved behavior for spec.md's open question on mutate-drop semantics.
type MutateToken[T any] struct {
	c        *cell[T]
	q        *epochQueue[T]
	e        *epoch[T]
	pred     *ReadToken[T]
	once     sync.Once
	resolved bool
}

func newMutateToken[T any](c *cell[T], q *epochQueue[T], pred *epoch[T], e *epoch[T]) *MutateToken[T] {
	c.addStrong()
	t := &MutateToken[T]{c: c, q: q, e: e}
	// pred == e only for a mutate on a value that has never had a writer:
	// there is no distinct predecessor epoch to read, so the read-modify-
	// write starts from the zero value instead of parking on itself.
	if pred != e {
		pred.addReaderToken()
		t.pred = newReadToken(c, q, pred)
	}
	return t
}

// Await blocks until the predecessor value is observable and this epoch is
// ready to be written, then returns the predecessor's value as the starting
// point for a read-modify-write.
func (t *MutateToken[T]) Await(ctx context.Context) (T, error) {
	var v T
	if t.pred != nil {
		var err error
		v, err = t.pred.Await(ctx)
		if err != nil {
			var zero T
			// Predecessor was never constructed: mutate still proceeds from
			// the zero value, matching a read-modify-write on an
			// uninitialized cell.
			if err == ErrUninitializedRead {
				v = zero
			} else {
				return zero, err
			}
		}
	}
	ch := make(chan error, 1)
	if !t.q.requestWrite(t.e, &reader{resume: ch}) {
		if err := awaitWake(ctx, ch); err != nil {
			return v, err
		}
	}
	return v, nil
}

// Commit writes the mutated value and concludes the epoch as written. If
// Await was never called, t.pred (the predecessor read token) is still
// outstanding and is released here so a caller that commits without first
// reading the predecessor's value doesn't leak the predecessor's strong
// cell reference and reader token.
func (t *MutateToken[T]) Commit(v T) error {
	var committed bool
	t.once.Do(func() {
		t.resolved = true
		committed = true
		if t.pred != nil {
			t.pred.Release()
		}
		_ = t.c.overwrite(v)
		t.e.commitWriter()
		t.c.releaseStrong()
	})
	if !committed {
		return &TokenMisuseError{Message: "asyncflow: mutate token committed or released twice"}
	}
	t.q.advance()
	return nil
}

// Release passes the existing committed value through unchanged rather
// than cancelling: a dropped mutate token must not destroy data the caller
// never intended to touch. A mutate token dropped without ever calling
// Await still holds a strong reference and reader token on its predecessor
// epoch (allocated by newMutateToken); releasing t.pred here avoids leaking
// that reference and stalling a later writer waiting on the predecessor to
// drain (spec.md §8 Scenario D).
func (t *MutateToken[T]) Release() {
	t.once.Do(func() {
		t.resolved = true
		if t.pred != nil {
			t.pred.Release()
		}
		v, constructed := t.c.snapshot()
		if !constructed {
			t.c.constructDefault()
			v, _ = t.c.snapshot()
		}
		_ = t.c.overwrite(v)
		t.e.commitWriter()
		t.c.releaseStrong()
	})
	t.q.advance()
}

// EmplaceToken performs a single-shot in-place construction of T on an
// uninitialized cell; using it twice is an error.
type EmplaceToken[T any] struct {
	c    *cell[T]
	q    *epochQueue[T]
	e    *epoch[T]
	once sync.Once
	used bool
}

func newEmplaceToken[T any](c *cell[T], q *epochQueue[T], e *epoch[T]) *EmplaceToken[T] {
	c.addStrong()
	return &EmplaceToken[T]{c: c, q: q, e: e}
}

// Await blocks until this token's epoch is ready to be written.
func (t *EmplaceToken[T]) Await(ctx context.Context) error {
	ch := make(chan error, 1)
	if !t.q.requestWrite(t.e, &reader{resume: ch}) {
		return awaitWake(ctx, ch)
	}
	return nil
}

// Emplace constructs the cell's value in place with v, concluding the
// epoch as written. Calling Emplace a second time returns a
// TokenMisuseError.
func (t *EmplaceToken[T]) Emplace(v T) error {
	var err error
	var ran bool
	t.once.Do(func() {
		ran = true
		t.used = true
		err = t.c.emplace(v)
		if err == nil {
			t.e.commitWriter()
		} else {
			t.e.failWriter(err)
		}
		t.c.releaseStrong()
	})
	if !ran {
		return &TokenMisuseError{Message: "asyncflow: emplace token used twice"}
	}
	t.q.advance()
	return err
}

// Release cancels an unused emplace token, concluding the epoch as error.
func (t *EmplaceToken[T]) Release() {
	t.once.Do(func() {
		t.used = true
		t.e.failWriter(nil)
		t.c.releaseStrong()
	})
	t.q.advance()
}

// overwrite writes v into the cell regardless of prior construction
// state, used by Write/Mutate commit paths (unlike emplace, which refuses a
// second construction — that single-shot guard belongs to EmplaceToken
// only).
func (c *cell[T]) overwrite(v T) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = v
	c.constructed.Store(true)
	return nil
}

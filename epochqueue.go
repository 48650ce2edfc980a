package asyncflow

import "sync"

// epochQueue is the FIFO of epochs for one value, enforcing writer→readers→
// next-writer causal ordering. Internally a singly-linked chain of epoch
// nodes under one mutex, with head/tail pointers.
type epochQueue[T any] struct {
	mu                  sync.Mutex
	cell                *cell[T]
	bootstrapped        bool
	initialWriterPending bool
	head, tail          *epoch[T]
}

// newEpochQueue creates an empty, uninitialized queue bound to cell c.
func newEpochQueue[T any](c *cell[T]) *epochQueue[T] {
	return &epochQueue[T]{cell: c}
}

// initialize establishes the initial epoch state before any readers or
// writers are created. valueInitialized is true if the cell already holds a
// value at construction time (the Async[T] initial-value constructor).
func (q *epochQueue[T]) initialize(valueInitialized bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.bootstrapped {
		return
	}
	q.bootstrapped = true
	q.initialWriterPending = !valueInitialized
	e := newEpoch(q, valueInitialized)
	q.head = e
	q.tail = e
}

// ensureInitialEpochLocked lazily bootstraps the queue for callers that
// never explicitly called initialize (defensive; initialize is always
// called by Async[T]'s constructors in practice).
func (q *epochQueue[T]) ensureInitialEpochLocked() {
	if q.bootstrapped {
		return
	}
	q.bootstrapped = true
	q.initialWriterPending = true
	e := newEpoch(q, false)
	q.head = e
	q.tail = e
}

// createReadContext registers a new reader token on the tail epoch and
// returns that epoch.
func (q *epochQueue[T]) createReadContext() *epoch[T] {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ensureInitialEpochLocked()
	e := q.tail
	e.addReaderToken()
	return e
}

// requestWrite is how a WriteToken/MutateToken/EmplaceToken asks to become
// e's writer: per spec.md §4.4, a write token's await is "ready" iff its
// epoch is at the head of the queue *and* bound to it. If e is already the
// head, this binds it immediately and returns ready=true. Otherwise it
// records the request and returns ready=false; the caller must park on r —
// activateHeadWriterLocked wakes it once e reaches the head.
func (q *epochQueue[T]) requestWrite(e *epoch[T], r *reader) (ready bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e.mu.Lock()
	defer e.mu.Unlock()
	if q.head == e {
		return e.bindWriterLocked(r)
	}
	e.registerPendingWriterLocked(r)
	return false
}

// activateHeadWriterLocked binds and wakes the head epoch's requested writer,
// if the head is still unbound and a writer has already requested it. Called
// by pruneFrontLocked every time the head changes, so a writer parked behind
// earlier epochs is resumed exactly once those epochs have drained — this is
// what makes a later writer wait for the current writer to commit/cancel and
// for all of that epoch's readers to release, per spec.md Property 3. The
// caller must already hold q.mu.
func (q *epochQueue[T]) activateHeadWriterLocked() {
	e := q.head
	if e == nil {
		return
	}
	e.mu.Lock()
	if e.state.load() != phaseRequiredUnbound || e.writer == nil {
		e.mu.Unlock()
		return
	}
	w := e.writer
	ok := e.bindWriterLocked(w)
	e.mu.Unlock()
	if ok {
		w.resume <- nil
	}
}

// createWriteContext binds to the tail epoch if it has no writer yet (the
// bootstrap epoch of a not-yet-initialized value); otherwise it appends a
// fresh epoch in phaseRequiredUnbound and binds to that.
func (q *epochQueue[T]) createWriteContext() *epoch[T] {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ensureInitialEpochLocked()

	if q.initialWriterPending && !q.tail.writerIsDone() {
		q.initialWriterPending = false
		return q.tail
	}

	newE := newEpoch(q, false)
	q.tail.next = newE
	q.tail = newE
	q.pruneFrontLocked()
	return newE
}

// createMutateContext returns the current tail epoch (the predecessor,
// whose committed value becomes the read-modify-write's starting point)
// together with a fresh epoch appended after it for the write half of the
// mutation.
func (q *epochQueue[T]) createMutateContext() (predecessor, next *epoch[T]) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ensureInitialEpochLocked()
	predecessor = q.tail

	if q.initialWriterPending && !predecessor.writerIsDone() {
		// No value has ever been written: there is no committed predecessor
		// to read, so the bootstrap epoch serves as both halves and is
		// returned twice (it is the write this mutate performs).
		q.initialWriterPending = false
		return predecessor, predecessor
	}

	newE := newEpoch(q, false)
	q.tail.next = newE
	q.tail = newE
	q.pruneFrontLocked()
	return predecessor, newE
}

// prependEpoch creates a new head epoch for reverse-mode operations (§4.8's
// ReverseValue): the new epoch becomes the earliest in the chain, with the
// previous head chained after it. It starts in phaseRequiredUnbound, like
// any other fresh epoch — a real writer must bind and commit it before it
// is eligible for pruning, rather than being fabricated already-written
// with no value behind it.
func (q *epochQueue[T]) prependEpoch() *epoch[T] {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.bootstrapped = true
	if q.head == nil {
		e := newEpoch(q, false)
		q.head = e
		q.tail = e
		return e
	}
	e := newEpoch(q, false)
	e.next = q.head
	q.head = e
	return e
}

// chainLenLocked reports the number of live (unpruned) epoch nodes
// currently linked from the head. The caller must already hold q.mu.
func (q *epochQueue[T]) chainLenLocked() int {
	n := 0
	for e := q.head; e != nil; e = e.next {
		n++
	}
	return n
}

// pruneFrontLocked removes fully-drained epochs from the head of the queue,
// called eagerly from createWriteContext: without this, a writer bound to a
// later epoch can stall forever because nothing else reschedules the head
// once it has no outstanding work of its own.
func (q *epochQueue[T]) pruneFrontLocked() {
	for q.head != nil && q.head.next != nil && q.head.writerIsDone() && q.head.readerTokenCount() == 0 {
		q.head = q.head.next
	}
	if m := GlobalMetrics(); m != nil {
		m.Queue.UpdateEpochChain(q.chainLenLocked())
	}
	q.activateHeadWriterLocked()
}

// HasPendingWriters reports whether this queue's head epoch still has
// outstanding write work: either its writer has not yet concluded, or it
// has already drained but a later epoch is still queued behind it. Grounded
// on original_source/src/async/epoch_queue.hpp's has_pending_writers().
func (q *epochQueue[T]) HasPendingWriters() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.head == nil {
		return false
	}
	if !q.head.writerIsDone() {
		return true
	}
	return q.head.next != nil
}

// advance inspects the head epoch and, if it is fully drained and a later
// epoch exists, pops it — repeating until the head is either not drained or
// is the only epoch left. Called whenever a writer completes or a reader
// token count reaches zero.
func (q *epochQueue[T]) advance() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pruneFrontLocked()
}

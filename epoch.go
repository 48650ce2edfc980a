package asyncflow

import (
	"sync"
	"sync/atomic"
)

// epochPhase is one generation's write/read state.
//
//	requiredUnbound --bind writer--> bound
//	               \                      \
//	                `--> errorPhase         `--commit--> writtenPhase
//	                                                        \
//	                                                         `--> errorPhase
type epochPhase uint32

const (
	// phaseRequiredUnbound is a new epoch that expects a writer; readers may
	// already be registered, but cannot resume.
	phaseRequiredUnbound epochPhase = iota
	// phaseBound means the writer task is attached and enqueued.
	phaseBound
	// phaseWritten means the writer committed; readers may resume.
	phaseWritten
	// phaseError means the writer dropped without committing, or completed
	// with an exception.
	phaseError
)

func (p epochPhase) String() string {
	switch p {
	case phaseRequiredUnbound:
		return "required_unbound"
	case phaseBound:
		return "bound"
	case phaseWritten:
		return "written"
	case phaseError:
		return "error"
	default:
		return "unknown"
	}
}

// epochState is a lock-free state machine for one epoch's write phase: a
// pure CAS machine with no internal validation, trusting callers to only
// attempt legal transitions. Cache-line padding avoids false sharing, since
// epochState sits on the hottest path in the runtime (every token
// registration touches it).
type epochState struct {
	_ [64]byte
	v atomic.Uint32
	_ [60]byte
}

func (s *epochState) load() epochPhase {
	return epochPhase(s.v.Load())
}

func (s *epochState) store(p epochPhase) {
	s.v.Store(uint32(p))
}

func (s *epochState) transition(from, to epochPhase) bool {
	return s.v.CompareAndSwap(uint32(from), uint32(to))
}

// reader is a suspended or pending reader registered against an epoch.
type reader struct {
	resume chan error
}

// epoch is one generation of {one writer, many readers} on a value's cell,
// per spec.md §3/§4.2. Readers queue as suspended waiters in pendingReaders;
// readerTokens tracks outstanding reader *tokens* (which may exceed the
// number of suspended waiters — a token dropped without ever awaiting still
// counts down). A writer may request this epoch long before it is at the
// head of its queue; writer holds that request's wake channel until the
// queue itself decides the epoch is eligible to bind (see
// epochQueue.activateHeadWriterLocked), enforcing the writer→readers→next-
// writer ordering that is this runtime's central invariant.
type epoch[T any] struct {
	mu              sync.Mutex
	state           epochState
	writer          *reader // the requesting writer's wake channel
	writerRequested bool    // true once a WriteToken/MutateToken/EmplaceToken has requested this epoch
	pendingReaders  []reader
	readerTokens    atomic.Int64
	err             error // set on transition to phaseError; nil means no error
	next            *epoch[T]
	queue           *epochQueue[T]
}

// newEpoch creates a fresh epoch in phaseRequiredUnbound (or phaseWritten,
// for the bootstrap epoch of an already-initialized value).
func newEpoch[T any](q *epochQueue[T], alreadyWritten bool) *epoch[T] {
	e := &epoch[T]{queue: q}
	if alreadyWritten {
		e.state.store(phaseWritten)
	} else {
		e.state.store(phaseRequiredUnbound)
	}
	return e
}

// writerIsDone reports whether the writer phase has concluded, in either
// success (written) or failure (error).
func (e *epoch[T]) writerIsDone() bool {
	p := e.state.load()
	return p == phaseWritten || p == phaseError
}

// bindWriterLocked transitions requiredUnbound -> bound, registering the
// writer's wake channel. Returns false if the epoch was not in
// requiredUnbound. The caller must already hold e.mu.
func (e *epoch[T]) bindWriterLocked(w *reader) bool {
	if !e.state.transition(phaseRequiredUnbound, phaseBound) {
		return false
	}
	e.writer = w
	e.writerRequested = true
	return true
}

// registerPendingWriterLocked records a writer's intent to write this epoch
// without binding it yet, for an epoch that is not (or not yet known to be)
// at the head of its queue. The caller must already hold e.mu. Activation,
// and the wake-up of w, happens later via epochQueue.activateHeadWriterLocked
// once this epoch reaches the head.
func (e *epoch[T]) registerPendingWriterLocked(w *reader) {
	e.writer = w
	e.writerRequested = true
}

// commitWriter transitions bound -> written, waking every pending reader.
func (e *epoch[T]) commitWriter() {
	var toWake []reader
	e.mu.Lock()
	e.state.store(phaseWritten)
	toWake = e.pendingReaders
	e.pendingReaders = nil
	e.mu.Unlock()
	for _, r := range toWake {
		r.resume <- nil
	}
}

// failWriter transitions bound (or requiredUnbound, for a dropped write
// token that never even bound) -> error, recording cause and waking readers
// with the failure. A nil cause models the "writer dropped without
// committing" case from spec.md §7.
func (e *epoch[T]) failWriter(cause error) {
	var toWake []reader
	e.mu.Lock()
	e.state.store(phaseError)
	e.err = cause
	toWake = e.pendingReaders
	e.pendingReaders = nil
	e.mu.Unlock()
	werr := &CancelledError{Cause: cause}
	for _, r := range toWake {
		r.resume <- werr
	}
}

// registerReader attaches a reader's wake channel to this epoch. If the
// writer phase has already concluded, the caller is told to resume
// immediately (ready=true) rather than being queued.
func (e *epoch[T]) registerReader(r reader) (ready bool, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.state.load() {
	case phaseWritten:
		return true, nil
	case phaseError:
		return true, &CancelledError{Cause: e.err}
	default:
		e.pendingReaders = append(e.pendingReaders, r)
		return false, nil
	}
}

// addReaderToken increments the outstanding reader-token count.
func (e *epoch[T]) addReaderToken() {
	e.readerTokens.Add(1)
}

// releaseReaderToken decrements the outstanding reader-token count and
// reports whether it reached zero (the caller should then call Advance on
// the owning queue).
func (e *epoch[T]) releaseReaderToken() bool {
	return e.readerTokens.Add(-1) == 0
}

// readerTokenCount reports the current outstanding reader-token count.
func (e *epoch[T]) readerTokenCount() int64 {
	return e.readerTokens.Load()
}

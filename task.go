package asyncflow

import (
	"context"
	"sync/atomic"
)

// taskSlot is the task's ownership/lifecycle state: which party currently
// holds the right to resume it, or whether it has already concluded.
type taskSlot int32

const (
	taskPending  taskSlot = iota // created; a scheduler may admit it at most once
	taskRunning                  // goroutine is executing the task body
	taskCompleted
	taskCancelled
)

// runnable is the scheduler-facing view of a Task[T], erasing its result
// type. A task owns a suspendable computation that, once admitted by a
// scheduler, runs to completion on its own goroutine — suspension points are
// ordinary Go channel receives inside the task body (token Await calls),
// not a hand-rolled poll() state machine: a goroutine already is a
// stackful coroutine, so resumption is something the Go runtime does for
// free once the blocking receive unblocks.
type runnable interface {
	start()
	markCancelOnResume()
	preferredWorker() int
	category() any
	augmentContext(f func(context.Context) context.Context)
	done() <-chan struct{}
}

// Task wraps a computation of type T that may suspend on any of the access
// tokens, on All, or on another Task, any number of times before returning.
// A Task is submitted to a Scheduler exactly once; after that the scheduler
// holds the exclusive right to start its goroutine.
type Task[T any] struct {
	fn             func(ctx context.Context) (T, error)
	ctx            context.Context
	slot           atomic.Int32
	awaiters       atomic.Int32
	cancelOnResume atomic.Bool
	doneCh         chan struct{}
	result         T
	err            error
	workerHint     int
	taskCategory   any
	logger         Logger
}

// NewTask creates a task in taskPending state with a single awaiter share.
// It is not runnable until Submit()ted to a Scheduler.
func NewTask[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) *Task[T] {
	if ctx == nil {
		ctx = context.Background()
	}
	t := &Task[T]{
		fn:         fn,
		ctx:        ctx,
		doneCh:     make(chan struct{}),
		workerHint: -1,
	}
	t.slot.Store(int32(taskPending))
	t.awaiters.Store(1)
	return t
}

// WithPreferredWorker sets the worker-affinity hint consulted by
// NUMA-aware schedulers. Must be called before Submit.
func (t *Task[T]) WithPreferredWorker(worker int) *Task[T] {
	t.workerHint = worker
	return t
}

// WithCategory attaches an admission-control category, consulted by a pool
// scheduler configured with a category rate limiter. Must be called before
// Submit.
func (t *Task[T]) WithCategory(category any) *Task[T] {
	t.taskCategory = category
	return t
}

// WithLogger attaches a logger used to report a recovered panic; defaults
// to the package default logger if unset.
func (t *Task[T]) WithLogger(l Logger) *Task[T] {
	t.logger = l
	return t
}

// preferredWorker implements runnable.
func (t *Task[T]) preferredWorker() int { return t.workerHint }

// category implements runnable.
func (t *Task[T]) category() any { return t.taskCategory }

// augmentContext implements runnable: it lets a scheduler layer additional
// values (e.g. a turn token) onto the task's context before admission. Must
// be called before start; start reads t.ctx exactly once.
func (t *Task[T]) augmentContext(f func(context.Context) context.Context) {
	t.ctx = f(t.ctx)
}

// markCancelOnResume implements runnable: flags the task so that, instead
// of running fn, start() concludes it immediately as cancelled. The flag is
// only checked when start() runs (and again to pick the final slot once fn
// returns); it does not interrupt a body that is already running. No code
// path in this package calls it: a cancelled epoch reaches a task only as
// the CancelledError its token Await returns.
func (t *Task[T]) markCancelOnResume() {
	t.cancelOnResume.Store(true)
}

// share raises the awaiter refcount by one, used when a task is attached to
// an additional sub-awaiter inside All(...). The last awaiter to observe
// completion is responsible for treating the task as fully consumed; shares
// that never witness completion (e.g. a sibling sub-awaiter resolved first)
// simply decrement without further action.
func (t *Task[T]) share() {
	t.awaiters.Add(1)
}

// releaseShare decrements the awaiter refcount and reports whether this was
// the last outstanding share.
func (t *Task[T]) releaseShare() bool {
	return t.awaiters.Add(-1) == 0
}

// Done returns a channel closed once the task has concluded (completed or
// cancelled).
func (t *Task[T]) Done() <-chan struct{} {
	return t.doneCh
}

// done implements runnable, letting a scheduler track outstanding work
// (e.g. SequentialScheduler.RunAll) without depending on T.
func (t *Task[T]) done() <-chan struct{} {
	return t.doneCh
}

// Wait blocks until the task concludes, or ctx is done.
func (t *Task[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-t.doneCh:
		return t.result, t.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Result returns the task's outcome without blocking; ok is false if the
// task has not yet concluded.
func (t *Task[T]) Result() (value T, err error, ok bool) {
	select {
	case <-t.doneCh:
		return t.result, t.err, true
	default:
		var zero T
		return zero, nil, false
	}
}

// start implements runnable: it is invoked by a Scheduler exactly once,
// when the task's resume right has been transferred to the scheduler and
// the scheduler has decided to admit it. start runs the task body on a new
// goroutine, recovering any panic and logging/re-raising it per
// errors.go's TaskPanicError policy, and closes done on conclusion.
func (t *Task[T]) start() {
	if !t.slot.CompareAndSwap(int32(taskPending), int32(taskRunning)) {
		// Already started or concluded: a scheduler must only call start
		// once per task.
		return
	}

	if t.cancelOnResume.Load() {
		t.err = &CancelledError{}
		t.slot.Store(int32(taskCancelled))
		close(t.doneCh)
		return
	}

	go func() {
		turn := turnFromContext(t.ctx)
		if turn != nil {
			turn.acquire()
			defer turn.release()
		}

		defer func() {
			if r := recover(); r != nil {
				pe := &TaskPanicError{Value: r}
				logger := t.logger
				if logger == nil {
					logger = getDefaultLogger()
				}
				logger.Log(LevelError, "task panic recovered", map[string]any{"panic": r})
				t.err = pe
				t.slot.Store(int32(taskCompleted))
				close(t.doneCh)
				go panic(r)
				return
			}
		}()

		res, err := t.fn(t.ctx)
		t.result = res
		t.err = err
		if t.cancelOnResume.Load() {
			t.slot.Store(int32(taskCancelled))
		} else {
			t.slot.Store(int32(taskCompleted))
		}
		close(t.doneCh)
	}()
}

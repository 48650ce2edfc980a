package asyncflow

import (
	"context"

	"golang.org/x/exp/constraints"
)

// Numeric is the constraint satisfied by every type usable with this
// package's arithmetic surface: Go has no operator overloading, so the
// traditional operator+/operator+= pairs become free functions generic over
// this constraint instead of methods on Async[T] itself.
type Numeric interface {
	constraints.Integer | constraints.Float | constraints.Complex
}

// Add reads both operands and writes their sum into dst as a single new
// epoch; dst may alias a or b. Per spec.md §4.7, the operator surface must
// not block: Add only reserves dst's write token and submits a task (to the
// scheduler resolved from ctx via SchedulerFromContext, falling back to the
// global scheduler) that awaits the operands, computes, and commits. The
// returned Task concludes once that commit (or a propagated failure) has
// happened; callers that only care about dst's eventual value need not wait
// on it at all.
func Add[T Numeric](ctx context.Context, dst, a, b Async[T]) *Task[struct{}] {
	return binaryOp(ctx, dst, a, b, func(x, y T) T { return x + y })
}

// Sub is Add's subtraction counterpart.
func Sub[T Numeric](ctx context.Context, dst, a, b Async[T]) *Task[struct{}] {
	return binaryOp(ctx, dst, a, b, func(x, y T) T { return x - y })
}

// Mul is Add's multiplication counterpart.
func Mul[T Numeric](ctx context.Context, dst, a, b Async[T]) *Task[struct{}] {
	return binaryOp(ctx, dst, a, b, func(x, y T) T { return x * y })
}

// Div is Add's division counterpart. A division by zero panics exactly as
// the built-in operator would; it is not turned into an error, and (per
// task.go's panic policy) concludes the submitted task with a
// TaskPanicError while logging and re-raising on a new goroutine.
func Div[T Numeric](ctx context.Context, dst, a, b Async[T]) *Task[struct{}] {
	return binaryOp(ctx, dst, a, b, func(x, y T) T { return x / y })
}

// Neg writes the negation of a into dst.
func Neg[T Numeric](ctx context.Context, dst, a Async[T]) *Task[struct{}] {
	return unaryOp(ctx, dst, a, func(x T) T { return -x })
}

// AddAssign reads delta and dst's current value under a single mutate
// token, writing dst += delta as one epoch.
func AddAssign[T Numeric](ctx context.Context, dst, delta Async[T]) *Task[struct{}] {
	return assignOp(ctx, dst, delta, func(cur, d T) T { return cur + d })
}

// SubAssign is AddAssign's subtraction counterpart.
func SubAssign[T Numeric](ctx context.Context, dst, delta Async[T]) *Task[struct{}] {
	return assignOp(ctx, dst, delta, func(cur, d T) T { return cur - d })
}

// MulAssign is AddAssign's multiplication counterpart.
func MulAssign[T Numeric](ctx context.Context, dst, factor Async[T]) *Task[struct{}] {
	return assignOp(ctx, dst, factor, func(cur, d T) T { return cur * d })
}

// DivAssign is AddAssign's division counterpart.
func DivAssign[T Numeric](ctx context.Context, dst, divisor Async[T]) *Task[struct{}] {
	return assignOp(ctx, dst, divisor, func(cur, d T) T { return cur / d })
}

// Assign overwrites dst with src's current value as a plain write (not a
// mutate): dst's predecessor value, if any, plays no part in the result.
// Per spec.md §4.7, "assignment a = b where both sides are async values
// launches a copy task" — it is just as non-blocking as the arithmetic ops.
func Assign[T any](ctx context.Context, dst, src Async[T]) *Task[struct{}] {
	rs := src.Read()
	w := dst.Write()
	task := NewTask(ctx, func(ctx context.Context) (struct{}, error) {
		v, err := rs.Await(ctx)
		if err != nil {
			w.Fail(err)
			return struct{}{}, err
		}
		if err := w.Await(ctx); err != nil {
			return struct{}{}, err
		}
		if err := w.Commit(v); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, nil
	})
	submitToAmbientScheduler(ctx, task)
	return task
}

// submitToAmbientScheduler hands t to the scheduler resolved from ctx (or
// the process-wide global scheduler); with neither configured, it starts t
// directly — start() still runs the task body on its own goroutine, so the
// caller is never blocked either way.
func submitToAmbientScheduler(ctx context.Context, t runnable) {
	if sched := SchedulerFromContext(ctx); sched != nil {
		sched.Submit(t)
		return
	}
	t.start()
}

// binaryOp acquires both operand read tokens and dst's write token up
// front, synchronously (cheap, non-blocking reservations that fix dst's
// epoch's position in its queue before this function returns), then submits
// a task that does the actual (blocking) awaiting, computing and
// committing. Acquiring tokens in this order — reads before the write — is
// what lets dst alias an operand without deadlocking: the read token is
// bound to dst's current tail epoch before the write token appends a new
// one behind it.
func binaryOp[T any](ctx context.Context, dst, a, b Async[T], f func(x, y T) T) *Task[struct{}] {
	ra := a.Read()
	rb := b.Read()
	w := dst.Write()
	task := NewTask(ctx, func(ctx context.Context) (struct{}, error) {
		av, err := ra.Await(ctx)
		if err != nil {
			w.Fail(err)
			return struct{}{}, err
		}
		bv, err := rb.Await(ctx)
		if err != nil {
			w.Fail(err)
			return struct{}{}, err
		}
		if err := w.Await(ctx); err != nil {
			return struct{}{}, err
		}
		if err := w.Commit(f(av, bv)); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, nil
	})
	submitToAmbientScheduler(ctx, task)
	return task
}

func unaryOp[T any](ctx context.Context, dst, a Async[T], f func(x T) T) *Task[struct{}] {
	ra := a.Read()
	w := dst.Write()
	task := NewTask(ctx, func(ctx context.Context) (struct{}, error) {
		av, err := ra.Await(ctx)
		if err != nil {
			w.Fail(err)
			return struct{}{}, err
		}
		if err := w.Await(ctx); err != nil {
			return struct{}{}, err
		}
		if err := w.Commit(f(av)); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, nil
	})
	submitToAmbientScheduler(ctx, task)
	return task
}

func assignOp[T any](ctx context.Context, dst, other Async[T], f func(cur, other T) T) *Task[struct{}] {
	ro := other.Read()
	m := dst.Mutate()
	task := NewTask(ctx, func(ctx context.Context) (struct{}, error) {
		ov, err := ro.Await(ctx)
		if err != nil {
			// A mutate token left uncommitted passes the existing value
			// through rather than cancelling (MutateToken.Release's doc),
			// so an operand failure here just releases instead of failing
			// the epoch outright.
			m.Release()
			return struct{}{}, err
		}
		cur, err := m.Await(ctx)
		if err != nil {
			return struct{}{}, err
		}
		if err := m.Commit(f(cur, ov)); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, nil
	})
	submitToAmbientScheduler(ctx, task)
	return task
}

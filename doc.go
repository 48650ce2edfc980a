// Package asyncflow provides asynchronous values with explicit,
// token-mediated access: a value starts uninitialized, is written exactly
// once per "epoch" in strict FIFO order, and may be read by any number of
// concurrent readers once that epoch's writer has committed.
//
// # Architecture
//
// [Async] is the core container: a shared cell plus a queue of epochs. An
// epoch models one generation of {one writer, many readers}; dropping a
// handle to an Async[T] does not destroy it, since tokens carry their own
// strong reference to the underlying cell via addStrong/releaseStrong.
// Access happens through four token kinds obtained from an Async[T]:
//   - [Async.Read] returns a [ReadToken], which suspends until the current
//     epoch's writer commits or fails.
//   - [Async.Write] returns a [WriteToken], which suspends until it is the
//     bound writer of a fresh epoch.
//   - [Async.Mutate] returns a [MutateToken], combining a read of the prior
//     epoch with a write of a new one.
//   - [Async.Emplace] returns an [EmplaceToken], a single-shot in-place
//     construction legal only on an uninitialized cell.
//
// A [Task] wraps a computation that may suspend on any of these tokens any
// number of times before returning; a Task is a goroutine, so suspension is
// an ordinary blocking channel receive rather than a hand-rolled coroutine
// state machine. A [Scheduler] controls when a submitted task's goroutine
// is allowed to start; [SequentialScheduler] gives reproducible
// interleavings for tests, [PoolScheduler] gives parallel throughput.
//
// # Thread Safety
//
// Every exported type in this package is safe for concurrent use except
// where documented otherwise. Tokens are move-only by convention: each
// must be consumed (Await/Commit or Release) by exactly one goroutine. A
// second Commit or Emplace reports [TokenMisuseError] rather than
// corrupting state; Release is idempotent and reports nothing.
//
// # Usage
//
//	v := asyncflow.New[int]()
//	sched, _ := asyncflow.NewSequentialScheduler()
//
//	writer := asyncflow.NewTask(ctx, func(ctx context.Context) (struct{}, error) {
//		w := v.Write()
//		if err := w.Await(ctx); err != nil {
//			return struct{}{}, err
//		}
//		return struct{}{}, w.Commit(42)
//	})
//	sched.Submit(writer)
//
//	reader := asyncflow.NewTask(ctx, func(ctx context.Context) (int, error) {
//		return v.Read().Await(ctx)
//	})
//	sched.Submit(reader)
//
//	n, err := reader.Wait(ctx)
//
// # Error Types
//
// The package's error types compose with the standard [error] interface,
// [errors.Unwrap], and type-based matching via Is():
//   - [CancelledError]: a reader observes a writer that dropped without
//     committing.
//   - [TaskPanicError]: wraps a recovered panic from a task body.
//   - [TokenMisuseError]: a token was committed or emplaced twice, or
//     committed after being released.
//   - [ErrUninitializedRead]: a read resolved against a written epoch
//     whose cell holds no value.
package asyncflow

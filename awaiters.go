package asyncflow

import (
	"context"
	"errors"
	"sync"
)

// All concurrently awaits every task, returning their results in input
// order. All returns only once every task has concluded (or ctx is done);
// if any task concluded with an error, All returns the error of the
// earliest such task in input order and discards the results. Each task is
// share()d for the duration so a task concurrently awaited elsewhere (e.g.
// directly via Wait, or from another All) is not mistaken for abandoned.
func All[T any](ctx context.Context, tasks ...*Task[T]) ([]T, error) {
	for _, t := range tasks {
		t.share()
	}
	results := make([]T, len(tasks))
	errs := make([]error, len(tasks))
	var wg sync.WaitGroup
	wg.Add(len(tasks))
	for i, t := range tasks {
		i, t := i, t
		go func() {
			defer wg.Done()
			defer t.releaseShare()
			v, err := t.Wait(ctx)
			results[i] = v
			errs[i] = err
		}()
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}

// OrCancel awaits t, distinguishing a task whose error is (or wraps) a
// CancelledError, whether it was cancelled before running or its body
// returned one, from one that failed for another reason, and from ctx's own
// deadline expiring. cancelled is true only in the first case.
func OrCancel[T any](ctx context.Context, t *Task[T]) (value T, err error, cancelled bool) {
	value, err = t.Wait(ctx)
	if err == nil {
		return value, nil, false
	}
	var ce *CancelledError
	if errors.As(err, &ce) {
		return value, err, true
	}
	return value, err, false
}

// TryAwait attempts to resolve a read token without blocking. If the
// token's epoch has not yet been written, it releases the token (so its
// reader-token count does not wedge the owning queue) and reports
// ok=false, leaving the caller free to retry with a fresh Read() later.
func TryAwait[T any](t *ReadToken[T]) (value T, err error, ok bool) {
	ch := make(chan error, 1)
	ready, rerr := t.e.registerReader(reader{resume: ch})
	if !ready {
		t.Release()
		var zero T
		return zero, nil, false
	}
	defer t.Release()
	if rerr != nil {
		var zero T
		return zero, rerr, true
	}
	v, constructed := t.c.snapshot()
	if !constructed {
		return v, ErrUninitializedRead, true
	}
	return v, nil, true
}

// TryResult is TryAwait's counterpart for tasks: it reports a task's
// outcome without blocking, with ok=false while the task is still running.
func TryResult[T any](t *Task[T]) (value T, err error, ok bool) {
	return t.Result()
}

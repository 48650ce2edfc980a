package asyncflow

import (
	"context"
	"time"
)

// turnToken is a single-occupancy baton threaded through a task's context by
// a scheduler that wants to guarantee at most one task body is actively
// executing (as opposed to blocked at a suspension point) at any instant.
// Reference schedulers use it to get reproducible interleavings out of real
// goroutines without hand-rolling a coroutine state machine: a task already
// is a goroutine, so "pause it" just means "give up the baton before you
// block, take it back before you resume."
type turnToken struct {
	sem chan struct{}
}

func newTurnToken() *turnToken {
	t := &turnToken{sem: make(chan struct{}, 1)}
	t.sem <- struct{}{}
	return t
}

func (t *turnToken) acquire() { <-t.sem }

func (t *turnToken) release() { t.sem <- struct{}{} }

type turnContextKey struct{}

// withTurn attaches a turn token to ctx; a task started with such a context
// acquires the token before running its body and releases it around every
// suspension point.
func withTurn(ctx context.Context, t *turnToken) context.Context {
	return context.WithValue(ctx, turnContextKey{}, t)
}

func turnFromContext(ctx context.Context) *turnToken {
	t, _ := ctx.Value(turnContextKey{}).(*turnToken)
	return t
}

// awaitWake blocks until ch yields a value or ctx is cancelled, giving up
// ctx's turn token (if any) for the duration of the wait so a single-
// threaded scheduler can admit another ready task in the meantime, and
// reclaiming it before returning control to the caller. Every call is a
// suspension point in the sense of Metrics.Suspend, so its duration is
// recorded there when a global metrics collector is installed.
func awaitWake(ctx context.Context, ch <-chan error) error {
	turn := turnFromContext(ctx)
	if turn != nil {
		turn.release()
		defer turn.acquire()
	}
	start := time.Now()
	defer func() {
		if m := GlobalMetrics(); m != nil {
			m.Suspend.Record(time.Since(start))
		}
	}()
	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

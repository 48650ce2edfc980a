package asyncflow

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
)

// SequentialScheduler is the deterministic reference scheduler: at most one
// task body is ever actively executing (as opposed to parked at a
// suspension point) at a time, via a shared turnToken threaded through every
// admitted task's context. It is meant for tests that want a reproducible
// interleaving rather than production throughput.
type SequentialScheduler struct {
	mu      sync.Mutex
	paused  bool
	pending []runnable
	turn    *turnToken
	logger  Logger
	metrics *Metrics
	active  atomic.Int64
}

// NewSequentialScheduler constructs a deterministic single-threaded
// scheduler.
func NewSequentialScheduler(opts ...Option) (*SequentialScheduler, error) {
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}
	s := &SequentialScheduler{
		turn:    newTurnToken(),
		logger:  cfg.logger,
		metrics: cfg.metrics,
	}
	if cfg.setAsGlobal {
		SetGlobalScheduler(s)
	}
	return s, nil
}

// Submit implements Scheduler. While paused, submissions queue in FIFO
// submission order and are admitted in that order on Resume.
func (s *SequentialScheduler) Submit(t runnable) {
	t.augmentContext(func(ctx context.Context) context.Context {
		return withTurn(ctx, s.turn)
	})

	if s.metrics != nil {
		s.metrics.RecordAdmission()
	}

	s.active.Add(1)
	go func() {
		<-t.done()
		s.active.Add(-1)
	}()

	s.mu.Lock()
	if s.paused {
		s.pending = append(s.pending, t)
		depth := len(s.pending)
		s.mu.Unlock()
		if s.metrics != nil {
			s.metrics.Queue.UpdatePending(depth)
		}
		return
	}
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.Queue.UpdatePending(0)
	}
	t.start()
}

// Pause implements Scheduler.
func (s *SequentialScheduler) Pause() {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
}

// Resume implements Scheduler: admits everything queued while paused, in
// the order it was submitted.
func (s *SequentialScheduler) Resume() {
	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.paused = false
	s.mu.Unlock()

	for _, t := range pending {
		t.start()
	}
}

// HelpWhileWaiting implements Scheduler: yields the processor to other
// goroutines until ready, since admission and resumption both happen on
// their own goroutines already — there is no separate run loop to pump.
func (s *SequentialScheduler) HelpWhileWaiting(ready func() bool) {
	for !ready() {
		runtime.Gosched()
	}
}

// WaitFor implements Scheduler.
func (s *SequentialScheduler) WaitFor(ctx context.Context, ready func() bool) error {
	for !ready() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		runtime.Gosched()
	}
	return nil
}

// RunAll blocks until every task submitted so far has concluded and no
// admission is queued behind Pause — quiescence in the sense of spec.md §8
// Property 5 (no runnable task, no epoch left with bound+unresumed writer or
// ready+unresumed readers once it returns).
func (s *SequentialScheduler) RunAll(ctx context.Context) error {
	return s.WaitFor(ctx, func() bool {
		s.mu.Lock()
		pending := len(s.pending)
		s.mu.Unlock()
		return pending == 0 && s.active.Load() == 0
	})
}

package asyncflow

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-catrate"
)

// PoolScheduler is a parallel work-pool scheduler: a fixed number of worker
// goroutines each admit tasks from their own buffered channel, optionally
// gated by a per-category rate limiter. Unlike SequentialScheduler it makes
// no attempt at reproducible interleavings; it exists for throughput.
type PoolScheduler struct {
	workers [][]int // nodes[nodeIdx] -> worker indices in that node
	queues  []chan runnable
	limiter *catrate.Limiter
	logger  Logger
	metrics *Metrics

	rrNode  atomic.Int64
	rrInNode []atomic.Int64

	mu      sync.Mutex
	paused  bool
	pending []runnable

	done chan struct{}
}

// NewPoolScheduler constructs a parallel scheduler with cfg.workerCount
// workers partitioned into a single NUMA node. Use WithNUMANodes to
// partition workers into multiple locality groups and WithCategoryLimiter
// to gate admission per task category.
func NewPoolScheduler(opts ...Option) (*PoolScheduler, error) {
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}
	return newPoolScheduler(cfg)
}

// NewNUMAScheduler is NewPoolScheduler with the node count fixed to n,
// overriding any WithNUMANodes option passed alongside it.
func NewNUMAScheduler(n int, opts ...Option) (*PoolScheduler, error) {
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}
	if n < 1 {
		n = 1
	}
	cfg.numaNodes = n
	return newPoolScheduler(cfg)
}

func newPoolScheduler(cfg *config) (*PoolScheduler, error) {
	nodes := cfg.numaNodes
	if nodes > cfg.workerCount {
		nodes = cfg.workerCount
	}

	p := &PoolScheduler{
		workers:  make([][]int, nodes),
		queues:   make([]chan runnable, cfg.workerCount),
		rrInNode: make([]atomic.Int64, nodes),
		logger:   cfg.logger,
		metrics:  cfg.metrics,
		done:     make(chan struct{}),
	}

	if cfg.categoryRates != nil {
		p.limiter = catrate.NewLimiter(cfg.categoryRates)
	}

	for i := 0; i < cfg.workerCount; i++ {
		node := i % nodes
		p.workers[node] = append(p.workers[node], i)
		p.queues[i] = make(chan runnable, 256)
		go p.runWorker(p.queues[i])
	}

	if cfg.setAsGlobal {
		SetGlobalScheduler(p)
	}
	return p, nil
}

func (p *PoolScheduler) runWorker(queue chan runnable) {
	for {
		select {
		case t, ok := <-queue:
			if !ok {
				return
			}
			p.admit(t)
		case <-p.done:
			return
		}
	}
}

// admit applies category rate limiting, if configured, then starts the
// task. It runs on a worker goroutine, so a throttled task only blocks
// admission on its own worker, not the whole pool.
func (p *PoolScheduler) admit(t runnable) {
	if p.limiter != nil {
		if cat := t.category(); cat != nil {
			for {
				until, ok := p.limiter.Allow(cat)
				if ok {
					break
				}
				if d := time.Until(until); d > 0 {
					time.Sleep(d)
				}
			}
		}
	}
	t.start()
}

// pickWorker chooses an admission queue for t: its preferred worker if it
// named one in range, otherwise round-robin across a round-robin-chosen
// NUMA node.
func (p *PoolScheduler) pickWorker(t runnable) int {
	if h := t.preferredWorker(); h >= 0 && h < len(p.queues) {
		return h
	}
	node := int(uint64(p.rrNode.Add(1)) % uint64(len(p.workers)))
	members := p.workers[node]
	idx := int(uint64(p.rrInNode[node].Add(1)) % uint64(len(members)))
	return members[idx]
}

// Submit implements Scheduler.
func (p *PoolScheduler) Submit(t runnable) {
	if p.metrics != nil {
		p.metrics.RecordAdmission()
	}

	p.mu.Lock()
	if p.paused {
		p.pending = append(p.pending, t)
		depth := len(p.pending)
		p.mu.Unlock()
		if p.metrics != nil {
			p.metrics.Queue.UpdatePending(depth)
		}
		return
	}
	p.mu.Unlock()
	if p.metrics != nil {
		p.metrics.Queue.UpdatePending(0)
	}
	p.queues[p.pickWorker(t)] <- t
}

// Pause implements Scheduler.
func (p *PoolScheduler) Pause() {
	p.mu.Lock()
	p.paused = true
	p.mu.Unlock()
}

// Resume implements Scheduler.
func (p *PoolScheduler) Resume() {
	p.mu.Lock()
	pending := p.pending
	p.pending = nil
	p.paused = false
	p.mu.Unlock()

	for _, t := range pending {
		p.queues[p.pickWorker(t)] <- t
	}
}

// HelpWhileWaiting implements Scheduler: pool workers already run
// concurrently, so a waiting caller just yields.
func (p *PoolScheduler) HelpWhileWaiting(ready func() bool) {
	for !ready() {
		time.Sleep(time.Microsecond)
	}
}

// WaitFor implements Scheduler.
func (p *PoolScheduler) WaitFor(ctx context.Context, ready func() bool) error {
	for !ready() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Microsecond):
		}
	}
	return nil
}

// Close stops all worker goroutines; queued-but-not-yet-admitted tasks are
// abandoned. Not part of the Scheduler interface since most callers let the
// pool live for the process lifetime.
func (p *PoolScheduler) Close() {
	close(p.done)
}

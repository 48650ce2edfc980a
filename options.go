package asyncflow

import (
	"runtime"
	"time"
)

// config holds resolved construction options for schedulers.
type config struct {
	logger            Logger
	metrics           *Metrics
	workerCount       int
	numaNodes         int
	categoryRates     map[time.Duration]int
	setAsGlobal       bool
	helpWhileWaitFreq time.Duration
}

// Option configures a scheduler at construction time.
type Option interface {
	apply(*config) error
}

type optionFunc struct {
	fn func(*config) error
}

func (o *optionFunc) apply(c *config) error { return o.fn(c) }

// WithLogger attaches a structured logger to a scheduler; it stays nil if
// unset. Neither reference scheduler writes to it, and it is not
// passed on to submitted tasks (see Task.WithLogger).
func WithLogger(l Logger) Option {
	return &optionFunc{func(c *config) error {
		c.logger = l
		return nil
	}}
}

// WithMetrics attaches a Metrics collector to a scheduler.
func WithMetrics(m *Metrics) Option {
	return &optionFunc{func(c *config) error {
		c.metrics = m
		return nil
	}}
}

// WithWorkerCount sets the number of worker goroutines for a pool
// scheduler. Defaults to runtime.NumCPU().
func WithWorkerCount(n int) Option {
	return &optionFunc{func(c *config) error {
		if n < 1 {
			n = 1
		}
		c.workerCount = n
		return nil
	}}
}

// WithNUMANodes sets the number of sub-pools for a NUMA-aware scheduler.
// Defaults to 1 (no NUMA partitioning).
func WithNUMANodes(n int) Option {
	return &optionFunc{func(c *config) error {
		if n < 1 {
			n = 1
		}
		c.numaNodes = n
		return nil
	}}
}

// WithCategoryLimiter enables per-category admission control on a pool
// scheduler, backed by a sliding-window rate limiter keyed by task
// category (Task.WithCategory). rates maps a window duration to the
// maximum admissions allowed in that window, as accepted by catrate's
// limiter construction.
func WithCategoryLimiter(rates map[time.Duration]int) Option {
	return &optionFunc{func(c *config) error {
		c.categoryRates = rates
		return nil
	}}
}

// WithGlobalScheduler registers the constructed scheduler as the process-
// wide default (see SetGlobalScheduler) immediately after construction.
func WithGlobalScheduler(enabled bool) Option {
	return &optionFunc{func(c *config) error {
		c.setAsGlobal = enabled
		return nil
	}}
}

// resolveOptions applies Option instances over a fresh config with
// reasonable defaults.
func resolveOptions(opts []Option) (*config, error) {
	cfg := &config{
		workerCount:       runtime.NumCPU(),
		numaNodes:         1,
		helpWhileWaitFreq: time.Microsecond,
	}
	for _, o := range opts {
		if o == nil {
			continue
		}
		if err := o.apply(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

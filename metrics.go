package asyncflow

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics tracks runtime statistics for a scheduler. All metrics are
// optional and attached via WithMetrics; a nil *Metrics anywhere in this
// package is treated as "don't record."
type Metrics struct {
	// Suspend tracks how long a task spends parked at a suspension point
	// before being woken.
	Suspend LatencyMetrics

	// Queue tracks epoch-queue and scheduler admission depth.
	Queue QueueMetrics

	mu sync.Mutex

	// AdmissionRate is the current tasks-admitted-per-second figure.
	AdmissionRate float64

	admission *TPSCounter
}

// NewMetrics constructs an empty Metrics collector.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordAdmission records one task-admission event and refreshes
// AdmissionRate from a rolling ten-second window, called from a scheduler's
// Submit (scheduler_sequential.go, scheduler_pool.go).
func (m *Metrics) RecordAdmission() {
	m.mu.Lock()
	if m.admission == nil {
		m.admission = NewTPSCounter(10*time.Second, time.Second)
	}
	counter := m.admission
	m.mu.Unlock()

	counter.Increment()

	m.mu.Lock()
	m.AdmissionRate = counter.TPS()
	m.mu.Unlock()
}

var globalMetrics atomic.Pointer[Metrics]

// SetGlobalMetrics installs the process-wide default metrics collector,
// consulted by call sites (epochqueue.go's pruneFrontLocked, turn.go's
// awaitWake) that have no scheduler-scoped *Metrics to reach. Setting and
// clearing must be balanced by the caller; there is no reference counting.
func SetGlobalMetrics(m *Metrics) {
	globalMetrics.Store(m)
}

// ClearGlobalMetrics removes the process-wide default metrics collector.
func ClearGlobalMetrics() {
	globalMetrics.Store(nil)
}

// GlobalMetrics returns the process-wide default metrics collector, or nil
// if none has been set.
func GlobalMetrics() *Metrics {
	return globalMetrics.Load()
}

// LatencyMetrics tracks latency distribution with percentiles, using the
// P-Square algorithm for O(1) streaming percentile estimation.
type LatencyMetrics struct {
	psquare *pSquareMultiQuantile

	mu sync.RWMutex

	sampleIdx   int
	sampleCount int
	samples     [sampleSize]time.Duration

	P50 time.Duration
	P90 time.Duration
	P95 time.Duration
	P99 time.Duration
	Max time.Duration

	Mean time.Duration
	Sum  time.Duration
}

// sampleSize is the maximum number of latency samples retained for the
// small-sample exact fallback.
const sampleSize = 1000

// Record records one suspend-to-resume latency sample.
func (l *LatencyMetrics) Record(duration time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.psquare == nil {
		l.psquare = newPSquareMultiQuantile(0.50, 0.90, 0.95, 0.99)
	}
	l.psquare.Update(float64(duration))

	if l.sampleCount >= sampleSize {
		old := l.samples[l.sampleIdx]
		l.Sum -= old
	}

	l.samples[l.sampleIdx] = duration
	l.Sum += duration
	l.sampleIdx++
	if l.sampleIdx >= sampleSize {
		l.sampleIdx = 0
	}
	if l.sampleCount < sampleSize {
		l.sampleCount++
	}
}

// Sample computes percentiles from collected samples and returns the count
// of samples used. For counts below 5 it falls back to exact sorting.
func (l *LatencyMetrics) Sample() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	count := l.sampleCount
	if count == 0 {
		return 0
	}

	if count < 5 || l.psquare == nil {
		sorted := make([]time.Duration, count)
		copy(sorted, l.samples[:count])
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		l.P50 = sorted[percentileIndex(count, 50)]
		l.P90 = sorted[percentileIndex(count, 90)]
		l.P95 = sorted[percentileIndex(count, 95)]
		l.P99 = sorted[percentileIndex(count, 99)]
		l.Max = sorted[count-1]
		l.Mean = l.Sum / time.Duration(count)
		return count
	}

	l.P50 = time.Duration(l.psquare.Quantile(0))
	l.P90 = time.Duration(l.psquare.Quantile(1))
	l.P95 = time.Duration(l.psquare.Quantile(2))
	l.P99 = time.Duration(l.psquare.Quantile(3))
	l.Max = time.Duration(l.psquare.Max())
	l.Mean = l.Sum / time.Duration(count)
	return count
}

func percentileIndex(n, p int) int {
	index := (p * n) / 100
	if index >= n {
		return n - 1
	}
	return index
}

// QueueMetrics tracks depth statistics for epoch queues and scheduler
// admission queues.
type QueueMetrics struct {
	mu sync.RWMutex

	EpochChainCurrent int // live (unpruned) epochs in a value's queue
	PendingCurrent    int // tasks submitted but not yet admitted
	AwaitersCurrent   int // parked readers/writers across all epochs

	EpochChainMax int
	PendingMax    int
	AwaitersMax   int

	EpochChainAvg float64
	PendingAvg    float64
	AwaitersAvg   float64

	epochChainEMAInit bool
	pendingEMAInit    bool
	awaitersEMAInit   bool
}

// UpdateEpochChain records the current length of a value's live epoch
// chain, called from epochqueue.go's pruneFrontLocked via GlobalMetrics.
func (q *QueueMetrics) UpdateEpochChain(depth int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.EpochChainCurrent = depth
	if depth > q.EpochChainMax {
		q.EpochChainMax = depth
	}
	if !q.epochChainEMAInit {
		q.EpochChainAvg = float64(depth)
		q.epochChainEMAInit = true
	} else {
		q.EpochChainAvg = 0.9*q.EpochChainAvg + 0.1*float64(depth)
	}
}

// UpdatePending records the current scheduler admission-queue depth.
func (q *QueueMetrics) UpdatePending(depth int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.PendingCurrent = depth
	if depth > q.PendingMax {
		q.PendingMax = depth
	}
	if !q.pendingEMAInit {
		q.PendingAvg = float64(depth)
		q.pendingEMAInit = true
	} else {
		q.PendingAvg = 0.9*q.PendingAvg + 0.1*float64(depth)
	}
}

// UpdateAwaiters records the current count of parked readers/writers.
func (q *QueueMetrics) UpdateAwaiters(depth int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.AwaitersCurrent = depth
	if depth > q.AwaitersMax {
		q.AwaitersMax = depth
	}
	if !q.awaitersEMAInit {
		q.AwaitersAvg = float64(depth)
		q.awaitersEMAInit = true
	} else {
		q.AwaitersAvg = 0.9*q.AwaitersAvg + 0.1*float64(depth)
	}
}

// TPSCounter tracks events per second with a rolling window, used here for
// task admission rate.
type TPSCounter struct {
	lastRotation atomic.Value
	buckets      []int64
	bucketSize   time.Duration
	windowSize   time.Duration
	mu           sync.Mutex
}

// NewTPSCounter creates a rolling-window rate counter. windowSize must be
// positive and a multiple-ish of bucketSize (truncated down to a whole
// bucket count); bucketSize must be positive and no larger than windowSize.
func NewTPSCounter(windowSize, bucketSize time.Duration) *TPSCounter {
	if windowSize <= 0 {
		panic("asyncflow: windowSize must be positive")
	}
	if bucketSize <= 0 {
		panic("asyncflow: bucketSize must be positive")
	}
	if bucketSize > windowSize {
		panic("asyncflow: bucketSize cannot exceed windowSize")
	}

	bucketCount := int(windowSize / bucketSize)
	counter := &TPSCounter{
		buckets:    make([]int64, bucketCount),
		bucketSize: bucketSize,
		windowSize: windowSize,
	}
	counter.lastRotation.Store(time.Now())
	return counter
}

// Increment records one event.
func (t *TPSCounter) Increment() {
	t.rotate()
	t.mu.Lock()
	t.buckets[len(t.buckets)-1]++
	t.mu.Unlock()
}

func (t *TPSCounter) rotate() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	lastRotation := t.lastRotation.Load().(time.Time)
	elapsed := now.Sub(lastRotation)

	bucketsToAdvanceInt64 := int64(elapsed) / int64(t.bucketSize)
	if bucketsToAdvanceInt64 < 0 {
		bucketsToAdvanceInt64 = int64(len(t.buckets))
	} else if bucketsToAdvanceInt64 > int64(len(t.buckets)) {
		bucketsToAdvanceInt64 = int64(len(t.buckets))
	}
	bucketsToAdvance := int(bucketsToAdvanceInt64)

	if bucketsToAdvance >= len(t.buckets) {
		for i := range t.buckets {
			t.buckets[i] = 0
		}
		t.lastRotation.Store(now)
		return
	}
	if bucketsToAdvance <= 0 {
		return
	}

	copy(t.buckets, t.buckets[bucketsToAdvance:])
	for i := len(t.buckets) - bucketsToAdvance; i < len(t.buckets); i++ {
		t.buckets[i] = 0
	}
	t.lastRotation.Store(lastRotation.Add(time.Duration(bucketsToAdvance) * t.bucketSize))
}

// TPS returns the current rate in events per second.
func (t *TPSCounter) TPS() float64 {
	t.rotate()
	t.mu.Lock()
	defer t.mu.Unlock()

	var sum int64
	for _, count := range t.buckets {
		sum += count
	}
	if sum == 0 {
		return 0
	}
	monitoredDuration := float64(len(t.buckets)) * t.bucketSize.Seconds()
	return float64(sum) / monitoredDuration
}

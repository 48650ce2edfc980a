package asyncflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolScheduler_RunsSubmittedTasksConcurrently(t *testing.T) {
	sched, err := NewPoolScheduler(WithWorkerCount(4))
	require.NoError(t, err)
	defer sched.Close()

	const n = 50
	tasks := make([]*Task[int], n)
	for i := 0; i < n; i++ {
		i := i
		tasks[i] = NewTask(context.Background(), func(ctx context.Context) (int, error) {
			return i, nil
		})
		sched.Submit(tasks[i])
	}

	results, err := All(context.Background(), tasks...)
	require.NoError(t, err)
	for i, v := range results {
		assert.Equal(t, i, v)
	}
}

func TestPoolScheduler_PreferredWorkerIsHonored(t *testing.T) {
	sched, err := NewPoolScheduler(WithWorkerCount(4))
	require.NoError(t, err)
	defer sched.Close()

	task := NewTask(context.Background(), func(ctx context.Context) (int, error) { return 0, nil }).
		WithPreferredWorker(2)
	assert.Equal(t, 2, sched.pickWorker(task))
}

func TestPoolScheduler_NUMANodesPartitionWorkers(t *testing.T) {
	sched, err := NewNUMAScheduler(2, WithWorkerCount(4))
	require.NoError(t, err)
	defer sched.Close()

	require.Len(t, sched.workers, 2)
	total := 0
	for _, members := range sched.workers {
		total += len(members)
	}
	assert.Equal(t, 4, total)
}

func TestPoolScheduler_CategoryLimiterThrottlesAdmission(t *testing.T) {
	sched, err := NewPoolScheduler(
		WithWorkerCount(1),
		WithCategoryLimiter(map[time.Duration]int{time.Minute: 1}),
	)
	require.NoError(t, err)
	defer sched.Close()

	first := NewTask(context.Background(), func(ctx context.Context) (int, error) {
		return 1, nil
	}).WithCategory("only-category")
	second := NewTask(context.Background(), func(ctx context.Context) (int, error) {
		return 2, nil
	}).WithCategory("only-category")

	sched.Submit(first)
	sched.Submit(second)

	_, err = first.Wait(context.Background())
	require.NoError(t, err)

	// second is rate-limited to a full minute out; it must not have admitted
	// yet even though first already completed.
	_, _, ok := second.Result()
	assert.False(t, ok)
}

func TestPoolScheduler_PauseThenResume(t *testing.T) {
	sched, err := NewPoolScheduler(WithWorkerCount(2))
	require.NoError(t, err)
	defer sched.Close()

	sched.Pause()
	task := NewTask(context.Background(), func(ctx context.Context) (int, error) {
		return 7, nil
	})
	sched.Submit(task)

	_, _, ok := task.Result()
	assert.False(t, ok)

	sched.Resume()
	v, err := task.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

package asyncflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequentialScheduler_PauseQueuesSubmissions(t *testing.T) {
	sched, err := NewSequentialScheduler()
	require.NoError(t, err)

	sched.Pause()
	task := NewTask(context.Background(), func(ctx context.Context) (int, error) {
		return 1, nil
	})
	sched.Submit(task)

	_, _, ok := task.Result()
	assert.False(t, ok, "a paused scheduler must not start a submitted task")

	sched.Resume()
	v, err := task.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestSequentialScheduler_ResumeAdmitsInFIFOOrder(t *testing.T) {
	sched, err := NewSequentialScheduler()
	require.NoError(t, err)
	sched.Pause()

	var order []int
	done := make(chan struct{})
	mkTask := func(n int) *Task[struct{}] {
		return NewTask(context.Background(), func(ctx context.Context) (struct{}, error) {
			order = append(order, n)
			if n == 3 {
				close(done)
			}
			return struct{}{}, nil
		})
	}

	t1, t2, t3 := mkTask(1), mkTask(2), mkTask(3)
	sched.Submit(t1)
	sched.Submit(t2)
	sched.Submit(t3)
	sched.Resume()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("tasks never completed")
	}
	<-t1.Done()
	<-t2.Done()
	<-t3.Done()
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestSequentialScheduler_OnlyOneTaskBodyActiveAtOnce(t *testing.T) {
	sched, err := NewSequentialScheduler()
	require.NoError(t, err)

	var active int32
	var maxActive int32
	observe := func() {
		n := active
		if n > maxActive {
			maxActive = n
		}
	}

	const n = 20
	tasks := make([]*Task[struct{}], n)
	for i := 0; i < n; i++ {
		tasks[i] = NewTask(context.Background(), func(ctx context.Context) (struct{}, error) {
			active++
			observe()
			active--
			return struct{}{}, nil
		})
	}
	for _, task := range tasks {
		sched.Submit(task)
	}
	for _, task := range tasks {
		_, err := task.Wait(context.Background())
		require.NoError(t, err)
	}
	assert.LessOrEqual(t, maxActive, int32(1), "SequentialScheduler must never run two task bodies concurrently")
}

func TestSequentialScheduler_WaitForBlocksUntilReady(t *testing.T) {
	sched, err := NewSequentialScheduler()
	require.NoError(t, err)

	var ready bool
	task := NewTask(context.Background(), func(ctx context.Context) (struct{}, error) {
		ready = true
		return struct{}{}, nil
	})
	sched.Submit(task)

	err = sched.WaitFor(context.Background(), func() bool { return ready })
	require.NoError(t, err)
	assert.True(t, ready)
}

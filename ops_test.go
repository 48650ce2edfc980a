package asyncflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Scenario B: a diamond reduction, where two intermediate values computed
// from a shared source are combined into a final result.
func TestOps_DiamondReduction(t *testing.T) {
	ctx := context.Background()
	source := NewValue(4)
	left := New[int]()
	right := New[int]()
	result := New[int]()

	leftTask := Add[int](ctx, left, source, NewValue(1))  // left = 4 + 1
	rightTask := Mul[int](ctx, right, source, NewValue(2)) // right = 4 * 2
	_, err := leftTask.Wait(ctx)
	require.NoError(t, err)
	_, err = rightTask.Wait(ctx)
	require.NoError(t, err)

	_, err = Add[int](ctx, result, left, right).Wait(ctx) // result = 5 + 8
	require.NoError(t, err)

	got, err := result.Read().Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, 13, got)
}

func TestOps_SubMulDiv(t *testing.T) {
	ctx := context.Background()
	a := NewValue(10)
	b := NewValue(3)

	sub := New[int]()
	_, err := Sub[int](ctx, sub, a, b).Wait(ctx)
	require.NoError(t, err)
	got, _ := sub.Read().Await(ctx)
	assert.Equal(t, 7, got)

	mul := New[int]()
	_, err = Mul[int](ctx, mul, a, b).Wait(ctx)
	require.NoError(t, err)
	got, _ = mul.Read().Await(ctx)
	assert.Equal(t, 30, got)

	div := New[int]()
	_, err = Div[int](ctx, div, a, b).Wait(ctx)
	require.NoError(t, err)
	got, _ = div.Read().Await(ctx)
	assert.Equal(t, 3, got)
}

func TestOps_Neg(t *testing.T) {
	ctx := context.Background()
	a := NewValue(5)
	dst := New[int]()
	_, err := Neg[int](ctx, dst, a).Wait(ctx)
	require.NoError(t, err)
	got, err := dst.Read().Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, -5, got)
}

func TestOps_AddAssignSubAssign(t *testing.T) {
	ctx := context.Background()
	acc := NewValue(10)

	_, err := AddAssign[int](ctx, acc, NewValue(5)).Wait(ctx)
	require.NoError(t, err)
	got, _ := acc.Read().Await(ctx)
	assert.Equal(t, 15, got)

	_, err = SubAssign[int](ctx, acc, NewValue(3)).Wait(ctx)
	require.NoError(t, err)
	got, _ = acc.Read().Await(ctx)
	assert.Equal(t, 12, got)
}

func TestOps_MulAssignDivAssign(t *testing.T) {
	ctx := context.Background()
	acc := NewValue(6)

	_, err := MulAssign[int](ctx, acc, NewValue(7)).Wait(ctx)
	require.NoError(t, err)
	got, _ := acc.Read().Await(ctx)
	assert.Equal(t, 42, got)

	_, err = DivAssign[int](ctx, acc, NewValue(6)).Wait(ctx)
	require.NoError(t, err)
	got, _ = acc.Read().Await(ctx)
	assert.Equal(t, 7, got)
}

func TestOps_Assign(t *testing.T) {
	ctx := context.Background()
	src := NewValue(99)
	dst := New[int]()

	_, err := Assign[int](ctx, dst, src).Wait(ctx)
	require.NoError(t, err)
	got, err := dst.Read().Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, 99, got)
}

func TestOps_AddAssignAliasedWithDst(t *testing.T) {
	ctx := context.Background()
	acc := NewValue(1)

	// dst and delta may be the same Async[T]; AddAssign reads the delta
	// before binding its own mutate write, so this must not deadlock.
	_, err := AddAssign[int](ctx, acc, acc).Wait(ctx)
	require.NoError(t, err)
	got, err := acc.Read().Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, got)
}

// TestOps_NotBlockingWithoutScheduler confirms the operator surface never
// blocks the calling goroutine even with no ambient scheduler configured:
// Add must return its Task immediately, with the write landing only once
// the caller awaits it.
func TestOps_NotBlockingWithoutScheduler(t *testing.T) {
	ctx := context.Background()
	a := NewValue(2)
	b := NewValue(3)
	dst := New[int]()

	done := make(chan *Task[struct{}], 1)
	go func() {
		done <- Add[int](ctx, dst, a, b)
	}()

	select {
	case task := <-done:
		_, err := task.Wait(ctx)
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Add did not return immediately")
	}

	got, err := dst.Read().Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, got)
}

package asyncflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsync_NewIsUninitialized(t *testing.T) {
	v := New[int]()
	assert.False(t, v.IsZero())
	assert.False(t, v.cell.isConstructed())

	w := v.Write()
	require.NoError(t, w.Await(context.Background()))
	require.NoError(t, w.Commit(10))

	got, err := v.Read().Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, got)
}

func TestAsync_NewValueStartsAlreadyWritten(t *testing.T) {
	v := NewValue(99)
	got, err := v.Read().Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 99, got)
}

// Scenario A: a linear chain of writes and reads in FIFO order.
func TestAsync_LinearChain(t *testing.T) {
	v := New[int]()
	ctx := context.Background()

	w1 := v.Write()
	require.NoError(t, w1.Await(ctx))
	require.NoError(t, w1.Commit(1))

	r1, err := v.Read().Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, r1)

	m := v.Mutate()
	cur, err := m.Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, cur)
	require.NoError(t, m.Commit(cur+1))

	r2, err := v.Read().Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, r2)
}

// Scenario E: a write token dropped without committing cancels any reader
// that was parked on that epoch.
func TestAsync_WriteDropCancelsParkedReader(t *testing.T) {
	v := New[int]()
	ctx := context.Background()

	w := v.Write()
	require.NoError(t, w.Await(ctx))

	readResult := make(chan error, 1)
	go func() {
		_, err := v.Read().Await(ctx)
		readResult <- err
	}()

	time.Sleep(10 * time.Millisecond) // let the reader park
	w.Release()

	select {
	case err := <-readResult:
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrCancelled)
	case <-time.After(time.Second):
		t.Fatal("reader was never woken after the write token was released")
	}
}

func TestAsync_ReadAfterWriteTokenReleaseObservesCancellation(t *testing.T) {
	v := New[int]()
	w := v.Write()
	require.NoError(t, w.Await(context.Background()))
	w.Release()

	_, err := v.Read().Await(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCancelled)
}

func TestAsync_MutateDropPassesPredecessorValueThrough(t *testing.T) {
	v := NewValue(7)
	ctx := context.Background()

	m := v.Mutate()
	_, err := m.Await(ctx)
	require.NoError(t, err)
	m.Release() // drop without committing

	got, err := v.Read().Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, got, "a dropped mutate token must not destroy the predecessor value")
}

// TestAsync_MutateDropWithoutAwaitDoesNotStallLaterWriter exercises spec.md
// §8 Scenario D's "acquire a mutate token but drop it unused" case in the
// one way TestAsync_MutateDropPassesPredecessorValueThrough doesn't: here
// the mutate token is dropped without ever calling Await, so its
// predecessor read token (allocated by newMutateToken) is only released by
// Release itself. A genuinely independent reader (r0) is what actually
// keeps the predecessor epoch open; if the mutate token's own predecessor
// reference were never released alongside it, the predecessor's
// reader-token count would never reach zero even after r0 releases, and
// the writer queued behind it would stall forever instead of just waiting
// out r0.
func TestAsync_MutateDropWithoutAwaitDoesNotStallLaterWriter(t *testing.T) {
	v := NewValue(7)
	ctx := context.Background()

	r0 := v.Read() // held open deliberately; not yet awaited or released

	m := v.Mutate()
	m.Release() // drop without ever calling Await

	w := v.Write()
	done := make(chan error, 1)
	go func() {
		done <- w.Await(ctx)
	}()

	select {
	case err := <-done:
		t.Fatalf("writer bound before the independent reader released: %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	_, err := r0.Await(ctx)
	require.NoError(t, err)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(200 * time.Millisecond):
		t.Fatal("writer stalled after the only remaining reader released: the mutate token's dropped predecessor reference leaked")
	}
	require.NoError(t, w.Commit(9))

	got, err := v.Read().Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, 9, got)
}

func TestAsync_EmplaceConstructsOnce(t *testing.T) {
	v := New[string]()
	e := v.Emplace()
	require.NoError(t, e.Await(context.Background()))
	require.NoError(t, e.Emplace("hello"))

	err := e.Emplace("world")
	var tme *TokenMisuseError
	assert.ErrorAs(t, err, &tme)

	got, err := v.Read().Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "hello", got)
}

func TestAsync_MultipleReadersObserveSameEpochConcurrently(t *testing.T) {
	v := New[int]()
	ctx := context.Background()

	w := v.Write()
	require.NoError(t, w.Await(ctx))
	require.NoError(t, w.Commit(5))

	const readers = 8
	results := make(chan int, readers)
	for i := 0; i < readers; i++ {
		go func() {
			got, err := v.Read().Await(ctx)
			require.NoError(t, err)
			results <- got
		}()
	}
	for i := 0; i < readers; i++ {
		assert.Equal(t, 5, <-results)
	}
}

// TestAsync_SecondWriterParksUntilFirstDrains confirms that a later writer's
// Await does not return ready until the earlier epoch has fully drained
// (committed and had all its readers release), per spec.md Property 3. A
// regression here would let w2.Await return immediately while w1 is still
// outstanding, letting w2.Commit land in the cell before w1.Commit and
// corrupt the single-slot cell's value (spec.md Property 2).
func TestAsync_SecondWriterParksUntilFirstDrains(t *testing.T) {
	v := New[int]()
	ctx := context.Background()

	w1 := v.Write()
	w2 := v.Write()

	w2Ready := make(chan error, 1)
	go func() {
		w2Ready <- w2.Await(ctx)
	}()

	select {
	case <-w2Ready:
		t.Fatal("w2.Await must not become ready before w1 drains")
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, w1.Await(ctx))
	require.NoError(t, w1.Commit(1))

	select {
	case err := <-w2Ready:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("w2.Await never became ready after w1 drained")
	}
	require.NoError(t, w2.Commit(2))

	got, err := v.Read().Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, got, "the tail epoch's committed value must win, in order")
}

func TestAsync_WeakRefDoesNotKeepValueAliveAlone(t *testing.T) {
	v := NewValue(3)
	w := v.Weak()

	promoted, ok := tryPromote(w)
	require.True(t, ok)
	promoted.releaseStrong()

	v.cell.releaseStrong() // drop the handle's own strong reference
	_, ok = tryPromote(w)
	assert.False(t, ok)
}

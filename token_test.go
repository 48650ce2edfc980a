package asyncflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadToken_UninitializedCellReportsErrUninitializedRead(t *testing.T) {
	c := newCell[int]()
	q := newEpochQueue(c)
	q.initialize(false)
	// Force an epoch that is already "written" but whose cell was never
	// constructed, which ReadToken.Await must distinguish from cancellation.
	e := newEpoch(q, true)

	tok := newReadToken(c, q, e)
	_, err := tok.Await(context.Background())
	assert.Same(t, ErrUninitializedRead, err)
}

func TestReadToken_MaybeReportsAbsenceWithoutError(t *testing.T) {
	v := New[int]()
	w := v.Write()
	require.NoError(t, w.Await(context.Background()))
	w.Release()

	_, ok := v.Read().Maybe(context.Background())
	assert.False(t, ok)
}

func TestReadToken_ReleaseIsIdempotent(t *testing.T) {
	v := NewValue(1)
	tok := v.Read()
	tok.Release()
	tok.Release() // must not panic or double-decrement
}

func TestWriteToken_CommitTwiceReportsTokenMisuse(t *testing.T) {
	v := New[int]()
	w := v.Write()
	require.NoError(t, w.Await(context.Background()))
	require.NoError(t, w.Commit(1))

	err := w.Commit(2)
	var tme *TokenMisuseError
	assert.ErrorAs(t, err, &tme)

	got, rerr := v.Read().Await(context.Background())
	require.NoError(t, rerr)
	assert.Equal(t, 1, got, "the second, rejected commit must not overwrite the first")
}

func TestEmplaceToken_ReleaseWithoutEmplaceFailsEpoch(t *testing.T) {
	v := New[int]()
	e := v.Emplace()
	require.NoError(t, e.Await(context.Background()))
	e.Release()

	_, err := v.Read().Await(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCancelled)
}

func TestMutateToken_OnNeverWrittenValueStartsFromZero(t *testing.T) {
	v := New[int]()
	m := v.Mutate()
	cur, err := m.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, cur)
	require.NoError(t, m.Commit(cur+5))

	got, err := v.Read().Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, got)
}

package zokio

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func cellWithID(id uint64) *taskCell {
	c := &taskCell{id: id}
	return c
}

func TestWorkerDequePushPopBottomLIFO(t *testing.T) {
	d := newWorkerDeque(4)
	a, b, c := cellWithID(1), cellWithID(2), cellWithID(3)
	require.True(t, d.PushBottom(a))
	require.True(t, d.PushBottom(b))
	require.True(t, d.PushBottom(c))

	got, ok := d.PopBottom()
	require.True(t, ok)
	require.Equal(t, c, got)

	got, ok = d.PopBottom()
	require.True(t, ok)
	require.Equal(t, b, got)
}

func TestWorkerDequePopTopFIFOAgainstOwner(t *testing.T) {
	d := newWorkerDeque(4)
	a, b := cellWithID(1), cellWithID(2)
	d.PushBottom(a)
	d.PushBottom(b)

	got, ok := d.PopTop()
	require.True(t, ok)
	require.Equal(t, a, got)
}

func TestWorkerDequeOverflowReturnsFalse(t *testing.T) {
	d := newWorkerDeque(2)
	require.True(t, d.PushBottom(cellWithID(1)))
	require.True(t, d.PushBottom(cellWithID(2)))
	require.False(t, d.PushBottom(cellWithID(3)))
}

func TestWorkerDequeEmptyPopsFail(t *testing.T) {
	d := newWorkerDeque(2)
	_, ok := d.PopBottom()
	require.False(t, ok)
	_, ok = d.PopTop()
	require.False(t, ok)
}

func TestWorkerDequePopTopNBatchSteal(t *testing.T) {
	d := newWorkerDeque(8)
	for i := uint64(1); i <= 5; i++ {
		d.PushBottom(cellWithID(i))
	}
	batch := d.PopTopN(3)
	require.Len(t, batch, 3)
	require.Equal(t, uint64(1), batch[0].id)
	require.Equal(t, uint64(2), batch[1].id)
	require.Equal(t, uint64(3), batch[2].id)
	require.Equal(t, 2, d.len())

	// Requesting more than available returns only what's left.
	rest := d.PopTopN(10)
	require.Len(t, rest, 2)
	require.Equal(t, 0, d.len())
}

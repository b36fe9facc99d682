package zokio

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeWakerTarget struct {
	wakes int
}

func (f *fakeWakerTarget) wake() { f.wakes++ }

func TestNoopWaker(t *testing.T) {
	w := NoopWaker()
	require.True(t, w.IsNoop())
	// Must not panic even though there is no target.
	w.Wake()
	w.WakeByRef()
	clone := w.Clone()
	require.True(t, clone.IsNoop())
}

func TestWakerDispatchesToTarget(t *testing.T) {
	target := &fakeWakerTarget{}
	w := Waker{target: target}
	require.False(t, w.IsNoop())

	w.WakeByRef()
	require.Equal(t, 1, target.wakes)

	// Wake and WakeByRef are equivalent for this type (no ownership
	// transfer to actually consume on Wake).
	w.Clone().Wake()
	require.Equal(t, 2, target.wakes)
}

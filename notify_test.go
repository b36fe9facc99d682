package zokio

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNotifierWakesRegisteredWaker(t *testing.T) {
	n := newNotifier()
	target := &fakeWakerTarget{}
	w := Waker{target: target}

	already := n.poll(w)
	require.False(t, already)
	require.False(t, n.IsDone())

	n.Notify()
	require.True(t, n.IsDone())
	require.Equal(t, 1, target.wakes)
}

func TestNotifierNotifyNotifyIsIdempotent(t *testing.T) {
	// Notify + notify leaves the notifier complete; redundant notifies
	// are no-ops.
	n := newNotifier()
	target := &fakeWakerTarget{}
	n.poll(Waker{target: target})

	n.Notify()
	n.Notify()

	require.True(t, n.IsDone())
	require.Equal(t, 1, target.wakes)
}

func TestNotifierPollAfterCompleteReturnsImmediately(t *testing.T) {
	n := newNotifier()
	n.Notify()

	target := &fakeWakerTarget{}
	already := n.poll(Waker{target: target})
	require.True(t, already)
	// The waker is not retained once already complete, so it must never
	// be fired by a subsequent (non-existent) notify.
	require.Equal(t, 0, target.wakes)
}

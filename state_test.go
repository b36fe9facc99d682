package zokio

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTaskStateRunningTransitions(t *testing.T) {
	var s taskState
	s.init(stateJoinInterest)

	require.True(t, s.tryAcquireRunning())
	// A second, concurrent acquire attempt must fail while RUNNING.
	require.False(t, s.tryAcquireRunning())

	wasNotified := s.releaseRunning()
	require.False(t, wasNotified)
	require.True(t, s.tryAcquireRunning())
}

func TestTaskStateWakeWakeCollapses(t *testing.T) {
	// Wake + wake (back-to-back) schedules the task at least once;
	// collapsed wakes are allowed. markNotified is idempotent while
	// RUNNING, so a poller observes NOTIFIED exactly once regardless of
	// how many wakes landed during its poll.
	var s taskState
	s.init(0)
	require.True(t, s.tryAcquireRunning())

	wasRunning1 := s.markNotified()
	wasRunning2 := s.markNotified()
	require.True(t, wasRunning1)
	require.True(t, wasRunning2)

	wasNotified := s.releaseRunning()
	require.True(t, wasNotified)
	// Once observed and cleared, a further release must not re-report it.
	require.False(t, s.load()&stateNotified != 0)
}

func TestTaskStateMarkCompleteAndCancelled(t *testing.T) {
	var s taskState
	s.init(0)
	require.False(t, s.isComplete())
	s.markComplete()
	require.True(t, s.isComplete())

	require.False(t, s.isCancelled())
	s.markCancelled()
	require.True(t, s.isCancelled())
	// Idempotent.
	s.markCancelled()
	require.True(t, s.isCancelled())
}

func TestTaskStateWakingCompletedIsNoop(t *testing.T) {
	var s taskState
	s.init(0)
	s.markComplete()
	wasRunning := s.markNotified()
	require.True(t, wasRunning)
	require.False(t, s.load()&stateNotified != 0)
}

func TestTaskStateJoinInterest(t *testing.T) {
	var s taskState
	s.init(stateJoinInterest)
	require.True(t, s.hasJoinInterest())
	s.clearJoinInterest()
	require.False(t, s.hasJoinInterest())
	s.clearJoinInterest()
	require.False(t, s.hasJoinInterest())
}

package zokio

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPollReadyAndPending(t *testing.T) {
	r := Ready(42)
	require.True(t, r.IsReady())
	v, ok := r.Value()
	require.True(t, ok)
	require.Equal(t, 42, v)

	p := Pending[int]()
	require.False(t, p.IsReady())
	v, ok = p.Value()
	require.False(t, ok)
	require.Zero(t, v)

	// The zero value of Poll[T] is Pending, per poll.go's doc comment.
	var zero Poll[string]
	require.False(t, zero.IsReady())
}

func TestFutureFuncAdapts(t *testing.T) {
	var calls int
	f := FutureFunc[int](func(ctx *Context) Poll[int] {
		calls++
		return Ready(calls)
	})
	var fut Future[int] = f
	p := fut.Poll(nil)
	v, ok := p.Value()
	require.True(t, ok)
	require.Equal(t, 1, v)
	require.Equal(t, 1, calls)
}

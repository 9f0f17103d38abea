package coordinator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestKeyQueueFIFO(t *testing.T) {
	q := newKeyQueue(7, "orders")
	a := newJob(q, noopWork, nil, 0)
	b := newJob(q, noopWork, nil, 0)
	c := newJob(q, noopWork, nil, 0)

	require.True(t, q.empty())
	require.Nil(t, q.poll())

	q.push(a)
	q.push(b)
	q.push(c)

	require.Same(t, a, q.poll())

	// a rejected dispatch goes back to the head
	q.pushFront(a)
	require.Same(t, a, q.poll())
	require.Same(t, b, q.poll())
	require.Same(t, c, q.poll())
	require.True(t, q.empty())
	require.Equal(t, uint64(3), q.enqueued)
}

func TestKeyQueueExecuting(t *testing.T) {
	q := newKeyQueue(1, "k")
	j := newJob(q, noopWork, nil, 0)

	require.True(t, q.idle())
	q.setExecuting(j)
	require.Same(t, j, q.getExecuting())
	require.False(t, q.idle())

	st := q.stats()
	require.True(t, st.Executing)
	require.Equal(t, j.id, st.ExecutingID)

	q.setExecuting(nil)
	require.True(t, q.idle())
}

func TestKeyQueueMovingAverage(t *testing.T) {
	q := newKeyQueue(1, "k")

	q.onFinished(100 * time.Millisecond)
	require.InDelta(t, 100.0, q.avgMs, 1e-9)

	q.onFinished(200 * time.Millisecond)
	require.InDelta(t, 101.0, q.avgMs, 1e-9)
	require.Equal(t, uint64(2), q.finished)
	require.InDelta(t, 101.0, q.stats().MovingAverageMillis, 1e-9)
}

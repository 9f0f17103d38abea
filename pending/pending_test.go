package pending

import (
	"context"
	stderr "errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFutureCompletesOnce(t *testing.T) {
	f := NewFuture()

	var calls int32
	f.OnComplete(func(err error) {
		atomic.AddInt32(&calls, 1)
		assert.NoError(t, err)
	})

	require.True(t, f.Resolve())
	require.False(t, f.Reject(stderr.New("late")))
	require.NoError(t, f.Err())
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))

	select {
	case <-f.Done():
	default:
		t.Fatal("done channel must be closed")
	}
}

func TestFutureCallbackAfterCompletionRunsInline(t *testing.T) {
	cause := stderr.New("boom")
	f := Rejected(cause)

	var got error
	f.OnComplete(func(err error) {
		got = err
	})

	require.ErrorIs(t, got, cause)
}

func TestRejectWithoutCause(t *testing.T) {
	f := NewFuture()
	f.Reject(nil)
	require.ErrorIs(t, f.Err(), ErrRejected)
}

func TestJoin(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		var got error = stderr.New("unset")
		Join().OnComplete(func(err error) { got = err })
		require.NoError(t, got)
	})

	t.Run("nil members are skipped", func(t *testing.T) {
		var got error = stderr.New("unset")
		Join(nil, Resolved(), nil).OnComplete(func(err error) { got = err })
		require.NoError(t, got)
	})

	t.Run("nil futures are skipped", func(t *testing.T) {
		var f *Future
		a := NewFuture()
		joint := Join(f, a).(*Future)

		select {
		case <-joint.Done():
			t.Fatal("joint completed before the live member")
		default:
		}

		a.Resolve()
		<-joint.Done()
		require.NoError(t, joint.Err())
	})

	t.Run("waits for every member", func(t *testing.T) {
		a, b := NewFuture(), NewFuture()
		joint := Join(a, b).(*Future)

		a.Resolve()
		select {
		case <-joint.Done():
			t.Fatal("joint completed before all members")
		default:
		}

		b.Resolve()
		<-joint.Done()
		require.NoError(t, joint.Err())
	})

	t.Run("fails fast", func(t *testing.T) {
		cause := stderr.New("member failed")
		a, b := NewFuture(), NewFuture()
		joint := Join(a, b).(*Future)

		b.Reject(cause)
		<-joint.Done()
		require.ErrorIs(t, joint.Err(), cause)

		// the late success does not flip the outcome
		a.Resolve()
		require.ErrorIs(t, joint.Err(), cause)
	})
}

func TestAbsent(t *testing.T) {
	require.True(t, Absent(nil))
	require.True(t, Absent([]Result{nil, nil}))
	require.False(t, Absent([]Result{nil, Resolved()}))

	var f *Future
	require.True(t, Absent([]Result{f, nil}))
}

func TestNilFuture(t *testing.T) {
	var f *Future

	var got error = stderr.New("unset")
	f.OnComplete(func(err error) { got = err })
	require.NoError(t, got)

	require.False(t, f.Complete(stderr.New("ignored")))
	require.NoError(t, f.Err())
	<-f.Done()

	require.NoError(t, Wait(context.Background(), f, Resolved()))
}

func TestGo(t *testing.T) {
	cause := stderr.New("work failed")
	f := Go(context.Background(), func(context.Context) error {
		time.Sleep(10 * time.Millisecond)
		return cause
	})

	<-f.Done()
	require.ErrorIs(t, f.Err(), cause)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f = Go(ctx, func(context.Context) error {
		t.Error("must not run with a canceled context")
		return nil
	})
	<-f.Done()
	require.ErrorIs(t, f.Err(), context.Canceled)
}

func TestWait(t *testing.T) {
	a, b := NewFuture(), NewFuture()
	go func() {
		time.Sleep(5 * time.Millisecond)
		a.Resolve()
		b.Resolve()
	}()
	require.NoError(t, Wait(context.Background(), a, nil, b))

	cause := stderr.New("second failed")
	require.ErrorIs(t, Wait(context.Background(), Resolved(), Rejected(cause)), cause)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, Wait(ctx, NewFuture()), context.DeadlineExceeded)
}

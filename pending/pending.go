package pending

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/roadrunner-server/errors"
	"golang.org/x/sync/errgroup"
)

// ErrRejected is used as the failure cause when Reject is called with a nil error.
var ErrRejected = errors.Str("pending: result rejected without a cause")

// Result is an asynchronous outcome. fn is called exactly once with nil on
// success or the failure cause.
type Result interface {
	OnComplete(fn func(err error))
}

// Future is a settable Result. The first call to Complete wins. A nil *Future
// counts as already succeeded.
type Future struct {
	mu        sync.Mutex
	done      chan struct{}
	err       error
	completed bool
	callbacks []func(error)
}

// closed channel returned by Done of a nil future
var settled = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Resolved returns a future which already succeeded.
func Resolved() *Future {
	f := NewFuture()
	f.Resolve()
	return f
}

// Rejected returns a future which already failed with err.
func Rejected(err error) *Future {
	f := NewFuture()
	f.Reject(err)
	return f
}

// Go runs fn on its own goroutine and completes the returned future with its error.
func Go(ctx context.Context, fn func(ctx context.Context) error) *Future {
	f := NewFuture()

	go func() {
		select {
		case <-ctx.Done():
			f.Complete(ctx.Err())
			return
		default:
		}

		f.Complete(fn(ctx))
	}()

	return f
}

// Complete settles the future. It reports false if the future was already settled.
func (f *Future) Complete(err error) bool {
	if f == nil {
		return false
	}

	f.mu.Lock()
	if f.completed {
		f.mu.Unlock()
		return false
	}

	f.completed = true
	f.err = err
	cbs := f.callbacks
	f.callbacks = nil
	close(f.done)
	f.mu.Unlock()

	for i := 0; i < len(cbs); i++ {
		cbs[i](err)
	}

	return true
}

func (f *Future) Resolve() bool {
	return f.Complete(nil)
}

func (f *Future) Reject(err error) bool {
	if err == nil {
		err = ErrRejected
	}

	return f.Complete(err)
}

// OnComplete registers fn. If the future is already settled fn runs immediately
// on the calling goroutine.
func (f *Future) OnComplete(fn func(err error)) {
	if f == nil {
		fn(nil)
		return
	}

	f.mu.Lock()
	if f.completed {
		err := f.err
		f.mu.Unlock()
		fn(err)
		return
	}

	f.callbacks = append(f.callbacks, fn)
	f.mu.Unlock()
}

// Done is closed once the future is settled.
func (f *Future) Done() <-chan struct{} {
	if f == nil {
		return settled
	}

	return f.done
}

// Err returns the failure cause, nil while pending or on success.
func (f *Future) Err() error {
	if f == nil {
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// Join combines results into one. The joint result fails with the first failure
// observed and succeeds when every non-nil member succeeded.
func Join(results ...Result) Result {
	joint := NewFuture()

	members := make([]Result, 0, len(results))
	for i := 0; i < len(results); i++ {
		if present(results[i]) {
			members = append(members, results[i])
		}
	}

	if len(members) == 0 {
		joint.Resolve()
		return joint
	}

	remaining := int64(len(members))
	for i := 0; i < len(members); i++ {
		members[i].OnComplete(func(err error) {
			if err != nil {
				joint.Complete(err)
				return
			}

			if atomic.AddInt64(&remaining, -1) == 0 {
				joint.Complete(nil)
			}
		})
	}

	return joint
}

// Absent reports whether results carries nothing to wait for.
func Absent(results []Result) bool {
	for i := 0; i < len(results); i++ {
		if present(results[i]) {
			return false
		}
	}

	return true
}

// Wait blocks until every result completed, the first failure, or ctx is done.
func Wait(ctx context.Context, results ...Result) error {
	g, gctx := errgroup.WithContext(ctx)

	for i := range results {
		if !present(results[i]) {
			continue
		}

		i := i
		g.Go(func() error {
			ch := make(chan error, 1)
			results[i].OnComplete(func(err error) {
				ch <- err
			})

			select {
			case err := <-ch:
				return err
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	}

	return g.Wait()
}

// present reports whether r carries an outcome to wait for. Nil interfaces and
// nil futures are treated as succeeded.
func present(r Result) bool {
	if r == nil {
		return false
	}

	if f, ok := r.(*Future); ok && f == nil {
		return false
	}

	return true
}

package coordinator

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/roadrunner-server/errors"
	"go.uber.org/zap"
)

// DispatcherState is the lifecycle of the dispatch loop.
type DispatcherState int32

const (
	NotStarted DispatcherState = iota
	Running
	Draining
	Stopped
)

func (s DispatcherState) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case Running:
		return "running"
	case Draining:
		return "draining"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// dispatcher is the single loop handing the head job of every idle key queue
// to the pool.
type dispatcher struct {
	log         *zap.Logger
	reg         *registry
	pollTimeout time.Duration

	// submit hands the job to the pool, dispatched runs after a successful submit
	submit     func(j *job) error
	dispatched func(j *job)

	state  atomic.Int32
	wakeCh chan struct{}
	doneCh chan struct{}
}

func newDispatcher(log *zap.Logger, reg *registry, pollTimeout time.Duration, submit func(*job) error, dispatched func(*job)) *dispatcher {
	return &dispatcher{
		log:         log,
		reg:         reg,
		pollTimeout: pollTimeout,
		submit:      submit,
		dispatched:  dispatched,
		// capacity 1: a pending wakeup is the "job available" flag
		wakeCh: make(chan struct{}, 1),
		doneCh: make(chan struct{}),
	}
}

// start launches the loop once. Subsequent calls are no-ops.
func (d *dispatcher) start() bool {
	if !d.state.CompareAndSwap(int32(NotStarted), int32(Running)) {
		return false
	}

	go d.run()
	return true
}

func (d *dispatcher) wake() {
	select {
	case d.wakeCh <- struct{}{}:
	default:
	}
}

func (d *dispatcher) State() DispatcherState {
	return DispatcherState(d.state.Load())
}

// stop requests the loop to exit. A loop which never started goes straight to Stopped.
func (d *dispatcher) stop() {
	if d.state.CompareAndSwap(int32(NotStarted), int32(Stopped)) {
		close(d.doneCh)
		return
	}

	d.state.CompareAndSwap(int32(Running), int32(Draining))
	d.wake()
}

// wait blocks until the loop exited or ctx is done.
func (d *dispatcher) wait(ctx context.Context) error {
	const op = errors.Op("coordinator_dispatcher_wait")
	select {
	case <-d.doneCh:
		return nil
	case <-ctx.Done():
		return errors.E(op, ctx.Err())
	}
}

func (d *dispatcher) run() {
	defer func() {
		d.state.Store(int32(Stopped))
		close(d.doneCh)
		d.log.Debug("------> dispatcher was stopped <------")
	}()

	timer := time.NewTimer(d.pollTimeout)
	defer timer.Stop()

	for {
		d.pass()

		select {
		case <-d.wakeCh:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		case <-timer.C:
		}

		if d.State() != Running || d.reg.isStopped() {
			return
		}

		timer.Reset(d.pollTimeout)
	}
}

// pass dispatches the head of every key queue which has nothing executing.
func (d *dispatcher) pass() {
	d.reg.each(func(key string, q *keyQueue) {
		if q.getExecuting() != nil {
			return
		}

		j := q.poll()
		if j == nil {
			d.reg.remove(key)
			return
		}

		// marked before submit, the task can not clear it before we release the lock
		q.setExecuting(j)
		err := d.submit(j)
		if err != nil {
			q.setExecuting(nil)
			q.pushFront(j)
			d.log.Warn("job submission rejected, job stays queued", zap.String("key", key), zap.Uint64("id", j.id), zap.Error(err))
			return
		}

		d.dispatched(j)
	})
}

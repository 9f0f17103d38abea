package coordinator

import (
	"context"
	"runtime/debug"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// processor runs task bodies on at most maxWorkers goroutines. Submission never
// blocks: tasks above the limit wait on the semaphore in FIFO order.
type processor struct {
	log        *zap.Logger
	sem        *semaphore.Weighted
	maxWorkers int

	ctx    context.Context
	cancel context.CancelFunc

	active  *int64
	stopped *int64
}

// args:
// log - logger
// maxWorkers - number of task bodies allowed to run at the same time
func newProcessor(log *zap.Logger, maxWorkers int) *processor {
	ctx, cancel := context.WithCancel(context.Background())

	return &processor{
		log:        log,
		sem:        semaphore.NewWeighted(int64(maxWorkers)),
		maxWorkers: maxWorkers,
		ctx:        ctx,
		cancel:     cancel,
		active:     ptrTo(int64(0)),
		stopped:    ptrTo(int64(0)),
	}
}

// add schedules fn. It fails with ErrPoolStopped once stop was called. fn gets
// a context which is canceled on stop.
func (p *processor) add(name string, fn func(ctx context.Context)) error {
	if atomic.LoadInt64(p.stopped) == 1 {
		p.log.Warn("processor was stopped, can't add a new task", zap.String("task", name))
		return ErrPoolStopped
	}

	go func() {
		err := p.sem.Acquire(p.ctx, 1)
		if err != nil {
			p.log.Debug("task abandoned, processor was stopped", zap.String("task", name))
			return
		}
		defer p.sem.Release(1)

		// the semaphore may hand out a free slot even with a canceled context
		if p.ctx.Err() != nil {
			p.log.Debug("task abandoned, processor was stopped", zap.String("task", name))
			return
		}

		atomic.AddInt64(p.active, 1)
		defer atomic.AddInt64(p.active, -1)

		defer func() {
			if r := recover(); r != nil {
				p.log.Error("task panicked", zap.String("task", name), zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			}
		}()

		fn(p.ctx)
	}()

	return nil
}

func (p *processor) running() int64 {
	return atomic.LoadInt64(p.active)
}

// stop rejects new tasks and cancels the running and waiting ones. Running
// bodies are not joined.
func (p *processor) stop() {
	if !atomic.CompareAndSwapInt64(p.stopped, 0, 1) {
		return
	}

	p.cancel()
	p.log.Debug("exited from coordinator processor")
}

func ptrTo[T any](v T) *T {
	return &v
}

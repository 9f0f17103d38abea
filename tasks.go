package coordinator

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/roadrunner-server/coordinator/v4/pending"
	"github.com/roadrunner-server/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

func (c *Coordinator) submitMain(j *job) error {
	return c.pool.add("main_task", func(ctx context.Context) {
		c.mainTask(ctx, j)
	})
}

func (c *Coordinator) submitRollback(j *job) error {
	return c.pool.add("rollback_task", func(ctx context.Context) {
		c.rollbackTask(ctx, j)
	})
}

func (c *Coordinator) mainTask(ctx context.Context, j *job) {
	if j.Phase() != PhaseMain {
		return
	}

	start := time.Now().UTC()
	j.markStarted(start)
	attempt := j.attempts.Add(1)

	ctx, span := c.tracer.Start(ctx, "main_task", trace.WithAttributes(
		attribute.String("key", j.key),
		attribute.Int64("id", int64(j.id)), //nolint:gosec
		attribute.Int("attempt", int(attempt)),
	))
	defer span.End()

	c.log.Debug("job processing was started", zap.String("key", j.key), zap.Uint64("id", j.id), zap.Int32("attempt", attempt), zap.Time("start", start))

	results, err := invoke(func() ([]pending.Result, error) {
		return j.main(ctx)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "main work failed")
		c.log.Error("job main work failed, no retry for synchronous failures", zap.String("key", j.key), zap.Uint64("id", j.id), zap.Int32("attempt", attempt), zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		c.markFailed(j)
		c.clear(j)
		return
	}

	if pending.Absent(results) {
		c.clear(j)
		return
	}

	j.setResults(results)
	c.await(j, results)
}

func (c *Coordinator) rollbackTask(ctx context.Context, j *job) {
	start := time.Now().UTC()

	ctx, span := c.tracer.Start(ctx, "rollback_task", trace.WithAttributes(
		attribute.String("key", j.key),
		attribute.Int64("id", int64(j.id)), //nolint:gosec
	))
	defer span.End()

	c.log.Debug("job rollback was started", zap.String("key", j.key), zap.Uint64("id", j.id), zap.Time("start", start))

	last := j.lastResults()
	results, err := invoke(func() ([]pending.Result, error) {
		return j.rollback(ctx, last)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "rollback work failed")
		c.log.Error("job rollback failed", zap.String("key", j.key), zap.Uint64("id", j.id), zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		c.clear(j)
		return
	}

	if pending.Absent(results) {
		c.clear(j)
		return
	}

	j.setResults(results)
	c.await(j, results)
}

// await hands the joint outcome of results to the completion protocol. A result
// panicking while the callback is attached counts as a failed attempt. Exactly
// one outcome is delivered per attempt.
func (c *Coordinator) await(j *job, results []pending.Result) {
	const op = errors.Op("coordinator_await_results")

	var delivered atomic.Bool
	deliver := func(o Outcome) {
		if delivered.CompareAndSwap(false, true) {
			c.complete(j, o)
		}
	}

	defer func() {
		if r := recover(); r != nil {
			c.log.Error("pending result panicked", zap.String("key", j.key), zap.Uint64("id", j.id), zap.Any("panic", r))
			deliver(Failure(errors.E(op, errors.Errorf("pending result panicked: %v", r))))
		}
	}()

	pending.Join(results...).OnComplete(func(err error) {
		if err != nil {
			deliver(Failure(err))
			return
		}

		deliver(Success())
	})
}

// invoke turns a panic in work into an error.
func invoke(work func() ([]pending.Result, error)) (res []pending.Result, err error) {
	const op = errors.Op("coordinator_invoke_work")
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = errors.E(op, errors.Errorf("work panicked: %v", r))
		}
	}()

	return work()
}

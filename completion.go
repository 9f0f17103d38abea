package coordinator

import (
	"time"

	"go.uber.org/zap"
)

// Outcome is the joint result of one main or rollback attempt.
type Outcome struct {
	failed bool
	cause  error
}

func Success() Outcome {
	return Outcome{}
}

func Failure(cause error) Outcome {
	return Outcome{failed: true, cause: cause}
}

func (o Outcome) Failed() bool {
	return o.failed
}

func (o Outcome) Cause() error {
	return o.cause
}

// complete drives j after an attempt finished. It may run on any goroutine.
//
//	main      + success -> clear
//	main      + failure -> retry | rollback | clear
//	rollback  + success -> clear
//	rollback  + failure -> double fault, clear
func (c *Coordinator) complete(j *job, o Outcome) {
	if !o.Failed() {
		c.clear(j)
		return
	}

	switch j.Phase() {
	case PhaseMain:
		c.onMainFailure(j, o.Cause())
	case PhaseRollingBack:
		c.log.Error("job rollback failed, double fault", zap.String("key", j.key), zap.Uint64("id", j.id), zap.Error(o.Cause()))
		c.clear(j)
	case PhaseTerminal:
		// already cleared
	}
}

func (c *Coordinator) onMainFailure(j *job, cause error) {
	budget, ok := j.consumeRetry()
	if !ok {
		c.rollbackOrClear(j, cause)
		return
	}

	delay := retryDelay(c.cfg.RetryBaseDelay, budget)
	err := c.retries.schedule(delay, c.metrics.retries.Mark, func() {
		errS := c.submitMain(j)
		if errS != nil {
			c.log.Error("retry submission rejected", zap.String("key", j.key), zap.Uint64("id", j.id), zap.Error(errS))
			c.rollbackOrClear(j, errS)
		}
	})
	if err != nil {
		c.log.Error("retry scheduling rejected", zap.String("key", j.key), zap.Uint64("id", j.id), zap.Error(err))
		c.rollbackOrClear(j, err)
		return
	}

	c.log.Warn("job failed, retry scheduled", zap.String("key", j.key), zap.Uint64("id", j.id), zap.Int32("retries_left", j.RetriesLeft()), zap.Duration("delay", delay), zap.Error(cause))
}

// rollbackOrClear handles main work which will not be retried anymore.
func (c *Coordinator) rollbackOrClear(j *job, cause error) {
	c.markFailed(j)

	if j.rollback == nil {
		c.log.Error("job failed, no rollback configured", zap.String("key", j.key), zap.Uint64("id", j.id), zap.Int32("attempts", j.attempts.Load()), zap.Error(cause))
		c.clear(j)
		return
	}

	if !j.enterRollback() {
		return
	}

	c.log.Warn("job retries exhausted, rolling back", zap.String("key", j.key), zap.Uint64("id", j.id), zap.Int32("attempts", j.attempts.Load()), zap.Error(cause))

	err := c.submitRollback(j)
	if err != nil {
		// only happens during shutdown, the job is abandoned
		c.log.Error("rollback submission rejected, job abandoned", zap.String("key", j.key), zap.Uint64("id", j.id), zap.Error(err))
	}
}

// retryDelay is base divided by the budget left before this retry, in whole
// milliseconds: the delay grows as the budget shrinks.
func retryDelay(base time.Duration, budget int32) time.Duration {
	if budget <= 0 {
		return base
	}

	return time.Duration(base.Milliseconds()/int64(budget)) * time.Millisecond
}

func (c *Coordinator) markFailed(j *job) {
	if j.failed.CompareAndSwap(false, true) {
		c.metrics.failed.Mark()
	}
}

// clear finishes j. Only the first call has an effect.
func (c *Coordinator) clear(j *job) {
	if !j.terminate() {
		return
	}

	d := j.finish(time.Now().UTC())
	c.reg.finish(j, d)

	c.metrics.incomplete.Dec()
	c.metrics.cleared.Mark()

	c.log.Debug("job was cleared", zap.String("key", j.key), zap.Uint64("id", j.id), zap.Duration("elapsed", d))

	// the next job of this key can go
	c.disp.wake()
}

package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/roadrunner-server/errors"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

const tracerName string = "coordinator"

// Coordinator runs jobs so that jobs sharing a key never overlap, while jobs of
// different keys run in parallel on a bounded pool.
//
// Shutdown is forceful: running bodies get a canceled context and are not
// joined, scheduled retries are dropped. Jobs interrupted this way never finish,
// so jobs_pending and jobs_incomplete may stay above zero afterwards.
type Coordinator struct {
	id     uuid.UUID
	cfg    *Config
	log    *zap.Logger
	tracer trace.Tracer

	reg     *registry
	disp    *dispatcher
	pool    *processor
	retries *retryScheduler

	factory MetricsFactory
	metrics *jobMetrics

	stopOnce sync.Once
	stopErr  error
}

type Option func(*Coordinator)

// WithMetrics publishes the six job instruments through f instead of the
// built-in prometheus exporter.
func WithMetrics(f MetricsFactory) Option {
	return func(c *Coordinator) {
		if f != nil {
			c.factory = f
		}
	}
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Coordinator) {
		if tp != nil {
			c.tracer = tp.Tracer(tracerName)
		}
	}
}

// New creates a coordinator. The dispatcher starts with the first Enqueue.
func New(cfg *Config, log *zap.Logger, opts ...Option) (*Coordinator, error) {
	const op = errors.Op("coordinator_new")

	if cfg == nil {
		cfg = &Config{}
	}

	err := cfg.InitDefaults()
	if err != nil {
		return nil, errors.E(op, err)
	}

	if log == nil {
		log = zap.NewNop()
	}

	c := &Coordinator{
		id:     uuid.New(),
		cfg:    cfg,
		tracer: noop.NewTracerProvider().Tracer(tracerName),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.factory == nil {
		c.factory = newStatsExporter()
	}

	c.log = log.With(zap.String("coordinator_id", c.id.String()))
	c.metrics = newJobMetrics(c.factory)
	c.reg = newRegistry()
	c.pool = newProcessor(c.log, cfg.NumWorkers)
	c.retries = newRetryScheduler(c.log)
	c.disp = newDispatcher(c.log, c.reg, cfg.PollTimeout, c.submitMain, func(*job) {
		c.metrics.pending.Dec()
	})

	return c, nil
}

type enqueueOptions struct {
	rollback   RollbackWork
	maxRetries int
}

type EnqueueOption func(*enqueueOptions)

// WithRollback sets the compensating action run once the retries are exhausted.
func WithRollback(rb RollbackWork) EnqueueOption {
	return func(o *enqueueOptions) {
		o.rollback = rb
	}
}

// WithMaxRetries overrides Config.MaxRetries for a single job. Zero disables retries.
func WithMaxRetries(n int) EnqueueOption {
	return func(o *enqueueOptions) {
		o.maxRetries = n
	}
}

// Enqueue appends main to the queue of key and returns without waiting for it
// to run. Outcomes are visible only through the side effects of the work itself
// and the coordinator metrics.
func (c *Coordinator) Enqueue(key string, main MainWork, opts ...EnqueueOption) error {
	if key == "" {
		return ErrEmptyKey
	}

	if main == nil {
		return ErrNilWork
	}

	eo := &enqueueOptions{maxRetries: *c.cfg.MaxRetries}
	for _, opt := range opts {
		opt(eo)
	}

	if eo.maxRetries < 0 {
		return ErrNegativeRetries
	}

	j, err := c.reg.add(key, func(q *keyQueue) *job {
		// counted under the registry lock so the dispatcher never sees the job uncounted
		c.metrics.created.Mark()
		c.metrics.pending.Inc()
		c.metrics.incomplete.Inc()
		return newJob(q, main, eo.rollback, eo.maxRetries)
	})
	if err != nil {
		return err
	}

	if c.disp.start() {
		c.log.Debug("dispatcher started", zap.Int("workers", c.cfg.NumWorkers))
	}
	c.disp.wake()

	c.log.Debug("job was enqueued", zap.String("key", key), zap.Uint64("id", j.id), zap.Uint64("queue_id", j.queueID), zap.Int("max_retries", eo.maxRetries))
	return nil
}

// Shutdown stops accepting jobs, cancels the pool and pending retries and waits
// for the dispatcher to exit, bounded by ctx and Config.ShutdownTimeout. It does
// not wait for running jobs. Calls after the first return the first result.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.stopOnce.Do(func() {
		const op = errors.Op("coordinator_shutdown")
		start := time.Now().UTC()

		c.reg.stop()
		c.disp.stop()
		c.pool.stop()
		c.retries.stop()

		ctx, cancel := context.WithTimeout(ctx, c.cfg.ShutdownTimeout)
		defer cancel()

		err := c.disp.wait(ctx)
		if err != nil {
			c.stopErr = errors.E(op, err)
			c.log.Error("dispatcher did not stop in time", zap.Error(err))
			return
		}

		st := c.metrics.stats()
		c.log.Debug("coordinator was stopped", zap.Int64("incomplete", st.Incomplete), zap.Int64("pending", st.Pending), zap.Duration("elapsed", time.Since(start)))
	})

	return c.stopErr
}

// ID identifies the coordinator instance in logs and stats.
func (c *Coordinator) ID() string {
	return c.id.String()
}

func (c *Coordinator) State() DispatcherState {
	return c.disp.State()
}

// Stats returns the values of the six job instruments.
func (c *Coordinator) Stats() Stats {
	return c.metrics.stats()
}

// QueueStats returns the snapshot of the queue of key. Queues are dropped once
// drained, so ok is false for keys with nothing queued or running.
func (c *Coordinator) QueueStats(key string) (QueueStats, bool) {
	return c.reg.stats(key)
}

// Queues returns snapshots of all live queues ordered by creation.
func (c *Coordinator) Queues() []QueueStats {
	return c.reg.snapshot()
}

package coordinator_test

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/roadrunner-server/coordinator/v4"
	"github.com/roadrunner-server/coordinator/v4/pending"
	"github.com/roadrunner-server/errors"
)

var _ = Describe("Keyed job coordination", func() {
	var (
		c    *coordinator.Coordinator
		logs *observer.ObservedLogs
	)

	BeforeEach(func() {
		var core zapcore.Core
		core, logs = observer.New(zapcore.DebugLevel)

		var err error
		c, err = coordinator.New(&coordinator.Config{
			NumWorkers:     4,
			RetryBaseDelay: 20 * time.Millisecond,
			PollTimeout:    50 * time.Millisecond,
		}, zap.New(core))
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(c.Shutdown(context.Background())).To(Succeed())
	})

	cleared := func() int64 {
		return c.Stats().Cleared
	}

	Context("when main work fails asynchronously without retries or rollback", func() {
		It("clears the job once and counts one failure", func() {
			var attempts int32
			Expect(c.Enqueue("a", func(ctx context.Context) ([]pending.Result, error) {
				atomic.AddInt32(&attempts, 1)
				return []pending.Result{pending.Go(ctx, func(context.Context) error {
					return errors.Str("async failure")
				})}, nil
			}, coordinator.WithMaxRetries(0))).To(Succeed())

			Eventually(cleared).Should(Equal(int64(1)))
			Consistently(cleared, 100*time.Millisecond).Should(Equal(int64(1)))

			st := c.Stats()
			Expect(st.Failed).To(Equal(int64(1)))
			Expect(st.Retries).To(BeZero())
			Expect(st.Incomplete).To(BeZero())
			Expect(atomic.LoadInt32(&attempts)).To(Equal(int32(1)))
		})
	})

	Context("when main work succeeds on the last retry", func() {
		It("schedules two retries and never fails the job", func() {
			var attempts int32
			Expect(c.Enqueue("b", func(context.Context) ([]pending.Result, error) {
				if atomic.AddInt32(&attempts, 1) < 3 {
					return []pending.Result{pending.Rejected(errors.Str("not yet"))}, nil
				}
				return []pending.Result{pending.Resolved()}, nil
			}, coordinator.WithMaxRetries(2))).To(Succeed())

			Eventually(cleared).Should(Equal(int64(1)))

			st := c.Stats()
			Expect(st.Retries).To(Equal(int64(2)))
			Expect(st.Failed).To(BeZero())
			Expect(atomic.LoadInt32(&attempts)).To(Equal(int32(3)))
			Expect(logs.FilterMessage("job failed, retry scheduled").Len()).To(Equal(2))
		})
	})

	Context("when retries are exhausted and rollback succeeds", func() {
		It("runs the rollback once and clears the job", func() {
			var attempts, rollbacks int32
			Expect(c.Enqueue("c", func(context.Context) ([]pending.Result, error) {
				atomic.AddInt32(&attempts, 1)
				return []pending.Result{pending.Rejected(errors.Str("always"))}, nil
			}, coordinator.WithMaxRetries(1), coordinator.WithRollback(func(ctx context.Context, _ []pending.Result) ([]pending.Result, error) {
				atomic.AddInt32(&rollbacks, 1)
				return []pending.Result{pending.Go(ctx, func(context.Context) error {
					return nil
				})}, nil
			}))).To(Succeed())

			Eventually(cleared).Should(Equal(int64(1)))

			st := c.Stats()
			Expect(st.Retries).To(Equal(int64(1)))
			Expect(st.Failed).To(Equal(int64(1)))
			Expect(atomic.LoadInt32(&attempts)).To(Equal(int32(2)))
			Expect(atomic.LoadInt32(&rollbacks)).To(Equal(int32(1)))
			Expect(logs.FilterMessage("job rollback failed, double fault").Len()).To(BeZero())
		})
	})

	Context("when the rollback fails asynchronously", func() {
		It("logs a double fault and stops there", func() {
			var attempts, rollbacks int32
			Expect(c.Enqueue("d", func(context.Context) ([]pending.Result, error) {
				atomic.AddInt32(&attempts, 1)
				return []pending.Result{pending.Rejected(errors.Str("main"))}, nil
			}, coordinator.WithMaxRetries(0), coordinator.WithRollback(func(ctx context.Context, _ []pending.Result) ([]pending.Result, error) {
				atomic.AddInt32(&rollbacks, 1)
				return []pending.Result{pending.Go(ctx, func(context.Context) error {
					return errors.Str("rollback")
				})}, nil
			}))).To(Succeed())

			Eventually(func() int {
				return logs.FilterMessage("job rollback failed, double fault").Len()
			}).Should(Equal(1))
			Eventually(cleared).Should(Equal(int64(1)))

			Consistently(func() int32 {
				return atomic.LoadInt32(&attempts) + atomic.LoadInt32(&rollbacks)
			}, 100*time.Millisecond).Should(Equal(int32(2)))
			Expect(c.Stats().Incomplete).To(BeZero())
		})
	})

	Context("when two jobs share a key", func() {
		It("starts the second only after the first was cleared", func() {
			var (
				mu          sync.Mutex
				firstDone   time.Time
				secondStart time.Time
			)

			Expect(c.Enqueue("e", func(ctx context.Context) ([]pending.Result, error) {
				return []pending.Result{pending.Go(ctx, func(context.Context) error {
					time.Sleep(30 * time.Millisecond)
					mu.Lock()
					firstDone = time.Now()
					mu.Unlock()
					return nil
				})}, nil
			})).To(Succeed())

			Expect(c.Enqueue("e", func(context.Context) ([]pending.Result, error) {
				mu.Lock()
				secondStart = time.Now()
				mu.Unlock()
				return nil, nil
			})).To(Succeed())

			Eventually(cleared).Should(Equal(int64(2)))

			mu.Lock()
			defer mu.Unlock()
			Expect(firstDone).NotTo(BeZero())
			Expect(secondStart).To(BeTemporally(">=", firstDone))
		})
	})
})

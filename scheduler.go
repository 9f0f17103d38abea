package coordinator

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// retryScheduler delays re-submission of failed main tasks. It never runs task
// bodies itself, fn only hands the job back to the processor.
type retryScheduler struct {
	mu      sync.Mutex
	log     *zap.Logger
	timers  map[*time.Timer]struct{}
	stopped bool
}

func newRetryScheduler(log *zap.Logger) *retryScheduler {
	return &retryScheduler{
		log:    log,
		timers: make(map[*time.Timer]struct{}),
	}
}

// schedule runs fn after delay on a timer goroutine. armed, when set, runs under
// the scheduler lock once the retry is accepted, so it always precedes fn. It
// fails with ErrSchedulerStopped after stop.
func (s *retryScheduler) schedule(delay time.Duration, armed func(), fn func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		s.log.Warn("retry scheduler was stopped, rejecting retry", zap.Duration("delay", delay))
		return ErrSchedulerStopped
	}

	if armed != nil {
		armed()
	}

	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		s.mu.Lock()
		if s.stopped {
			s.mu.Unlock()
			return
		}
		delete(s.timers, t)
		s.mu.Unlock()

		fn()
	})

	s.timers[t] = struct{}{}
	return nil
}

func (s *retryScheduler) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// stop cancels every outstanding retry.
func (s *retryScheduler) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}

	s.stopped = true
	for t := range s.timers {
		t.Stop()
	}

	s.log.Debug("retry scheduler stopped", zap.Int("canceled", len(s.timers)))
	s.timers = nil
}

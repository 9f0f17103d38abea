package coordinator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roadrunner-server/coordinator/v4/pending"
)

// MainWork is the primary action of a job. A returned error (or a panic) is a
// synchronous failure and terminates the job without retry or rollback. The
// returned results are awaited jointly; their failure enters the retry protocol.
type MainWork func(ctx context.Context) ([]pending.Result, error)

// RollbackWork compensates a job whose main work exhausted its retries. It
// receives the results produced by the last main attempt.
type RollbackWork func(ctx context.Context, results []pending.Result) ([]pending.Result, error)

// Phase is the protocol phase of a job.
type Phase int32

const (
	PhaseMain Phase = iota
	PhaseRollingBack
	PhaseTerminal
)

func (p Phase) String() string {
	switch p {
	case PhaseMain:
		return "main"
	case PhaseRollingBack:
		return "rolling_back"
	case PhaseTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// process-wide, so ids never repeat between coordinators
var jobSeq atomic.Uint64

type job struct {
	id       uint64
	key      string
	queueID  uint64
	queue    *keyQueue
	main     MainWork
	rollback RollbackWork

	phase       atomic.Int32
	retryBudget atomic.Int32
	attempts    atomic.Int32
	// jobs_failed is marked at most once per job
	failed atomic.Bool

	mu        sync.Mutex
	results   []pending.Result
	createdAt time.Time
	startedAt time.Time
	endedAt   time.Time
}

func newJob(q *keyQueue, main MainWork, rollback RollbackWork, maxRetries int) *job {
	j := &job{
		id:        jobSeq.Add(1),
		key:       q.key,
		queueID:   q.id,
		queue:     q,
		main:      main,
		rollback:  rollback,
		createdAt: time.Now().UTC(),
	}

	j.retryBudget.Store(int32(maxRetries)) //nolint:gosec
	return j
}

func (j *job) Phase() Phase {
	return Phase(j.phase.Load())
}

// enterRollback moves the job from the main phase to the rollback phase. It
// succeeds once; afterwards the job can only terminate.
func (j *job) enterRollback() bool {
	return j.phase.CompareAndSwap(int32(PhaseMain), int32(PhaseRollingBack))
}

// terminate reports whether this call moved the job into the terminal phase.
func (j *job) terminate() bool {
	for {
		cur := j.phase.Load()
		if cur == int32(PhaseTerminal) {
			return false
		}

		if j.phase.CompareAndSwap(cur, int32(PhaseTerminal)) {
			return true
		}
	}
}

// consumeRetry takes one retry from the budget. It returns the budget as it was
// before the decrement; ok is false when the budget is already zero.
func (j *job) consumeRetry() (int32, bool) {
	for {
		cur := j.retryBudget.Load()
		if cur <= 0 {
			return 0, false
		}

		if j.retryBudget.CompareAndSwap(cur, cur-1) {
			return cur, true
		}
	}
}

func (j *job) RetriesLeft() int32 {
	return j.retryBudget.Load()
}

// markStarted records the first start only, retries keep the original time.
func (j *job) markStarted(t time.Time) {
	j.mu.Lock()
	if j.startedAt.IsZero() {
		j.startedAt = t
	}
	j.mu.Unlock()
}

// finish records the end time and returns the time spent since the first start.
func (j *job) finish(t time.Time) time.Duration {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.endedAt = t
	j.results = nil

	start := j.startedAt
	if start.IsZero() {
		start = j.createdAt
	}

	return t.Sub(start)
}

func (j *job) setResults(r []pending.Result) {
	j.mu.Lock()
	j.results = r
	j.mu.Unlock()
}

func (j *job) lastResults() []pending.Result {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.results
}

func (j *job) times() (started, ended time.Time) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.startedAt, j.endedAt
}

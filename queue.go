package coordinator

import (
	"time"
)

// moving average weight of the newest sample
const avgWeight = 0.01

// keyQueue holds the jobs of one key. It is not safe for concurrent use, every
// access happens under the registry lock.
type keyQueue struct {
	id        uint64
	key       string
	jobs      []*job
	executing *job

	enqueued uint64
	finished uint64
	avgMs    float64
	seeded   bool
}

func newKeyQueue(id uint64, key string) *keyQueue {
	return &keyQueue{
		id:   id,
		key:  key,
		jobs: make([]*job, 0, 1),
	}
}

func (q *keyQueue) push(j *job) {
	q.jobs = append(q.jobs, j)
	q.enqueued++
}

// pushFront returns a job which could not be dispatched to the head.
func (q *keyQueue) pushFront(j *job) {
	q.jobs = append(q.jobs, nil)
	copy(q.jobs[1:], q.jobs)
	q.jobs[0] = j
}

func (q *keyQueue) poll() *job {
	if len(q.jobs) == 0 {
		return nil
	}

	j := q.jobs[0]
	q.jobs[0] = nil
	q.jobs = q.jobs[1:]
	return j
}

func (q *keyQueue) empty() bool {
	return len(q.jobs) == 0
}

func (q *keyQueue) setExecuting(j *job) {
	q.executing = j
}

func (q *keyQueue) getExecuting() *job {
	return q.executing
}

// idle queues can be dropped from the registry
func (q *keyQueue) idle() bool {
	return q.executing == nil && len(q.jobs) == 0
}

func (q *keyQueue) onFinished(d time.Duration) {
	ms := float64(d) / float64(time.Millisecond)
	q.finished++

	if !q.seeded {
		q.avgMs = ms
		q.seeded = true
		return
	}

	q.avgMs = avgWeight*ms + (1-avgWeight)*q.avgMs
}

// QueueStats is a diagnostic snapshot of one key queue.
type QueueStats struct {
	QueueID             uint64  `json:"queue_id"`
	Key                 string  `json:"key"`
	Pending             int     `json:"pending"`
	Enqueued            uint64  `json:"enqueued"`
	Finished            uint64  `json:"finished"`
	MovingAverageMillis float64 `json:"moving_average_ms"`
	Executing           bool    `json:"executing"`
	ExecutingID         uint64  `json:"executing_id,omitempty"`
}

func (q *keyQueue) stats() QueueStats {
	st := QueueStats{
		QueueID:             q.id,
		Key:                 q.key,
		Pending:             len(q.jobs),
		Enqueued:            q.enqueued,
		Finished:            q.finished,
		MovingAverageMillis: q.avgMs,
	}

	if q.executing != nil {
		st.Executing = true
		st.ExecutingID = q.executing.id
	}

	return st
}

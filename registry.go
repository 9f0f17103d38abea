package coordinator

import (
	"sort"
	"sync"
	"time"
)

// registry maps keys to their queues. The same mutex guards the map, every
// queue in it and the stopped flag.
type registry struct {
	mu       sync.Mutex
	queues   map[string]*keyQueue
	queueSeq uint64
	stopped  bool
}

func newRegistry() *registry {
	return &registry{
		queues: make(map[string]*keyQueue),
	}
}

// add appends the job built by fn to the queue of key, creating the queue on
// first use. fn runs under the lock.
func (r *registry) add(key string, fn func(q *keyQueue) *job) (*job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return nil, ErrStopped
	}

	q, ok := r.queues[key]
	if !ok {
		r.queueSeq++
		q = newKeyQueue(r.queueSeq, key)
		r.queues[key] = q
	}

	j := fn(q)
	q.push(j)
	return j, nil
}

// finish releases the queue slot held by j and records its duration. The queue
// is dropped when nothing else waits on it.
func (r *registry) finish(j *job, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	q := j.queue
	if q.getExecuting() == j {
		q.setExecuting(nil)
	}
	q.onFinished(d)

	if q.idle() && r.queues[q.key] == q {
		delete(r.queues, q.key)
	}
}

// each calls fn for every queue under the lock. fn may delete the current key.
func (r *registry) each(fn func(key string, q *keyQueue)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return
	}

	for key, q := range r.queues {
		fn(key, q)
	}
}

// remove must be called with the lock held, i.e. from within each.
func (r *registry) remove(key string) {
	delete(r.queues, key)
}

func (r *registry) stop() {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()
}

func (r *registry) isStopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}

func (r *registry) stats(key string) (QueueStats, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	q, ok := r.queues[key]
	if !ok {
		return QueueStats{}, false
	}

	return q.stats(), true
}

func (r *registry) snapshot() []QueueStats {
	r.mu.Lock()
	out := make([]QueueStats, 0, len(r.queues))
	for _, q := range r.queues {
		out = append(out, q.stats())
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].QueueID < out[j].QueueID
	})

	return out
}

// Package coordinator implements a key-partitioned asynchronous job coordinator.
//
// Jobs are enqueued under a caller-supplied key. Jobs sharing a key run strictly
// one at a time in submission order; jobs of different keys run in parallel on a
// bounded pool. Main work returns pending results; when their joint outcome
// fails the job is retried after a delay, and once the retry budget is spent the
// optional rollback runs with the last pending results. A failing rollback is a
// double fault and ends the job.
//
// Everything is in memory. Enqueue is fire-and-forget: outcomes are observable
// only through the side effects of the work and the six job metrics.
//
// Key components:
//   - Coordinator: Enqueue, Shutdown and the introspection accessors
//   - dispatcher: the single loop feeding idle key queues into the processor
//   - processor: the bounded pool running main and rollback tasks
//   - retryScheduler: delays re-submission of failed main tasks
//   - Plugin: endure lifecycle wrapper with prometheus metrics and RPC stats
package coordinator

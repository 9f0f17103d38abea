package coordinator

import (
	"io"

	"github.com/goccy/go-json"
	"github.com/roadrunner-server/errors"
)

// Snapshot is the diagnostic view of a coordinator.
type Snapshot struct {
	ID               string       `json:"id"`
	State            string       `json:"state"`
	Workers          int          `json:"workers"`
	Running          int64        `json:"running"`
	ScheduledRetries int          `json:"scheduled_retries"`
	Stats            Stats        `json:"stats"`
	Queues           []QueueStats `json:"queues"`
}

func (c *Coordinator) Snapshot() *Snapshot {
	return &Snapshot{
		ID:               c.id.String(),
		State:            c.disp.State().String(),
		Workers:          c.cfg.NumWorkers,
		Running:          c.pool.running(),
		ScheduledRetries: c.retries.len(),
		Stats:            c.metrics.stats(),
		Queues:           c.reg.snapshot(),
	}
}

// WriteStats writes the snapshot to w as JSON.
func (c *Coordinator) WriteStats(w io.Writer) error {
	const op = errors.Op("coordinator_write_stats")

	err := json.NewEncoder(w).Encode(c.Snapshot())
	if err != nil {
		return errors.E(op, err)
	}

	return nil
}

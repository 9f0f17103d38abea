package coordinator

import (
	"github.com/roadrunner-server/errors"
)

type rpc struct {
	p *Plugin
}

// Empty is the request of argument-less RPC calls.
type Empty struct{}

// QueueRequest selects a key queue.
type QueueRequest struct {
	Key string `json:"key"`
}

func (r *rpc) Stat(_ *Empty, resp *Snapshot) error {
	const op = errors.Op("coordinator_rpc_stat")

	c := r.p.Coordinator()
	if c == nil {
		return errors.E(op, errors.Str("coordinator is not running"))
	}

	*resp = *c.Snapshot()
	return nil
}

func (r *rpc) Queue(req *QueueRequest, resp *QueueStats) error {
	const op = errors.Op("coordinator_rpc_queue")

	if req.Key == "" {
		return errors.E(op, ErrEmptyKey)
	}

	c := r.p.Coordinator()
	if c == nil {
		return errors.E(op, errors.Str("coordinator is not running"))
	}

	st, ok := c.QueueStats(req.Key)
	if !ok {
		return errors.E(op, errors.Errorf("no such queue, requested: %s", req.Key))
	}

	*resp = st
	return nil
}

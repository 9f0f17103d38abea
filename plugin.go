package coordinator

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/roadrunner-server/endure/v2/dep"
	"github.com/roadrunner-server/errors"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

const (
	PluginName string = "coordinator"
)

// Plugin runs a Coordinator inside the endure container so that other plugins
// can enqueue keyed jobs.
type Plugin struct {
	mu sync.RWMutex

	cfg    *Config `structure:"coordinator"`
	log    *zap.Logger
	tracer *sdktrace.TracerProvider

	metrics *statsExporter
	coord   *Coordinator
}

func (p *Plugin) Init(cfg Configurer, log Logger) error {
	const op = errors.Op("coordinator_plugin_init")
	if !cfg.Has(PluginName) {
		return errors.E(op, errors.Disabled)
	}

	err := cfg.UnmarshalKey(PluginName, &p.cfg)
	if err != nil {
		return errors.E(op, err)
	}

	if p.cfg == nil {
		p.cfg = &Config{}
	}

	err = p.cfg.InitDefaults()
	if err != nil {
		return errors.E(op, err)
	}

	p.log = log.NamedLogger(PluginName)
	p.metrics = newStatsExporter()

	return nil
}

func (p *Plugin) Serve() chan error {
	errCh := make(chan error, 1)
	const op = errors.Op("coordinator_plugin_serve")

	if p.tracer == nil {
		// noop tracer
		p.tracer = sdktrace.NewTracerProvider()
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	c, err := New(p.cfg, p.log, WithMetrics(p.metrics), WithTracerProvider(p.tracer))
	if err != nil {
		errCh <- errors.E(op, err)
		return errCh
	}

	p.coord = c
	return errCh
}

func (p *Plugin) Stop(ctx context.Context) error {
	p.mu.RLock()
	c := p.coord
	p.mu.RUnlock()

	if c == nil {
		return nil
	}

	return c.Shutdown(ctx)
}

func (p *Plugin) Collects() []*dep.In {
	return []*dep.In{
		dep.Fits(func(pp any) {
			p.tracer = pp.(Tracer).Tracer()
		}, (*Tracer)(nil)),
	}
}

func (p *Plugin) MetricsCollector() []prometheus.Collector {
	return []prometheus.Collector{p.metrics}
}

// Coordinator returns the running coordinator, nil before Serve.
func (p *Plugin) Coordinator() *Coordinator {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.coord
}

func (p *Plugin) Name() string {
	return PluginName
}

func (p *Plugin) RPC() any {
	return &rpc{
		p: p,
	}
}

package coordinator

import (
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "rr_coordinator"

	MetricJobsCreated    string = "jobs_created"
	MetricJobsCleared    string = "jobs_cleared"
	MetricJobsPending    string = "jobs_pending"
	MetricJobsIncomplete string = "jobs_incomplete"
	MetricJobsFailed     string = "jobs_failed"
	MetricJobsRetries    string = "jobs_retries_for_failure"
)

// Meter counts events.
type Meter interface {
	Mark()
	Get() int64
}

// Counter is a value moving both ways.
type Counter interface {
	Inc()
	Dec()
	Get() int64
}

// MetricsFactory creates named instruments. Asking twice for the same name
// returns the same instrument.
type MetricsFactory interface {
	Meter(name string) Meter
	Counter(name string) Counter
}

type instrument struct {
	value *int64
	desc  *prometheus.Desc
	vt    prometheus.ValueType
}

func (i *instrument) Mark() {
	atomic.AddInt64(i.value, 1)
}

func (i *instrument) Inc() {
	atomic.AddInt64(i.value, 1)
}

func (i *instrument) Dec() {
	atomic.AddInt64(i.value, -1)
}

func (i *instrument) Get() int64 {
	return atomic.LoadInt64(i.value)
}

// statsExporter is the default MetricsFactory, exposed as a prometheus collector.
type statsExporter struct {
	mu          sync.RWMutex
	instruments map[string]*instrument
	order       []string
}

func newStatsExporter() *statsExporter {
	return &statsExporter{
		instruments: make(map[string]*instrument, 6),
	}
}

func (se *statsExporter) Meter(name string) Meter {
	return se.instrument(name, "Number of "+name+" events", prometheus.CounterValue)
}

func (se *statsExporter) Counter(name string) Counter {
	return se.instrument(name, "Current number of "+name, prometheus.GaugeValue)
}

func (se *statsExporter) instrument(name, help string, vt prometheus.ValueType) *instrument {
	se.mu.RLock()
	in, ok := se.instruments[name]
	se.mu.RUnlock()
	if ok {
		return in
	}

	se.mu.Lock()
	defer se.mu.Unlock()

	if in, ok = se.instruments[name]; ok {
		return in
	}

	in = &instrument{
		value: ptrTo(int64(0)),
		desc:  prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, nil, nil),
		vt:    vt,
	}
	se.instruments[name] = in
	se.order = append(se.order, name)

	return in
}

func (se *statsExporter) Describe(d chan<- *prometheus.Desc) {
	se.mu.RLock()
	defer se.mu.RUnlock()

	for _, name := range se.order {
		d <- se.instruments[name].desc
	}
}

func (se *statsExporter) Collect(ch chan<- prometheus.Metric) {
	se.mu.RLock()
	defer se.mu.RUnlock()

	for _, name := range se.order {
		in := se.instruments[name]
		ch <- prometheus.MustNewConstMetric(in.desc, in.vt, float64(in.Get()))
	}
}

// jobMetrics are the six instruments published by a coordinator.
type jobMetrics struct {
	created    Meter
	cleared    Meter
	pending    Counter
	incomplete Counter
	failed     Meter
	retries    Meter
}

func newJobMetrics(f MetricsFactory) *jobMetrics {
	return &jobMetrics{
		created:    f.Meter(MetricJobsCreated),
		cleared:    f.Meter(MetricJobsCleared),
		pending:    f.Counter(MetricJobsPending),
		incomplete: f.Counter(MetricJobsIncomplete),
		failed:     f.Meter(MetricJobsFailed),
		retries:    f.Meter(MetricJobsRetries),
	}
}

// Stats are the values of the six coordinator instruments.
type Stats struct {
	Created    int64 `json:"jobs_created"`
	Cleared    int64 `json:"jobs_cleared"`
	Pending    int64 `json:"jobs_pending"`
	Incomplete int64 `json:"jobs_incomplete"`
	Failed     int64 `json:"jobs_failed"`
	Retries    int64 `json:"jobs_retries_for_failure"`
}

func (m *jobMetrics) stats() Stats {
	return Stats{
		Created:    m.created.Get(),
		Cleared:    m.cleared.Get(),
		Pending:    m.pending.Get(),
		Incomplete: m.incomplete.Get(),
		Failed:     m.failed.Get(),
		Retries:    m.retries.Get(),
	}
}

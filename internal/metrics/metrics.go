// Package metrics exposes engine and delivery counters as Prometheus
// collectors on a private registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rxalert/internal/notify"
)

const namespace = "rxalert"

// Metrics implements notify.Recorder.
type Metrics struct {
	reg *prometheus.Registry

	added         *prometheus.CounterVec
	deduped       *prometheus.CounterVec
	pruned        prometheus.Counter
	probeRuns     *prometheus.CounterVec
	persistFailed prometheus.Counter
	delivery      *prometheus.CounterVec
	storeSize     prometheus.Gauge
	unread        prometheus.Gauge
}

var _ notify.Recorder = (*Metrics)(nil)

// New registers the collectors plus Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		added: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_added_total",
			Help:      "Notifications accepted, by kind.",
		}, []string{"kind"}),
		deduped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_deduped_total",
			Help:      "Adds suppressed by the dedup window, by kind.",
		}, []string{"kind"}),
		pruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_pruned_total",
			Help:      "Notifications removed by retention or the size cap.",
		}),
		probeRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probe_runs_total",
			Help:      "Inventory probe runs, by probe and result.",
		}, []string{"probe", "result"}),
		persistFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_failures_total",
			Help:      "Snapshot writes that failed.",
		}),
		delivery: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_total",
			Help:      "Delivery outcomes, by result.",
		}, []string{"result"}),
		storeSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "store_size",
			Help:      "Notifications currently held, dismissed included.",
		}),
		unread: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "unread",
			Help:      "Unread, not dismissed notifications.",
		}),
	}
	m.reg.MustRegister(
		m.added, m.deduped, m.pruned, m.probeRuns, m.persistFailed, m.delivery, m.storeSize, m.unread,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) Added(kind string)   { m.added.WithLabelValues(kind).Inc() }
func (m *Metrics) Deduped(kind string) { m.deduped.WithLabelValues(kind).Inc() }
func (m *Metrics) Pruned(n int)        { m.pruned.Add(float64(n)) }
func (m *Metrics) PersistFailed()      { m.persistFailed.Inc() }

func (m *Metrics) ProbeRun(probe string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.probeRuns.WithLabelValues(probe, result).Inc()
}

func (m *Metrics) StoreSize(total, unread int) {
	m.storeSize.Set(float64(total))
	m.unread.Set(float64(unread))
}

// Delivered counts one delivery outcome ("sent", "failed", "dropped").
func (m *Metrics) Delivered(result string) { m.delivery.WithLabelValues(result).Inc() }

package prom

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/IvanBrykalov/timedmap/ttl"
)

// Adapter implements ttl.Metrics and exports Prometheus counters/gauges.
// Safe for concurrent use; all Prometheus metric types are goroutine-safe.
type Adapter struct {
	scheduled  prometheus.Counter
	canceled   prometheus.Counter
	expired    prometheus.Counter
	staleFires prometheus.Counter
	sinkPanics prometheus.Counter
	entries    prometheus.Gauge
}

// New constructs a Prometheus metrics adapter.
//   - reg:          registry to register metrics with (nil => prometheus.DefaultRegisterer)
//   - ns, sub:      Prometheus namespace and subsystem
//   - constLabels:  static labels applied to all metrics (may be nil)
func New(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *Adapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        name,
			Help:        help,
			ConstLabels: constLabels,
		})
	}
	a := &Adapter{
		scheduled:  counter("scheduled_total", "Expiry actions scheduled by puts"),
		canceled:   counter("canceled_total", "Pending expiry actions canceled before running"),
		expired:    counter("expired_total", "Entries removed by natural expiry"),
		staleFires: counter("stale_fires_total", "Expiry actions that found their entry superseded or gone"),
		sinkPanics: counter("sink_panics_total", "Panics recovered from the expired-event sink"),
		entries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "entries",
			Help:        "Number of live entries",
			ConstLabels: constLabels,
		}),
	}
	reg.MustRegister(a.scheduled, a.canceled, a.expired, a.staleFires, a.sinkPanics, a.entries)
	return a
}

func (a *Adapter) Scheduled() { a.scheduled.Inc() }
func (a *Adapter) Canceled()  { a.canceled.Inc() }
func (a *Adapter) Expired()   { a.expired.Inc() }
func (a *Adapter) StaleFire() { a.staleFires.Inc() }
func (a *Adapter) SinkPanic() { a.sinkPanics.Inc() }

// Size updates the live-entry gauge.
func (a *Adapter) Size(entries int) { a.entries.Set(float64(entries)) }

// Compile-time check: ensure Adapter implements ttl.Metrics.
var _ ttl.Metrics = (*Adapter)(nil)

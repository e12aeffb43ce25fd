package sequencer

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for sequence reservations.
type Metrics struct {
	wait     *prometheus.HistogramVec
	held     prometheus.Histogram
	inFlight prometheus.Gauge
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the sequencer metrics against the provided registerer.
// When the registerer is nil the default Prometheus registerer is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		wait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "facturia_sequence_wait_seconds",
			Help:    "Time spent waiting for a voucher sequence slot.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"result"}),
		held: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "facturia_sequence_held_seconds",
			Help:    "Time a voucher sequence slot was held.",
			Buckets: prometheus.DefBuckets,
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "facturia_sequence_reservations_in_flight",
			Help: "Voucher sequence slots currently held.",
		}),
	}
	registerer.MustRegister(m.wait, m.held, m.inFlight)
	return m
}

func (m *Metrics) observeWait(d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "acquired"
	if err != nil {
		result = "abandoned"
	}
	m.wait.WithLabelValues(result).Observe(d.Seconds())
}

func (m *Metrics) observeHeld(d time.Duration) {
	if m == nil {
		return
	}
	m.held.Observe(d.Seconds())
}

func (m *Metrics) holding(delta float64) {
	if m == nil {
		return
	}
	m.inFlight.Add(delta)
}

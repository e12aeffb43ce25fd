package submission

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/facturia/facturia/internal/shared"
)

// Metrics exposes Prometheus collectors for invoice submissions.
type Metrics struct {
	outcomes *prometheus.CounterVec
	duration *prometheus.HistogramVec
	states   *prometheus.CounterVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the submission metrics against the provided registerer.
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

// Tracker instruments a single submission.
type Tracker struct {
	metrics *Metrics
	start   time.Time
}

// Track starts a tracker.
func (m *Metrics) Track() *Tracker {
	return &Tracker{metrics: m, start: time.Now()}
}

// Enter counts a state transition.
func (t *Tracker) Enter(state State) {
	if t == nil || t.metrics == nil {
		return
	}
	t.metrics.states.WithLabelValues(string(state)).Inc()
}

// End records the outcome kind and duration, returning err untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil {
		return err
	}
	outcome := "success"
	if err != nil {
		outcome = string(shared.KindOf(err))
	}
	t.metrics.outcomes.WithLabelValues(outcome).Inc()
	t.metrics.duration.WithLabelValues(outcome).Observe(time.Since(t.start).Seconds())
	return err
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "facturia_submissions_total",
		Help: "Invoice submissions partitioned by outcome kind.",
	}, []string{"outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "facturia_submission_duration_seconds",
		Help:    "Duration in seconds of invoice submissions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
	states := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "facturia_submission_states_total",
		Help: "Submission state transitions.",
	}, []string{"state"})
	registerer.MustRegister(outcomes, duration, states)
	return &Metrics{outcomes: outcomes, duration: duration, states: states}
}

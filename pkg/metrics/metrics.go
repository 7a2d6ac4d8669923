// Package metrics exposes extraction counters to Prometheus. Metrics
// implements retry.Observer so every retry decision is counted.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fbposts/pkg/fetch"
	"fbposts/pkg/pagination"
	"fbposts/pkg/pool"
	"fbposts/pkg/retry"
)

const Namespace = "fbposts"

type Metrics struct {
	// Retry controller
	Retries          *prometheus.CounterVec
	Rotations        prometheus.Counter
	RetriesExhausted prometheus.Counter
	FatalFetches     *prometheus.CounterVec
	BackoffSeconds   prometheus.Histogram

	// Pagination
	PagesFetched    prometheus.Counter
	RecordsEmitted  prometheus.Counter
	RecordsDropped  *prometheus.CounterVec
	TargetsFinished *prometheus.CounterVec
	TargetDuration  prometheus.Histogram
	ActiveTargets   prometheus.Gauge
}

// New creates and registers all metrics on reg, or on the default
// registerer when reg is nil.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)
	m := &Metrics{}
	m.initRetryMetrics(factory)
	m.initPaginationMetrics(factory)
	return m
}

func (m *Metrics) initRetryMetrics(factory promauto.Factory) {
	m.Retries = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "retry",
			Name:      "retries_total",
			Help:      "Retryable fetch failures by transport class",
		},
		[]string{"class"},
	)

	m.Rotations = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "retry",
			Name:      "rotations_total",
			Help:      "Identity rotations triggered by repeated failures",
		},
	)

	m.RetriesExhausted = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "retry",
			Name:      "exhausted_total",
			Help:      "Page fetches that spent their whole attempt budget",
		},
	)

	m.FatalFetches = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "retry",
			Name:      "fatal_total",
			Help:      "Permanent fetch failures by transport class",
		},
		[]string{"class"},
	)

	m.BackoffSeconds = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "retry",
			Name:      "backoff_seconds",
			Help:      "Backoff delays before retries",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10), // 0.1s to ~51s
		},
	)
}

func (m *Metrics) initPaginationMetrics(factory promauto.Factory) {
	m.PagesFetched = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "pagination",
			Name:      "pages_total",
			Help:      "Pages fetched and parsed",
		},
	)

	m.RecordsEmitted = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "pagination",
			Name:      "records_emitted_total",
			Help:      "Records delivered to the sink",
		},
	)

	m.RecordsDropped = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "pagination",
			Name:      "records_dropped_total",
			Help:      "Candidates dropped before the sink, by reason",
		},
		[]string{"reason"},
	)

	m.TargetsFinished = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "pagination",
			Name:      "targets_finished_total",
			Help:      "Targets that stopped, by termination reason",
		},
		[]string{"reason"},
	)

	m.TargetDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "pagination",
			Name:      "target_duration_seconds",
			Help:      "Wall time spent paginating one target",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~34min
		},
	)

	m.ActiveTargets = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "pagination",
			Name:      "active_targets",
			Help:      "Targets currently being paginated",
		},
	)
}

func (m *Metrics) OnRetry(a retry.Attempt, delay time.Duration) {
	m.Retries.WithLabelValues(fetch.ClassOf(a.Err).String()).Inc()
	m.BackoffSeconds.Observe(delay.Seconds())
}

func (m *Metrics) OnRotate(retry.Attempt, pool.Identity) {
	m.Rotations.Inc()
}

func (m *Metrics) OnExhausted(retry.Attempt) {
	m.RetriesExhausted.Inc()
}

func (m *Metrics) OnFatal(a retry.Attempt) {
	m.FatalFetches.WithLabelValues(fetch.ClassOf(a.Err).String()).Inc()
}

func (m *Metrics) TargetStarted() {
	m.ActiveTargets.Inc()
}

// TargetFinished records a target's summary and marks it inactive.
func (m *Metrics) TargetFinished(s pagination.Summary) {
	m.ActiveTargets.Dec()
	m.PagesFetched.Add(float64(s.Pages))
	m.RecordsEmitted.Add(float64(s.Emitted))
	for reason, n := range s.Dropped {
		m.RecordsDropped.WithLabelValues(reason).Add(float64(n))
	}
	m.TargetsFinished.WithLabelValues(s.Reason.String()).Inc()
	m.TargetDuration.Observe(s.Duration.Seconds())
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

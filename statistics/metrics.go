package statistics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "sepominer"

//Metrics is nil-safe so engine and client tests can run without a registry
type Metrics struct {
	hashes        prometheus.Counter
	shares        *prometheus.CounterVec
	verifies      prometheus.Counter
	verifyLatency prometheus.Histogram
	hashrate      prometheus.Gauge
	jobs          *prometheus.CounterVec
	messages      *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		hashes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hashes_total",
			Help:      "Argon2 evaluations performed for mining jobs.",
		}),
		shares: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shares_total",
			Help:      "Shares by lifecycle state.",
		}, []string{"status"}),
		verifies: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verifies_total",
			Help:      "Verify requests answered.",
		}),
		verifyLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "verify_latency_seconds",
			Help:      "Time from verify request to response.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		}),
		hashrate: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "hashrate",
			Help:      "Rolling one minute hashrate of the current job.",
		}),
		jobs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Jobs by outcome.",
		}, []string{"outcome"}),
		messages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Protocol messages by direction and action.",
		}, []string{"direction", "action"}),
	}
}

func (m *Metrics) Hash() {
	if m == nil {
		return
	}
	m.hashes.Inc()
}

func (m *Metrics) Share(status string) {
	if m == nil {
		return
	}
	m.shares.WithLabelValues(status).Inc()
}

func (m *Metrics) Verify(seconds float64) {
	if m == nil {
		return
	}
	m.verifies.Inc()
	m.verifyLatency.Observe(seconds)
}

func (m *Metrics) SetHashrate(rate float64) {
	if m == nil {
		return
	}
	m.hashrate.Set(rate)
}

//Job counts assigned, abandoned and failed jobs
func (m *Metrics) Job(outcome string) {
	if m == nil {
		return
	}
	m.jobs.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Message(direction, action string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(direction, action).Inc()
}

package receiver

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for verification metrics and logs.
const (
	OutcomeVerified  = "verified"
	OutcomeMismatch  = "mismatch"
	OutcomeMalformed = "malformed"
	OutcomeMissing   = "missing_headers"
	OutcomeBadTime   = "bad_timestamp"
	OutcomeBadBody   = "bad_body"
)

// Metrics records verification outcomes.
type Metrics struct {
	registry      *prometheus.Registry
	verifications *prometheus.CounterVec
	duration      *prometheus.HistogramVec
}

// NewMetrics registers the receiver collectors on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "slackverify",
			Name:      "verifications_total",
			Help:      "Signed requests by endpoint and verification outcome.",
		}, []string{"endpoint", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "slackverify",
			Name:      "verification_duration_seconds",
			Help:      "Time spent reading and verifying a signed request.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 8),
		}, []string{"endpoint"}),
	}
	m.registry.MustRegister(m.verifications, m.duration)
	return m
}

func (m *Metrics) observe(endpoint, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.verifications.WithLabelValues(endpoint, outcome).Inc()
	m.duration.WithLabelValues(endpoint).Observe(seconds)
}

// Count returns the current counter value for an endpoint and outcome.
func (m *Metrics) Count(endpoint, outcome string) float64 {
	if m == nil {
		return 0
	}
	mfs, err := m.registry.Gather()
	if err != nil {
		return 0
	}
	for _, mf := range mfs {
		if mf.GetName() != "slackverify_verifications_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range metric.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["endpoint"] == endpoint && labels["outcome"] == outcome {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Package telemetry exposes probe metrics for Prometheus and wires
// OpenTelemetry tracing for the probe engine.
package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/khanhnv2901/secprobe/internal/domain/report"
)

const namespace = "secprobe"

// Metrics holds the collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	probeRuns      *prometheus.CounterVec
	findings       *prometheus.CounterVec
	probeDuration  *prometheus.HistogramVec
	targetRequests *prometheus.CounterVec
	targetDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all collectors.
func NewMetrics() (*Metrics, error) {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		probeRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probe_runs_total",
			Help:      "Probe executions by final status",
		}, []string{"probe", "status"}),
		findings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "findings_total",
			Help:      "Findings reported by probes",
		}, []string{"probe", "severity"}),
		probeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "probe_duration_seconds",
			Help:      "Wall time of one probe execution",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"probe"}),
		targetRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "target_requests_total",
			Help:      "Requests sent to targets by response code and method",
		}, []string{"code", "method"}),
		targetDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "target_request_duration_seconds",
			Help:      "Latency of requests sent to targets",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		}, []string{"method"}),
	}

	cs := []prometheus.Collector{
		m.probeRuns,
		m.findings,
		m.probeDuration,
		m.targetRequests,
		m.targetDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	}
	for _, c := range cs {
		if err := m.registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register collector: %w", err)
		}
	}
	return m, nil
}

// ObserveProbe records one finished report.
func (m *Metrics) ObserveProbe(name string, r *report.Report, elapsed time.Duration) {
	m.probeRuns.WithLabelValues(name, string(r.Status)).Inc()
	for _, f := range r.Findings {
		m.findings.WithLabelValues(name, string(f.Severity)).Inc()
	}
	m.probeDuration.WithLabelValues(name).Observe(elapsed.Seconds())
}

// InstrumentTransport counts and times every request that passes through next.
func (m *Metrics) InstrumentTransport(next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return promhttp.InstrumentRoundTripperCounter(m.targetRequests,
		promhttp.InstrumentRoundTripperDuration(m.targetDuration, next))
}

// Handler serves the registry in the exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

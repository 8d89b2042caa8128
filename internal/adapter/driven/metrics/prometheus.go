// Package metrics exports pool observations to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ericfisherdev/cookiepool/internal/domain/model"
	"github.com/ericfisherdev/cookiepool/internal/domain/port/driven"
)

const namespace = "cookiepool"

// Compile-time interface satisfaction check.
var _ driven.PoolMetrics = (*Prometheus)(nil)

// Prometheus implements driven.PoolMetrics on a private registry.
type Prometheus struct {
	registry *prometheus.Registry

	fallbackTotal    *prometheus.CounterVec
	fallbackAttempts *prometheus.HistogramVec
	probeTotal       *prometheus.CounterVec
	credentials      *prometheus.GaugeVec
	fallbackUsage    prometheus.Gauge
	fallbackEnabled  prometheus.Gauge
}

// NewPrometheus creates the collectors and registers them, together with the
// Go runtime and process collectors, on a new registry.
func NewPrometheus() *Prometheus {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Prometheus{
		registry: reg,
		fallbackTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fallback_total",
				Help:      "Fallback runs by tier that succeeded or exhaustion kind.",
			},
			[]string{"method", "outcome"},
		),
		fallbackAttempts: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "fallback_attempts",
				Help:      "Credential attempts per fallback run.",
				Buckets:   []float64{1, 2, 3, 4, 5, 6, 8},
			},
			[]string{"outcome"},
		),
		probeTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "probe_total",
				Help:      "Health probe classifications.",
			},
			[]string{"status"},
		),
		credentials: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "credentials",
				Help:      "Credentials in the pool by status.",
			},
			[]string{"status"},
		),
		fallbackUsage: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_fallback_usage",
			Help:      "Times the session warmer has been invoked, as stored in the pool.",
		}),
		fallbackEnabled: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_fallback_enabled",
			Help:      "1 when the stored toggle allows the session warmer.",
		}),
	}
}

// ObserveFallback implements driven.PoolMetrics.
func (p *Prometheus) ObserveFallback(method model.FallbackMethod, outcome string, attempts int) {
	m := string(method)
	if m == "" {
		m = "none"
	}
	p.fallbackTotal.WithLabelValues(m, outcome).Inc()
	p.fallbackAttempts.WithLabelValues(outcome).Observe(float64(attempts))
}

// ObserveProbe implements driven.PoolMetrics.
func (p *Prometheus) ObserveProbe(status model.CredentialStatus) {
	p.probeTotal.WithLabelValues(string(status)).Inc()
}

// SetPoolStats implements driven.PoolMetrics.
func (p *Prometheus) SetPoolStats(stats model.PoolStats) {
	p.credentials.WithLabelValues(string(model.CredentialStatusActive)).Set(float64(stats.Active))
	p.credentials.WithLabelValues(string(model.CredentialStatusUntested)).Set(float64(stats.Untested))
	p.credentials.WithLabelValues(string(model.CredentialStatusBlocked)).Set(float64(stats.Blocked))
	p.credentials.WithLabelValues(string(model.CredentialStatusExpired)).Set(float64(stats.Expired))
	p.credentials.WithLabelValues(string(model.CredentialStatusError)).Set(float64(stats.Error))
	p.fallbackUsage.Set(float64(stats.FallbackUsageCount))

	enabled := 0.0
	if stats.FallbackEnabled {
		enabled = 1
	}
	p.fallbackEnabled.Set(enabled)
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/crewbill/keysvc/pkg/constants"
)

// Metrics manages the Prometheus metrics of the key service.
type Metrics struct {
	Rotations       *prometheus.CounterVec
	RotationLatency *prometheus.HistogramVec
	TokenOperations *prometheus.CounterVec
	TokenLatency    *prometheus.HistogramVec
	CacheRefreshes  *prometheus.CounterVec
	SelfHealActions *prometheus.CounterVec
	KeysByStatus    *prometheus.GaugeVec
	DegradedMode    prometheus.Gauge
	HTTPRequests    *prometheus.CounterVec
	HTTPLatency     *prometheus.HistogramVec
}

// NewMetrics creates and registers the Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		Rotations: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keysvc_rotations_total",
				Help: "Total number of key rotations by type and result.",
			},
			[]string{"rotation_type", "result"},
		),
		RotationLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "keysvc_rotation_latency_seconds",
				Help:    "Latency of key rotations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"rotation_type"},
		),
		TokenOperations: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keysvc_token_operations_total",
				Help: "Total number of token sign/verify operations by key source mode.",
			},
			[]string{"operation", "mode", "result"},
		),
		TokenLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "keysvc_token_operation_latency_seconds",
				Help:    "Latency of token sign/verify operations.",
				Buckets: []float64{.0001, .00025, .0005, .001, .0025, .005, .01, .025, .05, .1},
			},
			[]string{"operation"},
		),
		CacheRefreshes: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keysvc_cache_refreshes_total",
				Help: "Total number of key cache refreshes by trigger and result.",
			},
			[]string{"trigger", "result"},
		),
		SelfHealActions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keysvc_self_heal_actions_total",
				Help: "Total number of self-healing initializer actions.",
			},
			[]string{"action"},
		),
		KeysByStatus: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "keysvc_keys_by_status",
				Help: "Current number of signing keys by lifecycle status.",
			},
			[]string{"status"},
		),
		DegradedMode: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "keysvc_token_degraded_mode",
				Help: "1 while the token service is serving the static fallback secret.",
			},
		),
		HTTPRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keysvc_http_requests_total",
				Help: "Total number of HTTP requests by method, route and status code.",
			},
			[]string{"method", "route", "status"},
		),
		HTTPLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "keysvc_http_request_latency_seconds",
				Help:    "Latency of HTTP requests.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}
}

// RecordRotation records a completed or failed rotation attempt.
func (m *Metrics) RecordRotation(rotationType constants.RotationType, result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.Rotations.WithLabelValues(string(rotationType), result).Inc()
	m.RotationLatency.WithLabelValues(string(rotationType)).Observe(duration.Seconds())
}

// RecordTokenOperation records a sign or verify, labelled with the key source
// mode so fallback traffic is visible on dashboards.
func (m *Metrics) RecordTokenOperation(operation, mode, result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.TokenOperations.WithLabelValues(operation, mode, result).Inc()
	m.TokenLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordCacheRefresh records a key cache refresh.
func (m *Metrics) RecordCacheRefresh(trigger, result string) {
	if m == nil {
		return
	}
	m.CacheRefreshes.WithLabelValues(trigger, result).Inc()
}

// RecordSelfHeal records an initializer remediation step.
func (m *Metrics) RecordSelfHeal(action string) {
	if m == nil {
		return
	}
	m.SelfHealActions.WithLabelValues(action).Inc()
}

// RecordHTTPRequest records a served HTTP request.
func (m *Metrics) RecordHTTPRequest(method, route, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, status).Inc()
	m.HTTPLatency.WithLabelValues(method, route).Observe(duration.Seconds())
}

// SetDegradedMode flags whether the token service is on the static fallback.
func (m *Metrics) SetDegradedMode(degraded bool) {
	if m == nil {
		return
	}
	if degraded {
		m.DegradedMode.Set(1)
	} else {
		m.DegradedMode.Set(0)
	}
}

// SetKeyCount updates the per-status key gauge.
func (m *Metrics) SetKeyCount(status constants.KeyStatus, count int) {
	if m == nil {
		return
	}
	m.KeysByStatus.WithLabelValues(string(status)).Set(float64(count))
}

package observability

import (
	"fmt"
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	marketMetricsOnce sync.Once
	marketRegistry    *MarketplaceMetrics
)

// ModuleMetrics returns the lazily-initialised registry recording HTTP API
// activity per route.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "nftmarket",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total API requests segmented by module and method.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "nftmarket",
				Subsystem: "http",
				Name:      "errors_total",
				Help:      "Total API errors segmented by module, method, and status code.",
			}, []string{"module", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "nftmarket",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for API handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "nftmarket",
				Subsystem: "http",
				Name:      "throttles_total",
				Help:      "Count of API requests rejected due to throttling policies.",
			}, []string{"module", "reason"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
			moduleRegistry.throttles,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of a request. The status code should be the
// HTTP status that was ultimately written to the response writer.
func (m *moduleMetrics) Observe(module, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(module, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied module and
// reason. Reasons should be stable strings such as "rate_limit" so dashboards
// and alerts remain consistent.
func (m *moduleMetrics) RecordThrottle(module, reason string) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(module, reason).Inc()
}

// MarketplaceMetrics tracks marketplace operations and settlements.
type MarketplaceMetrics struct {
	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	settled    *prometheus.CounterVec
	volume     *prometheus.CounterVec
	fees       *prometheus.CounterVec
}

// Marketplace returns the lazily-initialised marketplace metrics registry.
func Marketplace() *MarketplaceMetrics {
	marketMetricsOnce.Do(func() {
		marketRegistry = &MarketplaceMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "nftmarket",
				Subsystem: "marketplace",
				Name:      "operations_total",
				Help:      "Marketplace operations segmented by operation and outcome.",
			}, []string{"op", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "nftmarket",
				Subsystem: "marketplace",
				Name:      "operation_duration_seconds",
				Help:      "Time spent applying marketplace operations, including queueing.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"op"}),
			settled: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "nftmarket",
				Subsystem: "marketplace",
				Name:      "settled_total",
				Help:      "Settlements segmented by path (buy, offer, auction).",
			}, []string{"path"}),
			volume: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "nftmarket",
				Subsystem: "marketplace",
				Name:      "settled_volume_total",
				Help:      "Gross settled amount per payment token in base units.",
			}, []string{"token"}),
			fees: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "nftmarket",
				Subsystem: "marketplace",
				Name:      "fees_total",
				Help:      "Platform fees collected per payment token in base units.",
			}, []string{"token"}),
		}
		prometheus.MustRegister(
			marketRegistry.operations,
			marketRegistry.latency,
			marketRegistry.settled,
			marketRegistry.volume,
			marketRegistry.fees,
		)
	})
	return marketRegistry
}

// ObserveOperation records an applied or rejected operation. outcome is
// "success" or the rejection kind.
func (m *MarketplaceMetrics) ObserveOperation(op, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "success"
	}
	m.operations.WithLabelValues(op, outcome).Inc()
	m.latency.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordSettlement records a completed settlement and the fee it produced.
func (m *MarketplaceMetrics) RecordSettlement(path, token string, gross, fee *big.Int) {
	if m == nil {
		return
	}
	label := labelToken(token)
	m.settled.WithLabelValues(path).Inc()
	m.volume.WithLabelValues(label).Add(bigToFloat(gross))
	m.fees.WithLabelValues(label).Add(bigToFloat(fee))
}

func labelToken(token string) string {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return "unknown"
	}
	return strings.ToLower(trimmed)
}

func bigToFloat(value *big.Int) float64 {
	if value == nil || value.Sign() < 0 {
		return 0
	}
	floatVal, acc := new(big.Float).SetInt(value).Float64()
	if acc != big.Exact {
		// Guard against NaN/Inf when conversion fails.
		if math.IsNaN(floatVal) || math.IsInf(floatVal, 0) {
			return 0
		}
	}
	return floatVal
}

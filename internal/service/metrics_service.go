package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	txRetries       prometheus.Counter
	txExhaustions   prometheus.Counter
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	rollupDuration  prometheus.Histogram
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	txRetries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tx_retries_total",
		Help: "Total transaction retries after serialization conflicts",
	})

	txExhaustions := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tx_retry_exhaustions_total",
		Help: "Total transactions aborted after exhausting retries",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	rollupDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "academic_year_rollup_duration_seconds",
		Help:    "Duration of academic year rollup aggregation in seconds",
		Buckets: prometheus.DefBuckets,
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, txRetries, txExhaustions, cacheHits, cacheMisses, rollupDuration, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		txRetries:       txRetries,
		txExhaustions:   txExhaustions,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		rollupDuration:  rollupDuration,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// ObserveTxRetry counts one transaction retry.
func (m *MetricsService) ObserveTxRetry() {
	if m == nil {
		return
	}
	m.txRetries.Inc()
}

// ObserveTxExhaustion counts one transaction abandoned after retries.
func (m *MetricsService) ObserveTxExhaustion() {
	if m == nil {
		return
	}
	m.txExhaustions.Inc()
}

// ObserveRollup records how long a year rollup aggregation took.
func (m *MetricsService) ObserveRollup(duration time.Duration) {
	if m == nil {
		return
	}
	m.rollupDuration.Observe(duration.Seconds())
}

// RecordCacheLookup counts a cache hit or miss.
func (m *MetricsService) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}

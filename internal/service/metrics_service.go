package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/sma-substitute-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
type MetricsService struct {
	registry           *prometheus.Registry
	handler            http.Handler
	requestDuration    *prometheus.HistogramVec
	requestTotal       *prometheus.CounterVec
	cacheLatency       prometheus.Observer
	cacheWrite         prometheus.Observer
	cacheHitRatio      prometheus.Gauge
	cacheHits          prometheus.Counter
	cacheMisses        prometheus.Counter
	derivationDuration prometheus.Histogram
	derivationChanged  prometheus.Counter
	derivationSkipped  prometheus.Counter
	candidateSearches  *prometheus.CounterVec
	candidateResults   prometheus.Histogram
	ledgerOperations   *prometheus.CounterVec
	jobRuns            *prometheus.CounterVec
	jobDuration        *prometheus.HistogramVec
	timeSlots          prometheus.Gauge

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	derivationCount      uint64
	searchCount          uint64
	ledgerCount          uint64
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

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	derivationDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "availability_derivation_duration_seconds",
		Help:    "Duration of homeroom availability derivation passes",
		Buckets: prometheus.DefBuckets,
	})

	derivationChanged := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "availability_derivation_changed_total",
		Help: "Homeroom grids rewritten by derivation",
	})

	derivationSkipped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "availability_derivation_skipped_total",
		Help: "Homeroom teachers skipped because their class could not be parsed",
	})

	candidateSearches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "substitute_candidate_searches_total",
		Help: "Substitute candidate searches by outcome",
	}, []string{"outcome"})

	candidateResults := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "substitute_candidates_returned",
		Help:    "Number of candidates returned per search",
		Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
	})

	ledgerOperations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "substitute_ledger_operations_total",
		Help: "Substitute ledger writes by operation",
	}, []string{"operation"})

	jobRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "background_job_runs_total",
		Help: "Background job executions by status",
	}, []string{"job", "status"})

	jobDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "background_job_duration_seconds",
		Help:    "Background job execution duration",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})

	timeSlots := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "time_slots_configured",
		Help: "Number of labels in the time slot registry",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(
		requestDuration, requestTotal,
		cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses,
		derivationDuration, derivationChanged, derivationSkipped,
		candidateSearches, candidateResults, ledgerOperations,
		jobRuns, jobDuration, timeSlots, goroutines,
	)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:           registry,
		handler:            handler,
		requestDuration:    requestDuration,
		requestTotal:       requestTotal,
		cacheLatency:       cacheLatency,
		cacheWrite:         cacheWrite,
		cacheHitRatio:      cacheHitRatio,
		cacheHits:          cacheHits,
		cacheMisses:        cacheMisses,
		derivationDuration: derivationDuration,
		derivationChanged:  derivationChanged,
		derivationSkipped:  derivationSkipped,
		candidateSearches:  candidateSearches,
		candidateResults:   candidateResults,
		ledgerOperations:   ledgerOperations,
		jobRuns:            jobRuns,
		jobDuration:        jobDuration,
		timeSlots:          timeSlots,
	}
}

// Registry exposes the underlying registry.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
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

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	if m.cacheLatency != nil {
		m.cacheLatency.Observe(duration.Seconds())
	}
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	total := hits + misses
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil || m.cacheWrite == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveDerivation records one derivation pass.
func (m *MetricsService) ObserveDerivation(report models.DerivationReport) {
	if m == nil {
		return
	}
	m.derivationDuration.Observe(report.Duration.Seconds())
	m.derivationChanged.Add(float64(report.Changed))
	m.derivationSkipped.Add(float64(len(report.Skipped)))
	atomic.AddUint64(&m.derivationCount, 1)
}

// ObserveCandidateSearch records the size of a search result.
func (m *MetricsService) ObserveCandidateSearch(found int) {
	if m == nil {
		return
	}
	outcome := "found"
	if found == 0 {
		outcome = "empty"
	}
	m.candidateSearches.WithLabelValues(outcome).Inc()
	m.candidateResults.Observe(float64(found))
	atomic.AddUint64(&m.searchCount, 1)
}

// IncLedgerOperation counts a successful ledger write.
func (m *MetricsService) IncLedgerOperation(operation string) {
	if m == nil {
		return
	}
	m.ledgerOperations.WithLabelValues(operation).Inc()
	atomic.AddUint64(&m.ledgerCount, 1)
}

// ObserveJob records a background job execution.
func (m *MetricsService) ObserveJob(name string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.jobRuns.WithLabelValues(name, status).Inc()
	m.jobDuration.WithLabelValues(name).Observe(duration.Seconds())
}

// SetTimeSlots tracks the registry size.
func (m *MetricsService) SetTimeSlots(slots []string) {
	if m == nil {
		return
	}
	m.timeSlots.Set(float64(len(slots)))
}

// Snapshot returns aggregated metrics suitable for API consumers.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var cacheRatio float64
	totalLookups := hits + misses
	if totalLookups > 0 {
		cacheRatio = float64(hits) / float64(totalLookups)
	}

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return models.SystemMetrics{
		CacheHitRatio:            cacheRatio,
		CacheHits:                hits,
		CacheMisses:              misses,
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		Derivations:              atomic.LoadUint64(&m.derivationCount),
		CandidateSearches:        atomic.LoadUint64(&m.searchCount),
		LedgerWrites:             atomic.LoadUint64(&m.ledgerCount),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}

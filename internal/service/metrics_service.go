package service

import (
	"net/http"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "peerlearn"

// MetricsSnapshot is the in-process summary attached to the liveness check.
type MetricsSnapshot struct {
	Uptime               string    `json:"uptime"`
	RequestsTotal        uint64    `json:"requests_total"`
	AverageRequestMs     float64   `json:"average_request_ms"`
	CacheHitRatio        float64   `json:"cache_hit_ratio"`
	WebsocketConnections int64     `json:"websocket_connections"`
	Goroutines           int       `json:"goroutines"`
	GeneratedAt          time.Time `json:"generated_at"`
}

// MetricsService owns the private Prometheus registry. Every method is safe
// on a nil receiver so tests and tools can run without instrumentation.
type MetricsService struct {
	registry *prometheus.Registry
	handler  http.Handler
	started  time.Time

	httpDuration *prometheus.HistogramVec
	cacheLookups *prometheus.CounterVec
	cacheLatency *prometheus.HistogramVec
	wsOpen       prometheus.Gauge
	wsEvents     *prometheus.CounterVec
	generations  *prometheus.CounterVec
	slideJobs    *prometheus.HistogramVec

	requests   atomic.Uint64
	requestNs  atomic.Uint64
	cacheHits  atomic.Uint64
	cacheTotal atomic.Uint64
	wsCount    atomic.Int64
}

func NewMetricsService() *MetricsService {
	m := &MetricsService{
		registry: prometheus.NewRegistry(),
		started:  time.Now(),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route template and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Result cache lookups by outcome.",
		}, []string{"result"}),
		cacheLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "cache",
			Name:      "operation_seconds",
			Help:      "Redis round trips made by the result cache.",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
		}, []string{"op"}),
		wsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "ws",
			Name:      "connections",
			Help:      "Open realtime connections on this instance.",
		}),
		wsEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "ws",
			Name:      "events_total",
			Help:      "Realtime events handled, by event name.",
		}, []string{"event"}),
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "ai",
			Name:      "generations_total",
			Help:      "LLM generations by operation and outcome.",
		}, []string{"operation", "outcome"}),
		slideJobs: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "slides",
			Name:      "job_duration_seconds",
			Help:      "Slide generation job duration by outcome.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"outcome"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpDuration, m.cacheLookups, m.cacheLatency,
		m.wsOpen, m.wsEvents, m.generations, m.slideJobs,
	)
	m.handler = promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

func (m *MetricsService) ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(duration.Seconds())
	m.requests.Add(1)
	m.requestNs.Add(uint64(duration.Nanoseconds()))
}

// RecordCacheOperation counts a lookup and the time the read took.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
		m.cacheHits.Add(1)
	}
	m.cacheTotal.Add(1)
	m.cacheLookups.WithLabelValues(result).Inc()
	m.cacheLatency.WithLabelValues("get").Observe(duration.Seconds())
}

func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.WithLabelValues("set").Observe(duration.Seconds())
}

// WebsocketConnected moves the open connection gauge by delta.
func (m *MetricsService) WebsocketConnected(delta int) {
	if m == nil {
		return
	}
	m.wsOpen.Add(float64(delta))
	m.wsCount.Add(int64(delta))
}

func (m *MetricsService) ObserveWebsocketEvent(event string) {
	if m == nil {
		return
	}
	m.wsEvents.WithLabelValues(event).Inc()
}

// RecordGeneration counts one LLM call. Outcome is success, fallback or error.
func (m *MetricsService) RecordGeneration(operation, outcome string) {
	if m == nil {
		return
	}
	m.generations.WithLabelValues(operation, outcome).Inc()
}

func (m *MetricsService) ObserveSlideJob(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.slideJobs.WithLabelValues(outcome).Observe(duration.Seconds())
}

// Snapshot summarises the counters kept alongside the Prometheus series.
func (m *MetricsService) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{Goroutines: runtime.NumGoroutine(), GeneratedAt: time.Now().UTC()}
	if m == nil {
		return snap
	}
	snap.Uptime = time.Since(m.started).Truncate(time.Second).String()
	snap.RequestsTotal = m.requests.Load()
	if snap.RequestsTotal > 0 {
		snap.AverageRequestMs = float64(m.requestNs.Load()) / float64(snap.RequestsTotal) / float64(time.Millisecond)
	}
	if total := m.cacheTotal.Load(); total > 0 {
		snap.CacheHitRatio = float64(m.cacheHits.Load()) / float64(total)
	}
	snap.WebsocketConnections = m.wsCount.Load()
	return snap
}

// Package metrics exposes Prometheus collectors for the API, report builds
// and ingestion.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry
	handler  http.Handler

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	reportCache *prometheus.CounterVec
	reportBuild *prometheus.HistogramVec

	loadRows         *prometheus.CounterVec
	loadFailedRows   *prometheus.CounterVec
	loadFailedChunks *prometheus.CounterVec
	loadDuration     *prometheus.HistogramVec
}

// New builds a private registry with the Go and process collectors plus the
// application metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orcamento_http_requests_total",
			Help: "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "orcamento_http_request_duration_seconds",
			Help:    "HTTP request duration by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		reportCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orcamento_report_cache_total",
			Help: "Report cache lookups by report and result.",
		}, []string{"report", "result"}),
		reportBuild: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "orcamento_report_build_duration_seconds",
			Help:    "Time to query and aggregate a report.",
			Buckets: prometheus.DefBuckets,
		}, []string{"report"}),
		loadRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orcamento_load_rows_total",
			Help: "Fact rows inserted by table.",
		}, []string{"table"}),
		loadFailedRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orcamento_load_failed_rows_total",
			Help: "Fact rows lost to failed chunks by table.",
		}, []string{"table"}),
		loadFailedChunks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orcamento_load_failed_chunks_total",
			Help: "Failed insert chunks by table.",
		}, []string{"table"}),
		loadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "orcamento_load_duration_seconds",
			Help:    "Duration of fact loads by table.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"table"}),
	}
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		m.requestsTotal, m.requestDuration,
		m.reportCache, m.reportBuild,
		m.loadRows, m.loadFailedRows, m.loadFailedChunks, m.loadDuration,
	)
	m.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Middleware counts requests by chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

func (m *Metrics) ObserveCache(report string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.reportCache.WithLabelValues(report, result).Inc()
}

func (m *Metrics) ObserveReportBuild(report string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.reportBuild.WithLabelValues(report).Observe(elapsed.Seconds())
}

// ObserveLoad records the outcome of one fact load.
func (m *Metrics) ObserveLoad(table string, inserted, failedRows int64, failedChunks int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.loadRows.WithLabelValues(table).Add(float64(inserted))
	m.loadFailedRows.WithLabelValues(table).Add(float64(failedRows))
	m.loadFailedChunks.WithLabelValues(table).Add(float64(failedChunks))
	m.loadDuration.WithLabelValues(table).Observe(elapsed.Seconds())
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return "unknown"
}

// Package metrics exposes Prometheus instrumentation for the auth API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is safe to use as a nil pointer; every recording method is then a no-op.
type Metrics struct {
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	signups       *prometheus.CounterVec
	rejections    *prometheus.CounterVec
	compensations *prometheus.CounterVec
	swept         prometheus.Counter
	gatherer      prometheus.Gatherer
}

// New registers the collectors on reg. A nil reg uses a fresh registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests processed.",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		signups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_signups_total",
			Help: "Signup attempts by result.",
		}, []string{"result"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_verification_rejections_total",
			Help: "Rejected OTP, TOTP and backup codes.",
		}, []string{"kind", "reason"}),
		compensations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_saga_compensations_total",
			Help: "Compensating actions run by sagas.",
		}, []string{"saga", "step", "result"}),
		swept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_stale_signups_swept_total",
			Help: "Unconfirmed accounts removed by the sweeper.",
		}),
		gatherer: reg,
	}
	reg.MustRegister(m.httpRequests, m.httpDuration, m.signups, m.rejections, m.compensations, m.swept)
	return m
}

// RegisterPool exposes pgxpool connection gauges.
func (m *Metrics) RegisterPool(reg *prometheus.Registry, pool *pgxpool.Pool) {
	if m == nil || reg == nil || pool == nil {
		return
	}
	reg.MustRegister(&poolCollector{
		pool:     pool,
		acquired: prometheus.NewDesc("pgxpool_acquired_conns", "Connections currently acquired.", nil, nil),
		idle:     prometheus.NewDesc("pgxpool_idle_conns", "Idle connections.", nil, nil),
		total:    prometheus.NewDesc("pgxpool_total_conns", "Total connections.", nil, nil),
	})
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency labeled by chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		path := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			path = rc.RoutePattern()
		}
		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}
		m.httpDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		m.httpRequests.WithLabelValues(r.Method, path, strconv.Itoa(status)).Inc()
	})
}

func (m *Metrics) SignupResult(result string) {
	if m == nil {
		return
	}
	m.signups.WithLabelValues(result).Inc()
}

func (m *Metrics) VerificationRejected(kind, reason string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(kind, reason).Inc()
}

func (m *Metrics) Compensation(saga, step string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.compensations.WithLabelValues(saga, step, result).Inc()
}

func (m *Metrics) Swept(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.swept.Add(float64(n))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

type poolCollector struct {
	pool                  *pgxpool.Pool
	acquired, idle, total *prometheus.Desc
}

func (c *poolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.acquired
	ch <- c.idle
	ch <- c.total
}

func (c *poolCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.pool.Stat()
	ch <- prometheus.MustNewConstMetric(c.acquired, prometheus.GaugeValue, float64(s.AcquiredConns()))
	ch <- prometheus.MustNewConstMetric(c.idle, prometheus.GaugeValue, float64(s.IdleConns()))
	ch <- prometheus.MustNewConstMetric(c.total, prometheus.GaugeValue, float64(s.TotalConns()))
}

// Package obs exposes Prometheus metrics for ingest batches and the HTTP API.
package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sells-group/rfp-ingest/internal/model"
)

var (
	batchesStarted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "rfp",
			Subsystem: "ingest",
			Name:      "batches_started_total",
			Help:      "Upload batches started.",
		},
	)
	batchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rfp",
			Subsystem: "ingest",
			Name:      "batches_total",
			Help:      "Upload batches finished, by outcome.",
		},
		[]string{"outcome"},
	)
	filesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rfp",
			Subsystem: "ingest",
			Name:      "files_total",
			Help:      "Files processed, by outcome and analysis path.",
		},
		[]string{"outcome", "path"},
	)
	fallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rfp",
			Subsystem: "ingest",
			Name:      "fallbacks_total",
			Help:      "Synchronous analysis fallbacks, by trigger.",
		},
		[]string{"trigger"},
	)
	fileDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rfp",
			Subsystem: "ingest",
			Name:      "file_duration_seconds",
			Help:      "Wall time from upload start to file outcome.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 180, 300, 600},
		},
		[]string{"outcome"},
	)
	pollAttempts = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "rfp",
			Subsystem: "ingest",
			Name:      "poll_attempts",
			Help:      "Status polls per async job.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 180},
		},
	)

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rfp",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"method", "route", "code"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rfp",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

func init() {
	prometheus.MustRegister(batchesStarted, batchesTotal, filesTotal, fallbacksTotal, fileDuration, pollAttempts,
		httpRequestsTotal, httpRequestDuration)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Metrics records batch events. It satisfies ingest.Observer.
type Metrics struct{}

// NewMetrics returns a metrics observer.
func NewMetrics() Metrics { return Metrics{} }

func (Metrics) OnStart(model.UploadBatch) {
	batchesStarted.Inc()
}

func (Metrics) OnProgress(model.Progress) {}

func (Metrics) OnFileDone(t model.FileTask) {
	path := string(t.Path)
	if path == "" {
		path = "none"
	}
	filesTotal.WithLabelValues(string(t.Outcome), path).Inc()
	if t.FallbackTrigger != "" {
		fallbacksTotal.WithLabelValues(string(t.FallbackTrigger)).Inc()
	}
	if t.PollAttempts > 0 {
		pollAttempts.Observe(float64(t.PollAttempts))
	}
	if !t.StartedAt.IsZero() && !t.FinishedAt.IsZero() {
		fileDuration.WithLabelValues(string(t.Outcome)).Observe(t.FinishedAt.Sub(t.StartedAt).Seconds())
	}
}

func (Metrics) OnTerminal(t model.Terminal) {
	batchesTotal.WithLabelValues(string(t.Outcome)).Inc()
}

// Middleware records request count and latency, labelled by chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := routeLabel(r)
		httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.code)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

func routeLabel(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.code = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

// Flush lets SSE handlers stream through the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

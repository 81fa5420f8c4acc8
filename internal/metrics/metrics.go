// Package metrics provides Prometheus metrics for the filedrop server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filedrop_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "filedrop_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	uploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filedrop_uploads_total",
			Help: "Total number of uploads by result",
		},
		[]string{"result"},
	)

	uploadBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "filedrop_upload_bytes_total",
			Help: "Total bytes written by uploads",
		},
	)

	transcodesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filedrop_transcodes_total",
			Help: "Total HLS transcodes by result",
		},
		[]string{"result"},
	)

	transcodeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "filedrop_transcode_duration_seconds",
			Help:    "Time taken to transcode a video into HLS",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
	)

	transcodesInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "filedrop_transcodes_in_flight",
			Help: "Number of ffmpeg processes currently running",
		},
	)

	registrySize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "filedrop_registry_records",
			Help: "Number of records in the file registry",
		},
	)

	registryRescans = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filedrop_registry_rescans_total",
			Help: "Directory rescans by result",
		},
		[]string{"result"},
	)

	authAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filedrop_auth_attempts_total",
			Help: "Login callbacks by result",
		},
		[]string{"result"},
	)
)

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

func RecordUpload(success bool, size int64) {
	if !success {
		uploadsTotal.WithLabelValues("error").Inc()
		return
	}
	uploadsTotal.WithLabelValues("ok").Inc()
	if size > 0 {
		uploadBytes.Add(float64(size))
	}
}

// TranscodeStarted marks one ffmpeg run as in flight and returns its completion hook.
func TranscodeStarted() func(err error) {
	start := time.Now()
	transcodesInFlight.Inc()
	return func(err error) {
		transcodesInFlight.Dec()
		transcodeDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			transcodesTotal.WithLabelValues("error").Inc()
			return
		}
		transcodesTotal.WithLabelValues("ok").Inc()
	}
}

func RecordRescan(records int, err error) {
	if err != nil {
		registryRescans.WithLabelValues("error").Inc()
		return
	}
	registryRescans.WithLabelValues("ok").Inc()
	registrySize.Set(float64(records))
}

func SetRegistrySize(records int) {
	registrySize.Set(float64(records))
}

// RecordAuthAttempt labels are "ok", "rejected" (not whitelisted) or "error".
func RecordAuthAttempt(result string) {
	authAttemptsTotal.WithLabelValues(result).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Middleware records request counts and latency per route template.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if current := mux.CurrentRoute(r); current != nil {
			if tpl, err := current.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

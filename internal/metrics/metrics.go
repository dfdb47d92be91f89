// Package metrics provides Prometheus metrics for the mediavault server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediavault_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mediavault_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Ingestion metrics
	ingestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediavault_ingests_total",
			Help: "Total ingestion attempts by result",
		},
		[]string{"result"},
	)

	ingestBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mediavault_ingest_bytes_total",
			Help: "Total bytes of accepted originals",
		},
	)

	// Thumbnail metrics
	thumbnailsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediavault_thumbnails_generated_total",
			Help: "Thumbnails written, by spec key",
		},
		[]string{"key"},
	)

	thumbnailsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediavault_thumbnail_runs_skipped_total",
			Help: "Thumbnail pipeline runs skipped or failed, by reason",
		},
		[]string{"reason"},
	)

	thumbnailDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mediavault_thumbnail_duration_seconds",
			Help:    "Duration of a full cascade derivation",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
	)

	// Storage metrics
	storageOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mediavault_storage_operation_duration_seconds",
			Help:    "Storage backend operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)

	storageOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediavault_storage_operations_total",
			Help: "Total storage backend operations",
		},
		[]string{"backend", "operation", "status"},
	)

	// Catalog metrics
	catalogQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mediavault_catalog_query_duration_seconds",
			Help:    "Asset catalog query duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"driver", "query"},
	)

	// Access control
	permissionChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediavault_permission_checks_total",
			Help: "Total permission checks",
		},
		[]string{"intent", "result"},
	)

	authAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediavault_auth_attempts_total",
			Help: "Total bearer token validations",
		},
		[]string{"result"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordHTTPRequest records an HTTP request metric.
func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordIngest records the outcome of an ingestion ("created", "duplicate",
// "rejected", "error").
func RecordIngest(result string, bytes int64) {
	ingestsTotal.WithLabelValues(result).Inc()
	if result == "created" {
		ingestBytes.Add(float64(bytes))
	}
}

// RecordThumbnail records a single written thumbnail.
func RecordThumbnail(key string) {
	thumbnailsGenerated.WithLabelValues(key).Inc()
}

// RecordThumbnailSkip records a pipeline run that produced no thumbnails.
func RecordThumbnailSkip(reason string) {
	thumbnailsSkipped.WithLabelValues(reason).Inc()
}

// RecordThumbnailDuration records a completed cascade.
func RecordThumbnailDuration(d time.Duration) {
	thumbnailDuration.Observe(d.Seconds())
}

// RecordStorageOperation records a storage backend operation.
func RecordStorageOperation(backend, operation string, duration time.Duration, success bool) {
	storageOperationDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
	status := "success"
	if !success {
		status = "error"
	}
	storageOperationsTotal.WithLabelValues(backend, operation, status).Inc()
}

// RecordCatalogQuery records a catalog query duration.
func RecordCatalogQuery(driver, query string, duration time.Duration) {
	catalogQueryDuration.WithLabelValues(driver, query).Observe(duration.Seconds())
}

// RecordPermissionCheck records a permission check result.
func RecordPermissionCheck(intent string, allowed bool) {
	result := "allowed"
	if !allowed {
		result = "denied"
	}
	permissionChecksTotal.WithLabelValues(intent, result).Inc()
}

// RecordAuthAttempt records a token validation.
func RecordAuthAttempt(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	authAttemptsTotal.WithLabelValues(result).Inc()
}

// Middleware records request metrics labelled by the matched chi route
// pattern, keeping label cardinality bounded.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		RecordHTTPRequest(r.Method, route, status, time.Since(start))
	})
}

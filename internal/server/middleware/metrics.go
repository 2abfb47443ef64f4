package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/daoyou-zhang/daoyoucode/internal/observability"
)

// endpointPattern returns the matched chi route so labels stay low-cardinality.
// Unrouted paths collapse into a few fixed buckets.
func endpointPattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	switch path := r.URL.Path; {
	case path == "/" || path == "/version" || path == "/metrics":
		return path
	case path == "/health" || strings.HasPrefix(path, "/health/"):
		return "/health/*"
	case strings.HasPrefix(path, "/v1/"):
		return "/v1/*"
	default:
		return "/unknown"
	}
}

// skillLabel names the skill a routed /v1/skills/{name} request addressed.
// 404s are dropped so unknown names cannot grow the label set.
func skillLabel(r *http.Request, status int) string {
	if status == http.StatusNotFound {
		return ""
	}
	return chi.URLParam(r, "name")
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "server_error"
	case status >= 400:
		return "client_error"
	default:
		return ""
	}
}

// RequestMetrics records count, latency and sizes for every request, plus an
// error counter for 4xx/5xx. Skill routes also carry a skill label.
func RequestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sys := observability.TelemetrySystem
		if sys == nil {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		elapsed := time.Since(start)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		endpoint := endpointPattern(r)
		labels := map[string]string{
			"method":   r.Method,
			"endpoint": endpoint,
			"status":   strconv.Itoa(status),
		}
		if name := skillLabel(r, status); name != "" {
			labels["skill"] = name
		}
		sizeLabels := map[string]string{"method": r.Method, "endpoint": endpoint}

		_ = sys.Counter("http_requests_total", 1, labels)
		_ = sys.Histogram("http_request_duration_ms", elapsed, labels)
		if r.ContentLength > 0 {
			_ = sys.Gauge("http_request_size_bytes", float64(r.ContentLength), sizeLabels)
		}
		_ = sys.Gauge("http_response_size_bytes", float64(ww.BytesWritten()), sizeLabels)

		if class := statusClass(status); class != "" {
			errLabels := map[string]string{
				"method":     r.Method,
				"endpoint":   endpoint,
				"status":     strconv.Itoa(status),
				"error_type": class,
			}
			_ = sys.Counter("http_errors_total", 1, errLabels)
		}

		if logger := observability.ServerLogger; logger != nil {
			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("endpoint", endpoint),
				zap.Int("status", status),
				zap.Duration("duration", elapsed),
				zap.Int("response_size", ww.BytesWritten()),
				zap.String("request_id", GetRequestID(r.Context())),
			}
			if name := labels["skill"]; name != "" {
				fields = append(fields, zap.String("skill", name))
			}
			logger.Info("HTTP request completed", fields...)
		}
	})
}

package server

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/daoyou-zhang/daoyoucode/internal/errors"
	"github.com/daoyou-zhang/daoyoucode/internal/observability"
)

// prometheusContentType is set when the exporter omits a content type.
const prometheusContentType = "text/plain; version=0.0.4"

var metricsTransport http.RoundTripper = &http.Transport{
	ResponseHeaderTimeout: 5 * time.Second,
}

// MetricsHandler serves the exporter's Prometheus text on the API port, so
// execution and resilience counters can be scraped next to the API.
func (s *Server) MetricsHandler(w http.ResponseWriter, r *http.Request) {
	if observability.PrometheusExporter == nil {
		HandleError(w, r, apperrors.Wrap(r.Context(), apperrors.CodeUnavailable, nil, "metrics exporter not initialized"))
		return
	}

	target := &url.URL{Scheme: "http", Host: fmt.Sprintf("127.0.0.1:%d", s.exporterPort())}
	proxy := &httputil.ReverseProxy{
		Transport: metricsTransport,
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.Out.URL.Path = "/metrics"
			pr.Out.URL.RawQuery = ""
		},
		ModifyResponse: func(resp *http.Response) error {
			if resp.Header.Get("Content-Type") == "" {
				resp.Header.Set("Content-Type", prometheusContentType)
			}
			return nil
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			if observability.ServerLogger != nil {
				observability.ServerLogger.Warn("Metrics exporter unreachable",
					zap.String("target", target.String()), zap.Error(err))
			}
			HandleError(w, r, apperrors.Wrap(r.Context(), apperrors.CodeExternalService, err, "prometheus exporter unavailable"))
		},
	}
	proxy.ServeHTTP(w, r)
}

// exporterPort prefers the bound port, then the configured one.
func (s *Server) exporterPort() int {
	if port := observability.GetMetricsPort(); port != 0 {
		return port
	}
	if s.opts.MetricsPort != 0 {
		return s.opts.MetricsPort
	}
	return observability.DefaultMetricsPort
}

package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Exporter bundles a Prometheus-backed OTel meter provider with the
// http.Handler serving its scrape endpoint. Each call to NewExporter builds
// an independent registry so repeated construction never collides on
// collector registration.
type Exporter struct {
	provider *sdkmetric.MeterProvider
	handler  http.Handler
}

// NewExporter creates the Prometheus exporter and its meter provider.
func NewExporter() (*Exporter, error) {
	registry := prometheus.NewRegistry()

	exporter, err := promexporter.New(
		promexporter.WithRegisterer(registry),
	)
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	return &Exporter{
		provider: sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter)),
		handler:  promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}, nil
}

// Metrics builds the engine instruments against this exporter's provider.
func (e *Exporter) Metrics() (*EngineMetrics, error) {
	return NewEngineMetrics(e.provider.Meter("covmerge"))
}

// Handler returns the /metrics scrape handler.
func (e *Exporter) Handler() http.Handler {
	return e.handler
}

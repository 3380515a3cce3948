package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics exposes the engine's operational counters through an OTel meter
// backed by a Prometheus registry. All methods are nil-safe so callers can
// run without metrics wired.
type Metrics struct {
	registry *prometheus.Registry

	commands    metric.Int64Counter
	fallbacks   metric.Int64Counter
	broadcasts  metric.Int64Counter
	extractions metric.Int64Counter
}

// New builds the meter provider and instruments
func New() (*Metrics, error) {
	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter("greg-voice")

	m := &Metrics{registry: registry}

	if m.commands, err = meter.Int64Counter("greg_engine_commands_total",
		metric.WithDescription("Engine commands processed")); err != nil {
		return nil, err
	}
	if m.fallbacks, err = meter.Int64Counter("greg_extractor_pipe_fallbacks_total",
		metric.WithDescription("Stream resolutions that fell back to the piped stage")); err != nil {
		return nil, err
	}
	if m.broadcasts, err = meter.Int64Counter("greg_overlay_broadcasts_total",
		metric.WithDescription("State broadcasts fanned out to overlay rooms")); err != nil {
		return nil, err
	}
	if m.extractions, err = meter.Int64Counter("greg_extractions_total",
		metric.WithDescription("Stream resolution attempts")); err != nil {
		return nil, err
	}

	return m, nil
}

// Handler returns the /metrics HTTP handler
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// CommandProcessed counts one engine command
func (m *Metrics) CommandProcessed(op string) {
	if m == nil {
		return
	}
	m.commands.Add(context.Background(), 1, metric.WithAttributes(opAttr(op)))
}

// ExtractionAttempt counts one stream resolution
func (m *Metrics) ExtractionAttempt() {
	if m == nil {
		return
	}
	m.extractions.Add(context.Background(), 1)
}

// PipeFallback counts one direct-to-pipe fallback
func (m *Metrics) PipeFallback() {
	if m == nil {
		return
	}
	m.fallbacks.Add(context.Background(), 1)
}

// BroadcastSent counts one room broadcast
func (m *Metrics) BroadcastSent() {
	if m == nil {
		return
	}
	m.broadcasts.Add(context.Background(), 1)
}

func opAttr(op string) attribute.KeyValue {
	return attribute.String("op", op)
}

package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/trace"
)

// Observability records façade-level search metrics through OpenTelemetry
// and hands out the tracer used for per-search spans. A zero value is a
// valid no-op recorder.
type Observability struct {
	meterProvider  *metric.MeterProvider
	searchCounter  otelmetric.Int64Counter
	searchDuration otelmetric.Float64Histogram
	productsFound  otelmetric.Int64Histogram
	tracer         trace.Tracer
}

// New wires an OTel meter provider that exports through the prometheus
// default registry, next to the promauto collectors.
func New(serviceName string) (*Observability, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return &Observability{tracer: otel.Tracer(serviceName)}, err
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)
	meter := provider.Meter(serviceName)

	searchCounter, _ := meter.Int64Counter(
		"catalog.searches",
		otelmetric.WithDescription("Number of SearchProducts calls"),
	)
	searchDuration, _ := meter.Float64Histogram(
		"catalog.search.duration",
		otelmetric.WithDescription("SearchProducts duration"),
		otelmetric.WithUnit("ms"),
	)
	productsFound, _ := meter.Int64Histogram(
		"catalog.search.products",
		otelmetric.WithDescription("Products returned per search"),
	)

	return &Observability{
		meterProvider:  provider,
		searchCounter:  searchCounter,
		searchDuration: searchDuration,
		productsFound:  productsFound,
		tracer:         otel.Tracer(serviceName),
	}, nil
}

// Tracer returns the tracer for search spans; the global no-op tracer when unset.
func (o *Observability) Tracer() trace.Tracer {
	if o == nil || o.tracer == nil {
		return otel.Tracer("catalog-search")
	}
	return o.tracer
}

// RecordSearch records one SearchProducts call.
func (o *Observability) RecordSearch(ctx context.Context, duration time.Duration, products int, status string) {
	if o == nil {
		return
	}
	attrs := otelmetric.WithAttributes(attribute.String("status", status))
	if o.searchCounter != nil {
		o.searchCounter.Add(ctx, 1, attrs)
	}
	if o.searchDuration != nil {
		o.searchDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	}
	if o.productsFound != nil {
		o.productsFound.Record(ctx, int64(products), attrs)
	}
}

func (o *Observability) Shutdown() {
	if o == nil || o.meterProvider == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = o.meterProvider.Shutdown(ctx)
}

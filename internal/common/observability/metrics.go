package observability

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

type Observability struct {
	meterProvider     *metric.MeterProvider
	meter             otelmetric.Meter
	recomputeCounter  otelmetric.Int64Counter
	recomputeDuration otelmetric.Float64Histogram
}

func New(serviceName string) *Observability {
	exporter, err := prometheus.New()
	if err != nil {
		log.Printf("Failed to create Prometheus exporter: %v", err)
		return &Observability{}
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter(serviceName)

	recomputeCounter, _ := meter.Int64Counter(
		"aggregator.recomputes",
		otelmetric.WithDescription("Number of aggregation recomputes"),
	)

	recomputeDuration, _ := meter.Float64Histogram(
		"aggregator.recompute.duration",
		otelmetric.WithDescription("Aggregation recompute duration"),
		otelmetric.WithUnit("ms"),
	)

	return &Observability{
		meterProvider:     provider,
		meter:             meter,
		recomputeCounter:  recomputeCounter,
		recomputeDuration: recomputeDuration,
	}
}

// RecordRecompute notes one aggregation pass triggered by the given source.
func (o *Observability) RecordRecompute(ctx context.Context, source string, d time.Duration) {
	if o.recomputeCounter != nil {
		o.recomputeCounter.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("source", source),
		))
	}
	if o.recomputeDuration != nil {
		o.recomputeDuration.Record(ctx, float64(d.Milliseconds()), otelmetric.WithAttributes(
			attribute.String("source", source),
		))
	}
}

func (o *Observability) Shutdown() {
	if o.meterProvider != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := o.meterProvider.Shutdown(ctx); err != nil {
			log.Printf("Failed to shut down meter provider: %v", err)
		}
	}
}

package server

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	oteltrace "go.opentelemetry.io/otel/trace"
)

type Observability struct {
	Tracer oteltrace.Tracer
	Meter  metric.Meter

	traceProvider    *sdktrace.TracerProvider
	CheckCounter     metric.Int64Counter
	FilterHits       metric.Int64Counter
	UpstreamDuration metric.Int64Histogram
	ThresholdChanges metric.Int64Counter
}

func SetupObservability(ctx context.Context, cfg ObservabilityConfig) (*Observability, error) {
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "commentguard-api"
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("build otel resource: %w", err)
	}
	sampler := sdktrace.TraceIDRatioBased(cfg.SampleRatio)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	if cfg.OTLPEndpoint != "" {
		exporter, exportErr := otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlptracegrpc.WithInsecure(),
		)
		if exportErr != nil {
			return nil, fmt.Errorf("create otlp trace exporter: %w", exportErr)
		}
		tp = sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sampler),
		)
	} else {
		slog.Info("otel trace exporter not configured; using local tracer provider")
	}
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	meter := otel.Meter(serviceName)
	tracer := otel.Tracer(serviceName)
	checkCounter, _ := meter.Int64Counter("guard_check_total")
	filterHits, _ := meter.Int64Counter("guard_filter_hit_total")
	upstreamDuration, _ := meter.Int64Histogram("guard_upstream_duration_ms")
	thresholdChanges, _ := meter.Int64Counter("guard_threshold_change_total")
	return &Observability{
		Tracer:           tracer,
		Meter:            meter,
		traceProvider:    tp,
		CheckCounter:     checkCounter,
		FilterHits:       filterHits,
		UpstreamDuration: upstreamDuration,
		ThresholdChanges: thresholdChanges,
	}, nil
}

func (o *Observability) Shutdown(ctx context.Context) error {
	if o == nil || o.traceProvider == nil {
		return nil
	}
	return o.traceProvider.Shutdown(ctx)
}

func (o *Observability) MarkCheck(ctx context.Context, status string) {
	if o == nil {
		return
	}
	o.CheckCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", status),
	))
}

func (o *Observability) MarkFilterHit(ctx context.Context, model string) {
	if o == nil {
		return
	}
	o.FilterHits.Add(ctx, 1, metric.WithAttributes(attribute.String("model", model)))
}

func (o *Observability) MarkUpstream(ctx context.Context, durationMS int64) {
	if o == nil {
		return
	}
	o.UpstreamDuration.Record(ctx, durationMS)
}

func (o *Observability) MarkThresholdChange(ctx context.Context, model, action string) {
	if o == nil {
		return
	}
	o.ThresholdChanges.Add(ctx, 1, metric.WithAttributes(
		attribute.String("model", model),
		attribute.String("action", action),
	))
}

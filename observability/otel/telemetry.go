// Package otel exports traces and metrics for treasuryd over OTLP. The
// collector endpoint is taken from the standard OTEL_* environment variables;
// when none is configured the daemon runs without exporters.
package otel

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// Settings carries the exporter configuration resolved from the environment.
type Settings struct {
	Endpoint string
	Insecure bool
	Headers  map[string]string
}

// FromEnv reads OTEL_EXPORTER_OTLP_ENDPOINT, OTEL_EXPORTER_OTLP_HEADERS and
// OTEL_EXPORTER_OTLP_INSECURE.
func FromEnv() Settings {
	settings := Settings{
		Endpoint: strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")),
		Insecure: true,
		Headers:  parseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")),
	}
	if raw := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); raw != "" {
		if parsed, err := strconv.ParseBool(raw); err == nil {
			settings.Insecure = parsed
		}
	}
	return settings
}

// Enabled reports whether a collector endpoint has been configured.
func (s Settings) Enabled() bool { return s.Endpoint != "" }

// Start installs global trace and meter providers exporting to the configured
// collector. The returned function flushes and shuts the providers down.
func Start(ctx context.Context, service, environment string, settings Settings) (func(context.Context) error, error) {
	if strings.TrimSpace(service) == "" {
		return nil, fmt.Errorf("otel: service name required")
	}
	if !settings.Enabled() {
		return nil, fmt.Errorf("otel: collector endpoint required")
	}

	attrs := []attribute.KeyValue{semconv.ServiceNameKey.String(service)}
	if environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironmentKey.String(environment))
	}
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(attrs...))
	if err != nil {
		return nil, fmt.Errorf("otel: build resource: %w", err)
	}

	tracerProvider, err := newTracerProvider(ctx, res, settings)
	if err != nil {
		return nil, err
	}
	meterProvider, err := newMeterProvider(ctx, res, settings)
	if err != nil {
		_ = tracerProvider.Shutdown(ctx)
		return nil, err
	}

	otel.SetTracerProvider(tracerProvider)
	otel.SetMeterProvider(meterProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return func(ctx context.Context) error {
		metricErr := meterProvider.Shutdown(ctx)
		traceErr := tracerProvider.Shutdown(ctx)
		if traceErr != nil {
			return traceErr
		}
		return metricErr
	}, nil
}

func newTracerProvider(ctx context.Context, res *resource.Resource, settings Settings) (*sdktrace.TracerProvider, error) {
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(settings.Endpoint)}
	if settings.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if len(settings.Headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(settings.Headers))
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("otel: create trace exporter: %w", err)
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(2*time.Second)),
	), nil
}

func newMeterProvider(ctx context.Context, res *resource.Resource, settings Settings) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(settings.Endpoint)}
	if settings.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	if len(settings.Headers) > 0 {
		opts = append(opts, otlpmetrichttp.WithHeaders(settings.Headers))
	}
	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("otel: create metric exporter: %w", err)
	}
	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(15*time.Second))
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	), nil
}

func parseHeaders(raw string) map[string]string {
	headers := map[string]string{}
	for _, pair := range strings.Split(raw, ",") {
		trimmed := strings.TrimSpace(pair)
		if trimmed == "" {
			continue
		}
		key, value, found := strings.Cut(trimmed, "=")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		headers[key] = strings.TrimSpace(value)
	}
	return headers
}

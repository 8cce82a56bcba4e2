package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
)

type ProviderConfig struct {
	Endpoint       string // host:port, tanpa scheme
	Insecure       bool
	ServiceName    string
	ServiceVersion string
	Interval       time.Duration
}

// InitProvider sets up an OTLP/HTTP meter provider and makes it global. With
// no endpoint it returns a provider without readers, so instruments work but
// nothing is exported.
func InitProvider(ctx context.Context, cfg ProviderConfig) (*sdkmetric.MeterProvider, error) {
	envRes, err := resource.New(ctx, resource.WithFromEnv())
	if err != nil {
		envRes = resource.Empty()
	}
	explicitRes, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	))
	if err != nil {
		return nil, fmt.Errorf("resource: %w", err)
	}
	res, err := resource.Merge(envRes, explicitRes)
	if err != nil {
		return nil, fmt.Errorf("merge resources: %w", err)
	}

	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	if cfg.Endpoint != "" {
		exporterOpts := []otlpmetrichttp.Option{
			otlpmetrichttp.WithEndpoint(cfg.Endpoint),
			otlpmetrichttp.WithURLPath("/v1/metrics"),
		}
		if cfg.Insecure {
			exporterOpts = append(exporterOpts, otlpmetrichttp.WithInsecure())
		}
		exporter, err := otlpmetrichttp.New(ctx, exporterOpts...)
		if err != nil {
			return nil, fmt.Errorf("otlp exporter: %w", err)
		}
		interval := cfg.Interval
		if interval <= 0 {
			interval = 10 * time.Second
		}
		opts = append(opts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))))
	}

	mp := sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(mp)
	return mp, nil
}

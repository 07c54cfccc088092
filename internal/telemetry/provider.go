// Package telemetry builds the process OpenTelemetry meter provider.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Config holds metrics export settings.
type Config struct {
	Enabled     bool
	ServiceName string
	Interval    time.Duration // export period
	Writer      io.Writer     // stdout-style export target; optional
	Endpoint    string        // OTLP/HTTP endpoint; optional
	Insecure    bool          // plain HTTP for OTLP
}

// Provider owns the SDK meter provider, or a no-op one when disabled.
type Provider struct {
	sdk  *sdkmetric.MeterProvider
	noop metric.MeterProvider
}

// New builds the provider and installs it as the global meter provider. At least
// one of Writer or Endpoint is required when enabled.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{noop: noop.NewMeterProvider()}, nil
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(cfg.ServiceName)))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	var readerOpts []sdkmetric.PeriodicReaderOption
	if cfg.Interval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(cfg.Interval))
	}

	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	if cfg.Writer != nil {
		exp, err := stdoutmetric.New(stdoutmetric.WithWriter(cfg.Writer))
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout metric exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, readerOpts...)))
	}
	if cfg.Endpoint != "" {
		otlpOpts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			otlpOpts = append(otlpOpts, otlpmetrichttp.WithInsecure())
		}
		exp, err := otlpmetrichttp.New(ctx, otlpOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP metric exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, readerOpts...)))
	}
	if len(opts) == 1 {
		return nil, fmt.Errorf("metrics enabled but no writer or endpoint configured")
	}

	p := &Provider{sdk: sdkmetric.NewMeterProvider(opts...)}
	otel.SetMeterProvider(p.sdk)
	return p, nil
}

// MeterProvider is what instruments should be registered on.
func (p *Provider) MeterProvider() metric.MeterProvider {
	if p.sdk != nil {
		return p.sdk
	}
	return p.noop
}

// Enabled reports whether metrics are exported.
func (p *Provider) Enabled() bool { return p.sdk != nil }

// Shutdown flushes pending exports and stops the readers.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.sdk == nil {
		return nil
	}
	if err := p.sdk.Shutdown(ctx); err != nil {
		return fmt.Errorf("metrics shutdown failed: %w", err)
	}
	return nil
}

// Package tracing installs the OpenTelemetry tracer provider used by the
// engine's spans.
package tracing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// DefaultServiceName is reported as service.name when none is configured.
const DefaultServiceName = "agentloop"

// ErrNoEndpoint is returned by Setup when tracing is enabled without an endpoint.
var ErrNoEndpoint = errors.New("tracing: endpoint is required")

// Config selects and configures the OTLP/HTTP exporter.
type Config struct {
	Enabled bool `yaml:"enabled"`

	// Endpoint is either host:port or a full URL such as
	// http://localhost:4318/v1/traces.
	Endpoint string `yaml:"endpoint"`

	// Insecure disables TLS for host:port endpoints.
	Insecure bool `yaml:"insecure"`

	ServiceName string `yaml:"service_name"`

	// SampleRatio is the fraction of root spans recorded. Zero records all.
	SampleRatio float64 `yaml:"sample_ratio"`
}

// ShutdownFunc flushes and stops the provider.
type ShutdownFunc func(ctx context.Context) error

// Setup builds a tracer provider from cfg and installs it as the global
// provider. A disabled config returns a no-op provider and installs nothing.
func Setup(ctx context.Context, cfg Config) (trace.TracerProvider, ShutdownFunc, error) {
	if !cfg.Enabled {
		return noop.NewTracerProvider(), func(context.Context) error { return nil }, nil
	}

	if cfg.Endpoint == "" {
		return nil, nil, ErrNoEndpoint
	}

	exporter, err := otlptracehttp.New(ctx, exporterOptions(cfg)...)
	if err != nil {
		return nil, nil, fmt.Errorf("tracing: create exporter: %w", err)
	}

	name := cfg.ServiceName
	if name == "" {
		name = DefaultServiceName
	}

	res := resource.NewWithAttributes("", attribute.String("service.name", name))

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg.SampleRatio)),
	)

	otel.SetTracerProvider(tp)

	return tp, tp.Shutdown, nil
}

func exporterOptions(cfg Config) []otlptracehttp.Option {
	if strings.Contains(cfg.Endpoint, "://") {
		return []otlptracehttp.Option{otlptracehttp.WithEndpointURL(cfg.Endpoint)}
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	return opts
}

func sampler(ratio float64) sdktrace.Sampler {
	if ratio <= 0 || ratio >= 1 {
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}

	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}

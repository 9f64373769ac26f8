package telemetry

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

/*
JAEGER INTEGRATION

	docqa -> OpenTelemetry SDK -> Jaeger exporter -> Jaeger collector -> Jaeger UI

The semconv version matches the one the SDK's resource.Default() is built
with; merging resources with different schema URLs fails.
*/

// ShutdownFunc flushes pending spans and stops the exporter
type ShutdownFunc func(context.Context) error

// InitJaeger initializes the Jaeger tracing exporter and installs the global tracer provider.
// The returned cleanup function should be called on shutdown.
func InitJaeger(serviceName, version, jaegerEndpoint string, log zerolog.Logger) (ShutdownFunc, error) {
	exp, err := jaeger.New(
		jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(jaegerEndpoint)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Jaeger exporter: %w", err)
	}

	res, err := newResource(serviceName, version)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
	)

	otel.SetTracerProvider(tp)

	log.Info().Str("endpoint", jaegerEndpoint).Msg("✓ Jaeger tracing initialized")

	// Always flush traces on shutdown!
	return tp.Shutdown, nil
}

// Noop is the shutdown func used when tracing is disabled or failed to start
func Noop(context.Context) error { return nil }

func newResource(serviceName, version string) (*resource.Resource, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}

package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
)

// Options describes where traces go and which process emits them
type Options struct {
	Endpoint string
	Insecure bool
	Service  string
	Version  string

	// Lookup sources, recorded on every span's resource
	IPLookup    string
	StatURL     string
	RegistryURL string
}

// Resource builds the service resource for o
func Resource(o Options) *resource.Resource {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(o.Service),
		semconv.ServiceVersion(o.Version),
	}
	if o.IPLookup != "" {
		attrs = append(attrs, attribute.String("uplinks.ip_lookup", o.IPLookup))
	}
	if o.StatURL != "" {
		attrs = append(attrs, attribute.String("uplinks.stat_url", o.StatURL))
	}
	if o.RegistryURL != "" {
		attrs = append(attrs, attribute.String("uplinks.registry_url", o.RegistryURL))
	}
	return resource.NewWithAttributes(semconv.SchemaURL, attrs...)
}

// Init installs an OTLP/HTTP tracer provider. With no endpoint the global
// no-op provider stays in place and the returned shutdown does nothing.
func Init(ctx context.Context, o Options) (func(context.Context) error, error) {
	if o.Endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}
	clientOpts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(o.Endpoint)}
	if o.Insecure {
		clientOpts = append(clientOpts, otlptracehttp.WithInsecure())
	}
	exp, err := otlptracehttp.New(ctx, clientOpts...)
	if err != nil {
		return nil, err
	}
	res, err := resource.Merge(resource.Default(), Resource(o))
	if err != nil {
		// schema URL conflict with the SDK default; keep ours
		res = Resource(o)
	}
	tp := trace.NewTracerProvider(
		trace.WithBatcher(exp, trace.WithBatchTimeout(3*time.Second)),
		trace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

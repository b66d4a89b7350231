package exporters

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
)

// New builds an OTLP span exporter for endpoint. protocol is "grpc" or
// "http"; empty means http.
func New(ctx context.Context, protocol, endpoint string) (*otlptrace.Exporter, error) {
	switch strings.ToLower(protocol) {
	case "grpc":
		return otlptrace.New(ctx, otlptracegrpc.NewClient(
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithCompressor("gzip"),
			otlptracegrpc.WithInsecure(),
		))
	case "", "http":
		return otlptrace.New(ctx, otlptracehttp.NewClient(
			otlptracehttp.WithEndpoint(endpoint),
			otlptracehttp.WithCompression(otlptracehttp.GzipCompression),
			otlptracehttp.WithInsecure(),
		))
	default:
		return nil, fmt.Errorf("unsupported otlp protocol %q", protocol)
	}
}

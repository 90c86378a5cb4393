// Package tracing installs OpenTelemetry tracing for covenant.
//
// New sets the global tracer provider to an OTLP gRPC exporter, or to a
// no-op provider when tracing is disabled. The engine and extractor start
// their spans from otel.Tracer and need no reference to this package.
// HTTPMiddleware continues incoming W3C trace context and opens a server
// span per request.
package tracing

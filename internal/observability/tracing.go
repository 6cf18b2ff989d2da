// Package observability wires OpenTelemetry tracing into Genkit's
// TracerProvider via an OTLP HTTP exporter.
package observability

import (
	"context"
	"time"

	"github.com/firebase/genkit/go/core/tracing"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/talq0/talq/internal/log"
)

// Config for the OTLP trace exporter.
type Config struct {
	// Endpoint is the OTLP HTTP collector host:port. Empty disables tracing.
	Endpoint string

	// Logger is required.
	Logger log.Logger
}

// shutdownTimeout bounds the final span flush during teardown.
const shutdownTimeout = 5 * time.Second

// Setup registers an OTLP span processor with Genkit's TracerProvider.
// Agent executions and tool calls then show up as spans on the collector.
//
// It must run before genkit.Init so the provider is ready when flows start.
// The returned function flushes pending spans; it is safe to call even when
// tracing is disabled. Exporter creation failure disables tracing rather
// than failing startup.
func Setup(ctx context.Context, cfg Config) func() {
	noop := func() {}
	if cfg.Endpoint == "" {
		return noop
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.Endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		cfg.Logger.Warn("creating otlp exporter, tracing disabled", "error", err)
		return noop
	}

	processor := sdktrace.NewBatchSpanProcessor(exporter)
	tracing.TracerProvider().RegisterSpanProcessor(processor)
	cfg.Logger.Debug("tracing enabled", "endpoint", cfg.Endpoint)

	shutdown := tracing.TracerProvider().Shutdown
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			cfg.Logger.Warn("shutting down tracer provider", "error", err)
		}
	}
}

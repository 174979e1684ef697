// Package obslog provides trace-correlated structured logging: zerolog
// fields enriched with the active otel span context.
package obslog

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

// FromContext returns a logger enriched with trace_id/span_id/trace_sampled
// fields when ctx carries an active span, and the process-global logger
// otherwise.
func FromContext(ctx context.Context) *zerolog.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return &log.Logger
	}
	l := log.With().
		Str("trace_id", sc.TraceID().String()).
		Str("span_id", sc.SpanID().String()).
		Bool("trace_sampled", sc.IsSampled()).
		Logger()
	return &l
}

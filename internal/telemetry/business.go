package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ForecastSummary is the subset of a forecast recorded on a cycle span.
type ForecastSummary struct {
	CurrentPrice   float64
	AdjustedDrift  float64
	StepVolatility float64
	MacroCount     int
	Diagnostics    int
}

// BusinessTracer wraps domain spans for forecast cycles and series loads.
type BusinessTracer struct {
	tracer trace.Tracer
}

// NewBusinessTracer uses the given tracer, or the global service tracer when nil.
func NewBusinessTracer(tracer trace.Tracer) *BusinessTracer {
	if tracer == nil {
		tracer = Tracer()
	}
	return &BusinessTracer{tracer: tracer}
}

// TraceForecastCycle starts the root span of one forecast cycle.
func (bt *BusinessTracer) TraceForecastCycle(ctx context.Context, target string, macros []string) (context.Context, trace.Span) {
	return bt.tracer.Start(ctx, "quant.forecast_cycle",
		trace.WithAttributes(
			attribute.String("quant.target", target),
			attribute.StringSlice("quant.macros", macros),
		),
	)
}

// TraceSeriesLoad starts a span around loading one ticker's history.
func (bt *BusinessTracer) TraceSeriesLoad(ctx context.Context, ticker string) (context.Context, trace.Span) {
	return bt.tracer.Start(ctx, "quant.load_series",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("quant.ticker", ticker)),
	)
}

// RecordForecast annotates span with the forecast headline numbers.
func (bt *BusinessTracer) RecordForecast(span trace.Span, summary ForecastSummary) {
	span.SetAttributes(
		attribute.Float64("quant.current_price", summary.CurrentPrice),
		attribute.Float64("quant.adjusted_drift", summary.AdjustedDrift),
		attribute.Float64("quant.step_volatility", summary.StepVolatility),
		attribute.Int("quant.macro_count", summary.MacroCount),
		attribute.Int("quant.diagnostics", summary.Diagnostics),
	)
	span.SetStatus(codes.Ok, "")
}

// RecordError marks span failed.
func (bt *BusinessTracer) RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SpanEmitter maps engine events onto OTel spans: one span per run with one
// child span per measured iteration. It keeps at most one run and one
// iteration span open, which is sound because the execution gate guarantees
// runs never overlap and iterations within a run are strictly sequential.
type SpanEmitter struct {
	tracer trace.Tracer

	runCtx   context.Context
	runSpan  trace.Span
	iterSpan trace.Span
}

// NewSpanEmitter creates a SpanEmitter on the given tracer.
func NewSpanEmitter(tracer trace.Tracer) *SpanEmitter {
	return &SpanEmitter{tracer: tracer}
}

func (s *SpanEmitter) RunStarted(runID, testName string) {
	s.runCtx, s.runSpan = s.tracer.Start(context.Background(), "benchmark "+testName,
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	s.runSpan.SetAttributes(
		attribute.String("benchvise.run_id", runID),
		attribute.String("benchvise.test", testName),
	)
}

func (s *SpanEmitter) IterationStarted(runID, testName string, iteration int) {
	if s.runCtx == nil {
		return
	}
	_, s.iterSpan = s.tracer.Start(s.runCtx, "iteration")
	s.iterSpan.SetAttributes(
		attribute.String("benchvise.run_id", runID),
		attribute.Int("benchvise.iteration", iteration),
	)
}

func (s *SpanEmitter) IterationStopped(runID, testName string, iteration int, success bool) {
	if s.iterSpan == nil {
		return
	}
	s.iterSpan.SetAttributes(attribute.Bool("benchvise.success", success))
	if success {
		s.iterSpan.SetStatus(codes.Ok, "")
	} else {
		s.iterSpan.SetStatus(codes.Error, "iteration failed")
	}
	s.iterSpan.End()
	s.iterSpan = nil
}

func (s *SpanEmitter) RunStopped(runID, testName, reason string) {
	if s.runSpan == nil {
		return
	}
	s.runSpan.SetAttributes(attribute.String("benchvise.stop_reason", reason))
	if reason == "test_failed" {
		s.runSpan.SetStatus(codes.Error, "benchmark failed")
	} else {
		s.runSpan.SetStatus(codes.Ok, "")
	}
	s.runSpan.End()
	s.runSpan = nil
	s.runCtx = nil
}

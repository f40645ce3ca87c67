package telemetry

import (
	"context"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.trai.ch/bake/internal/core/domain"
	"go.trai.ch/bake/internal/core/ports"
)

// Span attribute keys.
const (
	AttrStep   = "bake.step"
	AttrCached = "bake.cached"
	AttrStream = "bake.stream"
)

// OTelTracer implements ports.Telemetry with one OpenTelemetry span per vertex.
type OTelTracer struct {
	tracer trace.Tracer
}

// NewOTelTracer creates an OTelTracer using the global tracer provider.
func NewOTelTracer(name string) *OTelTracer {
	return &OTelTracer{tracer: otel.Tracer(name)}
}

// Record starts a span named after the step.
func (t *OTelTracer) Record(ctx context.Context, name string) (context.Context, ports.Vertex) {
	ctx, span := t.tracer.Start(ctx, name, trace.WithAttributes(attribute.String(AttrStep, name)))
	v := &OTelSpan{span: span}
	v.stdout = NewLineBatcher(0, 0, v.output("stdout"))
	v.stderr = NewLineBatcher(0, 0, v.output("stderr"))
	return ports.ContextWithVertex(ctx, v), v
}

// Close does nothing. The tracer provider owns the exporters.
func (t *OTelTracer) Close() error {
	return nil
}

// OTelSpan implements ports.Vertex over a trace.Span.
type OTelSpan struct {
	span   trace.Span
	stdout *LineBatcher
	stderr *LineBatcher
}

// Stdout returns a writer whose lines become "output" events on the span.
func (s *OTelSpan) Stdout() io.Writer {
	return s.stdout
}

// Stderr returns a writer whose lines become "output" events on the span.
func (s *OTelSpan) Stderr() io.Writer {
	return s.stderr
}

// Log adds a log event to the span.
func (s *OTelSpan) Log(level domain.LogLevel, msg string) {
	s.span.AddEvent("log", trace.WithAttributes(
		attribute.String("level", level.String()),
		attribute.String("message", msg),
	))
}

// Cached marks the span as resolved from cache.
func (s *OTelSpan) Cached() {
	s.span.SetAttributes(attribute.Bool(AttrCached, true))
}

// Complete flushes buffered output and ends the span.
func (s *OTelSpan) Complete(err error) {
	_ = s.stdout.Close()
	_ = s.stderr.Close()
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	} else {
		s.span.SetStatus(codes.Ok, "")
	}
	s.span.End()
}

func (s *OTelSpan) output(stream string) func([]string) {
	return func(lines []string) {
		for _, line := range lines {
			s.span.AddEvent("output", trace.WithAttributes(
				attribute.String(AttrStream, stream),
				attribute.String("message", line),
			))
		}
	}
}

package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.trai.ch/bake/internal/core/ports"
)

// Summary is the outcome tally of the spans seen by a LogBridge.
type Summary struct {
	Steps  int
	Cached int
	Failed int
}

// LogBridge implements sdktrace.SpanProcessor by logging every finished step span.
type LogBridge struct {
	logger ports.Logger

	mu      sync.Mutex
	summary Summary
}

// NewLogBridge returns a LogBridge writing to logger.
func NewLogBridge(logger ports.Logger) *LogBridge {
	return &LogBridge{logger: logger}
}

// OnStart does nothing.
func (b *LogBridge) OnStart(context.Context, sdktrace.ReadWriteSpan) {}

// OnEnd logs the span at debug level and updates the summary.
func (b *LogBridge) OnEnd(s sdktrace.ReadOnlySpan) {
	cached := false
	for _, attr := range s.Attributes() {
		if string(attr.Key) == AttrCached {
			cached = attr.Value.AsBool()
		}
	}
	failed := s.Status().Code == codes.Error

	b.mu.Lock()
	b.summary.Steps++
	if cached {
		b.summary.Cached++
	}
	if failed {
		b.summary.Failed++
	}
	b.mu.Unlock()

	b.logger.Debug("step finished",
		"step", s.Name(),
		"duration", s.EndTime().Sub(s.StartTime()).Round(time.Millisecond).String(),
		"cached", cached,
		"failed", failed,
	)
}

// Summary returns the tally so far.
func (b *LogBridge) Summary() Summary {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.summary
}

// ForceFlush does nothing.
func (b *LogBridge) ForceFlush(context.Context) error {
	return nil
}

// Shutdown does nothing.
func (b *LogBridge) Shutdown(context.Context) error {
	return nil
}

// Setup registers a global tracer provider that reports spans to bridge.
// The returned function shuts the provider down.
func Setup(bridge *LogBridge) func(context.Context) error {
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(bridge))
	otel.SetTracerProvider(tp)
	return tp.Shutdown
}

package core

import (
	"context"
	"time"
)

// Logger receives structured key-value log events from the service.
type Logger interface {
	Debug(msg string, keyvals ...any)
	Info(msg string, keyvals ...any)
	Warn(msg string, keyvals ...any)
	Error(msg string, keyvals ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// MetricsRecorder aggregates operation timings and outcomes.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// TraceSpan finishes a single traced operation.
type TraceSpan interface {
	End(err error)
}

// Tracer produces spans around service operations.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

type nopSpan struct{}

func (nopSpan) End(error) {}

type nopTracer struct{}

func (nopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, nopSpan{}
}

type nopMetrics struct{}

func (nopMetrics) Observe(context.Context, string, bool, time.Duration) {}

// instrument wraps a service operation with logging, metrics and tracing.
func (s *Service) instrument(ctx context.Context, operation string, fn func(context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, operation)
	started := time.Now()
	err := fn(ctx)
	duration := time.Since(started)
	span.End(err)
	s.metrics.Observe(ctx, operation, err == nil, duration)
	if err != nil {
		s.logger.Error("operation failed", "operation", operation, "duration_ms", float64(duration)/float64(time.Millisecond), "error", err)
	} else {
		s.logger.Debug("operation completed", "operation", operation, "duration_ms", float64(duration)/float64(time.Millisecond))
	}
	return err
}

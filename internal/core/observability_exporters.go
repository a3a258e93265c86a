package core

import (
	"context"
	"encoding/json"
	"expvar"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

var expvarSeq uint64

// OperationStats accumulates the counters kept per instrumented service
// operation (fetch_page, save_row, delete_row, fetch_validation_report,
// run_validation, refresh_summary_view).
type OperationStats struct {
	Calls   int64   `json:"calls"`
	Errors  int64   `json:"errors"`
	TotalMS float64 `json:"total_ms"`
}

// ExpvarMetricsRecorder is the dependency-free MetricsRecorder: per-operation
// call, error and cumulative-latency counters published as a single expvar
// variable. The server binary registers it next to the Prometheus recorder so
// /debug/vars stays useful without a scraper.
type ExpvarMetricsRecorder struct {
	mu  sync.Mutex
	ops map[string]OperationStats
}

// NewExpvarMetricsRecorder publishes a recorder under the given expvar name.
// An empty name gets a generated one so parallel tests never collide.
func NewExpvarMetricsRecorder(name string) *ExpvarMetricsRecorder {
	if name == "" {
		name = fmt.Sprintf("forestcore_metrics_%d", atomic.AddUint64(&expvarSeq, 1))
	}
	rec := &ExpvarMetricsRecorder{ops: make(map[string]OperationStats)}
	expvar.Publish(name, expvar.Func(func() any {
		return rec.Snapshot()
	}))
	return rec
}

// Observe implements MetricsRecorder.
func (r *ExpvarMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	r.mu.Lock()
	stats := r.ops[operation]
	stats.Calls++
	if !success {
		stats.Errors++
	}
	stats.TotalMS += float64(duration) / float64(time.Millisecond)
	r.ops[operation] = stats
	r.mu.Unlock()
}

// Snapshot copies the per-operation counters, keyed by operation name.
func (r *ExpvarMetricsRecorder) Snapshot() map[string]OperationStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]OperationStats, len(r.ops))
	for op, stats := range r.ops {
		out[op] = stats
	}
	return out
}

// TraceEvent is one completed operation span, written as a JSON line.
type TraceEvent struct {
	Operation  string    `json:"op"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS float64   `json:"duration_ms"`
	Err        string    `json:"err,omitempty"`
}

// JSONTracer implements Tracer by writing one JSON line per finished
// operation. It backs the FORESTCORE_TRACE_PATH setting of the server binary.
type JSONTracer struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewJSONTracer returns a tracer writing to w. A nil writer yields a tracer
// whose spans are dropped.
func NewJSONTracer(w io.Writer) *JSONTracer {
	t := &JSONTracer{}
	if w != nil {
		t.enc = json.NewEncoder(w)
	}
	return t
}

// Start implements Tracer.
func (t *JSONTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	return ctx, &jsonSpan{tracer: t, operation: operation, started: time.Now().UTC()}
}

type jsonSpan struct {
	tracer    *JSONTracer
	operation string
	started   time.Time
}

func (s *jsonSpan) End(err error) {
	event := TraceEvent{
		Operation:  s.operation,
		StartedAt:  s.started,
		DurationMS: float64(time.Since(s.started)) / float64(time.Millisecond),
	}
	if err != nil {
		event.Err = err.Error()
	}
	t := s.tracer
	t.mu.Lock()
	if t.enc != nil {
		_ = t.enc.Encode(event)
	}
	t.mu.Unlock()
}

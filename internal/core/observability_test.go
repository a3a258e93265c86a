package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"io"
	"strings"
	"testing"
	"time"

	"forestcore/pkg/domain"
)

func TestExpvarRecorderAggregatesPerOperation(t *testing.T) {
	rec := NewExpvarMetricsRecorder("")
	ctx := context.Background()

	rec.Observe(ctx, "fetch_page", true, 10*time.Millisecond)
	rec.Observe(ctx, "fetch_page", true, 10*time.Millisecond)
	rec.Observe(ctx, "save_row", false, 5*time.Millisecond)
	rec.Observe(ctx, "", true, time.Millisecond)

	snap := rec.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected two operations, got %+v", snap)
	}
	fetch := snap["fetch_page"]
	if fetch.Calls != 2 || fetch.Errors != 0 || fetch.TotalMS != 20 {
		t.Fatalf("fetch_page stats = %+v", fetch)
	}
	save := snap["save_row"]
	if save.Calls != 1 || save.Errors != 1 || save.TotalMS != 5 {
		t.Fatalf("save_row stats = %+v", save)
	}
}

func TestExpvarRecorderPublishesUnderName(t *testing.T) {
	const name = "forestcore_metrics_publish_test"
	rec := NewExpvarMetricsRecorder(name)
	rec.Observe(context.Background(), "delete_row", true, time.Millisecond)

	published := expvar.Get(name)
	if published == nil {
		t.Fatalf("recorder not published under %s", name)
	}
	if !strings.Contains(published.String(), "delete_row") {
		t.Fatalf("published metrics missing operation: %s", published.String())
	}
}

func decodeTrace(t *testing.T, r io.Reader) []TraceEvent {
	t.Helper()
	dec := json.NewDecoder(r)
	var events []TraceEvent
	for {
		var e TraceEvent
		if err := dec.Decode(&e); err != nil {
			if errors.Is(err, io.EOF) {
				return events
			}
			t.Fatalf("decode trace line: %v", err)
		}
		events = append(events, e)
	}
}

func TestJSONTracerWritesOneLinePerSpan(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewJSONTracer(&buf)

	_, span := tracer.Start(context.Background(), "fetch_page")
	span.End(nil)
	_, span = tracer.Start(context.Background(), "save_row")
	span.End(errors.New("boom"))

	events := decodeTrace(t, &buf)
	if len(events) != 2 {
		t.Fatalf("expected two trace lines, got %d", len(events))
	}
	if events[0].Operation != "fetch_page" || events[0].Err != "" {
		t.Fatalf("first event = %+v", events[0])
	}
	if events[1].Operation != "save_row" || events[1].Err != "boom" {
		t.Fatalf("second event = %+v", events[1])
	}
	if events[0].DurationMS < 0 || events[0].StartedAt.IsZero() {
		t.Fatalf("event timing incomplete: %+v", events[0])
	}

	// A nil writer drops spans instead of panicking.
	_, span = NewJSONTracer(nil).Start(context.Background(), "fetch_page")
	span.End(nil)
}

func TestServiceInstrumentsOperations(t *testing.T) {
	rec := NewExpvarMetricsRecorder("")
	var buf bytes.Buffer
	svc := NewInMemoryService("forest", WithMetrics(rec), WithTracer(NewJSONTracer(&buf)))
	ctx := context.Background()

	req := domain.PageRequest{Entity: domain.EntityAttribute, PageSize: 5, Scope: domain.Scope{SchemaName: "forest"}}
	if _, err := svc.FetchPage(ctx, req); err != nil {
		t.Fatalf("fetch page: %v", err)
	}
	bad := req
	bad.Scope.SchemaName = "savanna"
	if _, err := svc.FetchPage(ctx, bad); err == nil {
		t.Fatalf("expected schema rejection")
	}

	fetch := rec.Snapshot()["fetch_page"]
	if fetch.Calls != 2 || fetch.Errors != 1 {
		t.Fatalf("fetch_page stats = %+v", fetch)
	}
	events := decodeTrace(t, &buf)
	if len(events) != 2 || events[1].Err == "" {
		t.Fatalf("trace events = %+v", events)
	}
}

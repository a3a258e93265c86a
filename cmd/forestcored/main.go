// Command forestcored serves the grid data API over a durable plot store.
//
// Configuration is environment driven:
//
//	FORESTCORE_HTTP_ADDR       listen address (default :8080)
//	FORESTCORE_SCHEMA          site schema name (default forest)
//	FORESTCORE_STORAGE_DRIVER  memory|sqlite|postgres (default sqlite)
//	FORESTCORE_BLOB_DRIVER     fs|s3|memory (default fs)
//	FORESTCORE_TRACE_PATH      JSON-lines trace output file (optional)
package main

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"forestcore/internal/adapters/export"
	"forestcore/internal/adapters/gridhttp"
	"forestcore/internal/blob"
	"forestcore/internal/core"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("forestcored: %v", err)
	}
}

func run() error {
	addr := envOr("FORESTCORE_HTTP_ADDR", ":8080")
	schema := envOr("FORESTCORE_SCHEMA", "forest")

	store, err := core.OpenPersistentStore(core.NewDefaultRulesEngine())
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	blobs, err := blob.Open(ctx)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	promRecorder, err := core.NewPrometheusMetricsRecorder(registry, "forestcore")
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	expvarRecorder := core.NewExpvarMetricsRecorder("forestcore_service")
	metrics := fanoutMetrics{promRecorder, expvarRecorder}

	logger := stdLogger{log.New(os.Stderr, "", log.LstdFlags)}

	opts := []core.Option{
		core.WithLogger(logger),
		core.WithMetrics(metrics),
	}
	if path := os.Getenv("FORESTCORE_TRACE_PATH"); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open trace file: %w", err)
		}
		defer func() { _ = f.Close() }()
		opts = append(opts, core.WithTracer(core.NewJSONTracer(f)))
	}

	service := core.NewService(store, schema, opts...)

	handler := gridhttp.NewHandler(service)
	handler.Exporter = export.NewExporter(service, blobs)

	mux := http.NewServeMux()
	mux.Handle("/api/v1/", handler)
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.Handle("/debug/vars", expvar.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "ok\n")
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr, "schema", schema, "blob", blobs.Driver())
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// fanoutMetrics forwards each observation to every registered recorder.
type fanoutMetrics []core.MetricsRecorder

func (f fanoutMetrics) Observe(ctx context.Context, operation string, success bool, duration time.Duration) {
	for _, r := range f {
		r.Observe(ctx, operation, success, duration)
	}
}

// stdLogger adapts the standard library logger to the service logger contract.
type stdLogger struct {
	l *log.Logger
}

func (s stdLogger) Debug(msg string, keyvals ...any) { s.print("DEBUG", msg, keyvals) }
func (s stdLogger) Info(msg string, keyvals ...any)  { s.print("INFO", msg, keyvals) }
func (s stdLogger) Warn(msg string, keyvals ...any)  { s.print("WARN", msg, keyvals) }
func (s stdLogger) Error(msg string, keyvals ...any) { s.print("ERROR", msg, keyvals) }

func (s stdLogger) print(level, msg string, keyvals []any) {
	buf := level + " " + msg
	for i := 0; i+1 < len(keyvals); i += 2 {
		buf += fmt.Sprintf(" %v=%v", keyvals[i], keyvals[i+1])
	}
	s.l.Println(buf)
}

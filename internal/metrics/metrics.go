// Package metrics holds the prometheus collectors and the otel tracer shared
// by ingestion and search.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Ingest file outcomes
const (
	OutcomeChanged = "changed"
	OutcomeSkipped = "skipped"
	OutcomeEmpty   = "empty"
	OutcomeTouched = "touched"
	OutcomeFailed  = "failed"
)

// Registry is the registry served by Handler
var Registry = prometheus.NewRegistry()

// Prometheus metrics
var (
	IngestFiles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cycoach_ingest_files_total",
			Help: "Files seen by ingestion, by outcome",
		},
		[]string{"outcome"},
	)
	IngestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cycoach_ingest_duration_seconds",
			Help:    "Duration of complete ingest runs in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 15), // 10ms to ~160s
		},
	)
	Searches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cycoach_searches_total",
			Help: "Search requests by status",
		},
		[]string{"status"},
	)
	SearchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cycoach_search_duration_seconds",
			Help:    "Search latency in seconds, including query embedding",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		},
	)
	IndexDocuments = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cycoach_index_documents",
			Help: "Documents in the current corpus snapshot",
		},
	)
	IndexRebuilds = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cycoach_index_rebuilds_total",
			Help: "Corpus snapshot rebuilds",
		},
	)
	CorruptRecords = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cycoach_corrupt_records_total",
			Help: "Stored documents skipped because their embedding could not be decoded",
		},
	)
)

var tracer = otel.Tracer("github.com/cg-ch/cycoach")

func init() {
	Registry.MustRegister(
		IngestFiles, IngestDuration,
		Searches, SearchDuration,
		IndexDocuments, IndexRebuilds, CorruptRecords,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// StartSpan starts a span on the package tracer. Without a configured
// provider the global no-op tracer is used.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// AddEvent records a named event with attributes on the span in ctx
func AddEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}

// Handler serves Registry in the prometheus text format
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled
func Serve(ctx context.Context, addr string, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("metrics endpoint listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

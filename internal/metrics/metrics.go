// Package metrics wires the engine's internal operation counters into
// OpenTelemetry, with a Prometheus exporter for scraping. This is ambient
// instrumentation of the core (ingest duration, propagation steps, edge
// counts) — it is not the HTTP surface spec.md §1 puts out of scope.
package metrics

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Recorder exposes the handful of instruments the engine records against.
// It is safe for concurrent use.
type Recorder struct {
	mu sync.Mutex

	provider *sdkmetric.MeterProvider
	meter    metric.Meter

	ingestDuration  metric.Float64Histogram
	edgesCreated    metric.Int64Counter
	nodesAdded      metric.Int64Counter
	propagationSteps metric.Int64Histogram
	queryDuration   metric.Float64Histogram
}

// New builds a Recorder backed by a Prometheus exporter created with the
// exporter's default options. The exporter itself is not returned, and New
// exposes no scrape handler; the Recorder only records.
func New() (*Recorder, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, err
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter("pcgraph/engine")

	r := &Recorder{provider: provider, meter: meter}

	if r.ingestDuration, err = meter.Float64Histogram(
		"pcgraph_ingest_duration_seconds",
		metric.WithDescription("wall time of a conversation ingest call"),
	); err != nil {
		return nil, err
	}
	if r.edgesCreated, err = meter.Int64Counter(
		"pcgraph_edges_created_total",
		metric.WithDescription("directed edges materialized by the edge-weight engine"),
	); err != nil {
		return nil, err
	}
	if r.nodesAdded, err = meter.Int64Counter(
		"pcgraph_nodes_added_total",
		metric.WithDescription("fragments added to the graph store"),
	); err != nil {
		return nil, err
	}
	if r.propagationSteps, err = meter.Int64Histogram(
		"pcgraph_propagation_steps",
		metric.WithDescription("step limit requested per propagation call"),
	); err != nil {
		return nil, err
	}
	if r.queryDuration, err = meter.Float64Histogram(
		"pcgraph_query_duration_seconds",
		metric.WithDescription("wall time of a query call end to end"),
	); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Recorder) ObserveIngest(ctx context.Context, seconds float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ingestDuration.Record(ctx, seconds)
}

func (r *Recorder) AddEdges(ctx context.Context, n int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.edgesCreated.Add(ctx, n)
}

func (r *Recorder) AddNodes(ctx context.Context, n int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nodesAdded.Add(ctx, n)
}

func (r *Recorder) ObservePropagationSteps(ctx context.Context, steps int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.propagationSteps.Record(ctx, steps)
}

func (r *Recorder) ObserveQuery(ctx context.Context, seconds float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queryDuration.Record(ctx, seconds)
}

// Shutdown flushes and releases the underlying MeterProvider.
func (r *Recorder) Shutdown(ctx context.Context) error {
	return r.provider.Shutdown(ctx)
}

// Noop returns a Recorder whose methods are safe to call but record
// nothing, for tests and for callers that don't want Prometheus wiring.
func Noop() *Recorder {
	provider := sdkmetric.NewMeterProvider()
	meter := provider.Meter("pcgraph/noop")
	h, _ := meter.Float64Histogram("noop_histogram")
	c, _ := meter.Int64Counter("noop_counter")
	ih, _ := meter.Int64Histogram("noop_int_histogram")
	return &Recorder{
		provider:         provider,
		meter:            meter,
		ingestDuration:   h,
		edgesCreated:     c,
		nodesAdded:       c,
		propagationSteps: ih,
		queryDuration:    h,
	}
}

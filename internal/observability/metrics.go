package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricPhaseDuration = "exceptrace.phase.duration.seconds"
	metricTUFailures    = "exceptrace.extract.failures.total"
	metricFragments     = "exceptrace.fragments.total"
	metricIterations    = "exceptrace.propagate.iterations.total"

	attrPhase = "phase"
	attrKind  = "kind"
)

// durationBucketBoundaries covers 10ms to 600s: fragment loads are
// sub-second, extraction over a large compilation database runs minutes.
var durationBucketBoundaries = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600}

// PipelineMetrics holds the OTel instruments for the analysis phases.
type PipelineMetrics struct {
	phaseDuration metric.Float64Histogram
	tuFailures    metric.Int64Counter
	fragments     metric.Int64Counter
	iterations    metric.Int64Counter
}

// NewPipelineMetrics creates pipeline metric instruments from the given meter.
func NewPipelineMetrics(mt metric.Meter) (*PipelineMetrics, error) {
	b := newMetricBuilder(mt)

	pm := &PipelineMetrics{
		phaseDuration: b.histogram(metricPhaseDuration, "Phase duration in seconds", "s", durationBucketBoundaries...),
		tuFailures:    b.counter(metricTUFailures, "Failed translation units by failure kind", "{tu}"),
		fragments:     b.counter(metricFragments, "Fragment files ingested", "{fragment}"),
		iterations:    b.counter(metricIterations, "Propagation worklist iterations", "{iteration}"),
	}

	if b.err != nil {
		return nil, b.err
	}

	return pm, nil
}

// RecordPhase records one completed pipeline phase.
func (pm *PipelineMetrics) RecordPhase(ctx context.Context, phase string, duration time.Duration) {
	pm.phaseDuration.Record(ctx, duration.Seconds(),
		metric.WithAttributes(attribute.String(attrPhase, phase)))
}

// RecordTUFailure counts one failed translation unit.
func (pm *PipelineMetrics) RecordTUFailure(ctx context.Context, kind string) {
	pm.tuFailures.Add(ctx, 1, metric.WithAttributes(attribute.String(attrKind, kind)))
}

// RecordFragments counts ingested fragment files.
func (pm *PipelineMetrics) RecordFragments(ctx context.Context, n int) {
	pm.fragments.Add(ctx, int64(n))
}

// RecordIterations counts propagation worklist iterations.
func (pm *PipelineMetrics) RecordIterations(ctx context.Context, n int) {
	pm.iterations.Add(ctx, int64(n))
}

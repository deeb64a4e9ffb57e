package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/thebtf/graphtag/internal/graph"
)

const meterName = "github.com/thebtf/graphtag/internal/pipeline"

// Metrics holds the OpenTelemetry instruments for pipeline runs.
type Metrics struct {
	runs          metric.Int64Counter
	failures      metric.Int64Counter
	stageDuration metric.Float64Histogram
	edges         metric.Int64Histogram
	components    metric.Int64Histogram
}

// NewMetrics creates the pipeline instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	var m Metrics
	var err error

	if m.runs, err = meter.Int64Counter("graphtag.pipeline.runs",
		metric.WithDescription("Completed pipeline runs")); err != nil {
		return nil, err
	}
	if m.failures, err = meter.Int64Counter("graphtag.pipeline.failures",
		metric.WithDescription("Failed pipeline runs by stage")); err != nil {
		return nil, err
	}
	if m.stageDuration, err = meter.Float64Histogram("graphtag.pipeline.stage.duration",
		metric.WithDescription("Stage wall time"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.edges, err = meter.Int64Histogram("graphtag.graph.edges",
		metric.WithDescription("Edges before and after pruning")); err != nil {
		return nil, err
	}
	if m.components, err = meter.Int64Histogram("graphtag.graph.components",
		metric.WithDescription("Connected components per run")); err != nil {
		return nil, err
	}
	return &m, nil
}

var defaultMetrics = sync.OnceValue(func() *Metrics {
	m, err := NewMetrics(otel.Meter(meterName))
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create pipeline metrics, using no-op meter")
		m, _ = NewMetrics(noop.NewMeterProvider().Meter(meterName))
	}
	return m
})

// stage records the time since start for stage and returns it.
func (m *Metrics) stage(ctx context.Context, stage string, start time.Time) time.Duration {
	d := time.Since(start)
	m.stageDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("stage", stage)))
	return d
}

func (m *Metrics) recordRun(ctx context.Context, res *Result, err error) {
	if err != nil {
		stage := "unknown"
		var se *graph.StageError
		if errors.As(err, &se) {
			stage = se.Stage
		}
		m.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
		return
	}

	m.runs.Add(ctx, 1)
	m.edges.Record(ctx, int64(res.Graph.NumEdges()), metric.WithAttributes(attribute.String("graph", "full")))
	m.edges.Record(ctx, int64(res.Pruned.NumEdges()), metric.WithAttributes(attribute.String("graph", "pruned")))
	m.components.Record(ctx, int64(res.Stats.Count))
}

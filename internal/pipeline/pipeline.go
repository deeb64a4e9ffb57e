// Package pipeline runs the topic-graph clustering stages end to end:
// salience scoring, graph construction, percentile pruning and component labeling.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/graphtag/internal/graph"
	"github.com/thebtf/graphtag/pkg/models"
	"github.com/thebtf/graphtag/pkg/similarity"
)

// Options controls a single pipeline run.
type Options struct {
	// Metrics receives stage timings. nil uses the global meter provider.
	Metrics *Metrics `json:"-"`
	// RunID identifies the run. Empty means a new UUID.
	RunID string `json:"run_id,omitempty"`
	// Percentile is the pruning threshold. Values below 1 are fractions.
	Percentile float64 `json:"percentile"`
	// Workers is the number of builder goroutines. 0 means GOMAXPROCS.
	Workers int `json:"workers"`
}

// StageDurations records the wall time of each stage.
type StageDurations struct {
	Score time.Duration `json:"score"`
	Build time.Duration `json:"build"`
	Prune time.Duration `json:"prune"`
	Label time.Duration `json:"label"`
}

// Total returns the summed stage time.
func (d StageDurations) Total() time.Duration {
	return d.Score + d.Build + d.Prune + d.Label
}

// Result holds every intermediate and final product of a run.
type Result struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Salience   similarity.SalienceMap
	Graph      *graph.Graph
	Pruned     *graph.Graph
	Components models.ComponentMap
	RunID      string
	Input      string
	OutputPath string
	Clusters   []graph.ClusterSummary
	Stats      graph.ComponentStats
	Prune      graph.PruneStats
	Durations  StageDurations
	Workers    int // goroutines the build stage used
}

// Run executes score, build, prune and label over chunks. Chunk ids must be
// dense 0..n-1. The context is checked between stages; any failure is
// returned as a *graph.StageError naming the stage that detected it.
func Run(ctx context.Context, chunks []models.Chunk, opts Options) (*Result, error) {
	m := opts.Metrics
	if m == nil {
		m = defaultMetrics()
	}

	res := &Result{
		RunID:     opts.RunID,
		StartedAt: time.Now().UTC(),
		Workers:   graph.ResolveWorkers(opts.Workers, len(chunks)),
	}
	if res.RunID == "" {
		res.RunID = uuid.NewString()
	}

	err := runStages(ctx, chunks, opts, res, m)
	m.recordRun(ctx, res, err)
	if err != nil {
		log.Warn().Err(err).Str("run_id", res.RunID).Msg("Pipeline run failed")
		return nil, err
	}

	res.FinishedAt = time.Now().UTC()
	log.Info().
		Str("run_id", res.RunID).
		Int("nodes", res.Graph.NumNodes()).
		Int("edges", res.Graph.NumEdges()).
		Int("kept_edges", res.Pruned.NumEdges()).
		Float64("threshold", res.Prune.Threshold).
		Int("components", res.Stats.Count).
		Dur("took", res.Durations.Total()).
		Msg("Pipeline finished")
	return res, nil
}

func runStages(ctx context.Context, chunks []models.Chunk, opts Options, res *Result, m *Metrics) error {
	// reject a bad threshold before paying for the pairwise build
	if _, err := graph.NormalizePercentile(opts.Percentile); err != nil {
		return graph.AtStage(graph.StagePrune, err)
	}

	if err := ctx.Err(); err != nil {
		return graph.AtStage(graph.StageScore, err)
	}
	start := time.Now()
	salience, err := similarity.ComputeSalience(chunks)
	if err != nil {
		return graph.AtStage(graph.StageScore, err)
	}
	res.Salience = salience
	res.Durations.Score = m.stage(ctx, graph.StageScore, start)

	if err := ctx.Err(); err != nil {
		return graph.AtStage(graph.StageBuild, err)
	}
	start = time.Now()
	g, err := graph.Build(ctx, chunks, salience, graph.BuildOptions{Workers: opts.Workers})
	if err != nil {
		return graph.AtStage(graph.StageBuild, err)
	}
	res.Graph = g
	res.Durations.Build = m.stage(ctx, graph.StageBuild, start)

	if err := ctx.Err(); err != nil {
		return graph.AtStage(graph.StagePrune, err)
	}
	start = time.Now()
	pruned, stats, err := graph.Prune(g, opts.Percentile)
	if err != nil {
		return graph.AtStage(graph.StagePrune, err)
	}
	res.Pruned = pruned
	res.Prune = stats
	res.Durations.Prune = m.stage(ctx, graph.StagePrune, start)

	if err := ctx.Err(); err != nil {
		return graph.AtStage(graph.StageLabel, err)
	}
	start = time.Now()
	res.Components, res.Stats = graph.Label(pruned)
	res.Clusters = graph.Summarize(pruned, res.Components)
	res.Durations.Label = m.stage(ctx, graph.StageLabel, start)

	return nil
}

package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/graphtag/internal/config"
	"github.com/thebtf/graphtag/internal/graph"
	"github.com/thebtf/graphtag/internal/ingest"
)

// Event types sent to a Notifier.
const (
	EventRunStarted   = "run_started"
	EventRunCompleted = "run_completed"
	EventRunFailed    = "run_failed"
)

// Recorder persists a finished run.
type Recorder interface {
	SaveRun(ctx context.Context, res *Result) error
}

// Notifier receives run lifecycle events.
type Notifier interface {
	Broadcast(data interface{})
}

// Event is a run lifecycle notification.
type Event struct {
	Timestamp  time.Time `json:"timestamp"`
	Type       string    `json:"type"`
	RunID      string    `json:"run_id"`
	Input      string    `json:"input,omitempty"`
	Stage      string    `json:"stage,omitempty"`
	Error      string    `json:"error,omitempty"`
	Output     string    `json:"output,omitempty"`
	Threshold  float64   `json:"threshold,omitempty"`
	Nodes      int       `json:"nodes,omitempty"`
	Edges      int       `json:"edges,omitempty"`
	KeptEdges  int       `json:"kept_edges,omitempty"`
	Components int       `json:"components,omitempty"`
}

// EventType returns the event name used on the SSE stream.
func (e Event) EventType() string {
	return e.Type
}

// Runner loads a record directory, runs the pipeline and publishes the result.
// Runs are serialized; concurrent RunDir calls wait for each other.
type Runner struct {
	loader    *ingest.Loader
	recorder  Recorder
	notifier  Notifier
	metrics   *Metrics
	inputDir  string
	outputDir string
	mu        sync.Mutex
	opts      Options
}

// NewRunner creates a runner for the directories and thresholds in cfg.
func NewRunner(cfg *config.Config, loader *ingest.Loader) *Runner {
	if loader == nil {
		loader = ingest.NewLoader(cfg.Pattern, nil)
	}
	return &Runner{
		loader:    loader,
		inputDir:  cfg.InputDir,
		outputDir: cfg.OutputDir,
		opts: Options{
			Percentile: cfg.ThresholdPercentile,
			Workers:    cfg.Workers,
		},
	}
}

// SetRecorder sets the store that receives successful runs.
func (r *Runner) SetRecorder(rec Recorder) {
	r.recorder = rec
}

// SetNotifier sets the receiver of run events.
func (r *Runner) SetNotifier(n Notifier) {
	r.notifier = n
}

// SetMetrics overrides the instruments used for runs.
func (r *Runner) SetMetrics(m *Metrics) {
	r.metrics = m
}

// InputDir returns the watched record directory.
func (r *Runner) InputDir() string {
	return r.inputDir
}

// RunDir loads every record in the input directory, clusters the chunks and
// writes the component map to the output directory. Nothing is written when
// any stage fails. A failing Recorder is logged but does not fail the run.
func (r *Runner) RunDir(ctx context.Context) (*Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	opts := r.opts
	opts.RunID = uuid.NewString()
	opts.Metrics = r.metrics

	r.notify(Event{Type: EventRunStarted, RunID: opts.RunID, Input: r.inputDir})

	res, err := r.run(ctx, opts)
	if err != nil {
		ev := Event{Type: EventRunFailed, RunID: opts.RunID, Input: r.inputDir, Error: err.Error()}
		var se *graph.StageError
		if errors.As(err, &se) {
			ev.Stage = se.Stage
		}
		r.notify(ev)
		return nil, err
	}

	if r.recorder != nil {
		if err := r.recorder.SaveRun(ctx, res); err != nil {
			log.Error().Err(err).Str("run_id", res.RunID).Msg("Failed to record run")
		}
	}

	r.notify(Event{
		Type:       EventRunCompleted,
		RunID:      res.RunID,
		Input:      res.Input,
		Output:     res.OutputPath,
		Threshold:  res.Prune.Threshold,
		Nodes:      res.Graph.NumNodes(),
		Edges:      res.Graph.NumEdges(),
		KeptEdges:  res.Pruned.NumEdges(),
		Components: res.Stats.Count,
	})
	return res, nil
}

func (r *Runner) run(ctx context.Context, opts Options) (*Result, error) {
	chunks, err := r.loader.LoadDir(ctx, r.inputDir)
	if err != nil {
		return nil, graph.AtStage(graph.StageLoad, err)
	}

	res, err := Run(ctx, chunks, opts)
	if err != nil {
		return nil, err
	}
	res.Input = r.inputDir

	if err := ctx.Err(); err != nil {
		return nil, graph.AtStage(graph.StageWrite, err)
	}
	path, err := WriteComponentMap(r.outputDir, res.Components)
	if err != nil {
		return nil, graph.AtStage(graph.StageWrite, err)
	}
	res.OutputPath = path

	log.Info().Str("run_id", res.RunID).Str("path", path).Msg("Component map written")
	return res, nil
}

func (r *Runner) notify(ev Event) {
	if r.notifier == nil {
		return
	}
	ev.Timestamp = time.Now().UTC()
	r.notifier.Broadcast(ev)
}

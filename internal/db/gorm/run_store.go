package gorm

import (
	"context"
	"errors"
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/thebtf/graphtag/internal/pipeline"
	"github.com/thebtf/graphtag/pkg/models"
)

// ErrRunNotFound is returned when no run matches the query.
var ErrRunNotFound = errors.New("run not found")

// insertBatchSize bounds the rows per INSERT statement.
const insertBatchSize = 500

// RunStore provides run-related database operations using GORM.
type RunStore struct {
	db *gorm.DB
}

// NewRunStore creates a new run store.
func NewRunStore(store *Store) *RunStore {
	return &RunStore{db: store.DB}
}

// SaveRun stores the run, its assignments and its salience scores in one transaction.
func (s *RunStore) SaveRun(ctx context.Context, res *pipeline.Result) error {
	run := runFromResult(res)

	assignments := make([]ClusterAssignment, 0, len(res.Components))
	for _, chunkID := range res.Components.IDs() {
		a := ClusterAssignment{
			RunID:     res.RunID,
			ChunkID:   chunkID,
			ClusterID: res.Components[chunkID],
		}
		if node, ok := res.Graph.Node(chunkID); ok {
			a.Source = node.Source
			a.Topics = models.JSONStringArray(node.Topics)
			a.Tokens = node.Tokens
		}
		assignments = append(assignments, a)
	}

	salience := make([]TopicSalience, 0, len(res.Salience))
	for _, topic := range res.Salience.Topics() {
		salience = append(salience, TopicSalience{
			RunID: res.RunID,
			Topic: topic,
			Score: res.Salience[topic],
		})
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(run).Error; err != nil {
			return err
		}
		if len(assignments) > 0 {
			if err := tx.CreateInBatches(assignments, insertBatchSize).Error; err != nil {
				return err
			}
		}
		if len(salience) > 0 {
			if err := tx.CreateInBatches(salience, insertBatchSize).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func runFromResult(res *pipeline.Result) *Run {
	started := res.StartedAt
	if started.IsZero() {
		started = time.Now().UTC()
	}
	return &Run{
		ID:             res.RunID,
		InputDir:       res.Input,
		OutputPath:     res.OutputPath,
		StartedAt:      started.Format(time.RFC3339),
		StartedAtEpoch: started.UnixMilli(),
		DurationMs:     res.Durations.Total().Milliseconds(),
		Percentile:     res.Prune.Percentile,
		Threshold:      res.Prune.Threshold,
		MinWeight:      res.Prune.MinWeight,
		MaxWeight:      res.Prune.MaxWeight,
		MeanWeight:     res.Prune.MeanWeight,
		MedianWeight:   res.Prune.MedianWeight,
		Workers:        res.Workers,
		Nodes:          res.Graph.NumNodes(),
		Edges:          res.Graph.NumEdges(),
		KeptEdges:      res.Pruned.NumEdges(),
		Components:     res.Stats.Count,
		LargestCluster: res.Stats.MaxSize,
	}
}

// GetRun retrieves a run by ID.
func (s *RunStore) GetRun(ctx context.Context, id string) (*Run, error) {
	var run Run
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// LatestRun returns the most recently started run.
func (s *RunStore) LatestRun(ctx context.Context) (*Run, error) {
	var run Run
	err := s.db.WithContext(ctx).
		Order("started_at_epoch DESC").
		First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns returns up to limit runs, newest first.
func (s *RunStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	var runs []Run
	q := s.db.WithContext(ctx).Order("started_at_epoch DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

// Assignments returns the chunk assignments of a run ordered by chunk id.
func (s *RunStore) Assignments(ctx context.Context, runID string) ([]ClusterAssignment, error) {
	var rows []ClusterAssignment
	err := s.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("chunk_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ComponentMap rebuilds the chunk-to-cluster map of a run.
func (s *RunStore) ComponentMap(ctx context.Context, runID string) (models.ComponentMap, error) {
	rows, err := s.Assignments(ctx, runID)
	if err != nil {
		return nil, err
	}
	m := make(models.ComponentMap, len(rows))
	for _, r := range rows {
		m[r.ChunkID] = r.ClusterID
	}
	return m, nil
}

// Salience returns the topic scores of a run, highest first.
func (s *RunStore) Salience(ctx context.Context, runID string) ([]TopicSalience, error) {
	var rows []TopicSalience
	err := s.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	// sorted here so ties break on topic name on every driver
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Score != rows[j].Score {
			return rows[i].Score > rows[j].Score
		}
		return rows[i].Topic < rows[j].Topic
	})
	return rows, nil
}

// DeleteRun removes a run with its assignments and salience rows.
func (s *RunStore) DeleteRun(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("run_id = ?", id).Delete(&ClusterAssignment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("run_id = ?", id).Delete(&TopicSalience{}).Error; err != nil {
			return err
		}
		result := tx.Where("id = ?", id).Delete(&Run{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrRunNotFound
		}
		return nil
	})
}

package gorm

import (
	"time"

	"gorm.io/gorm"

	"github.com/thebtf/graphtag/pkg/models"
)

// Run is one successful pipeline run.
type Run struct {
	ID             string  `gorm:"primaryKey;type:varchar(36)" json:"id"`
	InputDir       string  `gorm:"type:text;not null" json:"input_dir"`
	OutputPath     string  `gorm:"type:text" json:"output_path"`
	StartedAt      string  `gorm:"not null" json:"started_at"`
	Percentile     float64 `gorm:"not null" json:"percentile"`
	Threshold      float64 `json:"threshold"`
	MinWeight      float64 `json:"min_weight"`
	MaxWeight      float64 `json:"max_weight"`
	MeanWeight     float64 `json:"mean_weight"`
	MedianWeight   float64 `json:"median_weight"`
	StartedAtEpoch int64   `gorm:"index:idx_runs_started,sort:desc;not null" json:"started_at_epoch"`
	DurationMs     int64   `json:"duration_ms"`
	Workers        int     `json:"workers"`
	Nodes          int     `json:"nodes"`
	Edges          int     `json:"edges"`
	KeptEdges      int     `json:"kept_edges"`
	Components     int     `json:"components"`
	LargestCluster int     `json:"largest_cluster"`
}

func (Run) TableName() string { return "runs" }

// BeforeCreate fills the start timestamps when the caller left them empty.
func (r *Run) BeforeCreate(tx *gorm.DB) error {
	if r.StartedAtEpoch == 0 {
		r.StartedAtEpoch = time.Now().UnixMilli()
	}
	if r.StartedAt == "" {
		r.StartedAt = time.UnixMilli(r.StartedAtEpoch).UTC().Format(time.RFC3339)
	}
	return nil
}

// ClusterAssignment maps one chunk of a run to its component.
type ClusterAssignment struct {
	ID        int64                  `gorm:"primaryKey;autoIncrement" json:"-"`
	RunID     string                 `gorm:"type:varchar(36);not null;uniqueIndex:idx_assignments_run_chunk,priority:1;index:idx_assignments_run_cluster,priority:1" json:"run_id"`
	Source    string                 `gorm:"type:text" json:"source"`
	Topics    models.JSONStringArray `gorm:"type:text" json:"topics"`
	ChunkID   int                    `gorm:"not null;uniqueIndex:idx_assignments_run_chunk,priority:2" json:"chunk_id"`
	ClusterID int                    `gorm:"not null;index:idx_assignments_run_cluster,priority:2" json:"cluster_id"`
	Tokens    int                    `json:"tokens"`
}

func (ClusterAssignment) TableName() string { return "cluster_assignments" }

// TopicSalience is the score of one topic in a run.
type TopicSalience struct {
	ID    int64   `gorm:"primaryKey;autoIncrement" json:"-"`
	RunID string  `gorm:"type:varchar(36);not null;uniqueIndex:idx_salience_run_topic,priority:1" json:"run_id"`
	Topic string  `gorm:"type:text;not null;uniqueIndex:idx_salience_run_topic,priority:2" json:"topic"`
	Score float64 `gorm:"not null" json:"score"`
}

func (TopicSalience) TableName() string { return "topic_salience" }

package graph

import (
	"errors"
	"fmt"

	"github.com/thebtf/graphtag/pkg/similarity"
)

var (
	// ErrEmptyInput is returned when there are no chunks to score or build from.
	ErrEmptyInput = similarity.ErrEmptyInput
	// ErrDegenerateGraph is returned when a graph with no edges is pruned.
	ErrDegenerateGraph = errors.New("degenerate graph: no edges to compute a percentile over")
	// ErrInvalidParameter is returned for a percentile outside [0, 100] after normalization.
	ErrInvalidParameter = errors.New("invalid parameter")
	// ErrUnknownTopic is returned when a shared topic has no salience score.
	ErrUnknownTopic = errors.New("topic missing from salience map")
)

// Pipeline stage names used in StageError.
const (
	StageLoad  = "load"
	StageScore = "score"
	StageBuild = "build"
	StagePrune = "prune"
	StageLabel = "label"
	StageWrite = "write"
)

// StageError identifies the pipeline stage that detected a failure.
type StageError struct {
	Err   error
	Stage string
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// AtStage wraps err with the stage name. A nil err stays nil.
func AtStage(stage string, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Err: err}
}

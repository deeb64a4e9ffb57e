package graph

import (
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog/log"
)

// PruneStats describes the weight distribution seen by Prune and what it removed.
type PruneStats struct {
	Percentile   float64 `json:"percentile"`
	Threshold    float64 `json:"threshold"`
	MinWeight    float64 `json:"min_weight"`
	MaxWeight    float64 `json:"max_weight"`
	MeanWeight   float64 `json:"mean_weight"`
	MedianWeight float64 `json:"median_weight"`
	EdgesBefore  int     `json:"edges_before"`
	EdgesRemoved int     `json:"edges_removed"`
	EdgesAfter   int     `json:"edges_after"`
}

// NormalizePercentile turns a threshold into a percentile in [0, 100].
// Values below 1 are read as fractions and scaled by 100, so 0.5 means the
// 50th percentile, never the 0.5th.
func NormalizePercentile(p float64) (float64, error) {
	if math.IsNaN(p) {
		return 0, fmt.Errorf("%w: percentile is NaN", ErrInvalidParameter)
	}
	if p < 1 {
		p *= 100
	}
	if p < 0 || p > 100 {
		return 0, fmt.Errorf("%w: percentile %v outside [0, 100]", ErrInvalidParameter, p)
	}
	return p, nil
}

// Percentile returns the p-th percentile (0..100) of values using linear
// interpolation between the closest ranks of the sorted data.
func Percentile(values []float64, p float64) (float64, error) {
	if len(values) == 0 {
		return 0, fmt.Errorf("%w: percentile of empty set", ErrInvalidParameter)
	}
	if math.IsNaN(p) || p < 0 || p > 100 {
		return 0, fmt.Errorf("%w: percentile %v outside [0, 100]", ErrInvalidParameter, p)
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	return percentileSorted(sorted, p), nil
}

func percentileSorted(sorted []float64, p float64) float64 {
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// Prune returns a copy of g without the edges whose weight is strictly below
// the p-th percentile of all edge weights. Edges at the threshold survive and
// no node is ever removed. p goes through NormalizePercentile first.
func Prune(g *Graph, p float64) (*Graph, PruneStats, error) {
	pct, err := NormalizePercentile(p)
	if err != nil {
		return nil, PruneStats{}, err
	}
	if g.NumEdges() == 0 {
		return nil, PruneStats{}, ErrDegenerateGraph
	}

	weights := g.Weights()
	sorted := make([]float64, len(weights))
	copy(sorted, weights)
	sort.Float64s(sorted)

	var sum float64
	for _, w := range sorted {
		sum += w
	}

	threshold := percentileSorted(sorted, pct)
	pruned := g.Subgraph(func(e *Edge) bool {
		return e.Weight >= threshold
	})

	stats := PruneStats{
		Percentile:   pct,
		Threshold:    threshold,
		MinWeight:    sorted[0],
		MaxWeight:    sorted[len(sorted)-1],
		MeanWeight:   sum / float64(len(sorted)),
		MedianWeight: percentileSorted(sorted, 50),
		EdgesBefore:  g.NumEdges(),
		EdgesAfter:   pruned.NumEdges(),
	}
	stats.EdgesRemoved = stats.EdgesBefore - stats.EdgesAfter

	log.Debug().
		Float64("percentile", stats.Percentile).
		Float64("threshold", stats.Threshold).
		Float64("min", stats.MinWeight).
		Float64("max", stats.MaxWeight).
		Float64("mean", stats.MeanWeight).
		Float64("median", stats.MedianWeight).
		Int("removed", stats.EdgesRemoved).
		Int("remaining", stats.EdgesAfter).
		Msg("Graph pruned")

	return pruned, stats, nil
}

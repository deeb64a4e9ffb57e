// Package similarity provides topic salience scoring and pairwise edge weighting.
package similarity

import (
	"errors"
	"math"
	"sort"

	"github.com/thebtf/graphtag/pkg/models"
)

// ErrEmptyInput is returned when no chunks are provided.
var ErrEmptyInput = errors.New("empty input: no chunks provided")

// SalienceMap maps a topic label to its corpus-wide salience score.
type SalienceMap map[string]float64

// Score returns the salience of topic and whether it is known.
func (s SalienceMap) Score(topic string) (float64, bool) {
	v, ok := s[topic]
	return v, ok
}

// Topics returns the topic labels sorted by descending score, ties broken by label.
func (s SalienceMap) Topics() []string {
	topics := make([]string, 0, len(s))
	for t := range s {
		topics = append(topics, t)
	}
	sort.Slice(topics, func(i, j int) bool {
		if s[topics[i]] != s[topics[j]] {
			return s[topics[i]] > s[topics[j]]
		}
		return topics[i] < topics[j]
	})
	return topics
}

// RankCounts holds, per topic, how many times it appeared at each 1-based rank.
type RankCounts map[string]map[int]int

// CountRanks tallies topic occurrences by 1-based rank across all chunks.
// A label repeated inside one chunk is counted at every position it occupies.
func CountRanks(chunks []models.Chunk) RankCounts {
	counts := make(RankCounts)
	for i := range chunks {
		for pos, topic := range chunks[i].Topics {
			byRank, ok := counts[topic]
			if !ok {
				byRank = make(map[int]int)
				counts[topic] = byRank
			}
			byRank[pos+1]++
		}
	}
	return counts
}

// Mass returns the rank-weighted occurrence sum of each topic: sum(rank * count).
func (c RankCounts) Mass() map[string]float64 {
	mass := make(map[string]float64, len(c))
	for topic, byRank := range c {
		var sum float64
		for rank, n := range byRank {
			sum += float64(rank * n)
		}
		mass[topic] = sum
	}
	return mass
}

// ComputeSalience scores every topic as ln(total / mass), where mass is the
// rank-weighted occurrence sum of the topic and total is the sum over all topics.
// Topics that carry most of the corpus mass score near zero.
// Chunks without topics are ignored; if no chunk has topics the map is empty.
func ComputeSalience(chunks []models.Chunk) (SalienceMap, error) {
	if len(chunks) == 0 {
		return nil, ErrEmptyInput
	}

	mass := CountRanks(chunks).Mass()

	var total float64
	for _, m := range mass {
		total += m
	}

	scores := make(SalienceMap, len(mass))
	for topic, m := range mass {
		// m >= 1 for every counted topic
		scores[topic] = math.Log(total / m)
	}
	return scores, nil
}

// EdgeContribution is the weight a single shared topic adds to an edge.
// Ranks are zero-based positions of the topic in each chunk.
func EdgeContribution(rankA, rankB int, salience float64) float64 {
	return 1.0/float64(rankA+1) + 1.0/float64(rankB+1) + salience
}

// RankIndex maps each topic to the position of its first occurrence.
func RankIndex(topics []string) map[string]int {
	idx := make(map[string]int, len(topics))
	for i, t := range topics {
		if _, seen := idx[t]; !seen {
			idx[t] = i
		}
	}
	return idx
}

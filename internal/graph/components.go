package graph

import (
	"sort"

	"github.com/thebtf/graphtag/pkg/models"
)

// ComponentStats summarizes the component size distribution.
type ComponentStats struct {
	Sizes    []int   `json:"sizes"`
	Count    int     `json:"count"`
	MinSize  int     `json:"min_size"`
	MaxSize  int     `json:"max_size"`
	MeanSize float64 `json:"mean_size"`
}

// Label partitions g into connected components. Nodes are visited in
// ascending id order and each new component takes the next id on first
// discovery, so the result is deterministic for a given graph. Isolated
// nodes form singleton components.
func Label(g *Graph) (models.ComponentMap, ComponentStats) {
	n := g.NumNodes()
	labels := make(models.ComponentMap, n)
	var sizes []int

	queue := make([]int, 0, n)
	for start := 0; start < n; start++ {
		if _, seen := labels[start]; seen {
			continue
		}
		comp := len(sizes)
		labels[start] = comp
		size := 0

		queue = append(queue[:0], start)
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			size++
			for _, next := range g.Neighbors(cur) {
				if _, seen := labels[next]; seen {
					continue
				}
				labels[next] = comp
				queue = append(queue, next)
			}
		}
		sizes = append(sizes, size)
	}

	return labels, statsFromSizes(sizes)
}

func statsFromSizes(sizes []int) ComponentStats {
	stats := ComponentStats{Sizes: sizes, Count: len(sizes)}
	if len(sizes) == 0 {
		return stats
	}
	stats.MinSize, stats.MaxSize = sizes[0], sizes[0]
	total := 0
	for _, s := range sizes {
		if s < stats.MinSize {
			stats.MinSize = s
		}
		if s > stats.MaxSize {
			stats.MaxSize = s
		}
		total += s
	}
	stats.MeanSize = float64(total) / float64(len(sizes))
	return stats
}

// SameComponent reports whether a and b carry the same cluster id in m.
func SameComponent(m models.ComponentMap, a, b int) bool {
	ca, okA := m[a]
	cb, okB := m[b]
	return okA && okB && ca == cb
}

// TopicCount is a topic label with its frequency inside a cluster.
type TopicCount struct {
	Topic string `json:"topic"`
	Count int    `json:"count"`
}

// ClusterSummary describes one component for summarization grouping.
type ClusterSummary struct {
	Members   []int        `json:"members"`
	Sources   []string     `json:"sources"`
	TopTopics []TopicCount `json:"top_topics"`
	ID        int          `json:"id"`
	Size      int          `json:"size"`
	Tokens    int          `json:"tokens"`
}

const maxTopTopics = 5

// Summarize builds one summary per cluster in m, ordered by cluster id.
func Summarize(g *Graph, m models.ComponentMap) []ClusterSummary {
	members := m.Members()
	ids := make([]int, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	out := make([]ClusterSummary, 0, len(ids))
	for _, cid := range ids {
		s := ClusterSummary{ID: cid, Members: members[cid], Size: len(members[cid])}

		sources := make(map[string]struct{})
		topics := make(map[string]int)
		for _, nid := range s.Members {
			node, ok := g.Node(nid)
			if !ok {
				continue
			}
			s.Tokens += node.Tokens
			if node.Source != "" {
				sources[node.Source] = struct{}{}
			}
			for t := range uniqueTopics(node.Topics) {
				topics[t]++
			}
		}

		s.Sources = make([]string, 0, len(sources))
		for src := range sources {
			s.Sources = append(s.Sources, src)
		}
		sort.Strings(s.Sources)
		s.TopTopics = topTopics(topics, maxTopTopics)

		out = append(out, s)
	}
	return out
}

func uniqueTopics(topics []string) map[string]struct{} {
	set := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		set[t] = struct{}{}
	}
	return set
}

func topTopics(counts map[string]int, limit int) []TopicCount {
	out := make([]TopicCount, 0, len(counts))
	for t, c := range counts {
		out = append(out, TopicCount{Topic: t, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Topic < out[j].Topic
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

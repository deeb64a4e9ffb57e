package graph

import (
	"context"
	"fmt"
	"runtime"
	"sort"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/thebtf/graphtag/pkg/models"
	"github.com/thebtf/graphtag/pkg/similarity"
)

// BuildOptions controls graph construction.
type BuildOptions struct {
	// Workers is the number of goroutines comparing chunk pairs.
	// 0 or less means runtime.GOMAXPROCS(0).
	Workers int
}

// Build compares every unordered pair of chunks and links the pairs that share
// at least one topic. Each shared topic contributes
// 1/(rankA+1) + 1/(rankB+1) + salience[topic] to the edge weight.
//
// Rows of the pair matrix are striped across workers; each worker only reads
// the chunk list, the rank indexes and the salience map and returns its own
// edge slice.
func Build(ctx context.Context, chunks []models.Chunk, salience similarity.SalienceMap, opts BuildOptions) (*Graph, error) {
	if len(chunks) == 0 {
		return nil, ErrEmptyInput
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g, err := New(chunks)
	if err != nil {
		return nil, err
	}

	ranks := make([]map[string]int, len(chunks))
	for i := range chunks {
		ranks[i] = similarity.RankIndex(chunks[i].Topics)
	}

	workers := ResolveWorkers(opts.Workers, len(chunks))

	results := make([][]Edge, workers)
	eg, egCtx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		w := w // per-iteration copy (go 1.21 loop semantics)
		eg.Go(func() error {
			var local []Edge
			for i := w; i < len(chunks); i += workers {
				if err := egCtx.Err(); err != nil {
					return err
				}
				for j := i + 1; j < len(chunks); j++ {
					e, ok, err := pairEdge(chunks, ranks, salience, i, j)
					if err != nil {
						return err
					}
					if ok {
						local = append(local, e)
					}
				}
			}
			results[w] = local
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	var edges []Edge
	for _, r := range results {
		edges = append(edges, r...)
	}
	sort.Slice(edges, func(a, b int) bool {
		if edges[a].U != edges[b].U {
			return edges[a].U < edges[b].U
		}
		return edges[a].V < edges[b].V
	})
	for _, e := range edges {
		if err := g.AddEdge(e); err != nil {
			return nil, fmt.Errorf("add edge: %w", err)
		}
	}

	log.Debug().
		Int("nodes", g.NumNodes()).
		Int("edges", g.NumEdges()).
		Int("workers", workers).
		Msg("Graph built")

	return g, nil
}

// ResolveWorkers returns the number of goroutines Build uses for n chunks
// when asked for requested: GOMAXPROCS when requested is 0 or less, never more than n.
func ResolveWorkers(requested, n int) int {
	workers := requested
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > n {
		workers = n
	}
	return workers
}

// pairEdge computes the edge between chunks i and j (i < j).
// Shared topics are visited in chunk i's order, skipping repeated labels.
func pairEdge(chunks []models.Chunk, ranks []map[string]int, salience similarity.SalienceMap, i, j int) (Edge, bool, error) {
	ri, rj := ranks[i], ranks[j]
	if len(ri) == 0 || len(rj) == 0 {
		return Edge{}, false, nil
	}

	var (
		contribs []Contribution
		total    float64
	)
	for pos, topic := range chunks[i].Topics {
		if ri[topic] != pos {
			continue // repeated label, already handled at its first position
		}
		rankJ, shared := rj[topic]
		if !shared {
			continue
		}
		score, ok := salience.Score(topic)
		if !ok {
			return Edge{}, false, fmt.Errorf("%w: %q", ErrUnknownTopic, topic)
		}
		c := similarity.EdgeContribution(pos, rankJ, score)
		contribs = append(contribs, Contribution{
			Topic:        topic,
			RankA:        pos,
			RankB:        rankJ,
			Contribution: c,
		})
		total += c
	}
	if len(contribs) == 0 {
		return Edge{}, false, nil
	}
	return Edge{
		U:             i,
		V:             j,
		Weight:        total,
		Contributions: contribs,
	}, true, nil
}

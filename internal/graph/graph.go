// Package graph builds, prunes and partitions the topic similarity graph.
//
// Nodes live in a dense slice indexed by chunk id. Edges are stored once per
// unordered pair, keyed by (U, V) with U < V, with adjacency sets for traversal.
// The node set is fixed at construction; only edges are added or filtered out.
package graph

import (
	"fmt"
	"sort"

	"github.com/thebtf/graphtag/pkg/models"
)

// Node carries the chunk attributes for downstream consumers.
// None of the graph algorithms read them.
type Node struct {
	Text   string   `json:"text"`
	Source string   `json:"source"`
	Topics []string `json:"topics"`
	ID     int      `json:"id"`
	Tokens int      `json:"tokens,omitempty"`
}

// Contribution records how much one shared topic added to an edge.
// RankA is the topic's position in node U, RankB its position in node V.
type Contribution struct {
	Topic        string  `json:"topic"`
	RankA        int     `json:"rank_a"`
	RankB        int     `json:"rank_b"`
	Contribution float64 `json:"contribution"`
}

// Edge is an undirected weighted edge with per-topic provenance.
type Edge struct {
	Contributions []Contribution `json:"contributions"`
	Weight        float64        `json:"weight"`
	U             int            `json:"u"`
	V             int            `json:"v"`
}

// EdgeKey identifies an unordered node pair. U is always the smaller id.
type EdgeKey struct {
	U, V int
}

// Key returns the normalized key for the pair (a, b).
func Key(a, b int) EdgeKey {
	if a > b {
		a, b = b, a
	}
	return EdgeKey{U: a, V: b}
}

// Graph is a simple undirected weighted graph over a fixed node set.
type Graph struct {
	nodes []Node
	edges map[EdgeKey]*Edge
	adj   []map[int]struct{}
}

// New creates a graph with one node per chunk and no edges.
// Chunk ids must be the dense range 0..len(chunks)-1.
func New(chunks []models.Chunk) (*Graph, error) {
	g := &Graph{
		nodes: make([]Node, len(chunks)),
		edges: make(map[EdgeKey]*Edge),
		adj:   make([]map[int]struct{}, len(chunks)),
	}
	for i := range chunks {
		c := &chunks[i]
		if c.ID != i {
			return nil, fmt.Errorf("chunk at position %d has id %d: ids must be dense and ordered", i, c.ID)
		}
		g.nodes[i] = Node{
			ID:     c.ID,
			Text:   c.Text,
			Source: c.Source,
			Topics: c.Topics,
			Tokens: c.Tokens,
		}
		g.adj[i] = make(map[int]struct{})
	}
	return g, nil
}

// emptyLike returns a graph with the same nodes and no edges.
func (g *Graph) emptyLike() *Graph {
	out := &Graph{
		nodes: g.nodes,
		edges: make(map[EdgeKey]*Edge),
		adj:   make([]map[int]struct{}, len(g.nodes)),
	}
	for i := range out.adj {
		out.adj[i] = make(map[int]struct{})
	}
	return out
}

// AddEdge inserts e, rejecting self-loops, unknown nodes, duplicates and
// non-positive weights.
func (g *Graph) AddEdge(e Edge) error {
	if e.U == e.V {
		return fmt.Errorf("self-loop on node %d", e.U)
	}
	if !g.valid(e.U) || !g.valid(e.V) {
		return fmt.Errorf("edge (%d, %d) references unknown node", e.U, e.V)
	}
	if !(e.Weight > 0) {
		return fmt.Errorf("edge (%d, %d) has non-positive weight %v", e.U, e.V, e.Weight)
	}
	k := Key(e.U, e.V)
	if _, exists := g.edges[k]; exists {
		return fmt.Errorf("duplicate edge (%d, %d)", k.U, k.V)
	}
	e.U, e.V = k.U, k.V
	g.edges[k] = &e
	g.adj[k.U][k.V] = struct{}{}
	g.adj[k.V][k.U] = struct{}{}
	return nil
}

func (g *Graph) valid(id int) bool {
	return id >= 0 && id < len(g.nodes)
}

// Edge returns the edge between a and b, or nil.
func (g *Graph) Edge(a, b int) *Edge {
	return g.edges[Key(a, b)]
}

// HasEdge reports whether a and b are adjacent.
func (g *Graph) HasEdge(a, b int) bool {
	_, ok := g.edges[Key(a, b)]
	return ok
}

// NumNodes returns the node count.
func (g *Graph) NumNodes() int {
	return len(g.nodes)
}

// NumEdges returns the edge count.
func (g *Graph) NumEdges() int {
	return len(g.edges)
}

// Node returns the node with the given id.
func (g *Graph) Node(id int) (Node, bool) {
	if !g.valid(id) {
		return Node{}, false
	}
	return g.nodes[id], true
}

// Nodes returns all nodes in id order. The slice must not be modified.
func (g *Graph) Nodes() []Node {
	return g.nodes
}

// Edges returns all edges ordered by (U, V).
func (g *Graph) Edges() []*Edge {
	out := make([]*Edge, 0, len(g.edges))
	for _, e := range g.edges {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].U != out[j].U {
			return out[i].U < out[j].U
		}
		return out[i].V < out[j].V
	})
	return out
}

// Weights returns every edge weight, in (U, V) order.
func (g *Graph) Weights() []float64 {
	edges := g.Edges()
	w := make([]float64, len(edges))
	for i, e := range edges {
		w[i] = e.Weight
	}
	return w
}

// Neighbors returns the ids adjacent to id in ascending order.
func (g *Graph) Neighbors(id int) []int {
	if !g.valid(id) {
		return nil
	}
	out := make([]int, 0, len(g.adj[id]))
	for n := range g.adj[id] {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

// Degree returns the number of edges incident to id.
func (g *Graph) Degree(id int) int {
	if !g.valid(id) {
		return 0
	}
	return len(g.adj[id])
}

// Subgraph returns a new graph with the same nodes and only the edges for
// which keep returns true. Edge values are shared with g and must be treated
// as read-only.
func (g *Graph) Subgraph(keep func(*Edge) bool) *Graph {
	out := g.emptyLike()
	for k, e := range g.edges {
		if !keep(e) {
			continue
		}
		out.edges[k] = e
		out.adj[k.U][k.V] = struct{}{}
		out.adj[k.V][k.U] = struct{}{}
	}
	return out
}

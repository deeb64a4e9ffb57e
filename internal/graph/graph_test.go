package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/graphtag/pkg/models"
)

func chunksOf(topicLists ...[]string) []models.Chunk {
	chunks := make([]models.Chunk, len(topicLists))
	for i, topics := range topicLists {
		chunks[i] = models.Chunk{ID: i, Topics: topics, Source: "doc.txt"}
	}
	return chunks
}

func emptyGraph(t *testing.T, n int) *Graph {
	t.Helper()
	g, err := New(chunksOf(make([][]string, n)...))
	require.NoError(t, err)
	return g
}

func TestNew(t *testing.T) {
	chunks := []models.Chunk{
		{ID: 0, Text: "alpha", Source: "a.md", Topics: []string{"A"}, Tokens: 3},
		{ID: 1, Text: "beta", Source: "b.md"},
	}

	g, err := New(chunks)
	require.NoError(t, err)
	assert.Equal(t, 2, g.NumNodes())
	assert.Equal(t, 0, g.NumEdges())

	n, ok := g.Node(0)
	require.True(t, ok)
	assert.Equal(t, "alpha", n.Text)
	assert.Equal(t, "a.md", n.Source)
	assert.Equal(t, []string{"A"}, n.Topics)
	assert.Equal(t, 3, n.Tokens)

	_, ok = g.Node(5)
	assert.False(t, ok)
}

func TestNew_RejectsSparseIDs(t *testing.T) {
	_, err := New([]models.Chunk{{ID: 0}, {ID: 2}})
	assert.Error(t, err)
}

func TestAddEdge(t *testing.T) {
	tests := []struct {
		name    string
		edge    Edge
		wantErr bool
	}{
		{name: "valid", edge: Edge{U: 0, V: 1, Weight: 1}},
		{name: "reversed endpoints", edge: Edge{U: 2, V: 0, Weight: 1}},
		{name: "self-loop", edge: Edge{U: 1, V: 1, Weight: 1}, wantErr: true},
		{name: "unknown node", edge: Edge{U: 0, V: 9, Weight: 1}, wantErr: true},
		{name: "negative node", edge: Edge{U: -1, V: 0, Weight: 1}, wantErr: true},
		{name: "zero weight", edge: Edge{U: 0, V: 1, Weight: 0}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := emptyGraph(t, 3)
			err := g.AddEdge(tt.edge)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Equal(t, 0, g.NumEdges())
				return
			}
			require.NoError(t, err)
			assert.True(t, g.HasEdge(tt.edge.U, tt.edge.V))
			assert.True(t, g.HasEdge(tt.edge.V, tt.edge.U))
		})
	}
}

func TestAddEdge_RejectsDuplicate(t *testing.T) {
	g := emptyGraph(t, 2)
	require.NoError(t, g.AddEdge(Edge{U: 0, V: 1, Weight: 1}))
	assert.Error(t, g.AddEdge(Edge{U: 1, V: 0, Weight: 2}))
	assert.Equal(t, 1, g.NumEdges())
	assert.Equal(t, 1.0, g.Edge(1, 0).Weight)
}

func TestEdgesAndNeighborsOrdered(t *testing.T) {
	g := emptyGraph(t, 4)
	require.NoError(t, g.AddEdge(Edge{U: 3, V: 1, Weight: 1}))
	require.NoError(t, g.AddEdge(Edge{U: 0, V: 3, Weight: 2}))
	require.NoError(t, g.AddEdge(Edge{U: 0, V: 1, Weight: 3}))

	edges := g.Edges()
	require.Len(t, edges, 3)
	assert.Equal(t, EdgeKey{0, 1}, Key(edges[0].U, edges[0].V))
	assert.Equal(t, EdgeKey{0, 3}, Key(edges[1].U, edges[1].V))
	assert.Equal(t, EdgeKey{1, 3}, Key(edges[2].U, edges[2].V))
	assert.Equal(t, []float64{3, 2, 1}, g.Weights())

	assert.Equal(t, []int{1, 3}, g.Neighbors(0))
	assert.Equal(t, []int{0, 1}, g.Neighbors(3))
	assert.Empty(t, g.Neighbors(2))
	assert.Nil(t, g.Neighbors(42))
	assert.Equal(t, 2, g.Degree(1))
}

func TestSubgraph(t *testing.T) {
	g := emptyGraph(t, 3)
	require.NoError(t, g.AddEdge(Edge{U: 0, V: 1, Weight: 1}))
	require.NoError(t, g.AddEdge(Edge{U: 1, V: 2, Weight: 5}))

	sub := g.Subgraph(func(e *Edge) bool { return e.Weight > 2 })
	assert.Equal(t, 3, sub.NumNodes())
	assert.Equal(t, 1, sub.NumEdges())
	assert.True(t, sub.HasEdge(1, 2))
	assert.False(t, sub.HasEdge(0, 1))
	assert.Empty(t, sub.Neighbors(0))

	// original untouched
	assert.Equal(t, 2, g.NumEdges())
	assert.Equal(t, []int{1}, g.Neighbors(0))
}

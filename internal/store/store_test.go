package store_test

import (
	"testing"

	"github.com/dominikbraun/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/forgiving-data/internal/store"
)

func newGraph(t *testing.T, vertices ...string) (graph.Graph[string, string], store.DependencyStore[string, string]) {
	t.Helper()

	st := store.NewMemoryStore[string, string]()
	g := graph.NewWithStore(graph.StringHash, st, graph.Directed(), graph.PreventCycles())

	for _, v := range vertices {
		require.NoError(t, g.AddVertex(v))
	}

	return g, st
}

func TestDegrees(t *testing.T) {
	t.Parallel()

	g, st := newGraph(t, "load", "clean", "join", "other")
	require.NoError(t, g.AddEdge("load", "clean"))
	require.NoError(t, g.AddEdge("clean", "join"))
	require.NoError(t, g.AddEdge("other", "join"))

	assert.Equal(t, 1, st.OutDegree("load"))
	assert.Equal(t, 0, st.OutDegree("join"))
	assert.Equal(t, []string{"join"}, st.Sinks())
	assert.Equal(t, []string{"clean", "other"}, st.Dependencies("join"))
	assert.Empty(t, st.Dependencies("load"))

	edges, err := st.ListEdges()
	require.NoError(t, err)
	assert.Len(t, edges, 3)
}

func TestPreventCycles(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		edges [][2]string
		add   [2]string
		cycle bool
	}{
		"self loop": {
			add:   [2]string{"a", "a"},
			cycle: true,
		},
		"two vertices": {
			edges: [][2]string{{"a", "b"}},
			add:   [2]string{"b", "a"},
			cycle: true,
		},
		"long cycle": {
			edges: [][2]string{{"a", "b"}, {"b", "c"}},
			add:   [2]string{"c", "a"},
			cycle: true,
		},
		"diamond": {
			edges: [][2]string{{"a", "b"}, {"a", "c"}, {"b", "d"}},
			add:   [2]string{"c", "d"},
		},
	}

	for name, tc := range tcs {
		tc := tc

		t.Run(name, func(t *testing.T) {
			t.Parallel()

			g, _ := newGraph(t, "a", "b", "c", "d")
			for _, e := range tc.edges {
				require.NoError(t, g.AddEdge(e[0], e[1]))
			}

			err := g.AddEdge(tc.add[0], tc.add[1])
			if tc.cycle {
				assert.ErrorIs(t, err, graph.ErrEdgeCreatesCycle)

				return
			}

			assert.NoError(t, err)
		})
	}
}

func TestRemoveVertex(t *testing.T) {
	t.Parallel()

	g, st := newGraph(t, "a", "b")
	require.NoError(t, g.AddEdge("a", "b"))

	assert.ErrorIs(t, st.RemoveVertex("a"), graph.ErrVertexHasEdges)
	require.NoError(t, st.RemoveEdge("a", "b"))
	require.NoError(t, st.RemoveVertex("a"))

	vertices, err := st.ListVertices()
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, vertices)
	assert.ErrorIs(t, st.RemoveVertex("a"), graph.ErrVertexNotFound)
}

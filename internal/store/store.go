// Package store provides the in-memory graph store backing the dependency graph of a pipeline run.
package store

import (
	"fmt"
	"sync"

	"github.com/dominikbraun/graph"
)

// DependencyStore is a graph.Store which also answers degree queries. Edges point from a dependency to its
// dependent, so a vertex without out-edges is consumed by nothing.
type DependencyStore[K comparable, T any] interface {
	graph.Store[K, T]
	// OutDegree returns the number of dependents of k.
	OutDegree(k K) int
	// Dependencies returns the vertices k depends on.
	Dependencies(k K) []K
	// Sinks returns the vertices which have no dependent.
	Sinks() []K
}

// MemoryStore keeps vertices and edges in maps. Edges are indexed both ways for O(1) degree lookups.
type MemoryStore[K comparable, T any] struct {
	lock             sync.RWMutex
	vertices         map[K]T
	vertexProperties map[K]*graph.VertexProperties
	order            []K

	outEdges map[K]map[K]graph.Edge[K] // dependency -> dependent
	inEdges  map[K]map[K]graph.Edge[K] // dependent -> dependency
}

// NewMemoryStore creates an empty store.
func NewMemoryStore[K comparable, T any]() DependencyStore[K, T] {
	return &MemoryStore[K, T]{
		vertices:         make(map[K]T),
		vertexProperties: make(map[K]*graph.VertexProperties),
		outEdges:         make(map[K]map[K]graph.Edge[K]),
		inEdges:          make(map[K]map[K]graph.Edge[K]),
	}
}

func (s *MemoryStore[K, T]) AddVertex(k K, t T, p graph.VertexProperties) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, ok := s.vertices[k]; ok {
		return graph.ErrVertexAlreadyExists
	}

	s.vertices[k] = t
	s.vertexProperties[k] = &p
	s.order = append(s.order, k)

	return nil
}

// ListVertices returns the vertices in insertion order.
func (s *MemoryStore[K, T]) ListVertices() ([]K, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	hashes := make([]K, len(s.order))
	copy(hashes, s.order)

	return hashes, nil
}

func (s *MemoryStore[K, T]) VertexCount() (int, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	return len(s.vertices), nil
}

func (s *MemoryStore[K, T]) Vertex(k K) (T, graph.VertexProperties, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	v, ok := s.vertices[k]
	if !ok {
		return v, graph.VertexProperties{}, graph.ErrVertexNotFound
	}

	return v, *s.vertexProperties[k], nil
}

func (s *MemoryStore[K, T]) RemoveVertex(k K) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, ok := s.vertices[k]; !ok {
		return graph.ErrVertexNotFound
	}

	if len(s.inEdges[k]) > 0 || len(s.outEdges[k]) > 0 {
		return graph.ErrVertexHasEdges
	}

	delete(s.inEdges, k)
	delete(s.outEdges, k)
	delete(s.vertices, k)
	delete(s.vertexProperties, k)

	for i, o := range s.order {
		if o == k {
			s.order = append(s.order[:i], s.order[i+1:]...)

			break
		}
	}

	return nil
}

func (s *MemoryStore[K, T]) AddEdge(sourceHash, targetHash K, edge graph.Edge[K]) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, ok := s.outEdges[sourceHash]; !ok {
		s.outEdges[sourceHash] = make(map[K]graph.Edge[K])
	}

	s.outEdges[sourceHash][targetHash] = edge

	if _, ok := s.inEdges[targetHash]; !ok {
		s.inEdges[targetHash] = make(map[K]graph.Edge[K])
	}

	s.inEdges[targetHash][sourceHash] = edge

	return nil
}

func (s *MemoryStore[K, T]) UpdateEdge(sourceHash, targetHash K, edge graph.Edge[K]) error {
	if _, err := s.Edge(sourceHash, targetHash); err != nil {
		return err
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	s.outEdges[sourceHash][targetHash] = edge
	s.inEdges[targetHash][sourceHash] = edge

	return nil
}

func (s *MemoryStore[K, T]) RemoveEdge(sourceHash, targetHash K) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	delete(s.inEdges[targetHash], sourceHash)
	delete(s.outEdges[sourceHash], targetHash)

	return nil
}

func (s *MemoryStore[K, T]) Edge(sourceHash, targetHash K) (graph.Edge[K], error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	edge, ok := s.outEdges[sourceHash][targetHash]
	if !ok {
		return graph.Edge[K]{}, graph.ErrEdgeNotFound
	}

	return edge, nil
}

func (s *MemoryStore[K, T]) ListEdges() ([]graph.Edge[K], error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	res := make([]graph.Edge[K], 0)
	for _, k := range s.order {
		for _, edge := range s.outEdges[k] {
			res = append(res, edge)
		}
	}

	return res, nil
}

func (s *MemoryStore[K, T]) OutDegree(k K) int {
	s.lock.RLock()
	defer s.lock.RUnlock()

	return len(s.outEdges[k])
}

// Dependencies returns the vertices k depends on, in insertion order.
func (s *MemoryStore[K, T]) Dependencies(k K) []K {
	s.lock.RLock()
	defer s.lock.RUnlock()

	deps := make([]K, 0, len(s.inEdges[k]))
	for _, o := range s.order {
		if _, ok := s.inEdges[k][o]; ok {
			deps = append(deps, o)
		}
	}

	return deps
}

// Sinks returns the vertices without dependents, in insertion order.
func (s *MemoryStore[K, T]) Sinks() []K {
	s.lock.RLock()
	defer s.lock.RUnlock()

	sinks := []K{}
	for _, k := range s.order {
		if len(s.outEdges[k]) == 0 {
			sinks = append(sinks, k)
		}
	}

	return sinks
}

// CreatesCycle is a fastpath version of [graph.CreatesCycle] that walks inEdges instead of building a predecessor
// map.
func (s *MemoryStore[K, T]) CreatesCycle(source, target K) (bool, error) {
	if _, _, err := s.Vertex(source); err != nil {
		return false, fmt.Errorf("could not get vertex with hash %v: %w", source, err)
	}

	if _, _, err := s.Vertex(target); err != nil {
		return false, fmt.Errorf("could not get vertex with hash %v: %w", target, err)
	}

	if source == target {
		return true, nil
	}

	s.lock.RLock()
	defer s.lock.RUnlock()

	stack := []K{source}
	visited := make(map[K]struct{})

	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if _, ok := visited[current]; ok {
			continue
		}

		// Reaching target from source through dependencies means target already depends on source.
		if current == target {
			return true, nil
		}

		visited[current] = struct{}{}

		for adjacency := range s.inEdges[current] {
			stack = append(stack, adjacency)
		}
	}

	return false, nil
}

var _ DependencyStore[string, string] = (*MemoryStore[string, string])(nil)

// Package mat implements a layered overlay store.
//
// A Mat merges an ordered stack of tree shaped layers into a single logical value. Later layers have higher
// priority: the highest layer defining a scalar at a path wins, while containers take the union of the keys found in
// every layer at that path, each key being merged independently. Every scalar of the merged value remembers which
// layer produced it, so the Mat can recover a provenance tree isomorphic to the merged value.
//
// Trees are built from map[string]any, []any and scalars. A nil value is treated as absent.
//
// Merged values are evaluated lazily, one path at a time, and cached in an arena of nodes. Values dispensed by the
// Mat are shared snapshots and must not be mutated by callers. Writes go through Set, which only touches the backing
// storage of the writable layer and forks the cached ancestors of the written path, so that values dispensed before
// the write are left untouched.
//
// A Mat is not safe for concurrent use.
package mat

import (
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrEmptyMat is returned when no layer defines the root of the mat.
	ErrEmptyMat = errors.New("no layer defines the mat root")
	// ErrNoWritableLayer is returned by a write when no writable layer has been configured.
	ErrNoWritableLayer = errors.New("no writable layer configured")
	// ErrLayerNotFound is returned when a layer name does not match any layer of the mat.
	ErrLayerNotFound = errors.New("layer not found")
)

// Layer is one contributor to the merged value of a Mat.
type Layer struct {
	// Value is the tree held by the layer.
	Value any
	// Name identifies the layer. It is the provenance of every leaf unless Provenance says otherwise.
	Name string
	// Provenance is an optional tree isomorphic to Value holding a provenance key for each scalar leaf.
	Provenance any
}

type kind uint8

const (
	kindScalar kind = iota
	kindMap
	kindSlice
)

func kindOf(v any) kind {
	switch v.(type) {
	case map[string]any:
		return kindMap
	case []any:
		return kindSlice
	default:
		return kindScalar
	}
}

// node is the cached merge result ("mat top") for a single path.
type node struct {
	path       Path
	kind       kind
	layer      int
	provenance string
	// value holds the scalar, or the materialised container once complete is set.
	value any
	// keys is the merged member set of a container.
	keys []string
	// children maps a member to its node index, -1 when the member is undefined.
	children map[string]int
	complete bool
}

// Mat is a layered overlay store.
type Mat struct {
	layers   []Layer
	nodes    []node
	root     int
	writable int
}

// New creates a mat holding the given layers, lowest priority first.
func New(layers ...Layer) *Mat {
	m := &Mat{root: -1, writable: -1}
	for _, l := range layers {
		m.AddLayer(l.Value, l.Name, l.Provenance)
	}

	return m
}

// AddLayer appends a layer on top of the existing ones.
func (m *Mat) AddLayer(value any, name string, provenance any) {
	m.layers = append(m.layers, Layer{Value: value, Name: name, Provenance: provenance})
	// Every cached path may now be shadowed.
	m.nodes = nil
	m.root = -1
}

// LayerNames returns the names of the layers, lowest priority first.
func (m *Mat) LayerNames() []string {
	names := make([]string, 0, len(m.layers))
	for _, l := range m.layers {
		names = append(names, l.Name)
	}

	return names
}

func (m *Mat) findLayer(name string) int {
	for i, l := range m.layers {
		if l.Name == name {
			return i
		}
	}

	return -1
}

// Root returns the fully evaluated merged value.
func (m *Mat) Root() (any, error) {
	return m.Get(nil)
}

// Get returns the fully evaluated merged value at path. It returns nil when no layer defines the path.
func (m *Mat) Get(path Path) (any, error) {
	idx, err := m.resolve(path)
	if err != nil {
		return nil, err
	}

	if idx < 0 {
		return nil, nil
	}

	return m.materialise(idx), nil
}

// Provenance fully evaluates the mat and returns a tree isomorphic to the merged value holding the provenance of
// each scalar leaf.
func (m *Mat) Provenance() (any, error) {
	root, err := m.rootIndex()
	if err != nil {
		return nil, err
	}

	m.materialise(root)

	return m.provenanceTree(root), nil
}

// SetWritableLayer designates the named layer as the target of Set. The mat takes a private copy of the layer's
// value and provenance, so the trees passed to AddLayer are never written to.
func (m *Mat) SetWritableLayer(name string) error {
	idx := m.findLayer(name)
	if idx < 0 {
		return errors.Wrapf(ErrLayerNotFound, "unable to make %q writable, configured layers are %s",
			name, strings.Join(m.LayerNames(), ", "))
	}

	m.writable = idx
	m.layers[idx].Value = deepCopy(m.layers[idx].Value)
	m.layers[idx].Provenance = deepCopy(m.layers[idx].Provenance)

	return nil
}

// Set writes value at path into the writable layer, then forks the cached ancestors of path.
func (m *Mat) Set(path Path, value any) error {
	if m.writable < 0 {
		return errors.Wrapf(ErrNoWritableLayer, "unable to write to %q", path.String())
	}

	shapes, err := m.shapesAlong(path)
	if err != nil {
		return err
	}

	layer := &m.layers[m.writable]

	backing, err := assign(layer.Value, path, value, shapes)
	if err != nil {
		return errors.Wrapf(err, "unable to write to %q", path.String())
	}

	layer.Value = backing

	if layer.Provenance != nil {
		prov, err := assign(layer.Provenance, path, layer.Name, shapes)
		if err != nil {
			return errors.Wrapf(err, "unable to record provenance of %q", path.String())
		}

		layer.Provenance = prov
	}

	m.fork(path)

	return nil
}

func (m *Mat) rootIndex() (int, error) {
	if m.root >= 0 {
		return m.root, nil
	}

	n, ok := m.evaluate(nil)
	if !ok {
		return -1, errors.Wrapf(ErrEmptyMat, "%d layers configured", len(m.layers))
	}

	m.root = m.push(n)

	return m.root, nil
}

// resolve walks the arena from the root, evaluating each member of path on the way.
func (m *Mat) resolve(path Path) (int, error) {
	idx, err := m.rootIndex()
	if err != nil {
		return -1, err
	}

	for _, seg := range path {
		idx = m.child(idx, seg)
		if idx < 0 {
			return -1, nil
		}
	}

	return idx, nil
}

// evaluate computes the mat top at path by scanning the layers from the highest priority down.
func (m *Mat) evaluate(path Path) (node, bool) {
	for i := len(m.layers) - 1; i >= 0; i-- {
		v, ok := lookup(m.layers[i].Value, path)
		if !ok {
			continue
		}

		n := node{path: path, layer: i, kind: kindOf(v)}
		if n.kind == kindScalar {
			n.value = v
			n.provenance = m.provenanceOf(i, path)
			n.complete = true
		} else {
			n.keys = m.membersAt(path, n.kind)
			n.children = make(map[string]int, len(n.keys))
		}

		return n, true
	}

	return node{}, false
}

func (m *Mat) provenanceOf(layer int, path Path) string {
	l := m.layers[layer]
	if l.Provenance != nil {
		if p, ok := lookup(l.Provenance, path); ok {
			if s, ok := p.(string); ok {
				return s
			}
		}
	}

	return l.Name
}

// membersAt returns the union of the members found at path in every layer.
func (m *Mat) membersAt(path Path, k kind) []string {
	seen := make(map[string]struct{})
	maxIndex := -1

	for _, l := range m.layers {
		v, ok := lookup(l.Value, path)
		if !ok {
			continue
		}

		switch c := v.(type) {
		case map[string]any:
			for key, member := range c {
				if member == nil {
					continue
				}

				seen[key] = struct{}{}

				if idx, err := strconv.Atoi(key); err == nil && idx > maxIndex {
					maxIndex = idx
				}
			}
		case []any:
			for idx, member := range c {
				if member != nil && idx > maxIndex {
					maxIndex = idx
				}
			}
		}
	}

	if k == kindSlice {
		keys := make([]string, maxIndex+1)
		for i := range keys {
			keys[i] = strconv.Itoa(i)
		}

		return keys
	}

	for i := 0; i <= maxIndex; i++ {
		seen[strconv.Itoa(i)] = struct{}{}
	}

	keys := make([]string, 0, len(seen))
	for key := range seen {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	return keys
}

func (m *Mat) push(n node) int {
	m.nodes = append(m.nodes, n)

	return len(m.nodes) - 1
}

func (m *Mat) child(idx int, key string) int {
	if c, ok := m.nodes[idx].children[key]; ok {
		return c
	}

	switch m.nodes[idx].kind {
	case kindScalar:
		return -1
	case kindSlice:
		if i, err := strconv.Atoi(key); err != nil || i < 0 || i >= len(m.nodes[idx].keys) {
			return -1
		}
	}

	c := -1
	if n, ok := m.evaluate(m.nodes[idx].path.Child(key)); ok {
		c = m.push(n)
	}

	m.nodes[idx].children[key] = c

	return c
}

// materialise evaluates every member below idx and builds the merged container.
func (m *Mat) materialise(idx int) any {
	if m.nodes[idx].complete {
		return m.nodes[idx].value
	}

	keys := m.nodes[idx].keys

	var out any

	switch m.nodes[idx].kind {
	case kindSlice:
		s := make([]any, len(keys))
		for i, key := range keys {
			if c := m.child(idx, key); c >= 0 {
				s[i] = m.materialise(c)
			}
		}

		out = s
	default:
		mp := make(map[string]any, len(keys))
		for _, key := range keys {
			if c := m.child(idx, key); c >= 0 {
				mp[key] = m.materialise(c)
			}
		}

		out = mp
	}

	m.nodes[idx].value = out
	m.nodes[idx].complete = true

	return out
}

func (m *Mat) provenanceTree(idx int) any {
	n := m.nodes[idx]
	switch n.kind {
	case kindScalar:
		return n.provenance
	case kindSlice:
		s := make([]any, len(n.keys))
		for i, key := range n.keys {
			if c, ok := n.children[key]; ok && c >= 0 {
				s[i] = m.provenanceTree(c)
			}
		}

		return s
	default:
		mp := make(map[string]any, len(n.keys))
		for _, key := range n.keys {
			if c, ok := n.children[key]; ok && c >= 0 {
				mp[key] = m.provenanceTree(c)
			}
		}

		return mp
	}
}

// shapesAlong returns the merged container kind of every proper ancestor of path.
func (m *Mat) shapesAlong(path Path) ([]kind, error) {
	shapes := make([]kind, len(path))
	if len(path) == 0 {
		return shapes, nil
	}

	idx, err := m.rootIndex()
	if err != nil && !errors.Is(err, ErrEmptyMat) {
		return nil, err
	}

	for i := range path {
		shapes[i] = kindMap
		if idx < 0 {
			continue
		}

		if k := m.nodes[idx].kind; k != kindScalar {
			shapes[i] = k
		}

		idx = m.child(idx, path[i])
	}

	return shapes, nil
}

// fork replaces the cached nodes from the root down to path with fresh ones. Members off the path keep their nodes,
// so values dispensed for them before the write stay valid.
func (m *Mat) fork(path Path) {
	if m.root < 0 {
		return
	}

	m.root = m.refork(m.root, nil, path)
}

func (m *Mat) refork(old int, prefix, rest Path) int {
	n, ok := m.evaluate(prefix)
	if !ok {
		return -1
	}

	if old < 0 || len(rest) == 0 || n.kind == kindScalar || m.nodes[old].kind != n.kind {
		return m.push(n)
	}

	seg := rest[0]
	for key, c := range m.nodes[old].children {
		if key != seg {
			n.children[key] = c
		}
	}

	if c, ok := m.nodes[old].children[seg]; ok && c >= 0 {
		n.children[seg] = m.refork(c, prefix.Child(seg), rest[1:])
	}

	return m.push(n)
}

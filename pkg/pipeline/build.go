package pipeline

import (
	"fmt"
	"strings"

	"github.com/dominikbraun/graph"
	"github.com/pkg/errors"

	"github.com/askiada/forgiving-data/internal/store"
	"github.com/askiada/forgiving-data/pkg/pipeline/model"
)

// node is an element of the instantiated pipeline tree: either a step running a transform, or a nested pipeline whose
// output is the output of its terminal.
type node struct {
	name   string
	parent *node
	// path is relative to the root, which has an empty path.
	path []string
	elem *element

	children map[string]*node
	order    []string
	terminal *node

	transformID string
	transform   Transform
	record      map[string]any
	waits       []*WaitEntry
	key         string
	// keys is the declaration order of the option maps.
	keys *keyOrder

	future *Future
	info   *model.StepInfo
}

func (n *node) isPipeline() bool {
	return n.children != nil
}

func (n *node) root() *node {
	r := n
	for r.parent != nil {
		r = r.parent
	}

	return r
}

// id is the vertex hash of the node in the dependency graph.
func (n *node) id() string {
	return strings.Join(append([]string{n.root().name}, n.path...), "/")
}

// String returns the dotted path of the node, starting with the root name.
func (n *node) String() string {
	return strings.Join(append([]string{n.root().name}, n.path...), ".")
}

// isAncestorOf reports whether n is other or one of its parents.
func (n *node) isAncestorOf(other *node) bool {
	for o := other; o != nil; o = o.parent {
		if o == n {
			return true
		}
	}

	return false
}

type builder struct {
	defs      *Definitions
	reg       *Registry
	resolvers map[string]ContextResolver
	keyFunc   ProvenanceKeyFunc
	hooks     []model.PipelineOption

	nodes []*node
	store store.DependencyStore[string, *node]
	graph graph.Graph[string, *node]
}

func newBuilder(defs *Definitions, reg *Registry) *builder {
	return &builder{
		defs:      defs,
		reg:       reg,
		resolvers: map[string]ContextResolver{"env": EnvResolver},
		keyFunc:   DefaultProvenanceKey,
	}
}

// build instantiates the tree of the pipeline merging the named definitions, wires its dependency graph and
// selects the terminal of every nested pipeline.
func (b *builder) build(names []string) (*node, error) {
	if len(names) == 0 {
		return nil, errors.Wrap(ErrUnknownPipeline, "no pipeline name given")
	}

	layers, err := b.defs.Layers(names...)
	if err != nil {
		return nil, err
	}

	root := &node{name: strings.Join(names, "+"), elem: &element{typ: names[0], compound: true, layers: layers}}
	if err := b.instantiate(root); err != nil {
		return nil, err
	}

	if err := b.resolveTargets(); err != nil {
		return nil, err
	}

	if err := b.wireGraph(); err != nil {
		return nil, err
	}

	if sinks := b.store.Sinks(); len(sinks) != 1 || sinks[0] != root.id() {
		return nil, errors.Errorf("dependency graph of %s has outputs %v", root, sinks)
	}

	return root, nil
}

func (b *builder) instantiate(n *node) error {
	n.future = newFuture()
	b.nodes = append(b.nodes, n)

	if !n.elem.compound {
		return b.instantiateStep(n)
	}

	names, elems, err := b.mergeElements(n.path, n.elem.layers)
	if err != nil {
		return err
	}

	if len(names) == 0 {
		return configError(ErrEmptyPipeline, n.String(), "pipeline has no elements", n.elem.raw)
	}

	n.children = make(map[string]*node, len(names))
	n.order = names
	n.info = &model.StepInfo{Type: model.PipelineType, Name: n.String(), Transform: n.elem.typ}

	for _, name := range names {
		child := &node{
			name:   name,
			parent: n,
			path:   append(append([]string{}, n.path...), name),
			elem:   elems[name],
		}
		n.children[name] = child

		if err := b.instantiate(child); err != nil {
			return err
		}
	}

	return nil
}

func (b *builder) instantiateStep(n *node) error {
	t, ok := b.reg.Lookup(n.elem.typ)
	if !ok {
		return configError(ErrUnknownTransform, n.String(),
			fmt.Sprintf("%q is neither a transform nor a pipeline, known transforms: %s",
				n.elem.typ, strings.Join(b.reg.Names(), ", ")),
			n.elem.raw)
	}

	record, waits, err := computeWaitSet(n.elem.options, b.resolvers)
	if err != nil {
		return configError(ErrUnresolvedReference, n.String(), err.Error(), n.elem.raw)
	}

	record["type"] = n.elem.typ

	n.transformID = n.elem.typ
	n.transform = t
	n.record = record
	n.waits = waits
	n.key = b.keyFunc(n.path)
	n.keys = n.elem.order
	n.info = &model.StepInfo{
		Type:          model.StepType,
		Name:          n.String(),
		ProvenanceKey: n.key,
		Transform:     n.transformID,
		Grade:         t.Grade.String(),
	}

	return nil
}

// lookupContext finds the element a context name designates from n: walking up from n, each visited element
// matches by its own name first, then by the name of one of its children.
func lookupContext(from *node, name string) *node {
	for n := from; n != nil; n = n.parent {
		if n.name == name {
			return n
		}

		if c, ok := n.children[name]; ok {
			return c
		}
	}

	return nil
}

func (b *builder) resolveTargets() error {
	for _, n := range b.nodes {
		for _, w := range n.waits {
			target := lookupContext(n, w.Ref.Context)
			if target == nil {
				if _, ok := b.resolvers[w.Ref.Context]; ok {
					return configError(ErrNotADataStep, n.String(),
						fmt.Sprintf("%s: context %q does not produce data", w.Ref.Raw, w.Ref.Context), n.elem.raw)
				}

				return configError(ErrUnresolvedReference, n.String(),
					fmt.Sprintf("%s: no element named %q is visible", w.Ref.Raw, w.Ref.Context), n.elem.raw)
			}

			// A pipeline enclosing the step holds the data of its member of the same name, if any.
			if target.isAncestorOf(n) {
				if c, ok := target.children[w.Ref.Context]; ok {
					target = c
				}
			}

			w.target = target
		}
	}

	return nil
}

func (b *builder) addEdge(from, to *node) error {
	err := b.graph.AddEdge(from.id(), to.id())
	if err == nil || errors.Is(err, graph.ErrEdgeAlreadyExists) {
		return nil
	}

	if errors.Is(err, graph.ErrEdgeCreatesCycle) {
		return configError(ErrCyclicPipeline, to.String(),
			fmt.Sprintf("depending on %s closes a cycle", from), to.elem.raw)
	}

	return errors.Wrapf(err, "unable to link %s to %s", from, to)
}

func (b *builder) wireGraph() error {
	b.store = store.NewMemoryStore[string, *node]()
	b.graph = graph.NewWithStore(func(n *node) string { return n.id() }, b.store, graph.Directed(), graph.PreventCycles())

	for _, n := range b.nodes {
		if err := b.graph.AddVertex(n, graph.VertexAttribute("label", n.String())); err != nil {
			return errors.Wrapf(err, "unable to add %s to the dependency graph", n)
		}
	}

	for _, n := range b.nodes {
		for _, w := range n.waits {
			if err := b.addEdge(w.target, n); err != nil {
				return err
			}
		}
	}

	// Terminals are selected on wait edges only, before any pipeline is linked to its terminal.
	for _, n := range b.nodes {
		if !n.isPipeline() {
			continue
		}

		candidates := []string{}
		for _, name := range n.order {
			if b.store.OutDegree(n.children[name].id()) == 0 {
				candidates = append(candidates, name)
			}
		}

		switch len(candidates) {
		case 0:
			return configError(ErrCyclicPipeline, n.String(), "every element is consumed by another one", n.waitSummary())
		case 1:
			n.terminal = n.children[candidates[0]]
		default:
			return configError(ErrAmbiguousTerminal, n.String(),
				fmt.Sprintf("elements %s are not consumed by any other element", strings.Join(candidates, ", ")),
				n.waitSummary())
		}
	}

	for _, n := range b.nodes {
		if n.terminal == nil {
			continue
		}

		if err := b.addEdge(n.terminal, n); err != nil {
			return err
		}
	}

	return nil
}

// waitSummary lists, for each member of a pipeline, the references it waits on.
func (n *node) waitSummary() map[string][]string {
	out := make(map[string][]string, len(n.order))
	for _, name := range n.order {
		refs := []string{}
		for _, w := range n.children[name].waits {
			refs = append(refs, w.Ref.Raw)
		}

		out[name] = refs
	}

	return out
}

// dependencies returns the nodes n waits on, in graph insertion order.
func (b *builder) dependencies(n *node) ([]*node, error) {
	deps := []*node{}
	for _, id := range b.store.Dependencies(n.id()) {
		d, err := b.graph.Vertex(id)
		if err != nil {
			return nil, errors.Wrapf(err, "unable to get dependency %s of %s", id, n)
		}

		deps = append(deps, d)
	}

	return deps, nil
}

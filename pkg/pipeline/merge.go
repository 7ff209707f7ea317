package pipeline

import (
	"sort"
	"strings"

	"github.com/askiada/forgiving-data/pkg/mat"
)

// deepMerge merges trees left to right, later members winning over earlier scalars while maps merge member by
// member. Nil members are absent. The result shares no container with its inputs.
func deepMerge(layers ...map[string]any) map[string]any {
	out := map[string]any{}
	for _, l := range layers {
		mergeInto(out, l)
	}

	return out
}

func mergeInto(dst, src map[string]any) {
	for k, v := range src {
		if v == nil {
			continue
		}

		sm, ok := v.(map[string]any)
		if !ok {
			dst[k] = mat.DeepCopy(v)

			continue
		}

		dm, ok := dst[k].(map[string]any)
		if !ok {
			dm = map[string]any{}
		}

		mergeInto(dm, sm)
		dst[k] = dm
	}
}

// element is a merged element definition, ready to be instantiated.
type element struct {
	typ      string
	compound bool
	// options holds every member but type, parents and, for a compound, elements.
	options map[string]any
	// order is the declaration order of the members of options.
	order *keyOrder
	// layers holds the element layers of a compound, lowest priority first.
	layers []ElementLayer
	// raw holds the unmerged definitions, lowest priority first.
	raw []any
}

func (b *builder) isCompound(def map[string]any) bool {
	t, _ := def["type"].(string)

	return t == CompoundType || b.defs.Has(t)
}

// isPromotable reports whether def, found where another layer declares a compound, defines or overrides a plain step
// rather than the compound itself.
func (b *builder) isPromotable(def map[string]any) bool {
	if b.isCompound(def) {
		return false
	}

	_, hasElements := def["elements"]

	return !hasElements
}

// mergeElements merges element layers by name. Where any layer declares a compound element, the plain step
// definitions of the other layers at the same name are promoted to a compound holding just that step, so that both
// shapes merge.
func (b *builder) mergeElements(path []string, layers []ElementLayer) ([]string, map[string]*element, error) {
	seen := map[string]struct{}{}
	for _, l := range layers {
		for k := range l.Elements {
			seen[k] = struct{}{}
		}
	}

	names := make([]string, 0, len(seen))
	for k := range seen {
		names = append(names, k)
	}

	sort.Strings(names)

	out := make(map[string]*element, len(names))

	for _, name := range names {
		elemPath := strings.Join(append(append([]string{}, path...), name), ".")

		var (
			defs   []map[string]any
			orders []*keyOrder
			raw    []any
		)

		for _, l := range layers {
			v, ok := l.Elements[name]
			if !ok || v == nil {
				continue
			}

			def, ok := v.(map[string]any)
			if !ok {
				return nil, nil, configError(ErrInvalidDefinition, elemPath, "element must be a map", v)
			}

			defs = append(defs, def)
			orders = append(orders, l.order.member(name))
			raw = append(raw, def)
		}

		if len(defs) == 0 {
			continue
		}

		elem, err := b.mergeElement(elemPath, name, defs, orders)
		if err != nil {
			return nil, nil, err
		}

		elem.raw = raw
		out[name] = elem
	}

	kept := make([]string, 0, len(out))
	for _, name := range names {
		if _, ok := out[name]; ok {
			kept = append(kept, name)
		}
	}

	return kept, out, nil
}

// mergeElement merges the definitions of one element. orders holds the key order of each definition.
func (b *builder) mergeElement(elemPath, name string, defs []map[string]any, orders []*keyOrder) (*element, error) {
	compound := false
	for _, def := range defs {
		if b.isCompound(def) {
			compound = true

			break
		}
	}

	if compound {
		promoted := make([]map[string]any, len(defs))
		promotedOrders := make([]*keyOrder, len(defs))

		for i, def := range defs {
			o := orders[i]
			if b.isPromotable(def) {
				def = map[string]any{"elements": map[string]any{name: def}}
				o = wrapOrder("elements", wrapOrder(name, o))
			}

			promoted[i] = def
			promotedOrders[i] = o
		}

		defs = promoted
		orders = promotedOrders
	}

	merged := deepMerge(defs...)

	typ, _ := merged["type"].(string)
	if typ == "" {
		return nil, configError(ErrInvalidDefinition, elemPath, "element has no type", defs)
	}

	parents, err := stringList(merged["parents"])
	if err != nil {
		return nil, configError(ErrInvalidDefinition, elemPath, err.Error(), defs)
	}

	options := make(map[string]any, len(merged))
	for k, v := range merged {
		if k == "type" || k == "parents" || (compound && k == "elements") {
			continue
		}

		options[k] = v
	}

	elem := &element{typ: typ, compound: compound, options: options, order: mergeOrders(orders...)}
	if !compound {
		return elem, nil
	}

	bases := parents
	if typ != CompoundType {
		bases = append([]string{typ}, parents...)
	}

	if len(bases) > 0 {
		layers, err := b.defs.Layers(bases...)
		if err != nil {
			return nil, configError(ErrUnknownPipeline, elemPath, err.Error(), defs)
		}

		elem.layers = append(elem.layers, layers...)
	}

	for i, def := range defs {
		if v, ok := def["elements"]; ok && v != nil {
			layer, ok := v.(map[string]any)
			if !ok {
				return nil, configError(ErrInvalidDefinition, elemPath, "elements must be a map", defs)
			}

			elem.layers = append(elem.layers, ElementLayer{Elements: layer, order: orders[i].member("elements")})
		}
	}

	return elem, nil
}

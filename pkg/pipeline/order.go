package pipeline

import (
	"sort"

	"gopkg.in/yaml.v3"
)

// keyOrder is the declaration order of the members of a decoded map, and of the maps nested in it.
type keyOrder struct {
	keys    []string
	members map[string]*keyOrder
}

// orderOf records the key order of every mapping reachable from n through mappings.
func orderOf(n *yaml.Node) *keyOrder {
	if n == nil {
		return nil
	}

	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil
		}

		return orderOf(n.Content[0])
	case yaml.AliasNode:
		return orderOf(n.Alias)
	case yaml.MappingNode:
	default:
		return nil
	}

	o := &keyOrder{members: map[string]*keyOrder{}}

	for i := 0; i+1 < len(n.Content); i += 2 {
		key, value := n.Content[i], n.Content[i+1]

		if key.Kind == yaml.ScalarNode && key.Value == "<<" && (key.Tag == "" || key.Tag == "!!merge") {
			o = mergeOrders(o, orderOf(value))

			continue
		}

		o = mergeOrders(o, &keyOrder{
			keys:    []string{key.Value},
			members: map[string]*keyOrder{key.Value: orderOf(value)},
		})
	}

	return o
}

// member returns the order of the map held by key, nil when unknown.
func (o *keyOrder) member(key string) *keyOrder {
	if o == nil {
		return nil
	}

	return o.members[key]
}

// at returns the order of the map at path, nil when unknown.
func (o *keyOrder) at(path ...string) *keyOrder {
	for _, seg := range path {
		o = o.member(seg)
	}

	return o
}

// mergeOrders merges orders the way deepMerge merges the maps they describe: keys keep the position of their first
// declaration.
func mergeOrders(orders ...*keyOrder) *keyOrder {
	var out *keyOrder

	for _, o := range orders {
		if o == nil {
			continue
		}

		if out == nil {
			out = &keyOrder{members: map[string]*keyOrder{}}
		}

		for _, k := range o.keys {
			prev, seen := out.members[k]
			if !seen {
				out.keys = append(out.keys, k)
			}

			out.members[k] = mergeOrders(prev, o.members[k])
		}
	}

	return out
}

// wrapOrder is the order of {key: o}.
func wrapOrder(key string, o *keyOrder) *keyOrder {
	return &keyOrder{keys: []string{key}, members: map[string]*keyOrder{key: o}}
}

// orderedKeys returns the keys of m, declared keys first in their order, then the others sorted.
func orderedKeys(m map[string]any, o *keyOrder) []string {
	out := make([]string, 0, len(m))
	listed := make(map[string]bool, len(m))

	if o != nil {
		for _, k := range o.keys {
			if _, ok := m[k]; ok && !listed[k] {
				out = append(out, k)
				listed[k] = true
			}
		}
	}

	rest := []string{}
	for k := range m {
		if !listed[k] {
			rest = append(rest, k)
		}
	}

	sort.Strings(rest)

	return append(out, rest...)
}

package mat

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Path addresses a member of a tree. Slice members are addressed by their decimal index.
type Path []string

// ParsePath splits a dotted path. The empty string is the root path.
func ParsePath(s string) Path {
	if s == "" {
		return nil
	}

	return strings.Split(s, ".")
}

func (p Path) String() string {
	return strings.Join(p, ".")
}

// Child returns a new path extended by seg.
func (p Path) Child(seg string) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)

	return append(out, seg)
}

// Lookup returns the member of tree at path. The boolean is false when the path is undefined.
func Lookup(tree any, path Path) (any, bool) {
	return lookup(tree, path)
}

func lookup(tree any, path Path) (any, bool) {
	move := tree
	for _, seg := range path {
		switch c := move.(type) {
		case map[string]any:
			move = c[seg]
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(c) {
				return nil, false
			}

			move = c[idx]
		default:
			return nil, false
		}

		if move == nil {
			return nil, false
		}
	}

	return move, move != nil
}

// assign stores value at path inside tree and returns the updated tree. Containers along the way are created, or
// replaced when their kind differs from shapes. Slices grow as needed.
func assign(tree any, path Path, value any, shapes []kind) (any, error) {
	if len(path) == 0 {
		return value, nil
	}

	seg := path[0]

	if shapes[0] == kindSlice {
		idx, err := strconv.Atoi(seg)
		if err != nil || idx < 0 {
			return nil, errors.Errorf("member %q is not a valid index", seg)
		}

		s, _ := tree.([]any)
		for len(s) <= idx {
			s = append(s, nil)
		}

		member, err := assign(s[idx], path[1:], value, shapes[1:])
		if err != nil {
			return nil, err
		}

		s[idx] = member

		return s, nil
	}

	mp, ok := tree.(map[string]any)
	if !ok {
		mp = make(map[string]any)
	}

	member, err := assign(mp[seg], path[1:], value, shapes[1:])
	if err != nil {
		return nil, err
	}

	mp[seg] = member

	return mp, nil
}

// DeepCopy returns a copy of tree sharing no container with it.
func DeepCopy(tree any) any {
	return deepCopy(tree)
}

func deepCopy(tree any) any {
	switch c := tree.(type) {
	case map[string]any:
		out := make(map[string]any, len(c))
		for k, v := range c {
			out[k] = deepCopy(v)
		}

		return out
	case []any:
		out := make([]any, len(c))
		for i, v := range c {
			out[i] = deepCopy(v)
		}

		return out
	default:
		return tree
	}
}

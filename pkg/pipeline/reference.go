package pipeline

import (
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var referencePattern = regexp.MustCompile(`^\{([^{}.]+)\}(?:\.(.+))?$`)

// Reference is a symbolic pointer written in an option as {context}.path.
type Reference struct {
	Raw     string
	Context string
	Path    []string
}

// ParseReference recognises a reference in s.
func ParseReference(s string) (Reference, bool) {
	m := referencePattern.FindStringSubmatch(s)
	if m == nil {
		return Reference{}, false
	}

	ref := Reference{Raw: s, Context: m[1]}
	if m[2] != "" {
		ref.Path = strings.Split(m[2], ".")
	}

	return ref, true
}

// IsData reports whether the reference points into the data produced by another step.
func (r Reference) IsData() bool {
	return len(r.Path) > 0 && r.Path[0] == "data"
}

// ContextResolver resolves the path of a non data reference, such as {env}.HOME.
type ContextResolver func(path []string) (any, error)

// EnvResolver resolves {env}.NAME to the value of the environment variable NAME.
func EnvResolver(path []string) (any, error) {
	name := strings.Join(path, ".")

	v, ok := os.LookupEnv(name)
	if !ok {
		return nil, errors.Errorf("environment variable %q is not set", name)
	}

	return v, nil
}

// WaitEntry is a data dependency of a step, found in its options.
type WaitEntry struct {
	Ref Reference
	// SourcePath is where the reference was found in the step options.
	SourcePath []string
	target     *node
}

// computeWaitSet walks options, censoring data references into wait entries and resolving other references through
// resolvers. The returned tree never shares a container with options.
func computeWaitSet(options map[string]any, resolvers map[string]ContextResolver) (map[string]any, []*WaitEntry, error) {
	var waits []*WaitEntry

	censored, err := censor(options, nil, resolvers, &waits)
	if err != nil {
		return nil, nil, err
	}

	out, _ := censored.(map[string]any)
	if out == nil {
		out = map[string]any{}
	}

	return out, waits, nil
}

func censor(value any, segs []string, resolvers map[string]ContextResolver, waits *[]*WaitEntry) (any, error) {
	switch v := value.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}

		sort.Strings(keys)

		out := make(map[string]any, len(v))
		for _, k := range keys {
			member, keep, err := censorMember(v[k], append(segs, k), resolvers, waits)
			if err != nil {
				return nil, err
			}

			if keep {
				out[k] = member
			}
		}

		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			member, _, err := censorMember(item, append(segs, strconv.Itoa(i)), resolvers, waits)
			if err != nil {
				return nil, err
			}

			out[i] = member
		}

		return out, nil
	default:
		return value, nil
	}
}

func censorMember(value any, segs []string, resolvers map[string]ContextResolver, waits *[]*WaitEntry) (any, bool, error) {
	s, ok := value.(string)
	if !ok {
		out, err := censor(value, segs, resolvers, waits)

		return out, true, err
	}

	ref, ok := ParseReference(s)
	if !ok {
		return s, true, nil
	}

	if ref.IsData() {
		source := make([]string, len(segs))
		copy(source, segs)
		*waits = append(*waits, &WaitEntry{Ref: ref, SourcePath: source})

		return nil, false, nil
	}

	resolver, ok := resolvers[ref.Context]
	if !ok {
		return nil, false, errors.Wrapf(ErrUnresolvedReference, "no context %q for %s", ref.Context, ref.Raw)
	}

	resolved, err := resolver(ref.Path)
	if err != nil {
		return nil, false, errors.Wrapf(ErrUnresolvedReference, "%s: %v", ref.Raw, err)
	}

	return resolved, true, nil
}

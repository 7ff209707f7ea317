package pipeline

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"github.com/askiada/forgiving-data/pkg/mat"
	"github.com/askiada/forgiving-data/pkg/table"
)

// Grade selects how the output of a transform is turned into a provenanced table.
type Grade int

const (
	// Plain transforms return their output unchanged.
	Plain Grade = iota
	// OverlayProvenance transforms return raw values which are overlaid on their "input" option, only the cells
	// they produce being attributed to the step.
	OverlayProvenance
	// SelfProvenance transforms have their whole output attributed to the step.
	SelfProvenance
)

func (g Grade) String() string {
	switch g {
	case OverlayProvenance:
		return "overlay"
	case SelfProvenance:
		return "self"
	default:
		return "plain"
	}
}

// TransformFunc computes the output of a step from its resolved arguments.
type TransformFunc func(ctx context.Context, args *Args) (*table.Provenanced, error)

// Transform is a registered step implementation.
type Transform struct {
	Grade Grade
	Fn    TransformFunc
	// DynamicProvenance lists options whose resolved values are recorded in the step provenance record, even when
	// they are only known once the step dependencies are complete.
	DynamicProvenance []string
}

// Registry maps transform names to their implementation.
type Registry struct {
	transforms map[string]Transform
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{transforms: make(map[string]Transform)}
}

// Register adds a transform under name, replacing any previous one.
func (r *Registry) Register(name string, t Transform) {
	r.transforms[name] = t
}

// Lookup returns the transform registered under name.
func (r *Registry) Lookup(name string) (Transform, bool) {
	t, ok := r.transforms[name]

	return t, ok
}

// Names returns the sorted names of the registered transforms.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.transforms))
	for name := range r.transforms {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Args are the resolved arguments of a step.
type Args struct {
	// Options holds the step options with every reference resolved.
	Options map[string]any
	// ProvenanceKey identifies the step in provenance records.
	ProvenanceKey string
	// ProvenanceRecord is the step definition with data references removed.
	ProvenanceRecord table.Record

	order *keyOrder
}

// Keys returns the members of the map option at path in the order the definitions declare them. Members no
// definition declares, such as those of resolved data, come last in sorted order. Keys returns nil when path does
// not hold a map.
func (a *Args) Keys(path ...string) []string {
	v, ok := mat.Lookup(a.Options, path)
	if !ok {
		return nil
	}

	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}

	return orderedKeys(m, a.order.at(path...))
}

// Table returns the provenanced table held by the named option.
func (a *Args) Table(name string) (*table.Provenanced, error) {
	t, ok := a.Options[name].(*table.Provenanced)
	if !ok || t == nil {
		return nil, errors.Wrapf(ErrMissingOption, "%q must hold a data reference, got %T", name, a.Options[name])
	}

	return t, nil
}

// String returns the string held by the named option.
func (a *Args) String(name string) (string, error) {
	s, ok := a.Options[name].(string)
	if !ok || s == "" {
		return "", errors.Wrapf(ErrMissingOption, "%q must be a non empty string, got %T", name, a.Options[name])
	}

	return s, nil
}

// StringOr returns the string held by the named option, or def when it is not set.
func (a *Args) StringOr(name, def string) string {
	if s, ok := a.Options[name].(string); ok && s != "" {
		return s
	}

	return def
}

// Bool returns the boolean held by the named option, false when it is not set.
func (a *Args) Bool(name string) bool {
	b, _ := a.Options[name].(bool)

	return b
}

package pipeline

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// CompoundType is the element type of an inline nested pipeline.
const CompoundType = "compound"

// Definition is a named pipeline definition, as loaded from a file.
type Definition struct {
	Name     string
	Parents  []string
	Elements map[string]any
	Source   string

	// order is the declaration order of the maps of Elements.
	order *keyOrder
}

// ElementLayer is one layer of element definitions, by element name.
type ElementLayer struct {
	Elements map[string]any
	order    *keyOrder
}

// ParseDefinition decodes a JSON or YAML pipeline definition of the form
// {type: name, parents?: [name...], elements: {name: element}}.
func ParseDefinition(data []byte, source string) (*Definition, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrapf(err, "unable to decode definition %s", source)
	}

	raw := map[string]any{}
	if len(doc.Content) > 0 {
		if err := doc.Decode(&raw); err != nil {
			return nil, errors.Wrapf(err, "unable to decode definition %s", source)
		}
	}

	name, _ := raw["type"].(string)
	if name == "" {
		return nil, configError(ErrInvalidDefinition, source, "definition has no type", raw)
	}

	parents, err := stringList(raw["parents"])
	if err != nil {
		return nil, configError(ErrInvalidDefinition, source, err.Error(), raw)
	}

	elements := map[string]any{}
	if raw["elements"] != nil {
		var ok bool
		if elements, ok = raw["elements"].(map[string]any); !ok {
			return nil, configError(ErrInvalidDefinition, source, "elements must be a map", raw)
		}
	}

	return &Definition{
		Name:     name,
		Parents:  parents,
		Elements: elements,
		Source:   source,
		order:    orderOf(&doc).member("elements"),
	}, nil
}

func stringList(v any) ([]string, error) {
	switch l := v.(type) {
	case nil:
		return nil, nil
	case string:
		return []string{l}, nil
	case []any:
		out := make([]string, 0, len(l))
		for _, item := range l {
			s, ok := item.(string)
			if !ok {
				return nil, errors.Errorf("expected a list of names, found %T", item)
			}

			out = append(out, s)
		}

		return out, nil
	default:
		return nil, errors.Errorf("expected a name or a list of names, found %T", v)
	}
}

// Definitions holds the loaded pipeline definitions by name.
type Definitions struct {
	defs map[string]*Definition
}

// NewDefinitions creates an empty set of definitions.
func NewDefinitions() *Definitions {
	return &Definitions{defs: make(map[string]*Definition)}
}

// Add registers def under its name.
func (d *Definitions) Add(def *Definition) error {
	if prev, ok := d.defs[def.Name]; ok {
		return errors.Wrapf(ErrInvalidDefinition, "pipeline %q defined in both %s and %s", def.Name, prev.Source, def.Source)
	}

	d.defs[def.Name] = def

	return nil
}

// Has reports whether a pipeline named name is registered.
func (d *Definitions) Has(name string) bool {
	_, ok := d.defs[name]

	return ok
}

// LoadFile reads and registers a single definition file.
func (d *Definitions) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "unable to read definition %s", path)
	}

	def, err := ParseDefinition(data, path)
	if err != nil {
		return err
	}

	return d.Add(def)
}

// LoadDirectory registers every .json, .yaml and .yml file found directly in dir.
func (d *Definitions) LoadDirectory(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return errors.Wrapf(err, "unable to list definitions in %s", dir)
	}

	names := []string{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}

		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".json", ".yaml", ".yml":
			names = append(names, e.Name())
		}
	}

	sort.Strings(names)

	for _, name := range names {
		if err := d.LoadFile(filepath.Join(dir, name)); err != nil {
			return err
		}
	}

	return nil
}

// Layers expands names and their parents, parents first, into the ordered element layers to merge. Later layers
// have higher priority and each definition contributes at most once.
func (d *Definitions) Layers(names ...string) ([]ElementLayer, error) {
	var (
		order    []*Definition
		done     = map[string]bool{}
		visiting = map[string]bool{}
	)

	var visit func(name string) error
	visit = func(name string) error {
		if done[name] {
			return nil
		}

		if visiting[name] {
			return errors.Wrapf(ErrInvalidDefinition, "pipeline %q is its own parent", name)
		}

		def, ok := d.defs[name]
		if !ok {
			return errors.Wrapf(ErrUnknownPipeline, "%q", name)
		}

		visiting[name] = true
		for _, parent := range def.Parents {
			if err := visit(parent); err != nil {
				return err
			}
		}
		visiting[name] = false
		done[name] = true
		order = append(order, def)

		return nil
	}

	for _, name := range names {
		if err := visit(name); err != nil {
			return nil, err
		}
	}

	layers := make([]ElementLayer, 0, len(order))
	for _, def := range order {
		layers = append(layers, ElementLayer{Elements: def.Elements, order: def.order})
	}

	return layers, nil
}

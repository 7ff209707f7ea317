// Package join implements the forgiving join: a relational join between two provenanced tables which picks its own
// join columns.
//
// Every column of the left table is compared with every column of the right table. The pair sharing the largest
// number of distinct values becomes the join key, the first pair found winning ties. Rows are indexed by that key,
// a repeated key value keeping the last row seen.
package join

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/askiada/forgiving-data/internal/ctxlog"
	"github.com/askiada/forgiving-data/pkg/table"
)

var (
	// ErrMissingInput is returned when one side of the join is not set.
	ErrMissingInput = errors.New("both sides of the join must be set")
	// ErrNoColumns is returned when a side of the join has no column to join on.
	ErrNoColumns = errors.New("no column to join on")
	// ErrUnknownDataset is returned when an output column names neither side of the join.
	ErrUnknownDataset = errors.New("output column names an unknown dataset")
	// ErrSameDataset is returned when both sides of the join carry the same dataset name.
	ErrSameDataset = errors.New("both sides of the join come from the same dataset")
)

// Column is one column of the join output, read from Dataset.Source.
type Column struct {
	Name    string
	Dataset string
	Source  string
}

// ParseColumn builds a column from its output name and a "dataset.column" source.
func ParseColumn(name, source string) (Column, error) {
	dataset, col, ok := strings.Cut(source, ".")
	if !ok || dataset == "" || col == "" {
		return Column{}, errors.Errorf("output column %q: source %q must be of the form dataset.column", name, source)
	}

	return Column{Name: name, Dataset: dataset, Source: col}, nil
}

// ParseColumns reads the output columns from a decoded option tree. A list of single entry maps keeps its order.
// The columns of a plain map follow order, the declaration order of its keys, and any key order omits comes last,
// sorted by output name.
func ParseColumns(tree any, order ...string) ([]Column, error) {
	var out []Column

	add := func(name string, source any) error {
		s, ok := source.(string)
		if !ok {
			return errors.Errorf("output column %q: source must be a string, got %T", name, source)
		}

		col, err := ParseColumn(name, s)
		if err != nil {
			return err
		}

		out = append(out, col)

		return nil
	}

	switch cols := tree.(type) {
	case map[string]any:
		names := make([]string, 0, len(cols))
		listed := make(map[string]bool, len(cols))

		for _, name := range order {
			if _, ok := cols[name]; ok && !listed[name] {
				names = append(names, name)
				listed[name] = true
			}
		}

		rest := []string{}
		for name := range cols {
			if !listed[name] {
				rest = append(rest, name)
			}
		}

		sort.Strings(rest)

		for _, name := range append(names, rest...) {
			if err := add(name, cols[name]); err != nil {
				return nil, err
			}
		}
	case []any:
		for i, item := range cols {
			entry, ok := item.(map[string]any)
			if !ok || len(entry) != 1 {
				return nil, errors.Errorf("output column %d must map one name to its source", i)
			}

			for name, source := range entry {
				if err := add(name, source); err != nil {
					return nil, err
				}
			}
		}
	default:
		return nil, errors.Errorf("output columns must be a map or a list, got %T", tree)
	}

	return out, nil
}

// Options configures a forgiving join.
type Options struct {
	Left          *table.Provenanced
	Right         *table.Provenanced
	OuterLeft     bool
	OuterRight    bool
	OutputColumns []Column
}

// Keys records the join column chosen on each side and the size of their value intersection.
type Keys struct {
	Left  string `json:"left"`
	Right string `json:"right"`
	Count int    `json:"count"`
}

// Result is the joined table together with the chosen join columns.
type Result struct {
	*table.Provenanced
	JoinKeys Keys
}

// side is one input of the join indexed by its candidate columns.
type side struct {
	name   string
	input  *table.Provenanced
	values map[string]*valueSet
}

// valueSet is the set of distinct values of a column, in order of first appearance.
type valueSet struct {
	order []string
	set   map[string]struct{}
}

func (vs *valueSet) add(v string) {
	if _, ok := vs.set[v]; ok {
		return
	}

	vs.set[v] = struct{}{}
	vs.order = append(vs.order, v)
}

func (vs *valueSet) has(v string) bool {
	_, ok := vs.set[v]

	return ok
}

// cellKey canonicalises a cell so that values of both sides compare by their text.
func cellKey(v any) (string, bool) {
	if v == nil {
		return "", false
	}

	return fmt.Sprint(v), true
}

func newSide(name string, input *table.Provenanced) *side {
	s := &side{name: name, input: input, values: make(map[string]*valueSet, len(input.Value.Headers))}

	for _, h := range input.Value.Headers {
		vs := &valueSet{set: map[string]struct{}{}}
		for _, row := range input.Value.Data {
			if k, ok := cellKey(row[h]); ok {
				vs.add(k)
			}
		}

		s.values[h] = vs
	}

	return s
}

// index maps each value of col to the last row holding it.
func (s *side) index(col string) map[string]int {
	idx := make(map[string]int, len(s.input.Value.Data))
	for i, row := range s.input.Value.Data {
		if k, ok := cellKey(row[col]); ok {
			idx[k] = i
		}
	}

	return idx
}

func sideName(p *table.Provenanced, fallback string) string {
	if p.ProvenanceKey != "" {
		return p.ProvenanceKey
	}

	return fallback
}

// bestKeys counts the value intersection of every column pair and keeps the first largest one.
func bestKeys(left, right *side) (Keys, []string) {
	var (
		best   Keys
		common []string
		found  bool
	)

	for _, lh := range left.input.Value.Headers {
		lv := left.values[lh]
		for _, rh := range right.input.Value.Headers {
			rv := right.values[rh]

			shared := []string{}
			for _, v := range lv.order {
				if rv.has(v) {
					shared = append(shared, v)
				}
			}

			if !found || len(shared) > best.Count {
				best = Keys{Left: lh, Right: rh, Count: len(shared)}
				common = shared
				found = true
			}
		}
	}

	return best, common
}

func complement(vs *valueSet, common map[string]struct{}) []string {
	out := []string{}
	for _, v := range vs.order {
		if _, ok := common[v]; !ok {
			out = append(out, v)
		}
	}

	return out
}

// Forgiving joins opts.Left and opts.Right on the column pair sharing the most values.
func Forgiving(ctx context.Context, opts Options) (*Result, error) {
	if opts.Left == nil || opts.Right == nil {
		return nil, ErrMissingInput
	}

	if len(opts.Left.Value.Headers) == 0 || len(opts.Right.Value.Headers) == 0 {
		return nil, ErrNoColumns
	}

	left := newSide(sideName(opts.Left, "left"), opts.Left)
	right := newSide(sideName(opts.Right, "right"), opts.Right)

	if left.name == right.name {
		return nil, errors.Wrapf(ErrSameDataset, "%q", left.name)
	}

	for _, col := range opts.OutputColumns {
		if col.Dataset != left.name && col.Dataset != right.name {
			return nil, errors.Wrapf(ErrUnknownDataset, "column %q reads from %q, datasets are %q and %q",
				col.Name, col.Dataset, left.name, right.name)
		}
	}

	keys, common := bestKeys(left, right)
	leftValues := left.values[keys.Left]
	rightValues := right.values[keys.Right]

	commonSet := make(map[string]struct{}, len(common))
	for _, v := range common {
		commonSet[v] = struct{}{}
	}

	leftComplement := complement(leftValues, commonSet)
	rightComplement := complement(rightValues, commonSet)

	logger := ctxlog.FromContext(ctx)
	logger.Info("best join columns",
		"left", left.name+"."+keys.Left, "right", right.name+"."+keys.Right, "count", keys.Count)
	logger.Info("join complements",
		"left", len(leftComplement), "retainLeft", opts.OuterLeft,
		"right", len(rightComplement), "retainRight", opts.OuterRight)

	leftIndex := left.index(keys.Left)
	rightIndex := right.index(keys.Right)

	headers := make([]string, len(opts.OutputColumns))
	for i, col := range opts.OutputColumns {
		headers[i] = col.Name
	}

	out := &table.Provenanced{
		Value:         table.Table{Headers: headers, Data: []table.Row{}},
		Provenance:    []table.ProvenanceRow{},
		ProvenanceMap: map[string]table.Record{},
	}

	emit := func(leftRow, rightRow table.Row) {
		row := table.Row{}
		prov := table.ProvenanceRow{}

		for _, col := range opts.OutputColumns {
			src := leftRow
			if col.Dataset == right.name {
				src = rightRow
			}

			if v := src[col.Source]; v != nil {
				row[col.Name] = v
				prov[col.Name] = col.Dataset
			}
		}

		out.Value.Data = append(out.Value.Data, row)
		out.Provenance = append(out.Provenance, prov)
	}

	for _, v := range common {
		emit(left.input.Value.Data[leftIndex[v]], right.input.Value.Data[rightIndex[v]])
	}

	if opts.OuterLeft {
		for _, v := range leftComplement {
			emit(left.input.Value.Data[leftIndex[v]], nil)
		}
	}

	if opts.OuterRight {
		for _, v := range rightComplement {
			emit(nil, right.input.Value.Data[rightIndex[v]])
		}
	}

	out.ProvenanceMap[left.name] = recordOf(opts.Left, left.name)
	out.ProvenanceMap[right.name] = recordOf(opts.Right, right.name)

	return &Result{Provenanced: out, JoinKeys: keys}, nil
}

func recordOf(p *table.Provenanced, name string) table.Record {
	if rec, ok := p.ProvenanceMap[name]; ok {
		return rec
	}

	return table.Record{}
}

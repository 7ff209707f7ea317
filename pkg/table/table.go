// Package table holds the tabular values exchanged between pipeline steps, together with the per cell provenance
// that records where each value came from.
package table

import (
	"github.com/pkg/errors"

	"github.com/askiada/forgiving-data/pkg/mat"
)

// ErrInconsistentProvenance is returned when a provenanced table breaks the isomorphism between its value and its
// provenance.
var ErrInconsistentProvenance = errors.New("inconsistent provenance")

// Row maps a column name to a scalar cell.
type Row map[string]any

// Table is an ordered list of rows with an ordered list of column names.
type Table struct {
	Headers []string `json:"headers"`
	Data    []Row    `json:"data"`
}

// ProvenanceRow maps a column name to the provenance key of the matching cell.
type ProvenanceRow map[string]string

// Record describes the origin of a provenance key: a dataset load descriptor or a step definition.
type Record map[string]any

// Provenanced is a table whose every cell carries a provenance key, each key being described in ProvenanceMap.
type Provenanced struct {
	Value         Table             `json:"value"`
	Provenance    []ProvenanceRow   `json:"provenance"`
	ProvenanceMap map[string]Record `json:"provenanceMap"`
	// ProvenanceKey is the key of the step or dataset which produced the table, when known.
	ProvenanceKey string `json:"provenanceKey,omitempty"`
}

// Stamp returns a provenance isomorphic to rows where every cell carries key.
func Stamp(rows []Row, key string) []ProvenanceRow {
	out := make([]ProvenanceRow, len(rows))
	for i, row := range rows {
		prov := make(ProvenanceRow, len(row))
		for col := range row {
			prov[col] = key
		}

		out[i] = prov
	}

	return out
}

// New wraps t as a provenanced table wholly produced by key.
func New(t Table, key string, record Record) *Provenanced {
	p := &Provenanced{
		Value:         t,
		Provenance:    Stamp(t.Data, key),
		ProvenanceMap: map[string]Record{},
		ProvenanceKey: key,
	}

	if record != nil {
		p.ProvenanceMap[key] = record
	}

	return p
}

// Validate checks that every cell has a provenance key and that every key is described in the provenance map.
func (p *Provenanced) Validate() error {
	if len(p.Provenance) != len(p.Value.Data) {
		return errors.Wrapf(ErrInconsistentProvenance, "%d rows but %d provenance rows",
			len(p.Value.Data), len(p.Provenance))
	}

	for i, row := range p.Value.Data {
		for col, v := range row {
			if v == nil {
				continue
			}

			key, ok := p.Provenance[i][col]
			if !ok {
				return errors.Wrapf(ErrInconsistentProvenance, "row %d column %q has no provenance", i, col)
			}

			if _, ok := p.ProvenanceMap[key]; !ok {
				return errors.Wrapf(ErrInconsistentProvenance, "provenance key %q is not described", key)
			}
		}
	}

	return nil
}

// Tree renders p as a generic tree of maps and slices.
func (p *Provenanced) Tree() map[string]any {
	headers := make([]any, len(p.Value.Headers))
	for i, h := range p.Value.Headers {
		headers[i] = h
	}

	provMap := make(map[string]any, len(p.ProvenanceMap))
	for k, rec := range p.ProvenanceMap {
		provMap[k] = map[string]any(rec)
	}

	return map[string]any{
		"value": map[string]any{
			"headers": headers,
			"data":    RowsTree(p.Value.Data),
		},
		"provenance":    ProvenanceTree(p.Provenance),
		"provenanceMap": provMap,
		"provenanceKey": p.ProvenanceKey,
	}
}

// Lookup returns the member of p at path, using the member names of its JSON encoding. The empty path returns p.
func (p *Provenanced) Lookup(path []string) (any, bool) {
	if len(path) == 0 {
		return p, true
	}

	if len(path) == 1 && path[0] == "value" {
		return p.Value, true
	}

	return mat.Lookup(p.Tree(), path)
}

// Filter returns the rows of p, and their provenance, for which keep returns true.
func (p *Provenanced) Filter(keep func(Row) bool) *Provenanced {
	out := &Provenanced{
		Value:         Table{Headers: p.Value.Headers},
		ProvenanceMap: p.ProvenanceMap,
		ProvenanceKey: p.ProvenanceKey,
	}

	for i, row := range p.Value.Data {
		if !keep(row) {
			continue
		}

		out.Value.Data = append(out.Value.Data, row)
		out.Provenance = append(out.Provenance, p.Provenance[i])
	}

	return out
}

// Headers returns the union of the given header lists, in order of first appearance.
func Headers(lists ...[]string) []string {
	seen := make(map[string]struct{})
	out := []string{}

	for _, list := range lists {
		for _, h := range list {
			if _, ok := seen[h]; ok {
				continue
			}

			seen[h] = struct{}{}
			out = append(out, h)
		}
	}

	return out
}

// MergeProvenanceMaps returns a map holding every entry of maps, later maps winning.
func MergeProvenanceMaps(maps ...map[string]Record) map[string]Record {
	out := make(map[string]Record)
	for _, m := range maps {
		for k, v := range m {
			out[k] = v
		}
	}

	return out
}

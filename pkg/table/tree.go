package table

import (
	"github.com/pkg/errors"
)

// RowsTree converts rows to a slice of plain maps, suitable as a mat layer.
func RowsTree(rows []Row) []any {
	out := make([]any, len(rows))
	for i, row := range rows {
		out[i] = map[string]any(row)
	}

	return out
}

// ProvenanceTree converts provenance rows to a slice of plain maps, suitable as a mat layer provenance.
func ProvenanceTree(rows []ProvenanceRow) []any {
	out := make([]any, len(rows))
	for i, row := range rows {
		m := make(map[string]any, len(row))
		for k, v := range row {
			m[k] = v
		}

		out[i] = m
	}

	return out
}

// RowsFromTree converts a slice of plain maps back to rows. Missing rows become empty rows.
func RowsFromTree(tree any) ([]Row, error) {
	if tree == nil {
		return nil, nil
	}

	list, ok := tree.([]any)
	if !ok {
		return nil, errors.Errorf("expected a list of rows, got %T", tree)
	}

	out := make([]Row, len(list))
	for i, item := range list {
		switch r := item.(type) {
		case nil:
			out[i] = Row{}
		case map[string]any:
			out[i] = Row(r)
		case Row:
			out[i] = r
		default:
			return nil, errors.Errorf("row %d: expected a map, got %T", i, item)
		}
	}

	return out, nil
}

// ProvenanceFromTree converts a slice of plain maps of strings back to provenance rows.
func ProvenanceFromTree(tree any) ([]ProvenanceRow, error) {
	if tree == nil {
		return nil, nil
	}

	list, ok := tree.([]any)
	if !ok {
		return nil, errors.Errorf("expected a list of provenance rows, got %T", tree)
	}

	out := make([]ProvenanceRow, len(list))
	for i, item := range list {
		row := ProvenanceRow{}

		m, _ := item.(map[string]any)
		for k, v := range m {
			s, ok := v.(string)
			if !ok {
				return nil, errors.Errorf("row %d column %q: provenance must be a string, got %T", i, k, v)
			}

			row[k] = s
		}

		out[i] = row
	}

	return out, nil
}

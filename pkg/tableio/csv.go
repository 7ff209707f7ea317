// Package tableio reads and writes tables and provenanced tables.
//
// A provenanced table written to <base>.csv is stored as three sibling files: the value itself, its provenance in
// <base>-provenance.csv and its provenance map in <base>-provenanceMap.json.
package tableio

import (
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/askiada/forgiving-data/pkg/table"
)

var numberPattern = regexp.MustCompile(`^\s*-?(\d+\.?|\.\d+|\d+\.\d+)([eE][-+]?\d+)?\s*$`)

// Typed converts a CSV cell to a number, a boolean or a string. Empty cells are absent and yield nil.
func Typed(cell string) any {
	switch {
	case cell == "":
		return nil
	case cell == "true" || cell == "TRUE":
		return true
	case cell == "false" || cell == "FALSE":
		return false
	case numberPattern.MatchString(cell):
		f, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
		if err == nil {
			return f
		}
	}

	return cell
}

// Text converts a cell back to its CSV text.
func Text(v any) string {
	switch c := v.(type) {
	case nil:
		return ""
	case string:
		return c
	case float64:
		return strconv.FormatFloat(c, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(c), 'f', -1, 32)
	case int:
		return strconv.Itoa(c)
	case int64:
		return strconv.FormatInt(c, 10)
	case bool:
		return strconv.FormatBool(c)
	default:
		return fmt.Sprint(v)
	}
}

// ParseCSV reads a CSV document whose first record holds the headers. Cells are typed with Typed and empty lines
// are skipped.
func ParseCSV(r io.Reader) (table.Table, error) {
	return parseCSV(r, Typed)
}

// ParseProvenanceCSV reads a provenance CSV document, every non empty cell being kept as a string.
func ParseProvenanceCSV(r io.Reader) ([]table.ProvenanceRow, error) {
	t, err := parseCSV(r, func(cell string) any {
		if cell == "" {
			return nil
		}

		return cell
	})
	if err != nil {
		return nil, err
	}

	out := make([]table.ProvenanceRow, len(t.Data))
	for i, row := range t.Data {
		prov := make(table.ProvenanceRow, len(row))
		for k, v := range row {
			prov[k] = v.(string)
		}

		out[i] = prov
	}

	return out, nil
}

func parseCSV(r io.Reader, typed func(string) any) (table.Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return table.Table{}, errors.Wrap(err, "unable to parse csv")
	}

	if len(records) == 0 {
		return table.Table{Headers: []string{}, Data: []table.Row{}}, nil
	}

	headers := records[0]
	out := table.Table{Headers: headers, Data: make([]table.Row, 0, len(records)-1)}

	for line, record := range records[1:] {
		if len(record) == 1 && record[0] == "" {
			continue
		}

		if len(record) > len(headers) {
			return table.Table{}, errors.Errorf("line %d has %d fields, expected at most %d", line+2, len(record), len(headers))
		}

		row := make(table.Row, len(record))
		for i, cell := range record {
			if v := typed(cell); v != nil {
				row[headers[i]] = v
			}
		}

		out.Data = append(out.Data, row)
	}

	return out, nil
}

// EncodeCSV writes t as CSV, columns in header order.
func EncodeCSV(w io.Writer, t table.Table) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(t.Headers); err != nil {
		return errors.Wrap(err, "unable to write headers")
	}

	record := make([]string, len(t.Headers))
	for i, row := range t.Data {
		for j, h := range t.Headers {
			record[j] = Text(row[h])
		}

		if err := writer.Write(record); err != nil {
			return errors.Wrapf(err, "unable to write row %d", i)
		}
	}

	writer.Flush()

	return errors.Wrap(writer.Error(), "unable to flush csv")
}

// EncodeProvenanceCSV writes provenance rows as CSV using the given headers.
func EncodeProvenanceCSV(w io.Writer, headers []string, rows []table.ProvenanceRow) error {
	data := make([]table.Row, len(rows))
	for i, prov := range rows {
		row := make(table.Row, len(prov))
		for k, v := range prov {
			row[k] = v
		}

		data[i] = row
	}

	return EncodeCSV(w, table.Table{Headers: headers, Data: data})
}

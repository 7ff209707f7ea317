package table_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/forgiving-data/pkg/table"
)

func sample() *table.Provenanced {
	return table.New(table.Table{
		Headers: []string{"id", "name"},
		Data: []table.Row{
			{"id": 1.0, "name": "a"},
			{"id": 2.0, "name": "b"},
		},
	}, "people", table.Record{"path": "people.csv"})
}

func TestNew(t *testing.T) {
	t.Parallel()

	p := sample()
	require.NoError(t, p.Validate())
	assert.Equal(t, []table.ProvenanceRow{
		{"id": "people", "name": "people"},
		{"id": "people", "name": "people"},
	}, p.Provenance)
	assert.Equal(t, map[string]table.Record{"people": {"path": "people.csv"}}, p.ProvenanceMap)
	assert.Equal(t, "people", p.ProvenanceKey)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		mutate func(p *table.Provenanced)
	}{
		"missing provenance row": {mutate: func(p *table.Provenanced) { p.Provenance = p.Provenance[:1] }},
		"missing cell":           {mutate: func(p *table.Provenanced) { delete(p.Provenance[0], "name") }},
		"undescribed key":        {mutate: func(p *table.Provenanced) { p.Provenance[1]["id"] = "other" }},
	}

	for name, tc := range tcs {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			p := sample()
			tc.mutate(p)
			assert.ErrorIs(t, p.Validate(), table.ErrInconsistentProvenance)
		})
	}
}

func TestLookup(t *testing.T) {
	t.Parallel()

	p := sample()

	tcs := map[string]struct {
		path     []string
		expected any
		found    bool
	}{
		"whole":           {path: nil, expected: p, found: true},
		"value":           {path: []string{"value"}, expected: p.Value, found: true},
		"headers":         {path: []string{"value", "headers"}, expected: []any{"id", "name"}, found: true},
		"cell":            {path: []string{"value", "data", "1", "name"}, expected: "b", found: true},
		"cell provenance": {path: []string{"provenance", "0", "id"}, expected: "people", found: true},
		"record member":   {path: []string{"provenanceMap", "people", "path"}, expected: "people.csv", found: true},
		"key":             {path: []string{"provenanceKey"}, expected: "people", found: true},
		"missing":         {path: []string{"value", "data", "5"}, found: false},
	}

	for name, tc := range tcs {
		got, ok := p.Lookup(tc.path)
		assert.Equal(t, tc.found, ok, name)
		assert.Equal(t, tc.expected, got, name)
	}
}

func TestFilter(t *testing.T) {
	t.Parallel()

	p := sample()
	p.Provenance[1]["name"] = "fix"
	p.ProvenanceMap["fix"] = table.Record{"type": "manual"}

	got := p.Filter(func(r table.Row) bool { return r["name"] == "b" })
	require.NoError(t, got.Validate())
	assert.Equal(t, []table.Row{{"id": 2.0, "name": "b"}}, got.Value.Data)
	assert.Equal(t, []table.ProvenanceRow{{"id": "people", "name": "fix"}}, got.Provenance)
	assert.Equal(t, []string{"id", "name"}, got.Value.Headers)
}

func TestHeaders(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"a", "b", "c"}, table.Headers([]string{"a", "b"}, []string{"b", "c", "a"}))
	assert.Equal(t, []string{}, table.Headers())
}

func TestTreeRoundTrip(t *testing.T) {
	t.Parallel()

	p := sample()

	rows, err := table.RowsFromTree(table.RowsTree(p.Value.Data))
	require.NoError(t, err)
	assert.Equal(t, p.Value.Data, rows)

	prov, err := table.ProvenanceFromTree(table.ProvenanceTree(p.Provenance))
	require.NoError(t, err)
	assert.Equal(t, p.Provenance, prov)

	_, err = table.RowsFromTree("nope")
	assert.Error(t, err)
	_, err = table.ProvenanceFromTree([]any{map[string]any{"a": 1}})
	assert.Error(t, err)
}

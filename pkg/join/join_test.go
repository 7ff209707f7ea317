package join_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/forgiving-data/pkg/join"
	"github.com/askiada/forgiving-data/pkg/table"
)

func observations() *table.Provenanced {
	return table.New(table.Table{
		Headers: []string{"ID", "Species", "Date"},
		Data: []table.Row{
			{"ID": 1.0, "Species": "Bombus", "Date": "2021-05-01"},
			{"ID": 2.0, "Species": "Apis", "Date": "2021-05-02"},
			{"ID": 3.0, "Species": "Vespa", "Date": "2021-05-03"},
			{"ID": 4.0, "Species": "Bombus", "Date": "2021-05-04"},
		},
	}, "left", table.Record{"path": "joinLeft.csv"})
}

func taxa() *table.Provenanced {
	return table.New(table.Table{
		Headers: []string{"taxonID", "scientificName", "vernacularName"},
		Data: []table.Row{
			{"taxonID": 10.0, "scientificName": "Bombus", "vernacularName": "bumblebee"},
			{"taxonID": 11.0, "scientificName": "Apis", "vernacularName": "honeybee"},
			{"taxonID": 12.0, "scientificName": "Osmia", "vernacularName": "mason bee"},
		},
	}, "right", table.Record{"path": "joinRight.csv"})
}

func outputColumns(t *testing.T) []join.Column {
	t.Helper()

	cols, err := join.ParseColumns([]any{
		map[string]any{"observationID": "left.ID"},
		map[string]any{"taxonID": "right.taxonID"},
		map[string]any{"observationDate": "left.Date"},
		map[string]any{"taxonName": "right.scientificName"},
		map[string]any{"vernacularName": "right.vernacularName"},
	})
	require.NoError(t, err)

	return cols
}

func TestForgiving(t *testing.T) {
	t.Parallel()

	inner := []table.Row{
		{"observationID": 4.0, "taxonID": 10.0, "observationDate": "2021-05-04", "taxonName": "Bombus", "vernacularName": "bumblebee"},
		{"observationID": 2.0, "taxonID": 11.0, "observationDate": "2021-05-02", "taxonName": "Apis", "vernacularName": "honeybee"},
	}
	innerProv := []table.ProvenanceRow{
		{"observationID": "left", "taxonID": "right", "observationDate": "left", "taxonName": "right", "vernacularName": "right"},
		{"observationID": "left", "taxonID": "right", "observationDate": "left", "taxonName": "right", "vernacularName": "right"},
	}
	leftOnly := table.Row{"observationID": 3.0, "observationDate": "2021-05-03"}
	leftOnlyProv := table.ProvenanceRow{"observationID": "left", "observationDate": "left"}
	rightOnly := table.Row{"taxonID": 12.0, "taxonName": "Osmia", "vernacularName": "mason bee"}
	rightOnlyProv := table.ProvenanceRow{"taxonID": "right", "taxonName": "right", "vernacularName": "right"}

	tcs := map[string]struct {
		outerLeft    bool
		outerRight   bool
		expectedData []table.Row
		expectedProv []table.ProvenanceRow
	}{
		"inner": {
			expectedData: inner,
			expectedProv: innerProv,
		},
		"outer left": {
			outerLeft:    true,
			expectedData: append(append([]table.Row{}, inner...), leftOnly),
			expectedProv: append(append([]table.ProvenanceRow{}, innerProv...), leftOnlyProv),
		},
		"outer right": {
			outerRight:   true,
			expectedData: append(append([]table.Row{}, inner...), rightOnly),
			expectedProv: append(append([]table.ProvenanceRow{}, innerProv...), rightOnlyProv),
		},
		"full outer": {
			outerLeft:    true,
			outerRight:   true,
			expectedData: append(append([]table.Row{}, inner...), leftOnly, rightOnly),
			expectedProv: append(append([]table.ProvenanceRow{}, innerProv...), leftOnlyProv, rightOnlyProv),
		},
	}

	for name, tc := range tcs {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			got, err := join.Forgiving(context.Background(), join.Options{
				Left:          observations(),
				Right:         taxa(),
				OuterLeft:     tc.outerLeft,
				OuterRight:    tc.outerRight,
				OutputColumns: outputColumns(t),
			})
			require.NoError(t, err)
			assert.Equal(t, join.Keys{Left: "Species", Right: "scientificName", Count: 2}, got.JoinKeys)
			assert.Equal(t, []string{"observationID", "taxonID", "observationDate", "taxonName", "vernacularName"},
				got.Value.Headers)
			assert.Equal(t, tc.expectedData, got.Value.Data)
			assert.Equal(t, tc.expectedProv, got.Provenance)
			assert.Equal(t, map[string]table.Record{
				"left":  {"path": "joinLeft.csv"},
				"right": {"path": "joinRight.csv"},
			}, got.ProvenanceMap)
			require.NoError(t, got.Validate())
		})
	}
}

func TestForgivingNoCommonValues(t *testing.T) {
	t.Parallel()

	left := table.New(table.Table{
		Headers: []string{"a", "b"},
		Data:    []table.Row{{"a": "x", "b": "y"}, {"a": "z", "b": "y"}},
	}, "l", nil)
	right := table.New(table.Table{
		Headers: []string{"c"},
		Data:    []table.Row{{"c": "w"}},
	}, "r", nil)

	got, err := join.Forgiving(context.Background(), join.Options{
		Left:          left,
		Right:         right,
		OuterLeft:     true,
		OutputColumns: []join.Column{{Name: "A", Dataset: "l", Source: "a"}, {Name: "C", Dataset: "r", Source: "c"}},
	})
	require.NoError(t, err)
	assert.Equal(t, join.Keys{Left: "a", Right: "c", Count: 0}, got.JoinKeys)
	assert.Equal(t, []table.Row{{"A": "x"}, {"A": "z"}}, got.Value.Data)
	assert.Equal(t, map[string]table.Record{"l": {}, "r": {}}, got.ProvenanceMap)
}

func TestForgivingTieKeepsFirstPair(t *testing.T) {
	t.Parallel()

	left := table.New(table.Table{
		Headers: []string{"a", "b"},
		Data:    []table.Row{{"a": "x", "b": "x"}},
	}, "l", nil)
	right := table.New(table.Table{
		Headers: []string{"c", "d"},
		Data:    []table.Row{{"c": "x", "d": "x"}},
	}, "r", nil)

	got, err := join.Forgiving(context.Background(), join.Options{
		Left:          left,
		Right:         right,
		OutputColumns: []join.Column{{Name: "b", Dataset: "l", Source: "b"}, {Name: "d", Dataset: "r", Source: "d"}},
	})
	require.NoError(t, err)
	assert.Equal(t, join.Keys{Left: "a", Right: "c", Count: 1}, got.JoinKeys)
	assert.Equal(t, []table.Row{{"b": "x", "d": "x"}}, got.Value.Data)
}

func TestForgivingMatchesAcrossTypes(t *testing.T) {
	t.Parallel()

	left := table.New(table.Table{Headers: []string{"id"}, Data: []table.Row{{"id": 7.0}}}, "l", nil)
	right := table.New(table.Table{Headers: []string{"id"}, Data: []table.Row{{"id": "7"}}}, "r", nil)

	got, err := join.Forgiving(context.Background(), join.Options{
		Left:          left,
		Right:         right,
		OutputColumns: []join.Column{{Name: "id", Dataset: "l", Source: "id"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, got.JoinKeys.Count)
}

func TestForgivingErrors(t *testing.T) {
	t.Parallel()

	empty := table.New(table.Table{}, "empty", nil)

	tcs := map[string]struct {
		opts     join.Options
		expected error
	}{
		"missing left": {
			opts:     join.Options{Right: taxa()},
			expected: join.ErrMissingInput,
		},
		"no columns": {
			opts:     join.Options{Left: observations(), Right: empty},
			expected: join.ErrNoColumns,
		},
		"unknown dataset": {
			opts: join.Options{
				Left:          observations(),
				Right:         taxa(),
				OutputColumns: []join.Column{{Name: "x", Dataset: "other", Source: "ID"}},
			},
			expected: join.ErrUnknownDataset,
		},
		"same dataset": {
			opts:     join.Options{Left: observations(), Right: observations()},
			expected: join.ErrSameDataset,
		},
	}

	for name, tc := range tcs {
		_, err := join.Forgiving(context.Background(), tc.opts)
		assert.ErrorIs(t, err, tc.expected, name)
	}
}

func TestParseColumns(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		tree      any
		order     []string
		expected  []join.Column
		expectErr bool
	}{
		"ordered list": {
			tree: []any{map[string]any{"z": "left.a"}, map[string]any{"y": "right.b.c"}},
			expected: []join.Column{
				{Name: "z", Dataset: "left", Source: "a"},
				{Name: "y", Dataset: "right", Source: "b.c"},
			},
		},
		"map in declaration order": {
			tree:  map[string]any{"Zone": "l.zone", "Name": "r.name", "Address": "l.addr"},
			order: []string{"Zone", "Name", "Address"},
			expected: []join.Column{
				{Name: "Zone", Dataset: "l", Source: "zone"},
				{Name: "Name", Dataset: "r", Source: "name"},
				{Name: "Address", Dataset: "l", Source: "addr"},
			},
		},
		"undeclared keys last": {
			tree:  map[string]any{"z": "left.a", "y": "right.b", "x": "left.c"},
			order: []string{"z", "gone"},
			expected: []join.Column{
				{Name: "z", Dataset: "left", Source: "a"},
				{Name: "x", Dataset: "left", Source: "c"},
				{Name: "y", Dataset: "right", Source: "b"},
			},
		},
		"map without order": {
			tree: map[string]any{"z": "left.a", "y": "right.b"},
			expected: []join.Column{
				{Name: "y", Dataset: "right", Source: "b"},
				{Name: "z", Dataset: "left", Source: "a"},
			},
		},
		"missing dot":        {tree: map[string]any{"z": "left"}, expectErr: true},
		"not a string":       {tree: map[string]any{"z": 3}, expectErr: true},
		"list entry too big": {tree: []any{map[string]any{"a": "l.a", "b": "l.b"}}, expectErr: true},
		"scalar":             {tree: "left.a", expectErr: true},
	}

	for name, tc := range tcs {
		got, err := join.ParseColumns(tc.tree, tc.order...)
		if tc.expectErr {
			assert.Error(t, err, name)
			continue
		}

		require.NoError(t, err, name)
		assert.Equal(t, tc.expected, got, name)
	}
}

package cli_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/forgiving-data/internal/cli"
	"github.com/askiada/forgiving-data/pkg/tableio"
)

const definition = `
type: species
elements:
  guard:
    type: fileNotExists
    filePath: out/species.csv
  species:
    type: loadCSV
    path: species.csv
    after: "{guard}.data"
  sightings:
    type: loadCSV
    path: sightings.csv
  joined:
    type: forgivingJoin
    left: "{species}.data"
    right: "{sightings}.data"
    outputColumns:
      - name: species.scientificName
      - count: sightings.count
  output:
    type: csvFileOutput
    input: "{joined}.data"
    filePath: out/species.csv
    writeProvenance: true
`

func setup(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	files := map[string]string{
		"defs/species.yaml": definition,
		"species.csv":       "scientificName,rank\nQuercus robur,species\nRosa canina,species\n",
		"sightings.csv":     "taxon,count\nRosa canina,4\nQuercus robur,2\nPinus sylvestris,1\n",
		"run.yaml":          "loadDirectory: defs\nexecPipeline: species\n",
	}

	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	}

	return dir
}

func execute(args ...string) (string, string, error) {
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}

	cmd := cli.NewRootCommand(stdout, stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())

	return stdout.String(), stderr.String(), err
}

func TestRun(t *testing.T) {
	t.Parallel()

	dir := setup(t)
	dotFile := filepath.Join(dir, "graph.dot")

	stdout, stderr, err := execute(filepath.Join(dir, "run.yaml"), "--draw", dotFile, "--measure", "--log-format", "json")
	require.NoError(t, err, stderr)

	assert.Contains(t, stdout, "pipeline species produced 2 rows and 2 columns from species.output")
	assert.Contains(t, stderr, `"msg":"step timings"`)

	got, err := tableio.ReadFiles(filepath.Join(dir, "out", "species.csv"))
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "count"}, got.Value.Headers)
	assert.Len(t, got.Value.Data, 2)
	assert.Contains(t, got.ProvenanceMap, "species")
	assert.Contains(t, got.ProvenanceMap, "sightings")

	dot, err := os.ReadFile(dotFile)
	require.NoError(t, err)
	assert.Contains(t, string(dot), `"species.joined" -> "species.output"`)

	// The output now exists, so the guard halts the second run without failing it.
	_, stderr, err = execute(filepath.Join(dir, "run.yaml"))
	require.NoError(t, err)
	assert.Contains(t, stderr, "pipeline halted")
}

func TestRunErrors(t *testing.T) {
	t.Parallel()

	dir := setup(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("execPipeline: nothing\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"),
		[]byte("loadDirectory: defs\nexecPipeline: species\n"), 0o600))
	require.NoError(t, os.Remove(filepath.Join(dir, "sightings.csv")))

	tcs := map[string]struct {
		args []string
		code int
	}{
		"invalid log level": {
			args: []string{filepath.Join(dir, "run.yaml"), "--log-level", "loud"},
			code: 2,
		},
		"invalid log format": {
			args: []string{filepath.Join(dir, "run.yaml"), "--log-format", "xml"},
			code: 2,
		},
		"unknown pipeline": {
			args: []string{filepath.Join(dir, "bad.yaml")},
			code: 2,
		},
		"missing run file": {
			args: []string{filepath.Join(dir, "missing.yaml")},
			code: 2,
		},
		"failing step": {
			args: []string{filepath.Join(dir, "broken.yaml")},
			code: 1,
		},
	}

	for name, tc := range tcs {
		tc := tc

		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, _, err := execute(tc.args...)
			require.Error(t, err)

			var exitErr *cli.ExitError
			require.True(t, errors.As(err, &exitErr))
			assert.Equal(t, tc.code, exitErr.Code)
		})
	}

	_, _, err := execute()
	assert.Error(t, err)
}

package runconfig_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/forgiving-data/internal/runconfig"
)

func write(t *testing.T, path, content string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestLoad(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		file      string
		content   string
		pipelines []string
		err       error
	}{
		"yaml single pipeline": {
			file:      "run.yaml",
			content:   "loadDirectory: [defs]\nloadPipeline: [extra/extra.json]\nexecPipeline: main\n",
			pipelines: []string{"main"},
		},
		"json merged pipelines": {
			file:      "run.json",
			content:   `{"loadDirectory": ["defs"], "execMergedPipeline": ["main", "extra"], "loadPipeline": ["extra/extra.json"]}`,
			pipelines: []string{"main", "extra"},
		},
		"both exec fields": {
			file:    "run.yaml",
			content: "execPipeline: main\nexecMergedPipeline: [main]\n",
			err:     runconfig.ErrInvalidConfig,
		},
		"no exec field": {
			file:    "run.yaml",
			content: "loadDirectory: [defs]\n",
			err:     runconfig.ErrInvalidConfig,
		},
	}

	for name, tc := range tcs {
		tc := tc

		t.Run(name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			write(t, filepath.Join(dir, "defs", "main.yaml"), "type: main\nelements: {a: {type: loadCSV, path: a.csv}}\n")
			write(t, filepath.Join(dir, "extra", "extra.json"), `{"type": "extra", "elements": {}}`)
			write(t, filepath.Join(dir, tc.file), tc.content)

			cfg, err := runconfig.Load(filepath.Join(dir, tc.file))
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.pipelines, cfg.Pipelines())
			assert.Equal(t, filepath.Join(dir, "defs"), cfg.Resolve("defs"))

			defs, err := cfg.Definitions()
			require.NoError(t, err)
			assert.True(t, defs.Has("main"))
			assert.True(t, defs.Has("extra"))
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := runconfig.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

package tableio

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/askiada/forgiving-data/internal/ctxlog"
	"github.com/askiada/forgiving-data/pkg/table"
)

// ProvenancePaths returns the provenance and provenance map paths stored alongside filePath.
func ProvenancePaths(filePath string) (provenancePath, provenanceMapPath string) {
	base := strings.TrimSuffix(filePath, filepath.Ext(filePath))

	return base + "-provenance.csv", base + "-provenanceMap.json"
}

// LoadCSVFile reads a CSV file into a table.
func LoadCSVFile(path string) (table.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return table.Table{}, errors.Wrapf(err, "unable to open %s", path)
	}
	defer f.Close()

	t, err := ParseCSV(f)
	if err != nil {
		return table.Table{}, errors.Wrapf(err, "unable to read %s", path)
	}

	return t, nil
}

// EncodeJSON renders v as indented JSON terminated by a newline.
func EncodeJSON(v any) ([]byte, error) {
	out, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return nil, errors.Wrap(err, "unable to encode json")
	}

	return append(out, '\n'), nil
}

type outputFile struct {
	path    string
	content []byte
}

// WriteFiles writes the value of p to filePath, and with writeProvenance its provenance and provenance map to the
// sibling files named by ProvenancePaths. Missing directories are created.
func WriteFiles(ctx context.Context, filePath string, p *table.Provenanced, writeProvenance bool) error {
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return errors.Wrapf(err, "unable to create directory for %s", filePath)
	}

	value := &bytes.Buffer{}
	if err := EncodeCSV(value, p.Value); err != nil {
		return err
	}

	files := []outputFile{{path: filePath, content: value.Bytes()}}

	if writeProvenance {
		provPath, mapPath := ProvenancePaths(filePath)

		prov := &bytes.Buffer{}
		if err := EncodeProvenanceCSV(prov, p.Value.Headers, p.Provenance); err != nil {
			return err
		}

		provMap, err := EncodeJSON(p.ProvenanceMap)
		if err != nil {
			return err
		}

		files = append(files,
			outputFile{path: provPath, content: prov.Bytes()},
			outputFile{path: mapPath, content: provMap},
		)
	}

	logger := ctxlog.FromContext(ctx)

	for _, f := range files {
		if err := os.WriteFile(f.path, f.content, 0o644); err != nil { //nolint:gosec
			return errors.Wrapf(err, "unable to write %s", f.path)
		}

		logger.Info("written file", "path", f.path, "bytes", len(f.content),
			"columns", len(p.Value.Headers), "rows", len(p.Value.Data))
	}

	return nil
}

// ReadFiles reads back a provenanced table written by WriteFiles with its provenance.
func ReadFiles(filePath string) (*table.Provenanced, error) {
	value, err := LoadCSVFile(filePath)
	if err != nil {
		return nil, err
	}

	provPath, mapPath := ProvenancePaths(filePath)

	provFile, err := os.Open(provPath)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open %s", provPath)
	}
	defer provFile.Close()

	prov, err := ParseProvenanceCSV(provFile)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to read %s", provPath)
	}

	rawMap, err := os.ReadFile(mapPath)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to read %s", mapPath)
	}

	provMap := map[string]table.Record{}
	if err := json.Unmarshal(rawMap, &provMap); err != nil {
		return nil, errors.Wrapf(err, "unable to decode %s", mapPath)
	}

	return &table.Provenanced{Value: value, Provenance: prov, ProvenanceMap: provMap}, nil
}

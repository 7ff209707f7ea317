// Package steps holds the built-in transforms: loading and fetching CSV datasets, the forgiving join, row filters,
// column rewrites and file output.
package steps

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"

	"github.com/askiada/forgiving-data/internal/ctxlog"
	"github.com/askiada/forgiving-data/pkg/join"
	"github.com/askiada/forgiving-data/pkg/pipeline"
	"github.com/askiada/forgiving-data/pkg/table"
	"github.com/askiada/forgiving-data/pkg/tableio"
)

// Transform names.
const (
	LoadCSV       = "loadCSV"
	FetchURLCSV   = "fetchUrlCSV"
	ForgivingJoin = "forgivingJoin"
	Filter        = "filter"
	TruncateDate  = "truncateDate"
	CSVFileOutput = "csvFileOutput"
	FileNotExists = "fileNotExists"
)

// ErrFetch is returned when a dataset could not be fetched.
var ErrFetch = errors.New("unable to fetch dataset")

// Catalog holds what the built-in transforms share.
type Catalog struct {
	// BaseDir resolves relative file paths found in step options.
	BaseDir string
	Client  *retryablehttp.Client
	// Now stamps fetched datasets.
	Now func() time.Time
}

// Option configures a Catalog.
type Option func(c *Catalog)

// WithBaseDir resolves relative file paths against dir.
func WithBaseDir(dir string) Option {
	return func(c *Catalog) {
		c.BaseDir = dir
	}
}

// WithHTTPClient replaces the default retrying client.
func WithHTTPClient(client *retryablehttp.Client) Option {
	return func(c *Catalog) {
		c.Client = client
	}
}

// WithLogger makes the HTTP client log its attempts to logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Catalog) {
		c.Client.Logger = logger
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Catalog) {
		c.Now = now
	}
}

// NewCatalog creates a catalog with a retrying HTTP client.
func NewCatalog(opts ...Option) *Catalog {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = 100 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.Logger = nil

	c := &Catalog{Client: client, Now: time.Now}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Register adds every built-in transform to reg.
func (c *Catalog) Register(reg *pipeline.Registry) {
	reg.Register(LoadCSV, pipeline.Transform{
		Grade:             pipeline.SelfProvenance,
		Fn:                c.loadCSV,
		DynamicProvenance: []string{"path"},
	})
	reg.Register(FetchURLCSV, pipeline.Transform{
		Grade:             pipeline.SelfProvenance,
		Fn:                c.fetchURLCSV,
		DynamicProvenance: []string{"url"},
	})
	reg.Register(ForgivingJoin, pipeline.Transform{Grade: pipeline.Plain, Fn: forgivingJoin})
	reg.Register(Filter, pipeline.Transform{Grade: pipeline.Plain, Fn: filter})
	reg.Register(TruncateDate, pipeline.Transform{Grade: pipeline.OverlayProvenance, Fn: truncateDate})
	reg.Register(CSVFileOutput, pipeline.Transform{Grade: pipeline.Plain, Fn: c.csvFileOutput})
	reg.Register(FileNotExists, pipeline.Transform{Grade: pipeline.Plain, Fn: c.fileNotExists})
}

func (c *Catalog) path(p string) string {
	if filepath.IsAbs(p) || c.BaseDir == "" {
		return p
	}

	return filepath.Join(c.BaseDir, p)
}

func (c *Catalog) loadCSV(ctx context.Context, args *pipeline.Args) (*table.Provenanced, error) {
	path, err := args.String("path")
	if err != nil {
		return nil, err
	}

	t, err := tableio.LoadCSVFile(c.path(path))
	if err != nil {
		return nil, err
	}

	ctxlog.FromContext(ctx).Info("loaded dataset", "path", path, "rows", len(t.Data), "columns", len(t.Headers))

	return &table.Provenanced{Value: t}, nil
}

func (c *Catalog) fetchURLCSV(ctx context.Context, args *pipeline.Args) (*table.Provenanced, error) {
	url, err := args.String("url")
	if err != nil {
		return nil, err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to create request for %s", url)
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(ErrFetch, "%s: %v", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.Wrapf(ErrFetch, "%s: status %s", url, resp.Status)
	}

	t, err := tableio.ParseCSV(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to parse %s", url)
	}

	fetchedAt := c.Now().UTC().Format(time.RFC3339)
	ctxlog.FromContext(ctx).Info("fetched dataset", "url", url, "rows", len(t.Data), "fetchedAt", fetchedAt)

	return &table.Provenanced{
		Value:         t,
		ProvenanceMap: map[string]table.Record{args.ProvenanceKey: {"fetchedAt": fetchedAt}},
	}, nil
}

func forgivingJoin(ctx context.Context, args *pipeline.Args) (*table.Provenanced, error) {
	left, err := args.Table("left")
	if err != nil {
		return nil, err
	}

	right, err := args.Table("right")
	if err != nil {
		return nil, err
	}

	columns, err := join.ParseColumns(args.Options["outputColumns"], args.Keys("outputColumns")...)
	if err != nil {
		return nil, err
	}

	res, err := join.Forgiving(ctx, join.Options{
		Left:          left,
		Right:         right,
		OuterLeft:     args.Bool("outerLeft"),
		OuterRight:    args.Bool("outerRight"),
		OutputColumns: columns,
	})
	if err != nil {
		return nil, err
	}

	return res.Provenanced, nil
}

func filter(ctx context.Context, args *pipeline.Args) (*table.Provenanced, error) {
	input, err := args.Table("input")
	if err != nil {
		return nil, err
	}

	column, err := args.String("column")
	if err != nil {
		return nil, err
	}

	notEmpty := args.Bool("notEmpty")
	value, hasValue := args.Options["value"]

	if !notEmpty && !hasValue {
		return nil, errors.Wrap(pipeline.ErrMissingOption, "filter needs a value or notEmpty")
	}

	want := fmt.Sprint(value)
	out := input.Filter(func(row table.Row) bool {
		cell, ok := row[column]
		if !ok || cell == nil {
			return false
		}

		if notEmpty && !hasValue {
			return fmt.Sprint(cell) != ""
		}

		return fmt.Sprint(cell) == want
	})

	ctxlog.FromContext(ctx).Debug("filtered rows", "column", column, "kept", len(out.Value.Data),
		"dropped", len(input.Value.Data)-len(out.Value.Data))

	return out, nil
}

const dateLength = len("2006-01-02")

// truncateDate returns the column cells cut to their date prefix. Rows it leaves empty keep their input cells.
func truncateDate(_ context.Context, args *pipeline.Args) (*table.Provenanced, error) {
	input, err := args.Table("input")
	if err != nil {
		return nil, err
	}

	column, err := args.String("column")
	if err != nil {
		return nil, err
	}

	out := table.Table{Headers: []string{column}, Data: make([]table.Row, len(input.Value.Data))}
	for i, row := range input.Value.Data {
		out.Data[i] = table.Row{}

		s, ok := row[column].(string)
		if !ok || len(s) <= dateLength {
			continue
		}

		out.Data[i][column] = s[:dateLength]
	}

	return &table.Provenanced{Value: out}, nil
}

func (c *Catalog) csvFileOutput(ctx context.Context, args *pipeline.Args) (*table.Provenanced, error) {
	input, err := args.Table("input")
	if err != nil {
		return nil, err
	}

	filePath, err := args.String("filePath")
	if err != nil {
		return nil, err
	}

	if err := tableio.WriteFiles(ctx, c.path(filePath), input, args.Bool("writeProvenance")); err != nil {
		return nil, err
	}

	return input, nil
}

// fileNotExists halts the pipeline when filePath exists. Its output is an empty table, which steps that must only
// run when the file is absent reference to depend on it.
func (c *Catalog) fileNotExists(_ context.Context, args *pipeline.Args) (*table.Provenanced, error) {
	filePath, err := args.String("filePath")
	if err != nil {
		return nil, err
	}

	_, err = os.Stat(c.path(filePath))

	switch {
	case err == nil:
		return nil, pipeline.SoftAbort(fmt.Sprintf("file %s already exists", filePath))
	case !os.IsNotExist(err):
		return nil, errors.Wrapf(err, "unable to check %s", filePath)
	}

	return table.New(table.Table{Headers: []string{}, Data: []table.Row{}}, args.ProvenanceKey, args.ProvenanceRecord), nil
}

// Package runconfig loads the run configuration naming the definitions to load and the pipeline to execute.
package runconfig

import (
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/askiada/forgiving-data/pkg/pipeline"
)

// ErrInvalidConfig is returned when a run configuration does not name exactly one pipeline to execute.
var ErrInvalidConfig = errors.New("invalid run configuration")

// Config is a run configuration. Relative paths are resolved against Dir, the directory holding the run file.
type Config struct {
	LoadDirectory      []string `mapstructure:"loadDirectory"`
	LoadPipeline       []string `mapstructure:"loadPipeline"`
	ExecPipeline       string   `mapstructure:"execPipeline"`
	ExecMergedPipeline []string `mapstructure:"execMergedPipeline"`

	Dir string `mapstructure:"-"`
}

// Load reads the JSON or YAML run file at path.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "unable to read run configuration %s", path)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrapf(err, "unable to decode run configuration %s", path)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to resolve %s", path)
	}

	cfg.Dir = filepath.Dir(abs)

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}

	return cfg, nil
}

// Validate checks that exactly one pipeline is to be executed.
func (c *Config) Validate() error {
	switch {
	case c.ExecPipeline != "" && len(c.ExecMergedPipeline) > 0:
		return errors.Wrap(ErrInvalidConfig, "execPipeline and execMergedPipeline are exclusive")
	case c.ExecPipeline == "" && len(c.ExecMergedPipeline) == 0:
		return errors.Wrap(ErrInvalidConfig, "one of execPipeline or execMergedPipeline is required")
	}

	return nil
}

// Pipelines returns the names of the definitions merged into the executed pipeline, in increasing priority.
func (c *Config) Pipelines() []string {
	if c.ExecPipeline != "" {
		return []string{c.ExecPipeline}
	}

	return c.ExecMergedPipeline
}

// Resolve returns p resolved against the directory of the run file.
func (c *Config) Resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}

	return filepath.Join(c.Dir, p)
}

// Definitions loads every definition file and directory the configuration names.
func (c *Config) Definitions() (*pipeline.Definitions, error) {
	defs := pipeline.NewDefinitions()

	for _, dir := range c.LoadDirectory {
		if err := defs.LoadDirectory(c.Resolve(dir)); err != nil {
			return nil, err
		}
	}

	for _, file := range c.LoadPipeline {
		if err := defs.LoadFile(c.Resolve(file)); err != nil {
			return nil, err
		}
	}

	return defs, nil
}

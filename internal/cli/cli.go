// Package cli builds the forgiving-data command.
package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/askiada/forgiving-data/internal/ctxlog"
	"github.com/askiada/forgiving-data/internal/runconfig"
	"github.com/askiada/forgiving-data/internal/steps"
	"github.com/askiada/forgiving-data/pkg/pipeline"
	"github.com/askiada/forgiving-data/pkg/pipeline/drawer"
	"github.com/askiada/forgiving-data/pkg/pipeline/measure"
	"github.com/askiada/forgiving-data/pkg/pipeline/model"
)

const envPrefix = "FORGIVING"

// ExitError is an error carrying the exit code of the process.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// NewRootCommand creates the command running the pipeline named by a run configuration file. Flags may also be set
// through FORGIVING_ prefixed environment variables, such as FORGIVING_LOG_LEVEL.
func NewRootCommand(stdout, stderr io.Writer) *cobra.Command {
	rc := &cobra.Command{
		Use:   "forgiving-data RUN_FILE",
		Short: "Run a data pipeline tracking the provenance of every cell.",
		Long: `Run a data pipeline tracking the provenance of every cell.

RUN_FILE is a JSON or YAML file naming the pipeline definitions to load
(loadDirectory, loadPipeline) and the pipeline to execute (execPipeline,
or execMergedPipeline to merge several definitions).
`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			if err := setAllConfig(v, cmd.Flags()); err != nil {
				return &ExitError{Code: 2, Message: err.Error()}
			}

			opts, err := optionsFrom(v)
			if err != nil {
				return err
			}

			return run(cmd.Context(), args[0], opts, stdout, stderr)
		},
	}

	flags := rc.Flags()
	flags.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	flags.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	flags.String("draw", "", "Write the dependency graph of the run to this DOT file.")
	flags.Bool("measure", false, "Log how long each step waited and ran.")

	rc.SetOut(stdout)
	rc.SetErr(stderr)

	return rc
}

// setAllConfig binds flags to v, with environment variables named after the flags as a fallback.
func setAllConfig(v *viper.Viper, flags *pflag.FlagSet) error {
	if err := v.BindPFlags(flags); err != nil {
		return err
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	return nil
}

type options struct {
	logLevel  string
	logFormat string
	draw      string
	measure   bool
}

func optionsFrom(v *viper.Viper) (*options, error) {
	opts := &options{
		logLevel:  strings.ToLower(v.GetString("log-level")),
		logFormat: strings.ToLower(v.GetString("log-format")),
		draw:      v.GetString("draw"),
		measure:   v.GetBool("measure"),
	}

	switch opts.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}

	if opts.logFormat != "text" && opts.logFormat != "json" {
		return nil, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	return opts, nil
}

func run(ctx context.Context, runFile string, opts *options, stdout, stderr io.Writer) error {
	logger := ctxlog.New(opts.logLevel, opts.logFormat, stderr)
	ctx = ctxlog.WithLogger(ctx, logger)

	cfg, err := runconfig.Load(runFile)
	if err != nil {
		return &ExitError{Code: 2, Message: err.Error()}
	}

	defs, err := cfg.Definitions()
	if err != nil {
		return &ExitError{Code: 2, Message: err.Error()}
	}

	reg := pipeline.NewRegistry()
	steps.NewCatalog(steps.WithBaseDir(cfg.Dir), steps.WithLogger(logger)).Register(reg)

	var (
		msr   *measure.DefaultMeasure
		hooks []model.PipelineOption
	)

	if opts.measure || opts.draw != "" {
		msr = measure.NewDefaultMeasure()
		hooks = append(hooks, measure.PipelineMeasure(msr))
	}

	if opts.draw != "" {
		hooks = append(hooks, drawer.PipelineDrawer(drawer.NewDOTDrawer(opts.draw), msr))
	}

	pipe, err := pipeline.New(ctx, defs, reg, cfg.Pipelines(), pipeline.WithPipelineOptions(hooks...))
	if err != nil {
		return &ExitError{Code: 2, Message: err.Error()}
	}

	out, err := pipe.Run(ctx)

	if opts.measure {
		for _, name := range msr.Names() {
			mt := msr.GetMetric(name)
			logger.Info("step timings", "step", name, "wait", mt.WaitDuration(), "compute", mt.ComputeDuration())
		}
	}

	if pipeline.IsSoftAbort(err) {
		logger.Warn("pipeline halted", "pipeline", pipe.Name(), "reason", err.Error())

		return nil
	}

	if err != nil {
		return &ExitError{Code: 1, Message: err.Error()}
	}

	fmt.Fprintf(stdout, "pipeline %s produced %d rows and %d columns from %s\n",
		pipe.Name(), len(out.Value.Data), len(out.Value.Headers), pipe.Terminal())

	return nil
}

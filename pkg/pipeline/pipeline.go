package pipeline

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/askiada/forgiving-data/internal/ctxlog"
	"github.com/askiada/forgiving-data/pkg/pipeline/model"
	"github.com/askiada/forgiving-data/pkg/table"
)

// Pipeline is an instantiated tree of steps, ready to run once.
type Pipeline struct {
	root      *node
	nodes     []*node
	hooks     []model.PipelineOption
	started   atomic.Bool
	startTime time.Time
}

// New instantiates the pipeline merging the named definitions, in increasing priority, and checks its dependency
// graph. Steps are not launched until Run.
func New(ctx context.Context, defs *Definitions, reg *Registry, names []string, opts ...Option) (*Pipeline, error) {
	b := newBuilder(defs, reg)
	for _, opt := range opts {
		opt(b)
	}

	root, err := b.build(names)
	if err != nil {
		return nil, err
	}

	pipe := &Pipeline{
		root:  root,
		nodes: b.nodes,
		hooks: b.hooks,
	}

	for _, opt := range pipe.hooks {
		err := opt.New()
		if err != nil {
			return nil, errors.Wrap(err, "unable to apply pipeline option")
		}
	}

	for _, n := range b.nodes {
		deps, err := b.dependencies(n)
		if err != nil {
			return nil, err
		}

		infos := make([]*model.StepInfo, len(deps))
		for i, d := range deps {
			infos[i] = d.info
		}

		for _, opt := range pipe.hooks {
			if err := opt.PrepareStep(n.info, infos); err != nil {
				return nil, errors.Wrapf(err, "unable to prepare %s", n)
			}
		}
	}

	ctxlog.FromContext(ctx).Debug("pipeline instantiated", "pipeline", root.String(), "elements", len(b.nodes),
		"terminal", root.terminal.String())

	return pipe, nil
}

// Name returns the name of the root pipeline.
func (p *Pipeline) Name() string {
	return p.root.name
}

// Terminal returns the dotted path of the element whose output is the output of the pipeline.
func (p *Pipeline) Terminal() string {
	return p.root.terminal.String()
}

// ProvenanceKeys returns the provenance key of every step, by dotted path.
func (p *Pipeline) ProvenanceKeys() map[string]string {
	out := map[string]string{}
	for _, n := range p.nodes {
		if !n.isPipeline() {
			out[n.String()] = n.key
		}
	}

	return out
}

// Run launches every step and returns the output of the pipeline terminal. The first error stops the run and is
// returned as raised, so a soft abort can be told apart with IsSoftAbort.
func (p *Pipeline) Run(ctx context.Context) (*table.Provenanced, error) {
	if !p.started.CompareAndSwap(false, true) {
		return nil, errors.Errorf("pipeline %s has already run", p.Name())
	}

	p.startTime = time.Now()
	logger := ctxlog.FromContext(ctx).With("pipeline", p.Name())
	logger.Info("running pipeline", "terminal", p.Terminal())

	dCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gCtx := errgroup.WithContext(dCtx)
	for _, n := range p.nodes {
		n := n
		g.Go(func() error {
			return p.run(gCtx, n)
		})
	}

	value, err := p.root.future.Wait(dCtx)
	if err != nil {
		cancel()
	}

	// The group keeps the first error raised, which is where a failure originates.
	if gErr := g.Wait(); gErr != nil && err != nil {
		err = gErr
	}

	if fErr := p.finishRun(); fErr != nil && err == nil {
		err = fErr
	}

	if err != nil {
		return nil, err
	}

	logger.Info("pipeline complete", "rows", len(value.Value.Data), "elapsed", time.Since(p.startTime))

	return value, nil
}

func (p *Pipeline) finishRun() error {
	for _, opt := range p.hooks {
		err := opt.Finish()
		if err != nil {
			return errors.Wrap(err, "unable to finish pipeline option")
		}
	}

	return nil
}

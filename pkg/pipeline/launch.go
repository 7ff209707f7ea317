package pipeline

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/askiada/forgiving-data/internal/ctxlog"
	"github.com/askiada/forgiving-data/pkg/mat"
	"github.com/askiada/forgiving-data/pkg/table"
)

const (
	definitionLayer = "definition"
	resolvedLayer   = "resolved"
)

// run waits for the dependencies of n, then settles its future. The returned error is the error n settled with.
func (p *Pipeline) run(ctx context.Context, n *node) error {
	if n.isPipeline() {
		value, err := n.terminal.future.Wait(ctx)
		n.future.settle(value, err)

		return err
	}

	value, err := p.launch(ctx, n)
	n.future.settle(value, err)

	return err
}

func (p *Pipeline) launch(ctx context.Context, n *node) (*table.Provenanced, error) {
	logger := ctxlog.FromContext(ctx).With("step", n.String())

	start := time.Now()

	args, err := p.resolveArgs(ctx, n)
	if err != nil {
		return nil, err
	}

	waited := time.Since(start)

	for _, h := range p.hooks {
		if err := h.OnStepLaunch(n.info, waited); err != nil {
			return nil, errors.Wrapf(err, "unable to launch %s", n)
		}
	}

	logger.Debug("launching step", "transform", n.transformID, "wait", waited)

	start = time.Now()

	value, err := n.transform.Fn(ctx, args)
	if err == nil {
		value, err = n.interpret(args, value)
	}

	if err != nil && !IsSoftAbort(err) {
		err = errors.Wrapf(err, "step %s", n)
	}

	elapsed := time.Since(start)

	for _, h := range p.hooks {
		if herr := h.OnStepComplete(n.info, elapsed, err); herr != nil && err == nil {
			err = errors.Wrapf(herr, "unable to complete %s", n)
		}
	}

	if err != nil {
		if IsSoftAbort(err) {
			logger.Warn("step halted the pipeline", "reason", err.Error())
		} else {
			logger.Error("step failed", "error", err)
		}

		return nil, err
	}

	logger.Debug("step complete", "rows", len(value.Value.Data), "elapsed", elapsed)

	return value, nil
}

// resolveArgs waits for the data n references and overlays it on the censored definition of n.
func (p *Pipeline) resolveArgs(ctx context.Context, n *node) (*Args, error) {
	record := mat.DeepCopy(n.record).(map[string]any)
	if len(n.waits) == 0 {
		return &Args{
			Options:          mat.DeepCopy(record).(map[string]any),
			ProvenanceKey:    n.key,
			ProvenanceRecord: record,
			order:            n.keys,
		}, nil
	}

	options := mat.New(mat.Layer{Value: record, Name: definitionLayer}, mat.Layer{Value: map[string]any{}, Name: resolvedLayer})
	if err := options.SetWritableLayer(resolvedLayer); err != nil {
		return nil, err
	}

	for _, w := range n.waits {
		// Upstream errors are passed on unchanged so that the run reports where they came from.
		output, err := w.target.future.Wait(ctx)
		if err != nil {
			return nil, err
		}

		if output == nil {
			return nil, errors.Wrapf(ErrNotADataStep, "%s: %s produced no data", w.Ref.Raw, w.target)
		}

		fetched, ok := output.Lookup(w.Ref.Path[1:])
		if !ok {
			return nil, errors.Wrapf(ErrUnresolvedReference, "%s: no member %s in the output of %s",
				w.Ref.Raw, mat.Path(w.Ref.Path[1:]).String(), w.target)
		}

		if err := options.Set(w.SourcePath, fetched); err != nil {
			return nil, errors.Wrapf(err, "unable to resolve %s", w.Ref.Raw)
		}
	}

	merged, err := options.Root()
	if err != nil {
		return nil, err
	}

	resolved, ok := merged.(map[string]any)
	if !ok {
		return nil, errors.Errorf("options of %s resolved to %T", n, merged)
	}

	for _, field := range n.transform.DynamicProvenance {
		v, ok := resolved[field]
		if _, isTable := v.(*table.Provenanced); ok && v != nil && !isTable {
			record[field] = mat.DeepCopy(v)
		}
	}

	n.record = record

	return &Args{Options: resolved, ProvenanceKey: n.key, ProvenanceRecord: record, order: n.keys}, nil
}

// interpret turns the output of the transform of n into the provenanced output of the step, according to its grade.
func (n *node) interpret(args *Args, out *table.Provenanced) (*table.Provenanced, error) {
	if out == nil {
		return nil, errors.Errorf("transform %s returned no table", n.transformID)
	}

	switch n.transform.Grade {
	case SelfProvenance:
		record := table.Record(deepMerge(args.ProvenanceRecord, out.ProvenanceMap[n.key]))

		return &table.Provenanced{
			Value:         out.Value,
			Provenance:    table.Stamp(out.Value.Data, n.key),
			ProvenanceMap: map[string]table.Record{n.key: record},
			ProvenanceKey: n.key,
		}, nil
	case OverlayProvenance:
		input, err := args.Table("input")
		if err != nil {
			return nil, err
		}

		return overlay(input, out.Value, n.key, args.ProvenanceRecord)
	default:
		res := *out
		if res.ProvenanceKey == "" {
			res.ProvenanceKey = n.key
		}

		return &res, nil
	}
}

// overlay lays rows over input. Cells defined by rows are attributed to key, the others keep their provenance.
func overlay(input *table.Provenanced, rows table.Table, key string, record table.Record) (*table.Provenanced, error) {
	m := mat.New(
		mat.Layer{Value: table.RowsTree(input.Value.Data), Name: "input", Provenance: table.ProvenanceTree(input.Provenance)},
		mat.Layer{Value: table.RowsTree(rows.Data), Name: key},
	)

	value, err := m.Root()
	if err != nil {
		return nil, errors.Wrap(err, "unable to overlay output")
	}

	provenance, err := m.Provenance()
	if err != nil {
		return nil, errors.Wrap(err, "unable to overlay provenance")
	}

	data, err := table.RowsFromTree(value)
	if err != nil {
		return nil, err
	}

	prov, err := table.ProvenanceFromTree(provenance)
	if err != nil {
		return nil, err
	}

	return &table.Provenanced{
		Value:         table.Table{Headers: table.Headers(input.Value.Headers, rows.Headers), Data: data},
		Provenance:    prov,
		ProvenanceMap: table.MergeProvenanceMaps(input.ProvenanceMap, map[string]table.Record{key: record}),
		ProvenanceKey: key,
	}, nil
}

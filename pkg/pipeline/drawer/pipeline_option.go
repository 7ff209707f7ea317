package drawer

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/askiada/forgiving-data/pkg/pipeline"
	"github.com/askiada/forgiving-data/pkg/pipeline/measure"
	"github.com/askiada/forgiving-data/pkg/pipeline/model"
)

type link struct {
	from, to string
}

type pipelineDrawer struct {
	Drawer
	m         measure.Measure
	startTime time.Time

	mu       sync.Mutex
	links    []link
	steps    []string
	outcomes map[string]error
	root     string
}

var (
	failedAttributes  = map[string]string{"color": "red", "penwidth": "2"}
	abortedAttributes = map[string]string{"color": "orange", "penwidth": "2"}
	pendingAttributes = map[string]string{"color": "gray", "fontcolor": "gray"}
)

func (pd *pipelineDrawer) New() error {
	pd.startTime = time.Now()
	pd.outcomes = map[string]error{}

	return nil
}

func (pd *pipelineDrawer) PrepareStep(step *model.StepInfo, dependencies []*model.StepInfo) error {
	attributes := map[string]string{"shape": "box"}
	if step.Type == model.PipelineType {
		attributes["shape"] = "folder"
		attributes["style"] = "dashed"
	}

	if pd.root == "" {
		pd.root = step.Name
	}

	if step.Type == model.StepType {
		pd.steps = append(pd.steps, step.Name)
	}

	err := pd.AddStep(step.Name, attributes)
	if err != nil {
		return err
	}

	// Dependencies may not be added yet, links wait for Finish.
	for _, dep := range dependencies {
		pd.links = append(pd.links, link{from: dep.Name, to: step.Name})
	}

	return nil
}

func (pd *pipelineDrawer) OnStepLaunch(step *model.StepInfo, waitDuration time.Duration) error {
	return nil
}

func (pd *pipelineDrawer) OnStepComplete(step *model.StepInfo, computationDuration time.Duration, err error) error {
	pd.mu.Lock()
	defer pd.mu.Unlock()

	pd.outcomes[step.Name] = err

	return nil
}

func (pd *pipelineDrawer) Finish() error {
	for _, l := range pd.links {
		err := pd.AddLink(l.from, l.to)
		if err != nil {
			return err
		}
	}

	if pd.m != nil {
		err := pd.SetTotalTime(pd.root, pd.startTime)
		if err != nil {
			return errors.Wrap(err, "unable to set total time")
		}

		err = pd.AddMeasure(pd.m)
		if err != nil {
			return errors.Wrap(err, "unable to add measure")
		}
	}

	err := pd.markOutcomes()
	if err != nil {
		return err
	}

	err = pd.Draw()
	if err != nil {
		return errors.Wrap(err, "unable to draw pipeline")
	}

	return nil
}

// markOutcomes highlights failed and aborted steps, and steps which never completed.
func (pd *pipelineDrawer) markOutcomes() error {
	pd.mu.Lock()
	defer pd.mu.Unlock()

	for _, name := range pd.steps {
		err, done := pd.outcomes[name]

		var attributes map[string]string

		switch {
		case !done:
			attributes = pendingAttributes
		case pipeline.IsSoftAbort(err):
			attributes = abortedAttributes
		case err != nil:
			attributes = failedAttributes
		default:
			continue
		}

		if err := pd.AddStep(name, attributes); err != nil {
			return err
		}
	}

	return nil
}

// PipelineDrawer draws the dependency graph of a run once it finishes. When measure is not nil, steps and links are
// annotated with its timings.
func PipelineDrawer(drawer Drawer, measure measure.Measure) model.PipelineOption {
	return &pipelineDrawer{Drawer: drawer, m: measure}
}

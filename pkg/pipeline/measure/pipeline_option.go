package measure

import (
	"time"

	"github.com/askiada/forgiving-data/pkg/pipeline/model"
)

type pipelineMeasure struct {
	Measure
}

func (pm *pipelineMeasure) New() error {
	return nil
}

func (pm *pipelineMeasure) PrepareStep(step *model.StepInfo, dependencies []*model.StepInfo) error {
	if step.Type != model.StepType {
		return nil
	}

	mt := pm.AddMetric(step.Name)
	for _, dep := range dependencies {
		mt.AddDependency(dep.Name)
	}

	return nil
}

func (pm *pipelineMeasure) OnStepLaunch(step *model.StepInfo, waitDuration time.Duration) error {
	if mt := pm.GetMetric(step.Name); mt != nil {
		mt.SetWaitDuration(waitDuration)
	}

	return nil
}

func (pm *pipelineMeasure) OnStepComplete(step *model.StepInfo, computationDuration time.Duration, err error) error {
	if mt := pm.GetMetric(step.Name); mt != nil {
		mt.SetComputeDuration(computationDuration)
		mt.SetErr(err)
	}

	return nil
}

func (pm *pipelineMeasure) Finish() error {
	return nil
}

// PipelineMeasure records the timings of every step of a run into measure.
func PipelineMeasure(measure Measure) model.PipelineOption {
	return &pipelineMeasure{measure}
}

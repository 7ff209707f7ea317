package measure_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/forgiving-data/pkg/pipeline/measure"
	"github.com/askiada/forgiving-data/pkg/pipeline/model"
)

func TestPipelineMeasure(t *testing.T) {
	t.Parallel()

	msr := measure.NewDefaultMeasure()
	opt := measure.PipelineMeasure(msr)

	root := &model.StepInfo{Type: model.PipelineType, Name: "p"}
	load := &model.StepInfo{Type: model.StepType, Name: "p.load"}
	join := &model.StepInfo{Type: model.StepType, Name: "p.join"}

	require.NoError(t, opt.New())
	require.NoError(t, opt.PrepareStep(root, []*model.StepInfo{join}))
	require.NoError(t, opt.PrepareStep(load, nil))
	require.NoError(t, opt.PrepareStep(join, []*model.StepInfo{load}))
	require.NoError(t, opt.OnStepLaunch(load, 0))
	require.NoError(t, opt.OnStepComplete(load, 2*time.Second, nil))
	require.NoError(t, opt.OnStepLaunch(join, 2*time.Second))
	require.NoError(t, opt.OnStepComplete(join, time.Millisecond, assert.AnError))
	require.NoError(t, opt.Finish())

	assert.Equal(t, []string{"p.join", "p.load"}, msr.Names())

	mt := msr.GetMetric("p.join")
	assert.Equal(t, 2*time.Second, mt.WaitDuration())
	assert.Equal(t, time.Millisecond, mt.ComputeDuration())
	assert.Equal(t, []string{"p.load"}, mt.Dependencies())
	assert.ErrorIs(t, mt.Err(), assert.AnError)

	assert.Equal(t, 2*time.Second, msr.GetMetric("p.load").ComputeDuration())
	assert.NoError(t, msr.GetMetric("p.load").Err())
}

package model

import "time"

// PipelineOption defines the interface for pipeline options. The executor calls New once, PrepareStep for every
// element of the tree, OnStepLaunch and OnStepComplete while steps run, and Finish once the run is over.
type PipelineOption interface {
	// New initialises the pipeline option.
	New() error

	pipelineStepOption

	// Finish runs after the pipeline is finished.
	Finish() error
}

// pipelineStepOption defines the interface for step options at the pipeline level.
type pipelineStepOption interface {
	// PrepareStep runs once the dependency graph is known. For a nested pipeline the only dependency is its terminal.
	PrepareStep(step *StepInfo, dependencies []*StepInfo) error
	// OnStepLaunch runs when every dependency of the step has completed, just before its transform is invoked.
	OnStepLaunch(step *StepInfo, waitDuration time.Duration) error
	// OnStepComplete runs after the step produced its output or failed.
	OnStepComplete(step *StepInfo, computationDuration time.Duration, err error) error
}

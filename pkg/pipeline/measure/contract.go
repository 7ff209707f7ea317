package measure

import "time"

// Measure keeps a Metric per step of a pipeline.
type Measure interface {
	AddMetric(name string) Metric
	GetMetric(name string) Metric
	AllMetrics() map[string]Metric
}

// Metric holds the timings of a single step.
type Metric interface {
	// SetWaitDuration records how long the step waited for its dependencies.
	SetWaitDuration(elapsed time.Duration)
	WaitDuration() time.Duration
	// SetComputeDuration records how long the transform of the step ran.
	SetComputeDuration(elapsed time.Duration)
	ComputeDuration() time.Duration
	SetErr(err error)
	Err() error
	// AddDependency records that the step waited on the named step.
	AddDependency(name string)
	Dependencies() []string
}

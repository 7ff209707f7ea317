package model

type stepType string

const (
	// StepType is a leaf of the pipeline tree running a transform.
	StepType stepType = "step"
	// PipelineType is a nested pipeline, or the root one.
	PipelineType stepType = "pipeline"
)

// StepInfo describes an element of the pipeline tree.
type StepInfo struct {
	Type stepType
	// Name is the dotted path of the element, starting with the root pipeline name.
	Name string
	// ProvenanceKey is the name recorded against cells produced by the step.
	ProvenanceKey string
	Transform     string
	Grade         string
}

package pipeline

import (
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

var (
	// ErrUnresolvedReference is returned when a reference names no step, pipeline or context.
	ErrUnresolvedReference = errors.New("unresolved reference")
	// ErrNotADataStep is returned when a data reference resolves to something which produces no data.
	ErrNotADataStep = errors.New("reference does not resolve to a data step")
	// ErrCyclicPipeline is returned when the dependencies of a pipeline form a cycle.
	ErrCyclicPipeline = errors.New("cyclic pipeline")
	// ErrAmbiguousTerminal is returned when more than one element of a pipeline is consumed by nothing.
	ErrAmbiguousTerminal = errors.New("ambiguous pipeline terminal")
	// ErrEmptyPipeline is returned when a pipeline holds no element.
	ErrEmptyPipeline = errors.New("pipeline has no element")
	// ErrUnknownTransform is returned when an element type names neither a transform nor a pipeline.
	ErrUnknownTransform = errors.New("unknown transform")
	// ErrUnknownPipeline is returned when a pipeline name has not been loaded.
	ErrUnknownPipeline = errors.New("unknown pipeline")
	// ErrInvalidDefinition is returned when a definition does not have the expected shape.
	ErrInvalidDefinition = errors.New("invalid definition")
	// ErrMissingOption is returned by Args accessors when a required option is absent or has the wrong type.
	ErrMissingOption = errors.New("missing option")
	// ErrSoftAbort marks an error which halts a pipeline without being a failure of the process.
	ErrSoftAbort = errors.New("soft abort")
)

// ConfigError reports a malformed pipeline definition, with the path of the offending element and its options.
type ConfigError struct {
	Kind    error
	Path    string
	Detail  string
	Options any
}

func (e *ConfigError) Error() string {
	var b strings.Builder

	b.WriteString(e.Kind.Error())

	if e.Path != "" {
		b.WriteString(" at ")
		b.WriteString(e.Path)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Options != nil {
		if dump, err := yaml.Marshal(e.Options); err == nil {
			b.WriteString("\noptions:\n")
			b.WriteString(string(dump))
		}
	}

	return b.String()
}

func (e *ConfigError) Unwrap() error {
	return e.Kind
}

func configError(kind error, path, detail string, options any) error {
	return &ConfigError{Kind: kind, Path: path, Detail: detail, Options: options}
}

type softAbortError struct {
	msg string
}

func (e *softAbortError) Error() string {
	return "soft abort: " + e.msg
}

func (e *softAbortError) Is(target error) bool {
	return target == ErrSoftAbort
}

// SoftAbort returns an error halting the pipeline which is not to be reported as a failure.
func SoftAbort(msg string) error {
	return &softAbortError{msg: msg}
}

// IsSoftAbort reports whether err, or an error it wraps, is a soft abort.
func IsSoftAbort(err error) bool {
	return errors.Is(err, ErrSoftAbort)
}

package pipeline

import "github.com/askiada/forgiving-data/pkg/pipeline/model"

// Option configures a pipeline when it is built.
type Option func(b *builder)

// WithProvenanceKeyFunc replaces DefaultProvenanceKey.
func WithProvenanceKeyFunc(fn ProvenanceKeyFunc) Option {
	return func(b *builder) {
		b.keyFunc = fn
	}
}

// WithContextResolver makes references of the form {name}.path resolve through r. The env context is registered by
// default.
func WithContextResolver(name string, r ContextResolver) Option {
	return func(b *builder) {
		b.resolvers[name] = r
	}
}

// WithPipelineOptions registers hooks which are told about every element of the pipeline and every step run.
func WithPipelineOptions(opts ...model.PipelineOption) Option {
	return func(b *builder) {
		b.hooks = append(b.hooks, opts...)
	}
}

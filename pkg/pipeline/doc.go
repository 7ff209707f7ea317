// Package pipeline runs a tree of data transformation steps as a dependency graph.
//
// A pipeline is loaded from named definitions. Each definition lists elements, which are either steps, typed by a
// registered transform, or nested pipelines. Definitions may name parents whose elements they override member by
// member, and a step may be overridden by a whole nested pipeline of the same name.
//
// Steps consume the output of other steps through references written as option values, for instance
// "{loadPlants}.data" or "{loadPlants}.data.value.headers". A reference is resolved walking up the tree from the step
// which holds it: at each level the element itself and then its members are matched against the context name.
// References to other contexts, such as "{env}.HOME", are resolved when the pipeline is built.
//
// Each step is launched on its own goroutine once every step it references has completed. The output of a nested
// pipeline is the output of its single element which no other element consumes. The first error stops the run and
// is reported as raised by the failing step. A step may halt the pipeline without failing it by returning SoftAbort.
//
// Every output is a provenanced table: each cell records the key of the step or dataset which produced it, and the
// provenance map describes each key.
package pipeline

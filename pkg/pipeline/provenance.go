package pipeline

import "strings"

// ProvenanceKeyFunc names a step in provenance records from its path relative to the root pipeline.
type ProvenanceKeyFunc func(path []string) string

// DefaultProvenanceKey joins the path with dots, collapsing a path whose segments are all equal to a single segment
// so that a step promoted into a pipeline of the same name keeps its plain name.
func DefaultProvenanceKey(path []string) string {
	if len(path) == 0 {
		return ""
	}

	for _, seg := range path[1:] {
		if seg != path[0] {
			return strings.Join(path, ".")
		}
	}

	return path[0]
}

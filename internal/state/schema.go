package state

import (
	werrors "github.com/aroton/aromcp-workflow/internal/errors"
	"github.com/aroton/aromcp-workflow/internal/transform"
)

// ComputedField is one entry of WorkflowDefinition.state_schema.computed (spec §3):
// a field path under the computed tier, plus the transform that derives it.
type ComputedField struct {
	Path      string // e.g. "computed.n"
	Transform transform.Descriptor
}

// Schema is the immutable computed-field DAG for a WorkflowDefinition. It is built once
// at load/start time; cycles are rejected there (spec §4.3, §8 property 2).
type Schema struct {
	fields   []ComputedField
	byPath   map[string]ComputedField
	order    []string            // topological order over all computed field paths
	deps     map[string][]string // computed field path -> its dependents (reverse edges)
}

// NewSchema builds and validates the computed-field DAG. It returns a definition-level
// error (TransformError-flavored, but reported as part of workflow_start per spec §8
// property 2) if the dependency graph contains a cycle.
func NewSchema(fields []ComputedField) (*Schema, error) {
	byPath := make(map[string]ComputedField, len(fields))
	for _, f := range fields {
		byPath[f.Path] = f
	}

	// forward edges: field -> the computed fields it depends on
	forward := make(map[string][]string, len(fields))
	deps := make(map[string][]string, len(fields))
	indegree := make(map[string]int, len(fields))
	for _, f := range fields {
		indegree[f.Path] = 0
	}
	for _, f := range fields {
		for _, src := range f.Transform.From {
			if _, isComputed := byPath[src]; isComputed {
				forward[f.Path] = append(forward[f.Path], src)
				deps[src] = append(deps[src], f.Path)
				indegree[f.Path]++
			}
		}
	}

	order, err := topoSort(byPath, forward, indegree)
	if err != nil {
		return nil, err
	}

	return &Schema{fields: fields, byPath: byPath, order: order, deps: deps}, nil
}

// topoSort returns computed field paths ordered so that every field appears after the
// computed fields it depends on. It detects cycles via Kahn's algorithm.
func topoSort(byPath map[string]ComputedField, forward map[string][]string, indegree map[string]int) ([]string, error) {
	// Kahn's algorithm walks from fields with no remaining unresolved dependencies.
	remaining := make(map[string]int, len(indegree))
	for k, v := range indegree {
		remaining[k] = v
	}

	var ready []string
	for path, deg := range remaining {
		if deg == 0 {
			ready = append(ready, path)
		}
	}

	// dependents: computed field -> fields that depend on it (inverse of forward)
	dependents := make(map[string][]string)
	for field, sources := range forward {
		for _, src := range sources {
			dependents[src] = append(dependents[src], field)
		}
	}

	var order []string
	for len(ready) > 0 {
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)
		for _, dependent := range dependents[next] {
			remaining[dependent]--
			if remaining[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
	}

	if len(order) != len(byPath) {
		return nil, werrors.New(werrors.TransformError, "computed field dependency graph contains a cycle")
	}
	return order, nil
}

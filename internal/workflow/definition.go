// Package workflow holds the immutable data model described by spec §3:
// WorkflowDefinition, its step descriptors, input specs, and sub-agent task templates.
// Definitions are produced by internal/loader (an "external collaborator" per spec §1)
// and consumed read-only by the core (queue/processor/executor/subagent).
package workflow

import (
	"github.com/aroton/aromcp-workflow/internal/stepkind"
	"github.com/aroton/aromcp-workflow/internal/transform"
)

// InputSpec describes one entry of WorkflowDefinition.inputs (spec §3). From is a
// SPEC_FULL.md extension used only by sub_agent_tasks: when set, it binds the
// sub-agent's input to a parent-scope path (spec §4.7 point 2: "from: inputs.X or
// from: state.X") instead of to the parallel_foreach item.
type InputSpec struct {
	Type        string
	Required    bool
	Default     any
	Description string
	From        string
}

// StepDef is the immutable step descriptor of spec §3: data, not executable directly.
type StepDef struct {
	ID         string
	Type       stepkind.Kind
	Definition map[string]any
}

// SubAgentTask is one entry of WorkflowDefinition.sub_agent_tasks: a self-contained
// template with its own inputs, computed schema, and step body (spec §3).
type SubAgentTask struct {
	Name         string
	Inputs       map[string]InputSpec
	Computed     map[string]transform.Descriptor
	DefaultState map[string]any
	Steps        []StepDef
}

// Definition is the immutable WorkflowDefinition of spec §3, produced by the loader.
type Definition struct {
	Name          string
	Version       string
	Inputs        map[string]InputSpec
	DefaultState  map[string]any
	Computed      map[string]transform.Descriptor
	Steps         []StepDef
	SubAgentTasks map[string]*SubAgentTask
}

// ComputedFields flattens d.Computed into the []state.ComputedField shape the state
// package's schema builder consumes. Kept here (rather than in internal/state) so
// internal/state never needs to import internal/workflow.
func (d *Definition) ComputedFields() []ComputedFieldSpec {
	return computedFields(d.Computed)
}

// ComputedFields does the same for a sub-agent template (spec §4.7 point 3: "full
// initial recomputation of the computed DAG" at spawn).
func (t *SubAgentTask) ComputedFields() []ComputedFieldSpec {
	return computedFields(t.Computed)
}

// ComputedFieldSpec mirrors state.ComputedField without importing internal/state,
// avoiding an import cycle (internal/state is a lower-level package than
// internal/workflow in the dependency graph: transform -> state, workflow -> transform).
type ComputedFieldSpec struct {
	Path      string
	Transform transform.Descriptor
}

func computedFields(m map[string]transform.Descriptor) []ComputedFieldSpec {
	out := make([]ComputedFieldSpec, 0, len(m))
	for path, t := range m {
		out = append(out, ComputedFieldSpec{Path: path, Transform: t})
	}
	return out
}

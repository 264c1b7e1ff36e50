// Package subagent implements the sub-agent coordinator (component H): turning a
// parallel_foreach step into a fleet of isolated per-item WorkflowInstances, each with
// its own state, step queue, and ID-prefixed expansion of the shared sub_agent_task
// template (spec §4.7, §3 SubAgentInstance).
package subagent

import (
	werrors "github.com/aroton/aromcp-workflow/internal/errors"
	"github.com/aroton/aromcp-workflow/internal/ids"
	"github.com/aroton/aromcp-workflow/internal/queue"
	"github.com/aroton/aromcp-workflow/internal/state"
	"github.com/aroton/aromcp-workflow/internal/workflow"
)

// ParentContext is the minimal view of a parent instance the coordinator needs: its
// definition (to look up the sub_agent_task template) and the ability to resolve an
// `inputs.X`/`state.X` binding against the parent's own snapshot (spec §4.7 point 2).
type ParentContext interface {
	Definition() *workflow.Definition
	ResolveInput(path string) (any, error)
}

// Child is one spawned SubAgentInstance (spec §3): isolated state/queue, addressed by
// the composite ID "<task-id>.item<N>", with every step ID in its queue already
// prefixed per spec §4.7 point 5.
type Child struct {
	ID    string
	Item  any
	Index int
	Total int
	State *state.Snapshot
	Queue *queue.Queue
}

// Coordinator spawns sub-agent fleets from parallel_foreach metadata.
type Coordinator struct{}

// New returns a Coordinator. It holds no state of its own; fleet bookkeeping
// (completion tracking, continue_on_error policy) belongs to the caller (internal/executor),
// which owns the process-wide instance map spec §5 describes.
func New() *Coordinator {
	return &Coordinator{}
}

// Spawn builds one Child per item, per spec §4.7 steps 1-5.
func (c *Coordinator) Spawn(parent ParentContext, taskName string, items []any) ([]*Child, error) {
	tmpl, ok := parent.Definition().SubAgentTasks[taskName]
	if !ok {
		return nil, werrors.New(werrors.MalformedStep, "no such sub_agent_task: %s", taskName)
	}

	total := len(items)
	children := make([]*Child, 0, total)
	for idx, item := range items {
		child, err := c.spawnOne(parent, tmpl, item, idx, total)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	return children, nil
}

// SpawnOne builds a single Child (item idx of total), used both by the non-debug fleet
// path and by the serial debug driver, which spawns children one at a time (spec §4.8).
func (c *Coordinator) SpawnOne(parent ParentContext, taskName string, items []any, idx int) (*Child, error) {
	tmpl, ok := parent.Definition().SubAgentTasks[taskName]
	if !ok {
		return nil, werrors.New(werrors.MalformedStep, "no such sub_agent_task: %s", taskName)
	}
	return c.spawnOne(parent, tmpl, items[idx], idx, len(items))
}

func (c *Coordinator) spawnOne(parent ParentContext, tmpl *workflow.SubAgentTask, item any, idx, total int) (*Child, error) {
	taskID := ids.SubAgentID(tmpl.Name, idx)

	inputs := make(map[string]any, len(tmpl.Inputs))
	for name, spec := range tmpl.Inputs {
		val, err := resolveBinding(parent, spec, item)
		if err != nil {
			return nil, err
		}
		inputs[name] = val
	}

	schema, err := state.NewSchema(toComputedFields(tmpl.ComputedFields()))
	if err != nil {
		return nil, err
	}
	snap, err := state.New(inputs, tmpl.DefaultState, schema)
	if err != nil {
		return nil, err
	}

	q := queue.New()
	q.Append(prefixSteps(taskID, tmpl.Steps)...)

	return &Child{ID: taskID, Item: item, Index: idx, Total: total, State: snap, Queue: q}, nil
}

// resolveBinding implements spec §4.7 point 2: a template input with no `from` binds
// to the parallel_foreach item itself (the common case: a single-value binding like
// file_path); one declaring `from: inputs.X` or `from: state.X` resolves against the
// parent's own snapshot instead.
func resolveBinding(parent ParentContext, spec workflow.InputSpec, item any) (any, error) {
	if spec.From != "" {
		val, err := parent.ResolveInput(spec.From)
		if err != nil {
			return nil, err
		}
		return val, nil
	}
	if item != nil {
		return item, nil
	}
	return spec.Default, nil
}

// prefixSteps qualifies every step ID (and any then_steps/else_steps/body nested under
// control-flow definitions) with "<task-id>." so the sub-agent's steps are
// unambiguously addressable by the client (spec §3 invariant, §4.7 point 5).
func prefixSteps(taskID string, steps []workflow.StepDef) []workflow.StepDef {
	out := make([]workflow.StepDef, len(steps))
	for i, s := range steps {
		out[i] = prefixStep(taskID, s)
	}
	return out
}

func prefixStep(taskID string, s workflow.StepDef) workflow.StepDef {
	prefixed := workflow.StepDef{
		ID:         ids.PrefixStepID(taskID, s.ID),
		Type:       s.Type,
		Definition: s.Definition,
	}
	if len(s.Definition) == 0 {
		return prefixed
	}

	def := make(map[string]any, len(s.Definition))
	for k, v := range s.Definition {
		switch k {
		case "then_steps", "else_steps", "body":
			if nested, ok := v.([]workflow.StepDef); ok {
				def[k] = prefixSteps(taskID, nested)
				continue
			}
		}
		def[k] = v
	}
	prefixed.Definition = def
	return prefixed
}

func toComputedFields(specs []workflow.ComputedFieldSpec) []state.ComputedField {
	out := make([]state.ComputedField, len(specs))
	for i, s := range specs {
		out[i] = state.ComputedField{Path: s.Path, Transform: s.Transform}
	}
	return out
}

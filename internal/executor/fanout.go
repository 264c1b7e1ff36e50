package executor

import (
	"github.com/aroton/aromcp-workflow/internal/debugdriver"
	werrors "github.com/aroton/aromcp-workflow/internal/errors"
	"github.com/aroton/aromcp-workflow/internal/ids"
	"github.com/aroton/aromcp-workflow/internal/processor"
)

// resolveFanout consumes inst.pending, the fan-out parameters a just-surfaced
// parallel_foreach step recorded (spec §4.7 point 1: "the step is emitted once; the
// sub-agent manager is armed to spawn on acknowledgement"). Under the serial debug
// driver it arms a Flattener instead of a real fleet (spec §4.8).
func (ex *Executor) resolveFanout(inst *Instance) {
	p := inst.pending
	inst.pending = nil

	if ex.debugMode {
		inst.debug = debugdriver.New(p.stepID, p.taskName, p.items, p.continueOnError)
		return
	}

	tmpl, ok := inst.def.SubAgentTasks[p.taskName]
	if !ok {
		inst.Status = StatusFailed
		inst.Err = werrors.New(werrors.MalformedStep, "no such sub_agent_task: %s", p.taskName).WithStep(p.stepID)
		return
	}

	children, err := ex.coordinator.Spawn(inst, p.taskName, p.items)
	if err != nil {
		inst.Status = StatusFailed
		inst.Err = toWorkflowError(err)
		return
	}

	childIDs := make([]string, len(children))
	for idx, child := range children {
		childInst := &Instance{
			ID:       child.ID,
			def:      taskAsDefinition(tmpl),
			State:    child.State,
			Queue:    child.Queue,
			Status:   StatusRunning,
			ParentID: inst.ID,
			Task:     &TaskContext{Item: child.Item, Index: child.Index, Total: child.Total, TaskID: child.ID},
		}
		ex.register(childInst)
		childIDs[idx] = child.ID
		ex.logger.Debug("sub-agent spawned", "correlation_id", ids.Correlation(), "parent_id", inst.ID, "child_id", child.ID, "task", p.taskName)
	}

	inst.fleet = &fleet{stepID: p.stepID, childIDs: childIDs, continueOnError: p.continueOnError}
}

// checkFleet inspects an outstanding non-debug fan-out's children (each an
// independently pollable WorkflowInstance, spec §4.7 last paragraph). It returns
// errFleetPending while any child is still running, a SubAgentFailed error if a
// child failed and the step did not set continue_on_error, or nil once the fan-out
// has resolved (clearing inst.fleet so the parent resumes its own queue).
func (ex *Executor) checkFleet(inst *Instance) error {
	f := inst.fleet

	var failed *Instance
	for _, childID := range f.childIDs {
		child := ex.lookup(childID)
		if child == nil {
			continue
		}
		switch child.Status {
		case StatusRunning, StatusPendingStep:
			return errFleetPending
		case StatusFailed:
			if failed == nil {
				failed = child
			}
		}
	}

	if failed != nil && !f.continueOnError {
		inst.fleet = nil
		return werrors.NewSubAgentFailed(failed.ID, failed.Err)
	}

	inst.fleet = nil
	return nil
}

// debugHooksFor adapts this Executor into the debugdriver.Hooks a Flattener needs,
// bridging child spawn/drive calls into the coordinator and drain() (spec §4.8).
func (ex *Executor) debugHooksFor(inst *Instance) debugdriver.Hooks {
	return &debugHooks{ex: ex, parent: inst}
}

type debugHooks struct {
	ex     *Executor
	parent *Instance
}

func (h *debugHooks) SpawnChild(itemIndex int) (string, error) {
	tmpl, ok := h.parent.def.SubAgentTasks[h.parent.debug.TaskName]
	if !ok {
		return "", werrors.New(werrors.MalformedStep, "no such sub_agent_task: %s", h.parent.debug.TaskName)
	}

	child, err := h.ex.coordinator.SpawnOne(h.parent, h.parent.debug.TaskName, h.parent.debug.Items, itemIndex)
	if err != nil {
		return "", err
	}

	childInst := &Instance{
		ID:       child.ID,
		def:      taskAsDefinition(tmpl),
		State:    child.State,
		Queue:    child.Queue,
		Status:   StatusRunning,
		ParentID: h.parent.ID,
		Task:     &TaskContext{Item: child.Item, Index: child.Index, Total: child.Total, TaskID: child.ID},
	}
	h.ex.register(childInst)
	h.ex.logger.Debug("sub-agent spawned", "correlation_id", ids.Correlation(), "parent_id", h.parent.ID, "child_id", child.ID, "task", h.parent.debug.TaskName)
	return child.ID, nil
}

func (h *debugHooks) NextRaw(childID string) ([]debugdriver.RawStep, debugdriver.ChildStatus, *werrors.Error, error) {
	child := h.ex.lookup(childID)
	if child == nil {
		return nil, debugdriver.ChildFailed, werrors.NewUnknownWorkflow(childID), nil
	}

	views, err := h.ex.drain(child)
	if err != nil {
		child.Status = StatusFailed
		child.Err = toWorkflowError(err)
		return nil, debugdriver.ChildFailed, child.Err, nil
	}

	if len(views) > 0 {
		return viewsToRaw(views), debugdriver.ChildRunning, nil, nil
	}

	switch child.Status {
	case StatusFailed:
		return nil, debugdriver.ChildFailed, child.Err, nil
	case StatusCompleted:
		return nil, debugdriver.ChildCompleted, nil, nil
	default:
		return nil, debugdriver.ChildRunning, nil, nil
	}
}

func viewsToRaw(views []processor.ClientStepView) []debugdriver.RawStep {
	out := make([]debugdriver.RawStep, len(views))
	for i, v := range views {
		out[i] = debugdriver.RawStep{ID: v.ID, Type: string(v.Type), Definition: v.Definition}
	}
	return out
}

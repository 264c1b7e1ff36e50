package executor

import (
	"github.com/aroton/aromcp-workflow/internal/debugdriver"
	werrors "github.com/aroton/aromcp-workflow/internal/errors"
	"github.com/aroton/aromcp-workflow/internal/queue"
	"github.com/aroton/aromcp-workflow/internal/state"
	"github.com/aroton/aromcp-workflow/internal/workflow"
)

// Status is the four-state lifecycle of a WorkflowInstance (spec §3, §4.6 "State
// machine of an instance").
type Status string

const (
	StatusRunning     Status = "running"
	StatusPendingStep Status = "pending_step"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
)

// TaskContext is the sub-agent task context of spec §3: {item, index, total, task_id}.
type TaskContext struct {
	Item   any
	Index  int
	Total  int
	TaskID string
}

// pendingFanout records a surfaced-but-not-yet-acknowledged parallel_foreach step's
// resolved fan-out parameters (spec §4.7: "After emission, the sub-agent manager is
// armed to spawn one sub-agent per task when the client acknowledges").
type pendingFanout struct {
	stepID          string
	taskName        string
	items           []any
	continueOnError bool
}

// fleet tracks an outstanding (non-debug) sub-agent fan-out the parent instance is
// waiting on (spec §4.7 last paragraph).
type fleet struct {
	stepID          string
	childIDs        []string
	continueOnError bool
}

// Instance is the WorkflowInstance of spec §3.
type Instance struct {
	ID       string
	def      *workflow.Definition
	State    *state.Snapshot
	Queue    *queue.Queue
	Status   Status
	ParentID string
	Task     *TaskContext
	Err      *werrors.Error

	pending *pendingFanout
	fleet   *fleet
	debug   *debugdriver.Flattener
}

// Definition satisfies subagent.ParentContext.
func (i *Instance) Definition() *workflow.Definition { return i.def }

// ResolveInput satisfies subagent.ParentContext: resolves an "inputs.X"/"state.X" path
// against this instance's own snapshot (spec §4.7 point 2).
func (i *Instance) ResolveInput(path string) (any, error) {
	return i.State.Get(path)
}

// Package debugdriver implements the serial debug driver (component I): when
// AROMCP_WORKFLOW_DEBUG=serial is active, it linearises a parallel_foreach step's
// fan-out into a single interleaved stream instead of spawning independently-pollable
// sub-agent instances (spec §4.8, §4.9, §8 property 4).
package debugdriver

import werrors "github.com/aroton/aromcp-workflow/internal/errors"

// RawStep is the minimal {id, type, definition} shape a child instance surfaces; it
// mirrors the RPC envelope of spec §6 without importing internal/executor (which in
// turn imports this package), keeping the dependency one-directional.
type RawStep struct {
	ID         string
	Type       string
	Definition map[string]any
}

// ChildStatus reports a flattened child instance's terminal state.
type ChildStatus string

const (
	ChildRunning   ChildStatus = "running"
	ChildCompleted ChildStatus = "completed"
	ChildFailed    ChildStatus = "failed"
)

// Hooks is the callback surface Flattener needs from its host (internal/executor):
// spawning the Nth child of the active fan-out, and pulling its next raw step batch.
type Hooks interface {
	// SpawnChild constructs and registers the itemIndex-th sub-agent instance and
	// returns its composite ID (spec §4.7 point 4/5 applied one item at a time).
	SpawnChild(itemIndex int) (childID string, err error)

	// NextRaw drives childID exactly as executor.GetNextStep would, returning its next
	// client-visible batch (possibly empty, meaning the child drained to completion or
	// failure) and its resulting terminal status plus the failure cause when relevant.
	NextRaw(childID string) (steps []RawStep, status ChildStatus, failErr *werrors.Error, err error)
}

// Flattener drives one parallel_foreach step's fan-out serially (spec §4.8 steps 1-3).
type Flattener struct {
	ParentStepID    string
	TaskName        string
	Items           []any
	ContinueOnError bool

	itemIndex      int
	currentChildID string
	stepCursor     int
	processedTasks int
}

// New returns a Flattener armed for the given parallel_foreach step's fan-out.
func New(parentStepID, taskName string, items []any, continueOnError bool) *Flattener {
	return &Flattener{ParentStepID: parentStepID, TaskName: taskName, Items: items, ContinueOnError: continueOnError}
}

// ProcessedTasks reports how many items have fully drained so far (the serial-debug
// "_debug_processed_tasks" cursor of spec §4.4).
func (f *Flattener) ProcessedTasks() int { return f.processedTasks }

// StepCursor reports how many client steps have been surfaced across the whole fan-out
// so far (the serial-debug "_debug_current_step_index" cursor of spec §4.4).
func (f *Flattener) StepCursor() int { return f.stepCursor }

// Next returns the next client-visible batch to surface, or (nil, true, nil) once every
// item has drained (spec §4.8 point 2). It enqueues no debug_step_advance or
// debug_task_completion steps: surfacing a batch advances stepCursor, and exhausting an
// item advances processedTasks before the next item's child is spawned.
func (f *Flattener) Next(hooks Hooks) ([]RawStep, bool, error) {
	for {
		if f.currentChildID == "" {
			if f.itemIndex >= len(f.Items) {
				return nil, true, nil
			}
			id, err := hooks.SpawnChild(f.itemIndex)
			if err != nil {
				return nil, false, err
			}
			f.currentChildID = id
		}

		steps, status, failErr, err := hooks.NextRaw(f.currentChildID)
		if err != nil {
			return nil, false, err
		}
		if len(steps) > 0 {
			f.stepCursor += len(steps)
			return steps, false, nil
		}

		if status == ChildFailed && !f.ContinueOnError {
			return nil, false, werrors.NewSubAgentFailed(f.currentChildID, failErr)
		}

		f.processedTasks++
		f.itemIndex++
		f.currentChildID = ""
	}
}

// Done reports whether every item has drained.
func (f *Flattener) Done() bool {
	return f.itemIndex >= len(f.Items) && f.currentChildID == ""
}

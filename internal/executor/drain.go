package executor

import (
	"errors"

	"github.com/aroton/aromcp-workflow/internal/debugdriver"
	werrors "github.com/aroton/aromcp-workflow/internal/errors"
	"github.com/aroton/aromcp-workflow/internal/processor"
	"github.com/aroton/aromcp-workflow/internal/queue"
	"github.com/aroton/aromcp-workflow/internal/stepkind"
)

// errFleetPending is returned internally by checkFleet while a non-debug sub-agent fan-out
// has not yet fully resolved; drain() turns it into an empty, non-failing batch.
var errFleetPending = errors.New("fleet pending")

// drain implements the server-step drain loop of spec §4.6 step 3: repeatedly process
// the queue head while it is a server step, stopping at the next client-visible batch
// or at workflow completion. It also resolves any outstanding parallel_foreach
// fan-out (debug flattening or non-debug fleet-completion gate) before resuming the
// instance's own queue.
func (ex *Executor) drain(inst *Instance) ([]processor.ClientStepView, error) {
	budget := ex.maxDrainSteps()
	steps := 0

	for {
		if inst.debug != nil {
			raw, done, err := inst.debug.Next(ex.debugHooksFor(inst))
			if err != nil {
				return nil, err
			}
			if !done {
				return rawToViews(raw), nil
			}
			inst.debug = nil
			continue
		}

		if inst.fleet != nil {
			if err := ex.checkFleet(inst); err != nil {
				if errors.Is(err, errFleetPending) {
					return []processor.ClientStepView{}, nil
				}
				return nil, err
			}
		}

		if inst.pending != nil {
			ex.resolveFanout(inst)
			continue
		}

		item, ok := inst.Queue.PeekHead()
		if !ok {
			inst.Status = StatusCompleted
			return []processor.ClientStepView{}, nil
		}

		steps++
		if steps > budget {
			return nil, werrors.NewServerDrainBudgetExhausted(budget)
		}

		// Pop before processing: conditional/loop/continuation processing prepends a
		// body onto the queue head, which must not be what gets popped afterwards.
		inst.Queue.PopHead()
		view, err := processor.Process(inst.State, inst.Queue, item, ex.debugMode)
		if err != nil {
			return nil, err
		}
		if view == nil {
			// Server step fully applied in place; keep draining.
			continue
		}

		// Client-visible step: gather any adjacent batchable siblings of the same kind
		// (spec §4.6 step 4; only user_message batches, per SPEC_FULL.md Open Question (b)).
		batch := []processor.ClientStepView{*view}
		if stepkind.IsBatchable(view.Type) {
			for {
				next, ok := inst.Queue.PeekHead()
				if !ok || next.Kind != queue.ItemStep {
					break
				}
				if next.Step.Type != view.Type {
					break
				}
				nv, err := processor.Process(inst.State, inst.Queue, next, ex.debugMode)
				if err != nil {
					return nil, err
				}
				if nv == nil {
					break
				}
				inst.Queue.PopHead()
				batch = append(batch, *nv)
			}
		}

		if view.Type == stepkind.ParallelForeach && view.ParallelMeta != nil {
			inst.pending = &pendingFanout{
				stepID:          view.ID,
				taskName:        view.ParallelMeta.TaskName,
				items:           view.ParallelMeta.Items,
				continueOnError: view.ParallelMeta.ContinueOnError,
			}
		}

		inst.Status = StatusPendingStep
		return batch, nil
	}
}

func (ex *Executor) maxDrainSteps() int {
	if ex.cfg != nil && ex.cfg.Executor.MaxServerDrainSteps > 0 {
		return ex.cfg.Executor.MaxServerDrainSteps
	}
	return 10000
}

func rawToViews(raw []debugdriver.RawStep) []processor.ClientStepView {
	out := make([]processor.ClientStepView, len(raw))
	for i, r := range raw {
		out[i] = processor.ClientStepView{ID: r.ID, Type: stepkind.Kind(r.Type), Definition: r.Definition}
	}
	return out
}

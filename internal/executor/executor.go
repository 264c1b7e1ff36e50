// Package executor implements the queue-based executor (component G): the top-level
// start/get_next_step state machine of spec §4.6, and the RPC surface of spec §6. It
// owns the process-wide instance map (spec §5 "Shared-resource policy") and wires
// together the state manager, queue, step processors, sub-agent coordinator, and
// serial debug driver into one cohesive engine.
package executor

import (
	"log/slog"
	"sync"
	"time"

	"github.com/aroton/aromcp-workflow/internal/config"
	werrors "github.com/aroton/aromcp-workflow/internal/errors"
	"github.com/aroton/aromcp-workflow/internal/ids"
	"github.com/aroton/aromcp-workflow/internal/logging"
	"github.com/aroton/aromcp-workflow/internal/processor"
	"github.com/aroton/aromcp-workflow/internal/queue"
	"github.com/aroton/aromcp-workflow/internal/state"
	"github.com/aroton/aromcp-workflow/internal/subagent"
	"github.com/aroton/aromcp-workflow/internal/workflow"
)

// StepEnvelope is the client step envelope of spec §6: {id, type, definition}.
type StepEnvelope struct {
	ID         string
	Type       string
	Definition map[string]any
}

// StartResult is workflow_start's response (spec §6), plus the SPEC_FULL.md
// response-metadata envelope (duration_ms).
type StartResult struct {
	WorkflowID string
	Status     Status
	DurationMs int64
}

// Response is the SPEC_FULL.md metadata envelope for RPCs that otherwise return only
// an error (workflow_update_state, workflow_submit_step_result, workflow_cancel),
// mirroring the original system's `metadata: {timestamp, duration_ms}` wrapper.
type Response struct {
	DurationMs int64
}

// GetNextStepResult is workflow_get_next_step's response (spec §6), plus the
// SPEC_FULL.md response-metadata envelope (duration_ms).
type GetNextStepResult struct {
	Steps      []StepEnvelope
	Error      *werrors.Error
	DurationMs int64
}

// Executor is the engine's top-level state machine (component G).
type Executor struct {
	mu               sync.Mutex
	instances        map[string]*Instance
	parentToChildren map[string][]string

	cfg         *config.Config
	logger      *slog.Logger
	debugMode   bool
	coordinator *subagent.Coordinator
}

// New builds an Executor. debugMode mirrors spec §6's AROMCP_WORKFLOW_DEBUG=serial
// switch, read once by internal/config at process start and threaded in here.
func New(cfg *config.Config, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = logging.NewDefault()
	}
	debug := cfg != nil && cfg.Debug.Mode == config.DebugModeSerial
	return &Executor{
		instances:        make(map[string]*Instance),
		parentToChildren: make(map[string][]string),
		cfg:              cfg,
		logger:           logger,
		debugMode:        debug,
		coordinator:      subagent.New(),
	}
}

// Start implements workflow_start (spec §6, §4.6): seeds inputs/state, performs the
// initial computed-DAG recomputation, and registers a fresh running instance.
func (ex *Executor) Start(def *workflow.Definition, inputs map[string]any) (StartResult, error) {
	started := time.Now()
	resolvedInputs := mergeDefaults(def.Inputs, inputs)

	schema, err := state.NewSchema(toStateComputedFields(def.ComputedFields()))
	if err != nil {
		return StartResult{}, err
	}
	snap, err := state.New(resolvedInputs, def.DefaultState, schema)
	if err != nil {
		return StartResult{}, err
	}

	q := queueFromSteps(def.Steps)

	inst := &Instance{
		ID:     ids.NewWorkflowID(),
		def:    def,
		State:  snap,
		Queue:  q,
		Status: StatusRunning,
	}

	ex.mu.Lock()
	ex.instances[inst.ID] = inst
	ex.mu.Unlock()

	return StartResult{WorkflowID: inst.ID, Status: inst.Status, DurationMs: elapsedMs(started)}, nil
}

// GetNextStep implements workflow_get_next_step (spec §6, §4.6).
func (ex *Executor) GetNextStep(workflowID string) (GetNextStepResult, error) {
	started := time.Now()
	inst := ex.lookup(workflowID)
	if inst == nil {
		return GetNextStepResult{}, werrors.NewUnknownWorkflow(workflowID)
	}

	if inst.Status == StatusFailed {
		return GetNextStepResult{Error: inst.Err, DurationMs: elapsedMs(started)}, nil
	}
	if inst.Status == StatusCompleted {
		return GetNextStepResult{Steps: []StepEnvelope{}, DurationMs: elapsedMs(started)}, nil
	}

	views, err := ex.drain(inst)
	if err != nil {
		inst.Status = StatusFailed
		inst.Err = toWorkflowError(err)
		return GetNextStepResult{Error: inst.Err, DurationMs: elapsedMs(started)}, nil
	}

	return GetNextStepResult{Steps: viewsToEnvelopes(views), DurationMs: elapsedMs(started)}, nil
}

// UpdateState implements workflow_update_state (spec §6, §4.3 channel iii).
func (ex *Executor) UpdateState(workflowID string, updates map[string]any) (Response, error) {
	started := time.Now()
	inst := ex.lookup(workflowID)
	if inst == nil {
		return Response{}, werrors.NewUnknownWorkflow(workflowID)
	}
	if inst.Status == StatusFailed {
		return Response{}, inst.Err
	}
	if err := inst.State.ApplyStateUpdates(updates); err != nil {
		return Response{}, err
	}
	return Response{DurationMs: elapsedMs(started)}, nil
}

// SubmitStepResult implements workflow_submit_step_result (spec §6): for a resolved
// mcp_call step, writes its result into state under state.mcp_results.<step_id>. No
// per-step result mapping (such as a definition.result_path) is consulted.
func (ex *Executor) SubmitStepResult(workflowID, stepID string, result any) (Response, error) {
	started := time.Now()
	inst := ex.lookup(workflowID)
	if inst == nil {
		return Response{}, werrors.NewUnknownWorkflow(workflowID)
	}
	if inst.Status == StatusFailed {
		return Response{}, inst.Err
	}
	path := "state.mcp_results." + stepID
	if err := inst.State.ApplyStateUpdate(path, result); err != nil {
		return Response{}, err
	}
	return Response{DurationMs: elapsedMs(started)}, nil
}

// Cancel implements workflow_cancel (spec §5, §7: Cancelled is terminal).
func (ex *Executor) Cancel(workflowID string) (Response, error) {
	started := time.Now()
	inst := ex.lookup(workflowID)
	if inst == nil {
		return Response{}, werrors.NewUnknownWorkflow(workflowID)
	}
	inst.Status = StatusFailed
	inst.Err = werrors.NewCancelled(workflowID)
	return Response{DurationMs: elapsedMs(started)}, nil
}

func elapsedMs(started time.Time) int64 {
	return time.Since(started).Milliseconds()
}

func (ex *Executor) lookup(workflowID string) *Instance {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	return ex.instances[workflowID]
}

func (ex *Executor) register(inst *Instance) {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	ex.instances[inst.ID] = inst
	if inst.ParentID != "" {
		ex.parentToChildren[inst.ParentID] = append(ex.parentToChildren[inst.ParentID], inst.ID)
	}
}

func toWorkflowError(err error) *werrors.Error {
	if werr, ok := err.(*werrors.Error); ok {
		return werr
	}
	return werrors.New(werrors.ExpressionError, "%v", err)
}

func viewsToEnvelopes(views []processor.ClientStepView) []StepEnvelope {
	out := make([]StepEnvelope, len(views))
	for i, v := range views {
		out[i] = StepEnvelope{ID: v.ID, Type: string(v.Type), Definition: v.Definition}
	}
	return out
}

func mergeDefaults(specs map[string]workflow.InputSpec, provided map[string]any) map[string]any {
	out := make(map[string]any, len(specs)+len(provided))
	for name, spec := range specs {
		if spec.Default != nil {
			out[name] = spec.Default
		}
	}
	for k, v := range provided {
		out[k] = v
	}
	return out
}

func queueFromSteps(steps []workflow.StepDef) *queue.Queue {
	q := queue.New()
	q.Append(steps...)
	return q
}

func toStateComputedFields(specs []workflow.ComputedFieldSpec) []state.ComputedField {
	out := make([]state.ComputedField, len(specs))
	for i, s := range specs {
		out[i] = state.ComputedField{Path: s.Path, Transform: s.Transform}
	}
	return out
}

// taskAsDefinition wraps a sub_agent_task template as a standalone *workflow.Definition
// so a spawned child instance satisfies subagent.ParentContext too. The wrapper carries
// no SubAgentTasks, so a parallel_foreach nested inside a sub-agent task finds no task
// template and fails as a malformed step.
func taskAsDefinition(task *workflow.SubAgentTask) *workflow.Definition {
	return &workflow.Definition{
		Name:         task.Name,
		Inputs:       task.Inputs,
		DefaultState: task.DefaultState,
		Computed:     task.Computed,
	}
}

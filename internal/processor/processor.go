// Package processor implements the per-kind step processors (component E): folding a
// step into effects on the queue and state (spec §4.5). Each processor receives the
// instance's state snapshot and queue and returns a client-visible descriptor (nil for
// server steps, which are fully handled in place).
package processor

import (
	werrors "github.com/aroton/aromcp-workflow/internal/errors"
	"github.com/aroton/aromcp-workflow/internal/evaluator"
	"github.com/aroton/aromcp-workflow/internal/ids"
	"github.com/aroton/aromcp-workflow/internal/queue"
	"github.com/aroton/aromcp-workflow/internal/state"
	"github.com/aroton/aromcp-workflow/internal/stepkind"
	"github.com/aroton/aromcp-workflow/internal/workflow"
)

// ClientStepView is the {id, type, definition} envelope of spec §6, built by a
// processor for a client-executed step.
type ClientStepView struct {
	ID         string
	Type       stepkind.Kind
	Definition map[string]any

	// ParallelMeta is set only when Type == stepkind.ParallelForeach; it carries the
	// resolved fan-out parameters the executor/sub-agent coordinator need once the
	// client acknowledges this step (spec §4.7), without leaking them into Definition
	// (every key there is client-visible, per spec §3 invariant / §8 property 3).
	ParallelMeta *ParallelForeachMeta
}

// ParallelForeachMeta carries the resolved fan-out parameters for a parallel_foreach
// step, consumed by internal/subagent once the step is acknowledged.
type ParallelForeachMeta struct {
	TaskName        string
	Items           []any
	ContinueOnError bool
}

// DefaultMaxLoopIterations is used when a while_loop step doesn't set max_iterations
// (spec §4.5: "default 100, configurable per step").
const DefaultMaxLoopIterations = 100

// Process folds one queue item into effects on snap/q. It returns a non-nil
// ClientStepView when item surfaces to the client (user_message, mcp_call,
// parallel_foreach); otherwise it returns (nil, nil) once the server-side effects
// (state write, queue splice, scope push/pop) have been applied, and the caller should
// keep draining. It does not itself pop item off q; the caller pops item before calling
// Process, so that any body Process prepends lands at the head of the remaining queue.
func Process(snap *state.Snapshot, q *queue.Queue, item queue.Item, debugMode bool) (*ClientStepView, error) {
	if item.Kind == queue.ItemScopeContinue {
		return nil, processContinuation(snap, q, item.FrameID)
	}
	return processStep(snap, q, item.Step, debugMode)
}

func processStep(snap *state.Snapshot, q *queue.Queue, step workflow.StepDef, debugMode bool) (*ClientStepView, error) {
	if err := stepkind.Validate(step.ID, step.Type, step.Definition); err != nil {
		return nil, err
	}

	switch step.Type {
	case stepkind.UserMessage:
		return buildClientView(step), nil
	case stepkind.MCPCall:
		return buildClientView(step), nil
	case stepkind.StateUpdate:
		return nil, processStateUpdate(snap, step)
	case stepkind.Conditional:
		return nil, processConditional(snap, q, step)
	case stepkind.WhileLoop:
		return nil, processWhileLoop(snap, q, step)
	case stepkind.Foreach:
		return nil, processForeach(snap, q, step)
	case stepkind.ParallelForeach:
		return processParallelForeach(snap, step, debugMode)
	case stepkind.DebugTaskCompletion:
		q.DebugProcessedTasks++
		return nil, nil
	case stepkind.DebugStepAdvance:
		q.DebugCurrentStepIndex++
		return nil, nil
	default:
		return nil, werrors.NewUnknownStepKind(string(step.Type))
	}
}

func buildClientView(step workflow.StepDef) *ClientStepView {
	return &ClientStepView{ID: step.ID, Type: step.Type, Definition: cloneDefinition(step.Definition)}
}

// cloneDefinition returns a shallow copy of def, stripping any underscore-prefixed
// key (spec §6 "Client step envelope": "definition excludes any key beginning with
// _"; spec §8 property 3).
func cloneDefinition(def map[string]any) map[string]any {
	out := make(map[string]any, len(def))
	for k, v := range def {
		if len(k) > 0 && k[0] == '_' {
			continue
		}
		out[k] = v
	}
	return out
}

func processStateUpdate(snap *state.Snapshot, step workflow.StepDef) error {
	path, _ := step.Definition["path"].(string)
	value := step.Definition["value"]
	if err := snap.ApplyStateUpdate(path, value); err != nil {
		if werr, ok := err.(*werrors.Error); ok {
			return werr.WithStep(step.ID)
		}
		return err
	}
	return nil
}

func processConditional(snap *state.Snapshot, q *queue.Queue, step workflow.StepDef) error {
	cond, _ := step.Definition["condition"].(string)
	thenSteps := toStepDefs(step.Definition["then_steps"])
	elseSteps := toStepDefs(step.Definition["else_steps"])

	truthy, err := evalGuard(snap, q, step, cond)
	if err != nil {
		return err
	}

	body := elseSteps
	if truthy {
		body = thenSteps
	}
	if len(body) == 0 {
		return nil
	}

	frameID := q.PushScope(&queue.Frame{Kind: queue.FrameConditional, OpenerStepID: step.ID})
	q.PrependContinuation(frameID)
	q.Prepend(body...)
	return nil
}

func processWhileLoop(snap *state.Snapshot, q *queue.Queue, step workflow.StepDef) error {
	cond, _ := step.Definition["condition"].(string)
	body := toStepDefs(step.Definition["body"])
	maxIter := DefaultMaxLoopIterations
	if v, ok := step.Definition["max_iterations"]; ok {
		if n, ok := toInt(v); ok {
			maxIter = n
		}
	}
	skipOnErr := false
	if v, ok := step.Definition["on_condition_error"].(string); ok && v == "skip" {
		skipOnErr = true
	}

	frame := &queue.Frame{
		Kind:                 queue.FrameLoop,
		OpenerStepID:         step.ID,
		Condition:            cond,
		Body:                 body,
		MaxIterations:        maxIter,
		Iteration:            1,
		OnConditionErrorSkip: skipOnErr,
		Bindings:             loopBindings(1),
	}

	truthy, err := evalGuard(snap, q, step, cond)
	if err != nil {
		if skipOnErr {
			return nil
		}
		return err
	}
	if !truthy || len(body) == 0 {
		return nil
	}

	frameID := q.PushScope(frame)
	q.PrependContinuation(frameID)
	q.Prepend(body...)
	return nil
}

func processForeach(snap *state.Snapshot, q *queue.Queue, step workflow.StepDef) error {
	itemsExpr, _ := step.Definition["items"].(string)
	body := toStepDefs(step.Definition["body"])

	scope := snap.Scope(q.ScopeBindings())
	rawItems, err := evaluator.Eval(itemsExpr, scope)
	if err != nil {
		return werrors.NewExpressionError(step.ID, itemsExpr, err)
	}
	items := toAnySlice(rawItems)
	if len(items) == 0 || len(body) == 0 {
		return nil
	}

	frame := &queue.Frame{
		Kind:         queue.FrameForeach,
		OpenerStepID: step.ID,
		Items:        items,
		Body:         body,
		ItemIndex:    0,
		Bindings:     foreachBindings(items, 0),
	}
	frameID := q.PushScope(frame)
	q.PrependContinuation(frameID)
	q.Prepend(body...)
	return nil
}

func foreachBindings(items []any, index int) map[string]any {
	return map[string]any{
		"item":  items[index],
		"index": index,
		"total": len(items),
		"loop":  map[string]any{"iteration": index + 1, "index": index},
	}
}

// loopBindings builds the loop.iteration (1-based) / loop.index (0-based) bindings a
// while_loop body sees (spec §4.3 "Scopes").
func loopBindings(iteration int) map[string]any {
	return map[string]any{"loop": map[string]any{"iteration": iteration, "index": iteration - 1}}
}

// processContinuation re-enters the frame identified by frameID once its body has
// fully drained (spec §4.5: "On body exhaustion, ...").
func processContinuation(snap *state.Snapshot, q *queue.Queue, frameID int) error {
	frame := q.Frame(frameID)
	if frame == nil {
		return nil
	}

	switch frame.Kind {
	case queue.FrameConditional:
		q.PopScope()
		return nil
	case queue.FrameLoop:
		return continueWhileLoop(snap, q, frame)
	case queue.FrameForeach:
		return continueForeach(snap, q, frame)
	default:
		q.PopScope()
		return nil
	}
}

func continueWhileLoop(snap *state.Snapshot, q *queue.Queue, frame *queue.Frame) error {
	frame.Iteration++
	if frame.Iteration > frame.MaxIterations {
		q.PopScope()
		return werrors.NewLoopBudgetExhausted(frame.OpenerStepID, frame.MaxIterations)
	}
	frame.Bindings = loopBindings(frame.Iteration)

	scope := snap.Scope(q.ScopeBindings())
	truthy, err := evaluator.Eval(frame.Condition, scope)
	if err != nil {
		if frame.OnConditionErrorSkip {
			q.PopScope()
			return nil
		}
		q.PopScope()
		return werrors.NewExpressionError(frame.OpenerStepID, frame.Condition, err)
	}
	if !isTruthy(truthy) {
		q.PopScope()
		return nil
	}

	q.PrependContinuation(frame.ID)
	q.Prepend(frame.Body...)
	return nil
}

func continueForeach(snap *state.Snapshot, q *queue.Queue, frame *queue.Frame) error {
	frame.ItemIndex++
	if frame.ItemIndex >= len(frame.Items) {
		q.PopScope()
		return nil
	}
	frame.Bindings = foreachBindings(frame.Items, frame.ItemIndex)
	q.PrependContinuation(frame.ID)
	q.Prepend(frame.Body...)
	return nil
}

func processParallelForeach(snap *state.Snapshot, step workflow.StepDef, debugMode bool) (*ClientStepView, error) {
	itemsExpr, _ := step.Definition["items"].(string)
	taskName, _ := step.Definition["sub_agent_task"].(string)
	continueOnError := false
	if v, ok := step.Definition["continue_on_error"].(bool); ok {
		continueOnError = v
	}

	scope := snap.Scope(nil)
	rawItems, err := evaluator.Eval(itemsExpr, scope)
	if err != nil {
		return nil, werrors.NewExpressionError(step.ID, itemsExpr, err)
	}
	items := toAnySlice(rawItems)

	tasks := make([]any, len(items))
	for i, item := range items {
		tasks[i] = map[string]any{
			"task_id": ids.SubAgentID(taskName, i),
			"item":    item,
			"index":   i,
		}
	}

	instructions, _ := step.Definition["instructions"].(string)
	prompt, _ := step.Definition["subagent_prompt"].(string)
	if debugMode {
		// spec §4.8 point 4: the debug-mode descriptor carries the same public fields
		// as the non-debug case plus a "DEBUG MODE" marker in instructions.
		instructions = "[DEBUG MODE] " + instructions
	}

	def := map[string]any{
		"instructions":    instructions,
		"tasks":           tasks,
		"subagent_prompt": prompt,
		"sub_agent_steps": []any{},
	}

	return &ClientStepView{
		ID:         step.ID,
		Type:       stepkind.ParallelForeach,
		Definition: def,
		ParallelMeta: &ParallelForeachMeta{
			TaskName:        taskName,
			Items:           items,
			ContinueOnError: continueOnError,
		},
	}, nil
}

// evalGuard evaluates a conditional/while_loop guard expression, translating failures
// into ExpressionError unless the step opts into on_condition_error: skip (spec §4.5
// "Failure policy per processor").
func evalGuard(snap *state.Snapshot, q *queue.Queue, step workflow.StepDef, cond string) (bool, error) {
	scope := snap.Scope(q.ScopeBindings())
	val, err := evaluator.Eval(cond, scope)
	if err != nil {
		if skip, _ := step.Definition["on_condition_error"].(string); skip == "skip" {
			return false, nil
		}
		return false, werrors.NewExpressionError(step.ID, cond, err)
	}
	return isTruthy(val), nil
}

func isTruthy(v any) bool {
	b, ok := v.(bool)
	return ok && b
}

func toStepDefs(v any) []workflow.StepDef {
	slice, ok := v.([]workflow.StepDef)
	if !ok {
		return nil
	}
	return slice
}

func toAnySlice(v any) []any {
	switch x := v.(type) {
	case []any:
		return x
	case nil:
		return nil
	default:
		return nil
	}
}

func toInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case int64:
		return int(x), true
	case float64:
		return int(x), true
	default:
		return 0, false
	}
}

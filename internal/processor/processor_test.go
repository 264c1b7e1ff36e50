package processor

import (
	"strings"
	"testing"

	"github.com/aroton/aromcp-workflow/internal/queue"
	"github.com/aroton/aromcp-workflow/internal/state"
	"github.com/aroton/aromcp-workflow/internal/stepkind"
	"github.com/aroton/aromcp-workflow/internal/workflow"
)

func newSnap(t *testing.T, inputs map[string]any) *state.Snapshot {
	t.Helper()
	schema, err := state.NewSchema(nil)
	if err != nil {
		t.Fatalf("state.NewSchema: %v", err)
	}
	snap, err := state.New(inputs, map[string]any{}, schema)
	if err != nil {
		t.Fatalf("state.New: %v", err)
	}
	return snap
}

func TestProcessUserMessage_SurfacesClientView(t *testing.T) {
	snap := newSnap(t, nil)
	q := queue.New()
	step := workflow.StepDef{ID: "m1", Type: stepkind.UserMessage, Definition: map[string]any{"message": "hi"}}

	view, err := Process(snap, q, queue.Item{Kind: queue.ItemStep, Step: step}, false)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if view == nil || view.ID != "m1" || view.Definition["message"] != "hi" {
		t.Fatalf("view = %+v", view)
	}
}

func TestProcessStateUpdate_WritesState(t *testing.T) {
	snap := newSnap(t, nil)
	q := queue.New()
	step := workflow.StepDef{ID: "s1", Type: stepkind.StateUpdate, Definition: map[string]any{"path": "state.x", "value": 5}}

	view, err := Process(snap, q, queue.Item{Kind: queue.ItemStep, Step: step}, false)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if view != nil {
		t.Fatalf("expected nil view for server step, got %+v", view)
	}
	got, err := snap.Get("state.x")
	if err != nil || got != 5 {
		t.Fatalf("state.x = %v, %v", got, err)
	}
}

func TestProcessConditional_TrueBranch(t *testing.T) {
	snap := newSnap(t, map[string]any{"x": 5})
	q := queue.New()
	step := workflow.StepDef{
		ID:   "c1",
		Type: stepkind.Conditional,
		Definition: map[string]any{
			"condition":  "inputs.x > 0",
			"then_steps": []workflow.StepDef{{ID: "t", Type: stepkind.UserMessage, Definition: map[string]any{"message": "pos"}}},
			"else_steps": []workflow.StepDef{{ID: "e", Type: stepkind.UserMessage, Definition: map[string]any{"message": "neg"}}},
		},
	}

	view, err := Process(snap, q, queue.Item{Kind: queue.ItemStep, Step: step}, false)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if view != nil {
		t.Fatalf("conditional itself never surfaces, got %+v", view)
	}

	head, ok := q.PeekHead()
	if !ok || head.Step.ID != "t" {
		t.Fatalf("expected spliced 'then' branch head, got %+v", head)
	}
}

func TestProcessWhileLoop_TerminatesOnConditionFalse(t *testing.T) {
	snap := newSnap(t, nil)
	if err := snap.ApplyStateUpdate("state.n", 0); err != nil {
		t.Fatal(err)
	}
	q := queue.New()
	step := workflow.StepDef{
		ID:   "w1",
		Type: stepkind.WhileLoop,
		Definition: map[string]any{
			"condition": "state.n < 1",
			"body": []workflow.StepDef{
				{ID: "inc", Type: stepkind.StateUpdate, Definition: map[string]any{"path": "state.n", "value": 1}},
			},
		},
	}

	if _, err := Process(snap, q, queue.Item{Kind: queue.ItemStep, Step: step}, false); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !q.HasOpenScopes() {
		t.Fatal("expected loop scope open")
	}

	// Drain: body step, then continuation, repeatedly, until scope closes.
	iterations := 0
	for q.HasOpenScopes() && iterations < 10 {
		item, ok := q.PopHead()
		if !ok {
			t.Fatal("queue unexpectedly empty while scope open")
		}
		if _, err := Process(snap, q, item, false); err != nil {
			t.Fatalf("Process continuation: %v", err)
		}
		iterations++
	}
	if q.HasOpenScopes() {
		t.Fatal("loop never terminated")
	}
}

func TestProcessWhileLoop_BudgetExhausted(t *testing.T) {
	snap := newSnap(t, nil)
	q := queue.New()
	step := workflow.StepDef{
		ID:   "w1",
		Type: stepkind.WhileLoop,
		Definition: map[string]any{
			"condition":      "true",
			"max_iterations": 2,
			"body":           []workflow.StepDef{{ID: "noop", Type: stepkind.StateUpdate, Definition: map[string]any{"path": "state.x", "value": 1}}},
		},
	}

	if _, err := Process(snap, q, queue.Item{Kind: queue.ItemStep, Step: step}, false); err != nil {
		t.Fatalf("Process: %v", err)
	}

	var lastErr error
	for i := 0; i < 10 && lastErr == nil; i++ {
		item, ok := q.PopHead()
		if !ok {
			break
		}
		_, lastErr = Process(snap, q, item, false)
	}
	if lastErr == nil {
		t.Fatal("expected LoopBudgetExhausted error")
	}
}

func TestProcessForeach_BindsItemIndexTotal(t *testing.T) {
	snap := newSnap(t, map[string]any{"files": []any{"a", "b"}})
	q := queue.New()
	step := workflow.StepDef{
		ID:   "f1",
		Type: stepkind.Foreach,
		Definition: map[string]any{
			"items": "inputs.files",
			"body":  []workflow.StepDef{{ID: "visit", Type: stepkind.UserMessage, Definition: map[string]any{"message": "{{ item }}"}}},
		},
	}

	if _, err := Process(snap, q, queue.Item{Kind: queue.ItemStep, Step: step}, false); err != nil {
		t.Fatalf("Process: %v", err)
	}

	want := []any{"a", "b"}
	var seen []string
	for q.HasOpenScopes() {
		item, ok := q.PopHead()
		if !ok {
			t.Fatal("queue empty while scope open")
		}
		if item.Kind == queue.ItemStep {
			idx := len(seen)
			b := q.ScopeBindings()
			if idx >= len(want) || b["item"] != want[idx] || b["index"] != idx || b["total"] != 2 {
				t.Fatalf("bindings at visit %d = %v", idx, b)
			}
			seen = append(seen, item.Step.ID)
		}
		if _, err := Process(snap, q, item, false); err != nil {
			t.Fatalf("Process: %v", err)
		}
	}
	if len(seen) != 2 {
		t.Fatalf("visited %d steps, want 2", len(seen))
	}
}

func TestProcessParallelForeach_BuildsDescriptorWithNoLeakage(t *testing.T) {
	snap := newSnap(t, map[string]any{"files": []any{"f1.ts", "f2.ts"}})
	step := workflow.StepDef{
		ID:   "p1",
		Type: stepkind.ParallelForeach,
		Definition: map[string]any{
			"items":           "inputs.files",
			"sub_agent_task":  "enforce",
			"instructions":    "do it",
			"subagent_prompt": "fix this file",
			"_internal":       "must not leak",
		},
	}

	view, err := Process(snap, queue.New(), queue.Item{Kind: queue.ItemStep, Step: step}, false)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if view == nil {
		t.Fatal("expected client view")
	}
	if _, ok := view.Definition["_internal"]; ok {
		t.Fatal("underscore-prefixed key leaked into definition")
	}
	tasks, ok := view.Definition["tasks"].([]any)
	if !ok || len(tasks) != 2 {
		t.Fatalf("tasks = %v", view.Definition["tasks"])
	}
	subSteps, ok := view.Definition["sub_agent_steps"].([]any)
	if !ok || len(subSteps) != 0 {
		t.Fatalf("sub_agent_steps = %v, want empty", view.Definition["sub_agent_steps"])
	}
	if view.ParallelMeta == nil || view.ParallelMeta.TaskName != "enforce" || len(view.ParallelMeta.Items) != 2 {
		t.Fatalf("ParallelMeta = %+v", view.ParallelMeta)
	}
}

func TestProcessParallelForeach_DebugModeMarksInstructions(t *testing.T) {
	snap := newSnap(t, map[string]any{"files": []any{"f1.ts"}})
	step := workflow.StepDef{
		ID:   "p1",
		Type: stepkind.ParallelForeach,
		Definition: map[string]any{
			"items":          "inputs.files",
			"sub_agent_task": "enforce",
			"instructions":   "do it",
		},
	}

	nonDebug, err := Process(snap, queue.New(), queue.Item{Kind: queue.ItemStep, Step: step}, false)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got, _ := nonDebug.Definition["instructions"].(string); strings.Contains(got, "DEBUG MODE") {
		t.Fatalf("non-debug instructions should not carry the marker, got %q", got)
	}

	debug, err := Process(snap, queue.New(), queue.Item{Kind: queue.ItemStep, Step: step}, true)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	got, _ := debug.Definition["instructions"].(string)
	if !strings.Contains(got, "DEBUG MODE") {
		t.Fatalf("debug-mode instructions missing DEBUG MODE marker, got %q", got)
	}
}

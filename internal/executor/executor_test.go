package executor

import (
	"testing"

	"github.com/aroton/aromcp-workflow/internal/config"
	"github.com/aroton/aromcp-workflow/internal/logging"
	"github.com/aroton/aromcp-workflow/internal/stepkind"
	"github.com/aroton/aromcp-workflow/internal/transform"
	"github.com/aroton/aromcp-workflow/internal/workflow"
)

func newTestExecutor(debug bool) *Executor {
	cfg := config.Default()
	if debug {
		cfg.Debug.Mode = config.DebugModeSerial
	}
	return New(cfg, logging.NewForTest())
}

// S1: an empty workflow (no steps) completes on the first get_next_step call with an
// empty step list.
func TestScenario_EmptyWorkflowCompletesImmediately(t *testing.T) {
	ex := newTestExecutor(false)
	def := &workflow.Definition{Name: "empty"}

	start, err := ex.Start(def, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	res, err := ex.GetNextStep(start.WorkflowID)
	if err != nil {
		t.Fatalf("GetNextStep: %v", err)
	}
	if len(res.Steps) != 0 {
		t.Fatalf("steps = %+v, want empty", res.Steps)
	}

	inst := ex.lookup(start.WorkflowID)
	if inst.Status != StatusCompleted {
		t.Fatalf("status = %s, want completed", inst.Status)
	}
}

// S2: a single user_message step surfaces as one client-visible batch, then the
// workflow completes.
func TestScenario_SingleUserMessage(t *testing.T) {
	ex := newTestExecutor(false)
	def := &workflow.Definition{
		Name: "greet",
		Steps: []workflow.StepDef{
			{ID: "m1", Type: stepkind.UserMessage, Definition: map[string]any{"message": "hello"}},
		},
	}

	start, err := ex.Start(def, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	res, err := ex.GetNextStep(start.WorkflowID)
	if err != nil {
		t.Fatalf("GetNextStep: %v", err)
	}
	if len(res.Steps) != 1 || res.Steps[0].ID != "m1" {
		t.Fatalf("steps = %+v", res.Steps)
	}

	res2, err := ex.GetNextStep(start.WorkflowID)
	if err != nil {
		t.Fatalf("GetNextStep #2: %v", err)
	}
	if len(res2.Steps) != 0 {
		t.Fatalf("expected completion, got %+v", res2.Steps)
	}
}

// S3: a conditional with a true guard splices its then_steps into the queue
// transparently; the conditional itself never surfaces.
func TestScenario_ConditionalTrueBranch(t *testing.T) {
	ex := newTestExecutor(false)
	def := &workflow.Definition{
		Name:   "branch",
		Inputs: map[string]workflow.InputSpec{"flag": {Type: "boolean"}},
		Steps: []workflow.StepDef{
			{
				ID:   "c1",
				Type: stepkind.Conditional,
				Definition: map[string]any{
					"condition":  "inputs.flag == true",
					"then_steps": []workflow.StepDef{{ID: "t1", Type: stepkind.UserMessage, Definition: map[string]any{"message": "yes"}}},
					"else_steps": []workflow.StepDef{{ID: "e1", Type: stepkind.UserMessage, Definition: map[string]any{"message": "no"}}},
				},
			},
		},
	}

	start, err := ex.Start(def, map[string]any{"flag": true})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	res, err := ex.GetNextStep(start.WorkflowID)
	if err != nil {
		t.Fatalf("GetNextStep: %v", err)
	}
	if len(res.Steps) != 1 || res.Steps[0].ID != "t1" {
		t.Fatalf("steps = %+v, want [t1]", res.Steps)
	}
}

// S4: an integer-length computed field (input.length) is stored in the computed tier as
// an int, not a float.
func TestScenario_IntegerLengthComputedField(t *testing.T) {
	ex := newTestExecutor(false)
	def := &workflow.Definition{
		Name:   "count",
		Inputs: map[string]workflow.InputSpec{"files": {Type: "array"}},
		Computed: map[string]transform.Descriptor{
			"computed.n": {From: []string{"inputs.files"}, Expression: "input.length"},
		},
		Steps: []workflow.StepDef{
			{ID: "m1", Type: stepkind.UserMessage, Definition: map[string]any{"message": "n is {{ computed.n }}"}},
		},
	}

	start, err := ex.Start(def, map[string]any{"files": []any{"a", "b", "c"}})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	inst := ex.lookup(start.WorkflowID)
	n, err := inst.State.Get("computed.n")
	if err != nil {
		t.Fatalf("Get computed.n: %v", err)
	}
	if _, ok := n.(int); !ok {
		t.Fatalf("computed.n = %v (%T), want int", n, n)
	}
	if n != 3 {
		t.Fatalf("computed.n = %v, want 3", n)
	}
}

// S5: a parallel_foreach surfaces a descriptor carrying tasks/instructions/prompt and
// no leaked internal keys, and arms a non-debug fleet once acknowledged.
func TestScenario_ParallelForeachDescriptorAndFleet(t *testing.T) {
	ex := newTestExecutor(false)
	def := &workflow.Definition{
		Name:   "fanout",
		Inputs: map[string]workflow.InputSpec{"files": {Type: "array"}},
		Steps: []workflow.StepDef{
			{
				ID:   "p1",
				Type: stepkind.ParallelForeach,
				Definition: map[string]any{
					"items":           "inputs.files",
					"sub_agent_task":  "enforce",
					"instructions":    "fix lint",
					"subagent_prompt": "fix {{ item }}",
				},
			},
		},
		SubAgentTasks: map[string]*workflow.SubAgentTask{
			"enforce": {
				Name: "enforce",
				Steps: []workflow.StepDef{
					{ID: "s1", Type: stepkind.UserMessage, Definition: map[string]any{"message": "go"}},
				},
			},
		},
	}

	start, err := ex.Start(def, map[string]any{"files": []any{"a.ts", "b.ts"}})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	res, err := ex.GetNextStep(start.WorkflowID)
	if err != nil {
		t.Fatalf("GetNextStep: %v", err)
	}
	if len(res.Steps) != 1 || res.Steps[0].ID != "p1" {
		t.Fatalf("steps = %+v", res.Steps)
	}
	tasks, ok := res.Steps[0].Definition["tasks"].([]any)
	if !ok || len(tasks) != 2 {
		t.Fatalf("tasks = %v, want 2 entries", res.Steps[0].Definition["tasks"])
	}

	// Acknowledge: next call should arm the fleet and block (fleet pending), since
	// neither child has drained yet.
	res2, err := ex.GetNextStep(start.WorkflowID)
	if err != nil {
		t.Fatalf("GetNextStep #2: %v", err)
	}
	if len(res2.Steps) != 0 {
		t.Fatalf("expected empty (fleet pending), got %+v", res2.Steps)
	}

	inst := ex.lookup(start.WorkflowID)
	if inst.fleet == nil || len(inst.fleet.childIDs) != 2 {
		t.Fatalf("fleet = %+v, want 2 children", inst.fleet)
	}

	for _, childID := range inst.fleet.childIDs {
		childRes, err := ex.GetNextStep(childID)
		if err != nil {
			t.Fatalf("child GetNextStep: %v", err)
		}
		if len(childRes.Steps) != 1 || childRes.Steps[0].ID != childID+".s1" {
			t.Fatalf("child steps = %+v", childRes.Steps)
		}
		if _, err := ex.GetNextStep(childID); err != nil {
			t.Fatalf("child drain to completion: %v", err)
		}
		child := ex.lookup(childID)
		if child.Status != StatusCompleted {
			t.Fatalf("child %s status = %s, want completed", childID, child.Status)
		}
	}

	res3, err := ex.GetNextStep(start.WorkflowID)
	if err != nil {
		t.Fatalf("GetNextStep #3: %v", err)
	}
	if len(res3.Steps) != 0 {
		t.Fatalf("expected completion after fleet resolves, got %+v", res3.Steps)
	}
	if inst.Status != StatusCompleted {
		t.Fatalf("parent status = %s, want completed", inst.Status)
	}
}

// S6: under the serial debug driver, a two-item parallel_foreach interleaves into one
// stream instead of producing independently pollable children up front.
func TestScenario_SerialDebugInterleaving(t *testing.T) {
	ex := newTestExecutor(true)
	def := &workflow.Definition{
		Name:   "fanout",
		Inputs: map[string]workflow.InputSpec{"files": {Type: "array"}},
		Steps: []workflow.StepDef{
			{
				ID:   "p1",
				Type: stepkind.ParallelForeach,
				Definition: map[string]any{
					"items":          "inputs.files",
					"sub_agent_task": "enforce",
				},
			},
		},
		SubAgentTasks: map[string]*workflow.SubAgentTask{
			"enforce": {
				Name: "enforce",
				Steps: []workflow.StepDef{
					{ID: "s1", Type: stepkind.UserMessage, Definition: map[string]any{"message": "go"}},
				},
			},
		},
	}

	start, err := ex.Start(def, map[string]any{"files": []any{"a.ts", "b.ts"}})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	if _, err := ex.GetNextStep(start.WorkflowID); err != nil {
		t.Fatalf("GetNextStep (surface parallel_foreach): %v", err)
	}

	var surfaced []string
	for i := 0; i < 10; i++ {
		res, err := ex.GetNextStep(start.WorkflowID)
		if err != nil {
			t.Fatalf("GetNextStep: %v", err)
		}
		if len(res.Steps) == 0 {
			break
		}
		for _, s := range res.Steps {
			surfaced = append(surfaced, s.ID)
		}
	}

	want := []string{"enforce.item0.s1", "enforce.item1.s1"}
	if len(surfaced) != len(want) {
		t.Fatalf("surfaced = %v, want %v", surfaced, want)
	}
	for i, id := range want {
		if surfaced[i] != id {
			t.Fatalf("surfaced[%d] = %s, want %s", i, surfaced[i], id)
		}
	}

	inst := ex.lookup(start.WorkflowID)
	if inst.Status != StatusCompleted {
		t.Fatalf("status = %s, want completed", inst.Status)
	}
}

func TestUnknownWorkflow_ReturnsError(t *testing.T) {
	ex := newTestExecutor(false)
	if _, err := ex.GetNextStep("wf_deadbeef"); err == nil {
		t.Fatal("expected UnknownWorkflow error")
	}
}

func TestSubmitStepResults_BatchAppliesInOrder(t *testing.T) {
	ex := newTestExecutor(false)
	def := &workflow.Definition{
		Name: "tool",
		Steps: []workflow.StepDef{
			{ID: "m1", Type: stepkind.MCPCall, Definition: map[string]any{"tool": "lint", "parameters": map[string]any{}}},
			{ID: "m2", Type: stepkind.MCPCall, Definition: map[string]any{"tool": "lint", "parameters": map[string]any{}}},
		},
	}
	start, err := ex.Start(def, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := ex.GetNextStep(start.WorkflowID); err != nil {
		t.Fatalf("GetNextStep: %v", err)
	}

	resp, err := ex.SubmitStepResults(start.WorkflowID, []StepResult{
		{StepID: "m1", Result: "ok1"},
		{StepID: "m2", Result: "ok2"},
	})
	if err != nil {
		t.Fatalf("SubmitStepResults: %v", err)
	}
	if resp.DurationMs < 0 {
		t.Fatalf("DurationMs = %d", resp.DurationMs)
	}

	inst := ex.lookup(start.WorkflowID)
	v1, _ := inst.State.Get("state.mcp_results.m1")
	v2, _ := inst.State.Get("state.mcp_results.m2")
	if v1 != "ok1" || v2 != "ok2" {
		t.Fatalf("mcp_results = %v, %v", v1, v2)
	}
}

func TestCancel_IsTerminal(t *testing.T) {
	ex := newTestExecutor(false)
	def := &workflow.Definition{
		Name:  "cancelme",
		Steps: []workflow.StepDef{{ID: "m1", Type: stepkind.UserMessage, Definition: map[string]any{"message": "hi"}}},
	}
	start, err := ex.Start(def, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := ex.Cancel(start.WorkflowID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	res, err := ex.GetNextStep(start.WorkflowID)
	if err != nil {
		t.Fatalf("GetNextStep after cancel: %v", err)
	}
	if res.Error == nil {
		t.Fatal("expected Cancelled error after cancellation")
	}
}

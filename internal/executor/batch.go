package executor

import "time"

// StepResult is one entry of the SPEC_FULL.md workflow_submit_step_results batch
// convenience wrapper, carrying a single mcp_call step's resolved result.
type StepResult struct {
	StepID string
	Result any
}

// SubmitStepResults is the SPEC_FULL.md batch convenience wrapper: it calls
// SubmitStepResult once per entry, in order, for client convenience when a
// parallel_foreach's sibling mcp_call results arrive together (mirrors the original
// system's complete_work_item; adds no new engine semantics beyond spec.md §6).
func (ex *Executor) SubmitStepResults(workflowID string, results []StepResult) (Response, error) {
	started := time.Now()
	for _, r := range results {
		if _, err := ex.SubmitStepResult(workflowID, r.StepID, r.Result); err != nil {
			return Response{}, err
		}
	}
	return Response{DurationMs: elapsedMs(started)}, nil
}

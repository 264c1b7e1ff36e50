package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/aroton/aromcp-workflow/internal/rpc"
	"github.com/spf13/cobra"
)

var submitResultCmd = &cobra.Command{
	Use:   "submit-result <workflow-id> <step-id> <result-json>",
	Short: "Call workflow_submit_step_result against a running serve process",
	Args:  cobra.ExactArgs(3),
	RunE:  runSubmitResult,
}

func init() {
	rootCmd.AddCommand(submitResultCmd)
}

func runSubmitResult(cmd *cobra.Command, args []string) error {
	var result any
	if err := json.Unmarshal([]byte(args[2]), &result); err != nil {
		return fmt.Errorf("parsing result as JSON: %w", err)
	}

	resp, err := rpc.NewClient(socketPath).Call(rpc.Request{
		Method:     rpc.MethodSubmitStepResult,
		WorkflowID: args[0],
		StepID:     args[1],
		Result:     result,
	})
	if err != nil {
		return err
	}
	if resp.Error != nil {
		return printEngineError(resp.Error)
	}
	fmt.Printf("%s result recorded (duration_ms=%d)\n", checkMark(), resp.DurationMs)
	return nil
}

var submitResultsCmd = &cobra.Command{
	Use:   "submit-results <workflow-id> <results-json>",
	Short: "Call workflow_submit_step_results (batch) against a running serve process",
	Long: `submit-results takes a JSON array of {"step_id": ..., "result": ...} entries, a
convenience for reporting several sibling mcp_call results (e.g. a parallel_foreach's
children) in one call instead of one submit-result per step.`,
	Args: cobra.ExactArgs(2),
	RunE: runSubmitResults,
}

func init() {
	rootCmd.AddCommand(submitResultsCmd)
}

func runSubmitResults(cmd *cobra.Command, args []string) error {
	var entries []rpc.StepResultEntry
	if err := json.Unmarshal([]byte(args[1]), &entries); err != nil {
		return fmt.Errorf("parsing results as JSON: %w", err)
	}

	resp, err := rpc.NewClient(socketPath).Call(rpc.Request{
		Method:     rpc.MethodSubmitStepResults,
		WorkflowID: args[0],
		Results:    entries,
	})
	if err != nil {
		return err
	}
	if resp.Error != nil {
		return printEngineError(resp.Error)
	}
	fmt.Printf("%s %d result(s) recorded (duration_ms=%d)\n", checkMark(), len(entries), resp.DurationMs)
	return nil
}

package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/aroton/aromcp-workflow/internal/rpc"
	"github.com/spf13/cobra"
)

var updateStateCmd = &cobra.Command{
	Use:   "update-state <workflow-id> <updates-json>",
	Short: "Call workflow_update_state against a running serve process",
	Long: `update-state applies a JSON object of dotted state.* paths -> values, e.g.:

  aromcp-workflow update-state wf_ab12cd34 '{"state.counter": 3}'`,
	Args: cobra.ExactArgs(2),
	RunE: runUpdateState,
}

func init() {
	rootCmd.AddCommand(updateStateCmd)
}

func runUpdateState(cmd *cobra.Command, args []string) error {
	var updates map[string]any
	if err := json.Unmarshal([]byte(args[1]), &updates); err != nil {
		return fmt.Errorf("parsing updates as JSON: %w", err)
	}

	resp, err := rpc.NewClient(socketPath).Call(rpc.Request{
		Method:     rpc.MethodUpdateState,
		WorkflowID: args[0],
		Updates:    updates,
	})
	if err != nil {
		return err
	}
	if resp.Error != nil {
		return printEngineError(resp.Error)
	}
	fmt.Printf("%s state updated (duration_ms=%d)\n", checkMark(), resp.DurationMs)
	return nil
}

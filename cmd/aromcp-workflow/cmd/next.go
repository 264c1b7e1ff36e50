package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/aroton/aromcp-workflow/internal/rpc"
	"github.com/spf13/cobra"
)

var nextCmd = &cobra.Command{
	Use:   "next <workflow-id>",
	Short: "Call workflow_get_next_step against a running serve process",
	Args:  cobra.ExactArgs(1),
	RunE:  runNext,
}

func init() {
	rootCmd.AddCommand(nextCmd)
}

func runNext(cmd *cobra.Command, args []string) error {
	resp, err := rpc.NewClient(socketPath).Call(rpc.Request{
		Method:     rpc.MethodGetNextStep,
		WorkflowID: args[0],
	})
	if err != nil {
		return err
	}
	if resp.Error != nil {
		return printEngineError(resp.Error)
	}
	out, err := json.MarshalIndent(resp.Steps, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func printEngineError(e *rpc.ErrorPayload) error {
	fmt.Printf("%s %s: %s\n", errorMark(), e.Code, e.Message)
	return fmt.Errorf("workflow error: %s", e.Code)
}

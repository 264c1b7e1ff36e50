package cmd

import (
	"fmt"

	"github.com/aroton/aromcp-workflow/internal/rpc"
	"github.com/spf13/cobra"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <workflow-id>",
	Short: "Call workflow_cancel against a running serve process",
	Args:  cobra.ExactArgs(1),
	RunE:  runCancel,
}

func init() {
	rootCmd.AddCommand(cancelCmd)
}

func runCancel(cmd *cobra.Command, args []string) error {
	resp, err := rpc.NewClient(socketPath).Call(rpc.Request{
		Method:     rpc.MethodCancel,
		WorkflowID: args[0],
	})
	if err != nil {
		return err
	}
	fmt.Printf("%s cancelled (duration_ms=%d)\n", checkMark(), resp.DurationMs)
	return nil
}

package cmd

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/aroton/aromcp-workflow/internal/rpc"
	"github.com/spf13/cobra"
)

var startInputsJSON string

var startCmd = &cobra.Command{
	Use:   "start <workflow-file>",
	Short: "Call workflow_start against a running serve process",
	Args:  cobra.ExactArgs(1),
	RunE:  runStart,
}

func init() {
	startCmd.Flags().StringVar(&startInputsJSON, "inputs", "{}", "JSON object of input values")
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	path := args[0]
	if !filepath.IsAbs(path) {
		dir, err := getWorkDir()
		if err != nil {
			return err
		}
		path = filepath.Join(dir, path)
	}

	var inputs map[string]any
	if err := json.Unmarshal([]byte(startInputsJSON), &inputs); err != nil {
		return fmt.Errorf("parsing --inputs as JSON: %w", err)
	}

	resp, err := rpc.NewClient(socketPath).Call(rpc.Request{
		Method:         rpc.MethodStart,
		WorkflowPath:   path,
		WorkflowFormat: strings.TrimPrefix(filepath.Ext(path), "."),
		Inputs:         inputs,
	})
	if err != nil {
		return err
	}
	fmt.Printf("%s workflow_id=%s status=%s duration_ms=%d\n", checkMark(), resp.WorkflowID, resp.Status, resp.DurationMs)
	return nil
}

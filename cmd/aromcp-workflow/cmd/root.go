// Package cmd implements the aromcp-workflow CLI: a cobra-based driver for the
// engine's §6 RPC surface (workflow_start, workflow_get_next_step,
// workflow_update_state, workflow_submit_step_result, workflow_submit_step_results,
// workflow_cancel), plus a standalone `validate` subcommand.
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version is set at build time via ldflags.
	Version = "dev"

	// Global flags.
	verbose    bool
	workDir    string
	socketPath string
)

var rootCmd = &cobra.Command{
	Use:   "aromcp-workflow",
	Short: "Workflow engine RPC driver",
	Long: `aromcp-workflow drives the workflow engine's request/response RPC surface:
start a workflow, pull its next client-visible steps, push state updates and
mcp_call results back in, and cancel a run.

A single "serve" process hosts the engine's in-memory instance map for its whole
lifetime; the other subcommands are thin clients against that process's socket.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&workDir, "workdir", "C", "", "working directory (default: current)")
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", defaultSocketPath(), "RPC server socket path")

	rootCmd.Version = Version
	rootCmd.SetVersionTemplate("aromcp-workflow {{.Version}}\n")
}

func defaultSocketPath() string {
	return os.TempDir() + "/aromcp-workflow.sock"
}

func checkMark() string { return "[OK]" }

func errorMark() string { return "[ERROR]" }

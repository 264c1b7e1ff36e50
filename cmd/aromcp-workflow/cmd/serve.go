package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/aroton/aromcp-workflow/internal/config"
	"github.com/aroton/aromcp-workflow/internal/executor"
	"github.com/aroton/aromcp-workflow/internal/logging"
	"github.com/aroton/aromcp-workflow/internal/rpc"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Host the workflow engine's RPC socket",
	Long: `serve starts a long-running process that owns one executor.Executor for its
whole lifetime and accepts workflow_start/get_next_step/update_state/
submit_step_result/submit_step_results/cancel calls over a Unix socket (--socket).

Run the start/next/update-state/submit-result/submit-results/cancel subcommands
against a running serve process from another terminal or script.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	dir, err := getWorkDir()
	if err != nil {
		return err
	}

	cfg, err := config.LoadFromDir(dir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, closer, err := logging.NewFromConfig(cfg, dir)
	if err != nil {
		return fmt.Errorf("setting up logging: %w", err)
	}
	if closer != nil {
		defer closer.Close()
	}

	ex := executor.New(cfg, logger)
	srv := rpc.NewServer(socketPath, ex, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	fmt.Printf("%s listening on %s\n", checkMark(), srv.Path())
	return srv.Start(ctx)
}

package main

import (
	"github.com/spf13/cobra"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/sells-group/competitor-intel/internal/workflow"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the Temporal worker for competitor refresh workflows",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEngine(ctx, "worker")
		if err != nil {
			return err
		}
		defer env.Close()

		c, err := workflow.Dial(cfg.Temporal)
		if err != nil {
			return err
		}
		defer c.Close()

		queue := workflow.TaskQueue(cfg.Temporal)
		w := workflow.NewWorker(c, queue, &workflow.Activities{
			Discoverer: env.Discoverer,
			Verifier:   env.Verifier,
		})
		zap.L().Info("worker starting", zap.String("task_queue", queue))
		return w.Run(worker.InterruptCh())
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

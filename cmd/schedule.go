package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/competitor-intel/internal/workflow"
)

var (
	scheduleEvery     time.Duration
	schedulePriority  string
	scheduleMaxFields int
	scheduleVerify    bool
	scheduleOnce      bool
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule <competitor-id>",
	Short: "Start or schedule a Temporal refresh for a competitor",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := discoveryOptions(schedulePriority, scheduleMaxFields); err != nil {
			return err
		}
		if err := cfg.Validate("schedule"); err != nil {
			return err
		}

		c, err := workflow.Dial(cfg.Temporal)
		if err != nil {
			return err
		}
		defer c.Close()

		in := workflow.RefreshInput{
			EntityID:  args[0],
			Priority:  schedulePriority,
			MaxFields: scheduleMaxFields,
			Verify:    scheduleVerify,
		}
		queue := workflow.TaskQueue(cfg.Temporal)
		ctx := cmd.Context()

		if scheduleOnce {
			runID, err := workflow.Start(ctx, c, queue, in)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]string{"run_id": runID})
		}
		id, err := workflow.Schedule(ctx, c, queue, in, scheduleEvery)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), map[string]string{"schedule_id": id})
	},
}

func init() {
	scheduleCmd.Flags().DurationVar(&scheduleEvery, "every", 24*time.Hour, "refresh interval")
	scheduleCmd.Flags().StringVar(&schedulePriority, "priority", "", "only fields of this tier (P0-P3)")
	scheduleCmd.Flags().IntVar(&scheduleMaxFields, "max-fields", 0, "cap fields per refresh (0 = no cap)")
	scheduleCmd.Flags().BoolVar(&scheduleVerify, "verify", false, "verify critical fields after discovery")
	scheduleCmd.Flags().BoolVar(&scheduleOnce, "once", false, "start a single refresh now instead of a schedule")
	rootCmd.AddCommand(scheduleCmd)
}

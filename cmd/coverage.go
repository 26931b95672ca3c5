package main

import (
	"github.com/spf13/cobra"
)

var coverageCmd = &cobra.Command{
	Use:   "coverage",
	Short: "Report how many fields have a persisted source",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEngine(ctx, "coverage")
		if err != nil {
			return err
		}
		defer env.Close()

		rep, err := env.Discoverer.Coverage(ctx)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), rep)
	},
}

func init() {
	rootCmd.AddCommand(coverageCmd)
}

package main

import (
	"strings"

	"github.com/spf13/cobra"
)

var (
	contextQuery  string
	contextFields string
)

var contextCmd = &cobra.Command{
	Use:   "context <competitor-id>",
	Short: "Print the reconciled unified context for a competitor",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEngine(ctx, "context")
		if err != nil {
			return err
		}
		defer env.Close()

		comp, err := env.Store.GetCompetitor(ctx, args[0])
		if err != nil {
			return err
		}
		uc := env.Unified.GetUnifiedContext(ctx, comp.ID, comp.Name, contextQuery, splitFields(contextFields))
		return printJSON(cmd.OutOrStdout(), uc)
	},
}

// splitFields parses a comma-separated field list, dropping blanks.
func splitFields(raw string) []string {
	var out []string
	for _, f := range strings.Split(raw, ",") {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func init() {
	contextCmd.Flags().StringVar(&contextQuery, "query", "", "knowledge-base query (default: \"<name> competitive overview\")")
	contextCmd.Flags().StringVar(&contextFields, "fields", "", "comma-separated fields to reconcile (default: all)")
	rootCmd.AddCommand(contextCmd)
}

package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/competitor-intel/internal/discovery"
	"github.com/sells-group/competitor-intel/internal/model"
)

var (
	discoverAll       bool
	discoverPriority  string
	discoverMaxFields int
)

var discoverCmd = &cobra.Command{
	Use:   "discover [competitor-id...]",
	Short: "Find and validate sources for unsourced fields",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 && !discoverAll {
			return eris.New("pass competitor ids or --all")
		}
		opts, err := discoveryOptions(discoverPriority, discoverMaxFields)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		env, err := initEngine(ctx, "discover")
		if err != nil {
			return err
		}
		defer env.Close()

		results, err := env.Discoverer.DiscoverAll(ctx, args, opts)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), results)
	},
}

func discoveryOptions(priority string, maxFields int) (discovery.Options, error) {
	if maxFields < 0 {
		return discovery.Options{}, eris.New("--max-fields must be >= 0")
	}
	opts := discovery.Options{MaxFields: maxFields}
	if priority != "" {
		tier, err := model.ParseTier(priority)
		if err != nil {
			return discovery.Options{}, err
		}
		opts.Priority = &tier
	}
	return opts, nil
}

func init() {
	discoverCmd.Flags().BoolVar(&discoverAll, "all", false, "discover for every competitor")
	discoverCmd.Flags().StringVar(&discoverPriority, "priority", "", "only fields of this tier (P0-P3)")
	discoverCmd.Flags().IntVar(&discoverMaxFields, "max-fields", 0, "cap fields processed per competitor (0 = no cap)")
	rootCmd.AddCommand(discoverCmd)
}

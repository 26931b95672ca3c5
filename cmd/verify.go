package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var verifyAll bool

var verifyCmd = &cobra.Command{
	Use:   "verify [competitor-id...]",
	Short: "Verify critical fields against grounded search and apply corrections",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 && !verifyAll {
			return eris.New("pass competitor ids or --all")
		}

		ctx := cmd.Context()
		env, err := initEngine(ctx, "verify")
		if err != nil {
			return err
		}
		defer env.Close()

		out, err := env.Verifier.VerifyAll(ctx, args)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), out)
	},
}

func init() {
	verifyCmd.Flags().BoolVar(&verifyAll, "all", false, "verify every competitor")
	rootCmd.AddCommand(verifyCmd)
}

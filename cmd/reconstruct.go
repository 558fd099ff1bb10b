package cmd

import (
	"fmt"

	"github.com/evaleval/evalsync/internal/reconstruct"
	"github.com/spf13/cobra"
)

var reconstructCmd = &cobra.Command{
	Use:   "reconstruct [table] [outdir]",
	Short: "Write the records of a table back out as JSON files",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, log, err := setup(cmd)
		if err != nil {
			return err
		}
		cls := resolveShape(ctx, cfg, log)

		n, err := reconstruct.New(cls.Complex, log).Reconstruct(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "wrote %d records to %s\n", n, args[1])
		return err
	},
}

func init() {
	rootCmd.AddCommand(reconstructCmd)
}

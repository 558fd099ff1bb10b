package cmd

import (
	"fmt"

	"github.com/evaleval/evalsync/internal/ingest"
	"github.com/evaleval/evalsync/pkg/logger"
	"github.com/spf13/cobra"
)

var addCmd = &cobra.Command{
	Use:   "add [record.json...]",
	Short: "Validate records and file them under the data directory with a fresh id",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, log, err := setup(cmd)
		if err != nil {
			return err
		}
		store := ingest.NewRecordStore(dataDir(cfg))

		failed := 0
		for _, src := range args {
			dst, err := store.AddFile(src)
			if err != nil {
				log.Error(ctx, "record rejected", logger.String("path", src), logger.Error(err))
				failed++
				continue
			}
			if _, err := fmt.Fprintln(cmd.OutOrStdout(), dst); err != nil {
				return err
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d records rejected", failed, len(args))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(addCmd)
}

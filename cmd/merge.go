package cmd

import (
	"fmt"

	"github.com/evaleval/evalsync/internal/ingest"
	"github.com/evaleval/evalsync/internal/table"
	"github.com/evaleval/evalsync/pkg/logger"
	"github.com/spf13/cobra"
)

var (
	mergeTable   string
	mergeRebuild bool
)

var mergeCmd = &cobra.Command{
	Use:   "merge [inputs...] --table [path]",
	Short: "Merge record files into a table, skipping records already present",
	Long: `Each input is a record file or a directory searched recursively for *.json.
Rows whose identity key is already in the table are skipped. With --rebuild
the table is recomputed from the inputs alone.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, log, err := setup(cmd)
		if err != nil {
			return err
		}
		if _, err := table.CodecFor(mergeTable); err != nil {
			return err
		}
		cls := resolveShape(ctx, cfg, log)

		files, err := ingest.CollectJSON(args...)
		if err != nil {
			return err
		}
		batch, err := ingest.NewFlattener(cls.Complex, cfg.Strict).FlattenFiles(ctx, files, log)
		if err != nil {
			return err
		}

		res, err := table.NewMerger(cls.Complex).Merge(batch.Rows, mergeTable, mergeRebuild)
		if err != nil {
			return fmt.Errorf("merge into %s: %w", mergeTable, err)
		}
		if res.Skipped > 0 {
			log.Info(ctx, "skipped duplicate records", logger.Int("duplicates", res.Skipped))
		}
		if res.Changed {
			if err := table.WriteFile(mergeTable, res.Table); err != nil {
				return err
			}
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: %d rows, %d added, %d duplicates, %d invalid\n",
			mergeTable, len(res.Table.Rows), res.Added, res.Skipped, len(batch.Invalid))
		return err
	},
}

func init() {
	mergeCmd.Flags().StringVarP(&mergeTable, "table", "t", "", "Table file (.parquet, .db or .sqlite)")
	mergeCmd.Flags().BoolVar(&mergeRebuild, "rebuild", false, "Ignore the existing table contents")
	_ = mergeCmd.MarkFlagRequired("table")
	rootCmd.AddCommand(mergeCmd)
}

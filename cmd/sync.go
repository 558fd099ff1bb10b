package cmd

import (
	"github.com/evaleval/evalsync/internal/ingest"
	"github.com/evaleval/evalsync/internal/metrics"
	"github.com/evaleval/evalsync/internal/remote"
	"github.com/evaleval/evalsync/internal/syncer"
	"github.com/evaleval/evalsync/internal/table"
	"github.com/evaleval/evalsync/pkg/logger"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Rebuild the tables of leaderboards whose records changed",
	Long: `Detects changed record files between base_rev and head_rev, downloads the
current remote table of each affected leaderboard, rebuilds it from every
record file and writes the manifest read by "evalsync upload".`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, log, err := setup(cmd)
		if err != nil {
			return err
		}
		cls := resolveShape(ctx, cfg, log)

		store, err := remote.Open(ctx, cfg.Remote, cfg.GCSCredentials)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		rec := metrics.New()
		s := &syncer.Syncer{
			DataDir:      dataDir(cfg),
			WorkDir:      cfg.WorkDir,
			ManifestPath: cfg.ManifestPath(),
			Ext:          cfg.TableExt(),
			Detector:     ingest.NewGitDetector(cfg.RepoDir, cfg.DataDir, cfg.BaseRev, cfg.HeadRev),
			Store:        store,
			Flattener:    ingest.NewFlattener(cls.Complex, cfg.Strict),
			Merger:       table.NewMerger(cls.Complex),
			Log:          log,
			Metrics:      rec,
		}
		_, runErr := s.Run(ctx)
		if err := rec.WriteTextfile(cfg.MetricsFile); err != nil {
			log.Warn(ctx, "could not write metrics", logger.String("path", cfg.MetricsFile), logger.Error(err))
		}
		return runErr
	},
}

var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Publish the tables a sync run modified and refresh the catalog",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, log, err := setup(cmd)
		if err != nil {
			return err
		}
		store, err := remote.Open(ctx, cfg.Remote, cfg.GCSCredentials)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		rec := metrics.New()
		p := &syncer.Publisher{
			WorkDir:      cfg.WorkDir,
			ManifestPath: cfg.ManifestPath(),
			Ext:          cfg.TableExt(),
			DatasetName:  cfg.DatasetName,
			Store:        store,
			Log:          log,
			Metrics:      rec,
		}
		_, upErr := p.Upload(ctx)
		if err := rec.WriteTextfile(cfg.MetricsFile); err != nil {
			log.Warn(ctx, "could not write metrics", logger.String("path", cfg.MetricsFile), logger.Error(err))
		}
		return upErr
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(uploadCmd)
}

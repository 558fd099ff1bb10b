package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/evaleval/evalsync/internal/config"
	"github.com/evaleval/evalsync/internal/shape"
	"github.com/evaleval/evalsync/pkg/logger"
	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML config (default $EVALSYNC_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log level (debug, info, warn, error)")
}

var rootCmd = &cobra.Command{
	Use:           "evalsync",
	Short:         "Sync evaluation records into per-leaderboard tables",
	Long:          "evalsync flattens JSON evaluation records into one columnar table per leaderboard,\nrebuilds only the leaderboards whose records changed and publishes them to a dataset store.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads the configuration and builds the logger for a command.
func setup(cmd *cobra.Command) (*config.Config, logger.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	log, err := logger.New(cmd.ErrOrStderr(), cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log.Named(cmd.Name()), nil
}

// resolveShape classifies the configured shape description, falling back
// to the configured opaque column set with a warning.
func resolveShape(ctx context.Context, cfg *config.Config, log logger.Logger) shape.Classification {
	cls := shape.Resolve(cfg.SchemaPath, cfg.OpaqueColumns)
	if cls.Degraded() {
		log.Warn(ctx, "shape description unavailable, using configured opaque columns",
			logger.String("schema_path", cfg.SchemaPath),
			logger.Strings("opaque_columns", cls.Complex.Names()),
			logger.Error(cls.Err))
	} else {
		log.Debug(ctx, "classified complex fields",
			logger.String("schema_path", cls.Source),
			logger.Strings("fields", cls.Complex.Names()))
	}
	return cls
}

// dataDir resolves the record corpus against the repository root.
func dataDir(cfg *config.Config) string {
	if filepath.IsAbs(cfg.DataDir) {
		return cfg.DataDir
	}
	return filepath.Join(cfg.RepoDir, cfg.DataDir)
}

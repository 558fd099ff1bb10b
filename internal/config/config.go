// Package config defines the evalsync configuration and its loader.
package config

import (
	"path/filepath"

	"github.com/evaleval/evalsync/internal/table"
)

// DefaultOpaqueColumns is the opaque column set used when no shape
// description can be loaded.
var DefaultOpaqueColumns = []string{
	"source_data",
	"source_metadata",
	"model_info",
	"evaluation_results",
	"additional_details",
}

// Config contains process configuration.
type Config struct {
	// DataDir is the record corpus, relative to RepoDir for change detection.
	DataDir string `koanf:"data_dir" validate:"required"`
	// WorkDir holds downloaded and rebuilt tables and the manifest.
	WorkDir string `koanf:"work_dir" validate:"required"`
	// RepoDir is the git repository holding DataDir.
	RepoDir string `koanf:"repo_dir" validate:"required"`

	// Remote addresses the dataset store: gs://bucket/prefix, file://path or mem://.
	Remote         string `koanf:"remote" validate:"required"`
	GCSCredentials string `koanf:"gcs_credentials"`
	// DatasetName titles the catalog card.
	DatasetName string `koanf:"dataset_name" validate:"required"`

	// TableFormat is parquet or sqlite.
	TableFormat string `koanf:"table_format" validate:"oneof=parquet sqlite"`
	// SchemaPath is the shape description used to classify complex fields.
	SchemaPath string `koanf:"schema_path"`
	// OpaqueColumns applies when SchemaPath cannot be loaded.
	OpaqueColumns []string `koanf:"opaque_columns"`
	// Strict rejects records missing required fields.
	Strict bool `koanf:"strict"`

	BaseRev      string `koanf:"base_rev" validate:"required"`
	HeadRev      string `koanf:"head_rev" validate:"required"`
	ManifestName string `koanf:"manifest_name" validate:"required"`

	// MetricsFile, when set, receives a prometheus text export after each run.
	MetricsFile string `koanf:"metrics_file"`
	LogLevel    string `koanf:"log_level" validate:"oneof=debug info warn warning error"`
}

// New returns a Config holding the defaults.
func New() *Config {
	return &Config{
		DataDir:       "data",
		WorkDir:       "parquet_output",
		RepoDir:       ".",
		Remote:        "file://./remote",
		DatasetName:   "evaleval/every_eval_ever",
		TableFormat:   table.FormatParquet,
		SchemaPath:    "schema/eval.schema.json",
		OpaqueColumns: append([]string(nil), DefaultOpaqueColumns...),
		Strict:        true,
		BaseRev:       "HEAD~1",
		HeadRev:       "HEAD",
		ManifestName:  "modified_leaderboards.json",
		LogLevel:      "info",
	}
}

// TableExt returns the file extension of the configured table format.
func (c *Config) TableExt() string {
	ext, err := table.Ext(c.TableFormat)
	if err != nil {
		return ".parquet"
	}
	return ext
}

// ManifestPath returns where the sync manifest is written.
func (c *Config) ManifestPath() string {
	return filepath.Join(c.WorkDir, c.ManifestName)
}

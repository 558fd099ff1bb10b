package syncer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/evaleval/evalsync/internal/ingest"
	"github.com/evaleval/evalsync/internal/layout"
	"github.com/evaleval/evalsync/internal/metrics"
	"github.com/evaleval/evalsync/internal/remote"
	"github.com/evaleval/evalsync/internal/table"
	"github.com/evaleval/evalsync/pkg/logger"
)

// Detector reports the leaderboards whose record files changed since the
// last synchronization point.
type Detector interface {
	Detect(ctx context.Context) (ingest.ChangeSet, error)
}

// Syncer rebuilds the tables of changed leaderboards in WorkDir and writes
// the manifest the upload stage consumes.
type Syncer struct {
	DataDir      string
	WorkDir      string
	ManifestPath string
	// Ext is the table file extension, which selects the format.
	Ext string

	Detector  Detector
	Store     remote.Store
	Flattener *ingest.Flattener
	Merger    *table.Merger
	Log       logger.Logger
	Metrics   *metrics.Recorder
}

// Run performs one sync. The manifest is written whenever the run gets past
// change detection; a *RunError reports leaderboards that failed.
func (s *Syncer) Run(ctx context.Context) (*Manifest, error) {
	start := time.Now()
	defer s.Metrics.RunFinished(start)

	if info, err := os.Stat(s.DataDir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNoDataDir, s.DataDir)
	}
	if err := os.MkdirAll(s.WorkDir, 0o755); err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}

	changes, err := s.Detector.Detect(ctx)
	if err != nil {
		return nil, fmt.Errorf("detect changes: %w", err)
	}

	coldStart, err := s.remoteIsEmpty(ctx)
	if err != nil {
		s.Log.Warn(ctx, "could not list remote tables, syncing all leaderboards", logger.Error(err))
		coldStart = true
	}
	if coldStart {
		if changes, err = ingest.Leaderboards(s.DataDir); err != nil {
			return nil, fmt.Errorf("list leaderboards: %w", err)
		}
		s.Log.Info(ctx, "remote holds no tables, syncing all leaderboards", logger.Int("leaderboards", len(changes)))
	}

	m := NewManifest()
	if len(changes) == 0 {
		s.Log.Info(ctx, "no changes detected, nothing to sync")
		return m, m.Write(s.ManifestPath)
	}

	names := changes.Names()
	m.Modified = names
	downloaded := s.prefetch(ctx, names)
	for _, lb := range names {
		if downloaded[lb] {
			m.Downloaded = append(m.Downloaded, lb)
		}
	}

	for _, lb := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		changed, err := s.rebuild(ctx, lb, len(changes[lb]), downloaded[lb])
		if err != nil {
			s.Log.Error(ctx, "leaderboard failed", logger.String("leaderboard", lb), logger.Error(err))
			s.Metrics.Leaderboard(metrics.StatusFailed)
			m.Errors++
			continue
		}
		m.Converted = append(m.Converted, lb)
		if changed {
			m.ActuallyModified = append(m.ActuallyModified, lb)
			s.Metrics.Leaderboard(metrics.StatusChanged)
		} else {
			s.Metrics.Leaderboard(metrics.StatusUnchanged)
		}
	}

	if err := m.Write(s.ManifestPath); err != nil {
		return m, err
	}
	s.Log.Info(ctx, "sync finished",
		logger.Int("converted", len(m.Converted)),
		logger.Int("modified", len(m.ActuallyModified)),
		logger.Int("unchanged", len(m.Converted)-len(m.ActuallyModified)),
		logger.Int("errors", m.Errors),
	)
	if m.Errors > 0 {
		return m, &RunError{Stage: "sync", Failed: m.Errors}
	}
	return m, nil
}

func (s *Syncer) remoteIsEmpty(ctx context.Context) (bool, error) {
	tables, err := remote.Tables(ctx, s.Store, s.Ext)
	if err != nil {
		return false, err
	}
	return len(tables) == 0, nil
}

// prefetch downloads the remote table of every leaderboard that has one.
// Any failure other than a missing table discards all downloads, so every
// leaderboard is rebuilt without a comparison base.
func (s *Syncer) prefetch(ctx context.Context, names []string) map[string]bool {
	got := map[string]bool{}
	for _, lb := range names {
		local := layout.TablePath(s.WorkDir, lb, s.Ext)
		err := s.Store.Get(ctx, layout.TableKey(lb, s.Ext), local)
		if errors.Is(err, remote.ErrNotFound) {
			_ = os.Remove(local)
			continue
		}
		if err != nil {
			s.Log.Warn(ctx, "pre-fetch failed, rebuilding without remote state",
				logger.String("leaderboard", lb), logger.Error(err))
			for done := range got {
				_ = os.Remove(layout.TablePath(s.WorkDir, done, s.Ext))
			}
			_ = os.Remove(local)
			return map[string]bool{}
		}
		got[lb] = true
	}
	s.Log.Info(ctx, "pre-fetched remote tables", logger.Int("downloaded", len(got)), logger.Int("leaderboards", len(names)))
	return got
}

// rebuild recomputes a leaderboard's table from every record file in its
// directory. It reports whether the written table differs from the
// pre-fetched remote one.
func (s *Syncer) rebuild(ctx context.Context, lb string, changedFiles int, downloaded bool) (bool, error) {
	files, err := ingest.CollectJSON(filepath.Join(s.DataDir, lb))
	if err != nil {
		return false, err
	}
	status := "new"
	if downloaded {
		status = "existing"
	}
	s.Log.Info(ctx, "rebuilding leaderboard",
		logger.String("leaderboard", lb),
		logger.String("remote", status),
		logger.Int("changed_files", changedFiles),
		logger.Int("files", len(files)),
	)

	batch, err := s.Flattener.FlattenFiles(ctx, files, s.Log)
	if err != nil {
		return false, err
	}
	s.Metrics.InvalidRecords(len(batch.Invalid))

	path := layout.TablePath(s.WorkDir, lb, s.Ext)
	res, err := s.Merger.Merge(batch.Rows, path, true)
	if err != nil {
		return false, fmt.Errorf("merge: %w", err)
	}
	s.Metrics.Duplicates(res.Skipped)
	if res.Skipped > 0 {
		s.Log.Warn(ctx, "skipped duplicate records", logger.String("leaderboard", lb), logger.Int("duplicates", res.Skipped))
	}

	if downloaded {
		prev, err := table.ReadFile(path)
		if err != nil {
			s.Log.Warn(ctx, "could not read pre-fetched table", logger.String("leaderboard", lb), logger.Error(err))
		} else if prev.Equal(res.Table) {
			s.Log.Info(ctx, "leaderboard unchanged", logger.String("leaderboard", lb), logger.Int("rows", len(prev.Rows)))
			return false, nil
		}
	}

	if err := table.WriteFile(path, res.Table); err != nil {
		return false, fmt.Errorf("write table: %w", err)
	}
	s.Metrics.RowsWritten(len(res.Table.Rows))
	s.Log.Info(ctx, "leaderboard written",
		logger.String("leaderboard", lb),
		logger.String("path", path),
		logger.Int("rows", len(res.Table.Rows)),
		logger.Int("invalid", len(batch.Invalid)),
	)
	return true, nil
}

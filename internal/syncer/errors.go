// Package syncer runs the change-driven rebuild of leaderboard tables and
// the upload stage that publishes them.
package syncer

import (
	"errors"
	"fmt"
)

var (
	// ErrNoDataDir is returned when the record corpus directory is missing.
	ErrNoDataDir = errors.New("data directory not found")
	// ErrNoManifest is returned by the upload stage when no sync ran first.
	ErrNoManifest = errors.New("no manifest found")
	// ErrCatalog marks a failure to publish the catalog card.
	ErrCatalog = errors.New("catalog update failed")
)

// RunError reports that some leaderboards or uploads failed. The manifest
// is still written.
type RunError struct {
	Stage  string
	Failed int
}

func (e *RunError) Error() string {
	return fmt.Sprintf("%s: %d failed", e.Stage, e.Failed)
}

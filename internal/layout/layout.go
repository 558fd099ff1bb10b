// Package layout holds the path conventions shared by the source corpus,
// the reconstructed corpus and the remote dataset.
//
// Source and reconstructed records live at
//
//	<root>/<leaderboard>/<developer>/<model>/<uuid>.json
//
// and each leaderboard table lives remotely at data/<leaderboard>.<ext>.
package layout

import (
	"path"
	"path/filepath"
	"strings"
)

const (
	// RemoteDataDir is the remote prefix holding one table per leaderboard.
	RemoteDataDir = "data"
	// CatalogKey is the remote key of the dataset catalog card.
	CatalogKey = "README.md"
	// RecordExt is the extension of a source record.
	RecordExt = ".json"
)

var separators = strings.NewReplacer("/", "_", "\\", "_")

// SanitizeSegment replaces path separators with underscores. Model ids are
// conventionally "<org>/<name>" which is not a single directory name.
// Empty, "." and ".." segments become underscores so a segment never
// leaves its parent directory.
func SanitizeSegment(s string) string {
	s = separators.Replace(s)
	switch s {
	case "", ".", "..":
		return strings.Repeat("_", max(len(s), 1))
	}
	return s
}

// RecordPath returns the on-disk location of one evaluation record.
func RecordPath(root, leaderboard, developer, model, uuid string) string {
	return filepath.Join(root,
		SanitizeSegment(leaderboard),
		SanitizeSegment(developer),
		SanitizeSegment(model),
		SanitizeSegment(uuid)+RecordExt,
	)
}

// RecordID derives the stable record identifier from its file name.
func RecordID(p string) string {
	return strings.TrimSuffix(filepath.Base(p), filepath.Ext(p))
}

// TablePath returns the local path of a leaderboard table in dir.
func TablePath(dir, leaderboard, ext string) string {
	return filepath.Join(dir, leaderboard+ext)
}

// TableKey returns the remote key of a leaderboard table.
func TableKey(leaderboard, ext string) string {
	return path.Join(RemoteDataDir, leaderboard+ext)
}

// LeaderboardFromKey reverses TableKey. Keys nested deeper than data/ or with
// a different extension are rejected.
func LeaderboardFromKey(key, ext string) (string, bool) {
	rest, ok := strings.CutPrefix(key, RemoteDataDir+"/")
	if !ok || strings.Contains(rest, "/") {
		return "", false
	}
	name, ok := strings.CutSuffix(rest, ext)
	if !ok || name == "" {
		return "", false
	}
	return name, true
}

// LeaderboardOf returns the leaderboard segment of a slash-separated path
// relative to the repository, given the data directory it must live under.
func LeaderboardOf(p, dataDir string) (string, bool) {
	prefix := strings.Trim(filepath.ToSlash(filepath.Clean(dataDir)), "/")
	p = strings.TrimPrefix(filepath.ToSlash(p), "./")
	if prefix != "" && prefix != "." {
		var ok bool
		p, ok = strings.CutPrefix(p, prefix+"/")
		if !ok {
			return "", false
		}
	}
	lb, rest, ok := strings.Cut(p, "/")
	if !ok || lb == "" || rest == "" {
		return "", false
	}
	return lb, true
}

package ingest

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/evaleval/evalsync/internal/layout"
	"github.com/sourcegraph/go-diff/diff"
)

const devNull = "/dev/null"

// GitDetector finds the record files a revision range added, modified or
// deleted under the data directory of a repository.
type GitDetector struct {
	RepoDir string
	DataDir string
	Base    string
	Head    string
}

func NewGitDetector(repoDir, dataDir, base, head string) *GitDetector {
	return &GitDetector{RepoDir: repoDir, DataDir: dataDir, Base: base, Head: head}
}

// Detect groups the changed record files by leaderboard. Paths are relative
// to the repository root. Deleted files are included so a deletion alone
// marks its leaderboard as changed.
func (d *GitDetector) Detect(ctx context.Context) (ChangeSet, error) {
	dataDir, err := d.relDataDir()
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, "git", "diff",
		"--no-color", "--no-ext-diff", "--no-renames", "--unified=0",
		d.Base, d.Head, "--", dataDir)
	cmd.Dir = d.RepoDir

	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("git diff %s..%s failed: %w: %s", d.Base, d.Head, err, strings.TrimSpace(stderr.String()))
	}

	fileDiffs, err := diff.NewMultiFileDiffReader(&out).ReadAllFiles()
	if err != nil {
		return nil, fmt.Errorf("parse git diff: %w", err)
	}

	changes := ChangeSet{}
	for _, fd := range fileDiffs {
		p := fd.NewName
		if p == "" || p == devNull {
			p = fd.OrigName
		}
		p = strings.TrimPrefix(p, "a/")
		p = strings.TrimPrefix(p, "b/")
		if !strings.EqualFold(filepath.Ext(p), layout.RecordExt) {
			continue
		}
		lb, ok := layout.LeaderboardOf(p, dataDir)
		if !ok {
			continue
		}
		changes[lb] = append(changes[lb], p)
	}
	return changes, nil
}

// relDataDir returns the data directory relative to the repository root,
// which is how git reports paths.
func (d *GitDetector) relDataDir() (string, error) {
	dir := d.DataDir
	if filepath.IsAbs(dir) {
		root, err := filepath.Abs(d.RepoDir)
		if err != nil {
			return "", fmt.Errorf("resolve repo dir: %w", err)
		}
		if dir, err = filepath.Rel(root, dir); err != nil {
			return "", fmt.Errorf("data dir outside repo: %w", err)
		}
	}
	return filepath.ToSlash(filepath.Clean(dir)), nil
}

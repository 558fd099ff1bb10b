package ingest

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGitDetector(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	repo := t.TempDir()

	runGit(t, repo, "init")
	runGit(t, repo, "config", "user.name", "Tester")
	runGit(t, repo, "config", "user.email", "test@example.com")

	writeFile(t, filepath.Join(repo, "data", "acme_bench", "org", "m", "a.json"), validRecord)
	writeFile(t, filepath.Join(repo, "data", "old_bench", "org", "m", "gone.json"), validRecord)
	writeFile(t, filepath.Join(repo, "data", "quiet_bench", "org", "m", "q.json"), validRecord)
	runGit(t, repo, "add", ".")
	runGit(t, repo, "commit", "-m", "Initial data")

	writeFile(t, filepath.Join(repo, "data", "acme_bench", "org", "m", "b.json"), validRecord)
	writeFile(t, filepath.Join(repo, "data", "acme_bench", "notes.txt"), "not a record")
	writeFile(t, filepath.Join(repo, "scripts", "x.json"), "{}")
	require.NoError(t, os.Remove(filepath.Join(repo, "data", "old_bench", "org", "m", "gone.json")))
	runGit(t, repo, "add", "-A")
	runGit(t, repo, "commit", "-m", "Add and delete records")

	d := NewGitDetector(repo, "data", "HEAD~1", "HEAD")
	cs, err := d.Detect(t.Context())
	require.NoError(t, err)

	assert.Equal(t, []string{"acme_bench", "old_bench"}, cs.Names())
	assert.Equal(t, []string{"data/acme_bench/org/m/b.json"}, cs["acme_bench"])
	assert.Equal(t, []string{"data/old_bench/org/m/gone.json"}, cs["old_bench"])

	t.Run("absolute data dir", func(t *testing.T) {
		d := NewGitDetector(repo, filepath.Join(repo, "data"), "HEAD~1", "HEAD")
		cs, err := d.Detect(t.Context())
		require.NoError(t, err)
		assert.Equal(t, []string{"acme_bench", "old_bench"}, cs.Names())
	})

	t.Run("no changes", func(t *testing.T) {
		d := NewGitDetector(repo, "data", "HEAD", "HEAD")
		cs, err := d.Detect(t.Context())
		require.NoError(t, err)
		assert.Empty(t, cs)
	})

	t.Run("bad revision", func(t *testing.T) {
		d := NewGitDetector(repo, "data", "HEAD~5", "HEAD")
		_, err := d.Detect(t.Context())
		assert.Error(t, err)
	})
}

func runGit(t *testing.T, dir string, args ...string) {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	err := cmd.Run()
	require.NoError(t, err, "git %v failed", args)
}

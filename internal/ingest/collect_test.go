package ingest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestCollectJSON(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "lb", "dev", "m", "b.json"), "{}")
	writeFile(t, filepath.Join(dir, "lb", "dev", "m", "a.json"), "{}")
	writeFile(t, filepath.Join(dir, "lb", "README.md"), "x")
	single := filepath.Join(dir, "single.json")
	writeFile(t, single, "{}")

	t.Run("directory is recursive and sorted", func(t *testing.T) {
		files, err := CollectJSON(filepath.Join(dir, "lb"))
		require.NoError(t, err)
		assert.Equal(t, []string{
			filepath.Join(dir, "lb", "dev", "m", "a.json"),
			filepath.Join(dir, "lb", "dev", "m", "b.json"),
		}, files)
	})

	t.Run("explicit list deduplicates", func(t *testing.T) {
		files, err := CollectJSON(single, filepath.Join(dir, "lb"), single)
		require.NoError(t, err)
		assert.Len(t, files, 3)
	})

	t.Run("empty directory", func(t *testing.T) {
		empty := filepath.Join(dir, "empty")
		require.NoError(t, os.Mkdir(empty, 0o755))
		_, err := CollectJSON(empty)
		assert.ErrorIs(t, err, ErrNoFiles)
	})

	t.Run("missing input", func(t *testing.T) {
		_, err := CollectJSON(filepath.Join(dir, "nope"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestLeaderboards(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "acme_bench", "org", "m", "1.json"), "{}")
	writeFile(t, filepath.Join(dir, "zeta", "org", "m", "2.json"), "{}")
	writeFile(t, filepath.Join(dir, "zeta", "org", "m", "1.json"), "{}")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "empty_lb"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git"), 0o755))
	writeFile(t, filepath.Join(dir, "stray.json"), "{}")

	cs, err := Leaderboards(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"acme_bench", "zeta"}, cs.Names())
	assert.Equal(t, []string{
		filepath.Join(dir, "zeta", "org", "m", "1.json"),
		filepath.Join(dir, "zeta", "org", "m", "2.json"),
	}, cs["zeta"])

	_, err = Leaderboards(filepath.Join(dir, "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

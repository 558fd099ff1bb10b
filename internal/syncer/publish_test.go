package syncer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/evaleval/evalsync/internal/layout"
	"github.com/evaleval/evalsync/internal/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readCatalog(t *testing.T, store remote.Store) *remote.CardHeader {
	t.Helper()
	local := filepath.Join(t.TempDir(), "README.md")
	require.NoError(t, store.Get(t.Context(), layout.CatalogKey, local))
	card, err := os.ReadFile(local)
	require.NoError(t, err)
	header, err := remote.ParseCatalog(card)
	require.NoError(t, err)
	return header
}

func splitNames(h *remote.CardHeader) []string {
	var names []string
	for _, f := range h.Configs[0].DataFiles {
		names = append(names, f.Split)
	}
	return names
}

func TestUpload_PublishesTablesAndCatalog(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.store.PutBytes(t.Context(), "data/legacy.parquet", []byte("old table")))
	e.writeRecord(t, "acme_bench", "model-a", "abc123", 0.42)
	e.writeRecord(t, "zeta", "model-a", "zzz999", 0.1)

	d := &fakeDetector{changes: map[string][]string{"acme_bench": {"a.json"}, "zeta": {"z.json"}}}
	_, err := e.syncer(e.store, d).Run(t.Context())
	require.NoError(t, err)

	res, err := e.publisher(e.store).Upload(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []string{"acme_bench", "zeta"}, res.Uploaded)
	assert.Empty(t, res.Failed)

	keys, err := e.store.List(t.Context(), "data")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"data/acme_bench.parquet", "data/legacy.parquet", "data/zeta.parquet"}, keys)

	header := readCatalog(t, e.store)
	require.Len(t, header.Configs, 1)
	assert.Equal(t, "default", header.Configs[0].ConfigName)
	assert.Equal(t, []string{"acme_bench", "legacy", "zeta"}, splitNames(header))
}

func TestUpload_NothingModified(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, NewManifest().Write(filepath.Join(e.workDir, "modified_leaderboards.json")))

	res, err := e.publisher(e.store).Upload(t.Context())
	require.NoError(t, err)
	assert.Empty(t, res.Uploaded)

	keys, err := e.store.List(t.Context(), "data")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestUpload_RequiresManifest(t *testing.T) {
	e := newEnv(t)
	_, err := e.publisher(e.store).Upload(t.Context())
	assert.ErrorIs(t, err, ErrNoManifest)
}

func TestUpload_FailedTableDoesNotStopSiblings(t *testing.T) {
	e := newEnv(t)
	e.writeRecord(t, "acme_bench", "model-a", "abc123", 0.42)
	e.writeRecord(t, "zeta", "model-a", "zzz999", 0.1)
	_, err := e.syncer(e.store, &fakeDetector{}).Run(t.Context())
	require.NoError(t, err)

	store := &flakyStore{Store: e.store, failPut: map[string]bool{"data/acme_bench.parquet": true}}
	res, err := e.publisher(store).Upload(t.Context())
	var runErr *RunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, "upload", runErr.Stage)
	assert.Equal(t, []string{"acme_bench"}, res.Failed)
	assert.Equal(t, []string{"zeta"}, res.Uploaded)

	assert.Equal(t, []string{"zeta"}, splitNames(readCatalog(t, e.store)))
}

func TestUpload_MissingLocalTable(t *testing.T) {
	e := newEnv(t)
	m := NewManifest()
	m.Modified = []string{"ghost"}
	m.Converted = []string{"ghost"}
	m.ActuallyModified = []string{"ghost"}
	require.NoError(t, m.Write(filepath.Join(e.workDir, "modified_leaderboards.json")))

	res, err := e.publisher(e.store).Upload(t.Context())
	var runErr *RunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, []string{"ghost"}, res.Failed)
}

func TestUpload_CatalogFailure(t *testing.T) {
	e := newEnv(t)
	e.writeRecord(t, "acme_bench", "model-a", "abc123", 0.42)
	_, err := e.syncer(e.store, &fakeDetector{}).Run(t.Context())
	require.NoError(t, err)

	store := &flakyStore{Store: e.store, failCatalog: true}
	res, err := e.publisher(store).Upload(t.Context())
	require.ErrorIs(t, err, ErrCatalog)
	assert.Equal(t, []string{"acme_bench"}, res.Uploaded)
}

func TestManifest_ReadWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "manifest.json")
	m := NewManifest()
	m.Modified = []string{"b", "a"}
	m.Errors = 2
	require.NoError(t, m.Write(path))

	got, err := ReadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got.Modified)
	assert.Equal(t, 2, got.Errors)
	assert.Equal(t, []string{}, got.Downloaded)

	require.NoError(t, os.WriteFile(path, []byte("{"), 0o644))
	_, err = ReadManifest(path)
	require.Error(t, err)
}

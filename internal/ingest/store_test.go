package ingest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/evaleval/evalsync/api"
	"github.com/evaleval/evalsync/internal/shape"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordStore_Add(t *testing.T) {
	root := t.TempDir()
	s := NewRecordStore(root)

	path, err := s.Add([]byte(validRecord))
	require.NoError(t, err)

	rel, err := filepath.Rel(root, path)
	require.NoError(t, err)
	parts := strings.Split(filepath.ToSlash(rel), "/")
	require.Len(t, parts, 4)
	assert.Equal(t, []string{"acme_bench", "org", "org_model-a"}, parts[:3])
	assert.Len(t, strings.TrimSuffix(parts[3], ".json"), 36)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, validRecord, string(data))

	// The stored record flattens to the same identity the path encodes.
	row, err := NewFlattener(shape.Set{}, true).FlattenFile(path)
	require.NoError(t, err)
	assert.Equal(t, "org/model-a", row.Key.Model)
	assert.Equal(t, strings.TrimSuffix(parts[3], ".json"), row.Key.UUID)

	second, err := s.Add([]byte(validRecord))
	require.NoError(t, err)
	assert.NotEqual(t, path, second)
}

func TestRecordStore_DefaultsSchemaVersion(t *testing.T) {
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(validRecord), &rec))
	delete(rec, "schema_version")
	data, err := json.Marshal(rec)
	require.NoError(t, err)

	path, err := NewRecordStore(t.TempDir()).Add(data)
	require.NoError(t, err)

	stored, err := os.ReadFile(path)
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal(stored, &got))
	assert.Equal(t, api.SchemaVersion, got["schema_version"])
}

func TestRecordStore_Rejects(t *testing.T) {
	s := NewRecordStore(t.TempDir())

	_, err := s.Add([]byte(`not json`))
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = s.Add([]byte(`{"evaluation_id":"e1"}`))
	assert.ErrorIs(t, err, ErrInvalidRecord)

	reserved := validRecord[:len(validRecord)-1] + `, "_uuid": "x"}`
	_, err = s.Add([]byte(reserved))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "_uuid", verr.Field)
	entries, err := os.ReadDir(s.Root)
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = s.AddFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

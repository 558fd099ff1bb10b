package table

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/evaleval/evalsync/internal/shape"
	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRow(uuid string, score float64) Row {
	return Row{
		Key: Key{Leaderboard: "acme_bench", Developer: "org", Model: "org/model-a", UUID: uuid},
		Fields: []Field{
			{Name: "schema_version", Value: StringValue("0.0.1")},
			{Name: "evaluation_id", Value: StringValue("e-" + uuid)},
			{Name: "evaluation_results", Value: EncodedValue(`[{"evaluation_name":"mmlu","score_details":{"score":` + FloatValue(score).String() + `}}]`)},
		},
	}
}

func assertUniqueKeys(t *testing.T, tbl *Table) {
	t.Helper()
	seen := map[Key]bool{}
	for _, r := range tbl.Rows {
		require.False(t, seen[r.Key], "duplicate key %s", r.Key)
		seen[r.Key] = true
	}
}

func TestMerge_NewTable(t *testing.T) {
	m := NewMerger(shape.NewSet("evaluation_results"))

	res, err := m.Merge([]Row{testRow("abc123", 0.42)}, "", false)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.False(t, res.Loaded)
	assert.Equal(t, 1, res.Added)

	tbl := res.Table
	require.Len(t, tbl.Rows, 1)
	assert.Equal(t, []string{"schema_version", "evaluation_id", "evaluation_results"}, tbl.Columns)
	require.NotNil(t, tbl.Metadata)
	assert.Equal(t, []string{"evaluation_results"}, tbl.Metadata.OpaqueColumns)
	assert.Equal(t, Encoded, tbl.Rows[0].Get("evaluation_results").Kind())
}

func TestMerge_Idempotent(t *testing.T) {
	for _, ext := range []string{".parquet", ".db"} {
		t.Run(ext, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "acme_bench"+ext)
			m := NewMerger(shape.NewSet("evaluation_results"))
			rows := []Row{testRow("abc123", 0.42)}

			res, err := m.Merge(rows, path, false)
			require.NoError(t, err)
			require.True(t, res.Changed)
			require.NoError(t, WriteFile(path, res.Table))

			res, err = m.Merge(rows, path, false)
			require.NoError(t, err)
			assert.False(t, res.Changed)
			assert.True(t, res.Loaded)
			assert.Equal(t, 1, res.Skipped)
			assert.Len(t, res.Table.Rows, 1)
		})
	}
}

func TestMerge_KeyBasedDedup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "acme_bench.parquet")
	m := NewMerger(shape.NewSet("evaluation_results"))

	res, err := m.Merge([]Row{testRow("abc123", 0.42)}, path, false)
	require.NoError(t, err)
	require.NoError(t, WriteFile(path, res.Table))

	// Same identity key, different content.
	res, err = m.Merge([]Row{testRow("abc123", 0.99)}, path, false)
	require.NoError(t, err)
	assert.False(t, res.Changed)
	require.Len(t, res.Table.Rows, 1)
	assert.Contains(t, res.Table.Rows[0].Get("evaluation_results").Str(), "0.42")
}

func TestMerge_DuplicatesWithinBatch(t *testing.T) {
	m := NewMerger(shape.Set{})
	res, err := m.Merge([]Row{testRow("a", 1), testRow("b", 2), testRow("a", 3)}, "", false)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Added)
	assert.Equal(t, 1, res.Skipped)
	assertUniqueKeys(t, res.Table)
	// First seen wins.
	assert.Contains(t, res.Table.Rows[0].Get("evaluation_results").Str(), `"score":1`)
}

func TestMerge_AppendOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "acme_bench.parquet")
	m := NewMerger(shape.NewSet("evaluation_results"))

	res, err := m.Merge([]Row{testRow("b", 1), testRow("a", 2)}, path, false)
	require.NoError(t, err)
	require.NoError(t, WriteFile(path, res.Table))

	res, err = m.Merge([]Row{testRow("c", 3), testRow("a", 4)}, path, false)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, 1, res.Added)
	assert.Equal(t, 1, res.Skipped)

	var uuids []string
	for _, r := range res.Table.Rows {
		uuids = append(uuids, r.Key.UUID)
	}
	assert.Equal(t, []string{"b", "a", "c"}, uuids)
	assertUniqueKeys(t, res.Table)
}

func TestMerge_EmptyBatch(t *testing.T) {
	m := NewMerger(shape.Set{})

	t.Run("against existing table", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "lb.parquet")
		res, err := m.Merge([]Row{testRow("a", 1)}, path, false)
		require.NoError(t, err)
		require.NoError(t, WriteFile(path, res.Table))

		res, err = m.Merge(nil, path, false)
		require.NoError(t, err)
		assert.False(t, res.Changed)
		assert.Len(t, res.Table.Rows, 1)
	})

	t.Run("without table", func(t *testing.T) {
		_, err := m.Merge(nil, filepath.Join(t.TempDir(), "missing.parquet"), false)
		require.ErrorIs(t, err, ErrNothingToPersist)
	})
}

func TestMerge_RebuildDropsDeletedRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lb.parquet")
	m := NewMerger(shape.NewSet("evaluation_results"))

	res, err := m.Merge([]Row{testRow("a", 1), testRow("b", 2)}, path, false)
	require.NoError(t, err)
	require.NoError(t, WriteFile(path, res.Table))

	// "b" was deleted upstream; only "a" remains in the source set.
	incremental, err := m.Merge([]Row{testRow("a", 1)}, path, false)
	require.NoError(t, err)
	assert.Len(t, incremental.Table.Rows, 2)

	rebuilt, err := m.Merge([]Row{testRow("a", 1)}, path, true)
	require.NoError(t, err)
	assert.True(t, rebuilt.Changed)
	assert.False(t, rebuilt.Loaded)
	require.Len(t, rebuilt.Table.Rows, 1)
	assert.Equal(t, "a", rebuilt.Table.Rows[0].Key.UUID)
}

func TestMerge_DoesNotMutateBase(t *testing.T) {
	base := &Table{
		Columns: []string{"score"},
		Rows: []Row{{
			Key:    Key{UUID: "a"},
			Fields: []Field{{Name: "score", Value: IntValue(1)}},
		}},
	}
	require.NoError(t, base.Seal(shape.Set{}))

	m := NewMerger(shape.Set{})
	res, err := m.MergeTable([]Row{{
		Key:    Key{UUID: "b"},
		Fields: []Field{{Name: "score", Value: FloatValue(0.5)}},
	}}, base)
	require.NoError(t, err)

	assert.Equal(t, Int, base.Rows[0].Get("score").Kind())
	assert.Equal(t, Float, res.Table.Rows[0].Get("score").Kind())
}

func TestSeal(t *testing.T) {
	tbl := &Table{
		Columns: []string{"name", "score", "flag", "mixed", "blob", "empty"},
		Rows: []Row{
			{Key: Key{UUID: "1"}, Fields: []Field{
				{Name: "name", Value: StringValue("a")},
				{Name: "score", Value: IntValue(3)},
				{Name: "flag", Value: BoolValue(true)},
				{Name: "mixed", Value: StringValue("x")},
				{Name: "blob", Value: EncodedValue(`{"a":1}`)},
			}},
			{Key: Key{UUID: "2"}, Fields: []Field{
				{Name: "score", Value: FloatValue(0.5)},
				{Name: "flag", Value: BoolValue(false)},
				{Name: "mixed", Value: BoolValue(true)},
			}},
		},
	}
	require.NoError(t, tbl.Seal(shape.NewSet("name", "not_a_column")))

	assert.Equal(t, []string{"blob", "mixed", "name"}, tbl.Metadata.OpaqueColumns)
	assert.Equal(t, FloatValue(3), tbl.Rows[0].Get("score"))
	assert.Equal(t, EncodedValue(`"a"`), tbl.Rows[0].Get("name"))
	assert.Equal(t, EncodedValue(`"x"`), tbl.Rows[0].Get("mixed"))
	assert.Equal(t, EncodedValue(`true`), tbl.Rows[1].Get("mixed"))

	types := map[string]Kind{}
	for _, ci := range tbl.Metadata.Columns {
		types[ci.Name] = ci.Type
	}
	assert.Equal(t, map[string]Kind{
		"name":  Encoded,
		"score": Float,
		"flag":  Bool,
		"mixed": Encoded,
		"blob":  Encoded,
		"empty": Null,
	}, types)
}

func TestMerge_IntoTableWithoutMetadata(t *testing.T) {
	path := filepath.Join(t.TempDir(), "acme_bench.parquet")
	f, err := os.Create(path)
	require.NoError(t, err)
	w := parquet.NewGenericWriter[legacyParquetRow](f)
	_, err = w.Write([]legacyParquetRow{{
		Leaderboard:       "acme_bench",
		Developer:         "org",
		Model:             "org/model-a",
		UUID:              "old1",
		SchemaVersion:     "0.0.1",
		EvaluationResults: `[{"evaluation_name":"mmlu"}]`,
	}})
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())

	m := NewMerger(shape.NewSet("evaluation_results"))
	row := Row{
		Key: Key{Leaderboard: "acme_bench", Developer: "org", Model: "org/model-b", UUID: "new1"},
		Fields: []Field{
			{Name: "schema_version", Value: StringValue("0.0.1")},
			{Name: "evaluation_results", Value: EncodedValue(`[{"evaluation_name":"gsm"}]`)},
		},
	}
	res, err := m.Merge([]Row{row}, path, false)
	require.NoError(t, err)
	require.True(t, res.Loaded)
	require.NoError(t, WriteFile(path, res.Table))

	got, err := ReadFile(path)
	require.NoError(t, err)
	require.Len(t, got.Rows, 2)
	assert.Equal(t, []string{"evaluation_results"}, got.OpaqueColumns())
	assert.Equal(t, EncodedValue(`[{"evaluation_name":"mmlu"}]`), got.Rows[0].Get("evaluation_results"))
	assert.Equal(t, EncodedValue(`[{"evaluation_name":"gsm"}]`), got.Rows[1].Get("evaluation_results"))
}

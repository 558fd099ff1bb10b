package shape

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	desc := `{
  "properties": {
    "schema_version": {"type": "string"},
    "score": {"type": ["number", "null"]},
    "model_info": {"type": "object"},
    "evaluation_results": {"type": "array", "items": {"type": "object"}},
    "additional_details": {"type": ["object", "null"]},
    "source_data": {"oneOf": [{"type": "string"}, {"type": "object"}]},
    "mixed": {"anyOf": [{"type": "string"}, {"type": "integer"}]},
    "combined": {"allOf": [{"type": "string"}]},
    "source_metadata": {"$ref": "#/$defs/meta"},
    "level": {"$ref": "#/$defs/level"},
    "dangling": {"$ref": "#/$defs/missing"},
    "implicit": {"properties": {"a": {"type": "string"}}},
    "nested_union": {"type": [{"type": "array"}]},
    "flag": {"type": "boolean"}
  },
  "$defs": {
    "meta": {"type": "object"},
    "level": {"type": "string", "enum": ["a", "b"]}
  }
}`
	set, err := Load([]byte(desc))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"additional_details",
		"combined",
		"dangling",
		"evaluation_results",
		"implicit",
		"mixed",
		"model_info",
		"nested_union",
		"source_data",
		"source_metadata",
	}, set.Names())
	assert.False(t, set.Has("schema_version"))
	assert.False(t, set.Has("level"))
	assert.False(t, set.Has("flag"))
}

func TestLoad_RefCycle(t *testing.T) {
	desc := `{
  "properties": {"loop": {"$ref": "#/$defs/a"}},
  "$defs": {"a": {"$ref": "#/$defs/b"}, "b": {"$ref": "#/$defs/a"}}
}`
	set, err := Load([]byte(desc))
	require.NoError(t, err)
	assert.True(t, set.Has("loop"))
}

func TestLoad_Errors(t *testing.T) {
	t.Run("malformed json", func(t *testing.T) {
		_, err := Load([]byte(`{"properties": `))
		require.Error(t, err)
	})

	t.Run("no properties", func(t *testing.T) {
		_, err := Load([]byte(`{"type": "object"}`))
		require.ErrorIs(t, err, ErrNoProperties)
	})
}

func TestResolve(t *testing.T) {
	fallback := []string{"model_info", "evaluation_results"}

	t.Run("description present", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "eval.schema.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"properties":{"x":{"type":"array"}}}`), 0o644))

		c := Resolve(path, fallback)
		assert.False(t, c.Degraded())
		assert.NoError(t, c.Err)
		assert.Equal(t, []string{"x"}, c.Complex.Names())
	})

	t.Run("missing file falls back", func(t *testing.T) {
		c := Resolve(filepath.Join(t.TempDir(), "nope.json"), fallback)
		assert.True(t, c.Degraded())
		assert.Error(t, c.Err)
		assert.Equal(t, []string{"evaluation_results", "model_info"}, c.Complex.Names())
	})

	t.Run("no path falls back", func(t *testing.T) {
		c := Resolve("", nil)
		assert.True(t, c.Degraded())
		assert.Equal(t, 0, c.Complex.Len())
	})
}

func TestBundledDescription(t *testing.T) {
	set, err := LoadFile("../../schema/eval.schema.json")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"additional_details",
		"evaluation_results",
		"model_info",
		"source_data",
		"source_metadata",
	}, set.Names())
}

func TestSet(t *testing.T) {
	a := NewSet("x", " ", "y")
	b := NewSet("y", "z")
	assert.Equal(t, 2, a.Len())
	assert.Equal(t, []string{"x", "y", "z"}, a.Union(b).Names())

	var zero Set
	assert.False(t, zero.Has("x"))
	assert.Empty(t, zero.Names())
}

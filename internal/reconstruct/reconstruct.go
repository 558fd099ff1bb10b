// Package reconstruct regenerates evaluation record files from a leaderboard
// table.
package reconstruct

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/evaleval/evalsync/internal/layout"
	"github.com/evaleval/evalsync/internal/shape"
	"github.com/evaleval/evalsync/internal/table"
	"github.com/evaleval/evalsync/pkg/logger"
)

// Reconstructor writes one JSON file per table row.
type Reconstructor struct {
	// Fallback names the opaque columns of tables without metadata.
	Fallback shape.Set
	Log      logger.Logger
}

func New(fallback shape.Set, log logger.Logger) *Reconstructor {
	if log == nil {
		log = logger.Nop()
	}
	return &Reconstructor{Fallback: fallback, Log: log}
}

// Reconstruct reads the table at tablePath and writes every row to
// outDir/<leaderboard>/<developer>/<model>/<uuid>.json. It returns the
// number of records written.
func (r *Reconstructor) Reconstruct(ctx context.Context, tablePath, outDir string) (int, error) {
	t, err := table.ReadFile(tablePath)
	if err != nil {
		return 0, fmt.Errorf("read table: %w", err)
	}

	opaque := map[string]bool{}
	if t.Metadata == nil {
		r.Log.Warn(ctx, "table has no metadata, using configured opaque columns",
			logger.String("path", tablePath), logger.Strings("opaque_columns", r.Fallback.Names()))
		for _, c := range t.Columns {
			opaque[c] = r.Fallback.Has(c)
		}
	} else {
		for _, c := range t.OpaqueColumns() {
			opaque[c] = true
		}
	}

	for i, row := range t.Rows {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		data, err := Record(row, t.Columns, opaque)
		if err != nil {
			return i, fmt.Errorf("render %s: %w", row.Key, err)
		}
		k := row.Key
		path := layout.RecordPath(outDir, k.Leaderboard, k.Developer, k.Model, k.UUID)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return i, fmt.Errorf("mkdir: %w", err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return i, fmt.Errorf("write record: %w", err)
		}
	}
	r.Log.Info(ctx, "reconstructed records",
		logger.String("path", tablePath), logger.Int("records", len(t.Rows)))
	return len(t.Rows), nil
}

// Record renders one row as an indented JSON object with fields in column
// order. Opaque values are decoded back into nested JSON; values that do
// not parse are kept as strings. Null values are left out.
func Record(row table.Row, columns []string, opaque map[string]bool) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	n := 0
	for _, c := range columns {
		v := row.Get(c)
		if v.IsNull() {
			continue
		}
		if opaque[c] && v.Kind() == table.String {
			v = table.EncodedValue(v.Str())
		}
		val, err := v.JSON()
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", c, err)
		}
		key, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			buf.WriteByte(',')
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
		n++
	}
	buf.WriteByte('}')

	var out bytes.Buffer
	if err := json.Indent(&out, buf.Bytes(), "", "  "); err != nil {
		return nil, err
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}

package table

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"sort"

	"github.com/evaleval/evalsync/internal/shape"
)

// ErrNothingToPersist is returned when a merge stages no rows and there is
// no existing table to keep.
var ErrNothingToPersist = errors.New("no new rows and no existing table")

// Merger combines flattened rows with an existing leaderboard table.
type Merger struct {
	// Complex is the process-wide set of fields classified as complex.
	Complex shape.Set
}

// NewMerger returns a Merger for the given classification.
func NewMerger(complexFields shape.Set) *Merger {
	return &Merger{Complex: complexFields}
}

// Result describes the outcome of a merge.
type Result struct {
	Table *Table
	// Changed is false only when the existing table was returned unchanged.
	Changed bool
	// Loaded reports whether an existing table was used as the base.
	Loaded  bool
	Added   int
	Skipped int
}

// Merge appends rows whose identity key is not yet present to the table at
// existingPath and returns the union. With rebuild set, or when
// existingPath is empty or missing, the merge starts from an empty table.
// The returned table is not written; callers persist it when Changed.
func (m *Merger) Merge(rows []Row, existingPath string, rebuild bool) (*Result, error) {
	var base *Table
	if existingPath != "" && !rebuild {
		t, err := ReadFile(existingPath)
		switch {
		case err == nil:
			base = t
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, fmt.Errorf("load existing table: %w", err)
		}
	}
	return m.MergeTable(rows, base)
}

// MergeTable is Merge against an in-memory base table, which may be nil.
// The base table is not modified.
func (m *Merger) MergeTable(rows []Row, base *Table) (*Result, error) {
	seen := map[Key]struct{}{}
	if base != nil {
		seen = base.Keys()
	}

	res := &Result{Loaded: base != nil}
	var staged []Row
	for _, r := range rows {
		if _, dup := seen[r.Key]; dup {
			res.Skipped++
			continue
		}
		seen[r.Key] = struct{}{}
		staged = append(staged, r)
	}

	if len(staged) == 0 {
		if base == nil {
			return nil, ErrNothingToPersist
		}
		res.Table = base
		return res, nil
	}

	out := &Table{}
	opaque := map[string]bool{}
	if base != nil {
		out.Columns = slices.Clone(base.Columns)
		out.Rows = make([]Row, 0, len(base.Rows)+len(staged))
		for _, r := range base.Rows {
			row := Row{Key: r.Key, Fields: slices.Clone(r.Fields)}
			if base.Metadata == nil {
				m.restoreEncoded(&row)
			}
			out.Rows = append(out.Rows, row)
		}
		for _, c := range base.OpaqueColumns() {
			opaque[c] = true
		}
	}
	for _, r := range staged {
		for _, f := range r.Fields {
			if !slices.Contains(out.Columns, f.Name) {
				out.Columns = append(out.Columns, f.Name)
			}
		}
		out.Rows = append(out.Rows, Row{Key: r.Key, Fields: slices.Clone(r.Fields)})
	}
	for _, c := range out.Columns {
		if m.Complex.Has(c) {
			opaque[c] = true
		}
	}

	if err := out.seal(opaque); err != nil {
		return nil, err
	}
	res.Table = out
	res.Changed = true
	res.Added = len(staged)
	return res, nil
}

// restoreEncoded marks the JSON text of complex fields in a row read from a
// table without metadata as encoded, so sealing does not encode it again.
func (m *Merger) restoreEncoded(r *Row) {
	for i, f := range r.Fields {
		if m.Complex.Has(f.Name) && f.Value.Kind() == String && json.Valid([]byte(f.Value.Str())) {
			r.Fields[i].Value = EncodedValue(f.Value.Str())
		}
	}
}

// Seal normalizes column types and records the metadata block. Columns in
// complexFields, columns holding structured values, and columns mixing
// scalar kinds are opaque-encoded. Ints sharing a column with floats are
// widened to floats.
func (t *Table) Seal(complexFields shape.Set) error {
	opaque := map[string]bool{}
	for _, c := range t.OpaqueColumns() {
		opaque[c] = true
	}
	for _, c := range t.Columns {
		if complexFields.Has(c) {
			opaque[c] = true
		}
	}
	return t.seal(opaque)
}

func (t *Table) seal(opaque map[string]bool) error {
	for _, c := range t.Columns {
		if opaque[c] {
			continue
		}
		kinds := t.columnKinds(c)
		switch {
		case len(kinds) <= 1 && !kinds[Encoded]:
		case len(kinds) == 2 && kinds[Int] && kinds[Float]:
			t.widen(c)
		default:
			opaque[c] = true
		}
	}

	names := make([]string, 0, len(opaque))
	for _, c := range t.Columns {
		if !opaque[c] {
			continue
		}
		names = append(names, c)
		for i := range t.Rows {
			v := t.Rows[i].Get(c)
			if v.IsNull() || v.Kind() == Encoded {
				continue
			}
			enc, err := v.Encode()
			if err != nil {
				return fmt.Errorf("encode %s for %s: %w", c, t.Rows[i].Key, err)
			}
			t.Rows[i].set(c, enc)
		}
	}
	sort.Strings(names)

	meta := &Metadata{Version: MetadataVersion, OpaqueColumns: names}
	for _, c := range t.Columns {
		kind, _ := t.ColumnType(c)
		meta.Columns = append(meta.Columns, ColumnInfo{Name: c, Type: kind})
	}
	t.Metadata = meta
	return nil
}

func (t *Table) columnKinds(name string) map[Kind]bool {
	kinds := map[Kind]bool{}
	for _, r := range t.Rows {
		if v := r.Get(name); !v.IsNull() {
			kinds[v.Kind()] = true
		}
	}
	return kinds
}

func (t *Table) widen(name string) {
	for i := range t.Rows {
		if v := t.Rows[i].Get(name); v.Kind() == Int {
			t.Rows[i].set(name, FloatValue(float64(v.Int())))
		}
	}
}

// ensureSealed seals tables built by hand before they are written.
func (t *Table) ensureSealed() error {
	if t.Metadata != nil {
		return nil
	}
	return t.seal(map[string]bool{})
}

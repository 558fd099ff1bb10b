// Package table holds the flattened leaderboard table: its row model, the
// deduplicating merger, the self-describing metadata and the on-disk codecs.
package table

import (
	"encoding/json"
	"fmt"
	"slices"
)

// Identity column names. Together they form the composite identity key.
const (
	ColLeaderboard = "_leaderboard"
	ColDeveloper   = "_developer"
	ColModel       = "_model"
	ColUUID        = "_uuid"
)

// IdentityColumns lists the identity columns in storage order.
var IdentityColumns = []string{ColLeaderboard, ColDeveloper, ColModel, ColUUID}

// IsIdentityColumn reports whether name is reserved for the identity key.
func IsIdentityColumn(name string) bool {
	return slices.Contains(IdentityColumns, name)
}

// Key is the composite identity key of a row.
type Key struct {
	Leaderboard string
	Developer   string
	Model       string
	UUID        string
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s/%s", k.Leaderboard, k.Developer, k.Model, k.UUID)
}

// Field is one named cell of a row.
type Field struct {
	Name  string
	Value Value
}

// Row is one flattened evaluation record. Fields keep the record's
// top-level key order.
type Row struct {
	Key    Key
	Fields []Field
}

// Get returns the value of the named field, or a null value when absent.
func (r Row) Get(name string) Value {
	for _, f := range r.Fields {
		if f.Name == name {
			return f.Value
		}
	}
	return NullValue()
}

// set replaces the value of an existing field or appends a new one.
func (r *Row) set(name string, v Value) {
	for i := range r.Fields {
		if r.Fields[i].Name == name {
			r.Fields[i].Value = v
			return
		}
	}
	r.Fields = append(r.Fields, Field{Name: name, Value: v})
}

// MetadataKey names the metadata entry inside a table file.
const MetadataKey = "evalsync"

// MetadataVersion is the version written by this package.
const MetadataVersion = 1

// ColumnInfo describes one stored column.
type ColumnInfo struct {
	Name string `json:"name"`
	Type Kind   `json:"type"`
}

// Metadata is embedded in every table file so a reader can decode it
// without an external schema.
type Metadata struct {
	Version       int          `json:"version"`
	OpaqueColumns []string     `json:"opaque_columns"`
	Columns       []ColumnInfo `json:"columns,omitempty"`
}

// Marshal encodes the metadata block.
func (m *Metadata) Marshal() (string, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	return string(b), nil
}

// ParseMetadata decodes a metadata block.
func ParseMetadata(s string) (*Metadata, error) {
	var m Metadata
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	if m.Version < 1 || m.Version > MetadataVersion {
		return nil, fmt.Errorf("unsupported metadata version %d", m.Version)
	}
	return &m, nil
}

// Table is a leaderboard table held in memory.
type Table struct {
	// Columns lists the non-identity columns in first-seen order.
	Columns []string
	Rows    []Row
	// Metadata is nil for files written before metadata existed.
	Metadata *Metadata
}

// OpaqueColumns returns the opaque column names recorded in the metadata.
func (t *Table) OpaqueColumns() []string {
	if t.Metadata == nil {
		return nil
	}
	return t.Metadata.OpaqueColumns
}

// Keys returns the set of identity keys present in the table.
func (t *Table) Keys() map[Key]struct{} {
	keys := make(map[Key]struct{}, len(t.Rows))
	for _, r := range t.Rows {
		keys[r.Key] = struct{}{}
	}
	return keys
}

// ColumnType returns the kind shared by every non-null value of the column,
// Null when the column holds only nulls, and false when kinds are mixed.
func (t *Table) ColumnType(name string) (Kind, bool) {
	kind := Null
	for _, r := range t.Rows {
		v := r.Get(name)
		if v.IsNull() {
			continue
		}
		if kind == Null {
			kind = v.Kind()
		} else if kind != v.Kind() {
			return Null, false
		}
	}
	return kind, true
}

// Equal reports whether both tables hold the same rows in the same order
// with the same cell values. Column order and metadata are not compared.
func (t *Table) Equal(o *Table) bool {
	if t == nil || o == nil {
		return t == o
	}
	if len(t.Rows) != len(o.Rows) {
		return false
	}
	cols := unionColumns(t.Columns, o.Columns)
	for i := range t.Rows {
		a, b := t.Rows[i], o.Rows[i]
		if a.Key != b.Key {
			return false
		}
		for _, c := range cols {
			if !a.Get(c).Equal(b.Get(c)) {
				return false
			}
		}
	}
	return true
}

func unionColumns(a, b []string) []string {
	out := slices.Clone(a)
	for _, c := range b {
		if !slices.Contains(out, c) {
			out = append(out, c)
		}
	}
	return out
}

package table

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/parquet-go/parquet-go"
)

const readBatch = 256

// ParquetCodec stores a table as a single parquet file. The metadata block
// lives in the file's key/value metadata under MetadataKey.
type ParquetCodec struct{}

var _ Codec = ParquetCodec{}

func parquetNode(k Kind) parquet.Node {
	switch k {
	case Int:
		return parquet.Int(64)
	case Float:
		return parquet.Leaf(parquet.DoubleType)
	case Bool:
		return parquet.Leaf(parquet.BooleanType)
	default:
		return parquet.String()
	}
}

func toParquet(v Value) parquet.Value {
	switch v.Kind() {
	case String, Encoded:
		return parquet.ByteArrayValue([]byte(v.Str()))
	case Int:
		return parquet.Int64Value(v.Int())
	case Float:
		return parquet.DoubleValue(v.Float())
	case Bool:
		return parquet.BooleanValue(v.Bool())
	}
	return parquet.NullValue()
}

func fromParquet(v parquet.Value, opaque bool) Value {
	if v.IsNull() {
		return NullValue()
	}
	switch v.Kind() {
	case parquet.Boolean:
		return BoolValue(v.Boolean())
	case parquet.Int32:
		return IntValue(int64(v.Int32()))
	case parquet.Int64:
		return IntValue(v.Int64())
	case parquet.Float:
		return FloatValue(float64(v.Float()))
	case parquet.Double:
		return FloatValue(v.Double())
	}
	s := string(v.ByteArray())
	if opaque {
		return EncodedValue(s)
	}
	return StringValue(s)
}

func (ParquetCodec) Write(path string, t *Table) error {
	if err := t.ensureSealed(); err != nil {
		return err
	}
	meta, err := t.Metadata.Marshal()
	if err != nil {
		return err
	}

	group := parquet.Group{}
	for _, c := range IdentityColumns {
		group[c] = parquet.String()
	}
	kinds := make(map[string]Kind, len(t.Columns))
	for _, c := range t.Columns {
		k, ok := t.ColumnType(c)
		if !ok {
			return fmt.Errorf("column %s mixes value kinds", c)
		}
		kinds[c] = k
		group[c] = parquet.Optional(parquetNode(k))
	}
	schema := parquet.NewSchema("evaluation", group)

	index := make(map[string]int, len(group))
	for i, p := range schema.Columns() {
		index[p[0]] = i
	}

	rows := make([]parquet.Row, 0, len(t.Rows))
	for _, r := range t.Rows {
		row := make(parquet.Row, len(index))
		for c, s := range map[string]string{
			ColLeaderboard: r.Key.Leaderboard,
			ColDeveloper:   r.Key.Developer,
			ColModel:       r.Key.Model,
			ColUUID:        r.Key.UUID,
		} {
			row[index[c]] = parquet.ByteArrayValue([]byte(s)).Level(0, 0, index[c])
		}
		for _, c := range t.Columns {
			v := r.Get(c)
			def := 1
			if v.IsNull() {
				def = 0
			}
			row[index[c]] = toParquet(v).Level(0, def, index[c])
		}
		rows = append(rows, row)
	}

	return replaceFile(path, func(tmp string) error {
		f, err := os.Create(tmp)
		if err != nil {
			return fmt.Errorf("create parquet: %w", err)
		}
		defer func() { _ = f.Close() }()

		w := parquet.NewWriter(f, schema, parquet.KeyValueMetadata(MetadataKey, meta))
		if _, err := w.WriteRows(rows); err != nil {
			return fmt.Errorf("write rows: %w", err)
		}
		if err := w.Close(); err != nil {
			return fmt.Errorf("close parquet writer: %w", err)
		}
		return f.Close()
	})
}

func (ParquetCodec) Read(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open parquet %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat parquet %s: %w", path, err)
	}
	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("open parquet %s: %w", path, err)
	}

	t := &Table{}
	if raw, ok := pf.Lookup(MetadataKey); ok {
		if t.Metadata, err = ParseMetadata(raw); err != nil {
			return nil, err
		}
	}

	leaves := pf.Schema().Columns()
	names := make([]string, len(leaves))
	for i, p := range leaves {
		names[i] = p[0]
	}
	t.Columns = dataColumns(names, t.Metadata)
	opaque := map[string]bool{}
	for _, c := range t.OpaqueColumns() {
		opaque[c] = true
	}

	buf := make([]parquet.Row, readBatch)
	for _, rg := range pf.RowGroups() {
		if err := readRowGroup(rg, names, opaque, buf, t); err != nil {
			return nil, fmt.Errorf("read parquet %s: %w", path, err)
		}
	}
	return t, nil
}

func readRowGroup(rg parquet.RowGroup, names []string, opaque map[string]bool, buf []parquet.Row, t *Table) error {
	rows := rg.Rows()
	defer func() { _ = rows.Close() }()

	for {
		n, err := rows.ReadRows(buf)
		for _, pr := range buf[:n] {
			var row Row
			for _, v := range pr {
				name := names[v.Column()]
				switch name {
				case ColLeaderboard:
					row.Key.Leaderboard = string(v.ByteArray())
				case ColDeveloper:
					row.Key.Developer = string(v.ByteArray())
				case ColModel:
					row.Key.Model = string(v.ByteArray())
				case ColUUID:
					row.Key.UUID = string(v.ByteArray())
				default:
					if cell := fromParquet(v, opaque[name]); !cell.IsNull() {
						row.Fields = append(row.Fields, Field{Name: name, Value: cell})
					}
				}
			}
			t.Rows = append(t.Rows, row)
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// dataColumns orders the non-identity columns by the metadata when
// present, otherwise by their order in the file.
func dataColumns(stored []string, meta *Metadata) []string {
	present := make(map[string]bool, len(stored))
	for _, c := range stored {
		present[c] = true
	}
	var out []string
	if meta != nil {
		for _, ci := range meta.Columns {
			if present[ci.Name] && !IsIdentityColumn(ci.Name) {
				out = append(out, ci.Name)
				delete(present, ci.Name)
			}
		}
	}
	for _, c := range stored {
		if present[c] && !IsIdentityColumn(c) {
			out = append(out, c)
		}
	}
	return out
}

package table

import (
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// SQLiteCodec stores a table in a SQLite database: one "records" table with
// untyped data columns, so each cell keeps its stored type, and a
// "_metadata" key/value table holding the metadata block.
type SQLiteCodec struct{}

var _ Codec = SQLiteCodec{}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (SQLiteCodec) Write(path string, t *Table) error {
	if err := t.ensureSealed(); err != nil {
		return err
	}
	meta, err := t.Metadata.Marshal()
	if err != nil {
		return err
	}
	return replaceFile(path, func(tmp string) error {
		return writeSQLite(tmp, t, meta)
	})
}

func writeSQLite(dbPath string, t *Table, meta string) error {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	defer func() { _ = db.Close() }()

	// Bulk load; durability comes from the rename.
	if _, err := db.Exec("PRAGMA synchronous = OFF"); err != nil {
		return err
	}
	if _, err := db.Exec("PRAGMA journal_mode = MEMORY"); err != nil {
		return err
	}

	cols := make([]string, 0, len(IdentityColumns)+len(t.Columns))
	defs := make([]string, 0, cap(cols))
	for _, c := range IdentityColumns {
		cols = append(cols, quoteIdent(c))
		defs = append(defs, quoteIdent(c)+" TEXT NOT NULL")
	}
	for _, c := range t.Columns {
		cols = append(cols, quoteIdent(c))
		defs = append(defs, quoteIdent(c))
	}

	schema := fmt.Sprintf(`
	CREATE TABLE _metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	CREATE TABLE records (%s);
	CREATE UNIQUE INDEX idx_identity ON records(%s);
	`, strings.Join(defs, ", "), strings.Join(cols[:len(IdentityColumns)], ", "))
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT INTO _metadata (key, value) VALUES (?, ?)`, MetadataKey, meta); err != nil {
		return fmt.Errorf("insert metadata: %w", err)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	stmt, err := tx.Prepare(fmt.Sprintf("INSERT INTO records (%s) VALUES (%s)", strings.Join(cols, ", "), placeholders))
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()

	args := make([]any, len(cols))
	for _, r := range t.Rows {
		args[0], args[1], args[2], args[3] = r.Key.Leaderboard, r.Key.Developer, r.Key.Model, r.Key.UUID
		for i, c := range t.Columns {
			args[len(IdentityColumns)+i] = toSQL(r.Get(c))
		}
		if _, err := stmt.Exec(args...); err != nil {
			return fmt.Errorf("insert %s: %w", r.Key, err)
		}
	}
	return tx.Commit()
}

func toSQL(v Value) any {
	switch v.Kind() {
	case String, Encoded:
		return v.Str()
	case Int:
		return v.Int()
	case Float:
		return v.Float()
	case Bool:
		if v.Bool() {
			return int64(1)
		}
		return int64(0)
	}
	return nil
}

func fromSQL(raw any, kind Kind, opaque bool) Value {
	switch x := raw.(type) {
	case nil:
		return NullValue()
	case int64:
		if kind == Bool {
			return BoolValue(x != 0)
		}
		return IntValue(x)
	case float64:
		return FloatValue(x)
	case []byte:
		raw = string(x)
	}
	s := fmt.Sprint(raw)
	if opaque {
		return EncodedValue(s)
	}
	return StringValue(s)
}

func (SQLiteCodec) Read(path string) (*Table, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	defer func() { _ = db.Close() }()

	t := &Table{}
	var hasMeta int
	if err := db.QueryRow(`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = '_metadata'`).Scan(&hasMeta); err != nil {
		return nil, fmt.Errorf("inspect sqlite %s: %w", path, err)
	}
	if hasMeta > 0 {
		var raw string
		err := db.QueryRow(`SELECT value FROM _metadata WHERE key = ?`, MetadataKey).Scan(&raw)
		switch {
		case err == sql.ErrNoRows:
		case err != nil:
			return nil, fmt.Errorf("read metadata: %w", err)
		default:
			if t.Metadata, err = ParseMetadata(raw); err != nil {
				return nil, err
			}
		}
	}

	rows, err := db.Query("SELECT * FROM records ORDER BY rowid")
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	t.Columns = dataColumns(names, t.Metadata)

	kinds := map[string]Kind{}
	opaque := map[string]bool{}
	if t.Metadata != nil {
		for _, ci := range t.Metadata.Columns {
			kinds[ci.Name] = ci.Type
		}
		for _, c := range t.Metadata.OpaqueColumns {
			opaque[c] = true
		}
	}

	vals := make([]any, len(names))
	ptrs := make([]any, len(names))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		var row Row
		for i, name := range names {
			switch name {
			case ColLeaderboard:
				row.Key.Leaderboard = fmt.Sprint(vals[i])
			case ColDeveloper:
				row.Key.Developer = fmt.Sprint(vals[i])
			case ColModel:
				row.Key.Model = fmt.Sprint(vals[i])
			case ColUUID:
				row.Key.UUID = fmt.Sprint(vals[i])
			default:
				if cell := fromSQL(vals[i], kinds[name], opaque[name]); !cell.IsNull() {
					row.Fields = append(row.Fields, Field{Name: name, Value: cell})
				}
			}
		}
		t.Rows = append(t.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return t, nil
}

package table

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnknownFormat is returned for table paths with an unsupported extension.
var ErrUnknownFormat = errors.New("unknown table format")

// Codec reads and writes a table file format.
type Codec interface {
	Read(path string) (*Table, error)
	Write(path string, t *Table) error
}

// Format names the supported table file formats.
const (
	FormatParquet = "parquet"
	FormatSQLite  = "sqlite"
)

// Ext returns the file extension for a format name.
func Ext(format string) (string, error) {
	switch strings.ToLower(format) {
	case FormatParquet:
		return ".parquet", nil
	case FormatSQLite:
		return ".db", nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownFormat, format)
}

// CodecFor selects the codec for path by extension.
func CodecFor(path string) (Codec, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".parquet":
		return ParquetCodec{}, nil
	case ".db", ".sqlite":
		return SQLiteCodec{}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, path)
}

// ReadFile reads the table at path. A missing file yields an error
// matching fs.ErrNotExist.
func ReadFile(path string) (*Table, error) {
	c, err := CodecFor(path)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("stat table: %w", err)
	}
	return c.Read(path)
}

// WriteFile writes t to path, replacing any existing file. Tables without
// metadata are sealed first.
func WriteFile(path string, t *Table) error {
	c, err := CodecFor(path)
	if err != nil {
		return err
	}
	if err := t.ensureSealed(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	return c.Write(path, t)
}

// replaceFile writes through a temporary sibling and renames it over path.
func replaceFile(path string, write func(tmp string) error) error {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmp := f.Name()
	_ = f.Close()
	if err := write(tmp); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename table: %w", err)
	}
	return nil
}

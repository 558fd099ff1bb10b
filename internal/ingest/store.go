package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/buger/jsonparser"
	"github.com/evaleval/evalsync/api"
	"github.com/evaleval/evalsync/internal/layout"
	"github.com/google/uuid"
)

// RecordStore writes new evaluation records into the corpus layout under
// Root, one file per record named by a fresh UUID.
type RecordStore struct {
	Root string
}

func NewRecordStore(root string) *RecordStore {
	return &RecordStore{Root: root}
}

// Add validates a record and stores it. Records without a schema version
// get the current one. It returns the path written.
func (s *RecordStore) Add(data []byte) (string, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' || !json.Valid(data) {
		return "", fmt.Errorf("%w: not a JSON object", ErrMalformed)
	}
	if _, _, _, err := jsonparser.Get(data, "schema_version"); errors.Is(err, jsonparser.KeyPathNotFoundError) {
		data, err = jsonparser.Set(data, []byte(`"`+api.SchemaVersion+`"`), "schema_version")
		if err != nil {
			return "", fmt.Errorf("set schema version: %w", err)
		}
	}
	if err := Validate(data, ""); err != nil {
		return "", err
	}
	if err := checkReserved(data, ""); err != nil {
		return "", err
	}

	key := Identity(data, uuid.NewString())
	path := layout.RecordPath(s.Root, key.Leaderboard, key.Developer, key.Model, key.UUID)

	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return "", fmt.Errorf("format record: %w", err)
	}
	buf.WriteByte('\n')

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("mkdir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create record: %w", err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("write record: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close record: %w", err)
	}
	return path, nil
}

// AddFile stores the record read from path.
func (s *RecordStore) AddFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read record: %w", err)
	}
	out, err := s.Add(data)
	if err != nil {
		return "", fmt.Errorf("add %s: %w", path, err)
	}
	return out, nil
}

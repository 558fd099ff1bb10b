package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/buger/jsonparser"
	"github.com/evaleval/evalsync/api"
	"github.com/evaleval/evalsync/internal/layout"
	"github.com/evaleval/evalsync/internal/shape"
	"github.com/evaleval/evalsync/internal/table"
	"github.com/go-playground/validator/v10"
)

// Identity defaults for records missing the corresponding field.
const (
	DefaultLeaderboard = "unknown_leaderboard"
	DefaultDeveloper   = "unknown_developer"
	DefaultModel       = "unknown_model"
)

// Flattener converts evaluation records into table rows. Top-level fields
// keep their source order; fields in Complex and every object or array
// value are stored as compact JSON.
type Flattener struct {
	Complex shape.Set
	// Strict rejects records missing required fields.
	Strict bool
}

func NewFlattener(complexFields shape.Set, strict bool) *Flattener {
	return &Flattener{Complex: complexFields, Strict: strict}
}

// FlattenFile reads and flattens the record at path. The row's UUID is the
// file name without its extension.
func (f *Flattener) FlattenFile(path string) (table.Row, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return table.Row{}, fmt.Errorf("read record: %w", err)
	}
	return f.Flatten(data, path)
}

// Flatten converts one record. path is used for the row's UUID and for
// error reporting only.
func (f *Flattener) Flatten(data []byte, path string) (table.Row, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' || !json.Valid(data) {
		return table.Row{}, fmt.Errorf("%w: %s: not a JSON object", ErrMalformed, path)
	}
	if f.Strict {
		if err := Validate(data, path); err != nil {
			return table.Row{}, err
		}
	}

	row := table.Row{Key: Identity(data, layout.RecordID(path))}
	err := jsonparser.ObjectEach(data, func(key, value []byte, typ jsonparser.ValueType, _ int) error {
		name, err := jsonparser.ParseString(key)
		if err != nil {
			return err
		}
		if table.IsIdentityColumn(name) {
			return &ValidationError{Path: path, Field: name, Reason: "reserved column name"}
		}
		v, err := convert(value, typ)
		if err != nil {
			return fmt.Errorf("field %s: %w", name, err)
		}
		if f.Complex.Has(name) {
			if v, err = v.Encode(); err != nil {
				return fmt.Errorf("field %s: %w", name, err)
			}
		}
		row.Fields = setField(row.Fields, name, v)
		return nil
	})
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			return table.Row{}, err
		}
		return table.Row{}, fmt.Errorf("%w: %s: %v", ErrMalformed, path, err)
	}
	return row, nil
}

func convert(value []byte, typ jsonparser.ValueType) (table.Value, error) {
	switch typ {
	case jsonparser.String:
		s, err := jsonparser.ParseString(value)
		return table.StringValue(s), err
	case jsonparser.Number:
		i, err := strconv.ParseInt(string(value), 10, 64)
		if err == nil {
			return table.IntValue(i), nil
		}
		// Integers beyond int64 keep their exact text.
		if errors.Is(err, strconv.ErrRange) {
			return table.EncodedValue(string(value)), nil
		}
		n, err := jsonparser.ParseFloat(value)
		return table.FloatValue(n), err
	case jsonparser.Boolean:
		b, err := jsonparser.ParseBoolean(value)
		return table.BoolValue(b), err
	case jsonparser.Null:
		return table.NullValue(), nil
	case jsonparser.Object, jsonparser.Array:
		var buf bytes.Buffer
		if err := json.Compact(&buf, value); err != nil {
			return table.Value{}, err
		}
		return table.EncodedValue(buf.String()), nil
	}
	return table.Value{}, fmt.Errorf("unexpected value type %s", typ)
}

// setField keeps the last value of a repeated key at its first position.
func setField(fields []table.Field, name string, v table.Value) []table.Field {
	for i := range fields {
		if fields[i].Name == name {
			fields[i].Value = v
			return fields
		}
	}
	return append(fields, table.Field{Name: name, Value: v})
}

// Identity derives the composite identity key of a record.
func Identity(data []byte, uuid string) table.Key {
	return table.Key{
		Leaderboard: stringAt(data, DefaultLeaderboard, "source_metadata", "source_name"),
		Developer:   stringAt(data, DefaultDeveloper, "model_info", "developer"),
		Model:       stringAt(data, DefaultModel, "model_info", "id"),
		UUID:        uuid,
	}
}

func stringAt(data []byte, def string, keys ...string) string {
	s, err := jsonparser.GetString(data, keys...)
	if err != nil || s == "" {
		return def
	}
	return s
}

// checkReserved rejects records whose top-level fields collide with the
// identity columns.
func checkReserved(data []byte, path string) error {
	return jsonparser.ObjectEach(data, func(key, _ []byte, _ jsonparser.ValueType, _ int) error {
		name, err := jsonparser.ParseString(key)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrMalformed, path, err)
		}
		if table.IsIdentityColumn(name) {
			return &ValidationError{Path: path, Field: name, Reason: "reserved column name"}
		}
		return nil
	})
}

// Validate checks that a record carries every required field.
func Validate(data []byte, path string) error {
	var rec api.EvaluationRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		var te *json.UnmarshalTypeError
		if errors.As(err, &te) {
			return &ValidationError{Path: path, Field: te.Field, Reason: "expected " + te.Type.String()}
		}
		return fmt.Errorf("%w: %s: %v", ErrMalformed, path, err)
	}
	if err := rec.Validate(); err != nil {
		return validationError(path, err)
	}
	return nil
}

func validationError(path string, err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &ValidationError{Path: path, Reason: err.Error()}
	}
	fe := verrs[0]
	field := fe.Namespace()
	if _, rest, ok := strings.Cut(field, "."); ok {
		field = rest
	}
	reason := "failed " + fe.Tag()
	switch fe.Tag() {
	case "required", "present":
		reason = "required field missing"
	}
	return &ValidationError{Path: path, Field: field, Reason: reason}
}

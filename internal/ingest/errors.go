// Package ingest turns evaluation record files into flattened table rows.
// It also finds the files to process, either all of them or the ones a git
// revision range touched, and stores new records in the corpus layout.
package ingest

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformed marks a file that is not a JSON object.
	ErrMalformed = errors.New("malformed record")
	// ErrInvalidRecord marks a well-formed record missing required content.
	ErrInvalidRecord = errors.New("invalid record")
	// ErrNoFiles is returned when an input set expands to no record files.
	ErrNoFiles = errors.New("no record files found")
)

// ValidationError reports the first field that failed validation.
type ValidationError struct {
	Path   string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("invalid record: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid record %s: %s: %s", e.Path, e.Field, e.Reason)
}

// Is makes every ValidationError match ErrInvalidRecord.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidRecord
}

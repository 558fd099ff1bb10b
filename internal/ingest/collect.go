package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/evaleval/evalsync/internal/layout"
	"github.com/evaleval/evalsync/internal/table"
	"github.com/evaleval/evalsync/pkg/logger"
)

const progressEvery = 100

// ChangeSet maps a leaderboard to its record files.
type ChangeSet map[string][]string

// Names returns the leaderboards in lexical order.
func (c ChangeSet) Names() []string {
	names := make([]string, 0, len(c))
	for lb := range c {
		names = append(names, lb)
	}
	sort.Strings(names)
	return names
}

// CollectJSON expands inputs into a sorted list of record files. An input
// may be a record file or a directory, which is searched recursively for
// *.json files.
func CollectJSON(inputs ...string) ([]string, error) {
	seen := map[string]bool{}
	var files []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			files = append(files, p)
		}
	}
	for _, in := range inputs {
		info, err := os.Stat(in)
		if err != nil {
			return nil, fmt.Errorf("stat input: %w", err)
		}
		if !info.IsDir() {
			add(filepath.Clean(in))
			continue
		}
		err = filepath.WalkDir(in, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.EqualFold(filepath.Ext(p), layout.RecordExt) {
				add(p)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", in, err)
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoFiles, strings.Join(inputs, ", "))
	}
	sort.Strings(files)
	return files, nil
}

// Leaderboards lists every leaderboard directory under dataDir with all of
// its record files. Directories without records are left out.
func Leaderboards(dataDir string) (ChangeSet, error) {
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		return nil, fmt.Errorf("read data dir: %w", err)
	}
	out := ChangeSet{}
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		files, err := CollectJSON(filepath.Join(dataDir, e.Name()))
		if errors.Is(err, ErrNoFiles) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[e.Name()] = files
	}
	return out, nil
}

// Batch is the outcome of flattening a list of files.
type Batch struct {
	Rows []table.Row
	// Invalid lists files skipped as malformed or failing validation.
	Invalid []string
}

// FlattenFiles flattens every file in order. Files that fail are logged and
// skipped; only context cancellation aborts the batch.
func (f *Flattener) FlattenFiles(ctx context.Context, paths []string, log logger.Logger) (*Batch, error) {
	b := &Batch{Rows: make([]table.Row, 0, len(paths))}
	for i, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row, err := f.FlattenFile(p)
		if err != nil {
			log.Warn(ctx, "skipping record", logger.String("path", p), logger.Error(err))
			b.Invalid = append(b.Invalid, p)
		} else {
			b.Rows = append(b.Rows, row)
		}
		if n := i + 1; n%progressEvery == 0 && n < len(paths) {
			log.Info(ctx, "flattening records", logger.Int("done", n), logger.Int("total", len(paths)))
		}
	}
	slices.Sort(b.Invalid)
	return b, nil
}

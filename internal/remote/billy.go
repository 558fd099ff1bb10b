package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
)

// BillyStore keeps objects as files in a billy filesystem. Keys map to
// slash-separated paths relative to the filesystem root.
type BillyStore struct {
	fs billy.Filesystem
}

var _ Store = (*BillyStore)(nil)

func NewBillyStore(fs billy.Filesystem) *BillyStore {
	return &BillyStore{fs: fs}
}

// Filesystem exposes the backing filesystem.
func (s *BillyStore) Filesystem() billy.Filesystem { return s.fs }

func (s *BillyStore) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := util.Walk(s.fs, prefix, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if info.IsDir() || strings.HasPrefix(info.Name(), ".") {
			return nil
		}
		keys = append(keys, filepath.ToSlash(p))
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", prefix, err)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *BillyStore) Get(ctx context.Context, key, localPath string) error {
	src, err := s.fs.Open(key)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return fmt.Errorf("open %s: %w", key, err)
	}
	defer func() { _ = src.Close() }()
	return writeLocal(localPath, src)
}

func (s *BillyStore) Put(ctx context.Context, key, localPath string) error {
	src, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer func() { _ = src.Close() }()
	return s.put(key, src)
}

func (s *BillyStore) PutBytes(ctx context.Context, key string, data []byte) error {
	return s.put(key, bytes.NewReader(data))
}

// put writes through a temporary file in the key's directory and renames it
// into place.
func (s *BillyStore) put(key string, r io.Reader) error {
	dir := path.Dir(key)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	tmp, err := util.TempFile(s.fs, dir, "."+path.Base(key))
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", key, err)
	}
	name := tmp.Name()
	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		_ = s.fs.Remove(name)
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		_ = s.fs.Remove(name)
		return fmt.Errorf("close %s: %w", key, err)
	}
	if err := s.fs.Rename(name, key); err != nil {
		_ = s.fs.Remove(name)
		return fmt.Errorf("rename %s: %w", key, err)
	}
	return nil
}

func (s *BillyStore) Close() error { return nil }

// writeLocal copies r to localPath through a temporary sibling.
func writeLocal(localPath string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	f, err := os.CreateTemp(filepath.Dir(localPath), "."+filepath.Base(localPath)+".*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return fmt.Errorf("download %s: %w", localPath, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return err
	}
	if err := os.Rename(f.Name(), localPath); err != nil {
		_ = os.Remove(f.Name())
		return fmt.Errorf("rename %s: %w", localPath, err)
	}
	return nil
}

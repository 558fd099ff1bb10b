// Package remote moves leaderboard tables and the catalog card to and from
// the dataset store.
package remote

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/evaleval/evalsync/internal/layout"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
)

// ErrNotFound is returned by Get for a key the store does not hold.
var ErrNotFound = errors.New("object not found")

// Store is a flat key/value object store with slash-separated keys.
type Store interface {
	// List returns the keys under prefix in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)
	// Get downloads key to localPath.
	Get(ctx context.Context, key, localPath string) error
	// Put uploads the file at localPath to key.
	Put(ctx context.Context, key, localPath string) error
	// PutBytes uploads data to key.
	PutBytes(ctx context.Context, key string, data []byte) error
	Close() error
}

// Open returns the store addressed by url:
//
//	gs://bucket/prefix   Google Cloud Storage
//	mem://               in-memory, for dry runs
//	file:///path, path   local directory
//
// credentials is an optional service-account key file for gs:// stores.
func Open(ctx context.Context, url, credentials string) (Store, error) {
	scheme, rest, ok := strings.Cut(url, "://")
	if !ok {
		scheme, rest = "file", url
	}
	switch scheme {
	case "gs":
		bucket, prefix, _ := strings.Cut(rest, "/")
		if bucket == "" {
			return nil, fmt.Errorf("gs url %q has no bucket", url)
		}
		return NewGCSStore(ctx, bucket, prefix, credentials)
	case "mem":
		return NewBillyStore(memfs.New()), nil
	case "file":
		if rest == "" {
			return nil, fmt.Errorf("file url %q has no path", url)
		}
		return NewBillyStore(osfs.New(rest)), nil
	}
	return nil, fmt.Errorf("unsupported store scheme %q", scheme)
}

// Tables lists the leaderboards with a table of the given extension in the
// store's data directory.
func Tables(ctx context.Context, s Store, ext string) ([]string, error) {
	keys, err := s.List(ctx, layout.RemoteDataDir)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	var out []string
	for _, k := range keys {
		if lb, ok := layout.LeaderboardFromKey(k, ext); ok {
			out = append(out, lb)
		}
	}
	sort.Strings(out)
	return out, nil
}

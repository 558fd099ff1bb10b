package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSStore keeps objects in a Google Cloud Storage bucket under a prefix.
type GCSStore struct {
	client *storage.Client
	bucket string
	prefix string
}

var _ Store = (*GCSStore)(nil)

// NewGCSStore connects with the given service-account key file, or with
// application default credentials when credentials is empty.
func NewGCSStore(ctx context.Context, bucket, prefix, credentials string) (*GCSStore, error) {
	var opts []option.ClientOption
	if credentials != "" {
		if _, err := os.Stat(credentials); err != nil {
			return nil, fmt.Errorf("service account key: %w", err)
		}
		opts = append(opts, option.WithCredentialsFile(credentials))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}
	return &GCSStore{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}, nil
}

func (s *GCSStore) object(key string) *storage.ObjectHandle {
	return s.client.Bucket(s.bucket).Object(path.Join(s.prefix, key))
}

func (s *GCSStore) List(ctx context.Context, prefix string) ([]string, error) {
	full := path.Join(s.prefix, prefix)
	if full != "" {
		full += "/"
	}
	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: full})
	var keys []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list gs://%s/%s: %w", s.bucket, full, err)
		}
		key := attrs.Name
		if s.prefix != "" {
			key = strings.TrimPrefix(key, s.prefix+"/")
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *GCSStore) Get(ctx context.Context, key, localPath string) error {
	r, err := s.object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return fmt.Errorf("read gs://%s/%s: %w", s.bucket, key, err)
	}
	defer func() { _ = r.Close() }()
	return writeLocal(localPath, r)
}

func (s *GCSStore) Put(ctx context.Context, key, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open the local file: %s: %w", localPath, err)
	}
	defer func() { _ = f.Close() }()
	return s.put(ctx, key, f)
}

func (s *GCSStore) PutBytes(ctx context.Context, key string, data []byte) error {
	return s.put(ctx, key, bytes.NewReader(data))
}

func (s *GCSStore) put(ctx context.Context, key string, r io.Reader) error {
	w := s.object(key).NewWriter(ctx)
	w.ContentType = "application/octet-stream"
	w.CacheControl = "no-cache, no-store, must-revalidate"
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to copy to GCS object %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer for %s: %w", key, err)
	}
	return nil
}

func (s *GCSStore) Close() error { return s.client.Close() }
